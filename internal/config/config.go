// Package config loads and saves the simulator configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/directional-radio-medium/core"
	"github.com/signalsfoundry/directional-radio-medium/internal/logging"
	"github.com/signalsfoundry/directional-radio-medium/internal/observability"
)

// ErrInvalid marks a configuration that failed validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the root of the YAML document.
type Config struct {
	Medium  MediumConfig  `yaml:"medium"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`

	// LegacyKeys lists deprecated keys found while decoding.
	LegacyKeys []string `yaml:"-"`
}

// MediumConfig holds the recognised radio medium options.
type MediumConfig struct {
	TransmitSuccessRatio  Float `yaml:"transmit_success_ratio"`
	ReceiveSuccessRatio   Float `yaml:"receive_success_ratio"`
	TransmitRange         Float `yaml:"transmit_range"`
	InterferenceRange     Float `yaml:"interference_range"`
	ReceiverSensitivity   Float `yaml:"receiver_sensitivity"`
	InterferenceThreshold Float `yaml:"interference_threshold"`
	Frequency             Float `yaml:"frequency"`
	PropagationSpeed      Float `yaml:"propagation_speed"`
	OrientationDegrees    Float `yaml:"orientation_degrees"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter,omitempty"`
	Endpoint    string  `yaml:"endpoint,omitempty"`
	ServiceName string  `yaml:"service_name,omitempty"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Float is a float64 written as its shortest round-trip decimal string, so
// a save and reload reproduces the value bit for bit.
type Float float64

func (f Float) MarshalYAML() (interface{}, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Value: strconv.FormatFloat(float64(f), 'g', -1, 64),
	}, nil
}

func (f *Float) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", value.Line)
	}
	v, err := strconv.ParseFloat(value.Value, 64)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a number", value.Line, value.Value)
	}
	*f = Float(v)
	return nil
}

// legacyMedium carries keys accepted for older configuration files.
type legacyMedium struct {
	SuccessRatio *Float `yaml:"success_ratio"`
}

// UnmarshalYAML decodes the medium section on top of the current values and
// maps the legacy success_ratio key onto transmit_success_ratio unless the
// new key is also present.
func (m *MediumConfig) UnmarshalYAML(value *yaml.Node) error {
	if err := checkMediumKeys(value); err != nil {
		return err
	}
	type plain MediumConfig
	if err := value.Decode((*plain)(m)); err != nil {
		return err
	}
	var legacy legacyMedium
	if err := value.Decode(&legacy); err != nil {
		return err
	}
	if legacy.SuccessRatio != nil && !hasKey(value, "transmit_success_ratio") {
		m.TransmitSuccessRatio = *legacy.SuccessRatio
	}
	return nil
}

var mediumKeys = map[string]bool{
	"transmit_success_ratio": true,
	"receive_success_ratio":  true,
	"transmit_range":         true,
	"interference_range":     true,
	"receiver_sensitivity":   true,
	"interference_threshold": true,
	"frequency":              true,
	"propagation_speed":      true,
	"orientation_degrees":    true,
	"success_ratio":          true,
}

// checkMediumKeys rejects unknown keys; node-level decoding does not
// inherit the document decoder's KnownFields setting.
func checkMediumKeys(mapping *yaml.Node) error {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k := mapping.Content[i]
		if !mediumKeys[k.Value] {
			return fmt.Errorf("line %d: field %s not found in medium", k.Line, k.Value)
		}
	}
	return nil
}

func hasKey(mapping *yaml.Node, key string) bool {
	if mapping.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}

// Default returns the configuration used when no file is given.
func Default() Config {
	p := core.DefaultParams()
	return Config{
		Medium: MediumConfig{
			TransmitSuccessRatio:  Float(p.TxSuccessRatio),
			ReceiveSuccessRatio:   Float(p.RxSuccessRatio),
			TransmitRange:         Float(p.TransmitRange),
			InterferenceRange:     Float(p.InterferenceRange),
			ReceiverSensitivity:   Float(p.ReceiverSensitivity),
			InterferenceThreshold: Float(p.InterferenceThreshold),
			Frequency:             Float(p.FrequencyGHz),
			PropagationSpeed:      Float(p.PropagationSpeed),
			OrientationDegrees:    Float(p.DefaultOrientationDeg),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{SampleRatio: 1},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document on top of Default and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.LegacyKeys = legacyKeys(data)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// legacyKeys reports deprecated keys present in the medium section.
func legacyKeys(data []byte) []string {
	var doc struct {
		Medium yaml.Node `yaml:"medium"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil
	}
	if hasKey(&doc.Medium, "success_ratio") {
		return []string{"medium.success_ratio"}
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes cfg to path.
func Save(path string, cfg Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the medium parameters and the tracing ratio.
func (c Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if r := c.Tracing.SampleRatio; r < 0 || r > 1 || math.IsNaN(r) {
		return fmt.Errorf("%w: tracing.sample_ratio must be within [0,1], got %v", ErrInvalid, r)
	}
	return nil
}

// Params converts the medium section into core parameters.
func (c Config) Params() core.Params {
	m := c.Medium
	return core.Params{
		TxSuccessRatio:        float64(m.TransmitSuccessRatio),
		RxSuccessRatio:        float64(m.ReceiveSuccessRatio),
		TransmitRange:         float64(m.TransmitRange),
		InterferenceRange:     float64(m.InterferenceRange),
		ReceiverSensitivity:   float64(m.ReceiverSensitivity),
		InterferenceThreshold: float64(m.InterferenceThreshold),
		FrequencyGHz:          float64(m.Frequency),
		PropagationSpeed:      float64(m.PropagationSpeed),
		DefaultOrientationDeg: float64(m.OrientationDegrees),
	}
}

// SetParams stores p in the medium section.
func (c *Config) SetParams(p core.Params) {
	c.Medium = MediumConfig{
		TransmitSuccessRatio:  Float(p.TxSuccessRatio),
		ReceiveSuccessRatio:   Float(p.RxSuccessRatio),
		TransmitRange:         Float(p.TransmitRange),
		InterferenceRange:     Float(p.InterferenceRange),
		ReceiverSensitivity:   Float(p.ReceiverSensitivity),
		InterferenceThreshold: Float(p.InterferenceThreshold),
		Frequency:             Float(p.FrequencyGHz),
		PropagationSpeed:      Float(p.PropagationSpeed),
		OrientationDegrees:    Float(p.DefaultOrientationDeg),
	}
}

// LoggerConfig maps the logging section onto the logging package.
func (c Config) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}

// TracingConfig maps the tracing section onto the observability package.
func (c Config) TracingConfig() observability.TracingConfig {
	t := c.Tracing
	return observability.TracingConfig{
		Enabled:     t.Enabled,
		ServiceName: t.ServiceName,
		Exporter:    t.Exporter,
		Endpoint:    t.Endpoint,
		SampleRatio: t.SampleRatio,
	}
}
