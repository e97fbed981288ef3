package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/signalsfoundry/directional-radio-medium/kb"
	"github.com/signalsfoundry/directional-radio-medium/model"
)

// Scenario summarises what LoadScenario registered.
type Scenario struct {
	Handles  []kb.Handle
	Mobility map[kb.Handle]MotionModel
	Antennas *AntennaTable
}

// internal JSON shapes; unexported so the file format can evolve.
type scenarioJSON struct {
	Bounds *positionJSON `json:"bounds"`
	Radios []radioJSON   `json:"radios"`
}

type positionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type radioJSON struct {
	Name              string        `json:"name"`
	X                 float64       `json:"x"`
	Y                 float64       `json:"y"`
	Channel           *int          `json:"channel"` // optional; defaults to any channel
	PowerIndicator    *int          `json:"power_indicator"`
	PowerIndicatorMax *int          `json:"power_indicator_max"`
	OutputPowerDBm    float64       `json:"output_power_dbm"`
	On                *bool         `json:"on"` // optional; defaults to true
	BaseRSSI          *float64      `json:"base_rssi"`
	Velocity          *positionJSON `json:"velocity"`
	Antenna           *antennaJSON  `json:"antenna"`
}

type antennaJSON struct {
	Type               string  `json:"type"` // "omni" | "directional"
	OrientationDeg     float64 `json:"orientation_deg"`
	BeamwidthDeg       float64 `json:"beamwidth_deg"`
	RotationDegPerTick float64 `json:"rotation_deg_per_tick"`
}

const defaultPowerIndicatorMax = 31

// LoadScenarioFile opens path and calls LoadScenario.
func LoadScenarioFile(m *Medium, path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return LoadScenario(m, f)
}

// LoadScenario decodes a JSON scenario from r and registers its radios with
// m, applying antenna settings immediately. It fails on JSON or structural
// errors; radios registered before a failure stay registered.
func LoadScenario(m *Medium, r io.Reader) (*Scenario, error) {
	if m == nil {
		return nil, fmt.Errorf("LoadScenario: medium is nil")
	}

	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	var bounds model.Position
	if payload.Bounds != nil {
		bounds = model.Position{X: payload.Bounds.X, Y: payload.Bounds.Y}
	}

	sc := &Scenario{
		Handles:  make([]kb.Handle, 0, len(payload.Radios)),
		Mobility: make(map[kb.Handle]MotionModel),
		Antennas: NewAntennaTable(),
	}

	for i, js := range payload.Radios {
		radio, err := js.toRadio()
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: radio %d: %w", i, err)
		}
		h, err := m.Register(radio)
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: radio %q: %w", js.Name, err)
		}
		sc.Handles = append(sc.Handles, h)

		if js.BaseRSSI != nil {
			m.SetBaseRSSI(h, *js.BaseRSSI)
		}
		if js.Velocity != nil {
			sc.Mobility[h] = NewMotionModel(model.Position{X: js.Velocity.X, Y: js.Velocity.Y}, bounds)
		}
		if js.Antenna != nil {
			node, err := js.Antenna.toNodeAntenna()
			if err != nil {
				return nil, fmt.Errorf("LoadScenario: radio %q: %w", js.Name, err)
			}
			sc.Antennas.Set(h, node)
			if _, err := m.ResyncAntenna(h, node.Settings); err != nil {
				return nil, err
			}
		}
	}

	return sc, nil
}

func (js radioJSON) toRadio() (*model.Radio, error) {
	if strings.TrimSpace(js.Name) == "" {
		return nil, fmt.Errorf("%w: empty name", kb.ErrRadioBadInput)
	}
	r := &model.Radio{
		Name:                    js.Name,
		Position:                model.Position{X: js.X, Y: js.Y},
		Channel:                 model.AnyChannel,
		OutputPowerIndicator:    defaultPowerIndicatorMax,
		OutputPowerIndicatorMax: defaultPowerIndicatorMax,
		OutputPowerDBm:          js.OutputPowerDBm,
		On:                      true,
		SignalStrength:          SSNothing,
	}
	if js.Channel != nil {
		r.Channel = *js.Channel
	}
	if js.PowerIndicatorMax != nil {
		r.OutputPowerIndicatorMax = *js.PowerIndicatorMax
		r.OutputPowerIndicator = *js.PowerIndicatorMax
	}
	if js.PowerIndicator != nil {
		r.OutputPowerIndicator = *js.PowerIndicator
	}
	if js.On != nil {
		r.On = *js.On
	}
	if r.OutputPowerIndicator < 0 || r.OutputPowerIndicator > r.OutputPowerIndicatorMax {
		return nil, fmt.Errorf("%w: power indicator %d outside [0, %d]", kb.ErrRadioBadInput, r.OutputPowerIndicator, r.OutputPowerIndicatorMax)
	}
	return r, nil
}

func (js antennaJSON) toNodeAntenna() (NodeAntenna, error) {
	s := AntennaSettings{
		OrientationDeg: js.OrientationDeg,
		BeamwidthDeg:   js.BeamwidthDeg,
	}
	if s.BeamwidthDeg == 0 {
		s.BeamwidthDeg = DefaultBeamwidthDeg
	}
	switch strings.ToLower(strings.TrimSpace(js.Type)) {
	case "omni", "omnidirectional", "":
		s.Omni = true
		s.OrientationDeg = OmniOrientation
	case "directional", "dir":
	default:
		return NodeAntenna{}, fmt.Errorf("%w: unknown antenna type %q", ErrConfiguration, js.Type)
	}
	return NodeAntenna{Settings: s, RotationDegPerTick: js.RotationDegPerTick}, nil
}
