package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// LookupResult describes how a gain-table query was resolved.
type LookupResult int

const (
	// LookupExact means the bucket was present in the table.
	LookupExact LookupResult = iota
	// LookupAliased means the bucket was resolved through its ±360°
	// equivalent, which points in the same direction.
	LookupAliased
	// LookupNearest means neither the bucket nor its alias existed and the
	// circularly nearest table entry was used instead.
	LookupNearest
	// LookupUnavailable means no table was loaded; a gain of 1.0 was used.
	LookupUnavailable
)

func (r LookupResult) String() string {
	switch r {
	case LookupExact:
		return "exact"
	case LookupAliased:
		return "aliased"
	case LookupNearest:
		return "nearest"
	case LookupUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Miss reports whether the lookup had to fall back on something other than
// the requested direction.
func (r LookupResult) Miss() bool {
	return r == LookupNearest || r == LookupUnavailable
}

// RadiationPattern is a read-only table of antenna gain coefficients keyed
// by integer bearing in degrees.
type RadiationPattern struct {
	gains map[int]float64
	keys  []int
}

// LoadRadiationPatternFile opens and parses a radiation-pattern resource.
func LoadRadiationPatternFile(path string) (*RadiationPattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open radiation pattern %q: %v", ErrConfiguration, path, err)
	}
	defer f.Close()

	p, err := LoadRadiationPattern(f)
	if err != nil {
		return nil, fmt.Errorf("load radiation pattern %q: %w", path, err)
	}
	return p, nil
}

// Bucket domain a loaded pattern must cover, directly or through the
// ±360° alias.
const (
	minBucket = -179
	maxBucket = 180
)

// LoadRadiationPattern parses "bearing_degrees,gain" lines. Bearings must
// be integral, gains finite and non-negative, and every bearing unique.
// Every bucket in [-179, 180] must resolve exactly or through its alias.
// Blank lines and lines starting with '#' are skipped.
func LoadRadiationPattern(r io.Reader) (*RadiationPattern, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	cr.ReuseRecord = true

	p := &RadiationPattern{gains: make(map[int]float64)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				line = perr.Line
			}
			return nil, &PatternError{Line: line, Err: err}
		}
		line, _ := cr.FieldPos(0)
		text := strings.Join(rec, ",")

		bearing, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			return nil, &PatternError{Line: line, Text: text, Err: fmt.Errorf("bearing: %w", err)}
		}
		if bearing != math.Trunc(bearing) || math.IsInf(bearing, 0) {
			return nil, &PatternError{Line: line, Text: text, Err: errors.New("bearing is not an integer degree")}
		}
		gain, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, &PatternError{Line: line, Text: text, Err: fmt.Errorf("gain: %w", err)}
		}
		if gain < 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
			return nil, &PatternError{Line: line, Text: text, Err: errors.New("gain must be finite and non-negative")}
		}

		key := int(bearing)
		if _, dup := p.gains[key]; dup {
			return nil, &PatternError{Line: line, Text: text, Err: fmt.Errorf("duplicate bearing %d", key)}
		}
		p.gains[key] = gain
		p.keys = append(p.keys, key)
	}

	if len(p.keys) == 0 {
		return nil, &PatternError{Err: errors.New("no entries")}
	}
	sort.Ints(p.keys)
	if err := p.checkCoverage(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RadiationPattern) checkCoverage() error {
	for b := minBucket; b <= maxBucket; b++ {
		if _, res := p.Lookup(b); res != LookupExact && res != LookupAliased {
			return &PatternError{Err: fmt.Errorf("no entry for bearing %d", b)}
		}
	}
	return nil
}

// NewRadiationPattern builds a pattern from an in-memory table. Unlike
// LoadRadiationPattern it accepts sparse tables, whose gaps resolve to the
// nearest entry at lookup time.
func NewRadiationPattern(gains map[int]float64) (*RadiationPattern, error) {
	if len(gains) == 0 {
		return nil, &PatternError{Err: errors.New("no entries")}
	}
	p := &RadiationPattern{gains: make(map[int]float64, len(gains))}
	for k, g := range gains {
		if g < 0 || math.IsNaN(g) || math.IsInf(g, 0) {
			return nil, &PatternError{Err: fmt.Errorf("bearing %d: gain must be finite and non-negative", k)}
		}
		p.gains[k] = g
		p.keys = append(p.keys, k)
	}
	sort.Ints(p.keys)
	return p, nil
}

// Len returns the number of table entries.
func (p *RadiationPattern) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Domain returns the smallest and largest bearing in the table.
func (p *RadiationPattern) Domain() (lo, hi int) {
	if p.Len() == 0 {
		return 0, 0
	}
	return p.keys[0], p.keys[len(p.keys)-1]
}

// Lookup returns the gain coefficient for a bucket. It never fails: a
// missing bucket resolves through its ±360° alias, then through the
// circularly nearest entry (ties go to the smaller key).
func (p *RadiationPattern) Lookup(bucket int) (float64, LookupResult) {
	if p.Len() == 0 {
		return 1.0, LookupUnavailable
	}
	if g, ok := p.gains[bucket]; ok {
		return g, LookupExact
	}
	for _, alias := range []int{bucket - 360, bucket + 360} {
		if g, ok := p.gains[alias]; ok {
			return g, LookupAliased
		}
	}

	best := p.keys[0]
	bestDist := circularDistance(bucket, best)
	for _, k := range p.keys[1:] {
		if d := circularDistance(bucket, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return p.gains[best], LookupNearest
}

func circularDistance(a, b int) int {
	d := (a - b) % 360
	if d < 0 {
		d += 360
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}
