package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fullPattern renders a table covering every bucket, with gain 1 except
// where overridden.
func fullPattern(overrides map[int]string) string {
	var sb strings.Builder
	sb.WriteString("# bearing,gain\n")
	for b := -179; b <= 180; b++ {
		gain := "1"
		if g, ok := overrides[b]; ok {
			gain = g
		}
		fmt.Fprintf(&sb, "%d, %s\n", b, gain)
		if b == 0 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func TestLoadRadiationPattern(t *testing.T) {
	src := fullPattern(map[int]string{-90: "0.25", 90: "0.5", 180: "0.125"})
	p, err := LoadRadiationPattern(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadRadiationPattern: %v", err)
	}
	if p.Len() != 360 {
		t.Fatalf("Len = %d, want 360", p.Len())
	}
	if lo, hi := p.Domain(); lo != -179 || hi != 180 {
		t.Fatalf("Domain = [%d, %d], want [-179, 180]", lo, hi)
	}
	if g, res := p.Lookup(90); g != 0.5 || res != LookupExact {
		t.Fatalf("Lookup(90) = %v/%v, want 0.5/exact", g, res)
	}
}

func TestLoadRadiationPatternAcceptsAliasedDomain(t *testing.T) {
	var sb strings.Builder
	for b := 0; b < 360; b++ {
		fmt.Fprintf(&sb, "%d,1\n", b)
	}
	p, err := LoadRadiationPattern(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("LoadRadiationPattern over [0,359]: %v", err)
	}
	if _, res := p.Lookup(-120); res != LookupAliased {
		t.Fatalf("Lookup(-120) resolved as %v, want aliased", res)
	}
}

func TestLoadRadiationPatternRejectsSparseTable(t *testing.T) {
	_, err := LoadRadiationPattern(strings.NewReader("0,1.0\n90,0.5\n"))
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
	var perr *PatternError
	if !errors.As(err, &perr) || !strings.Contains(perr.Error(), "bearing -179") {
		t.Fatalf("error %v should name the first missing bearing", err)
	}

	// A single gap is enough.
	src := strings.Replace(fullPattern(nil), "\n-45, 1\n", "\n", 1)
	if _, err := LoadRadiationPattern(strings.NewReader(src)); err == nil || !strings.Contains(err.Error(), "bearing -45") {
		t.Fatalf("error = %v, want missing bearing -45", err)
	}
}

func TestLoadRadiationPatternErrors(t *testing.T) {
	cases := map[string]struct {
		src  string
		line int
	}{
		"missing field":   {"0,1\n1\n", 2},
		"bad bearing":     {"0,1\nnorth,1\n", 2},
		"fractional":      {"0,1\n1,1\n2.5,1\n", 3},
		"negative gain":   {"0,-1\n", 1},
		"bad gain":        {"0,1\n1,high\n", 2},
		"duplicate":       {"0,1\n0,0.5\n", 2},
		"empty":           {"# only a comment\n", 0},
		"too many fields": {"0,1,2\n", 1},
	}
	for name, tc := range cases {
		_, err := LoadRadiationPattern(strings.NewReader(tc.src))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: error %v does not match ErrConfiguration", name, err)
		}
		var perr *PatternError
		if !errors.As(err, &perr) {
			t.Fatalf("%s: error %T is not a PatternError", name, err)
		}
		if perr.Line != tc.line {
			t.Fatalf("%s: line = %d, want %d", name, perr.Line, tc.line)
		}
	}
}

func TestLoadRadiationPatternFile(t *testing.T) {
	if _, err := LoadRadiationPatternFile(filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("missing file error = %v, want ErrConfiguration", err)
	}

	path := filepath.Join(t.TempDir(), "pattern.txt")
	if err := os.WriteFile(path, []byte(fullPattern(nil)), 0o644); err != nil {
		t.Fatalf("write pattern: %v", err)
	}
	p, err := LoadRadiationPatternFile(path)
	if err != nil {
		t.Fatalf("LoadRadiationPatternFile: %v", err)
	}
	if p.Len() != 360 {
		t.Fatalf("Len = %d, want 360", p.Len())
	}

	if err := os.WriteFile(path, []byte("0,1\n180,0.1\n"), 0o644); err != nil {
		t.Fatalf("write sparse pattern: %v", err)
	}
	if _, err := LoadRadiationPatternFile(path); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("sparse file error = %v, want ErrConfiguration", err)
	}
}

func TestShippedPatternCoversBucketDomain(t *testing.T) {
	p, err := LoadRadiationPatternFile(filepath.Join("..", "configs", "rad_pattern_RPA.txt"))
	if err != nil {
		t.Fatalf("load shipped pattern: %v", err)
	}
	for b := -179; b <= 180; b++ {
		if _, res := p.Lookup(b); res != LookupExact {
			t.Fatalf("bucket %d resolved as %v", b, res)
		}
	}
}

func TestRadiationPatternLookupFallbacks(t *testing.T) {
	p, err := NewRadiationPattern(map[int]float64{0: 1, 90: 0.5, 180: 0.1, 270: 0.4})
	if err != nil {
		t.Fatalf("NewRadiationPattern: %v", err)
	}

	if g, res := p.Lookup(-90); g != 0.4 || res != LookupAliased {
		t.Fatalf("Lookup(-90) = %v/%v, want 0.4/aliased", g, res)
	}
	if g, res := p.Lookup(80); g != 0.5 || res != LookupNearest {
		t.Fatalf("Lookup(80) = %v/%v, want 0.5/nearest", g, res)
	}
	// Equidistant from 0 and 90: the smaller key wins.
	if g, res := p.Lookup(45); g != 1 || res != LookupNearest {
		t.Fatalf("Lookup(45) = %v/%v, want 1/nearest", g, res)
	}
	// 350 is 10 degrees from 0 going round the circle.
	if g, _ := p.Lookup(350); g != 1 {
		t.Fatalf("Lookup(350) = %v, want 1", g)
	}
	if !LookupNearest.Miss() || LookupAliased.Miss() {
		t.Fatalf("Miss() classification is wrong")
	}

	var empty *RadiationPattern
	if g, res := empty.Lookup(10); g != 1 || res != LookupUnavailable {
		t.Fatalf("nil pattern Lookup = %v/%v, want 1/unavailable", g, res)
	}
}

func TestNewRadiationPatternRejectsBadGain(t *testing.T) {
	if _, err := NewRadiationPattern(map[int]float64{0: -0.5}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
	if _, err := NewRadiationPattern(nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("empty error = %v, want ErrConfiguration", err)
	}
}
