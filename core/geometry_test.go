package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/directional-radio-medium/model"
)

func TestBearingBucket(t *testing.T) {
	cases := []struct {
		deg  float64
		want int
	}{
		{0, 0},
		{200, 200},
		{-200, 160},
		{-190, 170},
		{190, 190},
		{-90, -90},
		{-179.4, -179},
		{-179.6, 180},
		{-180, 180},
		{-540, 180},
		{44.5, 45},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := BearingBucket(tc.deg); got != tc.want {
			t.Errorf("BearingBucket(%v) = %d, want %d", tc.deg, got, tc.want)
		}
	}
}

func TestRelativeBearingDegrees(t *testing.T) {
	origin := model.Position{}
	cases := []struct {
		target      model.Position
		orientation float64
		want        float64
	}{
		{model.Position{X: 10}, 0, 0},
		{model.Position{Y: 10}, 0, 90},
		{model.Position{Y: 10}, 90, 0},
		{model.Position{X: -10}, 0, 180},
		{model.Position{Y: -10}, 0, -90},
		{model.Position{Y: -10}, 100, -190},
	}
	for _, tc := range cases {
		got := RelativeBearingDegrees(origin, tc.target, tc.orientation)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("RelativeBearingDegrees(%v, orientation %v) = %v, want %v", tc.target, tc.orientation, got, tc.want)
		}
	}
}

func TestBucketFromGeometry(t *testing.T) {
	// -90 - 100 = -190 wraps to 170.
	got := BearingBucket(RelativeBearingDegrees(model.Position{}, model.Position{Y: -10}, 100))
	if got != 170 {
		t.Fatalf("bucket = %d, want 170", got)
	}
}
