package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	NormalizeL2(x)
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeL2 = %v", x)
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct{ x, want float64 }{
		{-3, 1}, {1, 1}, {5.5, 5.5}, {10, 10}, {12, 10},
	}
	for _, tt := range tests {
		if got := Clamp(tt.x, 1, 10); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestRoundTo(t *testing.T) {
	tests := []struct {
		x      float64
		places int
		want   float64
	}{
		{5.25, 1, 5.3},
		{5.24, 1, 5.2},
		{3.0, 1, 3.0},
		{7.95, 0, 8},
	}
	for _, tt := range tests {
		if got := RoundTo(tt.x, tt.places); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RoundTo(%v, %d) = %v, want %v", tt.x, tt.places, got, tt.want)
		}
	}
}
