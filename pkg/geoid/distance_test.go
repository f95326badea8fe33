package geoid

import (
	"testing"

	"ridering/internal/wire"
)

func TestManhattan(t *testing.T) {
	tests := []struct {
		name     string
		a, b     wire.Point
		expected int
	}{
		{"same point", wire.Point{X: 10, Y: 10}, wire.Point{X: 10, Y: 10}, 0},
		{"horizontal", wire.Point{X: 0, Y: 0}, wire.Point{X: 5, Y: 0}, 5},
		{"diagonal", wire.Point{X: 4, Y: 4}, wire.Point{X: 0, Y: 0}, 8},
		{"order independent", wire.Point{X: 0, Y: 0}, wire.Point{X: 4, Y: 4}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Manhattan(tt.a, tt.b); got != tt.expected {
				t.Errorf("Manhattan(%v, %v) = %d, expected %d", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestNearestPicksClosest(t *testing.T) {
	candidates := map[uint16]wire.Point{
		0: {X: 0, Y: 0},
		1: {X: 5, Y: 5},
		2: {X: 100, Y: 100},
	}

	id, ok := Nearest(candidates, wire.Point{X: 4, Y: 4}, nil)
	if !ok || id != 1 {
		t.Errorf("Nearest() = (%d, %v), expected (1, true)", id, ok)
	}
}

func TestNearestBreaksTiesBySmallestID(t *testing.T) {
	candidates := map[uint16]wire.Point{
		5: {X: 0, Y: 0},
		2: {X: 0, Y: 0},
		9: {X: 0, Y: 0},
	}

	id, ok := Nearest(candidates, wire.Point{X: 0, Y: 0}, nil)
	if !ok || id != 2 {
		t.Errorf("Nearest() = (%d, %v), expected (2, true)", id, ok)
	}
}

func TestNearestExcludesDeclinedDrivers(t *testing.T) {
	candidates := map[uint16]wire.Point{
		0: {X: 0, Y: 0},
		1: {X: 1, Y: 1},
	}
	excluded := map[uint16]struct{}{0: {}}

	id, ok := Nearest(candidates, wire.Point{X: 0, Y: 0}, excluded)
	if !ok || id != 1 {
		t.Errorf("Nearest() = (%d, %v), expected (1, true)", id, ok)
	}
}

func TestNearestNoCandidatesReturnsFalse(t *testing.T) {
	_, ok := Nearest(map[uint16]wire.Point{}, wire.Point{}, nil)
	if ok {
		t.Errorf("Nearest() on empty candidates should return ok=false")
	}
}
