// Package geoid provides the distance and selection math for the dispatch
// engine's driver auction (§4.3, §8 P5): Manhattan distance on the 8-bit
// grid and deterministic tie-breaking by driver id.
//
// Go Learning Note — Why not the teacher's geohash package:
// The teacher's internal/geo package buckets a large population of points
// into geohash cells for fast proximity queries — the right tool when you
// might have thousands of drivers spread over a city. This system has at
// most MAX_DRIVERS points and re-gathers them on every trip request, so a
// full scan with a simple distance function is both correct and simpler;
// see pkg/utils/pricing.go in the teacher for the precedent of a small pure
// distance function living in its own package with its own _test.go.
package geoid

import "ridering/internal/wire"

// Manhattan returns the L1 distance between two grid points.
func Manhattan(a, b wire.Point) int {
	return absDiff(a.X, b.X) + absDiff(a.Y, b.Y)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// Nearest scans candidates (driver id -> position) and returns the id
// minimizing Manhattan distance to origin, excluding any id present in
// excluded. Ties are broken by smallest driver id, per §9's resolution of
// the source's unspecified tie-break. ok is false when no candidate
// qualifies.
func Nearest(candidates map[uint16]wire.Point, origin wire.Point, excluded map[uint16]struct{}) (id uint16, ok bool) {
	bestDist := -1
	var bestID uint16

	for candidateID, pos := range candidates {
		if _, skip := excluded[candidateID]; skip {
			continue
		}
		d := Manhattan(pos, origin)
		if bestDist == -1 || d < bestDist || (d == bestDist && candidateID < bestID) {
			bestDist = d
			bestID = candidateID
			ok = true
		}
	}
	return bestID, ok
}
