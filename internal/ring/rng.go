package ring

import "math/rand"

// Accepter decides whether an offered trip is accepted (§4.3 "flip a fair
// coin"; §9 RNG injection). Production code uses RandomAccepter; tests
// substitute FixedAccepter or a sequence-driven stub to force specific
// scenarios (e.g. spec §8 S2's decline-then-accept).
type Accepter interface {
	Accept() bool
}

// RandomAccepter accepts with probability 0.5 using math/rand's default
// source. Not suitable for tests that need a deterministic outcome — see
// FixedAccepter.
type RandomAccepter struct{}

func (RandomAccepter) Accept() bool {
	return rand.Float64() < 0.5
}

// FixedAccepter always returns the same decision. Useful for pinning a
// single driver's behavior in a scenario test (spec §8 S1, S2).
type FixedAccepter bool

func (f FixedAccepter) Accept() bool {
	return bool(f)
}

// SequenceAccepter returns decisions from Decisions in order, repeating the
// final entry once exhausted. Useful when a test needs a driver to decline
// some number of times before accepting.
type SequenceAccepter struct {
	Decisions []bool
	next      int
}

func (s *SequenceAccepter) Accept() bool {
	if len(s.Decisions) == 0 {
		return false
	}
	if s.next >= len(s.Decisions) {
		return s.Decisions[len(s.Decisions)-1]
	}
	d := s.Decisions[s.next]
	s.next++
	return d
}
