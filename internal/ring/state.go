// Package ring implements the distributed driver ring: the unidirectional
// transport between neighbors, coordinator election, the trip dispatch
// auction, the passenger gateway, and recovery of in-flight trips after a
// reconnect (spec §3–§5).
//
// Go Learning Note — One Goroutine Owns the State:
// The source uses an actor framework where every handler for a given actor
// runs strictly one-at-a-time, so no two handlers ever race on the same
// fields. The direct Go analogue (per spec §9) is a single goroutine that
// owns all mutable fields and a channel ("mailbox") that every other
// goroutine — socket readers, accept loops, timers, the debug HTTP server —
// posts events into instead of touching state directly. This is the same
// shape as the teacher's MatchingService.processDriverResponses router, just
// scaled up from "route one channel" to "own an entire state machine."
package ring

import (
	"context"
	"net"
	"time"

	"ridering/internal/wire"

	"github.com/sirupsen/logrus"
)

// Status is a driver's availability (§3).
type Status int

const (
	Available Status = iota
	Busy
)

func (s Status) String() string {
	if s == Busy {
		return "Busy"
	}
	return "Available"
}

// tripRequest records an origin/destination pending dispatch (§3).
type tripRequest struct {
	origin      wire.Point
	destination wire.Point
}

// passengerLink is the coordinator's handle to a connected passenger: the
// outbound write queue feeding that passenger's dedicated writer goroutine.
// Go Learning Note — Channel as Writer Handle:
// Rather than holding the net.Conn directly in state and passing it between
// goroutines (the source's "take the writer, use it, put it back" dance),
// the writer half lives permanently in its own goroutine and is reached only
// through this channel — see pkg comment and spec §9 "Ownership of writers."
type passengerLink struct {
	id     uint16
	conn   net.Conn
	outbox chan wire.PassengerMsg
	epoch  uint64
	cancel func()
}

// neighborLink is a connected ring neighbor (left or right). Both
// directions carry an outbox/writer: the right link uses it for every
// forwarded ring message; nothing is queued on the left link's outbox — the
// rare backward Disconnect to a replaced left (§4.1 Join) is written
// directly on its conn by onDriverJoin before the link is closed.
type neighborLink struct {
	id     uint16
	conn   net.Conn
	outbox chan wire.DriverMsg
	epoch  uint64 // monotonically increasing; stale readers/events are discarded by epoch mismatch
	cancel func()
}

// Driver owns the entire mutable state machine for one driver process. Every
// field below is read and written exclusively from the goroutine running
// Run; all other goroutines communicate with it by sending on mailbox.
type Driver struct {
	id       uint16
	position wire.Point
	status   Status

	left  *neighborLink
	right *neighborLink

	rightEpoch   uint64 // bumped every time we start a new right-connect attempt, to disambiguate stale probe results
	epochCounter uint64 // source of epoch values for left/passenger links

	coordinatorID *uint16

	// Coordinator-only state (§3 I6): populated only while self is coordinator,
	// but harmless to keep allocated even when not — a non-coordinator simply
	// never writes to these maps.
	passengers         map[uint16]*passengerLink
	pendingTrips       map[uint16]tripRequest
	declined           map[uint16]map[uint16]struct{}
	unresolvedOutbound map[uint16][]wire.PassengerMsg
	inFlight           map[uint16]uint16 // driver_id -> passenger_id

	tripTimers map[uint16]func() // passenger_id -> cancel func for the pending T_TRIP completion timer, so recovery can cancel a ghost timer

	maxDrivers   int
	tripDuration time.Duration
	maxLineBytes int
	dialTimeout  time.Duration
	host         string // loopback address the ring dials and listens on
	basePort     int

	listener net.Listener

	accepter Accepter // injectable RNG for offer-acceptance (§9 RNG injection)
	metrics  *Metrics
	log      *logrus.Entry

	mailbox chan event
	ctx     context.Context // set by Run; used by handlers that must spawn goroutines (timers, reconnect probes)
}

// nextEpoch returns a fresh monotonically increasing epoch value, used to
// tell an established left or passenger link apart from whatever replaces
// it later, so a late event from a torn-down link can be recognized as
// stale and dropped instead of mutating state it no longer owns.
func (d *Driver) nextEpoch() uint64 {
	d.epochCounter++
	return d.epochCounter
}
