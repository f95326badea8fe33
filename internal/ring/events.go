package ring

import (
	"net"

	"ridering/internal/wire"
)

// side identifies which neighbor link a ring event arrived on.
type side int

const (
	sideLeft side = iota
	sideRight
)

// event is the sum type of everything the mailbox loop can receive. Only
// Run's goroutine ever inspects these — every other goroutine in this
// package only ever constructs one and sends it.
type event interface{ isEvent() }

// ringMsg is a decoded message from an established neighbor link.
type ringMsg struct {
	side  side
	epoch uint64
	msg   wire.DriverMsg
}

func (ringMsg) isEvent() {}

// ringEOF signals a neighbor's reader loop hit EOF or an unrecoverable read
// error (§4.1 failure semantics).
type ringEOF struct {
	side  side
	epoch uint64
}

func (ringEOF) isEvent() {}

// rightConnectResult is the outcome of a right-neighbor connect probe,
// posted back to the mailbox instead of being acted on inline — the probe
// itself is a suspension point (§5) and must not hold onto state.
type rightConnectResult struct {
	epoch uint64
	id    uint16
	conn  net.Conn
	err   error
}

func (rightConnectResult) isEvent() {}

// inboundJoin is a freshly accepted TCP connection whose first line has
// already been read and decoded as a Connect message (driver or passenger).
// Reading that first line is itself a suspension point, done by a throwaway
// goroutine in the accept loop, not by the mailbox goroutine.
type inboundJoin struct {
	conn    net.Conn
	connect wire.Connect
}

func (inboundJoin) isEvent() {}

// passengerMsg is a decoded message from an already-connected passenger.
type passengerMsg struct {
	passengerID uint16
	epoch       uint64
	msg         wire.DriverMsg
}

func (passengerMsg) isEvent() {}

// passengerEOF signals a passenger socket closed.
type passengerEOF struct {
	passengerID uint16
	epoch       uint64
}

func (passengerEOF) isEvent() {}

// passengerWriteFailed is posted by a passenger's writer goroutine when a
// write errors out (§4.4 buffered delivery: "on write error, buffers").
// The actual map mutation happens back on the mailbox goroutine, never in
// the writer goroutine itself.
type passengerWriteFailed struct {
	passengerID uint16
	epoch       uint64
	msg         wire.PassengerMsg
}

func (passengerWriteFailed) isEvent() {}

// tripTimerFired is posted when a T_TRIP simulation timer elapses on the
// driver that accepted the trip (§4.3 trip execution).
type tripTimerFired struct {
	passengerID uint16
}

func (tripTimerFired) isEvent() {}

// snapshotRequest is posted by the debug HTTP sidecar to read a consistent
// view of driver state without touching it from the HTTP goroutine.
type snapshotRequest struct {
	reply chan Snapshot
}

func (snapshotRequest) isEvent() {}
