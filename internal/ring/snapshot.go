package ring

import "ridering/internal/wire"

// Snapshot is a point-in-time, read-only copy of driver state for the debug
// HTTP sidecar (SPEC_FULL.md "debug/observability sidecar"). It is built
// entirely on the mailbox goroutine and handed off over a channel so the
// HTTP handler never touches Driver's fields directly.
type Snapshot struct {
	ID            uint16
	Position      wire.Point
	Status        string
	CoordinatorID *uint16
	LeftID        *uint16
	RightID       *uint16

	IsCoordinator      bool
	PendingTrips       int
	InFlightTrips      int
	ConnectedPassenger int
	BufferedOutbound   int
}

// handleSnapshotRequest answers a debug sidecar poll with a consistent view
// of state, replying on e.reply (buffered by the caller, so this send never
// blocks the mailbox loop).
func (d *Driver) handleSnapshotRequest(e snapshotRequest) {
	snap := Snapshot{
		ID:                 d.id,
		Position:           d.position,
		Status:             d.status.String(),
		CoordinatorID:      d.coordinatorID,
		IsCoordinator:      d.believedCoordinator() == d.id,
		PendingTrips:       len(d.pendingTrips),
		InFlightTrips:      len(d.inFlight),
		ConnectedPassenger: len(d.passengers),
		BufferedOutbound:   len(d.unresolvedOutbound),
	}
	if d.left != nil {
		id := d.left.id
		snap.LeftID = &id
	}
	if d.right != nil {
		id := d.right.id
		snap.RightID = &id
	}

	select {
	case e.reply <- snap:
	default:
	}
}
