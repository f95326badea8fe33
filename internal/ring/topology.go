package ring

import (
	"net"
	"sync"

	"ridering/internal/wire"
)

// believedCoordinator returns the coordinator this driver currently
// believes in, defaulting to itself before the first ring traversal has set
// coordinatorID (§3). This mirrors the source's pervasive
// `self.coordinator_id.unwrap_or(self.id)` idiom — a driver with no better
// information assumes it is alone and therefore the coordinator.
func (d *Driver) believedCoordinator() uint16 {
	if d.coordinatorID != nil {
		return *d.coordinatorID
	}
	return d.id
}

// handleRingMsg dispatches one decoded ring message to its handler (§6).
func (d *Driver) handleRingMsg(e ringMsg) {
	msg := e.msg
	switch {
	case msg.Disconnect:
		d.handleDisconnectReceived()
	case msg.Connect != nil:
		d.log.Warn("unexpected Connect on an established ring link")
	case msg.NewCoordinator != nil:
		d.handleNewCoordinator(*msg.NewCoordinator)
	case msg.CoordinatesRequest != nil:
		d.startCoordinatesGather(msg.CoordinatesRequest.PassengerID)
	case msg.CoordinatesResponse != nil:
		d.handleCoordinatesResponse(*msg.CoordinatesResponse)
	case msg.OfferToDriver != nil:
		d.routeOfferToDriver(*msg.OfferToDriver)
	case msg.TripResponse != nil:
		d.handleTripResponse(*msg.TripResponse)
	case msg.SendTripEnded != nil:
		d.handleSendTripEnded(*msg.SendTripEnded)
	case msg.DriverConnected != nil:
		d.handleDriverConnected(*msg.DriverConnected)
	case msg.UnresolvedTrip != nil:
		d.handleUnresolvedTrip(*msg.UnresolvedTrip)
	default:
		d.log.Warn("empty ring message")
	}
}

// handleRingEOF reacts to a neighbor's reader loop hitting EOF (§4.1
// "Receiver loop"). A stale epoch means the link this reader was watching
// has already been replaced; its report no longer applies.
func (d *Driver) handleRingEOF(e ringEOF) {
	switch e.side {
	case sideRight:
		if d.right == nil || d.right.epoch != e.epoch {
			return
		}
		d.metrics.RingReconnects.Inc()
		d.right.cancel()
		d.right = nil
		d.rightEpoch++
		go d.connectRight(d.ctx, d.rightEpoch)
	case sideLeft:
		if d.left == nil || d.left.epoch != e.epoch {
			return
		}
		// §4.1: "On EOF from the left neighbor, no action is taken."
		d.left.cancel()
		d.left = nil
	}
}

// handleDisconnectReceived processes a Disconnect received over the right
// link — the backward signal sent by a former right neighbor that has
// replaced us with a new left (§4.1 Join). We drop the stale right link and
// re-probe to rejoin the ring further along.
func (d *Driver) handleDisconnectReceived() {
	if d.right != nil {
		d.right.cancel()
		d.right = nil
	}
	d.rightEpoch++
	go d.connectRight(d.ctx, d.rightEpoch)
}

// newNeighborLink builds a neighborLink whose cancel both closes the
// connection and the outbox, so startNeighborWriter's receive on outbox
// unblocks (ok=false) and the writer goroutine exits instead of leaking on every
// reconnect (§4.1/§4.5 reconnects are routine, not exceptional).
func newNeighborLink(id uint16, conn net.Conn, epoch uint64, bufSize int) *neighborLink {
	outbox := make(chan wire.DriverMsg, bufSize)
	return &neighborLink{
		id:     id,
		conn:   conn,
		outbox: outbox,
		epoch:  epoch,
		cancel: sync.OnceFunc(func() {
			conn.Close()
			close(outbox)
		}),
	}
}

// handleRightConnectResult applies the outcome of a connectRight probe
// (§4.1, §4.2 election). A stale epoch (superseded by a more recent probe)
// is discarded along with its connection.
func (d *Driver) handleRightConnectResult(e rightConnectResult) {
	if e.epoch != d.rightEpoch {
		if e.conn != nil {
			e.conn.Close()
		}
		return
	}

	if e.err != nil {
		// §4.1 "No right found": declare self coordinator and continue
		// alone; a later join from some peer will bring the ring up.
		if d.right != nil {
			d.right.cancel()
		}
		if d.left != nil {
			d.left.cancel()
		}
		d.right = nil
		d.left = nil
		d.coordinatorID = &d.id
		d.log.Info("no reachable right neighbor; declaring self coordinator")
		return
	}

	if d.right != nil {
		d.right.cancel()
	}
	link := newNeighborLink(e.id, e.conn, e.epoch, 256)
	d.right = link
	d.startNeighborWriter(d.ctx, link)
	d.startNeighborReader(d.ctx, link, sideRight)

	// §4.1 "After establishing the right link, the new driver sends
	// Connect{...}": this must be the first line the recipient's greet
	// reads, so it is sent before the election emit below, which would
	// otherwise land first on the same FIFO writer and get the recipient
	// to tear the socket down (greet only accepts an opening Connect).
	d.sendRight(wire.DriverMsg{Connect: &wire.Connect{
		From:          wire.ConnDriver,
		ID:            d.id,
		CoordinatorID: d.coordinatorID,
	}})

	d.applyElectionRule(e.id)
}

// applyElectionRule implements §4.2's three-way join rule once a new right
// neighbor newRightID is established.
func (d *Driver) applyElectionRule(newRightID uint16) {
	believed := d.believedCoordinator()
	switch {
	case newRightID < d.id:
		d.coordinatorID = &d.id
		d.emitNewCoordinatorRight(d.id)
	case newRightID > d.id && d.coordinatorID != nil && *d.coordinatorID == newRightID:
		d.coordinatorID = &newRightID
	default:
		d.coordinatorID = &believed
		d.emitNewCoordinatorRight(believed)
	}
}

// emitNewCoordinatorRight originates a NewCoordinator announcement (§4.2).
func (d *Driver) emitNewCoordinatorRight(id uint16) {
	d.metrics.Elections.Inc()
	d.sendRight(wire.DriverMsg{NewCoordinator: &wire.NewCoordinator{ID: id}})
}

// handleNewCoordinator applies an incoming election announcement and
// forwards it onward until it completes the ring and reaches its own
// originator (§4.2).
func (d *Driver) handleNewCoordinator(m wire.NewCoordinator) {
	d.coordinatorID = &m.ID
	if m.ID != d.id {
		d.sendRight(wire.DriverMsg{NewCoordinator: &m})
	}
}

// handleInboundJoin dispatches a freshly accepted connection whose opening
// Connect line has already been decoded (§4.1, §4.4).
func (d *Driver) handleInboundJoin(e inboundJoin) {
	switch e.connect.From {
	case wire.ConnDriver:
		d.onDriverJoin(e.conn, e.connect)
	case wire.ConnPassenger:
		d.onPassengerJoin(e.conn, e.connect.ID)
	default:
		d.log.Warnf("unknown Connect.From %q", e.connect.From)
		e.conn.Close()
	}
}

// onDriverJoin accepts an inbound ring connection as the new left neighbor
// (§4.1 Join). If a left already exists, it is told to Disconnect and
// re-probe rather than simply being dropped.
func (d *Driver) onDriverJoin(conn net.Conn, connect wire.Connect) {
	if connect.CoordinatorID != nil {
		d.coordinatorID = connect.CoordinatorID
		if *connect.CoordinatorID != d.id {
			d.sendRight(wire.DriverMsg{NewCoordinator: &wire.NewCoordinator{ID: *connect.CoordinatorID}})
		}
	}

	if d.left != nil {
		// Write the Disconnect before closing the old link; cancelling right
		// after queueing it would close the socket under the writer. The
		// write is a suspension point (§5), so it runs off the mailbox.
		old := d.left
		go func() {
			if err := wire.WriteLine(old.conn, wire.DriverMsg{Disconnect: true}); err != nil {
				d.log.WithError(err).WithField("peer_id", old.id).Warn("Disconnect to previous left failed")
			}
			old.cancel()
		}()
	}

	epoch := d.nextEpoch()
	link := newNeighborLink(connect.ID, conn, epoch, 16)
	d.left = link
	d.startNeighborWriter(d.ctx, link)
	d.startNeighborReader(d.ctx, link, sideLeft)

	if d.right == nil {
		d.rightEpoch++
		go d.connectRight(d.ctx, d.rightEpoch)
	} else {
		d.sendRight(wire.DriverMsg{DriverConnected: &wire.DriverConnected{DriverID: connect.ID}})
	}
}

// sendRight enqueues msg for the right-neighbor writer, or drops it with a
// log line if there is no right neighbor or its outbox is saturated (§4.1
// "Failure semantics": at-most-once, no blocking retry).
func (d *Driver) sendRight(msg wire.DriverMsg) {
	if d.right == nil {
		d.log.Debug("no right neighbor; dropping ring message")
		return
	}
	select {
	case d.right.outbox <- msg:
	default:
		d.log.Warn("right outbox full; dropping ring message")
	}
}
