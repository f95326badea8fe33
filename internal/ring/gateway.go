package ring

import (
	"net"
	"sync"

	"ridering/internal/wire"
)

// newPassengerLink builds a passengerLink whose cancel both closes the
// connection and the outbox, so startPassengerWriter's select on outbox
// unblocks (ok=false) and the writer goroutine exits instead of leaking on
// every disconnect/reconnect (§4.4).
func newPassengerLink(id uint16, conn net.Conn, epoch uint64) *passengerLink {
	outbox := make(chan wire.PassengerMsg, 64)
	return &passengerLink{
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

// onPassengerJoin completes a passenger handshake (§4.4, §6 ConnectRes).
// Only the coordinator accepts passengers directly; a non-coordinator still
// accepts the socket (so the passenger doesn't need to guess which driver is
// in charge) but answers with the believed leader id and status=false so the
// passenger's client can redial it.
func (d *Driver) onPassengerJoin(conn net.Conn, pid uint16) {
	leader := d.believedCoordinator()
	if leader != d.id {
		_ = wire.WriteLine(conn, wire.PassengerMsg{ConnectRes: &wire.ConnectRes{
			Status:   false,
			LeaderID: &leader,
		}})
		conn.Close()
		return
	}

	epoch := d.nextEpoch()
	link := newPassengerLink(pid, conn, epoch)
	d.passengers[pid] = link
	d.startPassengerWriter(d.ctx, link)
	d.startPassengerReader(d.ctx, link)

	d.sendToPassenger(pid, wire.PassengerMsg{ConnectRes: &wire.ConnectRes{
		Status:   true,
		LeaderID: &d.id,
	}})

	// §4.4 reconnect: flush anything buffered while this passenger was gone.
	if queued, ok := d.unresolvedOutbound[pid]; ok {
		for _, m := range queued {
			d.sendToPassenger(pid, m)
		}
		delete(d.unresolvedOutbound, pid)
	}
}

// sendToPassenger enqueues msg on pid's writer if connected, or buffers it
// for delivery on reconnect otherwise (§4.4 "buffered delivery", R2).
func (d *Driver) sendToPassenger(pid uint16, msg wire.PassengerMsg) {
	link, ok := d.passengers[pid]
	if !ok {
		d.bufferForPassenger(pid, msg)
		return
	}
	select {
	case link.outbox <- msg:
	default:
		d.log.WithField("passenger_id", pid).Warn("passenger outbox full, buffering instead")
		d.bufferForPassenger(pid, msg)
	}
}

// bufferForPassenger appends msg to pid's pending-delivery queue.
func (d *Driver) bufferForPassenger(pid uint16, msg wire.PassengerMsg) {
	d.unresolvedOutbound[pid] = append(d.unresolvedOutbound[pid], msg)
}

// handlePassengerEOF tears down a disconnected passenger's link. Dispatch
// state (pendingTrips/inFlight/declined) is deliberately left untouched —
// dispatch keeps running for a disconnected passenger, with any result
// buffered for delivery whenever they reconnect (§4.4 R2).
func (d *Driver) handlePassengerEOF(e passengerEOF) {
	link, ok := d.passengers[e.passengerID]
	if !ok || link.epoch != e.epoch {
		return
	}
	delete(d.passengers, e.passengerID)
	link.cancel()
}

// handlePassengerWriteFailed reacts to a passenger writer goroutine's write
// error (§4.4). The failed message had already left the outbox, so it is
// re-buffered explicitly rather than lost, and the dead link is torn down
// the same way an EOF would be.
func (d *Driver) handlePassengerWriteFailed(e passengerWriteFailed) {
	link, ok := d.passengers[e.passengerID]
	if !ok || link.epoch != e.epoch {
		return
	}
	delete(d.passengers, e.passengerID)
	link.cancel()
	d.bufferForPassenger(e.passengerID, e.msg)
}
