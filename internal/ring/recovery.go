package ring

import (
	"time"

	"ridering/internal/wire"
)

// handleDriverConnected reacts to a driver (re)joining the ring (§4.5
// recovery). It is relayed rightward until it reaches the coordinator, which
// does not relay it further, and separately checked against inFlight: only
// the coordinator's inFlight map is ever populated, so on any other driver
// this check is a no-op.
func (d *Driver) handleDriverConnected(m wire.DriverConnected) {
	if d.believedCoordinator() != d.id {
		d.sendRight(wire.DriverMsg{DriverConnected: &m})
	}
	pid, ok := d.inFlight[m.DriverID]
	if !ok {
		return
	}
	// The reconnected driver has no memory of this trip (§4.5 "ghost
	// trip"); route it an UnresolvedTrip so it can be told to stand down,
	// and let the same path converge on SendTripEnded for the passenger.
	d.sendRight(wire.DriverMsg{UnresolvedTrip: &wire.UnresolvedTrip{
		PassengerID: pid,
		DriverID:    m.DriverID,
	}})
}

// handleUnresolvedTrip forwards an UnresolvedTrip until it reaches the named
// driver, at which point that driver treats its own ghost trip as ended
// (§4.5): a T_TRIP timer still pending for the trip is cancelled and the
// driver becomes Available again, so the timer cannot later send a second
// completion, and the completion is relayed onward.
func (d *Driver) handleUnresolvedTrip(m wire.UnresolvedTrip) {
	if d.id != m.DriverID {
		d.sendRight(wire.DriverMsg{UnresolvedTrip: &m})
		return
	}
	if cancel, ok := d.tripTimers[m.PassengerID]; ok {
		cancel()
		delete(d.tripTimers, m.PassengerID)
		d.status = Available
	}
	d.handleSendTripEnded(wire.SendTripEnded{PassengerID: m.PassengerID})
}

// handleSendTripEnded is the single completion path for a finished trip,
// reached either by the driver whose T_TRIP timer fired (handleTripTimerFired)
// or by recovery's forced-completion path (handleUnresolvedTrip). It forwards
// toward the coordinator, who clears bookkeeping and notifies the passenger
// (§4.3 trip execution, §4.5 recovery).
func (d *Driver) handleSendTripEnded(m wire.SendTripEnded) {
	if d.believedCoordinator() != d.id {
		d.sendRight(wire.DriverMsg{SendTripEnded: &m})
		return
	}

	for driverID, pid := range d.inFlight {
		if pid == m.PassengerID {
			delete(d.inFlight, driverID)
			break
		}
	}
	delete(d.pendingTrips, m.PassengerID)
	d.sendToPassenger(m.PassengerID, wire.PassengerMsg{TripEnded: true})
}

// scheduleTripCompletion starts the T_TRIP simulation timer for a just
// accepted offer (§4.3 "Trip execution"). The timer itself runs off the
// mailbox goroutine; only its firing is posted back as an event.
func (d *Driver) scheduleTripCompletion(pid uint16) {
	if cancel, ok := d.tripTimers[pid]; ok {
		cancel()
	}
	done := make(chan struct{})
	timer := time.AfterFunc(d.tripDuration, func() {
		d.post(d.ctx, tripTimerFired{passengerID: pid})
		close(done)
	})
	d.tripTimers[pid] = func() {
		timer.Stop()
		select {
		case <-done:
		default:
		}
	}
}

// handleTripTimerFired completes a trip this driver was executing: it
// becomes Available again and routes a SendTripEnded toward the coordinator
// (§4.3 "Trip execution").
func (d *Driver) handleTripTimerFired(e tripTimerFired) {
	delete(d.tripTimers, e.passengerID)
	d.status = Available
	d.metrics.TripsCompleted.Inc()
	d.handleSendTripEnded(wire.SendTripEnded{PassengerID: e.passengerID})
}
