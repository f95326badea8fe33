package ring

import (
	"ridering/internal/wire"

	"ridering/pkg/geoid"
)

// intakeTripRequest records a new trip and starts the position gather
// (§4.3 "Trip intake"). Invariant I4: a passenger is never recorded in both
// pendingTrips and inFlight at once.
func (d *Driver) intakeTripRequest(pid uint16, req wire.TripRequest) {
	if _, exists := d.pendingTrips[pid]; exists {
		d.log.WithField("passenger_id", pid).Warn("trip request for passenger already pending")
		return
	}
	for _, inFlightPID := range d.inFlight {
		if inFlightPID == pid {
			d.log.WithField("passenger_id", pid).Warn("trip request for passenger already in flight")
			return
		}
	}
	d.pendingTrips[pid] = tripRequest{origin: req.Start, destination: req.End}
	delete(d.declined, pid) // §4.3, I5: clears any lingering decline set
	d.startCoordinatesGather(pid)
}

// startCoordinatesGather begins (or restarts, after a decline) a position
// gather for pid (§4.3 "Position gather"). The coordinator contributes its
// own position first, only while Available, exactly like every other hop.
func (d *Driver) startCoordinatesGather(pid uint16) {
	d.metrics.PositionGathers.Inc()
	gathered := map[uint16]wire.Point{}
	if d.status == Available {
		gathered[d.id] = d.position
	}
	if d.right == nil {
		// Solo ring: there is nobody else to ask, so the gather is already
		// complete at self.
		d.completeCoordinatesGather(pid, gathered)
		return
	}
	d.sendRight(wire.DriverMsg{CoordinatesResponse: &wire.CoordinatesResponse{
		DriversCoordinates: gathered,
		PassengerID:        pid,
	}})
}

// handleCoordinatesResponse appends this driver's position (if available)
// to an in-flight gather and forwards it, or — if self is the coordinator —
// treats the message's arrival as the gather completing (§4.3).
func (d *Driver) handleCoordinatesResponse(m wire.CoordinatesResponse) {
	if d.believedCoordinator() == d.id {
		d.completeCoordinatesGather(m.PassengerID, m.DriversCoordinates)
		return
	}
	if d.status == Available {
		if m.DriversCoordinates == nil {
			m.DriversCoordinates = map[uint16]wire.Point{}
		}
		m.DriversCoordinates[d.id] = d.position
	}
	d.sendRight(wire.DriverMsg{CoordinatesResponse: &m})
}

// completeCoordinatesGather runs the §4.3 "Selection rule" over a finished
// snapshot and either offers the nearest undeclined driver or terminates
// the trip with a declared reason.
func (d *Driver) completeCoordinatesGather(pid uint16, snapshot map[uint16]wire.Point) {
	trip, ok := d.pendingTrips[pid]
	if !ok {
		// Trip already resolved or cancelled; a stray gather result arrived
		// after the fact. Nothing to do.
		return
	}

	excluded := d.declined[pid]
	driverID, found := geoid.Nearest(snapshot, trip.origin, excluded)
	if !found {
		reason := wire.ReasonDriversBusy
		if len(excluded) > 0 {
			reason = wire.ReasonNotAccepted
		}
		d.sendToPassenger(pid, wire.PassengerMsg{TripResponse: &wire.TripResponse{
			Status:      false,
			Reason:      &reason,
			PassengerID: pid,
			DriverID:    d.id,
		}})
		delete(d.pendingTrips, pid)
		delete(d.declined, pid)
		return
	}

	d.routeOfferToDriver(wire.OfferToDriver{
		DriverID:    driverID,
		Origin:      trip.origin,
		Destination: trip.destination,
		PassengerID: pid,
	})
}

// routeOfferToDriver peels off an offer addressed to self, or forwards it
// rightward (§4.3 "Offer handling"). Routing it this way (rather than a raw
// sendRight) means an offer to the coordinator itself — the common case on
// a solo ring — is handled locally instead of needing a right neighbor to
// loop it back.
func (d *Driver) routeOfferToDriver(offer wire.OfferToDriver) {
	if offer.DriverID == d.id {
		d.handleOffer(offer)
		return
	}
	d.sendRight(wire.DriverMsg{OfferToDriver: &offer})
}

// handleOffer is the named driver's decision on a trip offer (§4.3 "Offer
// handling on the candidate driver"): decline outright if Busy, otherwise a
// fair coin flip via the injected Accepter (§9 RNG injection).
func (d *Driver) handleOffer(offer wire.OfferToDriver) {
	accept := d.status == Available && d.accepter.Accept()
	d.metrics.TripsDispatched.Inc()

	resp := wire.TripResponse{Status: accept, PassengerID: offer.PassengerID, DriverID: d.id}
	if d.believedCoordinator() == d.id {
		d.onTripResponseAtCoordinator(resp)
	} else {
		d.sendRight(wire.DriverMsg{TripResponse: &resp})
	}

	if accept {
		d.status = Busy
		d.scheduleTripCompletion(offer.PassengerID)
		return
	}
	d.metrics.TripsDeclined.Inc()
}

// handleTripResponse forwards a TripResponse rightward until it reaches the
// coordinator (§4.3 "Response routing").
func (d *Driver) handleTripResponse(m wire.TripResponse) {
	if d.believedCoordinator() != d.id {
		d.sendRight(wire.DriverMsg{TripResponse: &m})
		return
	}
	d.onTripResponseAtCoordinator(m)
}

// onTripResponseAtCoordinator applies a resolved TripResponse at the
// coordinator: a decline adds to the decline set and restarts the gather
// (§8 P3); an accept records the in-flight trip and relays acceptance to
// the passenger (§4.3).
func (d *Driver) onTripResponseAtCoordinator(m wire.TripResponse) {
	pid := m.PassengerID
	if !m.Status {
		if d.declined[pid] == nil {
			d.declined[pid] = map[uint16]struct{}{}
		}
		d.declined[pid][m.DriverID] = struct{}{}
		d.startCoordinatesGather(pid)
		return
	}

	d.inFlight[m.DriverID] = pid
	delete(d.pendingTrips, pid)
	d.sendToPassenger(pid, wire.PassengerMsg{TripResponse: &m})
}

// handlePassengerMsg dispatches a decoded message from an already-connected
// passenger. Only TripRequest is expected post-handshake (§4.4).
func (d *Driver) handlePassengerMsg(e passengerMsg) {
	switch {
	case e.msg.TripRequest != nil:
		d.intakeTripRequest(e.passengerID, *e.msg.TripRequest)
	default:
		d.log.WithField("passenger_id", e.passengerID).Warn("unexpected message from passenger")
	}
}
