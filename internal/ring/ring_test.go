package ring

import (
	"context"
	"net"
	"testing"
	"time"

	"ridering/internal/wire"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestDriver builds a Driver with no bound socket and no spawned
// goroutines, suitable for exercising mailbox handlers directly.
func newTestDriver(t *testing.T, id uint16, accepter Accepter) *Driver {
	t.Helper()
	d, err := New(Config{
		ID:           id,
		Position:     wire.Point{X: 1, Y: 1},
		MaxDrivers:   8,
		TripDuration: 20 * time.Millisecond,
		MaxLineBytes: 4096,
		DialTimeout:  50 * time.Millisecond,
		Accepter:     accepter,
	})
	require.NoError(t, err)
	d.ctx = context.Background()
	return d
}

// attachPassenger registers a passenger link with no backing connection, so
// tests can inspect what a handler enqueues for delivery without a writer
// goroutine in the loop.
func attachPassenger(d *Driver, pid uint16) *passengerLink {
	link := &passengerLink{id: pid, outbox: make(chan wire.PassengerMsg, 8), cancel: func() {}}
	d.passengers[pid] = link
	return link
}

// attachRight wires a fake right neighbor so sendRight's forwards land in an
// inspectable channel instead of being silently dropped.
func attachRight(d *Driver, id uint16) *neighborLink {
	link := &neighborLink{id: id, outbox: make(chan wire.DriverMsg, 8), cancel: func() {}}
	d.right = link
	return link
}

func TestHandleOfferAcceptSchedulesCompletionAndReplies(t *testing.T) {
	d := newTestDriver(t, 1, FixedAccepter(true))
	d.coordinatorID = &d.id
	p := attachPassenger(d, 42)

	d.handleOffer(wire.OfferToDriver{DriverID: 1, PassengerID: 42, Origin: wire.Point{}, Destination: wire.Point{X: 2, Y: 2}})

	assert.Equal(t, Busy, d.status)
	assert.Contains(t, d.tripTimers, uint16(42))
	assert.Equal(t, float64(1), testutil.ToFloat64(d.metrics.TripsDispatched))

	select {
	case msg := <-p.outbox:
		require.NotNil(t, msg.TripResponse)
		assert.True(t, msg.TripResponse.Status)
	default:
		t.Fatal("expected a TripResponse to be queued for the passenger")
	}

	d.tripTimers[42]()
}

func TestHandleOfferDeclineLeavesDriverAvailable(t *testing.T) {
	d := newTestDriver(t, 1, FixedAccepter(false))
	d.coordinatorID = &d.id
	p := attachPassenger(d, 7)
	// Solo ring: after the decline the restarted gather finds only this
	// (now excluded) driver, so the pending trip ends with NotAccepted.
	d.pendingTrips[7] = tripRequest{origin: wire.Point{X: 1, Y: 1}}

	d.handleOffer(wire.OfferToDriver{DriverID: 1, PassengerID: 7})

	assert.Equal(t, Available, d.status)
	assert.Equal(t, float64(1), testutil.ToFloat64(d.metrics.TripsDeclined))

	msg := <-p.outbox
	require.NotNil(t, msg.TripResponse)
	assert.False(t, msg.TripResponse.Status)
}

func TestHandleOfferBusyDriverDeclinesWithoutConsultingAccepter(t *testing.T) {
	accepter := &SequenceAccepter{Decisions: []bool{true}}
	d := newTestDriver(t, 1, accepter)
	d.coordinatorID = &d.id
	d.status = Busy
	attachPassenger(d, 7)

	d.handleOffer(wire.OfferToDriver{DriverID: 1, PassengerID: 7})

	assert.Equal(t, Busy, d.status)
	assert.Equal(t, float64(1), testutil.ToFloat64(d.metrics.TripsDeclined))
	assert.Equal(t, 0, accepter.next, "a Busy driver must not consult its Accepter")
}

func TestCompleteCoordinatesGatherNoCandidatesSendsDriversBusy(t *testing.T) {
	d := newTestDriver(t, 0, FixedAccepter(true))
	d.coordinatorID = &d.id
	p := attachPassenger(d, 5)
	d.pendingTrips[5] = tripRequest{origin: wire.Point{X: 1, Y: 1}}

	d.completeCoordinatesGather(5, map[uint16]wire.Point{})

	_, pending := d.pendingTrips[5]
	assert.False(t, pending)

	msg := <-p.outbox
	require.NotNil(t, msg.TripResponse)
	assert.False(t, msg.TripResponse.Status)
	require.NotNil(t, msg.TripResponse.Reason)
	assert.Equal(t, wire.ReasonDriversBusy, *msg.TripResponse.Reason)
}

func TestCompleteCoordinatesGatherAllDeclinedSendsNotAccepted(t *testing.T) {
	d := newTestDriver(t, 0, FixedAccepter(true))
	d.coordinatorID = &d.id
	p := attachPassenger(d, 5)
	d.pendingTrips[5] = tripRequest{origin: wire.Point{X: 1, Y: 1}}
	d.declined[5] = map[uint16]struct{}{3: {}}

	d.completeCoordinatesGather(5, map[uint16]wire.Point{3: {X: 1, Y: 1}})

	msg := <-p.outbox
	require.NotNil(t, msg.TripResponse)
	assert.False(t, msg.TripResponse.Status)
	require.NotNil(t, msg.TripResponse.Reason)
	assert.Equal(t, wire.ReasonNotAccepted, *msg.TripResponse.Reason)
}

func TestCompleteCoordinatesGatherOffersNearestUndeclined(t *testing.T) {
	d := newTestDriver(t, 9, FixedAccepter(true))
	d.coordinatorID = &d.id
	attachPassenger(d, 5)
	d.pendingTrips[5] = tripRequest{origin: wire.Point{X: 0, Y: 0}}

	right := attachRight(d, 2)
	d.completeCoordinatesGather(5, map[uint16]wire.Point{
		9: {X: 10, Y: 10}, // self, far away
		3: {X: 0, Y: 1},   // nearest
	})

	msg := <-right.outbox
	require.NotNil(t, msg.OfferToDriver)
	assert.Equal(t, uint16(3), msg.OfferToDriver.DriverID)
}

func TestOnTripResponseAtCoordinatorDeclineRestartsGatherUntilExhausted(t *testing.T) {
	d := newTestDriver(t, 0, FixedAccepter(true))
	d.coordinatorID = &d.id
	p := attachPassenger(d, 5)
	d.pendingTrips[5] = tripRequest{origin: wire.Point{X: 0, Y: 0}}
	// Solo ring (no right neighbor): self is the only candidate, so a
	// decline exhausts the candidate pool on the very next gather.
	reason := wire.ReasonNotAccepted
	d.onTripResponseAtCoordinator(wire.TripResponse{Status: false, Reason: &reason, PassengerID: 5, DriverID: 0})

	msg := <-p.outbox
	require.NotNil(t, msg.TripResponse)
	assert.False(t, msg.TripResponse.Status)
	require.NotNil(t, msg.TripResponse.Reason)
	assert.Equal(t, wire.ReasonNotAccepted, *msg.TripResponse.Reason)
	_, stillPending := d.pendingTrips[5]
	assert.False(t, stillPending)
}

func TestOnTripResponseAtCoordinatorAcceptRecordsInFlight(t *testing.T) {
	d := newTestDriver(t, 0, FixedAccepter(true))
	d.coordinatorID = &d.id
	p := attachPassenger(d, 5)
	d.pendingTrips[5] = tripRequest{origin: wire.Point{X: 0, Y: 0}}

	d.onTripResponseAtCoordinator(wire.TripResponse{Status: true, PassengerID: 5, DriverID: 3})

	assert.Equal(t, uint16(5), d.inFlight[3])
	_, pending := d.pendingTrips[5]
	assert.False(t, pending)

	msg := <-p.outbox
	require.NotNil(t, msg.TripResponse)
	assert.True(t, msg.TripResponse.Status)
}

func TestHandleSendTripEndedAtCoordinatorClearsInFlightAndNotifiesPassenger(t *testing.T) {
	d := newTestDriver(t, 0, FixedAccepter(true))
	d.coordinatorID = &d.id
	p := attachPassenger(d, 11)
	d.inFlight[4] = 11

	d.handleSendTripEnded(wire.SendTripEnded{PassengerID: 11})

	_, stillFlying := d.inFlight[4]
	assert.False(t, stillFlying)

	msg := <-p.outbox
	assert.True(t, msg.TripEnded)
}

func TestHandleSendTripEndedForwardsWhenNotCoordinator(t *testing.T) {
	d := newTestDriver(t, 5, FixedAccepter(true))
	other := uint16(0)
	d.coordinatorID = &other
	right := attachRight(d, 6)

	d.handleSendTripEnded(wire.SendTripEnded{PassengerID: 11})

	msg := <-right.outbox
	require.NotNil(t, msg.SendTripEnded)
	assert.Equal(t, uint16(11), msg.SendTripEnded.PassengerID)
}

func TestHandleUnresolvedTripForwardsUntilTargetDriver(t *testing.T) {
	d := newTestDriver(t, 5, FixedAccepter(true))
	right := attachRight(d, 6)

	d.handleUnresolvedTrip(wire.UnresolvedTrip{PassengerID: 9, DriverID: 2})

	msg := <-right.outbox
	require.NotNil(t, msg.UnresolvedTrip)
	assert.Equal(t, uint16(2), msg.UnresolvedTrip.DriverID)
}

func TestHandleUnresolvedTripCompletesAtTargetDriver(t *testing.T) {
	d := newTestDriver(t, 2, FixedAccepter(true))
	d.coordinatorID = &d.id // target driver also happens to be coordinator here
	p := attachPassenger(d, 9)
	d.inFlight[2] = 9

	d.handleUnresolvedTrip(wire.UnresolvedTrip{PassengerID: 9, DriverID: 2})

	_, stillFlying := d.inFlight[2]
	assert.False(t, stillFlying)
	msg := <-p.outbox
	assert.True(t, msg.TripEnded)
}

func TestHandleDriverConnectedForwardsAndFlagsGhostTrip(t *testing.T) {
	d := newTestDriver(t, 5, FixedAccepter(true))
	other := uint16(0)
	d.coordinatorID = &other // not self, so DriverConnected is forwarded
	right := attachRight(d, 6)
	d.inFlight[3] = 20 // driver 3 has a ghost trip outstanding

	d.handleDriverConnected(wire.DriverConnected{DriverID: 3})

	first := <-right.outbox
	require.NotNil(t, first.DriverConnected)
	assert.Equal(t, uint16(3), first.DriverConnected.DriverID)

	second := <-right.outbox
	require.NotNil(t, second.UnresolvedTrip)
	assert.Equal(t, uint16(3), second.UnresolvedTrip.DriverID)
	assert.Equal(t, uint16(20), second.UnresolvedTrip.PassengerID)
}

func TestHandleDriverConnectedNoGhostTripIsQuiet(t *testing.T) {
	d := newTestDriver(t, 5, FixedAccepter(true))
	d.coordinatorID = &d.id
	right := attachRight(d, 6)
	d.handleDriverConnected(wire.DriverConnected{DriverID: 3})
	assert.Empty(t, d.inFlight)
	assert.Empty(t, right.outbox)
}

func TestHandlePassengerEOFPreservesDispatchState(t *testing.T) {
	d := newTestDriver(t, 0, FixedAccepter(true))
	link := attachPassenger(d, 5)
	d.pendingTrips[5] = tripRequest{}
	d.inFlight[1] = 5
	d.declined[5] = map[uint16]struct{}{2: {}}

	d.handlePassengerEOF(passengerEOF{passengerID: 5, epoch: link.epoch})

	_, connected := d.passengers[5]
	assert.False(t, connected)
	assert.Contains(t, d.pendingTrips, uint16(5))
	assert.Contains(t, d.inFlight, uint16(1))
	assert.Contains(t, d.declined[5], uint16(2))
}

func TestHandlePassengerEOFStaleEpochIsIgnored(t *testing.T) {
	d := newTestDriver(t, 0, FixedAccepter(true))
	link := attachPassenger(d, 5)

	d.handlePassengerEOF(passengerEOF{passengerID: 5, epoch: link.epoch + 1})

	_, connected := d.passengers[5]
	assert.True(t, connected)
}

func TestHandlePassengerWriteFailedReBuffersMessage(t *testing.T) {
	d := newTestDriver(t, 0, FixedAccepter(true))
	link := attachPassenger(d, 5)
	failed := wire.PassengerMsg{TripEnded: true}

	d.handlePassengerWriteFailed(passengerWriteFailed{passengerID: 5, epoch: link.epoch, msg: failed})

	_, connected := d.passengers[5]
	assert.False(t, connected)
	require.Len(t, d.unresolvedOutbound[5], 1)
	assert.Equal(t, failed, d.unresolvedOutbound[5][0])
}

func TestOnPassengerJoinNonCoordinatorRedirectsToLeader(t *testing.T) {
	d := newTestDriver(t, 5, FixedAccepter(true))
	leader := uint16(1)
	d.coordinatorID = &leader

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan struct{})
	go func() {
		d.onPassengerJoin(serverConn, 9)
		close(done)
	}()

	r := wire.NewReader(clientConn, 4096)
	line, err := r.ReadLine()
	require.NoError(t, err)
	var msg wire.PassengerMsg
	require.NoError(t, msg.UnmarshalJSON(line))
	require.NotNil(t, msg.ConnectRes)
	assert.False(t, msg.ConnectRes.Status)
	require.NotNil(t, msg.ConnectRes.LeaderID)
	assert.Equal(t, leader, *msg.ConnectRes.LeaderID)

	<-done
	assert.Empty(t, d.passengers)
}

func TestOnPassengerJoinCoordinatorAcceptsAndFlushesBuffered(t *testing.T) {
	d := newTestDriver(t, 1, FixedAccepter(true))
	d.coordinatorID = &d.id
	buffered := wire.PassengerMsg{TripEnded: true}
	d.unresolvedOutbound[9] = []wire.PassengerMsg{buffered}

	ctx, cancel := context.WithCancel(context.Background())
	d.ctx = ctx
	defer cancel()

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	go d.onPassengerJoin(serverConn, 9)

	r := wire.NewReader(clientConn, 4096)

	line, err := r.ReadLine()
	require.NoError(t, err)
	var first wire.PassengerMsg
	require.NoError(t, first.UnmarshalJSON(line))
	require.NotNil(t, first.ConnectRes)
	assert.True(t, first.ConnectRes.Status)

	line, err = r.ReadLine()
	require.NoError(t, err)
	var second wire.PassengerMsg
	require.NoError(t, second.UnmarshalJSON(line))
	assert.True(t, second.TripEnded)

	require.Eventually(t, func() bool {
		_, buffered := d.unresolvedOutbound[9]
		return !buffered
	}, time.Second, 5*time.Millisecond)
}
