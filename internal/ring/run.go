package ring

import (
	"context"
	"fmt"
	"net"
	"time"

	"ridering/internal/wire"

	"github.com/sirupsen/logrus"
)

// Config configures one driver process (§3 lifecycle: created with id, x, y).
type Config struct {
	ID           uint16
	Position     wire.Point
	Host         string // defaults to "127.0.0.1"
	BasePort     int
	MaxDrivers   int
	TripDuration time.Duration
	MaxLineBytes int
	DialTimeout  time.Duration
	Accepter     Accepter // defaults to RandomAccepter{}
	Logger       *logrus.Logger
}

// New constructs a Driver. It does not bind any sockets — call Run to start
// listening and connecting.
func New(cfg Config) (*Driver, error) {
	if cfg.ID >= uint16(cfg.MaxDrivers) {
		return nil, fmt.Errorf("ring: id %d out of range [0,%d)", cfg.ID, cfg.MaxDrivers)
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	accepter := cfg.Accepter
	if accepter == nil {
		accepter = RandomAccepter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	d := &Driver{
		id:                 cfg.ID,
		position:           cfg.Position,
		status:             Available,
		passengers:         make(map[uint16]*passengerLink),
		pendingTrips:       make(map[uint16]tripRequest),
		declined:           make(map[uint16]map[uint16]struct{}),
		unresolvedOutbound: make(map[uint16][]wire.PassengerMsg),
		inFlight:           make(map[uint16]uint16),
		tripTimers:         make(map[uint16]func()),
		maxDrivers:         cfg.MaxDrivers,
		tripDuration:       cfg.TripDuration,
		maxLineBytes:       cfg.MaxLineBytes,
		dialTimeout:        cfg.DialTimeout,
		host:               host,
		basePort:           cfg.BasePort,
		accepter:           accepter,
		metrics:            NewMetrics(cfg.ID),
		log: logger.WithFields(logrus.Fields{
			"component": "ring",
			"driver_id": cfg.ID,
		}),
		mailbox: make(chan event, 4096),
	}
	return d, nil
}

// ID returns the driver's immutable identifier.
func (d *Driver) ID() uint16 { return d.id }

// addrFor returns the dial address for driver id under this ring's host and
// base port (§2: "listening on BASE_PORT + id").
func (d *Driver) addrFor(id uint16) string {
	return fmt.Sprintf("%s:%d", d.host, d.basePort+int(id))
}

// Run binds the listening socket, launches the accept loop and the initial
// right-connect probe, then drives the mailbox loop until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.addrFor(d.id))
	if err != nil {
		// Fatal per §7: cannot bind listening port.
		return fmt.Errorf("ring: bind %s: %w", d.addrFor(d.id), err)
	}
	d.listener = ln
	d.ctx = ctx
	d.log.WithField("addr", ln.Addr()).Info("listening")

	go d.acceptLoop(ctx, ln)
	go d.connectRight(ctx, d.rightEpoch)

	d.loop(ctx)
	return nil
}

// loop is the single select over every event source, implementing the
// "one goroutine, one mailbox" model (§5, §9). No other method in this
// package touches Driver's mutable fields except through events delivered
// here.
func (d *Driver) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return
		case ev := <-d.mailbox:
			d.handle(ev)
		}
	}
}

func (d *Driver) handle(ev event) {
	switch e := ev.(type) {
	case ringMsg:
		d.handleRingMsg(e)
	case ringEOF:
		d.handleRingEOF(e)
	case rightConnectResult:
		d.handleRightConnectResult(e)
	case inboundJoin:
		d.handleInboundJoin(e)
	case passengerMsg:
		d.handlePassengerMsg(e)
	case passengerEOF:
		d.handlePassengerEOF(e)
	case tripTimerFired:
		d.handleTripTimerFired(e)
	case passengerWriteFailed:
		d.handlePassengerWriteFailed(e)
	case snapshotRequest:
		d.handleSnapshotRequest(e)
	default:
		d.log.Warnf("unhandled event type %T", ev)
	}
}

func (d *Driver) shutdown() {
	if d.listener != nil {
		d.listener.Close()
	}
	if d.right != nil && d.right.cancel != nil {
		d.right.cancel()
	}
	if d.left != nil && d.left.cancel != nil {
		d.left.cancel()
	}
	for _, p := range d.passengers {
		if p.cancel != nil {
			p.cancel()
		}
	}
	for _, cancel := range d.tripTimers {
		cancel()
	}
}

// post is the single choke point every other goroutine uses to hand an
// event to the mailbox loop. It never blocks indefinitely on a dead driver:
// if ctx is already cancelled the send is dropped.
func (d *Driver) post(ctx context.Context, ev event) {
	select {
	case d.mailbox <- ev:
	case <-ctx.Done():
	}
}
