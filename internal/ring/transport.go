package ring

import (
	"context"
	"errors"
	"net"

	"ridering/internal/wire"
)

// errNoRightFound is the sentinel posted back on the mailbox when a full
// probe of the ring finds no reachable peer (§4.1 "No right found").
var errNoRightFound = errors.New("ring: no reachable right neighbor")

// acceptLoop accepts inbound TCP connections — both driver joins and
// passenger connects arrive on the same listening socket, disambiguated by
// the opening Connect message's From field (§6).
func (d *Driver) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				d.log.WithError(err).Warn("accept loop stopped")
				return
			}
		}
		go d.greet(ctx, conn)
	}
}

// greet reads the single opening Connect line off a freshly accepted
// connection before handing it to the mailbox. Reading that line is itself
// a suspension point (§5) and must happen off the mailbox goroutine.
func (d *Driver) greet(ctx context.Context, conn net.Conn) {
	r := wire.NewReader(conn, d.maxLineBytes)
	line, err := r.ReadLine()
	if err != nil {
		conn.Close()
		return
	}
	var msg wire.DriverMsg
	if err := msg.UnmarshalJSON(line); err != nil || msg.Connect == nil {
		d.log.WithError(err).Warn("expected Connect as opening message")
		conn.Close()
		return
	}
	d.post(ctx, inboundJoin{conn: conn, connect: *msg.Connect})
}

// connectRight probes candidate ports BASE_PORT+id+1 .. BASE_PORT+id+(N-1)
// (mod N), skipping self, until one accepts (§4.1). Dialing suspends, so the
// outcome is posted back to the mailbox rather than applied inline (§5).
func (d *Driver) connectRight(ctx context.Context, epoch uint64) {
	for i := 1; i < d.maxDrivers; i++ {
		candidate := uint16((int(d.id) + i) % d.maxDrivers)
		conn, err := net.DialTimeout("tcp", d.addrFor(candidate), d.dialTimeout)
		if err != nil {
			continue
		}
		d.post(ctx, rightConnectResult{epoch: epoch, id: candidate, conn: conn})
		return
	}
	d.post(ctx, rightConnectResult{epoch: epoch, err: errNoRightFound})
}

// startNeighborWriter drains link's outbox onto its TCP connection. Per
// spec §4.1 "Failure semantics", a write error is logged and the message is
// dropped at-most-once — no retry, no ack.
func (d *Driver) startNeighborWriter(ctx context.Context, link *neighborLink) {
	go func() {
		for {
			select {
			case msg, ok := <-link.outbox:
				if !ok {
					return
				}
				if err := wire.WriteLine(link.conn, msg); err != nil {
					d.log.WithError(err).WithField("peer_id", link.id).Warn("ring write failed, dropping")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// startNeighborReader decodes newline-delimited DriverMsg records off link
// and posts one ringMsg per line, or a ringEOF on close or unrecoverable
// read error (§4.1 "Receiver loop").
func (d *Driver) startNeighborReader(ctx context.Context, link *neighborLink, s side) {
	go func() {
		r := wire.NewReader(link.conn, d.maxLineBytes)
		for {
			line, err := r.ReadLine()
			if err != nil {
				d.post(ctx, ringEOF{side: s, epoch: link.epoch})
				return
			}
			var msg wire.DriverMsg
			if err := msg.UnmarshalJSON(line); err != nil {
				d.log.WithError(err).Warn("malformed ring message, skipping")
				continue
			}
			d.post(ctx, ringMsg{side: s, epoch: link.epoch, msg: msg})
		}
	}()
}

// startPassengerWriter is the passenger-socket analogue of
// startNeighborWriter. A write failure is reported back to the mailbox
// (§4.4 buffered delivery) rather than mutating state from this goroutine.
func (d *Driver) startPassengerWriter(ctx context.Context, link *passengerLink) {
	go func() {
		for {
			select {
			case msg, ok := <-link.outbox:
				if !ok {
					return
				}
				if err := wire.WriteLine(link.conn, msg); err != nil {
					d.log.WithError(err).WithField("passenger_id", link.id).Warn("passenger write failed")
					d.post(ctx, passengerWriteFailed{passengerID: link.id, epoch: link.epoch, msg: msg})
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// startPassengerReader decodes DriverMsg records sent by a connected
// passenger (only TripRequest is expected post-handshake, §4.4).
func (d *Driver) startPassengerReader(ctx context.Context, link *passengerLink) {
	go func() {
		r := wire.NewReader(link.conn, d.maxLineBytes)
		for {
			line, err := r.ReadLine()
			if err != nil {
				d.post(ctx, passengerEOF{passengerID: link.id, epoch: link.epoch})
				return
			}
			var msg wire.DriverMsg
			if err := msg.UnmarshalJSON(line); err != nil {
				d.log.WithError(err).Warn("malformed passenger message, skipping")
				continue
			}
			d.post(ctx, passengerMsg{passengerID: link.id, epoch: link.epoch, msg: msg})
		}
	}()
}
