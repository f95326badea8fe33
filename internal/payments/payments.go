// Package payments implements the standalone payments service: a one-line
// validate/acknowledge protocol gating passenger admission and confirming
// trip settlement (spec §6).
//
// Grounded on original_source/tp2/payments/src/payments.rs's
// accept-then-thread-per-connection server, generalized to Go's
// goroutine-per-connection idiom and the shared newline-JSON wire codec
// instead of a raw single-read buffer.
package payments

import (
	"net"

	"ridering/internal/wire"

	"github.com/sirupsen/logrus"
)

// Service validates card numbers and logs payment settlements. It holds no
// mutable state — every connection is handled independently, matching
// spec §1's "stateless validator/acknowledger" framing.
type Service struct {
	maxLineBytes int
	log          *logrus.Entry
}

// New constructs a Service. maxLineBytes bounds a single decoded message,
// mirroring the ring wire's 2048-byte cap (spec §6).
func New(maxLineBytes int, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		maxLineBytes: maxLineBytes,
		log:          logger.WithField("component", "payments"),
	}
}

// Listen binds addr and returns the listener; call Serve to accept
// connections on it.
func (s *Service) Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.log.WithField("addr", addr).Info("payments service listening")
	return ln, nil
}

// Serve accepts connections off ln until it's closed.
func (s *Service) Serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.log.WithError(err).Info("payments listener closed")
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Service) handleConn(conn net.Conn) {
	defer conn.Close()
	r := wire.NewReader(conn, s.maxLineBytes)
	for {
		line, err := r.ReadLine()
		if err != nil {
			return
		}
		var msg wire.PaymentMsg
		if err := msg.UnmarshalJSON(line); err != nil {
			s.log.WithError(err).Warn("malformed payment message, closing")
			return
		}
		s.handleMsg(conn, msg)
	}
}

func (s *Service) handleMsg(conn net.Conn, msg wire.PaymentMsg) {
	switch {
	case msg.ValidatePayment != nil:
		status := s.ValidatePayment(*msg.ValidatePayment)
		s.log.WithFields(logrus.Fields{
			"passenger_id": msg.ValidatePayment.PassengerID,
			"status":       status,
		}).Info("payment validation")
		_ = wire.WriteLine(conn, wire.PaymentMsg{
			ValidatePaymentResponse: &wire.ValidatePaymentResponse{Status: status},
		})
	case msg.MakePayment != nil:
		s.MakePayment(*msg.MakePayment)
	default:
		s.log.Warn("unexpected payment message")
	}
}

// ValidatePayment implements spec §6's rule: card_number % 2 == 0 ⇒ Success.
func (s *Service) ValidatePayment(req wire.ValidatePayment) wire.ValidationStatus {
	if req.CardNumber%2 == 0 {
		return wire.ValidationSuccess
	}
	return wire.ValidationFailure
}

// MakePayment records a settlement. No reply is sent (spec §6).
func (s *Service) MakePayment(req wire.MakePayment) {
	s.log.WithField("passenger_id", req.PassengerID).Info("payment settled")
}
