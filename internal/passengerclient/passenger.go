// Package passengerclient is the passenger simulator: for each entry in a
// fleet file it validates payment, connects to a driver (retrying other
// ports until it reaches the coordinator), submits a trip request, and
// settles payment once the trip ends.
//
// Grounded on original_source/tp2/passenger/src/passenger.rs's
// try_connect/handle_recive functions, translated from the actix
// actor+future idiom into a single blocking goroutine per passenger — the
// natural Go shape for "one independent sequential script per simulated
// client," mirroring how the teacher's cmd/server wires one goroutine-free
// sequential main() rather than an actor system.
package passengerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"ridering/internal/wire"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Retrier decides whether a passenger retries after a declined trip
// request (§8 S5, source's `rng.gen_bool(0.7)`).
type Retrier interface {
	Retry() bool
}

// RandomRetrier retries with probability 0.7, matching the source.
type RandomRetrier struct{}

func (RandomRetrier) Retry() bool { return rand.Float64() < 0.7 }

// FixedRetrier always returns the same decision; useful for deterministic
// scenario tests.
type FixedRetrier bool

func (f FixedRetrier) Retry() bool { return bool(f) }

// FleetEntry describes one simulated passenger, loaded from a JSON fleet
// file (§9 supplemented feature; original_source/tp2/passenger/src/main.rs's
// PassengerData).
type FleetEntry struct {
	ID          uint16     `json:"id"`
	Location    wire.Point `json:"location"`
	Destination wire.Point `json:"destination"`
	CardNumber  uint64     `json:"card_number"`
}

// LoadFleet reads a JSON array of FleetEntry from path.
func LoadFleet(path string) ([]FleetEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("passengerclient: open fleet file: %w", err)
	}
	defer f.Close()

	var entries []FleetEntry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, fmt.Errorf("passengerclient: parse fleet file: %w", err)
	}
	return entries, nil
}

// Config controls how passengers dial the ring and payments service.
type Config struct {
	Host         string
	BasePort     int
	MaxDrivers   int
	PaymentsAddr string
	MaxLineBytes int
	DialTimeout  time.Duration
	Retrier      Retrier
}

// Run drives one passenger end to end: validate payment, connect to the
// ring, submit the trip, handle declines/retries, settle on completion.
func Run(ctx context.Context, cfg Config, entry FleetEntry, log *logrus.Logger) error {
	if cfg.Retrier == nil {
		cfg.Retrier = RandomRetrier{}
	}
	entryLog := log.WithFields(logrus.Fields{
		"component":    "passenger",
		"passenger_id": entry.ID,
		"conn_id":      uuid.NewString(),
	})

	if err := validatePayment(cfg, entry); err != nil {
		entryLog.WithError(err).Error("payment declined")
		return err
	}
	entryLog.Info("payment validated")

	conn, err := tryConnect(ctx, cfg, entry.ID, 0)
	if err != nil {
		entryLog.WithError(err).Error("could not connect to any driver")
		return err
	}
	defer conn.Close()
	entryLog.Info("connected to coordinator")

	if err := wire.WriteLine(conn, wire.DriverMsg{TripRequest: &wire.TripRequest{
		Start: entry.Location,
		End:   entry.Destination,
	}}); err != nil {
		return fmt.Errorf("passengerclient: send trip request: %w", err)
	}

	if err := receiveLoop(ctx, cfg, entry, conn, entryLog); err != nil {
		entryLog.WithError(err).Warn("trip ended without settlement")
		return err
	}
	return nil
}

// receiveLoop processes PassengerMsg records until a terminal outcome
// (TripEnded, or a final decline with no retry) is reached.
func receiveLoop(ctx context.Context, cfg Config, entry FleetEntry, conn net.Conn, log *logrus.Entry) error {
	r := wire.NewReader(conn, cfg.MaxLineBytes)
	for {
		line, err := r.ReadLine()
		if err != nil {
			// §9 S5-adjacent reconnect: the driver we were talking to went
			// away mid-trip; reconnect from scratch and keep waiting.
			log.Warn("connection to driver lost, reconnecting")
			newConn, derr := tryConnect(ctx, cfg, entry.ID, 0)
			if derr != nil {
				return fmt.Errorf("passengerclient: reconnect failed: %w", derr)
			}
			conn = newConn
			defer conn.Close()
			r = wire.NewReader(conn, cfg.MaxLineBytes)
			continue
		}

		var msg wire.PassengerMsg
		if err := msg.UnmarshalJSON(line); err != nil {
			log.WithError(err).Warn("malformed message from driver, skipping")
			continue
		}

		switch {
		case msg.TripResponse != nil:
			resp := *msg.TripResponse
			if resp.Status {
				log.Info("trip accepted")
				continue
			}
			log.WithField("reason", resp.Reason).Info("trip declined")
			if !cfg.Retrier.Retry() {
				log.Info("passenger giving up")
				return nil
			}
			log.Info("retrying trip request")
			if err := wire.WriteLine(conn, wire.DriverMsg{TripRequest: &wire.TripRequest{
				Start: entry.Location,
				End:   entry.Destination,
			}}); err != nil {
				return fmt.Errorf("passengerclient: retry trip request: %w", err)
			}
		case msg.TripEnded:
			log.Info("trip ended, settling payment")
			return makePayment(cfg, entry)
		default:
			log.Warn("unexpected message from driver")
		}
	}
}

// validatePayment checks a passenger's card with the payments service
// before any ring connection is attempted (§2 step 1).
func validatePayment(cfg Config, entry FleetEntry) error {
	conn, err := net.DialTimeout("tcp", cfg.PaymentsAddr, cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("connect to payments: %w", err)
	}
	defer conn.Close()

	if err := wire.WriteLine(conn, wire.PaymentMsg{ValidatePayment: &wire.ValidatePayment{
		PassengerID: entry.ID,
		CardNumber:  entry.CardNumber,
	}}); err != nil {
		return fmt.Errorf("send validate payment: %w", err)
	}

	r := wire.NewReader(conn, cfg.MaxLineBytes)
	line, err := r.ReadLine()
	if err != nil {
		return fmt.Errorf("read payments response: %w", err)
	}
	var resp wire.PaymentMsg
	if err := resp.UnmarshalJSON(line); err != nil || resp.ValidatePaymentResponse == nil {
		return fmt.Errorf("malformed payments response: %w", err)
	}
	if resp.ValidatePaymentResponse.Status != wire.ValidationSuccess {
		return fmt.Errorf("card declined")
	}
	return nil
}

// makePayment notifies payments that the trip completed (§2 step 9).
func makePayment(cfg Config, entry FleetEntry) error {
	conn, err := net.DialTimeout("tcp", cfg.PaymentsAddr, cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("connect to payments: %w", err)
	}
	defer conn.Close()
	return wire.WriteLine(conn, wire.PaymentMsg{MakePayment: &wire.MakePayment{PassengerID: entry.ID}})
}

// tryConnect ports the source's try_connect: dial driver ports starting at
// startID, following a leader hint on rejection, until a coordinator
// accepts (§2 step 2-3, §8 S5).
func tryConnect(ctx context.Context, cfg Config, passengerID uint16, startID int) (net.Conn, error) {
	stack := []int{startID}
	for len(stack) > 0 {
		candidate := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for driverID := candidate; driverID < cfg.MaxDrivers; driverID++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.BasePort+driverID)
			conn, err := net.DialTimeout("tcp", addr, cfg.DialTimeout)
			if err != nil {
				continue
			}

			if err := wire.WriteLine(conn, wire.DriverMsg{Connect: &wire.Connect{
				From: wire.ConnPassenger,
				ID:   passengerID,
			}}); err != nil {
				conn.Close()
				continue
			}

			r := wire.NewReader(conn, cfg.MaxLineBytes)
			line, err := r.ReadLine()
			if err != nil {
				conn.Close()
				continue
			}
			var resp wire.PassengerMsg
			if err := resp.UnmarshalJSON(line); err != nil || resp.ConnectRes == nil {
				conn.Close()
				continue
			}

			if resp.ConnectRes.Status {
				return conn, nil
			}
			conn.Close()
			if resp.ConnectRes.LeaderID != nil {
				stack = append(stack, int(*resp.ConnectRes.LeaderID))
			} else {
				stack = append(stack, driverID+1)
			}
			break
		}
	}
	return nil, fmt.Errorf("no reachable coordinator among %d drivers", cfg.MaxDrivers)
}
