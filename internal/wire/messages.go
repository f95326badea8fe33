// Package wire defines the ring/passenger/payments message schemas and the
// newline-delimited JSON codec used to move them over TCP.
//
// Go Learning Note — Externally Tagged Unions:
// Go has no sum types. The source's enum-of-structs (DriverMsg, PassengerMsg)
// is modeled here as a single envelope struct with one pointer field per
// variant (a bool for payload-less variants); exactly one is set at a time.
// On the wire each message is a single-key JSON object named after its
// variant, or a bare JSON string for a payload-less variant. This is the
// standard idiom for decoding a tagged JSON union in Go without a
// code-generation step — see the UnmarshalJSON methods in envelope.go.
package wire

import "encoding/json"

// Point is a grid coordinate on the 8-bit Manhattan plane (§3). It marshals
// as a two-element JSON array ([x,y]) to match the source's tuple encoding,
// not as a {"x":..,"y":..} object.
type Point struct {
	X uint8
	Y uint8
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint8{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var pair [2]uint8
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.X, p.Y = pair[0], pair[1]
	return nil
}

// ConnKind distinguishes a ring Connect from a passenger Connect (§6).
type ConnKind string

const (
	ConnDriver    ConnKind = "Driver"
	ConnPassenger ConnKind = "Passenger"
)

// DeclineReason is the reason a trip was never offered successfully (§4.3).
type DeclineReason string

const (
	ReasonNotAccepted DeclineReason = "NotAccepted"
	ReasonDriversBusy DeclineReason = "DriversBusy"
)

// ValidationStatus is the outcome of a payments card check (§6).
type ValidationStatus string

const (
	ValidationSuccess ValidationStatus = "Success"
	ValidationFailure ValidationStatus = "Failure"
)

// --- DriverMsg variants (ring-internal, §6) ---

type TripRequest struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

type Connect struct {
	From          ConnKind `json:"from"`
	ID            uint16   `json:"id"`
	CoordinatorID *uint16  `json:"coordinator_id"`
}

// Disconnect carries no payload; on the wire it is the bare JSON string
// "Disconnect", decoded as DriverMsg.Disconnect = true.
type Disconnect struct{}

type NewCoordinator struct {
	ID uint16 `json:"id"`
}

type CoordinatesRequest struct {
	PassengerID uint16 `json:"passenger_id"`
}

type CoordinatesResponse struct {
	DriversCoordinates map[uint16]Point `json:"drivers_coordinates"`
	PassengerID        uint16           `json:"passenger_id"`
}

type OfferToDriver struct {
	DriverID    uint16 `json:"driver_id"`
	Origin      Point  `json:"origin"`
	Destination Point  `json:"destination"`
	PassengerID uint16 `json:"passenger_id"`
}

type TripResponse struct {
	Status      bool           `json:"status"`
	Reason      *DeclineReason `json:"reason"`
	PassengerID uint16         `json:"passenger_id"`
	DriverID    uint16         `json:"driver_id"`
}

type SendTripEnded struct {
	PassengerID uint16 `json:"passenger_id"`
}

type DriverConnected struct {
	DriverID uint16 `json:"driver_id"`
}

type UnresolvedTrip struct {
	PassengerID uint16 `json:"passenger_id"`
	DriverID    uint16 `json:"driver_id"`
}

// --- PassengerMsg variants (coordinator -> passenger, §6) ---

// TripStarted has no payload in the source; kept for symmetry with
// PassengerMsg even though the dispatch engine in this spec never emits it
// (the passenger learns of trip acceptance via TripResponse{status:true}).
type TripStarted struct{}

type ConnectRes struct {
	Status   bool    `json:"status"`
	LeaderID *uint16 `json:"leader_id"`
}

// --- PaymentMsg variants (§6) ---

type ValidatePayment struct {
	PassengerID uint16 `json:"passenger_id"`
	CardNumber  uint64 `json:"card_number"`
}

type MakePayment struct {
	PassengerID uint16 `json:"passenger_id"`
}

type ValidatePaymentResponse struct {
	Status ValidationStatus `json:"status"`
}
