package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrUnknownVariant is returned when a decoded envelope names a variant this
// build doesn't recognize (§7, framing/decode errors: logged and skipped).
var ErrUnknownVariant = errors.New("wire: unknown message variant")

// ErrMultiVariant is returned when an envelope object carries more than one
// top-level key, which the externally-tagged encoding never produces.
var ErrMultiVariant = errors.New("wire: envelope carries more than one variant")

// DriverMsg is the externally tagged union of every ring message (§6).
// Exactly one field is non-nil (or Disconnect is true) after a successful
// decode. Go has no sum types, so this "one-of-many pointers" shape is the
// standard way to decode a tagged JSON union without codegen.
type DriverMsg struct {
	TripRequest         *TripRequest
	Connect             *Connect
	Disconnect          bool
	NewCoordinator      *NewCoordinator
	CoordinatesRequest  *CoordinatesRequest
	CoordinatesResponse *CoordinatesResponse
	OfferToDriver       *OfferToDriver
	TripResponse        *TripResponse
	SendTripEnded       *SendTripEnded
	DriverConnected     *DriverConnected
	UnresolvedTrip      *UnresolvedTrip
}

// driverUnitVariants lists DriverMsg variants with no payload (see
// passengerUnitVariants for PassengerMsg); they serialize as a bare JSON
// string naming the variant instead of a single-key object.
var driverUnitVariants = map[string]bool{"Disconnect": true}

func (m DriverMsg) MarshalJSON() ([]byte, error) {
	switch {
	case m.TripRequest != nil:
		return marshalVariant("TripRequest", m.TripRequest)
	case m.Connect != nil:
		return marshalVariant("Connect", m.Connect)
	case m.Disconnect:
		return json.Marshal("Disconnect")
	case m.NewCoordinator != nil:
		return marshalVariant("NewCoordinator", m.NewCoordinator)
	case m.CoordinatesRequest != nil:
		return marshalVariant("CoordinatesRequest", m.CoordinatesRequest)
	case m.CoordinatesResponse != nil:
		return marshalVariant("CoordinatesResponse", m.CoordinatesResponse)
	case m.OfferToDriver != nil:
		return marshalVariant("OfferToDriver", m.OfferToDriver)
	case m.TripResponse != nil:
		return marshalVariant("TripResponse", m.TripResponse)
	case m.SendTripEnded != nil:
		return marshalVariant("SendTripEnded", m.SendTripEnded)
	case m.DriverConnected != nil:
		return marshalVariant("DriverConnected", m.DriverConnected)
	case m.UnresolvedTrip != nil:
		return marshalVariant("UnresolvedTrip", m.UnresolvedTrip)
	default:
		return nil, errors.New("wire: empty DriverMsg")
	}
}

func (m *DriverMsg) UnmarshalJSON(data []byte) error {
	name, payload, err := splitVariant(data, driverUnitVariants)
	if err != nil {
		return err
	}
	switch name {
	case "TripRequest":
		m.TripRequest = &TripRequest{}
		return json.Unmarshal(payload, m.TripRequest)
	case "Connect":
		m.Connect = &Connect{}
		return json.Unmarshal(payload, m.Connect)
	case "Disconnect":
		m.Disconnect = true
		return nil
	case "NewCoordinator":
		m.NewCoordinator = &NewCoordinator{}
		return json.Unmarshal(payload, m.NewCoordinator)
	case "CoordinatesRequest":
		m.CoordinatesRequest = &CoordinatesRequest{}
		return json.Unmarshal(payload, m.CoordinatesRequest)
	case "CoordinatesResponse":
		m.CoordinatesResponse = &CoordinatesResponse{}
		return json.Unmarshal(payload, m.CoordinatesResponse)
	case "OfferToDriver":
		m.OfferToDriver = &OfferToDriver{}
		return json.Unmarshal(payload, m.OfferToDriver)
	case "TripResponse":
		m.TripResponse = &TripResponse{}
		return json.Unmarshal(payload, m.TripResponse)
	case "SendTripEnded":
		m.SendTripEnded = &SendTripEnded{}
		return json.Unmarshal(payload, m.SendTripEnded)
	case "DriverConnected":
		m.DriverConnected = &DriverConnected{}
		return json.Unmarshal(payload, m.DriverConnected)
	case "UnresolvedTrip":
		m.UnresolvedTrip = &UnresolvedTrip{}
		return json.Unmarshal(payload, m.UnresolvedTrip)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
}

// PassengerMsg is the externally tagged union of coordinator->passenger
// messages (§6).
type PassengerMsg struct {
	TripResponse *TripResponse
	TripStarted  bool
	TripEnded    bool
	ConnectRes   *ConnectRes
}

var passengerUnitVariants = map[string]bool{"TripStarted": true, "TripEnded": true}

func (m PassengerMsg) MarshalJSON() ([]byte, error) {
	switch {
	case m.TripResponse != nil:
		return marshalVariant("TripResponse", m.TripResponse)
	case m.TripStarted:
		return json.Marshal("TripStarted")
	case m.TripEnded:
		return json.Marshal("TripEnded")
	case m.ConnectRes != nil:
		return marshalVariant("ConnectRes", m.ConnectRes)
	default:
		return nil, errors.New("wire: empty PassengerMsg")
	}
}

func (m *PassengerMsg) UnmarshalJSON(data []byte) error {
	name, payload, err := splitVariant(data, passengerUnitVariants)
	if err != nil {
		return err
	}
	switch name {
	case "TripResponse":
		m.TripResponse = &TripResponse{}
		return json.Unmarshal(payload, m.TripResponse)
	case "TripStarted":
		m.TripStarted = true
		return nil
	case "TripEnded":
		m.TripEnded = true
		return nil
	case "ConnectRes":
		m.ConnectRes = &ConnectRes{}
		return json.Unmarshal(payload, m.ConnectRes)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
}

// PaymentMsg is the externally tagged union carried on the payments wire
// (§6).
type PaymentMsg struct {
	ValidatePayment         *ValidatePayment
	MakePayment             *MakePayment
	ValidatePaymentResponse *ValidatePaymentResponse
}

func (m PaymentMsg) MarshalJSON() ([]byte, error) {
	switch {
	case m.ValidatePayment != nil:
		return marshalVariant("ValidatePayment", m.ValidatePayment)
	case m.MakePayment != nil:
		return marshalVariant("MakePayment", m.MakePayment)
	case m.ValidatePaymentResponse != nil:
		return marshalVariant("ValidatePaymentResponse", m.ValidatePaymentResponse)
	default:
		return nil, errors.New("wire: empty PaymentMsg")
	}
}

func (m *PaymentMsg) UnmarshalJSON(data []byte) error {
	name, payload, err := splitVariant(data, nil)
	if err != nil {
		return err
	}
	switch name {
	case "ValidatePayment":
		m.ValidatePayment = &ValidatePayment{}
		return json.Unmarshal(payload, m.ValidatePayment)
	case "MakePayment":
		m.MakePayment = &MakePayment{}
		return json.Unmarshal(payload, m.MakePayment)
	case "ValidatePaymentResponse":
		m.ValidatePaymentResponse = &ValidatePaymentResponse{}
		return json.Unmarshal(payload, m.ValidatePaymentResponse)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
}

func marshalVariant(name string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{name: body})
}

// splitVariant decodes one externally tagged envelope: either a bare string
// (for a unit variant in unitVariants) or a single-key JSON object whose key
// is the variant name and whose value is the payload.
func splitVariant(data []byte, unitVariants map[string]bool) (string, json.RawMessage, error) {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		if unitVariants[bare] {
			return bare, nil, nil
		}
		return bare, nil, fmt.Errorf("%w: %s", ErrUnknownVariant, bare)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, fmt.Errorf("wire: malformed envelope: %w", err)
	}
	if len(obj) != 1 {
		return "", nil, ErrMultiVariant
	}
	for k, v := range obj {
		return k, v, nil
	}
	return "", nil, ErrMultiVariant // unreachable
}

// Reader frames newline-delimited JSON messages off a TCP connection,
// enforcing the spec's maximum payload size per read (§6).
//
// Go Learning Note — bufio.Scanner vs bufio.Reader:
// bufio.Scanner with a custom buffer and ScanLines gives a simple "read one
// line" API with a hard cap on line length (via Buffer), which is exactly
// the "2048 bytes is sufficient, reject/slice larger" contract this wire
// format wants. A raw bufio.Reader.ReadString('\n') would have no such cap.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r with a line-oriented scanner capped at maxLineBytes.
func NewReader(r io.Reader, maxLineBytes int) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, maxLineBytes), maxLineBytes)
	return &Reader{scanner: s}
}

// ReadLine returns the next newline-delimited message, or io.EOF when the
// peer closed the connection (the signal the ring transport uses to detect
// neighbor loss — §4.1).
func (r *Reader) ReadLine() ([]byte, error) {
	if r.scanner.Scan() {
		line := r.scanner.Bytes()
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// WriteLine marshals v and writes it as one newline-terminated JSON line.
func WriteLine(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	body = append(body, '\n')
	_, err = w.Write(body)
	return err
}
