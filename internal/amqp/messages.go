package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taxcalc/internal/core"
)

// CalculationRequest asks a worker to calculate and record the tax on a
// gross income. Gross travels in its display form, e.g. "£43,500.00".
type CalculationRequest struct {
	RequestID string     `json:"request_id"`
	Year      int        `json:"year"`
	Gross     core.Money `json:"gross"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewCalculationRequest creates a request stamped with the current time
func NewCalculationRequest(requestID string, year int, gross core.Money) *CalculationRequest {
	return &CalculationRequest{
		RequestID: requestID,
		Year:      year,
		Gross:     gross,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *CalculationRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CalculationRequestFromJSON decodes a message and checks its required fields
func CalculationRequestFromJSON(data []byte) (*CalculationRequest, error) {
	var msg CalculationRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RequestID == "" {
		return nil, errors.New("calculation request without request_id")
	}
	if msg.Year <= 0 {
		return nil, fmt.Errorf("calculation request %s: invalid year %d", msg.RequestID, msg.Year)
	}
	return &msg, nil
}

// permanentError marks a handler failure that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the consumer drops the message instead of
// requeueing it
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
