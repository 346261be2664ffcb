// Package session holds in-progress intake conversations keyed by chat.
package session

import (
	"context"
	"time"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 30 * time.Minute

// Type selects the service a session collects details for.
type Type string

const (
	TypeMeasurement  Type = "measurement_request"
	TypeConsultation Type = "consultation_request"
)

// Valid reports whether t is a known session type.
func (t Type) Valid() bool {
	return t == TypeMeasurement || t == TypeConsultation
}

// Step is the position inside the two-field form.
type Step string

const (
	StepAwaitingName  Step = "awaiting_name"
	StepAwaitingPhone Step = "awaiting_phone"
)

// Session is one chat's intake progress.
type Session struct {
	Type  Type   `json:"type"`
	Step  Step   `json:"step"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Store keeps at most one session per chat. Set always restarts the TTL,
// and an expired session reads as absent.
type Store interface {
	Get(ctx context.Context, chatID int64) (Session, bool, error)
	Set(ctx context.Context, chatID int64, s Session) error
	Delete(ctx context.Context, chatID int64) error
}
