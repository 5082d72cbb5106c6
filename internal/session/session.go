package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is how long an in-flight checkout may drive resumption.
const DefaultTTL = 30 * time.Minute

type Method string

const (
	MethodVNPay  Method = "VNPAY"
	MethodStripe Method = "STRIPE"
)

type IntegrationType string

const (
	IntegrationRedirect   IntegrationType = "REDIRECT"
	IntegrationIntegrated IntegrationType = "INTEGRATED"
)

func (t IntegrationType) Valid() bool {
	return t == IntegrationRedirect || t == IntegrationIntegrated
}

// Session is the single in-flight transaction of a checkout profile. Client secrets are
// deliberately absent: they must not outlive the execution context that received them.
type Session struct {
	ReferenceID     string          `json:"referenceId"`
	Amount          int64           `json:"amount"`
	Method          Method          `json:"method"`
	IntegrationType IntegrationType `json:"integrationType"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func (s Session) Validate() error {
	switch {
	case s.ReferenceID == "":
		return errors.New("reference id is empty")
	case s.Amount <= 0:
		return fmt.Errorf("amount %d is not positive", s.Amount)
	case s.Method == "":
		return errors.New("method is empty")
	case !s.IntegrationType.Valid():
		return fmt.Errorf("unknown integration type %q", s.IntegrationType)
	case s.CreatedAt.IsZero():
		return errors.New("created at is zero")
	}
	return nil
}

// IsExpired reports whether the session is older than ttl; a non-positive ttl means DefaultTTL.
func (s Session) IsExpired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Sub(s.CreatedAt) > ttl
}

// Resumable reports whether a loaded session may drive flow resumption.
func Resumable(s *Session, now time.Time, ttl time.Duration) bool {
	return s != nil && !s.IsExpired(now, ttl)
}

// Store is the durable single-slot persistence of one profile's session. Save overwrites,
// Load returns nil for absent or unreadable records.
type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}
