package checkout

import (
	"time"

	"github.com/frahmantamala/vip-checkout/internal/session"
)

type Status string

const (
	StatusSuccess   Status = "Success"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
	StatusError     Status = "Error"
	StatusUnknown   Status = "Unknown"
)

type Action string

const (
	ActionRetry     Action = "retry"
	ActionDashboard Action = "dashboard"
)

// Outcome is the result of one reconciliation. It is built once and handed out by value.
type Outcome struct {
	Status        Status         `json:"status"`
	Message       string         `json:"message"`
	TransactionID string         `json:"transactionId,omitempty"`
	ReferenceID   string         `json:"referenceId,omitempty"`
	PaymentDate   string         `json:"paymentDate,omitempty"`
	Amount        int64          `json:"amount,omitempty"`
	Method        session.Method `json:"method,omitempty"`
	StaleSession  bool           `json:"staleSession,omitempty"`
	Route         string         `json:"route"`
	ReconciledAt  time.Time      `json:"reconciledAt"`
}

var statusMessages = map[Status]string{
	StatusSuccess:   "Payment successful! Your VIP upgrade is now active.",
	StatusFailed:    "Payment failed. Please try again.",
	StatusCancelled: "The payment was cancelled.",
	StatusError:     "Something went wrong while processing the payment.",
	StatusUnknown:   "We could not determine the result of this payment.",
}

// StaleSessionNotice is shown once when the reconciled session had already expired.
const StaleSessionNotice = "A previous payment attempt was left unfinished and has expired."

func MessageFor(status Status) string {
	return statusMessages[status]
}

// Terminal reports whether status ends the checkout attempt.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Actions lists what the payer can do next. Every non-success funnels to retry or dashboard.
func (o Outcome) Actions() []Action {
	if o.Status == StatusSuccess {
		return []Action{ActionDashboard}
	}
	return []Action{ActionRetry, ActionDashboard}
}

func (o Outcome) FormattedAmount() string {
	if o.Amount <= 0 {
		return ""
	}
	return FormatVND(o.Amount)
}
