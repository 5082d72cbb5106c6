package tokenizer

import "fmt"

type IntentStatus string

const (
	StatusSucceeded             IntentStatus = "succeeded"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusProcessing            IntentStatus = "processing"
	StatusCanceled              IntentStatus = "canceled"
)

const (
	ErrorTypeCard           = "card_error"
	ErrorTypeValidation     = "validation_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypeAPI            = "api_error"
	ErrorTypeInvalidRequest = "invalid_request_error"
)

// CardDetails is collected in-process and sent straight to the card processor; it is never
// persisted or logged.
type CardDetails struct {
	Number   string
	ExpMonth string
	ExpYear  string
	CVC      string
	Name     string
	Email    string
}

type PaymentIntent struct {
	ID               string       `json:"id"`
	Status           IntentStatus `json:"status"`
	Amount           int64        `json:"amount"`
	Currency         string       `json:"currency"`
	NextAction       *NextAction  `json:"next_action,omitempty"`
	LastPaymentError *SDKError    `json:"last_payment_error,omitempty"`
}

type NextAction struct {
	Type          string         `json:"type"`
	RedirectToURL *RedirectToURL `json:"redirect_to_url,omitempty"`
}

type RedirectToURL struct {
	URL       string `json:"url"`
	ReturnURL string `json:"return_url"`
}

// ChallengeURL is the page hosting the issuer's extra authentication, if any.
func (pi *PaymentIntent) ChallengeURL() string {
	if pi == nil || pi.NextAction == nil || pi.NextAction.RedirectToURL == nil {
		return ""
	}
	return pi.NextAction.RedirectToURL.URL
}

// SDKError is the processor's own error object. Message is meant for the payer as is.
type SDKError struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
	Message     string `json:"message"`
}

func (e *SDKError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// IsCardError reports whether the payer can fix the problem by changing card input.
func (e *SDKError) IsCardError() bool {
	return e.Type == ErrorTypeCard || e.Type == ErrorTypeValidation
}

type errorEnvelope struct {
	Error *SDKError `json:"error"`
}
