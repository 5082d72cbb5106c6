package paymentgateway

// Status values of the backend creation endpoint.
const (
	CreateStatusRedirect = "redirect"
	CreateStatusPending  = "pending"
)

// CreatePaymentRequest is sent form-encoded; BankCode is omitted when empty.
type CreatePaymentRequest struct {
	Method          string
	IntegrationType string
	Amount          int64
	BankCode        string
}

// CreatePaymentResponse is the union of both creation contracts. Which fields are
// meaningful depends on Status.
type CreatePaymentResponse struct {
	Status       string `json:"status"`
	PaymentURL   string `json:"paymentUrl,omitempty"`
	ReferenceID  string `json:"referenceId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	PublicKey    string `json:"publicKey,omitempty"`
	Message      string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// SupportedIntegrations maps a provider identifier to its integration types.
type SupportedIntegrations map[string][]string
