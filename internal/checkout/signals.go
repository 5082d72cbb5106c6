package checkout

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/frahmantamala/vip-checkout/internal/session"
)

const (
	RouteGenericResult = "/payment/result"
	RouteVNPayReturn   = "/payment/vnpay/return"
	RouteStripeSuccess = "/payment/stripe/success"
	RouteStripeCancel  = "/payment/stripe/cancel"
	RouteCardReturn    = "/payment/card/return"
)

// SignalSchema names the provider-specific query keys of one return route. Keys are opaque:
// they are matched verbatim and never reinterpreted. For each field the first non-empty key wins.
type SignalSchema struct {
	Route           string
	Method          session.Method
	TransactionKeys []string
	ReferenceKeys   []string
	StatusKeys      []string
	AmountKeys      []string
	AmountDivisor   int64
	DateKeys        []string
	ErrorKeys       []string
	CancelKey       string
	CancelValue     string
	SuccessCodes    []string
	// ImpliedStatus and ImpliedCancel describe routes whose path alone carries the result.
	ImpliedStatus string
	ImpliedCancel bool
}

var Schemas = map[string]SignalSchema{
	RouteGenericResult: {
		Route:           RouteGenericResult,
		TransactionKeys: []string{"transactionId"},
		ReferenceKeys:   []string{"txnRef"},
		StatusKeys:      []string{"status"},
		DateKeys:        []string{"payDate"},
		ErrorKeys:       []string{"error"},
		CancelKey:       "reason",
		CancelValue:     "cancelled",
		SuccessCodes:    []string{"00", "paid"},
	},
	RouteVNPayReturn: {
		Route:           RouteVNPayReturn,
		Method:          session.MethodVNPay,
		TransactionKeys: []string{"vnp_TransactionNo"},
		ReferenceKeys:   []string{"vnp_TxnRef"},
		StatusKeys:      []string{"vnp_ResponseCode", "status"},
		AmountKeys:      []string{"vnp_Amount"},
		AmountDivisor:   100,
		DateKeys:        []string{"vnp_PayDate"},
		ErrorKeys:       []string{"error"},
		CancelKey:       "reason",
		CancelValue:     "cancelled",
		SuccessCodes:    []string{"00"},
	},
	RouteStripeSuccess: {
		Route:           RouteStripeSuccess,
		Method:          session.MethodStripe,
		TransactionKeys: []string{"session_id"},
		ErrorKeys:       []string{"error"},
		SuccessCodes:    []string{"paid"},
		ImpliedStatus:   "paid",
	},
	RouteStripeCancel: {
		Route:         RouteStripeCancel,
		Method:        session.MethodStripe,
		ErrorKeys:     []string{"error"},
		ImpliedCancel: true,
	},
	RouteCardReturn: {
		Route:           RouteCardReturn,
		Method:          session.MethodStripe,
		TransactionKeys: []string{"payment_intent"},
		StatusKeys:      []string{"redirect_status"},
		ErrorKeys:       []string{"error"},
		SuccessCodes:    []string{"succeeded"},
	},
}

// Signals are the outcome hints found in one navigation context.
type Signals struct {
	TransactionID string
	ReferenceID   string
	StatusCode    string
	PaymentDate   string
	Amount        int64
	Error         string
	Cancelled     bool
	Success       bool
}

// Recognised reports whether any known signal was present at all.
func (s Signals) Recognised() bool {
	return s.TransactionID != "" || s.ReferenceID != "" || s.StatusCode != "" ||
		s.PaymentDate != "" || s.Amount > 0 || s.Error != "" || s.Cancelled
}

func (schema SignalSchema) Parse(params url.Values) Signals {
	s := Signals{
		TransactionID: first(params, schema.TransactionKeys),
		ReferenceID:   first(params, schema.ReferenceKeys),
		StatusCode:    first(params, schema.StatusKeys),
		PaymentDate:   first(params, schema.DateKeys),
		Error:         first(params, schema.ErrorKeys),
	}
	if s.StatusCode == "" {
		s.StatusCode = schema.ImpliedStatus
	}

	if raw := first(params, schema.AmountKeys); raw != "" {
		if amount, err := strconv.ParseInt(raw, 10, 64); err == nil && amount > 0 {
			if schema.AmountDivisor > 1 {
				amount /= schema.AmountDivisor
			}
			s.Amount = amount
		}
	}

	s.Cancelled = schema.ImpliedCancel ||
		(schema.CancelKey != "" && params.Get(schema.CancelKey) == schema.CancelValue)

	for _, code := range schema.SuccessCodes {
		if s.StatusCode == code {
			s.Success = true
			break
		}
	}
	return s
}

func first(params url.Values, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(params.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

type rule struct {
	name   string
	match  func(s Signals, stored *session.Session) bool
	status Status
}

// precedence is evaluated top to bottom; the first match decides. Anything unmatched is Failed,
// so an ambiguous answer is never reported as success.
var precedence = []rule{
	{name: "error marker", status: StatusError, match: func(s Signals, _ *session.Session) bool {
		return s.Error != ""
	}},
	{name: "cancellation marker", status: StatusCancelled, match: func(s Signals, _ *session.Session) bool {
		return s.Cancelled
	}},
	{name: "success code", status: StatusSuccess, match: func(s Signals, _ *session.Session) bool {
		return s.Success
	}},
	// No signals and no stored session is a direct visit, reported as Unknown rather than Failed.
	{name: "nothing to reconcile", status: StatusUnknown, match: func(s Signals, stored *session.Session) bool {
		return !s.Recognised() && stored == nil
	}},
}

// Classify applies the precedence table and returns the status plus the rule that decided it.
func Classify(s Signals, stored *session.Session) (Status, string) {
	for _, r := range precedence {
		if r.match(s, stored) {
			return r.status, r.name
		}
	}
	return StatusFailed, "default"
}
