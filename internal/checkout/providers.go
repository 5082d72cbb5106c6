package checkout

import (
	"strconv"
	"strings"

	"github.com/frahmantamala/vip-checkout/internal/session"
)

type Bank struct {
	Code string
	Name string
}

// ProviderProfile holds what differs between providers. Flows read it instead of branching
// on provider names.
type ProviderProfile struct {
	Method       session.Method
	DisplayName  string
	RequiresBank bool
	Banks        []Bank
}

func (p ProviderProfile) HasBank(code string) bool {
	for _, b := range p.Banks {
		if b.Code == code {
			return true
		}
	}
	return false
}

func (p ProviderProfile) BankCodes() []string {
	codes := make([]string, len(p.Banks))
	for i, b := range p.Banks {
		codes[i] = b.Code
	}
	return codes
}

type Providers map[session.Method]ProviderProfile

var DefaultProviders = Providers{
	session.MethodVNPay: {
		Method:       session.MethodVNPay,
		DisplayName:  "VNPay",
		RequiresBank: true,
		Banks: []Bank{
			{Code: "NCB", Name: "NCB Bank"},
			{Code: "BIDV", Name: "BIDV Bank"},
			{Code: "VCB", Name: "Vietcombank"},
			{Code: "TECHCOMBANK", Name: "Techcombank"},
			{Code: "VIETINBANK", Name: "VietinBank"},
			{Code: "MB", Name: "MB Bank"},
			{Code: "ACB", Name: "ACB Bank"},
			{Code: "SHB", Name: "SHB Bank"},
		},
	},
	session.MethodStripe: {
		Method:      session.MethodStripe,
		DisplayName: "Stripe",
	},
}

// Profile returns the known profile or a bare one named after the method.
func (p Providers) Profile(method session.Method) ProviderProfile {
	if profile, ok := p[method]; ok {
		return profile
	}
	return ProviderProfile{Method: method, DisplayName: string(method)}
}

// VIPPackage is the upgrade sold by default.
var VIPPackage = struct {
	Name   string
	Amount int64
}{Name: "VIP - 1 month", Amount: 100000}

// FormatVND renders an amount the way vi-VN currency formatting does, e.g. "100.000 ₫".
func FormatVND(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + " ₫"
}
