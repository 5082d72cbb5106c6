package ui

import (
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	errors "github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/internal/capability"
	"github.com/frahmantamala/vip-checkout/internal/checkout"
	"github.com/frahmantamala/vip-checkout/internal/core/common/validation"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"github.com/frahmantamala/vip-checkout/internal/tokenizer"
)

// ErrNoOptions means the backend offers nothing for the requested integration type.
var ErrNoOptions = stderrors.New("no payment options are available right now")

// PickMethod offers only the methods the backend supports for integration.
func PickMethod(p Prompter, caps *capability.Capabilities, providers checkout.Providers, integration session.IntegrationType) (session.Method, error) {
	methods := caps.MethodsFor(integration)
	if len(methods) == 0 {
		return "", ErrNoOptions
	}
	if len(methods) == 1 {
		return methods[0], nil
	}

	items := make([]string, len(methods))
	for i, m := range methods {
		items[i] = providers.Profile(m).DisplayName
	}
	index, err := p.Select("Choose a payment method", items)
	if err != nil {
		return "", err
	}
	return methods[index], nil
}

var integrationLabels = map[session.IntegrationType]string{
	session.IntegrationRedirect:   "On the provider's payment page",
	session.IntegrationIntegrated: "By card in this terminal",
}

// PickIntegration offers the integration types at least one supported method can use.
func PickIntegration(p Prompter, caps *capability.Capabilities) (session.IntegrationType, error) {
	var offered []session.IntegrationType
	for _, t := range []session.IntegrationType{session.IntegrationRedirect, session.IntegrationIntegrated} {
		if len(caps.MethodsFor(t)) > 0 {
			offered = append(offered, t)
		}
	}
	if len(offered) == 0 {
		return "", ErrNoOptions
	}
	if len(offered) == 1 {
		return offered[0], nil
	}

	items := make([]string, len(offered))
	for i, t := range offered {
		items[i] = integrationLabels[t]
	}
	index, err := p.Select("How do you want to pay", items)
	if err != nil {
		return "", err
	}
	return offered[index], nil
}

// PickBank asks for a bank only when the provider needs one; otherwise it returns "".
func PickBank(p Prompter, profile checkout.ProviderProfile) (string, error) {
	if !profile.RequiresBank || len(profile.Banks) == 0 {
		return "", nil
	}
	items := make([]string, len(profile.Banks))
	for i, b := range profile.Banks {
		items[i] = fmt.Sprintf("%s (%s)", b.Name, b.Code)
	}
	index, err := p.Select("Choose your bank", items)
	if err != nil {
		return "", err
	}
	return profile.Banks[index].Code, nil
}

// AskAmount defaults to the VIP package price and enforces the minimum while typing.
func AskAmount(p Prompter, defaultAmount, minAmount int64) (int64, error) {
	raw, err := p.Input("Amount (VND)", strconv.FormatInt(defaultAmount, 10), func(s string) error {
		amount, err := parseAmount(s)
		if err != nil {
			return err
		}
		if appErr := validation.ValidatePaymentAmount(amount, minAmount); appErr != nil {
			return stderrors.New(appErr.GetDetailedMessage())
		}
		return nil
	}, 0)
	if err != nil {
		return 0, err
	}
	return parseAmount(raw)
}

func parseAmount(s string) (int64, error) {
	cleaned := strings.NewReplacer(".", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	amount, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, stderrors.New("amount must be a whole number")
	}
	return amount, nil
}

// AskCard collects card details for one confirmation. The CVC is masked.
func AskCard(p Prompter) (tokenizer.CardDetails, error) {
	var card tokenizer.CardDetails
	fields := []struct {
		label    string
		target   *string
		mask     rune
		validate func(string) error
	}{
		{"Card number", &card.Number, 0, fieldCheck("card number", func(v *validation.FieldValidator) { v.Digits(12, 19, errors.ErrCodeInvalidCardDetails) })},
		{"Expiry month (MM)", &card.ExpMonth, 0, expiryMonth},
		{"Expiry year (YY)", &card.ExpYear, 0, fieldCheck("expiry year", func(v *validation.FieldValidator) { v.Digits(2, 4, errors.ErrCodeInvalidCardDetails) })},
		{"CVC", &card.CVC, '*', fieldCheck("cvc", func(v *validation.FieldValidator) { v.Digits(3, 4, errors.ErrCodeInvalidCardDetails) })},
		{"Name on card", &card.Name, 0, nil},
		{"Email for receipt", &card.Email, 0, nil},
	}
	for _, f := range fields {
		value, err := p.Input(f.label, "", f.validate, f.mask)
		if err != nil {
			return tokenizer.CardDetails{}, err
		}
		*f.target = strings.TrimSpace(value)
	}
	card.Number = strings.ReplaceAll(card.Number, " ", "")
	return card, nil
}

func fieldCheck(name string, rules func(*validation.FieldValidator)) func(string) error {
	return func(s string) error {
		v := validation.NewValidator()
		field := v.Field(name, s).RequiredWithCode(name+" is required", errors.ErrCodeInvalidCardDetails)
		rules(field)
		if appErr := v.Validate(); appErr != nil {
			return stderrors.New(appErr.GetDetailedMessage())
		}
		return nil
	}
}

func expiryMonth(s string) error {
	month, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || month < 1 || month > 12 {
		return stderrors.New("expiry month must be between 01 and 12")
	}
	return nil
}

var actionLabels = map[checkout.Action]string{
	checkout.ActionRetry:     "Try again",
	checkout.ActionDashboard: "Go to dashboard",
}

// NextAction is the retry-or-dashboard decision that closes every checkout attempt.
func NextAction(p Prompter, outcome checkout.Outcome) (checkout.Action, error) {
	actions := outcome.Actions()
	if len(actions) == 1 {
		return actions[0], nil
	}
	items := make([]string, len(actions))
	for i, a := range actions {
		items[i] = actionLabels[a]
	}
	index, err := p.Select("What next", items)
	if err != nil {
		return "", err
	}
	return actions[index], nil
}

// PrintOutcome writes the result screen.
func PrintOutcome(w io.Writer, outcome checkout.Outcome) {
	fmt.Fprintf(w, "\n[%s] %s\n", strings.ToLower(string(outcome.Status)), outcome.Message)
	if outcome.StaleSession {
		fmt.Fprintln(w, checkout.StaleSessionNotice)
	}
	if outcome.ReferenceID != "" {
		fmt.Fprintf(w, "reference: %s\n", outcome.ReferenceID)
	}
	if outcome.TransactionID != "" {
		fmt.Fprintf(w, "transaction: %s\n", outcome.TransactionID)
	}
	if amount := outcome.FormattedAmount(); amount != "" {
		fmt.Fprintf(w, "amount: %s\n", amount)
	}
	if outcome.Method != "" {
		fmt.Fprintf(w, "method: %s\n", outcome.Method)
	}
	if outcome.PaymentDate != "" {
		fmt.Fprintf(w, "paid at: %s\n", outcome.PaymentDate)
	}
	fmt.Fprintln(w)
}

// PrintError shows the user-facing part of err, never its cause chain.
func PrintError(w io.Writer, err error) {
	if appErr, ok := errors.IsAppError(err); ok {
		fmt.Fprintf(w, "Error: %s\n", appErr.GetDetailedMessage())
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
