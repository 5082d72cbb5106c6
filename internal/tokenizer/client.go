package tokenizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/internal/core/common/validation"
	"github.com/pkg/browser"
)

type Config struct {
	APIURL           string
	Timeout          time.Duration
	PollInterval     time.Duration
	ChallengeTimeout time.Duration
}

// Client talks to the card processor with the publishable key, scoped to one client secret.
type Client struct {
	apiURL           string
	httpClient       *http.Client
	pollInterval     time.Duration
	challengeTimeout time.Duration
	openURL          func(string) error
	logger           *slog.Logger
}

type Option func(*Client)

// WithOpener replaces the system browser used for authentication challenges.
func WithOpener(open func(string) error) Option {
	return func(c *Client) { c.openURL = open }
}

func NewClient(config Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		apiURL:           strings.TrimRight(config.APIURL, "/"),
		httpClient:       &http.Client{Timeout: config.Timeout},
		pollInterval:     config.PollInterval,
		challengeTimeout: config.ChallengeTimeout,
		openURL:          browser.OpenURL,
		logger:           logger,
	}
	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = 30 * time.Second
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}
	if c.challengeTimeout <= 0 {
		c.challengeTimeout = 5 * time.Minute
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IntentIDFromSecret extracts "pi_123" from "pi_123_secret_abc".
func IntentIDFromSecret(clientSecret string) (string, error) {
	idx := strings.Index(clientSecret, "_secret_")
	if idx <= 0 {
		return "", errors.New("malformed client secret")
	}
	return clientSecret[:idx], nil
}

// ValidateCard runs the checks the hosted card field performs before anything is sent.
func ValidateCard(card CardDetails) *SDKError {
	v := validation.NewValidator()
	v.Field("card number", card.Number).
		RequiredWithCode("Your card number is incomplete.", apperrors.ErrCodeInvalidCardDetails).
		Digits(12, 19, apperrors.ErrCodeInvalidCardDetails)
	v.Field("expiration month", card.ExpMonth).
		RequiredWithCode("Your card's expiration date is incomplete.", apperrors.ErrCodeInvalidCardDetails).
		Digits(1, 2, apperrors.ErrCodeInvalidCardDetails)
	v.Field("expiration year", card.ExpYear).
		RequiredWithCode("Your card's expiration date is incomplete.", apperrors.ErrCodeInvalidCardDetails).
		Digits(2, 4, apperrors.ErrCodeInvalidCardDetails)
	v.Field("security code", card.CVC).
		RequiredWithCode("Your card's security code is incomplete.", apperrors.ErrCodeInvalidCardDetails).
		Digits(3, 4, apperrors.ErrCodeInvalidCardDetails)

	if err := v.Validate(); err != nil {
		return &SDKError{Type: ErrorTypeValidation, Code: "incomplete_card", Message: err.Error()}
	}
	return nil
}

// ConfirmCardPayment confirms the intent behind clientSecret with the given card. Processor
// rejections are returned as *SDKError.
func (c *Client) ConfirmCardPayment(ctx context.Context, clientSecret, publicKey string, card CardDetails) (*PaymentIntent, error) {
	if sdkErr := ValidateCard(card); sdkErr != nil {
		return nil, sdkErr
	}
	intentID, err := IntentIDFromSecret(clientSecret)
	if err != nil {
		return nil, &SDKError{Type: ErrorTypeInvalidRequest, Message: err.Error()}
	}

	form := url.Values{}
	form.Set("client_secret", clientSecret)
	form.Set("payment_method_data[type]", "card")
	form.Set("payment_method_data[card][number]", strings.ReplaceAll(card.Number, " ", ""))
	form.Set("payment_method_data[card][exp_month]", card.ExpMonth)
	form.Set("payment_method_data[card][exp_year]", card.ExpYear)
	form.Set("payment_method_data[card][cvc]", card.CVC)
	if card.Name != "" {
		form.Set("payment_method_data[billing_details][name]", card.Name)
	}
	if card.Email != "" {
		form.Set("payment_method_data[billing_details][email]", card.Email)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/payment_intents/%s/confirm", c.apiURL, url.PathEscape(intentID)),
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("confirming card payment", "payment_intent_id", intentID)
	return c.do(httpReq, publicKey)
}

// HandleCardAction opens the issuer challenge for an intent in requires_action and waits
// until the intent leaves that status or the challenge times out.
func (c *Client) HandleCardAction(ctx context.Context, clientSecret, publicKey string, intent *PaymentIntent) (*PaymentIntent, error) {
	if intent == nil || intent.Status != StatusRequiresAction {
		return intent, nil
	}

	if challenge := intent.ChallengeURL(); challenge != "" {
		c.logger.Info("opening authentication challenge", "payment_intent_id", intent.ID)
		if err := c.openURL(challenge); err != nil {
			c.logger.Warn("could not open challenge page", "error", err, "url", challenge)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.challengeTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, &SDKError{
				Type:    ErrorTypeAuthentication,
				Code:    "authentication_timeout",
				Message: "The card authentication was not completed in time.",
			}
		case <-ticker.C:
		}

		current, err := c.retrieve(ctx, clientSecret, publicKey)
		if err != nil {
			var sdkErr *SDKError
			if errors.As(err, &sdkErr) {
				return nil, sdkErr
			}
			c.logger.Warn("polling payment intent failed", "payment_intent_id", intent.ID, "error", err)
			continue
		}
		if current.Status == StatusRequiresAction {
			continue
		}
		if current.Status == StatusRequiresPaymentMethod && current.LastPaymentError != nil {
			return nil, current.LastPaymentError
		}
		return current, nil
	}
}

func (c *Client) retrieve(ctx context.Context, clientSecret, publicKey string) (*PaymentIntent, error) {
	intentID, err := IntentIDFromSecret(clientSecret)
	if err != nil {
		return nil, &SDKError{Type: ErrorTypeInvalidRequest, Message: err.Error()}
	}

	query := url.Values{}
	query.Set("client_secret", clientSecret)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/payment_intents/%s?%s", c.apiURL, url.PathEscape(intentID), query.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	return c.do(httpReq, publicKey)
}

func (c *Client) do(httpReq *http.Request, publicKey string) (*PaymentIntent, error) {
	httpReq.Header.Set("Authorization", "Bearer "+publicKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope errorEnvelope
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
			return nil, envelope.Error
		}
		return nil, &SDKError{
			Type:    ErrorTypeAPI,
			Message: fmt.Sprintf("card processor returned status %d", resp.StatusCode),
		}
	}

	var intent PaymentIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	return &intent, nil
}
