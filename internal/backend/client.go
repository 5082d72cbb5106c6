package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	errors "github.com/frahmantamala/vip-checkout/internal"
	paymentgatewaytypes "github.com/frahmantamala/vip-checkout/internal/core/datamodel/paymentgateway"
)

const (
	pathCreate                = "/create"
	pathConfirm               = "/stripe/payment-confirm"
	pathSupportedMethods      = "/supported-methods"
	pathSupportedIntegrations = "/supported-integrations"

	maxErrorBody = 64 << 10
)

// API is the backend payment service as seen by the checkout flows.
type API interface {
	CreatePayment(ctx context.Context, req paymentgatewaytypes.CreatePaymentRequest) (*paymentgatewaytypes.CreatePaymentResponse, error)
	ConfirmPayment(ctx context.Context, paymentIntentID string) error
	SupportedMethods(ctx context.Context) ([]string, error)
	SupportedIntegrations(ctx context.Context) (paymentgatewaytypes.SupportedIntegrations, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// CreatePayment asks the backend to open a transaction. Transport failures and non-2xx answers
// become GATEWAY_CREATE_ERROR carrying the backend message; an undecodable body is
// UNEXPECTED_RESPONSE_SHAPE.
func (c *Client) CreatePayment(ctx context.Context, req paymentgatewaytypes.CreatePaymentRequest) (*paymentgatewaytypes.CreatePaymentResponse, error) {
	form := url.Values{}
	form.Set("method", req.Method)
	form.Set("integrationType", req.IntegrationType)
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	if req.BankCode != "" {
		form.Set("bankCode", req.BankCode)
	}

	c.logger.Info("creating payment",
		"method", req.Method,
		"integration_type", req.IntegrationType,
		"amount", req.Amount)

	resp, err := c.postForm(ctx, pathCreate, form)
	if err != nil {
		return nil, errors.NewGatewayCreateError("could not reach the payment service", errors.ErrCodeGatewayUnavailable).WithCause(err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		message := readErrorMessage(resp.Body)
		if message == "" {
			message = fmt.Sprintf("payment creation failed with status %d", resp.StatusCode)
		}
		c.logger.Warn("payment creation rejected",
			"method", req.Method,
			"status_code", resp.StatusCode,
			"message", message)
		return nil, errors.NewGatewayCreateError(message, errors.ErrCodeGatewayRejected)
	}

	var created paymentgatewaytypes.CreatePaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, errors.NewUnexpectedResponseError("payment service returned an unreadable response").WithCause(err)
	}

	c.logger.Info("payment created",
		"reference_id", created.ReferenceID,
		"status", created.Status)

	return &created, nil
}

// ConfirmPayment settles an integrated payment. The backend treats replays as no-ops.
func (c *Client) ConfirmPayment(ctx context.Context, paymentIntentID string) error {
	form := url.Values{}
	form.Set("paymentIntentId", paymentIntentID)

	resp, err := c.postForm(ctx, pathConfirm, form)
	if err != nil {
		return fmt.Errorf("confirm payment %s: %w", paymentIntentID, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		message := readErrorMessage(resp.Body)
		return fmt.Errorf("confirm payment %s: status %d %s", paymentIntentID, resp.StatusCode, message)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) SupportedMethods(ctx context.Context) ([]string, error) {
	var methods []string
	if err := c.getJSON(ctx, pathSupportedMethods, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

func (c *Client) SupportedIntegrations(ctx context.Context) (paymentgatewaytypes.SupportedIntegrations, error) {
	integrations := paymentgatewaytypes.SupportedIntegrations{}
	if err := c.getJSON(ctx, pathSupportedIntegrations, &integrations); err != nil {
		return nil, err
	}
	return integrations, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: failed to decode response: %w", path, err)
	}
	return nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload paymentgatewaytypes.ErrorResponse
	if err := json.Unmarshal(raw, &payload); err == nil {
		return strings.TrimSpace(payload.Message)
	}
	return ""
}
