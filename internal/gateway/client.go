package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bus-booking/internal/domain"
	"bus-booking/pkg/utils"

	"go.uber.org/zap"
)

// Client talks to the PayChangu REST API. Every transport failure and every
// non-2xx answer is reported as domain.ErrGatewayUnavailable.
type Client struct {
	http   *http.Client
	config utils.GatewayConfig
	log    *zap.Logger
}

func NewClient(config utils.GatewayConfig, log *zap.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: config.Timeout},
		config: config,
		log:    log.With(zap.String("gateway", "paychangu")),
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out *envelope) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("Gateway request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", domain.ErrGatewayUnavailable, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", domain.ErrGatewayUnavailable, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("Gateway returned error status",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", raw),
		)
		return fmt.Errorf("%w: %s returned %d", domain.ErrGatewayUnavailable, path, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domain.ErrGatewayUnavailable, path, err)
	}
	return nil
}

// ==================== PAYMENTS ====================

func (c *Client) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	body := map[string]any{
		"amount":       strconv.FormatInt(req.Amount, 10),
		"currency":     req.Currency,
		"tx_ref":       req.Reference,
		"email":        req.Email,
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"callback_url": c.config.CallbackURL,
		"return_url":   c.config.ReturnURL,
	}

	var env envelope
	if err := c.do(ctx, http.MethodPost, "/payment", body, &env); err != nil {
		return nil, err
	}

	var data struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: checkout response without checkout_url", domain.ErrGatewayUnavailable)
	}

	return &CheckoutSession{CheckoutURL: data.CheckoutURL, Reference: req.Reference}, nil
}

func (c *Client) VerifyPayment(ctx context.Context, reference string) (Status, error) {
	return c.verify(ctx, reference)
}

// ==================== PAYOUTS ====================

func (c *Client) InitiatePayout(ctx context.Context, req PayoutRequest) (string, error) {
	body := map[string]any{
		"payout_method":       "bank_transfer",
		"bank_uuid":           req.Destination.BankUUID,
		"amount":              strconv.FormatInt(req.Amount, 10),
		"charge_id":           req.ChargeID,
		"bank_account_name":   req.Destination.AccountName,
		"bank_account_number": req.Destination.AccountNumber,
	}
	if req.Destination.MobileNumber != "" {
		// mobile money goes through the same endpoint with the number as account
		body["bank_account_number"] = req.Destination.MobileNumber
		if req.Destination.Operator != "" {
			body["bank_uuid"] = req.Destination.Operator
		}
	}

	var env envelope
	if err := c.do(ctx, http.MethodPost, "/direct-charge/payouts/initialize", body, &env); err != nil {
		return "", err
	}

	var data struct {
		RefID       string `json:"ref_id"`
		Transaction struct {
			RefID string `json:"ref_id"`
		} `json:"transaction"`
	}
	_ = json.Unmarshal(env.Data, &data)

	refID := data.RefID
	if refID == "" {
		refID = data.Transaction.RefID
	}
	if refID == "" {
		return "", fmt.Errorf("%w: payout response without ref_id", domain.ErrGatewayUnavailable)
	}
	return refID, nil
}

func (c *Client) VerifyPayout(ctx context.Context, refID string) (Status, error) {
	return c.verify(ctx, refID)
}

func (c *Client) verify(ctx context.Context, reference string) (Status, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/verify-payment/"+url.PathEscape(reference), nil, &env); err != nil {
		return "", err
	}

	var data struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Status == "" {
		return "", fmt.Errorf("%w: verify response without status", domain.ErrGatewayUnavailable)
	}

	return ParseStatus(data.Status)
}
