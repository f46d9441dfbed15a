package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nyumbahub/nyumba-backend/pkg/config"
)

var errSecretKeyMissing = errors.New("flutterwave secret key is not configured")

// API is the Flutterwave surface the adapter depends on.
type API interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
	RefundTransaction(ctx context.Context, transactionID string, req RefundRequest) (*RefundResponse, error)
}

// ChargeRequest initiates a mobile-money charge.
type ChargeRequest struct {
	TxRef       string `json:"tx_ref"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
	Narration   string `json:"narration,omitempty"`
}

// ChargeResponse is Flutterwave's v3 envelope for a charge attempt.
type ChargeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID     int64  `json:"id"`
		TxRef  string `json:"tx_ref"`
		FlwRef string `json:"flw_ref"`
		Status string `json:"status"`
	} `json:"data"`
}

// RefundRequest requests a full or partial refund of a settled transaction.
type RefundRequest struct {
	Amount string `json:"amount,omitempty"`
}

// RefundResponse is Flutterwave's v3 envelope for a refund attempt.
type RefundResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// Client talks to the Flutterwave v3 API.
type Client struct {
	cfg  config.FlutterwaveConfig
	http *http.Client
}

// NewClient builds a Flutterwave API client.
func NewClient(cfg config.FlutterwaveConfig) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// Charge submits a Kenyan mobile-money charge.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	var out ChargeResponse
	if err := c.post(ctx, "/charges?type=mobile_money_kenya", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefundTransaction refunds an earlier transaction by its Flutterwave id.
func (c *Client) RefundTransaction(ctx context.Context, transactionID string, req RefundRequest) (*RefundResponse, error) {
	var out RefundResponse
	path := fmt.Sprintf("/transactions/%s/refund", transactionID)
	if err := c.post(ctx, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if c.cfg.SecretKey == "" {
		return errSecretKeyMissing
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode flutterwave request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build flutterwave request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("flutterwave request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read flutterwave response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("flutterwave returned %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode flutterwave response: %w", err)
	}
	return nil
}
