package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nyumbahub/nyumba-backend/pkg/config"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	timestampLayout = "20060102150405"
)

var errCredentialsMissing = errors.New("daraja credentials are not configured")

// DarajaClient is the Daraja API surface the adapter depends on.
type DarajaClient interface {
	StkPush(ctx context.Context, req StkPushRequest) (*StkPushResponse, error)
	StkQuery(ctx context.Context, checkoutRequestID string) (*StkQueryResponse, error)
}

// StkPushRequest carries the initiation parameters the client fills into the
// provider's wire shape.
type StkPushRequest struct {
	Amount           int64
	PhoneNumber      string
	AccountReference string
	Description      string
}

// StkPushResponse is the synchronous half of the STK push round-trip.
type StkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// StkQueryResponse reports the current state of an earlier STK push.
type StkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// Client talks to the Daraja API over HTTP.
type Client struct {
	cfg     config.MpesaConfig
	baseURL string
	http    *http.Client
	logg    *logger.Logger
}

// NewClient builds a Daraja client for the configured environment.
func NewClient(cfg config.MpesaConfig, logg *logger.Logger) *Client {
	baseURL := sandboxBaseURL
	if cfg.Environment() == "production" {
		baseURL = productionBaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logg:    logg,
	}
}

// accessToken fetches a short-lived bearer credential. Tokens are fetched per
// call; caching them is a valid optimization the current volume does not need.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if !c.cfg.HasCredentials() {
		return "", errCredentialsMissing
	}

	url := c.baseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}
	return token.AccessToken, nil
}

// password computes the time-boxed request signature Daraja expects:
// base64(shortcode + passkey + timestamp).
func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.Shortcode + c.cfg.Passkey + timestamp))
}

// StkPush submits a payment prompt to the payer's phone.
func (c *Client) StkPush(ctx context.Context, req StkPushRequest) (*StkPushResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format(timestampLayout)
	payload := map[string]any{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount,
		"PartyA":            req.PhoneNumber,
		"PartyB":            c.cfg.Shortcode,
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.Description,
	}

	var out StkPushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", token, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StkQuery asks Daraja for the outcome of a previously initiated push.
func (c *Client) StkQuery(ctx context.Context, checkoutRequestID string) (*StkQueryResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format(timestampLayout)
	payload := map[string]any{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var out StkQueryResponse
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", token, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path, token string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode daraja request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build daraja request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daraja request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read daraja response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("daraja returned %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode daraja response: %w", err)
	}
	return nil
}
