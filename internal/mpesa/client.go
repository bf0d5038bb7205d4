// Package mpesa talks to Safaricom's Daraja API: it initiates STK push
// payments and decodes the asynchronous result callbacks.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/edgard/shulebot/internal/config"
)

const (
	tokenPath         = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath       = "/mpesa/stkpush/v1/processrequest"
	timestampLayout   = "20060102150405"
	transactionType   = "CustomerPayBillOnline"
	tokenExpiryMargin = time.Minute
	maxResponseBytes  = 1 << 20

	breakerMaxFailures = 5
	breakerOpenTimeout = 30 * time.Second
)

// ResponseCodeAccepted is the initiation code for a request Daraja accepted.
const ResponseCodeAccepted = "0"

var (
	// ErrInvalidPhone is returned for numbers Daraja would reject.
	ErrInvalidPhone = errors.New("phone must be in the format 2547XXXXXXXX")
	// ErrInvalidAmount is returned for amounts that are not positive whole numbers.
	ErrInvalidAmount = errors.New("amount must be a positive whole number")
	// ErrGatewayUnavailable is returned without calling Daraja while recent
	// calls keep failing.
	ErrGatewayUnavailable = errors.New("payment gateway temporarily unavailable")

	phonePattern = regexp.MustCompile(`^2547\d{8}$`)
)

// ValidPhone reports whether phone is a Kenyan MSISDN Daraja accepts.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ParseAmount validates a whole-shilling amount.
func ParseAmount(amount string) (int64, error) {
	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidAmount
	}
	return n, nil
}

// APIError describes a non-2xx response from Daraja.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daraja returned HTTP %d: %s", e.StatusCode, e.Body)
}

// InitiateResponse is Daraja's synchronous answer to an STK push.
type InitiateResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Accepted reports whether Daraja queued the push.
func (r *InitiateResponse) Accepted() bool {
	return r != nil && r.ResponseCode == ResponseCodeAccepted
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// Client is a Daraja API client. It is safe for concurrent use.
type Client struct {
	cfg        config.MPesaConfig
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
	now        func() time.Time
	breaker    *gobreaker.CircuitBreaker

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at a different Daraja host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithClock overrides the time source used for timestamps and token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a Daraja client from cfg.
func NewClient(cfg config.MPesaConfig, log *slog.Logger, opts ...Option) (*Client, error) {
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, errors.New("mpesa consumer key and secret are required")
	}
	if cfg.Shortcode == "" || cfg.Passkey == "" {
		return nil, errors.New("mpesa shortcode and passkey are required")
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    cfg.BaseURL(),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("component", "mpesa_client"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         "daraja",
		MaxRequests:  1,
		Timeout:      breakerOpenTimeout,
		ReadyToTrip:  func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= breakerMaxFailures },
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// countsAsSuccess keeps caller mistakes and cancellations from tripping the
// breaker; only transport failures and 5xx responses count.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < http.StatusInternalServerError
	}
	return false
}

// guarded runs fn through the circuit breaker.
func (c *Client) guarded(fn func() error) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrGatewayUnavailable
	}
	return err
}

// Initiate sends an STK push for amount to phone. A response whose code is
// not "0" is returned without error; callers decide how to treat it.
func (c *Client) Initiate(ctx context.Context, phone, amount, reference string) (*InitiateResponse, error) {
	if !ValidPhone(phone) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPhone, phone)
	}
	value, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	if reference == "" {
		reference = c.cfg.AccountReference
	}

	var resp InitiateResponse
	err = c.guarded(func() error {
		return c.stkPush(ctx, phone, value, reference, &resp)
	})
	if err != nil {
		return nil, err
	}

	c.log.InfoContext(ctx, "STK push sent",
		"checkout_request_id", resp.CheckoutRequestID,
		"response_code", resp.ResponseCode,
		"response_description", resp.ResponseDescription)
	return &resp, nil
}

func (c *Client) stkPush(ctx context.Context, phone string, value int64, reference string, resp *InitiateResponse) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	timestamp := c.now().Format(timestampLayout)
	payload := stkPushRequest{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          Password(c.cfg.Shortcode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            value,
		PartyA:            phone,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  reference,
		TransactionDesc:   c.cfg.TransactionDesc,
	}

	if err := c.postJSON(ctx, c.baseURL+stkPushPath, "Bearer "+token, payload, resp); err != nil {
		return fmt.Errorf("stk push failed: %w", err)
	}
	return nil
}

// RegisterInit posts an accepted initiation to the configured remote
// register-init endpoint. It does nothing when no endpoint is configured.
func (c *Client) RegisterInit(ctx context.Context, reg Registration) error {
	if c.cfg.RegisterURL == "" {
		return nil
	}
	body := registrationBody{
		MerchantRequestID: reg.MerchantRequestID,
		CheckoutRequestID: reg.CheckoutRequestID,
		PhoneNumber:       reg.Phone,
		Amount:            reg.Amount,
	}
	if err := c.postJSON(ctx, c.cfg.RegisterURL, "", body, nil); err != nil {
		return fmt.Errorf("register-init failed: %w", err)
	}
	c.log.InfoContext(ctx, "Registered initiation remotely", "checkout_request_id", reg.CheckoutRequestID)
	return nil
}

// Password derives the STK push password for a timestamp.
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	var tok tokenResponse
	if err := c.do(req, &tok); err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("daraja returned an empty access token")
	}

	ttl := time.Hour
	if secs, err := strconv.Atoi(tok.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(ttl - tokenExpiryMargin)
	c.log.DebugContext(ctx, "Fetched Daraja access token", "expires_in", ttl)
	return c.token, nil
}

func (c *Client) postJSON(ctx context.Context, url, authorization string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) (err error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
