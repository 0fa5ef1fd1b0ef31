// Package billing is a typed HTTP client for the billing service. It does
// not retry; callers own any retry policy.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultHTTPTimeout = 10 * time.Second

const maxResponseBodyBytes int64 = 4 * 1024 * 1024

// Gateway is the set of billing endpoints the application consumes.
type Gateway interface {
	Authenticate(ctx context.Context, creds Credentials) (*Tokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error)
	Register(ctx context.Context, reg Registration) (*Tokens, error)
	CurrentUser(ctx context.Context, token string) (*Profile, error)
	ListCourses(ctx context.Context, token string) ([]CourseInfo, error)
	GetCourse(ctx context.Context, token, code string) (*CourseInfo, error)
	ListUserCourses(ctx context.Context, token string) ([]UserCourse, error)
	PayCourse(ctx context.Context, token, code string) (*PaymentResult, error)
	ListTransactions(ctx context.Context, token string) ([]Transaction, error)
	CreateCourse(ctx context.Context, token string, course NewCourse) error
}

// ClientConfig configures the billing client.
type ClientConfig struct {
	BaseURL     string
	Timeout     time.Duration
	DNSCacheTTL time.Duration
	// HTTPClient overrides the client built from Timeout and DNSCacheTTL.
	HTTPClient *http.Client
	Metrics    *Metrics
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *Metrics
	logger     zerolog.Logger
}

var _ Gateway = (*Client)(nil)

// NewClient creates a billing client. ctx bounds the lifetime of the DNS
// cache refresher.
func NewClient(ctx context.Context, cfg ClientConfig, logger zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("billing base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse billing base URL: %w", err)
	}

	lg := logger.With().Str("service", "BillingClient").Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: newTransport(ctx, cfg.DNSCacheTTL, lg),
		}
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		logger:     lg,
	}, nil
}

func (c *Client) Authenticate(ctx context.Context, creds Credentials) (*Tokens, error) {
	var tokens Tokens
	if err := c.do(ctx, "authenticate", http.MethodPost, "/api/v1/auth", "", creds, &tokens); err != nil {
		return nil, err
	}
	if tokens.Token == "" {
		return nil, &Error{Op: "authenticate", Kind: KindInvalidResponse, Message: "response carries no token"}
	}
	return &tokens, nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var tokens Tokens
	if err := c.do(ctx, "refresh_token", http.MethodPost, "/api/v1/token/refresh", "", body, &tokens); err != nil {
		return nil, err
	}
	if tokens.Token == "" {
		return nil, &Error{Op: "refresh_token", Kind: KindInvalidResponse, Message: "response carries no token"}
	}
	return &tokens, nil
}

// Register creates a billing account. Billing may or may not return a
// token pair; an empty Tokens is returned in the latter case.
func (c *Client) Register(ctx context.Context, reg Registration) (*Tokens, error) {
	var tokens Tokens
	if err := c.do(ctx, "register", http.MethodPost, "/api/v1/register", "", reg, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (c *Client) CurrentUser(ctx context.Context, token string) (*Profile, error) {
	var profile Profile
	if err := c.do(ctx, "current_user", http.MethodPost, "/api/v1/users/current", token, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) ListCourses(ctx context.Context, token string) ([]CourseInfo, error) {
	var courses []CourseInfo
	if err := c.do(ctx, "list_courses", http.MethodGet, "/api/v1/courses/", token, nil, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// GetCourse returns billing's data for one course. A course billing does not
// know yields an error matching ErrNotFound.
func (c *Client) GetCourse(ctx context.Context, token, code string) (*CourseInfo, error) {
	var course CourseInfo
	// Billing reports unknown course codes with a 500 sentinel.
	err := c.do(ctx, "get_course", http.MethodGet, "/api/v1/courses/"+url.PathEscape(code), token, nil, &course, http.StatusInternalServerError)
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *Client) ListUserCourses(ctx context.Context, token string) ([]UserCourse, error) {
	var courses []UserCourse
	if err := c.do(ctx, "list_user_courses", http.MethodGet, "/api/v1/users/courses", token, nil, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// PayCourse buys or rents the course. A refusal (for example insufficient
// funds) is returned as an ErrRejected error carrying billing's message.
func (c *Client) PayCourse(ctx context.Context, token, code string) (*PaymentResult, error) {
	const op = "pay_course"
	path := "/api/v1/courses/" + url.PathEscape(code) + "/pay"

	var raw json.RawMessage
	if err := c.do(ctx, op, http.MethodPost, path, token, nil, &raw); err != nil {
		return nil, err
	}
	var result PaymentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, newError(op, KindInvalidResponse, fmt.Errorf("decoding response: %w", err))
	}
	if !result.Success {
		var refusal struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &refusal)
		return nil, &Error{Op: op, Kind: KindRejected, Status: http.StatusOK, Message: refusal.Message}
	}
	return &result, nil
}

func (c *Client) ListTransactions(ctx context.Context, token string) ([]Transaction, error) {
	var txs []Transaction
	if err := c.do(ctx, "list_transactions", http.MethodGet, "/api/v1/transactions/", token, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// CreateCourse registers a course with billing. It requires an admin token.
func (c *Client) CreateCourse(ctx context.Context, token string, course NewCourse) error {
	return c.do(ctx, "create_course", http.MethodPost, "/api/v1/courses/new", token, course, nil)
}

// do performs one request and classifies its outcome. out may be nil.
// Sentinels carrying one of notFoundCodes are classified as not found.
func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any, notFoundCodes ...int) (err error) {
	started := time.Now()
	defer func() {
		c.metrics.observe(op, started, err)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			c.logger.Debug().Err(err).Str("op", op).Str("path", path).Msg("Billing record not found")
		default:
			c.logger.Warn().Err(err).Str("op", op).Str("path", path).Msg("Billing request failed")
		}
	}()

	var reader io.Reader
	if body != nil {
		payload, mErr := json.Marshal(body)
		if mErr != nil {
			return newError(op, KindInvalidResponse, fmt.Errorf("marshaling request body: %w", mErr))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return newError(op, KindUnavailable, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(op, KindUnavailable, fmt.Errorf("making request to billing service: %w", err))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return newError(op, KindUnavailable, fmt.Errorf("reading response: %w", err))
	}

	if sentinel, ok := parseSentinel(data); ok {
		return classifySentinel(op, resp.StatusCode, sentinel, notFoundCodes)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Op: op, Kind: KindUnauthorized, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return &Error{Op: op, Kind: KindNotFound, Status: resp.StatusCode}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &Error{Op: op, Kind: KindUnavailable, Status: resp.StatusCode, Message: truncate(string(data), 200)}
	case resp.StatusCode >= http.StatusBadRequest:
		return &Error{Op: op, Kind: KindRejected, Status: resp.StatusCode, Message: truncate(string(data), 200)}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &Error{Op: op, Kind: KindInvalidResponse, Status: resp.StatusCode, Message: "empty response body"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, Kind: KindInvalidResponse, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

type sentinel struct {
	Code    int
	Message string
}

// parseSentinel detects billing's error convention: a JSON object with a
// numeric "code" field, usually inside a 200 response. A string "code" is a
// course code, not a sentinel.
func parseSentinel(data []byte) (sentinel, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return sentinel{}, false
	}
	var probe struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil || len(probe.Code) == 0 {
		return sentinel{}, false
	}
	var code int
	if err := json.Unmarshal(probe.Code, &code); err != nil {
		return sentinel{}, false
	}
	if code < http.StatusBadRequest {
		return sentinel{}, false
	}
	return sentinel{Code: code, Message: probe.Message}, true
}

func classifySentinel(op string, status int, s sentinel, notFoundCodes []int) *Error {
	kind := KindRejected
	switch {
	case s.Code == http.StatusUnauthorized:
		kind = KindUnauthorized
	case s.Code == http.StatusNotFound, slices.Contains(notFoundCodes, s.Code):
		kind = KindNotFound
	}
	return &Error{Op: op, Kind: kind, Status: status, Code: s.Code, Message: s.Message}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
