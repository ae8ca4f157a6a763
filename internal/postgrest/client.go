// Package postgrest implements catalog.Repository against a PostgREST endpoint
// such as the one Supabase exposes under /rest/v1.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
	pgrest "github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"
)

const (
	restPath             = "/rest/v1"
	defaultTimeout       = 10 * time.Second
	maxErrorBodyBytes    = 64 << 10
	returnRepresentation = "representation"
	returnMinimal        = "minimal"
)

var (
	ErrInvalidConfig  = errors.New("postgrest: invalid client config")
	errMissingBaseURL = errors.New("base url required")
	errMissingAnonKey = errors.New("anon key required")
)

// Config describes how to reach the PostgREST endpoint. Transport defaults to
// http.DefaultTransport.
type Config struct {
	BaseURL   string
	AnonKey   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Client talks to PostgREST on behalf of the session carried by each call.
type Client struct {
	restURL   string
	anonKey   string
	timeout   time.Duration
	transport http.RoundTripper
	logger    *zap.Logger
}

var _ catalog.Repository = (*Client)(nil)

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, errMissingBaseURL)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	anonKey := strings.TrimSpace(cfg.AnonKey)
	if anonKey == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, errMissingAnonKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		restURL:   baseURL + restPath,
		anonKey:   anonKey,
		timeout:   timeout,
		transport: transport,
		logger:    logger,
	}, nil
}

// RemoteError reports a PostgREST call that failed in transport or returned a non-2xx status.
type RemoteError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("postgrest: %s failed: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("postgrest: %s returned %d: %s", e.Operation, e.StatusCode, e.Message)
}

// Unwrap exposes the transport cause and maps row-level security rejections onto
// catalog.ErrPermissionDenied.
func (e *RemoteError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.permissionDenied() {
		errs = append(errs, catalog.ErrPermissionDenied)
	}
	return errs
}

// 42501 is insufficient_privilege, raised when a row-level security policy rejects a write.
func (e *RemoteError) permissionDenied() bool {
	return e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden ||
		e.Code == "42501"
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// call is the round tripper behind one postgrest-go request. It binds the request to
// the caller's deadline and keeps the status and error body the library discards.
type call struct {
	ctx       context.Context
	operation string
	base      http.RoundTripper
	status    int
	failure   []byte
}

func (c *call) RoundTrip(req *http.Request) (*http.Response, error) {
	response, err := c.base.RoundTrip(req.WithContext(c.ctx))
	if err != nil {
		return nil, err
	}
	c.status = response.StatusCode
	if response.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
		_ = response.Body.Close()
		c.failure = raw
		response.Body = io.NopCloser(bytes.NewReader(raw))
	}
	return response, nil
}

func (c *call) remoteError(err error) *RemoteError {
	if c.status == 0 {
		return &RemoteError{Operation: c.operation, Message: err.Error(), Err: err}
	}
	if c.status < http.StatusBadRequest {
		return &RemoteError{Operation: c.operation, StatusCode: c.status, Message: err.Error(), Err: err}
	}
	remoteErr := &RemoteError{Operation: c.operation, StatusCode: c.status}
	var payload apiError
	if json.Unmarshal(c.failure, &payload) == nil && payload.Message != "" {
		remoteErr.Code = payload.Code
		remoteErr.Message = payload.Message
		return remoteErr
	}
	remoteErr.Message = strings.TrimSpace(string(c.failure))
	if remoteErr.Message == "" {
		remoteErr.Message = http.StatusText(c.status)
	}
	return remoteErr
}

type executor interface {
	Execute() ([]byte, int64, error)
}

// open returns a postgrest-go client that authenticates as the caller, falling back
// to the anon key for anonymous sessions. Extra headers ride on every request.
func (c *Client) open(ctx context.Context, session catalog.Session, operation string, headers map[string]string) (*pgrest.Client, *call, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	bearer := strings.TrimSpace(session.AccessToken)
	if bearer == "" {
		bearer = c.anonKey
	}
	tripper := &call{ctx: ctx, operation: operation, base: c.transport}
	client := pgrest.NewClient(c.restURL, "", headers)
	if client.ClientError == nil {
		client.SetApiKey(c.anonKey).SetAuthToken(bearer)
		client.Transport.Parent = tripper
	}
	return client, tripper, cancel
}

// run executes query and decodes a non-empty JSON response into out when out is non-nil.
func (c *Client) run(tripper *call, query executor, out any) error {
	started := time.Now()
	payload, _, err := query.Execute()
	if err != nil {
		remoteErr := tripper.remoteError(err)
		c.logFailure(remoteErr, time.Since(started))
		return remoteErr
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &RemoteError{Operation: tripper.operation, StatusCode: tripper.status, Message: "decode response", Err: err}
	}
	return nil
}

func (c *Client) logFailure(err *RemoteError, elapsed time.Duration) {
	c.logger.Warn("postgrest request failed",
		zap.String("operation", err.Operation),
		zap.Int("status", err.StatusCode),
		zap.String("code", err.Code),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
}
