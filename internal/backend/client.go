// Package backend talks to the venue directory HTTP API. The API is a black box: this package
// builds requests, maps transport and status failures onto apperr kinds and turns the several
// historical response shapes into model values.
package backend

import (
	"bytes"
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

	"github.com/go-playground/validator/v10"

	"gfbeer/venue-finder/internal/apperr"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 4 << 20

// Client is safe for concurrent use.
type Client struct {
	base       *url.URL
	http       *http.Client
	adminToken string
	userAgent  string
	logger     *slog.Logger
	validate   *validator.Validate
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithAdminToken passes token through as a bearer credential on every request.
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = strings.TrimSpace(token) }
}

// New builds a client for the API rooted at baseURL.
func New(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must be http or https", baseURL)
	}

	c := &Client{
		base:      base,
		http:      &http.Client{Timeout: 15 * time.Second},
		userAgent: "venue-finder/1.0",
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// endpoint joins an already escaped path onto the base URL.
func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	raw := strings.TrimRight(u.EscapedPath(), "/") + path
	if p, err := url.PathUnescape(raw); err == nil {
		u.Path, u.RawPath = p, raw
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// errorBody is the backend's error payload.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "build request", err).WithOp(op)
	}
	return c.do(op, req)
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "encode payload", err).WithOp(op)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "build request", err).WithOp(op)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req)
}

func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, apperr.Wrap(apperr.KindBackendUnavailable, "request cancelled", ctxErr).WithOp(op)
		}
		c.logger.Warn("backend request failed", "op", op, "error", err)
		return nil, apperr.Wrap(apperr.KindBackendUnavailable, "backend unreachable", err).WithOp(op)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackendUnavailable, "read response", err).WithOp(op)
	}

	c.logger.Debug("backend response",
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, statusError(op, resp.StatusCode, body)
	}
	return body, nil
}

func statusError(op string, status int, body []byte) error {
	msg := http.StatusText(status)
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != "" {
			msg = eb.Error
		} else if eb.Message != "" {
			msg = eb.Message
		}
	}

	cause := fmt.Errorf("status %d", status)
	switch {
	case status == http.StatusNotFound:
		return apperr.Wrap(apperr.KindNotFound, msg, cause).WithOp(op)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperr.Wrap(apperr.KindInvalidInput, msg, cause).WithOp(op)
	default:
		return apperr.Wrap(apperr.KindBackendUnavailable, msg, cause).WithOp(op)
	}
}

func decodeError(op string, err error) error {
	return apperr.Wrap(apperr.KindBackendUnavailable, "unexpected response", err).WithOp(op)
}

// validationError flattens validator errors into one InvalidInput message.
func validationError(op string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Wrap(apperr.KindInvalidInput, "invalid submission", err).WithOp(op)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return apperr.Wrap(apperr.KindInvalidInput, "invalid submission: "+strings.Join(parts, ", "), err).WithOp(op)
}
