// Package paystack is a small client for the Paystack REST API covering
// what settlement and payouts need: transaction verification, bank
// lookups, transfer recipients, transfers and webhook signatures.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/rental-settlement/internal/apperr"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.paystack.co"

// Currency is the only currency this integration transacts in.
const Currency = "NGN"

var (
	// ErrNotFound is wrapped when the provider does not know the requested
	// resource, e.g. an unknown transaction reference.
	ErrNotFound = errors.New("paystack: not found")
	// ErrUnavailable is wrapped on network errors, timeouts and 5xx
	// responses. These are worth retrying later.
	ErrUnavailable = errors.New("paystack: provider unavailable")
	// ErrRejected is wrapped when the provider answered with a 4xx other
	// than 404.
	ErrRejected = errors.New("paystack: request rejected")
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client talks to Paystack. It is safe for concurrent use.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	log     *logrus.Entry
}

// NewClient builds a Client. Every request is bounded by cfg.Timeout
// (10s when unset) in addition to the caller's context.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		secret:  cfg.SecretKey,
		http:    &http.Client{Timeout: timeout},
		log:     logrus.WithField("component", "paystack"),
	}
}

// envelope is the wrapper Paystack puts around every response body.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends a request and decodes the envelope's data into out. Failures
// come back as *apperr.Error values of kind GatewayFailure wrapping one of
// the package sentinels; notFoundMsg is used for 404 answers.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, notFoundMsg string) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{"method": method, "path": path}).Warn("request failed")
		return apperr.Wrap(apperr.GatewayFailure, "payment gateway unavailable", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Wrap(apperr.GatewayFailure, "payment gateway unavailable", fmt.Errorf("%w: read body: %v", ErrUnavailable, err))
	}
	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("paystack call")

	var env envelope
	_ = json.Unmarshal(raw, &env)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.Wrap(apperr.GatewayFailure, notFoundMsg, fmt.Errorf("%w: %s", ErrNotFound, env.Message))
	case resp.StatusCode >= 500:
		return apperr.Wrap(apperr.GatewayFailure, "payment gateway unavailable",
			fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, env.Message))
	case resp.StatusCode >= 400:
		msg := env.Message
		if msg == "" {
			msg = "payment gateway rejected the request"
		}
		return apperr.Wrap(apperr.GatewayFailure, msg, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return apperr.New(apperr.Internal, "missing data in payment gateway response")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.Wrap(apperr.Internal, "malformed payment gateway response", err)
	}
	return nil
}
