// Package aggregator is the HTTP client for the third-party flight inventory aggregator.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	searchPath  = "/v2/shopping/flight-offers"
	bookingPath = "/v1/booking/flight-orders"

	// DefaultTimeout bounds a single aggregator call
	DefaultTimeout = 20 * time.Second

	// IdempotencyHeader carries the booking dedup key
	IdempotencyHeader = "Idempotency-Key"
)

// Config holds aggregator connection settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the aggregator search and booking endpoints
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	// bookClient never reuses connections, so net/http cannot replay an
	// Idempotency-Key POST behind the single retry in do
	bookClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new aggregator client
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	bookTransport := http.DefaultTransport.(*http.Transport).Clone()
	bookTransport.DisableKeepAlives = true

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
		bookClient: &http.Client{
			Timeout:   timeout,
			Transport: bookTransport,
		},
		logger: logger,
	}
}

// ============================================================================
// ERRORS
// ============================================================================

// APIError is a structured error returned by the aggregator
type APIError struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	return fmt.Sprintf("aggregator error %s (status %d): %s", e.Code, e.Status, msg)
}

// errorEnvelope is the aggregator error body
type errorEnvelope struct {
	Errors []struct {
		Status flexString `json:"status"`
		Code   flexString `json:"code"`
		Title  string     `json:"title"`
		Detail string     `json:"detail"`
	} `json:"errors"`
}

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Reason codes for failures without a structured aggregator error
const (
	ReasonTimeout           = "TIMEOUT"
	ReasonConnection        = "CONNECTION_FAILED"
	ReasonMalformedResponse = "MALFORMED_RESPONSE"
	ReasonHTTPStatus        = "HTTP_STATUS"
	ReasonInvalidRequest    = "INVALID_REQUEST"
)

// BookingError is a failed booking call. Ambiguous is set when the aggregator may
// have created the order anyway (the request was sent and no answer came back).
type BookingError struct {
	Reason    string
	Message   string
	Status    int
	Ambiguous bool
	Err       error
}

func (e *BookingError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("aggregator booking outcome unknown (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("aggregator booking failed (%s): %s", e.Reason, e.Message)
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

// ============================================================================
// TRANSPORT
// ============================================================================

// attempt records what happened on the wire for one request. Trace callbacks run on
// transport goroutines.
type attempt struct {
	wroteRequest atomic.Bool
	gotResponse  atomic.Bool
}

// outcome summarises all attempts of a call
type outcome struct {
	attempts     int
	wroteRequest bool
}

// response is a fully read aggregator response
type response struct {
	status int
	body   []byte
}

// do sends a request, retrying exactly once when the connection failed before any
// response arrived. Timeouts are never retried.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, query url.Values, payload []byte, header http.Header) (*response, outcome, error) {
	var out outcome

	for {
		at := &attempt{}
		out.attempts++
		resp, err := c.send(ctx, hc, at, method, path, query, payload, header)
		out.wroteRequest = out.wroteRequest || at.wroteRequest.Load()
		if err == nil {
			return resp, out, nil
		}
		if out.attempts >= 2 || !retryable(err, at) || ctx.Err() != nil {
			return nil, out, err
		}

		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		}).Warn("Aggregator connection failed, retrying once")
	}
}

func (c *Client) send(ctx context.Context, hc *http.Client, at *attempt, method, path string, query url.Values, payload []byte, header http.Header) (*response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				at.wroteRequest.Store(true)
			}
		},
		GotFirstResponseByte: func() {
			at.gotResponse.Store(true)
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// retryable reports whether err is a connection failure before any response byte
func retryable(err error, at *attempt) bool {
	if at.gotResponse.Load() || isTimeout(err) {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseAPIError extracts the first structured error from a response body
func parseAPIError(status int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Errors) == 0 {
		return nil
	}
	first := env.Errors[0]
	apiErr := &APIError{
		Status: status,
		Code:   string(first.Code),
		Title:  first.Title,
		Detail: first.Detail,
	}
	if s, err := strconv.Atoi(string(first.Status)); err == nil && s > 0 {
		apiErr.Status = s
	}
	if apiErr.Code == "" {
		apiErr.Code = strconv.Itoa(apiErr.Status)
	}
	return apiErr
}
