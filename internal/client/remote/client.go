// Package remote provides a client for the remote order/bookmark REST
// service with retries, a circuit breaker and request metrics.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenSource returns the bearer token for a request, or "" when the user is
// not signed in.
type TokenSource func(ctx context.Context) string

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets the bearer token source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics sets the request collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetry sets the number of retries and the exponential backoff bounds
// used for transient failures.
func WithRetry(maxRetries int, delay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.delay = delay
		c.maxDelay = maxDelay
	}
}

// Client talks to the remote service. It is safe for concurrent use.
type Client struct {
	base     *url.URL
	http     *http.Client
	token    TokenSource
	log      *zap.Logger
	metrics  *Metrics
	// pipeline retries every transient failure; it serves safe methods only.
	pipeline failsafe.Executor[*response]
	// unsafePipeline retries only requests that never left the client.
	unsafePipeline failsafe.Executor[*response]

	maxRetries int
	delay      time.Duration
	maxDelay   time.Duration
}

// response is a fully read HTTP response of one attempt.
type response struct {
	status int
	body   []byte
}

// envelope is the transport wrapper of every service response. The
// account endpoints report the outcome in success instead of status.
type envelope struct {
	Status  *bool           `json:"status"`
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) rejected() bool {
	return (e.Status != nil && !*e.Status) || (e.Success != nil && !*e.Success)
}

// NewClient returns a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		base:       base,
		http:       &http.Client{Timeout: 15 * time.Second},
		log:        zap.NewNop(),
		maxRetries: 2,
		delay:      100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxDelay <= c.delay {
		c.maxDelay = 2 * c.delay
	}

	transient := func(_ *response, err error) bool {
		var re *Error
		return errors.As(err, &re) && re.Retryable()
	}
	notSent := func(_ *response, err error) bool {
		var op *net.OpError
		return errors.As(err, &op) && op.Op == "dial"
	}
	retryPolicy := func(handle func(*response, error) bool) retrypolicy.RetryPolicy[*response] {
		return retrypolicy.NewBuilder[*response]().
			HandleIf(handle).
			WithBackoff(c.delay, c.maxDelay).
			WithMaxRetries(c.maxRetries).
			Build()
	}
	breaker := circuitbreaker.NewBuilder[*response]().
		HandleIf(transient).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()
	c.pipeline = failsafe.With[*response](retryPolicy(transient), breaker)
	c.unsafePipeline = failsafe.With[*response](retryPolicy(notSent), breaker)

	return c, nil
}

// do sends one logical request, retrying transient failures of GET requests
// and dial failures of any request, and unwraps the envelope. A nil out
// discards the payload.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) (envelope, error) {
	started := time.Now()
	env, err := c.roundTrip(ctx, method, path, query, in)
	if err == nil && out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if uerr := json.Unmarshal(env.Data, out); uerr != nil {
			err = &Error{StatusCode: http.StatusOK, Message: "Malformed response", Err: uerr}
		}
	}
	c.metrics.observe(op, started, err)
	if err != nil {
		c.log.Debug("remote call failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
	}
	return env, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, in any) (envelope, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return envelope{}, fmt.Errorf("marshal request: %w", err)
		}
	}

	ref, err := url.Parse(path)
	if err != nil {
		return envelope{}, fmt.Errorf("parse path: %w", err)
	}
	target := c.base.ResolveReference(ref)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	requestID := uuid.NewString()

	// A 5xx after a write may mean the write was committed: only safe
	// methods are resent.
	pipeline := c.unsafePipeline
	if method == http.MethodGet || method == http.MethodHead {
		pipeline = c.pipeline
	}

	var lastErr error
	resp, err := pipeline.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*response]) (*response, error) {
		resp, err := c.attempt(ctx, method, target.String(), requestID, payload)
		lastErr = err
		if err != nil && exec.Attempts() > 1 {
			c.log.Debug("remote retry failed",
				zap.String("request_id", requestID),
				zap.Int("attempt", exec.Attempts()),
				zap.Error(err))
		}
		return resp, err
	})
	if err != nil {
		if lastErr != nil {
			return envelope{}, lastErr
		}
		return envelope{}, transportError(err)
	}

	if resp.status < 200 || resp.status >= 300 {
		return envelope{}, statusError(resp.status, resp.body)
	}

	var env envelope
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return envelope{}, &Error{StatusCode: resp.status, Message: "Malformed response", Err: err}
	}
	if env.rejected() {
		msg := env.Message
		if msg == "" {
			msg = "Request failed"
		}
		return env, &Error{StatusCode: resp.status, Message: msg}
	}
	return env, nil
}

// attempt performs a single HTTP exchange. Retryable statuses are returned
// as errors so the pipeline can handle them.
func (c *Client) attempt(ctx context.Context, method, target, requestID string, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, transportError(err)
	}
	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
		return nil, statusError(res.StatusCode, data)
	}
	return &response{status: res.StatusCode, body: data}, nil
}
