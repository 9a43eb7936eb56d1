// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/veridia-health/veridia/internal/log"
	"github.com/veridia-health/veridia/internal/tracing"
)

const (
	// DefaultTimeout bounds each attempt when Config.Timeout is zero.
	DefaultTimeout = 200 * time.Second

	// LogScope is the scope attached to the client's log events.
	LogScope = "http.client"

	tracerName = "github.com/veridia-health/veridia/internal/api"
)

// TokenProvider supplies bearer tokens.
//
// With forceRefresh false it may return a cached token without network I/O.
// With forceRefresh true it must try to obtain a fresh token. An empty token
// with a nil error means no authenticated session exists.
type TokenProvider interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context, forceRefresh bool) (string, error)

// Token calls f.
func (f TokenProviderFunc) Token(ctx context.Context, forceRefresh bool) (string, error) {
	return f(ctx, forceRefresh)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the absolute API base (required).
	BaseURL string

	// TokenProvider supplies bearer tokens (required).
	TokenProvider TokenProvider

	// Timeout bounds each attempt separately (default: 200s).
	Timeout time.Duration

	// HTTPClient performs requests. Its cookie jar, if any, is not used.
	HTTPClient *http.Client

	// Logger receives request lifecycle events (default: discard).
	Logger *log.Logger

	// Metrics records attempts and refreshes (optional).
	Metrics *Metrics

	// Tracer creates one span per call (default: the global provider).
	Tracer trace.Tracer
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if _, err := parseBaseURL(c.BaseURL); err != nil {
		return err
	}
	if c.TokenProvider == nil {
		return fmt.Errorf("token provider is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// Client executes authenticated calls against one API base URL. It is safe
// for concurrent use and holds no state that changes between calls.
type Client struct {
	baseURL *url.URL
	tokens  TokenProvider
	timeout time.Duration
	http    *http.Client
	logger  *log.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// New creates a Client bound to cfg.BaseURL and cfg.TokenProvider.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, _ := parseBaseURL(cfg.BaseURL)

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		copied.Jar = nil
		hc = &copied
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Client{
		baseURL: base,
		tokens:  cfg.TokenProvider,
		timeout: timeout,
		http:    hc,
		logger:  logger.Scoped(LogScope),
		metrics: cfg.Metrics,
		tracer:  tracer,
		now:     time.Now,
	}, nil
}

// BaseURL returns the normalized base URL, ending in a slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Timeout returns the per-attempt timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodGet, path, nil, opts))
}

// Post issues a POST request with body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodPost, path, body, opts))
}

// Put issues a PUT request with body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodPut, path, body, opts))
}

// Patch issues a PATCH request with body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodPatch, path, body, opts))
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodDelete, path, nil, opts))
}

func newRequest(method, path string, body any, opts []RequestOption) *Request {
	r := &Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// attemptState is the position in the single-retry state machine.
type attemptState int

const (
	firstAttempt attemptState = iota
	retryAfterRefresh
)

// call carries the per-call values shared by both attempts.
type call struct {
	req       *Request
	id        tracing.RequestID
	logPath   string
	targetURL string
	body      *encodedBody
}

func (c *call) fields(extra ...any) log.Fields {
	f := log.Fields{
		log.RequestIDKey: c.id.String(),
		log.MethodKey:    c.req.Method,
		log.PathKey:      c.logPath,
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if k, ok := extra[i].(string); ok {
			f[k] = extra[i+1]
		}
	}
	return f
}

func (c *call) fail(err *Error) *Error {
	err.RequestID = c.id.String()
	err.Method = c.req.Method
	err.Path = c.logPath
	return err
}

// Do executes req. A 401 on the first attempt triggers one forced token
// refresh and exactly one retry with the same request ID; no other failure
// is retried.
//
// Failures of the call are returned as *Error; a malformed req yields a
// plain error before any token is requested. A request ID already stored in
// ctx with tracing.ToContext is reused.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	cl := &call{
		req:     req,
		id:      tracing.FromContext(ctx),
		logPath: stripQuery(req.Path),
	}

	target, err := buildURL(c.baseURL, req.Path)
	if err != nil {
		return nil, err
	}
	cl.targetURL = target

	if cl.body, err = encodeBody(req.Body); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", cl.logPath),
			attribute.String("veridia.request_id", cl.id.String()),
		),
	)
	defer span.End()

	resp, apiErr := c.run(ctx, cl)
	if apiErr != nil {
		c.metrics.recordFailure(apiErr.Type)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, string(apiErr.Type))
		if apiErr.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", apiErr.StatusCode))
		}
		return nil, apiErr
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Int("veridia.attempts", resp.Attempts),
	)
	return resp, nil
}

func (c *Client) run(ctx context.Context, cl *call) (*Response, *Error) {
	started := c.now()
	token, err := c.tokens.Token(ctx, false)
	if err != nil || token == "" {
		data := cl.fields()
		if err != nil {
			data["error"] = err.Error()
		}
		c.logger.Log(ctx, log.LevelWarn, "no_token", data)
		return nil, cl.fail(&Error{Type: ErrorTypeNoAuthToken, Message: "no auth token available", Cause: err})
	}

	for state := firstAttempt; ; state = retryAfterRefresh {
		attempt := int(state) + 1

		res, apiErr := c.send(ctx, cl, token, attempt, started)
		if apiErr != nil {
			return nil, apiErr
		}

		if res.status == http.StatusUnauthorized && state == firstAttempt {
			c.logger.Log(ctx, log.LevelDebug, "unauthorized_retry",
				cl.fields(log.StatusKey, res.status, log.DurationKey, res.duration.Milliseconds(), log.AttemptKey, attempt))

			started = c.now()
			token, err = c.tokens.Token(ctx, true)
			if err != nil || token == "" {
				c.metrics.recordRefresh(false)
				data := cl.fields(log.AttemptKey, attempt)
				if err != nil {
					data["error"] = err.Error()
				}
				c.logger.Log(ctx, log.LevelWarn, "refresh_failed", data)
				return nil, cl.fail(&Error{
					Type:       ErrorTypeNoAuthTokenRefresh,
					StatusCode: res.status,
					Message:    "auth token refresh failed",
					Cause:      err,
				})
			}
			c.metrics.recordRefresh(true)
			continue
		}

		c.logger.Log(ctx, statusLevel(res.status), "response",
			cl.fields(log.StatusKey, res.status, log.DurationKey, res.duration.Milliseconds(), log.AttemptKey, attempt))

		return c.finish(cl, res, attempt)
	}
}

// attemptResult is the outcome of one network round trip that produced a
// response. duration runs from the attempt's token acquisition.
type attemptResult struct {
	status   int
	header   http.Header
	body     []byte
	readErr  error
	duration time.Duration
}

// send performs one attempt under its own timeout. The body is read before
// the timeout context is released so a slow body is also bounded. Logged
// durations are measured from since; the latency histogram covers the round
// trip only.
func (c *Client) send(ctx context.Context, cl *call, token string, attempt int, since time.Time) (*attemptResult, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body.data)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, cl.req.Method, cl.targetURL, body)
	if err != nil {
		return nil, cl.fail(&Error{Type: ErrorTypeNetwork, Message: "failed to create request", Cause: err})
	}

	if cl.body != nil {
		httpReq.Header.Set("Content-Type", cl.body.contentType)
	}
	for k, vs := range cl.req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	tracing.InjectIntoRequest(httpReq, cl.id)
	tracing.InjectHTTPHeaders(ctx, httpReq)

	c.logger.Log(ctx, log.LevelDebug, "request", cl.fields(log.AttemptKey, attempt))

	sent := c.now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.recordAttempt(cl.req.Method, 0, c.now().Sub(sent))
		errType := classifyTransportError(ctx, attemptCtx, err)
		c.logger.Log(ctx, log.LevelError, "network_error",
			cl.fields(log.DurationKey, c.now().Sub(since).Milliseconds(), log.AttemptKey, attempt, "message", err.Error()))
		return nil, cl.fail(&Error{Type: errType, Message: errorMessage(errType), Cause: err})
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.metrics.recordAttempt(cl.req.Method, 0, c.now().Sub(sent))
		errType := classifyTransportError(ctx, attemptCtx, readErr)
		c.logger.Log(ctx, log.LevelError, "network_error",
			cl.fields(log.StatusKey, resp.StatusCode, log.DurationKey, c.now().Sub(since).Milliseconds(), log.AttemptKey, attempt, "message", readErr.Error()))
		return nil, cl.fail(&Error{Type: errType, Message: "failed to read response body", Cause: readErr})
	}

	c.metrics.recordAttempt(cl.req.Method, resp.StatusCode, c.now().Sub(sent))

	return &attemptResult{
		status:   resp.StatusCode,
		header:   resp.Header,
		body:     data,
		readErr:  readErr,
		duration: c.now().Sub(since),
	}, nil
}

// finish turns the final attempt into a Response or an HTTP/decode error.
func (c *Client) finish(cl *call, res *attemptResult, attempts int) (*Response, *Error) {
	if res.status < 200 || res.status > 299 {
		text := ""
		if res.readErr == nil {
			text = string(res.body)
		}
		return nil, cl.fail(&Error{
			Type:       ErrorTypeHTTP,
			StatusCode: res.status,
			Message:    fmt.Sprintf("HTTP %d", res.status),
			Body:       text,
		})
	}

	resp, err := newResponse(res.status, res.header, res.body)
	if err != nil {
		return nil, cl.fail(&Error{Type: ErrorTypeDecode, Message: "invalid JSON response", Cause: err})
	}
	resp.RequestID = cl.id.String()
	resp.Attempts = attempts
	return resp, nil
}

// statusLevel maps a final status to the response log level.
func statusLevel(status int) log.Level {
	switch {
	case status >= 500:
		return log.LevelError
	case status >= 400:
		return log.LevelWarn
	default:
		return log.LevelInfo
	}
}
