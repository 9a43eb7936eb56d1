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

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize is the queue length that triggers an immediate flush.
	DefaultBatchSize = 10

	// DefaultFlushInterval is how often the queue is flushed regardless of size.
	DefaultFlushInterval = 3 * time.Second

	// DefaultRateLimit caps flush POSTs per second.
	DefaultRateLimit = 2.0

	// beaconTimeout bounds the final best-effort send on Close.
	beaconTimeout = 2 * time.Second
)

// HTTPTransportConfig configures the remote log transport.
type HTTPTransportConfig struct {
	// URL receives POSTed JSON arrays of events (required)
	URL string

	// Headers are added to every POST
	Headers map[string]string

	// BatchSize is the maximum number of events per POST (default: 10)
	BatchSize int

	// FlushInterval is the periodic flush interval (default: 3s)
	FlushInterval time.Duration

	// RateLimit caps flush POSTs per second. Zero disables limiting.
	RateLimit rate.Limit

	// HTTPClient sends the batches (default: 10s timeout client)
	HTTPClient *http.Client

	// Metrics records delivery outcomes (optional)
	Metrics *TransportMetrics
}

// Validate checks the configuration.
func (c *HTTPTransportConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size must be non-negative, got %d", c.BatchSize)
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("flush interval must be non-negative, got %v", c.FlushInterval)
	}
	return nil
}

// HTTPTransport batches events in memory and POSTs them to a remote sink.
// Delivery is best-effort: failed batches are dropped.
type HTTPTransport struct {
	url       string
	headers   map[string]string
	batchSize int
	client    *http.Client
	limiter   *rate.Limiter
	metrics   *TransportMetrics

	mu    sync.Mutex
	queue []*Event

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewHTTPTransport creates the transport and starts its flush timer.
// Callers must Close it at teardown.
func NewHTTPTransport(cfg HTTPTransportConfig) (*HTTPTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	interval := cfg.FlushInterval
	if interval == 0 {
		interval = DefaultFlushInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	t := &HTTPTransport{
		url:       cfg.URL,
		headers:   headers,
		batchSize: batchSize,
		client:    client,
		metrics:   cfg.Metrics,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		t.limiter = rate.NewLimiter(cfg.RateLimit, 1)
	}

	go t.run(interval)
	return t, nil
}

func (t *HTTPTransport) run(interval time.Duration) {
	defer close(t.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			_ = t.Flush(ctx)
			cancel()
		case <-t.stop:
			return
		}
	}
}

// Log enqueues evt and flushes once the queue reaches the batch size.
func (t *HTTPTransport) Log(ctx context.Context, evt *Event) error {
	t.mu.Lock()
	t.queue = append(t.queue, evt)
	full := len(t.queue) >= t.batchSize
	t.mu.Unlock()

	t.metrics.recordQueued()

	if full {
		return t.Flush(ctx)
	}
	return nil
}

// Flush removes up to one batch from the queue and POSTs it.
func (t *HTTPTransport) Flush(ctx context.Context) error {
	batch := t.take(t.batchSize)
	if len(batch) == 0 {
		return nil
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			t.metrics.recordBatch(len(batch), err)
			return fmt.Errorf("log flush rate limit wait: %w", err)
		}
	}

	err := t.post(ctx, batch)
	t.metrics.recordBatch(len(batch), err)
	return err
}

// Pending returns the number of queued events.
func (t *HTTPTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Close stops the flush timer and makes one best-effort attempt to deliver
// everything still queued. Delivery errors are ignored.
func (t *HTTPTransport) Close(ctx context.Context) error {
	t.closeOnce.Do(func() {
		close(t.stop)
		<-t.done

		residual := t.take(-1)
		if len(residual) == 0 {
			return
		}
		beaconCtx, cancel := context.WithTimeout(ctx, beaconTimeout)
		defer cancel()
		err := t.post(beaconCtx, residual)
		t.metrics.recordBatch(len(residual), err)
	})
	return nil
}

// take atomically removes up to n events from the head of the queue.
// n < 0 takes everything.
func (t *HTTPTransport) take(n int) []*Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n < 0 || n > len(t.queue) {
		n = len(t.queue)
	}
	if n == 0 {
		return nil
	}
	batch := make([]*Event, n)
	copy(batch, t.queue[:n])
	t.queue = append(t.queue[:0:0], t.queue[n:]...)
	return batch
}

func (t *HTTPTransport) post(ctx context.Context, batch []*Event) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode log batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build log request: %w", err)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send log batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("log sink returned HTTP %d", resp.StatusCode)
	}
	return nil
}
