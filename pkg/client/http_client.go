package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/troikatech/callbridge/pkg/circuitbreaker"
	"github.com/troikatech/callbridge/pkg/metrics"
	"github.com/troikatech/callbridge/pkg/retry"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// HTTPClient wraps http.Client with retry and circuit breaker
type HTTPClient struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	serviceName    string
}

// NewHTTPClient creates a new HTTP client with retry and circuit breaker
func NewHTTPClient(serviceName string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		circuitBreaker: circuitbreaker.New(serviceName, circuitbreaker.DefaultConfig()),
		retryConfig:    retry.DefaultConfig(),
		serviceName:    serviceName,
	}
}

// Do sends a request with retry and circuit breaker. body is JSON encoded
// when non-nil. For GET and HEAD, 5xx responses and transport errors are
// retried. Other methods are sent once: a 5xx or timeout may come after the
// server already acted, so resending could repeat the side effect. 4xx
// responses are returned as-is.
func (c *HTTPClient) Do(ctx context.Context, method, url string, body interface{}, headers map[string]string) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	start := time.Now()
	var resp *Response
	giveUp := func(err error) error { return err }
	if !idempotent(method) {
		giveUp = retry.Permanent
	}

	err := c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
			if err != nil {
				return retry.Permanent(err)
			}
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			httpResp, err := c.client.Do(req)
			if err != nil {
				return giveUp(err)
			}
			defer httpResp.Body.Close()

			data, err := io.ReadAll(httpResp.Body)
			if err != nil {
				return giveUp(err)
			}
			resp = &Response{StatusCode: httpResp.StatusCode, Body: data}

			if httpResp.StatusCode >= 500 {
				return giveUp(fmt.Errorf("server error: %d", httpResp.StatusCode))
			}
			return nil
		})
	})

	latency := time.Since(start)
	success := err == nil && resp != nil && resp.StatusCode < 400

	metrics.RecordServiceCall(c.serviceName, success, latency)
	metrics.UpdateCircuitBreaker(c.serviceName, c.circuitBreaker.GetState().String(), int64(c.circuitBreaker.Failures()))

	return resp, err
}

func idempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// Post performs a single POST attempt through the circuit breaker
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}, headers map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodPost, url, body, headers)
}

// Get performs a GET request with retry and circuit breaker
func (c *HTTPClient) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}
