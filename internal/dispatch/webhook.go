package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"lead_dispatch_backend/platform/config"
)

// Request is one outbound webhook call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is what the executor needs from a webhook reply.
type Response struct {
	Status int
	Body   string
}

// HTTPCaller performs webhook calls. Implementations must honour ctx.
type HTTPCaller interface {
	Call(ctx context.Context, req Request) (Response, error)
}

const defaultWebhookTimeout = 30 * time.Second

// HTTPClientCaller is the net/http HTTPCaller. Redirects are returned, not followed.
type HTTPClientCaller struct {
	http      *http.Client
	userAgent string
}

// NewHTTPClientCaller builds a caller bounded by the configured webhook timeout.
func NewHTTPClientCaller(cfg config.DispatchConfig) *HTTPClientCaller {
	timeout := cfg.GetDispatchWebhookTimeout()
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &HTTPClientCaller{
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: cfg.GetDispatchUserAgent(),
	}
}

// Call sends req and reads at most MaxResponseBodyBytes of the reply.
func (c *HTTPClientCaller) Call(ctx context.Context, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, fmt.Errorf("build webhook request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if c.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodyBytes))
	if err != nil {
		return Response{Status: resp.StatusCode}, fmt.Errorf("read webhook response: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return Response{Status: resp.StatusCode, Body: string(body)}, nil
}

// Sign returns the X-Signature-256 value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func isDelivered(status int) bool {
	return status >= http.StatusOK && status < http.StatusBadRequest
}
