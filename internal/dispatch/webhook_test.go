package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type testDispatchConfig struct {
	timeout time.Duration
}

func (c testDispatchConfig) GetDispatchWebhookTimeout() time.Duration { return c.timeout }
func (c testDispatchConfig) GetDispatchSweepInterval() time.Duration  { return time.Minute }
func (c testDispatchConfig) GetDispatchSweepBatchSize() int           { return 100 }
func (c testDispatchConfig) GetDispatchSweepConcurrency() int         { return 4 }
func (c testDispatchConfig) GetDispatchUserAgent() string             { return "lead-dispatch-test" }
func (c testDispatchConfig) GetPhoneDefaultRegion() string            { return "NL" }

func TestHTTPClientCallerSendsRequest(t *testing.T) {
	var gotBody, gotAgent, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotAgent = r.Header.Get("User-Agent")
		gotKey = r.Header.Get(HeaderIdempotencyKey)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(strings.Repeat("x", MaxResponseBodyBytes*2)))
	}))
	defer srv.Close()

	caller := NewHTTPClientCaller(testDispatchConfig{timeout: time.Second})
	resp, err := caller.Call(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{HeaderIdempotencyKey: "lead:trigger:dest"},
		Body:    []byte(`{"a":1}`),
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.Status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Status)
	}
	if len(resp.Body) != MaxResponseBodyBytes {
		t.Fatalf("expected body capped at %d bytes, got %d", MaxResponseBodyBytes, len(resp.Body))
	}
	if gotBody != `{"a":1}` || gotAgent != "lead-dispatch-test" || gotKey != "lead:trigger:dest" {
		t.Fatalf("unexpected request: body=%q agent=%q key=%q", gotBody, gotAgent, gotKey)
	}
}

func TestHTTPClientCallerDoesNotFollowRedirects(t *testing.T) {
	var followed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved" {
			followed = true
			return
		}
		http.Redirect(w, r, "/moved", http.StatusFound)
	}))
	defer srv.Close()

	resp, err := NewHTTPClientCaller(testDispatchConfig{timeout: time.Second}).Call(context.Background(), Request{Method: http.MethodPost, URL: srv.URL})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.Status != http.StatusFound || followed {
		t.Fatalf("expected the redirect itself, got %d followed=%v", resp.Status, followed)
	}
}

func TestHTTPClientCallerTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPClientCaller(testDispatchConfig{timeout: 50 * time.Millisecond}).Call(context.Background(), Request{Method: http.MethodPost, URL: srv.URL})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSign(t *testing.T) {
	sig := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	want := "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if sig != want {
		t.Fatalf("Sign = %s, want %s", sig, want)
	}
}
