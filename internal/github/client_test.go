package github

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	client, err := NewClient(ctx, "test-token")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Client == nil {
		t.Error("expected client to be initialized with explicit token")
	}

	// No token: still initializes, just unauthenticated.
	client, err = NewClient(ctx, "")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Client == nil {
		t.Error("expected client to be initialized without token")
	}
}

func TestNewClient_NilContextReturnsError(t *testing.T) {
	var nilCtx context.Context
	_, err := NewClient(nilCtx, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "ctx is nil") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewClient_WithBaseURL(t *testing.T) {
	c, err := NewClient(context.Background(), "", WithBaseURL("https://ghe.example.com/api/v3/"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if got := c.Client.BaseURL.String(); got != "https://ghe.example.com/api/v3/" {
		t.Fatalf("BaseURL = %q", got)
	}

	if _, err := NewClient(context.Background(), "", WithBaseURL("://bad")); err == nil {
		t.Fatal("expected error for malformed base URL")
	}
}

func TestNewClient_VerboseLoggingAndAuthHeader(t *testing.T) {
	ctx := context.Background()

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	c, err := NewClient(ctx, "test-token", WithVerbose(true, &buf), WithBaseURL(server.URL+"/"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	req, err := c.Client.NewRequest("GET", "rate_limit", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := c.Client.Do(ctx, req, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if !strings.Contains(buf.String(), "github api: GET") {
		t.Fatalf("expected verbose request log, got: %q", buf.String())
	}
	if !strings.Contains(gotAuth, "test-token") {
		t.Fatalf("expected Authorization header to carry the token, got %q", gotAuth)
	}
}

func TestNewClient_ConditionalRequestCaching(t *testing.T) {
	ctx := context.Background()

	var conditional int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional++
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(ctx, "", WithBaseURL(server.URL+"/"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		req, err := c.Client.NewRequest("GET", "rate_limit", nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		if _, err := c.Client.Do(ctx, req, nil); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}

	if conditional != 1 {
		t.Fatalf("expected the second request to revalidate via If-None-Match, got %d conditional requests", conditional)
	}
}
