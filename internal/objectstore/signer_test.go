package objectstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{URL: srv.URL, ServiceKey: "svc-key"}), srv
}

func TestSignURL(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody signRequest
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(signResponse{SignedURL: "/object/sign/research/proj/file.pdf?token=abc"})
	})

	url, err := c.SignURL(context.Background(), "research", "proj/file.pdf")
	if err != nil {
		t.Fatalf("SignURL: %v", err)
	}

	if gotPath != "/object/sign/research/proj/file.pdf" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer svc-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody.ExpiresIn != 600 {
		t.Errorf("expiresIn = %d, want 600", gotBody.ExpiresIn)
	}
	want := srv.URL + "/object/sign/research/proj/file.pdf?token=abc"
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
}

func TestSignURLAbsoluteResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(signResponse{SignedURL: "https://cdn.example.com/f.pdf?sig=x"})
	})

	url, err := c.SignURL(context.Background(), "lesson-plans", "exports/plan.pdf")
	if err != nil {
		t.Fatalf("SignURL: %v", err)
	}
	if url != "https://cdn.example.com/f.pdf?sig=x" {
		t.Errorf("url = %q", url)
	}
}

func TestSignURLEmptyURL(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(signResponse{SignedURL: ""})
	})

	if _, err := c.SignURL(context.Background(), "research", "x.pdf"); err == nil {
		t.Error("a success response with an empty URL must be an error")
	}
}

func TestSignURLStoreError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := c.SignURL(context.Background(), "research", "x.pdf"); err == nil {
		t.Error("expected error on store failure")
	}
}

func TestSignURLFixedTTL(t *testing.T) {
	if SignedURLTTL.Seconds() != 600 {
		t.Fatalf("signed URL TTL = %v, want 600s", SignedURLTTL)
	}
}
