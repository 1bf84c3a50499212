//go:build integration

package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestLivez(t *testing.T) {
	resp := doGet(t, "/livez")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	body := decodeJSON[healthResponse](t, resp)
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
	if got := body.Checks["goroutines"]; got != "ok" {
		t.Errorf("goroutines liveness check: got %q, want ok", got)
	}
}

func TestReadyz(t *testing.T) {
	resp := doGet(t, "/readyz")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[healthResponse](t, resp)
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
	// Readiness is gated on the database the storefront serves from.
	if got := body.Checks["postgres"]; got != "ok" {
		t.Errorf("postgres readiness check: got %q, want ok", got)
	}
	if _, ok := body.Checks["_gate"]; ok {
		t.Error("readiness gate reported closed on a serving instance")
	}
}
