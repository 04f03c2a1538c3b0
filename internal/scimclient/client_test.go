package scimclient

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

func TestCreateUpdateDeleteRoundTrip(t *testing.T) {
	var lastMethod, lastPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastMethod = r.Method
		lastPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			w.Write(body)
		case http.MethodPut:
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	d, err := New(srv.URL, TLSConfig{}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	out, err := d.Create(ctx, "Users", "id1", `{"userName":"a"}`)
	if err != nil || !out.Success || out.Status != http.StatusCreated {
		t.Fatalf("create failed: out=%+v err=%v", out, err)
	}
	if lastMethod != http.MethodPost || lastPath != "/Users" {
		t.Fatalf("unexpected request: %s %s", lastMethod, lastPath)
	}

	out, err = d.Update(ctx, "Users", "id1", `{"userName":"b"}`)
	if err != nil || !out.Success {
		t.Fatalf("update failed: out=%+v err=%v", out, err)
	}
	if lastMethod != http.MethodPut || lastPath != "/Users/id1" {
		t.Fatalf("unexpected request: %s %s", lastMethod, lastPath)
	}

	out, err = d.Delete(ctx, "Users", "id1")
	if err != nil || !out.Success || out.Status != http.StatusNoContent {
		t.Fatalf("delete failed: out=%+v err=%v", out, err)
	}
	if lastMethod != http.MethodDelete || lastPath != "/Users/id1" {
		t.Fatalf("unexpected request: %s %s", lastMethod, lastPath)
	}
}

func TestCreateReportsNonSuccessStatusWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	d, err := New(srv.URL, TLSConfig{}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Create(context.Background(), "Users", "id1", `{}`)
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if out.Success || out.Status != http.StatusConflict {
		t.Fatalf("expected a reported 409, got %+v", out)
	}
}

func TestPinnedPubKeyVerifierAcceptsMatchingKey(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cert := srv.Certificate()
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	pin := base64.StdEncoding.EncodeToString(sum[:])

	verify := pinnedPubKeyVerifier(pin)
	if err := verify([][]byte{cert.Raw}, nil); err != nil {
		t.Fatalf("expected matching pin to verify, got %v", err)
	}
}

func TestPinnedPubKeyVerifierRejectsMismatchedKey(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	verify := pinnedPubKeyVerifier("not-the-right-pin")
	if err := verify([][]byte{srv.Certificate().Raw}, nil); err == nil {
		t.Fatal("expected mismatched pin to fail verification")
	}
}

func TestRateLimiterConfiguredWhenRPSPositive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, err := New(srv.URL, TLSConfig{}, rate.Limit(1000), 1)
	if err != nil {
		t.Fatal(err)
	}
	if d.limiter == nil {
		t.Fatal("expected a limiter to be configured when rps > 0")
	}
}
