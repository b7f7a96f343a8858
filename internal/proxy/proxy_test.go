package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/photolala/photolala-access/internal/access"
	"github.com/photolala/photolala-access/internal/broker"
	"github.com/photolala/photolala-access/internal/capability"
)

// fakeRunner hands out tokens in order and retries a rejected operation once.
type fakeRunner struct {
	tokens []string
	err    error
}

func (f *fakeRunner) WithToken(ctx context.Context, scope string, op access.TokenOperation) error {
	if f.err != nil {
		return f.err
	}

	err := op(ctx, broker.Credential{Scope: scope, Token: f.tokens[0]})
	if !errors.Is(err, capability.ErrCredentialRejected) || len(f.tokens) < 2 {
		return err
	}

	err = op(ctx, broker.Credential{Scope: scope, Token: f.tokens[1]})
	if errors.Is(err, capability.ErrCredentialRejected) {
		return fmt.Errorf("%w: renewed credential rejected", capability.ErrPermanentAuth)
	}
	return err
}

// upstream records requests and rejects the listed bearer tokens.
type upstream struct {
	mu     sync.Mutex
	reject map[string]bool
	auth   []string
	bodies []string
	paths  []string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	u.mu.Lock()
	defer u.mu.Unlock()

	a := r.Header.Get("Authorization")
	u.auth = append(u.auth, a)
	u.bodies = append(u.bodies, string(body))
	u.paths = append(u.paths, r.URL.Path)

	if u.reject[a] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"albums":[]}`))
}

func (u *upstream) snapshot() (auth, bodies, paths []string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	return append([]string(nil), u.auth...), append([]string(nil), u.bodies...), append([]string(nil), u.paths...)
}

func newGateway(t *testing.T, runner TokenRunner, up *upstream) *httptest.Server {
	t.Helper()

	backend := httptest.NewServer(up)
	t.Cleanup(backend.Close)

	p, err := New(runner, "photos.readonly", backend.URL+"/v1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	gw := httptest.NewServer(p)
	t.Cleanup(gw.Close)

	return gw
}

func TestGateway_AttachesCredential(t *testing.T) {
	up := &upstream{}
	gw := newGateway(t, &fakeRunner{tokens: []string{"tok-1"}}, up)

	req, _ := http.NewRequest(http.MethodGet, gw.URL+"/albums?pageSize=5", nil)
	req.Header.Set("Authorization", "Bearer caller-supplied")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	auth, _, paths := up.snapshot()
	if len(auth) != 1 || auth[0] != "Bearer tok-1" {
		t.Fatalf("upstream Authorization = %v, want [Bearer tok-1]", auth)
	}
	if paths[0] != "/v1/albums" {
		t.Errorf("upstream path = %q, want /v1/albums", paths[0])
	}
}

func TestGateway_RejectedCredentialIsRenewedAndBodyReplayed(t *testing.T) {
	up := &upstream{reject: map[string]bool{"Bearer stale": true}}
	gw := newGateway(t, &fakeRunner{tokens: []string{"stale", "fresh"}}, up)

	payload := `{"albumId":"a1","pageSize":10}`
	resp, err := http.Post(gw.URL+"/mediaItems:search", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	auth, bodies, _ := up.snapshot()
	if len(auth) != 2 || auth[1] != "Bearer fresh" {
		t.Fatalf("upstream Authorization = %v, want second attempt with fresh token", auth)
	}
	for i, b := range bodies {
		if b != payload {
			t.Errorf("attempt %d body = %q, want %q", i, b, payload)
		}
	}
}

func TestGateway_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		runner     TokenRunner
		reject     map[string]bool
		wantStatus int
		wantRPC    string
	}{
		{
			name:       "signed out",
			runner:     &fakeRunner{err: fmt.Errorf("acquire: %w", capability.ErrNoIdentity)},
			wantStatus: http.StatusUnauthorized,
			wantRPC:    "UNAUTHENTICATED",
		},
		{
			name:       "rejected twice",
			runner:     &fakeRunner{tokens: []string{"a", "b"}},
			reject:     map[string]bool{"Bearer a": true, "Bearer b": true},
			wantStatus: http.StatusForbidden,
			wantRPC:    "PERMISSION_DENIED",
		},
		{
			name:       "transient",
			runner:     &fakeRunner{err: capability.ErrTransientAuth},
			wantStatus: http.StatusBadGateway,
			wantRPC:    "UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &upstream{reject: tt.reject}
			gw := newGateway(t, tt.runner, up)

			resp, err := http.Get(gw.URL + "/albums")
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var body ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if body.Error.Status != tt.wantRPC {
				t.Errorf("rpc status = %q, want %q", body.Error.Status, tt.wantRPC)
			}
		})
	}
}

func TestLoopbackOnly(t *testing.T) {
	h := LoopbackOnly(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		remote string
		want   int
	}{
		{remote: "127.0.0.1:5000", want: http.StatusNoContent},
		{remote: "[::1]:5000", want: http.StatusNoContent},
		{remote: "192.0.2.10:5000", want: http.StatusForbidden},
		{remote: "garbage", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/albums", nil)
		req.RemoteAddr = tt.remote
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("remote %s: status = %d, want %d", tt.remote, rec.Code, tt.want)
		}
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartShutdown(t *testing.T) {
	p, err := New(&fakeRunner{tokens: []string{"t"}}, "photos.readonly", "https://photoslibrary.googleapis.com/v1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh, err := p.Start(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.Addr() == "" {
		t.Error("Addr is empty after Start")
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err, ok := <-errCh; ok && err != nil {
		t.Errorf("runtime error: %v", err)
	}
}

func TestNew_InvalidUpstream(t *testing.T) {
	if _, err := New(&fakeRunner{}, "s", "not-a-url"); err == nil {
		t.Error("expected error for relative upstream URL")
	}
	if _, err := New(nil, "s", "https://example.com"); err == nil {
		t.Error("expected error for missing runner")
	}
}
