package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/carenest/sessionguard"
	"github.com/carenest/sessionguard/idp/jwtidp"
	"github.com/carenest/sessionguard/internal/config"
	"github.com/carenest/sessionguard/metrics/export/prometheus"
	"github.com/carenest/sessionguard/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	idp, err := jwtidp.NewProvider(jwtidp.Config{
		SigningMethod: jwtidp.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		SessionTTL:    time.Hour,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("idp: %v", err)
	}
	m, err := sessionguard.New().
		WithStore(store.NewMemory()).
		WithIdentityProvider(idp).
		WithMetricsEnabled(true).
		WithLogger(log.New(io.Discard, "", 0)).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(m.Close)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	metrics, err := prometheus.NewCollector(m).Handler()
	if err != nil {
		t.Fatalf("metrics handler: %v", err)
	}
	srv := httptest.NewServer(newServer(m, idp, log.New(io.Discard, "", 0)).routes(metrics))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	if resp := do(t, http.MethodGet, srv.URL+"/protected", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("protected before sign-in: %d", resp.StatusCode)
	}

	resp := do(t, http.MethodPost, srv.URL+"/session", `{"user_id":"patient-4","role":"patient"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	var created sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.UserID != "patient-4" || !created.Renewable || created.SessionID == "" {
		t.Fatalf("unexpected session %+v", created)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/protected", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("protected after sign-in: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/session/activity", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("activity: %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, srv.URL+"/session/refresh", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: %d", resp.StatusCode)
	}
	var renewed sessionResponse
	_ = json.NewDecoder(resp.Body).Decode(&renewed)
	if renewed.SessionID != created.SessionID {
		t.Fatal("refresh replaced the session")
	}

	if resp := do(t, http.MethodDelete, srv.URL+"/session", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/session", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after sign-out: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/session/refresh", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after sign-out: %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "")
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("sessionguard_session_terminated_total 1")) {
		t.Fatalf("metrics missing termination count:\n%s", body)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)
	if resp := do(t, http.MethodPost, srv.URL+"/session", `{"user_id":"u","role":"wizard"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown role: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/session", `not json`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", resp.StatusCode)
	}
}

func TestOpenStoreBackends(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{name: "memory", cfg: config.Config{StoreBackend: config.BackendMemory}, want: "memory"},
		{name: "file", cfg: config.Config{StoreBackend: config.BackendFile, StorePath: filepath.Join(dir, "s.bin")}, want: "file"},
		{name: "miniredis", cfg: config.Config{StoreBackend: config.BackendMiniredis, MaxAge: time.Hour}, want: "redis"},
		{name: "sqlite", cfg: config.Config{StoreBackend: config.BackendSQLite, StorePath: filepath.Join(dir, "s.db")}, want: "sqlite"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st, closeFn, err := openStore(context.Background(), &tc.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer closeFn()
			if got := store.NameOf(st); got != tc.want {
				t.Fatalf("backend name = %q, want %q", got, tc.want)
			}
			if err := st.Save(context.Background(), []byte("blob")); err != nil {
				t.Fatalf("save: %v", err)
			}
		})
	}

	if _, _, err := openStore(context.Background(), &config.Config{StoreBackend: "etcd"}); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}
