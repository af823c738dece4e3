package jwtidp_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/carenest/sessionguard"
	"github.com/carenest/sessionguard/clock/clocktest"
	"github.com/carenest/sessionguard/idp/jwtidp"
	"github.com/carenest/sessionguard/permission"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const secret = "0123456789abcdef0123456789abcdef"

func newHS(t *testing.T, clk *clocktest.Fake, mutate func(*jwtidp.Config)) *jwtidp.Provider {
	t.Helper()
	cfg := jwtidp.Config{
		SigningMethod: jwtidp.MethodHS256,
		PrivateKey:    []byte(secret),
		Issuer:        "clinic",
		Audience:      "portal",
		SessionTTL:    time.Hour,
		TokenTTL:      24 * time.Hour,
		Now:           clk.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := jwtidp.NewProvider(cfg)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestRenewRotatesToken(t *testing.T) {
	clk := clocktest.New(start)
	p := newHS(t, clk, nil)

	token, err := p.Issue("patient-3", sessionguard.RolePatient, []string{"groups:join"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clk.Advance(10 * time.Minute)
	ren, err := p.Renew(context.Background(), token)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !ren.ExpiresAt.Equal(start.Add(70 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", ren.ExpiresAt)
	}
	if ren.Role != sessionguard.RolePatient || ren.RefreshToken == "" || ren.RefreshToken == token {
		t.Fatalf("unexpected renewal %+v", ren)
	}
	if ren.Permissions != nil {
		t.Fatal("permissions should be left to the manager without a policy")
	}

	claims, err := p.Parse(ren.RefreshToken)
	if err != nil {
		t.Fatalf("parse rotated token: %v", err)
	}
	if claims.UID != "patient-3" || !slices.Equal(claims.Grants, []string{"groups:join"}) {
		t.Fatalf("rotated token lost claims: %+v", claims)
	}

	if _, err := p.Renew(context.Background(), token); !errors.Is(err, jwtidp.ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused, got %v", err)
	}
	if _, err := p.Renew(context.Background(), ren.RefreshToken); err != nil {
		t.Fatalf("rotated token should renew: %v", err)
	}
}

func TestRenewDerivesPermissionsFromPolicy(t *testing.T) {
	policy, err := permission.NewPolicyFromMap(permission.DefaultRoleCapabilities())
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	clk := clocktest.New(start)
	p := newHS(t, clk, func(c *jwtidp.Config) { c.Policy = policy })

	token, _ := p.Issue("dr-7", sessionguard.RoleProvider, []string{"research:read"})
	ren, err := p.Renew(context.Background(), token)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !slices.Contains(ren.Permissions, "notes:write") || !slices.Contains(ren.Permissions, "research:read") {
		t.Fatalf("unexpected permissions %v", ren.Permissions)
	}
}

func TestParseRejects(t *testing.T) {
	clk := clocktest.New(start)
	p := newHS(t, clk, nil)
	valid, _ := p.Issue("u", sessionguard.RoleSupport, nil)

	other := newHS(t, clk, func(c *jwtidp.Config) { c.Issuer = "elsewhere" })
	foreignIssuer, _ := other.Issue("u", sessionguard.RoleSupport, nil)

	wrongKey := newHS(t, clk, func(c *jwtidp.Config) { c.PrivateKey = []byte("ffffffffffffffffffffffffffffffff") })
	forged, _ := wrongKey.Issue("u", sessionguard.RoleAdmin, nil)

	none := gjwt.NewWithClaims(gjwt.SigningMethodNone, jwtidp.RefreshClaims{UID: "u", Role: "admin"})
	unsigned, _ := none.SignedString(gjwt.UnsafeAllowNoneSignatureType)

	tampered := []byte(valid)
	i := strings.LastIndex(valid, ".") + 4
	if tampered[i] == 'A' {
		tampered[i] = 'B'
	} else {
		tampered[i] = 'A'
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "tampered", token: string(tampered)},
		{name: "foreign issuer", token: foreignIssuer},
		{name: "wrong key", token: forged},
		{name: "alg none", token: unsigned},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.Parse(tc.token); !errors.Is(err, jwtidp.ErrTokenInvalid) {
				t.Fatalf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	clk := clocktest.New(start)
	p := newHS(t, clk, func(c *jwtidp.Config) { c.TokenTTL = time.Hour })
	token, _ := p.Issue("u", sessionguard.RolePatient, nil)

	clk.Advance(2 * time.Hour)
	if _, err := p.Renew(context.Background(), token); !errors.Is(err, jwtidp.ErrTokenInvalid) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestRenewHonorsCanceledContext(t *testing.T) {
	p := newHS(t, clocktest.New(start), nil)
	token, _ := p.Issue("u", sessionguard.RolePatient, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Renew(ctx, token); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// the token was not consumed
	if _, err := p.Renew(context.Background(), token); err != nil {
		t.Fatalf("renew after canceled attempt: %v", err)
	}
}

func TestEd25519(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	clk := clocktest.New(start)
	p, err := jwtidp.NewProvider(jwtidp.Config{
		SigningMethod: jwtidp.MethodEd25519,
		PrivateKey:    priv,
		SessionTTL:    time.Hour,
		TokenTTL:      time.Hour,
		Now:           clk.Now,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	token, err := p.Issue("u", sessionguard.RoleAdmin, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := p.Renew(context.Background(), token); err != nil {
		t.Fatalf("renew: %v", err)
	}

	hs := newHS(t, clk, nil)
	hsToken, _ := hs.Issue("u", sessionguard.RoleAdmin, nil)
	if _, err := p.Parse(hsToken); err == nil {
		t.Fatal("expected algorithm confusion to be rejected")
	}
}

func TestNewProviderValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  jwtidp.Config
	}{
		{name: "no ttl", cfg: jwtidp.Config{SigningMethod: jwtidp.MethodHS256, PrivateKey: []byte(secret), TokenTTL: time.Hour}},
		{name: "short secret", cfg: jwtidp.Config{SigningMethod: jwtidp.MethodHS256, PrivateKey: []byte("short"), SessionTTL: time.Hour, TokenTTL: time.Hour}},
		{name: "bad ed key", cfg: jwtidp.Config{SigningMethod: jwtidp.MethodEd25519, PrivateKey: []byte("nope"), SessionTTL: time.Hour, TokenTTL: time.Hour}},
		{name: "unknown method", cfg: jwtidp.Config{SigningMethod: "rs256", PrivateKey: []byte(secret), SessionTTL: time.Hour, TokenTTL: time.Hour}},
		{name: "leeway", cfg: jwtidp.Config{SigningMethod: jwtidp.MethodHS256, PrivateKey: []byte(secret), SessionTTL: time.Hour, TokenTTL: time.Hour, Leeway: time.Hour}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := jwtidp.NewProvider(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestManagerRefreshThroughProvider(t *testing.T) {
	clk := clocktest.New(start)
	p := newHS(t, clk, nil)

	cfg := sessionguard.DefaultConfig()
	cfg.Session.MaxAge = time.Hour
	cfg.Session.IdleTimeout = 2 * time.Hour
	m, err := sessionguard.New().
		WithConfig(cfg).
		WithClock(clk).
		WithIdentityProvider(p).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer m.Close()
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	token, _ := p.Issue("patient-3", sessionguard.RolePatient, nil)
	if _, err := m.CreateSession(context.Background(), sessionguard.IdentityClaims{
		UserID:       "patient-3",
		Role:         sessionguard.RolePatient,
		RefreshToken: token,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	info, err := m.RefreshSession(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !info.ExpiresAt.Equal(start.Add(time.Hour)) || !info.HasRefreshToken {
		t.Fatalf("unexpected renewed session %+v", info)
	}
	if _, err := p.Renew(context.Background(), token); !errors.Is(err, jwtidp.ErrTokenReused) {
		t.Fatal("manager did not present the original token")
	}
}
