package jwtidp

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/carenest/sessionguard"
	"github.com/carenest/sessionguard/permission"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrTokenInvalid is returned for tokens that fail parsing or validation.
	ErrTokenInvalid = errors.New("refresh token invalid")
	// ErrTokenReused is returned when a rotated-out token is presented again.
	ErrTokenReused = errors.New("refresh token already used")
)

// Config configures a Provider.
type Config struct {
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for HS256, or an Ed25519 private key
	// (raw or PEM) for Ed25519.
	PrivateKey []byte
	// PublicKey is the Ed25519 verification key (raw or PEM). When empty it is
	// derived from PrivateKey.
	PublicKey []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration

	// SessionTTL is how far past now a renewal moves the session expiry.
	SessionTTL time.Duration
	// TokenTTL bounds how long an issued refresh token stays usable.
	TokenTTL time.Duration

	// Policy, when set, derives the renewed permission set from the role and
	// grants carried in the token.
	Policy *permission.Policy

	// Now overrides the time source. Defaults to time.Now.
	Now func() time.Time
}

// RefreshClaims is the payload of an issued refresh token.
type RefreshClaims struct {
	UID    string   `json:"uid"`
	Role   string   `json:"role"`
	Grants []string `json:"grants,omitempty"`
	jwt.RegisteredClaims
}

// Provider issues and renews refresh tokens. It is safe for concurrent use.
type Provider struct {
	config    Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any

	mu   sync.Mutex
	used map[string]time.Time // jti -> token expiry
}

var _ sessionguard.IdentityProvider = (*Provider)(nil)

// NewProvider validates cfg and loads the keys.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("invalid SessionTTL configuration")
	}
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("invalid TokenTTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	p := &Provider{
		config: cfg,
		used:   make(map[string]time.Time),
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		p.method = jwt.SigningMethodHS256
		p.signKey = cfg.PrivateKey
		p.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		pub := priv.Public().(ed25519.PublicKey)
		if len(cfg.PublicKey) > 0 {
			if pub, err = parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		p.method = jwt.SigningMethodEdDSA
		p.signKey = priv
		p.verifyKey = pub
	default:
		return nil, errors.New("unsupported signing method")
	}
	return p, nil
}

// Issue signs a refresh token for a user. Pass the result as
// IdentityClaims.RefreshToken when creating the session.
func (p *Provider) Issue(userID string, role sessionguard.Role, grants []string) (string, error) {
	if userID == "" {
		return "", errors.New("user id required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := p.config.Now()
	claims := RefreshClaims{
		UID:    userID,
		Role:   string(role),
		Grants: permission.Normalize(grants),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    p.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.config.TokenTTL)),
		},
	}
	if p.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{p.config.Audience}
	}
	return jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
}

// Parse verifies signature, algorithm, issuer, audience and time claims.
func (p *Provider) Parse(token string) (*RefreshClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithTimeFunc(p.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if p.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(p.config.Leeway))
	}
	if p.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(p.config.Issuer))
	}
	if p.config.Audience != "" {
		options = append(options, jwt.WithAudience(p.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &RefreshClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != p.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return p.verifyKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*RefreshClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.ID == "" || claims.UID == "" {
		return nil, fmt.Errorf("%w: missing jti or uid", ErrTokenInvalid)
	}
	if !sessionguard.Role(claims.Role).Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}

// Renew implements sessionguard.IdentityProvider. The presented token is
// consumed: a second Renew with it fails with ErrTokenReused.
func (p *Provider) Renew(ctx context.Context, refreshToken string) (sessionguard.Renewal, error) {
	if err := ctx.Err(); err != nil {
		return sessionguard.Renewal{}, err
	}
	claims, err := p.Parse(refreshToken)
	if err != nil {
		return sessionguard.Renewal{}, err
	}
	if err := p.consume(claims); err != nil {
		return sessionguard.Renewal{}, err
	}

	role := sessionguard.Role(claims.Role)
	next, err := p.Issue(claims.UID, role, claims.Grants)
	if err != nil {
		return sessionguard.Renewal{}, err
	}

	ren := sessionguard.Renewal{
		ExpiresAt:    p.config.Now().Add(p.config.SessionTTL),
		Role:         role,
		RefreshToken: next,
	}
	if p.config.Policy != nil {
		perms, err := p.config.Policy.Derive(claims.Role, claims.Grants)
		if err != nil {
			return sessionguard.Renewal{}, err
		}
		ren.Permissions = perms
	}
	return ren, nil
}

func (p *Provider) consume(claims *RefreshClaims) error {
	now := p.config.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	for jti, exp := range p.used {
		if !exp.After(now) {
			delete(p.used, jti)
		}
	}
	if _, seen := p.used[claims.ID]; seen {
		return ErrTokenReused
	}
	p.used[claims.ID] = claims.ExpiresAt.Time
	return nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
