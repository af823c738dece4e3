package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrEncryptionUnavailable is returned when no key has been initialized.
var ErrEncryptionUnavailable = errors.New("encryption unavailable")

// ErrIntegrity is returned when a sealed blob fails authentication.
var ErrIntegrity = errors.New("sealed blob integrity check failed")

const (
	// AlgorithmXChaCha20Poly1305 seals with XChaCha20-Poly1305 (24-byte nonce).
	AlgorithmXChaCha20Poly1305 = "xchacha20poly1305"
	// AlgorithmAES256GCM seals with AES-256-GCM (12-byte nonce).
	AlgorithmAES256GCM = "aes-256-gcm"

	keySize = 32
)

// Config selects the AEAD construction and the randomness source.
type Config struct {
	Algorithm string
	// Rand defaults to crypto/rand.Reader. Tests substitute failing readers
	// to exercise the degraded mode.
	Rand io.Reader
}

// Provider seals and unseals byte slices with a process-lifetime key.
//
// The AEAD is read-only after Initialize succeeds and is shared by concurrent
// Seal/Unseal calls without further locking.
type Provider struct {
	algorithm string
	rand      io.Reader

	mu   sync.Mutex
	aead cipher.AEAD
}

// NewProvider returns an uninitialized provider. An unknown algorithm is
// reported by Initialize, which leaves the provider degraded.
func NewProvider(cfg Config) *Provider {
	alg := cfg.Algorithm
	if alg == "" {
		alg = AlgorithmXChaCha20Poly1305
	}
	r := cfg.Rand
	if r == nil {
		r = rand.Reader
	}
	return &Provider{algorithm: alg, rand: r}
}

// Initialize generates a fresh key. It is a no-op once a key exists. On
// failure the provider stays unavailable and the returned error wraps
// ErrEncryptionUnavailable; a later Initialize call retries.
func (p *Provider) Initialize() error {
	if p == nil {
		return ErrEncryptionUnavailable
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.aead != nil {
		return nil
	}

	key := make([]byte, keySize)
	defer clear(key)
	if _, err := io.ReadFull(p.rand, key); err != nil {
		return fmt.Errorf("%w: key generation: %v", ErrEncryptionUnavailable, err)
	}

	aead, err := newAEAD(p.algorithm, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncryptionUnavailable, err)
	}
	p.aead = aead
	return nil
}

func newAEAD(algorithm string, key []byte) (cipher.AEAD, error) {
	switch algorithm {
	case AlgorithmXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	case AlgorithmAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}

// Available reports whether a key is installed.
func (p *Provider) Available() bool {
	return p.current() != nil
}

// Algorithm returns the configured AEAD name.
func (p *Provider) Algorithm() string {
	if p == nil {
		return ""
	}
	return p.algorithm
}

func (p *Provider) current() cipher.AEAD {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aead
}

// Seal encrypts and authenticates plaintext. The output is
// nonce‖ciphertext‖tag.
func (p *Provider) Seal(plaintext []byte) ([]byte, error) {
	aead := p.current()
	if aead == nil {
		return nil, ErrEncryptionUnavailable
	}

	nonceSize := aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(p.rand, out); err != nil {
		return nil, fmt.Errorf("%w: nonce generation: %v", ErrEncryptionUnavailable, err)
	}

	return aead.Seal(out, out[:nonceSize], plaintext, nil), nil
}

// Unseal authenticates and decrypts a blob produced by Seal.
func (p *Provider) Unseal(blob []byte) ([]byte, error) {
	aead := p.current()
	if aead == nil {
		return nil, ErrEncryptionUnavailable
	}

	nonceSize := aead.NonceSize()
	if len(blob) < nonceSize+aead.Overhead() {
		return nil, ErrIntegrity
	}

	plaintext, err := aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
