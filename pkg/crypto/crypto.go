// Package crypto holds the primitives the pipeline depends on: PBKDF2-SHA256
// key derivation, AES-256-GCM and a CSPRNG, behind small interfaces so the
// pipeline can be exercised with deterministic sources in tests.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"sonopix/pkg/models"
)

const (
	// SaltSize is the length of the random PBKDF2 salt.
	SaltSize = 16
	// NonceSize is the length of the AES-GCM nonce.
	NonceSize = 12
	// KeySize is the length of a derived AES-256 key.
	KeySize = 32
	// TagSize is the length of the GCM authentication tag.
	TagSize = 16
	// DefaultIterations is the PBKDF2 work factor.
	DefaultIterations = 100_000
)

// KeyDeriver turns a passphrase and salt into an AES-256-GCM key.
type KeyDeriver interface {
	DeriveKey(passphrase, salt []byte) (*Key, error)
}

// AEAD seals and opens messages under a derived key. The output of Seal is
// ciphertext followed by the tag and is otherwise opaque.
type AEAD interface {
	Seal(key *Key, nonce, plaintext []byte) ([]byte, error)
	Open(key *Key, nonce, sealed []byte) ([]byte, error)
}

// RandomSource yields cryptographically secure random bytes.
type RandomSource interface {
	io.Reader
}

// Provider bundles everything the pipeline needs.
type Provider interface {
	KeyDeriver
	AEAD
	Random() RandomSource
}

// Key is derived key material. Its bytes never leave this package.
type Key struct {
	material []byte
}

// Destroy zeroes the key. A destroyed key can no longer seal or open.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	SecureZero(k.material)
	k.material = nil
}

func (k *Key) usable() bool {
	return k != nil && len(k.material) == KeySize
}

// PBKDF2 derives keys with PBKDF2-HMAC-SHA256.
type PBKDF2 struct {
	Iterations int
}

// NewPBKDF2 returns a deriver using DefaultIterations.
func NewPBKDF2() *PBKDF2 {
	return &PBKDF2{Iterations: DefaultIterations}
}

func (p *PBKDF2) DeriveKey(passphrase, salt []byte) (*Key, error) {
	if len(salt) != SaltSize {
		return nil, models.NewError(models.ErrCodeEncryptionFailed,
			fmt.Sprintf("salt must be %d bytes, got %d", SaltSize, len(salt)), nil)
	}
	iterations := p.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Key{material: pbkdf2.Key(passphrase, salt, iterations, KeySize, sha256.New)}, nil
}

// AES256GCM implements AEAD with AES-256 in GCM mode.
type AES256GCM struct{}

func (AES256GCM) Seal(key *Key, nonce, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key, nonce, models.ErrCodeEncryptionFailed)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

// Open verifies the tag and decrypts. Every failure is reported as the same
// generic decryption error.
func (AES256GCM) Open(key *Key, nonce, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key, nonce, models.ErrCodeDecryptionFailed)
	if err != nil {
		return nil, models.NewDecryptionError()
	}
	if len(sealed) < gcm.Overhead() {
		return nil, models.NewDecryptionError()
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, models.NewDecryptionError()
	}
	return plaintext, nil
}

func newGCM(key *Key, nonce []byte, code string) (cipher.AEAD, error) {
	if !key.usable() {
		return nil, models.NewError(code, "key is not usable", nil)
	}
	if len(nonce) != NonceSize {
		return nil, models.NewError(code, fmt.Sprintf("nonce must be %d bytes, got %d", NonceSize, len(nonce)), nil)
	}
	block, err := aes.NewCipher(key.material)
	if err != nil {
		return nil, models.NewError(code, "failed to create AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, models.NewError(code, "failed to create GCM mode", err)
	}
	return gcm, nil
}

// SystemRandom reads from crypto/rand.
type SystemRandom struct{}

func (SystemRandom) Read(p []byte) (int, error) {
	return rand.Read(p)
}

// RandomBytes returns n bytes read in full from src.
func RandomBytes(src RandomSource, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(src, b); err != nil {
		return nil, models.NewError(models.ErrCodeEncryptionFailed, "failed to generate random bytes", err)
	}
	return b, nil
}

// DefaultProvider is PBKDF2-SHA256, AES-256-GCM and crypto/rand.
type DefaultProvider struct {
	*PBKDF2
	AES256GCM
	rng RandomSource
}

// NewDefaultProvider returns the production provider.
func NewDefaultProvider() *DefaultProvider {
	return &DefaultProvider{PBKDF2: NewPBKDF2(), rng: SystemRandom{}}
}

// NewProvider builds a provider with a custom iteration count and random
// source. A nil source means crypto/rand.
func NewProvider(iterations int, rng RandomSource) *DefaultProvider {
	if rng == nil {
		rng = SystemRandom{}
	}
	return &DefaultProvider{PBKDF2: &PBKDF2{Iterations: iterations}, rng: rng}
}

func (d *DefaultProvider) Random() RandomSource {
	return d.rng
}
