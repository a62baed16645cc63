package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonopix/pkg/models"
)

func testSalt() []byte {
	salt := make([]byte, SaltSize)
	for i := range salt {
		salt[i] = byte(i)
	}
	return salt
}

func TestPBKDF2_KnownVector(t *testing.T) {
	key, err := NewPBKDF2().DeriveKey([]byte("abcd1234!@#$"), testSalt())
	require.NoError(t, err)
	assert.Equal(t, "418c9aeaed49b32d780dc1bed50fbe857af3c19d95285e5b6308fb1ae64616ba", hex.EncodeToString(key.material))
}

func TestPBKDF2_RejectsBadSalt(t *testing.T) {
	_, err := NewPBKDF2().DeriveKey([]byte("abcd1234!@#$"), []byte("short"))
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeEncryptionFailed))
}

func TestAES256GCM_SealOpen(t *testing.T) {
	kdf := &PBKDF2{Iterations: 1000}
	key, err := kdf.DeriveKey([]byte("abcd1234!@#$"), testSalt())
	require.NoError(t, err)

	nonce := bytes.Repeat([]byte{7}, NonceSize)
	plaintext := []byte("a quiet little payload")

	sealed, err := AES256GCM{}.Seal(key, nonce, plaintext)
	require.NoError(t, err)
	assert.Len(t, sealed, len(plaintext)+TagSize)

	opened, err := AES256GCM{}.Open(key, nonce, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestAES256GCM_OpenFailuresAreGeneric(t *testing.T) {
	kdf := &PBKDF2{Iterations: 1000}
	key, err := kdf.DeriveKey([]byte("abcd1234!@#$"), testSalt())
	require.NoError(t, err)
	other, err := kdf.DeriveKey([]byte("wxyz1234!@#$"), testSalt())
	require.NoError(t, err)

	nonce := bytes.Repeat([]byte{1}, NonceSize)
	sealed, err := AES256GCM{}.Seal(key, nonce, []byte("payload"))
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[0] ^= 0x01

	tests := []struct {
		name   string
		key    *Key
		nonce  []byte
		sealed []byte
	}{
		{name: "wrong key", key: other, nonce: nonce, sealed: sealed},
		{name: "tampered ciphertext", key: key, nonce: nonce, sealed: tampered},
		{name: "truncated", key: key, nonce: nonce, sealed: sealed[:TagSize-1]},
		{name: "bad nonce length", key: key, nonce: nonce[:8], sealed: sealed},
		{name: "nil key", key: nil, nonce: nonce, sealed: sealed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := AES256GCM{}.Open(tt.key, tt.nonce, tt.sealed)
			assert.Nil(t, out)
			require.Error(t, err)
			assert.Equal(t, "DECRYPTION_FAILED: cannot decrypt", err.Error())
		})
	}
}

func TestKey_Destroy(t *testing.T) {
	key, err := (&PBKDF2{Iterations: 1000}).DeriveKey([]byte("abcd1234!@#$"), testSalt())
	require.NoError(t, err)

	material := key.material
	key.Destroy()

	assert.Equal(t, make([]byte, KeySize), material)
	_, err = AES256GCM{}.Seal(key, make([]byte, NonceSize), []byte("x"))
	assert.True(t, models.IsCode(err, models.ErrCodeEncryptionFailed))

	var nilKey *Key
	assert.NotPanics(t, nilKey.Destroy)
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(SystemRandom{}, SaltSize)
	require.NoError(t, err)
	b, err := RandomBytes(SystemRandom{}, SaltSize)
	require.NoError(t, err)

	assert.Len(t, a, SaltSize)
	assert.NotEqual(t, a, b)

	_, err = RandomBytes(bytes.NewReader([]byte{1, 2}), SaltSize)
	assert.True(t, models.IsCode(err, models.ErrCodeEncryptionFailed))
}

func TestNewProvider(t *testing.T) {
	p := NewDefaultProvider()
	assert.Equal(t, DefaultIterations, p.Iterations)
	assert.IsType(t, SystemRandom{}, p.Random())

	src := bytes.NewReader(make([]byte, 64))
	custom := NewProvider(10, src)
	assert.Equal(t, 10, custom.Iterations)
	assert.Same(t, src, custom.Random())

	var _ Provider = p
}

func TestSecureZero(t *testing.T) {
	b := []byte{1, 2, 3}
	SecureZero(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}
