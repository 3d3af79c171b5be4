package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 32 bytes, base64 encoded
const testKey = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM="

func TestNewCredentialEncryptor_EmptyKey(t *testing.T) {
	_, err := NewCredentialEncryptor("")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewCredentialEncryptor_Passphrase(t *testing.T) {
	// Non-base64 input is hashed to a 32-byte key
	enc, err := NewCredentialEncryptor("not-a-base64-key")
	require.NoError(t, err)
	require.NotNil(t, enc)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)

	plaintext := `{"account_id":"ACME-123","token":"tk_secret"}`
	encrypted, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, encrypted)
	assert.False(t, strings.Contains(encrypted, "tk_secret"))

	decrypted, err := enc.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_EmptyString(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)

	encrypted, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", encrypted)
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)

	a, err := enc.Encrypt("same input")
	require.NoError(t, err)
	b, err := enc.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random nonce should make ciphertexts differ")
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc1, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)
	enc2, err := NewCredentialEncryptor("a-different-passphrase")
	require.NoError(t, err)

	encrypted, err := enc1.Encrypt("secret material")
	require.NoError(t, err)

	_, err = enc2.Decrypt(encrypted)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_GarbageInput(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	require.NoError(t, err)

	_, err = enc.Decrypt("not base64!!!")
	require.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = enc.Decrypt("dG9vc2hvcnQ=")
	require.ErrorIs(t, err, ErrDecryptionFailed)
}
