package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEncryptor(t *testing.T) {
	t.Run("empty key generates a fresh identity", func(t *testing.T) {
		enc, err := NewEncryptor("")
		require.NoError(t, err)
		assert.NotNil(t, enc.identity)
		assert.NotNil(t, enc.recipient)
	})

	t.Run("accepts a generated key", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)

		enc, err := NewEncryptor(key)
		require.NoError(t, err)
		assert.NotNil(t, enc)
	})

	t.Run("rejects a malformed key", func(t *testing.T) {
		_, err := NewEncryptor("not-an-age-key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing identity")
	})
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	plaintext := []byte(`{"tenant_id":"t","client_secret":"s"}`)
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc1, err := NewEncryptor("")
	require.NoError(t, err)
	enc2, err := NewEncryptor("")
	require.NoError(t, err)

	ciphertext, err := enc1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = enc2.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestDecrypt_Garbage(t *testing.T) {
	enc, err := NewEncryptor("")
	require.NoError(t, err)

	_, err = enc.Decrypt([]byte("definitely not age ciphertext"))
	assert.Error(t, err)
}
