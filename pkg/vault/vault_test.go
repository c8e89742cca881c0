package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCipher_EmptySecret(t *testing.T) {
	_, err := NewCipher("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)

	plain := []byte(`{"username":"billing@acme.com.br","password":"s3cr3t"}`)

	encoded, err := c.Encrypt(plain)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
	assert.NotContains(t, encoded, "billing@acme.com.br")

	decrypted, err := c.Decrypt(encoded)
	require.NoError(t, err)
	assert.Equal(t, plain, decrypted)
}

func TestCipher_EncryptIsNonDeterministic(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)

	first, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)
	second, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestCipher_DecryptWrongKey(t *testing.T) {
	c1, err := NewCipher("first-secret")
	require.NoError(t, err)
	c2, err := NewCipher("second-secret")
	require.NoError(t, err)

	encoded, err := c1.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = c2.Decrypt(encoded)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestCipher_DecryptMalformed(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)

	_, err = c.Decrypt("not-base64!!!")
	assert.ErrorIs(t, err, ErrDecryptFailed)

	_, err = c.Decrypt("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrDecryptFailed)
}
