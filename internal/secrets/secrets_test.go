package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	store, err := NewStore(testKey())
	require.NoError(t, err)

	ciphertext := store.Encrypt("smtp-password-123")
	assert.NotEqual(t, "smtp-password-123", ciphertext)

	plain, ok := store.Decrypt(ciphertext)
	require.True(t, ok)
	assert.Equal(t, "smtp-password-123", plain)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	store, err := NewStore(testKey())
	require.NoError(t, err)

	a := store.Encrypt("same")
	b := store.Encrypt("same")
	assert.NotEqual(t, a, b)
}

func TestNewStoreRejectsBadKeys(t *testing.T) {
	_, err := NewStore("not-base64!!!")
	assert.Error(t, err)

	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = NewStore(short)
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	store, err := NewStore(testKey())
	require.NoError(t, err)

	_, ok := store.Decrypt("not-base64!!!")
	assert.False(t, ok)

	_, ok = store.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.False(t, ok)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	store, err := NewStore(testKey())
	require.NoError(t, err)

	ciphertext := store.Encrypt("secret")
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, ok := store.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.False(t, ok)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	storeA, err := NewStore(testKey())
	require.NoError(t, err)

	otherRaw := make([]byte, 32)
	for i := range otherRaw {
		otherRaw[i] = byte(255 - i)
	}
	storeB, err := NewStore(base64.StdEncoding.EncodeToString(otherRaw))
	require.NoError(t, err)

	_, ok := storeB.Decrypt(storeA.Encrypt("secret"))
	assert.False(t, ok)
}
