package validate

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pliu/murmur/internal/apperr"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	e, ok := err.(*apperr.Error)
	require.True(t, ok, "expected *apperr.Error, got %T", err)
	assert.Equal(t, apperr.KindInvalidInput, e.Kind)
	return e.Field
}

func TestDisplayName(t *testing.T) {
	for _, ok := range []string{"alice", "Bob Smith", "x", "a.b_c-d", strings.Repeat("z", 50)} {
		assert.NoError(t, DisplayName(ok), ok)
	}
	for _, bad := range []string{"", strings.Repeat("z", 51), "<script>", "émile", "a/b"} {
		assert.Equal(t, "display_name", fieldOf(t, DisplayName(bad)), bad)
	}
}

func TestPublicKey(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(der)

	assert.NoError(t, PublicKey(encoded))

	assert.Equal(t, "public_key", fieldOf(t, PublicKey("short")))
	assert.Equal(t, "public_key", fieldOf(t, PublicKey(strings.Repeat("!", 200))))
	assert.Equal(t, "public_key", fieldOf(t, PublicKey(base64.StdEncoding.EncodeToString(make([]byte, 120)))))
	assert.Equal(t, "public_key", fieldOf(t, PublicKey(strings.Repeat("A", 5004))))
}

func TestSearchQuery(t *testing.T) {
	q, err := SearchQuery("  al  ")
	require.NoError(t, err)
	assert.Equal(t, "al", q)

	assert.Equal(t, "query", fieldOf(t, errOnly(SearchQuery(" a "))))
	assert.Equal(t, "query", fieldOf(t, errOnly(SearchQuery(strings.Repeat("q", 51)))))
}

func TestGroupName(t *testing.T) {
	name, err := GroupName("  team ")
	require.NoError(t, err)
	assert.Equal(t, "team", name)

	assert.Equal(t, "name", fieldOf(t, errOnly(GroupName("   "))))
	assert.Equal(t, "name", fieldOf(t, errOnly(GroupName(strings.Repeat("n", 101)))))
}

func TestID(t *testing.T) {
	assert.NoError(t, ID("group_id", uuid.NewString()))
	assert.Equal(t, "group_id", fieldOf(t, ID("group_id", "")))
	assert.Equal(t, "recipient_id", fieldOf(t, ID("recipient_id", "64b7f0c2e4b0a1a2b3c4d5e6")))
}

func TestBlobs(t *testing.T) {
	assert.NoError(t, Blob("ciphertext", "aGVsbG8=", 100))
	assert.Equal(t, "ciphertext", fieldOf(t, Blob("ciphertext", "", 100)))
	assert.Equal(t, "ciphertext", fieldOf(t, Blob("ciphertext", "aGVsbG8=", 4)))
	assert.Equal(t, "ciphertext", fieldOf(t, Blob("ciphertext", "not base64!", 100)))

	iv := base64.StdEncoding.EncodeToString(make([]byte, GCMNonceSize))
	assert.NoError(t, FixedBlob("iv", iv, GCMNonceSize))
	assert.Equal(t, "iv", fieldOf(t, FixedBlob("iv", iv, GCMTagSize)))
	assert.Equal(t, "auth_tag", fieldOf(t, FixedBlob("auth_tag", "", GCMTagSize)))
}

func errOnly(_ string, err error) error { return err }
