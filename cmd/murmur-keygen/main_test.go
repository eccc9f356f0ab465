package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pliu/murmur/internal/codec"
	"github.com/pliu/murmur/internal/validate"
)

func TestGenerateThenShow(t *testing.T) {
	cfg := keygenConfig{out: filepath.Join(t.TempDir(), "id.age"), workFactor: 10}

	var out bytes.Buffer
	require.NoError(t, run(cfg, strings.NewReader("s3cret\n"), &out))
	pub := strings.TrimSpace(out.String())
	require.NoError(t, validate.PublicKey(pub), "printed key is accepted by registration")
	_, err := codec.ParsePublicKey(pub)
	require.NoError(t, err)

	err = run(cfg, strings.NewReader("s3cret\n"), &out)
	assert.ErrorContains(t, err, "refusing to overwrite")

	cfg.show = true
	out.Reset()
	require.NoError(t, run(cfg, strings.NewReader("s3cret\n"), &out))
	assert.Equal(t, pub, strings.TrimSpace(out.String()))

	out.Reset()
	assert.Error(t, run(cfg, strings.NewReader("wrong\n"), &out))
}

func TestPassphraseFromEnv(t *testing.T) {
	t.Setenv("TEST_MURMUR_PASS", "from-env")
	got, err := readPassphrase("TEST_MURMUR_PASS", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	_, err = readPassphrase("", strings.NewReader("\n"))
	assert.Error(t, err)
}
