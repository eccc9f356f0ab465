// Package keyring stores a client's identity private key at rest, sealed
// with a passphrase using age's scrypt recipient. The sealed form is ASCII
// armored so it can live in a plain file or a browser-style key/value store.
//
// The relay never sees anything produced here.
package keyring

import (
	"bytes"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/pliu/murmur/internal/codec"
)

// DefaultWorkFactor is age's default scrypt cost.
const DefaultWorkFactor = 18

var ErrWrongPassphrase = errors.New("keyring: wrong passphrase or corrupt key file")

// Sealer seals and opens private keys.
type Sealer struct {
	// WorkFactor is the log2 scrypt cost; zero means DefaultWorkFactor.
	WorkFactor int
}

func (s Sealer) workFactor() int {
	if s.WorkFactor <= 0 {
		return DefaultWorkFactor
	}
	return s.WorkFactor
}

// Seal encrypts priv under passphrase and returns the armored result.
func (s Sealer) Seal(priv *rsa.PrivateKey, passphrase string) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("keyring: passphrase is required")
	}
	der, err := codec.EncodePrivateKey(priv)
	if err != nil {
		return "", err
	}
	defer clear(der)

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return "", fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(s.workFactor())

	var out bytes.Buffer
	armorWriter := armor.NewWriter(&out)
	writer, err := age.Encrypt(armorWriter, recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(der); err != nil {
		return "", fmt.Errorf("writing private key to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("finalizing armor: %w", err)
	}
	return out.String(), nil
}

// Open decrypts an armored key produced by Seal.
func (s Sealer) Open(sealed, passphrase string) (*rsa.PrivateKey, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	// Accept anything we could have produced, and a little headroom.
	identity.SetMaxWorkFactor(max(s.workFactor(), DefaultWorkFactor) + 2)

	reader, err := age.Decrypt(armor.NewReader(strings.NewReader(sealed)), identity)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	der, err := io.ReadAll(reader)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	defer clear(der)
	return codec.ParsePrivateKey(der)
}

// SaveFile seals priv and writes it with owner-only permissions.
func (s Sealer) SaveFile(path string, priv *rsa.PrivateKey, passphrase string) error {
	sealed, err := s.Seal(priv, passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(sealed), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func (s Sealer) LoadFile(path, passphrase string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return s.Open(string(data), passphrase)
}
