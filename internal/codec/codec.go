// Package codec is the client-side cryptographic contract for envelopes.
//
// Message bodies are sealed with AES-256-GCM. A direct message uses a fresh
// single-use key that is wrapped for the recipient with RSA-OAEP (SHA-256);
// a group message reuses the group's shared key, which each member received
// wrapped the same way. The 16-byte GCM tag travels separately from the
// ciphertext, and every binary field is standard base64, so that envelopes
// are interchangeable with browser clients using WebCrypto.
//
// Nothing in this package runs on the relay. The relay only ever sees the
// Sealed and DirectSealed values produced here.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	// KeySize is the AES-256 key length used for message and group keys.
	KeySize = 32
	// IdentityKeyBits is the RSA modulus size for identity keys.
	IdentityKeyBits = 2048

	nonceSize = 12
	tagSize   = 16
)

// ErrDecrypt is returned for any failure to open an envelope: a bad wrapped
// key, a wrong key, or an authentication tag mismatch. Callers should not be
// able to tell these apart.
var ErrDecrypt = errors.New("codec: decryption failed")

// Sealed is an AEAD output split into its wire fields.
type Sealed struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
}

// DirectSealed is a direct-message body plus its wrapped single-use key.
type DirectSealed struct {
	Sealed
	WrappedKey string `json:"wrapped_key"`
}

// GenerateIdentityKey creates a new RSA identity keypair.
func GenerateIdentityKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, IdentityKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}
	return key, nil
}

// EncodePublicKey returns the base64 SubjectPublicKeyInfo form that the
// identity registry stores.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ParsePublicKey is the inverse of EncodePublicKey.
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse public key: not an RSA key")
	}
	return pub, nil
}

// EncodePrivateKey returns PKCS#8 DER. It must only ever be written to
// client-local storage, sealed (see the keyring package).
func EncodePrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return der, nil
}

func ParsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("parse private key: not an RSA key")
	}
	return priv, nil
}

// NewSymmetricKey returns a random AES-256 key. Used both for single-use
// message keys and for a group's shared key.
func NewSymmetricKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: got %d want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}

// Seal encrypts plaintext under key with a fresh random 96-bit IV.
//
// Under a long-lived group key, IV uniqueness is probabilistic: the
// collision bound for random 96-bit nonces is what limits how many
// messages a group key should protect.
func Seal(key, plaintext []byte) (Sealed, error) {
	aead, err := newGCM(key)
	if err != nil {
		return Sealed{}, err
	}
	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return Sealed{}, fmt.Errorf("generate nonce: %w", err)
	}
	out := aead.Seal(nil, iv, plaintext, nil)
	body, tag := out[:len(out)-tagSize], out[len(out)-tagSize:]
	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(body),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// Open authenticates and decrypts s under key.
func Open(key []byte, s Sealed) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	body, err1 := base64.StdEncoding.DecodeString(s.Ciphertext)
	iv, err2 := base64.StdEncoding.DecodeString(s.IV)
	tag, err3 := base64.StdEncoding.DecodeString(s.AuthTag)
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(iv) != nonceSize || len(tag) != tagSize {
		return nil, ErrDecrypt
	}
	plaintext, err := aead.Open(nil, iv, append(body, tag...), nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// WrapKey encrypts a symmetric key for the holder of pub.
func WrapKey(pub *rsa.PublicKey, key []byte) (string, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", fmt.Errorf("wrap key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey recovers a symmetric key wrapped by WrapKey.
func UnwrapKey(priv *rsa.PrivateKey, wrapped string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, ErrDecrypt
	}
	key, err := rsa.DecryptOAEP(sha256.New(), nil, priv, raw, nil)
	if err != nil || len(key) != KeySize {
		return nil, ErrDecrypt
	}
	return key, nil
}

// EncryptDirect seals plaintext for one recipient under a fresh key. The key
// is used exactly once, so IV reuse under it cannot happen.
func EncryptDirect(plaintext []byte, recipient *rsa.PublicKey) (DirectSealed, error) {
	key, err := NewSymmetricKey()
	if err != nil {
		return DirectSealed{}, err
	}
	defer clear(key)

	sealed, err := Seal(key, plaintext)
	if err != nil {
		return DirectSealed{}, err
	}
	wrapped, err := WrapKey(recipient, key)
	if err != nil {
		return DirectSealed{}, err
	}
	return DirectSealed{Sealed: sealed, WrappedKey: wrapped}, nil
}

// DecryptDirect unwraps the message key with the recipient's private key and
// opens the body.
func DecryptDirect(d DirectSealed, priv *rsa.PrivateKey) ([]byte, error) {
	key, err := UnwrapKey(priv, d.WrappedKey)
	if err != nil {
		return nil, err
	}
	defer clear(key)
	return Open(key, d.Sealed)
}

// EncryptGroup seals plaintext under the group's shared key.
func EncryptGroup(plaintext, groupKey []byte) (Sealed, error) {
	return Seal(groupKey, plaintext)
}

// DecryptGroup opens a group envelope with the shared key.
func DecryptGroup(s Sealed, groupKey []byte) ([]byte, error) {
	return Open(groupKey, s)
}

// WrapGroupKey wraps groupKey once per member public key, keyed by member id,
// producing the wrapped-key list a group is created with.
func WrapGroupKey(groupKey []byte, members map[string]*rsa.PublicKey) (map[string]string, error) {
	out := make(map[string]string, len(members))
	for id, pub := range members {
		wrapped, err := WrapKey(pub, groupKey)
		if err != nil {
			return nil, fmt.Errorf("wrap for %s: %w", id, err)
		}
		out[id] = wrapped
	}
	return out, nil
}
