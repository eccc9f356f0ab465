// Package validate holds the field checks shared by the REST and live
// surfaces. Failures are apperr.InvalidInput errors naming the field; the
// offending value is never echoed.
package validate

import (
	"crypto/x509"
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pliu/murmur/internal/apperr"
)

const (
	MaxDisplayName   = 50
	MinPublicKey     = 100
	MaxPublicKey     = 5000
	MinSearchQuery   = 2
	MaxSearchQuery   = 50
	MaxGroupName     = 100
	MaxWrappedKey    = 8192
	GCMNonceSize     = 12
	GCMTagSize       = 16
	MaxSearchResults = 10
)

var displayNamePattern = regexp.MustCompile(`^[a-zA-Z0-9\s._-]+$`)

// DisplayName checks the charset and 1-50 length.
func DisplayName(name string) error {
	if name == "" || len(name) > MaxDisplayName {
		return apperr.Invalid("display_name", "must be 1-50 characters")
	}
	if !displayNamePattern.MatchString(name) {
		return apperr.Invalid("display_name", "may contain only letters, digits, spaces, '.', '_' and '-'")
	}
	return nil
}

// PublicKey requires base64 SubjectPublicKeyInfo of bounded size.
func PublicKey(key string) error {
	if len(key) < MinPublicKey || len(key) > MaxPublicKey {
		return apperr.Invalid("public_key", "must be 100-5000 characters")
	}
	der, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return apperr.Invalid("public_key", "must be base64")
	}
	if _, err := x509.ParsePKIXPublicKey(der); err != nil {
		return apperr.Invalid("public_key", "must be a DER SubjectPublicKeyInfo")
	}
	return nil
}

// SearchQuery trims and bounds a search query.
func SearchQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	n := utf8.RuneCountInString(q)
	if n < MinSearchQuery {
		return "", apperr.Invalid("query", "must be at least 2 characters")
	}
	if n > MaxSearchQuery {
		return "", apperr.Invalid("query", "must be at most 50 characters")
	}
	return q, nil
}

// GroupName trims and bounds a group name.
func GroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxGroupName {
		return "", apperr.Invalid("name", "must be 1-100 characters")
	}
	return name, nil
}

// ID checks that field holds a server-issued id.
func ID(field, id string) error {
	if id == "" {
		return apperr.Invalid(field, "is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Invalid(field, "must be a valid id")
	}
	return nil
}

// Blob checks that field is non-empty base64 of at most maxLen characters.
func Blob(field, value string, maxLen int) error {
	if value == "" {
		return apperr.Invalid(field, "is required")
	}
	if len(value) > maxLen {
		return apperr.Invalid(field, "is too large")
	}
	if _, err := base64.StdEncoding.DecodeString(value); err != nil {
		return apperr.Invalid(field, "must be base64")
	}
	return nil
}

// FixedBlob checks that field is base64 decoding to exactly size bytes.
func FixedBlob(field, value string, size int) error {
	if value == "" {
		return apperr.Invalid(field, "is required")
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return apperr.Invalid(field, "must be base64")
	}
	if len(raw) != size {
		return apperr.Invalid(field, "has the wrong length")
	}
	return nil
}
