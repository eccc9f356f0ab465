package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pliu/murmur/internal/redact"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("send direct: %w", NotFound("recipient"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(nil, KindNotFound))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestPublicHidesInternalCause(t *testing.T) {
	cause := errors.New("dial postgres://murmur:hunter22@db:5432 refused")
	p := Public(fmt.Errorf("save envelope: %w", Internal(cause)), redact.New())

	assert.Equal(t, "internal", p.Code)
	assert.Equal(t, "internal error", p.Message)
	assert.NotContains(t, p.Message, "hunter22")

	p = Public(errors.New("unclassified"), nil)
	assert.Equal(t, "internal", p.Code)
}

func TestPublicNamesField(t *testing.T) {
	p := Public(Invalid("display_name", "must be 1-50 characters"), redact.New())
	assert.Equal(t, Payload{Code: "invalid_input", Field: "display_name", Message: "must be 1-50 characters"}, p)

	p = Public(Forbidden(), nil)
	assert.Equal(t, Payload{Code: "forbidden", Message: "forbidden"}, p)
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindInvalidInput: http.StatusBadRequest,
		KindNotFound:     http.StatusNotFound,
		KindForbidden:    http.StatusForbidden,
		KindRateLimited:  http.StatusTooManyRequests,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, status := range tests {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "iv: must be base64", Invalid("iv", "must be base64").Error())
	assert.Equal(t, "internal error: boom", Internal(errors.New("boom")).Error())
}
