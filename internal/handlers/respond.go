package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/pliu/murmur/internal/apperr"
	"github.com/pliu/murmur/internal/redact"
)

// maxBodyBytes bounds every JSON request body. Group creation carries one
// wrapped key per member, which dominates.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err through apperr.Public. Internal causes go to the
// log only.
func writeError(w http.ResponseWriter, logger *zap.Logger, redactor *redact.Redactor, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal && logger != nil {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, kind.HTTPStatus(), apperr.Public(err, redactor))
}

// decodeBody reads a single JSON object, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalid("body", "is too large")
		}
		return apperr.Invalid("body", "must be a JSON object matching the request schema")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperr.Invalid("body", "must contain a single JSON object")
	}
	return nil
}
