package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pliu/murmur/internal/identity"
	"github.com/pliu/murmur/internal/redact"
	"github.com/pliu/murmur/internal/validate"
)

type IdentityHandler struct {
	Registry *identity.Registry
	Logger   *zap.Logger
	Redactor *redact.Redactor
}

type RegisterRequest struct {
	DisplayName string `json:"display_name"`
	PublicKey   string `json:"public_key"`
}

// Register creates an identity or rotates the key of an existing one.
func (h *IdentityHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.Logger, h.Redactor, r, err)
		return
	}

	ident, err := h.Registry.RegisterOrUpdate(r.Context(), req.DisplayName, req.PublicKey)
	if err != nil {
		writeError(w, h.Logger, h.Redactor, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

func (h *IdentityHandler) Get(w http.ResponseWriter, r *http.Request) {
	ident, err := h.Registry.Lookup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.Logger, h.Redactor, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

func (h *IdentityHandler) Search(w http.ResponseWriter, r *http.Request) {
	results, err := h.Registry.Search(r.Context(), mux.Vars(r)["query"], validate.MaxSearchResults)
	if err != nil {
		writeError(w, h.Logger, h.Redactor, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
