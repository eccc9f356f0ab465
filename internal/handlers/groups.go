package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pliu/murmur/internal/groups"
	"github.com/pliu/murmur/internal/models"
	"github.com/pliu/murmur/internal/redact"
)

type GroupHandler struct {
	Groups   *groups.Distribution
	Logger   *zap.Logger
	Redactor *redact.Redactor
}

type CreateGroupRequest struct {
	Name        string              `json:"name"`
	AdminID     string              `json:"admin_id"`
	MemberIDs   []string            `json:"member_ids"`
	WrappedKeys []models.WrappedKey `json:"wrapped_keys"`
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.Logger, h.Redactor, r, err)
		return
	}

	created, err := h.Groups.CreateGroup(r.Context(), req.Name, req.AdminID, req.MemberIDs, req.WrappedKeys)
	if err != nil {
		writeError(w, h.Logger, h.Redactor, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetGroup returns the group as seen by the requester_id query parameter.
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	view, err := h.Groups.GetGroup(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("requester_id"))
	if err != nil {
		writeError(w, h.Logger, h.Redactor, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
