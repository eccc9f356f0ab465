// Package guard decides whether an actor may perform an operation on an
// envelope or group. Every rejection is the same detail-free Forbidden, so a
// caller learns nothing about records it is not allowed to see.
package guard

import (
	"github.com/pliu/murmur/internal/apperr"
	"github.com/pliu/murmur/internal/models"
)

// MarkRead allows the direct recipient, or any group member other than the
// sender. group must be the envelope's group for group envelopes.
func MarkRead(actor string, env *models.Envelope, group *models.Group) error {
	switch {
	case env == nil || actor == "":
	case env.IsDirect():
		if actor == env.RecipientID {
			return nil
		}
	case env.IsGroup():
		if group != nil && group.ID == env.GroupID && actor != env.SenderID && group.HasMember(actor) {
			return nil
		}
	}
	return apperr.Forbidden()
}

// Edit allows only the sender.
func Edit(actor string, env *models.Envelope) error {
	return senderOnly(actor, env)
}

// Delete allows only the sender.
func Delete(actor string, env *models.Envelope) error {
	return senderOnly(actor, env)
}

func senderOnly(actor string, env *models.Envelope) error {
	if env == nil || actor == "" || actor != env.SenderID {
		return apperr.Forbidden()
	}
	return nil
}

// DirectHistory allows either party of the pair a-b. The live channel always
// anchors the pair on the requester, so there it only rejects an actor that
// has not joined.
func DirectHistory(actor, a, b string) error {
	if actor == "" || (actor != a && actor != b) {
		return apperr.Forbidden()
	}
	return nil
}

// GroupHistory allows members only.
func GroupHistory(actor string, group *models.Group) error {
	return member(actor, group)
}

// GetGroup allows members only.
func GetGroup(actor string, group *models.Group) error {
	return member(actor, group)
}

// SendGroup allows members only.
func SendGroup(actor string, group *models.Group) error {
	return member(actor, group)
}

func member(actor string, group *models.Group) error {
	if group == nil || actor == "" || !group.HasMember(actor) {
		return apperr.Forbidden()
	}
	return nil
}
