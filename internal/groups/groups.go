// Package groups creates groups and hands out each member's wrapped copy of
// the group key. Keys are generated and wrapped by clients; this package only
// checks that there is exactly one blob per member and stores it.
package groups

import (
	"context"
	"errors"

	"github.com/pliu/murmur/internal/apperr"
	"github.com/pliu/murmur/internal/guard"
	"github.com/pliu/murmur/internal/models"
	"github.com/pliu/murmur/internal/store"
	"github.com/pliu/murmur/internal/validate"
)

// Created is returned by CreateGroup. It never carries key material.
type Created struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Distribution struct {
	store store.Store
}

func NewDistribution(s store.Store) *Distribution {
	return &Distribution{store: s}
}

// CreateGroup stores a new group whose members are memberIDs plus adminID.
// wrappedKeys must name every member exactly once.
func (d *Distribution) CreateGroup(ctx context.Context, name, adminID string, memberIDs []string, wrappedKeys []models.WrappedKey) (Created, error) {
	name, err := validate.GroupName(name)
	if err != nil {
		return Created{}, err
	}
	if err := validate.ID("admin_id", adminID); err != nil {
		return Created{}, err
	}
	if len(memberIDs) == 0 {
		return Created{}, apperr.Invalid("member_ids", "must not be empty")
	}

	members := []string{adminID}
	seen := map[string]bool{adminID: true}
	for _, id := range memberIDs {
		if err := validate.ID("member_ids", id); err != nil {
			return Created{}, err
		}
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}

	keyed := make(map[string]bool, len(wrappedKeys))
	for _, k := range wrappedKeys {
		if !seen[k.MemberID] {
			return Created{}, apperr.Invalid("wrapped_keys", "has an entry for a non-member")
		}
		if keyed[k.MemberID] {
			return Created{}, apperr.Invalid("wrapped_keys", "has a duplicate entry")
		}
		if err := validate.Blob("wrapped_keys", k.WrappedKey, validate.MaxWrappedKey); err != nil {
			return Created{}, err
		}
		keyed[k.MemberID] = true
	}
	if len(keyed) != len(members) {
		return Created{}, apperr.Invalid("wrapped_keys", "must have exactly one entry per member")
	}

	if _, err := d.store.GetIdentity(ctx, adminID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Created{}, apperr.NotFound("admin")
		}
		return Created{}, apperr.Internal(err)
	}
	n, err := d.store.CountIdentities(ctx, members)
	if err != nil {
		return Created{}, apperr.Internal(err)
	}
	if n != len(members) {
		return Created{}, apperr.NotFound("member")
	}

	group := &models.Group{
		Name:        name,
		AdminID:     adminID,
		Members:     members,
		WrappedKeys: wrappedKeys,
	}
	if err := d.store.CreateGroup(ctx, group); err != nil {
		return Created{}, apperr.Internal(err)
	}
	return Created{ID: group.ID, Name: group.Name}, nil
}

// Load fetches a group without an access check, for callers that apply
// their own guard rule.
func (d *Distribution) Load(ctx context.Context, groupID string) (*models.Group, error) {
	if err := validate.ID("group_id", groupID); err != nil {
		return nil, err
	}
	group, err := d.store.GetGroup(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("group")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return group, nil
}

// GetGroup returns the group as seen by requesterID: every member's name and
// only the requester's own wrapped key.
func (d *Distribution) GetGroup(ctx context.Context, groupID, requesterID string) (models.GroupView, error) {
	if err := validate.ID("requester_id", requesterID); err != nil {
		return models.GroupView{}, err
	}
	group, err := d.Load(ctx, groupID)
	if err != nil {
		return models.GroupView{}, err
	}
	if err := guard.GetGroup(requesterID, group); err != nil {
		return models.GroupView{}, err
	}

	summaries, err := d.store.GetIdentitySummaries(ctx, group.Members)
	if err != nil {
		return models.GroupView{}, apperr.Internal(err)
	}
	view := models.GroupView{
		ID:          group.ID,
		Name:        group.Name,
		Members:     summaries,
		WrappedKeys: []models.WrappedKey{},
	}
	if k, ok := group.KeyFor(requesterID); ok {
		view.WrappedKeys = append(view.WrappedKeys, k)
	}
	return view, nil
}
