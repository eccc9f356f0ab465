// Package identity maps display names to stable ids and current public keys.
package identity

import (
	"context"
	"errors"

	"github.com/pliu/murmur/internal/apperr"
	"github.com/pliu/murmur/internal/models"
	"github.com/pliu/murmur/internal/store"
	"github.com/pliu/murmur/internal/validate"
)

type Registry struct {
	store store.Store
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

// RegisterOrUpdate creates an identity or, if displayName is taken, replaces
// its public key and keeps its id. There is no key history.
func (r *Registry) RegisterOrUpdate(ctx context.Context, displayName, publicKey string) (models.PublicIdentity, error) {
	if err := validate.DisplayName(displayName); err != nil {
		return models.PublicIdentity{}, err
	}
	if err := validate.PublicKey(publicKey); err != nil {
		return models.PublicIdentity{}, err
	}
	ident, err := r.store.UpsertIdentity(ctx, displayName, publicKey)
	if err != nil {
		return models.PublicIdentity{}, apperr.Internal(err)
	}
	return ident.Public(), nil
}

// Lookup returns the public projection of id.
func (r *Registry) Lookup(ctx context.Context, id string) (models.PublicIdentity, error) {
	if err := validate.ID("id", id); err != nil {
		return models.PublicIdentity{}, err
	}
	ident, err := r.store.GetIdentity(ctx, id)
	if err != nil {
		return models.PublicIdentity{}, storeErr(err, "identity")
	}
	return ident.Public(), nil
}

// Exists reports whether id resolves, failing with NotFound when it does not.
func (r *Registry) Exists(ctx context.Context, field, id string) error {
	if err := validate.ID(field, id); err != nil {
		return err
	}
	if _, err := r.store.GetIdentity(ctx, id); err != nil {
		return storeErr(err, "identity")
	}
	return nil
}

// Search returns up to limit identities whose display name contains query,
// ignoring case. limit is capped at validate.MaxSearchResults.
func (r *Registry) Search(ctx context.Context, query string, limit int) ([]models.IdentitySummary, error) {
	q, err := validate.SearchQuery(query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > validate.MaxSearchResults {
		limit = validate.MaxSearchResults
	}
	results, err := r.store.SearchIdentities(ctx, q, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if results == nil {
		results = []models.IdentitySummary{}
	}
	return results, nil
}

func storeErr(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return apperr.Internal(err)
}
