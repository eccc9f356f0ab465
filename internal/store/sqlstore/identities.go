package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pliu/murmur/internal/models"
	"github.com/pliu/murmur/internal/store"
)

// UpsertIdentity inserts a new identity or, when the display name is taken,
// replaces that identity's public key in the same statement.
func (s *SQLStore) UpsertIdentity(ctx context.Context, displayName, publicKey string) (*models.Identity, error) {
	query := s.rebind(`
		INSERT INTO identities (id, display_name, public_key, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (display_name) DO UPDATE SET public_key = excluded.public_key
		RETURNING id
	`)
	var id string
	err := s.db.QueryRowContext(ctx, query, uuid.NewString(), displayName, publicKey, time.Now().UTC()).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}
	return s.GetIdentity(ctx, id)
}

func (s *SQLStore) GetIdentity(ctx context.Context, id string) (*models.Identity, error) {
	var ident models.Identity
	query := s.rebind("SELECT id, display_name, public_key, created_at FROM identities WHERE id = ?")
	err := s.db.QueryRowContext(ctx, query, id).Scan(&ident.ID, &ident.DisplayName, &ident.PublicKey, &ident.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &ident, nil
}

// CountIdentities returns how many of the given ids resolve. Callers pass
// deduplicated ids.
func (s *SQLStore) CountIdentities(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := s.rebind("SELECT COUNT(*) FROM identities WHERE id IN (" + placeholders(len(ids)) + ")")
	var n int
	if err := s.db.QueryRowContext(ctx, query, toArgs(ids)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}

// GetIdentitySummaries returns {id, display_name} for the given ids in the
// order they were requested. Unknown ids are skipped.
func (s *SQLStore) GetIdentitySummaries(ctx context.Context, ids []string) ([]models.IdentitySummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := s.rebind("SELECT id, display_name FROM identities WHERE id IN (" + placeholders(len(ids)) + ")")
	rows, err := s.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get identity summaries: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		byID[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]models.IdentitySummary, 0, len(byID))
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			summaries = append(summaries, models.IdentitySummary{ID: id, DisplayName: name})
		}
	}
	return summaries, nil
}

// SearchIdentities does a case-insensitive substring match on display names.
// LIKE wildcards in substring are escaped so they match literally.
func (s *SQLStore) SearchIdentities(ctx context.Context, substring string, limit int) ([]models.IdentitySummary, error) {
	query := s.rebind(`
		SELECT id, display_name FROM identities
		WHERE LOWER(display_name) LIKE LOWER(?) ESCAPE '\'
		ORDER BY display_name
		LIMIT ?
	`)
	rows, err := s.db.QueryContext(ctx, query, "%"+escapeLike(substring)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search identities: %w", err)
	}
	defer rows.Close()

	var users []models.IdentitySummary
	for rows.Next() {
		var u models.IdentitySummary
		if err := rows.Scan(&u.ID, &u.DisplayName); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
