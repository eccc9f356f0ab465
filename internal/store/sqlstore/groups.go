package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pliu/murmur/internal/models"
	"github.com/pliu/murmur/internal/store"
)

// CreateGroup stores the group together with one wrapped key per member.
// The group and its member rows are written in one transaction so a group
// never exists with a partial key set. ID and CreatedAt are assigned here.
func (s *SQLStore) CreateGroup(ctx context.Context, group *models.Group) error {
	keys := make(map[string]string, len(group.WrappedKeys))
	for _, k := range group.WrappedKeys {
		keys[k.MemberID] = k.WrappedKey
	}
	if len(keys) != len(group.Members) {
		return fmt.Errorf("create group: %d wrapped keys for %d members", len(keys), len(group.Members))
	}

	group.ID = uuid.NewString()
	group.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	defer tx.Rollback()

	query := s.rebind("INSERT INTO chat_groups (id, name, admin_id, created_at) VALUES (?, ?, ?, ?)")
	if _, err := tx.ExecContext(ctx, query, group.ID, group.Name, group.AdminID, group.CreatedAt); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	query = s.rebind("INSERT INTO group_members (group_id, member_id, wrapped_key, position) VALUES (?, ?, ?, ?)")
	for i, member := range group.Members {
		key, ok := keys[member]
		if !ok {
			return fmt.Errorf("create group: no wrapped key for member %s", member)
		}
		if _, err := tx.ExecContext(ctx, query, group.ID, member, key, i); err != nil {
			return fmt.Errorf("insert group member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group: %w", err)
	}
	return nil
}

func (s *SQLStore) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	var g models.Group
	query := s.rebind("SELECT id, name, admin_id, created_at FROM chat_groups WHERE id = ?")
	err := s.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.AdminID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}

	query = s.rebind("SELECT member_id, wrapped_key FROM group_members WHERE group_id = ? ORDER BY position")
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k models.WrappedKey
		if err := rows.Scan(&k.MemberID, &k.WrappedKey); err != nil {
			return nil, err
		}
		g.Members = append(g.Members, k.MemberID)
		g.WrappedKeys = append(g.WrappedKeys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &g, nil
}
