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

const envelopeColumns = `id, sender_id, COALESCE(recipient_id, ''), COALESCE(group_id, ''),
	ciphertext, iv, auth_tag, COALESCE(wrapped_key, ''), kind, created_at, read_at, edited_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(row rowScanner) (models.Envelope, error) {
	var (
		e                           models.Envelope
		kind                        string
		readAt, editedAt, deletedAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.SenderID, &e.RecipientID, &e.GroupID,
		&e.Ciphertext, &e.IV, &e.AuthTag, &e.WrappedKey, &kind, &e.CreatedAt,
		&readAt, &editedAt, &deletedAt)
	if err != nil {
		return e, err
	}
	e.Kind = models.Kind(kind)
	e.ReadAt = timePtr(readAt)
	e.EditedAt = timePtr(editedAt)
	e.DeletedAt = timePtr(deletedAt)
	return e, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// SaveEnvelope persists env and assigns its ID and CreatedAt. The record is
// durable when this returns.
func (s *SQLStore) SaveEnvelope(ctx context.Context, env *models.Envelope) error {
	if env.IsDirect() == env.IsGroup() {
		return errors.New("save envelope: exactly one of recipient and group must be set")
	}
	if env.Kind == "" {
		env.Kind = models.KindText
	}
	id := uuid.NewString()
	createdAt := time.Now().UTC()

	query := s.rebind(`
		INSERT INTO envelopes (id, sender_id, recipient_id, group_id, ciphertext, iv, auth_tag, wrapped_key, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query, id, env.SenderID,
		nullString(env.RecipientID), nullString(env.GroupID),
		env.Ciphertext, env.IV, env.AuthTag, nullString(env.WrappedKey),
		string(env.Kind), createdAt)
	if err != nil {
		return fmt.Errorf("save envelope: %w", err)
	}
	env.ID = id
	env.CreatedAt = createdAt
	return nil
}

// GetEnvelope returns the envelope including tombstoned ones; callers decide
// how to treat DeletedAt.
func (s *SQLStore) GetEnvelope(ctx context.Context, id string) (*models.Envelope, error) {
	query := s.rebind("SELECT " + envelopeColumns + " FROM envelopes WHERE id = ?")
	e, err := scanEnvelope(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get envelope: %w", err)
	}
	return &e, nil
}

func (s *SQLStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	query := s.rebind("UPDATE envelopes SET read_at = ? WHERE id = ? AND deleted_at IS NULL")
	return s.execOne(ctx, "mark read", query, at.UTC(), id)
}

func (s *SQLStore) UpdateContent(ctx context.Context, id, ciphertext, iv, authTag string, at time.Time) error {
	query := s.rebind(`
		UPDATE envelopes SET ciphertext = ?, iv = ?, auth_tag = ?, edited_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`)
	return s.execOne(ctx, "update content", query, ciphertext, iv, authTag, at.UTC(), id)
}

// MarkDeleted tombstones the envelope. Content columns are kept.
func (s *SQLStore) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	query := s.rebind("UPDATE envelopes SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL")
	return s.execOne(ctx, "mark deleted", query, at.UTC(), id)
}

// execOne runs a single-row update and maps "no row touched" to ErrNotFound.
func (s *SQLStore) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DirectHistory returns the newest limit live envelopes exchanged between a
// and b, oldest first.
func (s *SQLStore) DirectHistory(ctx context.Context, a, b string, limit int) ([]models.Envelope, error) {
	query := s.rebind(`
		SELECT ` + envelopeColumns + ` FROM envelopes
		WHERE ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))
			AND deleted_at IS NULL
		ORDER BY seq DESC
		LIMIT ?
	`)
	return s.history(ctx, query, a, b, b, a, limit)
}

// GroupHistory returns the newest limit live envelopes of a group, oldest first.
func (s *SQLStore) GroupHistory(ctx context.Context, groupID string, limit int) ([]models.Envelope, error) {
	query := s.rebind(`
		SELECT ` + envelopeColumns + ` FROM envelopes
		WHERE group_id = ? AND deleted_at IS NULL
		ORDER BY seq DESC
		LIMIT ?
	`)
	return s.history(ctx, query, groupID, limit)
}

func (s *SQLStore) history(ctx context.Context, query string, args ...any) ([]models.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	messages := []models.Envelope{}
	for rows.Next() {
		e, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
