package store

import (
	"context"
	"errors"
	"time"

	"github.com/pliu/murmur/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist, or for
// envelope mutations, when it has been tombstoned.
var ErrNotFound = errors.New("store: not found")

// Store is the durable registry and history log. Each mutating method is a
// single atomic update to one logical record.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	// Identity operations
	UpsertIdentity(ctx context.Context, displayName, publicKey string) (*models.Identity, error)
	GetIdentity(ctx context.Context, id string) (*models.Identity, error)
	CountIdentities(ctx context.Context, ids []string) (int, error)
	SearchIdentities(ctx context.Context, substring string, limit int) ([]models.IdentitySummary, error)
	GetIdentitySummaries(ctx context.Context, ids []string) ([]models.IdentitySummary, error)

	// Group operations
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)

	// Envelope operations
	SaveEnvelope(ctx context.Context, env *models.Envelope) error
	GetEnvelope(ctx context.Context, id string) (*models.Envelope, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	UpdateContent(ctx context.Context, id, ciphertext, iv, authTag string, at time.Time) error
	MarkDeleted(ctx context.Context, id string, at time.Time) error
	DirectHistory(ctx context.Context, a, b string, limit int) ([]models.Envelope, error)
	GroupHistory(ctx context.Context, groupID string, limit int) ([]models.Envelope, error)
}
