package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pliu/murmur/internal/models"
	"github.com/pliu/murmur/internal/store"
)

func directEnvelope(from, to, body string) *models.Envelope {
	return &models.Envelope{
		SenderID:    from,
		RecipientID: to,
		Ciphertext:  body,
		IV:          "iv",
		AuthTag:     "tag",
		WrappedKey:  "wk",
	}
}

func TestSaveEnvelope(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	a := mustIdentity(t, "alice")
	b := mustIdentity(t, "bob")

	env := directEnvelope(a.ID, b.ID, "c1")
	if err := testStore.SaveEnvelope(ctx, env); err != nil {
		t.Fatalf("Failed to save envelope: %v", err)
	}
	if env.ID == "" || env.CreatedAt.IsZero() {
		t.Fatalf("Expected id and created_at to be assigned, got %+v", env)
	}
	if env.Kind != models.KindText {
		t.Errorf("Expected default kind text, got %s", env.Kind)
	}

	got, err := testStore.GetEnvelope(ctx, env.ID)
	if err != nil {
		t.Fatalf("GetEnvelope failed: %v", err)
	}
	if got.SenderID != a.ID || got.RecipientID != b.ID || got.GroupID != "" || got.WrappedKey != "wk" {
		t.Errorf("Unexpected envelope: %+v", got)
	}
	if got.ReadAt != nil || got.EditedAt != nil || got.DeletedAt != nil {
		t.Errorf("Expected lifecycle timestamps to be unset, got %+v", got)
	}
}

func TestSaveEnvelopeRequiresExactlyOneTarget(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	both := directEnvelope("a", "b", "c")
	both.GroupID = "g"
	if err := testStore.SaveEnvelope(ctx, both); err == nil {
		t.Error("Expected error when both recipient and group are set")
	}

	neither := directEnvelope("a", "", "c")
	if err := testStore.SaveEnvelope(ctx, neither); err == nil {
		t.Error("Expected error when neither recipient nor group is set")
	}
}

func TestEnvelopeLifecycle(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	a := mustIdentity(t, "alice")
	b := mustIdentity(t, "bob")
	env := directEnvelope(a.ID, b.ID, "c1")
	testStore.SaveEnvelope(ctx, env)

	readAt := time.Now()
	if err := testStore.MarkRead(ctx, env.ID, readAt); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if err := testStore.UpdateContent(ctx, env.ID, "c2", "iv2", "tag2", time.Now()); err != nil {
		t.Fatalf("UpdateContent failed: %v", err)
	}

	got, _ := testStore.GetEnvelope(ctx, env.ID)
	if got.ReadAt == nil || got.EditedAt == nil {
		t.Fatalf("Expected read_at and edited_at to be set, got %+v", got)
	}
	if got.Ciphertext != "c2" || got.IV != "iv2" || got.AuthTag != "tag2" {
		t.Errorf("Expected new content, got %+v", got)
	}

	if err := testStore.MarkDeleted(ctx, env.ID, time.Now()); err != nil {
		t.Fatalf("MarkDeleted failed: %v", err)
	}
	got, _ = testStore.GetEnvelope(ctx, env.ID)
	if got.DeletedAt == nil {
		t.Fatal("Expected deleted_at to be set")
	}
	if got.Ciphertext != "c2" {
		t.Error("Expected content to be retained on the tombstone")
	}

	// Tombstones reject further mutation
	if err := testStore.UpdateContent(ctx, env.ID, "c3", "iv", "tag", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound editing a tombstone, got %v", err)
	}
	if err := testStore.MarkDeleted(ctx, env.ID, time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
	if err := testStore.MarkRead(ctx, "missing", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestDirectHistory(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	a := mustIdentity(t, "alice")
	b := mustIdentity(t, "bob")
	c := mustIdentity(t, "carol")

	var ids []string
	for i := 0; i < 5; i++ {
		from, to := a.ID, b.ID
		if i%2 == 1 {
			from, to = b.ID, a.ID
		}
		env := directEnvelope(from, to, fmt.Sprintf("m%d", i))
		if err := testStore.SaveEnvelope(ctx, env); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, env.ID)
	}
	// Unrelated conversation
	testStore.SaveEnvelope(ctx, directEnvelope(a.ID, c.ID, "other"))
	testStore.MarkDeleted(ctx, ids[3], time.Now())

	messages, err := testStore.DirectHistory(ctx, b.ID, a.ID, 50)
	if err != nil {
		t.Fatalf("DirectHistory failed: %v", err)
	}
	want := []string{"m0", "m1", "m2", "m4"}
	if len(messages) != len(want) {
		t.Fatalf("Expected %d messages, got %d", len(want), len(messages))
	}
	for i, m := range messages {
		if m.Ciphertext != want[i] {
			t.Errorf("Message %d: expected %s, got %s", i, want[i], m.Ciphertext)
		}
		if m.DeletedAt != nil {
			t.Errorf("History returned a tombstone: %s", m.ID)
		}
	}

	// Limit keeps the newest page, still oldest first
	messages, _ = testStore.DirectHistory(ctx, a.ID, b.ID, 2)
	if len(messages) != 2 || messages[0].Ciphertext != "m2" || messages[1].Ciphertext != "m4" {
		t.Errorf("Unexpected limited page: %+v", messages)
	}
}

func TestGroupHistory(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	a := mustIdentity(t, "alice")
	group := &models.Group{
		Name:        "solo",
		AdminID:     a.ID,
		Members:     []string{a.ID},
		WrappedKeys: []models.WrappedKey{{MemberID: a.ID, WrappedKey: "k"}},
	}
	if err := testStore.CreateGroup(ctx, group); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		env := &models.Envelope{SenderID: a.ID, GroupID: group.ID, Ciphertext: fmt.Sprintf("g%d", i), IV: "iv", AuthTag: "tag", Kind: models.KindImage}
		if err := testStore.SaveEnvelope(ctx, env); err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			testStore.MarkDeleted(ctx, env.ID, time.Now())
		}
	}

	messages, err := testStore.GroupHistory(ctx, group.ID, 50)
	if err != nil {
		t.Fatalf("GroupHistory failed: %v", err)
	}
	if len(messages) != 2 || messages[0].Ciphertext != "g1" || messages[1].Ciphertext != "g2" {
		t.Errorf("Unexpected group history: %+v", messages)
	}
	if messages[0].Kind != models.KindImage || messages[0].WrappedKey != "" {
		t.Errorf("Unexpected group envelope shape: %+v", messages[0])
	}
}
