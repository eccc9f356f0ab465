package guard

import (
	"testing"

	"github.com/pliu/murmur/internal/apperr"
	"github.com/pliu/murmur/internal/models"
)

var (
	team   = &models.Group{ID: "g1", AdminID: "alice", Members: []string{"alice", "bob", "carol"}}
	direct = &models.Envelope{ID: "e1", SenderID: "alice", RecipientID: "bob"}
	grpMsg = &models.Envelope{ID: "e2", SenderID: "alice", GroupID: "g1"}
)

func check(t *testing.T, name string, err error, allowed bool) {
	t.Helper()
	if allowed && err != nil {
		t.Errorf("%s: expected allowed, got %v", name, err)
	}
	if !allowed && !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("%s: expected forbidden, got %v", name, err)
	}
}

func TestMarkRead(t *testing.T) {
	other := &models.Group{ID: "g2", Members: []string{"dave"}}
	tests := []struct {
		name    string
		actor   string
		env     *models.Envelope
		group   *models.Group
		allowed bool
	}{
		{"direct recipient", "bob", direct, nil, true},
		{"direct sender", "alice", direct, nil, false},
		{"direct stranger", "dave", direct, nil, false},
		{"group member", "carol", grpMsg, team, true},
		{"group sender", "alice", grpMsg, team, false},
		{"group outsider", "dave", grpMsg, team, false},
		{"group mismatch", "dave", grpMsg, other, false},
		{"group missing", "bob", grpMsg, nil, false},
		{"no actor", "", direct, nil, false},
		{"no envelope", "bob", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check(t, tt.name, MarkRead(tt.actor, tt.env, tt.group), tt.allowed)
		})
	}
}

func TestEditDelete(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		env     *models.Envelope
		allowed bool
	}{
		{"sender direct", "alice", direct, true},
		{"recipient direct", "bob", direct, false},
		{"sender group", "alice", grpMsg, true},
		{"member group", "bob", grpMsg, false},
		{"nil envelope", "alice", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check(t, "edit", Edit(tt.actor, tt.env), tt.allowed)
			check(t, "delete", Delete(tt.actor, tt.env), tt.allowed)
		})
	}
}

func TestHistoryAndGroupAccess(t *testing.T) {
	check(t, "pair a", DirectHistory("alice", "alice", "bob"), true)
	check(t, "pair b", DirectHistory("bob", "alice", "bob"), true)
	check(t, "pair outsider", DirectHistory("carol", "alice", "bob"), false)
	check(t, "pair empty", DirectHistory("", "", "bob"), false)

	for _, fn := range []func(string, *models.Group) error{GroupHistory, GetGroup, SendGroup} {
		check(t, "member", fn("bob", team), true)
		check(t, "outsider", fn("dave", team), false)
		check(t, "nil group", fn("bob", nil), false)
	}
}
