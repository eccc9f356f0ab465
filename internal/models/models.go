package models

import "time"

// Identity is a pseudonymous user. Only public key material is ever stored.
type Identity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	PublicKey   string    `json:"public_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// PublicIdentity is the projection returned by lookups.
type PublicIdentity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PublicKey   string `json:"public_key"`
}

func (i *Identity) Public() PublicIdentity {
	return PublicIdentity{ID: i.ID, DisplayName: i.DisplayName, PublicKey: i.PublicKey}
}

// IdentitySummary is the projection returned by search and group member lists.
type IdentitySummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// WrappedKey is a member's copy of a group's shared key, encrypted by a
// client under that member's public key. The server cannot open it.
type WrappedKey struct {
	MemberID   string `json:"member_id"`
	WrappedKey string `json:"wrapped_key"`
}

type Group struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	AdminID     string       `json:"admin_id"`
	Members     []string     `json:"members"`
	WrappedKeys []WrappedKey `json:"wrapped_keys"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (g *Group) HasMember(id string) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}

// KeyFor returns the wrapped key belonging to memberID.
func (g *Group) KeyFor(memberID string) (WrappedKey, bool) {
	for _, k := range g.WrappedKeys {
		if k.MemberID == memberID {
			return k, true
		}
	}
	return WrappedKey{}, false
}

// GroupView is what a member receives from getGroup: every member's name
// but only the requester's own wrapped key.
type GroupView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Members     []IdentitySummary `json:"members"`
	WrappedKeys []WrappedKey      `json:"wrapped_keys"`
}

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
	KindVoice Kind = "voice"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile, KindVoice:
		return true
	}
	return false
}

// Envelope is a stored message. Exactly one of RecipientID and GroupID is
// set; WrappedKey is set only for direct envelopes.
type Envelope struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id,omitempty"`
	GroupID     string     `json:"group_id,omitempty"`
	Ciphertext  string     `json:"ciphertext"`
	IV          string     `json:"iv"`
	AuthTag     string     `json:"auth_tag"`
	WrappedKey  string     `json:"wrapped_key,omitempty"`
	Kind        Kind       `json:"kind"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	DeletedAt   *time.Time `json:"-"`
}

func (e *Envelope) IsDirect() bool { return e.RecipientID != "" && e.GroupID == "" }

func (e *Envelope) IsGroup() bool { return e.GroupID != "" && e.RecipientID == "" }

func (e *Envelope) Deleted() bool { return e.DeletedAt != nil }
