package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/pliu/murmur/internal/apperr"
	"github.com/pliu/murmur/internal/models"
)

// Inbound event types.
const (
	EventJoin       = "join"
	EventSendDirect = "send-direct"
	EventSendGroup  = "send-group"
	EventTyping     = "typing"
	EventMarkRead   = "mark-read"
	EventEdit       = "edit"
	EventDelete     = "delete"
	EventGetHistory = "get-history"
)

// Outbound event types.
const (
	EventJoined         = "joined"
	EventDirectSent     = "direct-sent"
	EventGroupSent      = "group-sent"
	EventReceiveDirect  = "receive-direct"
	EventReceiveGroup   = "receive-group"
	EventUserOnline     = "user-online"
	EventUserOffline    = "user-offline"
	EventUserTyping     = "user-typing"
	EventMessageRead    = "message-read"
	EventMessageEdited  = "message-edited"
	EventMessageDeleted = "message-deleted"
	EventHistory        = "history"
	EventError          = "error"
)

// Frame is the envelope of every message on the live channel.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinEvent struct {
	IdentityID string `json:"identity_id"`
}

type SendDirectEvent struct {
	RecipientID string      `json:"recipient_id"`
	Ciphertext  string      `json:"ciphertext"`
	IV          string      `json:"iv"`
	AuthTag     string      `json:"auth_tag"`
	WrappedKey  string      `json:"wrapped_key"`
	Kind        models.Kind `json:"kind,omitempty"`
}

type SendGroupEvent struct {
	GroupID    string      `json:"group_id"`
	Ciphertext string      `json:"ciphertext"`
	IV         string      `json:"iv"`
	AuthTag    string      `json:"auth_tag"`
	Kind       models.Kind `json:"kind,omitempty"`
}

type TypingEvent struct {
	RecipientID string `json:"recipient_id"`
	IsTyping    bool   `json:"is_typing"`
}

type MarkReadEvent struct {
	ID string `json:"id"`
}

type EditEvent struct {
	ID         string `json:"id"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
}

type DeleteEvent struct {
	ID string `json:"id"`
}

type GetHistoryEvent struct {
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	Limit       *int   `json:"limit,omitempty"`
}

// Outbound payloads that are not plain envelopes.

type IDPayload struct {
	ID string `json:"id"`
}

type PresencePayload struct {
	IdentityID string `json:"identity_id"`
}

type TypingPayload struct {
	IdentityID string `json:"identity_id"`
	IsTyping   bool   `json:"is_typing"`
}

type ReadPayload struct {
	ID       string    `json:"id"`
	ReaderID string    `json:"reader_id"`
	ReadAt   time.Time `json:"read_at"`
}

type DeletedPayload struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id,omitempty"`
}

type HistoryPayload struct {
	RecipientID string            `json:"recipient_id,omitempty"`
	GroupID     string            `json:"group_id,omitempty"`
	Messages    []models.Envelope `json:"messages"`
}

// decodeFrame parses the outer frame and the event payload for its type.
// Unknown types, unknown fields and trailing data are all rejected.
func decodeFrame(raw []byte) (string, any, error) {
	var f Frame
	if err := strictUnmarshal(raw, &f); err != nil {
		return "", nil, apperr.Invalid("frame", "is not a valid event frame")
	}

	var payload any
	switch f.Type {
	case EventJoin:
		payload = &JoinEvent{}
	case EventSendDirect:
		payload = &SendDirectEvent{}
	case EventSendGroup:
		payload = &SendGroupEvent{}
	case EventTyping:
		payload = &TypingEvent{}
	case EventMarkRead:
		payload = &MarkReadEvent{}
	case EventEdit:
		payload = &EditEvent{}
	case EventDelete:
		payload = &DeleteEvent{}
	case EventGetHistory:
		payload = &GetHistoryEvent{}
	default:
		return "", nil, apperr.Invalid("type", "is not a known event type")
	}

	if len(f.Data) == 0 {
		return f.Type, nil, apperr.Invalid("data", "is required")
	}
	if err := strictUnmarshal(f.Data, payload); err != nil {
		return f.Type, nil, apperr.Invalid("data", "does not match the event schema")
	}
	return f.Type, payload, nil
}

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after event")
	}
	return nil
}

func encodeFrame(eventType string, data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: eventType, Data: body})
}
