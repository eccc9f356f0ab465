package ws

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pliu/murmur/internal/apperr"
	"github.com/pliu/murmur/internal/groups"
	"github.com/pliu/murmur/internal/guard"
	"github.com/pliu/murmur/internal/identity"
	"github.com/pliu/murmur/internal/models"
	"github.com/pliu/murmur/internal/presence"
	"github.com/pliu/murmur/internal/ratelimit"
	"github.com/pliu/murmur/internal/redact"
	"github.com/pliu/murmur/internal/store"
	"github.com/pliu/murmur/internal/validate"
)

const (
	defaultStoreTimeout    = 5 * time.Second
	defaultMaxMessageBytes = 50 << 20
)

// Conn is a live connection the hub can route to.
type Conn interface {
	presence.Conn
	RemoteAddr() string
}

type Options struct {
	Store      store.Store
	Identities *identity.Registry
	Groups     *groups.Distribution
	Sessions   *presence.Registry
	// EventLimiter is keyed by remote address. Nil disables the event quota.
	EventLimiter *ratelimit.Limiter
	Logger       *zap.Logger
	Redactor     *redact.Redactor
	Registerer   prometheus.Registerer

	DefaultHistory  int
	MaxHistory      int
	MaxMessageBytes int64
	StoreTimeout    time.Duration
}

// Hub relays envelopes between live sessions. Events from one connection are
// handled one at a time by that connection's reader; the hub itself only
// serializes connect and disconnect.
type Hub struct {
	store      store.Store
	identities *identity.Registry
	groups     *groups.Distribution
	sessions   *presence.Registry
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
	redactor   *redact.Redactor
	metrics    *hubMetrics

	defaultHistory  int
	maxHistory      int
	maxMessageBytes int64
	storeTimeout    time.Duration
	now             func() time.Time

	// Register requests from the clients.
	register chan Conn

	// Unregister requests from clients.
	unregister chan Conn

	done chan struct{}
}

func NewHub(opts Options) *Hub {
	h := &Hub{
		store:           opts.Store,
		identities:      opts.Identities,
		groups:          opts.Groups,
		sessions:        opts.Sessions,
		limiter:         opts.EventLimiter,
		logger:          opts.Logger,
		redactor:        opts.Redactor,
		metrics:         newHubMetrics(opts.Registerer),
		defaultHistory:  opts.DefaultHistory,
		maxHistory:      opts.MaxHistory,
		maxMessageBytes: opts.MaxMessageBytes,
		storeTimeout:    opts.StoreTimeout,
		now:             time.Now,
		register:        make(chan Conn),
		unregister:      make(chan Conn),
		done:            make(chan struct{}),
	}
	if h.identities == nil {
		h.identities = identity.NewRegistry(opts.Store)
	}
	if h.groups == nil {
		h.groups = groups.NewDistribution(opts.Store)
	}
	if h.sessions == nil {
		h.sessions = presence.NewRegistry()
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	h.logger = h.logger.With(zap.String("component", "hub"))
	if h.maxHistory <= 0 {
		h.maxHistory = 100
	}
	if h.defaultHistory <= 0 || h.defaultHistory > h.maxHistory {
		h.defaultHistory = min(50, h.maxHistory)
	}
	if h.maxMessageBytes <= 0 {
		h.maxMessageBytes = defaultMaxMessageBytes
	}
	if h.storeTimeout <= 0 {
		h.storeTimeout = defaultStoreTimeout
	}
	return h
}

// Run processes connects and disconnects until ctx is done, then closes
// every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.sessions.All() {
				c.Close()
			}
			return
		case c := <-h.register:
			h.connect(c)
		case c := <-h.unregister:
			h.disconnect(c)
		}
	}
}

// Register adds c as an anonymous connection. It reports false once the hub
// has stopped.
func (h *Hub) Register(c Conn) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) connect(c Conn) {
	h.sessions.Add(c)
	h.updateGauges()
	h.logger.Debug("connection opened", zap.String("conn", c.ID()))
}

func (h *Hub) disconnect(c Conn) {
	identityID, offline := h.sessions.Remove(c)
	c.Close()
	if offline {
		h.broadcast(nil, EventUserOffline, PresencePayload{IdentityID: identityID})
	}
	h.updateGauges()
	h.logger.Debug("connection closed", zap.String("conn", c.ID()), zap.Bool("offline", offline))
}

func (h *Hub) updateGauges() {
	conns, identities := h.sessions.Count()
	h.metrics.activeSessions.Set(float64(conns))
	h.metrics.onlineIdentities.Set(float64(identities))
}

// Handle processes one inbound frame from c to completion. Store writes are
// detached from ctx cancellation so a dropped connection never aborts a write
// already issued; they are bounded by the store timeout instead.
func (h *Hub) Handle(ctx context.Context, c Conn, raw []byte) {
	start := time.Now()
	op := "invalid"

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.storeTimeout)
	defer cancel()

	err := func() error {
		if h.limiter != nil && !h.limiter.Allow(c.RemoteAddr()) {
			op = "rate_limited"
			return apperr.RateLimited()
		}
		eventType, payload, err := decodeFrame(raw)
		if eventType != "" {
			op = eventType
		}
		if err != nil {
			return err
		}
		return h.dispatch(ctx, c, payload)
	}()

	h.metrics.events.WithLabelValues(op).Inc()
	h.metrics.eventLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		h.reject(c, op, err)
	}
}

func (h *Hub) dispatch(ctx context.Context, c Conn, payload any) error {
	switch ev := payload.(type) {
	case *JoinEvent:
		return h.join(ctx, c, ev)
	case *SendDirectEvent:
		return h.sendDirect(ctx, c, ev)
	case *SendGroupEvent:
		return h.sendGroup(ctx, c, ev)
	case *TypingEvent:
		return h.typing(c, ev)
	case *MarkReadEvent:
		return h.markRead(ctx, c, ev)
	case *EditEvent:
		return h.edit(ctx, c, ev)
	case *DeleteEvent:
		return h.deleteMessage(ctx, c, ev)
	case *GetHistoryEvent:
		return h.history(ctx, c, ev)
	}
	return apperr.Invalid("type", "is not a known event type")
}

// reject reports err to c only.
func (h *Hub) reject(c Conn, op string, err error) {
	payload := apperr.Public(err, h.redactor)
	h.metrics.eventErrors.WithLabelValues(payload.Code).Inc()
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error("event failed", zap.String("event", op), zap.String("conn", c.ID()), zap.Error(err))
	} else {
		h.logger.Debug("event rejected", zap.String("event", op), zap.String("conn", c.ID()), zap.String("code", payload.Code))
	}
	h.send(c, EventError, payload)
}

func (h *Hub) send(c presence.Conn, eventType string, data any) {
	h.deliver([]presence.Conn{c}, eventType, data)
}

func (h *Hub) deliver(conns []presence.Conn, eventType string, data any) {
	if len(conns) == 0 {
		return
	}
	frame, err := encodeFrame(eventType, data)
	if err != nil {
		h.logger.Error("encode frame", zap.String("event", eventType), zap.Error(err))
		return
	}
	for _, c := range conns {
		if !c.Send(frame) {
			h.metrics.dropped.Inc()
		}
	}
}

func (h *Hub) toIdentity(identityID, eventType string, data any) {
	h.deliver(h.sessions.Sessions(identityID), eventType, data)
}

// toMembers delivers to every member of group except the one given.
func (h *Hub) toMembers(group *models.Group, except, eventType string, data any) {
	var conns []presence.Conn
	for _, member := range group.Members {
		if member != except {
			conns = append(conns, h.sessions.Sessions(member)...)
		}
	}
	h.deliver(conns, eventType, data)
}

// broadcast delivers to every live connection except the one given.
func (h *Hub) broadcast(except presence.Conn, eventType string, data any) {
	all := h.sessions.All()
	conns := all[:0]
	for _, c := range all {
		if except == nil || c.ID() != except.ID() {
			conns = append(conns, c)
		}
	}
	h.deliver(conns, eventType, data)
}

// toAudience delivers to the original audience of env: the other party of a
// direct envelope, or every group member other than the sender.
func (h *Hub) toAudience(ctx context.Context, env *models.Envelope, eventType string, data any) {
	if env.IsDirect() {
		h.toIdentity(env.RecipientID, eventType, data)
		return
	}
	group, err := h.store.GetGroup(ctx, env.GroupID)
	if err != nil {
		h.logger.Error("load audience", zap.String("event", eventType), zap.Error(err))
		return
	}
	h.toMembers(group, env.SenderID, eventType, data)
}

// actor returns the identity c is joined as.
func (h *Hub) actor(c Conn) (string, error) {
	id, ok := h.sessions.Identity(c)
	if !ok {
		return "", apperr.Forbidden()
	}
	return id, nil
}

func (h *Hub) join(ctx context.Context, c Conn, ev *JoinEvent) error {
	if err := h.identities.Exists(ctx, "identity_id", ev.IdentityID); err != nil {
		return err
	}
	res := h.sessions.Bind(c, ev.IdentityID)
	if res.PreviousOffline {
		h.broadcast(c, EventUserOffline, PresencePayload{IdentityID: res.Previous})
	}
	h.send(c, EventJoined, PresencePayload{IdentityID: ev.IdentityID})
	h.broadcast(c, EventUserOnline, PresencePayload{IdentityID: ev.IdentityID})
	h.updateGauges()
	return nil
}

func (h *Hub) sendDirect(ctx context.Context, c Conn, ev *SendDirectEvent) error {
	sender, err := h.actor(c)
	if err != nil {
		return err
	}
	if err := validate.ID("recipient_id", ev.RecipientID); err != nil {
		return err
	}
	if err := h.validateContent(ev.Ciphertext, ev.IV, ev.AuthTag); err != nil {
		return err
	}
	if err := validate.Blob("wrapped_key", ev.WrappedKey, validate.MaxWrappedKey); err != nil {
		return err
	}
	kind, err := kindOrDefault(ev.Kind)
	if err != nil {
		return err
	}
	if ev.RecipientID == sender {
		return apperr.Invalid("recipient_id", "cannot be the sender")
	}
	if err := h.identities.Exists(ctx, "recipient_id", ev.RecipientID); err != nil {
		return err
	}

	env := &models.Envelope{
		SenderID:    sender,
		RecipientID: ev.RecipientID,
		Ciphertext:  ev.Ciphertext,
		IV:          ev.IV,
		AuthTag:     ev.AuthTag,
		WrappedKey:  ev.WrappedKey,
		Kind:        kind,
	}
	if err := h.store.SaveEnvelope(ctx, env); err != nil {
		return apperr.Internal(err)
	}

	h.toIdentity(env.RecipientID, EventReceiveDirect, env)
	h.send(c, EventDirectSent, IDPayload{ID: env.ID})
	return nil
}

func (h *Hub) sendGroup(ctx context.Context, c Conn, ev *SendGroupEvent) error {
	sender, err := h.actor(c)
	if err != nil {
		return err
	}
	if err := h.validateContent(ev.Ciphertext, ev.IV, ev.AuthTag); err != nil {
		return err
	}
	kind, err := kindOrDefault(ev.Kind)
	if err != nil {
		return err
	}
	group, err := h.groups.Load(ctx, ev.GroupID)
	if err != nil {
		return err
	}
	if err := guard.SendGroup(sender, group); err != nil {
		return err
	}

	env := &models.Envelope{
		SenderID:   sender,
		GroupID:    group.ID,
		Ciphertext: ev.Ciphertext,
		IV:         ev.IV,
		AuthTag:    ev.AuthTag,
		Kind:       kind,
	}
	if err := h.store.SaveEnvelope(ctx, env); err != nil {
		return apperr.Internal(err)
	}

	h.toMembers(group, sender, EventReceiveGroup, env)
	h.send(c, EventGroupSent, IDPayload{ID: env.ID})
	return nil
}

// typing is best effort: nothing is checked beyond the id shape, and nothing
// is reported if the recipient is offline.
func (h *Hub) typing(c Conn, ev *TypingEvent) error {
	sender, err := h.actor(c)
	if err != nil {
		return err
	}
	if err := validate.ID("recipient_id", ev.RecipientID); err != nil {
		return err
	}
	h.toIdentity(ev.RecipientID, EventUserTyping, TypingPayload{IdentityID: sender, IsTyping: ev.IsTyping})
	return nil
}

func (h *Hub) markRead(ctx context.Context, c Conn, ev *MarkReadEvent) error {
	reader, err := h.actor(c)
	if err != nil {
		return err
	}
	env, err := h.envelope(ctx, ev.ID)
	if err != nil {
		return err
	}
	var group *models.Group
	if env.IsGroup() {
		group, err = h.store.GetGroup(ctx, env.GroupID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return apperr.Internal(err)
		}
	}
	if err := guard.MarkRead(reader, env, group); err != nil {
		return err
	}
	if env.Deleted() {
		return apperr.NotFound("message")
	}

	at := h.now().UTC()
	if err := h.store.MarkRead(ctx, env.ID, at); err != nil {
		return mutationErr(err)
	}
	h.toIdentity(env.SenderID, EventMessageRead, ReadPayload{ID: env.ID, ReaderID: reader, ReadAt: at})
	return nil
}

func (h *Hub) edit(ctx context.Context, c Conn, ev *EditEvent) error {
	editor, err := h.actor(c)
	if err != nil {
		return err
	}
	if err := h.validateContent(ev.Ciphertext, ev.IV, ev.AuthTag); err != nil {
		return err
	}
	env, err := h.envelope(ctx, ev.ID)
	if err != nil {
		return err
	}
	if err := guard.Edit(editor, env); err != nil {
		return err
	}
	if env.Deleted() {
		return apperr.NotFound("message")
	}

	at := h.now().UTC()
	if err := h.store.UpdateContent(ctx, env.ID, ev.Ciphertext, ev.IV, ev.AuthTag, at); err != nil {
		return mutationErr(err)
	}
	env.Ciphertext, env.IV, env.AuthTag = ev.Ciphertext, ev.IV, ev.AuthTag
	env.EditedAt = &at

	h.toAudience(ctx, env, EventMessageEdited, env)
	h.send(c, EventMessageEdited, env)
	return nil
}

func (h *Hub) deleteMessage(ctx context.Context, c Conn, ev *DeleteEvent) error {
	sender, err := h.actor(c)
	if err != nil {
		return err
	}
	env, err := h.envelope(ctx, ev.ID)
	if err != nil {
		return err
	}
	if err := guard.Delete(sender, env); err != nil {
		return err
	}
	if env.Deleted() {
		return apperr.NotFound("message")
	}

	if err := h.store.MarkDeleted(ctx, env.ID, h.now().UTC()); err != nil {
		return mutationErr(err)
	}
	payload := DeletedPayload{ID: env.ID, GroupID: env.GroupID}
	h.toAudience(ctx, env, EventMessageDeleted, payload)
	h.send(c, EventMessageDeleted, payload)
	return nil
}

func (h *Hub) history(ctx context.Context, c Conn, ev *GetHistoryEvent) error {
	requester, err := h.actor(c)
	if err != nil {
		return err
	}
	if (ev.RecipientID == "") == (ev.GroupID == "") {
		return apperr.Invalid("recipient_id", "exactly one of recipient_id and group_id is required")
	}
	// Zero or absent means the default page size.
	limit := h.defaultHistory
	if ev.Limit != nil && *ev.Limit != 0 {
		limit = max(1, min(*ev.Limit, h.maxHistory))
	}

	payload := HistoryPayload{RecipientID: ev.RecipientID, GroupID: ev.GroupID}
	if ev.RecipientID != "" {
		if err := validate.ID("recipient_id", ev.RecipientID); err != nil {
			return err
		}
		if err := guard.DirectHistory(requester, requester, ev.RecipientID); err != nil {
			return err
		}
		payload.Messages, err = h.store.DirectHistory(ctx, requester, ev.RecipientID, limit)
	} else {
		group, gerr := h.groups.Load(ctx, ev.GroupID)
		if gerr != nil {
			return gerr
		}
		if err := guard.GroupHistory(requester, group); err != nil {
			return err
		}
		payload.Messages, err = h.store.GroupHistory(ctx, group.ID, limit)
	}
	if err != nil {
		return apperr.Internal(err)
	}
	if payload.Messages == nil {
		payload.Messages = []models.Envelope{}
	}
	h.send(c, EventHistory, payload)
	return nil
}

// envelope loads an envelope for a mutation. An unknown id is reported as
// Forbidden so that probing reveals nothing.
func (h *Hub) envelope(ctx context.Context, id string) (*models.Envelope, error) {
	if err := validate.ID("id", id); err != nil {
		return nil, err
	}
	env, err := h.store.GetEnvelope(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Forbidden()
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return env, nil
}

func (h *Hub) validateContent(ciphertext, iv, authTag string) error {
	if err := validate.Blob("ciphertext", ciphertext, int(h.maxMessageBytes)); err != nil {
		return err
	}
	if err := validate.FixedBlob("iv", iv, validate.GCMNonceSize); err != nil {
		return err
	}
	return validate.FixedBlob("auth_tag", authTag, validate.GCMTagSize)
}

func kindOrDefault(k models.Kind) (models.Kind, error) {
	if k == "" {
		return models.KindText, nil
	}
	if !k.Valid() {
		return "", apperr.Invalid("kind", "must be one of text, image, file, voice")
	}
	return k, nil
}

// mutationErr maps a failed single-record update. ErrNotFound here means the
// envelope was tombstoned after it was loaded.
func mutationErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("message")
	}
	return apperr.Internal(err)
}
