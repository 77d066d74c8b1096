// Package sse is the event fanout engine. It delivers typed events to every
// session, to room members, or to the live session of specific identities.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jojo-app/realtime-server-go/internal/config"
	"github.com/jojo-app/realtime-server-go/internal/metrics"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/registry"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	ID       string
	Identity model.Identity
	Events   chan Event
	Done     chan struct{}

	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Done) })
}

// Target selects recipients. The union of all selectors is delivered to at
// most once per session.
type Target struct {
	All        bool     `json:"all,omitempty"`
	Rooms      []string `json:"rooms,omitempty"`
	Identities []string `json:"identities,omitempty"`
	Sessions   []string `json:"sessions,omitempty"`
	Exclude    string   `json:"exclude,omitempty"`
}

// spansInstances reports whether recipients may live on other instances.
// Session handles are bound to the instance that accepted them.
func (t Target) spansInstances() bool {
	return t.All || len(t.Rooms) > 0 || len(t.Identities) > 0
}

type PublishResult struct {
	Delivered int
	Dropped   int
}

// Relay forwards events to other server instances.
type Relay interface {
	Forward(ctx context.Context, target Target, event Event) error
}

type Broker struct {
	registry *registry.Registry
	metrics  metrics.MetricsCollector
	now      func() time.Time

	mu      sync.RWMutex
	clients map[string]*Client

	relayMu sync.RWMutex
	relay   Relay

	roomScoped bool
}

type Option func(*Broker)

// WithRoomScopedMoments routes moment events to their category room and the
// "all" room instead of every session.
func WithRoomScopedMoments(enabled bool) Option {
	return func(b *Broker) { b.roomScoped = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

func WithMetrics(m metrics.MetricsCollector) Option {
	return func(b *Broker) { b.metrics = m }
}

func NewBroker(reg *registry.Registry, opts ...Option) *Broker {
	b := &Broker{
		registry: reg,
		metrics:  metrics.Nop{},
		now:      time.Now,
		clients:  make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) SetRelay(r Relay) {
	b.relayMu.Lock()
	b.relay = r
	b.relayMu.Unlock()
}

// Connect registers a new session for id, greets it with connection:success
// and, for authenticated identities, announces user:online to everyone else.
func (b *Broker) Connect(ctx context.Context, id model.Identity) *Client {
	client := &Client{
		ID:       uuid.NewString(),
		Identity: id,
		Events:   make(chan Event, config.SessionEventBuffer),
		Done:     make(chan struct{}),
	}

	b.mu.Lock()
	b.clients[client.ID] = client
	b.mu.Unlock()

	superseded := b.registry.Register(id, client.ID)
	b.recordSessions()

	log.Info().
		Str("identityId", id.ID).
		Bool("isGuest", id.IsGuest()).
		Str("sessionId", client.ID).
		Str("superseded", superseded).
		Msg("sse client connected")

	b.Publish(ctx, Target{Sessions: []string{client.ID}}, model.EventConnectionSuccess, model.ConnectionSuccessPayload{
		IdentityID: id.ID,
		IsGuest:    id.IsGuest(),
		SessionID:  client.ID,
	})

	if !id.IsGuest() {
		b.Publish(ctx, Target{All: true, Exclude: client.ID}, model.EventUserOnline, model.PresencePayload{IdentityID: id.ID})
	}

	return client
}

// Disconnect removes the session. user:offline is broadcast only when the
// identity has no newer session.
func (b *Broker) Disconnect(ctx context.Context, client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	b.mu.Unlock()
	client.close()

	res := b.registry.Unregister(client.ID)
	b.recordSessions()

	log.Info().
		Str("identityId", client.Identity.ID).
		Str("sessionId", client.ID).
		Bool("wentOffline", res.WentOffline).
		Msg("sse client disconnected")

	if res.WentOffline {
		b.Publish(ctx, Target{All: true}, model.EventUserOffline, model.PresencePayload{IdentityID: res.Identity.ID})
	}
}

func (b *Broker) recordSessions() {
	stats := b.registry.Stats()
	b.metrics.RecordSessions(stats.Authenticated, stats.Guests)
}

// Client returns the attached session with the given id.
func (b *Broker) Client(sessionID string) (*Client, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.clients[sessionID]
	return c, ok
}

// Publish stamps the payload with the server time and delivers it to every
// matching local session before returning. Sessions on other instances are
// reached through the relay when one is configured.
func (b *Broker) Publish(ctx context.Context, target Target, eventType string, payload any) PublishResult {
	data, err := stamp(payload, b.now())
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to encode event payload")
		return PublishResult{}
	}
	event := Event{Type: eventType, Data: data}

	result := b.Deliver(target, event)

	b.relayMu.RLock()
	relay := b.relay
	b.relayMu.RUnlock()
	if relay != nil && target.spansInstances() {
		if err := relay.Forward(ctx, target, event); err != nil {
			log.Warn().Err(err).Str("event", eventType).Msg("failed to relay event")
		}
	}

	return result
}

// Deliver hands an already-encoded event to local sessions only.
func (b *Broker) Deliver(target Target, event Event) PublishResult {
	handles := b.resolve(target)

	var result PublishResult
	b.mu.RLock()
	for handle := range handles {
		client, ok := b.clients[handle]
		if !ok {
			continue
		}
		select {
		case client.Events <- event:
			result.Delivered++
		default:
			result.Dropped++
			log.Warn().
				Str("sessionId", handle).
				Str("event", event.Type).
				Msg("client event buffer full, dropping event")
		}
	}
	b.mu.RUnlock()

	b.metrics.RecordEventPublished(event.Type, result.Delivered, result.Dropped)
	return result
}

func (b *Broker) resolve(target Target) map[string]struct{} {
	handles := make(map[string]struct{})

	if target.All {
		b.mu.RLock()
		for h := range b.clients {
			handles[h] = struct{}{}
		}
		b.mu.RUnlock()
	}
	for _, room := range target.Rooms {
		for _, h := range b.registry.RoomMembers(room) {
			handles[h] = struct{}{}
		}
	}
	for _, id := range target.Identities {
		if h, ok := b.registry.LookupHandle(id); ok {
			handles[h] = struct{}{}
		}
	}
	for _, h := range target.Sessions {
		handles[h] = struct{}{}
	}
	if target.Exclude != "" {
		delete(handles, target.Exclude)
	}
	return handles
}

func (b *Broker) PublishGlobal(ctx context.Context, eventType string, payload any) PublishResult {
	return b.Publish(ctx, Target{All: true}, eventType, payload)
}

func (b *Broker) PublishRoom(ctx context.Context, room, eventType string, payload any) PublishResult {
	return b.Publish(ctx, Target{Rooms: []string{room}}, eventType, payload)
}

// PublishToIdentity is a silent no-op when the identity has no live session.
func (b *Broker) PublishToIdentity(ctx context.Context, identityID, eventType string, payload any) PublishResult {
	return b.PublishToIdentities(ctx, []string{identityID}, eventType, payload)
}

func (b *Broker) PublishToIdentities(ctx context.Context, identityIDs []string, eventType string, payload any) PublishResult {
	return b.Publish(ctx, Target{Identities: identityIDs}, eventType, payload)
}

// PublishMoment sends a moment event to everyone and the moment's category
// room, or only to the category and "all" rooms when room scoping is on.
func (b *Broker) PublishMoment(ctx context.Context, category model.Category, eventType string, payload any) PublishResult {
	rooms := []string{string(category)}
	if b.roomScoped {
		return b.Publish(ctx, Target{Rooms: append(rooms, string(model.CategoryAll))}, eventType, payload)
	}
	return b.Publish(ctx, Target{All: true, Rooms: rooms}, eventType, payload)
}

// JoinRoom subscribes a session and acknowledges with category:joined.
func (b *Broker) JoinRoom(ctx context.Context, sessionID, room string) (bool, error) {
	joined, err := b.registry.JoinRoom(sessionID, room)
	if err != nil || !joined {
		return joined, err
	}
	b.Publish(ctx, Target{Sessions: []string{sessionID}}, model.EventCategoryJoined, model.RoomJoinedPayload{Room: room})
	return true, nil
}

func (b *Broker) LeaveRoom(sessionID, room string) error {
	return b.registry.LeaveRoom(sessionID, room)
}

func (b *Broker) Stats() registry.Stats {
	return b.registry.Stats()
}

// Close ends every attached session.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, client := range b.clients {
		client.close()
	}
	b.clients = make(map[string]*Client)
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// stamp encodes payload and adds a millisecond "timestamp" field. Non-object
// payloads are wrapped under "data".
func stamp(payload any, at time.Time) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	ts, _ := json.Marshal(at.UnixMilli())
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		fields := map[string]json.RawMessage{}
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, err
		}
		fields["timestamp"] = ts
		return json.Marshal(fields)
	}

	return json.Marshal(map[string]json.RawMessage{"data": raw, "timestamp": ts})
}
