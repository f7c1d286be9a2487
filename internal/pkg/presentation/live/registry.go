package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var ErrConnectionAuth = fmt.Errorf("invalid or expired token")
var ErrConnectionInUse = fmt.Errorf("connection id is held by another identity")

type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Close codes sent to clients.
const (
	CloseNormal        = 1000
	CloseInternalError = 1011
	CloseInvalidToken  = 4001
	CloseIDInUse       = 4009
)

type TokenValidator interface {
	SubjectFromToken(ctx context.Context, token string) (string, error)
}

// Sender is the transport side of a connection.
type Sender interface {
	Send(message []byte) error
	Close(code int, reason string)
}

type connection struct {
	id            string
	subject       string
	authenticated bool
	createdAt     time.Time
	topics        []string
	sender        Sender
}

type Info struct {
	ID            string    `json:"connection_id"`
	SubjectID     string    `json:"user_id,omitempty"`
	Authenticated bool      `json:"authenticated"`
	CreatedAt     time.Time `json:"created_at"`
	Topics        []string  `json:"topics,omitempty"`
}

type Stats struct {
	Connections   int `json:"connections"`
	Authenticated int `json:"authenticated"`
	Subjects      int `json:"subjects"`
}

// Registry keeps track of open connections and which subject each one belongs to.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*connection
	subjects  map[string]map[string]struct{}
	validator TokenValidator
	log       zerolog.Logger
}

func New(validator TokenValidator, log zerolog.Logger) *Registry {
	return &Registry{
		conns:     map[string]*connection{},
		subjects:  map[string]map[string]struct{}{},
		validator: validator,
		log:       log,
	}
}

// Connect opens a connection. Without a token the connection is anonymous and
// only receives broadcasts. An invalid token rejects the connection.
// An open id is only taken over by a connection with the same identity.
func (r *Registry) Connect(ctx context.Context, id, token string, sender Sender) (State, error) {
	c := &connection{
		id:        id,
		createdAt: time.Now().UTC(),
		sender:    sender,
	}

	if token != "" {
		if r.validator == nil {
			return StateClosed, ErrConnectionAuth
		}

		subject, err := r.validator.SubjectFromToken(ctx, token)
		if err != nil || subject == "" {
			return StateClosed, fmt.Errorf("%w: %v", ErrConnectionAuth, err)
		}

		c.subject = subject
		c.authenticated = true
	}

	r.mu.Lock()
	if existing, ok := r.conns[id]; ok && (existing.authenticated != c.authenticated || existing.subject != c.subject) {
		r.mu.Unlock()
		return StateClosed, ErrConnectionInUse
	}
	previous := r.remove(id)
	r.conns[id] = c
	if c.authenticated {
		if _, ok := r.subjects[c.subject]; !ok {
			r.subjects[c.subject] = map[string]struct{}{}
		}
		r.subjects[c.subject][id] = struct{}{}
	}
	r.mu.Unlock()

	if previous != nil {
		previous.sender.Close(CloseNormal, "replaced by new connection")
	}

	log := logging.GetFromContext(ctx)
	log.Info().Str("connection_id", id).Str("subject_id", c.subject).Bool("authenticated", c.authenticated).Msg("connection opened")

	return StateOpen, nil
}

// Disconnect removes the connection from the registry. Calling it for an unknown id is a no-op.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	c := r.remove(id)
	r.mu.Unlock()

	if c != nil {
		c.sender.Close(CloseNormal, "")
		r.log.Info().Str("connection_id", id).Msg("connection closed")
	}
}

// release disconnects id only while it is still served by sender.
func (r *Registry) release(id string, sender Sender) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok && c.sender == sender {
		r.remove(id)
	} else {
		c = nil
	}
	r.mu.Unlock()

	if c != nil {
		c.sender.Close(CloseNormal, "")
		r.log.Info().Str("connection_id", id).Msg("connection closed")
	}
}

// remove must be called with the write lock held
func (r *Registry) remove(id string) *connection {
	c, ok := r.conns[id]
	if !ok {
		return nil
	}

	delete(r.conns, id)

	if c.authenticated {
		if ids, ok := r.subjects[c.subject]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(r.subjects, c.subject)
			}
		}
	}

	return c
}

// drop disconnects c unless its id has already been taken over by another connection.
func (r *Registry) drop(c *connection, code int, reason string) {
	r.mu.Lock()
	current, ok := r.conns[c.id]
	if ok && current == c {
		r.remove(c.id)
	}
	r.mu.Unlock()

	c.sender.Close(code, reason)
}

// SendToSubject delivers the message to every open connection of the subject
// and returns the number of successful deliveries.
func (r *Registry) SendToSubject(ctx context.Context, subject string, message any) (int, error) {
	b, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	targets := make([]*connection, 0, len(r.subjects[subject]))
	for id := range r.subjects[subject] {
		targets = append(targets, r.conns[id])
	}
	r.mu.RUnlock()

	return r.deliver(ctx, targets, b), nil
}

// Broadcast delivers the message to every open connection, authenticated or not.
func (r *Registry) Broadcast(ctx context.Context, message any) (int, error) {
	b, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	targets := lo.Values(r.conns)
	r.mu.RUnlock()

	return r.deliver(ctx, targets, b), nil
}

func (r *Registry) deliver(ctx context.Context, targets []*connection, message []byte) int {
	log := logging.GetFromContext(ctx)

	delivered := 0

	for _, c := range targets {
		if err := c.sender.Send(message); err != nil {
			log.Warn().Err(err).Str("connection_id", c.id).Msg("send failed, dropping connection")
			r.drop(c, CloseInternalError, "send failed")
			continue
		}
		delivered++
	}

	return delivered
}

func (r *Registry) sendTo(ctx context.Context, id string, message any) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok {
		return
	}

	b, err := json.Marshal(message)
	if err != nil {
		return
	}

	r.deliver(ctx, []*connection{c}, b)
}

type inbound struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	ID        json.RawMessage `json:"id,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Topics    []string        `json:"topics,omitempty"`
}

// HandleInbound reacts to a message sent by the client on connection id.
func (r *Registry) HandleInbound(ctx context.Context, id string, raw []byte) {
	log := logging.GetFromContext(ctx).With().Str("connection_id", id).Logger()

	raw = bytes.TrimSpace(raw)

	if string(raw) == "ping" {
		r.sendTo(ctx, id, map[string]any{"type": "pong"})
		return
	}

	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed message")
		return
	}

	switch msg.Type {
	case "ping":
		reply := map[string]any{"type": "pong"}
		if len(msg.Timestamp) > 0 {
			reply["timestamp"] = msg.Timestamp
		}
		if len(msg.ID) > 0 {
			reply["id"] = msg.ID
		}
		r.sendTo(ctx, id, reply)

	case "subscribe":
		topics := msg.Topics
		if msg.Topic != "" {
			topics = append(topics, msg.Topic)
		}

		r.mu.Lock()
		if c, ok := r.conns[id]; ok {
			c.topics = lo.Uniq(append(c.topics, topics...))
		}
		r.mu.Unlock()

		r.sendTo(ctx, id, map[string]any{"type": "subscribed", "topics": topics})

	case "get_status":
		info, ok := r.ConnectionInfo(id)
		if !ok {
			return
		}

		reply := map[string]any{
			"type":          "status",
			"connection_id": info.ID,
			"user_id":       nil,
			"authenticated": info.Authenticated,
		}
		if info.Authenticated {
			reply["user_id"] = info.SubjectID
		}
		r.sendTo(ctx, id, reply)

	default:
		log.Warn().Str("type", msg.Type).Msg("ignoring unknown message type")
	}
}

func (r *Registry) ConnectionInfo(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return Info{}, false
	}

	return Info{
		ID:            c.id,
		SubjectID:     c.subject,
		Authenticated: c.authenticated,
		CreatedAt:     c.createdAt,
		Topics:        append([]string(nil), c.topics...),
	}, true
}

func (r *Registry) SubjectConnections(subject string) []string {
	r.mu.RLock()
	ids := lo.Keys(r.subjects[subject])
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticated := lo.CountBy(lo.Values(r.conns), func(c *connection) bool {
		return c.authenticated
	})

	return Stats{
		Connections:   len(r.conns),
		Authenticated: authenticated,
		Subjects:      len(r.subjects),
	}
}
