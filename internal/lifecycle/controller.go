package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/cheildo/duel-relay/internal/events"
	"github.com/cheildo/duel-relay/internal/matchmaking"
	"github.com/cheildo/duel-relay/internal/metrics"
	"github.com/cheildo/duel-relay/internal/playerprofile"
	"github.com/cheildo/duel-relay/internal/room"
	"github.com/cheildo/duel-relay/internal/session"
)

// Client events.
const (
	EventLogin       = "login"
	EventFindMatch   = "findMatch"
	EventCancelMatch = "cancelMatch"
)

// Server events.
const (
	EventLoginSuccess = "loginSuccess"
	EventLoginError   = "loginError"
	EventOpponentLeft = "opponentLeft"
)

// GuestName is sent in a loginSuccess that asks the client to log in again.
const GuestName = "Guest"

type LoginSuccess struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Wins     int    `json:"wins"`
}

type LoginError struct {
	Message string `json:"message"`
}

// Controller owns the registry, queue, pairing engine and rooms, and drives every
// connection through login, queueing, play and disconnect. Structural changes to that
// state happen under mu; relaying only reads the room directory.
type Controller struct {
	mu       sync.Mutex
	registry *session.Registry
	queue    *matchmaking.Queue
	engine   *matchmaking.Engine
	rooms    *room.Directory
	relay    *room.Relay

	profiles  playerprofile.Service
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(profiles playerprofile.Service, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Controller {
	registry := session.NewRegistry()
	queue := matchmaking.NewQueue()
	rooms := room.NewDirectory()
	return &Controller{
		registry:  registry,
		queue:     queue,
		engine:    matchmaking.NewEngine(queue, registry, rooms, logger),
		rooms:     rooms,
		relay:     room.NewRelay(rooms, logger),
		profiles:  profiles,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Connect records a new, not yet logged-in connection.
func (c *Controller) Connect(conn session.Conn) {
	c.metrics.Connections.Inc()
	c.logger.Info("Client connected", "conn", conn.ID())
}

// Login resolves the player's profile and registers the session. The profile lookup
// runs before the shared lock is taken, so a slow store only delays this connection.
func (c *Controller) Login(ctx context.Context, conn session.Conn, displayName string) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = session.DefaultDisplayName
	}

	profile, err := c.profiles.Resolve(ctx, name)
	if err != nil {
		c.metrics.LoginFailures.Inc()
		c.logger.Error("Login failed", "conn", conn.ID(), "username", name, "error", err)
		c.emit(conn, EventLoginError, LoginError{Message: "profile service unavailable, try again"})
		return
	}
	if !conn.Alive() {
		return
	}

	c.mu.Lock()
	s := c.registry.Register(conn, name, profile.Rating, profile.Wins)
	c.updateGauges()
	c.mu.Unlock()

	c.logger.Info("Player logged in", "conn", conn.ID(), "username", s.DisplayName, "rating", s.Rating)
	c.emit(conn, EventLoginSuccess, LoginSuccess{Username: s.DisplayName, Rating: s.Rating, Wins: s.Wins})
}

// FindMatch queues the connection with its selection and runs a pairing pass. A
// connection that never logged in is asked to log in again; one already queued or in a
// room is left alone.
func (c *Controller) FindMatch(conn session.Conn, selection json.RawMessage) {
	c.mu.Lock()
	s, ok := c.registry.Lookup(conn.ID())
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("findMatch without login", "conn", conn.ID())
		c.emit(conn, EventLoginSuccess, LoginSuccess{Username: GuestName})
		return
	}
	if s.RoomID != "" || c.queue.Contains(s.ID()) {
		c.mu.Unlock()
		return
	}

	if len(selection) > 0 {
		s.Selection = selection
	}
	c.queue.Enqueue(s.ID())
	c.logger.Info("Player queued", "conn", s.ID(), "username", s.DisplayName, "waiting", c.queue.Len())

	formed := c.engine.Pair()
	c.metrics.MatchesStarted.Add(float64(len(formed)))
	c.updateGauges()
	c.mu.Unlock()

	for _, r := range formed {
		c.publish(events.MatchStarted(r.ID, r.PlayerIDs()))
	}
}

// CancelMatch takes the connection out of the queue if it is waiting.
func (c *Controller) CancelMatch(conn session.Conn) {
	c.mu.Lock()
	removed := c.queue.Remove(conn.ID())
	c.updateGauges()
	c.mu.Unlock()

	if removed {
		c.logger.Info("Player left the queue", "conn", conn.ID())
	}
}

// Gameplay relays an aim, endAim, shoot or syncTurn payload to the sender's opponent.
// Events from connections outside a room are dropped.
func (c *Controller) Gameplay(conn session.Conn, event string, payload json.RawMessage) {
	delivered, ok := room.DeliveredName(event)
	if !ok {
		return
	}
	roomID := c.rooms.RoomOf(conn.ID())
	if roomID == "" || c.relay.Relay(conn.ID(), roomID, delivered, payload) == 0 {
		c.metrics.Dropped.WithLabelValues(delivered).Inc()
		return
	}
	c.metrics.Relayed.WithLabelValues(delivered).Inc()
}

// Disconnect tears down everything the connection owned. If it was in a room the
// opponent is told once and becomes free to queue again.
func (c *Controller) Disconnect(conn session.Conn) {
	id := conn.ID()

	c.mu.Lock()
	var ended *room.Room
	if roomID := c.rooms.RoomOf(id); roomID != "" {
		ended = c.rooms.Remove(roomID)
	}
	if ended != nil {
		if opp, ok := ended.Opponent(id); ok {
			opp.Session.RoomID = ""
			c.emit(opp.Session.Conn, EventOpponentLeft, nil)
		}
		c.metrics.OpponentLeft.Inc()
	}
	c.queue.Remove(id)
	c.registry.Remove(id)
	c.updateGauges()
	c.mu.Unlock()

	c.metrics.Connections.Dec()
	c.logger.Info("Client disconnected", "conn", id)
	if ended != nil {
		c.logger.Info("Match ended by disconnect", "room", ended.ID, "leaver", id)
		c.publish(events.MatchEnded(ended.ID, id))
	}
}

// Snapshot reports current sizes, mainly for tests and diagnostics.
type Snapshot struct {
	Sessions int
	Queued   []string
	Rooms    int
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Sessions: c.registry.Len(),
		Queued:   c.queue.Snapshot(),
		Rooms:    c.rooms.Len(),
	}
}

// Session returns a copy of the session for connID.
func (c *Controller) Session(connID string) (session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.registry.Lookup(connID)
	if !ok {
		return session.Session{}, false
	}
	return *s, true
}

// updateGauges must be called with mu held.
func (c *Controller) updateGauges() {
	c.metrics.Sessions.Set(float64(c.registry.Len()))
	c.metrics.QueueDepth.Set(float64(c.queue.Len()))
	c.metrics.ActiveRooms.Set(float64(c.rooms.Len()))
}

func (c *Controller) emit(conn session.Conn, event string, payload any) {
	if err := conn.Emit(event, payload); err != nil {
		c.logger.Debug("Emit failed", "conn", conn.ID(), "event", event, "error", err)
	}
}

func (c *Controller) publish(e events.MatchEvent) {
	if err := c.publisher.Publish(context.Background(), e); err != nil {
		c.logger.Error("Failed to publish match event", "type", e.Type, "room", e.Room, "error", err)
	}
}
