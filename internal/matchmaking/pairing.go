package matchmaking

import (
	"encoding/json"
	"log/slog"

	"github.com/cheildo/duel-relay/internal/room"
	"github.com/cheildo/duel-relay/internal/session"
)

// EventGameStart is sent to each participant when a room is formed.
const EventGameStart = "gameStart"

// GameStart tells one participant which room it is in, its side, and what the
// opponent picked.
type GameStart struct {
	Room              string          `json:"room"`
	Role              room.Role       `json:"role"`
	Opponent          string          `json:"opponent"`
	OpponentSelection json.RawMessage `json:"opponentSelection"`
	OpponentRating    int             `json:"opponentRating"`
}

// Engine drains the queue two at a time into rooms. Pairing is strictly first come,
// first served; rating is not considered.
type Engine struct {
	queue    *Queue
	registry *session.Registry
	rooms    *room.Directory
	logger   *slog.Logger
}

func NewEngine(queue *Queue, registry *session.Registry, rooms *room.Directory, logger *slog.Logger) *Engine {
	return &Engine{
		queue:    queue,
		registry: registry,
		rooms:    rooms,
		logger:   logger,
	}
}

// Pair forms as many rooms as the queue allows and returns them in creation order.
// Entries whose connection has gone away are discarded; a live partner goes back to the
// head of the queue and the pass continues.
func (e *Engine) Pair() []*room.Room {
	var formed []*room.Room
	for e.queue.Len() >= 2 {
		firstID, secondID := e.queue.popPair()
		first, firstLive := e.live(firstID)
		second, secondLive := e.live(secondID)

		if !firstLive || !secondLive {
			switch {
			case firstLive:
				e.queue.pushFront(firstID)
			case secondLive:
				e.queue.pushFront(secondID)
			}
			e.logger.Info("Discarded stale queue entry",
				"first", firstID, "firstLive", firstLive,
				"second", secondID, "secondLive", secondLive)
			continue
		}

		r := room.NewRoom(first, second)
		e.rooms.Add(r)
		first.RoomID = r.ID
		second.RoomID = r.ID

		e.announce(r)
		e.logger.Info("Match started", "room", r.ID, "green", first.DisplayName, "red", second.DisplayName)
		formed = append(formed, r)
	}
	return formed
}

func (e *Engine) live(connID string) (*session.Session, bool) {
	s, ok := e.registry.Lookup(connID)
	if !ok || !s.Conn.Alive() {
		return nil, false
	}
	return s, true
}

func (e *Engine) announce(r *room.Room) {
	for _, p := range r.Participants {
		opp, _ := r.Opponent(p.Session.ID())
		msg := GameStart{
			Room:              r.ID,
			Role:              p.Role,
			Opponent:          opp.Session.DisplayName,
			OpponentSelection: opp.Session.Selection,
			OpponentRating:    opp.Session.Rating,
		}
		if err := p.Session.Conn.Emit(EventGameStart, msg); err != nil {
			e.logger.Warn("Failed to send gameStart", "room", r.ID, "to", p.Session.ID(), "error", err)
		}
	}
}
