package room

import (
	"encoding/json"
	"log/slog"
)

// Gameplay events accepted from clients and the names they are delivered under.
var relayed = map[string]string{
	"aim":      "enemyAim",
	"endAim":   "enemyEndAim",
	"shoot":    "enemyShoot",
	"syncTurn": "syncTurnData",
}

// DeliveredName maps an inbound gameplay event to the name the opponent receives.
// ok is false for events that are not relayed.
func DeliveredName(event string) (string, bool) {
	name, ok := relayed[event]
	return name, ok
}

// Relay forwards gameplay payloads between the members of a room.
type Relay struct {
	rooms  *Directory
	logger *slog.Logger
}

func NewRelay(rooms *Directory, logger *slog.Logger) *Relay {
	return &Relay{rooms: rooms, logger: logger}
}

// Relay delivers payload under event to every member of roomID except the sender and
// returns how many connections it reached. A missing room, or a sender outside the room,
// delivers nothing.
func (rl *Relay) Relay(senderID, roomID, event string, payload json.RawMessage) int {
	r, ok := rl.rooms.Get(roomID)
	if !ok || !r.Has(senderID) {
		return 0
	}

	delivered := 0
	for _, p := range r.Participants {
		if p.Session.ID() == senderID || !p.Session.Conn.Alive() {
			continue
		}
		if err := p.Session.Conn.Emit(event, payload); err != nil {
			rl.logger.Debug("Relay delivery failed", "room", roomID, "event", event, "to", p.Session.ID(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
