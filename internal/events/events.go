package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TypeMatchStarted = "match_started"
	TypeMatchEnded   = "match_ended"
)

// MatchEvent is the payload published for every room lifecycle change.
type MatchEvent struct {
	Type    string    `json:"type"`
	Room    string    `json:"room"`
	Players []string  `json:"players,omitempty"`
	Leaver  string    `json:"leaver,omitempty"`
	At      time.Time `json:"at"`
}

func MatchStarted(roomID string, players []string) MatchEvent {
	return MatchEvent{Type: TypeMatchStarted, Room: roomID, Players: players, At: time.Now().UTC()}
}

func MatchEnded(roomID, leaver string) MatchEvent {
	return MatchEvent{Type: TypeMatchEnded, Room: roomID, Leaver: leaver, At: time.Now().UTC()}
}

// Publisher ships match events to whoever keeps score outside this process.
type Publisher interface {
	Publish(ctx context.Context, e MatchEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher publishes through w, keyed by room id.
func NewKafkaPublisher(w *kafka.Writer) Publisher {
	return &kafkaPublisher{writer: w}
}

func (p *kafkaPublisher) Publish(ctx context.Context, e MatchEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Room),
		Value: value,
	})
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type nopPublisher struct{}

// NopPublisher discards every event. Used when no brokers are configured.
func NopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, MatchEvent) error { return nil }
func (nopPublisher) Close() error                              { return nil }
