package room_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheildo/duel-relay/internal/room"
	"github.com/cheildo/duel-relay/internal/session"
	"github.com/cheildo/duel-relay/internal/session/sessiontest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(reg *session.Registry, id, name string) (*session.Session, *sessiontest.Conn) {
	conn := sessiontest.NewConn(id)
	return reg.Register(conn, name, 1000, 0), conn
}

func TestNewRoom_RolesAndID(t *testing.T) {
	reg := session.NewRegistry()
	a, _ := newSession(reg, "a", "alice")
	b, _ := newSession(reg, "b", "bob")

	r := room.NewRoom(a, b)

	assert.Equal(t, "battle_a_b", r.ID)
	assert.Equal(t, room.RoleFirst, r.Participants[0].Role)
	assert.Equal(t, room.RoleSecond, r.Participants[1].Role)
	assert.Equal(t, []string{"a", "b"}, r.PlayerIDs())

	opp, ok := r.Opponent("a")
	require.True(t, ok)
	assert.Equal(t, "bob", opp.Session.DisplayName)

	_, ok = r.Opponent("c")
	assert.False(t, ok)
}

func TestDirectory_AddRemove(t *testing.T) {
	reg := session.NewRegistry()
	a, _ := newSession(reg, "a", "alice")
	b, _ := newSession(reg, "b", "bob")
	dir := room.NewDirectory()

	r := room.NewRoom(a, b)
	dir.Add(r)

	assert.Equal(t, 1, dir.Len())
	assert.Equal(t, r.ID, dir.RoomOf("a"))
	assert.Equal(t, r.ID, dir.RoomOf("b"))

	removed := dir.Remove(r.ID)
	require.NotNil(t, removed)
	assert.Equal(t, "", dir.RoomOf("a"))
	assert.Equal(t, 0, dir.Len())
	assert.Nil(t, dir.Remove(r.ID))
}

func TestRelay_OnlyReachesOpponent(t *testing.T) {
	reg := session.NewRegistry()
	a, connA := newSession(reg, "a", "alice")
	b, connB := newSession(reg, "b", "bob")
	c, connC := newSession(reg, "c", "carol")
	d, connD := newSession(reg, "d", "dave")
	dir := room.NewDirectory()
	ab := room.NewRoom(a, b)
	dir.Add(ab)
	dir.Add(room.NewRoom(c, d))

	rl := room.NewRelay(dir, testLogger())
	payload := json.RawMessage(`{"x":1,"y":2}`)

	n := rl.Relay("a", ab.ID, "enemyShoot", payload)

	assert.Equal(t, 1, n)
	require.Len(t, connB.Named("enemyShoot"), 1)
	assert.Equal(t, payload, connB.Named("enemyShoot")[0].Payload)
	assert.Empty(t, connA.Events())
	assert.Empty(t, connC.Events())
	assert.Empty(t, connD.Events())
}

func TestRelay_UnknownRoomOrOutsider(t *testing.T) {
	reg := session.NewRegistry()
	a, _ := newSession(reg, "a", "alice")
	b, connB := newSession(reg, "b", "bob")
	dir := room.NewDirectory()
	r := room.NewRoom(a, b)
	dir.Add(r)
	rl := room.NewRelay(dir, testLogger())

	assert.Equal(t, 0, rl.Relay("a", "battle_missing", "enemyAim", nil))
	assert.Equal(t, 0, rl.Relay("c", r.ID, "enemyAim", nil))
	assert.Empty(t, connB.Events())
}

func TestRelay_DeadOpponent(t *testing.T) {
	reg := session.NewRegistry()
	a, _ := newSession(reg, "a", "alice")
	b, connB := newSession(reg, "b", "bob")
	dir := room.NewDirectory()
	r := room.NewRoom(a, b)
	dir.Add(r)
	rl := room.NewRelay(dir, testLogger())

	connB.Close()

	assert.Equal(t, 0, rl.Relay("a", r.ID, "enemyAim", json.RawMessage(`{}`)))
	assert.Empty(t, connB.Events())
}

func TestDeliveredName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"aim", "enemyAim", true},
		{"endAim", "enemyEndAim", true},
		{"shoot", "enemyShoot", true},
		{"syncTurn", "syncTurnData", true},
		{"login", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := room.DeliveredName(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
