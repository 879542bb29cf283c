package lifecycle_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheildo/duel-relay/internal/events"
	"github.com/cheildo/duel-relay/internal/lifecycle"
	"github.com/cheildo/duel-relay/internal/matchmaking"
	"github.com/cheildo/duel-relay/internal/metrics"
	"github.com/cheildo/duel-relay/internal/playerprofile"
	"github.com/cheildo/duel-relay/internal/room"
	"github.com/cheildo/duel-relay/internal/session/sessiontest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.MatchEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.MatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) all() []events.MatchEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.MatchEvent(nil), p.events...)
}

type brokenStore struct{}

func (brokenStore) GetByName(context.Context, string) (*playerprofile.Profile, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (brokenStore) CreateDefault(context.Context, string) (*playerprofile.Profile, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type fixture struct {
	ctrl    *lifecycle.Controller
	pub     *recordingPublisher
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, playerprofile.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, store playerprofile.Store) *fixture {
	t.Helper()
	pub := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	svc := playerprofile.NewService(store, 0, testLogger())
	return &fixture{
		ctrl:    lifecycle.New(svc, pub, m, testLogger()),
		pub:     pub,
		metrics: m,
	}
}

// login connects and logs in a fresh connection, then forgets the loginSuccess.
func (f *fixture) login(t *testing.T, id, name string) *sessiontest.Conn {
	t.Helper()
	conn := sessiontest.NewConn(id)
	f.ctrl.Connect(conn)
	f.ctrl.Login(context.Background(), conn, name)
	require.Len(t, conn.Named(lifecycle.EventLoginSuccess), 1)
	conn.Reset()
	return conn
}

func gameStart(t *testing.T, conn *sessiontest.Conn) matchmaking.GameStart {
	t.Helper()
	evs := conn.Named(matchmaking.EventGameStart)
	require.Len(t, evs, 1)
	gs, ok := evs[0].Payload.(matchmaking.GameStart)
	require.True(t, ok)
	return gs
}

func TestLogin_EmitsProfile(t *testing.T) {
	f := newFixture(t)
	conn := sessiontest.NewConn("c1")

	f.ctrl.Login(context.Background(), conn, "  alice ")

	evs := conn.Named(lifecycle.EventLoginSuccess)
	require.Len(t, evs, 1)
	assert.Equal(t, lifecycle.LoginSuccess{Username: "alice", Rating: 1000, Wins: 0}, evs[0].Payload)

	s, ok := f.ctrl.Session("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", s.DisplayName)
}

func TestLogin_DefaultName(t *testing.T) {
	f := newFixture(t)
	conn := sessiontest.NewConn("c1")

	f.ctrl.Login(context.Background(), conn, "")

	evs := conn.Named(lifecycle.EventLoginSuccess)
	require.Len(t, evs, 1)
	assert.Equal(t, "Player", evs[0].Payload.(lifecycle.LoginSuccess).Username)
}

func TestLogin_StoreErrorKeepsConnectionUsable(t *testing.T) {
	f := newFixtureWithStore(t, brokenStore{})
	conn := sessiontest.NewConn("c1")

	f.ctrl.Login(context.Background(), conn, "alice")

	assert.Len(t, conn.Named(lifecycle.EventLoginError), 1)
	assert.Empty(t, conn.Named(lifecycle.EventLoginSuccess))
	_, ok := f.ctrl.Session("c1")
	assert.False(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LoginFailures))
	assert.True(t, conn.Alive())
}

func TestSessionExistsBetweenLoginAndDisconnect(t *testing.T) {
	f := newFixture(t)
	conn := f.login(t, "c1", "alice")

	_, ok := f.ctrl.Session("c1")
	assert.True(t, ok)

	f.ctrl.Disconnect(conn)

	_, ok = f.ctrl.Session("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, f.ctrl.Snapshot().Sessions)
}

func TestFindMatch_WithoutLoginReprompts(t *testing.T) {
	f := newFixture(t)
	conn := sessiontest.NewConn("c1")
	f.ctrl.Connect(conn)

	f.ctrl.FindMatch(conn, nil)

	evs := conn.Named(lifecycle.EventLoginSuccess)
	require.Len(t, evs, 1)
	assert.Equal(t, lifecycle.GuestName, evs[0].Payload.(lifecycle.LoginSuccess).Username)
	assert.Empty(t, f.ctrl.Snapshot().Queued)
}

func TestFindMatch_Idempotent(t *testing.T) {
	f := newFixture(t)
	conn := f.login(t, "c1", "alice")

	f.ctrl.FindMatch(conn, nil)
	f.ctrl.FindMatch(conn, nil)
	f.ctrl.FindMatch(conn, json.RawMessage(`["mage"]`))

	assert.Equal(t, []string{"c1"}, f.ctrl.Snapshot().Queued)
}

func TestFindMatch_PairsAndRevealsSelections(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "a", "alice")
	b := f.login(t, "b", "bob")

	f.ctrl.FindMatch(a, json.RawMessage(`{"heroes":["knight","archer"]}`))
	f.ctrl.FindMatch(b, json.RawMessage(`{"heroes":["mage"]}`))

	gsA := gameStart(t, a)
	gsB := gameStart(t, b)
	assert.Equal(t, "battle_a_b", gsA.Room)
	assert.Equal(t, gsA.Room, gsB.Room)
	assert.Equal(t, room.RoleFirst, gsA.Role)
	assert.Equal(t, room.RoleSecond, gsB.Role)
	assert.Equal(t, "bob", gsA.Opponent)
	assert.Equal(t, "alice", gsB.Opponent)
	assert.JSONEq(t, `{"heroes":["mage"]}`, string(gsA.OpponentSelection))
	assert.JSONEq(t, `{"heroes":["knight","archer"]}`, string(gsB.OpponentSelection))

	snap := f.ctrl.Snapshot()
	assert.Empty(t, snap.Queued)
	assert.Equal(t, 1, snap.Rooms)

	published := f.pub.all()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeMatchStarted, published[0].Type)
	assert.Equal(t, []string{"a", "b"}, published[0].Players)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MatchesStarted))

	// already matched: findMatch is a no-op
	f.ctrl.FindMatch(a, nil)
	assert.Empty(t, f.ctrl.Snapshot().Queued)
}

func TestFindMatch_FIFOFairness(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "a", "alice")
	b := f.login(t, "b", "bob")
	c := f.login(t, "c", "carol")
	d := f.login(t, "d", "dave")

	f.ctrl.FindMatch(a, nil)
	f.ctrl.FindMatch(b, nil)
	f.ctrl.FindMatch(c, nil)

	assert.Equal(t, "battle_a_b", gameStart(t, a).Room)
	assert.Empty(t, c.Named(matchmaking.EventGameStart))

	f.ctrl.FindMatch(d, nil)
	assert.Equal(t, "battle_c_d", gameStart(t, c).Room)
	assert.Equal(t, room.RoleFirst, gameStart(t, c).Role)
}

func TestFindMatch_StaleEntryRecovery(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "a", "alice")
	b := f.login(t, "b", "bob")

	f.ctrl.FindMatch(a, nil)
	// a's socket drops; its disconnect has not been processed yet
	a.Close()
	f.ctrl.FindMatch(b, nil)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, 0, snap.Rooms)
	assert.Equal(t, []string{"b"}, snap.Queued)
	assert.Empty(t, b.Named(matchmaking.EventGameStart))

	f.ctrl.Disconnect(a)
	assert.Equal(t, []string{"b"}, f.ctrl.Snapshot().Queued)

	c := f.login(t, "c", "carol")
	f.ctrl.FindMatch(c, nil)
	assert.Equal(t, "battle_b_c", gameStart(t, b).Room)
}

func TestCancelMatch(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "a", "alice")
	b := f.login(t, "b", "bob")

	f.ctrl.FindMatch(a, nil)
	f.ctrl.CancelMatch(a)
	f.ctrl.CancelMatch(a)
	f.ctrl.FindMatch(b, nil)

	assert.Equal(t, []string{"b"}, f.ctrl.Snapshot().Queued)
	assert.Empty(t, a.Named(matchmaking.EventGameStart))
}

func TestGameplay_RelayIsolation(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "a", "alice")
	b := f.login(t, "b", "bob")
	c := f.login(t, "c", "carol")
	d := f.login(t, "d", "dave")
	e := f.login(t, "e", "erin")

	f.ctrl.FindMatch(a, nil)
	f.ctrl.FindMatch(b, nil)
	f.ctrl.FindMatch(c, nil)
	f.ctrl.FindMatch(d, nil)
	f.ctrl.FindMatch(e, nil) // left waiting
	for _, conn := range []*sessiontest.Conn{a, b, c, d, e} {
		conn.Reset()
	}

	shot := json.RawMessage(`{"unit":3,"vx":1.5,"vy":-2}`)
	f.ctrl.Gameplay(a, "shoot", shot)
	f.ctrl.Gameplay(a, "aim", json.RawMessage(`{"angle":30}`))
	f.ctrl.Gameplay(b, "syncTurn", json.RawMessage(`[{"id":1,"x":0,"y":0}]`))

	require.Len(t, b.Named("enemyShoot"), 1)
	assert.Equal(t, shot, b.Named("enemyShoot")[0].Payload)
	assert.Len(t, b.Named("enemyAim"), 1)
	assert.Len(t, a.Named("syncTurnData"), 1)
	assert.Empty(t, a.Named("enemyShoot"))
	for _, other := range []*sessiontest.Conn{c, d, e} {
		assert.Empty(t, other.Events())
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Relayed.WithLabelValues("enemyShoot")))
}

func TestGameplay_WithoutRoomDropped(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "a", "alice")
	b := f.login(t, "b", "bob")
	f.ctrl.FindMatch(b, nil)

	f.ctrl.Gameplay(a, "shoot", json.RawMessage(`{}`))
	f.ctrl.Gameplay(a, "dance", json.RawMessage(`{}`))

	assert.Empty(t, b.Events())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Dropped.WithLabelValues("enemyShoot")))
}

func TestDisconnect_DuringMatch(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "a", "alice")
	b := f.login(t, "b", "bob")
	f.ctrl.FindMatch(a, nil)
	f.ctrl.FindMatch(b, nil)
	a.Reset()
	b.Reset()

	a.Close()
	f.ctrl.Disconnect(a)

	assert.Len(t, b.Named(lifecycle.EventOpponentLeft), 1)
	assert.Equal(t, 0, f.ctrl.Snapshot().Rooms)

	// the survivor's events go nowhere and it is free to queue again
	f.ctrl.Gameplay(b, "shoot", json.RawMessage(`{}`))
	assert.Empty(t, a.Events())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Dropped.WithLabelValues("enemyShoot")))
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.Relayed.WithLabelValues("enemyShoot")))

	f.ctrl.Disconnect(a)
	assert.Len(t, b.Named(lifecycle.EventOpponentLeft), 1)

	s, ok := f.ctrl.Session("b")
	require.True(t, ok)
	assert.Empty(t, s.RoomID)
	f.ctrl.FindMatch(b, nil)
	assert.Equal(t, []string{"b"}, f.ctrl.Snapshot().Queued)

	published := f.pub.all()
	require.Len(t, published, 2)
	assert.Equal(t, events.TypeMatchEnded, published[1].Type)
	assert.Equal(t, "a", published[1].Leaver)

	f.ctrl.Disconnect(b)
	assert.Len(t, b.Named(lifecycle.EventOpponentLeft), 1)
	assert.Len(t, f.pub.all(), 2)
}

func TestDisconnect_RemovesQueueEntry(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "a", "alice")
	f.ctrl.FindMatch(a, nil)

	f.ctrl.Disconnect(a)

	snap := f.ctrl.Snapshot()
	assert.Empty(t, snap.Queued)
	assert.Equal(t, 0, snap.Sessions)
}

func TestConcurrentFindMatchFormsDisjointRooms(t *testing.T) {
	f := newFixture(t)
	const players = 40
	conns := make([]*sessiontest.Conn, players)
	for i := range conns {
		conns[i] = f.login(t, string(rune('A'+i)), "p")
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *sessiontest.Conn) {
			defer wg.Done()
			f.ctrl.FindMatch(c, nil)
			f.ctrl.FindMatch(c, nil)
		}(conn)
	}
	wg.Wait()

	snap := f.ctrl.Snapshot()
	assert.Equal(t, players/2, snap.Rooms)
	assert.Empty(t, snap.Queued)
	for _, conn := range conns {
		assert.Len(t, conn.Named(matchmaking.EventGameStart), 1)
	}
}
