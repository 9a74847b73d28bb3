package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/orchestrator"
	"github.com/mcdev12/buzzroom/go/internal/room/roomtest"
	"github.com/mcdev12/buzzroom/go/internal/room/service"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testGateway struct {
	srv   *httptest.Server
	cm    *ConnectionManager
	repo  *store.Repository
	orch  *orchestrator.Orchestrator
	clock *clockwork.FakeClock
}

func newTestGateway(t *testing.T, limiter Limiter) *testGateway {
	t.Helper()
	repo, _ := roomtest.Repository(t, roomtest.Open(roomtest.Room("GW1", models.ModeClassic, "a", "b"), "song"))
	clock := clockwork.NewFakeClockAt(roomtest.Epoch)
	bus := events.NewBus(64)

	o := orchestrator.New(orchestrator.Config{Repository: repo, Publisher: bus, Clock: clock})
	cm := NewConnectionManager(DefaultConnectionConfig(), Dependencies{
		Watcher: repo,
		Actions: o,
		Limiter: limiter,
		Clock:   clock,
	})
	svc := NewService(cm, repo, NewBusConsumer(cm, bus))

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		o.Shutdown(context.Background())
	})
	return &testGateway{srv: srv, cm: cm, repo: repo, orch: o, clock: clock}
}

func (g *testGateway) dial(t *testing.T, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws/room?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func resultFor(ref string) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Kind == KindResult && m.Result != nil && m.Result.Ref == ref }
}

func TestWebSocket_InitialStateAndSignal(t *testing.T) {
	g := newTestGateway(t, nil)
	conn, _, err := g.dial(t, "code=GW1&participant_id=a")
	require.NoError(t, err)

	first := readUntil(t, conn, func(m ServerMessage) bool { return m.Kind == KindState })
	require.NotNil(t, first.State.Room)
	assert.Equal(t, models.PhaseAwaitingSignal, first.State.Room.Phase)
	assert.Len(t, first.State.Leaderboard, 2)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionSignal, Ref: "1", Name: "Alice"}))

	// The reply, the event and the new snapshot travel separate paths.
	var result, won, state *ServerMessage
	readUntil(t, conn, func(m ServerMessage) bool {
		switch {
		case resultFor("1")(m):
			result = &m
		case m.Kind == KindEvent && m.Event.Type == events.TypeSignalWon:
			won = &m
		case m.Kind == KindState && m.State.Room != nil && m.State.Room.Winner != nil:
			state = &m
		}
		return result != nil && won != nil && state != nil
	})
	assert.True(t, result.Result.Won)
	assert.Empty(t, result.Result.Error)

	payload, err := events.Decode(*won.Event)
	require.NoError(t, err)
	assert.Equal(t, "a", payload.(*events.SignalWonPayload).ParticipantID)

	assert.Equal(t, "a", state.State.Room.Winner.ParticipantID)
	assert.Equal(t, models.PhaseSignalReceived, state.State.Room.Phase)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionAnswer, Ref: "2", Text: "Bohemian Rhapsody"}))
	res := readUntil(t, conn, resultFor("2"))
	assert.Empty(t, res.Result.Error)
}

func TestWebSocket_LoserIsRejected(t *testing.T) {
	g := newTestGateway(t, nil)
	a, _, err := g.dial(t, "code=GW1&participant_id=a")
	require.NoError(t, err)
	b, _, err := g.dial(t, "code=GW1&participant_id=b")
	require.NoError(t, err)

	require.NoError(t, a.WriteJSON(ClientMessage{Action: ActionSignal, Ref: "a"}))
	assert.True(t, readUntil(t, a, resultFor("a")).Result.Won)

	require.NoError(t, b.WriteJSON(ClientMessage{Action: ActionSignal, Ref: "b"}))
	res := readUntil(t, b, resultFor("b"))
	assert.False(t, res.Result.Won)
	assert.Equal(t, "already won", res.Result.Reason)
}

func TestWebSocket_SpectatorCannotAct(t *testing.T) {
	g := newTestGateway(t, nil)
	conn, _, err := g.dial(t, "code=GW1")
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionSignal, Ref: "s"}))
	res := readUntil(t, conn, resultFor("s"))
	assert.False(t, res.Result.Won)
	assert.Equal(t, "validation", res.Result.ErrorKind)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "dance", Ref: "d"}))
	res = readUntil(t, conn, resultFor("d"))
	assert.Equal(t, "validation", res.Result.ErrorKind)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := readUntil(t, conn, func(m ServerMessage) bool { return m.Kind == KindError })
	assert.Equal(t, "malformed message", msg.Error)
}

func TestWebSocket_RateLimited(t *testing.T) {
	clock := clockwork.NewFakeClockAt(roomtest.Epoch)
	g := newTestGateway(t, service.NewParticipantLimiter(clock, 1, 1, time.Minute))
	conn, _, err := g.dial(t, "code=GW1&participant_id=b")
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionSignal, Ref: "1"}))
	assert.True(t, readUntil(t, conn, resultFor("1")).Result.Won)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionSignal, Ref: "2"}))
	assert.Equal(t, "rate_limited", readUntil(t, conn, resultFor("2")).Result.ErrorKind)
}

func TestWebSocket_RejectedUpgrades(t *testing.T) {
	g := newTestGateway(t, nil)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing code", "participant_id=a", http.StatusBadRequest},
		{"unknown room", "code=NOPE&participant_id=a", http.StatusNotFound},
		{"unknown participant", "code=GW1&participant_id=zed", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := g.dial(t, tt.query)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestWebSocket_DeletedRoomIsPushed(t *testing.T) {
	g := newTestGateway(t, nil)
	conn, _, err := g.dial(t, "code=GW1")
	require.NoError(t, err)
	// The direct initial state and the watch's first snapshot.
	states := 0
	readUntil(t, conn, func(m ServerMessage) bool {
		if m.Kind == KindState {
			states++
		}
		return states == 2
	})

	require.NoError(t, g.orch.DeleteRoom(context.Background(), "GW1", roomtest.Host))

	msg := readUntil(t, conn, func(m ServerMessage) bool { return m.Kind == KindState && m.State.Deleted })
	assert.Nil(t, msg.State.Room)
}

func TestConnectionStats(t *testing.T) {
	g := newTestGateway(t, nil)
	conn, _, err := g.dial(t, "code=GW1&participant_id=a")
	require.NoError(t, err)
	readUntil(t, conn, func(m ServerMessage) bool { return m.Kind == KindState })

	resp, err := http.Get(g.srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.RoomConnections["GW1"])

	conn.Close()
	assert.Eventually(t, func() bool {
		return g.cm.GetConnectionStats().TotalConnections == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStateHandler(t *testing.T) {
	g := newTestGateway(t, nil)

	resp, err := http.Get(g.srv.URL + "/api/rooms/GW1/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state RoomState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, "GW1", state.Code)
	assert.NotZero(t, state.Revision)
	assert.Equal(t, "song", state.Room.CurrentItemID)
	assert.True(t, state.ServerTime.Equal(roomtest.Epoch))

	missing, err := http.Get(g.srv.URL + "/api/rooms/NOPE/state")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestNewRoomState(t *testing.T) {
	room := roomtest.Room("T1", models.ModeTurnBased, "a", "b")
	room.Turn = &models.TurnState{
		Order:           []string{"a", "b"},
		TurnNumber:      1,
		CurrentPlayerID: "a",
		StartedAt:       roomtest.Epoch,
		AdvantagePhase:  true,
	}

	state := NewRoomState("T1", room, 7, roomtest.Epoch.Add(4*time.Second))
	require.NotNil(t, state.AdvantageRemainingSec)
	assert.Equal(t, 6, *state.AdvantageRemainingSec)
	assert.Nil(t, state.Teams)

	late := NewRoomState("T1", room, 7, roomtest.Epoch.Add(time.Minute))
	assert.Equal(t, 0, *late.AdvantageRemainingSec)

	teams := roomtest.Room("T2", models.ModeTeams, "a", "b")
	teams.Players["a"].Team = "red"
	teams.Players["a"].Points = 10
	assert.NotEmpty(t, NewRoomState("T2", teams, 1, roomtest.Epoch).Teams)

	gone := stateFromSnapshot(store.Snapshot{Code: "T1", Deleted: true, Revision: 9}, roomtest.Epoch)
	assert.True(t, gone.Deleted)
	assert.Nil(t, gone.Room)
}
