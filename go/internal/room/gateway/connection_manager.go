package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/metrics"
	"github.com/mcdev12/buzzroom/go/internal/room/race"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/rs/zerolog/log"
)

// Watcher streams store snapshots of a room.
type Watcher interface {
	Watch(ctx context.Context, code string) (<-chan store.Snapshot, error)
}

// Actions is the participant action surface reachable over a websocket.
type Actions interface {
	AttemptSignal(ctx context.Context, code, participantID, name string) (race.Outcome, error)
	SubmitAnswer(ctx context.Context, code, participantID, text string) error
}

// Limiter throttles participant actions.
type Limiter interface {
	Allow(room, participantID string) bool
}

// Message kinds pushed to clients.
const (
	KindState  = "state"
	KindEvent  = "event"
	KindResult = "result"
	KindError  = "error"
)

// ServerMessage is one frame sent to a client.
type ServerMessage struct {
	Kind   string        `json:"kind"`
	State  *RoomState    `json:"state,omitempty"`
	Event  *events.Event `json:"event,omitempty"`
	Result *ActionResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Client actions.
const (
	ActionSignal = "signal"
	ActionAnswer = "answer"
	ActionPing   = "ping"
)

// ClientMessage is one frame received from a client.
type ClientMessage struct {
	Action string `json:"action"`
	Ref    string `json:"ref,omitempty"` // echoed in the result
	Name   string `json:"name,omitempty"`
	Text   string `json:"text,omitempty"`
}

// ActionResult answers a ClientMessage.
type ActionResult struct {
	Ref         string `json:"ref,omitempty"`
	Action      string `json:"action"`
	Won         bool   `json:"won,omitempty"`
	Reason      string `json:"reason,omitempty"`
	ConfigError bool   `json:"config_error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ConnectionManager manages websocket connections grouped by room code
type ConnectionManager struct {
	rooms map[string]*roomConnections
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	deps     Dependencies

	broadcastCh chan BroadcastMessage

	ctx    context.Context
	cancel context.CancelFunc
}

type roomConnections struct {
	conns     map[*Connection]bool
	stopWatch context.CancelFunc
}

// Connection represents a websocket connection to a client
type Connection struct {
	ID            string
	ParticipantID string // empty for spectators
	Room          string
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	ActionTimeout   time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// Dependencies are the collaborators of a ConnectionManager. Only Clock and
// Metrics are defaulted; a nil Watcher disables snapshot streaming and a nil
// Actions rejects client actions.
type Dependencies struct {
	Watcher Watcher
	Actions Actions
	Limiter Limiter
	Metrics metrics.Collector
	Clock   clockwork.Clock
}

// BroadcastMessage represents a message to broadcast to connections
type BroadcastMessage struct {
	Room          string
	Message       ServerMessage
	ParticipantID string // Optional: if set, only send to this participant
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		ActionTimeout:   5 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new websocket connection manager
func NewConnectionManager(config ConnectionConfig, deps Dependencies) *ConnectionManager {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoOp{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ConnectionManager{
		rooms: make(map[string]*roomConnections),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		deps:        deps,
		broadcastCh: make(chan BroadcastMessage, 1000),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start processes broadcast messages until ctx is done, then closes every
// connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to a websocket and sends the
// initial room state.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, code, participantID string, initial *RoomState) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := cm.deps.Clock.Now()
	connection := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: participantID,
		Room:          code,
		Conn:          conn,
		Send:          make(chan []byte, cm.config.SendBufferSize),
		Manager:       cm,
		ConnectedAt:   now,
		LastPing:      now,
	}

	cm.registerConnection(connection)
	if initial != nil {
		cm.deliver(connection, ServerMessage{Kind: KindState, State: initial})
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", participantID).
		Str("room", code).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	rc := cm.rooms[conn.Room]
	if rc == nil {
		rc = &roomConnections{conns: make(map[*Connection]bool)}
		cm.rooms[conn.Room] = rc
		if cm.deps.Watcher != nil {
			ctx, cancel := context.WithCancel(cm.ctx)
			rc.stopWatch = cancel
			go cm.watchRoom(ctx, conn.Room)
		}
	}
	rc.conns[conn] = true
	total := cm.countLocked()
	cm.mu.Unlock()

	cm.deps.Metrics.SetActiveConnections(total)
	log.Debug().
		Str("connection_id", conn.ID).
		Str("room", conn.Room).
		Int("room_connections", len(rc.conns)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	rc, exists := cm.rooms[conn.Room]
	if !exists || !rc.conns[conn] {
		cm.mu.Unlock()
		return
	}
	delete(rc.conns, conn)
	close(conn.Send)
	if len(rc.conns) == 0 {
		if rc.stopWatch != nil {
			rc.stopWatch()
		}
		delete(cm.rooms, conn.Room)
	}
	total := cm.countLocked()
	cm.mu.Unlock()

	cm.deps.Metrics.SetActiveConnections(total)
	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", conn.ParticipantID).
		Str("room", conn.Room).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) countLocked() int {
	total := 0
	for _, rc := range cm.rooms {
		total += len(rc.conns)
	}
	return total
}

func (cm *ConnectionManager) closeAll() {
	cm.cancel()

	cm.mu.RLock()
	var all []*Connection
	for _, rc := range cm.rooms {
		for conn := range rc.conns {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// watchRoom forwards store snapshots of code while the room has connections.
func (cm *ConnectionManager) watchRoom(ctx context.Context, code string) {
	ch, err := cm.deps.Watcher.Watch(ctx, code)
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("failed to watch room")
		return
	}
	for snap := range ch {
		cm.BroadcastState(code, stateFromSnapshot(snap, cm.deps.Clock.Now()))
	}
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().
			Str("room", message.Room).
			Str("kind", message.Message.Kind).
			Msg("broadcast channel full, dropping message")
	}
}

// BroadcastEvent sends an event to every connection of its room
func (cm *ConnectionManager) BroadcastEvent(e events.Event) {
	cm.enqueue(BroadcastMessage{Room: e.Room, Message: ServerMessage{Kind: KindEvent, Event: &e}})
}

// BroadcastState sends a room view to every connection of the room
func (cm *ConnectionManager) BroadcastState(code string, state *RoomState) {
	cm.enqueue(BroadcastMessage{Room: code, Message: ServerMessage{Kind: KindState, State: state}})
}

// BroadcastToParticipant sends a message to one participant's connections
func (cm *ConnectionManager) BroadcastToParticipant(code, participantID string, message ServerMessage) {
	cm.enqueue(BroadcastMessage{Room: code, Message: message, ParticipantID: participantID})
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	data, err := json.Marshal(message.Message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message for broadcast")
		return
	}

	var slow []*Connection
	sent := 0
	cm.mu.RLock()
	if rc, exists := cm.rooms[message.Room]; exists {
		for conn := range rc.conns {
			if message.ParticipantID != "" && conn.ParticipantID != message.ParticipantID {
				continue
			}
			select {
			case conn.Send <- data:
				sent++
			default:
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("participant_id", conn.ParticipantID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("kind", message.Message.Kind).
		Str("room", message.Room).
		Int("connections", sent).
		Msg("message broadcasted")
}

// deliver sends a message to a single connection without going through the
// broadcast queue.
func (cm *ConnectionManager) deliver(conn *Connection, message ServerMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message")
		return
	}

	cm.mu.RLock()
	registered := false
	if rc, ok := cm.rooms[conn.Room]; ok {
		registered = rc.conns[conn]
	}
	if registered {
		select {
		case conn.Send <- data:
		default:
			log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, dropping reply")
		}
	}
	cm.mu.RUnlock()
}

// ConnectionStats summarizes active connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{RoomConnections: make(map[string]int, len(cm.rooms))}
	for code, rc := range cm.rooms {
		stats.TotalConnections += len(rc.conns)
		stats.RoomConnections[code] = len(rc.conns)
	}
	stats.ActiveRooms = len(cm.rooms)
	return stats
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage runs a participant action and replies on the same
// connection.
func (c *Connection) handleClientMessage(raw []byte) {
	cm := c.Manager

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		cm.deliver(c, ServerMessage{Kind: KindError, Error: "malformed message"})
		return
	}
	result := &ActionResult{Ref: msg.Ref, Action: msg.Action}

	switch {
	case msg.Action == ActionPing:
		c.LastPing = cm.deps.Clock.Now()
		cm.deliver(c, ServerMessage{Kind: KindResult, Result: result})
		return
	case msg.Action != ActionSignal && msg.Action != ActionAnswer:
		result.Error = fmt.Sprintf("unknown action %q", msg.Action)
		result.ErrorKind = "validation"
		cm.deliver(c, ServerMessage{Kind: KindResult, Result: result})
		return
	case c.ParticipantID == "" || cm.deps.Actions == nil:
		result.Error = "connection cannot act"
		result.ErrorKind = "validation"
		cm.deliver(c, ServerMessage{Kind: KindResult, Result: result})
		return
	case cm.deps.Limiter != nil && !cm.deps.Limiter.Allow(c.Room, c.ParticipantID):
		result.Error = "rate limited"
		result.ErrorKind = "rate_limited"
		cm.deliver(c, ServerMessage{Kind: KindResult, Result: result})
		return
	}

	ctx, cancel := context.WithTimeout(cm.ctx, cm.config.ActionTimeout)
	defer cancel()

	var err error
	switch msg.Action {
	case ActionSignal:
		var out race.Outcome
		out, err = cm.deps.Actions.AttemptSignal(ctx, c.Room, c.ParticipantID, msg.Name)
		result.Won = out.Won
		result.Reason = string(out.Reason)
		result.ConfigError = out.ConfigError
	case ActionAnswer:
		err = cm.deps.Actions.SubmitAnswer(ctx, c.Room, c.ParticipantID, msg.Text)
	}
	if err != nil {
		result.Error = err.Error()
		result.ErrorKind = roomerr.Kind(err)
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("action", msg.Action).
			Msg("client action failed")
	}
	cm.deliver(c, ServerMessage{Kind: KindResult, Result: result})
}
