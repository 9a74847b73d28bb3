// Package media carries playback commands to the media transport and its
// started/ended notifications back to the engine.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Command is a playback instruction.
type Command string

const (
	CommandStart Command = "start"
	CommandPause Command = "pause"
	CommandStop  Command = "stop"
)

// Notification is a state change reported by the transport.
type Notification string

const (
	NotificationStarted Notification = "started"
	NotificationEnded   Notification = "ended"
)

// Transport is the narrow command surface of the media player.
type Transport interface {
	StartPlayback(ctx context.Context, code, itemID string) error
	Pause(ctx context.Context, code string) error
	Stop(ctx context.Context, code string) error
}

// Handler reacts to transport notifications.
type Handler interface {
	MediaStarted(ctx context.Context, code, itemID string) error
	MediaEnded(ctx context.Context, code, itemID string) error
}

// Noop is a Transport for rooms whose playback is driven elsewhere.
type Noop struct{}

func (Noop) StartPlayback(context.Context, string, string) error { return nil }
func (Noop) Pause(context.Context, string) error                 { return nil }
func (Noop) Stop(context.Context, string) error                  { return nil }

// Message is the wire form of commands and notifications.
type Message struct {
	Room   string    `json:"room"`
	Kind   string    `json:"kind"`
	ItemID string    `json:"item_id,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

const subjectPrefix = "buzz.media"

// CommandSubject is the subject commands for a room are published on.
func CommandSubject(code string) string { return fmt.Sprintf("%s.%s.cmd", subjectPrefix, code) }

// NotificationSubject is the subject notifications for a room arrive on.
func NotificationSubject(code string) string { return fmt.Sprintf("%s.%s.evt", subjectPrefix, code) }

// NATSTransport sends commands over core NATS.
type NATSTransport struct {
	nc *nats.Conn
}

func NewNATSTransport(nc *nats.Conn) *NATSTransport {
	return &NATSTransport{nc: nc}
}

func (t *NATSTransport) StartPlayback(ctx context.Context, code, itemID string) error {
	return t.send(code, Message{Room: code, Kind: string(CommandStart), ItemID: itemID})
}

func (t *NATSTransport) Pause(ctx context.Context, code string) error {
	return t.send(code, Message{Room: code, Kind: string(CommandPause)})
}

func (t *NATSTransport) Stop(ctx context.Context, code string) error {
	return t.send(code, Message{Room: code, Kind: string(CommandStop)})
}

func (t *NATSTransport) send(code string, msg Message) error {
	msg.SentAt = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal media command: %w", err)
	}
	if err := t.nc.Publish(CommandSubject(code), data); err != nil {
		return fmt.Errorf("publish media %s for room %s: %w", msg.Kind, code, err)
	}
	log.Debug().Str("room", code).Str("command", msg.Kind).Msg("sent media command")
	return nil
}

// Listen delivers notifications of every room to h until ctx is done.
func (t *NATSTransport) Listen(ctx context.Context, h Handler) error {
	sub, err := t.nc.Subscribe(subjectPrefix+".*.evt", func(m *nats.Msg) {
		Dispatch(ctx, h, m.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to media notifications: %w", err)
	}
	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("failed to unsubscribe from media notifications")
		}
	}()
	return nil
}

// Dispatch decodes one notification and hands it to h.
func Dispatch(ctx context.Context, h Handler, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal media notification")
		return
	}

	var err error
	switch Notification(strings.ToLower(msg.Kind)) {
	case NotificationStarted:
		err = h.MediaStarted(ctx, msg.Room, msg.ItemID)
	case NotificationEnded:
		err = h.MediaEnded(ctx, msg.Room, msg.ItemID)
	default:
		log.Warn().Str("room", msg.Room).Str("kind", msg.Kind).Msg("unknown media notification")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room", msg.Room).Str("kind", msg.Kind).Msg("failed to handle media notification")
	}
}
