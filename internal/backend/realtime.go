package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 30 * time.Second
	realtimeVersion   = "1.0.0"
)

// Feed is the realtime change-notification side of the backend: a phoenix
// channel connection delivering row-level postgres_changes events.
type Feed struct {
	socketURL string
	anonKey   string
	logger    *slog.Logger
	heartbeat time.Duration
}

func NewFeed(baseURL, anonKey string, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	socketURL := strings.TrimRight(baseURL, "/")
	socketURL = strings.Replace(socketURL, "https://", "wss://", 1)
	socketURL = strings.Replace(socketURL, "http://", "ws://", 1)
	return &Feed{
		socketURL: socketURL + "/realtime/v1/websocket",
		anonKey:   anonKey,
		logger:    logger,
		heartbeat: heartbeatInterval,
	}
}

type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type changePayload struct {
	Data ChangeData `json:"data"`
}

type ChangeData struct {
	Type      string          `json:"type"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

// DecodeChange maps a raw postgres_changes payload onto the tagged event
// union. The second return is false for unrecognized event types.
func DecodeChange(data ChangeData) (ChangeEvent, bool) {
	switch data.Type {
	case "INSERT", "UPDATE":
		var row ChatRow
		if err := json.Unmarshal(data.Record, &row); err != nil {
			return ChangeEvent{}, false
		}
		kind := Inserted
		if data.Type == "UPDATE" {
			kind = Updated
		}
		return ChangeEvent{Kind: kind, Chat: row}, true
	case "DELETE":
		var row ChatRow
		if err := json.Unmarshal(data.OldRecord, &row); err != nil {
			return ChangeEvent{}, false
		}
		return ChangeEvent{Kind: Deleted, Chat: row}, true
	}
	return ChangeEvent{}, false
}

// Channel is one joined realtime topic. Close leaves the topic and tears the
// connection down; it is safe to call more than once.
type Channel struct {
	conn      *websocket.Conn
	topic     string
	logger    *slog.Logger
	heartbeat time.Duration

	// The connection supports one writer at a time; heartbeats and the
	// leave frame share it.
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (ch *Channel) writeJSON(message phoenixMessage) error {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	return ch.conn.WriteJSON(message)
}

func (ch *Channel) Close() error {
	ch.closeOnce.Do(func() {
		close(ch.done)
		leave := phoenixMessage{Topic: ch.topic, Event: "phx_leave", Payload: json.RawMessage("{}"), Ref: "leave"}
		_ = ch.writeJSON(leave)
		_ = ch.conn.Close()
	})
	return nil
}

// Subscribe joins a topic registering interest in row changes on a table,
// optionally narrowed by an equality filter such as "user_id=eq.<id>". The
// handler is invoked from the channel's read loop for every decoded event.
func (f *Feed) Subscribe(ctx context.Context, topic, table, filter string, handler func(ChangeEvent)) (*Channel, error) {
	dialURL := f.socketURL + "?" + url.Values{
		"apikey": {f.anonKey},
		"vsn":    {realtimeVersion},
	}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	binding := map[string]any{
		"event":  "*",
		"schema": "public",
		"table":  table,
	}
	if filter != "" {
		binding["filter"] = filter
	}
	joinPayload, err := json.Marshal(map[string]any{
		"config": map[string]any{
			"postgres_changes": []any{binding},
		},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("encode join payload: %w", err)
	}
	join := phoenixMessage{Topic: "realtime:" + topic, Event: "phx_join", Payload: joinPayload, Ref: "join"}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join channel: %w", err)
	}

	channel := &Channel{
		conn:      conn,
		topic:     "realtime:" + topic,
		logger:    f.logger,
		heartbeat: f.heartbeat,
		done:      make(chan struct{}),
	}

	go channel.readLoop(handler)
	go channel.heartbeatLoop()

	return channel, nil
}

func (ch *Channel) readLoop(handler func(ChangeEvent)) {
	for {
		var message phoenixMessage
		if err := ch.conn.ReadJSON(&message); err != nil {
			select {
			case <-ch.done:
			default:
				ch.logger.Warn("realtime read failed", "topic", ch.topic, "error", err)
			}
			return
		}
		if message.Event != "postgres_changes" {
			continue
		}
		var payload changePayload
		if err := json.Unmarshal(message.Payload, &payload); err != nil {
			ch.logger.Warn("realtime payload decode failed", "topic", ch.topic, "error", err)
			continue
		}
		if event, ok := DecodeChange(payload.Data); ok {
			handler(event)
		}
	}
}

func (ch *Channel) heartbeatLoop() {
	ticker := time.NewTicker(ch.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ch.done:
			return
		case <-ticker.C:
			beat := phoenixMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage("{}"), Ref: "hb"}
			if err := ch.writeJSON(beat); err != nil {
				return
			}
		}
	}
}
