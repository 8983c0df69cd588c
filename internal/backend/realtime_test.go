package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewFeedRewritesScheme(t *testing.T) {
	feed := NewFeed("https://example.supabase.co/", "anon", nil)
	if feed.socketURL != "wss://example.supabase.co/realtime/v1/websocket" {
		t.Fatalf("socketURL = %q", feed.socketURL)
	}
	feed = NewFeed("http://localhost:54321", "anon", nil)
	if feed.socketURL != "ws://localhost:54321/realtime/v1/websocket" {
		t.Fatalf("socketURL = %q", feed.socketURL)
	}
}

func TestDecodeChangeInsert(t *testing.T) {
	event, ok := DecodeChange(ChangeData{
		Type:   "INSERT",
		Record: json.RawMessage(`{"id":"chat-1","user_id":"user-1","title":"hi"}`),
	})
	if !ok {
		t.Fatal("DecodeChange() ok = false")
	}
	if event.Kind != Inserted || event.Chat.ID != "chat-1" || event.Chat.Title != "hi" {
		t.Fatalf("event = %+v", event)
	}
}

func TestDecodeChangeUpdateCarriesMessages(t *testing.T) {
	event, ok := DecodeChange(ChangeData{
		Type:   "UPDATE",
		Record: json.RawMessage(`{"id":"chat-1","messages":[{"sender":"user","text":"hi"}]}`),
	})
	if !ok {
		t.Fatal("DecodeChange() ok = false")
	}
	if event.Kind != Updated || len(event.Chat.Messages) != 1 || event.Chat.Messages[0].Text != "hi" {
		t.Fatalf("event = %+v", event)
	}
}

func TestDecodeChangeDeleteUsesOldRecord(t *testing.T) {
	event, ok := DecodeChange(ChangeData{
		Type:      "DELETE",
		OldRecord: json.RawMessage(`{"id":"chat-1"}`),
	})
	if !ok {
		t.Fatal("DecodeChange() ok = false")
	}
	if event.Kind != Deleted || event.Chat.ID != "chat-1" {
		t.Fatalf("event = %+v", event)
	}
}

func TestDecodeChangeRejectsUnknownType(t *testing.T) {
	if _, ok := DecodeChange(ChangeData{Type: "TRUNCATE"}); ok {
		t.Fatal("DecodeChange() accepted unknown type")
	}
}

func TestDecodeChangeRejectsMalformedRecord(t *testing.T) {
	if _, ok := DecodeChange(ChangeData{Type: "INSERT", Record: json.RawMessage(`nope`)}); ok {
		t.Fatal("DecodeChange() accepted malformed record")
	}
}

func TestChannelCloseDuringHeartbeats(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan phoenixMessage, 64)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var message phoenixMessage
			if err := conn.ReadJSON(&message); err != nil {
				return
			}
			received <- message
		}
	}))
	defer server.Close()

	feed := NewFeed(server.URL, "anon", slog.New(slog.NewTextHandler(io.Discard, nil)))
	feed.heartbeat = time.Millisecond

	channel, err := feed.Subscribe(context.Background(), "user:1", "chats", "", func(ChangeEvent) {})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	waitFor := func(event string) phoenixMessage {
		deadline := time.After(2 * time.Second)
		for {
			select {
			case message := <-received:
				if message.Event == event {
					return message
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", event)
				return phoenixMessage{}
			}
		}
	}

	join := waitFor("phx_join")
	if join.Topic != "realtime:user:1" {
		t.Fatalf("join topic = %q", join.Topic)
	}

	// Close lands mid-stream while the heartbeat ticker is firing every
	// millisecond, so the leave frame and a heartbeat contend for the
	// connection's single writer.
	waitFor("heartbeat")
	if err := channel.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	waitFor("phx_leave")

	if err := channel.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
