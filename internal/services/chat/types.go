package chat

import (
	"strings"
	"time"

	"helper_chat/internal/backend"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ID identifies a conversation. Exactly one field is set: Key once the
// backend has acknowledged the row, Token while the conversation is a local
// draft awaiting creation. Pending conversations are never visible to the
// backend.
type ID struct {
	Key   string
	Token string
}

func DurableID(key string) ID   { return ID{Key: key} }
func PendingID(token string) ID { return ID{Token: token} }
func (id ID) Pending() bool     { return id.Token != "" }
func (id ID) IsZero() bool      { return id.Key == "" && id.Token == "" }

const pendingFragmentPrefix = "pending-"

// String renders the identifier for the URI fragment.
func (id ID) String() string {
	if id.Pending() {
		return pendingFragmentPrefix + id.Token
	}
	return id.Key
}

// ParseID reads an identifier back from the URI fragment.
func ParseID(fragment string) ID {
	if fragment == "" {
		return ID{}
	}
	if token, ok := strings.CutPrefix(fragment, pendingFragmentPrefix); ok {
		return PendingID(token)
	}
	return DurableID(fragment)
}

type Message struct {
	Role      string
	Text      string
	CreatedAt time.Time
	// Placeholder marks the transient assistant entry shown while the
	// delayed response is outstanding. At most one per conversation.
	Placeholder bool
}

type Conversation struct {
	ID        ID
	UserID    string
	Title     string
	Messages  []Message
	CreatedAt time.Time

	// DraftToken is kept after pending-to-durable promotion so work
	// scheduled against the draft can still find the row.
	DraftToken string
}

func fromChatRow(row backend.ChatRow) Conversation {
	messages := make([]Message, 0, len(row.Messages))
	for _, msg := range row.Messages {
		messages = append(messages, fromMessageRow(msg))
	}
	return Conversation{
		ID:        DurableID(row.ID),
		UserID:    row.UserID,
		Title:     row.Title,
		Messages:  messages,
		CreatedAt: row.CreatedAt,
	}
}

func fromMessageRow(row backend.MessageRow) Message {
	return Message{
		Role:        row.Sender,
		Text:        row.Text,
		CreatedAt:   row.CreatedAt,
		Placeholder: row.Temp,
	}
}

func toMessageRow(msg Message) backend.MessageRow {
	return backend.MessageRow{
		Sender:    msg.Role,
		Text:      msg.Text,
		Temp:      msg.Placeholder,
		CreatedAt: msg.CreatedAt,
	}
}

func toMessageRows(messages []Message) []backend.MessageRow {
	rows := make([]backend.MessageRow, 0, len(messages))
	for _, msg := range messages {
		rows = append(rows, toMessageRow(msg))
	}
	return rows
}

func deriveTitle(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
