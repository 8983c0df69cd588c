package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"helper_chat/internal/backend"
)

type fakeStore struct {
	rows   []backend.ChatRow
	nextID int

	updates map[string][][]backend.MessageRow

	failList   bool
	failInsert bool
	failGet    bool
	failUpdate bool
	failDelete bool

	// onInsert runs after the row is stored but before InsertChat returns,
	// simulating a pushed echo racing the acknowledgement.
	onInsert func(row backend.ChatRow)
}

func newFakeStore() *fakeStore {
	return &fakeStore{updates: make(map[string][][]backend.MessageRow)}
}

func (s *fakeStore) ListChats(ctx context.Context, userID string, limit int) ([]backend.ChatRow, error) {
	if s.failList {
		return nil, errors.New("list failed")
	}
	out := make([]backend.ChatRow, 0, len(s.rows))
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertChat(ctx context.Context, row backend.ChatRow) (backend.ChatRow, error) {
	if s.failInsert {
		return backend.ChatRow{}, errors.New("insert failed")
	}
	s.nextID++
	row.ID = fmt.Sprintf("chat-%d", s.nextID)
	row.CreatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.rows = append(s.rows, row)
	if s.onInsert != nil {
		s.onInsert(row)
	}
	return row, nil
}

func (s *fakeStore) GetChatMessages(ctx context.Context, chatID string) ([]backend.MessageRow, error) {
	if s.failGet {
		return nil, errors.New("get failed")
	}
	for _, row := range s.rows {
		if row.ID == chatID {
			out := make([]backend.MessageRow, len(row.Messages))
			copy(out, row.Messages)
			return out, nil
		}
	}
	return nil, backend.ErrNoRows
}

func (s *fakeStore) UpdateChatMessages(ctx context.Context, chatID string, messages []backend.MessageRow) error {
	if s.failUpdate {
		return errors.New("update failed")
	}
	s.updates[chatID] = append(s.updates[chatID], messages)
	for i := range s.rows {
		if s.rows[i].ID == chatID {
			s.rows[i].Messages = messages
			return nil
		}
	}
	return backend.ErrNoRows
}

func (s *fakeStore) DeleteChat(ctx context.Context, chatID string) error {
	if s.failDelete {
		return errors.New("delete failed")
	}
	for i := range s.rows {
		if s.rows[i].ID == chatID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeSub struct {
	topic   string
	table   string
	filter  string
	handler func(backend.ChangeEvent)
	closed  bool
}

func (s *fakeSub) Close() error {
	s.closed = true
	return nil
}

type fakeFeed struct {
	subs []*fakeSub
	fail bool
}

func (f *fakeFeed) Subscribe(ctx context.Context, topic, table, filter string, handler func(backend.ChangeEvent)) (Subscription, error) {
	if f.fail {
		return nil, errors.New("subscribe failed")
	}
	sub := &fakeSub{topic: topic, table: table, filter: filter, handler: handler}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) subFor(topic string) *fakeSub {
	for _, sub := range f.subs {
		if sub.topic == topic && !sub.closed {
			return sub
		}
	}
	return nil
}

type harness struct {
	r     *Reconciler
	store *fakeStore
	feed  *fakeFeed
	sched []func()
}

func newHarness() *harness {
	h := &harness{store: newFakeStore(), feed: &fakeFeed{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.r = NewReconciler(h.store, h.feed, Config{
		ReplyText:  "canned reply",
		ReplyDelay: 500 * time.Millisecond,
		TitleLimit: 30,
		ListLimit:  200,
	}, logger)
	h.r.schedule = func(delay time.Duration, fn func()) {
		h.sched = append(h.sched, fn)
	}
	n := 0
	h.r.token = func() string {
		n++
		return fmt.Sprintf("tok-%d", n)
	}
	return h
}

func (h *harness) runScheduled() {
	for len(h.sched) > 0 {
		fn := h.sched[0]
		h.sched = h.sched[1:]
		fn()
	}
}

func TestSendCreatesAndPromotesDraft(t *testing.T) {
	h := newHarness()
	h.r.Start(context.Background(), "user-1")

	if err := h.r.Send(context.Background(), "  hello there  "); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	conversations, active := h.r.Snapshot()
	if len(conversations) != 1 {
		t.Fatalf("got %d conversations, want 1", len(conversations))
	}
	conv := conversations[0]
	if conv.ID != DurableID("chat-1") {
		t.Fatalf("conversation id = %v, want durable chat-1", conv.ID)
	}
	if active != conv.ID {
		t.Fatalf("active = %v, want %v", active, conv.ID)
	}
	if conv.Title != "hello there" {
		t.Fatalf("title = %q, want %q", conv.Title, "hello there")
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("got %d messages, want user message plus placeholder", len(conv.Messages))
	}
	if conv.Messages[0].Role != RoleUser || conv.Messages[0].Text != "hello there" {
		t.Fatalf("first message = %+v, want trimmed user text", conv.Messages[0])
	}
	if !conv.Messages[1].Placeholder || conv.Messages[1].Role != RoleAssistant {
		t.Fatalf("second message = %+v, want assistant placeholder", conv.Messages[1])
	}
	if sub := h.feed.subFor("chat:messages:chat-1"); sub == nil {
		t.Fatal("expected scoped subscription after promotion")
	}
	if len(h.sched) != 1 {
		t.Fatalf("got %d scheduled replies, want 1", len(h.sched))
	}
}

func TestSendAppendsToActiveConversation(t *testing.T) {
	h := newHarness()
	h.store.rows = []backend.ChatRow{{
		ID:     "chat-9",
		UserID: "user-1",
		Title:  "existing",
		Messages: []backend.MessageRow{
			{Sender: RoleUser, Text: "first", CreatedAt: time.Now().UTC()},
		},
	}}
	h.r.Start(context.Background(), "user-1")
	h.r.Select(DurableID("chat-9"))

	if err := h.r.Send(context.Background(), "second"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	writes := h.store.updates["chat-9"]
	if len(writes) != 1 {
		t.Fatalf("got %d writes, want 1", len(writes))
	}
	if got := writes[0]; len(got) != 2 || got[1].Text != "second" {
		t.Fatalf("persisted messages = %+v, want stored list plus new message", got)
	}

	conversations, _ := h.r.Snapshot()
	msgs := conversations[0].Messages
	if len(msgs) != 3 || msgs[1].Text != "second" || !msgs[2].Placeholder {
		t.Fatalf("local messages = %+v, want first, second, placeholder", msgs)
	}
}

func TestSendEmptyTextIsNoOp(t *testing.T) {
	h := newHarness()
	h.r.Start(context.Background(), "user-1")

	if err := h.r.Send(context.Background(), "   \n\t "); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if conversations, _ := h.r.Snapshot(); len(conversations) != 0 {
		t.Fatalf("got %d conversations, want 0", len(conversations))
	}
	if h.store.nextID != 0 {
		t.Fatal("expected no backend writes for empty input")
	}
}

func TestResolveReplyReplacesPlaceholderInPlace(t *testing.T) {
	h := newHarness()
	h.r.Start(context.Background(), "user-1")
	if err := h.r.Send(context.Background(), "question"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	h.runScheduled()

	conversations, _ := h.r.Snapshot()
	msgs := conversations[0].Messages
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[1].Placeholder {
		t.Fatal("placeholder still present after resolution")
	}
	if msgs[1].Text != "canned reply" || msgs[1].Role != RoleAssistant {
		t.Fatalf("resolved message = %+v, want canned assistant reply", msgs[1])
	}

	writes := h.store.updates["chat-1"]
	if len(writes) == 0 {
		t.Fatal("expected reply persisted to backend")
	}
	final := writes[len(writes)-1]
	if len(final) != 2 || final[1].Text != "canned reply" || final[1].Temp {
		t.Fatalf("persisted messages = %+v, want user message plus confirmed reply", final)
	}
}

func TestResolveReplyFallsBackToLocalViewOnReadFailure(t *testing.T) {
	h := newHarness()
	h.r.Start(context.Background(), "user-1")
	if err := h.r.Send(context.Background(), "question"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	h.store.failGet = true
	h.runScheduled()

	writes := h.store.updates["chat-1"]
	if len(writes) == 0 {
		t.Fatal("expected fallback write of the local view")
	}
	final := writes[len(writes)-1]
	if len(final) != 2 || final[1].Text != "canned reply" {
		t.Fatalf("persisted messages = %+v, want local list with placeholder replaced", final)
	}
}

func TestSendCreateFailureKeepsLocalDraft(t *testing.T) {
	h := newHarness()
	h.store.failInsert = true
	h.r.Start(context.Background(), "user-1")

	if err := h.r.Send(context.Background(), "hello"); err == nil {
		t.Fatal("Send() error = nil, want create failure")
	}

	conversations, active := h.r.Snapshot()
	if len(conversations) != 1 {
		t.Fatalf("got %d conversations, want draft retained", len(conversations))
	}
	if !conversations[0].ID.Pending() {
		t.Fatalf("conversation id = %v, want pending", conversations[0].ID)
	}
	if active != conversations[0].ID {
		t.Fatalf("active = %v, want the draft", active)
	}
	if sub := h.feed.subFor("chat:messages:" + conversations[0].ID.Key); sub != nil {
		t.Fatal("pending conversation must not get a scoped subscription")
	}

	// The reply still resolves locally; there is no stored row to write.
	h.runScheduled()
	conversations, _ = h.r.Snapshot()
	msgs := conversations[0].Messages
	if len(msgs) != 2 || msgs[1].Placeholder || msgs[1].Text != "canned reply" {
		t.Fatalf("messages = %+v, want placeholder resolved locally", msgs)
	}
	if len(h.store.updates) != 0 {
		t.Fatalf("updates = %v, want none while still pending", h.store.updates)
	}
}

func TestPromotionDropsEchoedInsert(t *testing.T) {
	h := newHarness()
	h.r.Start(context.Background(), "user-1")
	h.store.onInsert = func(row backend.ChatRow) {
		h.r.Apply(backend.ChangeEvent{Kind: backend.Inserted, Chat: row})
	}

	if err := h.r.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	conversations, _ := h.r.Snapshot()
	if len(conversations) != 1 {
		t.Fatalf("got %d conversations, want echo deduplicated", len(conversations))
	}
	if conversations[0].ID != DurableID("chat-1") {
		t.Fatalf("conversation id = %v, want durable chat-1", conversations[0].ID)
	}
}

func TestApplyInsertEchoReplacesInPlace(t *testing.T) {
	h := newHarness()
	h.r.Start(context.Background(), "user-1")
	if err := h.r.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	h.r.Apply(backend.ChangeEvent{Kind: backend.Inserted, Chat: backend.ChatRow{
		ID:       "chat-1",
		UserID:   "user-1",
		Title:    "hello",
		Messages: []backend.MessageRow{{Sender: RoleUser, Text: "hello"}},
	}})

	conversations, _ := h.r.Snapshot()
	if len(conversations) != 1 {
		t.Fatalf("got %d conversations, want 1", len(conversations))
	}
	if conversations[0].ID != DurableID("chat-1") {
		t.Fatalf("conversation id = %v, want chat-1", conversations[0].ID)
	}
}

func TestApplyInsertAddsUnknownConversation(t *testing.T) {
	h := newHarness()
	h.store.rows = []backend.ChatRow{{ID: "chat-1", UserID: "user-1", Title: "old"}}
	h.r.Start(context.Background(), "user-1")

	h.r.Apply(backend.ChangeEvent{Kind: backend.Inserted, Chat: backend.ChatRow{
		ID: "chat-2", UserID: "user-1", Title: "from another tab",
	}})

	conversations, _ := h.r.Snapshot()
	if len(conversations) != 2 {
		t.Fatalf("got %d conversations, want 2", len(conversations))
	}
	if conversations[0].ID != DurableID("chat-2") {
		t.Fatalf("newest conversation = %v, want pushed insert first", conversations[0].ID)
	}
}

func TestApplyUpdatedReplacesWholesale(t *testing.T) {
	h := newHarness()
	h.store.rows = []backend.ChatRow{{
		ID: "chat-1", UserID: "user-1", Title: "old",
		Messages: []backend.MessageRow{{Sender: RoleUser, Text: "local"}},
	}}
	h.r.Start(context.Background(), "user-1")

	h.r.Apply(backend.ChangeEvent{Kind: backend.Updated, Chat: backend.ChatRow{
		ID: "chat-1", UserID: "user-1", Title: "renamed",
		Messages: []backend.MessageRow{
			{Sender: RoleUser, Text: "local"},
			{Sender: RoleAssistant, Text: "from elsewhere"},
		},
	}})

	conversations, _ := h.r.Snapshot()
	conv := conversations[0]
	if conv.Title != "renamed" {
		t.Fatalf("title = %q, want pushed title", conv.Title)
	}
	if len(conv.Messages) != 2 || conv.Messages[1].Text != "from elsewhere" {
		t.Fatalf("messages = %+v, want pushed list", conv.Messages)
	}
}

func TestApplyUpdatedForUnknownIDIsIgnored(t *testing.T) {
	h := newHarness()
	h.r.Start(context.Background(), "user-1")

	h.r.Apply(backend.ChangeEvent{Kind: backend.Updated, Chat: backend.ChatRow{ID: "chat-404"}})

	if conversations, _ := h.r.Snapshot(); len(conversations) != 0 {
		t.Fatalf("got %d conversations, want unknown update ignored", len(conversations))
	}
}

func TestApplyDeletedRemovesAndClearsActive(t *testing.T) {
	h := newHarness()
	h.store.rows = []backend.ChatRow{{ID: "chat-1", UserID: "user-1", Title: "gone soon"}}
	h.r.Start(context.Background(), "user-1")
	h.r.Select(DurableID("chat-1"))

	scoped := h.feed.subFor("chat:messages:chat-1")
	if scoped == nil {
		t.Fatal("expected scoped subscription after select")
	}

	h.r.Apply(backend.ChangeEvent{Kind: backend.Deleted, Chat: backend.ChatRow{ID: "chat-1"}})

	conversations, active := h.r.Snapshot()
	if len(conversations) != 0 {
		t.Fatalf("got %d conversations, want 0", len(conversations))
	}
	if !active.IsZero() {
		t.Fatalf("active = %v, want cleared", active)
	}
	if !scoped.closed {
		t.Fatal("scoped subscription still open after delete")
	}
}

func TestDeletePendingIsLocalOnly(t *testing.T) {
	h := newHarness()
	h.store.failInsert = true
	h.r.Start(context.Background(), "user-1")
	_ = h.r.Send(context.Background(), "never stored")

	conversations, _ := h.r.Snapshot()
	id := conversations[0].ID

	h.store.failDelete = true // would fail if the backend were touched
	if err := h.r.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	conversations, active := h.r.Snapshot()
	if len(conversations) != 0 {
		t.Fatalf("got %d conversations, want draft removed", len(conversations))
	}
	if !active.IsZero() {
		t.Fatalf("active = %v, want cleared", active)
	}
}

func TestDeleteFailureKeepsConversation(t *testing.T) {
	h := newHarness()
	h.store.rows = []backend.ChatRow{{ID: "chat-1", UserID: "user-1", Title: "keep me"}}
	h.r.Start(context.Background(), "user-1")

	h.store.failDelete = true
	if err := h.r.Delete(context.Background(), DurableID("chat-1")); err == nil {
		t.Fatal("Delete() error = nil, want failure")
	}

	if conversations, _ := h.r.Snapshot(); len(conversations) != 1 {
		t.Fatal("conversation removed despite failed backend delete")
	}
}

func TestSelectSwapsScopedSubscription(t *testing.T) {
	h := newHarness()
	h.store.rows = []backend.ChatRow{
		{ID: "chat-1", UserID: "user-1"},
		{ID: "chat-2", UserID: "user-1"},
	}
	h.r.Start(context.Background(), "user-1")

	h.r.Select(DurableID("chat-1"))
	first := h.feed.subFor("chat:messages:chat-1")
	if first == nil {
		t.Fatal("expected subscription for chat-1")
	}

	h.r.Select(DurableID("chat-2"))
	if !first.closed {
		t.Fatal("previous scoped subscription not closed on reselect")
	}
	if h.feed.subFor("chat:messages:chat-2") == nil {
		t.Fatal("expected subscription for chat-2")
	}

	h.r.StartDraft()
	_, active := h.r.Snapshot()
	if !active.IsZero() {
		t.Fatalf("active = %v, want cleared by draft", active)
	}
}

func TestStartListFailureYieldsEmptyView(t *testing.T) {
	h := newHarness()
	h.store.failList = true

	h.r.Start(context.Background(), "user-1")

	if conversations, _ := h.r.Snapshot(); len(conversations) != 0 {
		t.Fatal("expected empty view when initial load fails")
	}
}

func TestStopClosesSubscriptionsAndClearsState(t *testing.T) {
	h := newHarness()
	h.store.rows = []backend.ChatRow{{ID: "chat-1", UserID: "user-1"}}
	h.r.Start(context.Background(), "user-1")
	h.r.Select(DurableID("chat-1"))

	h.r.Stop()

	for _, sub := range h.feed.subs {
		if !sub.closed {
			t.Fatalf("subscription %q left open after Stop", sub.topic)
		}
	}
	conversations, active := h.r.Snapshot()
	if len(conversations) != 0 || !active.IsZero() {
		t.Fatal("state not cleared after Stop")
	}
}

func TestRapidDoubleSendAppendsBoth(t *testing.T) {
	h := newHarness()
	h.store.rows = []backend.ChatRow{{ID: "chat-1", UserID: "user-1"}}
	h.r.Start(context.Background(), "user-1")
	h.r.Select(DurableID("chat-1"))

	if err := h.r.Send(context.Background(), "one"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := h.r.Send(context.Background(), "two"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	writes := h.store.updates["chat-1"]
	if len(writes) != 2 {
		t.Fatalf("got %d writes, want 2", len(writes))
	}
	final := writes[1]
	if len(final) != 2 || final[0].Text != "one" || final[1].Text != "two" {
		t.Fatalf("persisted messages = %+v, want both sends in order", final)
	}
}

func TestDeriveTitleTruncatesRuneSafe(t *testing.T) {
	if got := deriveTitle("короткое сообщение для заголовка чата", 10); got != "короткое с" {
		t.Fatalf("deriveTitle() = %q", got)
	}
	if got := deriveTitle("short", 30); got != "short" {
		t.Fatalf("deriveTitle() = %q", got)
	}
}

func TestParseIDRoundTrip(t *testing.T) {
	pending := PendingID("abc-1")
	if parsed := ParseID(pending.String()); parsed != pending {
		t.Fatalf("ParseID(%q) = %v, want %v", pending.String(), parsed, pending)
	}
	if parsed := ParseID("chat-7"); parsed != DurableID("chat-7") {
		t.Fatalf("ParseID(chat-7) = %v", parsed)
	}
	if parsed := ParseID(""); !parsed.IsZero() {
		t.Fatalf("ParseID(\"\") = %v, want zero", parsed)
	}
}
