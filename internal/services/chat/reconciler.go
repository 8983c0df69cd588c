package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"helper_chat/internal/backend"
)

// Store is the row-CRUD slice of the backend gateway the reconciler writes
// through. *backend.Client satisfies it.
type Store interface {
	ListChats(ctx context.Context, userID string, limit int) ([]backend.ChatRow, error)
	InsertChat(ctx context.Context, row backend.ChatRow) (backend.ChatRow, error)
	GetChatMessages(ctx context.Context, chatID string) ([]backend.MessageRow, error)
	UpdateChatMessages(ctx context.Context, chatID string, messages []backend.MessageRow) error
	DeleteChat(ctx context.Context, chatID string) error
}

type Subscription interface {
	Close() error
}

// Feed delivers row-level change notifications for a table, optionally
// narrowed by an equality filter.
type Feed interface {
	Subscribe(ctx context.Context, topic, table, filter string, handler func(backend.ChangeEvent)) (Subscription, error)
}

type feedSource struct {
	feed *backend.Feed
}

func (s feedSource) Subscribe(ctx context.Context, topic, table, filter string, handler func(backend.ChangeEvent)) (Subscription, error) {
	return s.feed.Subscribe(ctx, topic, table, filter, handler)
}

// NewFeedSource adapts the websocket feed to the Feed interface.
func NewFeedSource(feed *backend.Feed) Feed {
	return feedSource{feed: feed}
}

type Config struct {
	ReplyText  string
	ReplyDelay time.Duration
	TitleLimit int
	ListLimit  int
}

// Reconciler maintains a locally consistent, duplicate-free view of one
// user's conversations under three input sources: user actions routed
// through its operations, write acknowledgements from the backend, and
// pushed change events. Local state is guarded by a single mutex and backend
// I/O happens outside it, so between an optimistic update and a pushed event
// for the same identifier whichever lands last wins.
type Reconciler struct {
	store  Store
	feed   Feed
	cfg    Config
	logger *slog.Logger

	now      func() time.Time
	schedule func(delay time.Duration, fn func())
	token    func() string

	// sendMu serializes overlapping Send invocations: rapid double-submit
	// executes in order instead of interleaving backend writes.
	sendMu sync.Mutex

	mu            sync.Mutex
	ctx           context.Context
	userID        string
	conversations []Conversation
	active        ID
	listSub       Subscription
	scopedSub     Subscription
	listeners     map[int]func()
	nextListener  int
}

func NewReconciler(store Store, feed Feed, cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TitleLimit < 1 {
		cfg.TitleLimit = 30
	}
	if cfg.ListLimit < 1 {
		cfg.ListLimit = 200
	}
	return &Reconciler{
		store:  store,
		feed:   feed,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		schedule: func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, fn)
		},
		token: nextDraftToken,
		ctx:   context.Background(),
	}
}

var draftCounter atomic.Int64

func nextDraftToken() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatInt(draftCounter.Add(1), 36)
}

// OnChange registers a hook invoked after every local state change, outside
// the reconciler's lock. The returned func removes it.
func (r *Reconciler) OnChange(fn func()) func() {
	r.mu.Lock()
	if r.listeners == nil {
		r.listeners = make(map[int]func())
	}
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Reconciler) notify() {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Start loads the initial conversation list and establishes the list-scoped
// subscription for the session. Read and subscribe failures degrade to an
// empty or push-less view rather than blocking.
func (r *Reconciler) Start(ctx context.Context, userID string) {
	rows, err := r.store.ListChats(ctx, userID, r.cfg.ListLimit)
	if err != nil {
		r.logger.Error("failed to load conversations", "error", err)
		rows = nil
	}
	conversations := make([]Conversation, 0, len(rows))
	for _, row := range rows {
		conversations = append(conversations, fromChatRow(row))
	}

	r.mu.Lock()
	r.ctx = ctx
	r.userID = userID
	r.conversations = conversations
	r.mu.Unlock()
	r.notify()

	sub, err := r.feed.Subscribe(ctx, "public:chats:list:"+userID, "chats", "user_id=eq."+userID, r.Apply)
	if err != nil {
		r.logger.Warn("conversation list subscription failed, live updates disabled", "error", err)
		return
	}
	r.mu.Lock()
	// The session may have ended while subscribing.
	if r.userID == userID && r.listSub == nil {
		r.listSub = sub
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	_ = sub.Close()
}

// Stop tears down all subscriptions and clears state. Called on logout; the
// list is rebuilt from scratch on the next Start.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	subs := []Subscription{r.listSub, r.scopedSub}
	r.listSub = nil
	r.scopedSub = nil
	r.conversations = nil
	r.active = ID{}
	r.userID = ""
	r.mu.Unlock()
	closeSubs(subs)
	r.notify()
}

func closeSubs(subs []Subscription) {
	for _, sub := range subs {
		if sub != nil {
			_ = sub.Close()
		}
	}
}

// Snapshot returns a copy of the conversation list and the active pointer
// for rendering.
func (r *Reconciler) Snapshot() ([]Conversation, ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversations := make([]Conversation, len(r.conversations))
	copy(conversations, r.conversations)
	for i := range conversations {
		messages := make([]Message, len(conversations[i].Messages))
		copy(messages, conversations[i].Messages)
		conversations[i].Messages = messages
	}
	return conversations, r.active
}

// ActiveConversation returns a copy of the selected conversation, false when
// nothing is selected or the selection no longer exists.
func (r *Reconciler) ActiveConversation() (Conversation, bool) {
	conversations, active := r.Snapshot()
	if active.IsZero() {
		return Conversation{}, false
	}
	for _, conversation := range conversations {
		if conversation.ID == active {
			return conversation, true
		}
	}
	return Conversation{}, false
}

// Select sets the active pointer and swaps the scoped subscription. A zero
// or pending identifier suppresses the subscription: the backend's row
// filter cannot target a conversation it has not stored yet.
func (r *Reconciler) Select(id ID) {
	r.mu.Lock()
	previous := r.scopedSub
	r.scopedSub = nil
	r.active = id
	ctx := r.ctx
	r.mu.Unlock()
	closeSubs([]Subscription{previous})
	r.notify()

	if id.IsZero() || id.Pending() {
		return
	}
	r.subscribeScoped(ctx, id)
}

func (r *Reconciler) subscribeScoped(ctx context.Context, id ID) {
	sub, err := r.feed.Subscribe(ctx, "chat:messages:"+id.Key, "chats", "id=eq."+id.Key, r.Apply)
	if err != nil {
		r.logger.Warn("conversation subscription failed, live updates disabled", "chat", id.Key, "error", err)
		return
	}
	r.mu.Lock()
	// Selection may have moved while subscribing.
	if r.active == id && r.scopedSub == nil {
		r.scopedSub = sub
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	_ = sub.Close()
}

// StartDraft deselects. No record is created until the first message is
// sent, so abandoned drafts leave no empty rows behind.
func (r *Reconciler) StartDraft() {
	r.Select(ID{})
}

// Send runs the optimistic append flow for the trimmed text: immediate local
// update, write-through to the backend, placeholder assistant message, then
// the delayed canned reply. Empty input is a no-op. A returned error means a
// backend write failed; the optimistic local state is retained either way so
// typed text is never lost.
func (r *Reconciler) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	userMsg := Message{Role: RoleUser, Text: text, CreatedAt: r.now()}

	r.mu.Lock()
	active := r.active
	durableIndex := -1
	if !active.IsZero() && !active.Pending() {
		durableIndex = r.indexOfKeyLocked(active.Key)
	}
	var ref ID
	if durableIndex >= 0 {
		r.conversations[durableIndex].Messages = append(r.conversations[durableIndex].Messages, userMsg)
		ref = active
	} else {
		token := r.token()
		conversation := Conversation{
			ID:         PendingID(token),
			UserID:     r.userID,
			Title:      deriveTitle(text, r.cfg.TitleLimit),
			Messages:   []Message{userMsg},
			CreatedAt:  r.now(),
			DraftToken: token,
		}
		r.conversations = append([]Conversation{conversation}, r.conversations...)
		r.active = conversation.ID
		ref = conversation.ID
	}
	r.mu.Unlock()
	r.notify()

	var writeErr error
	if durableIndex >= 0 {
		writeErr = r.appendRemote(ctx, ref.Key, userMsg)
	} else {
		promoted, err := r.createRemote(ctx, ref.Token, userMsg)
		if err != nil {
			writeErr = err
		} else {
			ref = promoted
		}
	}

	r.appendPlaceholder(ref)
	r.notify()

	r.schedule(r.cfg.ReplyDelay, func() {
		r.resolveReply(ref)
	})

	return writeErr
}

// appendRemote is the read-modify-write append against an existing row. The
// full-list rewrite is the backend's only mutation primitive, so this is
// inherently racy under concurrent writers of the same conversation.
func (r *Reconciler) appendRemote(ctx context.Context, key string, msg Message) error {
	stored, err := r.store.GetChatMessages(ctx, key)
	if err != nil {
		r.logger.Error("failed to read messages before append", "chat", key, "error", err)
		return fmt.Errorf("append message: %w", err)
	}
	stored = append(stored, toMessageRow(msg))
	if err := r.store.UpdateChatMessages(ctx, key, stored); err != nil {
		r.logger.Error("failed to persist message", "chat", key, "error", err)
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// createRemote persists a draft and promotes its identifier in place,
// preserving its position and any messages appended in the interim. On
// failure the draft stays local so the typed text survives.
func (r *Reconciler) createRemote(ctx context.Context, token string, msg Message) (ID, error) {
	r.mu.Lock()
	userID := r.userID
	title := deriveTitle(msg.Text, r.cfg.TitleLimit)
	if index := r.indexOfTokenLocked(token); index >= 0 {
		title = r.conversations[index].Title
	}
	r.mu.Unlock()

	row, err := r.store.InsertChat(ctx, backend.ChatRow{
		UserID:   userID,
		Title:    title,
		Messages: []backend.MessageRow{toMessageRow(msg)},
	})
	if err != nil {
		r.logger.Error("failed to create conversation", "error", err)
		return PendingID(token), fmt.Errorf("create conversation: %w", err)
	}
	promoted := DurableID(row.ID)

	r.mu.Lock()
	index := r.indexOfTokenLocked(token)
	if index < 0 {
		// The draft vanished while the create was in flight.
		r.mu.Unlock()
		return promoted, nil
	}
	// A pushed echo of this same row may have arrived before the
	// acknowledgement; drop it, the promoted draft holds the richer local
	// message list.
	if echo := r.indexOfKeyLocked(row.ID); echo >= 0 && echo != index {
		r.conversations = append(r.conversations[:echo], r.conversations[echo+1:]...)
		if echo < index {
			index--
		}
	}
	r.conversations[index].ID = promoted
	if !row.CreatedAt.IsZero() {
		r.conversations[index].CreatedAt = row.CreatedAt
	}
	selected := r.active == PendingID(token)
	if selected {
		r.active = promoted
	}
	subCtx := r.ctx
	r.mu.Unlock()
	r.notify()

	if selected {
		r.subscribeScoped(subCtx, promoted)
	}
	return promoted, nil
}

func (r *Reconciler) appendPlaceholder(ref ID) {
	placeholder := Message{Role: RoleAssistant, Text: "...", CreatedAt: r.now(), Placeholder: true}

	r.mu.Lock()
	defer r.mu.Unlock()
	index := r.indexOfRefLocked(ref)
	if index < 0 {
		return
	}
	conversation := &r.conversations[index]
	for i := range conversation.Messages {
		if conversation.Messages[i].Placeholder {
			// At most one placeholder per conversation.
			conversation.Messages[i] = placeholder
			return
		}
	}
	conversation.Messages = append(conversation.Messages, placeholder)
}

// SetReplyText swaps the canned assistant reply, used when the display
// language changes.
func (r *Reconciler) SetReplyText(text string) {
	r.mu.Lock()
	r.cfg.ReplyText = text
	r.mu.Unlock()
}

// resolveReply replaces the placeholder with the confirmed canned reply and
// reconciles the stored message list with the backend.
func (r *Reconciler) resolveReply(ref ID) {
	r.mu.Lock()
	reply := Message{Role: RoleAssistant, Text: r.cfg.ReplyText, CreatedAt: r.now()}
	index := r.indexOfRefLocked(ref)
	if index < 0 {
		r.mu.Unlock()
		return
	}
	conversation := &r.conversations[index]
	replaced := false
	for i := range conversation.Messages {
		if conversation.Messages[i].Placeholder {
			conversation.Messages[i] = reply
			replaced = true
			break
		}
	}
	if !replaced {
		conversation.Messages = append(conversation.Messages, reply)
	}
	key := conversation.ID.Key
	local := toMessageRows(conversation.Messages)
	ctx := r.ctx
	r.mu.Unlock()
	r.notify()

	if key == "" {
		// The conversation never made it past pending; there is no stored
		// row to reconcile.
		return
	}

	// The backend is the arbiter of stored order: re-read, strip any
	// placeholder-marked entries, append the confirmed reply. If the re-read
	// fails, fall back to the locally-held list with the placeholder already
	// replaced.
	stored, err := r.store.GetChatMessages(ctx, key)
	if err != nil {
		r.logger.Warn("failed to re-read messages, writing local view", "chat", key, "error", err)
		if err := r.store.UpdateChatMessages(ctx, key, local); err != nil {
			r.logger.Error("failed to persist assistant reply", "chat", key, "error", err)
		}
		return
	}
	final := make([]backend.MessageRow, 0, len(stored)+1)
	for _, row := range stored {
		if row.Temp {
			continue
		}
		final = append(final, row)
	}
	final = append(final, toMessageRow(reply))
	if err := r.store.UpdateChatMessages(ctx, key, final); err != nil {
		r.logger.Error("failed to persist assistant reply", "chat", key, "error", err)
	}
}

// Delete removes a conversation. Removal is not optimistic: the backend
// delete must succeed before local state changes, so a failed delete leaves
// the row visible for retry. Drafts were never persisted and are removed
// locally only.
func (r *Reconciler) Delete(ctx context.Context, id ID) error {
	if id.IsZero() {
		return nil
	}
	if !id.Pending() {
		if err := r.store.DeleteChat(ctx, id.Key); err != nil {
			r.logger.Error("failed to delete conversation", "chat", id.Key, "error", err)
			return fmt.Errorf("delete conversation: %w", err)
		}
	}

	r.mu.Lock()
	if index := r.indexOfRefLocked(id); index >= 0 {
		r.conversations = append(r.conversations[:index], r.conversations[index+1:]...)
	}
	var closed []Subscription
	if r.active == id {
		r.active = ID{}
		closed = append(closed, r.scopedSub)
		r.scopedSub = nil
	}
	r.mu.Unlock()
	closeSubs(closed)
	r.notify()
	return nil
}

// Apply reconciles an externally pushed change event into local state.
// Events for identifiers not present locally are ignored, except inserts,
// which introduce the row. Pending identifiers never match: the backend's
// filter cannot have seen them.
func (r *Reconciler) Apply(event backend.ChangeEvent) {
	key := event.Chat.ID
	if key == "" {
		return
	}

	var closed []Subscription
	r.mu.Lock()
	switch event.Kind {
	case backend.Inserted:
		incoming := fromChatRow(event.Chat)
		if index := r.indexOfKeyLocked(key); index >= 0 {
			// This client's own write echoed back: replace, never
			// duplicate.
			incoming.DraftToken = r.conversations[index].DraftToken
			r.conversations = append(r.conversations[:index], r.conversations[index+1:]...)
		}
		r.conversations = append([]Conversation{incoming}, r.conversations...)
	case backend.Updated:
		index := r.indexOfKeyLocked(key)
		if index < 0 {
			r.mu.Unlock()
			return
		}
		// The pushed row is authoritative: full-record rewrites are the
		// write primitive, so replace wholesale even over an optimistic
		// local message not yet reflected server-side.
		incoming := fromChatRow(event.Chat)
		incoming.DraftToken = r.conversations[index].DraftToken
		r.conversations[index] = incoming
	case backend.Deleted:
		index := r.indexOfKeyLocked(key)
		if index < 0 {
			r.mu.Unlock()
			return
		}
		r.conversations = append(r.conversations[:index], r.conversations[index+1:]...)
		if r.active.Key == key {
			r.active = ID{}
			closed = append(closed, r.scopedSub)
			r.scopedSub = nil
		}
	default:
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	closeSubs(closed)
	r.notify()
}

func (r *Reconciler) indexOfKeyLocked(key string) int {
	if key == "" {
		return -1
	}
	for i := range r.conversations {
		if r.conversations[i].ID.Key == key {
			return i
		}
	}
	return -1
}

func (r *Reconciler) indexOfTokenLocked(token string) int {
	if token == "" {
		return -1
	}
	for i := range r.conversations {
		if r.conversations[i].ID.Token == token || r.conversations[i].DraftToken == token {
			return i
		}
	}
	return -1
}

func (r *Reconciler) indexOfRefLocked(ref ID) int {
	if ref.Key != "" {
		if index := r.indexOfKeyLocked(ref.Key); index >= 0 {
			return index
		}
	}
	return r.indexOfTokenLocked(ref.Token)
}
