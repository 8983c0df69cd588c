package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"helper_chat/internal/backend"
)

// Store is the profile slice of the backend gateway. *backend.Client
// satisfies it.
type Store interface {
	GetProfile(ctx context.Context, userID string) (backend.ProfileRow, error)
	UpsertProfile(ctx context.Context, row backend.ProfileRow) error
	GetUniversityName(ctx context.Context, userID string) (string, error)
	ListUniversities(ctx context.Context) ([]backend.UniversityRow, error)
}

// Source values for schedule events.
const (
	SourceManual = "manual"
	SourceImport = "import"
)

var ErrNotLoaded = errors.New("profile: not loaded")

// Service holds the signed-in user's profile and writes every edit back as
// a full-row upsert, which is the backend's only profile mutation
// primitive. Edits are applied locally first so a failed write never loses
// what the user typed.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu             sync.Mutex
	userID         string
	current        backend.ProfileRow
	loaded         bool
	universityName string
	listeners      map[int]func()
	nextListener   int
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Load fetches the profile for userID, falling back to an empty default
// when no row exists yet. The row is only created on the first edit, so
// never-edited accounts leave no profile rows behind. The university name
// is resolved best-effort.
func (s *Service) Load(ctx context.Context, userID string) error {
	row, err := s.store.GetProfile(ctx, userID)
	switch {
	case errors.Is(err, backend.ErrNoRows):
		row = defaultProfile(userID)
	case err != nil:
		return fmt.Errorf("load profile: %w", err)
	}

	name, err := s.store.GetUniversityName(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to resolve university name", "error", err)
		name = ""
	}

	s.mu.Lock()
	s.userID = userID
	s.current = row
	s.loaded = true
	s.universityName = name
	s.mu.Unlock()
	s.notify()
	return nil
}

// Reset clears the loaded profile on sign-out.
func (s *Service) Reset() {
	s.mu.Lock()
	s.userID = ""
	s.current = backend.ProfileRow{}
	s.loaded = false
	s.universityName = ""
	s.mu.Unlock()
	s.notify()
}

// OnChange registers a hook invoked after the profile loads, resets or is
// edited. The returned func removes it.
func (s *Service) OnChange(fn func()) func() {
	s.mu.Lock()
	if s.listeners == nil {
		s.listeners = make(map[int]func())
	}
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Current returns a copy of the loaded profile. ok is false before Load.
func (s *Service) Current() (backend.ProfileRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return backend.ProfileRow{}, false
	}
	return copyProfile(s.current), true
}

func (s *Service) UniversityName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.universityName
}

func (s *Service) Universities(ctx context.Context) ([]backend.UniversityRow, error) {
	rows, err := s.store.ListUniversities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list universities: %w", err)
	}
	return rows, nil
}

func (s *Service) SetName(ctx context.Context, first, last string) error {
	return s.mutate(ctx, func(row *backend.ProfileRow) error {
		row.FirstName = strings.TrimSpace(first)
		row.LastName = strings.TrimSpace(last)
		return nil
	})
}

func (s *Service) SetBio(ctx context.Context, bio string) error {
	return s.mutate(ctx, func(row *backend.ProfileRow) error {
		row.Bio = strings.TrimSpace(bio)
		return nil
	})
}

func (s *Service) AddHobby(ctx context.Context, hobby string) error {
	hobby = strings.TrimSpace(hobby)
	if hobby == "" {
		return nil
	}
	return s.mutate(ctx, func(row *backend.ProfileRow) error {
		row.Hobbies = append(row.Hobbies, hobby)
		return nil
	})
}

// RemoveHobby drops every entry equal to hobby.
func (s *Service) RemoveHobby(ctx context.Context, hobby string) error {
	return s.mutate(ctx, func(row *backend.ProfileRow) error {
		kept := row.Hobbies[:0]
		for _, existing := range row.Hobbies {
			if existing != hobby {
				kept = append(kept, existing)
			}
		}
		row.Hobbies = kept
		return nil
	})
}

func (s *Service) SetStyle(ctx context.Context, style string) error {
	return s.mutate(ctx, func(row *backend.ProfileRow) error {
		row.Preferences.Style = style
		return nil
	})
}

func (s *Service) SetEmailNotifications(ctx context.Context, enabled bool) error {
	return s.mutate(ctx, func(row *backend.ProfileRow) error {
		row.Preferences.Notifications.Email = enabled
		return nil
	})
}

func (s *Service) SetPushNotifications(ctx context.Context, enabled bool) error {
	return s.mutate(ctx, func(row *backend.ProfileRow) error {
		row.Preferences.Notifications.Push = enabled
		return nil
	})
}

// AddEvent appends a manual schedule entry. Title and start time are
// required; the identifier is minted locally.
func (s *Service) AddEvent(ctx context.Context, title, startISO, endISO, location string) (backend.EventRow, error) {
	title = strings.TrimSpace(title)
	if title == "" || startISO == "" {
		return backend.EventRow{}, errors.New("add event: title and start time are required")
	}
	event := backend.EventRow{
		ID:       s.newID(),
		Title:    title,
		Start:    startISO,
		End:      endISO,
		Location: strings.TrimSpace(location),
		Source:   SourceManual,
	}
	err := s.mutate(ctx, func(row *backend.ProfileRow) error {
		row.Schedule = append(row.Schedule, event)
		return nil
	})
	if err != nil {
		return backend.EventRow{}, err
	}
	return event, nil
}

func (s *Service) RemoveEvent(ctx context.Context, eventID string) error {
	return s.mutate(ctx, func(row *backend.ProfileRow) error {
		for i, event := range row.Schedule {
			if event.ID == eventID {
				row.Schedule = append(row.Schedule[:i], row.Schedule[i+1:]...)
				return nil
			}
		}
		return nil
	})
}

// mutate applies fn to the local copy, commits it, then persists the full
// row. Local state keeps the edit even when the write fails.
func (s *Service) mutate(ctx context.Context, fn func(row *backend.ProfileRow) error) error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	row := copyProfile(s.current)
	if err := fn(&row); err != nil {
		s.mu.Unlock()
		return err
	}
	row.ID = s.userID
	row.UpdatedAt = s.now()
	s.current = row
	s.mu.Unlock()
	s.notify()

	if err := s.store.UpsertProfile(ctx, row); err != nil {
		s.logger.Error("failed to persist profile", "error", err)
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func defaultProfile(userID string) backend.ProfileRow {
	return backend.ProfileRow{
		ID:          userID,
		Hobbies:     []string{},
		Preferences: defaultPreferences(),
		Schedule:    []backend.EventRow{},
	}
}

func defaultPreferences() backend.Preferences {
	return backend.Preferences{
		Style:         "balanced",
		Notifications: backend.Notifications{Email: true, Push: false},
	}
}

func copyProfile(row backend.ProfileRow) backend.ProfileRow {
	out := row
	out.Hobbies = append([]string(nil), row.Hobbies...)
	out.Schedule = append([]backend.EventRow(nil), row.Schedule...)
	return out
}
