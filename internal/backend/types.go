package backend

import "time"

// ChatRow is the chats collection row as stored by the backend. Messages are
// a single JSON column; the full list is rewritten on every mutation.
type ChatRow struct {
	ID        string       `json:"id,omitempty"`
	UserID    string       `json:"user_id"`
	Title     string       `json:"title"`
	Messages  []MessageRow `json:"messages"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

type MessageRow struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Temp      bool      `json:"temp,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ProfileRow struct {
	ID          string      `json:"id"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Bio         string      `json:"bio"`
	Hobbies     []string    `json:"hobbies"`
	Preferences Preferences `json:"preferences"`
	Schedule    []EventRow  `json:"schedule"`
	UpdatedAt   time.Time   `json:"updated_at,omitempty"`
}

type Preferences struct {
	Style         string        `json:"style"`
	Notifications Notifications `json:"notifications"`
}

type Notifications struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

type EventRow struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Start    string `json:"startISO"`
	End      string `json:"endISO"`
	Location string `json:"location,omitempty"`
	Source   string `json:"source"`
}

type UniversityRow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an authenticated backend session. RefreshToken outlives the
// access token and is what gets persisted locally.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

type ChangeKind int

const (
	Inserted ChangeKind = iota
	Updated
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Inserted:
		return "insert"
	case Updated:
		return "update"
	case Deleted:
		return "delete"
	}
	return "unknown"
}

// ChangeEvent is a row-level change notification for the chats collection,
// decoded at the gateway boundary. For Deleted events only Chat.ID is
// guaranteed to be populated.
type ChangeEvent struct {
	Kind ChangeKind
	Chat ChatRow
}
