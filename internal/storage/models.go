package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ProfileRecord is the durable form of a user's personalization profile.
// Score maps and the recent-query list are stored as JSON text; the
// personalize package owns their shape and the scoring math.
type ProfileRecord struct {
	UserID             string
	Role               string
	ToneScore          string // JSON object stored as text
	VerbosityScore     string // JSON object stored as text
	TechnologyInterest string // JSON object stored as text
	DomainInterest     string // JSON object stored as text
	RecentQueries      string // JSON array stored as text
	UpdatedAt          time.Time
}

// Message is one persisted turn message within a thread.
type Message struct {
	ID        string
	ThreadID  string
	UserID    string
	Role      string // "user" or "assistant"
	Content   string
	FileName  string
	FilePath  string
	CreatedAt time.Time
}

// Document is an ingested or generated document available to the
// structured-query and semantic-search tools.
type Document struct {
	ID        string
	Title     string
	Content   string
	Source    string
	CreatedAt time.Time
}
