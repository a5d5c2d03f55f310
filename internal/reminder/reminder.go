// Package reminder holds the reminder record and the request shape used to
// create or replace it.
package reminder

import (
	"errors"
	"time"

	"vocabremind/internal/vocabulary"
)

const (
	DefaultUserID = "1"
	DefaultTitle  = "Thông báo học tập"
	DefaultBody   = "Bắt đầu học tiếng Anh với Lazy English"
)

var (
	ErrNotFound     = errors.New("reminder not found")
	ErrNoActiveJob  = errors.New("no active job found for this reminder")
	ErrInvalidInput = errors.New("invalid reminder")
)

// Reminder is the persisted record. StartDate and EndDate are UTC midnights;
// only their calendar day is meaningful.
type Reminder struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	DeviceToken string    `json:"deviceToken"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Frequency   string    `json:"frequency"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Content is what a firing delivers: either FixedContent or RandomVocabulary.
// It is chosen when the reminder is scheduled.
type Content interface {
	isContent()
}

// FixedContent always delivers the same title and body.
type FixedContent struct {
	Title string
	Body  string
}

// RandomVocabulary delivers one uniformly chosen entry per firing.
type RandomVocabulary struct {
	Entries []vocabulary.Entry
}

func (FixedContent) isContent()     {}
func (RandomVocabulary) isContent() {}

// ContentFor returns RandomVocabulary when words is non-empty and the
// reminder's own title and body otherwise.
func ContentFor(r Reminder, words []vocabulary.Entry) Content {
	if len(words) > 0 {
		return RandomVocabulary{Entries: words}
	}
	return FixedContent{Title: r.Title, Body: r.Body}
}
