package reminder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for start and end dates (DD/MM/YYYY).
const DateLayout = "02/01/2006"

const MsgEndBeforeStart = "End date must be after start date"

var dateRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// Input is the create-or-update request body. Empty optional fields take the
// package defaults.
type Input struct {
	UserID      string `json:"userId"`
	ID          string `json:"id"`
	DeviceToken string `json:"deviceToken"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Frequency   string `json:"frequency"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	IsActive    *bool  `json:"isActive"`
}

// ValidationError lists every field problem found in an Input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid reminder: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// ParseDate parses a DD/MM/YYYY date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !dateRe.MatchString(s) {
		return time.Time{}, fmt.Errorf("%q is not DD/MM/YYYY", s)
	}
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a calendar date", s)
	}
	return d, nil
}

// Build validates in and returns the reminder it describes. checkFrequency
// reports whether the frequency string is acceptable; now stamps both
// timestamps. A missing id gets a fresh UUID.
func (in Input) Build(now time.Time, checkFrequency func(string) error) (Reminder, error) {
	verr := &ValidationError{Fields: map[string]string{}}

	r := Reminder{
		ID:          strings.TrimSpace(in.ID),
		UserID:      strings.TrimSpace(in.UserID),
		DeviceToken: strings.TrimSpace(in.DeviceToken),
		Frequency:   strings.TrimSpace(in.Frequency),
		Title:       in.Title,
		Body:        in.Body,
		IsActive:    true,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if r.UserID == "" {
		r.UserID = DefaultUserID
	}
	if r.Title == "" {
		r.Title = DefaultTitle
	}
	if r.Body == "" {
		r.Body = DefaultBody
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	} else if _, err := uuid.Parse(r.ID); err != nil {
		verr.Fields["id"] = "must be a UUID"
	}
	if r.DeviceToken == "" {
		verr.Fields["deviceToken"] = "is required"
	}

	var err error
	if r.StartDate, err = ParseDate(in.StartDate); err != nil {
		verr.Fields["startDate"] = err.Error()
	}
	if r.EndDate, err = ParseDate(in.EndDate); err != nil {
		verr.Fields["endDate"] = err.Error()
	}
	if _, bad := verr.Fields["startDate"]; !bad {
		if _, bad := verr.Fields["endDate"]; !bad && r.EndDate.Before(r.StartDate) {
			verr.Fields["endDate"] = MsgEndBeforeStart
		}
	}

	if r.Frequency == "" {
		verr.Fields["frequency"] = "is required"
	} else if checkFrequency != nil {
		if err := checkFrequency(r.Frequency); err != nil {
			verr.Fields["frequency"] = err.Error()
		}
	}

	if len(verr.Fields) > 0 {
		return Reminder{}, verr
	}
	return r, nil
}
