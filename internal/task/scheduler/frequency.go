package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrScheduling       = errors.New("scheduling failed")
)

type Period string

const (
	AM Period = "AM"
	PM Period = "PM"
)

// Frequency is a parsed 12-hour time of day.
type Frequency struct {
	Hour12 int
	Minute int
	Period Period
}

var frequencyRe = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s?(AM|PM)$`)

// ParseFrequency parses "H:MM AM" style input. The period is case-insensitive
// and the space before it is optional.
func ParseFrequency(s string) (Frequency, error) {
	m := frequencyRe.FindStringSubmatch(s)
	if m == nil {
		return Frequency{}, fmt.Errorf("%w: %q, expected H:MM AM/PM", ErrInvalidFrequency, s)
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if h < 1 || h > 12 {
		return Frequency{}, fmt.Errorf("%w: hour %d out of range 1-12", ErrInvalidFrequency, h)
	}
	if minute > 59 {
		return Frequency{}, fmt.Errorf("%w: minute %d out of range 0-59", ErrInvalidFrequency, minute)
	}
	return Frequency{Hour12: h, Minute: minute, Period: Period(strings.ToUpper(m[3]))}, nil
}

// ValidateFrequency reports whether s parses.
func ValidateFrequency(s string) error {
	_, err := ParseFrequency(s)
	return err
}

// Hour24 converts a 12-hour clock hour: 12 AM is 0, 12 PM is 12, other PM
// hours add 12.
func Hour24(hour12 int, p Period) int {
	switch {
	case p == AM && hour12 == 12:
		return 0
	case p == PM && hour12 != 12:
		return hour12 + 12
	default:
		return hour12
	}
}

func (f Frequency) Hour24() int { return Hour24(f.Hour12, f.Period) }

func (f Frequency) String() string {
	return fmt.Sprintf("%d:%02d %s", f.Hour12, f.Minute, f.Period)
}
