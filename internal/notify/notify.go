// Package notify arms weekly dose alerts and delivers user-facing
// notifications. The scheduler owns one recurring entry per reminder;
// immediate sends go through a Sink so transports stay swappable.
package notify

import (
	"fmt"
	"time"

	"github.com/pathakanu/medibuddy/internal/cellmap"
)

// Sink delivers one user-facing alert. Implementations are
// fire-and-forget from the caller's perspective.
type Sink interface {
	Send(userID, title, body string) error
}

// NextOccurrence computes the next instant at or after now that falls on
// the given weekday at the given wall-clock time. If now is already past
// today's occurrence, the result rolls forward exactly seven days.
func NextOccurrence(now time.Time, day cellmap.Day, hhmm string, loc *time.Location) (time.Time, error) {
	dayIndex, err := cellmap.DayIndex(day)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}

	now = now.In(loc)
	target := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)

	// cellmap days start on Monday; time.Weekday starts on Sunday.
	weekday := time.Weekday((dayIndex + 1) % 7)
	delta := (int(weekday) + 7 - int(now.Weekday())) % 7
	if delta == 0 && !target.After(now) {
		delta = 7
	}
	return target.AddDate(0, 0, delta), nil
}
