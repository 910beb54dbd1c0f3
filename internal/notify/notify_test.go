package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pathakanu/medibuddy/internal/cellmap"
	"github.com/pathakanu/medibuddy/internal/model"
	"github.com/pathakanu/medibuddy/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSink) Send(userID, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, userID+"|"+title+"|"+body)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite memory: %v", err)
	}
	if err := db.AutoMigrate(&model.Reminder{}, &model.CellState{}, &model.DeviceEventLog{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return store.New(db)
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store, *recordingSink) {
	t.Helper()
	st := newTestStore(t)
	sink := &recordingSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(st, sink, time.UTC, logger), st, sink
}

func TestNextOccurrenceSameDayAlreadyPassed(t *testing.T) {
	t.Parallel()

	// Monday 10:00; the 09:00 dose is gone, roll a full week.
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	got, err := NextOccurrence(now, cellmap.Monday, "09:00", time.UTC)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	want := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextOccurrenceUpcomingWeekday(t *testing.T) {
	t.Parallel()

	// Sunday 08:00 targeting Monday 09:00: the very next day.
	now := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	got, err := NextOccurrence(now, cellmap.Monday, "09:00", time.UTC)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	want := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextOccurrenceLaterToday(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	got, err := NextOccurrence(now, cellmap.Monday, "09:00", time.UTC)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	want := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextOccurrenceAlwaysFutureAndRightWeekday(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 12, 30, 0, 0, time.UTC)
	for _, day := range cellmap.Days {
		got, err := NextOccurrence(now, day, "12:30", time.UTC)
		if err != nil {
			t.Fatalf("NextOccurrence(%s): %v", day, err)
		}
		if !got.After(now) {
			t.Fatalf("%s: %v is not in the future", day, got)
		}
		if diff := got.Sub(now); diff > 7*24*time.Hour {
			t.Fatalf("%s: %v is more than a week out", day, got)
		}
		dayIndex, _ := cellmap.DayIndex(day)
		if got.Weekday() != time.Weekday((dayIndex+1)%7) {
			t.Fatalf("%s: landed on %s", day, got.Weekday())
		}
	}
}

func TestNextOccurrenceInvalidInputs(t *testing.T) {
	t.Parallel()

	now := time.Now()
	if _, err := NextOccurrence(now, "Funday", "09:00", time.UTC); !errors.Is(err, cellmap.ErrInvalidAddress) {
		t.Fatalf("invalid day: got %v", err)
	}
	if _, err := NextOccurrence(now, cellmap.Monday, "9 o'clock", time.UTC); err == nil {
		t.Fatal("expected error for invalid time")
	}
}

func TestArmAndCancel(t *testing.T) {
	t.Parallel()
	scheduler, st, _ := newTestScheduler(t)
	ctx := context.Background()

	reminder, err := st.CreateReminder(ctx, "user", cellmap.Monday, cellmap.Morning, "09:00", "aspirin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := scheduler.Arm(*reminder); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if n := len(scheduler.cron.Entries()); n != 1 {
		t.Fatalf("expected 1 cron entry, got %d", n)
	}

	// Re-arming replaces rather than stacking.
	if err := scheduler.Arm(*reminder); err != nil {
		t.Fatalf("re-Arm: %v", err)
	}
	if n := len(scheduler.cron.Entries()); n != 1 {
		t.Fatalf("expected 1 cron entry after re-arm, got %d", n)
	}

	scheduler.Cancel(reminder.ID)
	if n := len(scheduler.cron.Entries()); n != 0 {
		t.Fatalf("expected 0 cron entries after cancel, got %d", n)
	}
	// Cancelling twice is harmless.
	scheduler.Cancel(reminder.ID)
}

func TestArmRejectsBadReminder(t *testing.T) {
	t.Parallel()
	scheduler, _, _ := newTestScheduler(t)

	bad := model.Reminder{ID: "x", UserID: "user", Day: "Funday", Slot: "Morning", Time: "09:00"}
	if err := scheduler.Arm(bad); !errors.Is(err, cellmap.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestFireResetsToPendingAndAlerts(t *testing.T) {
	t.Parallel()
	scheduler, st, sink := newTestScheduler(t)
	ctx := context.Background()

	reminder, err := st.CreateReminder(ctx, "user", cellmap.Monday, cellmap.Morning, "09:00", "aspirin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.SetStatus(ctx, "user", reminder.ID, model.StatusTaken); err != nil {
		t.Fatalf("set status: %v", err)
	}

	scheduler.fire("user", reminder.ID, cellmap.Monday, cellmap.Morning, "aspirin")

	got, err := st.GetReminder(ctx, "user", reminder.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("expected pending after fire, got %s", got.Status)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.sent) != 1 || !strings.Contains(sink.sent[0], "aspirin") {
		t.Fatalf("unexpected alerts: %v", sink.sent)
	}
}

func TestHandleDelivery(t *testing.T) {
	t.Parallel()
	scheduler, st, _ := newTestScheduler(t)
	ctx := context.Background()

	reminder, err := st.CreateReminder(ctx, "user", cellmap.Wednesday, cellmap.Night, "21:00", "aspirin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.SetStatus(ctx, "user", reminder.ID, model.StatusMissed); err != nil {
		t.Fatalf("set status: %v", err)
	}

	if err := scheduler.HandleDelivery(ctx, "user", cellmap.Wednesday, cellmap.Night); err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}
	got, err := st.GetReminder(ctx, "user", reminder.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}

	if err := scheduler.HandleDelivery(ctx, "user", cellmap.Thursday, cellmap.Morning); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty slot, got %v", err)
	}
}
