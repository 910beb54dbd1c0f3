package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pathakanu/medibuddy/internal/cellmap"
	"github.com/pathakanu/medibuddy/internal/model"
	"github.com/pathakanu/medibuddy/internal/store"
	"github.com/robfig/cron/v3"
)

// Scheduler arms one weekly cron entry per reminder. When an entry
// fires, the reminder returns to pending — the awaiting-confirmation
// window — and the user is alerted.
type Scheduler struct {
	store  *store.Store
	sink   Sink
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // reminder id -> cron entry
}

// NewScheduler creates a scheduler firing in the given timezone.
func NewScheduler(st *store.Store, sink Sink, loc *time.Location, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   st,
		sink:    sink,
		cron:    cron.New(cron.WithLocation(loc)),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Arm schedules the weekly alert for a reminder. Re-arming the same
// reminder replaces its previous entry.
func (s *Scheduler) Arm(reminder model.Reminder) error {
	day := cellmap.Day(reminder.Day)
	slot := cellmap.Slot(reminder.Slot)

	dayIndex, err := cellmap.DayIndex(day)
	if err != nil {
		return err
	}
	clock, err := time.Parse("15:04", reminder.Time)
	if err != nil {
		return fmt.Errorf("invalid reminder time %q: %w", reminder.Time, err)
	}

	// cron weekday field counts from Sunday.
	spec := fmt.Sprintf("%d %d * * %d", clock.Minute(), clock.Hour(), (dayIndex+1)%7)

	userID := reminder.UserID
	reminderID := reminder.ID
	medicine := reminder.MedicineName
	entryID, err := s.cron.AddFunc(spec, func() {
		s.fire(userID, reminderID, day, slot, medicine)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if old, ok := s.entries[reminderID]; ok {
		s.cron.Remove(old)
	}
	s.entries[reminderID] = entryID
	s.mu.Unlock()

	next, err := NextOccurrence(time.Now(), day, reminder.Time, s.cron.Location())
	if err != nil {
		return err
	}
	s.logger.Info("reminder armed", "reminder_id", reminderID, "day", day, "slot", slot, "next_fire", next)
	return nil
}

// Cancel removes a reminder's scheduled alert, if any.
func (s *Scheduler) Cancel(reminderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[reminderID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, reminderID)
	}
}

// fire runs when a reminder's weekly instant arrives: the reminder
// re-enters pending and the user is told to take the dose. Confirmation
// comes later from the sensor or a manual action.
func (s *Scheduler) fire(userID, reminderID string, day cellmap.Day, slot cellmap.Slot, medicine string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.SetStatus(ctx, userID, reminderID, model.StatusPending); err != nil {
		s.logger.Error("reminder fire: reset to pending failed", "reminder_id", reminderID, "error", err)
	}

	if medicine == "" {
		medicine = "your medicine"
	}
	body := fmt.Sprintf("%s %s — %s", day, slot, medicine)
	if err := s.sink.Send(userID, "💊 Time to take medicine", body); err != nil {
		s.logger.Error("reminder fire: notification failed", "reminder_id", reminderID, "error", err)
	}
}

// HandleDelivery is the callback for an externally delivered alert
// carrying a (day, slot) payload: the addressed reminder re-enters
// pending until the cell opens or the user confirms by hand.
func (s *Scheduler) HandleDelivery(ctx context.Context, userID string, day cellmap.Day, slot cellmap.Slot) error {
	return s.store.SetStatusBySlot(ctx, userID, day, slot, model.StatusPending)
}
