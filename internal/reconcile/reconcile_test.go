package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pathakanu/medibuddy/internal/cellmap"
	"github.com/pathakanu/medibuddy/internal/feed"
	"github.com/pathakanu/medibuddy/internal/model"
	"github.com/pathakanu/medibuddy/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// recordingSink captures notifications instead of sending them.
type recordingSink struct {
	mu   sync.Mutex
	sent []sentAlert
}

type sentAlert struct {
	UserID string
	Title  string
	Body   string
}

func (s *recordingSink) Send(userID, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentAlert{UserID: userID, Title: title, Body: body})
	return nil
}

func (s *recordingSink) alerts() []sentAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentAlert(nil), s.sent...)
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

// runReconciler starts a reconciler over a memory feed and returns the
// publish side plus a stop function that waits for teardown.
func runReconciler(t *testing.T, st *store.Store, sink *recordingSink, userID string) (*feed.Memory, func()) {
	t.Helper()

	memoryFeed := feed.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reconciler := New(userID, st, memoryFeed, sink, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = reconciler.Run(ctx)
	}()
	// Let the subscription register before tests publish.
	time.Sleep(10 * time.Millisecond)

	return memoryFeed, func() {
		cancel()
		<-done
	}
}

// waitForStatus polls until the reminder reaches status or the deadline passes.
func waitForStatus(t *testing.T, st *store.Store, userID, id string, status model.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		reminder, err := st.GetReminder(context.Background(), userID, id)
		if err != nil {
			t.Fatalf("get reminder: %v", err)
		}
		if reminder.Status == status {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("reminder never reached status %s", status)
}

func TestReconcilerMirrorsDeviceState(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &recordingSink{}
	ctx := context.Background()

	reminder, err := st.CreateReminder(ctx, "user", cellmap.Monday, cellmap.Morning, "09:00", "aspirin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	memoryFeed, stop := runReconciler(t, st, sink, "user")
	defer stop()

	err = memoryFeed.Publish(ctx, feed.Change{
		CellID: "cell1", State: model.StatusTaken, Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitForStatus(t, st, "user", reminder.ID, model.StatusTaken)

	alerts := sink.alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(alerts))
	}
	if alerts[0].UserID != "user" || !strings.Contains(alerts[0].Title, "Taken") {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
}

func TestReconcilerIsUnconditional(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &recordingSink{}
	ctx := context.Background()

	reminder, err := st.CreateReminder(ctx, "user", cellmap.Monday, cellmap.Morning, "09:00", "aspirin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Already resolved by hand; the mirror still applies on top.
	if err := st.SetStatus(ctx, "user", reminder.ID, model.StatusTaken); err != nil {
		t.Fatalf("set status: %v", err)
	}

	memoryFeed, stop := runReconciler(t, st, sink, "user")
	defer stop()

	err = memoryFeed.Publish(ctx, feed.Change{
		CellID: "cell1", State: model.StatusMissed, Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitForStatus(t, st, "user", reminder.ID, model.StatusMissed)

	alerts := sink.alerts()
	if len(alerts) != 1 || !strings.Contains(alerts[0].Title, "Missed") {
		t.Fatalf("expected a missed notification, got %+v", alerts)
	}
}

func TestReconcilerSkipsForeignCells(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &recordingSink{}
	ctx := context.Background()

	reminder, err := st.CreateReminder(ctx, "user", cellmap.Monday, cellmap.Morning, "09:00", "aspirin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	memoryFeed, stop := runReconciler(t, st, sink, "user")
	defer stop()

	// Outside the 21-cell address space and a non-cell id entirely:
	// both are skipped without touching reminders or notifying.
	for _, cellID := range []string{"cell22", "thermostat"} {
		err = memoryFeed.Publish(ctx, feed.Change{
			CellID: cellID, State: model.StatusTaken, Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("publish %s: %v", cellID, err)
		}
	}
	// A real one afterwards proves the loop survived the foreign entries.
	err = memoryFeed.Publish(ctx, feed.Change{
		CellID: "cell1", State: model.StatusTaken, Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitForStatus(t, st, "user", reminder.ID, model.StatusTaken)

	if len(sink.alerts()) != 1 {
		t.Fatalf("foreign cells produced notifications: %+v", sink.alerts())
	}
}

func TestReconcilerSkipsSlotsWithoutReminder(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &recordingSink{}
	ctx := context.Background()

	memoryFeed, stop := runReconciler(t, st, sink, "user")
	defer stop()

	// cell21 resolves fine but the user keeps nothing in Sunday Night.
	err := memoryFeed.Publish(ctx, feed.Change{
		CellID: "cell21", State: model.StatusMissed, Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if len(sink.alerts()) != 0 {
		t.Fatalf("empty slot produced notifications: %+v", sink.alerts())
	}
}

func TestReconcilerStopsOnCancel(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &recordingSink{}

	_, stop := runReconciler(t, st, sink, "user")

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop on context cancel")
	}
}
