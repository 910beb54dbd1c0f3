// Package ingest accepts raw pill-cell sensor events, records them, and
// reconciles them against the owning user's pending reminders. Events
// arrive over the HTTP webhook or, for brokered deployments, over MQTT;
// both transports run the same apply path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pathakanu/medibuddy/internal/feed"
	"github.com/pathakanu/medibuddy/internal/model"
	"github.com/pathakanu/medibuddy/internal/store"
)

var (
	// ErrMissingFields is returned when cellId, event, or timestamp is absent.
	ErrMissingFields = errors.New("ingest: missing cellId, event, or timestamp")
	// ErrBadEvent is returned for event values other than taken/missed.
	ErrBadEvent = errors.New("ingest: event must be taken or missed")
	// ErrBadTimestamp is returned when the timestamp is not ISO-8601.
	ErrBadTimestamp = errors.New("ingest: timestamp must be ISO-8601")
)

// Event is one raw device report as submitted by a sensor.
type Event struct {
	CellID    string  `json:"cellId"`
	Event     string  `json:"event"`
	Timestamp string  `json:"timestamp"`
	DeviceID  *string `json:"deviceId,omitempty"`
	UserID    *string `json:"userId,omitempty"`
}

// Ingestor validates device events and applies them to the store.
type Ingestor struct {
	store    *store.Store
	feed     feed.Publisher
	logger   *slog.Logger
	attempts int
}

// New creates an Ingestor. attempts bounds the persistence retries per
// event; values below 1 are treated as 1.
func New(st *store.Store, pub feed.Publisher, logger *slog.Logger, attempts int) *Ingestor {
	if attempts < 1 {
		attempts = 1
	}
	return &Ingestor{store: st, feed: pub, logger: logger, attempts: attempts}
}

// Apply validates ev and performs both ingestion effects: the per-cell
// state upsert (always) and the pending-reminder bulk transition (only
// when the event names a user). Validation errors occur before any
// write.
func (i *Ingestor) Apply(ctx context.Context, ev Event, source string) error {
	if ev.CellID == "" || ev.Event == "" || ev.Timestamp == "" {
		return ErrMissingFields
	}
	state := model.Status(ev.Event)
	if state != model.StatusTaken && state != model.StatusMissed {
		return fmt.Errorf("%w: got %q", ErrBadEvent, ev.Event)
	}
	timestamp, err := time.Parse(time.RFC3339, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadTimestamp, ev.Timestamp)
	}

	err = i.withRetry(ctx, func() error {
		if err := i.store.UpsertCellState(ctx, ev.CellID, state, timestamp, ev.DeviceID); err != nil {
			return fmt.Errorf("upsert cell state: %w", err)
		}
		return i.store.AppendDeviceEvent(ctx, &model.DeviceEventLog{
			CellID:    ev.CellID,
			Event:     state,
			Timestamp: timestamp,
			DeviceID:  ev.DeviceID,
			UserID:    ev.UserID,
			Source:    source,
		})
	})
	if err != nil {
		return err
	}

	if ev.UserID != nil && *ev.UserID != "" {
		var updated int64
		err = i.withRetry(ctx, func() error {
			var err error
			updated, err = i.store.MarkPendingByCell(ctx, *ev.UserID, ev.CellID, state)
			return err
		})
		if err != nil {
			return fmt.Errorf("mark pending reminders: %w", err)
		}
		i.logger.Info("device event reconciled",
			"cell_id", ev.CellID, "state", state, "user_id", *ev.UserID,
			"reminders_updated", updated, "source", source)
	} else {
		i.logger.Info("device event recorded",
			"cell_id", ev.CellID, "state", state, "source", source)
	}

	if err := i.feed.Publish(ctx, feed.Change{
		CellID:    ev.CellID,
		State:     state,
		Timestamp: timestamp,
		DeviceID:  ev.DeviceID,
	}); err != nil {
		// The durable record already exists; a feed hiccup only delays
		// the session mirror, so log and acknowledge.
		i.logger.Warn("feed publish failed", "cell_id", ev.CellID, "error", err)
	}
	return nil
}

// withRetry runs op up to the configured attempt count with jittered
// exponential backoff between failures.
func (i *Ingestor) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < i.attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 100 * time.Millisecond
			backoff += time.Duration(rand.Int63n(int64(backoff)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}
