// Package reconcile mirrors device-state changes onto the session
// user's reminder records and raises the matching notifications. One
// Reconciler runs per signed-in session and dies with its context.
package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pathakanu/medibuddy/internal/cellmap"
	"github.com/pathakanu/medibuddy/internal/feed"
	"github.com/pathakanu/medibuddy/internal/model"
	"github.com/pathakanu/medibuddy/internal/notify"
	"github.com/pathakanu/medibuddy/internal/store"
)

// Reconciler subscribes to the cell-state feed for one user session.
type Reconciler struct {
	userID string
	store  *store.Store
	sub    feed.Subscriber
	sink   notify.Sink
	logger *slog.Logger
}

// New creates a reconciler for the given session user.
func New(userID string, st *store.Store, sub feed.Subscriber, sink notify.Sink, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		userID: userID,
		store:  st,
		sub:    sub,
		sink:   sink,
		logger: logger.With("user_id", userID),
	}
}

// Run processes feed changes in delivery order until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	changes, err := r.sub.Subscribe(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("reconciler started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				r.logger.Info("reconciler feed closed")
				return nil
			}
			r.apply(ctx, change)
		}
	}
}

// apply mirrors one change onto the matching reminder. Cells outside
// the reminder address space are expected on the stream and skipped
// without comment; the write itself is last-write-wins.
func (r *Reconciler) apply(ctx context.Context, change feed.Change) {
	day, slot, err := cellmap.ToDaySlot(change.CellID)
	if err != nil {
		return
	}

	err = r.store.SetStatusBySlot(ctx, r.userID, day, slot, change.State)
	if errors.Is(err, store.ErrNotFound) {
		// The user keeps no reminder in this slot.
		return
	}
	if err != nil {
		r.logger.Error("mirror write failed", "cell_id", change.CellID, "error", err)
		return
	}
	r.logger.Info("reminder mirrored", "cell_id", change.CellID, "day", day, "slot", slot, "state", change.State)

	switch change.State {
	case model.StatusTaken:
		r.notifyUser("✅ Medicine Taken", "Medicine taken successfully")
	case model.StatusMissed:
		r.notifyUser("⚠️ Medicine Missed", "Medicine not taken within the dose window")
	}
}

func (r *Reconciler) notifyUser(title, body string) {
	if err := r.sink.Send(r.userID, title, body); err != nil {
		r.logger.Error("notification failed", "title", title, "error", err)
	}
}
