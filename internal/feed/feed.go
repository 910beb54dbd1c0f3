// Package feed carries cell-state changes from the ingestion side to
// the per-session reconciler. There is a single logical stream: every
// accepted device event is published once and delivered, in order, to
// each live subscriber.
package feed

import (
	"context"
	"time"

	"github.com/pathakanu/medibuddy/internal/model"
)

// Change is one device-state update as seen by subscribers.
type Change struct {
	CellID    string       `json:"cellId"`
	State     model.Status `json:"state"`
	Timestamp time.Time    `json:"timestamp"`
	DeviceID  *string      `json:"deviceId,omitempty"`
}

// Publisher emits cell-state changes.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Subscriber delivers cell-state changes until ctx is cancelled. The
// returned channel is closed when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Change, error)
}
