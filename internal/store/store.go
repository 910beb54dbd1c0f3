// Package store persists reminders and per-cell device state. All
// reminder operations are scoped to an explicit user id; there is no
// ambient session state.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pathakanu/medibuddy/internal/cellmap"
	"github.com/pathakanu/medibuddy/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when an id or (day, slot) pair matches no reminder.
	ErrNotFound = errors.New("store: reminder not found")
	// ErrDuplicateSlot is returned when a user already has a reminder
	// for the requested (day, slot) pair.
	ErrDuplicateSlot = errors.New("store: reminder already exists for day and slot")
	// ErrInvalidTime is returned for wall-clock strings not in HH:MM form.
	ErrInvalidTime = errors.New("store: invalid time, expected HH:MM")
)

// Store wraps the database for reminder and cell-state access.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an open database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateReminder validates and persists a new pending reminder, deriving
// its cell id from the (day, slot) pair.
func (s *Store) CreateReminder(ctx context.Context, userID string, day cellmap.Day, slot cellmap.Slot, timeStr, medicineName string) (*model.Reminder, error) {
	cellID, err := cellmap.ToCell(day, slot)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse("15:04", timeStr); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTime, timeStr)
	}

	reminder := &model.Reminder{
		ID:           uuid.NewString(),
		UserID:       userID,
		Day:          string(day),
		Slot:         string(slot),
		Time:         timeStr,
		MedicineName: medicineName,
		Status:       model.StatusPending,
		CellID:       cellID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Reminder{}).
			Where("user_id = ? AND day = ? AND slot = ?", userID, day, slot).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateSlot
		}
		return tx.Create(reminder).Error
	})
	if err != nil {
		return nil, err
	}
	return reminder, nil
}

// GetReminder fetches one reminder owned by userID.
func (s *Store) GetReminder(ctx context.Context, userID, id string) (*model.Reminder, error) {
	var reminder model.Reminder
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		First(&reminder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

// ListReminders returns all of a user's reminders in weekly order.
func (s *Store) ListReminders(ctx context.Context, userID string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("cell_id ASC, created_at ASC").
		Find(&reminders).Error
	return reminders, err
}

// ListAll returns every reminder across users, used to re-arm
// notification schedules at boot.
func (s *Store) ListAll(ctx context.Context) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := s.db.WithContext(ctx).Order("user_id ASC, cell_id ASC").Find(&reminders).Error
	return reminders, err
}

// SetStatus transitions one reminder by id, stamping UpdatedAt.
func (s *Store) SetStatus(ctx context.Context, userID, id string, status model.Status) error {
	res := s.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatusBySlot transitions the reminder addressed by its (day, slot)
// identity, unconditionally. This is the reconciler's mirror write: the
// device's latest state wins regardless of the previous status.
func (s *Store) SetStatusBySlot(ctx context.Context, userID string, day cellmap.Day, slot cellmap.Slot, status model.Status) error {
	res := s.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("user_id = ? AND day = ? AND slot = ?", userID, day, slot).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPendingByCell transitions every pending reminder of the user that
// sits on cellID to status, in one atomic statement. Zero matches is not
// an error; the count of transitioned reminders is returned.
func (s *Store) MarkPendingByCell(ctx context.Context, userID, cellID string, status model.Status) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("user_id = ? AND cell_id = ? AND status = ?", userID, cellID, model.StatusPending).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// UpdateReminder rewrites a reminder's schedule fields, re-deriving the
// cell id, and resets it to pending.
func (s *Store) UpdateReminder(ctx context.Context, userID, id string, day cellmap.Day, slot cellmap.Slot, timeStr, medicineName string) (*model.Reminder, error) {
	cellID, err := cellmap.ToCell(day, slot)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse("15:04", timeStr); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTime, timeStr)
	}

	res := s.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(map[string]any{
			"day":           string(day),
			"slot":          string(slot),
			"time":          timeStr,
			"medicine_name": medicineName,
			"cell_id":       cellID,
			"status":        model.StatusPending,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetReminder(ctx, userID, id)
}

// DeleteReminder removes one reminder owned by userID.
func (s *Store) DeleteReminder(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&model.Reminder{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertCellState merges the latest device report into the per-cell
// state row, leaving unrelated fields untouched.
func (s *Store) UpsertCellState(ctx context.Context, cellID string, state model.Status, timestamp time.Time, deviceID *string) error {
	row := &model.CellState{
		CellID:    cellID,
		State:     state,
		Timestamp: timestamp,
		DeviceID:  deviceID,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cell_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "timestamp", "device_id", "updated_at"}),
	}).Create(row).Error
}

// GetCellState returns the latest device report for a cell, or nil when
// the cell has never reported.
func (s *Store) GetCellState(ctx context.Context, cellID string) (*model.CellState, error) {
	var state model.CellState
	err := s.db.WithContext(ctx).Where("cell_id = ?", cellID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// AppendDeviceEvent records one raw sensor report. Rows here are never
// updated.
func (s *Store) AppendDeviceEvent(ctx context.Context, event *model.DeviceEventLog) error {
	return s.db.WithContext(ctx).Create(event).Error
}

// Counts summarizes a user's reminders by status.
type Counts struct {
	Taken   int64
	Missed  int64
	Pending int64
	Total   int64
}

// AdherenceCounts tallies the user's reminders per status.
func (s *Store) AdherenceCounts(ctx context.Context, userID string) (Counts, error) {
	var rows []struct {
		Status model.Status
		N      int64
	}
	err := s.db.WithContext(ctx).Model(&model.Reminder{}).
		Select("status, COUNT(*) AS n").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return Counts{}, err
	}

	var counts Counts
	for _, row := range rows {
		switch row.Status {
		case model.StatusTaken:
			counts.Taken = row.N
		case model.StatusMissed:
			counts.Missed = row.N
		default:
			counts.Pending += row.N
		}
		counts.Total += row.N
	}
	return counts, nil
}
