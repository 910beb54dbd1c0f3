// Package cellmap maps between physical pillbox compartments and the
// logical (day, slot) identity of a weekly reminder. The box has 21
// cells: one per weekday and dosing window, numbered row-major from
// Monday Morning (cell1) to Sunday Night (cell21).
package cellmap

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Day is a weekday name as stored on reminders and device payloads.
type Day string

// Slot is one of the three daily dosing windows.
type Slot string

const (
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
	Friday    Day = "Friday"
	Saturday  Day = "Saturday"
	Sunday    Day = "Sunday"

	Morning   Slot = "Morning"
	Afternoon Slot = "Afternoon"
	Night     Slot = "Night"
)

// Days lists the weekdays in cell order.
var Days = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Slots lists the dosing windows in cell order.
var Slots = []Slot{Morning, Afternoon, Night}

// ErrInvalidAddress is returned for any day, slot, or cell identifier
// outside the declared address space.
var ErrInvalidAddress = errors.New("cellmap: invalid address")

var cellPattern = regexp.MustCompile(`^cell(\d+)$`)

// DayIndex returns the 0-based position of d in the weekly cycle.
func DayIndex(d Day) (int, error) {
	for i, v := range Days {
		if v == d {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: day %q", ErrInvalidAddress, d)
}

// SlotIndex returns the 0-based position of s within a day.
func SlotIndex(s Slot) (int, error) {
	for i, v := range Slots {
		if v == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: slot %q", ErrInvalidAddress, s)
}

// ToCell renders the physical cell identifier for a (day, slot) pair.
func ToCell(day Day, slot Slot) (string, error) {
	di, err := DayIndex(day)
	if err != nil {
		return "", err
	}
	si, err := SlotIndex(slot)
	if err != nil {
		return "", err
	}
	return "cell" + strconv.Itoa(di*len(Slots)+si+1), nil
}

// ToDaySlot recovers the (day, slot) pair from a cell identifier.
func ToDaySlot(cellID string) (Day, Slot, error) {
	m := cellPattern.FindStringSubmatch(cellID)
	if m == nil {
		return "", "", fmt.Errorf("%w: cell %q", ErrInvalidAddress, cellID)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > len(Days)*len(Slots) {
		return "", "", fmt.Errorf("%w: cell %q out of range", ErrInvalidAddress, cellID)
	}
	n--
	return Days[n/len(Slots)], Slots[n%len(Slots)], nil
}

// SlotKey composes the deterministic reminder key for a (day, slot)
// pair, e.g. "Monday_Morning". The reconciler uses it to address a
// reminder without scanning.
func SlotKey(day Day, slot Slot) string {
	return string(day) + "_" + string(slot)
}
