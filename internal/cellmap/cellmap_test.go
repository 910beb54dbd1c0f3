package cellmap

import (
	"errors"
	"testing"
)

func TestRoundTripAllCells(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool, 21)
	for _, day := range Days {
		for _, slot := range Slots {
			cell, err := ToCell(day, slot)
			if err != nil {
				t.Fatalf("ToCell(%s, %s): %v", day, slot, err)
			}
			if seen[cell] {
				t.Fatalf("cell %s produced twice", cell)
			}
			seen[cell] = true

			gotDay, gotSlot, err := ToDaySlot(cell)
			if err != nil {
				t.Fatalf("ToDaySlot(%s): %v", cell, err)
			}
			if gotDay != day || gotSlot != slot {
				t.Fatalf("round trip %s/%s via %s: got %s/%s", day, slot, cell, gotDay, gotSlot)
			}
		}
	}
	if len(seen) != 21 {
		t.Fatalf("expected 21 distinct cells, got %d", len(seen))
	}
}

func TestBoundaryCells(t *testing.T) {
	t.Parallel()

	cell, err := ToCell(Monday, Morning)
	if err != nil || cell != "cell1" {
		t.Fatalf("Monday Morning: got %q, %v", cell, err)
	}
	cell, err = ToCell(Sunday, Night)
	if err != nil || cell != "cell21" {
		t.Fatalf("Sunday Night: got %q, %v", cell, err)
	}
}

func TestToCellInvalidInputs(t *testing.T) {
	t.Parallel()

	if _, err := ToCell("Funday", Morning); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("invalid day: got %v", err)
	}
	if _, err := ToCell(Monday, "Brunch"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("invalid slot: got %v", err)
	}
}

func TestToDaySlotInvalidInputs(t *testing.T) {
	t.Parallel()

	for _, cellID := range []string{"cell0", "cell22", "foo", "cell", "cellx", ""} {
		if _, _, err := ToDaySlot(cellID); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("ToDaySlot(%q): expected ErrInvalidAddress, got %v", cellID, err)
		}
	}
}

func TestSlotKey(t *testing.T) {
	t.Parallel()

	if got := SlotKey(Wednesday, Afternoon); got != "Wednesday_Afternoon" {
		t.Fatalf("SlotKey: got %q", got)
	}
}
