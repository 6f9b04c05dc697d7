package schedule

import (
	"fmt"

	"github.com/google/uuid"
)

// BookedInterval is the slice of an existing non-terminal appointment that
// slot generation needs: its occupied window on the day.
type BookedInterval struct {
	AppointmentID uuid.UUID
	StartMin      int
	EndMin        int
}

// GenerateSlots emits the ordered candidate slots for one effective day and
// marks those overlapping an existing booking.
//
// The cursor starts at the day's start; a slot intersecting the break window
// is not emitted, the cursor jumps to break end and retries. After each
// emitted slot the cursor advances by duration+buffer, so the buffer is
// preserved even for the first slot after a break. Generation stops once the
// next slot would end past the working window.
func GenerateSlots(day EffectiveDay, booked []BookedInterval) ([]TimeSlot, error) {
	if !day.Working {
		return []TimeSlot{}, nil
	}
	if day.SlotMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot duration %d", ErrInvalidConfig, day.SlotMinutes)
	}

	slots := []TimeSlot{}
	cursor := day.StartMin
	for {
		end := cursor + day.SlotMinutes
		if end > day.EndMin {
			break
		}
		if day.HasBreak() && Overlaps(cursor, end, day.BreakStartMin, day.BreakEndMin) {
			cursor = day.BreakEndMin
			continue
		}

		slot := TimeSlot{
			StartMin:  cursor,
			EndMin:    end,
			Start:     FormatClock(cursor),
			End:       FormatClock(end),
			Available: true,
		}
		for _, b := range booked {
			if Overlaps(cursor, end, b.StartMin, b.EndMin) {
				id := b.AppointmentID
				slot.Available = false
				slot.Booked = true
				slot.AppointmentID = &id
				break
			}
		}
		slots = append(slots, slot)
		cursor = end + day.BufferMinutes
	}
	return slots, nil
}

// Overlaps reports whether half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}
