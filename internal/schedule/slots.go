package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// slotSearchHorizonDays bounds the forward search in FindNextFreeSlot.
const slotSearchHorizonDays = 7

// SlotCalculator derives bookable slots for a provider from weekly windows
// and already-confirmed appointments. Slots are a projection, never stored.
// All window placement happens in a single fixed reference timezone.
type SlotCalculator struct {
	repo Repository
	loc  *time.Location
}

func NewSlotCalculator(repo Repository, loc *time.Location) *SlotCalculator {
	if loc == nil {
		loc = time.UTC
	}
	return &SlotCalculator{repo: repo, loc: loc}
}

// AvailableSlots returns the ascending start instants of every bookable slot
// for the provider on the given calendar day. Only confirmed appointments
// block a slot; pending requests compete for the same slot until one is
// accepted. Days without a matching window yield an empty result.
func (c *SlotCalculator) AvailableSlots(ctx context.Context, providerID uuid.UUID, day time.Time) ([]time.Time, error) {
	p, err := c.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	return c.availableSlotsFor(ctx, p, day)
}

func (c *SlotCalculator) availableSlotsFor(ctx context.Context, p *Provider, day time.Time) ([]time.Time, error) {
	weekday := day.In(c.loc).Weekday()
	dur := p.SlotDuration()

	var slots []time.Time
	for _, w := range p.WeeklyWindows {
		if w.Day != weekday {
			continue
		}
		// A malformed window skips silently rather than failing the day.
		if !w.Valid() {
			continue
		}

		winStart, winEnd := c.windowBounds(day, w)

		occupied, err := c.repo.ListConfirmedOverlapping(ctx, p.ID, winStart, winEnd)
		if err != nil {
			return nil, fmt.Errorf("load confirmed appointments: %w", err)
		}

		for cursor := winStart; !cursor.Add(dur).After(winEnd); cursor = cursor.Add(dur) {
			slotEnd := cursor.Add(dur)
			free := true
			for _, a := range occupied {
				if Overlaps(cursor, slotEnd, a.ScheduledStart, a.ScheduledEnd) {
					free = false
					break
				}
			}
			if free {
				slots = append(slots, cursor)
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}

// FindNextFreeSlot scans the day of notBefore and the following six calendar
// days for the first available slot starting at or after notBefore. The
// second return value is false when the horizon is exhausted. Callers pass
// the provider's own slot duration in minutes; slots are emitted at that
// granularity.
func (c *SlotCalculator) FindNextFreeSlot(ctx context.Context, p *Provider, notBefore time.Time, durationMinutes int) (time.Time, bool, error) {
	_ = durationMinutes // slot granularity follows the provider configuration

	local := notBefore.In(c.loc)
	y, m, d := local.Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, c.loc)

	for i := 0; i < slotSearchHorizonDays; i++ {
		day := first.AddDate(0, 0, i)
		slots, err := c.availableSlotsFor(ctx, p, day)
		if err != nil {
			return time.Time{}, false, err
		}
		for _, s := range slots {
			if !s.Before(notBefore) {
				return s, true, nil
			}
		}
	}
	return time.Time{}, false, nil
}

// WithinWorkingHours reports whether [start, end) is fully contained in one
// of the provider's weekly windows for start's calendar day.
func (c *SlotCalculator) WithinWorkingHours(p *Provider, start, end time.Time) bool {
	weekday := start.In(c.loc).Weekday()
	for _, w := range p.WeeklyWindows {
		if w.Day != weekday || !w.Valid() {
			continue
		}
		winStart, winEnd := c.windowBounds(start, w)
		if !start.Before(winStart) && !end.After(winEnd) {
			return true
		}
	}
	return false
}

// windowBounds resolves a weekly window to absolute instants on the calendar
// day of the given instant, interpreted in the reference timezone.
func (c *SlotCalculator) windowBounds(day time.Time, w WeeklyWindow) (time.Time, time.Time) {
	y, m, d := day.In(c.loc).Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	start := midnight.Add(time.Duration(w.StartMinute) * time.Minute)
	end := midnight.Add(time.Duration(w.EndMinute) * time.Minute)
	return start.UTC(), end.UTC()
}
