package scheduling

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/store"
)

// SlotGranularity is the wall-clock grid slot starts are aligned to when a
// free interval begins off-grid (for example after a booking ending at 10:20).
const SlotGranularity = 15 * time.Minute

// Engine computes offerable time slots for a staff member. Results are
// advisory: appointments can land between computation and booking, so the
// store's conflict check at commit time is the sole authority.
type Engine struct {
	store store.Store
}

// NewEngine creates an availability engine over the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// ComputeSlots enumerates bookable start times for staffID between from and
// to, for a service of the given duration. All slot arithmetic happens in the
// business timezone; returned slots carry that timezone for presentation.
//
// The range is clamped to the availability horizon. Slots are chronological
// and packed back to back: within each free interval, consecutive starts are
// one service duration apart, and a slot is only offered if the full duration
// fits inside that contiguous free interval.
func (e *Engine) ComputeSlots(staffID string, business *models.Business, from, to time.Time, duration time.Duration) ([]models.TimeSlot, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("service duration must be positive")
	}
	loc := business.Location()
	from = from.In(loc)
	to = to.In(loc)
	if horizon := from.Add(time.Duration(models.MaxAvailabilityDays) * 24 * time.Hour); to.After(horizon) {
		to = horizon
	}
	if !to.After(from) {
		return nil, nil
	}

	rules, err := e.store.ListAvailabilityRules(staffID)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability rules: %w", err)
	}
	appts, err := e.store.ListBlockingAppointments(staffID, "", from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}
	busy := make([]Interval, 0, len(appts))
	for _, a := range appts {
		busy = append(busy, Interval{Start: a.ScheduledStart.In(loc), End: a.ScheduledEnd.In(loc)})
	}

	var slots []models.TimeSlot
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		free := dayFreeIntervals(rules, day, loc)
		if len(free) == 0 {
			continue
		}
		free = subtractIntervals(free, busy)
		// Clamp to the query range so the first and last day don't offer
		// slots outside it.
		free = subtractIntervals(free, []Interval{
			{Start: day, End: from},
			{Start: to, End: day.AddDate(0, 0, 1)},
		})
		for _, iv := range free {
			for start := alignToGrid(iv.Start, day); !start.Add(duration).After(iv.End); start = start.Add(duration) {
				slots = append(slots, models.TimeSlot{StaffID: staffID, Start: start, End: start.Add(duration)})
			}
		}
	}
	slog.Debug("Engine ComputeSlots finished", "staffID", staffID, "from", from, "to", to, "slots", len(slots))
	return slots, nil
}

// alignToGrid rounds t up to the next SlotGranularity boundary of its day.
func alignToGrid(t, day time.Time) time.Time {
	offset := t.Sub(day)
	if rem := offset % SlotGranularity; rem != 0 {
		offset += SlotGranularity - rem
	}
	return day.Add(offset)
}

// dayFreeIntervals builds the free time for one calendar day: the weekly
// template for that weekday, minus unavailable exceptions, plus available
// exceptions for that specific date.
func dayFreeIntervals(rules []models.AvailabilityRule, day time.Time, loc *time.Location) []Interval {
	dateStr := day.Format("2006-01-02")
	weekday := int(day.Weekday())

	var template, added, removed []Interval
	for _, r := range rules {
		switch r.Type {
		case models.RuleTypeRegular:
			if r.DayOfWeek != weekday {
				continue
			}
			iv, ok := ruleInterval(r, day, loc)
			if !ok {
				continue
			}
			if r.IsAvailable {
				template = append(template, iv)
			} else {
				removed = append(removed, iv)
			}
		case models.RuleTypeException:
			if r.SpecificDate != dateStr {
				continue
			}
			iv, ok := ruleInterval(r, day, loc)
			if !ok {
				continue
			}
			if r.IsAvailable {
				added = append(added, iv)
			} else {
				removed = append(removed, iv)
			}
		}
	}

	free := mergeIntervals(append(template, added...))
	return subtractIntervals(free, removed)
}

// ruleInterval anchors a rule's HH:MM wall-clock window onto a calendar day.
func ruleInterval(r models.AvailabilityRule, day time.Time, loc *time.Location) (Interval, bool) {
	start, err := time.Parse("15:04", r.StartTime)
	if err != nil {
		slog.Warn("Engine skipping rule with bad start time", "ruleID", r.ID, "startTime", r.StartTime)
		return Interval{}, false
	}
	end, err := time.Parse("15:04", r.EndTime)
	if err != nil {
		slog.Warn("Engine skipping rule with bad end time", "ruleID", r.ID, "endTime", r.EndTime)
		return Interval{}, false
	}
	iv := Interval{
		Start: time.Date(day.Year(), day.Month(), day.Day(), start.Hour(), start.Minute(), 0, 0, loc),
		End:   time.Date(day.Year(), day.Month(), day.Day(), end.Hour(), end.Minute(), 0, 0, loc),
	}
	if iv.Empty() {
		return Interval{}, false
	}
	return iv, true
}
