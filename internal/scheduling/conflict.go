package scheduling

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/store"
)

// Validator owns the booking commit path. Availability output is advisory;
// the store's transactional conflict check decides who wins when two bookings
// race for the same resource.
type Validator struct {
	store  store.Store
	engine *Engine
}

// NewValidator creates a Validator sharing the engine's store.
func NewValidator(st store.Store, engine *Engine) *Validator {
	return &Validator{store: st, engine: engine}
}

// CheckConflict runs the advisory overlap test against current blocking
// appointments. Staff and spot are checked independently; either failing
// resource fails the whole booking. Returns nil when the window is free.
func (v *Validator) CheckConflict(staffID, spotID string, start, end time.Time) (*store.Conflict, error) {
	if staffID == "" && spotID == "" {
		return nil, models.ErrNoBookingResource
	}
	appts, err := v.store.ListBlockingAppointments(staffID, spotID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocking appointments: %w", err)
	}
	for _, a := range appts {
		if !models.Overlaps(a.ScheduledStart, a.ScheduledEnd, start, end) {
			continue
		}
		resource := "spot"
		if staffID != "" && a.StaffID == staffID {
			resource = "staff"
		}
		return &store.Conflict{Resource: resource, Start: a.ScheduledStart, End: a.ScheduledEnd}, nil
	}
	return nil, nil
}

// Book commits an appointment. On conflict it returns the conflicting window
// plus up to maxAlternatives nearby free slots so the flow can offer them.
func (v *Validator) Book(appt models.Appointment, business *models.Business, duration time.Duration) (*store.Conflict, []models.TimeSlot, error) {
	conflict, err := v.store.CreateAppointmentIfFree(appt)
	if err != nil {
		return nil, nil, err
	}
	if conflict == nil {
		return nil, nil, nil
	}
	slog.Info("Validator Book lost to existing appointment",
		"appointmentID", appt.ID, "resource", conflict.Resource, "start", appt.ScheduledStart)
	alts, altErr := v.Alternatives(appt.StaffID, business, appt.ScheduledStart, duration)
	if altErr != nil {
		slog.Warn("Validator Book could not compute alternatives", "error", altErr)
	}
	return conflict, alts, nil
}

// Reschedule moves an existing appointment under the same commit-time check.
func (v *Validator) Reschedule(appointmentID string, start, end time.Time) (*store.Conflict, error) {
	return v.store.RescheduleAppointmentIfFree(appointmentID, start, end)
}

// Modify rewrites an appointment's service, staff or interval under the same
// commit-time check.
func (v *Validator) Modify(appt models.Appointment) (*store.Conflict, error) {
	return v.store.UpdateAppointmentIfFree(appt)
}

const maxAlternatives = 3

// Alternatives finds the free slots nearest to the requested start, looking
// across the same day and the following day.
func (v *Validator) Alternatives(staffID string, business *models.Business, around time.Time, duration time.Duration) ([]models.TimeSlot, error) {
	if staffID == "" {
		return nil, nil
	}
	loc := business.Location()
	around = around.In(loc)
	dayStart := time.Date(around.Year(), around.Month(), around.Day(), 0, 0, 0, 0, loc)
	slots, err := v.engine.ComputeSlots(staffID, business, dayStart, dayStart.AddDate(0, 0, 2), duration)
	if err != nil {
		return nil, err
	}
	sort.Slice(slots, func(i, j int) bool {
		di := around.Sub(slots[i].Start)
		if di < 0 {
			di = -di
		}
		dj := around.Sub(slots[j].Start)
		if dj < 0 {
			dj = -dj
		}
		return di < dj
	})
	if len(slots) > maxAlternatives {
		slots = slots[:maxAlternatives]
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}
