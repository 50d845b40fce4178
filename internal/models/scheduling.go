// Package models defines scheduling structures for Turnero.
package models

import (
	"errors"
	"time"
)

// Error variables for scheduling validation.
var (
	ErrInvalidInterval    = errors.New("interval end must be after start")
	ErrInvalidDayOfWeek   = errors.New("day_of_week must be between 0 (Sunday) and 6 (Saturday)")
	ErrMissingRuleDate    = errors.New("specific_date is required for exception rules")
	ErrInvalidRuleType    = errors.New("invalid availability rule type")
	ErrInvalidTimeOfDay   = errors.New("time must be in HH:MM format (24-hour)")
	ErrNoBookingResource  = errors.New("at least one of staff_id or spot_id is required")
	ErrInvalidAppointment = errors.New("invalid appointment status")
)

// Business represents a tenant organization.
type Business struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Timezone       string `json:"timezone"` // IANA name, e.g. "America/Argentina/Buenos_Aires"
	Locale         string `json:"locale"`   // reply language, e.g. "es"
	WhatsAppNumber string `json:"whatsapp_number,omitempty"`
	OwnerPhone     string `json:"owner_phone,omitempty"`
}

// Location returns the business timezone, falling back to UTC on bad data.
func (b *Business) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Service represents a bookable service offered by a business.
type Service struct {
	ID          string `json:"id"`
	BusinessID  string `json:"business_id"`
	Name        string `json:"name"`
	DurationMin int    `json:"duration_min"`
	PriceCents  int64  `json:"price_cents,omitempty"`
}

// Duration returns the service duration.
func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMin) * time.Minute
}

// Spot represents a physical resource (chair, table) that cannot be
// double-booked for overlapping times.
type Spot struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	LocationID string `json:"location_id,omitempty"`
	Name       string `json:"name"`
}

// RuleType distinguishes weekly template rules from date-specific exceptions.
type RuleType string

const (
	// RuleTypeRegular defines the weekly availability template.
	RuleTypeRegular RuleType = "regular"
	// RuleTypeException overrides the template for one specific date. It can
	// add availability (IsAvailable true) or remove it (IsAvailable false).
	RuleTypeException RuleType = "exception"
)

// AvailabilityRule defines when a staff member is available.
// StartTime and EndTime are "HH:MM" wall-clock values in the business timezone.
type AvailabilityRule struct {
	ID           string   `json:"id"`
	StaffID      string   `json:"staff_id"`
	Type         RuleType `json:"type"`
	DayOfWeek    int      `json:"day_of_week,omitempty"`   // regular rules: 0=Sunday..6=Saturday
	SpecificDate string   `json:"specific_date,omitempty"` // exception rules: "2006-01-02"
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	IsAvailable  bool     `json:"is_available"`
}

// Validate checks structural validity of an availability rule.
func (r *AvailabilityRule) Validate() error {
	switch r.Type {
	case RuleTypeRegular:
		if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
			return ErrInvalidDayOfWeek
		}
	case RuleTypeException:
		if r.SpecificDate == "" {
			return ErrMissingRuleDate
		}
		if _, err := time.Parse("2006-01-02", r.SpecificDate); err != nil {
			return ErrMissingRuleDate
		}
	default:
		return ErrInvalidRuleType
	}
	start, err := time.Parse("15:04", r.StartTime)
	if err != nil {
		return ErrInvalidTimeOfDay
	}
	end, err := time.Parse("15:04", r.EndTime)
	if err != nil {
		return ErrInvalidTimeOfDay
	}
	if !end.After(start) {
		return ErrInvalidInterval
	}
	return nil
}

// AppointmentStatus represents the lifecycle status of an appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// Blocking reports whether an appointment in this status occupies its
// resources for conflict purposes.
func (s AppointmentStatus) Blocking() bool {
	return s == AppointmentPending || s == AppointmentConfirmed
}

// Appointment represents a booked time interval. ScheduledStart/ScheduledEnd
// form a half-open interval [start, end) persisted in UTC. Invariant: no two
// blocking appointments share a staff or spot with overlapping intervals.
type Appointment struct {
	ID             string            `json:"id"`
	BusinessID     string            `json:"business_id"`
	LocationID     string            `json:"location_id,omitempty"`
	ServiceID      string            `json:"service_id,omitempty"`
	StaffID        string            `json:"staff_id,omitempty"`
	SpotID         string            `json:"spot_id,omitempty"`
	CustomerPhone  string            `json:"customer_phone,omitempty"`
	CustomerName   string            `json:"customer_name,omitempty"`
	ScheduledStart time.Time         `json:"scheduled_start"`
	ScheduledEnd   time.Time         `json:"scheduled_end"`
	Status         AppointmentStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Validate checks structural validity of an appointment before commit.
func (a *Appointment) Validate() error {
	if a.StaffID == "" && a.SpotID == "" {
		return ErrNoBookingResource
	}
	if !a.ScheduledEnd.After(a.ScheduledStart) {
		return ErrInvalidInterval
	}
	switch a.Status {
	case AppointmentPending, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return nil
	default:
		return ErrInvalidAppointment
	}
}

// Overlaps reports whether two half-open intervals [s1,e1) and [s2,e2)
// intersect: s1 < e2 && s2 < e1.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// TimeSlot is one offerable appointment start computed by the availability
// engine. Start/End are in the business timezone for presentation.
type TimeSlot struct {
	StaffID string    `json:"staff_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// CustomerProfile carries a returning customer's remembered details, attached
// to customer sessions to personalize prompts.
type CustomerProfile struct {
	PhoneNumber    string     `json:"phone_number"`
	BusinessID     string     `json:"business_id"`
	Name           string     `json:"name,omitempty"`
	PreferredStaff string     `json:"preferred_staff,omitempty"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
}

// NeedsReverification reports whether the customer's identity is stale enough
// to re-ask for their name (unverified for more than 30 days).
func (p *CustomerProfile) NeedsReverification(now time.Time) bool {
	return p.VerifiedAt == nil || now.Sub(*p.VerifiedAt) > 30*24*time.Hour
}
