// Package store provides storage backends for Turnero.
//
// It defines the Store interface over businesses, staff, sessions,
// availability rules and appointments, with SQLite and PostgreSQL
// implementations. The relational store is the single source of truth for
// conflict decisions; the booking commit path runs inside a transaction.
package store

import (
	"strings"
	"time"

	"github.com/turnero/turnero/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL-style DSNs and "sqlite"
// otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Conflict describes the time window of an appointment that blocked a
// booking. Customer identity is deliberately not included.
type Conflict struct {
	Resource string    `json:"resource"` // "staff" or "spot"
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Store is the persistence contract shared by all Turnero components.
type Store interface {
	// Staff and identity lookups.
	GetStaffByPhone(phone string) ([]models.StaffRecord, error)
	GetStaffByPhoneAndBusiness(phone, businessID string) (*models.StaffRecord, error)
	// MarkFirstMessageSeen sets first_message_at if and only if it is still
	// null. Returns true when this call performed the set (compare-and-set).
	MarkFirstMessageSeen(staffID string, at time.Time) (bool, error)
	UpdateStaffName(staffID, name string) error
	UpdateStaffPermission(staffID string, level models.PermissionLevel) error
	ListStaff(businessID string) ([]models.StaffRecord, error)

	// Businesses and services.
	GetBusiness(id string) (*models.Business, error)
	GetBusinessByNumber(number string) (*models.Business, error)
	// CreateBusinessGraph creates the business, its services, availability
	// rules and staff records in a single transaction. Idempotent per
	// business id: re-running with an existing id is a no-op.
	CreateBusinessGraph(b models.Business, services []models.Service, rules []models.AvailabilityRule, staff []models.StaffRecord) error
	ListServices(businessID string) ([]models.Service, error)
	GetService(id string) (*models.Service, error)

	// Sessions.
	GetSession(businessID, phone string, flowType models.FlowType) (*models.Session, error)
	SaveSession(s models.Session) error
	DeleteSession(id string) error
	ListStaleSessions(olderThan time.Time) ([]models.Session, error)
	ListSessionsByPhone(phone string) ([]models.Session, error)

	// Availability rules.
	ReplaceAvailabilityRules(staffID string, rules []models.AvailabilityRule) error
	ListAvailabilityRules(staffID string) ([]models.AvailabilityRule, error)

	// Appointments. ListBlockingAppointments returns pending/confirmed
	// appointments overlapping [from, to) for the given resource; staffID and
	// spotID are each optional but at least one must be set.
	ListBlockingAppointments(staffID, spotID string, from, to time.Time) ([]models.Appointment, error)
	GetAppointment(id string) (*models.Appointment, error)
	ListAppointmentsByCustomer(businessID, phone string) ([]models.Appointment, error)
	// CreateAppointmentIfFree checks staff and spot conflicts and inserts the
	// appointment in one transaction. A non-nil Conflict (with nil error)
	// means the booking lost to an existing blocking appointment.
	CreateAppointmentIfFree(appt models.Appointment) (*Conflict, error)
	// RescheduleAppointmentIfFree moves an appointment to a new interval
	// under the same transactional conflict check, ignoring the appointment
	// itself when testing overlaps.
	RescheduleAppointmentIfFree(id string, start, end time.Time) (*Conflict, error)
	// UpdateAppointmentIfFree rewrites an appointment's service, resources and
	// interval under the same transactional conflict check, ignoring the
	// appointment itself when testing overlaps.
	UpdateAppointmentIfFree(appt models.Appointment) (*Conflict, error)
	UpdateAppointmentStatus(id string, status models.AppointmentStatus) error

	// Customer profiles.
	GetCustomerProfile(businessID, phone string) (*models.CustomerProfile, error)
	SaveCustomerProfile(p models.CustomerProfile) error

	// Tool call trace for operator debugging.
	AddToolCallRecord(rec models.ToolCallRecord) error
	ListToolCallRecords(phone string, limit int) ([]models.ToolCallRecord, error)

	Close() error
}
