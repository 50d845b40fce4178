// Package store provides storage backends for Turnero.
//
// This file implements the SQLite-backed store. Booking commits run inside a
// BEGIN IMMEDIATE transaction so the conflict check and the insert are
// serialized against concurrent writers.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/turnero/turnero/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on top of a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if dir := filepath.Dir(dsn); dir != "." && dir != ":memory:" {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", sqliteConnString(dsn))
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Serialized access: SQLite allows one writer; keep a single connection
	// so BEGIN IMMEDIATE transactions do not contend with the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// sqliteConnString appends _txlock=immediate to the DSN unless the operator
// already set one, so every transaction opens as BEGIN IMMEDIATE and takes
// the write lock before the conflict check reads.
func sqliteConnString(dsn string) string {
	if strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_txlock=immediate"
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// --- Staff ---

func (s *SQLiteStore) GetStaffByPhone(phone string) ([]models.StaffRecord, error) {
	rows, err := s.db.Query(`SELECT id, business_id, phone_number, name, permission_level, first_message_at, is_active
		FROM staff WHERE phone_number = ? AND is_active = 1`, phone)
	if err != nil {
		slog.Error("SQLiteStore GetStaffByPhone query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query staff by phone: %w", err)
	}
	defer rows.Close()

	var records []models.StaffRecord
	for rows.Next() {
		r, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staff rows: %w", err)
	}
	slog.Debug("SQLiteStore GetStaffByPhone succeeded", "phone", phone, "count", len(records))
	return records, nil
}

func (s *SQLiteStore) GetStaffByPhoneAndBusiness(phone, businessID string) (*models.StaffRecord, error) {
	row := s.db.QueryRow(`SELECT id, business_id, phone_number, name, permission_level, first_message_at, is_active
		FROM staff WHERE phone_number = ? AND business_id = ? AND is_active = 1`, phone, businessID)
	r, err := scanStaff(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetStaffByPhoneAndBusiness failed", "error", err, "phone", phone, "businessID", businessID)
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	return &r, nil
}

// MarkFirstMessageSeen performs a compare-and-set on first_message_at.
func (s *SQLiteStore) MarkFirstMessageSeen(staffID string, at time.Time) (bool, error) {
	res, err := s.db.Exec(`UPDATE staff SET first_message_at = ? WHERE id = ? AND first_message_at IS NULL`, at.UTC(), staffID)
	if err != nil {
		slog.Error("SQLiteStore MarkFirstMessageSeen failed", "error", err, "staffID", staffID)
		return false, fmt.Errorf("failed to mark first message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	slog.Debug("SQLiteStore MarkFirstMessageSeen", "staffID", staffID, "set", n > 0)
	return n > 0, nil
}

func (s *SQLiteStore) UpdateStaffName(staffID, name string) error {
	_, err := s.db.Exec(`UPDATE staff SET name = ? WHERE id = ?`, name, staffID)
	if err != nil {
		slog.Error("SQLiteStore UpdateStaffName failed", "error", err, "staffID", staffID)
		return fmt.Errorf("failed to update staff name: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStaffPermission(staffID string, level models.PermissionLevel) error {
	_, err := s.db.Exec(`UPDATE staff SET permission_level = ? WHERE id = ?`, level, staffID)
	if err != nil {
		slog.Error("SQLiteStore UpdateStaffPermission failed", "error", err, "staffID", staffID)
		return fmt.Errorf("failed to update staff permission: %w", err)
	}
	slog.Info("SQLiteStore UpdateStaffPermission succeeded", "staffID", staffID, "level", level)
	return nil
}

func (s *SQLiteStore) ListStaff(businessID string) ([]models.StaffRecord, error) {
	rows, err := s.db.Query(`SELECT id, business_id, phone_number, name, permission_level, first_message_at, is_active
		FROM staff WHERE business_id = ? ORDER BY name`, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staff list: %w", err)
	}
	defer rows.Close()

	var records []models.StaffRecord
	for rows.Next() {
		r, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Businesses ---

func (s *SQLiteStore) GetBusiness(id string) (*models.Business, error) {
	var b models.Business
	var number, owner sql.NullString
	err := s.db.QueryRow(`SELECT id, name, timezone, locale, whatsapp_number, owner_phone FROM businesses WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.Timezone, &b.Locale, &number, &owner)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query business: %w", err)
	}
	b.WhatsAppNumber = number.String
	b.OwnerPhone = owner.String
	return &b, nil
}

func (s *SQLiteStore) GetBusinessByNumber(number string) (*models.Business, error) {
	var b models.Business
	var num, owner sql.NullString
	err := s.db.QueryRow(`SELECT id, name, timezone, locale, whatsapp_number, owner_phone FROM businesses WHERE whatsapp_number = ?`, number).
		Scan(&b.ID, &b.Name, &b.Timezone, &b.Locale, &num, &owner)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query business by number: %w", err)
	}
	b.WhatsAppNumber = num.String
	b.OwnerPhone = owner.String
	return &b, nil
}

// CreateBusinessGraph creates the whole business graph in one transaction.
// Idempotent per business id: if the business already exists, nothing changes.
func (s *SQLiteStore) CreateBusinessGraph(b models.Business, services []models.Service, rules []models.AvailabilityRule, staff []models.StaffRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(`SELECT id FROM businesses WHERE id = ?`, b.ID).Scan(&existing)
	if err == nil {
		slog.Debug("SQLiteStore CreateBusinessGraph: business already exists", "businessID", b.ID)
		return tx.Commit()
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check business existence: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO businesses (id, name, timezone, locale, whatsapp_number, owner_phone)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Timezone, b.Locale, nilIfEmpty(b.WhatsAppNumber), nilIfEmpty(b.OwnerPhone)); err != nil {
		return fmt.Errorf("failed to insert business: %w", err)
	}
	for _, svc := range services {
		if _, err := tx.Exec(`INSERT INTO services (id, business_id, name, duration_min, price_cents)
			VALUES (?, ?, ?, ?, ?)`, svc.ID, b.ID, svc.Name, svc.DurationMin, svc.PriceCents); err != nil {
			return fmt.Errorf("failed to insert service %s: %w", svc.Name, err)
		}
	}
	for _, st := range staff {
		if _, err := tx.Exec(`INSERT INTO staff (id, business_id, phone_number, name, permission_level, is_active)
			VALUES (?, ?, ?, ?, ?, 1)`, st.ID, b.ID, st.PhoneNumber, nilIfEmpty(st.Name), st.PermissionLevel); err != nil {
			return fmt.Errorf("failed to insert staff %s: %w", st.PhoneNumber, err)
		}
	}
	for _, r := range rules {
		if _, err := tx.Exec(`INSERT INTO availability_rules (id, staff_id, type, day_of_week, specific_date, start_time, end_time, is_available)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.StaffID, r.Type, r.DayOfWeek, nilIfEmpty(r.SpecificDate), r.StartTime, r.EndTime, r.IsAvailable); err != nil {
			return fmt.Errorf("failed to insert availability rule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit business graph: %w", err)
	}
	slog.Info("SQLiteStore CreateBusinessGraph succeeded", "businessID", b.ID, "services", len(services), "staff", len(staff))
	return nil
}

func (s *SQLiteStore) ListServices(businessID string) ([]models.Service, error) {
	rows, err := s.db.Query(`SELECT id, business_id, name, duration_min, price_cents FROM services WHERE business_id = ? ORDER BY name`, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMin, &svc.PriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan service row: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s *SQLiteStore) GetService(id string) (*models.Service, error) {
	var svc models.Service
	err := s.db.QueryRow(`SELECT id, business_id, name, duration_min, price_cents FROM services WHERE id = ?`, id).
		Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMin, &svc.PriceCents)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query service: %w", err)
	}
	return &svc, nil
}

// --- Sessions ---

const sessionColumns = `id, business_id, phone_number, flow_type, state, payload, resumable, created_at, updated_at, last_activity_at`

func (s *SQLiteStore) GetSession(businessID, phone string, flowType models.FlowType) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE business_id = ? AND phone_number = ? AND flow_type = ?`,
		businessID, phone, flowType)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "phone", phone, "flowType", flowType)
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	payloadJSON, err := marshalPayload(sess.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (business_id, phone_number, flow_type) DO UPDATE SET
			state = excluded.state, payload = excluded.payload, resumable = excluded.resumable,
			updated_at = excluded.updated_at, last_activity_at = excluded.last_activity_at`,
		sess.ID, sess.BusinessID, sess.PhoneNumber, sess.FlowType, sess.State,
		nilIfEmpty(payloadJSON), sess.Resumable, sess.CreatedAt, sess.UpdatedAt, sess.LastActivityAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", sess.ID, "flowType", sess.FlowType)
		return fmt.Errorf("failed to save session: %w", err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", sess.ID, "state", sess.State)
	return nil
}

func (s *SQLiteStore) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListStaleSessions(olderThan time.Time) ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE last_activity_at < ?`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *SQLiteStore) ListSessionsByPhone(phone string) ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE phone_number = ? ORDER BY updated_at DESC`, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions by phone: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// --- Availability rules ---

func (s *SQLiteStore) ReplaceAvailabilityRules(staffID string, rules []models.AvailabilityRule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM availability_rules WHERE staff_id = ?`, staffID); err != nil {
		return fmt.Errorf("failed to clear availability rules: %w", err)
	}
	for _, r := range rules {
		if _, err := tx.Exec(`INSERT INTO availability_rules (id, staff_id, type, day_of_week, specific_date, start_time, end_time, is_available)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, staffID, r.Type, r.DayOfWeek, nilIfEmpty(r.SpecificDate), r.StartTime, r.EndTime, r.IsAvailable); err != nil {
			return fmt.Errorf("failed to insert availability rule: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit availability rules: %w", err)
	}
	slog.Info("SQLiteStore ReplaceAvailabilityRules succeeded", "staffID", staffID, "count", len(rules))
	return nil
}

func (s *SQLiteStore) ListAvailabilityRules(staffID string) ([]models.AvailabilityRule, error) {
	rows, err := s.db.Query(`SELECT id, staff_id, type, day_of_week, specific_date, start_time, end_time, is_available
		FROM availability_rules WHERE staff_id = ?`, staffID)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AvailabilityRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// --- Appointments ---

const appointmentColumns = `id, business_id, location_id, service_id, staff_id, spot_id, customer_phone, customer_name, scheduled_start, scheduled_end, status, created_at, updated_at`

func (s *SQLiteStore) ListBlockingAppointments(staffID, spotID string, from, to time.Time) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE status IN ('pending', 'confirmed') AND scheduled_start < ? AND ? < scheduled_end
		AND (staff_id = ? OR spot_id = ?) ORDER BY scheduled_start`
	rows, err := s.db.Query(query, to.UTC(), from.UTC(), staffID, spotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocking appointments: %w", err)
	}
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (s *SQLiteStore) GetAppointment(id string) (*models.Appointment, error) {
	row := s.db.QueryRow(`SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query appointment: %w", err)
	}
	return &a, nil
}

func (s *SQLiteStore) ListAppointmentsByCustomer(businessID, phone string) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT `+appointmentColumns+` FROM appointments
		WHERE business_id = ? AND customer_phone = ? ORDER BY scheduled_start DESC`, businessID, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer appointments: %w", err)
	}
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// findConflictTx runs the overlap test for staff and spot inside a transaction.
// excludeID skips one appointment (used when rescheduling).
func findConflictTx(tx *sql.Tx, staffID, spotID string, start, end time.Time, excludeID string) (*Conflict, error) {
	check := func(column, value, resource string) (*Conflict, error) {
		if value == "" {
			return nil, nil
		}
		var cStart, cEnd time.Time
		err := tx.QueryRow(`SELECT scheduled_start, scheduled_end FROM appointments
			WHERE `+column+` = ? AND status IN ('pending', 'confirmed')
			AND scheduled_start < ? AND ? < scheduled_end AND id != ?
			ORDER BY scheduled_start LIMIT 1`,
			value, end.UTC(), start.UTC(), excludeID).Scan(&cStart, &cEnd)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("conflict check failed: %w", err)
		}
		return &Conflict{Resource: resource, Start: cStart, End: cEnd}, nil
	}

	if c, err := check("staff_id", staffID, "staff"); c != nil || err != nil {
		return c, err
	}
	return check("spot_id", spotID, "spot")
}

// CreateAppointmentIfFree checks staff and spot conflicts and inserts the
// appointment atomically. The store runs on a single connection
// (SetMaxOpenConns(1)), so the check-then-insert transaction cannot
// interleave with another writer; two racing bookings serialize and exactly
// one wins.
func (s *SQLiteStore) CreateAppointmentIfFree(appt models.Appointment) (*Conflict, error) {
	if err := appt.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin booking transaction: %w", err)
	}
	defer tx.Rollback()

	conflict, err := findConflictTx(tx, appt.StaffID, appt.SpotID, appt.ScheduledStart, appt.ScheduledEnd, appt.ID)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		slog.Info("SQLiteStore CreateAppointmentIfFree conflict", "appointmentID", appt.ID, "resource", conflict.Resource)
		return conflict, nil
	}

	_, err = tx.Exec(`INSERT INTO appointments (`+appointmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		appt.ID, appt.BusinessID, nilIfEmpty(appt.LocationID), nilIfEmpty(appt.ServiceID),
		nilIfEmpty(appt.StaffID), nilIfEmpty(appt.SpotID), nilIfEmpty(appt.CustomerPhone), nilIfEmpty(appt.CustomerName),
		appt.ScheduledStart.UTC(), appt.ScheduledEnd.UTC(), appt.Status, appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking: %w", err)
	}
	slog.Info("SQLiteStore CreateAppointmentIfFree succeeded", "appointmentID", appt.ID, "staffID", appt.StaffID, "start", appt.ScheduledStart)
	return nil, nil
}

// RescheduleAppointmentIfFree moves an appointment under the same
// transactional conflict check, ignoring its own current interval.
func (s *SQLiteStore) RescheduleAppointmentIfFree(id string, start, end time.Time) (*Conflict, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin reschedule transaction: %w", err)
	}
	defer tx.Rollback()

	var staffID, spotID sql.NullString
	err = tx.QueryRow(`SELECT staff_id, spot_id FROM appointments WHERE id = ?`, id).Scan(&staffID, &spotID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("appointment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load appointment: %w", err)
	}

	conflict, err := findConflictTx(tx, staffID.String, spotID.String, start, end, id)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return conflict, nil
	}

	if _, err := tx.Exec(`UPDATE appointments SET scheduled_start = ?, scheduled_end = ?, updated_at = ? WHERE id = ?`,
		start.UTC(), end.UTC(), time.Now().UTC(), id); err != nil {
		return nil, fmt.Errorf("failed to update appointment time: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reschedule: %w", err)
	}
	slog.Info("SQLiteStore RescheduleAppointmentIfFree succeeded", "appointmentID", id, "start", start)
	return nil, nil
}

// UpdateAppointmentIfFree rewrites an appointment's details under the same
// conflict check as creation, excluding the appointment's own interval.
func (s *SQLiteStore) UpdateAppointmentIfFree(appt models.Appointment) (*Conflict, error) {
	if err := appt.Validate(); err != nil {
		return nil, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin update transaction: %w", err)
	}
	defer tx.Rollback()

	conflict, err := findConflictTx(tx, appt.StaffID, appt.SpotID, appt.ScheduledStart, appt.ScheduledEnd, appt.ID)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return conflict, nil
	}

	if _, err := tx.Exec(`UPDATE appointments SET service_id = ?, staff_id = ?, spot_id = ?,
		scheduled_start = ?, scheduled_end = ?, customer_name = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		nilIfEmpty(appt.ServiceID), nilIfEmpty(appt.StaffID), nilIfEmpty(appt.SpotID),
		appt.ScheduledStart.UTC(), appt.ScheduledEnd.UTC(), nilIfEmpty(appt.CustomerName),
		appt.Status, time.Now().UTC(), appt.ID); err != nil {
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit appointment update: %w", err)
	}
	slog.Info("SQLiteStore UpdateAppointmentIfFree succeeded", "appointmentID", appt.ID)
	return nil, nil
}

func (s *SQLiteStore) UpdateAppointmentStatus(id string, status models.AppointmentStatus) error {
	_, err := s.db.Exec(`UPDATE appointments SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateAppointmentStatus failed", "error", err, "appointmentID", id)
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	slog.Info("SQLiteStore UpdateAppointmentStatus succeeded", "appointmentID", id, "status", status)
	return nil
}

// --- Customer profiles ---

func (s *SQLiteStore) GetCustomerProfile(businessID, phone string) (*models.CustomerProfile, error) {
	var p models.CustomerProfile
	var name, preferred sql.NullString
	var verifiedAt sql.NullTime
	err := s.db.QueryRow(`SELECT business_id, phone_number, name, preferred_staff, verified_at
		FROM customer_profiles WHERE business_id = ? AND phone_number = ?`, businessID, phone).
		Scan(&p.BusinessID, &p.PhoneNumber, &name, &preferred, &verifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer profile: %w", err)
	}
	p.Name = name.String
	p.PreferredStaff = preferred.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		p.VerifiedAt = &t
	}
	return &p, nil
}

func (s *SQLiteStore) SaveCustomerProfile(p models.CustomerProfile) error {
	var verifiedAt interface{}
	if p.VerifiedAt != nil {
		verifiedAt = p.VerifiedAt.UTC()
	}
	_, err := s.db.Exec(`INSERT INTO customer_profiles (business_id, phone_number, name, preferred_staff, verified_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (business_id, phone_number) DO UPDATE SET
			name = excluded.name, preferred_staff = excluded.preferred_staff, verified_at = excluded.verified_at`,
		p.BusinessID, p.PhoneNumber, nilIfEmpty(p.Name), nilIfEmpty(p.PreferredStaff), verifiedAt)
	if err != nil {
		return fmt.Errorf("failed to save customer profile: %w", err)
	}
	return nil
}

// --- Tool call trace ---

func (s *SQLiteStore) AddToolCallRecord(rec models.ToolCallRecord) error {
	_, err := s.db.Exec(`INSERT INTO tool_calls (id, session_id, phone_number, tool_name, arguments, result, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, nilIfEmpty(rec.SessionID), rec.PhoneNumber, rec.ToolName, rec.Arguments, rec.Result, rec.Success, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tool call record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListToolCallRecords(phone string, limit int) ([]models.ToolCallRecord, error) {
	rows, err := s.db.Query(`SELECT id, session_id, phone_number, tool_name, arguments, result, success, created_at
		FROM tool_calls WHERE phone_number = ? ORDER BY created_at DESC LIMIT ?`, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool call records: %w", err)
	}
	defer rows.Close()

	var records []models.ToolCallRecord
	for rows.Next() {
		var rec models.ToolCallRecord
		var sessionID sql.NullString
		if err := rows.Scan(&rec.ID, &sessionID, &rec.PhoneNumber, &rec.ToolName, &rec.Arguments, &rec.Result, &rec.Success, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool call row: %w", err)
		}
		rec.SessionID = sessionID.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
