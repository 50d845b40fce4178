// Package store provides storage backends for Turnero.
//
// This file implements the PostgreSQL-backed store. The booking commit path
// takes per-resource advisory locks so the conflict check and insert are
// serialized across all application instances.
package store

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	_ "embed"

	"github.com/turnero/turnero/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on top of a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}

// advisoryKey hashes a resource id into a bigint advisory lock key.
func advisoryKey(resource string) int64 {
	h := fnv.New64a()
	h.Write([]byte(resource))
	return int64(h.Sum64())
}

// --- Staff ---

func (s *PostgresStore) GetStaffByPhone(phone string) ([]models.StaffRecord, error) {
	rows, err := s.db.Query(`SELECT id, business_id, phone_number, name, permission_level, first_message_at, is_active
		FROM staff WHERE phone_number = $1 AND is_active = TRUE`, phone)
	if err != nil {
		slog.Error("PostgresStore GetStaffByPhone query failed", "error", err, "phone", phone)
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
	return records, rows.Err()
}

func (s *PostgresStore) GetStaffByPhoneAndBusiness(phone, businessID string) (*models.StaffRecord, error) {
	row := s.db.QueryRow(`SELECT id, business_id, phone_number, name, permission_level, first_message_at, is_active
		FROM staff WHERE phone_number = $1 AND business_id = $2 AND is_active = TRUE`, phone, businessID)
	r, err := scanStaff(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	return &r, nil
}

// MarkFirstMessageSeen performs a compare-and-set on first_message_at.
func (s *PostgresStore) MarkFirstMessageSeen(staffID string, at time.Time) (bool, error) {
	res, err := s.db.Exec(`UPDATE staff SET first_message_at = $1 WHERE id = $2 AND first_message_at IS NULL`, at.UTC(), staffID)
	if err != nil {
		return false, fmt.Errorf("failed to mark first message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) UpdateStaffName(staffID, name string) error {
	_, err := s.db.Exec(`UPDATE staff SET name = $1 WHERE id = $2`, name, staffID)
	if err != nil {
		return fmt.Errorf("failed to update staff name: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStaffPermission(staffID string, level models.PermissionLevel) error {
	_, err := s.db.Exec(`UPDATE staff SET permission_level = $1 WHERE id = $2`, level, staffID)
	if err != nil {
		return fmt.Errorf("failed to update staff permission: %w", err)
	}
	slog.Info("PostgresStore UpdateStaffPermission succeeded", "staffID", staffID, "level", level)
	return nil
}

func (s *PostgresStore) ListStaff(businessID string) ([]models.StaffRecord, error) {
	rows, err := s.db.Query(`SELECT id, business_id, phone_number, name, permission_level, first_message_at, is_active
		FROM staff WHERE business_id = $1 ORDER BY name`, businessID)
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

func (s *PostgresStore) GetBusiness(id string) (*models.Business, error) {
	var b models.Business
	var number, owner sql.NullString
	err := s.db.QueryRow(`SELECT id, name, timezone, locale, whatsapp_number, owner_phone FROM businesses WHERE id = $1`, id).
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

func (s *PostgresStore) GetBusinessByNumber(number string) (*models.Business, error) {
	var b models.Business
	var num, owner sql.NullString
	err := s.db.QueryRow(`SELECT id, name, timezone, locale, whatsapp_number, owner_phone FROM businesses WHERE whatsapp_number = $1`, number).
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

func (s *PostgresStore) CreateBusinessGraph(b models.Business, services []models.Service, rules []models.AvailabilityRule, staff []models.StaffRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(`SELECT id FROM businesses WHERE id = $1`, b.ID).Scan(&existing)
	if err == nil {
		return tx.Commit()
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check business existence: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO businesses (id, name, timezone, locale, whatsapp_number, owner_phone)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.Name, b.Timezone, b.Locale, nilIfEmpty(b.WhatsAppNumber), nilIfEmpty(b.OwnerPhone)); err != nil {
		return fmt.Errorf("failed to insert business: %w", err)
	}
	for _, svc := range services {
		if _, err := tx.Exec(`INSERT INTO services (id, business_id, name, duration_min, price_cents)
			VALUES ($1, $2, $3, $4, $5)`, svc.ID, b.ID, svc.Name, svc.DurationMin, svc.PriceCents); err != nil {
			return fmt.Errorf("failed to insert service %s: %w", svc.Name, err)
		}
	}
	for _, st := range staff {
		if _, err := tx.Exec(`INSERT INTO staff (id, business_id, phone_number, name, permission_level, is_active)
			VALUES ($1, $2, $3, $4, $5, TRUE)`, st.ID, b.ID, st.PhoneNumber, nilIfEmpty(st.Name), st.PermissionLevel); err != nil {
			return fmt.Errorf("failed to insert staff %s: %w", st.PhoneNumber, err)
		}
	}
	for _, r := range rules {
		if _, err := tx.Exec(`INSERT INTO availability_rules (id, staff_id, type, day_of_week, specific_date, start_time, end_time, is_available)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, r.StaffID, r.Type, r.DayOfWeek, nilIfEmpty(r.SpecificDate), r.StartTime, r.EndTime, r.IsAvailable); err != nil {
			return fmt.Errorf("failed to insert availability rule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit business graph: %w", err)
	}
	slog.Info("PostgresStore CreateBusinessGraph succeeded", "businessID", b.ID, "services", len(services), "staff", len(staff))
	return nil
}

func (s *PostgresStore) ListServices(businessID string) ([]models.Service, error) {
	rows, err := s.db.Query(`SELECT id, business_id, name, duration_min, price_cents FROM services WHERE business_id = $1 ORDER BY name`, businessID)
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

func (s *PostgresStore) GetService(id string) (*models.Service, error) {
	var svc models.Service
	err := s.db.QueryRow(`SELECT id, business_id, name, duration_min, price_cents FROM services WHERE id = $1`, id).
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

func (s *PostgresStore) GetSession(businessID, phone string, flowType models.FlowType) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE business_id = $1 AND phone_number = $2 AND flow_type = $3`,
		businessID, phone, flowType)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	payloadJSON, err := marshalPayload(sess.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (business_id, phone_number, flow_type) DO UPDATE SET
			state = EXCLUDED.state, payload = EXCLUDED.payload, resumable = EXCLUDED.resumable,
			updated_at = EXCLUDED.updated_at, last_activity_at = EXCLUDED.last_activity_at`,
		sess.ID, sess.BusinessID, sess.PhoneNumber, sess.FlowType, sess.State,
		nilIfEmpty(payloadJSON), sess.Resumable, sess.CreatedAt, sess.UpdatedAt, sess.LastActivityAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStaleSessions(olderThan time.Time) ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE last_activity_at < $1`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *PostgresStore) ListSessionsByPhone(phone string) ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE phone_number = $1 ORDER BY updated_at DESC`, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions by phone: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// --- Availability rules ---

func (s *PostgresStore) ReplaceAvailabilityRules(staffID string, rules []models.AvailabilityRule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM availability_rules WHERE staff_id = $1`, staffID); err != nil {
		return fmt.Errorf("failed to clear availability rules: %w", err)
	}
	for _, r := range rules {
		if _, err := tx.Exec(`INSERT INTO availability_rules (id, staff_id, type, day_of_week, specific_date, start_time, end_time, is_available)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, staffID, r.Type, r.DayOfWeek, nilIfEmpty(r.SpecificDate), r.StartTime, r.EndTime, r.IsAvailable); err != nil {
			return fmt.Errorf("failed to insert availability rule: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListAvailabilityRules(staffID string) ([]models.AvailabilityRule, error) {
	rows, err := s.db.Query(`SELECT id, staff_id, type, day_of_week, specific_date, start_time, end_time, is_available
		FROM availability_rules WHERE staff_id = $1`, staffID)
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

func (s *PostgresStore) ListBlockingAppointments(staffID, spotID string, from, to time.Time) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT `+appointmentColumns+` FROM appointments
		WHERE status IN ('pending', 'confirmed') AND scheduled_start < $1 AND $2 < scheduled_end
		AND (staff_id = $3 OR spot_id = $4) ORDER BY scheduled_start`, to.UTC(), from.UTC(), staffID, spotID)
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

func (s *PostgresStore) GetAppointment(id string) (*models.Appointment, error) {
	row := s.db.QueryRow(`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query appointment: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) ListAppointmentsByCustomer(businessID, phone string) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT `+appointmentColumns+` FROM appointments
		WHERE business_id = $1 AND customer_phone = $2 ORDER BY scheduled_start DESC`, businessID, phone)
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

// lockResourcesTx takes per-resource advisory locks for the booking commit.
// Locks are acquired in a fixed order (staff, then spot) to avoid deadlock.
func lockResourcesTx(tx *sql.Tx, staffID, spotID string) error {
	for _, resource := range []string{staffID, spotID} {
		if resource == "" {
			continue
		}
		if _, err := tx.Exec(`SELECT pg_advisory_xact_lock($1)`, advisoryKey(resource)); err != nil {
			return fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
	}
	return nil
}

// findConflictPgTx runs the overlap test for staff and spot inside a transaction.
func findConflictPgTx(tx *sql.Tx, staffID, spotID string, start, end time.Time, excludeID string) (*Conflict, error) {
	check := func(column, value, resource string) (*Conflict, error) {
		if value == "" {
			return nil, nil
		}
		var cStart, cEnd time.Time
		err := tx.QueryRow(`SELECT scheduled_start, scheduled_end FROM appointments
			WHERE `+column+` = $1 AND status IN ('pending', 'confirmed')
			AND scheduled_start < $2 AND $3 < scheduled_end AND id != $4
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
// appointment under per-resource advisory locks; exactly one of two racing
// bookings for the same resource wins.
func (s *PostgresStore) CreateAppointmentIfFree(appt models.Appointment) (*Conflict, error) {
	if err := appt.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin booking transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockResourcesTx(tx, appt.StaffID, appt.SpotID); err != nil {
		return nil, err
	}

	conflict, err := findConflictPgTx(tx, appt.StaffID, appt.SpotID, appt.ScheduledStart, appt.ScheduledEnd, appt.ID)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		slog.Info("PostgresStore CreateAppointmentIfFree conflict", "appointmentID", appt.ID, "resource", conflict.Resource)
		return conflict, nil
	}

	_, err = tx.Exec(`INSERT INTO appointments (`+appointmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		appt.ID, appt.BusinessID, nilIfEmpty(appt.LocationID), nilIfEmpty(appt.ServiceID),
		nilIfEmpty(appt.StaffID), nilIfEmpty(appt.SpotID), nilIfEmpty(appt.CustomerPhone), nilIfEmpty(appt.CustomerName),
		appt.ScheduledStart.UTC(), appt.ScheduledEnd.UTC(), appt.Status, appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking: %w", err)
	}
	slog.Info("PostgresStore CreateAppointmentIfFree succeeded", "appointmentID", appt.ID, "staffID", appt.StaffID)
	return nil, nil
}

// RescheduleAppointmentIfFree moves an appointment under the same advisory
// locks and conflict check, ignoring its own current interval.
func (s *PostgresStore) RescheduleAppointmentIfFree(id string, start, end time.Time) (*Conflict, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin reschedule transaction: %w", err)
	}
	defer tx.Rollback()

	var staffID, spotID sql.NullString
	err = tx.QueryRow(`SELECT staff_id, spot_id FROM appointments WHERE id = $1`, id).Scan(&staffID, &spotID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("appointment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load appointment: %w", err)
	}

	if err := lockResourcesTx(tx, staffID.String, spotID.String); err != nil {
		return nil, err
	}

	conflict, err := findConflictPgTx(tx, staffID.String, spotID.String, start, end, id)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return conflict, nil
	}

	if _, err := tx.Exec(`UPDATE appointments SET scheduled_start = $1, scheduled_end = $2, updated_at = $3 WHERE id = $4`,
		start.UTC(), end.UTC(), time.Now().UTC(), id); err != nil {
		return nil, fmt.Errorf("failed to update appointment time: %w", err)
	}
	return conflict, tx.Commit()
}

// UpdateAppointmentIfFree rewrites an appointment's details under advisory
// locks and the same conflict check as creation, excluding the appointment's
// own interval.
func (s *PostgresStore) UpdateAppointmentIfFree(appt models.Appointment) (*Conflict, error) {
	if err := appt.Validate(); err != nil {
		return nil, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin update transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockResourcesTx(tx, appt.StaffID, appt.SpotID); err != nil {
		return nil, err
	}
	conflict, err := findConflictPgTx(tx, appt.StaffID, appt.SpotID, appt.ScheduledStart, appt.ScheduledEnd, appt.ID)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return conflict, nil
	}

	if _, err := tx.Exec(`UPDATE appointments SET service_id = $1, staff_id = $2, spot_id = $3,
		scheduled_start = $4, scheduled_end = $5, customer_name = $6, status = $7, updated_at = $8
		WHERE id = $9`,
		nilIfEmpty(appt.ServiceID), nilIfEmpty(appt.StaffID), nilIfEmpty(appt.SpotID),
		appt.ScheduledStart.UTC(), appt.ScheduledEnd.UTC(), nilIfEmpty(appt.CustomerName),
		appt.Status, time.Now().UTC(), appt.ID); err != nil {
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit appointment update: %w", err)
	}
	slog.Info("PostgresStore UpdateAppointmentIfFree succeeded", "appointmentID", appt.ID)
	return nil, nil
}

func (s *PostgresStore) UpdateAppointmentStatus(id string, status models.AppointmentStatus) error {
	_, err := s.db.Exec(`UPDATE appointments SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return nil
}

// --- Customer profiles ---

func (s *PostgresStore) GetCustomerProfile(businessID, phone string) (*models.CustomerProfile, error) {
	var p models.CustomerProfile
	var name, preferred sql.NullString
	var verifiedAt sql.NullTime
	err := s.db.QueryRow(`SELECT business_id, phone_number, name, preferred_staff, verified_at
		FROM customer_profiles WHERE business_id = $1 AND phone_number = $2`, businessID, phone).
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

func (s *PostgresStore) SaveCustomerProfile(p models.CustomerProfile) error {
	var verifiedAt interface{}
	if p.VerifiedAt != nil {
		verifiedAt = p.VerifiedAt.UTC()
	}
	_, err := s.db.Exec(`INSERT INTO customer_profiles (business_id, phone_number, name, preferred_staff, verified_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, phone_number) DO UPDATE SET
			name = EXCLUDED.name, preferred_staff = EXCLUDED.preferred_staff, verified_at = EXCLUDED.verified_at`,
		p.BusinessID, p.PhoneNumber, nilIfEmpty(p.Name), nilIfEmpty(p.PreferredStaff), verifiedAt)
	if err != nil {
		return fmt.Errorf("failed to save customer profile: %w", err)
	}
	return nil
}

// --- Tool call trace ---

func (s *PostgresStore) AddToolCallRecord(rec models.ToolCallRecord) error {
	_, err := s.db.Exec(`INSERT INTO tool_calls (id, session_id, phone_number, tool_name, arguments, result, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, nilIfEmpty(rec.SessionID), rec.PhoneNumber, rec.ToolName, rec.Arguments, rec.Result, rec.Success, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tool call record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListToolCallRecords(phone string, limit int) ([]models.ToolCallRecord, error) {
	rows, err := s.db.Query(`SELECT id, session_id, phone_number, tool_name, arguments, result, success, created_at
		FROM tool_calls WHERE phone_number = $1 ORDER BY created_at DESC LIMIT $2`, phone, limit)
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
