package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/turnero/turnero/internal/models"
)

// scanner abstracts sql.Row and sql.Rows for the shared scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanStaff scans a StaffRecord row.
func scanStaff(sc scanner) (models.StaffRecord, error) {
	var r models.StaffRecord
	var name sql.NullString
	var firstMessageAt sql.NullTime
	err := sc.Scan(&r.ID, &r.BusinessID, &r.PhoneNumber, &name, &r.PermissionLevel, &firstMessageAt, &r.IsActive)
	if err != nil {
		return r, err
	}
	r.Name = name.String
	if firstMessageAt.Valid {
		t := firstMessageAt.Time
		r.FirstMessageAt = &t
	}
	return r, nil
}

// scanSession scans a Session row, decoding the JSON payload column.
func scanSession(sc scanner) (models.Session, error) {
	var s models.Session
	var payloadJSON sql.NullString
	err := sc.Scan(&s.ID, &s.BusinessID, &s.PhoneNumber, &s.FlowType, &s.State,
		&payloadJSON, &s.Resumable, &s.CreatedAt, &s.UpdatedAt, &s.LastActivityAt)
	if err != nil {
		return s, err
	}
	if payloadJSON.Valid && payloadJSON.String != "" {
		s.Payload = make(map[models.DataKey]string)
		if err := json.Unmarshal([]byte(payloadJSON.String), &s.Payload); err != nil {
			return s, fmt.Errorf("decode session payload: %w", err)
		}
	}
	return s, nil
}

// marshalPayload encodes a session payload for storage.
func marshalPayload(payload map[models.DataKey]string) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode session payload: %w", err)
	}
	return string(b), nil
}

// scanAppointment scans an Appointment row.
func scanAppointment(sc scanner) (models.Appointment, error) {
	var a models.Appointment
	var locationID, serviceID, staffID, spotID, customerPhone, customerName sql.NullString
	err := sc.Scan(&a.ID, &a.BusinessID, &locationID, &serviceID, &staffID, &spotID,
		&customerPhone, &customerName, &a.ScheduledStart, &a.ScheduledEnd, &a.Status,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.LocationID = locationID.String
	a.ServiceID = serviceID.String
	a.StaffID = staffID.String
	a.SpotID = spotID.String
	a.CustomerPhone = customerPhone.String
	a.CustomerName = customerName.String
	return a, nil
}

// scanRule scans an AvailabilityRule row.
func scanRule(sc scanner) (models.AvailabilityRule, error) {
	var r models.AvailabilityRule
	var dayOfWeek sql.NullInt64
	var specificDate sql.NullString
	err := sc.Scan(&r.ID, &r.StaffID, &r.Type, &dayOfWeek, &specificDate, &r.StartTime, &r.EndTime, &r.IsAvailable)
	if err != nil {
		return r, err
	}
	r.DayOfWeek = int(dayOfWeek.Int64)
	r.SpecificDate = specificDate.String
	return r, nil
}
