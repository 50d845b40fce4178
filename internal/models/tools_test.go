package models

import (
	"encoding/json"
	"testing"
	"time"
)

func call(name ToolName, args string) FunctionCall {
	return FunctionCall{Name: string(name), Arguments: json.RawMessage(args)}
}

func TestParseSaveBusinessInfoParams(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"valid", `{"name":"Peluquería Sur","timezone":"America/Argentina/Buenos_Aires"}`, false},
		{"missing name", `{"timezone":"UTC"}`, true},
		{"missing timezone", `{"name":"X"}`, true},
		{"bad timezone", `{"name":"X","timezone":"Mars/Olympus"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := call(ToolSaveBusinessInfo, tt.args)
			_, err := fc.ParseSaveBusinessInfoParams()
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRejectsWrongFunctionName(t *testing.T) {
	fc := call(ToolSaveServices, `{"name":"X","timezone":"UTC"}`)
	if _, err := fc.ParseSaveBusinessInfoParams(); err == nil {
		t.Error("parse accepted mismatched function name")
	}
}

func TestHoursInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      HoursInput
		wantErr bool
	}{
		{"valid", HoursInput{DayOfWeek: 1, StartTime: "09:00", EndTime: "18:00"}, false},
		{"bad day", HoursInput{DayOfWeek: 7, StartTime: "09:00", EndTime: "18:00"}, true},
		{"bad time format", HoursInput{DayOfWeek: 1, StartTime: "9am", EndTime: "18:00"}, true},
		{"end before start", HoursInput{DayOfWeek: 1, StartTime: "18:00", EndTime: "09:00"}, true},
		{"zero length", HoursInput{DayOfWeek: 1, StartTime: "09:00", EndTime: "09:00"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.in.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQueryAvailabilityParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       QueryAvailabilityParams
		wantErr bool
	}{
		{"valid", QueryAvailabilityParams{ServiceID: "svc-1", FromDate: "2026-09-07", Days: 7}, false},
		{"missing service", QueryAvailabilityParams{FromDate: "2026-09-07"}, true},
		{"bad date", QueryAvailabilityParams{ServiceID: "svc-1", FromDate: "sept 7"}, true},
		{"beyond horizon", QueryAvailabilityParams{ServiceID: "svc-1", FromDate: "2026-09-07", Days: MaxAvailabilityDays + 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIdentifyBookingParamsValidate(t *testing.T) {
	p := IdentifyBookingParams{AppointmentID: "a1", Intent: IntentModify}
	if err := p.Validate(); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
	p.Intent = IntentBooking
	if err := p.Validate(); err == nil {
		t.Error("booking intent accepted for identify_booking")
	}
	p = IdentifyBookingParams{Intent: IntentCancel}
	if err := p.Validate(); err == nil {
		t.Error("missing appointment id accepted")
	}
}

func TestManagementActionParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       ManagementActionParams
		wantErr bool
	}{
		{"view schedule", ManagementActionParams{Action: ActionViewSchedule}, false},
		{"unknown action", ManagementActionParams{Action: "drop_tables"}, true},
		{"cancel without id", ManagementActionParams{Action: ActionCancelAppointment}, true},
		{"permission change without level", ManagementActionParams{Action: ActionUpdateStaffPermission, StaffID: "st-1"}, true},
		{"permission change valid", ManagementActionParams{Action: ActionUpdateStaffPermission, StaffID: "st-1", PermissionLevel: PermissionAdmin}, false},
		{"availability without rules", ManagementActionParams{Action: ActionUpdateAvailability}, true},
		{"bad date", ManagementActionParams{Action: ActionListAppointments, Date: "tomorrow"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSelectSlotParamsStartTime(t *testing.T) {
	p := SelectSlotParams{StaffID: "st-1", Start: "2026-09-07T10:00:00Z"}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := p.StartTime()
	if got.Hour() != 10 || got.Minute() != 0 {
		t.Errorf("StartTime = %v", got)
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	base := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	end := base.Add(time.Hour)
	if Overlaps(base, end, end, end.Add(time.Hour)) {
		t.Error("touching intervals reported overlapping")
	}
	if !Overlaps(base, end, base.Add(30*time.Minute), end.Add(30*time.Minute)) {
		t.Error("intersecting intervals reported disjoint")
	}
}
