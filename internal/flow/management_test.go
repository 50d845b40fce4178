package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/scheduling"
	"github.com/turnero/turnero/internal/testutil"
)

func managementSetup(level models.PermissionLevel) (*testutil.FakeStore, *ManagementFlow, *Context) {
	st := testutil.NewFakeStore()
	st.Businesses["biz-1"] = models.Business{ID: "biz-1", Name: "Peluquería Sur", Timezone: "UTC", Locale: "es"}
	st.Staff["st-1"] = models.StaffRecord{
		ID: "st-1", BusinessID: "biz-1", PhoneNumber: testStaffPhone,
		Name: "Lucía", PermissionLevel: level, IsActive: true,
	}
	st.Staff["st-2"] = models.StaffRecord{
		ID: "st-2", BusinessID: "biz-1", PhoneNumber: "+5491150009999",
		Name: "Marcos", PermissionLevel: models.PermissionStaff, IsActive: true,
	}
	f := NewManagementFlow(st, scheduling.NewEngine(st))

	staffRec := st.Staff["st-1"]
	business := st.Businesses["biz-1"]
	fc := newFlowContext(newTestSession(models.FlowTypeManagement, "biz-1", testStaffPhone),
		models.Identity{Kind: models.IdentityKnownStaff, BusinessID: "biz-1", Staff: &staffRec},
		&business, testStaffPhone)
	return st, f, fc
}

func TestCheckPermissionMatrix(t *testing.T) {
	tests := []struct {
		name    string
		level   models.PermissionLevel
		action  models.ManagementAction
		wantErr bool
	}{
		{"owner changes permissions", models.PermissionOwner, models.ActionUpdateStaffPermission, false},
		{"admin cannot change permissions", models.PermissionAdmin, models.ActionUpdateStaffPermission, true},
		{"admin cancels appointments", models.PermissionAdmin, models.ActionCancelAppointment, false},
		{"staff cannot cancel appointments", models.PermissionStaff, models.ActionCancelAppointment, true},
		{"staff views own schedule", models.PermissionStaff, models.ActionViewSchedule, false},
		{"viewer cannot update availability", models.PermissionViewer, models.ActionUpdateAvailability, true},
		{"viewer lists appointments", models.PermissionViewer, models.ActionListAppointments, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			staff := &models.StaffRecord{ID: "st-1", PermissionLevel: tt.level}
			err := checkPermission(staff, &models.ManagementActionParams{Action: tt.action, StaffID: "st-1", AppointmentID: "a1"})
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckPermissionStaffSelfOnly(t *testing.T) {
	staff := &models.StaffRecord{ID: "st-1", PermissionLevel: models.PermissionStaff}
	if err := checkPermission(staff, &models.ManagementActionParams{Action: models.ActionViewSchedule, StaffID: "st-2"}); err == nil {
		t.Error("staff level viewed another staff member's schedule")
	}
	if err := checkPermission(staff, &models.ManagementActionParams{Action: models.ActionListAppointments, StaffID: "st-2"}); err == nil {
		t.Error("staff level listed another staff member's appointments")
	}
	if err := checkPermission(staff, &models.ManagementActionParams{Action: models.ActionUpdateAvailability, StaffID: "st-1"}); err != nil {
		t.Errorf("staff level blocked from own schedule: %v", err)
	}
	if err := checkPermission(staff, &models.ManagementActionParams{Action: models.ActionListAppointments, StaffID: "st-1"}); err != nil {
		t.Errorf("staff level blocked from own appointments: %v", err)
	}
}

func TestManagementPermissionDenied(t *testing.T) {
	st, f, fc := managementSetup(models.PermissionViewer)
	st.Appointments["a1"] = models.Appointment{
		ID: "a1", BusinessID: "biz-1", StaffID: "st-1",
		ScheduledStart: time.Now().Add(time.Hour), ScheduledEnd: time.Now().Add(2 * time.Hour),
		Status: models.AppointmentConfirmed,
	}

	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolManagementAction,
		`{"action":"cancel_appointment","appointment_id":"a1"}`))
	if res.Success {
		t.Fatal("viewer cancelled an appointment")
	}
	if res.Error != "permission_denied" {
		t.Errorf("error = %q, want permission_denied", res.Error)
	}
	if res.Message == "" {
		t.Error("denial carries no user-facing message")
	}
	if st.Appointments["a1"].Status != models.AppointmentConfirmed {
		t.Error("appointment mutated despite denial")
	}
}

func TestManagementCancelAppointment(t *testing.T) {
	st, f, fc := managementSetup(models.PermissionOwner)
	st.Appointments["a1"] = models.Appointment{
		ID: "a1", BusinessID: "biz-1", StaffID: "st-2",
		ScheduledStart: time.Now().Add(time.Hour), ScheduledEnd: time.Now().Add(2 * time.Hour),
		Status: models.AppointmentConfirmed,
	}

	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolManagementAction,
		`{"action":"cancel_appointment","appointment_id":"a1"}`))
	if !res.Success {
		t.Fatalf("cancel_appointment: %s", res.Error)
	}
	if st.Appointments["a1"].Status != models.AppointmentCancelled {
		t.Errorf("status = %s, want cancelled", st.Appointments["a1"].Status)
	}
}

func TestManagementCancelForeignBusinessAppointment(t *testing.T) {
	st, f, fc := managementSetup(models.PermissionOwner)
	st.Appointments["a9"] = models.Appointment{
		ID: "a9", BusinessID: "biz-other", StaffID: "st-9",
		Status: models.AppointmentConfirmed,
	}
	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolManagementAction,
		`{"action":"cancel_appointment","appointment_id":"a9"}`))
	if res.Success {
		t.Error("cancelled an appointment belonging to another business")
	}
}

func TestManagementUpdateAvailability(t *testing.T) {
	st, f, fc := managementSetup(models.PermissionStaff)
	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolManagementAction,
		`{"action":"update_availability","rules":[{"day_of_week":1,"start_time":"10:00","end_time":"19:00"}]}`))
	if !res.Success {
		t.Fatalf("update_availability: %s", res.Error)
	}
	// No staff_id in the call targets the sender's own schedule.
	rules, _ := st.ListAvailabilityRules("st-1")
	if len(rules) != 1 || rules[0].StartTime != "10:00" {
		t.Errorf("rules = %+v", rules)
	}
}

func TestManagementUpdateStaffPermission(t *testing.T) {
	st, f, fc := managementSetup(models.PermissionOwner)
	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolManagementAction,
		`{"action":"update_staff_permission","staff_id":"st-2","permission_level":"admin"}`))
	if !res.Success {
		t.Fatalf("update_staff_permission: %s", res.Error)
	}
	if st.Staff["st-2"].PermissionLevel != models.PermissionAdmin {
		t.Errorf("level = %s, want admin", st.Staff["st-2"].PermissionLevel)
	}
}

func TestManagementListAppointments(t *testing.T) {
	st, f, fc := managementSetup(models.PermissionStaff)
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	st.Appointments["a1"] = models.Appointment{
		ID: "a1", BusinessID: "biz-1", StaffID: "st-1", CustomerName: "Ana",
		ScheduledStart: day.Add(10 * time.Hour), ScheduledEnd: day.Add(10*time.Hour + 30*time.Minute),
		Status: models.AppointmentConfirmed,
	}
	st.Appointments["a2"] = models.Appointment{
		ID: "a2", BusinessID: "biz-1", StaffID: "st-1",
		ScheduledStart: day.AddDate(0, 0, 1).Add(10 * time.Hour), ScheduledEnd: day.AddDate(0, 0, 1).Add(11 * time.Hour),
		Status: models.AppointmentConfirmed,
	}

	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolManagementAction,
		`{"action":"list_appointments","date":"2026-09-07"}`))
	if !res.Success {
		t.Fatalf("list_appointments: %s", res.Error)
	}
	if !strings.Contains(res.Message, "a1") || strings.Contains(res.Message, "a2") {
		t.Errorf("message = %q, want only the requested day", res.Message)
	}
}

func TestManagementListAppointmentsForOtherStaffDenied(t *testing.T) {
	st, f, fc := managementSetup(models.PermissionStaff)
	st.Appointments["a1"] = models.Appointment{
		ID: "a1", BusinessID: "biz-1", StaffID: "st-2",
		ScheduledStart: time.Now().Add(time.Hour), ScheduledEnd: time.Now().Add(2 * time.Hour),
		Status: models.AppointmentConfirmed,
	}

	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolManagementAction,
		`{"action":"list_appointments","staff_id":"st-2"}`))
	if res.Success {
		t.Fatal("staff level listed another staff member's appointments")
	}
	if res.Error != "permission_denied" {
		t.Errorf("error = %q, want permission_denied", res.Error)
	}
}
