package flow

import (
	"context"
	"testing"
	"time"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/scheduling"
	"github.com/turnero/turnero/internal/testutil"
)

// customerSetup seeds a one-staff business with a 30 minute service and
// Monday morning availability.
func customerSetup() (*testutil.FakeStore, *CustomerFlow, *Context) {
	st := testutil.NewFakeStore()
	st.Businesses["biz-1"] = models.Business{ID: "biz-1", Name: "Peluquería Sur", Timezone: "UTC", Locale: "es"}
	st.Services["svc-1"] = models.Service{ID: "svc-1", BusinessID: "biz-1", Name: "Corte", DurationMin: 30}
	st.Staff["st-1"] = models.StaffRecord{
		ID: "st-1", BusinessID: "biz-1", PhoneNumber: testStaffPhone,
		Name: "Lucía", PermissionLevel: models.PermissionStaff, IsActive: true,
	}
	st.Rules["st-1"] = []models.AvailabilityRule{{
		ID: "r1", StaffID: "st-1", Type: models.RuleTypeRegular,
		DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00", IsAvailable: true,
	}}

	engine := scheduling.NewEngine(st)
	f := NewCustomerFlow(st, engine, scheduling.NewValidator(st, engine))

	business := st.Businesses["biz-1"]
	fc := newFlowContext(newTestSession(models.FlowTypeCustomer, "biz-1", testCustomerPhone),
		models.Identity{Kind: models.IdentityOther}, &business, testCustomerPhone)
	return st, f, fc
}

func TestCustomerSelectService(t *testing.T) {
	_, f, fc := customerSetup()
	ctx := context.Background()

	if res := f.ExecuteTool(ctx, fc, toolCall("c1", models.ToolSelectService, `{"service_id":"svc-9"}`)); res.Success {
		t.Error("unknown service accepted")
	}

	res := f.ExecuteTool(ctx, fc, toolCall("c2", models.ToolSelectService, `{"service_id":"svc-1"}`))
	if !res.Success {
		t.Fatalf("select_service: %s", res.Error)
	}
	if fc.Session.State != models.StateCollectingDatetime {
		t.Errorf("state = %s, want collecting_datetime", fc.Session.State)
	}
	if fc.Session.Payload[models.DataKeyIntent] != string(models.IntentBooking) {
		t.Errorf("intent = %q", fc.Session.Payload[models.DataKeyIntent])
	}
}

func TestCustomerSelectSlotAsksNameForNewCustomer(t *testing.T) {
	_, f, fc := customerSetup()
	fc.Session.State = models.StateCollectingDatetime
	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolSelectSlot,
		`{"staff_id":"st-1","start":"2026-09-07T10:00:00Z"}`))
	if !res.Success {
		t.Fatalf("select_slot: %s", res.Error)
	}
	if fc.Session.State != models.StateCollectingPersonalInfo {
		t.Errorf("state = %s, want collecting_personal_info", fc.Session.State)
	}
}

func TestCustomerSelectSlotSkipsNameForVerifiedCustomer(t *testing.T) {
	st, f, fc := customerSetup()
	verified := time.Now().UTC().Add(-24 * time.Hour)
	st.Profiles["biz-1|"+testCustomerPhone] = models.CustomerProfile{
		PhoneNumber: testCustomerPhone, BusinessID: "biz-1", Name: "Ana", VerifiedAt: &verified,
	}
	fc.Session.State = models.StateCollectingDatetime

	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolSelectSlot,
		`{"staff_id":"st-1","start":"2026-09-07T10:00:00Z"}`))
	if !res.Success {
		t.Fatalf("select_slot: %s", res.Error)
	}
	if fc.Session.State != models.StateConfirmingSummary {
		t.Errorf("state = %s, want confirming_summary", fc.Session.State)
	}
	if fc.Session.Payload[models.DataKeyCustomerName] != "Ana" {
		t.Errorf("customer name = %q", fc.Session.Payload[models.DataKeyCustomerName])
	}
}

func TestCustomerConfirmBooking(t *testing.T) {
	st, f, fc := customerSetup()
	fc.Session.State = models.StateConfirmingSummary
	fc.Session.Payload[models.DataKeyIntent] = string(models.IntentBooking)
	fc.Session.Payload[models.DataKeyServiceID] = "svc-1"
	fc.Session.Payload[models.DataKeyStaffID] = "st-1"
	fc.Session.Payload[models.DataKeySlotStart] = "2026-09-07T10:00:00Z"
	fc.Session.Payload[models.DataKeyCustomerName] = "Ana"
	ctx := context.Background()

	res := f.ExecuteTool(ctx, fc, toolCall("c1", models.ToolConfirmBooking, `{}`))
	if !res.Success {
		t.Fatalf("confirm_booking: %s", res.Error)
	}
	if fc.Session.State != models.StateConfirmed {
		t.Errorf("state = %s, want confirmed", fc.Session.State)
	}

	apptID := fc.Session.Payload[models.DataKeyAppointmentID]
	appt, _ := st.GetAppointment(apptID)
	if appt == nil {
		t.Fatal("appointment not persisted")
	}
	if !appt.ScheduledEnd.Equal(appt.ScheduledStart.Add(30 * time.Minute)) {
		t.Errorf("appointment window = %v..%v", appt.ScheduledStart, appt.ScheduledEnd)
	}
	if appt.CustomerName != "Ana" || appt.Status != models.AppointmentConfirmed {
		t.Errorf("appointment = %+v", appt)
	}
	if profile, _ := st.GetCustomerProfile("biz-1", testCustomerPhone); profile == nil || profile.PreferredStaff != "st-1" {
		t.Errorf("preferred staff not recorded: %+v", profile)
	}

	// A retried confirmation reuses the fixed appointment id; no double booking.
	if res := f.ExecuteTool(ctx, fc, toolCall("c2", models.ToolConfirmBooking, `{}`)); !res.Success {
		t.Fatalf("retried confirm_booking: %s", res.Error)
	}
	if len(st.Appointments) != 1 {
		t.Errorf("got %d appointments, want 1", len(st.Appointments))
	}
}

func TestCustomerConfirmBookingConflict(t *testing.T) {
	st, f, fc := customerSetup()
	st.Appointments["a0"] = models.Appointment{
		ID: "a0", BusinessID: "biz-1", StaffID: "st-1", CustomerPhone: "+5491170004444",
		ScheduledStart: time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		ScheduledEnd:   time.Date(2026, 9, 7, 10, 30, 0, 0, time.UTC),
		Status:         models.AppointmentConfirmed,
	}
	fc.Session.State = models.StateConfirmingSummary
	fc.Session.Payload[models.DataKeyIntent] = string(models.IntentBooking)
	fc.Session.Payload[models.DataKeyServiceID] = "svc-1"
	fc.Session.Payload[models.DataKeyStaffID] = "st-1"
	fc.Session.Payload[models.DataKeySlotStart] = "2026-09-07T10:15:00Z"
	fc.Session.Payload[models.DataKeyCustomerName] = "Ana"

	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolConfirmBooking, `{}`))
	if res.Success {
		t.Fatal("conflicting booking accepted")
	}
	if res.Error != "slot_conflict" {
		t.Errorf("error = %q, want slot_conflict", res.Error)
	}
	if fc.Session.State != models.StateConfirmingSummary {
		t.Errorf("state = %s, want unchanged confirming_summary", fc.Session.State)
	}
	if len(st.Appointments) != 1 {
		t.Errorf("got %d appointments, want only the pre-existing one", len(st.Appointments))
	}
}

func TestCustomerCancellation(t *testing.T) {
	st, f, fc := customerSetup()
	st.Appointments["a1"] = models.Appointment{
		ID: "a1", BusinessID: "biz-1", StaffID: "st-1", CustomerPhone: testCustomerPhone,
		ScheduledStart: time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		ScheduledEnd:   time.Date(2026, 9, 7, 10, 30, 0, 0, time.UTC),
		Status:         models.AppointmentConfirmed,
	}
	ctx := context.Background()

	res := f.ExecuteTool(ctx, fc, toolCall("c1", models.ToolIdentifyBooking,
		`{"appointment_id":"a1","intent":"cancel"}`))
	if !res.Success {
		t.Fatalf("identify_booking: %s", res.Error)
	}
	if fc.Session.State != models.StateConfirmingCancellation {
		t.Fatalf("state = %s, want confirming_cancellation", fc.Session.State)
	}

	res = f.ExecuteTool(ctx, fc, toolCall("c2", models.ToolConfirmCancellation, `{}`))
	if !res.Success {
		t.Fatalf("confirm_cancellation: %s", res.Error)
	}
	if fc.Session.State != models.StateCancelled {
		t.Errorf("state = %s, want cancelled", fc.Session.State)
	}
	if st.Appointments["a1"].Status != models.AppointmentCancelled {
		t.Errorf("status = %s, want cancelled", st.Appointments["a1"].Status)
	}
}

func TestCustomerIdentifyBookingRejectsForeignAppointment(t *testing.T) {
	st, f, fc := customerSetup()
	st.Appointments["a1"] = models.Appointment{
		ID: "a1", BusinessID: "biz-1", StaffID: "st-1", CustomerPhone: "+5491170004444",
		Status: models.AppointmentConfirmed,
	}
	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolIdentifyBooking,
		`{"appointment_id":"a1","intent":"cancel"}`))
	if res.Success {
		t.Error("another customer's appointment accepted")
	}
}

func TestCustomerModificationDatetime(t *testing.T) {
	st, f, fc := customerSetup()
	st.Appointments["a1"] = models.Appointment{
		ID: "a1", BusinessID: "biz-1", ServiceID: "svc-1", StaffID: "st-1",
		CustomerPhone: testCustomerPhone, CustomerName: "Ana",
		ScheduledStart: time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		ScheduledEnd:   time.Date(2026, 9, 7, 10, 30, 0, 0, time.UTC),
		Status:         models.AppointmentConfirmed,
	}
	ctx := context.Background()

	res := f.ExecuteTool(ctx, fc, toolCall("c1", models.ToolIdentifyBooking,
		`{"appointment_id":"a1","intent":"modify"}`))
	if !res.Success {
		t.Fatalf("identify_booking: %s", res.Error)
	}
	if fc.Session.State != models.StateSelectingModification {
		t.Fatalf("state = %s, want selecting_modification", fc.Session.State)
	}

	res = f.ExecuteTool(ctx, fc, toolCall("c2", models.ToolSelectModification, `{"field":"datetime"}`))
	if !res.Success {
		t.Fatalf("select_modification: %s", res.Error)
	}
	if fc.Session.State != models.StateCollectingNewValue {
		t.Fatalf("state = %s, want collecting_new_value", fc.Session.State)
	}

	res = f.ExecuteTool(ctx, fc, toolCall("c3", models.ToolSaveNewValue, `{"value":"2026-09-07T11:00:00Z"}`))
	if !res.Success {
		t.Fatalf("save_new_value: %s", res.Error)
	}
	if fc.Session.State != models.StateConfirmingSummary {
		t.Fatalf("state = %s, want confirming_summary", fc.Session.State)
	}

	res = f.ExecuteTool(ctx, fc, toolCall("c4", models.ToolConfirmBooking, `{}`))
	if !res.Success {
		t.Fatalf("confirm modification: %s", res.Error)
	}
	if fc.Session.State != models.StateConfirmed {
		t.Errorf("state = %s, want confirmed", fc.Session.State)
	}
	appt := st.Appointments["a1"]
	wantStart := time.Date(2026, 9, 7, 11, 0, 0, 0, time.UTC)
	if !appt.ScheduledStart.Equal(wantStart) || !appt.ScheduledEnd.Equal(wantStart.Add(30*time.Minute)) {
		t.Errorf("appointment window = %v..%v", appt.ScheduledStart, appt.ScheduledEnd)
	}
}

func TestCustomerSaveNewValueRejectsBadDatetime(t *testing.T) {
	_, f, fc := customerSetup()
	fc.Session.State = models.StateCollectingNewValue
	fc.Session.Payload[models.DataKeyModificationField] = string(models.ModifyDatetime)
	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolSaveNewValue, `{"value":"mañana a las 11"}`))
	if res.Success {
		t.Error("unparseable datetime accepted")
	}
	if fc.Session.State != models.StateCollectingNewValue {
		t.Errorf("state moved to %s on failed tool", fc.Session.State)
	}
}
