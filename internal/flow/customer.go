package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/scheduling"
	"github.com/turnero/turnero/internal/store"
)

// maxSlotsOffered caps how many slots one availability query feeds back to
// the LLM.
const maxSlotsOffered = 24

// CustomerFlow handles end customers on a business number: booking a new
// appointment, modifying one, or cancelling one. The sub-flow is picked by
// the first tool the LLM invokes and recorded in the session payload.
//
// Availability results shown to the customer are advisory; the booking is
// only real once the conflict validator commits it, and a lost race surfaces
// as alternatives, not an error.
type CustomerFlow struct {
	store     store.Store
	engine    *scheduling.Engine
	validator *scheduling.Validator
}

// NewCustomerFlow creates the customer state machine.
func NewCustomerFlow(st store.Store, engine *scheduling.Engine, validator *scheduling.Validator) *CustomerFlow {
	return &CustomerFlow{store: st, engine: engine, validator: validator}
}

func (f *CustomerFlow) Type() models.FlowType {
	return models.FlowTypeCustomer
}

func (f *CustomerFlow) InitialState() models.StateType {
	return models.StateInitiated
}

func (f *CustomerFlow) Tools(fc *Context) []openai.ChatCompletionToolParam {
	switch fc.Session.State {
	case models.StateInitiated, models.StateCollectingService:
		return []openai.ChatCompletionToolParam{selectServiceTool(), identifyBookingTool()}
	case models.StateCollectingDatetime, models.StateCollectingStaffPreference:
		return []openai.ChatCompletionToolParam{queryAvailabilityTool(), selectSlotTool()}
	case models.StateCollectingPersonalInfo:
		return []openai.ChatCompletionToolParam{savePersonalInfoTool()}
	case models.StateConfirmingSummary:
		return []openai.ChatCompletionToolParam{confirmBookingTool()}
	case models.StateSelectingModification:
		return []openai.ChatCompletionToolParam{selectModificationTool()}
	case models.StateCollectingNewValue:
		return []openai.ChatCompletionToolParam{saveNewValueTool(), queryAvailabilityTool()}
	case models.StateConfirmingCancellation:
		return []openai.ChatCompletionToolParam{confirmCancellationTool()}
	default:
		return nil
	}
}

func (f *CustomerFlow) SystemPrompt(ctx context.Context, fc *Context) (string, error) {
	if fc.Business == nil {
		return "", fmt.Errorf("customer flow requires a business")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are the WhatsApp booking assistant for %s. ", fc.Business.Name)
	fmt.Fprintf(&b, "Reply in %s unless the customer writes in another language. Be friendly and concise.\n", localeName(fc.Business.Locale))
	fmt.Fprintf(&b, "All times are local to the business (%s). Today is %s.\n\n",
		fc.Business.Timezone, time.Now().In(fc.Business.Location()).Format("Monday 2006-01-02"))

	if err := f.writeCatalog(&b, fc); err != nil {
		return "", err
	}
	f.writeProfile(&b, fc)

	b.WriteString("\n")
	switch fc.Session.State {
	case models.StateInitiated, models.StateCollectingService:
		b.WriteString("Current step: find out what the customer needs. To book, call select_service with the chosen service. To change or cancel an existing appointment, call identify_booking with the appointment and the intent.")
		f.writeAppointments(&b, fc)
	case models.StateCollectingDatetime, models.StateCollectingStaffPreference:
		b.WriteString("Current step: find a time. Ask when suits them (and with whom, if they care), call query_availability, offer a handful of matching slots, and once they pick one call select_slot.")
	case models.StateCollectingPersonalInfo:
		b.WriteString("Current step: ask for the customer's name and save it with save_personal_info.")
	case models.StateConfirmingSummary:
		b.WriteString("Current step: summarize the booking (service, staff, date and time, name) and ask for confirmation. Only after an explicit yes, call confirm_booking. If it reports a conflict, apologize and offer the returned alternatives.")
		f.writePending(&b, fc)
	case models.StateSelectingModification:
		b.WriteString("Current step: ask what they want to change about the appointment: the time (datetime), the service, or the staff member. Call select_modification.")
	case models.StateCollectingNewValue:
		b.WriteString("Current step: collect the new value for the field being changed and call save_new_value. For a new time you can check query_availability first; pass datetimes in RFC 3339.")
	case models.StateConfirmingCancellation:
		b.WriteString("Current step: confirm they really want to cancel. Only after an explicit yes, call confirm_cancellation.")
	case models.StateConfirmed:
		b.WriteString("The booking is confirmed. Answer any remaining questions briefly.")
	case models.StateCancelled:
		b.WriteString("The appointment was cancelled. Offer to book a new one if they wish.")
	}
	return b.String(), nil
}

func (f *CustomerFlow) writeCatalog(b *strings.Builder, fc *Context) error {
	services, err := f.store.ListServices(fc.Business.ID)
	if err != nil {
		return fmt.Errorf("failed to list services: %w", err)
	}
	b.WriteString("Services (id | name | duration):\n")
	for _, s := range services {
		fmt.Fprintf(b, "- %s | %s | %d min\n", s.ID, s.Name, s.DurationMin)
	}
	staff, err := f.store.ListStaff(fc.Business.ID)
	if err != nil {
		return fmt.Errorf("failed to list staff: %w", err)
	}
	b.WriteString("Staff (id | name):\n")
	for _, st := range staff {
		name := st.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(b, "- %s | %s\n", st.ID, name)
	}
	return nil
}

func (f *CustomerFlow) writeProfile(b *strings.Builder, fc *Context) {
	profile, err := f.store.GetCustomerProfile(fc.Business.ID, fc.Message.SenderPhone)
	if err != nil || profile == nil {
		return
	}
	fmt.Fprintf(b, "Returning customer: %s.", profile.Name)
	if profile.PreferredStaff != "" {
		fmt.Fprintf(b, " Usually books with staff %s.", profile.PreferredStaff)
	}
	if profile.NeedsReverification(time.Now()) {
		b.WriteString(" Their details are old; re-confirm the name before booking.")
	}
	b.WriteString("\n")
}

func (f *CustomerFlow) writeAppointments(b *strings.Builder, fc *Context) {
	appts, err := f.store.ListAppointmentsByCustomer(fc.Business.ID, fc.Message.SenderPhone)
	if err != nil || len(appts) == 0 {
		return
	}
	loc := fc.Business.Location()
	b.WriteString("\nTheir upcoming appointments (id | time | status):\n")
	now := time.Now()
	for _, a := range appts {
		if !a.Status.Blocking() || a.ScheduledEnd.Before(now) {
			continue
		}
		fmt.Fprintf(b, "- %s | %s | %s\n", a.ID, a.ScheduledStart.In(loc).Format("Mon 2 Jan 15:04"), a.Status)
	}
}

func (f *CustomerFlow) writePending(b *strings.Builder, fc *Context) {
	if start := fc.Session.Payload[models.DataKeySlotStart]; start != "" {
		fmt.Fprintf(b, "\nPending slot: %s with staff %s.", start, fc.Session.Payload[models.DataKeyStaffID])
	}
	if name := fc.Session.Payload[models.DataKeyCustomerName]; name != "" {
		fmt.Fprintf(b, " Customer name: %s.", name)
	}
}

func (f *CustomerFlow) ExecuteTool(ctx context.Context, fc *Context, call models.ToolCall) *models.ToolResult {
	switch models.ToolName(call.Function.Name) {
	case models.ToolSelectService:
		return f.selectService(fc, call)
	case models.ToolIdentifyBooking:
		return f.identifyBooking(fc, call)
	case models.ToolQueryAvailability:
		return f.queryAvailability(fc, call)
	case models.ToolSelectSlot:
		return f.selectSlot(fc, call)
	case models.ToolSavePersonalInfo:
		return f.savePersonalInfo(fc, call)
	case models.ToolConfirmBooking:
		return f.confirmBooking(fc, call)
	case models.ToolSelectModification:
		return f.selectModification(fc, call)
	case models.ToolSaveNewValue:
		return f.saveNewValue(fc, call)
	case models.ToolConfirmCancellation:
		return f.confirmCancellation(fc, call)
	default:
		return failResult(call.ID, fmt.Errorf("tool %s not available in state %s", call.Function.Name, fc.Session.State))
	}
}

func (f *CustomerFlow) selectService(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSelectServiceParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	svc, err := f.store.GetService(params.ServiceID)
	if err != nil {
		return failResult(call.ID, err)
	}
	if svc == nil || svc.BusinessID != fc.Business.ID {
		return failResult(call.ID, fmt.Errorf("unknown service %s", params.ServiceID))
	}
	fc.Session.Payload[models.DataKeyIntent] = string(models.IntentBooking)
	fc.Session.Payload[models.DataKeyServiceID] = svc.ID
	fc.Session.State = models.StateCollectingDatetime
	return successResult(call.ID, fmt.Sprintf("Service %q selected (%d min). Now find a time.", svc.Name, svc.DurationMin))
}

func (f *CustomerFlow) identifyBooking(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseIdentifyBookingParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	appt, err := f.store.GetAppointment(params.AppointmentID)
	if err != nil {
		return failResult(call.ID, err)
	}
	if appt == nil || appt.BusinessID != fc.Business.ID || appt.CustomerPhone != fc.Message.SenderPhone {
		return failResult(call.ID, fmt.Errorf("no such appointment for this customer"))
	}
	if !appt.Status.Blocking() {
		return failResult(call.ID, fmt.Errorf("appointment %s is %s and cannot be changed", appt.ID, appt.Status))
	}
	fc.Session.Payload[models.DataKeyAppointmentID] = appt.ID
	fc.Session.Payload[models.DataKeyIntent] = string(params.Intent)
	if params.Intent == models.IntentCancel {
		fc.Session.State = models.StateConfirmingCancellation
		return successResult(call.ID, "Appointment identified. Confirm the cancellation with the customer.")
	}
	fc.Session.State = models.StateSelectingModification
	return successResult(call.ID, "Appointment identified. Ask what they want to change.")
}

func (f *CustomerFlow) queryAvailability(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseQueryAvailabilityParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	svc, err := f.store.GetService(params.ServiceID)
	if err != nil {
		return failResult(call.ID, err)
	}
	if svc == nil || svc.BusinessID != fc.Business.ID {
		return failResult(call.ID, fmt.Errorf("unknown service %s", params.ServiceID))
	}

	loc := fc.Business.Location()
	fromDate, _ := time.Parse("2006-01-02", params.FromDate)
	from := time.Date(fromDate.Year(), fromDate.Month(), fromDate.Day(), 0, 0, 0, 0, loc)
	days := params.Days
	if days == 0 {
		days = 7
	}
	to := from.AddDate(0, 0, days)

	staffIDs := []string{params.StaffID}
	if params.StaffID == "" {
		staff, err := f.store.ListStaff(fc.Business.ID)
		if err != nil {
			return failResult(call.ID, err)
		}
		staffIDs = staffIDs[:0]
		for _, st := range staff {
			staffIDs = append(staffIDs, st.ID)
		}
	}

	var lines []string
	for _, staffID := range staffIDs {
		slots, err := f.engine.ComputeSlots(staffID, fc.Business, from, to, svc.Duration())
		if err != nil {
			return failResult(call.ID, err)
		}
		for _, slot := range slots {
			lines = append(lines, fmt.Sprintf("%s | %s", slot.StaffID, slot.Start.Format(time.RFC3339)))
			if len(lines) >= maxSlotsOffered {
				break
			}
		}
		if len(lines) >= maxSlotsOffered {
			break
		}
	}
	if len(lines) == 0 {
		return successResult(call.ID, "No open slots in that range. Suggest trying other dates.")
	}
	return successResult(call.ID, "Open slots (staff_id | start):\n"+strings.Join(lines, "\n"))
}

func (f *CustomerFlow) selectSlot(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSelectSlotParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.Payload[models.DataKeyStaffID] = params.StaffID
	if params.SpotID != "" {
		fc.Session.Payload[models.DataKeySpotID] = params.SpotID
	}
	fc.Session.Payload[models.DataKeySlotStart] = params.Start

	// A fresh returning customer skips the name question.
	profile, err := f.store.GetCustomerProfile(fc.Business.ID, fc.Message.SenderPhone)
	if err == nil && profile != nil && !profile.NeedsReverification(time.Now()) {
		fc.Session.Payload[models.DataKeyCustomerName] = profile.Name
		fc.Session.State = models.StateConfirmingSummary
		return successResult(call.ID, "Slot selected. Summarize and ask for confirmation.")
	}
	fc.Session.State = models.StateCollectingPersonalInfo
	return successResult(call.ID, "Slot selected. Ask for the customer's name.")
}

func (f *CustomerFlow) savePersonalInfo(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSavePersonalInfoParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	now := time.Now().UTC()
	profile := models.CustomerProfile{
		PhoneNumber: fc.Message.SenderPhone,
		BusinessID:  fc.Business.ID,
		Name:        params.Name,
		VerifiedAt:  &now,
	}
	if existing, err := f.store.GetCustomerProfile(fc.Business.ID, fc.Message.SenderPhone); err == nil && existing != nil {
		profile.PreferredStaff = existing.PreferredStaff
	}
	if err := f.store.SaveCustomerProfile(profile); err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.Payload[models.DataKeyCustomerName] = params.Name
	fc.Session.State = models.StateConfirmingSummary
	return successResult(call.ID, "Name saved. Summarize and ask for confirmation.")
}

// confirmBooking commits either a new booking or a pending modification,
// depending on the session's intent.
func (f *CustomerFlow) confirmBooking(fc *Context, call models.ToolCall) *models.ToolResult {
	if _, err := call.Function.ParseConfirmBookingParams(); err != nil {
		return failResult(call.ID, err)
	}
	if fc.Session.Payload[models.DataKeyIntent] == string(models.IntentModify) {
		return f.commitModification(fc, call)
	}
	return f.commitBooking(fc, call)
}

func (f *CustomerFlow) commitBooking(fc *Context, call models.ToolCall) *models.ToolResult {
	svc, start, result := f.pendingSlot(fc, call)
	if result != nil {
		return result
	}
	// The appointment id is fixed in the payload before the commit, so a
	// retried confirmation cannot double-book.
	apptID := fc.Session.Payload[models.DataKeyAppointmentID]
	if apptID == "" {
		apptID = uuid.NewString()
		fc.Session.Payload[models.DataKeyAppointmentID] = apptID
	}
	now := time.Now().UTC()
	appt := models.Appointment{
		ID:             apptID,
		BusinessID:     fc.Business.ID,
		ServiceID:      svc.ID,
		StaffID:        fc.Session.Payload[models.DataKeyStaffID],
		SpotID:         fc.Session.Payload[models.DataKeySpotID],
		CustomerPhone:  fc.Message.SenderPhone,
		CustomerName:   fc.Session.Payload[models.DataKeyCustomerName],
		ScheduledStart: start.UTC(),
		ScheduledEnd:   start.Add(svc.Duration()).UTC(),
		Status:         models.AppointmentConfirmed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	conflict, alts, err := f.validator.Book(appt, fc.Business, svc.Duration())
	if err != nil {
		return failResult(call.ID, err)
	}
	if conflict != nil {
		return f.conflictResult(fc, call, conflict, alts)
	}
	f.rememberPreferredStaff(fc, appt.StaffID)
	fc.Session.State = models.StateConfirmed
	slog.Info("CustomerFlow booking confirmed", "appointmentID", appt.ID, "businessID", fc.Business.ID)
	return successResult(call.ID, "Booking confirmed. Tell the customer and mention they can modify or cancel by messaging here.")
}

func (f *CustomerFlow) commitModification(fc *Context, call models.ToolCall) *models.ToolResult {
	apptID := fc.Session.Payload[models.DataKeyAppointmentID]
	appt, err := f.store.GetAppointment(apptID)
	if err != nil {
		return failResult(call.ID, err)
	}
	if appt == nil {
		return failResult(call.ID, fmt.Errorf("appointment %s not found", apptID))
	}

	updated := *appt
	switch models.ModificationField(fc.Session.Payload[models.DataKeyModificationField]) {
	case models.ModifyDatetime:
		start, err := time.Parse(time.RFC3339, fc.Session.Payload[models.DataKeySlotStart])
		if err != nil {
			return failResult(call.ID, fmt.Errorf("pending datetime unreadable: %w", err))
		}
		updated.ScheduledStart = start.UTC()
		updated.ScheduledEnd = start.Add(updated.ScheduledEnd.Sub(appt.ScheduledStart)).UTC()
	case models.ModifyService:
		svc, err := f.store.GetService(fc.Session.Payload[models.DataKeyServiceID])
		if err != nil {
			return failResult(call.ID, err)
		}
		if svc == nil || svc.BusinessID != fc.Business.ID {
			return failResult(call.ID, fmt.Errorf("unknown service"))
		}
		updated.ServiceID = svc.ID
		updated.ScheduledEnd = updated.ScheduledStart.Add(svc.Duration()).UTC()
	case models.ModifyStaff:
		updated.StaffID = fc.Session.Payload[models.DataKeyStaffID]
	default:
		return failResult(call.ID, fmt.Errorf("no pending modification"))
	}

	conflict, err := f.validator.Modify(updated)
	if err != nil {
		return failResult(call.ID, err)
	}
	if conflict != nil {
		alts, altErr := f.validator.Alternatives(updated.StaffID, fc.Business, updated.ScheduledStart, updated.ScheduledEnd.Sub(updated.ScheduledStart))
		if altErr != nil {
			slog.Warn("CustomerFlow modification alternatives failed", "error", altErr)
		}
		return f.conflictResult(fc, call, conflict, alts)
	}
	fc.Session.State = models.StateConfirmed
	slog.Info("CustomerFlow modification confirmed", "appointmentID", apptID)
	return successResult(call.ID, "Modification saved. Confirm the new details to the customer.")
}

func (f *CustomerFlow) confirmCancellation(fc *Context, call models.ToolCall) *models.ToolResult {
	if _, err := call.Function.ParseConfirmCancellationParams(); err != nil {
		return failResult(call.ID, err)
	}
	apptID := fc.Session.Payload[models.DataKeyAppointmentID]
	if apptID == "" {
		return failResult(call.ID, fmt.Errorf("no appointment identified"))
	}
	if err := f.store.UpdateAppointmentStatus(apptID, models.AppointmentCancelled); err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.State = models.StateCancelled
	slog.Info("CustomerFlow appointment cancelled", "appointmentID", apptID)
	return successResult(call.ID, "Appointment cancelled. Let the customer know.")
}

func (f *CustomerFlow) selectModification(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSelectModificationParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.Payload[models.DataKeyModificationField] = string(params.Field)
	fc.Session.State = models.StateCollectingNewValue
	return successResult(call.ID, fmt.Sprintf("Changing %s. Collect the new value.", params.Field))
}

func (f *CustomerFlow) saveNewValue(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSaveNewValueParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	switch models.ModificationField(fc.Session.Payload[models.DataKeyModificationField]) {
	case models.ModifyDatetime:
		if _, err := time.Parse(time.RFC3339, params.Value); err != nil {
			return failResult(call.ID, fmt.Errorf("value must be an RFC 3339 datetime: %w", err))
		}
		fc.Session.Payload[models.DataKeySlotStart] = params.Value
	case models.ModifyService:
		svc, err := f.store.GetService(params.Value)
		if err != nil {
			return failResult(call.ID, err)
		}
		if svc == nil || svc.BusinessID != fc.Business.ID {
			return failResult(call.ID, fmt.Errorf("unknown service %s", params.Value))
		}
		fc.Session.Payload[models.DataKeyServiceID] = svc.ID
	case models.ModifyStaff:
		fc.Session.Payload[models.DataKeyStaffID] = params.Value
	default:
		return failResult(call.ID, fmt.Errorf("no modification field selected"))
	}
	fc.Session.State = models.StateConfirmingSummary
	return successResult(call.ID, "New value saved. Summarize the change and ask for confirmation.")
}

// pendingSlot loads the service and slot start stashed during the booking
// steps, failing the call if either is missing.
func (f *CustomerFlow) pendingSlot(fc *Context, call models.ToolCall) (*models.Service, time.Time, *models.ToolResult) {
	svc, err := f.store.GetService(fc.Session.Payload[models.DataKeyServiceID])
	if err != nil {
		return nil, time.Time{}, failResult(call.ID, err)
	}
	if svc == nil {
		return nil, time.Time{}, failResult(call.ID, fmt.Errorf("no service selected"))
	}
	start, err := time.Parse(time.RFC3339, fc.Session.Payload[models.DataKeySlotStart])
	if err != nil {
		return nil, time.Time{}, failResult(call.ID, fmt.Errorf("no slot selected: %w", err))
	}
	return svc, start, nil
}

// conflictResult reports a lost booking race back to the LLM with nearby
// alternatives. The session stays in its current state so the customer can
// pick another slot.
func (f *CustomerFlow) conflictResult(fc *Context, call models.ToolCall, conflict *store.Conflict, alts []models.TimeSlot) *models.ToolResult {
	loc := fc.Business.Location()
	var lines []string
	for _, slot := range alts {
		lines = append(lines, fmt.Sprintf("%s | %s", slot.StaffID, slot.Start.In(loc).Format(time.RFC3339)))
	}
	msg := fmt.Sprintf("The %s is already booked from %s to %s.",
		conflict.Resource, conflict.Start.In(loc).Format("15:04"), conflict.End.In(loc).Format("15:04"))
	if len(lines) > 0 {
		msg += " Nearby alternatives (staff_id | start):\n" + strings.Join(lines, "\n")
	}
	return &models.ToolResult{
		ToolCallID: call.ID,
		Success:    false,
		Message:    msg,
		Error:      "slot_conflict",
		Data:       conflict,
	}
}

// rememberPreferredStaff records the booked staff member on the profile.
func (f *CustomerFlow) rememberPreferredStaff(fc *Context, staffID string) {
	if staffID == "" {
		return
	}
	profile, err := f.store.GetCustomerProfile(fc.Business.ID, fc.Message.SenderPhone)
	if err != nil || profile == nil {
		now := time.Now().UTC()
		profile = &models.CustomerProfile{
			PhoneNumber: fc.Message.SenderPhone,
			BusinessID:  fc.Business.ID,
			Name:        fc.Session.Payload[models.DataKeyCustomerName],
			VerifiedAt:  &now,
		}
	}
	profile.PreferredStaff = staffID
	if err := f.store.SaveCustomerProfile(*profile); err != nil {
		slog.Warn("CustomerFlow failed to save preferred staff", "error", err)
	}
}

// localeName renders a locale code for prompt text.
func localeName(locale string) string {
	switch locale {
	case "en":
		return "English"
	default:
		return "Spanish"
	}
}
