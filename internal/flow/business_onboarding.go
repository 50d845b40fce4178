package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/store"
)

// BusinessOnboardingFlow walks a new business owner through setup on the
// central number: basic info, services, opening hours, optional staff, then a
// single finalize call that creates the whole business graph atomically.
// Nothing is persisted outside the session until finalize runs; a session
// that never finalizes is abandoned by the sweeper, never half-created.
type BusinessOnboardingFlow struct {
	store store.Store
}

// NewBusinessOnboardingFlow creates the business onboarding state machine.
func NewBusinessOnboardingFlow(st store.Store) *BusinessOnboardingFlow {
	return &BusinessOnboardingFlow{store: st}
}

func (f *BusinessOnboardingFlow) Type() models.FlowType {
	return models.FlowTypeBusinessOnboarding
}

func (f *BusinessOnboardingFlow) InitialState() models.StateType {
	return models.StateInitiated
}

func (f *BusinessOnboardingFlow) Tools(fc *Context) []openai.ChatCompletionToolParam {
	switch fc.Session.State {
	case models.StateInitiated, models.StateCollectingBusinessInfo:
		return []openai.ChatCompletionToolParam{saveBusinessInfoTool()}
	case models.StateCollectingServices:
		return []openai.ChatCompletionToolParam{saveServicesTool()}
	case models.StateCollectingHours:
		return []openai.ChatCompletionToolParam{saveHoursTool()}
	case models.StateCollectingStaff:
		return []openai.ChatCompletionToolParam{saveStaffTool(), finalizeBusinessTool()}
	default:
		return nil
	}
}

func (f *BusinessOnboardingFlow) SystemPrompt(ctx context.Context, fc *Context) (string, error) {
	var b strings.Builder
	b.WriteString("You are the setup assistant for Turnero, a WhatsApp appointment platform. ")
	b.WriteString("You are helping a business owner register their business. ")
	b.WriteString("Reply in the language the owner writes in; default to Spanish. Be warm and brief: this is WhatsApp, not email.\n\n")

	switch fc.Session.State {
	case models.StateInitiated, models.StateCollectingBusinessInfo:
		b.WriteString("Current step: collect the business name, its timezone (ask for city if needed and map it to an IANA timezone yourself) and preferred reply language. Save them with save_business_info once you have name and timezone.")
	case models.StateCollectingServices:
		b.WriteString("Current step: collect the services customers can book, each with a duration in minutes and optionally a price. Save them with save_services.")
	case models.StateCollectingHours:
		b.WriteString("Current step: collect the weekly opening hours. Save them with save_hours.")
	case models.StateCollectingStaff:
		b.WriteString("Current step: ask whether other people take appointments at this business. ")
		b.WriteString("If yes, collect their names and WhatsApp numbers and call save_staff. If the owner works alone, skip it. ")
		b.WriteString("Then summarize everything collected, ask for confirmation, and once confirmed call finalize_business. ")
		b.WriteString("finalize_business must always be called to complete setup.")
	case models.StateCompleted:
		b.WriteString("Setup is complete. Tell the owner their business is ready, that staff will be invited on first contact, and how customers can start booking.")
	}

	if summary := f.collectedSummary(fc.Session); summary != "" {
		b.WriteString("\n\nCollected so far:\n")
		b.WriteString(summary)
	}
	return b.String(), nil
}

// collectedSummary renders the payload for the prompt so the LLM does not
// re-ask for answered questions.
func (f *BusinessOnboardingFlow) collectedSummary(sess *models.Session) string {
	var parts []string
	if name := sess.Payload[models.DataKeyBusinessName]; name != "" {
		parts = append(parts, "- Business: "+name+" ("+sess.Payload[models.DataKeyTimezone]+")")
	}
	if services := sess.Payload[models.DataKeyServices]; services != "" {
		parts = append(parts, "- Services: "+services)
	}
	if hours := sess.Payload[models.DataKeyHours]; hours != "" {
		parts = append(parts, "- Hours: "+hours)
	}
	if staff := sess.Payload[models.DataKeyStaff]; staff != "" {
		parts = append(parts, "- Staff: "+staff)
	}
	return strings.Join(parts, "\n")
}

func (f *BusinessOnboardingFlow) ExecuteTool(ctx context.Context, fc *Context, call models.ToolCall) *models.ToolResult {
	switch models.ToolName(call.Function.Name) {
	case models.ToolSaveBusinessInfo:
		return f.saveBusinessInfo(fc, call)
	case models.ToolSaveServices:
		return f.saveServices(fc, call)
	case models.ToolSaveHours:
		return f.saveHours(fc, call)
	case models.ToolSaveStaff:
		return f.saveStaff(fc, call)
	case models.ToolFinalizeBusiness:
		return f.finalize(fc, call)
	default:
		return failResult(call.ID, fmt.Errorf("tool %s not available in state %s", call.Function.Name, fc.Session.State))
	}
}

func (f *BusinessOnboardingFlow) saveBusinessInfo(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSaveBusinessInfoParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.Payload[models.DataKeyBusinessName] = params.Name
	fc.Session.Payload[models.DataKeyTimezone] = params.Timezone
	if params.Locale != "" {
		fc.Session.Payload[models.DataKeyLocale] = params.Locale
	}
	fc.Session.State = models.StateCollectingServices
	return successResult(call.ID, "Business info saved. Now collect the services.")
}

func (f *BusinessOnboardingFlow) saveServices(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSaveServicesParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	encoded, err := json.Marshal(params.Services)
	if err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.Payload[models.DataKeyServices] = string(encoded)
	fc.Session.State = models.StateCollectingHours
	return successResult(call.ID, fmt.Sprintf("%d services saved. Now collect the weekly hours.", len(params.Services)))
}

func (f *BusinessOnboardingFlow) saveHours(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSaveHoursParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	encoded, err := json.Marshal(params.Hours)
	if err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.Payload[models.DataKeyHours] = string(encoded)
	fc.Session.State = models.StateCollectingStaff
	return successResult(call.ID, "Hours saved. Ask about additional staff, then confirm and finalize.")
}

func (f *BusinessOnboardingFlow) saveStaff(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSaveStaffParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	encoded, err := json.Marshal(params.Staff)
	if err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.Payload[models.DataKeyStaff] = string(encoded)
	return successResult(call.ID, fmt.Sprintf("%d staff members saved. Summarize and finalize when the owner confirms.", len(params.Staff)))
}

// finalize creates the business graph in one transaction. The business ID is
// fixed in the payload before the store call, so a retried finalize reuses it
// and the creation stays idempotent.
func (f *BusinessOnboardingFlow) finalize(fc *Context, call models.ToolCall) *models.ToolResult {
	if _, err := call.Function.ParseFinalizeBusinessParams(); err != nil {
		return failResult(call.ID, err)
	}
	name := fc.Session.Payload[models.DataKeyBusinessName]
	timezone := fc.Session.Payload[models.DataKeyTimezone]
	if name == "" || timezone == "" {
		return failResult(call.ID, fmt.Errorf("business info missing; collect it before finalizing"))
	}
	var serviceInputs []models.ServiceInput
	if raw := fc.Session.Payload[models.DataKeyServices]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &serviceInputs); err != nil {
			return failResult(call.ID, fmt.Errorf("stored services unreadable: %w", err))
		}
	}
	if len(serviceInputs) == 0 {
		return failResult(call.ID, fmt.Errorf("services missing; collect them before finalizing"))
	}
	var hourInputs []models.HoursInput
	if raw := fc.Session.Payload[models.DataKeyHours]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &hourInputs); err != nil {
			return failResult(call.ID, fmt.Errorf("stored hours unreadable: %w", err))
		}
	}
	if len(hourInputs) == 0 {
		return failResult(call.ID, fmt.Errorf("hours missing; collect them before finalizing"))
	}
	var staffInputs []models.StaffInput
	if raw := fc.Session.Payload[models.DataKeyStaff]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &staffInputs); err != nil {
			return failResult(call.ID, fmt.Errorf("stored staff unreadable: %w", err))
		}
	}

	businessID := fc.Session.Payload[models.DataKeyFinalized]
	if businessID == "" {
		businessID = uuid.NewString()
		fc.Session.Payload[models.DataKeyFinalized] = businessID
	}

	business := models.Business{
		ID:         businessID,
		Name:       name,
		Timezone:   timezone,
		Locale:     fc.Session.Payload[models.DataKeyLocale],
		OwnerPhone: fc.Message.SenderPhone,
	}
	if business.Locale == "" {
		business.Locale = "es"
	}

	services := make([]models.Service, 0, len(serviceInputs))
	for _, in := range serviceInputs {
		services = append(services, models.Service{
			ID:          uuid.NewString(),
			BusinessID:  businessID,
			Name:        in.Name,
			DurationMin: in.DurationMin,
			PriceCents:  in.PriceCents,
		})
	}

	staff := []models.StaffRecord{{
		ID:              uuid.NewString(),
		BusinessID:      businessID,
		PhoneNumber:     fc.Message.SenderPhone,
		PermissionLevel: models.PermissionOwner,
		IsActive:        true,
	}}
	for _, in := range staffInputs {
		level := in.PermissionLevel
		if level == "" {
			level = models.PermissionStaff
		}
		staff = append(staff, models.StaffRecord{
			ID:              uuid.NewString(),
			BusinessID:      businessID,
			PhoneNumber:     in.PhoneNumber,
			Name:            in.Name,
			PermissionLevel: level,
			IsActive:        true,
		})
	}

	// The opening hours seed every staff member's weekly template; each
	// refines their own during staff onboarding.
	var rules []models.AvailabilityRule
	for _, st := range staff {
		for _, h := range hourInputs {
			rules = append(rules, models.AvailabilityRule{
				ID:          uuid.NewString(),
				StaffID:     st.ID,
				Type:        models.RuleTypeRegular,
				DayOfWeek:   h.DayOfWeek,
				StartTime:   h.StartTime,
				EndTime:     h.EndTime,
				IsAvailable: true,
			})
		}
	}

	if err := f.store.CreateBusinessGraph(business, services, rules, staff); err != nil {
		slog.Error("BusinessOnboardingFlow finalize failed", "error", err, "businessID", businessID)
		return failResult(call.ID, fmt.Errorf("failed to create business: %w", err))
	}

	fc.Session.State = models.StateCompleted
	slog.Info("BusinessOnboardingFlow finalize succeeded", "businessID", businessID, "ownerPhone", fc.Message.SenderPhone)
	return successResult(call.ID, fmt.Sprintf("Business %q created with %d services and %d staff. Setup is complete.", name, len(services), len(staff)))
}

func successResult(callID, message string) *models.ToolResult {
	return &models.ToolResult{ToolCallID: callID, Success: true, Message: message}
}

func failResult(callID string, err error) *models.ToolResult {
	return &models.ToolResult{ToolCallID: callID, Success: false, Error: err.Error()}
}
