package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"

	"github.com/turnero/turnero/internal/i18n"
	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/store"
)

// StaffOnboardingFlow greets a staff member on their first message to their
// business's number: collects their name and weekly availability, shows a
// short tutorial, then closes the first-message gate with a compare-and-set
// on first_message_at and notifies the owner.
type StaffOnboardingFlow struct {
	store  store.Store
	sender Sender
}

// NewStaffOnboardingFlow creates the staff onboarding state machine.
func NewStaffOnboardingFlow(st store.Store, sender Sender) *StaffOnboardingFlow {
	return &StaffOnboardingFlow{store: st, sender: sender}
}

func (f *StaffOnboardingFlow) Type() models.FlowType {
	return models.FlowTypeStaffOnboarding
}

func (f *StaffOnboardingFlow) InitialState() models.StateType {
	return models.StateInitiated
}

func (f *StaffOnboardingFlow) Tools(fc *Context) []openai.ChatCompletionToolParam {
	switch fc.Session.State {
	case models.StateInitiated, models.StateCollectingName:
		return []openai.ChatCompletionToolParam{saveStaffNameTool()}
	case models.StateCollectingAvailability:
		return []openai.ChatCompletionToolParam{saveStaffAvailabilityTool()}
	case models.StateShowingTutorial:
		return []openai.ChatCompletionToolParam{completeTutorialTool()}
	default:
		return nil
	}
}

func (f *StaffOnboardingFlow) SystemPrompt(ctx context.Context, fc *Context) (string, error) {
	businessName := "the business"
	if fc.Business != nil {
		businessName = fc.Business.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are the Turnero assistant welcoming a new staff member at %s. ", businessName)
	b.WriteString("This is their first contact with the platform. Reply in the language they write in; default to Spanish. Keep messages short.\n\n")

	switch fc.Session.State {
	case models.StateInitiated, models.StateCollectingName:
		b.WriteString("Current step: welcome them, explain they were added as staff, and ask how they want their name shown to customers. Save it with save_staff_name.")
	case models.StateCollectingAvailability:
		b.WriteString("Current step: ask for their weekly working hours (days and time ranges). Save them with save_staff_availability.")
	case models.StateShowingTutorial:
		b.WriteString("Current step: briefly explain how it works: customers book through this same WhatsApp number, they can check their schedule by messaging here, and appointments land on their calendar automatically. Then call complete_tutorial.")
	case models.StateCompleted:
		b.WriteString("Onboarding is done. They can now ask about their schedule any time.")
	}
	if name := fc.Session.Payload[models.DataKeyStaffName]; name != "" {
		b.WriteString("\n\nTheir name: " + name)
	}
	return b.String(), nil
}

func (f *StaffOnboardingFlow) ExecuteTool(ctx context.Context, fc *Context, call models.ToolCall) *models.ToolResult {
	switch models.ToolName(call.Function.Name) {
	case models.ToolSaveStaffName:
		return f.saveName(fc, call)
	case models.ToolSaveStaffAvailability:
		return f.saveAvailability(fc, call)
	case models.ToolCompleteTutorial:
		return f.complete(ctx, fc, call)
	default:
		return failResult(call.ID, fmt.Errorf("tool %s not available in state %s", call.Function.Name, fc.Session.State))
	}
}

func (f *StaffOnboardingFlow) saveName(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSaveStaffNameParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	if fc.Identity.Staff == nil {
		return failResult(call.ID, fmt.Errorf("no staff record in context"))
	}
	if err := f.store.UpdateStaffName(fc.Identity.Staff.ID, params.Name); err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.Payload[models.DataKeyStaffName] = params.Name
	fc.Session.State = models.StateCollectingAvailability
	return successResult(call.ID, "Name saved. Now collect their weekly availability.")
}

func (f *StaffOnboardingFlow) saveAvailability(fc *Context, call models.ToolCall) *models.ToolResult {
	params, err := call.Function.ParseSaveStaffAvailabilityParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	if fc.Identity.Staff == nil {
		return failResult(call.ID, fmt.Errorf("no staff record in context"))
	}
	rules := make([]models.AvailabilityRule, 0, len(params.Rules))
	for _, r := range params.Rules {
		rules = append(rules, models.AvailabilityRule{
			ID:          uuid.NewString(),
			StaffID:     fc.Identity.Staff.ID,
			Type:        models.RuleTypeRegular,
			DayOfWeek:   r.DayOfWeek,
			StartTime:   r.StartTime,
			EndTime:     r.EndTime,
			IsAvailable: true,
		})
	}
	if err := f.store.ReplaceAvailabilityRules(fc.Identity.Staff.ID, rules); err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.State = models.StateShowingTutorial
	return successResult(call.ID, fmt.Sprintf("%d availability rules saved. Show the tutorial next.", len(rules)))
}

// complete closes the first-message gate. The compare-and-set only succeeds
// once; a duplicate completion skips the owner notification.
func (f *StaffOnboardingFlow) complete(ctx context.Context, fc *Context, call models.ToolCall) *models.ToolResult {
	if _, err := call.Function.ParseCompleteTutorialParams(); err != nil {
		return failResult(call.ID, err)
	}
	if fc.Identity.Staff == nil {
		return failResult(call.ID, fmt.Errorf("no staff record in context"))
	}
	won, err := f.store.MarkFirstMessageSeen(fc.Identity.Staff.ID, time.Now().UTC())
	if err != nil {
		return failResult(call.ID, err)
	}
	fc.Session.State = models.StateCompleted
	if won {
		f.notifyOwner(ctx, fc)
	} else {
		slog.Debug("StaffOnboardingFlow complete raced, gate already closed", "staffID", fc.Identity.Staff.ID)
	}
	slog.Info("StaffOnboardingFlow completed", "staffID", fc.Identity.Staff.ID, "businessID", fc.Session.BusinessID)
	return successResult(call.ID, "Onboarding complete. Wrap up warmly.")
}

// notifyOwner tells the business owner the staff member is live. Best effort;
// a delivery failure never fails the staff member's turn.
func (f *StaffOnboardingFlow) notifyOwner(ctx context.Context, fc *Context) {
	if fc.Business == nil || fc.Business.OwnerPhone == "" || fc.Business.OwnerPhone == fc.Message.SenderPhone {
		return
	}
	name := fc.Session.Payload[models.DataKeyStaffName]
	if name == "" {
		name = fc.Message.SenderPhone
	}
	body := i18n.Tf(fc.Locale, i18n.MsgOwnerStaffOnboarded, name)
	if err := f.sender.SendMessage(ctx, fc.Business.OwnerPhone, body); err != nil {
		slog.Warn("StaffOnboardingFlow owner notification failed", "error", err, "ownerPhone", fc.Business.OwnerPhone)
	}
}
