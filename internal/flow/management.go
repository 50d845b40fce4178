package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"

	"github.com/turnero/turnero/internal/i18n"
	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/scheduling"
	"github.com/turnero/turnero/internal/store"
)

// ManagementFlow serves onboarded staff: schedules, appointments, staff
// administration. It is a per-turn dispatcher rather than a linear flow; the
// session only carries conversation history.
//
// Every action is checked against the capability matrix before execution, and
// the tool schema offered to the LLM is already filtered to the sender's
// level, so the check precedes tool selection as well.
type ManagementFlow struct {
	store  store.Store
	engine *scheduling.Engine
}

// NewManagementFlow creates the business management dispatcher.
func NewManagementFlow(st store.Store, engine *scheduling.Engine) *ManagementFlow {
	return &ManagementFlow{store: st, engine: engine}
}

func (f *ManagementFlow) Type() models.FlowType {
	return models.FlowTypeManagement
}

func (f *ManagementFlow) InitialState() models.StateType {
	return models.StateInitiated
}

// capabilities is the static permission matrix: which management actions
// each permission level may execute. Staff may act only on their own
// schedule, enforced separately in checkPermission.
var capabilities = map[models.PermissionLevel][]models.ManagementAction{
	models.PermissionOwner: {
		models.ActionViewSchedule, models.ActionUpdateAvailability,
		models.ActionListAppointments, models.ActionCancelAppointment,
		models.ActionViewStaff, models.ActionUpdateStaffPermission,
	},
	models.PermissionAdmin: {
		models.ActionViewSchedule, models.ActionUpdateAvailability,
		models.ActionListAppointments, models.ActionCancelAppointment,
		models.ActionViewStaff,
	},
	models.PermissionStaff: {
		models.ActionViewSchedule, models.ActionUpdateAvailability,
		models.ActionListAppointments, models.ActionViewStaff,
	},
	models.PermissionViewer: {
		models.ActionViewSchedule, models.ActionListAppointments, models.ActionViewStaff,
	},
}

// allowedActions returns the actions the sender's level may perform.
func allowedActions(level models.PermissionLevel) []models.ManagementAction {
	return capabilities[level]
}

// checkPermission validates one concrete action against the matrix. Staff
// level may only touch their own schedule.
func checkPermission(staff *models.StaffRecord, params *models.ManagementActionParams) error {
	allowed := false
	for _, a := range allowedActions(staff.PermissionLevel) {
		if a == params.Action {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("permission level %s may not perform %s", staff.PermissionLevel, params.Action)
	}
	if staff.PermissionLevel == models.PermissionStaff {
		switch params.Action {
		case models.ActionViewSchedule, models.ActionUpdateAvailability, models.ActionListAppointments:
			if params.StaffID != "" && params.StaffID != staff.ID {
				return fmt.Errorf("staff level may only manage their own schedule")
			}
		}
	}
	return nil
}

func (f *ManagementFlow) Tools(fc *Context) []openai.ChatCompletionToolParam {
	if fc.Identity.Staff == nil {
		return nil
	}
	return []openai.ChatCompletionToolParam{managementActionTool(allowedActions(fc.Identity.Staff.PermissionLevel))}
}

func (f *ManagementFlow) SystemPrompt(ctx context.Context, fc *Context) (string, error) {
	if fc.Business == nil || fc.Identity.Staff == nil {
		return "", fmt.Errorf("management flow requires a business and a staff record")
	}
	staff := fc.Identity.Staff
	var b strings.Builder
	fmt.Fprintf(&b, "You are the Turnero management assistant for %s, talking to %s (permission level: %s, staff id: %s). ",
		fc.Business.Name, staffDisplayName(staff), staff.PermissionLevel, staff.ID)
	b.WriteString("Reply in the language they write in; default to Spanish. Be brief.\n\n")
	fmt.Fprintf(&b, "All times are local to the business (%s). Today is %s.\n",
		fc.Business.Timezone, time.Now().In(fc.Business.Location()).Format("Monday 2006-01-02"))
	b.WriteString("Use management_action to answer questions about schedules, appointments and staff. ")
	b.WriteString("Only the actions listed in the tool are available to this person; if they ask for something else, explain it needs a higher permission level.")
	return b.String(), nil
}

func (f *ManagementFlow) ExecuteTool(ctx context.Context, fc *Context, call models.ToolCall) *models.ToolResult {
	if models.ToolName(call.Function.Name) != models.ToolManagementAction {
		return failResult(call.ID, fmt.Errorf("tool %s not available", call.Function.Name))
	}
	params, err := call.Function.ParseManagementActionParams()
	if err != nil {
		return failResult(call.ID, err)
	}
	staff := fc.Identity.Staff
	if staff == nil {
		return failResult(call.ID, fmt.Errorf("no staff record in context"))
	}
	if err := checkPermission(staff, params); err != nil {
		// Denial is a designed outcome, not an execution error. The catalog
		// text is handed to the LLM to relay.
		return &models.ToolResult{
			ToolCallID: call.ID,
			Success:    false,
			Message:    i18n.T(fc.Locale, i18n.MsgPermissionDenied),
			Error:      "permission_denied",
		}
	}

	switch params.Action {
	case models.ActionViewSchedule:
		return f.viewSchedule(fc, call, params)
	case models.ActionUpdateAvailability:
		return f.updateAvailability(fc, call, params)
	case models.ActionListAppointments:
		return f.listAppointments(fc, call, params)
	case models.ActionCancelAppointment:
		return f.cancelAppointment(fc, call, params)
	case models.ActionViewStaff:
		return f.viewStaff(fc, call)
	case models.ActionUpdateStaffPermission:
		return f.updateStaffPermission(fc, call, params)
	default:
		return failResult(call.ID, fmt.Errorf("unsupported action %s", params.Action))
	}
}

func (f *ManagementFlow) targetStaffID(fc *Context, params *models.ManagementActionParams) string {
	if params.StaffID != "" {
		return params.StaffID
	}
	return fc.Identity.Staff.ID
}

func (f *ManagementFlow) viewSchedule(fc *Context, call models.ToolCall, params *models.ManagementActionParams) *models.ToolResult {
	staffID := f.targetStaffID(fc, params)
	rules, err := f.store.ListAvailabilityRules(staffID)
	if err != nil {
		return failResult(call.ID, err)
	}
	if len(rules) == 0 {
		return successResult(call.ID, "No availability configured for this staff member.")
	}
	days := [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	var lines []string
	for _, r := range rules {
		switch r.Type {
		case models.RuleTypeRegular:
			lines = append(lines, fmt.Sprintf("%s %s-%s", days[r.DayOfWeek%7], r.StartTime, r.EndTime))
		case models.RuleTypeException:
			kind := "extra"
			if !r.IsAvailable {
				kind = "off"
			}
			lines = append(lines, fmt.Sprintf("%s %s-%s (%s)", r.SpecificDate, r.StartTime, r.EndTime, kind))
		}
	}
	return successResult(call.ID, "Weekly schedule:\n"+strings.Join(lines, "\n"))
}

func (f *ManagementFlow) updateAvailability(fc *Context, call models.ToolCall, params *models.ManagementActionParams) *models.ToolResult {
	staffID := f.targetStaffID(fc, params)
	rules := make([]models.AvailabilityRule, 0, len(params.Rules))
	for _, r := range params.Rules {
		rules = append(rules, models.AvailabilityRule{
			ID:          uuid.NewString(),
			StaffID:     staffID,
			Type:        models.RuleTypeRegular,
			DayOfWeek:   r.DayOfWeek,
			StartTime:   r.StartTime,
			EndTime:     r.EndTime,
			IsAvailable: true,
		})
	}
	if err := f.store.ReplaceAvailabilityRules(staffID, rules); err != nil {
		return failResult(call.ID, err)
	}
	return successResult(call.ID, fmt.Sprintf("Availability replaced with %d weekly windows.", len(rules)))
}

func (f *ManagementFlow) listAppointments(fc *Context, call models.ToolCall, params *models.ManagementActionParams) *models.ToolResult {
	staffID := f.targetStaffID(fc, params)
	loc := fc.Business.Location()
	day := time.Now().In(loc)
	if params.Date != "" {
		parsed, _ := time.Parse("2006-01-02", params.Date)
		day = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, loc)
	} else {
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	}
	appts, err := f.store.ListBlockingAppointments(staffID, "", day, day.AddDate(0, 0, 1))
	if err != nil {
		return failResult(call.ID, err)
	}
	if len(appts) == 0 {
		return successResult(call.ID, fmt.Sprintf("No appointments on %s.", day.Format("2006-01-02")))
	}
	var lines []string
	for _, a := range appts {
		name := a.CustomerName
		if name == "" {
			name = "(no name)"
		}
		lines = append(lines, fmt.Sprintf("%s | %s-%s | %s | %s",
			a.ID, a.ScheduledStart.In(loc).Format("15:04"), a.ScheduledEnd.In(loc).Format("15:04"), name, a.Status))
	}
	return successResult(call.ID, fmt.Sprintf("Appointments on %s (id | time | customer | status):\n%s",
		day.Format("2006-01-02"), strings.Join(lines, "\n")))
}

func (f *ManagementFlow) cancelAppointment(fc *Context, call models.ToolCall, params *models.ManagementActionParams) *models.ToolResult {
	appt, err := f.store.GetAppointment(params.AppointmentID)
	if err != nil {
		return failResult(call.ID, err)
	}
	if appt == nil || appt.BusinessID != fc.Business.ID {
		return failResult(call.ID, fmt.Errorf("no such appointment in this business"))
	}
	if err := f.store.UpdateAppointmentStatus(appt.ID, models.AppointmentCancelled); err != nil {
		return failResult(call.ID, err)
	}
	return successResult(call.ID, fmt.Sprintf("Appointment %s cancelled. Suggest notifying the customer.", appt.ID))
}

func (f *ManagementFlow) viewStaff(fc *Context, call models.ToolCall) *models.ToolResult {
	staff, err := f.store.ListStaff(fc.Business.ID)
	if err != nil {
		return failResult(call.ID, err)
	}
	var lines []string
	for _, st := range staff {
		status := "onboarded"
		if !st.Onboarded() {
			status = "not yet onboarded"
		}
		lines = append(lines, fmt.Sprintf("%s | %s | %s | %s", st.ID, staffDisplayName(&st), st.PermissionLevel, status))
	}
	return successResult(call.ID, "Staff (id | name | level | status):\n"+strings.Join(lines, "\n"))
}

func (f *ManagementFlow) updateStaffPermission(fc *Context, call models.ToolCall, params *models.ManagementActionParams) *models.ToolResult {
	if err := f.store.UpdateStaffPermission(params.StaffID, params.PermissionLevel); err != nil {
		return failResult(call.ID, err)
	}
	return successResult(call.ID, fmt.Sprintf("Permission level for %s set to %s.", params.StaffID, params.PermissionLevel))
}

func staffDisplayName(st *models.StaffRecord) string {
	if st.Name != "" {
		return st.Name
	}
	return st.PhoneNumber
}
