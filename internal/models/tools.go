// Package models defines tool structures for LLM function calling.
//
// Every tool exposed to the LLM has a statically typed parameter struct with
// its own Validate method. Proposed arguments are parsed and validated against
// these schemas before execution; free-form JSON is never trusted.
package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// ToolName identifies a tool available to the LLM in some flow state.
type ToolName string

const (
	ToolSaveBusinessInfo      ToolName = "save_business_info"
	ToolSaveServices          ToolName = "save_services"
	ToolSaveHours             ToolName = "save_hours"
	ToolSaveStaff             ToolName = "save_staff"
	ToolFinalizeBusiness      ToolName = "finalize_business"
	ToolSaveStaffName         ToolName = "save_staff_name"
	ToolSaveStaffAvailability ToolName = "save_staff_availability"
	ToolCompleteTutorial      ToolName = "complete_tutorial"
	ToolSelectService         ToolName = "select_service"
	ToolQueryAvailability     ToolName = "query_availability"
	ToolSelectSlot            ToolName = "select_slot"
	ToolSavePersonalInfo      ToolName = "save_personal_info"
	ToolConfirmBooking        ToolName = "confirm_booking"
	ToolIdentifyBooking       ToolName = "identify_booking"
	ToolSelectModification    ToolName = "select_modification"
	ToolSaveNewValue          ToolName = "save_new_value"
	ToolConfirmCancellation   ToolName = "confirm_cancellation"
	ToolManagementAction      ToolName = "management_action"
)

var timeOfDayRegex = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// validateTimeOfDay validates that a time string is in HH:MM format (24-hour).
func validateTimeOfDay(value string) error {
	if !timeOfDayRegex.MatchString(value) {
		return ErrInvalidTimeOfDay
	}
	return nil
}

// ToolCall represents an LLM tool function call.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function" for OpenAI
	Function FunctionCall `json:"function"`
}

// FunctionCall represents the function details within a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// validator is implemented by every tool parameter struct.
type validator interface {
	Validate() error
}

// parseParams unmarshals and validates tool arguments into dst.
func (fc *FunctionCall) parseParams(name ToolName, dst validator) error {
	if fc.Name != string(name) {
		return fmt.Errorf("function name %s is not %s", fc.Name, name)
	}
	if len(fc.Arguments) > 0 {
		if err := json.Unmarshal(fc.Arguments, dst); err != nil {
			return fmt.Errorf("failed to parse %s parameters: %w", name, err)
		}
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("invalid %s parameters: %w", name, err)
	}
	return nil
}

// ToolResult represents the result of executing a tool.
type ToolResult struct {
	ToolCallID string      `json:"tool_call_id"`
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Error      string      `json:"error,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// --- Business onboarding tools ---

// SaveBusinessInfoParams collects the basic organization details.
type SaveBusinessInfoParams struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Locale   string `json:"locale,omitempty"`
}

// Validate ensures the business info parameters are usable.
func (p *SaveBusinessInfoParams) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("business name is required")
	}
	if p.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q", p.Timezone)
	}
	return nil
}

// ServiceInput is one service entry collected during onboarding.
type ServiceInput struct {
	Name        string `json:"name"`
	DurationMin int    `json:"duration_min"`
	PriceCents  int64  `json:"price_cents,omitempty"`
}

// SaveServicesParams collects the business's bookable services.
type SaveServicesParams struct {
	Services []ServiceInput `json:"services"`
}

// Validate ensures at least one well-formed service was provided.
func (p *SaveServicesParams) Validate() error {
	if len(p.Services) == 0 {
		return fmt.Errorf("at least one service is required")
	}
	for i, s := range p.Services {
		if s.Name == "" {
			return fmt.Errorf("service %d: name is required", i+1)
		}
		if s.DurationMin <= 0 {
			return fmt.Errorf("service %d: duration_min must be positive", i+1)
		}
	}
	return nil
}

// HoursInput is one weekly-hours entry collected during onboarding.
type HoursInput struct {
	DayOfWeek int    `json:"day_of_week"` // 0=Sunday..6=Saturday
	StartTime string `json:"start_time"`  // "HH:MM"
	EndTime   string `json:"end_time"`    // "HH:MM"
}

// Validate checks one hours entry.
func (h *HoursInput) Validate() error {
	if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
		return ErrInvalidDayOfWeek
	}
	if err := validateTimeOfDay(h.StartTime); err != nil {
		return err
	}
	if err := validateTimeOfDay(h.EndTime); err != nil {
		return err
	}
	if h.EndTime <= h.StartTime {
		return ErrInvalidInterval
	}
	return nil
}

// SaveHoursParams collects the business's weekly opening hours.
type SaveHoursParams struct {
	Hours []HoursInput `json:"hours"`
}

// Validate ensures at least one well-formed hours entry was provided.
func (p *SaveHoursParams) Validate() error {
	if len(p.Hours) == 0 {
		return fmt.Errorf("at least one hours entry is required")
	}
	for i := range p.Hours {
		if err := p.Hours[i].Validate(); err != nil {
			return fmt.Errorf("hours entry %d: %w", i+1, err)
		}
	}
	return nil
}

// StaffInput is one staff entry collected during onboarding.
type StaffInput struct {
	Name            string          `json:"name"`
	PhoneNumber     string          `json:"phone_number"`
	PermissionLevel PermissionLevel `json:"permission_level,omitempty"`
}

// SaveStaffParams collects additional staff members (optional step).
type SaveStaffParams struct {
	Staff []StaffInput `json:"staff"`
}

// Validate checks the provided staff entries.
func (p *SaveStaffParams) Validate() error {
	for i, s := range p.Staff {
		if s.Name == "" || s.PhoneNumber == "" {
			return fmt.Errorf("staff entry %d: name and phone_number are required", i+1)
		}
		if s.PermissionLevel != "" && !IsValidPermissionLevel(s.PermissionLevel) {
			return fmt.Errorf("staff entry %d: invalid permission level %q", i+1, s.PermissionLevel)
		}
	}
	return nil
}

// FinalizeBusinessParams carries no arguments; the finalize tool reads the
// collected session payload and commits the whole business graph atomically.
type FinalizeBusinessParams struct{}

// Validate is a no-op for finalize.
func (p *FinalizeBusinessParams) Validate() error { return nil }

// --- Staff onboarding tools ---

// SaveStaffNameParams collects the staff member's display name.
type SaveStaffNameParams struct {
	Name string `json:"name"`
}

// Validate ensures a name was provided.
func (p *SaveStaffNameParams) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// SaveStaffAvailabilityParams collects the staff member's weekly template.
type SaveStaffAvailabilityParams struct {
	Rules []HoursInput `json:"rules"`
}

// Validate ensures at least one well-formed rule was provided.
func (p *SaveStaffAvailabilityParams) Validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("at least one availability rule is required")
	}
	for i := range p.Rules {
		if err := p.Rules[i].Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return nil
}

// CompleteTutorialParams carries no arguments.
type CompleteTutorialParams struct{}

// Validate is a no-op for tutorial completion.
func (p *CompleteTutorialParams) Validate() error { return nil }

// --- Customer flow tools ---

// SelectServiceParams picks the service being booked.
type SelectServiceParams struct {
	ServiceID string `json:"service_id"`
}

// Validate ensures a service id was provided.
func (p *SelectServiceParams) Validate() error {
	if p.ServiceID == "" {
		return fmt.Errorf("service_id is required")
	}
	return nil
}

// QueryAvailabilityParams asks the availability engine for open slots.
type QueryAvailabilityParams struct {
	ServiceID string `json:"service_id"`
	StaffID   string `json:"staff_id,omitempty"`
	FromDate  string `json:"from_date"` // "2006-01-02" in the business timezone
	Days      int    `json:"days,omitempty"`
}

// MaxAvailabilityDays bounds the query horizon so results stay finite.
const MaxAvailabilityDays = 14

// Validate ensures the availability query is bounded and well-formed.
func (p *QueryAvailabilityParams) Validate() error {
	if p.ServiceID == "" {
		return fmt.Errorf("service_id is required")
	}
	if _, err := time.Parse("2006-01-02", p.FromDate); err != nil {
		return fmt.Errorf("from_date must be YYYY-MM-DD")
	}
	if p.Days < 0 || p.Days > MaxAvailabilityDays {
		return fmt.Errorf("days must be between 0 and %d", MaxAvailabilityDays)
	}
	return nil
}

// SelectSlotParams records the customer's chosen slot.
type SelectSlotParams struct {
	StaffID string `json:"staff_id"`
	SpotID  string `json:"spot_id,omitempty"`
	Start   string `json:"start"` // RFC 3339
}

// Validate ensures the slot selection parses.
func (p *SelectSlotParams) Validate() error {
	if p.StaffID == "" && p.SpotID == "" {
		return ErrNoBookingResource
	}
	if _, err := time.Parse(time.RFC3339, p.Start); err != nil {
		return fmt.Errorf("start must be RFC 3339: %w", err)
	}
	return nil
}

// StartTime returns the parsed slot start.
func (p *SelectSlotParams) StartTime() time.Time {
	t, _ := time.Parse(time.RFC3339, p.Start)
	return t
}

// SavePersonalInfoParams collects or refreshes the customer's name.
type SavePersonalInfoParams struct {
	Name string `json:"name"`
}

// Validate ensures a name was provided.
func (p *SavePersonalInfoParams) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ConfirmBookingParams carries no arguments; the booking tool reads the
// collected session payload and commits under the conflict validator.
type ConfirmBookingParams struct{}

// Validate is a no-op for booking confirmation.
func (p *ConfirmBookingParams) Validate() error { return nil }

// IdentifyBookingParams selects which existing appointment to act on.
// Intent tells the flow whether the customer wants to modify or cancel.
type IdentifyBookingParams struct {
	AppointmentID string         `json:"appointment_id"`
	Intent        CustomerIntent `json:"intent"`
}

// Validate ensures an appointment id and a supported intent were provided.
func (p *IdentifyBookingParams) Validate() error {
	if p.AppointmentID == "" {
		return fmt.Errorf("appointment_id is required")
	}
	switch p.Intent {
	case IntentModify, IntentCancel:
		return nil
	default:
		return fmt.Errorf("intent must be modify or cancel")
	}
}

// ModificationField names what part of a booking is being changed.
type ModificationField string

const (
	ModifyDatetime ModificationField = "datetime"
	ModifyService  ModificationField = "service"
	ModifyStaff    ModificationField = "staff"
)

// SelectModificationParams picks the field being modified.
type SelectModificationParams struct {
	Field ModificationField `json:"field"`
}

// Validate ensures the field is one of the supported modifications.
func (p *SelectModificationParams) Validate() error {
	switch p.Field {
	case ModifyDatetime, ModifyService, ModifyStaff:
		return nil
	default:
		return fmt.Errorf("invalid modification field %q", p.Field)
	}
}

// SaveNewValueParams carries the replacement value for the chosen field.
type SaveNewValueParams struct {
	Value string `json:"value"`
}

// Validate ensures a value was provided.
func (p *SaveNewValueParams) Validate() error {
	if p.Value == "" {
		return fmt.Errorf("value is required")
	}
	return nil
}

// ConfirmCancellationParams carries no arguments.
type ConfirmCancellationParams struct{}

// Validate is a no-op for cancellation confirmation.
func (p *ConfirmCancellationParams) Validate() error { return nil }

// --- Business management tools ---

// ManagementAction names one business management operation.
type ManagementAction string

const (
	ActionViewSchedule          ManagementAction = "view_schedule"
	ActionUpdateAvailability    ManagementAction = "update_availability"
	ActionListAppointments      ManagementAction = "list_appointments"
	ActionCancelAppointment     ManagementAction = "cancel_appointment"
	ActionViewStaff             ManagementAction = "view_staff"
	ActionUpdateStaffPermission ManagementAction = "update_staff_permission"
)

// IsValidManagementAction checks if the given action is supported.
func IsValidManagementAction(a ManagementAction) bool {
	switch a {
	case ActionViewSchedule, ActionUpdateAvailability, ActionListAppointments,
		ActionCancelAppointment, ActionViewStaff, ActionUpdateStaffPermission:
		return true
	default:
		return false
	}
}

// ManagementActionParams dispatches one management operation.
type ManagementActionParams struct {
	Action          ManagementAction `json:"action"`
	StaffID         string           `json:"staff_id,omitempty"`
	AppointmentID   string           `json:"appointment_id,omitempty"`
	PermissionLevel PermissionLevel  `json:"permission_level,omitempty"`
	Rules           []HoursInput     `json:"rules,omitempty"`
	Date            string           `json:"date,omitempty"` // "2006-01-02"
}

// Validate ensures the action and its action-specific parameters are valid.
func (p *ManagementActionParams) Validate() error {
	if !IsValidManagementAction(p.Action) {
		return fmt.Errorf("invalid management action: %s", p.Action)
	}
	switch p.Action {
	case ActionCancelAppointment:
		if p.AppointmentID == "" {
			return fmt.Errorf("appointment_id is required for cancel_appointment")
		}
	case ActionUpdateStaffPermission:
		if p.StaffID == "" {
			return fmt.Errorf("staff_id is required for update_staff_permission")
		}
		if !IsValidPermissionLevel(p.PermissionLevel) {
			return fmt.Errorf("invalid permission level: %s", p.PermissionLevel)
		}
	case ActionUpdateAvailability:
		if len(p.Rules) == 0 {
			return fmt.Errorf("rules are required for update_availability")
		}
		for i := range p.Rules {
			if err := p.Rules[i].Validate(); err != nil {
				return fmt.Errorf("rule %d: %w", i+1, err)
			}
		}
	}
	if p.Date != "" {
		if _, err := time.Parse("2006-01-02", p.Date); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD")
		}
	}
	return nil
}

// --- Parse helpers ---

// ParseSaveBusinessInfoParams parses the arguments as SaveBusinessInfoParams.
func (fc *FunctionCall) ParseSaveBusinessInfoParams() (*SaveBusinessInfoParams, error) {
	var p SaveBusinessInfoParams
	if err := fc.parseParams(ToolSaveBusinessInfo, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSaveServicesParams parses the arguments as SaveServicesParams.
func (fc *FunctionCall) ParseSaveServicesParams() (*SaveServicesParams, error) {
	var p SaveServicesParams
	if err := fc.parseParams(ToolSaveServices, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSaveHoursParams parses the arguments as SaveHoursParams.
func (fc *FunctionCall) ParseSaveHoursParams() (*SaveHoursParams, error) {
	var p SaveHoursParams
	if err := fc.parseParams(ToolSaveHours, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSaveStaffParams parses the arguments as SaveStaffParams.
func (fc *FunctionCall) ParseSaveStaffParams() (*SaveStaffParams, error) {
	var p SaveStaffParams
	if err := fc.parseParams(ToolSaveStaff, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseFinalizeBusinessParams parses the arguments as FinalizeBusinessParams.
func (fc *FunctionCall) ParseFinalizeBusinessParams() (*FinalizeBusinessParams, error) {
	var p FinalizeBusinessParams
	if err := fc.parseParams(ToolFinalizeBusiness, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSaveStaffNameParams parses the arguments as SaveStaffNameParams.
func (fc *FunctionCall) ParseSaveStaffNameParams() (*SaveStaffNameParams, error) {
	var p SaveStaffNameParams
	if err := fc.parseParams(ToolSaveStaffName, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSaveStaffAvailabilityParams parses the arguments as SaveStaffAvailabilityParams.
func (fc *FunctionCall) ParseSaveStaffAvailabilityParams() (*SaveStaffAvailabilityParams, error) {
	var p SaveStaffAvailabilityParams
	if err := fc.parseParams(ToolSaveStaffAvailability, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseCompleteTutorialParams parses the arguments as CompleteTutorialParams.
func (fc *FunctionCall) ParseCompleteTutorialParams() (*CompleteTutorialParams, error) {
	var p CompleteTutorialParams
	if err := fc.parseParams(ToolCompleteTutorial, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSelectServiceParams parses the arguments as SelectServiceParams.
func (fc *FunctionCall) ParseSelectServiceParams() (*SelectServiceParams, error) {
	var p SelectServiceParams
	if err := fc.parseParams(ToolSelectService, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseQueryAvailabilityParams parses the arguments as QueryAvailabilityParams.
func (fc *FunctionCall) ParseQueryAvailabilityParams() (*QueryAvailabilityParams, error) {
	var p QueryAvailabilityParams
	if err := fc.parseParams(ToolQueryAvailability, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSelectSlotParams parses the arguments as SelectSlotParams.
func (fc *FunctionCall) ParseSelectSlotParams() (*SelectSlotParams, error) {
	var p SelectSlotParams
	if err := fc.parseParams(ToolSelectSlot, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSavePersonalInfoParams parses the arguments as SavePersonalInfoParams.
func (fc *FunctionCall) ParseSavePersonalInfoParams() (*SavePersonalInfoParams, error) {
	var p SavePersonalInfoParams
	if err := fc.parseParams(ToolSavePersonalInfo, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseConfirmBookingParams parses the arguments as ConfirmBookingParams.
func (fc *FunctionCall) ParseConfirmBookingParams() (*ConfirmBookingParams, error) {
	var p ConfirmBookingParams
	if err := fc.parseParams(ToolConfirmBooking, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseIdentifyBookingParams parses the arguments as IdentifyBookingParams.
func (fc *FunctionCall) ParseIdentifyBookingParams() (*IdentifyBookingParams, error) {
	var p IdentifyBookingParams
	if err := fc.parseParams(ToolIdentifyBooking, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSelectModificationParams parses the arguments as SelectModificationParams.
func (fc *FunctionCall) ParseSelectModificationParams() (*SelectModificationParams, error) {
	var p SelectModificationParams
	if err := fc.parseParams(ToolSelectModification, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSaveNewValueParams parses the arguments as SaveNewValueParams.
func (fc *FunctionCall) ParseSaveNewValueParams() (*SaveNewValueParams, error) {
	var p SaveNewValueParams
	if err := fc.parseParams(ToolSaveNewValue, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseConfirmCancellationParams parses the arguments as ConfirmCancellationParams.
func (fc *FunctionCall) ParseConfirmCancellationParams() (*ConfirmCancellationParams, error) {
	var p ConfirmCancellationParams
	if err := fc.parseParams(ToolConfirmCancellation, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseManagementActionParams parses the arguments as ManagementActionParams.
func (fc *FunctionCall) ParseManagementActionParams() (*ManagementActionParams, error) {
	var p ManagementActionParams
	if err := fc.parseParams(ToolManagementAction, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
