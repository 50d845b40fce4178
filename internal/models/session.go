// Package models defines session and flow state structures for Turnero.
package models

import "time"

// FlowType identifies which conversation state machine owns a session.
type FlowType string

const (
	// FlowTypeBusinessOnboarding sets up a new business from the central number.
	FlowTypeBusinessOnboarding FlowType = "business_onboarding"
	// FlowTypeStaffOnboarding walks a first-time staff member through setup.
	FlowTypeStaffOnboarding FlowType = "staff_onboarding"
	// FlowTypeCustomer covers end-customer booking, modification and
	// cancellation sub-flows.
	FlowTypeCustomer FlowType = "customer"
	// FlowTypeManagement is the per-turn business management dispatcher.
	FlowTypeManagement FlowType = "management"
)

// IsValidFlowType checks if the given flow type is supported.
func IsValidFlowType(ft FlowType) bool {
	switch ft {
	case FlowTypeBusinessOnboarding, FlowTypeStaffOnboarding, FlowTypeCustomer, FlowTypeManagement:
		return true
	default:
		return false
	}
}

// StateType is a flow-specific state enum value. Each flow defines its own
// state set; the generic session record stores whichever applies.
type StateType string

// Business onboarding states.
const (
	StateInitiated              StateType = "initiated"
	StateCollectingBusinessInfo StateType = "collecting_business_info"
	StateCollectingServices     StateType = "collecting_services"
	StateCollectingHours        StateType = "collecting_hours"
	StateCollectingStaff        StateType = "collecting_staff"
)

// Staff onboarding states.
const (
	StateCollectingName         StateType = "collecting_name"
	StateCollectingAvailability StateType = "collecting_availability"
	StateShowingTutorial        StateType = "showing_tutorial"
)

// Customer flow states. Sub-flows (booking, modify, cancel, rating) share the
// session table; the payload records which sub-flow is active.
const (
	StateCollectingService         StateType = "collecting_service"
	StateCollectingDatetime        StateType = "collecting_datetime"
	StateCollectingStaffPreference StateType = "collecting_staff_preference"
	StateCollectingPersonalInfo    StateType = "collecting_personal_info"
	StateConfirmingSummary         StateType = "confirming_summary"
	StateConfirmed                 StateType = "confirmed"
	StateIdentifyingBooking        StateType = "identifying_booking"
	StateSelectingModification     StateType = "selecting_modification"
	StateCollectingNewValue        StateType = "collecting_new_value"
	StateConfirmingCancellation    StateType = "confirming_cancellation"
)

// Terminal and shared states. StateCompleted ends both onboarding flows.
const (
	StateCompleted StateType = "completed"
	StateCancelled StateType = "cancelled"
	StateAbandoned StateType = "abandoned"
)

// CustomerIntent names the active customer sub-flow.
type CustomerIntent string

const (
	IntentBooking CustomerIntent = "booking"
	IntentModify  CustomerIntent = "modify"
	IntentCancel  CustomerIntent = "cancel"
	IntentRating  CustomerIntent = "rating"
)

// IsTerminalState reports whether a state ends its session. Terminal sessions
// are never resumed; the routing layer creates a fresh one instead.
func IsTerminalState(s StateType) bool {
	switch s {
	case StateCompleted, StateConfirmed, StateCancelled, StateAbandoned:
		return true
	default:
		return false
	}
}

// SessionTimeout is how long a non-terminal session may sit idle before the
// sweeper marks it abandoned.
const SessionTimeout = 30 * time.Minute

// DataKey names a value in a session's scratch payload.
type DataKey string

const (
	DataKeyIntent              DataKey = "intent"
	DataKeyLocale              DataKey = "locale"
	DataKeyConversationHistory DataKey = "conversation_history"
	DataKeyBusinessName        DataKey = "business_name"
	DataKeyTimezone            DataKey = "timezone"
	DataKeyServices            DataKey = "services"
	DataKeyHours               DataKey = "hours"
	DataKeyStaff               DataKey = "staff"
	DataKeyStaffName           DataKey = "staff_name"
	DataKeyServiceID           DataKey = "service_id"
	DataKeyStaffID             DataKey = "staff_id"
	DataKeySpotID              DataKey = "spot_id"
	DataKeySlotStart           DataKey = "slot_start"
	DataKeyCustomerName        DataKey = "customer_name"
	DataKeyAppointmentID       DataKey = "appointment_id"
	DataKeyModificationField   DataKey = "modification_field"
	DataKeyFinalized           DataKey = "finalized"
	DataKeyResumePrompted      DataKey = "resume_prompted"
	// DataKeyPriorState remembers the state a session was in when the sweeper
	// marked it abandoned, so a late-returning user can pick up where they left.
	DataKeyPriorState DataKey = "prior_state"
)

// Session is the generic conversation session record shared by all flows.
// It is keyed by (BusinessID, PhoneNumber, FlowType); BusinessID is empty for
// business onboarding sessions, where no business exists yet.
type Session struct {
	ID             string             `json:"id"`
	BusinessID     string             `json:"business_id"`
	PhoneNumber    string             `json:"phone_number"`
	FlowType       FlowType           `json:"flow_type"`
	State          StateType          `json:"state"`
	Payload        map[DataKey]string `json:"payload,omitempty"`
	Resumable      bool               `json:"resumable"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	LastActivityAt time.Time          `json:"last_activity_at"`
}

// Key returns the serialization key used for per-session locking.
func (s *Session) Key() string {
	return s.BusinessID + "|" + s.PhoneNumber + "|" + string(s.FlowType)
}

// SessionKey builds the same lock key without a loaded session.
func SessionKey(businessID, phoneNumber string, flowType FlowType) string {
	return businessID + "|" + phoneNumber + "|" + string(flowType)
}

// Terminal reports whether the session has reached a terminal state.
func (s *Session) Terminal() bool {
	return IsTerminalState(s.State)
}

// Stale reports whether the session has been idle longer than the timeout.
func (s *Session) Stale(now time.Time) bool {
	return !s.Terminal() && now.Sub(s.LastActivityAt) > SessionTimeout
}

// ToolCallRecord is one entry in the per-session tool execution trace, kept
// for operator debugging and the admin read API.
type ToolCallRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	PhoneNumber string    `json:"phone_number"`
	ToolName    string    `json:"tool_name"`
	Arguments   string    `json:"arguments"`
	Result      string    `json:"result"`
	Success     bool      `json:"success"`
	CreatedAt   time.Time `json:"created_at"`
}
