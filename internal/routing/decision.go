// Package routing maps inbound messages to conversation flows.
package routing

import (
	"github.com/turnero/turnero/internal/models"
)

// FlowTarget is the outcome of the routing decision tree.
type FlowTarget string

const (
	// TargetBusinessOnboarding starts or resumes business setup.
	TargetBusinessOnboarding FlowTarget = "business_onboarding"
	// TargetStaffOnboarding starts or resumes a staff member's first-contact setup.
	TargetStaffOnboarding FlowTarget = "staff_onboarding"
	// TargetBusinessManagement enters the staff management flow.
	TargetBusinessManagement FlowTarget = "business_management"
	// TargetCustomer enters the end-customer flow.
	TargetCustomer FlowTarget = "customer"
	// TargetRedirect sends a fixed redirect message and opens no session.
	TargetRedirect FlowTarget = "redirect"
	// TargetNone drops the message without a reply.
	TargetNone FlowTarget = "none"
)

// Decision is the routing outcome. BusinessID is set for targets scoped to a
// single business and empty otherwise.
type Decision struct {
	Target     FlowTarget
	BusinessID string
}

// FlowType returns the session flow type backing the target, or "" for
// targets that open no session.
func (d Decision) FlowType() models.FlowType {
	switch d.Target {
	case TargetBusinessOnboarding:
		return models.FlowTypeBusinessOnboarding
	case TargetStaffOnboarding:
		return models.FlowTypeStaffOnboarding
	case TargetBusinessManagement:
		return models.FlowTypeManagement
	case TargetCustomer:
		return models.FlowTypeCustomer
	default:
		return ""
	}
}

// Decide maps (identity, receiving-number type, prior sessions) to a flow
// target. Cases are evaluated in precedence order; first match wins.
//
// On the central number a sender staffed at several businesses always gets a
// redirect, never an auto-selected business, and the first-message staff
// onboarding gate never fires there: onboarding needs an unambiguous
// receiving business.
//
// priorSessions are the sender's existing sessions, used for one guard: a
// completed onboarding session must never be resumed as onboarding, so its
// presence reroutes to Business Management.
func Decide(ident models.Identity, numberType models.NumberType, priorSessions []models.Session) Decision {
	if numberType == models.NumberTypeCentral {
		switch ident.Kind {
		case models.IdentityStaffOfOne:
			return Decision{Target: TargetBusinessManagement, BusinessID: ident.BusinessID}
		case models.IdentityStaffOfMany:
			return Decision{Target: TargetRedirect}
		case models.IdentityOther, models.IdentityUnknown:
			if id, ok := completedOnboarding(priorSessions, models.FlowTypeBusinessOnboarding, ""); ok {
				return Decision{Target: TargetBusinessManagement, BusinessID: id}
			}
			return Decision{Target: TargetBusinessOnboarding}
		}
		return Decision{Target: TargetNone}
	}

	switch ident.Kind {
	case models.IdentityKnownStaff:
		if !ident.Staff.Onboarded() {
			if _, ok := completedOnboarding(priorSessions, models.FlowTypeStaffOnboarding, ident.BusinessID); ok {
				return Decision{Target: TargetBusinessManagement, BusinessID: ident.BusinessID}
			}
			return Decision{Target: TargetStaffOnboarding, BusinessID: ident.BusinessID}
		}
		return Decision{Target: TargetBusinessManagement, BusinessID: ident.BusinessID}
	case models.IdentityOther:
		return Decision{Target: TargetCustomer, BusinessID: ident.BusinessID}
	default:
		// Unknown receiving number or unresolvable identity.
		return Decision{Target: TargetNone}
	}
}

// completedOnboarding reports whether a completed onboarding session matching
// the flow type (and business, when given) exists, returning its business ID.
func completedOnboarding(sessions []models.Session, flowType models.FlowType, businessID string) (string, bool) {
	for _, s := range sessions {
		if s.FlowType != flowType || s.State != models.StateCompleted {
			continue
		}
		if businessID != "" && s.BusinessID != businessID {
			continue
		}
		return s.BusinessID, true
	}
	return "", false
}
