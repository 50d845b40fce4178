package routing

import (
	"testing"
	"time"

	"github.com/turnero/turnero/internal/models"
)

func staffIdentity(kind models.IdentityKind, businessID string, onboarded bool) models.Identity {
	st := &models.StaffRecord{ID: "staff-1", BusinessID: businessID, PhoneNumber: "+5491100000001", IsActive: true}
	if onboarded {
		now := time.Now()
		st.FirstMessageAt = &now
	}
	return models.Identity{Kind: kind, BusinessID: businessID, Staff: st}
}

func TestDecideCentralNumber(t *testing.T) {
	tests := []struct {
		name       string
		ident      models.Identity
		sessions   []models.Session
		wantTarget FlowTarget
		wantBiz    string
	}{
		{
			name:       "staff of one goes to management",
			ident:      staffIdentity(models.IdentityStaffOfOne, "biz-1", true),
			wantTarget: TargetBusinessManagement,
			wantBiz:    "biz-1",
		},
		{
			name:       "staff of many gets redirect",
			ident:      models.Identity{Kind: models.IdentityStaffOfMany, BusinessIDs: []string{"biz-1", "biz-2"}},
			wantTarget: TargetRedirect,
		},
		{
			name:       "unknown sender starts business onboarding",
			ident:      models.Identity{Kind: models.IdentityOther},
			wantTarget: TargetBusinessOnboarding,
		},
		{
			name:  "completed business onboarding reroutes to management",
			ident: models.Identity{Kind: models.IdentityOther},
			sessions: []models.Session{
				{ID: "s1", BusinessID: "biz-9", PhoneNumber: "+549", FlowType: models.FlowTypeBusinessOnboarding, State: models.StateCompleted},
			},
			wantTarget: TargetBusinessManagement,
			wantBiz:    "biz-9",
		},
		{
			name:  "abandoned business onboarding still routes to onboarding",
			ident: models.Identity{Kind: models.IdentityOther},
			sessions: []models.Session{
				{ID: "s1", FlowType: models.FlowTypeBusinessOnboarding, State: models.StateAbandoned},
			},
			wantTarget: TargetBusinessOnboarding,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := Decide(tt.ident, models.NumberTypeCentral, tt.sessions)
			if dec.Target != tt.wantTarget {
				t.Errorf("Decide() target = %s, want %s", dec.Target, tt.wantTarget)
			}
			if dec.BusinessID != tt.wantBiz {
				t.Errorf("Decide() businessID = %s, want %s", dec.BusinessID, tt.wantBiz)
			}
		})
	}
}

func TestDecideBusinessNumber(t *testing.T) {
	tests := []struct {
		name       string
		ident      models.Identity
		sessions   []models.Session
		wantTarget FlowTarget
		wantBiz    string
	}{
		{
			name:       "onboarded staff goes to management",
			ident:      staffIdentity(models.IdentityKnownStaff, "biz-1", true),
			wantTarget: TargetBusinessManagement,
			wantBiz:    "biz-1",
		},
		{
			name:       "first-contact staff goes to staff onboarding",
			ident:      staffIdentity(models.IdentityKnownStaff, "biz-1", false),
			wantTarget: TargetStaffOnboarding,
			wantBiz:    "biz-1",
		},
		{
			name:  "completed staff onboarding reroutes to management",
			ident: staffIdentity(models.IdentityKnownStaff, "biz-1", false),
			sessions: []models.Session{
				{ID: "s1", BusinessID: "biz-1", FlowType: models.FlowTypeStaffOnboarding, State: models.StateCompleted},
			},
			wantTarget: TargetBusinessManagement,
			wantBiz:    "biz-1",
		},
		{
			name:  "completed staff onboarding at another business does not reroute",
			ident: staffIdentity(models.IdentityKnownStaff, "biz-1", false),
			sessions: []models.Session{
				{ID: "s1", BusinessID: "biz-2", FlowType: models.FlowTypeStaffOnboarding, State: models.StateCompleted},
			},
			wantTarget: TargetStaffOnboarding,
			wantBiz:    "biz-1",
		},
		{
			name:       "non-staff sender is a customer",
			ident:      models.Identity{Kind: models.IdentityOther, BusinessID: "biz-1"},
			wantTarget: TargetCustomer,
			wantBiz:    "biz-1",
		},
		{
			name:       "unknown receiving number drops",
			ident:      models.Identity{Kind: models.IdentityUnknown},
			wantTarget: TargetNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := Decide(tt.ident, models.NumberTypeBusiness, tt.sessions)
			if dec.Target != tt.wantTarget {
				t.Errorf("Decide() target = %s, want %s", dec.Target, tt.wantTarget)
			}
			if dec.BusinessID != tt.wantBiz {
				t.Errorf("Decide() businessID = %s, want %s", dec.BusinessID, tt.wantBiz)
			}
		})
	}
}

func TestDecisionFlowType(t *testing.T) {
	if got := (Decision{Target: TargetCustomer}).FlowType(); got != models.FlowTypeCustomer {
		t.Errorf("FlowType() = %s, want %s", got, models.FlowTypeCustomer)
	}
	if got := (Decision{Target: TargetRedirect}).FlowType(); got != "" {
		t.Errorf("FlowType() for redirect = %q, want empty", got)
	}
}
