package flow

import (
	"context"
	"testing"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/testutil"
)

func TestBusinessOnboardingProgression(t *testing.T) {
	st := testutil.NewFakeStore()
	f := NewBusinessOnboardingFlow(st)
	fc := newFlowContext(newTestSession(models.FlowTypeBusinessOnboarding, "", testOwnerPhone),
		models.Identity{Kind: models.IdentityUnknown}, nil, testOwnerPhone)
	ctx := context.Background()

	res := f.ExecuteTool(ctx, fc, toolCall("c1", models.ToolSaveBusinessInfo,
		`{"name":"Peluquería Sur","timezone":"America/Argentina/Buenos_Aires"}`))
	if !res.Success {
		t.Fatalf("save_business_info: %s", res.Error)
	}
	if fc.Session.State != models.StateCollectingServices {
		t.Fatalf("state = %s, want collecting_services", fc.Session.State)
	}

	res = f.ExecuteTool(ctx, fc, toolCall("c2", models.ToolSaveServices,
		`{"services":[{"name":"Corte","duration_min":30},{"name":"Color","duration_min":90,"price_cents":1500000}]}`))
	if !res.Success {
		t.Fatalf("save_services: %s", res.Error)
	}
	if fc.Session.State != models.StateCollectingHours {
		t.Fatalf("state = %s, want collecting_hours", fc.Session.State)
	}

	res = f.ExecuteTool(ctx, fc, toolCall("c3", models.ToolSaveHours,
		`{"hours":[{"day_of_week":1,"start_time":"09:00","end_time":"18:00"},{"day_of_week":2,"start_time":"09:00","end_time":"18:00"}]}`))
	if !res.Success {
		t.Fatalf("save_hours: %s", res.Error)
	}
	if fc.Session.State != models.StateCollectingStaff {
		t.Fatalf("state = %s, want collecting_staff", fc.Session.State)
	}

	res = f.ExecuteTool(ctx, fc, toolCall("c4", models.ToolSaveStaff,
		`{"staff":[{"name":"Lucía","phone_number":"+5491150002222"}]}`))
	if !res.Success {
		t.Fatalf("save_staff: %s", res.Error)
	}
	if fc.Session.State != models.StateCollectingStaff {
		t.Errorf("save_staff moved state to %s", fc.Session.State)
	}

	res = f.ExecuteTool(ctx, fc, toolCall("c5", models.ToolFinalizeBusiness, `{}`))
	if !res.Success {
		t.Fatalf("finalize_business: %s", res.Error)
	}
	if fc.Session.State != models.StateCompleted {
		t.Errorf("state = %s, want completed", fc.Session.State)
	}

	bizID := fc.Session.Payload[models.DataKeyFinalized]
	if bizID == "" {
		t.Fatal("finalized business id not recorded")
	}
	business, err := st.GetBusiness(bizID)
	if err != nil || business == nil {
		t.Fatalf("business not created: %v", err)
	}
	if business.OwnerPhone != testOwnerPhone || business.Locale != "es" {
		t.Errorf("business = %+v", business)
	}

	services, _ := st.ListServices(bizID)
	if len(services) != 2 {
		t.Errorf("got %d services, want 2", len(services))
	}
	staff, _ := st.ListStaff(bizID)
	if len(staff) != 2 {
		t.Fatalf("got %d staff, want owner plus one", len(staff))
	}
	var ownerFound bool
	for _, s := range staff {
		if s.PhoneNumber == testOwnerPhone {
			ownerFound = true
			if s.PermissionLevel != models.PermissionOwner {
				t.Errorf("owner permission = %s", s.PermissionLevel)
			}
		}
		rules, _ := st.ListAvailabilityRules(s.ID)
		if len(rules) != 2 {
			t.Errorf("staff %s has %d rules, want one per hours entry", s.ID, len(rules))
		}
	}
	if !ownerFound {
		t.Error("owner staff record missing")
	}
}

func TestBusinessOnboardingFinalizeRejectsIncomplete(t *testing.T) {
	st := testutil.NewFakeStore()
	f := NewBusinessOnboardingFlow(st)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload map[models.DataKey]string
	}{
		{"nothing collected", map[models.DataKey]string{}},
		{"missing services", map[models.DataKey]string{
			models.DataKeyBusinessName: "X",
			models.DataKeyTimezone:     "UTC",
			models.DataKeyHours:        `[{"day_of_week":1,"start_time":"09:00","end_time":"18:00"}]`,
		}},
		{"missing hours", map[models.DataKey]string{
			models.DataKeyBusinessName: "X",
			models.DataKeyTimezone:     "UTC",
			models.DataKeyServices:     `[{"name":"Corte","duration_min":30}]`,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFlowContext(newTestSession(models.FlowTypeBusinessOnboarding, "", testOwnerPhone),
				models.Identity{}, nil, testOwnerPhone)
			fc.Session.Payload = tt.payload
			res := f.ExecuteTool(ctx, fc, toolCall("c1", models.ToolFinalizeBusiness, `{}`))
			if res.Success {
				t.Error("finalize accepted incomplete data")
			}
			if len(st.Businesses) != 0 {
				t.Error("business created from incomplete data")
			}
		})
	}
}

func TestBusinessOnboardingFinalizeIdempotent(t *testing.T) {
	st := testutil.NewFakeStore()
	f := NewBusinessOnboardingFlow(st)
	fc := newFlowContext(newTestSession(models.FlowTypeBusinessOnboarding, "", testOwnerPhone),
		models.Identity{}, nil, testOwnerPhone)
	fc.Session.Payload[models.DataKeyBusinessName] = "Barbería Norte"
	fc.Session.Payload[models.DataKeyTimezone] = "UTC"
	fc.Session.Payload[models.DataKeyServices] = `[{"name":"Corte","duration_min":30}]`
	fc.Session.Payload[models.DataKeyHours] = `[{"day_of_week":1,"start_time":"09:00","end_time":"18:00"}]`
	ctx := context.Background()

	if res := f.ExecuteTool(ctx, fc, toolCall("c1", models.ToolFinalizeBusiness, `{}`)); !res.Success {
		t.Fatalf("first finalize: %s", res.Error)
	}
	bizID := fc.Session.Payload[models.DataKeyFinalized]

	// A retried confirmation reuses the fixed business id instead of creating
	// a second business.
	if res := f.ExecuteTool(ctx, fc, toolCall("c2", models.ToolFinalizeBusiness, `{}`)); !res.Success {
		t.Fatalf("retried finalize: %s", res.Error)
	}
	if got := fc.Session.Payload[models.DataKeyFinalized]; got != bizID {
		t.Errorf("business id changed on retry: %s != %s", got, bizID)
	}
	if len(st.Businesses) != 1 {
		t.Errorf("got %d businesses, want 1", len(st.Businesses))
	}
}

func TestBusinessOnboardingRejectsUnknownTool(t *testing.T) {
	f := NewBusinessOnboardingFlow(testutil.NewFakeStore())
	fc := newFlowContext(newTestSession(models.FlowTypeBusinessOnboarding, "", testOwnerPhone),
		models.Identity{}, nil, testOwnerPhone)
	res := f.ExecuteTool(context.Background(), fc, toolCall("c1", models.ToolConfirmBooking, `{}`))
	if res.Success {
		t.Error("unrelated tool executed")
	}
}
