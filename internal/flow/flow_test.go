package flow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/turnero/turnero/internal/genai"
	"github.com/turnero/turnero/internal/i18n"
	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/testutil"
)

const (
	testOwnerPhone    = "+5491140001111"
	testStaffPhone    = "+5491150002222"
	testCustomerPhone = "+5491160003333"
)

// fakeLLM returns scripted responses. The last response repeats, which lets
// tests drive the tool loop into its round limit.
type fakeLLM struct {
	responses []*genai.ToolCallResponse
	calls     int
}

func (f *fakeLLM) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return f.next().Content, nil
}

func (f *fakeLLM) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	return f.next(), nil
}

func (f *fakeLLM) next() *genai.ToolCallResponse {
	f.calls++
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp
}

func toolCall(id string, name models.ToolName, args string) models.ToolCall {
	return models.ToolCall{
		ID:       id,
		Type:     "function",
		Function: models.FunctionCall{Name: string(name), Arguments: json.RawMessage(args)},
	}
}

func newTestSession(flowType models.FlowType, businessID, phone string) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:             "sess-1",
		BusinessID:     businessID,
		PhoneNumber:    phone,
		FlowType:       flowType,
		State:          models.StateInitiated,
		Payload:        map[models.DataKey]string{},
		Resumable:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
}

func newFlowContext(sess *models.Session, ident models.Identity, business *models.Business, phone string) *Context {
	return &Context{
		Session:  sess,
		Identity: ident,
		Business: business,
		Message:  models.InboundMessage{MessageID: "m1", SenderPhone: phone, Body: "hola", Timestamp: time.Now()},
		Locale:   i18n.DefaultLocale,
	}
}

func TestDispatchRunsToolAndPersists(t *testing.T) {
	st := testutil.NewFakeStore()
	llm := &fakeLLM{responses: []*genai.ToolCallResponse{
		{ToolCalls: []models.ToolCall{
			toolCall("c1", models.ToolSaveBusinessInfo, `{"name":"Peluquería Sur","timezone":"UTC"}`),
		}},
		{Content: "¡Perfecto! Ahora contame qué servicios ofrecés."},
	}}
	r := NewRegistry(st, llm)
	r.Register(NewBusinessOnboardingFlow(st))

	msg := models.InboundMessage{MessageID: "m1", SenderPhone: testOwnerPhone, Body: "Quiero registrar mi negocio"}
	reply, err := r.Dispatch(context.Background(), models.FlowTypeBusinessOnboarding, "", models.Identity{Kind: models.IdentityUnknown}, msg)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply != "¡Perfecto! Ahora contame qué servicios ofrecés." {
		t.Errorf("reply = %q", reply)
	}

	sess, err := st.GetSession("", testOwnerPhone, models.FlowTypeBusinessOnboarding)
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if sess.State != models.StateCollectingServices {
		t.Errorf("state = %s, want collecting_services", sess.State)
	}
	history, err := loadHistory(sess)
	if err != nil {
		t.Fatalf("loadHistory: %v", err)
	}
	if len(history.Messages) != 2 || history.Messages[0].Role != "user" || history.Messages[1].Role != "assistant" {
		t.Errorf("history = %+v", history.Messages)
	}
	if len(st.ToolCalls) != 1 || st.ToolCalls[0].ToolName != string(models.ToolSaveBusinessInfo) || !st.ToolCalls[0].Success {
		t.Errorf("tool call trace = %+v", st.ToolCalls)
	}
}

func TestDispatchUnknownFlow(t *testing.T) {
	r := NewRegistry(testutil.NewFakeStore(), &fakeLLM{})
	_, err := r.Dispatch(context.Background(), models.FlowTypeCustomer, "", models.Identity{}, models.InboundMessage{SenderPhone: testCustomerPhone})
	if err == nil {
		t.Error("expected error for unregistered flow")
	}
}

func TestDispatchToolLoopExceeded(t *testing.T) {
	st := testutil.NewFakeStore()
	// The LLM keeps proposing tools without ever producing reply text.
	llm := &fakeLLM{responses: []*genai.ToolCallResponse{
		{ToolCalls: []models.ToolCall{
			toolCall("c1", models.ToolSaveBusinessInfo, `{"name":"X","timezone":"UTC"}`),
		}},
	}}
	r := NewRegistry(st, llm)
	r.Register(NewBusinessOnboardingFlow(st))

	msg := models.InboundMessage{MessageID: "m1", SenderPhone: testOwnerPhone, Body: "hola"}
	_, err := r.Dispatch(context.Background(), models.FlowTypeBusinessOnboarding, "", models.Identity{}, msg)
	if err == nil {
		t.Fatal("expected tool loop error")
	}
	if llm.calls != maxToolRounds {
		t.Errorf("LLM calls = %d, want %d", llm.calls, maxToolRounds)
	}
	if len(st.Sessions) != 0 {
		t.Error("failed turn persisted the session")
	}
}

func TestDispatchEmptyCompletionFallsBack(t *testing.T) {
	st := testutil.NewFakeStore()
	llm := &fakeLLM{responses: []*genai.ToolCallResponse{{Content: ""}}}
	r := NewRegistry(st, llm)
	r.Register(NewBusinessOnboardingFlow(st))

	msg := models.InboundMessage{MessageID: "m1", SenderPhone: testOwnerPhone, Body: "hola"}
	reply, err := r.Dispatch(context.Background(), models.FlowTypeBusinessOnboarding, "", models.Identity{}, msg)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply != i18n.T(i18n.DefaultLocale, i18n.MsgGenericError) {
		t.Errorf("reply = %q, want generic error text", reply)
	}
}

func TestLoadOrCreateSessionResumesAbandoned(t *testing.T) {
	st := testutil.NewFakeStore()
	r := NewRegistry(st, &fakeLLM{})
	f := NewBusinessOnboardingFlow(st)

	sess := *newTestSession(models.FlowTypeBusinessOnboarding, "", testOwnerPhone)
	sess.State = models.StateAbandoned
	sess.Payload[models.DataKeyPriorState] = string(models.StateCollectingHours)
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	got, note, err := r.loadOrCreateSession(f, "", testOwnerPhone, i18n.LocaleES)
	if err != nil {
		t.Fatalf("loadOrCreateSession: %v", err)
	}
	if got.State != models.StateCollectingHours {
		t.Errorf("state = %s, want restored collecting_hours", got.State)
	}
	if note == "" {
		t.Error("expected a resume note for the LLM")
	}
	if got.Payload[models.DataKeyResumePrompted] != "1" {
		t.Error("resume_prompted not set")
	}
}

func TestLoadOrCreateSessionResumesOnlyOnce(t *testing.T) {
	st := testutil.NewFakeStore()
	r := NewRegistry(st, &fakeLLM{})
	f := NewBusinessOnboardingFlow(st)

	sess := *newTestSession(models.FlowTypeBusinessOnboarding, "", testOwnerPhone)
	sess.State = models.StateAbandoned
	sess.Payload[models.DataKeyPriorState] = string(models.StateCollectingHours)
	sess.Payload[models.DataKeyResumePrompted] = "1"
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	got, note, err := r.loadOrCreateSession(f, "", testOwnerPhone, i18n.LocaleES)
	if err != nil {
		t.Fatalf("loadOrCreateSession: %v", err)
	}
	if note != "" {
		t.Error("second resume offered another note")
	}
	if got.ID == sess.ID || got.State != f.InitialState() {
		t.Errorf("got ID %s state %s, want a fresh session", got.ID, got.State)
	}
}

func TestLoadOrCreateSessionClosesStaleInline(t *testing.T) {
	st := testutil.NewFakeStore()
	r := NewRegistry(st, &fakeLLM{})
	f := NewBusinessOnboardingFlow(st)

	sess := *newTestSession(models.FlowTypeBusinessOnboarding, "", testOwnerPhone)
	sess.State = models.StateCollectingServices
	sess.LastActivityAt = time.Now().UTC().Add(-2 * models.SessionTimeout)
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	got, _, err := r.loadOrCreateSession(f, "", testOwnerPhone, i18n.LocaleES)
	if err != nil {
		t.Fatalf("loadOrCreateSession: %v", err)
	}
	if got.ID == sess.ID || got.State != f.InitialState() {
		t.Errorf("got ID %s state %s, want a fresh session", got.ID, got.State)
	}
	stored, _ := st.GetSession("", testOwnerPhone, models.FlowTypeBusinessOnboarding)
	if stored == nil || stored.State != models.StateAbandoned {
		t.Fatalf("stale session not closed: %+v", stored)
	}
	if stored.Payload[models.DataKeyPriorState] != string(models.StateCollectingServices) {
		t.Errorf("prior_state = %q", stored.Payload[models.DataKeyPriorState])
	}
}
