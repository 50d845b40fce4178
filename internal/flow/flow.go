// Package flow implements the conversation state machines: business
// onboarding, staff onboarding, the end-customer flow and business
// management. Each flow owns a state set, per-state tool availability and a
// deterministic transition function driven by executed tool results.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/patrickmn/go-cache"

	"github.com/turnero/turnero/internal/genai"
	"github.com/turnero/turnero/internal/i18n"
	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/store"
)

// maxToolRounds bounds the LLM tool loop per inbound message.
const maxToolRounds = 5

// Sender delivers out-of-band notifications (e.g. telling a business owner
// that a staff member finished onboarding).
type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// Context carries everything one turn of a flow needs. ExecuteTool
// implementations mutate Session (state and payload) in place; the engine
// persists it after the turn.
type Context struct {
	Session  *models.Session
	Identity models.Identity
	Business *models.Business
	Message  models.InboundMessage
	Locale   i18n.Locale
}

// Flow is one conversation state machine.
type Flow interface {
	Type() models.FlowType
	InitialState() models.StateType
	// Tools returns the tool set offered to the LLM in the given state,
	// already filtered by the sender's permissions.
	Tools(fc *Context) []openai.ChatCompletionToolParam
	// SystemPrompt builds the state-specific instructions for the LLM.
	SystemPrompt(ctx context.Context, fc *Context) (string, error)
	// ExecuteTool runs one proposed tool call. Errors leave the session in
	// its pre-call state; transitions only happen on success.
	ExecuteTool(ctx context.Context, fc *Context, call models.ToolCall) *models.ToolResult
}

// Registry holds the flows and runs the per-turn engine. It implements the
// router's Dispatcher contract.
type Registry struct {
	store         store.Store
	genaiClient   genai.ClientInterface
	flows         map[models.FlowType]Flow
	businessCache *cache.Cache
}

// NewRegistry wires the flow engine. Flows are registered by the caller so
// tests can install fakes.
func NewRegistry(st store.Store, client genai.ClientInterface) *Registry {
	return &Registry{
		store:         st,
		genaiClient:   client,
		flows:         make(map[models.FlowType]Flow),
		businessCache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// Register installs a flow.
func (r *Registry) Register(f Flow) {
	r.flows[f.Type()] = f
}

// business loads a business profile, caching it briefly. Appointment state is
// never cached; only the slow-changing profile (name, timezone, locale).
func (r *Registry) business(businessID string) (*models.Business, error) {
	if businessID == "" {
		return nil, nil
	}
	if cached, ok := r.businessCache.Get(businessID); ok {
		return cached.(*models.Business), nil
	}
	b, err := r.store.GetBusiness(businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to load business %s: %w", businessID, err)
	}
	if b != nil {
		r.businessCache.Set(businessID, b, cache.DefaultExpiration)
	}
	return b, nil
}

// Dispatch runs one inbound message through the selected flow: load or create
// the session, run the bounded tool loop, persist the updated session and
// return the reply text.
func (r *Registry) Dispatch(ctx context.Context, flowType models.FlowType, businessID string, ident models.Identity, msg models.InboundMessage) (string, error) {
	f, ok := r.flows[flowType]
	if !ok {
		return "", fmt.Errorf("no flow registered for type %s", flowType)
	}

	business, err := r.business(businessID)
	if err != nil {
		return "", err
	}
	locale := i18n.DefaultLocale
	if business != nil {
		locale = i18n.Normalize(business.Locale)
	}

	sess, note, err := r.loadOrCreateSession(f, businessID, msg.SenderPhone, locale)
	if err != nil {
		return "", err
	}

	fc := &Context{
		Session:  sess,
		Identity: ident,
		Business: business,
		Message:  msg,
		Locale:   locale,
	}

	history, err := loadHistory(sess)
	if err != nil {
		slog.Warn("Registry Dispatch resetting unreadable history", "error", err, "sessionID", sess.ID)
		history = &ConversationHistory{}
	}
	history.Append("user", msg.Body)

	reply, err := r.runToolLoop(ctx, f, fc, history, note)
	if err != nil {
		// The turn failed; keep the session untouched so a retry starts clean.
		return "", err
	}

	history.Append("assistant", reply)
	if err := saveHistory(sess, history); err != nil {
		slog.Error("Registry Dispatch failed to encode history", "error", err, "sessionID", sess.ID)
	}
	now := time.Now().UTC()
	sess.UpdatedAt = now
	sess.LastActivityAt = now
	if err := r.store.SaveSession(*sess); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return reply, nil
}

// loadOrCreateSession returns the active session for the key, creating a new
// one when none exists or the previous one is terminal. An abandoned but
// resumable session is restored to its prior state with a note instructing
// the LLM to offer continuation.
func (r *Registry) loadOrCreateSession(f Flow, businessID, phone string, locale i18n.Locale) (*models.Session, string, error) {
	sess, err := r.store.GetSession(businessID, phone, f.Type())
	if err != nil {
		return nil, "", fmt.Errorf("failed to load session: %w", err)
	}
	now := time.Now().UTC()

	if sess != nil && sess.State == models.StateAbandoned && sess.Resumable {
		prior := models.StateType(sess.Payload[models.DataKeyPriorState])
		if prior != "" && sess.Payload[models.DataKeyResumePrompted] == "" {
			sess.State = prior
			sess.Payload[models.DataKeyResumePrompted] = "1"
			slog.Info("Registry resuming abandoned session", "sessionID", sess.ID, "priorState", prior)
			note := "The user's previous conversation expired mid-way. Ask whether they want to continue where they left off or start over, then proceed accordingly."
			return sess, note, nil
		}
	}

	if sess != nil && sess.Stale(now) {
		// A late message beat the sweeper to a stale session. Close it out
		// and start fresh.
		sess.Payload = ensurePayload(sess.Payload)
		sess.Payload[models.DataKeyPriorState] = string(sess.State)
		sess.State = models.StateAbandoned
		if err := r.store.SaveSession(*sess); err != nil {
			return nil, "", fmt.Errorf("failed to close stale session: %w", err)
		}
		sess = nil
	}

	if sess == nil || sess.Terminal() {
		if sess != nil {
			if err := r.store.DeleteSession(sess.ID); err != nil {
				slog.Warn("Registry failed to delete terminal session", "error", err, "sessionID", sess.ID)
			}
		}
		fresh := &models.Session{
			ID:             uuid.NewString(),
			BusinessID:     businessID,
			PhoneNumber:    phone,
			FlowType:       f.Type(),
			State:          f.InitialState(),
			Payload:        map[models.DataKey]string{models.DataKeyLocale: string(locale)},
			Resumable:      true,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastActivityAt: now,
		}
		return fresh, "", nil
	}

	sess.Payload = ensurePayload(sess.Payload)
	return sess, "", nil
}

// runToolLoop drives the LLM until it produces reply text, executing proposed
// tool calls in between. The round count is bounded; exceeding it fails the
// turn rather than looping forever.
func (r *Registry) runToolLoop(ctx context.Context, f Flow, fc *Context, history *ConversationHistory, note string) (string, error) {
	systemPrompt, err := f.SystemPrompt(ctx, fc)
	if err != nil {
		return "", fmt.Errorf("failed to build system prompt: %w", err)
	}

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt)}
	if note != "" {
		messages = append(messages, openai.SystemMessage(note))
	}
	messages = append(messages, history.OpenAIMessages()...)

	for round := 1; round <= maxToolRounds; round++ {
		tools := f.Tools(fc)
		var resp *genai.ToolCallResponse
		if len(tools) > 0 {
			resp, err = r.genaiClient.GenerateWithTools(ctx, messages, tools)
		} else {
			var content string
			content, err = r.genaiClient.GenerateWithMessages(ctx, messages)
			resp = &genai.ToolCallResponse{Content: content}
		}
		if err != nil {
			return "", fmt.Errorf("LLM turn failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Content == "" {
				slog.Warn("Registry runToolLoop empty completion", "sessionID", fc.Session.ID, "round", round)
				return i18n.T(fc.Locale, i18n.MsgGenericError), nil
			}
			return resp.Content, nil
		}

		messages = append(messages, assistantToolCallMessage(resp))
		for _, call := range resp.ToolCalls {
			result := f.ExecuteTool(ctx, fc, call)
			r.recordToolCall(fc, call, result)
			messages = append(messages, openai.ToolMessage(encodeToolResult(result), call.ID))
		}

		// Tool execution may have advanced the state; refresh the
		// instructions so the next round sees the new step.
		systemPrompt, err = f.SystemPrompt(ctx, fc)
		if err != nil {
			return "", fmt.Errorf("failed to rebuild system prompt: %w", err)
		}
		messages[0] = openai.SystemMessage(systemPrompt)

		if resp.Content != "" {
			return resp.Content, nil
		}
	}

	slog.Error("Registry runToolLoop exceeded max tool rounds", "sessionID", fc.Session.ID, "maxRounds", maxToolRounds)
	return "", fmt.Errorf("tool loop exceeded %d rounds", maxToolRounds)
}

// recordToolCall appends the execution to the per-phone tool trace.
func (r *Registry) recordToolCall(fc *Context, call models.ToolCall, result *models.ToolResult) {
	rec := models.ToolCallRecord{
		ID:          uuid.NewString(),
		SessionID:   fc.Session.ID,
		PhoneNumber: fc.Message.SenderPhone,
		ToolName:    call.Function.Name,
		Arguments:   string(call.Function.Arguments),
		Result:      result.Message,
		Success:     result.Success,
		CreatedAt:   time.Now().UTC(),
	}
	if !result.Success {
		rec.Result = result.Error
	}
	if err := r.store.AddToolCallRecord(rec); err != nil {
		slog.Warn("Registry failed to record tool call", "error", err, "tool", rec.ToolName)
	}
}

// assistantToolCallMessage rebuilds the assistant turn that proposed the tool
// calls; the API requires it to precede the tool result messages.
func assistantToolCallMessage(resp *genai.ToolCallResponse) openai.ChatCompletionMessageParamUnion {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, call := range resp.ToolCalls {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   call.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Function.Name,
				Arguments: string(call.Function.Arguments),
			},
		})
	}
	assistant := openai.ChatCompletionAssistantMessageParam{
		Content: openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(resp.Content),
		},
		ToolCalls: toolCalls,
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// encodeToolResult renders a tool result as the JSON fed back to the LLM.
func encodeToolResult(result *models.ToolResult) string {
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(b)
}

func ensurePayload(p map[models.DataKey]string) map[models.DataKey]string {
	if p == nil {
		return make(map[models.DataKey]string)
	}
	return p
}
