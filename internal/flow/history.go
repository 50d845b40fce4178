package flow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"

	"github.com/turnero/turnero/internal/models"
)

// maxHistoryMessages caps how many exchanges are kept in the session payload
// and replayed to the LLM.
const maxHistoryMessages = 40

// ConversationMessage is one exchange in a session's conversation history.
type ConversationMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationHistory is the ordered message log stored in the session payload.
type ConversationHistory struct {
	Messages []ConversationMessage `json:"messages"`
}

// Append adds a message and trims the history to the retention cap.
func (h *ConversationHistory) Append(role, content string) {
	if content == "" {
		return
	}
	h.Messages = append(h.Messages, ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	if len(h.Messages) > maxHistoryMessages {
		h.Messages = h.Messages[len(h.Messages)-maxHistoryMessages:]
	}
}

// Last returns up to n most recent messages, oldest first.
func (h *ConversationHistory) Last(n int) []ConversationMessage {
	if n <= 0 || len(h.Messages) <= n {
		return h.Messages
	}
	return h.Messages[len(h.Messages)-n:]
}

// OpenAIMessages converts the history into chat completion params.
func (h *ConversationHistory) OpenAIMessages() []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, msg := range h.Messages {
		switch msg.Role {
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	return messages
}

// loadHistory decodes the conversation history from the session payload.
func loadHistory(sess *models.Session) (*ConversationHistory, error) {
	raw := sess.Payload[models.DataKeyConversationHistory]
	if raw == "" {
		return &ConversationHistory{}, nil
	}
	var h ConversationHistory
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("decode conversation history: %w", err)
	}
	return &h, nil
}

// saveHistory encodes the conversation history back into the session payload.
func saveHistory(sess *models.Session, h *ConversationHistory) error {
	b, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode conversation history: %w", err)
	}
	sess.Payload = ensurePayload(sess.Payload)
	sess.Payload[models.DataKeyConversationHistory] = string(b)
	return nil
}
