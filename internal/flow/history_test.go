package flow

import (
	"fmt"
	"testing"

	"github.com/turnero/turnero/internal/models"
)

func TestHistoryAppendTrims(t *testing.T) {
	var h ConversationHistory
	for i := 0; i < maxHistoryMessages+5; i++ {
		h.Append("user", fmt.Sprintf("msg %d", i))
	}
	if len(h.Messages) != maxHistoryMessages {
		t.Fatalf("len = %d, want %d", len(h.Messages), maxHistoryMessages)
	}
	if h.Messages[0].Content != "msg 5" {
		t.Errorf("oldest retained = %q, want msg 5", h.Messages[0].Content)
	}
}

func TestHistoryAppendSkipsEmpty(t *testing.T) {
	var h ConversationHistory
	h.Append("assistant", "")
	if len(h.Messages) != 0 {
		t.Error("empty message appended")
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	sess := newTestSession(models.FlowTypeCustomer, "biz-1", testCustomerPhone)
	h := &ConversationHistory{}
	h.Append("user", "hola")
	h.Append("assistant", "¡Hola! ¿Qué servicio querés?")
	if err := saveHistory(sess, h); err != nil {
		t.Fatalf("saveHistory: %v", err)
	}

	got, err := loadHistory(sess)
	if err != nil {
		t.Fatalf("loadHistory: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "¡Hola! ¿Qué servicio querés?" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestLoadHistoryUnreadable(t *testing.T) {
	sess := newTestSession(models.FlowTypeCustomer, "biz-1", testCustomerPhone)
	sess.Payload[models.DataKeyConversationHistory] = "{not json"
	if _, err := loadHistory(sess); err == nil {
		t.Error("corrupt history decoded without error")
	}
}
