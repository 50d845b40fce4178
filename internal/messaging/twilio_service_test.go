package messaging

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/turnero/turnero/internal/models"
)

func newTestTwilioService() *TwilioService {
	return &TwilioService{messages: make(chan models.InboundMessage, 1)}
}

func postWebhook(t *testing.T, s *TwilioService, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.WebhookHandler(rec, req)
	return rec
}

func TestWebhookHandlerQueuesInbound(t *testing.T) {
	s := newTestTwilioService()
	rec := postWebhook(t, s, url.Values{
		"From":       {"whatsapp:+5491122223333"},
		"To":         {"whatsapp:+5491199998888"},
		"Body":       {"hola, quiero un turno"},
		"MessageSid": {"SM123"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	select {
	case msg := <-s.Messages():
		if msg.MessageID != "SM123" {
			t.Errorf("MessageID = %q, want SM123", msg.MessageID)
		}
		if msg.SenderPhone != "+5491122223333" {
			t.Errorf("SenderPhone = %q", msg.SenderPhone)
		}
		if msg.ReceivingNumber != "+5491199998888" {
			t.Errorf("ReceivingNumber = %q", msg.ReceivingNumber)
		}
		if msg.Body != "hola, quiero un turno" {
			t.Errorf("Body = %q", msg.Body)
		}
	default:
		t.Fatal("no message queued")
	}
}

func TestWebhookHandlerRejectsMissingFields(t *testing.T) {
	s := newTestTwilioService()
	rec := postWebhook(t, s, url.Values{
		"From": {"whatsapp:+5491122223333"},
		"Body": {"hola"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	select {
	case <-s.Messages():
		t.Error("message queued despite missing To field")
	default:
	}
}

func TestWebhookHandlerRejectsWhenStopped(t *testing.T) {
	s := newTestTwilioService()
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	rec := postWebhook(t, s, url.Values{
		"From":       {"whatsapp:+5491122223333"},
		"To":         {"whatsapp:+5491199998888"},
		"Body":       {"hola"},
		"MessageSid": {"SM1"},
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
