package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/turnero/turnero/internal/models"
)

// TwilioService implements the Service interface over the Twilio WhatsApp
// Business API. Outbound goes through the REST API; inbound arrives on a
// webhook, which carries the receiving number in the To field, so one
// TwilioService can front every business number on the account.
type TwilioService struct {
	client   *twilio.RestClient
	from     string // default sender, "whatsapp:+1234567890" format
	messages chan models.InboundMessage

	mu      sync.RWMutex
	stopped bool
}

// NewTwilioService creates a TwilioService. accountSID and authToken are the
// Twilio credentials; from is the default outbound WhatsApp number.
func NewTwilioService(accountSID, authToken, from string) (*TwilioService, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if from == "" {
		return nil, fmt.Errorf("from number must be provided")
	}
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioService{
		client:   client,
		from:     from,
		messages: make(chan models.InboundMessage, DefaultChannelBufferSize),
	}, nil
}

// ValidateAndCanonicalizeRecipient validates a phone number for Twilio delivery.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendMessage sends a WhatsApp message via the Twilio REST API.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return fmt.Errorf("twilio service stopped")
	}
	s.mu.RUnlock()

	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + canonical)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService SendMessage failed", "error", err, "to", canonical)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	slog.Debug("TwilioService message sent", "to", canonical)
	return nil
}

// Start is a no-op; inbound delivery happens through WebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the inbound channel.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.messages)
	return nil
}

// Messages returns the inbound message channel.
func (s *TwilioService) Messages() <-chan models.InboundMessage {
	return s.messages
}

// WebhookHandler accepts inbound Twilio webhook requests and pushes them onto
// the inbound channel. Mount it on the HTTP server Twilio is pointed at.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService failed to parse webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	to := strings.TrimPrefix(r.FormValue("To"), "whatsapp:")
	body := r.FormValue("Body")
	messageID := r.FormValue("MessageSid")

	if from == "" || to == "" || body == "" {
		slog.Warn("TwilioService webhook missing fields", "from", from, "to", to)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}

	msg := models.InboundMessage{
		MessageID:       messageID,
		SenderPhone:     from,
		ReceivingNumber: to,
		Body:            body,
		Timestamp:       time.Now().UTC(),
	}

	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound message, service stopped", "from", from)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	select {
	case s.messages <- msg:
		slog.Debug("TwilioService queued inbound message", "messageID", msg.MessageID, "from", msg.SenderPhone)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService inbound channel full, dropping message", "messageID", msg.MessageID)
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
