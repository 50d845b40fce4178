package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"
	"golang.org/x/time/rate"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/whatsapp"
)

const (
	// DefaultChannelBufferSize is the buffer size for the inbound channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout is how long to wait when the inbound channel is full.
	DefaultChannelTimeout = 1 * time.Second

	// Per-sender inbound rate limit. A burst of senderBurst messages is
	// accepted, then one message per senderRate.
	senderRate  = 2 * time.Second
	senderBurst = 5
)

// WhatsAppService adapts the WhatsApp client to the Service interface.
type WhatsAppService struct {
	client   *whatsapp.Client
	messages chan models.InboundMessage

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	stopOnce sync.Once
}

// NewWhatsAppService creates a messaging service over a connected WhatsApp client.
func NewWhatsAppService(client *whatsapp.Client) *WhatsAppService {
	return &WhatsAppService{
		client:   client,
		messages: make(chan models.InboundMessage, DefaultChannelBufferSize),
		limiters: make(map[string]*rate.Limiter),
	}
}

// ValidateAndCanonicalizeRecipient validates a phone number for WhatsApp delivery.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendMessage sends a WhatsApp message to the given recipient.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	return s.client.SendMessage(ctx, canonical, body)
}

// Start registers the event handler for incoming WhatsApp events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	waClient := s.client.GetClient()
	if waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	waClient.AddEventHandler(func(evt interface{}) {
		s.handleEvent(ctx, evt)
	})
	slog.Info("WhatsAppService started", "receivingNumber", s.client.OwnNumber())
	return nil
}

// Stop disconnects the client and closes the inbound channel.
func (s *WhatsAppService) Stop() error {
	s.stopOnce.Do(func() {
		s.client.Disconnect()
		close(s.messages)
	})
	return nil
}

// Messages returns the inbound message channel.
func (s *WhatsAppService) Messages() <-chan models.InboundMessage {
	return s.messages
}

func (s *WhatsAppService) handleEvent(ctx context.Context, evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(ctx, v)
	case *events.Receipt:
		slog.Debug("WhatsAppService receipt", "type", v.Type, "from", v.SourceString())
	}
}

// handleIncomingMessage extracts the text from a message event and pushes it
// onto the inbound channel. Non-text messages are skipped.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	var text string
	if evt.Message.GetConversation() != "" {
		text = evt.Message.GetConversation()
	} else if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
		text = ext.GetText()
	}
	if text == "" {
		slog.Debug("WhatsAppService skipping non-text message", "from", evt.Info.Sender.User)
		return
	}

	sender := "+" + evt.Info.Sender.User
	if !s.limiter(sender).Allow() {
		slog.Warn("WhatsAppService dropping message, sender rate limited", "from", sender)
		return
	}

	msg := models.InboundMessage{
		MessageID:       evt.Info.ID,
		SenderPhone:     sender,
		ReceivingNumber: s.client.OwnNumber(),
		Body:            text,
		Timestamp:       evt.Info.Timestamp,
	}

	select {
	case s.messages <- msg:
		slog.Debug("WhatsAppService queued inbound message", "messageID", msg.MessageID, "from", msg.SenderPhone)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService inbound channel full, dropping message", "messageID", msg.MessageID)
	case <-ctx.Done():
	}
}

// limiter returns the rate limiter for a sender, creating it on first use.
func (s *WhatsAppService) limiter(sender string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[sender]
	if !ok {
		lim = rate.NewLimiter(rate.Every(senderRate), senderBurst)
		s.limiters[sender] = lim
	}
	return lim
}
