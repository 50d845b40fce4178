// Package messaging abstracts the message transports Turnero speaks through.
//
// A Service delivers outbound replies and surfaces inbound messages on a
// channel. The router consumes that channel; it never touches the transport
// directly, so WhatsApp and Twilio implementations are interchangeable.
package messaging

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/turnero/turnero/internal/models"
)

// phoneRegex matches E.164 phone numbers.
var phoneRegex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// Service defines a message transport.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a recipient phone number and
	// returns the canonical E.164 form used throughout the system.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to the given recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins listening for inbound messages.
	Start(ctx context.Context) error

	// Stop stops the transport and closes the inbound channel.
	Stop() error

	// Messages returns the channel inbound messages are delivered on.
	Messages() <-chan models.InboundMessage
}

// CanonicalizePhone validates and canonicalizes a phone number to E.164.
// Accepts numbers with or without the leading plus and strips separators.
func CanonicalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	if cleaned == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	if !strings.HasPrefix(cleaned, "+") {
		cleaned = "+" + cleaned
	}
	if !phoneRegex.MatchString(cleaned) {
		return "", fmt.Errorf("invalid phone number: %s", phone)
	}
	return cleaned, nil
}
