package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/turnero/turnero/internal/i18n"
	"github.com/turnero/turnero/internal/identity"
	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/store"
)

// Dispatcher runs the selected conversation flow for one inbound message and
// returns the reply text, or "" for no reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, flowType models.FlowType, businessID string, ident models.Identity, msg models.InboundMessage) (string, error)
}

// Sender delivers reply text to a phone number.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// Router is the inbound message pipeline: validate, dedup, resolve identity,
// decide the flow, run it under the session lock, send the reply.
type Router struct {
	store      store.Store
	dedup      store.DedupRepo
	resolver   *identity.Resolver
	dispatcher Dispatcher
	sender     Sender
	locks      *SessionLocks
}

// NewRouter wires the inbound pipeline.
func NewRouter(st store.Store, dedup store.DedupRepo, resolver *identity.Resolver, dispatcher Dispatcher, sender Sender) *Router {
	return &Router{
		store:      st,
		dedup:      dedup,
		resolver:   resolver,
		dispatcher: dispatcher,
		sender:     sender,
		locks:      NewSessionLocks(),
	}
}

// Locks exposes the session lock set so the sweeper can coordinate with
// in-flight message handling.
func (r *Router) Locks() *SessionLocks {
	return r.locks
}

// HandleInbound processes one inbound message end to end. Deliveries already
// processed to completion are dropped before any state is touched; a
// redelivery of a message whose earlier turn aborted before MarkProcessed
// runs again. Identity lookup failures abort processing without a reply.
func (r *Router) HandleInbound(ctx context.Context, msg models.InboundMessage) error {
	if err := msg.Validate(); err != nil {
		slog.Warn("Router HandleInbound rejected invalid message", "error", err, "messageID", msg.MessageID)
		return err
	}

	first, err := r.dedup.RecordInbound(msg.MessageID, msg.SenderPhone, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record inbound message: %w", err)
	}
	if !first {
		slog.Info("Router HandleInbound dropped already-processed delivery", "messageID", msg.MessageID, "senderPhone", msg.SenderPhone)
		return nil
	}

	ident, err := r.resolver.Resolve(ctx, msg.SenderPhone, msg.ReceivingNumber)
	if err != nil {
		return fmt.Errorf("aborting message %s: %w", msg.MessageID, err)
	}

	priorSessions, err := r.store.ListSessionsByPhone(msg.SenderPhone)
	if err != nil {
		return fmt.Errorf("aborting message %s: failed to load sessions: %w", msg.MessageID, err)
	}

	numberType := r.resolver.NumberType(msg.ReceivingNumber)
	dec := Decide(ident, numberType, priorSessions)
	slog.Debug("Router HandleInbound decided flow", "messageID", msg.MessageID, "target", dec.Target,
		"businessID", dec.BusinessID, "identity", ident.Kind, "numberType", numberType)

	switch dec.Target {
	case TargetNone:
		slog.Warn("Router HandleInbound dropping unroutable message",
			"messageID", msg.MessageID, "receivingNumber", msg.ReceivingNumber)
		return r.dedup.MarkProcessed(msg.MessageID)
	case TargetRedirect:
		body := i18n.T(i18n.DefaultLocale, i18n.MsgRedirectMultiBusiness)
		if err := r.sender.SendMessage(ctx, msg.SenderPhone, body); err != nil {
			return fmt.Errorf("failed to send redirect message: %w", err)
		}
		return r.dedup.MarkProcessed(msg.MessageID)
	}

	key := models.SessionKey(dec.BusinessID, msg.SenderPhone, dec.FlowType())
	unlock := r.locks.Lock(key)
	defer unlock()

	started := time.Now()
	reply, err := r.dispatcher.Dispatch(ctx, dec.FlowType(), dec.BusinessID, ident, msg)
	if err != nil {
		slog.Error("Router HandleInbound flow dispatch failed", "error", err,
			"messageID", msg.MessageID, "flowType", dec.FlowType())
		reply = i18n.T(i18n.DefaultLocale, i18n.MsgGenericError)
	}
	slog.Debug("Router HandleInbound flow completed", "messageID", msg.MessageID,
		"flowType", dec.FlowType(), "durationMs", time.Since(started).Milliseconds())

	if reply != "" {
		if sendErr := r.sender.SendMessage(ctx, msg.SenderPhone, reply); sendErr != nil {
			return fmt.Errorf("failed to send reply: %w", sendErr)
		}
	}
	if markErr := r.dedup.MarkProcessed(msg.MessageID); markErr != nil {
		slog.Error("Router HandleInbound failed to mark processed", "error", markErr, "messageID", msg.MessageID)
	}
	return err
}
