// Package sweeper expires idle conversation sessions. It runs independently
// of message handling and shares the router's per-session locks so a sweep
// can never race a late-arriving message on the same session.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/routing"
	"github.com/turnero/turnero/internal/store"
)

// DefaultInterval is how often the sweep runs.
const DefaultInterval = 5 * time.Minute

// Sweeper periodically transitions stale non-terminal sessions to abandoned.
type Sweeper struct {
	store    store.Store
	locks    *routing.SessionLocks
	interval time.Duration
}

// New creates a Sweeper. locks must be the router's lock set.
func New(st store.Store, locks *routing.SessionLocks, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{store: st, locks: locks, interval: interval}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("Sweeper started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(time.Now().UTC())
		}
	}
}

// Sweep marks sessions idle past the timeout as abandoned. The prior state is
// kept in the payload so a returning user can be offered a resumption.
func (s *Sweeper) Sweep(now time.Time) {
	cutoff := now.Add(-models.SessionTimeout)
	sessions, err := s.store.ListStaleSessions(cutoff)
	if err != nil {
		slog.Error("Sweeper failed to list stale sessions", "error", err)
		return
	}
	swept := 0
	for _, sess := range sessions {
		if s.sweepOne(sess, now) {
			swept++
		}
	}
	if swept > 0 {
		slog.Info("Sweeper marked sessions abandoned", "count", swept, "cutoff", cutoff)
	}
}

// sweepOne abandons a single session under its lock, re-reading it first: a
// message may have revived it between the listing and the lock.
func (s *Sweeper) sweepOne(sess models.Session, now time.Time) bool {
	unlock := s.locks.Lock(sess.Key())
	defer unlock()

	current, err := s.store.GetSession(sess.BusinessID, sess.PhoneNumber, sess.FlowType)
	if err != nil {
		slog.Error("Sweeper failed to reload session", "error", err, "sessionID", sess.ID)
		return false
	}
	if current == nil || current.Terminal() || !current.Stale(now) {
		return false
	}

	if current.Payload == nil {
		current.Payload = make(map[models.DataKey]string)
	}
	current.Payload[models.DataKeyPriorState] = string(current.State)
	current.State = models.StateAbandoned
	current.UpdatedAt = now
	if err := s.store.SaveSession(*current); err != nil {
		slog.Error("Sweeper failed to save abandoned session", "error", err, "sessionID", current.ID)
		return false
	}
	slog.Debug("Sweeper abandoned session", "sessionID", current.ID, "priorState", current.Payload[models.DataKeyPriorState])
	return true
}
