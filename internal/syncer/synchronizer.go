// Package syncer reconciles the local belief about session status with the
// remote session record, without overwhelming the remote service.
package syncer

import (
	"context"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elicitworks/canvass/internal/events"
	"github.com/elicitworks/canvass/internal/transcript"
)

// StatusFetcher is the slice of the remote client the synchronizer needs.
type StatusFetcher interface {
	FetchSessionStatus(ctx context.Context, sessionID string) (transcript.Status, error)
}

const (
	// minCheckInterval is the minimum gap between check starts, regardless
	// of caller.
	minCheckInterval = 10 * time.Second

	// coldStartGrace keeps checks away from a freshly minted session so we
	// never race the record's own first write.
	coldStartGrace = 5 * time.Second

	// Background checks run every loopMinInterval plus up to loopJitter.
	loopMinInterval = 15 * time.Second
	loopJitter      = 5 * time.Second
)

// Synchronizer periodically fetches the remote session status and updates
// the transcript store's local belief. All three usage guards (mutual
// exclusion, rate limit, cold-start grace) are enforced here, not left to
// caller discipline.
type Synchronizer struct {
	store   *transcript.Store
	fetcher StatusFetcher
	events  *events.Publisher
	logger  *slog.Logger

	mu        sync.Mutex
	inFlight  bool
	lastStart time.Time

	now func() time.Time
}

// New builds a synchronizer. ev may be nil.
func New(store *transcript.Store, fetcher StatusFetcher, ev *events.Publisher, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		store:   store,
		fetcher: fetcher,
		events:  ev,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckSessionStatus fetches the remote status for the current session and
// records it locally. Calls are dropped silently when no session exists,
// when a check is already in flight, when the previous check started less
// than the rate-limit interval ago, or when the session ID was minted
// within the cold-start grace period.
func (s *Synchronizer) CheckSessionStatus(ctx context.Context) {
	sessionID := s.store.SessionID()
	if sessionID == "" {
		return
	}
	if minted, ok := sessionMintTime(sessionID); ok && s.now().Sub(minted) < coldStartGrace {
		return
	}

	s.mu.Lock()
	if s.inFlight || s.now().Sub(s.lastStart) < minCheckInterval {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.lastStart = s.now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	status, err := s.fetcher.FetchSessionStatus(ctx, sessionID)
	if err != nil {
		// Stale status until the next check is the worst outcome here.
		s.logger.Warn("status check failed", "session_id", sessionID, "error", err)
		return
	}

	prev := s.store.Status()
	s.store.SetStatus(status)
	if status == transcript.StatusCompleted && prev != transcript.StatusCompleted {
		s.logger.Info("session completed remotely", "session_id", sessionID)
		s.events.SessionCompleted(sessionID)
	}
}

// Run schedules background checks on a jittered interval for as long as the
// context lives, to catch out-of-band status changes such as an
// administrator completing the session. Cycles without a session ID are
// skipped.
func (s *Synchronizer) Run(ctx context.Context) {
	for {
		wait := loopMinInterval + time.Duration(rand.Int63n(int64(loopJitter)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if s.store.SessionID() == "" {
			continue
		}
		s.CheckSessionStatus(ctx)
	}
}

// sessionMintTime extracts the unix-millisecond fragment the service embeds
// in assigned IDs like "session_1714000000000_ab12cd". IDs without a
// parsable fragment are treated as old enough to check.
func sessionMintTime(id string) (time.Time, bool) {
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
