// Package simulate feeds synthetic incremental text into the transcript
// store to imitate a streaming bot reply. It is a deterministic, cancelable
// timer sequence, not a transport.
package simulate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/elicitworks/canvass/internal/transcript"
)

// transcriptStore is the slice of the transcript store the streamer drives.
type transcriptStore interface {
	UpdateMessage(id string, mutate func(*transcript.Message)) bool
	SaveSession(ctx context.Context) error
}

const (
	defaultChunkSize   = 3
	defaultCadence     = 50 * time.Millisecond
	defaultReviewDelay = 3 * time.Second
)

// Streamer delivers one bot reply at a time in fixed-size chunks at a fixed
// cadence. Starting a new stream cancels any previous one; canceling stops
// all pending timers so a stale or unmounted message is never mutated.
type Streamer struct {
	store  transcriptStore
	logger *slog.Logger

	chunkSize   int
	cadence     time.Duration
	reviewDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds a streamer with the standard 3-character / 50ms delivery.
func New(store transcriptStore, logger *slog.Logger) *Streamer {
	return NewWithTiming(store, logger, defaultChunkSize, defaultCadence, defaultReviewDelay)
}

// NewWithTiming builds a streamer with custom delivery parameters, for
// accelerated playback.
func NewWithTiming(store transcriptStore, logger *slog.Logger, chunkSize int, cadence, reviewDelay time.Duration) *Streamer {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Streamer{
		store:       store,
		logger:      logger,
		chunkSize:   chunkSize,
		cadence:     cadence,
		reviewDelay: reviewDelay,
	}
}

// Stream fills the message with fullText chunk by chunk, then completes the
// turn exactly once: the message stops loading, the session is saved, and
// onComplete fires. When final is set — the turn was the last scripted
// question — onReview fires once after the review delay. Either callback
// may be nil.
func (s *Streamer) Stream(ctx context.Context, messageID, fullText string, final bool, onComplete, onReview func()) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, messageID, fullText, final, onComplete, onReview)
}

// Cancel stops the active stream, if any.
func (s *Streamer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Streamer) run(ctx context.Context, messageID, fullText string, final bool, onComplete, onReview func()) {
	ticker := time.NewTicker(s.cadence)
	defer ticker.Stop()

	// Chunk by runes, not bytes, so multibyte text never lands mid-character
	// in an intermediate message state.
	runes := []rune(fullText)
	for i := 0; i < len(runes); i += s.chunkSize {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		end := i + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[i:end])
		s.store.UpdateMessage(messageID, func(m *transcript.Message) {
			m.Text += chunk
		})
	}

	if ctx.Err() != nil {
		return
	}

	// Completion: the message stops loading, which is also the moment its
	// QA pair is derived if the text turned out to be a question.
	s.store.UpdateMessage(messageID, func(m *transcript.Message) {
		m.Loading = false
	})

	// The turn's save outlives a cancellation that races completion; the
	// transcript is already final at this point.
	if err := s.store.SaveSession(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("turn save failed", "message_id", messageID, "error", err)
	}

	if onComplete != nil {
		onComplete()
	}

	if !final || onReview == nil {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(s.reviewDelay):
		onReview()
	}
}
