// Package interview walks a participant through the scripted question
// sequence, turn by turn.
package interview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/elicitworks/canvass/internal/script"
	"github.com/elicitworks/canvass/internal/simulate"
	"github.com/elicitworks/canvass/internal/transcript"
)

// Engine sequences turns: a submitted answer is recorded against the open
// QA pair, progress advances, and the next scripted question (or the
// closing line) streams in as the bot reply.
type Engine struct {
	store    *transcript.Store
	script   *script.Script
	streamer *simulate.Streamer
	logger   *slog.Logger

	mu    sync.Mutex
	asked int // questions streamed so far, including the one in flight

	reviewReady atomic.Bool
}

// New builds an engine resuming from whatever the store already holds: the
// QA pair count tells us how many questions have fully streamed.
func New(store *transcript.Store, sc *script.Script, streamer *simulate.Streamer, logger *slog.Logger) *Engine {
	snap := store.Snapshot()
	return &Engine{
		store:    store,
		script:   sc,
		streamer: streamer,
		logger:   logger,
		asked:    len(snap.QAPairs),
	}
}

// Begin seeds the opening message and streams the first scripted question.
// Calling it on an interview already under way is a no-op.
func (e *Engine) Begin(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.asked > 0 {
		return
	}
	e.store.Seed()
	e.askLocked(ctx, 0)
}

// SubmitAnswer records the participant's answer for the open question and
// drives the next turn: either the next scripted question streams in, or —
// after the final question — the closing line streams and the review
// transition is scheduled.
func (e *Engine) SubmitAnswer(ctx context.Context, answer string) (transcript.Message, error) {
	if answer == "" {
		return transcript.Message{}, fmt.Errorf("empty answer")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.asked == 0 {
		return transcript.Message{}, fmt.Errorf("interview has not started")
	}

	snap := e.store.Snapshot()
	if snap.Progress.Done() {
		return transcript.Message{}, fmt.Errorf("interview already complete")
	}

	// A submit while the question is still streaming has no QA pair to land
	// in yet, and starting the next turn would cancel the stream mid-text.
	if n := len(snap.Messages); n > 0 {
		if last := snap.Messages[n-1]; last.Role == transcript.RoleBot && last.Loading {
			return transcript.Message{}, fmt.Errorf("current question is still streaming")
		}
	}

	userMsg := e.store.AddMessage(transcript.Message{Role: transcript.RoleUser, Text: answer})

	// The newest unanswered pair is the question this answer belongs to.
	pairs := snap.QAPairs
	for i := len(pairs) - 1; i >= 0; i-- {
		if pairs[i].Answer == "" {
			e.store.UpdateQAPair(pairs[i].ID, transcript.QAPairUpdate{Answer: &answer})
			break
		}
	}

	answered := snap.Progress.Current + 1
	e.store.SetProgress(answered)

	if answered >= e.script.Total() {
		e.closeLocked(ctx)
		return userMsg, nil
	}

	e.askLocked(ctx, answered)
	return userMsg, nil
}

// askLocked streams question idx as a loading bot message.
func (e *Engine) askLocked(ctx context.Context, idx int) {
	text, ok := e.script.Question(idx)
	if !ok {
		e.logger.Error("script question out of range", "index", idx)
		return
	}

	m := e.store.AddMessage(transcript.Message{Role: transcript.RoleBot, Loading: true})
	e.asked = idx + 1
	e.streamer.Stream(ctx, m.ID, text, false, nil, nil)
	e.logger.Info("question streaming", "index", idx, "message_id", m.ID)
}

// closeLocked streams the closing line; its completion marks the turn that
// finished the final scripted question, so the review transition follows.
func (e *Engine) closeLocked(ctx context.Context) {
	m := e.store.AddMessage(transcript.Message{Role: transcript.RoleBot, Loading: true})
	e.streamer.Stream(ctx, m.ID, e.script.Closing, true, nil, func() {
		e.reviewReady.Store(true)
		e.logger.Info("interview complete, review transition ready")
	})
}

// ReviewReady reports whether the delayed transition to the review flow
// has fired.
func (e *Engine) ReviewReady() bool {
	return e.reviewReady.Load()
}

// Reset abandons the current interview for the same participant: pending
// streams stop, the transcript clears, identity survives.
func (e *Engine) Reset() {
	e.streamer.Cancel()
	e.store.Reset()

	e.mu.Lock()
	e.asked = 0
	e.mu.Unlock()
	e.reviewReady.Store(false)
}

// Stop cancels any in-flight stream, for view teardown.
func (e *Engine) Stop() {
	e.streamer.Cancel()
}
