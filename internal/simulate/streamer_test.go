package simulate

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/elicitworks/canvass/internal/transcript"
)

// recordingStore counts chunk deliveries and completions without a real
// transcript behind it.
type recordingStore struct {
	mu          sync.Mutex
	text        string
	loading     bool
	textUpdates int
	completions int
	saves       int
	badUTF8     int
}

func (r *recordingStore) UpdateMessage(_ string, mutate func(*transcript.Message)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := transcript.Message{Text: r.text, Loading: r.loading}
	before := m
	mutate(&m)
	r.text = m.Text
	r.loading = m.Loading
	if m.Text != before.Text {
		r.textUpdates++
	}
	if !utf8.ValidString(m.Text) {
		r.badUTF8++
	}
	if before.Loading && !m.Loading {
		r.completions++
	}
	return true
}

func (r *recordingStore) invalidStates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.badUTF8
}

func (r *recordingStore) SaveSession(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	return nil
}

func (r *recordingStore) state() (string, int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text, r.textUpdates, r.completions, r.saves
}

func newFastStreamer(store transcriptStore) *Streamer {
	s := New(store, slog.Default())
	s.cadence = time.Millisecond
	s.reviewDelay = 10 * time.Millisecond
	return s
}

func TestStream_ChunkCountAndSingleCompletion(t *testing.T) {
	store := &recordingStore{loading: true}
	s := newFastStreamer(store)

	full := strings.Repeat("abcde!", 5) // 30 characters
	done := make(chan struct{})
	s.Stream(context.Background(), "m1", full, false, func() { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not complete")
	}

	text, updates, completions, saves := store.state()
	if text != full {
		t.Errorf("delivered text %q, want %q", text, full)
	}
	if updates != 10 { // ceil(30/3)
		t.Errorf("expected 10 chunk deliveries, got %d", updates)
	}
	if completions != 1 {
		t.Errorf("expected exactly 1 completion signal, got %d", completions)
	}
	if saves != 1 {
		t.Errorf("expected 1 save on completion, got %d", saves)
	}
}

func TestStream_MultibyteChunksByRune(t *testing.T) {
	store := &recordingStore{loading: true}
	s := newFastStreamer(store)

	full := strings.Repeat("信念は大切か", 5) // 30 runes, 90 bytes
	done := make(chan struct{})
	s.Stream(context.Background(), "m1", full, false, func() { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not complete")
	}

	text, updates, _, _ := store.state()
	if text != full {
		t.Errorf("delivered text %q, want %q", text, full)
	}
	if updates != 10 { // ceil(30 runes / 3)
		t.Errorf("expected 10 chunk deliveries, got %d", updates)
	}
	if n := store.invalidStates(); n != 0 {
		t.Errorf("%d intermediate message states were invalid UTF-8", n)
	}
}

func TestStream_UnevenFinalChunk(t *testing.T) {
	store := &recordingStore{loading: true}
	s := newFastStreamer(store)

	done := make(chan struct{})
	s.Stream(context.Background(), "m1", "abcd", false, func() { close(done) }, nil)
	<-done

	text, updates, _, _ := store.state()
	if text != "abcd" {
		t.Errorf("delivered text %q, want abcd", text)
	}
	if updates != 2 { // "abc" + "d"
		t.Errorf("expected 2 chunk deliveries, got %d", updates)
	}
}

func TestStream_FinalQuestionSchedulesReview(t *testing.T) {
	store := &recordingStore{loading: true}
	s := newFastStreamer(store)

	review := make(chan struct{})
	completed := make(chan struct{})
	s.Stream(context.Background(), "m1", "All done?", true,
		func() { close(completed) },
		func() { close(review) })

	<-completed
	select {
	case <-review:
	case <-time.After(2 * time.Second):
		t.Fatal("review transition never fired")
	}
}

func TestStream_NonFinalSkipsReview(t *testing.T) {
	store := &recordingStore{loading: true}
	s := newFastStreamer(store)

	reviewFired := make(chan struct{})
	done := make(chan struct{})
	s.Stream(context.Background(), "m1", "Next question?", false,
		func() { close(done) },
		func() { close(reviewFired) })

	<-done
	select {
	case <-reviewFired:
		t.Error("review transition fired for a non-final turn")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancel_StopsPendingTimers(t *testing.T) {
	store := &recordingStore{loading: true}
	s := New(store, slog.Default())
	s.cadence = 20 * time.Millisecond

	completed := make(chan struct{})
	s.Stream(context.Background(), "m1", strings.Repeat("x", 300), false,
		func() { close(completed) }, nil)

	// Let a few chunks land, then cancel mid-stream.
	time.Sleep(50 * time.Millisecond)
	s.Cancel()

	_, updatesAtCancel, _, _ := store.state()
	time.Sleep(100 * time.Millisecond)
	_, updatesAfter, completions, _ := store.state()

	if updatesAfter > updatesAtCancel+1 {
		t.Errorf("chunks kept flowing after cancel: %d -> %d", updatesAtCancel, updatesAfter)
	}
	if completions != 0 {
		t.Error("canceled stream must not signal completion")
	}
	select {
	case <-completed:
		t.Error("onComplete fired after cancel")
	default:
	}
}

func TestCancel_BeforeReviewTransition(t *testing.T) {
	store := &recordingStore{loading: true}
	s := newFastStreamer(store)
	s.reviewDelay = 100 * time.Millisecond

	review := make(chan struct{})
	completed := make(chan struct{})
	s.Stream(context.Background(), "m1", "Done?", true,
		func() { close(completed) },
		func() { close(review) })

	<-completed
	s.Cancel() // within the review delay window

	select {
	case <-review:
		t.Error("review transition fired after cancel")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStream_NewStreamCancelsPrevious(t *testing.T) {
	store := &recordingStore{loading: true}
	s := New(store, slog.Default())
	s.cadence = 5 * time.Millisecond

	first := make(chan struct{})
	s.Stream(context.Background(), "m1", strings.Repeat("x", 3000), false,
		func() { close(first) }, nil)

	time.Sleep(30 * time.Millisecond)
	second := make(chan struct{})
	s.Stream(context.Background(), "m2", "short", false,
		func() { close(second) }, nil)

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second stream did not complete")
	}
	select {
	case <-first:
		t.Error("first stream completed despite being superseded")
	default:
	}
}
