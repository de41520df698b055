package interview

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/elicitworks/canvass/internal/script"
	"github.com/elicitworks/canvass/internal/simulate"
	"github.com/elicitworks/canvass/internal/transcript"
)

type fakeRemote struct{}

func (fakeRemote) CreateSession(context.Context, string, []transcript.QAPair) (string, error) {
	return "session_1714000000000_ab12cd", nil
}

func (fakeRemote) UpdateSession(context.Context, string, []transcript.QAPair, transcript.Status) error {
	return nil
}

func testScript() *script.Script {
	return &script.Script{
		Opening: "Welcome.",
		Closing: "All done, thank you.",
		Questions: []string{
			"What causes X?",
			"How sure are you?",
		},
	}
}

func newTestEngine() (*Engine, *transcript.Store) {
	sc := testScript()
	store := transcript.NewStore(fakeRemote{}, nil, nil, slog.Default(), sc.Total(), sc.Opening)
	streamer := simulate.NewWithTiming(store, slog.Default(), 3, time.Millisecond, 5*time.Millisecond)
	return New(store, sc, streamer, slog.Default()), store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBegin_StreamsFirstQuestion(t *testing.T) {
	e, store := newTestEngine()

	e.Begin(context.Background())

	waitFor(t, "first question pair", func() bool {
		return len(store.Snapshot().QAPairs) == 1
	})

	snap := store.Snapshot()
	if snap.QAPairs[0].Question != "What causes X?" {
		t.Errorf("unexpected question %q", snap.QAPairs[0].Question)
	}
	// seed + question message
	if len(snap.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(snap.Messages))
	}
	if snap.Messages[0].Text != "Welcome." {
		t.Errorf("expected seed message first, got %q", snap.Messages[0].Text)
	}

	// Begin is idempotent.
	e.Begin(context.Background())
	if n := len(store.Snapshot().QAPairs); n != 1 {
		t.Errorf("second Begin asked again: %d pairs", n)
	}
}

func TestSubmitAnswer_BeforeBegin(t *testing.T) {
	e, _ := newTestEngine()
	if _, err := e.SubmitAnswer(context.Background(), "too early"); err == nil {
		t.Error("expected error before Begin")
	}
}

func TestSubmitAnswer_RecordsAndAdvances(t *testing.T) {
	e, store := newTestEngine()
	e.Begin(context.Background())
	waitFor(t, "first question", func() bool { return len(store.Snapshot().QAPairs) == 1 })

	if _, err := e.SubmitAnswer(context.Background(), "Stress, mostly."); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	waitFor(t, "second question", func() bool { return len(store.Snapshot().QAPairs) == 2 })

	snap := store.Snapshot()
	if snap.QAPairs[0].Answer != "Stress, mostly." {
		t.Errorf("answer not recorded: %+v", snap.QAPairs[0])
	}
	if snap.Progress.Current != 1 {
		t.Errorf("progress = %d, want 1", snap.Progress.Current)
	}
	if snap.QAPairs[1].Question != "How sure are you?" {
		t.Errorf("unexpected second question %q", snap.QAPairs[1].Question)
	}
}

func TestSubmitAnswer_WhileQuestionStreaming(t *testing.T) {
	sc := testScript()
	store := transcript.NewStore(fakeRemote{}, nil, nil, slog.Default(), sc.Total(), sc.Opening)
	streamer := simulate.NewWithTiming(store, slog.Default(), 3, 50*time.Millisecond, 5*time.Millisecond)
	e := New(store, sc, streamer, slog.Default())

	// The question message exists (loading) before Begin returns; its text
	// takes ~250ms to stream in.
	e.Begin(context.Background())

	if _, err := e.SubmitAnswer(context.Background(), "too eager"); err == nil {
		t.Fatal("expected error while the question is still streaming")
	}

	snap := store.Snapshot()
	if snap.Progress.Current != 0 {
		t.Errorf("progress advanced on a rejected submit: %+v", snap.Progress)
	}
	for _, m := range snap.Messages {
		if m.Role == transcript.RoleUser {
			t.Errorf("rejected answer entered the transcript: %+v", m)
		}
	}

	// The stream still completes and the question's pair appears, unanswered.
	waitFor(t, "first question pair", func() bool {
		return len(store.Snapshot().QAPairs) == 1
	})
	pair := store.Snapshot().QAPairs[0]
	if pair.Question != "What causes X?" || pair.Answer != "" {
		t.Errorf("unexpected pair %+v", pair)
	}

	// Once the question has fully streamed, a submit lands normally.
	if _, err := e.SubmitAnswer(context.Background(), "Stress."); err != nil {
		t.Fatalf("SubmitAnswer after stream completed: %v", err)
	}
	snap = store.Snapshot()
	if snap.QAPairs[0].Answer != "Stress." {
		t.Errorf("answer not recorded: %+v", snap.QAPairs[0])
	}
	if snap.Progress.Current != 1 {
		t.Errorf("progress = %d, want 1", snap.Progress.Current)
	}
}

func TestFinalAnswer_SchedulesReview(t *testing.T) {
	e, store := newTestEngine()
	e.Begin(context.Background())
	waitFor(t, "first question", func() bool { return len(store.Snapshot().QAPairs) == 1 })

	if _, err := e.SubmitAnswer(context.Background(), "Stress."); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second question", func() bool { return len(store.Snapshot().QAPairs) == 2 })

	if _, err := e.SubmitAnswer(context.Background(), "Quite sure."); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "review transition", e.ReviewReady)

	snap := store.Snapshot()
	if !snap.Progress.Done() {
		t.Errorf("progress not done: %+v", snap.Progress)
	}
	// Closing line streamed as the last bot message, no pair for it.
	last := snap.Messages[len(snap.Messages)-1]
	if last.Text != "All done, thank you." || last.Loading {
		t.Errorf("unexpected closing message %+v", last)
	}
	if len(snap.QAPairs) != 2 {
		t.Errorf("closing line must not create a pair, got %d", len(snap.QAPairs))
	}

	if _, err := e.SubmitAnswer(context.Background(), "extra"); err == nil {
		t.Error("expected error after interview complete")
	}
}

func TestReset_StartsOver(t *testing.T) {
	e, store := newTestEngine()
	e.Begin(context.Background())
	waitFor(t, "first question", func() bool { return len(store.Snapshot().QAPairs) == 1 })

	e.Reset()

	snap := store.Snapshot()
	if len(snap.QAPairs) != 0 {
		t.Errorf("pairs survived reset: %d", len(snap.QAPairs))
	}
	if e.ReviewReady() {
		t.Error("review flag survived reset")
	}

	// The engine can run a fresh interview after reset.
	e.Begin(context.Background())
	waitFor(t, "question after reset", func() bool {
		return len(store.Snapshot().QAPairs) == 1
	})
}
