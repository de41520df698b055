package transcript

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/elicitworks/canvass/internal/events"
	"github.com/elicitworks/canvass/internal/progress"
	"github.com/google/uuid"
)

// RemoteClient is the slice of the remote session service the store needs
// for its write path.
type RemoteClient interface {
	CreateSession(ctx context.Context, prolificID string, pairs []QAPair) (string, error)
	UpdateSession(ctx context.Context, sessionID string, pairs []QAPair, status Status) error
}

// Persister writes a snapshot to durable local storage after each mutation.
type Persister interface {
	Save(Snapshot) error
}

// Snapshot is a consistent copy of the store's state, safe to hand to
// observers and UI collaborators.
type Snapshot struct {
	Messages   []Message         `json:"messages"`
	QAPairs    []QAPair          `json:"qaPairs"`
	Progress   progress.Progress `json:"progress"`
	SessionID  string            `json:"sessionId"`
	ProlificID string            `json:"prolificId"`
	Status     Status            `json:"sessionStatus"`
}

// Observer is notified with a fresh snapshot after every mutation.
type Observer func(Snapshot)

// Store is the single mutable owner of the interview transcript. Each
// mutation is atomic: messages and QA pairs are mutually consistent before
// any observer or the persister sees the result.
type Store struct {
	mu        sync.Mutex
	messages  []Message
	pairs     []QAPair
	progress  progress.Progress
	prolific  string
	sessionID string
	status    Status
	observers []Observer

	// opening, when set, is the seed bot message a fresh or reset
	// transcript starts with.
	opening string

	remote  RemoteClient
	persist Persister
	events  *events.Publisher
	logger  *slog.Logger

	// saveMu serializes saves and makes Reset wait out an in-flight save.
	saveMu sync.Mutex
}

// NewStore builds an empty store for a script of totalQuestions questions.
// persist and ev may be nil.
func NewStore(remote RemoteClient, persist Persister, ev *events.Publisher, logger *slog.Logger, totalQuestions int, opening string) *Store {
	return &Store{
		progress: progress.New(totalQuestions),
		status:   StatusNotStarted,
		opening:  opening,
		remote:   remote,
		persist:  persist,
		events:   ev,
		logger:   logger,
	}
}

// Subscribe registers an observer for post-mutation snapshots.
func (s *Store) Subscribe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Restore replaces the store's state from a persisted snapshot. Local
// status belief is not persisted: a restored session starts unknown until
// the synchronizer confirms it; without a session it is simply not started.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	s.messages = append([]Message(nil), snap.Messages...)
	s.pairs = append([]QAPair(nil), snap.QAPairs...)
	if snap.Progress.Total > 0 {
		s.progress = snap.Progress
	}
	s.sessionID = snap.SessionID
	s.prolific = snap.ProlificID
	if s.sessionID != "" {
		s.status = StatusUnknown
	} else {
		s.status = StatusNotStarted
	}
	s.mu.Unlock()
}

// Seed appends the opening bot message to an empty transcript.
func (s *Store) Seed() {
	s.mu.Lock()
	if s.opening == "" || len(s.messages) > 0 {
		s.mu.Unlock()
		return
	}
	m := Message{ID: uuid.NewString(), Role: RoleBot, Text: s.opening}
	s.messages = append(s.messages, m)
	s.maybeAddPairLocked(m)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.afterMutation(snap)
}

// AddMessage appends a message, minting an ID if the caller left it empty.
// A completed bot message whose text contains a question mark also creates
// its QA pair in the same atomic step.
func (s *Store) AddMessage(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.maybeAddPairLocked(m)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.afterMutation(snap)
	return m
}

// UpdateMessage applies mutate to the message with the given ID and
// re-evaluates the QA pair rule against the updated message, so a message
// that starts loading and completes with question text creates its pair at
// completion time. Returns false (and does nothing) when the ID is unknown.
func (s *Store) UpdateMessage(id string, mutate func(*Message)) bool {
	s.mu.Lock()
	idx := -1
	for i := range s.messages {
		if s.messages[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	m := s.messages[idx]
	mutate(&m)
	m.ID = id // the ID is the pairing key and never changes
	s.messages[idx] = m
	s.maybeAddPairLocked(m)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.afterMutation(snap)
	return true
}

// UpdateQAPair merges the non-nil fields of upd into the pair with the
// given ID. Returns false (and does nothing) when the ID is unknown.
func (s *Store) UpdateQAPair(id string, upd QAPairUpdate) bool {
	s.mu.Lock()
	idx := -1
	for i := range s.pairs {
		if s.pairs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	if upd.Question != nil {
		s.pairs[idx].Question = *upd.Question
	}
	if upd.Answer != nil {
		s.pairs[idx].Answer = *upd.Answer
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.afterMutation(snap)
	return true
}

// SetProgress records how many questions have been answered, clamped to
// the script bounds.
func (s *Store) SetProgress(current int) {
	s.mu.Lock()
	s.progress = s.progress.WithCurrent(current)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.afterMutation(snap)
}

// SetProlificID establishes the durable participant identity.
func (s *Store) SetProlificID(id string) {
	s.mu.Lock()
	s.prolific = id
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.afterMutation(snap)
}

// SetStatus updates the local belief about the remote session status.
// The synchronizer is the only expected caller.
func (s *Store) SetStatus(st Status) {
	s.mu.Lock()
	changed := s.status != st
	s.status = st
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.afterMutation(snap)
	}
}

// SaveSession pushes the current full QA pair list to the remote record.
// Without a session ID it creates the record and keeps the assigned ID;
// otherwise it updates the record with status in_progress. Persistence is
// best-effort per turn: failures are logged, state stays locally
// authoritative, and the next successful save carries it forward.
func (s *Store) SaveSession(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	sessionID := s.sessionID
	prolific := s.prolific
	pairs := append([]QAPair(nil), s.pairs...)
	s.mu.Unlock()

	if sessionID == "" {
		id, err := s.remote.CreateSession(ctx, prolific, pairs)
		if err != nil {
			s.logger.Warn("session create failed", "error", err)
			return err
		}

		s.mu.Lock()
		s.sessionID = id
		if s.status != StatusCompleted {
			s.status = StatusInProgress
		}
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.logger.Info("session created", "session_id", id)
		s.events.SessionCreated(id, prolific)
		s.afterMutation(snap)
		return nil
	}

	if err := s.remote.UpdateSession(ctx, sessionID, pairs, StatusInProgress); err != nil {
		s.logger.Warn("session save failed", "session_id", sessionID, "error", err)
		return err
	}

	s.mu.Lock()
	if s.status != StatusCompleted {
		s.status = StatusInProgress
	}
	s.mu.Unlock()

	s.logger.Debug("session saved", "session_id", sessionID, "pairs", len(pairs))
	s.events.TranscriptSaved(sessionID, len(pairs))
	return nil
}

// Reset starts a new interview for the same participant: messages, pairs
// and progress are cleared (and the opening message re-seeded) while
// prolific ID and session ID are preserved. A reset issued while a save is
// in flight is sequenced after it.
func (s *Store) Reset() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	s.messages = nil
	s.pairs = nil
	s.progress = progress.New(s.progress.Total)
	if s.sessionID != "" {
		s.status = StatusUnknown
	} else {
		s.status = StatusNotStarted
	}
	if s.opening != "" {
		m := Message{ID: uuid.NewString(), Role: RoleBot, Text: s.opening}
		s.messages = append(s.messages, m)
		s.maybeAddPairLocked(m)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.afterMutation(snap)
}

// Snapshot returns a consistent copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SessionID returns the remote record's identifier, empty before the
// first successful save.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ProlificID returns the durable participant identifier, if established.
func (s *Store) ProlificID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prolific
}

// Status returns the local belief about the remote session status.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// maybeAddPairLocked applies the question-detection rule: a completed bot
// message containing a question mark gets exactly one QA pair, keyed by the
// message ID, in completion order. The contains-"?" heuristic is deliberate;
// the review screens assume one pair per such message.
func (s *Store) maybeAddPairLocked(m Message) {
	if m.Role != RoleBot || m.Loading || !strings.Contains(m.Text, "?") {
		return
	}
	for i := range s.pairs {
		if s.pairs[i].ID == m.ID {
			return
		}
	}
	s.pairs = append(s.pairs, QAPair{ID: m.ID, Question: m.Text})
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Messages:   append([]Message(nil), s.messages...),
		QAPairs:    append([]QAPair(nil), s.pairs...),
		Progress:   s.progress,
		SessionID:  s.sessionID,
		ProlificID: s.prolific,
		Status:     s.status,
	}
}

// afterMutation persists the snapshot and fans it out to observers. Called
// without the state lock held so observers may read the store freely.
func (s *Store) afterMutation(snap Snapshot) {
	if s.persist != nil {
		if err := s.persist.Save(snap); err != nil {
			s.logger.Warn("snapshot persist failed", "error", err)
		}
	}

	s.mu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
}
