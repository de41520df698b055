package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// persistedState is the durable slice of a snapshot. Status is deliberately
// excluded: it is a belief about the remote record and must be re-fetched,
// never trusted from disk.
type persistedState struct {
	Messages   []Message `json:"messages"`
	QAPairs    []QAPair  `json:"qaPairs"`
	Progress   struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	} `json:"progress"`
	SessionID  string `json:"sessionId"`
	ProlificID string `json:"prolificId"`
}

// FileStore persists snapshots as a JSON file, the local-storage analog for
// a device-bound interview in progress.
type FileStore struct {
	path string
}

// NewFileStore persists snapshots at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save overwrites the persisted snapshot.
func (f *FileStore) Save(snap Snapshot) error {
	var st persistedState
	st.Messages = snap.Messages
	st.QAPairs = snap.QAPairs
	st.Progress.Current = snap.Progress.Current
	st.Progress.Total = snap.Progress.Total
	st.SessionID = snap.SessionID
	st.ProlificID = snap.ProlificID

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return os.WriteFile(f.path, data, 0o644)
}

// Load reads the persisted snapshot. A missing file is not an error; ok
// reports whether a snapshot was present.
func (f *FileStore) Load() (snap Snapshot, ok bool, err error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}

	snap = Snapshot{
		Messages:   st.Messages,
		QAPairs:    st.QAPairs,
		SessionID:  st.SessionID,
		ProlificID: st.ProlificID,
	}
	snap.Progress.Current = st.Progress.Current
	snap.Progress.Total = st.Progress.Total
	return snap, true, nil
}
