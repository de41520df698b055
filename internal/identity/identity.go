// Package identity persists the durable participant identifier outside the
// transcript, so a session reset never forgets who the participant is.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads the stored prolific ID. A missing file means no identity has
// been established yet and is not an error.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read identity: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the prolific ID, creating the state directory if needed.
func Save(path, prolificID string) error {
	if prolificID == "" {
		return fmt.Errorf("empty prolific id")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return os.WriteFile(path, []byte(prolificID+"\n"), 0o644)
}
