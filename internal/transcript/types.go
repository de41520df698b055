// Package transcript owns the interview message log, the derived
// question/answer pairing list, and the participant's session identity.
package transcript

// Role identifies who authored a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is one entry in the interview message log. Loading marks an
// in-flight bot reply whose text is still being filled incrementally.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	Loading bool   `json:"loading"`
}

// QAPair pairs a scripted bot question with the participant's answer.
// Its ID always matches the bot message that asked the question.
type QAPair struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QAPairUpdate carries a partial pair update; nil fields are left untouched.
type QAPairUpdate struct {
	Question *string `json:"question,omitempty"`
	Answer   *string `json:"answer,omitempty"`
}

// Status is the lifecycle state of the remote session record.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"

	// StatusUnknown is the local stand-in when the remote record is absent
	// or has not been fetched yet. Navigation treats it as "not completed".
	StatusUnknown Status = "unknown"
)
