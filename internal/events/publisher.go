// Package events publishes session-lifecycle events to NATS for outside
// observers such as the admin dashboard. Publishing is best-effort: the
// interview proceeds identically whether or not a broker is configured.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects for session-lifecycle events.
const (
	SubjectSessionCreated   = "interview.session.created"
	SubjectSessionCompleted = "interview.session.completed"
	SubjectTranscriptSaved  = "interview.transcript.saved"
)

// Publisher emits lifecycle events to NATS. A nil Publisher is valid and
// drops every event, so callers never need to branch on configuration.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect establishes the NATS connection with retry and reconnect handling.
func Connect(url, token string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Publisher{conn: nc, logger: logger}, nil
}

// SessionCreated announces that the remote collaborator assigned a new
// session record to a participant.
func (p *Publisher) SessionCreated(sessionID, prolificID string) {
	p.publish(SubjectSessionCreated, map[string]any{
		"session_id":  sessionID,
		"prolific_id": prolificID,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// SessionCompleted announces that the session's remote status reached
// completed, whether driven locally or by an administrator.
func (p *Publisher) SessionCompleted(sessionID string) {
	p.publish(SubjectSessionCompleted, map[string]any{
		"session_id": sessionID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// TranscriptSaved announces a successful per-turn save of the QA pair list.
func (p *Publisher) TranscriptSaved(sessionID string, pairCount int) {
	p.publish(SubjectTranscriptSaved, map[string]any{
		"session_id": sessionID,
		"pair_count": pairCount,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(subject string, data any) {
	if p == nil || p.conn == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Warn("marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("publish event", "subject", subject, "error", err)
	}
}

// Close drains the connection. Safe on a nil Publisher.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
