package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/elicitworks/canvass/internal/identity"
	"github.com/elicitworks/canvass/internal/nav"
	"github.com/elicitworks/canvass/internal/sessionapi"
	"github.com/elicitworks/canvass/internal/transcript"
	"github.com/go-chi/chi/v5"
)

// stateResponse is the snapshot handed to UI collaborators, plus the
// review-transition flag the chat screen polls for.
type stateResponse struct {
	transcript.Snapshot
	ReviewReady bool `json:"reviewReady"`
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		Snapshot:    s.opts.Store.Snapshot(),
		ReviewReady: s.opts.Engine.ReviewReady(),
	})
}

func (s *Server) putIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProlificID string `json:"prolificId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if req.ProlificID == "" {
		writeError(w, http.StatusBadRequest, "prolificId is required")
		return
	}

	if err := identity.Save(s.opts.IdentityPath, req.ProlificID); err != nil {
		s.opts.Logger.Error("persist identity", "error", err)
		writeError(w, http.StatusInternalServerError, "persist identity")
		return
	}
	s.opts.Store.SetProlificID(req.ProlificID)
	writeJSON(w, http.StatusOK, map[string]string{"prolificId": req.ProlificID})
}

func (s *Server) addMessage(w http.ResponseWriter, r *http.Request) {
	var req transcript.Message
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if req.Role != transcript.RoleUser && req.Role != transcript.RoleBot {
		writeError(w, http.StatusBadRequest, "role must be user or bot")
		return
	}

	m := s.opts.Store.AddMessage(req)
	writeJSON(w, http.StatusCreated, m)
}

// messagePatch is a partial message update. AppendText exists for the chat
// screen's incremental edits; Text replaces outright.
type messagePatch struct {
	Text       *string `json:"text,omitempty"`
	AppendText *string `json:"appendText,omitempty"`
	Loading    *bool   `json:"loading,omitempty"`
}

func (s *Server) updateMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req messagePatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}

	ok := s.opts.Store.UpdateMessage(id, func(m *transcript.Message) {
		if req.Text != nil {
			m.Text = *req.Text
		}
		if req.AppendText != nil {
			m.Text += *req.AppendText
		}
		if req.Loading != nil {
			m.Loading = *req.Loading
		}
	})
	if !ok {
		writeError(w, http.StatusNotFound, "message %s not found", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateQAPair(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req transcript.QAPairUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}

	if !s.opts.Store.UpdateQAPair(id, req) {
		writeError(w, http.StatusNotFound, "qa pair %s not found", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current int `json:"current"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}

	s.opts.Store.SetProgress(req.Current)
	writeJSON(w, http.StatusOK, s.opts.Store.Snapshot().Progress)
}

// saveSession kicks off a best-effort save; the caller gets an immediate
// accept and the next turn's save carries any failure forward.
func (s *Server) saveSession(w http.ResponseWriter, r *http.Request) {
	go func() {
		// Failures are logged inside the store.
		_ = s.opts.Store.SaveSession(context.Background())
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	s.opts.Engine.Reset()
	s.opts.Evaluator.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) checkSession(w http.ResponseWriter, r *http.Request) {
	go s.opts.Checker.CheckSessionStatus(context.Background())
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	snap := s.opts.Store.Snapshot()
	d := s.opts.Evaluator.Evaluate(r.Context(), nav.State{
		Path:       req.Path,
		ProlificID: snap.ProlificID,
		SessionID:  snap.SessionID,
		Status:     snap.Status,
	})

	resp := map[string]string{"action": "none"}
	if d.Action == nav.ActionRedirect {
		resp["action"] = "redirect"
		resp["target"] = d.Target
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) beginInterview(w http.ResponseWriter, r *http.Request) {
	s.opts.Engine.Begin(context.Background())
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}

	m, err := s.opts.Engine.SubmitAnswer(context.Background(), req.Text)
	if err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// stopInterview is the teardown hook for the chat screen: pending stream
// timers die and any outstanding redirect intent dies with them.
func (s *Server) stopInterview(w http.ResponseWriter, r *http.Request) {
	s.opts.Engine.Stop()
	s.opts.Evaluator.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSessionRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.opts.Records.FetchSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, sessionapi.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session %s not found", id)
			return
		}
		s.opts.Logger.Error("fetch session record", "session_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "session service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
