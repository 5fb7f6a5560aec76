package daemon

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/courseware/internal/editor"
)

// openSessionRequest creates an editor session
type openSessionRequest struct {
	InitialValue  string `json:"initialValue"`
	AutoSaveKey   string `json:"autoSaveKey,omitempty"`
	AutoSaveDelay int    `json:"autoSaveDelay,omitempty"` // milliseconds
	Language      string `json:"language"`
}

type sessionResponse struct {
	ID string `json:"id"`
	editor.State
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *editor.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := s.editors.Get(id)
	if err != nil {
		s.jsonError(w, http.StatusNotFound, "session not found", err)
		return "", nil, false
	}
	return id, sess, true
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Language == "" {
		req.Language = "javascript"
	}
	if req.AutoSaveDelay < 0 {
		s.jsonError(w, http.StatusBadRequest, "autoSaveDelay must not be negative", nil)
		return
	}

	cfg := editor.Config{
		InitialValue: req.InitialValue,
		AutoSaveKey:  req.AutoSaveKey,
		Language:     req.Language,
	}
	if req.AutoSaveDelay > 0 {
		cfg.AutoSaveDelay = msDuration(req.AutoSaveDelay)
	}

	id, sess := s.editors.Open(cfg)
	s.jsonResponse(w, http.StatusCreated, sessionResponse{ID: id, State: sess.State()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, sessionResponse{ID: id, State: sess.State()})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.editors.Close(chi.URLParam(r, "id")); err != nil {
		s.jsonError(w, http.StatusNotFound, "session not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Value *string `json:"value"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Value == nil {
		s.jsonError(w, http.StatusBadRequest, "value is required", nil)
		return
	}
	sess.SetValue(*req.Value)
	s.jsonResponse(w, http.StatusOK, sessionResponse{ID: id, State: sess.State()})
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Save(); err != nil {
		switch {
		case errors.Is(err, editor.ErrNoAutoSaveKey):
			s.jsonError(w, http.StatusConflict, "session has no auto-save key", err)
		case errors.Is(err, editor.ErrSessionClosed):
			s.jsonError(w, http.StatusGone, "session closed", err)
		default:
			s.jsonError(w, http.StatusInsufficientStorage, "save failed", err)
		}
		return
	}
	s.jsonResponse(w, http.StatusOK, sessionResponse{ID: id, State: sess.State()})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Reset()
	s.jsonResponse(w, http.StatusOK, sessionResponse{ID: id, State: sess.State()})
}

func (s *Server) handleClearPersisted(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.ClearPersisted(); err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to clear saved content", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, sess.Validate())
}
