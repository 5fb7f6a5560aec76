package daemon

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/courseware/internal/content"
	"github.com/felixgeelhaar/courseware/internal/quiz"
)

// Quiz question handlers

func (s *Server) handleGetQuestions(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")

	if s.source == nil {
		questions, ok := s.quiz.Questions.Get(topic)
		if !ok {
			s.jsonError(w, http.StatusNotFound, "no cached questions", nil)
			return
		}
		s.jsonResponse(w, http.StatusOK, map[string]any{
			"topicId":   topic,
			"questions": questions,
			"fromCache": true,
		})
		return
	}

	questions, fromCache, err := s.quiz.LoadQuestions(topic, s.source)
	if err != nil {
		if errors.Is(err, content.ErrTopicNotFound) {
			s.jsonError(w, http.StatusNotFound, "topic not found", err)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to select questions", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"topicId":   topic,
		"questions": questions,
		"fromCache": fromCache,
	})
}

func (s *Server) handlePutQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Questions []quiz.Question `json:"questions"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Questions) == 0 {
		s.jsonError(w, http.StatusBadRequest, "questions are required", nil)
		return
	}
	s.writeResult(w, s.quiz.Questions.Put(chi.URLParam(r, "topic"), req.Questions))
}

// Progress handlers

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.quiz.Progress.Load(chi.URLParam(r, "topic"))
	if !ok {
		s.jsonError(w, http.StatusNotFound, "no saved progress", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, snap)
}

func (s *Server) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	var snap quiz.ProgressSnapshot
	if !s.decode(w, r, &snap) {
		return
	}
	// The path names the topic
	snap.TopicID = chi.URLParam(r, "topic")
	s.writeResult(w, s.quiz.Progress.Save(snap))
}

func (s *Server) handleClearProgress(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.quiz.Progress.Clear(chi.URLParam(r, "topic")))
}

// Result handlers

func (s *Server) handleRecordResult(w http.ResponseWriter, r *http.Request) {
	var result quiz.AttemptResult
	if !s.decode(w, r, &result) {
		return
	}
	if result.TopicID == "" {
		s.jsonError(w, http.StatusBadRequest, "topicId is required", nil)
		return
	}
	if result.TotalQuestions <= 0 || result.Score < 0 || result.Score > result.TotalQuestions {
		s.jsonError(w, http.StatusBadRequest, "score must be between 0 and totalQuestions", nil)
		return
	}

	res := s.quiz.Results.Record(result)
	if errors.Is(res.Err, quiz.ErrResultEvicted) {
		s.jsonError(w, http.StatusConflict, "result is older than every stored result", res.Err)
		return
	}
	if !res.Stored {
		s.jsonError(w, http.StatusInsufficientStorage, "not stored", res.Err)
		return
	}
	stored, ok := s.quiz.Results.GetForTopic(result.TopicID)
	if !ok {
		s.jsonError(w, http.StatusInternalServerError, "stored result could not be read back", nil)
		return
	}
	s.jsonResponse(w, http.StatusCreated, stored)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	results := s.quiz.Results.GetAll()
	if results == nil {
		results = []quiz.AttemptResult{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, ok := s.quiz.Results.GetForTopic(chi.URLParam(r, "topic"))
	if !ok {
		s.jsonError(w, http.StatusNotFound, "no result for topic", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.quiz.Results.GetStatistics(r.URL.Query().Get("topic"))
	if !ok {
		s.jsonError(w, http.StatusNotFound, "no results", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

func (s *Server) handleTopicSummaries(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"topics": s.quiz.Results.TopicSummaries(),
	})
}

// Cache administration handlers

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.quiz.Admin.Inspect())
}

func (s *Server) handleWipe(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.quiz.Admin.WipeAll())
}

func (s *Server) handleOfflineTopics(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"topics": s.quiz.Admin.ListOfflineTopics(),
	})
}
