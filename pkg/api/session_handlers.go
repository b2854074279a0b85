package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

const defaultSessionLimit = 100

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter, err := sessionFilterFromQuery(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Code: "INVALID_FILTER", Message: err.Error()})
		return
	}
	sessions := s.sessions.Query(filter)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.GetSession(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sessions.GetStatistics())
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	trace, err := s.traces.GetTrace(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trace)
}

func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	services := s.registry.List()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"count":    len(services),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	storeStats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"store":    storeStats,
		"sessions": s.sessions.Count(),
		"traces":   s.traces.Count(),
		"services": s.registry.Count(),
	})
}

func sessionFilterFromQuery(r *http.Request) (domain.SessionFilter, error) {
	q := r.URL.Query()
	filter := domain.SessionFilter{
		ServiceName: q.Get("serviceName"),
		Limit:       defaultSessionLimit,
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.To = t
	}
	if v := q.Get("minTokens"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.MinTokens = n
	}
	if v := q.Get("hasErrors"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, err
		}
		filter.HasErrors = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Offset = n
	}
	return filter, nil
}
