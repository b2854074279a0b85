package api

import (
	"encoding/json"
	"net/http"

	"github.com/spanhouse/spanhouse/pkg/domain"
	"github.com/spanhouse/spanhouse/pkg/schema"
)

func (s *Server) handlePlanPromotion(w http.ResponseWriter, r *http.Request) {
	var req schema.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Code: "INVALID_BODY", Message: "malformed JSON body"})
		return
	}
	if req.TargetTable == "" || req.ChangeType == "" {
		s.writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Code: "MISSING_FIELD", Message: "targetTable and changeType are required"})
		return
	}

	record, err := s.planner.PlanPromotion(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordPromotion(string(record.Status))
	}
	s.writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListPromotions(w http.ResponseWriter, r *http.Request) {
	pending, err := s.executor.PendingPromotions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"promotions": pending,
		"count":      len(pending),
	})
}

func (s *Server) handleGetPromotion(w http.ResponseWriter, r *http.Request) {
	record, err := s.planner.GetPromotion(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleApplyPromotion(w http.ResponseWriter, r *http.Request) {
	record, err := s.executor.ExecutePromotion(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordPromotion(string(record.Status))
	}
	s.writeJSON(w, http.StatusOK, record)
}
