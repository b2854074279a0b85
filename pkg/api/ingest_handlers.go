package api

import (
	"io"
	"net/http"

	"github.com/spanhouse/spanhouse/pkg/domain"
	"github.com/spanhouse/spanhouse/pkg/otlp"
)

// maxExportBody bounds one OTLP export request.
const maxExportBody = 32 << 20

// exportResponse is the OTLP/HTTP success envelope. An empty partialSuccess
// means the whole batch was accepted.
type exportResponse struct {
	PartialSuccess struct{} `json:"partialSuccess"`
}

func (s *Server) handleExportTraces(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := s.readExportBody(w, r)
	if err != nil {
		return
	}
	if _, err := s.handler.ExportTraces(r.Context(), body, contentType); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, exportResponse{})
}

func (s *Server) handleExportMetrics(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := s.readExportBody(w, r)
	if err != nil {
		return
	}
	if _, err := s.handler.ExportMetrics(r.Context(), body, contentType); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, exportResponse{})
}

func (s *Server) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := s.readExportBody(w, r)
	if err != nil {
		return
	}
	if _, err := s.handler.ExportLogs(r.Context(), body, contentType); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, exportResponse{})
}

// readExportBody negotiates the content type and reads the body. It writes
// the error response itself so export handlers stay flat.
func (s *Server) readExportBody(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	contentType, err := otlp.NegotiateContentType(r.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(w, err)
		return nil, "", err
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxExportBody))
	if err != nil {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, domain.ErrorResponse{Code: "BODY_TOO_LARGE", Message: "request body too large"})
		return nil, "", err
	}
	return body, contentType, nil
}
