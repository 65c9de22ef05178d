package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mgruene/ARANDU-PUB/internal/ingest"
	"github.com/mgruene/ARANDU-PUB/internal/logging"
	"github.com/mgruene/ARANDU-PUB/internal/store"
)

// multipartMemory is the part of a multipart form kept in memory; the rest
// spills to temp files.
const multipartMemory = 8 << 20

// errUpload marks malformed upload requests.
var errUpload = errors.New("invalid upload")

// handleIngest handles POST /api/v1/ingest. The multipart form carries the
// PDF as "file" and optionally "docid", "metadata" and "overrides" (JSON
// objects) and "select" (bool).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	data, name, err := s.readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req := ingest.Request{
		Data:     data,
		Filename: name,
		DocID:    r.FormValue("docid"),
	}
	if req.Metadata, err = jsonField(r, "metadata"); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Overrides, err = jsonField(r, "overrides"); err != nil {
		s.fail(w, r, err)
		return
	}
	if v := r.FormValue("select"); v != "" {
		if req.Select, err = strconv.ParseBool(v); err != nil {
			s.fail(w, r, fmt.Errorf("%w: select: %v", errUpload, err))
			return
		}
	}

	rcpt, err := s.svc.Ingest(r.Context(), req)
	if err != nil {
		s.metrics.uploadsTotal.WithLabelValues("ingest", "error").Inc()
		s.fail(w, r, err)
		return
	}
	s.metrics.uploadsTotal.WithLabelValues("ingest", "ok").Inc()
	writeJSON(w, r, http.StatusCreated, rcpt)
}

// handlePreview handles POST /api/v1/preview with the PDF as "file".
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, _, err := s.readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.svc.Preview(r.Context(), data)
	if err != nil {
		s.metrics.uploadsTotal.WithLabelValues("preview", "error").Inc()
		s.fail(w, r, err)
		return
	}
	s.metrics.uploadsTotal.WithLabelValues("preview", "ok").Inc()
	writeJSON(w, r, http.StatusOK, p)
}

// handleSearch handles POST /api/v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: body: %v", errUpload, err))
		return
	}
	res, err := s.svc.Search(r.Context(), ingest.SearchRequest{Query: req.Query, DocID: req.DocID, K: req.K})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleList handles GET /api/v1/ingests.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := s.state.ListIndex(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []store.IndexEntry{}
	}
	writeJSON(w, r, http.StatusOK, listResponse{Items: items})
}

// handleReceipt handles GET /api/v1/ingests/{docid}.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	rcpt, err := s.state.ReadReceipt(r.Context(), chi.URLParam(r, "docid"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rcpt)
}

// handleCurrent handles GET /api/v1/current.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	sel, err := s.state.Current(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sel)
}

// handleSelect handles PUT /api/v1/current.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: body: %v", errUpload, err))
		return
	}
	if strings.TrimSpace(req.DocID) == "" {
		s.fail(w, r, fmt.Errorf("%w: docid is required", errUpload))
		return
	}
	sel, err := s.state.SetCurrent(r.Context(), req.DocID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sel)
}

// readUpload returns the bytes and name of the "file" part, enforcing
// MaxUploadBytes.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: %v", errUpload, err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("%w: form field \"file\": %v", errUpload, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read file: %v", errUpload, err)
	}
	s.metrics.uploadBytes.Observe(float64(len(data)))
	return data, hdr.Filename, nil
}

// jsonField decodes the optional JSON object in form field name.
func jsonField(r *http.Request, name string) (map[string]any, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %s must be a JSON object: %v", errUpload, name, err)
	}
	return out, nil
}

// classify maps an error onto an HTTP status and an error kind.
func classify(err error) (int, string) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "input"
	case errors.Is(err, errUpload), errors.Is(err, ingest.ErrInput), errors.Is(err, store.ErrInvalidDocID):
		return http.StatusBadRequest, "input"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ingest.ErrValidation):
		return http.StatusUnprocessableEntity, "validation"
	case errors.Is(err, ingest.ErrExhausted):
		return http.StatusBadGateway, "exhausted"
	case errors.Is(err, ingest.ErrBackendTransient):
		return http.StatusServiceUnavailable, "backend"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "backend"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// fail writes err as a JSON error response and logs it at a level matching
// its status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	resp := errorResponse{Error: err.Error(), Kind: kind}
	var ve *ingest.ValidationError
	if errors.As(err, &ve) {
		resp.Missing = ve.Missing
	}

	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.String("error", err.Error()))
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}
	writeJSON(w, r, status, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}
