package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/manualbook/internal/catalog"
	"github.com/hyperjump/manualbook/internal/keyword"
	"github.com/hyperjump/manualbook/internal/models"
	"github.com/hyperjump/manualbook/internal/search"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	resp, err := s.engine.Query(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, "query", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req models.ClassifyRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	resp, err := s.engine.Classify(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, "classify", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("ids") {
		resp, err := s.engine.ArticlesByID(r.Context(), strings.Split(q.Get("ids"), ","))
		if err != nil {
			s.respondFailure(w, "get articles", err)
			return
		}
		s.respondJSON(w, http.StatusOK, resp)
		return
	}
	f := catalog.Filter{
		Intent:   q.Get("intent"),
		Category: q.Get("category"),
		ParentID: q.Get("parent_id"),
		Title:    q.Get("title"),
	}
	if v := q.Get("heading_level"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil || level < 1 {
			s.respondError(w, http.StatusBadRequest, "heading_level must be a positive integer")
			return
		}
		f.HeadingLevel = level
	}
	resp, err := s.engine.Articles(r.Context(), f)
	if err != nil {
		s.respondFailure(w, "list articles", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	article, err := s.engine.Article(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get article", err)
		return
	}
	s.respondJSON(w, http.StatusOK, article)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rel, err := s.engine.Related(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "related", err)
		return
	}
	s.respondJSON(w, http.StatusOK, rel)
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	fuzziness, err := intParam(q.Get("fuzziness"))
	if err != nil || fuzziness > 2 {
		s.respondError(w, http.StatusBadRequest, "fuzziness must be 0, 1 or 2")
		return
	}
	opts := &keyword.SearchOptions{
		Fuzziness: fuzziness,
		Intent:    q.Get("intent"),
		Category:  q.Get("category"),
	}
	resp, err := s.engine.Find(r.Context(), query, limit, opts)
	if err != nil {
		s.respondFailure(w, "find", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req models.BuildRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	if req.Source != "" && !sameFile(req.Source, s.engine.Source()) {
		s.logger.Warn("rejected catalog build from foreign source", zap.String("source", req.Source))
		s.respondError(w, http.StatusForbidden, "source must be the configured catalog source")
		return
	}
	s.logger.Info("catalog build request", zap.String("source", req.Source), zap.Bool("vectorize", req.Vectorize))
	res, err := s.engine.Build(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, "build", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// sameFile reports whether a and b name the same path once made absolute and cleaned.
func sameFile(a, b string) bool {
	if b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func (s *Server) handleVectorize(w http.ResponseWriter, r *http.Request) {
	reset, _ := strconv.ParseBool(r.URL.Query().Get("reset"))
	stats, err := s.engine.Vectorize(r.Context(), reset)
	if err != nil {
		s.respondFailure(w, "vectorize", err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Status(r.Context())
	if err != nil {
		s.respondFailure(w, "status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into v. An empty body is accepted when optional is set.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	s.respondError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

// respondFailure maps engine errors to HTTP status codes.
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, search.ErrKeywordDisabled), errors.Is(err, search.ErrVectorizeDisabled):
		s.respondError(w, http.StatusNotImplemented, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, models.ErrorResponse{Error: message})
}
