// Package api provides the gateway's HTTP surface: raw and
// manifest-resolved data retrieval plus the admin bundle queue.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dev-protocol/ar-io-node/internal/bundles"
	"github.com/dev-protocol/ar-io-node/internal/data"
	"github.com/dev-protocol/ar-io-node/internal/logging"
	"github.com/dev-protocol/ar-io-node/internal/metrics"
	"github.com/dev-protocol/ar-io-node/internal/models"
)

// Server is the gateway HTTP server.
type Server struct {
	dataSource  data.Source
	importer    *bundles.Importer
	adminAPIKey string
}

// NewServer creates a server over the given retrieval chain and
// importer. An empty adminAPIKey disables the admin endpoints.
func NewServer(dataSource data.Source, importer *bundles.Importer, adminAPIKey string) *Server {
	return &Server{
		dataSource:  dataSource,
		importer:    importer,
		adminAPIKey: adminAPIKey,
	}
}

// Handler returns the HTTP handler with metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.instrument("/health", s.handleHealth))
	mux.HandleFunc("GET /raw/{id}", s.instrument("/raw/{id}", s.handleRaw))
	mux.HandleFunc("POST /admin/queue-bundle", s.instrument("/admin/queue-bundle", s.handleQueueBundle))
	mux.HandleFunc("GET /{id}", s.instrument("/{id}", s.handleData))
	mux.HandleFunc("GET /{id}/{path...}", s.instrument("/{id}/{path...}", s.handleData))

	return mux
}

// instrument wraps a handler with request metrics under a fixed route
// label (raw paths would explode metric cardinality).
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleRaw serves an object's bytes exactly as stored, without
// manifest interpretation.
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !models.IsValidID(id) {
		s.sendError(w, http.StatusBadRequest, "invalid id")
		return
	}

	res, err := s.dataSource.GetData(r.Context(), id)
	if err != nil {
		logging.Debug("raw data not retrievable", zap.String("id", id), zap.Error(err))
		s.sendError(w, http.StatusNotFound, "data not found")
		return
	}
	defer res.Stream.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if res.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	}
	s.streamBody(w, res, id)
}

func (s *Server) streamBody(w http.ResponseWriter, res *data.Result, id string) {
	if _, err := copyStream(w, res.Stream); err != nil {
		// Headers are out; all we can do is log and cut the connection.
		logging.Error("response stream failed", zap.String("id", id), zap.Error(err))
	}
}

type queueBundleRequest struct {
	ID          string `json:"id"`
	Prioritized *bool  `json:"prioritized"`
}

// handleQueueBundle admits a bundle for import. Requests default to
// prioritized admission: an operator asking by hand is latency-sensitive
// on-demand work, not background crawl.
func (s *Server) handleQueueBundle(w http.ResponseWriter, r *http.Request) {
	if s.adminAPIKey == "" {
		s.sendError(w, http.StatusNotFound, "admin API disabled")
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token != s.adminAPIKey {
		s.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req queueBundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !models.IsValidID(req.ID) {
		s.sendError(w, http.StatusBadRequest, "invalid id")
		return
	}
	prioritized := true
	if req.Prioritized != nil {
		prioritized = *req.Prioritized
	}

	queued := s.importer.QueueItem(bundles.BundleRecord{ID: req.ID}, prioritized)
	status := http.StatusAccepted
	if !queued {
		status = http.StatusTooManyRequests
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"id": req.ID, "queued": queued})
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": message,
		"code":  code,
	})
}
