package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoSim-25-26J-441/trialsweep/internal/storage"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/logger"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
)

// HTTPServer exposes liveness, Prometheus metrics and persisted summaries
type HTTPServer struct {
	mux   *http.ServeMux
	store storage.Store
	state *State
	runID string
}

// NewHTTPServer builds the handler tree. A nil gatherer serves the default registry.
func NewHTTPServer(state *State, store storage.Store, gatherer prometheus.Gatherer, runID string) *HTTPServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &HTTPServer{
		mux:   http.NewServeMux(),
		store: store,
		state: state,
		runID: runID,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /v1/configurations/{ng}/{nc}/summary", s.handleSummary)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	phase := s.state.Phase()
	code := http.StatusOK
	if phase == PhaseFailed {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    string(phase),
		"run_id":    s.runID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		logger.Warn("failed to encode healthz response", "error", err)
	}
}

// handleSummary serves GET /v1/configurations/{ng}/{nc}/summary
func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	ng, errNG := strconv.Atoi(r.PathValue("ng"))
	nc, errNC := strconv.Atoi(r.PathValue("nc"))
	if errNG != nil || errNC != nil {
		s.writeError(w, http.StatusBadRequest, "ng and nc must be integers")
		return
	}

	sum, err := s.store.ReadSummary(r.Context(), models.NewConfiguration(ng, nc))
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "configuration has not completed")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data, err := storage.MarshalSummary(s.runID, sum)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *HTTPServer) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]any{"error": message}); err != nil {
		logger.Warn("failed to encode error response", "error", err)
	}
}
