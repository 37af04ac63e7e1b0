package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/recon-map/internal/domain"
	"github.com/couchcryptid/recon-map/internal/pipeline"
	"github.com/couchcryptid/recon-map/internal/render"
)

// Map is the part of the orchestrator the API drives.
type Map interface {
	sharedobs.ReadinessChecker
	Dataset() *domain.Dataset
	Range() domain.DateRange
	Extent() domain.DateRange
	DateProperty() string
	FilterState() pipeline.State
	Report() pipeline.IngestReport
	OnRangeChange(controlID string, value domain.Epoch) (domain.DateRange, error)
	Progress() *pipeline.ProgressBus
}

// Server exposes health, readiness, metrics and the map API.
type Server struct {
	httpServer *http.Server
	m          Map
	views      *ViewStore
	popups     *render.Popups
	cache      *lru.Cache[string, []byte]
	logger     *slog.Logger
}

// NewServer creates the HTTP server. cacheSize bounds the rendered-response cache.
func NewServer(addr string, m Map, views *ViewStore, cacheSize int, logger *slog.Logger) (*Server, error) {
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create view cache: %w", err)
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		m:      m,
		views:  views,
		popups: render.NewPopups(),
		cache:  cache,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(m))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("GET /api/features", s.handleFeatures)
	mux.HandleFunc("GET /api/range", s.handleGetRange)
	mux.HandleFunc("PUT /api/range", s.handlePutRange)
	mux.HandleFunc("GET /api/progress", s.handleProgress)
	mux.HandleFunc("GET /api/sources", s.handleSources)

	return s, nil
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	view, ok := s.views.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, pipeline.ErrNotReady)
		return
	}
	key := fmt.Sprintf("view|%s|%d", view.DatasetID, view.Generation)
	s.writeCached(w, key, func() (domain.View, error) { return view, nil }, nil)
}

// handleFeatures filters synchronously, outside the coordinator. Missing
// bounds default to the active range.
func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	ds := s.m.Dataset()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, pipeline.ErrNotReady)
		return
	}

	rng := s.m.Range()
	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		rng.Start = domain.ParseDate(v, domain.AnchorStart)
	}
	if v := q.Get("end"); v != "" {
		rng.End = domain.ParseDate(v, domain.AnchorEnd)
	}
	if !rng.Start.Valid() || !rng.End.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("start/end: %w", pipeline.ErrInvalidValue))
		return
	}

	key := fmt.Sprintf("features|%s|%d|%d", ds.ID, rng.Start, rng.End)
	s.writeCached(w, key, func() (domain.View, error) {
		return domain.FilterDataset(r.Context(), ds, rng, s.m.DateProperty())
	}, r)
}

func (s *Server) writeCached(w http.ResponseWriter, key string, view func() (domain.View, error), r *http.Request) {
	if body, ok := s.cache.Get(key); ok {
		writeRaw(w, http.StatusOK, body)
		return
	}

	v, err := view()
	if err != nil {
		status := http.StatusInternalServerError
		if r != nil && r.Context().Err() != nil {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("build view failed", "key", key, "error", err)
		writeError(w, status, err)
		return
	}

	body, err := json.Marshal(render.Build(v, s.popups, s.m.DateProperty()))
	if err != nil {
		s.logger.Error("encode view failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.cache.Add(key, body)
	writeRaw(w, http.StatusOK, body)
}

type rangeResponse struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	StartMillis int64  `json:"start_ms"`
	EndMillis   int64  `json:"end_ms"`
	ExtentStart string `json:"extent_start"`
	ExtentEnd   string `json:"extent_end"`
	State       string `json:"state"`
}

func (s *Server) rangeResponse(rng domain.DateRange) rangeResponse {
	ext := s.m.Extent()
	resp := rangeResponse{
		Start:       domain.FormatDate(rng.Start),
		End:         domain.FormatDate(rng.End),
		ExtentStart: domain.FormatDate(ext.Start),
		ExtentEnd:   domain.FormatDate(ext.End),
		State:       s.m.FilterState().String(),
	}
	if rng.Start.Valid() {
		resp.StartMillis = int64(rng.Start)
	}
	if rng.End.Valid() {
		resp.EndMillis = int64(rng.End)
	}
	return resp
}

func (s *Server) handleGetRange(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rangeResponse(s.m.Range()))
}

// handlePutRange moves one bound. The date parameter is a calendar date or
// timestamp; value is epoch milliseconds as sent by slider widgets.
func (s *Server) handlePutRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("control")
	ctrl, err := domain.ParseControl(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	value := domain.InvalidEpoch
	switch {
	case q.Get("date") != "":
		value = domain.ParseDate(q.Get("date"), ctrl.Anchor())
	case q.Get("value") != "":
		if ms, err := strconv.ParseInt(q.Get("value"), 10, 64); err == nil {
			value = domain.Epoch(ms)
		}
	}

	rng, err := s.m.OnRangeChange(id, value)
	switch {
	case errors.Is(err, pipeline.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.rangeResponse(rng))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	events := s.m.Progress().Subscribe(ctx, 32)
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(p)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", p.Phase, b)
			flusher.Flush()
		}
	}
}

type sourceStatus struct {
	Name       string `json:"name,omitempty"`
	Location   string `json:"location"`
	Provenance string `json:"provenance,omitempty"`
	Stage      string `json:"stage"`
	Records    int    `json:"records"`
	Features   int    `json:"features"`
	Dropped    int    `json:"dropped"`
	Error      string `json:"error,omitempty"`
}

// handleSources reports the per-source outcome of the last load.
func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	report := s.m.Report()
	out := make([]sourceStatus, 0, len(report.Sources))
	for _, r := range report.Sources {
		st := sourceStatus{
			Name:       r.Source.Name,
			Location:   r.Source.Location,
			Provenance: r.Source.Provenance.String(),
			Stage:      string(r.Stage),
			Records:    r.Report.Records,
			Features:   r.Report.Features,
			Dropped:    r.Report.Dropped,
		}
		if r.Err != nil {
			st.Error = r.Err.Error()
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
