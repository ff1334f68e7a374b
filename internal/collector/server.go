// Package collector implements the event collection endpoint: the HTTP
// surface the tracker delivers batches to. It validates per event,
// keeps in-memory totals, and never rejects a whole batch because one
// event inside it is malformed.
package collector

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/clock"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/metrics"
)

// batchRequest mirrors the tracker's wire format. The API key may arrive
// in the body or the X-API-Key header; the header wins.
type batchRequest struct {
	Events []event.TrackingEvent `json:"events"`
	APIKey string                `json:"api_key"`
}

type batchResponse struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// statsResponse is the GET /api/stats payload.
type statsResponse struct {
	TotalReceived  int64            `json:"total_received"`
	TotalProcessed int64            `json:"total_processed"`
	TotalFailed    int64            `json:"total_failed"`
	ByType         map[string]int64 `json:"by_type"`
	StartedAt      time.Time        `json:"started_at"`
}

// Server is the stub collector. Accepted events are counted, not stored;
// persistence belongs to the real backend this stands in for.
type Server struct {
	cfg    config.ServerConfig
	apiKey string
	limit  func(http.Handler) http.Handler

	mu        sync.Mutex
	received  int64
	processed int64
	failed    int64
	byType    map[string]int64
	startedAt time.Time
}

// NewServer builds the collector with per-IP rate limiting sized from
// configuration: rate_burst requests per window, with the window length
// chosen so the sustained rate comes out at rate_per_second.
func NewServer(cfg config.ServerConfig, apiKey string, clk clock.Clock) *Server {
	s := &Server{
		cfg:       cfg,
		apiKey:    apiKey,
		byType:    map[string]int64{},
		startedAt: clk.Now(),
	}
	window := time.Duration(float64(cfg.RateBurst) / cfg.RatePerSecond * float64(time.Second))
	s.limit = httprate.Limit(
		cfg.RateBurst,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.reply(w, r, http.StatusTooManyRequests, batchResponse{Errors: []string{"rate limit exceeded"}})
		}),
	)
	return s
}

// Routes assembles the collector router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.With(s.limit).Post("/events", s.handleEvents)
		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.reply(w, r, http.StatusBadRequest, batchResponse{Errors: []string{"invalid JSON body"}})
		return
	}

	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = req.APIKey
	}
	if s.apiKey == "" || key != s.apiKey {
		s.reply(w, r, http.StatusUnauthorized, batchResponse{Errors: []string{"invalid API key"}})
		return
	}
	if len(req.Events) == 0 {
		s.reply(w, r, http.StatusBadRequest, batchResponse{Errors: []string{"empty batch"}})
		return
	}

	var (
		processed int
		errs      []string
	)
	byType := map[string]int64{}
	for i, ev := range req.Events {
		if err := validateEvent(ev); err != nil {
			errs = append(errs, fmt.Sprintf("event %d: %v", i, err))
			continue
		}
		processed++
		byType[string(ev.Type)]++
	}
	failed := len(req.Events) - processed

	s.mu.Lock()
	s.received += int64(len(req.Events))
	s.processed += int64(processed)
	s.failed += int64(failed)
	for t, n := range byType {
		s.byType[t] += n
	}
	s.mu.Unlock()

	logger.Debug("collector: batch received", "events", len(req.Events), "processed", processed, "failed", failed)
	s.reply(w, r, http.StatusOK, batchResponse{
		Success:   true,
		Processed: processed,
		Failed:    failed,
		Errors:    errs,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := statsResponse{
		TotalReceived:  s.received,
		TotalProcessed: s.processed,
		TotalFailed:    s.failed,
		ByType:         make(map[string]int64, len(s.byType)),
		StartedAt:      s.startedAt,
	}
	for t, n := range s.byType {
		resp.ByType[t] = n
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	metrics.CollectorRequests.WithLabelValues(r.URL.Path, "200").Inc()
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","service":"tracking-collector"}`))
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, status int, body batchResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	metrics.CollectorRequests.WithLabelValues(r.URL.Path, fmt.Sprintf("%d", status)).Inc()
	json.NewEncoder(w).Encode(body)
}

// validateEvent checks the fields the pipeline guarantees on every
// canonical event. Anything missing marks the event failed without
// affecting the rest of the batch.
func validateEvent(ev event.TrackingEvent) error {
	if ev.ID == "" {
		return fmt.Errorf("missing id")
	}
	if ev.Name == "" {
		return fmt.Errorf("missing name")
	}
	if ev.Type == "" {
		return fmt.Errorf("missing type")
	}
	if event.ParseType(string(ev.Type)) == event.TypeCustom && ev.Type != event.TypeCustom {
		return fmt.Errorf("unknown type %q", ev.Type)
	}
	if ev.Timestamp <= 0 {
		return fmt.Errorf("missing timestamp")
	}
	return nil
}
