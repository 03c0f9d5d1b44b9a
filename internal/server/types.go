package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/clock"
	"github.com/MeKo-Tech/tslatency/internal/integrity"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/MeKo-Tech/tslatency/internal/pixelcodec"
	"github.com/MeKo-Tech/tslatency/internal/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	summary     *report.Summary
	broadcaster *report.Broadcaster
	gatherer    prometheus.Gatherer
	latency     latency.Config
	clock       clock.Clock
	corsOrigin  string
	maxUploadMB int64
	version     string
	started     time.Time
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	Version     string
	// Latency is used for the contract endpoint and ad-hoc uploads.
	Latency latency.Config
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
	// Clock reads receive and stamp times for uploads. Nil means the host
	// monotonic clock.
	Clock clock.Clock
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
	Uptime  string `json:"uptime"`
}

type SummaryResponse struct {
	report.Snapshot
	DecodeRate  float64 `json:"decode_rate"`
	Subscribers int     `json:"subscribers"`
	Dropped     uint64  `json:"dropped_events"`
}

type ContractResponse struct {
	Contract     integrity.Contract `json:"contract"`
	Layout       pixelcodec.Layout  `json:"layout"`
	CapacityBits int                `json:"capacity_bits"`
	Tolerance    int                `json:"tolerance"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer creates a server exposing summary and broadcaster. Either may be
// nil, in which case fresh instances are created.
func NewServer(config Config, summary *report.Summary, broadcaster *report.Broadcaster) (*Server, error) {
	if err := config.Latency.Validate(); err != nil {
		return nil, err
	}
	if summary == nil {
		summary = report.NewSummary()
	}
	if broadcaster == nil {
		broadcaster = report.NewBroadcaster()
	}
	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.NewMonotonic()
	}
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 16
	}
	origin := config.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	return &Server{
		summary:     summary,
		broadcaster: broadcaster,
		gatherer:    gatherer,
		latency:     config.Latency,
		clock:       clk,
		corsOrigin:  origin,
		maxUploadMB: maxUpload,
		version:     config.Version,
		started:     time.Now(),
	}, nil
}

// Reporter returns the sink a measuring session should report to so that its
// results show up in the summary and on the websocket.
func (s *Server) Reporter() latency.Reporter {
	return report.Multi(s.summary, s.broadcaster)
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/v1/summary", s.corsMiddleware(s.summaryHandler))
	mux.HandleFunc("/api/v1/contract", s.corsMiddleware(s.contractHandler))
	mux.HandleFunc("/api/v1/measure", s.corsMiddleware(s.measureHandler))
	mux.HandleFunc("/api/v1/stamp", s.corsMiddleware(s.stampHandler))
	mux.HandleFunc("/ws/measurements", s.measurementsWebSocketHandler)
}
