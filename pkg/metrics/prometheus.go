package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avnsound/duplexd/pkg/logger"
)

// PrometheusConfig holds Prometheus server configuration
type PrometheusConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// PrometheusHandler handles Prometheus metrics HTTP requests
type PrometheusHandler struct {
	collector *Collector
}

// NewPrometheusHandler creates a new Prometheus handler
func NewPrometheusHandler(collector *Collector) *PrometheusHandler {
	return &PrometheusHandler{
		collector: collector,
	}
}

// ServeHTTP handles HTTP requests for metrics
func (h *PrometheusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	var output strings.Builder

	readPeriods := h.collector.GetPeriodsCompleted("read")
	writePeriods := h.collector.GetPeriodsCompleted("write")
	readCorrection, writeCorrection := h.collector.GetCorrection()
	readBalance, writeBalance := h.collector.GetBalance()

	output.WriteString("# HELP duplexd_periods_completed_total Periods completed per channel\n")
	output.WriteString("# TYPE duplexd_periods_completed_total counter\n")
	output.WriteString(fmt.Sprintf("duplexd_periods_completed_total{channel=\"read\"} %d\n", readPeriods))
	output.WriteString(fmt.Sprintf("duplexd_periods_completed_total{channel=\"write\"} %d\n", writePeriods))

	output.WriteString("# HELP duplexd_gap_resets_total Hard resynchronization events\n")
	output.WriteString("# TYPE duplexd_gap_resets_total counter\n")
	output.WriteString(fmt.Sprintf("duplexd_gap_resets_total %d\n", h.collector.GetGapResets()))

	output.WriteString("# HELP duplexd_late_wakeups_total Late scheduler wakeups observed\n")
	output.WriteString("# TYPE duplexd_late_wakeups_total counter\n")
	output.WriteString(fmt.Sprintf("duplexd_late_wakeups_total %d\n", h.collector.GetLateWakeups()))

	output.WriteString("# HELP duplexd_schedule_mismatches_total Completion frames disagreeing with schedule\n")
	output.WriteString("# TYPE duplexd_schedule_mismatches_total counter\n")
	output.WriteString(fmt.Sprintf("duplexd_schedule_mismatches_total %d\n", h.collector.GetMismatches()))

	output.WriteString("# HELP duplexd_correction_frames Current drift-correction value, in frames\n")
	output.WriteString("# TYPE duplexd_correction_frames gauge\n")
	output.WriteString(fmt.Sprintf("duplexd_correction_frames{channel=\"read\"} %d\n", readCorrection))
	output.WriteString(fmt.Sprintf("duplexd_correction_frames{channel=\"write\"} %d\n", writeCorrection))

	output.WriteString("# HELP duplexd_balance_frames Current channel balance against the clock, in frames\n")
	output.WriteString("# TYPE duplexd_balance_frames gauge\n")
	output.WriteString(fmt.Sprintf("duplexd_balance_frames{channel=\"read\"} %d\n", readBalance))
	output.WriteString(fmt.Sprintf("duplexd_balance_frames{channel=\"write\"} %d\n", writeBalance))

	output.WriteString("# HELP duplexd_runs_total Loop invocations by outcome\n")
	output.WriteString("# TYPE duplexd_runs_total counter\n")
	output.WriteString(fmt.Sprintf("duplexd_runs_total{outcome=\"started\"} %d\n", h.collector.GetRunsStarted()))
	output.WriteString(fmt.Sprintf("duplexd_runs_total{outcome=\"succeeded\"} %d\n", h.collector.GetRunsSucceeded()))
	output.WriteString(fmt.Sprintf("duplexd_runs_total{outcome=\"failed\"} %d\n", h.collector.GetRunsFailed()))

	w.Write([]byte(output.String()))
}

// PrometheusServer is an HTTP server for Prometheus metrics
type PrometheusServer struct {
	config    PrometheusConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
}

// NewPrometheusServer creates a new Prometheus metrics server
func NewPrometheusServer(config PrometheusConfig, collector *Collector, log *logger.Logger) *PrometheusServer {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}

	return &PrometheusServer{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
	}
}

// Start starts the Prometheus metrics server
func (s *PrometheusServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("Prometheus metrics server disabled")
		return nil
	}

	handler := NewPrometheusHandler(s.collector)
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, handler)

	// Use a listener to get the actual port (useful for testing with port 0)
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler: mux,
	}

	s.log.Info("Starting Prometheus metrics server",
		logger.Int("port", actualPort),
		logger.String("path", s.config.Path))

	// Start server
	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.log.Info("Shutting down Prometheus metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Stop stops the Prometheus metrics server
func (s *PrometheusServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}
}
