package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/clock"
	"github.com/MeKo-Tech/tslatency/internal/frame"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/MeKo-Tech/tslatency/internal/pixelcodec"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
)

const (
	defaultUploadFormat = frame.I420
	defaultUploadStream = "upload"

	headerStampTime = "X-Tslatency-Stamp-Time"
	headerSeq       = "X-Tslatency-Seq"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// summaryHandler returns the aggregated measurements. DELETE starts a new
// aggregation window.
func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap := s.summary.Snapshot()
		s.writeJSON(w, http.StatusOK, SummaryResponse{
			Snapshot:    snap,
			DecodeRate:  snap.DecodeRate(),
			Subscribers: s.broadcaster.Subscribers(),
			Dropped:     s.broadcaster.Dropped(),
		})
	case http.MethodDelete:
		s.summary.Reset()
		slog.Info("Summary reset", "remote_addr", r.RemoteAddr)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// contractHandler documents the wire format stamps are written in.
func (s *Server) contractHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := latency.NewStamper(s.latency)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, ContractResponse{
		Contract:     st.Contract(),
		Layout:       s.latency.Layout,
		CapacityBits: s.latency.Layout.Capacity(),
		Tolerance:    s.latency.Tolerance,
	})
}

// measureHandler reads the stamp of an uploaded image. The receive time is
// the server clock unless the form carries "at" in nanoseconds.
func (s *Server) measureHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	f, err := s.parseFrameRequest(w, r)
	if err != nil {
		uploadsTotal.WithLabelValues("measure", "error").Inc()
		return
	}
	clk, err := s.requestClock(r)
	if err != nil {
		uploadsTotal.WithLabelValues("measure", "error").Inc()
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := latency.NewMeasurer(s.latency,
		latency.WithClock(clk),
		latency.WithStream(streamName(r)))
	if err == nil {
		err = m.ValidateConfiguration(f.Info)
	}
	if err != nil {
		uploadsTotal.WithLabelValues("measure", "error").Inc()
		s.writeErrorResponse(w, err.Error(), statusFor(err))
		return
	}

	res, err := m.Measure(f)
	if err != nil {
		uploadsTotal.WithLabelValues("measure", "error").Inc()
		s.writeErrorResponse(w, err.Error(), statusFor(err))
		return
	}
	uploadsTotal.WithLabelValues("measure", res.Status.String()).Inc()
	s.broadcaster.Report(res)

	slog.Debug("Measured upload",
		"stream", res.Stream,
		"status", res.Status.String(),
		"delta", res.Delta)
	s.writeJSON(w, http.StatusOK, res.Event())
}

// stampHandler stamps an uploaded image and returns it as PNG. Stamp time
// and sequence number are echoed in response headers.
func (s *Server) stampHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	f, err := s.parseFrameRequest(w, r)
	if err != nil {
		uploadsTotal.WithLabelValues("stamp", "error").Inc()
		return
	}
	clk, err := s.requestClock(r)
	if err != nil {
		uploadsTotal.WithLabelValues("stamp", "error").Inc()
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := latency.NewStamper(s.latency,
		latency.WithClock(clk),
		latency.WithStream(streamName(r)))
	if err == nil {
		err = st.ValidateConfiguration(f.Info)
	}
	if err != nil {
		uploadsTotal.WithLabelValues("stamp", "error").Inc()
		s.writeErrorResponse(w, err.Error(), statusFor(err))
		return
	}
	p, err := st.Stamp(f)
	if err != nil {
		uploadsTotal.WithLabelValues("stamp", "error").Inc()
		s.writeErrorResponse(w, err.Error(), statusFor(err))
		return
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, f.ToImage(), imaging.PNG); err != nil {
		uploadsTotal.WithLabelValues("stamp", "error").Inc()
		s.writeErrorResponse(w, "Failed to encode image", http.StatusInternalServerError)
		return
	}
	uploadsTotal.WithLabelValues("stamp", "ok").Inc()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set(headerStampTime, strconv.FormatUint(p.Timestamp, 10))
	w.Header().Set(headerSeq, strconv.FormatUint(uint64(p.Seq), 10))
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Failed to write stamped image", "error", err)
	}
}

// parseFrameRequest reads the multipart "image" field and converts it to a
// frame in the requested pixel format. On error the response has been
// written.
func (s *Server) parseFrameRequest(w http.ResponseWriter, r *http.Request) (*frame.Frame, error) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return nil, err
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return nil, err
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, fmt.Errorf("upload of %d bytes exceeds limit", header.Size)
	}
	uploadSizeBytes.Observe(float64(header.Size))

	img, err := imaging.Decode(file)
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return nil, err
	}

	format := defaultUploadFormat
	if v := r.FormValue("format"); v != "" {
		if format, err = frame.ParseFormat(v); err != nil {
			s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
			return nil, err
		}
	}
	f, err := frame.FromImage(img, format)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return nil, err
	}
	return f, nil
}

// requestClock returns a fixed clock when the request pins the time with
// "at", otherwise the server clock.
func (s *Server) requestClock(r *http.Request) (clock.Clock, error) {
	v := r.FormValue("at")
	if v == "" {
		return s.clock, nil
	}
	ns, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid at %q: %w", v, err)
	}
	return clock.Func(func() uint64 { return ns }), nil
}

func streamName(r *http.Request) string {
	if v := r.FormValue("stream"); v != "" {
		return v
	}
	return defaultUploadStream
}

// statusFor maps configuration errors caused by the upload to 4xx.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pixelcodec.ErrRegionOutOfBounds),
		errors.Is(err, pixelcodec.ErrFrameMismatch),
		errors.Is(err, frame.ErrInvalidFrame),
		errors.Is(err, frame.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}
