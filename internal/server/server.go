// Package server exposes the screening pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cognivox/voicescreen/internal/audio"
	"github.com/cognivox/voicescreen/internal/screen"
	"github.com/cognivox/voicescreen/internal/store"
)

const urlFetchTimeout = 30 * time.Second

// Server serves screening requests. The model may be absent at
// startup; loadModel is invoked lazily on the first request that needs
// it and must be safe for concurrent callers.
type Server struct {
	log       *slog.Logger
	screener  *screen.Screener
	history   *store.Store // optional
	loadModel func() error // optional
	version   string
	maxUpload int64
}

// Options configures a Server.
type Options struct {
	Log            *slog.Logger
	Screener       *screen.Screener
	History        *store.Store
	LoadModel      func() error
	Version        string
	MaxUploadBytes int64
}

// New builds a Server from opts.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	return &Server{
		log:       log,
		screener:  opts.Screener,
		history:   opts.History,
		loadModel: opts.LoadModel,
		version:   opts.Version,
		maxUpload: maxUpload,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("POST /predict/url", s.handlePredictURL)
	mux.HandleFunc("GET /screenings", s.handleScreenings)
	return withCORS(mux)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":         "Voice Dementia Screening API",
		"version":      s.version,
		"status":       "running",
		"model_loaded": s.screener.Ready(),
		"endpoints": map[string]string{
			"/":            "API information",
			"/health":      "Health check",
			"/predict":     "Upload audio file for analysis (POST)",
			"/predict/url": "Analyze audio fetched from a URL (POST)",
			"/screenings":  "Recent screening history",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"model_loaded": s.screener.Ready(),
		"engine":       s.screener.EngineName(),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("missing or unreadable file field: %v", err))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !audio.IsSupported(ext) {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Unsupported file type: %s. Allowed types: %s",
				ext, strings.Join(audio.SupportedExtensions, ", ")))
		return
	}

	if !s.ensureModel(w) {
		return
	}

	tmpPath, err := spoolUpload(file, ext)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error saving upload: %v", err))
		return
	}
	defer os.Remove(tmpPath)

	s.analyzeFile(w, r.Context(), tmpPath, "upload:"+header.Filename)
}

type urlRequest struct {
	URL string `json:"url"`
}

func (s *Server) handlePredictURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url field is required")
		return
	}

	if !s.ensureModel(w) {
		return
	}

	tmpPath, status, err := s.fetchToTemp(r.Context(), req.URL, r.Header.Get("Authorization"))
	if err != nil {
		s.writeError(w, status, err.Error())
		return
	}
	defer os.Remove(tmpPath)

	s.analyzeFile(w, r.Context(), tmpPath, "url:"+req.URL)
}

func (s *Server) handleScreenings(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "screening history is not enabled")
		return
	}
	recent, err := s.history.Recent(r.Context(), 50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("query history: %v", err))
		return
	}
	type item struct {
		ID           string    `json:"id"`
		CreatedAt    time.Time `json:"created_at"`
		Source       string    `json:"source"`
		Result       string    `json:"result"`
		DementiaProb float64   `json:"dementia_prob"`
		NormalProb   float64   `json:"normal_prob"`
		Confidence   float64   `json:"confidence"`
		AudioSeconds float64   `json:"audio_seconds"`
		Frames       int       `json:"frames"`
	}
	out := make([]item, 0, len(recent))
	for _, sc := range recent {
		out = append(out, item{
			ID:           sc.ID,
			CreatedAt:    sc.CreatedAt,
			Source:       sc.Source,
			Result:       sc.Result,
			DementiaProb: sc.DementiaProb,
			NormalProb:   sc.NormalProb,
			Confidence:   sc.Confidence,
			AudioSeconds: sc.AudioSeconds,
			Frames:       sc.Frames,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"screenings": out})
}

// ensureModel lazily loads the model when none is published. It writes
// the 503 response itself and reports whether the caller may proceed.
func (s *Server) ensureModel(w http.ResponseWriter) bool {
	if s.screener.Ready() {
		return true
	}
	if s.loadModel != nil {
		if err := s.loadModel(); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("Model not available: %v", err))
			return false
		}
	}
	if !s.screener.Ready() {
		s.writeError(w, http.StatusServiceUnavailable, "Model not loaded. Please ensure a model is available.")
		return false
	}
	return true
}

func (s *Server) analyzeFile(w http.ResponseWriter, ctx context.Context, path, source string) {
	samples, err := audio.Load(path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing file: %v", err))
		return
	}
	report, err := s.screener.Analyze(samples)
	if err != nil {
		if errors.Is(err, screen.ErrModelNotLoaded) {
			s.writeError(w, http.StatusServiceUnavailable, "Model not loaded. Please ensure a model is available.")
			return
		}
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing audio: %v", err))
		return
	}

	s.record(ctx, source, report)
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) record(ctx context.Context, source string, report *screen.Report) {
	if s.history == nil {
		return
	}
	sc := store.Screening{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now(),
		Source:       source,
		Result:       report.Result,
		DementiaProb: report.Probabilities.Dementia,
		NormalProb:   report.Probabilities.Normal,
		Confidence:   report.Confidence,
		AudioSeconds: report.AudioInfo.LengthSeconds,
		Frames:       report.AudioInfo.FeatureShape[0],
	}
	if err := s.history.Record(ctx, sc); err != nil {
		s.log.Warn("failed to record screening", "error", err)
	}
}

// fetchToTemp downloads url to a temp file, passing through bearer
// auth. Upstream 401/403/404 map to the same status for the client.
func (s *Server) fetchToTemp(ctx context.Context, rawURL, authorization string) (string, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, urlFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("invalid url: %w", err)
	}
	if authorization != "" {
		if !strings.HasPrefix(authorization, "Bearer ") {
			authorization = "Bearer " + authorization
		}
		req.Header.Set("Authorization", authorization)
	}
	req.Header.Set("User-Agent", "voicescreen/1.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", http.StatusInternalServerError,
			fmt.Errorf("Error accessing URL: %v. Check if the URL is valid and accessible", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return "", http.StatusUnauthorized,
			errors.New("Unauthorized: Invalid or missing authentication token. Provide a valid Bearer token")
	case http.StatusForbidden:
		return "", http.StatusForbidden,
			errors.New("Forbidden: Access denied. Check if the file is public or use a signed URL with proper authentication")
	case http.StatusNotFound:
		return "", http.StatusNotFound, errors.New("File not found at the provided URL")
	default:
		return "", http.StatusInternalServerError,
			fmt.Errorf("Error downloading file: HTTP %d", resp.StatusCode)
	}

	ext := strings.ToLower(filepath.Ext(stripQuery(rawURL)))
	if !audio.IsSupported(ext) {
		ext = ".wav"
	}
	path, err := spoolUpload(io.LimitReader(resp.Body, s.maxUpload), ext)
	if err != nil {
		return "", http.StatusInternalServerError, fmt.Errorf("Error saving download: %w", err)
	}
	return path, 0, nil
}

func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// spoolUpload writes r to a temp file carrying the given extension so
// downstream format detection keeps working.
func spoolUpload(r io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp("", "voicescreen-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.log.Warn("request failed", "status", status, "detail", msg)
	s.writeJSON(w, status, map[string]string{"detail": msg})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
