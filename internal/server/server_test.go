package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cognivox/voicescreen/internal/engine"
	"github.com/cognivox/voicescreen/internal/screen"
	"github.com/cognivox/voicescreen/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// testWAV builds a mono 16-bit PCM WAV of n sine samples at 16 kHz.
func testWAV(n int) []byte {
	var data bytes.Buffer
	for i := 0; i < n; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*330*float64(i)/16000))
		binary.Write(&data, binary.LittleEndian, v)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(32000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

func newTestServer(t *testing.T, ready bool) (*Server, *screen.Screener) {
	t.Helper()
	screener := screen.New()
	if ready {
		screener.Publish(engine.NewStubEngine())
	}
	srv := New(Options{
		Log:      testLogger(),
		Screener: screener,
		Version:  "test",
	})
	return srv, screener
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, true)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", resp["status"])
	}
	if resp["model_loaded"] != true {
		t.Errorf("model_loaded = %v, want true", resp["model_loaded"])
	}
	if resp["engine"] != "stub" {
		t.Errorf("engine = %v, want stub", resp["engine"])
	}
}

func TestRootEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["model_loaded"] != false {
		t.Errorf("model_loaded = %v, want false", resp["model_loaded"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestPredictUpload(t *testing.T) {
	srv, _ := newTestServer(t, true)
	body, contentType := multipartBody(t, "sample.wav", testWAV(16000))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var report screen.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Status != "success" {
		t.Errorf("Status = %q, want success", report.Status)
	}
	if report.Result != screen.LabelNormal {
		t.Errorf("Result = %q, want %q (stub engine)", report.Result, screen.LabelNormal)
	}
	if report.AudioInfo.LengthSeconds != 1 {
		t.Errorf("LengthSeconds = %v, want 1", report.AudioInfo.LengthSeconds)
	}
	if report.Note == "" {
		t.Error("Note missing from response")
	}
}

func TestPredictRejectsUnsupportedExtension(t *testing.T) {
	srv, _ := newTestServer(t, true)
	body, contentType := multipartBody(t, "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Unsupported file type") {
		t.Errorf("body %q does not explain the rejection", rec.Body.String())
	}
}

func TestPredictWithoutModel(t *testing.T) {
	srv, _ := newTestServer(t, false)
	body, contentType := multipartBody(t, "sample.wav", testWAV(16000))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestPredictLazyLoad(t *testing.T) {
	screener := screen.New()
	loads := 0
	srv := New(Options{
		Log:      testLogger(),
		Screener: screener,
		LoadModel: func() error {
			loads++
			screener.Publish(engine.NewStubEngine())
			return nil
		},
	})

	body, contentType := multipartBody(t, "sample.wav", testWAV(16000))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 after lazy load, body %s", rec.Code, rec.Body.String())
	}
	if loads != 1 {
		t.Errorf("loadModel called %d times, want 1", loads)
	}
}

func TestPredictLazyLoadFailure(t *testing.T) {
	screener := screen.New()
	srv := New(Options{
		Log:       testLogger(),
		Screener:  screener,
		LoadModel: func() error { return errors.New("no checkpoint") },
	})

	body, contentType := multipartBody(t, "sample.wav", testWAV(16000))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Model not available") {
		t.Errorf("body %q does not surface the load error", rec.Body.String())
	}
}

func TestPredictURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token123" {
			t.Errorf("upstream Authorization = %q, want Bearer token123", got)
		}
		w.Write(testWAV(16000))
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t, true)
	payload := `{"url":"` + upstream.URL + `/clip.wav"}`
	req := httptest.NewRequest(http.MethodPost, "/predict/url", strings.NewReader(payload))
	req.Header.Set("Authorization", "token123") // bare token must gain the Bearer prefix

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var report screen.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Result != screen.LabelNormal {
		t.Errorf("Result = %q, want %q", report.Result, screen.LabelNormal)
	}
}

func TestPredictURLMapsUpstreamStatus(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		srv, _ := newTestServer(t, true)
		payload := `{"url":"` + upstream.URL + `/clip.wav"}`
		req := httptest.NewRequest(http.MethodPost, "/predict/url", strings.NewReader(payload))

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != code {
			t.Errorf("upstream %d mapped to %d, want passthrough", code, rec.Code)
		}
		upstream.Close()
	}
}

func TestPredictURLMissingField(t *testing.T) {
	srv, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodPost, "/predict/url", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestScreeningsHistory(t *testing.T) {
	history, err := store.Open(filepath.Join(t.TempDir(), "screenings.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer history.Close()

	screener := screen.New()
	screener.Publish(engine.NewStubEngine())
	srv := New(Options{
		Log:      testLogger(),
		Screener: screener,
		History:  history,
	})

	body, contentType := multipartBody(t, "sample.wav", testWAV(16000))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("predict status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/screenings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("screenings status = %d", rec.Code)
	}
	var resp struct {
		Screenings []struct {
			Result string `json:"result"`
			Source string `json:"source"`
		} `json:"screenings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Screenings) != 1 {
		t.Fatalf("history has %d rows, want 1", len(resp.Screenings))
	}
	if resp.Screenings[0].Result != screen.LabelNormal {
		t.Errorf("recorded result = %q, want %q", resp.Screenings[0].Result, screen.LabelNormal)
	}
	if !strings.HasPrefix(resp.Screenings[0].Source, "upload:") {
		t.Errorf("recorded source = %q, want upload prefix", resp.Screenings[0].Source)
	}
}

func TestScreeningsWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t, true)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/screenings", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when history is disabled", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, false)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/predict", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin header")
	}
}
