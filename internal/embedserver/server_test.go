package embedserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sokkuri/internal/config"
	"github.com/hyperjump/sokkuri/internal/embedding"
	"github.com/hyperjump/sokkuri/internal/models"
	"github.com/hyperjump/sokkuri/internal/objstore"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func newReadyServer(t *testing.T) (*Server, *objstore.MemoryStore) {
	t.Helper()
	store := objstore.NewMemoryStore()
	engine := embedding.NewGate(embedding.NewMockEngine(768), 1, time.Second)
	readiness := embedding.NewReadiness()
	readiness.Ready()
	return NewServer(store, engine, readiness, testConfig(), zap.NewNop()), store
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 77, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func postEmbed(t *testing.T, handler http.Handler, req models.EmbedRequest) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/embed", bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestEmbedEndpoint(t *testing.T) {
	srv, store := newReadyServer(t)
	source := models.ObjectRef{Bucket: "screens", Key: "a.png"}
	if err := store.Put(context.Background(), source, pngBytes(t), "image/png"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	w := postEmbed(t, srv.Handler(), models.EmbedRequest{Source: source})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.EmbedResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Dimension != 768 || len(resp.Vector) != 768 {
		t.Errorf("expected 768-dimension vector, got dimension=%d len=%d", resp.Dimension, len(resp.Vector))
	}
	if resp.Model == "" {
		t.Error("expected model name in response")
	}
}

func TestEmbedMissingObject(t *testing.T) {
	srv, _ := newReadyServer(t)
	w := postEmbed(t, srv.Handler(), models.EmbedRequest{
		Source: models.ObjectRef{Bucket: "screens", Key: "missing.png"},
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestEmbedUndecodableObject(t *testing.T) {
	srv, store := newReadyServer(t)
	source := models.ObjectRef{Bucket: "screens", Key: "readme.txt"}
	if err := store.Put(context.Background(), source, []byte("plain text"), "text/plain"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	w := postEmbed(t, srv.Handler(), models.EmbedRequest{Source: source})
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", w.Code)
	}
}

func TestEmbedInvalidReference(t *testing.T) {
	srv, _ := newReadyServer(t)
	w := postEmbed(t, srv.Handler(), models.EmbedRequest{Source: models.ObjectRef{Bucket: "screens"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestEmbedRefusedWhileLoading(t *testing.T) {
	store := objstore.NewMemoryStore()
	engine := embedding.NewGate(embedding.NewMockEngine(768), 1, time.Second)
	srv := NewServer(store, engine, embedding.NewReadiness(), testConfig(), zap.NewNop())

	w := postEmbed(t, srv.Handler(), models.EmbedRequest{
		Source: models.ObjectRef{Bucket: "screens", Key: "a.png"},
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while loading, got %d", w.Code)
	}
}

func TestHealthLifecycle(t *testing.T) {
	store := objstore.NewMemoryStore()
	engine := embedding.NewGate(embedding.NewMockEngine(768), 1, time.Second)
	readiness := embedding.NewReadiness()
	srv := NewServer(store, engine, readiness, testConfig(), zap.NewNop())

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		return w
	}

	if w := get(); w.Code != http.StatusServiceUnavailable {
		t.Errorf("loading: expected 503, got %d", w.Code)
	}

	readiness.Ready()
	w := get()
	if w.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ready" {
		t.Errorf("unexpected status: %v", body["status"])
	}
	if body["dimension"].(float64) != 768 {
		t.Errorf("unexpected dimension: %v", body["dimension"])
	}
}

func TestHealthFailedReportsCause(t *testing.T) {
	store := objstore.NewMemoryStore()
	engine := embedding.NewGate(embedding.NewMockEngine(768), 1, time.Second)
	readiness := embedding.NewReadiness()
	readiness.Fail(errors.New("CUDA device is not available"))
	srv := NewServer(store, engine, readiness, testConfig(), zap.NewNop())

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "failed" {
		t.Errorf("unexpected status: %v", body["status"])
	}
	if cause, ok := body["error"].(string); !ok || cause == "" {
		t.Error("expected failure cause in health body")
	}
}
