package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
)

func TestClientEmbed(t *testing.T) {
	vector := make([]float32, 768)
	vector[0] = 0.5

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/embed" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req models.EmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Source.Bucket != "screens" || req.Source.Key != "a.png" {
			t.Errorf("unexpected source: %+v", req.Source)
		}
		json.NewEncoder(w).Encode(models.EmbedResponse{
			Model:     "vit_base_patch14_dinov2",
			Dimension: 768,
			Vector:    vector,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 768)
	got, err := client.Embed(context.Background(), models.ObjectRef{Bucket: "screens", Key: "a.png"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(got) != 768 || got[0] != 0.5 {
		t.Errorf("unexpected vector: len=%d first=%v", len(got), got[0])
	}
}

func TestClientEmbedStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   errs.Kind
	}{
		{"missing object", http.StatusNotFound, errs.KindNotFound},
		{"undecodable content", http.StatusUnsupportedMediaType, errs.KindContent},
		{"queue saturated", http.StatusServiceUnavailable, errs.KindTimeout},
		{"server error", http.StatusInternalServerError, errs.KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tt.name, tt.status)
			}))
			defer srv.Close()

			client := NewClient(srv.URL, 768)
			_, err := client.Embed(context.Background(), models.ObjectRef{Bucket: "b", Key: "k"})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errs.Is(err, tt.want) {
				t.Errorf("expected kind %v, got %v", tt.want, errs.KindOf(err))
			}
		})
	}
}

func TestClientEmbedDimensionCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.EmbedResponse{Model: "m", Dimension: 3, Vector: []float32{1, 2, 3}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 768)
	_, err := client.Embed(context.Background(), models.ObjectRef{Bucket: "b", Key: "k"})
	if err == nil {
		t.Fatal("expected dimension mismatch error, got nil")
	}
	if !errs.Is(err, errs.KindUpstream) {
		t.Errorf("expected upstream kind, got %v", errs.KindOf(err))
	}
}

func TestClientEmbedUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 768)
	_, err := client.Embed(context.Background(), models.ObjectRef{Bucket: "b", Key: "k"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errs.Is(err, errs.KindUpstream) {
		t.Errorf("expected upstream kind, got %v", errs.KindOf(err))
	}
}

func TestClientHealth(t *testing.T) {
	ready := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			http.Error(w, "loading", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 768)
	if err := client.Health(context.Background()); err == nil {
		t.Error("expected health failure while loading")
	}
	ready = true
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
}
