package objstore

import (
	"context"
	"testing"

	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ref := models.ObjectRef{Bucket: "shots", Key: "a.png"}

	if err := s.Put(ctx, ref, []byte("pixels"), "image/png"); err != nil {
		t.Fatal(err)
	}
	data, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pixels" {
		t.Errorf("Get() = %q", data)
	}
	if err := s.Stat(ctx, ref); err != nil {
		t.Errorf("Stat() = %v", err)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ref := models.ObjectRef{Bucket: "shots", Key: "missing.png"}

	_, err := s.Get(ctx, ref)
	if !errs.Is(err, errs.KindNotFound) {
		t.Errorf("Get missing: kind = %v, want not_found", errs.KindOf(err))
	}
	if err := s.Stat(ctx, ref); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("Stat missing: kind = %v, want not_found", errs.KindOf(err))
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ref := models.ObjectRef{Bucket: "shots", Key: "a.png"}
	_ = s.Put(ctx, ref, []byte("abc"), "image/png")

	data, _ := s.Get(ctx, ref)
	data[0] = 'x'
	again, _ := s.Get(ctx, ref)
	if string(again) != "abc" {
		t.Error("stored bytes should not be mutable through Get result")
	}
}
