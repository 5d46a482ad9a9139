package remote

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, "a", []byte("snap"), time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("snap")) {
		t.Errorf("got %q", got)
	}
}

func TestMemoryStoreMissingSession(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Load(context.Background(), "nope")
	if err != nil || got != nil {
		t.Errorf("got %v, %v; want nil, nil", got, err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Save(ctx, "a", []byte("x"), time.Now().Add(-time.Second))

	got, err := s.Load(ctx, "a")
	if err != nil || got != nil {
		t.Errorf("expired load = %v, %v; want nil, nil", got, err)
	}
	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Save(ctx, "a", []byte("x"), time.Now().Add(time.Minute))
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Load(ctx, "a"); got != nil {
		t.Errorf("got %q after delete", got)
	}
	// Deleting again is not an error.
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStoreCopiesData(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	src := []byte("abc")
	s.Save(ctx, "a", src, time.Now().Add(time.Minute))
	src[0] = 'z'

	got, _ := s.Load(ctx, "a")
	if !bytes.Equal(got, []byte("abc")) {
		t.Errorf("stored data aliases caller's slice: %q", got)
	}
	got[0] = 'q'
	again, _ := s.Load(ctx, "a")
	if !bytes.Equal(again, []byte("abc")) {
		t.Errorf("loaded data aliases store: %q", again)
	}
}
