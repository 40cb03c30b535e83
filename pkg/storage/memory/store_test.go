package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/octopus-bim/octopus/pkg/storage"
)

func TestRoundTrip(t *testing.T) {
	p := New()
	ctx := context.Background()

	if err := p.Put(ctx, "a/b", strings.NewReader("hello"), "text/plain"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	r, err := p.OpenRead(ctx, "a/b")
	if err != nil {
		t.Fatalf("OpenRead failed: %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "hello" {
		t.Errorf("Read %q, want hello", data)
	}

	size, err := p.Size(ctx, "a/b")
	if err != nil || size != 5 {
		t.Errorf("Size = %d, %v", size, err)
	}
	if p.Len() != 1 {
		t.Errorf("Expected 1 object, got %d", p.Len())
	}

	if err := p.Delete(ctx, "a/b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := p.OpenRead(ctx, "a/b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := p.Size(ctx, "a/b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := p.Delete(ctx, "a/b"); err != nil {
		t.Errorf("Delete of absent key failed: %v", err)
	}
}

func TestKeyValidation(t *testing.T) {
	p := New()
	if err := p.Put(context.Background(), "", strings.NewReader("x"), ""); err == nil {
		t.Error("Expected empty key to be rejected")
	}
}

func TestConcurrentAccess(t *testing.T) {
	p := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "k/" + string(rune('a'+n))
			if err := p.Put(ctx, key, strings.NewReader("x"), ""); err != nil {
				t.Errorf("Put failed: %v", err)
				return
			}
			if exists, _ := p.Exists(ctx, key); !exists {
				t.Errorf("Expected %s to exist", key)
			}
		}(i)
	}
	wg.Wait()
	if p.Len() != 16 {
		t.Errorf("Expected 16 objects, got %d", p.Len())
	}
}
