// Package memory provides an in-memory storage provider for tests.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/octopus-bim/octopus/pkg/storage"
)

// ID is the provider identifier recorded on file rows.
const ID = "memory"

type object struct {
	data        []byte
	contentType string
}

// Provider is an in-memory implementation of storage.Provider.
// Safe for concurrent use.
type Provider struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates an empty in-memory provider.
func New() *Provider {
	return &Provider{objects: make(map[string]object)}
}

func (p *Provider) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.objects[key] = object{data: data, contentType: contentType}
	p.mu.Unlock()
	return nil
}

func (p *Provider) OpenRead(ctx context.Context, key string) (io.ReadCloser, error) {
	p.mu.RLock()
	obj, ok := p.objects[key]
	p.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (p *Provider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	delete(p.objects, key)
	p.mu.Unlock()
	return nil
}

func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	p.mu.RLock()
	_, ok := p.objects[key]
	p.mu.RUnlock()
	return ok, nil
}

func (p *Provider) Size(ctx context.Context, key string) (int64, error) {
	p.mu.RLock()
	obj, ok := p.objects[key]
	p.mu.RUnlock()
	if !ok {
		return 0, storage.ErrNotFound
	}
	return int64(len(obj.data)), nil
}

func (p *Provider) ProviderID() string {
	return ID
}

// Len returns the number of stored objects. Test helper.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.objects)
}

var _ storage.Provider = (*Provider)(nil)
