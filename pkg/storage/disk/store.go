// Package disk provides a filesystem-backed storage provider.
// Objects are stored as files with the storage key as the relative path.
package disk

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/octopus-bim/octopus/pkg/storage"
)

// ID is the provider identifier recorded on file rows.
const ID = "disk"

// Config holds configuration for the disk provider.
type Config struct {
	// BasePath is the root directory for object storage.
	// Keys are stored as paths relative to this directory.
	BasePath string `mapstructure:"path" yaml:"path"`

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode `mapstructure:"-" yaml:"-"`

	// FileMode is the permission mode for created files.
	// Default: 0644
	FileMode os.FileMode `mapstructure:"-" yaml:"-"`
}

// Provider is a filesystem-backed implementation of storage.Provider.
type Provider struct {
	basePath string
	dirMode  os.FileMode
	fileMode os.FileMode
}

// New creates a new disk provider, creating the base directory if needed.
func New(cfg Config) (*Provider, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("base path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	if err := os.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
		return nil, err
	}
	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("base path is not a directory")
	}

	return &Provider{
		basePath: cfg.BasePath,
		dirMode:  cfg.DirMode,
		fileMode: cfg.FileMode,
	}, nil
}

// objectPath returns the full filesystem path for a storage key.
// Keys use forward slashes as separators.
func (p *Provider) objectPath(key string) string {
	return filepath.Join(p.basePath, filepath.FromSlash(key))
}

// Put writes the stream to a temporary file and renames it into place, so
// readers never observe a torn write.
func (p *Provider) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	path := p.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(path), p.dirMode); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Chmod(tmpPath, p.fileMode); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// OpenRead opens the object for streaming.
func (p *Provider) OpenRead(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(p.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the object. Absent keys are not an error.
func (p *Provider) Delete(ctx context.Context, key string) error {
	err := os.Remove(p.objectPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether the object is present.
func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(p.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Size returns the object length in bytes.
func (p *Provider) Size(ctx context.Context, key string) (int64, error) {
	info, err := os.Stat(p.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, storage.ErrNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// ProviderID returns the stable provider identifier.
func (p *Provider) ProviderID() string {
	return ID
}

var _ storage.Provider = (*Provider)(nil)
