// Package registry implements the Octopus file registry: the
// reserve -> upload -> commit session state machine, file queries and
// downloads, lineage links and the expiry sweeper.
//
// File rows and their bytes live in different systems (the store and a
// storage provider); the registry keeps the two consistent. Bytes are
// written before rows, so a crash leaves at worst orphaned bytes in the
// uploads pool, which the sweeper reclaims.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/metrics"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/storage"
	"github.com/octopus-bim/octopus/pkg/store"
)

// Config holds registry settings.
type Config struct {
	// ReserveTTL is the lifetime of an upload session. Default: 24 hours.
	ReserveTTL time.Duration

	// SweepInterval is the period of the expiry sweeper. Default: 1 minute.
	SweepInterval time.Duration

	// DefaultQuotaBytes applies to workspaces without an explicit quota.
	// Nil means unlimited.
	DefaultQuotaBytes *int64
}

// Service is the file registry service.
type Service struct {
	store    store.Store
	provider storage.Provider
	cfg      Config

	now func() time.Time
}

// NewService creates a registry backed by the given store and provider.
func NewService(s store.Store, p storage.Provider, cfg Config) *Service {
	if cfg.ReserveTTL == 0 {
		cfg.ReserveTTL = 24 * time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Service{store: s, provider: p, cfg: cfg, now: time.Now}
}

// Reserve opens an upload session for a project. The returned session is in
// Reserved state and expires after the configured TTL.
func (s *Service) Reserve(ctx context.Context, projectID, fileName, contentType string, expectedSize *int64) (*models.UploadSession, error) {
	if fileName == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if expectedSize != nil && *expectedSize < 0 {
		return nil, fmt.Errorf("expected size must not be negative")
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	session := &models.UploadSession{
		ProjectID:         projectID,
		FileName:          fileName,
		ContentType:       contentType,
		ExpectedSizeBytes: expectedSize,
		Status:            models.UploadStatusReserved,
		TempStorageKey:    BuildStorageKey(project.WorkspaceID, projectID, PoolUploads, fileName),
		ExpiresAt:         s.now().Add(s.cfg.ReserveTTL),
	}
	if _, err := s.store.CreateUploadSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// UploadContent streams the request body into the session's temp location.
// Allowed from Reserved or Uploading; re-uploading replaces the temp bytes.
// A size mismatch against the reservation fails the session terminally.
func (s *Service) UploadContent(ctx context.Context, sessionID string, body io.Reader) (*models.UploadSession, error) {
	session, err := s.loadLiveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	err = s.store.TransitionUploadSession(ctx, sessionID,
		[]models.UploadStatus{models.UploadStatusReserved, models.UploadStatusUploading},
		models.UploadStatusUploading)
	if err != nil {
		return nil, err
	}
	session.Status = models.UploadStatusUploading

	counted := &countingReader{r: body}
	if err := s.provider.Put(ctx, session.TempStorageKey, counted, session.ContentType); err != nil {
		return nil, fmt.Errorf("failed to write upload content: %w", err)
	}

	if session.ExpectedSizeBytes != nil && counted.n != *session.ExpectedSizeBytes {
		s.failSession(ctx, session, fmt.Sprintf("expected %d bytes, received %d", *session.ExpectedSizeBytes, counted.n))
		return nil, fmt.Errorf("%w: expected %d bytes, received %d",
			models.ErrSizeMismatch, *session.ExpectedSizeBytes, counted.n)
	}
	return session, nil
}

// Commit finalizes the session: the temp bytes are promoted to the files
// pool, the checksum is computed (and verified against clientChecksum when
// provided), and the file row is created atomically with the session
// transition and the workspace quota check.
//
// On quota violation the session stays Uploading so the client can retry
// after space is freed.
func (s *Service) Commit(ctx context.Context, sessionID, clientChecksum string) (*models.File, error) {
	session, err := s.loadLiveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.UploadStatusUploading {
		return nil, fmt.Errorf("%w: no content uploaded yet", models.ErrSessionConflict)
	}

	project, err := s.store.GetProject(ctx, session.ProjectID)
	if err != nil {
		return nil, err
	}
	workspace, err := s.store.GetWorkspace(ctx, project.WorkspaceID)
	if err != nil {
		return nil, err
	}

	size, err := s.provider.Size(ctx, session.TempStorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: upload bytes are missing", models.ErrStorageInconsistency)
		}
		return nil, err
	}

	// Promote the bytes into the files pool, hashing along the way.
	finalKey := BuildStorageKey(project.WorkspaceID, session.ProjectID, PoolFiles, session.FileName)
	checksum, err := s.copyHashed(ctx, session.TempStorageKey, finalKey, session.ContentType)
	if err != nil {
		return nil, err
	}
	if clientChecksum != "" && clientChecksum != checksum {
		_ = s.provider.Delete(ctx, finalKey)
		s.failSession(ctx, session, "checksum mismatch")
		return nil, models.ErrChecksumMismatch
	}

	file := &models.File{
		ProjectID:       session.ProjectID,
		Name:            session.FileName,
		ContentType:     session.ContentType,
		SizeBytes:       size,
		Checksum:        checksum,
		Kind:            models.FileKindSource,
		Category:        models.InferCategory(session.FileName, session.ContentType),
		StorageProvider: s.provider.ProviderID(),
		StorageKey:      finalKey,
	}

	quota := workspace.QuotaBytes
	if quota == nil {
		quota = s.cfg.DefaultQuotaBytes
	}
	committed, err := s.store.CommitUploadSession(ctx, sessionID, file, quota)
	if err != nil {
		// The row was not created; drop the promoted copy. The temp bytes
		// stay so an Uploading session can still be retried or swept.
		_ = s.provider.Delete(ctx, finalKey)
		return nil, err
	}

	if err := s.provider.Delete(ctx, session.TempStorageKey); err != nil {
		logger.Warn("failed to delete temp upload bytes", "session_id", sessionID, "error", err)
	}
	metrics.UploadsCommittedTotal.Inc()
	logger.Info("upload committed", "session_id", sessionID, "file_id", committed.ID, "size", size)
	return committed, nil
}

// GetSession returns an upload session by ID.
func (s *Service) GetSession(ctx context.Context, id string) (*models.UploadSession, error) {
	return s.store.GetUploadSession(ctx, id)
}

// loadLiveSession loads a session, rejecting terminal ones and lazily
// expiring past-due ones.
func (s *Service) loadLiveSession(ctx context.Context, id string) (*models.UploadSession, error) {
	session, err := s.store.GetUploadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: status is %s", models.ErrSessionTerminal, session.Status)
	}
	if session.Expired(s.now()) {
		err := s.store.TransitionUploadSession(ctx, id,
			[]models.UploadStatus{models.UploadStatusReserved, models.UploadStatusUploading},
			models.UploadStatusExpired)
		if err == nil {
			_ = s.provider.Delete(ctx, session.TempStorageKey)
		}
		return nil, models.ErrSessionExpired
	}
	return session, nil
}

func (s *Service) failSession(ctx context.Context, session *models.UploadSession, reason string) {
	err := s.store.TransitionUploadSession(ctx, session.ID,
		[]models.UploadStatus{models.UploadStatusReserved, models.UploadStatusUploading},
		models.UploadStatusFailed)
	if err != nil {
		logger.Warn("failed to fail upload session", "session_id", session.ID, "error", err)
		return
	}
	_ = s.provider.Delete(ctx, session.TempStorageKey)
	logger.Warn("upload session failed", "session_id", session.ID, "reason", reason)
}

// copyHashed copies src to dst within the provider, returning the SHA-256
// hex digest of the bytes.
func (s *Service) copyHashed(ctx context.Context, src, dst, contentType string) (string, error) {
	r, err := s.provider.OpenRead(ctx, src)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: upload bytes are missing", models.ErrStorageInconsistency)
		}
		return "", err
	}
	defer r.Close()

	h := sha256.New()
	if err := s.provider.Put(ctx, dst, io.TeeReader(r, h), contentType); err != nil {
		return "", fmt.Errorf("failed to promote upload bytes: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RunSweeper expires past-due sessions and reclaims their temp bytes until
// the context is cancelled.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	expired, err := s.store.ExpireUploadSessions(ctx, s.now())
	if err != nil {
		logger.Error("upload session sweep failed", "error", err)
		return
	}
	for _, session := range expired {
		if session.TempStorageKey == "" {
			continue
		}
		if err := s.provider.Delete(ctx, session.TempStorageKey); err != nil {
			logger.Warn("failed to reclaim temp upload bytes", "session_id", session.ID, "error", err)
		}
	}
	if len(expired) > 0 {
		logger.Info("expired upload sessions", "count", len(expired))
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
