package registry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/storage"
	"github.com/octopus-bim/octopus/pkg/store"
)

// GetFile returns a file row by ID. Soft-deleted files are returned; callers
// decide how to surface them.
func (s *Service) GetFile(ctx context.Context, id string) (*models.File, error) {
	return s.store.GetFile(ctx, id)
}

// ListFiles returns the project's files matching the filter, newest first.
func (s *Service) ListFiles(ctx context.Context, projectID string, filter store.FileFilter, page store.Page) ([]*models.File, int64, error) {
	return s.store.ListFiles(ctx, projectID, filter, page)
}

// Download opens the file's bytes for streaming. A row whose bytes are
// missing surfaces models.ErrStorageInconsistency; handlers map it to an
// internal error, never a 404.
func (s *Service) Download(ctx context.Context, id string) (*models.File, io.ReadCloser, error) {
	file, err := s.store.GetFile(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if file.IsDeleted {
		return nil, nil, models.ErrFileDeleted
	}
	r, err := s.provider.OpenRead(ctx, file.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Error("file bytes missing from storage", "file_id", file.ID, "key", file.StorageKey)
			return nil, nil, fmt.Errorf("%w: bytes missing for file %s", models.ErrStorageInconsistency, file.ID)
		}
		return nil, nil, err
	}
	return file, r, nil
}

// DeleteFile soft-deletes a file. Deletion is blocked while any non-deleted
// file still links to it, so an artifact outlives no-one but its source:
// once the source is deleted, its artifacts become deletable. The bytes are
// reclaimed immediately; the row stays for history.
func (s *Service) DeleteFile(ctx context.Context, id string) error {
	file, err := s.store.GetFile(ctx, id)
	if err != nil {
		return err
	}
	if file.IsDeleted {
		return models.ErrFileDeleted
	}

	links, err := s.store.ListLinksTargeting(ctx, id)
	if err != nil {
		return err
	}
	for _, link := range links {
		src, err := s.store.GetFile(ctx, link.SourceFileID)
		if err != nil {
			return err
		}
		if !src.IsDeleted {
			return fmt.Errorf("%w: %s %s this file", models.ErrFileLinked, src.ID, link.LinkType)
		}
	}

	if err := s.store.SoftDeleteFile(ctx, id, s.now()); err != nil {
		return err
	}
	if err := s.provider.Delete(ctx, file.StorageKey); err != nil {
		logger.Warn("failed to reclaim deleted file bytes", "file_id", id, "error", err)
	}
	return nil
}

// CreateLink adds a lineage edge between two files of the same project.
// The link graph is a DAG; an edge that would close a cycle is refused.
func (s *Service) CreateLink(ctx context.Context, sourceFileID, targetFileID string, linkType models.FileLinkType) (*models.FileLink, error) {
	if !linkType.IsValid() {
		return nil, fmt.Errorf("invalid link type %q", linkType)
	}
	if sourceFileID == targetFileID {
		return nil, models.ErrFileLinkCycle
	}

	src, err := s.store.GetFile(ctx, sourceFileID)
	if err != nil {
		return nil, err
	}
	tgt, err := s.store.GetFile(ctx, targetFileID)
	if err != nil {
		return nil, err
	}
	if src.IsDeleted || tgt.IsDeleted {
		return nil, models.ErrFileDeleted
	}
	if src.ProjectID != tgt.ProjectID {
		return nil, models.ErrFileLinkCrossProject
	}

	reachable, err := s.linkReaches(ctx, targetFileID, sourceFileID)
	if err != nil {
		return nil, err
	}
	if reachable {
		return nil, models.ErrFileLinkCycle
	}

	link := &models.FileLink{
		SourceFileID: sourceFileID,
		TargetFileID: targetFileID,
		LinkType:     linkType,
	}
	if _, err := s.store.CreateFileLink(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// ListLinks returns the edges from and to the file.
func (s *Service) ListLinks(ctx context.Context, fileID string) (from, to []*models.FileLink, err error) {
	if _, err = s.store.GetFile(ctx, fileID); err != nil {
		return nil, nil, err
	}
	from, err = s.store.ListLinksFrom(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	to, err = s.store.ListLinksTargeting(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// linkReaches walks outgoing edges from start looking for goal.
func (s *Service) linkReaches(ctx context.Context, start, goal string) (bool, error) {
	seen := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == goal {
			return true, nil
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		links, err := s.store.ListLinksFrom(ctx, id)
		if err != nil {
			return false, err
		}
		for _, l := range links {
			stack = append(stack, l.TargetFileID)
		}
	}
	return false, nil
}

// Usage reports the workspace's current storage consumption against its
// effective quota (nil = unlimited).
type Usage struct {
	UsedBytes  int64  `json:"used_bytes"`
	QuotaBytes *int64 `json:"quota_bytes,omitempty"`
}

// WorkspaceUsage computes usage at query time by summing non-deleted file
// sizes across the workspace's projects.
func (s *Service) WorkspaceUsage(ctx context.Context, workspaceID string) (*Usage, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	used, err := s.store.WorkspaceUsage(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	quota := ws.QuotaBytes
	if quota == nil {
		quota = s.cfg.DefaultQuotaBytes
	}
	return &Usage{UsedBytes: used, QuotaBytes: quota}, nil
}
