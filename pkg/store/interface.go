package store

import (
	"context"
	"time"

	"github.com/octopus-bim/octopus/pkg/models"
)

// FileFilter narrows file registry listings.
type FileFilter struct {
	Kind     models.FileKind     // empty = all kinds
	Category models.FileCategory // empty = all categories
	// IncludeDeleted also returns soft-deleted rows. Callers must gate this
	// behind administrator checks.
	IncludeDeleted bool
}

// Store provides the Octopus persistence interface.
//
// Thread safety: implementations must be safe for concurrent use from
// multiple goroutines. All multi-row invariants (version numbering, quota
// at commit, single-use authorization codes, the job outbox) are enforced
// inside store transactions.
type Store interface {
	// ============================================
	// USER OPERATIONS
	// ============================================

	// GetUserByID returns a user by their unique ID.
	// Returns models.ErrUserNotFound if no user has this ID.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// GetOrCreateUserBySubject returns the user with the given subject,
	// provisioning a new row on first sight. Email and display name are
	// refreshed from the principal when they change.
	GetOrCreateUserBySubject(ctx context.Context, subject, email, displayName string) (*models.User, error)

	// ============================================
	// WORKSPACE OPERATIONS
	// ============================================

	// CreateWorkspace creates a workspace and, in the same transaction, an
	// Owner membership for ownerUserID. Returns the generated workspace ID.
	CreateWorkspace(ctx context.Context, ws *models.Workspace, ownerUserID string) (string, error)

	// GetWorkspace returns a workspace by ID.
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)

	// UpdateWorkspace updates name, description and quota.
	UpdateWorkspace(ctx context.Context, ws *models.Workspace) error

	// ListWorkspacesForUser returns the workspaces the user is a member of,
	// newest first, along with the unpaged total.
	ListWorkspacesForUser(ctx context.Context, userID string, page Page) ([]*models.Workspace, int64, error)

	// ============================================
	// PROJECT OPERATIONS
	// ============================================

	CreateProject(ctx context.Context, p *models.Project) (string, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjectsByWorkspace(ctx context.Context, workspaceID string, page Page) ([]*models.Project, int64, error)

	// ============================================
	// MEMBERSHIP OPERATIONS
	// ============================================

	// GetWorkspaceMembership returns the membership for (workspace, user).
	// Returns models.ErrMembershipNotFound when none exists.
	GetWorkspaceMembership(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMembership, error)

	// GetProjectMembership returns the membership for (project, user).
	// Returns models.ErrMembershipNotFound when none exists.
	GetProjectMembership(ctx context.Context, projectID, userID string) (*models.ProjectMembership, error)

	// UpsertWorkspaceMembership creates or updates the single membership row
	// for (workspace, user).
	UpsertWorkspaceMembership(ctx context.Context, m *models.WorkspaceMembership) error

	// UpsertProjectMembership creates or updates the single membership row
	// for (project, user).
	UpsertProjectMembership(ctx context.Context, m *models.ProjectMembership) error

	// ============================================
	// FILE REGISTRY OPERATIONS
	// ============================================

	// CreateFile inserts a file row. The ID is generated if empty.
	CreateFile(ctx context.Context, f *models.File) (string, error)

	// GetFile returns a file row by ID, deleted or not.
	GetFile(ctx context.Context, id string) (*models.File, error)

	// ListFiles returns project files matching the filter, createdAt
	// descending, along with the unpaged total.
	ListFiles(ctx context.Context, projectID string, filter FileFilter, page Page) ([]*models.File, int64, error)

	// SoftDeleteFile marks the file deleted. The caller is responsible for
	// the lineage checks; this is the row update only.
	SoftDeleteFile(ctx context.Context, id string, at time.Time) error

	// CreateFileLink inserts a lineage edge.
	// Returns models.ErrDuplicateFileLink on an identical existing edge.
	CreateFileLink(ctx context.Context, l *models.FileLink) (string, error)

	// ListLinksFrom returns all edges whose source is the given file.
	ListLinksFrom(ctx context.Context, sourceFileID string) ([]*models.FileLink, error)

	// ListLinksTargeting returns all edges whose target is the given file.
	ListLinksTargeting(ctx context.Context, targetFileID string) ([]*models.FileLink, error)

	// WorkspaceUsage returns the summed size of all non-deleted files across
	// the workspace's projects, computed at query time.
	WorkspaceUsage(ctx context.Context, workspaceID string) (int64, error)

	// ============================================
	// UPLOAD SESSION OPERATIONS
	// ============================================

	CreateUploadSession(ctx context.Context, s *models.UploadSession) (string, error)
	GetUploadSession(ctx context.Context, id string) (*models.UploadSession, error)

	// TransitionUploadSession moves the session to a new status guarded by
	// the set of expected current statuses. Returns
	// models.ErrSessionConflict when the guard does not match.
	TransitionUploadSession(ctx context.Context, id string, from []models.UploadStatus, to models.UploadStatus) error

	// CommitUploadSession atomically creates the file row, binds it to the
	// session and transitions Uploading -> Committed. The workspace quota is
	// checked inside the transaction; on violation the session stays in
	// Uploading and models.ErrQuotaExceeded is returned. A lost commit race
	// returns models.ErrSessionConflict.
	CommitUploadSession(ctx context.Context, sessionID string, file *models.File, quotaBytes *int64) (*models.File, error)

	// ExpireUploadSessions transitions all non-terminal sessions past their
	// expiry to Expired and returns them so temp bytes can be reclaimed.
	ExpireUploadSessions(ctx context.Context, now time.Time) ([]*models.UploadSession, error)

	// ============================================
	// MODEL & VERSION OPERATIONS
	// ============================================

	CreateModel(ctx context.Context, m *models.Model) (string, error)
	GetModel(ctx context.Context, id string) (*models.Model, error)
	ListModelsByProject(ctx context.Context, projectID string, page Page) ([]*models.Model, int64, error)

	// CreateModelVersion inserts the version with the next version number
	// and, in the same transaction, the outbox jobs. Readers never observe
	// the version without its jobs. Returns models.ErrVersionConflict when
	// a concurrent writer claimed the same version number.
	CreateModelVersion(ctx context.Context, v *models.ModelVersion, jobs []*models.Job) (*models.ModelVersion, error)

	GetModelVersion(ctx context.Context, id string) (*models.ModelVersion, error)
	ListModelVersions(ctx context.Context, modelID string, page Page) ([]*models.ModelVersion, int64, error)

	// MarkVersionProcessing transitions Pending -> Processing. Calling it on
	// a version already Processing is a no-op; a terminal version returns
	// models.ErrVersionConflict.
	MarkVersionProcessing(ctx context.Context, id string) error

	// AttachVersionArtifact records a produced artifact (wexbim or
	// properties file id) and promotes the version to Ready when both
	// artifacts are present. The read-modify-write runs in a transaction.
	AttachVersionArtifact(ctx context.Context, id string, category models.FileCategory, fileID string) (*models.ModelVersion, error)

	// FailVersion transitions a non-Ready version to Failed with a message.
	FailVersion(ctx context.Context, id string, message string) error

	// ============================================
	// OAUTH OPERATIONS
	// ============================================

	CreateOAuthApp(ctx context.Context, app *models.OAuthApp) (string, error)
	GetOAuthAppByClientID(ctx context.Context, clientID string) (*models.OAuthApp, error)
	ListOAuthApps(ctx context.Context, workspaceID string) ([]*models.OAuthApp, error)

	CreateAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) (string, error)

	// GetAuthorizationCodeByHash looks up a code by its hash, scoped to the
	// app it was issued to.
	GetAuthorizationCodeByHash(ctx context.Context, codeHash, oauthAppID string) (*models.AuthorizationCode, error)

	// ConsumeAuthorizationCode atomically marks the code used. Returns
	// models.ErrAuthCodeConsumed when it was already used.
	ConsumeAuthorizationCode(ctx context.Context, id string, at time.Time) error

	// ============================================
	// JOB OUTBOX OPERATIONS
	// ============================================

	// ClaimDueJobs atomically moves up to limit due pending jobs to inflight
	// and returns them in creation order.
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)

	// RequeueJob schedules another delivery attempt after a failure.
	RequeueJob(ctx context.Context, id string, attempt int, runAfter time.Time, lastError string) error

	// CompleteJob marks the job succeeded.
	CompleteJob(ctx context.Context, id string, at time.Time) error

	// FailJob marks the job terminally failed.
	FailJob(ctx context.Context, id string, lastError string, at time.Time) error

	// ResetInflightJobs returns inflight jobs to pending. Called once at
	// startup so that jobs stranded by a crash are re-delivered.
	ResetInflightJobs(ctx context.Context) (int64, error)
}

// compile-time check
var _ Store = (*GORMStore)(nil)
