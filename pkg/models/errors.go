package models

import "errors"

// Common errors for domain and store operations.
var (
	// Workspace errors
	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrDuplicateWorkspace = errors.New("workspace already exists")

	// Project errors
	ErrProjectNotFound  = errors.New("project not found")
	ErrDuplicateProject = errors.New("project already exists")

	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Membership errors
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrDuplicateMembership = errors.New("membership already exists for this user")

	// File errors
	ErrFileNotFound         = errors.New("file not found")
	ErrFileDeleted          = errors.New("file is deleted")
	ErrFileLinked           = errors.New("file is referenced by links")
	ErrDuplicateFileLink    = errors.New("file link already exists")
	ErrFileLinkCycle        = errors.New("file link would create a cycle")
	ErrFileLinkCrossProject = errors.New("linked files must belong to the same project")

	// Upload session errors
	ErrSessionNotFound  = errors.New("upload session not found")
	ErrSessionExpired   = errors.New("upload session has expired")
	ErrSessionTerminal  = errors.New("upload session is in a terminal state")
	ErrSessionConflict  = errors.New("upload session was committed concurrently")
	ErrSizeMismatch     = errors.New("uploaded size does not match expected size")
	ErrChecksumMismatch = errors.New("checksum does not match uploaded content")
	ErrQuotaExceeded    = errors.New("workspace storage quota exceeded")

	// Model errors
	ErrModelNotFound        = errors.New("model not found")
	ErrDuplicateModel       = errors.New("model already exists")
	ErrModelVersionNotFound = errors.New("model version not found")
	ErrVersionConflict      = errors.New("model version number conflict")
	ErrArtifactNotReady     = errors.New("artifact is not ready yet")

	// OAuth errors
	ErrOAuthAppNotFound    = errors.New("oauth app not found")
	ErrDuplicateOAuthApp   = errors.New("oauth app client id already exists")
	ErrAuthCodeNotFound    = errors.New("authorization code not found")
	ErrAuthCodeConsumed    = errors.New("authorization code has already been used")

	// Job errors
	ErrJobNotFound = errors.New("job not found")

	// Storage consistency: a row exists but its bytes are missing, or vice versa.
	ErrStorageInconsistency = errors.New("storage inconsistency")

	// Authorization errors
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("insufficient permissions")
)
