package handlers

import (
	"errors"
	"net/http"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/models"
)

// writeDomainError maps domain errors onto HTTP problem responses.
//
// readOp controls existence leaking: RBAC denials on reads answer 404 so a
// caller cannot probe for resource IDs, while writes answer an honest 403.
func writeDomainError(w http.ResponseWriter, err error, readOp bool) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		Unauthorized(w, "authentication required")

	case errors.Is(err, models.ErrForbidden):
		if readOp {
			NotFound(w, "resource not found")
			return
		}
		Forbidden(w, "insufficient permissions")

	case errors.Is(err, models.ErrQuotaExceeded):
		WriteProblemWithType(w, "quotaExceeded", http.StatusForbidden,
			"Quota Exceeded", err.Error())

	case errors.Is(err, models.ErrWorkspaceNotFound),
		errors.Is(err, models.ErrProjectNotFound),
		errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrMembershipNotFound),
		errors.Is(err, models.ErrFileNotFound),
		errors.Is(err, models.ErrFileDeleted),
		errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrModelNotFound),
		errors.Is(err, models.ErrModelVersionNotFound),
		errors.Is(err, models.ErrOAuthAppNotFound):
		NotFound(w, err.Error())

	case errors.Is(err, models.ErrArtifactNotReady):
		NotFound(w, "artifact is not ready yet; processing is still pending")

	case errors.Is(err, models.ErrSessionConflict),
		errors.Is(err, models.ErrSessionExpired),
		errors.Is(err, models.ErrSessionTerminal),
		errors.Is(err, models.ErrVersionConflict),
		errors.Is(err, models.ErrDuplicateMembership),
		errors.Is(err, models.ErrDuplicateFileLink),
		errors.Is(err, models.ErrFileLinked):
		Conflict(w, err.Error())

	case errors.Is(err, models.ErrSizeMismatch),
		errors.Is(err, models.ErrChecksumMismatch),
		errors.Is(err, models.ErrFileLinkCycle),
		errors.Is(err, models.ErrFileLinkCrossProject):
		BadRequest(w, err.Error())

	case errors.Is(err, models.ErrStorageInconsistency):
		logger.Error("storage inconsistency surfaced to client", "error", err)
		InternalServerError(w, "storage inconsistency")

	default:
		logger.Error("unhandled error in request", "error", err)
		InternalServerError(w, "internal error")
	}
}
