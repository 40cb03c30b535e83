package handlers

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/registry"
)

// UploadHandler serves the reserve -> upload -> commit flow.
type UploadHandler struct {
	Base
	Registry *registry.Service

	// MaxUploadBytes caps a single content request body. Zero means no cap.
	MaxUploadBytes int64
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(base Base, reg *registry.Service, maxUploadBytes int64) *UploadHandler {
	return &UploadHandler{Base: base, Registry: reg, MaxUploadBytes: maxUploadBytes}
}

type reserveRequest struct {
	FileName     string `json:"file_name"`
	ContentType  string `json:"content_type,omitempty"`
	ExpectedSize *int64 `json:"expected_size,omitempty"`
}

// Reserve opens an upload session in the project. Requires Editor.
func (h *UploadHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if _, _, err := h.requireProject(r.Context(), projectID, models.ProjectRoleEditor); err != nil {
		writeDomainError(w, err, false)
		return
	}

	var req reserveRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	session, err := h.Registry.Reserve(r.Context(), projectID, req.FileName, req.ContentType, req.ExpectedSize)
	if err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteJSONCreated(w, session)
}

// Content streams the request payload into the session's temp object.
// Accepts multipart/form-data (first file part) or a raw body. The bytes
// are not visible in the registry until commit.
func (h *UploadHandler) Content(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionInProject(w, r)
	if err != nil {
		return
	}

	body := io.Reader(r.Body)
	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
		body = r.Body
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		mr, err := r.MultipartReader()
		if err != nil {
			BadRequest(w, "malformed multipart body")
			return
		}
		part, err := nextFilePart(mr)
		if err != nil {
			BadRequest(w, "multipart body carries no file part")
			return
		}
		defer part.Close()
		body = part
	}

	updated, err := h.Registry.UploadContent(r.Context(), session.ID, body)
	if err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteJSONOK(w, updated)
}

type commitRequest struct {
	Checksum string `json:"checksum,omitempty"`
}

// Commit promotes the uploaded bytes into the file registry. Requires
// Editor. An optional sha256 checksum is verified against the stored bytes.
func (h *UploadHandler) Commit(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionInProject(w, r)
	if err != nil {
		return
	}

	var req commitRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			BadRequest(w, err.Error())
			return
		}
	}
	file, err := h.Registry.Commit(r.Context(), session.ID, req.Checksum)
	if err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteJSONCreated(w, file)
}

// GetSession returns the session state for polling. Requires Viewer.
func (h *UploadHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if _, _, err := h.requireProject(r.Context(), projectID, models.ProjectRoleViewer); err != nil {
		writeDomainError(w, err, true)
		return
	}
	session, err := h.Registry.GetSession(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	if session.ProjectID != projectID {
		NotFound(w, "upload session not found")
		return
	}
	WriteJSONOK(w, session)
}

// sessionInProject authorizes the Editor role on the project from the URL
// and resolves the session, rejecting sessions from other projects. On
// failure it has already written the response.
func (h *UploadHandler) sessionInProject(w http.ResponseWriter, r *http.Request) (*models.UploadSession, error) {
	projectID := chi.URLParam(r, "id")
	if _, _, err := h.requireProject(r.Context(), projectID, models.ProjectRoleEditor); err != nil {
		writeDomainError(w, err, false)
		return nil, err
	}
	session, err := h.Registry.GetSession(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		writeDomainError(w, err, false)
		return nil, err
	}
	if session.ProjectID != projectID {
		NotFound(w, "upload session not found")
		return nil, models.ErrSessionNotFound
	}
	return session, nil
}

// nextFilePart scans for the first part carrying a file name.
func nextFilePart(mr *multipart.Reader) (io.ReadCloser, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}
