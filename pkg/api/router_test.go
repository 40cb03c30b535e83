package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/octopus-bim/octopus/pkg/api/handlers"
	"github.com/octopus-bim/octopus/pkg/auth"
	"github.com/octopus-bim/octopus/pkg/bim"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/oauth"
	"github.com/octopus-bim/octopus/pkg/processing"
	"github.com/octopus-bim/octopus/pkg/registry"
	"github.com/octopus-bim/octopus/pkg/storage/memory"
	"github.com/octopus-bim/octopus/pkg/store"
)

const routerTestKey = "0123456789abcdef0123456789abcdef"

// apiEnv wires the full router in oidc mode against an in-memory store so
// tests can exercise requests as distinct users.
type apiEnv struct {
	store    store.Store
	provider *memory.Provider
	tokens   *auth.TokenService
	handler  http.Handler
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	tokens, err := auth.NewTokenService(auth.TokenConfig{SigningKey: routerTestKey})
	if err != nil {
		t.Fatalf("Failed to create token service: %v", err)
	}

	provider := memory.New()
	authz := auth.NewAuthorizer(st)
	reg := registry.NewService(st, provider, registry.Config{})
	bimSvc := bim.NewService(st, reg)
	oauthSvc := oauth.NewService(st, tokens, authz, oauth.Config{})

	handler := NewRouter(RouterDeps{
		Store:          st,
		Authz:          authz,
		Tokens:         tokens,
		Registry:       reg,
		BIM:            bimSvc,
		OAuth:          oauthSvc,
		Bus:            processing.NewBus(),
		AuthMode:       "oidc",
		MaxUploadBytes: 1 << 20,
		ReadinessChecks: map[string]handlers.ReadinessCheck{
			"store": func(*http.Request) error { return nil },
		},
	})
	return &apiEnv{store: st, provider: provider, tokens: tokens, handler: handler}
}

// token mints a bearer token for the subject. No scopes means a first-party
// token that passes every scope check.
func (e *apiEnv) token(t *testing.T, subject, workspaceID string, scopes ...string) string {
	t.Helper()
	tok, err := e.tokens.IssueAccessToken(subject, workspaceID, "", scopes)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return tok
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *apiEnv) doJSON(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, token, strings.NewReader(body), "application/json")
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

// userID provisions (or resolves) the user row for a subject so membership
// endpoints can reference it.
func (e *apiEnv) userID(t *testing.T, subject string) string {
	t.Helper()
	u, err := e.store.GetOrCreateUserBySubject(context.Background(), subject, "", "")
	if err != nil {
		t.Fatalf("Failed to provision user %s: %v", subject, err)
	}
	return u.ID
}

func (e *apiEnv) createWorkspace(t *testing.T, token, name string) *models.Workspace {
	t.Helper()
	rr := e.doJSON(t, http.MethodPost, "/api/v1/workspaces", token, `{"name":"`+name+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Workspace create returned %d: %s", rr.Code, rr.Body.String())
	}
	var ws models.Workspace
	decodeBody(t, rr, &ws)
	return &ws
}

func (e *apiEnv) createProject(t *testing.T, token, workspaceID, name string) *models.Project {
	t.Helper()
	rr := e.doJSON(t, http.MethodPost, "/api/v1/workspaces/"+workspaceID+"/projects", token, `{"name":"`+name+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Project create returned %d: %s", rr.Code, rr.Body.String())
	}
	var p models.Project
	decodeBody(t, rr, &p)
	return &p
}

// uploadFile runs the reserve -> content -> commit flow with a raw body and
// a verified checksum.
func (e *apiEnv) uploadFile(t *testing.T, token, projectID, name, content string) *models.File {
	t.Helper()
	rr := e.doJSON(t, http.MethodPost, "/api/v1/projects/"+projectID+"/files/reserve", token,
		`{"file_name":"`+name+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Reserve returned %d: %s", rr.Code, rr.Body.String())
	}
	var session models.UploadSession
	decodeBody(t, rr, &session)

	base := "/api/v1/projects/" + projectID + "/files/sessions/" + session.ID
	rr = e.do(t, http.MethodPost, base+"/content", token, strings.NewReader(content), "application/octet-stream")
	if rr.Code != http.StatusOK {
		t.Fatalf("Content returned %d: %s", rr.Code, rr.Body.String())
	}

	sum := sha256.Sum256([]byte(content))
	rr = e.doJSON(t, http.MethodPost, base+"/commit", token, `{"checksum":"`+hex.EncodeToString(sum[:])+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Commit returned %d: %s", rr.Code, rr.Body.String())
	}
	var file models.File
	decodeBody(t, rr, &file)
	return &file
}

func TestHealthAndMetrics(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodGet, "/health", "", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Liveness returned %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/health/ready", "", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Readiness returned %d", rr.Code)
	}
	var checks map[string]string
	decodeBody(t, rr, &checks)
	if checks["store"] != "ok" {
		t.Errorf("Expected store check ok, got %v", checks)
	}

	rr = env.do(t, http.MethodGet, "/metrics", "", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Metrics returned %d", rr.Code)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/workspaces", "", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a token, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != handlers.ContentTypeProblemJSON {
		t.Errorf("Expected problem+json, got %s", ct)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/workspaces", "not-a-jwt", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with a garbage token, got %d", rr.Code)
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	bob := env.token(t, "bob", "")

	ws := env.createWorkspace(t, alice, "acme")
	if ws.ID == "" || ws.Name != "acme" {
		t.Fatalf("Unexpected workspace: %+v", ws)
	}

	// The creator is Owner and can read and update.
	rr := env.do(t, http.MethodGet, "/api/v1/workspaces/"+ws.ID, alice, nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Owner read returned %d", rr.Code)
	}
	rr = env.doJSON(t, http.MethodPut, "/api/v1/workspaces/"+ws.ID, alice, `{"name":"acme-2"}`)
	if rr.Code != http.StatusOK {
		t.Errorf("Owner update returned %d: %s", rr.Code, rr.Body.String())
	}

	// Non-members cannot see the workspace exists; writes are an honest 403.
	rr = env.do(t, http.MethodGet, "/api/v1/workspaces/"+ws.ID, bob, nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a non-member read, got %d", rr.Code)
	}
	rr = env.doJSON(t, http.MethodPut, "/api/v1/workspaces/"+ws.ID, bob, `{"name":"stolen"}`)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a non-member write, got %d", rr.Code)
	}

	// Membership grants read access.
	bobID := env.userID(t, "bob")
	rr = env.doJSON(t, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", alice,
		`{"user_id":"`+bobID+`","role":"`+string(models.WorkspaceRoleMember)+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("AddMember returned %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/v1/workspaces/"+ws.ID, bob, nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Member read returned %d", rr.Code)
	}
	rr = env.doJSON(t, http.MethodPut, "/api/v1/workspaces/"+ws.ID, bob, `{"name":"nope"}`)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a member update, got %d", rr.Code)
	}
}

func TestOwnerGrantRequiresOwner(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	carol := env.token(t, "carol", "")

	ws := env.createWorkspace(t, alice, "acme")
	carolID := env.userID(t, "carol")
	daveID := env.userID(t, "dave")

	rr := env.doJSON(t, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", alice,
		`{"user_id":"`+carolID+`","role":"`+string(models.WorkspaceRoleAdmin)+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("AddMember returned %d: %s", rr.Code, rr.Body.String())
	}

	// An Admin may add members but not mint Owners.
	rr = env.doJSON(t, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", carol,
		`{"user_id":"`+daveID+`","role":"`+string(models.WorkspaceRoleOwner)+`"}`)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for an admin granting owner, got %d", rr.Code)
	}
	rr = env.doJSON(t, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", alice,
		`{"user_id":"`+daveID+`","role":"`+string(models.WorkspaceRoleOwner)+`"}`)
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected the owner to grant owner, got %d: %s", rr.Code, rr.Body.String())
	}

	// Invalid roles are rejected before touching the store.
	rr = env.doJSON(t, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", alice,
		`{"user_id":"`+daveID+`","role":"emperor"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid role, got %d", rr.Code)
	}
}

func TestWorkspaceListIsScopedToCaller(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	bob := env.token(t, "bob", "")

	env.createWorkspace(t, alice, "one")
	env.createWorkspace(t, alice, "two")

	var page struct {
		Items []models.Workspace `json:"items"`
		Total int64              `json:"total"`
	}
	rr := env.do(t, http.MethodGet, "/api/v1/workspaces", alice, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("List returned %d", rr.Code)
	}
	decodeBody(t, rr, &page)
	if page.Total != 2 || len(page.Items) != 2 {
		t.Errorf("Expected 2 workspaces for alice, got total=%d items=%d", page.Total, len(page.Items))
	}

	rr = env.do(t, http.MethodGet, "/api/v1/workspaces", bob, nil, "")
	decodeBody(t, rr, &page)
	if page.Total != 0 {
		t.Errorf("Expected no workspaces for bob, got %d", page.Total)
	}
}

func TestProjectRoles(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	carol := env.token(t, "carol", "")

	ws := env.createWorkspace(t, alice, "acme")
	project := env.createProject(t, alice, ws.ID, "hq")
	carolID := env.userID(t, "carol")

	// Guests see the workspace but not its projects.
	rr := env.doJSON(t, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", alice,
		`{"user_id":"`+carolID+`","role":"`+string(models.WorkspaceRoleGuest)+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("AddMember returned %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/v1/projects/"+project.ID, carol, nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a guest project read, got %d", rr.Code)
	}

	// Workspace members map to project Viewer: reads pass, writes do not.
	rr = env.doJSON(t, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", alice,
		`{"user_id":"`+carolID+`","role":"`+string(models.WorkspaceRoleMember)+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Role update returned %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/v1/projects/"+project.ID, carol, nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 for a member project read, got %d", rr.Code)
	}
	rr = env.doJSON(t, http.MethodPost, "/api/v1/projects/"+project.ID+"/models", carol, `{"name":"m"}`)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a viewer model create, got %d", rr.Code)
	}

	// A direct Editor membership unlocks writes.
	rr = env.doJSON(t, http.MethodPost, "/api/v1/projects/"+project.ID+"/members", alice,
		`{"user_id":"`+carolID+`","role":"`+string(models.ProjectRoleEditor)+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Project AddMember returned %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.doJSON(t, http.MethodPost, "/api/v1/projects/"+project.ID+"/models", carol, `{"name":"m"}`)
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected 201 for an editor model create, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUploadDownloadDelete(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	ws := env.createWorkspace(t, alice, "acme")
	project := env.createProject(t, alice, ws.ID, "hq")

	content := "ISO-10303-21; pretend model bytes"
	file := env.uploadFile(t, alice, project.ID, "tower.ifc", content)
	if file.SizeBytes != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), file.SizeBytes)
	}
	if file.Kind != models.FileKindSource || file.Category != models.FileCategoryIfc {
		t.Errorf("Unexpected classification: %s/%s", file.Kind, file.Category)
	}

	rr := env.do(t, http.MethodGet, "/api/v1/files/"+file.ID, alice, nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("File get returned %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/files/"+file.ID+"/content", alice, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Content download returned %d", rr.Code)
	}
	if rr.Body.String() != content {
		t.Errorf("Downloaded %q, want %q", rr.Body.String(), content)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "tower.ifc") {
		t.Errorf("Unexpected disposition: %s", cd)
	}

	var page struct {
		Total int64 `json:"total"`
	}
	rr = env.do(t, http.MethodGet, "/api/v1/projects/"+project.ID+"/files", alice, nil, "")
	decodeBody(t, rr, &page)
	if page.Total != 1 {
		t.Errorf("Expected 1 file listed, got %d", page.Total)
	}

	var usage registry.Usage
	rr = env.do(t, http.MethodGet, "/api/v1/usage/workspaces/"+ws.ID, alice, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Usage returned %d", rr.Code)
	}
	decodeBody(t, rr, &usage)
	if usage.UsedBytes != int64(len(content)) {
		t.Errorf("Expected usage %d, got %d", len(content), usage.UsedBytes)
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/files/"+file.ID, alice, nil, "")
	if rr.Code != http.StatusNoContent {
		t.Errorf("Delete returned %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/v1/files/"+file.ID, alice, nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rr.Code)
	}

	// Soft-deleted rows stay visible to project admins on request.
	rr = env.do(t, http.MethodGet, "/api/v1/projects/"+project.ID+"/files", alice, nil, "")
	decodeBody(t, rr, &page)
	if page.Total != 0 {
		t.Errorf("Expected no live files, got %d", page.Total)
	}
	rr = env.do(t, http.MethodGet,
		"/api/v1/projects/"+project.ID+"/files?includeDeleted=true", alice, nil, "")
	decodeBody(t, rr, &page)
	if page.Total != 1 {
		t.Errorf("Expected the deleted file listed, got %d", page.Total)
	}
}

func TestUploadMultipart(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	ws := env.createWorkspace(t, alice, "acme")
	project := env.createProject(t, alice, ws.ID, "hq")

	rr := env.doJSON(t, http.MethodPost, "/api/v1/projects/"+project.ID+"/files/reserve", alice,
		`{"file_name":"plan.pdf","content_type":"application/pdf"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Reserve returned %d: %s", rr.Code, rr.Body.String())
	}
	var session models.UploadSession
	decodeBody(t, rr, &session)
	if session.Status != models.UploadStatusReserved {
		t.Errorf("Expected reserved session, got %s", session.Status)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "plan.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := fw.Write([]byte("%PDF-1.7 stub")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	mw.Close()

	base := "/api/v1/projects/" + project.ID + "/files/sessions/" + session.ID
	rr = env.do(t, http.MethodPost, base+"/content", alice, &buf, mw.FormDataContentType())
	if rr.Code != http.StatusOK {
		t.Fatalf("Multipart content returned %d: %s", rr.Code, rr.Body.String())
	}

	// Commit without a body skips checksum verification.
	rr = env.do(t, http.MethodPost, base+"/commit", alice, nil, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("Commit returned %d: %s", rr.Code, rr.Body.String())
	}
	var file models.File
	decodeBody(t, rr, &file)
	if file.SizeBytes != int64(len("%PDF-1.7 stub")) {
		t.Errorf("Unexpected size: %d", file.SizeBytes)
	}
}

func TestUploadSessionCrossProject(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	ws := env.createWorkspace(t, alice, "acme")
	projectA := env.createProject(t, alice, ws.ID, "a")
	projectB := env.createProject(t, alice, ws.ID, "b")

	rr := env.doJSON(t, http.MethodPost, "/api/v1/projects/"+projectA.ID+"/files/reserve", alice,
		`{"file_name":"x.bin"}`)
	var session models.UploadSession
	decodeBody(t, rr, &session)

	// A session is only addressable through its own project.
	rr = env.do(t, http.MethodPost,
		"/api/v1/projects/"+projectB.ID+"/files/sessions/"+session.ID+"/commit", alice, nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a cross-project session, got %d", rr.Code)
	}
}

func TestQuotaExceededProblem(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")

	rr := env.doJSON(t, http.MethodPost, "/api/v1/workspaces", alice, `{"name":"tiny","quota_bytes":4}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Workspace create returned %d: %s", rr.Code, rr.Body.String())
	}
	var ws models.Workspace
	decodeBody(t, rr, &ws)
	project := env.createProject(t, alice, ws.ID, "hq")

	rr = env.doJSON(t, http.MethodPost, "/api/v1/projects/"+project.ID+"/files/reserve", alice,
		`{"file_name":"big.bin"}`)
	var session models.UploadSession
	decodeBody(t, rr, &session)

	base := "/api/v1/projects/" + project.ID + "/files/sessions/" + session.ID
	rr = env.do(t, http.MethodPost, base+"/content", alice, strings.NewReader("way past the quota"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Content returned %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, base+"/commit", alice, nil, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for an over-quota commit, got %d", rr.Code)
	}
	var problem handlers.Problem
	decodeBody(t, rr, &problem)
	if problem.Type != "quotaExceeded" {
		t.Errorf("Expected quotaExceeded problem type, got %q", problem.Type)
	}
}

func TestScopeEnforcement(t *testing.T) {
	env := newAPIEnv(t)
	full := env.token(t, "alice", "")
	ws := env.createWorkspace(t, full, "acme")

	readOnly := env.token(t, "alice", "", auth.ScopeRead)
	rr := env.do(t, http.MethodGet, "/api/v1/workspaces/"+ws.ID, readOnly, nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected a read scope to allow reads, got %d", rr.Code)
	}
	rr = env.doJSON(t, http.MethodPut, "/api/v1/workspaces/"+ws.ID, readOnly, `{"name":"x"}`)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a write with a read-only token, got %d", rr.Code)
	}

	writeOnly := env.token(t, "alice", "", auth.ScopeWrite)
	rr = env.do(t, http.MethodGet, "/api/v1/workspaces/"+ws.ID, writeOnly, nil, "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a read with a write-only token, got %d", rr.Code)
	}
}

func TestWorkspaceConfinedToken(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	ws1 := env.createWorkspace(t, alice, "one")
	ws2 := env.createWorkspace(t, alice, "two")

	confined := env.token(t, "alice", ws1.ID, auth.ScopeRead, auth.ScopeWrite)
	rr := env.do(t, http.MethodGet, "/api/v1/workspaces/"+ws1.ID, confined, nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected access to the token's workspace, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/v1/workspaces/"+ws2.ID, confined, nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 reading outside the token's workspace, got %d", rr.Code)
	}
	rr = env.doJSON(t, http.MethodPut, "/api/v1/workspaces/"+ws2.ID, confined, `{"name":"x"}`)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 writing outside the token's workspace, got %d", rr.Code)
	}
}

func TestModelVersionEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	ws := env.createWorkspace(t, alice, "acme")
	project := env.createProject(t, alice, ws.ID, "hq")
	ifcFile := env.uploadFile(t, alice, project.ID, "tower.ifc", "ISO-10303-21; stub")

	rr := env.doJSON(t, http.MethodPost, "/api/v1/projects/"+project.ID+"/models", alice,
		`{"name":"tower"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Model create returned %d: %s", rr.Code, rr.Body.String())
	}
	var model models.Model
	decodeBody(t, rr, &model)

	rr = env.doJSON(t, http.MethodPost, "/api/v1/models/"+model.ID+"/versions", alice,
		`{"ifc_file_id":"`+ifcFile.ID+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Version create returned %d: %s", rr.Code, rr.Body.String())
	}
	var version models.ModelVersion
	decodeBody(t, rr, &version)
	if version.Status != models.VersionStatusPending || version.VersionNumber != 1 {
		t.Errorf("Unexpected version: %+v", version)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/modelversions/"+version.ID, alice, nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Version get returned %d", rr.Code)
	}

	// Artifacts answer 404 until the pipeline produces them.
	rr = env.do(t, http.MethodGet, "/api/v1/modelversions/"+version.ID+"/wexbim", alice, nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a pending wexbim, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/v1/modelversions/"+version.ID+"/properties", alice, nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for pending properties, got %d", rr.Code)
	}

	var page struct {
		Total int64 `json:"total"`
	}
	rr = env.do(t, http.MethodGet, "/api/v1/models/"+model.ID+"/versions", alice, nil, "")
	decodeBody(t, rr, &page)
	if page.Total != 1 {
		t.Errorf("Expected 1 version listed, got %d", page.Total)
	}
}

func TestOAuthAuthorizationCodeFlow(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	ws := env.createWorkspace(t, alice, "acme")

	rr := env.doJSON(t, http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/apps", alice,
		`{"name":"viewer","client_type":"public","redirect_uris":["https://viewer.example.com/cb"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("App register returned %d: %s", rr.Code, rr.Body.String())
	}
	var app models.OAuthApp
	decodeBody(t, rr, &app)
	if app.ClientID == "" {
		t.Fatal("Expected a client id")
	}

	verifier := "test-verifier-test-verifier-test-verifier-1234"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {app.ClientID},
		"redirect_uri":          {"https://viewer.example.com/cb"},
		"scope":                 {"read"},
		"state":                 {"s-123"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	rr = env.do(t, http.MethodGet, "/oauth/authorize?"+q.Encode(), alice, nil, "")
	if rr.Code != http.StatusFound {
		t.Fatalf("Authorize returned %d: %s", rr.Code, rr.Body.String())
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Bad redirect location: %v", err)
	}
	code := loc.Query().Get("code")
	if code == "" || loc.Query().Get("state") != "s-123" {
		t.Fatalf("Unexpected redirect: %s", loc)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://viewer.example.com/cb"},
		"client_id":     {app.ClientID},
		"code_verifier": {verifier},
	}
	rr = env.do(t, http.MethodPost, "/oauth/token", "",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if rr.Code != http.StatusOK {
		t.Fatalf("Token exchange returned %d: %s", rr.Code, rr.Body.String())
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Expected no-store, got %q", cc)
	}
	var tok oauth.TokenResponse
	decodeBody(t, rr, &tok)
	if tok.AccessToken == "" || tok.TokenType != "Bearer" {
		t.Fatalf("Unexpected token response: %+v", tok)
	}
	if tok.Scope != "read" {
		t.Errorf("Expected the granted scope read, got %q", tok.Scope)
	}

	// The minted token works against the API, confined to the workspace.
	rr = env.do(t, http.MethodGet, "/api/v1/workspaces/"+ws.ID, tok.AccessToken, nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected the OAuth token to read the workspace, got %d", rr.Code)
	}
	rr = env.doJSON(t, http.MethodPut, "/api/v1/workspaces/"+ws.ID, tok.AccessToken, `{"name":"x"}`)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 writing with a read-scoped token, got %d", rr.Code)
	}

	// Codes are single use.
	rr = env.do(t, http.MethodPost, "/oauth/token", "",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a replayed code, got %d", rr.Code)
	}
}

func TestOAuthEndpointErrors(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "")
	env.createWorkspace(t, alice, "acme")

	// Unknown clients never get a redirect.
	rr := env.do(t, http.MethodGet,
		"/oauth/authorize?response_type=code&client_id=nope&redirect_uri=https%3A%2F%2Fx%2Fcb", alice, nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for an unknown client, got %d", rr.Code)
	}
	var body struct {
		Code string `json:"error"`
	}
	decodeBody(t, rr, &body)
	if body.Code != "invalid_request" {
		t.Errorf("Expected invalid_request, got %q", body.Code)
	}

	// The authorize endpoint itself requires an authenticated resource owner.
	rr = env.do(t, http.MethodGet, "/oauth/authorize?response_type=code&client_id=x", "", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a user, got %d", rr.Code)
	}

	form := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {"bogus"},
		"client_id":  {"nope"},
	}
	rr = env.do(t, http.MethodPost, "/oauth/token", "",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for an unknown client at the token endpoint, got %d", rr.Code)
	}
}
