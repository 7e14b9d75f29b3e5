package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PremBamrung/tempy/internal/audit"
	"github.com/PremBamrung/tempy/internal/blob"
	"github.com/PremBamrung/tempy/internal/config"
	"github.com/PremBamrung/tempy/internal/db"
	"github.com/PremBamrung/tempy/internal/identity"
	"github.com/PremBamrung/tempy/internal/metadata"
	"github.com/PremBamrung/tempy/internal/storage"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	dir := t.TempDir()

	conn, err := db.Open("file:" + filepath.Join(dir, "tempy-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	blobs, errBlob := blob.NewLocalStore(filepath.Join(dir, "storage"))
	if errBlob != nil {
		t.Fatalf("new blob store: %v", errBlob)
	}

	users := identity.NewStore(conn)
	trail := audit.NewRecorder(conn)
	store := storage.NewService(metadata.NewStore(conn), blobs, trail)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	RegisterRoutes(engine, conn, users, store, trail, config.JWTConfig{
		Secret: "test-secret",
		Expiry: time.Hour,
	})
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, engine *gin.Engine, username, password string) uint64 {
	t.Helper()
	rec := doJSON(t, engine, http.MethodPost, "/users", "", gin.H{
		"username": username,
		"password": password,
		"email":    username + "@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register %q: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var out struct {
		ID uint64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return out.ID
}

func login(t *testing.T, engine *gin.Engine, username, password string) string {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %q: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if out.TokenType != "bearer" {
		t.Fatalf("expected token_type=bearer, got %q", out.TokenType)
	}
	return out.AccessToken
}

func uploadFile(t *testing.T, engine *gin.Engine, token, filename, content string) uint64 {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, errPart := writer.CreateFormFile("file", filename)
	if errPart != nil {
		t.Fatalf("create form file: %v", errPart)
	}
	if _, errWrite := part.Write([]byte(content)); errWrite != nil {
		t.Fatalf("write form file: %v", errWrite)
	}
	if errClose := writer.Close(); errClose != nil {
		t.Fatalf("close writer: %v", errClose)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload %q: status %d body %s", filename, rec.Code, rec.Body.String())
	}
	var out struct {
		ID uint64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return out.ID
}

func TestFileLifecycle(t *testing.T) {
	engine := newTestEngine(t)

	registerUser(t, engine, "alice", "pw1")
	token := login(t, engine, "alice", "pw1")

	fileID := uploadFile(t, engine, token, "notes.txt", "hello")

	// Filespace reflects the live object size.
	recSpace := doJSON(t, engine, http.MethodGet, "/filespace", token, nil)
	if recSpace.Code != http.StatusOK {
		t.Fatalf("filespace: status %d", recSpace.Code)
	}
	var space struct {
		Files     []struct{ Filename string } `json:"files"`
		TotalSize int64                       `json:"total_size"`
	}
	if err := json.Unmarshal(recSpace.Body.Bytes(), &space); err != nil {
		t.Fatalf("decode filespace: %v", err)
	}
	if len(space.Files) != 1 || space.TotalSize != 5 {
		t.Fatalf("expected 1 file totalling 5 bytes, got %d files total %d", len(space.Files), space.TotalSize)
	}

	// Download returns the uploaded bytes.
	recDownload := doJSON(t, engine, http.MethodGet, "/download/notes.txt", token, nil)
	if recDownload.Code != http.StatusOK {
		t.Fatalf("download: status %d", recDownload.Code)
	}
	if recDownload.Body.String() != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", recDownload.Body.String())
	}

	// Rename relocates the object under the new name.
	recRename := doJSON(t, engine, http.MethodPut, fmt.Sprintf("/files/%d?new_filename=final.txt", fileID), token, nil)
	if recRename.Code != http.StatusOK {
		t.Fatalf("rename: status %d body %s", recRename.Code, recRename.Body.String())
	}
	if rec := doJSON(t, engine, http.MethodGet, "/download/notes.txt", token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected old name to 404, got %d", rec.Code)
	}
	if rec := doJSON(t, engine, http.MethodGet, "/download/final.txt", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected new name to download, got %d", rec.Code)
	}

	// History carries the upload and rename in order.
	recHistory := doJSON(t, engine, http.MethodGet, fmt.Sprintf("/files/%d/history", fileID), token, nil)
	if recHistory.Code != http.StatusOK {
		t.Fatalf("history: status %d", recHistory.Code)
	}
	var history []struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(recHistory.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 2 || history[0].Action != "Uploaded file 'notes.txt'" || history[1].Action != "Renamed file 'final.txt'" {
		t.Fatalf("unexpected history %+v", history)
	}

	// Delete removes metadata and bytes.
	if rec := doJSON(t, engine, http.MethodDelete, fmt.Sprintf("/files/%d", fileID), token, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	if rec := doJSON(t, engine, http.MethodGet, "/download/final.txt", token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected deleted file to 404, got %d", rec.Code)
	}
	if rec := doJSON(t, engine, http.MethodDelete, fmt.Sprintf("/files/%d", fileID), token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected second delete to 404, got %d", rec.Code)
	}
}

func TestRejectsDotDotFilenames(t *testing.T) {
	engine := newTestEngine(t)

	registerUser(t, engine, "alice", "pw1")
	token := login(t, engine, "alice", "pw1")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, errPart := writer.CreateFormFile("file", "..")
	if errPart != nil {
		t.Fatalf("create form file: %v", errPart)
	}
	if _, errWrite := part.Write([]byte("hello")); errWrite != nil {
		t.Fatalf("write form file: %v", errWrite)
	}
	if errClose := writer.Close(); errClose != nil {
		t.Fatalf("close writer: %v", errClose)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 uploading '..', got %d body %s", rec.Code, rec.Body.String())
	}

	fileID := uploadFile(t, engine, token, "notes.txt", "hello")
	recRename := doJSON(t, engine, http.MethodPut, fmt.Sprintf("/files/%d?new_filename=..", fileID), token, nil)
	if recRename.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 renaming to '..', got %d body %s", recRename.Code, recRename.Body.String())
	}
}

func TestSearchAndStatistics(t *testing.T) {
	engine := newTestEngine(t)

	registerUser(t, engine, "alice", "pw1")
	token := login(t, engine, "alice", "pw1")
	uploadFile(t, engine, token, "Report.pdf", "0123456789")
	uploadFile(t, engine, token, "notes.txt", "hello")

	recSearch := doJSON(t, engine, http.MethodGet, "/files/search?query=report", token, nil)
	if recSearch.Code != http.StatusOK {
		t.Fatalf("search: status %d", recSearch.Code)
	}
	var found []struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
	}
	if err := json.Unmarshal(recSearch.Body.Bytes(), &found); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(found) != 1 || found[0].Filename != "Report.pdf" || found[0].Size != 10 {
		t.Fatalf("unexpected search result %+v", found)
	}

	recFilter := doJSON(t, engine, http.MethodGet, "/files/filter?extension=pdf&min_size=5", token, nil)
	if recFilter.Code != http.StatusOK {
		t.Fatalf("filter: status %d", recFilter.Code)
	}
	var filtered []struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(recFilter.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("decode filter: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Filename != "Report.pdf" {
		t.Fatalf("unexpected filter result %+v", filtered)
	}

	recStats := doJSON(t, engine, http.MethodGet, "/statistics", token, nil)
	if recStats.Code != http.StatusOK {
		t.Fatalf("statistics: status %d", recStats.Code)
	}
	var stats struct {
		TotalUploads     int64 `json:"total_uploads"`
		TotalStorageUsed int64 `json:"total_storage_used"`
	}
	if err := json.Unmarshal(recStats.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode statistics: %v", err)
	}
	if stats.TotalUploads != 2 || stats.TotalStorageUsed != 15 {
		t.Fatalf("unexpected statistics %+v", stats)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	engine := newTestEngine(t)

	registerUser(t, engine, "alice", "pw1")
	registerUser(t, engine, "bob", "pw2")
	aliceToken := login(t, engine, "alice", "pw1")
	bobToken := login(t, engine, "bob", "pw2")

	fileID := uploadFile(t, engine, aliceToken, "secret.txt", "hello")

	if rec := doJSON(t, engine, http.MethodGet, "/download/secret.txt", bobToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected bob's download to 404, got %d", rec.Code)
	}
	if rec := doJSON(t, engine, http.MethodDelete, fmt.Sprintf("/files/%d", fileID), bobToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected bob's delete to 404, got %d", rec.Code)
	}
	if rec := doJSON(t, engine, http.MethodGet, fmt.Sprintf("/files/%d/history", fileID), bobToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected bob's history to 404, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	engine := newTestEngine(t)

	if rec := doJSON(t, engine, http.MethodGet, "/filespace", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doJSON(t, engine, http.MethodGet, "/filespace", "not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestListUsers(t *testing.T) {
	engine := newTestEngine(t)

	for _, name := range []string{"a", "b", "c"} {
		registerUser(t, engine, name, "pw")
	}
	token := login(t, engine, "a", "pw")

	if rec := doJSON(t, engine, http.MethodGet, "/users", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 listing users without token, got %d", rec.Code)
	}

	rec := doJSON(t, engine, http.MethodGet, "/users?skip=1&limit=1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list users: status %d", rec.Code)
	}
	var users []struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "b" {
		t.Fatalf("unexpected page %+v", users)
	}
}

func TestDuplicateUsername(t *testing.T) {
	engine := newTestEngine(t)

	registerUser(t, engine, "alice", "pw1")
	rec := doJSON(t, engine, http.MethodPost, "/users", "", gin.H{"username": "alice", "password": "pw2"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate username, got %d", rec.Code)
	}
}

func TestLoginFailure(t *testing.T) {
	engine := newTestEngine(t)
	registerUser(t, engine, "alice", "pw1")

	form := url.Values{"username": {"alice"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", rec.Code)
	}
}

func TestChangePasswordFlow(t *testing.T) {
	engine := newTestEngine(t)

	userID := registerUser(t, engine, "alice", "pw1")
	token := login(t, engine, "alice", "pw1")

	recWrong := doJSON(t, engine, http.MethodPut, fmt.Sprintf("/users/%d/change-password", userID), token, gin.H{
		"old_password": "nope",
		"new_password": "pw2",
	})
	if recWrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong old password, got %d", recWrong.Code)
	}

	recChange := doJSON(t, engine, http.MethodPut, fmt.Sprintf("/users/%d/change-password", userID), token, gin.H{
		"old_password": "pw1",
		"new_password": "pw2",
	})
	if recChange.Code != http.StatusOK {
		t.Fatalf("change password: status %d body %s", recChange.Code, recChange.Body.String())
	}

	login(t, engine, "alice", "pw2")

	recLog := doJSON(t, engine, http.MethodGet, "/users/me/activity-log", token, nil)
	if recLog.Code != http.StatusOK {
		t.Fatalf("activity log: status %d", recLog.Code)
	}
	var entries []struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(recLog.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode activity log: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "Changed password" {
		t.Fatalf("unexpected activity log %+v", entries)
	}
}

func TestDeleteAccount(t *testing.T) {
	engine := newTestEngine(t)

	userID := registerUser(t, engine, "alice", "pw1")
	token := login(t, engine, "alice", "pw1")
	uploadFile(t, engine, token, "notes.txt", "hello")

	if rec := doJSON(t, engine, http.MethodDelete, fmt.Sprintf("/users/%d", userID), token, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete account: status %d", rec.Code)
	}

	// The account and its token stop working.
	if rec := doJSON(t, engine, http.MethodGet, "/filespace", token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after account deletion, got %d", rec.Code)
	}

	// The namespace is free for a new account of the same name.
	registerUser(t, engine, "alice", "pw3")
	freshToken := login(t, engine, "alice", "pw3")
	recSpace := doJSON(t, engine, http.MethodGet, "/filespace", freshToken, nil)
	if recSpace.Code != http.StatusOK {
		t.Fatalf("filespace: status %d", recSpace.Code)
	}
	var space struct {
		Files     []struct{ Filename string } `json:"files"`
		TotalSize int64                       `json:"total_size"`
	}
	if err := json.Unmarshal(recSpace.Body.Bytes(), &space); err != nil {
		t.Fatalf("decode filespace: %v", err)
	}
	if len(space.Files) != 0 || space.TotalSize != 0 {
		t.Fatalf("expected fresh namespace to be empty, got %+v", space)
	}
}

func TestHealthz(t *testing.T) {
	engine := newTestEngine(t)
	rec := doJSON(t, engine, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
}
