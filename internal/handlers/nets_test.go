package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/netvault/netvault/internal/compress"
	"github.com/netvault/netvault/internal/integrity"
	"github.com/netvault/netvault/internal/registry"
	"github.com/netvault/netvault/internal/storage"
	"github.com/netvault/netvault/internal/upload"
)

const testMaxUpload = 1 << 20

type testAPI struct {
	router  chi.Router
	store   *storage.Store
	reg     *registry.SQLiteRegistry
	handler *NetHandler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	tmpDir := t.TempDir()

	store, err := storage.NewStore(filepath.Join(tmpDir, "nn"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	reg, err := registry.New(filepath.Join(tmpDir, "registry.db"))
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	compressor, err := compress.New(6)
	if err != nil {
		t.Fatalf("compress.New failed: %v", err)
	}
	coord := upload.New(compressor, store, reg, testMaxUpload)
	h := NewNetHandler(coord, store, reg, testMaxUpload)

	router := chi.NewRouter()
	router.Post("/api/v1/nets", h.Upload)
	router.Get("/api/v1/nets", h.List)
	router.Get("/api/v1/nets/{name}", h.Get)
	router.Head("/api/v1/nets/{name}", h.Head)

	return &testAPI{router: router, store: store, reg: reg, handler: h}
}

// netFile returns a filename claiming the content's digest, optionally lying.
func netFile(content []byte, correctHash bool) string {
	digest := integrity.Digest(content)
	if !correctHash {
		flipped := []byte(digest)
		if flipped[0] == 'f' {
			flipped[0] = '0'
		} else {
			flipped[0] = 'f'
		}
		digest = string(flipped)
	}
	return "nn-" + digest + ".nnue"
}

// postMultipart uploads content under the given filename and field name.
func (a *testAPI) postMultipart(t *testing.T, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("writing multipart content: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/nets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error, body.Message
}

func TestUploadStoresArtifact(t *testing.T) {
	api := newTestAPI(t)

	content := []byte("test neural network data")
	filename := netFile(content, true)

	rec := api.postMultipart(t, uploadField, filename, content)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Name           string `json:"name"`
		Digest         string `json:"digest"`
		Size           int64  `json:"size"`
		CompressedSize int64  `json:"compressed_size"`
		Existing       bool   `json:"existing"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Name != filename+".gz" {
		t.Errorf("name = %q, want %q", resp.Name, filename+".gz")
	}
	if resp.Digest != integrity.Digest(content) {
		t.Errorf("digest = %q, want %q", resp.Digest, integrity.Digest(content))
	}
	if resp.Existing {
		t.Error("fresh upload reported existing")
	}

	// The directory contains the artifact and gunzip yields the original.
	stored, err := os.ReadFile(filepath.Join(api.store.RootDir, filename+".gz"))
	if err != nil {
		t.Fatalf("reading stored artifact: %v", err)
	}
	got, err := compress.Decompress(bytes.NewReader(stored))
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("stored artifact does not round trip")
	}
}

func TestUploadHashMismatch(t *testing.T) {
	api := newTestAPI(t)

	content := []byte("test neural network data")
	rec := api.postMultipart(t, uploadField, netFile(content, false), content)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	code, _ := decodeError(t, rec)
	if code != "HashMismatch" {
		t.Errorf("error code = %q, want HashMismatch", code)
	}

	names, err := api.store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("directory gained %d files from a rejected upload", len(names))
	}
}

func TestUploadMalformedFilename(t *testing.T) {
	api := newTestAPI(t)

	rec := api.postMultipart(t, uploadField, "invalid_filename.pattern", []byte("data"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	code, _ := decodeError(t, rec)
	if code != "MalformedFilename" {
		t.Errorf("error code = %q, want MalformedFilename", code)
	}
}

func TestUploadEmptyContent(t *testing.T) {
	api := newTestAPI(t)

	rec := api.postMultipart(t, uploadField, "nn-000000000000.nnue", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	code, _ := decodeError(t, rec)
	if code != "EmptyContent" {
		t.Errorf("error code = %q, want EmptyContent", code)
	}
}

func TestUploadMissingFileField(t *testing.T) {
	api := newTestAPI(t)

	rec := api.postMultipart(t, "wrong_field", "nn-000000000000.nnue", []byte("data"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	code, _ := decodeError(t, rec)
	if code != "MissingFile" {
		t.Errorf("error code = %q, want MissingFile", code)
	}
}

func TestUploadPayloadTooLarge(t *testing.T) {
	api := newTestAPI(t)

	oversized := bytes.Repeat([]byte{0x77}, testMaxUpload+1)
	rec := api.postMultipart(t, uploadField, netFile(oversized, true), oversized)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	code, _ := decodeError(t, rec)
	if code != "PayloadTooLarge" {
		t.Errorf("error code = %q, want PayloadTooLarge", code)
	}
}

func TestUploadIdempotentDuplicate(t *testing.T) {
	api := newTestAPI(t)

	content := []byte("idempotent upload")
	filename := netFile(content, true)

	first := api.postMultipart(t, uploadField, filename, content)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", first.Code)
	}
	second := api.postMultipart(t, uploadField, filename, content)
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d, want 200", second.Code)
	}

	var resp struct {
		Existing bool `json:"existing"`
	}
	if err := json.NewDecoder(second.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Existing {
		t.Error("duplicate upload not reported as existing")
	}

	names, _ := api.store.List()
	if len(names) != 1 {
		t.Errorf("directory contains %d artifacts, want 1", len(names))
	}
}

func TestUploadArtifactConflict(t *testing.T) {
	api := newTestAPI(t)

	content := []byte("honest content")
	filename := netFile(content, true)

	// Plant a valid gzip of different content under the final name.
	compressor, _ := compress.New(6)
	compressed, _ := compressor.Compress([]byte("imposter content"))
	if err := os.WriteFile(filepath.Join(api.store.RootDir, filename+".gz"), compressed.Data, 0o644); err != nil {
		t.Fatalf("planting corrupt artifact: %v", err)
	}

	rec := api.postMultipart(t, uploadField, filename, content)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	code, _ := decodeError(t, rec)
	if code != "ArtifactConflict" {
		t.Errorf("error code = %q, want ArtifactConflict", code)
	}
}

func TestGetServesStoredArtifact(t *testing.T) {
	api := newTestAPI(t)

	content := []byte("downloadable weights")
	filename := netFile(content, true)
	if rec := api.postMultipart(t, uploadField, filename, content); rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	// Both claimed and stored spellings resolve.
	for _, path := range []string{"/api/v1/nets/" + filename, "/api/v1/nets/" + filename + ".gz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/gzip" {
			t.Errorf("Content-Type = %q", ct)
		}
		got, err := compress.Decompress(rec.Body)
		if err != nil {
			t.Fatalf("Decompress failed: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Error("downloaded artifact does not round trip")
		}
	}
}

func TestGetMissingArtifact(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nets/nn-ffffffffffff.nnue", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	code, _ := decodeError(t, rec)
	if code != "NoSuchArtifact" {
		t.Errorf("error code = %q, want NoSuchArtifact", code)
	}
}

func TestHeadArtifact(t *testing.T) {
	api := newTestAPI(t)

	content := []byte("head me")
	filename := netFile(content, true)
	if rec := api.postMultipart(t, uploadField, filename, content); rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodHead, "/api/v1/nets/"+filename, nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("HEAD status = %d, want 200", rec.Code)
	}
	if n, _ := io.Copy(io.Discard, rec.Body); n != 0 {
		t.Errorf("HEAD returned %d body bytes", n)
	}

	req = httptest.NewRequest(http.MethodHead, "/api/v1/nets/nn-eeeeeeeeeeee.nnue", nil)
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("HEAD missing status = %d, want 404", rec.Code)
	}
}

func TestListArtifacts(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nets", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var empty struct {
		Artifacts []registry.Artifact `json:"artifacts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&empty); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(empty.Artifacts) != 0 {
		t.Errorf("fresh server lists %d artifacts", len(empty.Artifacts))
	}

	content := []byte("listed weights")
	filename := netFile(content, true)
	if res := api.postMultipart(t, uploadField, filename, content); res.Code != http.StatusOK {
		t.Fatalf("upload status = %d", res.Code)
	}

	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nets", nil))
	var listed struct {
		Artifacts []registry.Artifact `json:"artifacts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(listed.Artifacts) != 1 {
		t.Fatalf("listed %d artifacts, want 1", len(listed.Artifacts))
	}
	if listed.Artifacts[0].Name != filename+".gz" {
		t.Errorf("listed name = %q, want %q", listed.Artifacts[0].Name, filename+".gz")
	}
}
