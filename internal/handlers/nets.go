// Package handlers implements HTTP request handlers for the netvault API.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/netvault/netvault/internal/apierr"
	"github.com/netvault/netvault/internal/metrics"
	"github.com/netvault/netvault/internal/netname"
	"github.com/netvault/netvault/internal/registry"
	"github.com/netvault/netvault/internal/storage"
	"github.com/netvault/netvault/internal/upload"
)

// uploadField is the multipart form field carrying the network file.
const uploadField = "upload"

// bodySlack is headroom added on top of the content size limit for multipart
// boundaries and part headers when bounding the raw request body.
const bodySlack = 1 << 20

// NetHandler contains handlers for network artifact operations.
type NetHandler struct {
	coord         *upload.Coordinator
	store         *storage.Store
	index         upload.Index
	maxUploadSize int64
}

// NewNetHandler creates a NetHandler with the given dependencies. index may
// be nil; the list endpoint then reports an empty collection.
func NewNetHandler(coord *upload.Coordinator, store *storage.Store, index upload.Index, maxUploadSize int64) *NetHandler {
	return &NetHandler{
		coord:         coord,
		store:         store,
		index:         index,
		maxUploadSize: maxUploadSize,
	}
}

// uploadResponse is the success body for POST /api/v1/nets.
type uploadResponse struct {
	Name           string    `json:"name"`
	Digest         string    `json:"digest"`
	Path           string    `json:"path"`
	Size           int64     `json:"size"`
	CompressedSize int64     `json:"compressed_size"`
	CreatedAt      time.Time `json:"created_at"`
	Existing       bool      `json:"existing"`
}

// listResponse is the body for GET /api/v1/nets.
type listResponse struct {
	Artifacts []registry.Artifact `json:"artifacts"`
}

// Upload handles POST /api/v1/nets: a multipart upload whose single file
// field carries the claimed filename and content. The handler is a thin
// adapter; all pipeline semantics live in the upload coordinator.
func (h *NetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// Bound the raw body so an oversized upload is rejected without being
	// buffered. The coordinator enforces the exact content limit; this
	// guard covers the transport framing too.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+bodySlack)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.reject(w, r, start, apierr.ErrPayloadTooLarge)
			return
		}
		h.reject(w, r, start, apierr.ErrMissingFile.WithMessage(
			"multipart field %q missing or unreadable: %v", uploadField, err))
		return
	}
	defer file.Close()

	artifact, err := h.coord.Handle(r.Context(), upload.Request{
		Filename: header.Filename,
		Content:  file,
	})
	if err != nil {
		h.reject(w, r, start, err)
		return
	}

	outcome := "stored"
	if artifact.Existing {
		outcome = "duplicate"
	} else {
		metrics.BytesReceivedTotal.Add(float64(artifact.Size))
		metrics.BytesStoredTotal.Add(float64(artifact.CompressedSize))
	}
	metrics.UploadsTotal.WithLabelValues(outcome).Inc()
	metrics.UploadDuration.Observe(time.Since(start).Seconds())

	slog.Info("Upload stored",
		"artifact", artifact.Name,
		"digest", artifact.Digest,
		"size", artifact.Size,
		"compressed_size", artifact.CompressedSize,
		"existing", artifact.Existing)

	WriteJSON(w, http.StatusOK, uploadResponse{
		Name:           artifact.Name,
		Digest:         artifact.Digest,
		Path:           artifact.Name,
		Size:           artifact.Size,
		CompressedSize: artifact.CompressedSize,
		CreatedAt:      artifact.CreatedAt,
		Existing:       artifact.Existing,
	})
}

// reject maps a pipeline error to its HTTP response and records metrics.
func (h *NetHandler) reject(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	ae := apierr.FromError(err)
	if ae.HTTPStatus >= 500 {
		slog.Error("Upload failed", "error", err)
	} else {
		slog.Info("Upload rejected", "code", ae.Code, "error", err)
	}
	metrics.UploadsTotal.WithLabelValues(ae.Code).Inc()
	metrics.UploadDuration.Observe(time.Since(start).Seconds())
	WriteError(w, ae)
}

// List handles GET /api/v1/nets and returns the indexed artifacts.
func (h *NetHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := listResponse{Artifacts: []registry.Artifact{}}
	if h.index != nil {
		artifacts, err := h.index.List(r.Context())
		if err != nil {
			slog.Error("List artifacts failed", "error", err)
			WriteError(w, apierr.ErrInternal)
			return
		}
		if artifacts != nil {
			resp.Artifacts = artifacts
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/nets/{name} and serves the stored gzip bytes.
// The name may be given either as claimed (nn-<digest>.nnue) or as stored
// (nn-<digest>.nnue.gz).
func (h *NetHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, err := parseNameParam(r)
	if err != nil {
		WriteError(w, apierr.FromError(err))
		return
	}

	reader, size, err := h.store.Open(name)
	if err != nil {
		if errors.Is(err, apierr.ErrNoSuchArtifact) {
			WriteError(w, apierr.ErrNoSuchArtifact)
			return
		}
		slog.Error("Open artifact failed", "artifact", name.StoredName(), "error", err)
		WriteError(w, apierr.ErrInternal)
		return
	}
	defer reader.Close()

	setArtifactHeaders(w, name, size)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		// Headers are gone; nothing to do but log.
		slog.Warn("Streaming artifact interrupted", "artifact", name.StoredName(), "error", err)
	}
}

// Head handles HEAD /api/v1/nets/{name}: existence and metadata only.
func (h *NetHandler) Head(w http.ResponseWriter, r *http.Request) {
	name, err := parseNameParam(r)
	if err != nil {
		w.WriteHeader(apierr.FromError(err).HTTPStatus)
		return
	}

	exists, err := h.store.Exists(name)
	if err != nil {
		slog.Error("Stat artifact failed", "artifact", name.StoredName(), "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	reader, size, err := h.store.Open(name)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	reader.Close()

	setArtifactHeaders(w, name, size)
	w.WriteHeader(http.StatusOK)
}

// parseNameParam parses the {name} path parameter in either claimed or
// stored form.
func parseNameParam(r *http.Request) (netname.ParsedName, error) {
	raw := chi.URLParam(r, "name")
	if name, err := netname.ParseStored(raw); err == nil {
		return name, nil
	}
	return netname.Parse(raw)
}

// setArtifactHeaders sets the response headers common to GET and HEAD.
func setArtifactHeaders(w http.ResponseWriter, name netname.ParsedName, size int64) {
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Length", formatInt(size))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name.StoredName()+`"`)
	w.Header().Set("ETag", `"`+name.Digest+`"`)
}
