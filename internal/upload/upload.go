// Package upload orchestrates the upload-validate-compress-store pipeline.
//
// The coordinator runs exactly one pass per request through four stages:
// parse the claimed filename, verify the content digest, compress, and
// persist atomically. Any stage failure short-circuits the pipeline; no
// later stage runs and nothing becomes visible under a final name. The
// coordinator holds no cross-request state beyond the filesystem.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/netvault/netvault/internal/apierr"
	"github.com/netvault/netvault/internal/compress"
	"github.com/netvault/netvault/internal/integrity"
	"github.com/netvault/netvault/internal/netname"
	"github.com/netvault/netvault/internal/registry"
	"github.com/netvault/netvault/internal/storage"
)

// Request is one inbound upload: the claimed filename and the content
// stream. It is created per request and discarded when the pipeline ends.
type Request struct {
	// Filename is the untrusted claimed name (nn-<digest>.nnue).
	Filename string
	// Content is the inbound byte stream. Read exactly once.
	Content io.Reader
}

// Recorder indexes stored artifacts. *registry.SQLiteRegistry implements it.
type Recorder interface {
	Put(ctx context.Context, a *registry.Artifact) error
}

// Coordinator wires the pipeline stages together with their configuration.
// All configuration is injected at construction; there is no ambient lookup.
type Coordinator struct {
	compressor    *compress.Compressor
	store         *storage.Store
	recorder      Recorder
	maxUploadSize int64
}

// New creates a Coordinator. recorder may be nil, in which case stored
// artifacts are not indexed (the storage directory remains authoritative).
func New(compressor *compress.Compressor, store *storage.Store, recorder Recorder, maxUploadSize int64) *Coordinator {
	return &Coordinator{
		compressor:    compressor,
		store:         store,
		recorder:      recorder,
		maxUploadSize: maxUploadSize,
	}
}

// Handle runs the pipeline for one request. On success the returned artifact
// is durably stored (or was already stored with identical content). On
// failure the returned error carries the rejection kind and the filesystem
// is left as if the request never happened.
func (c *Coordinator) Handle(ctx context.Context, req Request) (storage.StoredArtifact, error) {
	parsed, err := netname.Parse(req.Filename)
	if err != nil {
		return storage.StoredArtifact{}, err
	}

	body, err := readBounded(req.Content, c.maxUploadSize)
	if err != nil {
		return storage.StoredArtifact{}, err
	}

	verified, err := integrity.Verify(bytes.NewReader(body), parsed.Digest)
	if err != nil {
		return storage.StoredArtifact{}, err
	}

	compressed, err := c.compressor.Compress(verified.Data)
	if err != nil {
		return storage.StoredArtifact{}, err
	}

	artifact, err := c.store.Write(ctx, parsed, compressed, verified.Size)
	if err != nil {
		return storage.StoredArtifact{}, err
	}

	if c.recorder != nil {
		// Storage is the data, the registry is the index. A failed index
		// write does not undo a durable store; reconciliation repairs the
		// index on the next startup.
		rec := &registry.Artifact{
			Name:           artifact.Name,
			Digest:         artifact.Digest,
			Size:           artifact.Size,
			CompressedSize: artifact.CompressedSize,
			CreatedAt:      artifact.CreatedAt,
		}
		if err := c.recorder.Put(ctx, rec); err != nil {
			slog.Warn("Failed to index stored artifact", "artifact", artifact.Name, "error", err)
		}
	}

	return artifact, nil
}

// readBounded reads r to EOF, rejecting streams longer than max with
// ErrPayloadTooLarge. Reading stops at max+1 bytes, so an oversized body is
// never fully buffered.
func readBounded(r io.Reader, max int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: max + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("reading upload body: %w", err)
	}
	if int64(len(data)) > max {
		return nil, apierr.ErrPayloadTooLarge.WithMessage(
			"upload exceeds the maximum allowed size of %d bytes", max)
	}
	return data, nil
}
