// Package storage persists compressed network artifacts on the local
// filesystem using the crash-only atomic write pattern: write to a temp file
// in the same directory, fsync, then rename to the content-addressed final
// name. A final name is never observed in a partial state and never
// overwritten with different byte content.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/netvault/netvault/internal/apierr"
	"github.com/netvault/netvault/internal/compress"
	"github.com/netvault/netvault/internal/integrity"
	"github.com/netvault/netvault/internal/netname"
	"github.com/netvault/netvault/internal/uid"
)

// tmpDirName is the directory under the root where in-flight writes live.
// Files here were never renamed, so anything left behind by a crash is safe
// to delete on the next startup.
const tmpDirName = ".tmp"

// Store writes and reads compressed artifacts under a single root directory.
type Store struct {
	// RootDir is the directory all artifacts are stored in. Temp files live
	// in RootDir/.tmp so the final rename stays within one filesystem.
	RootDir string
}

// StoredArtifact describes a durably stored artifact. It is created only by
// a successful atomic rename (or by finding a verified pre-existing file)
// and is immutable thereafter.
type StoredArtifact struct {
	// Name is the on-disk file name (nn-<digest>.nnue.gz).
	Name string
	// Path is the absolute final path of the artifact.
	Path string
	// Digest is the content digest token from the artifact's name.
	Digest string
	// Size is the original, uncompressed content size in bytes.
	Size int64
	// CompressedSize is the on-disk gzip size in bytes.
	CompressedSize int64
	// CreatedAt is when the artifact became visible under its final name.
	CreatedAt time.Time
	// Existing is true when the artifact was already on disk with matching
	// content and this request was satisfied idempotently.
	Existing bool
}

// NewStore creates a Store rooted at the given directory, creating the root
// and the temp directory if they do not exist.
func NewStore(rootDir string) (*Store, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root %q: %w", rootDir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root directory %q: %w", abs, err)
	}
	if err := os.MkdirAll(filepath.Join(abs, tmpDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	return &Store{RootDir: abs}, nil
}

// CleanTempFiles removes all files in the temp directory. Called on startup
// as part of crash-only recovery: temp files are incomplete writes from a
// previous crash and were never visible under a final name.
func (s *Store) CleanTempFiles() error {
	tmpDir := filepath.Join(s.RootDir, tmpDirName)
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(tmpDir, entry.Name()))
		}
	}
	return nil
}

// artifactPath returns the final filesystem path for a parsed name.
func (s *Store) artifactPath(name netname.ParsedName) string {
	return filepath.Join(s.RootDir, name.StoredName())
}

// tempPath returns a unique temporary file path in the temp directory.
func (s *Store) tempPath() string {
	return filepath.Join(s.RootDir, tmpDirName, "upload-"+uid.New())
}

// Write durably persists a compressed artifact under its content-addressed
// name. The sequence is: duplicate check, temp write, fsync, re-check,
// atomic rename. On any failure after the temp file is created, the temp
// file is removed before returning.
//
// Duplicate policy: an existing final file whose content digest matches its
// own name satisfies the request idempotently; one whose digest does not
// match is reported as apierr.ErrArtifactConflict and never overwritten.
func (s *Store) Write(ctx context.Context, name netname.ParsedName, c compress.Compressed, originalSize int64) (StoredArtifact, error) {
	finalPath := s.artifactPath(name)

	// Fast path: the artifact may already be on disk.
	if art, done, err := s.checkExisting(finalPath, name); done {
		return art, err
	}

	tmpPath := s.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return StoredArtifact{}, classifyWriteError("creating temp file", err)
	}

	if _, err := tmpFile.Write(c.Data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return StoredArtifact{}, classifyWriteError("writing artifact data", err)
	}

	// Fsync before rename to guarantee durability.
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return StoredArtifact{}, classifyWriteError("syncing temp file", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return StoredArtifact{}, classifyWriteError("closing temp file", err)
	}

	// The client may have gone away while we were writing; stop before the
	// artifact becomes visible.
	if err := ctx.Err(); err != nil {
		os.Remove(tmpPath)
		return StoredArtifact{}, fmt.Errorf("upload canceled before commit: %w", err)
	}

	// A concurrent upload of the same name may have finished while we were
	// writing. Both temp files hold byte-identical content when valid, so
	// either outcome is content-equivalent; a digest mismatch is corruption
	// and is rejected.
	if art, done, err := s.checkExisting(finalPath, name); done {
		os.Remove(tmpPath)
		return art, err
	}

	// Atomic rename: temp -> final path.
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return StoredArtifact{}, classifyWriteError("renaming temp file to final path", err)
	}

	return StoredArtifact{
		Name:           name.StoredName(),
		Path:           finalPath,
		Digest:         name.Digest,
		Size:           originalSize,
		CompressedSize: c.Size,
		CreatedAt:      time.Now().UTC(),
		Existing:       false,
	}, nil
}

// checkExisting inspects the final path. done is false when nothing exists
// there and the write should proceed. When a file exists, its decompressed
// digest is verified against the name: a match yields an idempotent
// StoredArtifact, a mismatch yields ErrArtifactConflict.
func (s *Store) checkExisting(finalPath string, name netname.ParsedName) (StoredArtifact, bool, error) {
	info, err := os.Stat(finalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return StoredArtifact{}, false, nil
		}
		return StoredArtifact{}, true, classifyWriteError("checking existing artifact", err)
	}

	digest, size, err := s.digestOfStored(finalPath)
	if err != nil {
		// An unreadable or non-gzip file under a final name is corruption.
		return StoredArtifact{}, true, apierr.ErrArtifactConflict.WithMessage(
			"existing artifact %s cannot be verified: %v", name.StoredName(), err)
	}
	if !strings.EqualFold(digest, name.Digest) {
		return StoredArtifact{}, true, apierr.ErrArtifactConflict.WithMessage(
			"existing artifact %s has digest %s, not the %s its name claims",
			name.StoredName(), digest, name.Digest)
	}

	return StoredArtifact{
		Name:           name.StoredName(),
		Path:           finalPath,
		Digest:         name.Digest,
		Size:           size,
		CompressedSize: info.Size(),
		CreatedAt:      info.ModTime().UTC(),
		Existing:       true,
	}, true, nil
}

// digestOfStored decompresses a stored artifact and returns the digest token
// and uncompressed size of its content.
func (s *Store) digestOfStored(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening stored artifact: %w", err)
	}
	defer f.Close()

	data, err := compress.Decompress(f)
	if err != nil {
		return "", 0, err
	}
	return integrity.Digest(data), int64(len(data)), nil
}

// Describe verifies and describes an artifact already on disk. It returns
// apierr.ErrNoSuchArtifact when nothing is stored under the name and
// apierr.ErrArtifactConflict when the stored content contradicts the name.
func (s *Store) Describe(name netname.ParsedName) (StoredArtifact, error) {
	art, done, err := s.checkExisting(s.artifactPath(name), name)
	if err != nil {
		return StoredArtifact{}, err
	}
	if !done {
		return StoredArtifact{}, apierr.ErrNoSuchArtifact
	}
	return art, nil
}

// Open returns a reader over the compressed bytes of a stored artifact,
// along with its on-disk size. The caller must close the reader.
func (s *Store) Open(name netname.ParsedName) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.artifactPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, apierr.ErrNoSuchArtifact
		}
		return nil, 0, fmt.Errorf("opening artifact %s: %w", name.StoredName(), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat artifact %s: %w", name.StoredName(), err)
	}
	return f, info.Size(), nil
}

// Exists reports whether an artifact is present under its final name.
func (s *Store) Exists(name netname.ParsedName) (bool, error) {
	info, err := os.Stat(s.artifactPath(name))
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking artifact existence %s: %w", name.StoredName(), err)
}

// List returns the parsed names of all artifacts currently stored under the
// root directory, sorted by name. Entries that do not parse as stored
// artifact names (including the temp directory) are skipped.
func (s *Store) List() ([]netname.ParsedName, error) {
	entries, err := os.ReadDir(s.RootDir)
	if err != nil {
		return nil, fmt.Errorf("reading storage root: %w", err)
	}
	var names []netname.ParsedName
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parsed, err := netname.ParseStored(entry.Name())
		if err != nil {
			continue
		}
		names = append(names, parsed)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Digest < names[j].Digest })
	return names, nil
}

// HealthCheck verifies that the storage root directory is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(s.RootDir)
	return err
}

// classifyWriteError maps filesystem errors onto the pipeline taxonomy:
// ENOSPC becomes DiskFull, permission failures become PermissionDenied, and
// anything else is wrapped with context for the 500 path.
func classifyWriteError(op string, err error) error {
	switch {
	case errors.Is(err, syscall.ENOSPC):
		return apierr.ErrDiskFull.WithMessage("%s: %v", op, err)
	case errors.Is(err, fs.ErrPermission):
		return apierr.ErrPermissionDenied.WithMessage("%s: %v", op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
