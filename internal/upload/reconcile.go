package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/netvault/netvault/internal/registry"
	"github.com/netvault/netvault/internal/storage"
)

// Index is the registry surface reconciliation needs.
// *registry.SQLiteRegistry implements it.
type Index interface {
	Recorder
	Get(ctx context.Context, name string) (*registry.Artifact, error)
	List(ctx context.Context) ([]registry.Artifact, error)
	Delete(ctx context.Context, name string) error
}

// Reconcile brings the registry in line with the storage directory. It runs
// on every startup: the directory is the data, the registry is the index.
// Artifacts on disk but not indexed are verified and added; index rows whose
// file has vanished are removed. Files whose content contradicts their name
// are left unindexed and logged, never deleted.
func Reconcile(ctx context.Context, store *storage.Store, idx Index) (added, removed int, err error) {
	names, err := store.List()
	if err != nil {
		return 0, 0, fmt.Errorf("listing stored artifacts: %w", err)
	}

	onDisk := make(map[string]bool, len(names))
	for _, name := range names {
		onDisk[name.StoredName()] = true

		existing, err := idx.Get(ctx, name.StoredName())
		if err != nil {
			return added, removed, fmt.Errorf("looking up %s: %w", name.StoredName(), err)
		}
		if existing != nil {
			continue
		}

		art, err := store.Describe(name)
		if err != nil {
			slog.Warn("Skipping unverifiable artifact during reconcile",
				"artifact", name.StoredName(), "error", err)
			continue
		}
		rec := &registry.Artifact{
			Name:           art.Name,
			Digest:         art.Digest,
			Size:           art.Size,
			CompressedSize: art.CompressedSize,
			CreatedAt:      art.CreatedAt,
		}
		if err := idx.Put(ctx, rec); err != nil {
			return added, removed, fmt.Errorf("indexing %s: %w", art.Name, err)
		}
		added++
	}

	indexed, err := idx.List(ctx)
	if err != nil {
		return added, removed, fmt.Errorf("listing indexed artifacts: %w", err)
	}
	for _, rec := range indexed {
		if onDisk[rec.Name] {
			continue
		}
		if err := idx.Delete(ctx, rec.Name); err != nil {
			return added, removed, fmt.Errorf("dropping stale index row %s: %w", rec.Name, err)
		}
		removed++
	}

	return added, removed, nil
}
