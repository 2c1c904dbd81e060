package offline

import (
	"context"
	"errors"

	"github.com/acurth/audioguia/pkg/store"
)

// Verification failures. All of them mean the tour cannot be trusted to play
// offline and should surface as an explicit error, not as downloaded.
var (
	ErrCacheMissing    = errors.New("tour cache is not registered")
	ErrCacheEmpty      = errors.New("tour cache holds no entries")
	ErrCacheNoMetadata = errors.New("tour cache is missing its metadata entry")
)

// Verify checks the integrity of a downloaded tour cache.
func Verify(ctx context.Context, st store.Store, tourID string) error {
	caches, err := st.ListCaches(ctx)
	if err != nil {
		return err
	}
	var info *store.CacheInfo
	for i := range caches {
		if caches[i].TourID == tourID {
			info = &caches[i]
			break
		}
	}
	if info == nil {
		return ErrCacheMissing
	}
	if info.AssetCount == 0 {
		return ErrCacheEmpty
	}
	has, err := st.HasAsset(ctx, tourID, MetaKey(info.Slug))
	if err != nil {
		return err
	}
	if !has {
		return ErrCacheNoMetadata
	}
	return nil
}
