package projection

import (
	"context"
	"fmt"
	"log/slog"
)

// VersionManagerName is the contract id of the version-manager projection
// itself: a projection about projections (see spec §4.4, §9 and
// versionmanager.go).
const VersionManagerName ProjectionName = "projection.VersionManager"

// streamLoader is the subset of Repository the resolver needs in order to
// bootstrap its own cache by replaying the version-manager projection
// through the same page-and-checkpoint loop every other projection uses.
// Repository implements this.
type streamLoader interface {
	loadVersionManager(ctx context.Context, tenant string, name ProjectionName) (ProjectionVersions, error)
}

// Resolver implements C7: resolving the current ProjectionVersions for a
// name, served from VersionCache and refreshed from the version-manager
// projection when stale.
type Resolver struct {
	cache  *VersionCache
	loader streamLoader
	logger *slog.Logger
}

// NewResolver creates a resolver backed by cache, refreshing through
// loader when the cache is stale.
func NewResolver(cache *VersionCache, loader streamLoader, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cache: cache, loader: loader, logger: logger}
}

// GetProjectionVersions implements the five-step algorithm from spec §4.4.
func (r *Resolver) GetProjectionVersions(ctx context.Context, tenant string, name ProjectionName) (ProjectionVersions, error) {
	stale := r.cache.StaleSince(tenant) > RefreshWindow

	versions, found := r.cache.Get(tenant, name)

	if !stale && found && !versions.IsEmpty() {
		return versions, nil
	}

	refreshed, err := r.loader.loadVersionManager(ctx, tenant, name)
	if err != nil {
		// Stale reads are preferred over unavailability: surface the
		// error but do not evict whatever is already cached.
		if found {
			r.logger.WarnContext(ctx, "version manager refresh failed, serving stale cache",
				slog.String("tenant", tenant), slog.String("projection", name.String()), slog.Any("error", err))
			return versions, fmt.Errorf("%w: %v", ErrVersionResolutionFailed, err)
		}
		return ProjectionVersions{}, fmt.Errorf("%w: %v", ErrVersionResolutionFailed, err)
	}

	r.cache.CacheAll(tenant, refreshed)
	r.cache.Touch(tenant)

	if refreshed.Live == nil {
		r.logger.WarnContext(ctx, "no live version for projection; reads will return empty stream",
			slog.String("tenant", tenant), slog.String("projection", name.String()))
	}

	return refreshed, nil
}
