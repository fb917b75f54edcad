package projection

import (
	"sync"
	"time"

	"github.com/plaenen/projector/pkg/domain"
)

// RefreshWindow is the staleness bound: a cache entry older than this
// triggers a replay of the version-manager projection on next resolve.
const RefreshWindow = 5 * time.Minute

// VersionCache is the per-tenant, per-process map of
// projectionName -> ProjectionVersions, with one lastRefresh timestamp per
// tenant. It tolerates concurrent Get lock-free (RLock) and serializes
// Cache insertions, the same coarse-writer / lock-free-reader shape as
// eventsourcing.ProjectionManager.
//
// Design note §9 leaves the scope of lastRefreshTimestamp to the
// implementer: this module narrows it from fully process-global to
// per-tenant, since tenant isolation is explicit in this spec's glossary,
// but keeps it shared across every projection name within one tenant —
// two concurrent Gets for different names in the same tenant can still
// both observe staleness and both trigger a refresh. That is intentional
// (see resolver.go and design note §9's open question on refresh
// deduplication): this cache does not serialize refreshes.
type VersionCache struct {
	mu          sync.RWMutex
	byTenant    map[string]map[ProjectionName]ProjectionVersions
	lastRefresh map[string]time.Time
}

// NewVersionCache creates an empty cache.
func NewVersionCache() *VersionCache {
	return &VersionCache{
		byTenant:    make(map[string]map[ProjectionName]ProjectionVersions),
		lastRefresh: make(map[string]time.Time),
	}
}

// Get returns the cached versions for name within tenant, and whether an
// entry exists at all.
func (c *VersionCache) Get(tenant string, name ProjectionName) (ProjectionVersions, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byName, ok := c.byTenant[tenant]
	if !ok {
		return ProjectionVersions{}, false
	}
	for n, v := range byName {
		if n.Equal(name) {
			return v, true
		}
	}
	return ProjectionVersions{}, false
}

// Cache upserts a single version into the cached set for its name.
func (c *VersionCache) Cache(tenant string, version ProjectionVersion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byName, ok := c.byTenant[tenant]
	if !ok {
		byName = make(map[ProjectionName]ProjectionVersions)
		c.byTenant[tenant] = byName
	}
	existing := byName[version.Name]
	byName[version.Name] = existing.WithVersion(version)
}

// CacheAll replaces the cached set for versions.Name with versions.
func (c *VersionCache) CacheAll(tenant string, versions ProjectionVersions) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byName, ok := c.byTenant[tenant]
	if !ok {
		byName = make(map[ProjectionName]ProjectionVersions)
		c.byTenant[tenant] = byName
	}
	byName[versions.Name] = versions
}

// StaleSince returns how long it has been since the last refresh recorded
// for tenant. A tenant that has never refreshed is maximally stale.
func (c *VersionCache) StaleSince(tenant string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.lastRefresh[tenant]
	if !ok {
		return time.Duration(1<<63 - 1)
	}
	return domain.Now().Sub(t)
}

// Touch records that tenant was just refreshed.
func (c *VersionCache) Touch(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRefresh[tenant] = domain.Now()
}
