package projection_test

import (
	"testing"

	"github.com/plaenen/projector/pkg/projection"
)

// Property: an entry is never served as fresh once it exceeds RefreshWindow
// since its last Touch. A tenant that has never been touched is reported as
// maximally stale.
func TestVersionCacheStalenessBound(t *testing.T) {
	cache := projection.NewVersionCache()

	if cache.StaleSince("tenant-a") < projection.RefreshWindow {
		t.Fatalf("an untouched tenant must be reported as stale")
	}

	cache.Touch("tenant-a")
	if cache.StaleSince("tenant-a") >= projection.RefreshWindow {
		t.Fatalf("a freshly touched tenant must not be stale")
	}
}

func TestVersionCacheGetMiss(t *testing.T) {
	cache := projection.NewVersionCache()
	if _, found := cache.Get("tenant-a", "missing"); found {
		t.Fatalf("expected a cache miss for an unknown tenant")
	}
}

func TestVersionCacheCacheUpsert(t *testing.T) {
	cache := projection.NewVersionCache()
	cache.Cache("tenant-a", projection.ProjectionVersion{Name: "p", Status: projection.StatusBuilding, Revision: 1})
	cache.Cache("tenant-a", projection.ProjectionVersion{Name: "p", Status: projection.StatusLive, Revision: 1})

	versions, found := cache.Get("tenant-a", "p")
	if !found {
		t.Fatalf("expected a cache hit")
	}
	if versions.Live == nil || versions.Live.Revision != 1 {
		t.Fatalf("expected revision 1 to have moved into the live slot, got %+v", versions)
	}
	if len(versions.Building) != 0 {
		t.Fatalf("expected revision 1 to no longer be listed as building, got %+v", versions.Building)
	}
}

func TestVersionCacheTenantIsolation(t *testing.T) {
	cache := projection.NewVersionCache()
	cache.Cache("tenant-a", projection.ProjectionVersion{Name: "p", Status: projection.StatusLive, Revision: 1})

	if _, found := cache.Get("tenant-b", "p"); found {
		t.Fatalf("expected tenant-b to have no entry cached for tenant-a's write")
	}
}
