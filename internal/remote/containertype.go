package remote

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/gasdevtools/gas-sync/internal/types"
)

// containerTypeTTL is how long a resolved container type is trusted before
// ContainerTypeCache re-queries Drive for it. Container bindings
// essentially never change, so a day-long TTL trades staleness for a large
// reduction in Drive lookups.
const containerTypeTTL = 24 * time.Hour

type containerTypeEntry struct {
	kind      DriveEntityKind
	expiresAt time.Time
}

// ContainerTypeCache caches the Drive parent-container kind for a project's
// ParentID, read-through against DriveClient.GetFile. It is process-wide
// and safe for concurrent use; singleflight collapses concurrent lookups
// for the same container into a single Drive call.
type ContainerTypeCache struct {
	drive DriveClient
	group singleflight.Group

	mu      sync.Mutex
	entries map[uint64]containerTypeEntry

	// OnHit and OnMiss, when set, are called per lookup - the
	// observability hooks for the cache hit/miss counters.
	OnHit  func()
	OnMiss func()
}

// NewContainerTypeCache builds a cache backed by drive.
func NewContainerTypeCache(drive DriveClient) *ContainerTypeCache {
	return &ContainerTypeCache{drive: drive, entries: make(map[uint64]containerTypeEntry)}
}

// Lookup resolves containerID's Drive entity kind, serving a cached value
// when it has not exceeded its 24h TTL. A lost or expired entry triggers a
// re-discovery, never an error. The
// cache is keyed by an xxhash digest of containerID rather than the raw
// string, since the key is looked up far more often than it is written.
func (c *ContainerTypeCache) Lookup(ctx context.Context, token, containerID string) (DriveEntityKind, error) {
	if containerID == "" {
		return DriveEntityNone, nil
	}
	key := xxhash.Sum64String(containerID)

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		if c.OnHit != nil {
			c.OnHit()
		}
		return entry.kind, nil
	}
	if c.OnMiss != nil {
		c.OnMiss()
	}

	v, err, _ := c.group.Do(containerID, func() (any, error) {
		file, err := c.drive.GetFile(ctx, token, containerID)
		if err != nil {
			return DriveEntityKind(""), err
		}
		c.mu.Lock()
		c.entries[key] = containerTypeEntry{kind: file.Kind, expiresAt: time.Now().Add(containerTypeTTL)}
		c.mu.Unlock()
		return file.Kind, nil
	})
	if err != nil {
		return DriveEntityNone, err
	}
	return v.(DriveEntityKind), nil
}

// ResolveContainerType is a convenience wrapper returning the
// types.ContainerType directly.
func (c *ContainerTypeCache) ResolveContainerType(ctx context.Context, token, containerID string) (types.ContainerType, error) {
	kind, err := c.Lookup(ctx, token, containerID)
	if err != nil {
		return "", err
	}
	return kind.ContainerType(), nil
}
