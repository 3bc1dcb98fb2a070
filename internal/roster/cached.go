package roster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fortuna/janus/internal/pbp"
)

// PlayerCache stores player records. Put is insert-if-absent; a stored record is never replaced.
type PlayerCache interface {
	GetPlayer(ctx context.Context, id string) (*pbp.Player, bool, error)
	PutPlayer(ctx context.Context, p *pbp.Player) error
}

// CachedProvider serves players from cache, falling through to next on a miss.
// Ids that next reports as not found are remembered for the provider's lifetime.
// Other errors are not cached.
type CachedProvider struct {
	cache PlayerCache
	next  PlayerProvider

	mu      sync.Mutex
	missing map[string]struct{}
}

func NewCachedProvider(cache PlayerCache, next PlayerProvider) *CachedProvider {
	return &CachedProvider{cache: cache, next: next, missing: make(map[string]struct{})}
}

func (c *CachedProvider) FetchPlayer(ctx context.Context, id string) (*pbp.Player, error) {
	if p, ok, err := c.cache.GetPlayer(ctx, id); err == nil && ok {
		return p, nil
	}
	if c.isMissing(id) {
		return nil, fmt.Errorf("%w: %s (cached)", pbp.ErrPlayerNotFound, id)
	}

	p, err := c.next.FetchPlayer(ctx, id)
	if err != nil {
		if errors.Is(err, pbp.ErrPlayerNotFound) {
			c.mu.Lock()
			c.missing[id] = struct{}{}
			c.mu.Unlock()
		}
		return nil, err
	}
	// A failed write only costs a refetch.
	_ = c.cache.PutPlayer(ctx, p)
	return p, nil
}

func (c *CachedProvider) isMissing(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.missing[id]
	return ok
}
