package masterdata

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MissTTL caps how long a failed lookup is remembered.
const MissTTL = 30 * time.Second

// Cached memoizes successful lookups for ttl and failed ones for at most MissTTL, so an
// unreachable or unaware directory is asked again only after the miss expires.
type Cached struct {
	inner   Directory
	workers memo
	sites   memo
}

type memo struct {
	hits   *expirable.LRU[string, string]
	misses *expirable.LRU[string, error]
}

func NewCached(inner Directory, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 256
	}
	missTTL := MissTTL
	if ttl > 0 && ttl < missTTL {
		missTTL = ttl
	}
	newMemo := func() memo {
		return memo{
			hits:   expirable.NewLRU[string, string](size, nil, ttl),
			misses: expirable.NewLRU[string, error](size, nil, missTTL),
		}
	}
	return &Cached{inner: inner, workers: newMemo(), sites: newMemo()}
}

func (c *Cached) WorkerName(ctx context.Context, id string) (string, error) {
	return c.workers.lookup(ctx, id, c.inner.WorkerName)
}

func (c *Cached) SiteName(ctx context.Context, id string) (string, error) {
	return c.sites.lookup(ctx, id, c.inner.SiteName)
}

func (m memo) lookup(ctx context.Context, id string, fetch func(context.Context, string) (string, error)) (string, error) {
	if name, ok := m.hits.Get(id); ok {
		return name, nil
	}
	if err, ok := m.misses.Get(id); ok {
		return "", err
	}
	name, err := fetch(ctx, id)
	if err != nil {
		// a caller giving up is not a directory failure
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			m.misses.Add(id, err)
		}
		return "", err
	}
	m.hits.Add(id, name)
	return name, nil
}
