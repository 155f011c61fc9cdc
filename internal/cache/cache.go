package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stationpos/backend/internal/domain"
)

// ErrSubmitInFlight is returned when another commit holds the same key.
var ErrSubmitInFlight = errors.New("submission already in flight")

// SearchCache holds search results under a generation number. Bumping the
// generation with Invalidate orphans every cached result at once; stale
// entries then expire on their TTL.
type SearchCache interface {
	Generation(ctx context.Context) (uint64, error)
	Get(ctx context.Context, key string) ([]domain.Article, bool, error)
	Set(ctx context.Context, key string, articles []domain.Article, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

const searchGenerationKey = "catalog:search:generation"

func SearchKey(generation uint64, term string) string {
	return fmt.Sprintf("catalog:search:%d:%s", generation, strings.ToLower(strings.TrimSpace(term)))
}

type NoopSearchCache struct{}

func (NoopSearchCache) Generation(_ context.Context) (uint64, error) { return 0, nil }

func (NoopSearchCache) Get(_ context.Context, _ string) ([]domain.Article, bool, error) {
	return nil, false, nil
}

func (NoopSearchCache) Set(_ context.Context, _ string, _ []domain.Article, _ time.Duration) error {
	return nil
}

func (NoopSearchCache) Invalidate(_ context.Context) error { return nil }

type localEntry struct {
	articles  []domain.Article
	expiresAt time.Time
}

// LocalSearchCache is the in-process cache used when no Redis is configured.
type LocalSearchCache struct {
	mu         sync.Mutex
	generation uint64
	entries    map[string]localEntry
	now        func() time.Time
}

func NewLocalSearchCache() *LocalSearchCache {
	return &LocalSearchCache{entries: make(map[string]localEntry), now: time.Now}
}

func (c *LocalSearchCache) Generation(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, nil
}

func (c *LocalSearchCache) Get(_ context.Context, key string) ([]domain.Article, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]domain.Article(nil), entry.articles...), true, nil
}

func (c *LocalSearchCache) Set(_ context.Context, key string, articles []domain.Article, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = localEntry{
		articles:  append([]domain.Article(nil), articles...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Invalidate bumps the generation and drops the orphaned entries.
func (c *LocalSearchCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	clear(c.entries)
	return nil
}

// SubmitGuard keeps a single commit in flight per key (a terminal).
type SubmitGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalSubmitGuard guards within one process.
type LocalSubmitGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalSubmitGuard() *LocalSubmitGuard {
	return &LocalSubmitGuard{held: make(map[string]struct{})}
}

func (g *LocalSubmitGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[key]; ok {
		return nil, ErrSubmitInFlight
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}
