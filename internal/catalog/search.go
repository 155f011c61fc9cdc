package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stationpos/backend/internal/cache"
	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/store"
)

const PageSize = 50

type ArticleFinder interface {
	FindArticles(ctx context.Context, filter store.ArticleFilter, limit int) ([]domain.Article, error)
}

// Search resolves a term to at most PageSize articles ordered by name.
// An empty term lists the catalog; otherwise the name is matched
// case-insensitively as a substring.
func Search(ctx context.Context, finder ArticleFinder, term string) ([]domain.Article, error) {
	return finder.FindArticles(ctx, store.ArticleFilter{NameContains: strings.TrimSpace(term)}, PageSize)
}

// Lookup is Search fronted by a short-lived result cache.
type Lookup struct {
	finder ArticleFinder
	cache  cache.SearchCache
	ttl    time.Duration
	logger logrus.FieldLogger
}

func NewLookup(finder ArticleFinder, searchCache cache.SearchCache, ttl time.Duration, logger logrus.FieldLogger) *Lookup {
	if searchCache == nil {
		searchCache = cache.NoopSearchCache{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Lookup{finder: finder, cache: searchCache, ttl: ttl, logger: logger}
}

// Search serves term from the cache when the current generation holds it.
// The generation is read before the store, so a result raced by a stock
// write lands under the old generation and is never served.
func (l *Lookup) Search(ctx context.Context, term string) ([]domain.Article, error) {
	if l.ttl <= 0 {
		return Search(ctx, l.finder, term)
	}

	gen, err := l.cache.Generation(ctx)
	if err != nil {
		l.logger.WithError(err).Warn("search cache generation unavailable")
		return Search(ctx, l.finder, term)
	}
	key := cache.SearchKey(gen, term)
	if cached, ok, err := l.cache.Get(ctx, key); err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("search cache read failed")
	} else if ok {
		return cached, nil
	}

	articles, err := Search(ctx, l.finder, term)
	if err != nil {
		return nil, err
	}
	if err := l.cache.Set(ctx, key, articles, l.ttl); err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("search cache write failed")
	}
	return articles, nil
}

// Invalidate drops every cached result. Called after any stock write so
// searches never show a quantity older than the last sale.
func (l *Lookup) Invalidate(ctx context.Context) {
	if l.ttl <= 0 {
		return
	}
	if err := l.cache.Invalidate(ctx); err != nil {
		l.logger.WithError(err).Warn("search cache invalidation failed")
	}
}
