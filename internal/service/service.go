package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stationpos/backend/internal/catalog"
	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/metrics"
	"stationpos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	lookup  *catalog.Lookup
	logger  logrus.FieldLogger
	metrics *metrics.Recorder
	now     func() time.Time
}

// New wires the service. lookup, logger and recorder may be nil.
func New(repo store.Repository, lookup *catalog.Lookup, logger logrus.FieldLogger, recorder *metrics.Recorder) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if lookup == nil {
		lookup = catalog.NewLookup(repo, nil, 0, logger)
	}

	return &Service{
		repo:    repo,
		lookup:  lookup,
		logger:  logger.WithField("module", "service"),
		metrics: recorder,
		now:     time.Now,
	}
}

func (s *Service) SearchArticles(ctx context.Context, term string) ([]domain.Article, error) {
	return s.lookup.Search(ctx, term)
}

func (s *Service) GetArticle(ctx context.Context, id string) (*domain.Article, error) {
	return s.repo.GetArticle(ctx, id)
}

func (s *Service) GetCommit(ctx context.Context, id string) (*domain.SaleCommit, error) {
	return s.repo.GetCommit(ctx, id)
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

func requireManager(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return actor, err
	}
	if actor.Role != domain.RoleManager {
		return actor, ErrForbidden
	}
	return actor, nil
}

const dateLayout = "2006-01-02"

// ParseDate reads a YYYY-MM-DD date; empty means fallback.
func ParseDate(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, invalid("date", fmt.Sprintf("%q is not YYYY-MM-DD", raw))
	}
	return parsed, nil
}

func (s *Service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// adjustStock applies delta to an article's stock with the store's
// indivisible primitive, falling back to read-then-write when that fails.
// The fallback can lose a concurrent update; it is logged and counted so
// reconciliation can pick up the drift.
func (s *Service) adjustStock(ctx context.Context, logger logrus.FieldLogger, articleID string, delta int) (string, error) {
	// a failed adjustment may still have written; drop cached stock either way
	defer s.lookup.Invalidate(ctx)

	var err error
	if delta < 0 {
		err = s.repo.AtomicDecrement(ctx, articleID, -delta)
	} else {
		err = s.repo.AtomicIncrement(ctx, articleID, delta)
	}
	if err == nil {
		s.metrics.StockAdjusted(domain.DecrementPathAtomic)
		return domain.DecrementPathAtomic, nil
	}

	article, getErr := s.repo.GetArticle(ctx, articleID)
	if getErr != nil {
		s.metrics.StockAdjusted("failed")
		return domain.DecrementPathFallback, fmt.Errorf("read stock: %w", errors.Join(err, getErr))
	}

	logger.WithFields(logrus.Fields{
		"article_id":     articleID,
		"observed_stock": article.CurrentStock,
		"delta":          delta,
		"atomic_error":   err.Error(),
	}).Warn("atomic stock adjustment failed, using read-then-write")

	if err := s.repo.UpdateArticleStock(ctx, articleID, article.CurrentStock+delta); err != nil {
		s.metrics.StockAdjusted("failed")
		return domain.DecrementPathFallback, fmt.Errorf("write stock: %w", err)
	}
	s.metrics.StockAdjusted(domain.DecrementPathFallback)
	return domain.DecrementPathFallback, nil
}
