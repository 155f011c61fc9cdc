package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stationpos/backend/internal/basket"
	"stationpos/backend/internal/cache"
	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/logx"
	"stationpos/backend/internal/store"
	"stationpos/backend/internal/xid"
)

// NewSaleDraft builds a terminal draft from request lines, pricing goods
// from the catalog.
func (s *Service) NewSaleDraft(ctx context.Context, req domain.SaleRequest) (*basket.Draft, error) {
	if len(req.Lines) == 0 {
		return nil, invalid("lines", "basket is empty")
	}
	saleDate, err := ParseDate(req.SaleDate, time.Time{})
	if err != nil {
		return nil, err
	}

	draft := basket.NewDraft(func() time.Time { return s.now().UTC() })
	draft.SetDate(saleDate)
	for i, line := range req.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		article, err := s.repo.GetArticle(ctx, line.ArticleID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid(field, fmt.Sprintf("unknown article %q", line.ArticleID))
		}
		if err != nil {
			return nil, err
		}
		price := article.Price
		if line.Price != nil {
			price = *line.Price
		}
		if !draft.AddLine(article, line.Quantity, price, line.Location) {
			return nil, invalid(field, "quantity must be positive with a valid price and location")
		}
	}
	return draft, nil
}

// CommitDraft runs the commit pipeline for a draft and settles it: a stored
// sale clears the draft, even when some stock adjustments failed.
func (s *Service) CommitDraft(ctx context.Context, draft *basket.Draft) (domain.CommitReport, error) {
	snap, saleDate, ok := draft.BeginSubmit()
	if !ok {
		return domain.CommitReport{}, cache.ErrSubmitInFlight
	}

	report, err := s.CommitSale(ctx, snap, saleDate)
	var partial *PartialCommitError
	if err == nil || errors.As(err, &partial) {
		draft.Complete()
	} else {
		draft.Abort()
	}
	return report, err
}

// CommitSale stores one SaleRecord per line in a single batch, then adjusts
// stock and appends an out movement for every inventory line. Nothing is
// rolled back once the batch is stored.
func (s *Service) CommitSale(ctx context.Context, snap basket.Snapshot, saleDate time.Time) (domain.CommitReport, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CommitReport{}, err
	}
	if snap.Empty() {
		return domain.CommitReport{}, invalid("basket", "basket is empty")
	}
	for i, line := range snap.Lines {
		if line.ArticleID == "" || line.Quantity <= 0 {
			return domain.CommitReport{}, invalid(fmt.Sprintf("lines[%d]", i), "quantity must be positive")
		}
	}
	if saleDate.IsZero() {
		saleDate = s.today()
	}

	now := s.now().UTC()
	commit := domain.SaleCommit{
		ID:        xid.New("commit"),
		Status:    domain.CommitRecording,
		SaleDate:  saleDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	logger := s.logger.WithFields(logrus.Fields{
		"commit_id": commit.ID,
		"operator":  actor.Username,
	})
	s.saveCommit(ctx, logger, &commit)

	sales := make([]domain.SaleRecord, 0, len(snap.Lines))
	total := decimal.Zero
	for _, line := range snap.Lines {
		total = total.Add(line.Total())
		var location *domain.SalesLocation
		if line.Flags().IsLocationTagged && line.Location != "" {
			loc := line.Location
			location = &loc
		}
		sales = append(sales, domain.SaleRecord{
			ID:            xid.New("sale"),
			CommitID:      commit.ID,
			ArticleID:     line.ArticleID,
			Quantity:      line.Quantity,
			TotalPrice:    line.Total(),
			SaleDate:      saleDate,
			SalesLocation: location,
			CreatedAt:     now,
		})
	}

	if err := s.repo.InsertSales(ctx, sales); err != nil {
		logx.Error(logger, "service", "CommitSale", "insert sales", map[string]int{"lines": len(sales)}, err)
		commit.Status = domain.CommitFailed
		commit.Error = err.Error()
		s.saveCommit(ctx, logger, &commit)
		s.metrics.CommitFinished(string(domain.CommitFailed))
		return domain.CommitReport{}, &WriteFailure{Step: "record sales", Err: err}
	}
	commit.Status = domain.CommitSalesWritten
	s.saveCommit(ctx, logger, &commit)

	lines := make([]domain.CommitLine, 0, len(snap.Lines))
	var failures []LineFailure
	for _, line := range snap.Lines {
		if line.Flags().IsService {
			lines = append(lines, domain.CommitLine{
				ArticleID:     line.ArticleID,
				ArticleName:   line.ArticleName,
				Quantity:      line.Quantity,
				DecrementPath: domain.DecrementPathNone,
			})
			continue
		}

		article := domain.Article{ID: line.ArticleID, Name: line.ArticleName}
		result, failure := s.applyMovement(ctx, logger.WithField("article_id", line.ArticleID), article, domain.MovementOut, line.Quantity, saleDate, "")
		if failure != nil {
			failures = append(failures, *failure)
		}
		lines = append(lines, result)
	}

	commit.Lines = lines
	commit.Status = domain.CommitComplete
	if len(failures) > 0 {
		commit.Status = domain.CommitPartiallyAdjusted
	}
	s.saveCommit(ctx, logger, &commit)
	s.metrics.CommitFinished(string(commit.Status))

	report := domain.CommitReport{
		CommitID: commit.ID,
		State:    commit.Status,
		Total:    total,
		Sales:    sales,
		Lines:    lines,
	}
	if len(failures) > 0 {
		logger.WithField("failed_lines", len(failures)).Warn("sale recorded with inventory adjustment failures")
		return report, &PartialCommitError{CommitID: commit.ID, Lines: failures}
	}
	logger.WithFields(logrus.Fields{"lines": len(lines), "total": total.String()}).Info("sale committed")
	return report, nil
}

// saveCommit persists the processing status. It never fails the commit.
func (s *Service) saveCommit(ctx context.Context, logger logrus.FieldLogger, commit *domain.SaleCommit) {
	commit.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveCommit(ctx, *commit); err != nil {
		logger.WithError(err).WithField("status", commit.Status).Warn("commit status not persisted")
	}
}
