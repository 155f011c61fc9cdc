package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stationpos/backend/internal/catalog"
	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/logx"
	"stationpos/backend/internal/store"
	"stationpos/backend/internal/xid"
)

type DeliveryItem struct {
	ArticleID string
	Quantity  int
}

type Delivery struct {
	Date      time.Time
	Reference string
	Supplier  string
	Items     []DeliveryItem
}

type SaleEdit struct {
	Quantity      int
	SaleDate      time.Time
	SalesLocation domain.SalesLocation
}

// RecordDelivery books incoming stock against a delivery note.
func (s *Service) RecordDelivery(ctx context.Context, delivery Delivery) (domain.DeliveryReport, error) {
	if _, err := requireManager(ctx); err != nil {
		return domain.DeliveryReport{}, err
	}
	delivery.Reference = strings.TrimSpace(delivery.Reference)
	if delivery.Reference == "" {
		return domain.DeliveryReport{}, invalid("reference", "delivery note number is required")
	}
	items := make([]DeliveryItem, 0, len(delivery.Items))
	for _, item := range delivery.Items {
		if item.ArticleID != "" && item.Quantity > 0 {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return domain.DeliveryReport{}, invalid("items", "no positive quantity entered")
	}
	if delivery.Date.IsZero() {
		delivery.Date = s.today()
	}

	notes := "Livraison BL: " + delivery.Reference
	if supplier := strings.TrimSpace(delivery.Supplier); supplier != "" {
		notes += " (" + supplier + ")"
	}
	logger := s.logger.WithField("reference", delivery.Reference)

	report := domain.DeliveryReport{Reference: delivery.Reference, State: domain.CommitComplete}
	var failures []LineFailure
	for _, item := range items {
		article, err := s.repo.GetArticle(ctx, item.ArticleID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.DeliveryReport{}, invalid("items", fmt.Sprintf("unknown article %q", item.ArticleID))
		}
		if err != nil {
			return domain.DeliveryReport{}, &WriteFailure{Step: "load article", Err: err}
		}

		line, failure := s.applyMovement(ctx, logger.WithField("article_id", item.ArticleID), *article, domain.MovementIn, item.Quantity, delivery.Date, notes)
		report.Lines = append(report.Lines, line)
		if failure != nil {
			failures = append(failures, *failure)
		}
	}

	if len(failures) > 0 {
		report.State = domain.CommitPartiallyAdjusted
		return report, &PartialCommitError{CommitID: delivery.Reference, Lines: failures}
	}
	logger.WithField("items", len(items)).Info("delivery recorded")
	return report, nil
}

// EditSale changes quantity, date or location of a stored sale and corrects
// stock by the quantity difference.
func (s *Service) EditSale(ctx context.Context, saleID string, edit SaleEdit) (domain.SaleRecord, error) {
	if _, err := requireManager(ctx); err != nil {
		return domain.SaleRecord{}, err
	}
	if edit.Quantity <= 0 {
		return domain.SaleRecord{}, invalid("quantity", "must be greater than zero")
	}

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	article, err := s.repo.GetArticle(ctx, sale.ArticleID)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	flags := catalog.Classify(*article)

	updated := *sale
	delta := edit.Quantity - sale.Quantity
	if sale.Quantity > 0 {
		unit := sale.TotalPrice.Div(decimal.NewFromInt(int64(sale.Quantity)))
		updated.TotalPrice = unit.Mul(decimal.NewFromInt(int64(edit.Quantity))).Round(2)
	}
	updated.Quantity = edit.Quantity
	if !edit.SaleDate.IsZero() {
		updated.SaleDate = edit.SaleDate
	}
	if flags.IsLocationTagged && edit.SalesLocation != "" {
		if !edit.SalesLocation.Valid() {
			return domain.SaleRecord{}, invalid("sales_location", "expected piste or bosch")
		}
		loc := edit.SalesLocation
		updated.SalesLocation = &loc
	}

	if err := s.repo.UpdateSale(ctx, updated); err != nil {
		logx.Error(s.logger, "service", "EditSale", "update sale", saleID, err)
		return domain.SaleRecord{}, &WriteFailure{Step: "update sale", Err: err}
	}

	if flags.IsService || delta == 0 {
		return updated, nil
	}

	direction := domain.MovementOut
	qty := delta
	if delta < 0 {
		direction = domain.MovementIn
		qty = -delta
	}
	logger := s.logger.WithFields(logrus.Fields{"sale_id": saleID, "article_id": article.ID})
	_, failure := s.applyMovement(ctx, logger, *article, direction, qty, updated.SaleDate, "Modification vente #"+saleID)
	if failure != nil {
		return updated, &PartialCommitError{CommitID: saleID, Lines: []LineFailure{*failure}}
	}
	return updated, nil
}

// ManualMovement records a stock correction entered by a manager. It sets
// the counter from the observed value, like the stock screen does.
func (s *Service) ManualMovement(ctx context.Context, req domain.ManualMovementRequest) (domain.StockMovement, error) {
	if _, err := requireManager(ctx); err != nil {
		return domain.StockMovement{}, err
	}
	if req.Quantity <= 0 {
		return domain.StockMovement{}, invalid("quantity", "must be greater than zero")
	}
	if req.Type != domain.MovementIn && req.Type != domain.MovementOut {
		return domain.StockMovement{}, invalid("type", "expected in or out")
	}

	article, err := s.repo.GetArticle(ctx, req.ArticleID)
	if err != nil {
		return domain.StockMovement{}, err
	}
	if catalog.Classify(*article).IsService {
		return domain.StockMovement{}, invalid("article_id", "services carry no stock")
	}

	next := article.CurrentStock + req.Quantity
	if req.Type == domain.MovementOut {
		next = article.CurrentStock - req.Quantity
	}
	err = s.repo.UpdateArticleStock(ctx, article.ID, next)
	s.lookup.Invalidate(ctx)
	if err != nil {
		return domain.StockMovement{}, &WriteFailure{Step: "update stock", Err: err}
	}

	movement := domain.StockMovement{
		ID:           xid.New("mv"),
		ArticleID:    article.ID,
		Type:         req.Type,
		Quantity:     req.Quantity,
		MovementDate: s.now().UTC(),
		Notes:        strings.TrimSpace(req.Notes),
	}
	if err := s.repo.InsertMovement(ctx, movement); err != nil {
		s.metrics.MovementFailed()
		return domain.StockMovement{}, &WriteFailure{Step: "append movement", Err: err}
	}
	return movement, nil
}

func (s *Service) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	if _, err := requireManager(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, filter)
}

// ReconcileStock compares every stocked article with what the movement
// ledger implies. It only reports; stock is never rewritten here.
func (s *Service) ReconcileStock(ctx context.Context) (domain.DriftReport, error) {
	articles, err := s.repo.ListArticles(ctx)
	if err != nil {
		return domain.DriftReport{}, err
	}
	totals, err := s.repo.MovementTotals(ctx)
	if err != nil {
		return domain.DriftReport{}, err
	}

	report := domain.DriftReport{GeneratedAt: s.now().UTC(), Drifts: []domain.StockDrift{}}
	for _, article := range articles {
		if catalog.Classify(article).IsService {
			continue
		}
		report.Checked++
		t := totals[article.ID]
		expected := article.InitialStock - t.Out + t.In
		if expected == article.CurrentStock {
			continue
		}
		drift := domain.StockDrift{
			ArticleID:    article.ID,
			Name:         article.Name,
			InitialStock: article.InitialStock,
			MovementsIn:  t.In,
			MovementsOut: t.Out,
			Expected:     expected,
			Current:      article.CurrentStock,
			Drift:        article.CurrentStock - expected,
		}
		report.Drifts = append(report.Drifts, drift)
		s.logger.WithFields(logrus.Fields{
			"article_id": article.ID,
			"expected":   expected,
			"current":    article.CurrentStock,
		}).Warn("stock drift detected")
	}
	s.metrics.DriftObserved(len(report.Drifts))
	return report, nil
}

// applyMovement adjusts stock for one article and appends the matching
// movement, reporting a failure for either step without undoing the other.
func (s *Service) applyMovement(ctx context.Context, logger logrus.FieldLogger, article domain.Article, direction domain.MovementType, qty int, date time.Time, notes string) (domain.CommitLine, *LineFailure) {
	line := domain.CommitLine{
		ArticleID:   article.ID,
		ArticleName: article.Name,
		Quantity:    qty,
		Stocked:     true,
	}
	delta := qty
	if direction == domain.MovementOut {
		delta = -qty
	}

	var reasons []string
	path, err := s.adjustStock(ctx, logger, article.ID, delta)
	line.DecrementPath = path
	if err != nil {
		reasons = append(reasons, err.Error())
	} else {
		line.StockAdjusted = true
	}

	movement := domain.StockMovement{
		ID:           xid.New("mv"),
		ArticleID:    article.ID,
		Type:         direction,
		Quantity:     qty,
		MovementDate: date,
		Notes:        notes,
	}
	if err := s.repo.InsertMovement(ctx, movement); err != nil {
		s.metrics.MovementFailed()
		reasons = append(reasons, fmt.Sprintf("movement: %v", err))
	} else {
		line.MovementRecorded = true
	}

	if !line.Failed() {
		return line, nil
	}
	line.Error = strings.Join(reasons, "; ")
	logger.WithField("reason", line.Error).Warn("stock adjustment incomplete")
	return line, &LineFailure{
		ArticleID:         article.ID,
		ArticleName:       article.Name,
		StockAdjustFailed: !line.StockAdjusted,
		MovementFailed:    !line.MovementRecorded,
		Reason:            line.Error,
	}
}
