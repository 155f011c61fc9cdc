// Package sqlstore keeps the repository in an embedded SQLite file through
// gorm. It is meant for single-till stations without a database server.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/store"
	"stationpos/backend/internal/xid"
)

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at dsn and migrates it.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one writer at a time keeps SQLite from returning SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&articleRow{},
		&saleRow{},
		&movementRow{},
		&fuelRow{},
		&historicalRow{},
		&commitRow{},
		&userRow{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	st := &Store{db: db}
	if err := st.backfillNameLower(); err != nil {
		return nil, fmt.Errorf("backfill article names: %w", err)
	}
	return st, nil
}

// backfillNameLower fills name_lower on rows written before the column
// existed.
func (s *Store) backfillNameLower() error {
	var rows []articleRow
	if err := s.db.Where("name_lower = '' AND name <> ''").Find(&rows).Error; err != nil {
		return err
	}
	for _, r := range rows {
		err := s.db.Model(&articleRow{}).Where("id = ?", r.ID).
			UpdateColumn("name_lower", strings.ToLower(r.Name)).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) PutArticle(ctx context.Context, a domain.Article) error {
	if a.ID == "" || a.Name == "" {
		return store.ErrInvalidInput
	}
	row := toArticleRow(a)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "name_lower", "category", "type", "price", "initial_stock", "current_stock", "updated_at"}),
	}).Create(&row).Error
}

func (s *Store) FindArticles(ctx context.Context, filter store.ArticleFilter, limit int) ([]domain.Article, error) {
	q := s.db.WithContext(ctx).Model(&articleRow{}).Order("name ASC")
	if term := strings.ToLower(strings.TrimSpace(filter.NameContains)); term != "" {
		q = q.Where("name_lower LIKE ? ESCAPE '\\'", "%"+escapeLike(term)+"%")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []articleRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Article, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetArticle(ctx context.Context, id string) (*domain.Article, error) {
	var row articleRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	a := row.toDomain()
	return &a, nil
}

func (s *Store) ListArticles(ctx context.Context) ([]domain.Article, error) {
	return s.FindArticles(ctx, store.ArticleFilter{}, 0)
}

func (s *Store) AtomicDecrement(ctx context.Context, id string, amount int) error {
	return s.shiftStock(ctx, id, -amount)
}

func (s *Store) AtomicIncrement(ctx context.Context, id string, amount int) error {
	return s.shiftStock(ctx, id, amount)
}

// shiftStock applies the delta inside a single UPDATE statement.
func (s *Store) shiftStock(ctx context.Context, id string, delta int) error {
	res := s.db.WithContext(ctx).Model(&articleRow{}).Where("id = ?", id).Updates(map[string]any{
		"current_stock": gorm.Expr("current_stock + ?", delta),
		"updated_at":    time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateArticleStock(ctx context.Context, id string, qty int) error {
	res := s.db.WithContext(ctx).Model(&articleRow{}).Where("id = ?", id).Update("current_stock", qty)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// InsertSales writes every row or none.
func (s *Store) InsertSales(ctx context.Context, sales []domain.SaleRecord) error {
	if len(sales) == 0 {
		return store.ErrInvalidInput
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]string, 0, len(sales))
		for _, sale := range sales {
			ids = append(ids, sale.ArticleID)
		}
		var known int64
		if err := tx.Model(&articleRow{}).Where("id IN ?", uniq(ids)).Count(&known).Error; err != nil {
			return err
		}
		if int(known) != len(uniq(ids)) {
			return store.ErrNotFound
		}

		now := time.Now().UTC()
		rows := make([]saleRow, 0, len(sales))
		for _, sale := range sales {
			if sale.ID == "" {
				sale.ID = xid.New("sale")
			}
			if sale.CreatedAt.IsZero() {
				sale.CreatedAt = now
			}
			rows = append(rows, toSaleRow(sale))
		}
		return tx.Create(&rows).Error
	})
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.SaleRecord, error) {
	var row saleRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	sale := row.toDomain()
	return &sale, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.SaleRecord) error {
	row := toSaleRow(sale)
	res := s.db.WithContext(ctx).Model(&saleRow{}).Where("id = ?", sale.ID).Updates(map[string]any{
		"quantity":       row.Quantity,
		"total_price":    row.TotalPrice,
		"sale_date":      row.SaleDate,
		"sales_location": row.SalesLocation,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleRecord, error) {
	var rows []saleRow
	err := s.db.WithContext(ctx).
		Where("sale_date >= ? AND sale_date < ?", from.UTC(), to.UTC()).
		Order("sale_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.SaleRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) InsertMovement(ctx context.Context, movement domain.StockMovement) error {
	if movement.Quantity < 1 || (movement.Type != domain.MovementIn && movement.Type != domain.MovementOut) {
		return store.ErrInvalidInput
	}
	if _, err := s.GetArticle(ctx, movement.ArticleID); err != nil {
		return err
	}
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	row := movementRow{
		ID:           movement.ID,
		ArticleID:    movement.ArticleID,
		Type:         string(movement.Type),
		Quantity:     movement.Quantity,
		MovementDate: movement.MovementDate.UTC(),
		Notes:        movement.Notes,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	q := s.db.WithContext(ctx).Model(&movementRow{}).Order("movement_date DESC")
	if filter.ArticleID != "" {
		q = q.Where("article_id = ?", filter.ArticleID)
	}
	if filter.From != nil {
		q = q.Where("movement_date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("movement_date <= ?", filter.To.UTC())
	}

	var rows []movementRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.StockMovement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) MovementTotals(ctx context.Context) (map[string]domain.MovementTotals, error) {
	var rows []struct {
		ArticleID string
		TotalIn   int
		TotalOut  int
	}
	err := s.db.WithContext(ctx).Model(&movementRow{}).
		Select("article_id, " +
			"COALESCE(SUM(CASE WHEN type = 'in' THEN quantity END), 0) AS total_in, " +
			"COALESCE(SUM(CASE WHEN type = 'out' THEN quantity END), 0) AS total_out").
		Group("article_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[string]domain.MovementTotals, len(rows))
	for _, r := range rows {
		totals[r.ArticleID] = domain.MovementTotals{In: r.TotalIn, Out: r.TotalOut}
	}
	return totals, nil
}

func (s *Store) InsertFuel(ctx context.Context, entries ...domain.FuelVolumeEntry) error {
	if len(entries) == 0 {
		return store.ErrInvalidInput
	}
	rows := make([]fuelRow, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = xid.New("fuel")
		}
		rows = append(rows, fuelRow{
			ID:             e.ID,
			SaleDate:       e.SaleDate.UTC(),
			FuelType:       string(e.FuelType),
			QuantityLiters: e.QuantityLiters,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

func (s *Store) ListFuel(ctx context.Context, from time.Time, to time.Time) ([]domain.FuelVolumeEntry, error) {
	var rows []fuelRow
	err := s.db.WithContext(ctx).
		Where("sale_date >= ? AND sale_date < ?", from.UTC(), to.UTC()).
		Order("sale_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.FuelVolumeEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpsertHistorical(ctx context.Context, entries []domain.HistoricalSalesEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]historicalRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, historicalRow{
			Month:     e.Month,
			Year:      e.Year,
			Category:  e.Category,
			Amount:    e.Amount,
			UpdatedAt: now,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "month"}, {Name: "year"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(&rows).Error
}

func (s *Store) ListHistorical(ctx context.Context, year int) ([]domain.HistoricalSalesEntry, error) {
	var rows []historicalRow
	err := s.db.WithContext(ctx).
		Where("year = ?", year).
		Order("month ASC, category ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.HistoricalSalesEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.HistoricalSalesEntry{
			Year:     r.Year,
			Month:    r.Month,
			Category: r.Category,
			Amount:   r.Amount,
		})
	}
	return out, nil
}

func (s *Store) SaveCommit(ctx context.Context, commit domain.SaleCommit) error {
	if commit.ID == "" {
		return store.ErrInvalidInput
	}
	row := commitRow{
		ID:        commit.ID,
		Status:    string(commit.Status),
		SaleDate:  commit.SaleDate.UTC(),
		Lines:     commit.Lines,
		Error:     commit.Error,
		CreatedAt: commit.CreatedAt.UTC(),
		UpdatedAt: commit.UpdatedAt.UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "lines", "error", "updated_at"}),
	}).Create(&row).Error
}

func (s *Store) GetCommit(ctx context.Context, id string) (*domain.SaleCommit, error) {
	var row commitRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	commit := row.toDomain()
	return &commit, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}
	var existing int64
	if err := s.db.WithContext(ctx).Model(&userRow{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return store.ErrInvalidInput
	}
	row := userRow{
		Username:  username,
		Password:  user.Password,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt.UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, r := range rows {
		users = append(users, domain.UserAccount{
			Username:  r.Username,
			Password:  r.Password,
			Role:      r.Role,
			Active:    r.Active,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("username = ?", username).Update("password", password)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
