package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/store"
	"stationpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const articleColumns = `id, name, category, type, price, initial_stock, current_stock`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var a domain.Article
	var articleType string
	err := row.Scan(&a.ID, &a.Name, &a.Category, &articleType, &a.Price, &a.InitialStock, &a.CurrentStock)
	a.Type = domain.ArticleType(articleType)
	return a, err
}

// PutArticle inserts or replaces a catalog article.
func (s *Store) PutArticle(ctx context.Context, a domain.Article) error {
	if a.ID == "" || a.Name == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			type = EXCLUDED.type,
			price = EXCLUDED.price,
			initial_stock = EXCLUDED.initial_stock,
			current_stock = EXCLUDED.current_stock,
			updated_at = now()
	`, a.ID, a.Name, a.Category, string(a.Type), a.Price, a.InitialStock, a.CurrentStock)
	return err
}

func (s *Store) FindArticles(ctx context.Context, filter store.ArticleFilter, limit int) ([]domain.Article, error) {
	term := strings.TrimSpace(filter.NameContains)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+articleColumns+`
		FROM articles
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY name ASC
		LIMIT NULLIF($2::int, 0)
	`, escapeLike(term), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := make([]domain.Article, 0, 64)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return articles, nil
}

func (s *Store) GetArticle(ctx context.Context, id string) (*domain.Article, error) {
	a, err := scanArticle(s.db.QueryRowContext(ctx, `
		SELECT `+articleColumns+`
		FROM articles
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListArticles(ctx context.Context) ([]domain.Article, error) {
	return s.FindArticles(ctx, store.ArticleFilter{}, 0)
}

func (s *Store) AtomicDecrement(ctx context.Context, id string, amount int) error {
	return s.callStockFunction(ctx, "decrement_stock", id, amount)
}

func (s *Store) AtomicIncrement(ctx context.Context, id string, amount int) error {
	return s.callStockFunction(ctx, "increment_stock", id, amount)
}

// callStockFunction runs one of the server-side stock functions. A missing
// function surfaces as ErrAtomicUnsupported.
func (s *Store) callStockFunction(ctx context.Context, fn string, id string, amount int) error {
	var next sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT `+fn+`($1, $2)`, id, amount).Scan(&next)
	if err != nil {
		if isUndefinedFunction(err) {
			return store.ErrAtomicUnsupported
		}
		return err
	}
	if !next.Valid {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateArticleStock(ctx context.Context, id string, qty int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET current_stock = $2, updated_at = now()
		WHERE id = $1
	`, id, qty)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) InsertSales(ctx context.Context, sales []domain.SaleRecord) error {
	if len(sales) == 0 {
		return store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sales (id, commit_id, article_id, quantity, total_price, sale_date, sales_location, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, sale := range sales {
		if sale.ID == "" {
			sale.ID = xid.New("sale")
		}
		if sale.CreatedAt.IsZero() {
			sale.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			sale.ID, nullIfEmpty(sale.CommitID), sale.ArticleID, sale.Quantity, sale.TotalPrice,
			dateUTC(sale.SaleDate), nullLocation(sale.SalesLocation), sale.CreatedAt,
		); err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

const saleColumns = `id, COALESCE(commit_id, ''), article_id, quantity, total_price, sale_date, sales_location, created_at`

func scanSale(row rowScanner) (domain.SaleRecord, error) {
	var sale domain.SaleRecord
	var location sql.NullString
	if err := row.Scan(&sale.ID, &sale.CommitID, &sale.ArticleID, &sale.Quantity, &sale.TotalPrice, &sale.SaleDate, &location, &sale.CreatedAt); err != nil {
		return sale, err
	}
	if location.Valid {
		loc := domain.SalesLocation(location.String)
		sale.SalesLocation = &loc
	}
	sale.SaleDate = sale.SaleDate.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.SaleRecord, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.SaleRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET quantity = $2, total_price = $3, sale_date = $4, sales_location = $5
		WHERE id = $1
	`, sale.ID, sale.Quantity, sale.TotalPrice, dateUTC(sale.SaleDate), nullLocation(sale.SalesLocation))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE sale_date >= $1 AND sale_date < $2
		ORDER BY sale_date ASC, created_at ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 128)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) InsertMovement(ctx context.Context, movement domain.StockMovement) error {
	if movement.Quantity < 1 || (movement.Type != domain.MovementIn && movement.Type != domain.MovementOut) {
		return store.ErrInvalidInput
	}
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_movements (id, article_id, type, quantity, movement_date, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, movement.ID, movement.ArticleID, string(movement.Type), movement.Quantity, movement.MovementDate.UTC(), nullIfEmpty(movement.Notes))
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, article_id, type, quantity, movement_date, COALESCE(notes, '')
		FROM stock_movements
		WHERE ($1 = '' OR article_id = $1)
		  AND ($2::timestamptz IS NULL OR movement_date >= $2)
		  AND ($3::timestamptz IS NULL OR movement_date <= $3)
		ORDER BY movement_date DESC, created_at DESC
	`, filter.ArticleID, nullTime(filter.From), nullTime(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, 128)
	for rows.Next() {
		var m domain.StockMovement
		var movementType string
		if err := rows.Scan(&m.ID, &m.ArticleID, &movementType, &m.Quantity, &m.MovementDate, &m.Notes); err != nil {
			return nil, err
		}
		m.Type = domain.MovementType(movementType)
		m.MovementDate = m.MovementDate.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) MovementTotals(ctx context.Context) (map[string]domain.MovementTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT article_id,
			COALESCE(SUM(quantity) FILTER (WHERE type = 'in'), 0),
			COALESCE(SUM(quantity) FILTER (WHERE type = 'out'), 0)
		FROM stock_movements
		GROUP BY article_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]domain.MovementTotals)
	for rows.Next() {
		var id string
		var t domain.MovementTotals
		if err := rows.Scan(&id, &t.In, &t.Out); err != nil {
			return nil, err
		}
		totals[id] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) InsertFuel(ctx context.Context, entries ...domain.FuelVolumeEntry) error {
	if len(entries) == 0 {
		return store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if e.ID == "" {
			e.ID = xid.New("fuel")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fuel_sales (id, sale_date, fuel_type, quantity_liters, created_at)
			VALUES ($1,$2,$3,$4,now())
		`, e.ID, dateUTC(e.SaleDate), string(e.FuelType), e.QuantityLiters); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListFuel(ctx context.Context, from time.Time, to time.Time) ([]domain.FuelVolumeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_date, fuel_type, quantity_liters
		FROM fuel_sales
		WHERE sale_date >= $1 AND sale_date < $2
		ORDER BY sale_date ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.FuelVolumeEntry, 0, 64)
	for rows.Next() {
		var e domain.FuelVolumeEntry
		var fuelType string
		if err := rows.Scan(&e.ID, &e.SaleDate, &fuelType, &e.QuantityLiters); err != nil {
			return nil, err
		}
		e.FuelType = domain.FuelType(fuelType)
		e.SaleDate = e.SaleDate.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) UpsertHistorical(ctx context.Context, entries []domain.HistoricalSalesEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO historical_sales (year, month, category, amount, updated_at)
			VALUES ($1,$2,$3,$4,now())
			ON CONFLICT (month, year, category)
			DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
		`, e.Year, e.Month, e.Category, e.Amount); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListHistorical(ctx context.Context, year int) ([]domain.HistoricalSalesEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT year, month, category, amount
		FROM historical_sales
		WHERE year = $1
		ORDER BY month ASC, category ASC
	`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.HistoricalSalesEntry, 0, 60)
	for rows.Next() {
		var e domain.HistoricalSalesEntry
		if err := rows.Scan(&e.Year, &e.Month, &e.Category, &e.Amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SaveCommit(ctx context.Context, commit domain.SaleCommit) error {
	if commit.ID == "" {
		return store.ErrInvalidInput
	}
	lines, err := json.Marshal(commit.Lines)
	if err != nil {
		return err
	}
	if commit.Lines == nil {
		lines = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sale_commits (id, status, sale_date, lines, error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			lines = EXCLUDED.lines,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`, commit.ID, string(commit.Status), dateUTC(commit.SaleDate), string(lines), nullIfEmpty(commit.Error), commit.CreatedAt.UTC(), commit.UpdatedAt.UTC())
	return err
}

func (s *Store) GetCommit(ctx context.Context, id string) (*domain.SaleCommit, error) {
	var commit domain.SaleCommit
	var status string
	var lines []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, sale_date, lines, COALESCE(error, ''), created_at, updated_at
		FROM sale_commits
		WHERE id = $1
	`, id).Scan(&commit.ID, &status, &commit.SaleDate, &lines, &commit.Error, &commit.CreatedAt, &commit.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	commit.Status = domain.CommitStatus(status)
	if err := json.Unmarshal(lines, &commit.Lines); err != nil {
		return nil, err
	}
	return &commit, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func isUndefinedFunction(err error) bool {
	return pgCode(err) == "42883"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullLocation(loc *domain.SalesLocation) any {
	if loc == nil {
		return nil
	}
	return string(*loc)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
