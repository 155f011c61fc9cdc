package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/store"
	"stationpos/backend/internal/xid"
)

type historicalKey struct {
	month    int
	year     int
	category string
}

type Store struct {
	mu              sync.RWMutex
	articles        map[string]domain.Article
	sales           []domain.SaleRecord
	movements       []domain.StockMovement
	fuel            []domain.FuelVolumeEntry
	historical      map[historicalKey]domain.HistoricalSalesEntry
	commits         map[string]domain.SaleCommit
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		articles:        make(map[string]domain.Article),
		sales:           make([]domain.SaleRecord, 0, 64),
		movements:       make([]domain.StockMovement, 0, 64),
		fuel:            make([]domain.FuelVolumeEntry, 0, 32),
		historical:      make(map[historicalKey]domain.HistoricalSalesEntry),
		commits:         make(map[string]domain.SaleCommit),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with a demo catalog and dev users.
func NewSeeded() *Store {
	s := New()
	for _, a := range DemoArticles() {
		s.articles[a.ID] = a
	}
	for _, u := range DevUsers() {
		s.usersByUsername[u.Username] = u
	}
	return s
}

// DemoArticles is the catalog a fresh development store starts with.
func DemoArticles() []domain.Article {
	return []domain.Article{
		{ID: "art-oil-filter", Name: "Oil Filter", Category: "Filtres", Type: domain.ArticleTypeGoods, Price: decimal.NewFromInt(50), InitialStock: 10, CurrentStock: 10},
		{ID: "art-air-filter", Name: "Filtre à air", Category: "Filtres", Type: domain.ArticleTypeGoods, Price: decimal.NewFromInt(80), InitialStock: 12, CurrentStock: 12},
		{ID: "art-xpro-15w40-5l", Name: "Xpro Super 15W-40 5L", Category: domain.CategoryLubricants, Type: domain.ArticleTypeGoods, Price: decimal.NewFromInt(250), InitialStock: 40, CurrentStock: 40},
		{ID: "art-xpro-15w40-20l", Name: "Xpro Super 15W-40 Tonnelet 20L", Category: domain.CategoryLubricants, Type: domain.ArticleTypeGoods, Price: decimal.NewFromInt(900), InitialStock: 6, CurrentStock: 6},
		{ID: "art-wiper", Name: "Balais essuie-glace", Category: "Accessoires", Type: domain.ArticleTypeGoods, Price: decimal.NewFromInt(45), InitialStock: 20, CurrentStock: 20},
		{ID: "art-car-wash", Name: "Car Wash", Category: "Lavage", Type: domain.ArticleTypeService, Price: decimal.NewFromInt(30)},
		{ID: "art-coffee", Name: "Café noir", Category: domain.CategoryCafe, Type: domain.ArticleTypeGoods, Price: decimal.NewFromInt(10)},
		{ID: "art-shop-misc", Name: "Shop divers", Category: domain.CategoryShop, Type: domain.ArticleTypeService, Price: decimal.Zero},
		{ID: "art-tire-fit", Name: "Montage pneumatique", Category: domain.CategoryTires, Type: domain.ArticleTypeService, Price: decimal.NewFromInt(40)},
		{ID: "art-labor-oil", Name: "Main d'oeuvre vidange", Category: domain.CategoryLabor, Type: domain.ArticleTypeService, Price: decimal.NewFromInt(60)},
	}
}

// DevUsers builds the dev/demo accounts. Passwords come from
// SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD, with dev defaults.
func DevUsers() []domain.UserAccount {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.WithField("module", "memory-store").Warn("using default dev credentials, set SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"manager", managerPwd, domain.RoleManager},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			logrus.WithError(err).WithField("username", u.username).Fatal("failed to hash seed password")
		}
		users = append(users, domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PutArticle inserts or replaces a catalog article.
func (s *Store) PutArticle(_ context.Context, article domain.Article) error {
	if article.ID == "" || article.Name == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[article.ID] = article
	return nil
}

func (s *Store) FindArticles(_ context.Context, filter store.ArticleFilter, limit int) ([]domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(filter.NameContains))
	out := make([]domain.Article, 0, len(s.articles))
	for _, a := range s.articles {
		if needle != "" && !strings.Contains(strings.ToLower(a.Name), needle) {
			continue
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domain.Article) int {
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetArticle(_ context.Context, id string) (*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	article, ok := s.articles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &article, nil
}

func (s *Store) ListArticles(ctx context.Context) ([]domain.Article, error) {
	return s.FindArticles(ctx, store.ArticleFilter{}, 0)
}

func (s *Store) AtomicDecrement(ctx context.Context, id string, amount int) error {
	return s.AtomicIncrement(ctx, id, -amount)
}

func (s *Store) AtomicIncrement(_ context.Context, id string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	article, ok := s.articles[id]
	if !ok {
		return store.ErrNotFound
	}
	article.CurrentStock += amount
	s.articles[id] = article
	return nil
}

func (s *Store) UpdateArticleStock(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	article, ok := s.articles[id]
	if !ok {
		return store.ErrNotFound
	}
	article.CurrentStock = qty
	s.articles[id] = article
	return nil
}

func (s *Store) InsertSales(_ context.Context, sales []domain.SaleRecord) error {
	if len(sales) == 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sale := range sales {
		if _, ok := s.articles[sale.ArticleID]; !ok {
			return store.ErrNotFound
		}
	}
	now := time.Now().UTC()
	for _, sale := range sales {
		if sale.ID == "" {
			sale.ID = xid.New("sale")
		}
		if sale.CreatedAt.IsZero() {
			sale.CreatedAt = now
		}
		s.sales = append(s.sales, cloneSale(sale))
	}
	return nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.sales {
		if sale.ID == id {
			found := cloneSale(sale)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateSale(_ context.Context, sale domain.SaleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sales {
		if s.sales[i].ID == sale.ID {
			s.sales[i] = cloneSale(sale)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SaleRecord, 0, len(s.sales))
	for _, sale := range s.sales {
		if sale.SaleDate.Before(from) || !sale.SaleDate.Before(to) {
			continue
		}
		out = append(out, cloneSale(sale))
	}
	slices.SortFunc(out, func(a, b domain.SaleRecord) int {
		return a.SaleDate.Compare(b.SaleDate)
	})
	return out, nil
}

func (s *Store) InsertMovement(_ context.Context, movement domain.StockMovement) error {
	if movement.Quantity < 1 || (movement.Type != domain.MovementIn && movement.Type != domain.MovementOut) {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articles[movement.ArticleID]; !ok {
		return store.ErrNotFound
	}
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	s.movements = append(s.movements, movement)
	return nil
}

func (s *Store) ListMovements(_ context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockMovement, 0, len(s.movements))
	for _, m := range s.movements {
		if filter.ArticleID != "" && m.ArticleID != filter.ArticleID {
			continue
		}
		if filter.From != nil && m.MovementDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && m.MovementDate.After(*filter.To) {
			continue
		}
		out = append(out, m)
	}
	// newest first, like the stock history screen
	slices.SortStableFunc(out, func(a, b domain.StockMovement) int {
		return b.MovementDate.Compare(a.MovementDate)
	})
	return out, nil
}

func (s *Store) MovementTotals(_ context.Context) (map[string]domain.MovementTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]domain.MovementTotals)
	for _, m := range s.movements {
		t := totals[m.ArticleID]
		if m.Type == domain.MovementIn {
			t.In += m.Quantity
		} else {
			t.Out += m.Quantity
		}
		totals[m.ArticleID] = t
	}
	return totals, nil
}

func (s *Store) InsertFuel(_ context.Context, entries ...domain.FuelVolumeEntry) error {
	if len(entries) == 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.ID == "" {
			e.ID = xid.New("fuel")
		}
		s.fuel = append(s.fuel, e)
	}
	return nil
}

func (s *Store) ListFuel(_ context.Context, from time.Time, to time.Time) ([]domain.FuelVolumeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FuelVolumeEntry, 0, len(s.fuel))
	for _, e := range s.fuel {
		if e.SaleDate.Before(from) || !e.SaleDate.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) UpsertHistorical(_ context.Context, entries []domain.HistoricalSalesEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.historical[historicalKey{month: e.Month, year: e.Year, category: e.Category}] = e
	}
	return nil
}

func (s *Store) ListHistorical(_ context.Context, year int) ([]domain.HistoricalSalesEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.HistoricalSalesEntry, 0, 64)
	for key, e := range s.historical {
		if key.year == year {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b domain.HistoricalSalesEntry) int {
		if a.Month != b.Month {
			return a.Month - b.Month
		}
		return strings.Compare(a.Category, b.Category)
	})
	return out, nil
}

func (s *Store) SaveCommit(_ context.Context, commit domain.SaleCommit) error {
	if commit.ID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	commit.Lines = slices.Clone(commit.Lines)
	s.commits[commit.ID] = commit
	return nil
}

func (s *Store) GetCommit(_ context.Context, id string) (*domain.SaleCommit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commit, ok := s.commits[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	commit.Lines = slices.Clone(commit.Lines)
	return &commit, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(src domain.SaleRecord) domain.SaleRecord {
	dst := src
	if src.SalesLocation != nil {
		loc := *src.SalesLocation
		dst.SalesLocation = &loc
	}
	return dst
}
