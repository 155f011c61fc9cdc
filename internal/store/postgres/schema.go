package postgres

import (
	"context"
	"fmt"
)

// migrations are applied in order and must stay idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT 'goods' CHECK (type IN ('goods', 'service')),
		price NUMERIC(12,2) NOT NULL DEFAULT 0,
		initial_stock INTEGER NOT NULL DEFAULT 0,
		current_stock INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS articles_name_idx ON articles (lower(name))`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		commit_id TEXT,
		article_id TEXT NOT NULL REFERENCES articles(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		total_price NUMERIC(12,2) NOT NULL,
		sale_date DATE NOT NULL,
		sales_location TEXT CHECK (sales_location IN ('piste', 'bosch')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS sales_sale_date_idx ON sales (sale_date)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL REFERENCES articles(id),
		type TEXT NOT NULL CHECK (type IN ('in', 'out')),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		movement_date TIMESTAMPTZ NOT NULL,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS stock_movements_article_idx ON stock_movements (article_id, movement_date DESC)`,
	`CREATE TABLE IF NOT EXISTS fuel_sales (
		id TEXT PRIMARY KEY,
		sale_date DATE NOT NULL,
		fuel_type TEXT NOT NULL CHECK (fuel_type IN ('Gasoil', 'SSP')),
		quantity_liters NUMERIC(14,3) NOT NULL CHECK (quantity_liters > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS historical_sales (
		year INTEGER NOT NULL,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		category TEXT NOT NULL,
		amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (month, year, category)
	)`,
	`CREATE TABLE IF NOT EXISTS sale_commits (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		sale_date DATE NOT NULL,
		lines JSONB NOT NULL DEFAULT '[]'::jsonb,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE OR REPLACE FUNCTION decrement_stock(p_article_id TEXT, p_qty INTEGER)
	RETURNS INTEGER AS $$
		UPDATE articles
		SET current_stock = current_stock - p_qty, updated_at = now()
		WHERE id = p_article_id
		RETURNING current_stock
	$$ LANGUAGE sql`,
	`CREATE OR REPLACE FUNCTION increment_stock(p_article_id TEXT, p_qty INTEGER)
	RETURNS INTEGER AS $$
		UPDATE articles
		SET current_stock = current_stock + p_qty, updated_at = now()
		WHERE id = p_article_id
		RETURNING current_stock
	$$ LANGUAGE sql`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
