package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maltedev/sku-scraper/internal/models"
)

type PostgresConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}

const createRecordsTable = `
	CREATE TABLE IF NOT EXISTS product_records (
		id           BIGSERIAL PRIMARY KEY,
		run_id       TEXT        NOT NULL,
		sku          TEXT        NOT NULL,
		retailer     TEXT        NOT NULL,
		title        TEXT,
		description  TEXT,
		price        TEXT,
		review_count TEXT,
		rating       TEXT,
		scraped_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

const insertRecord = `
	INSERT INTO product_records (
		run_id, sku, retailer, title, description, price, review_count, rating
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Postgres stores records in the product_records table, one transaction per batch.
type Postgres struct {
	pool  *pgxpool.Pool
	runID string
}

func NewPostgres(ctx context.Context, cfg PostgresConfig, runID string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLife > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLife
	}
	if cfg.MaxConnIdle > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdle
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createRecordsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create product_records table: %w", err)
	}

	return &Postgres{pool: pool, runID: runID}, nil
}

func (p *Postgres) Append(ctx context.Context, records []*models.ExtractedRecord) error {
	if len(records) == 0 {
		return nil
	}

	return p.withTx(ctx, func(tx pgx.Tx) error {
		for _, r := range records {
			if _, err := tx.Exec(ctx, insertRecord,
				p.runID, r.SKU, string(r.Retailer),
				r.Title, r.Description, r.Price, r.ReviewCount, r.Rating,
			); err != nil {
				return fmt.Errorf("failed to insert record %s: %w", r.SKU, err)
			}
		}
		return nil
	})
}

func (p *Postgres) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
