package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rankforge/pbn-detector/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside the Docker runtime image, which does not ship the .sql file.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore holds the optional per-domain context used by the
// adaptive-thresholds pass. The store is advisory end to end: the detector
// produces identical scores for identical input whether or not it exists.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL for domain context")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}

	log.Println("Domain context schema initialized")
	return nil
}

// GetDomainContext looks up the aggregate for a target domain. A domain not
// yet seen returns (nil, nil).
func (s *PostgresStore) GetDomainContext(ctx context.Context, domain string) (*models.DomainContext, error) {
	if s == nil || s.pool == nil {
		return nil, nil
	}

	sql := `
		SELECT domain, domain_authority, total_scored, total_high_risk
		FROM domain_context
		WHERE domain = $1
	`
	var dc models.DomainContext
	err := s.pool.QueryRow(ctx, sql, domain).Scan(
		&dc.Domain, &dc.DomainAuthority, &dc.TotalScored, &dc.TotalHighRisk,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if dc.TotalScored > 0 {
		dc.HistoricalPBNRate = float64(dc.TotalHighRisk) / float64(dc.TotalScored)
	}
	return &dc, nil
}

// RecordBatchSummary folds one batch summary into the domain's rolling
// counters. Only aggregates are written; individual detections are not
// persisted anywhere.
func (s *PostgresStore) RecordBatchSummary(ctx context.Context, domain string, summary models.DetectionSummary) error {
	if s == nil || s.pool == nil {
		return nil
	}

	total := summary.HighRiskCount + summary.MediumRiskCount + summary.LowRiskCount
	sql := `
		INSERT INTO domain_context (domain, total_scored, total_high_risk, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (domain) DO UPDATE SET
			total_scored = domain_context.total_scored + EXCLUDED.total_scored,
			total_high_risk = domain_context.total_high_risk + EXCLUDED.total_high_risk,
			updated_at = NOW();
	`
	_, err := s.pool.Exec(ctx, sql, domain, total, summary.HighRiskCount)
	return err
}

// SetDomainAuthority upserts the externally sourced authority metric for a
// domain. Exposed for operational backfill tooling.
func (s *PostgresStore) SetDomainAuthority(ctx context.Context, domain string, authority float64) error {
	if s == nil || s.pool == nil {
		return nil
	}

	sql := `
		INSERT INTO domain_context (domain, domain_authority, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (domain) DO UPDATE SET
			domain_authority = EXCLUDED.domain_authority,
			updated_at = NOW();
	`
	_, err := s.pool.Exec(ctx, sql, domain, authority)
	return err
}
