// Package store provides database access for the pipeline.
//
// # Design
//
// The store uses raw SQL with pgx for maximum performance against a
// TimescaleDB-backed telemetry table, following the teacher's
// control-plane/internal/store package. Tenant-scoped listings take
// tenant_id as the first predicate (index-prefixed). The store does not
// refuse a query without one: only AppendTelemetry rejects a missing
// tenant_id, and lookups keyed by a globally unique id (GetAlertByID,
// ResolvePeer, the escalation-timer queries) run without a tenant
// predicate.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for every tenant-scoped table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromURL creates a new store by connecting to the given database URL.
func NewStoreFromURL(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping tests database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool returns the underlying connection pool for advanced operations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
