// Package surrealdb implements bar storage and the parse audit log on SurrealDB.
package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/vire-screener/internal/common"
)

// Table names
const (
	tableBars        = "bars"
	tableParseEvents = "parse_events"
)

// Manager owns the SurrealDB connection and the stores built on it.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	barStore   *BarStore
	auditStore *AuditStore
}

// NewManager connects, signs in, selects the namespace/database and ensures tables exist.
func NewManager(ctx context.Context, logger *common.Logger, config common.StorageConfig) (*Manager, error) {
	db, err := surrealdb.New(config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Username,
		"pass": config.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Namespace, config.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	if err := defineTables(ctx, db); err != nil {
		db.Close(ctx)
		return nil, err
	}

	m := newManager(db, logger)

	logger.Info().
		Str("address", config.Address).
		Str("namespace", config.Namespace).
		Str("database", config.Database).
		Msg("SurrealDB storage initialized")

	return m, nil
}

func newManager(db *surrealdb.DB, logger *common.Logger) *Manager {
	return &Manager{
		db:         db,
		logger:     logger,
		barStore:   NewBarStore(db, logger),
		auditStore: NewAuditStore(db, logger),
	}
}

// defineTables creates the tables up front; SurrealDB v3 errors on querying a missing table.
func defineTables(ctx context.Context, db *surrealdb.DB) error {
	for _, table := range []string{tableBars, tableParseEvents} {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}
	return nil
}

// BarStore returns the OHLCV store
func (m *Manager) BarStore() *BarStore {
	return m.barStore
}

// AuditStore returns the parse event store
func (m *Manager) AuditStore() *AuditStore {
	return m.auditStore
}

// Close closes the connection
func (m *Manager) Close() error {
	return m.db.Close(context.Background())
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}
