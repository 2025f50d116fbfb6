// Package storage provides the top-level Manager that selects the bar store
// and parse audit sink for the configured backend.
package storage

import (
	"context"
	"fmt"

	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
	"github.com/bobmcallan/vire-screener/internal/storage/marketfs"
	"github.com/bobmcallan/vire-screener/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendFile      = "file"
	BackendSurrealDB = "surrealdb"
)

// Manager holds the bar store and audit sink for one backend.
type Manager struct {
	bars    interfaces.BarStore
	audit   interfaces.AuditSink
	closer  func() error
	backend string
	logger  *common.Logger
}

// NewManager opens storage for config.Backend. "file" keeps bars as JSON files
// and the audit log in memory; "surrealdb" keeps both in the database.
func NewManager(ctx context.Context, logger *common.Logger, config common.StorageConfig) (*Manager, error) {
	backend := config.Backend
	if backend == "" {
		backend = BackendFile
	}

	switch backend {
	case BackendFile:
		store, err := marketfs.NewBarStore(logger, config.DataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create file bar store: %w", err)
		}
		return &Manager{
			bars:    store,
			audit:   NewMemoryAuditSink(DefaultAuditCapacity),
			closer:  store.Close,
			backend: backend,
			logger:  logger,
		}, nil

	case BackendSurrealDB:
		mgr, err := surrealdb.NewManager(ctx, logger, config)
		if err != nil {
			return nil, err
		}
		return &Manager{
			bars:    mgr.BarStore(),
			audit:   mgr.AuditStore(),
			closer:  mgr.Close,
			backend: backend,
			logger:  logger,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: file, surrealdb)", backend)
	}
}

// BarStore returns the bar store
func (m *Manager) BarStore() interfaces.BarStore {
	return m.bars
}

// AuditSink returns the parse audit sink
func (m *Manager) AuditSink() interfaces.AuditSink {
	return m.audit
}

// Backend returns the active backend name
func (m *Manager) Backend() string {
	return m.backend
}

// Close releases the backend
func (m *Manager) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}
