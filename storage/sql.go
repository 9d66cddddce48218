package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/volbreak/volbreak/core"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLOrderStore implements core.OrderStore on a SQL database via GORM.
type SQLOrderStore struct {
	db *gorm.DB
}

// NewSQLiteOrderStore creates a SQLite-backed order store.
func NewSQLiteOrderStore(dbPath string, opts ...gorm.Option) (*SQLOrderStore, error) {
	return newFromSQL(sqlite.Open(dbPath), opts...)
}

func newFromSQL(dialect gorm.Dialector, opts ...gorm.Option) (*SQLOrderStore, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&core.OrderRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLOrderStore{db: db}, nil
}

// CreateOrder stores a new order record.
func (s *SQLOrderStore) CreateOrder(ctx context.Context, record *core.OrderRecord) error {
	if result := s.db.WithContext(ctx).Create(record); result.Error != nil {
		return fmt.Errorf("failed to create order: %w", result.Error)
	}
	return nil
}

// UpdateOrder updates an existing order record.
func (s *SQLOrderStore) UpdateOrder(ctx context.Context, record *core.OrderRecord) error {
	tx := s.db.WithContext(ctx)

	var existing core.OrderRecord
	if result := tx.First(&existing, "client_id = ?", record.ClientID); result.Error != nil {
		return fmt.Errorf("order not found: %w", result.Error)
	}

	if result := tx.Save(record); result.Error != nil {
		return fmt.Errorf("failed to update order: %w", result.Error)
	}
	return nil
}

// Orders retrieves records matching all filters.
func (s *SQLOrderStore) Orders(ctx context.Context, filters ...core.OrderFilter) ([]*core.OrderRecord, error) {
	var records []*core.OrderRecord
	result := s.db.WithContext(ctx).Order("updated_at asc").Find(&records)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to fetch orders: %w", result.Error)
	}

	if len(filters) > 0 {
		records = lo.Filter(records, func(record *core.OrderRecord, _ int) bool {
			for _, filter := range filters {
				if !filter(*record) {
					return false
				}
			}
			return true
		})
	}

	return records, nil
}

// Close closes the database connection.
func (s *SQLOrderStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
