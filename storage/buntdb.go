package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/buntdb"
	"github.com/volbreak/volbreak/core"
)

const updatedIndexName = "updated_index"

// BuntOrderStore implements core.OrderStore on BuntDB, keyed by the
// client order id.
type BuntOrderStore struct {
	db *buntdb.DB
}

// NewBuntFromMemory creates an in-memory order store.
func NewBuntFromMemory() (*BuntOrderStore, error) {
	return NewBuntOrderStore(":memory:")
}

// NewBuntOrderStore creates a file-backed order store.
func NewBuntOrderStore(sourceFile string) (*BuntOrderStore, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{SyncPolicy: buntdb.EverySecond}); err != nil {
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	if err := db.CreateIndex(updatedIndexName, "*", buntdb.IndexJSON("updated_at")); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &BuntOrderStore{db: db}, nil
}

// CreateOrder stores a new order record.
func (b *BuntOrderStore) CreateOrder(_ context.Context, record *core.OrderRecord) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		content, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}

		_, _, err = tx.Set(record.ClientID, string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to store order: %w", err)
		}
		return nil
	})
}

// UpdateOrder replaces an existing order record.
func (b *BuntOrderStore) UpdateOrder(_ context.Context, record *core.OrderRecord) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(record.ClientID); err != nil {
			return fmt.Errorf("order not found: %w", err)
		}

		content, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}

		_, _, err = tx.Set(record.ClientID, string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		return nil
	})
}

// Orders retrieves records matching all filters, oldest update first.
func (b *BuntOrderStore) Orders(_ context.Context, filters ...core.OrderFilter) ([]*core.OrderRecord, error) {
	records := make([]*core.OrderRecord, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(updatedIndexName, func(key, value string) bool {
			var record core.OrderRecord
			if err := json.Unmarshal([]byte(value), &record); err != nil {
				return true // skip unreadable entries
			}

			for _, filter := range filters {
				if !filter(record) {
					return true
				}
			}

			records = append(records, &record)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	return records, nil
}

// Close closes the database.
func (b *BuntOrderStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
