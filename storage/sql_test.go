package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/volbreak/volbreak/core"
)

func TestSQLOrderStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteOrderStore(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	record := sampleRecord("a", core.OrderStatusTypeNew, now)
	require.NoError(t, store.CreateOrder(ctx, record))

	record.Status = core.OrderStatusTypeFilled
	record.UpdatedAt = now.Add(time.Second)
	require.NoError(t, store.UpdateOrder(ctx, record))

	records, err := store.Orders(ctx, core.WithStatus(core.OrderStatusTypeFilled))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "a", records[0].ClientID)

	missing := sampleRecord("missing", core.OrderStatusTypeFilled, now)
	require.Error(t, store.UpdateOrder(ctx, missing))
}
