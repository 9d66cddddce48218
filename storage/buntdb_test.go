package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/volbreak/volbreak/core"
)

func sampleRecord(id string, status core.OrderStatusType, at time.Time) *core.OrderRecord {
	return &core.OrderRecord{
		ClientID:   id,
		Instrument: "ETH-USD",
		Side:       core.SideTypeBuy,
		Status:     status,
		Price:      101,
		Quantity:   0.99,
		Simulated:  true,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func TestBuntOrderStore_CreateAndQuery(t *testing.T) {
	store, err := NewBuntFromMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateOrder(ctx, sampleRecord("a", core.OrderStatusTypeNew, now)))
	require.NoError(t, store.CreateOrder(ctx, sampleRecord("b", core.OrderStatusTypeFilled, now.Add(time.Second))))

	all, err := store.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].ClientID)

	filled, err := store.Orders(ctx, core.WithStatus(core.OrderStatusTypeFilled))
	require.NoError(t, err)
	require.Len(t, filled, 1)
	require.Equal(t, "b", filled[0].ClientID)
}

func TestBuntOrderStore_Update(t *testing.T) {
	store, err := NewBuntFromMemory()
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
	require.True(t, records[0].IsFilled())
}

func TestBuntOrderStore_UpdateUnknownOrder(t *testing.T) {
	store, err := NewBuntFromMemory()
	require.NoError(t, err)
	defer store.Close()

	record := sampleRecord("missing", core.OrderStatusTypeFilled, time.Now())
	require.Error(t, store.UpdateOrder(context.Background(), record))
}

func TestBuntOrderStore_FilterCombination(t *testing.T) {
	store, err := NewBuntFromMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	older := sampleRecord("a", core.OrderStatusTypeFilled, now)
	newer := sampleRecord("b", core.OrderStatusTypeFilled, now.Add(time.Hour))
	require.NoError(t, store.CreateOrder(ctx, older))
	require.NoError(t, store.CreateOrder(ctx, newer))

	records, err := store.Orders(ctx,
		core.WithInstrument("ETH-USD"),
		core.WithCreatedAfter(now.Add(time.Minute)))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "b", records[0].ClientID)
}
