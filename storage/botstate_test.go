package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/volbreak/volbreak/core"
)

func TestBotState_SaveLoadClear(t *testing.T) {
	dir := t.TempDir()

	state, err := LoadBotState(dir)
	require.NoError(t, err)
	require.Nil(t, state.Position)

	pos := core.Position{
		Instrument: "ETH-USD",
		Side:       core.SideTypeBuy,
		EntryPrice: 101,
		SizeBase:   0.99,
		SizeUSD:    100,
		StopLoss:   99,
		TakeProfit: 107,
		OpenedAt:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	saved := BotState{Position: &pos, SavedAt: pos.OpenedAt.Add(time.Hour)}
	require.NoError(t, SaveBotState(dir, saved))

	state, err = LoadBotState(dir)
	require.NoError(t, err)
	require.NotNil(t, state.Position)
	require.Equal(t, pos, *state.Position)
	require.True(t, saved.SavedAt.Equal(state.SavedAt))

	require.NoError(t, ClearBotState(dir))
	state, err = LoadBotState(dir)
	require.NoError(t, err)
	require.Nil(t, state.Position)

	// Clearing twice is harmless.
	require.NoError(t, ClearBotState(dir))
}
