package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	for _, s := range []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"} {
		tf, err := ParseTimeframe(s)
		require.NoError(t, err)
		require.Equal(t, Timeframe(s), tf)
		require.Positive(t, tf.Duration())
	}

	_, err := ParseTimeframe("7m")
	require.ErrorIs(t, err, ErrInvalidTimeframe)
	_, err = ParseTimeframe("")
	require.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestTimeframe_Truncate(t *testing.T) {
	ts := time.Date(2026, 3, 10, 12, 7, 42, 0, time.UTC)

	require.Equal(t, time.Date(2026, 3, 10, 12, 7, 0, 0, time.UTC), Timeframe1m.Truncate(ts))
	require.Equal(t, time.Date(2026, 3, 10, 12, 5, 0, 0, time.UTC), Timeframe5m.Truncate(ts))
	require.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), Timeframe1h.Truncate(ts))
	require.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), Timeframe1d.Truncate(ts))
}

func TestCandle_Contains(t *testing.T) {
	candle := Candle{
		Timeframe: Timeframe5m,
		Time:      time.Date(2026, 3, 10, 12, 5, 0, 0, time.UTC),
	}

	require.True(t, candle.Contains(candle.Time))
	require.True(t, candle.Contains(candle.Time.Add(4*time.Minute+59*time.Second)))
	require.False(t, candle.Contains(candle.End()))
	require.False(t, candle.Contains(candle.Time.Add(-time.Second)))
}

func TestSeries(t *testing.T) {
	s := Series[float64]{1, 2, 3, 4, 5}

	require.Equal(t, 5, s.Length())
	require.Equal(t, 5.0, s.Last(0))
	require.Equal(t, 3.0, s.Last(2))
	require.Equal(t, Series[float64]{4, 5}, s.LastValues(2))
	require.Equal(t, s, s.LastValues(10))
}
