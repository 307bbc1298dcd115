package regime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-regime/internal/models"
)

func TestTrackingStore_ATRWindow(t *testing.T) {
	s := NewTrackingStore(3)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.AppendATR("BTCUSD", models.TimeframeM15, ATRSample{Timestamp: base.Add(time.Duration(i) * time.Minute), ATR14: float64(i)})
	}
	before, after := s.AppendATR("BTCUSD", models.TimeframeM15, ATRSample{ATR14: 5})

	assert.Equal(t, []float64{2, 3, 4}, atrValues(before))
	assert.Equal(t, []float64{3, 4, 5}, atrValues(after))
	assert.Equal(t, after, s.ATRHistory("BTCUSD", models.TimeframeM15))
	assert.Empty(t, s.ATRHistory("BTCUSD", models.TimeframeH1))
}

func atrValues(samples []ATRSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.ATR14
	}
	return out
}

func TestTrackingStore_EnsureTracked(t *testing.T) {
	s := NewTrackingStore(0)
	assert.False(t, s.Tracked("BTCUSD"))
	s.EnsureTracked("BTCUSD")
	assert.True(t, s.Tracked("BTCUSD"))
	assert.Equal(t, "BTCUSD", NormalizeSymbol("  btcusd "))
}

func TestTrackingStore_WickBuffer(t *testing.T) {
	s := NewTrackingStore(20)
	var got []WickSample
	for i := 0; i < 30; i++ {
		got = s.AppendWick("ETHUSD", models.TimeframeM5, WickSample{Ratio: float64(i)})
	}
	require.Len(t, got, 20)
	assert.Equal(t, 10.0, got[0].Ratio)
	assert.Equal(t, 29.0, got[19].Ratio)
}

func TestTrackingStore_ClaimBreakout(t *testing.T) {
	s := NewTrackingStore(20)
	ev := models.BreakoutEvent{Symbol: "BTCUSD", Timeframe: models.TimeframeM15, Type: models.BreakoutBullish, Price: 100}

	assert.True(t, s.ClaimBreakout("BTCUSD", models.TimeframeM15, ev, 0.01))
	ev.Price = 100.9
	assert.False(t, s.ClaimBreakout("BTCUSD", models.TimeframeM15, ev, 0.01))
	ev.Price = 98.5
	assert.True(t, s.ClaimBreakout("BTCUSD", models.TimeframeM15, ev, 0.01))

	cached, loaded := s.LastBreakout("BTCUSD", models.TimeframeM15)
	require.NotNil(t, cached)
	assert.True(t, loaded)
	assert.Equal(t, 98.5, cached.Price)

	// hydration never overwrites a claimed breakout
	s.HydrateBreakout("BTCUSD", models.TimeframeM15, &models.BreakoutEvent{Price: 50})
	cached, _ = s.LastBreakout("BTCUSD", models.TimeframeM15)
	assert.Equal(t, 98.5, cached.Price)
}

func TestTrackingStore_ConcurrentClaims(t *testing.T) {
	s := NewTrackingStore(20)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := models.BreakoutEvent{Price: 100}
			if s.ClaimBreakout("BTCUSD", models.TimeframeM15, ev, 0.01) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestTrackingStore_Spike(t *testing.T) {
	s := NewTrackingStore(20)
	first := SpikeRecord{Timestamp: time.Unix(100, 0), ATR: 2}

	got := s.RecordSpike("BTCUSD", models.TimeframeM15, first)
	assert.Equal(t, first, got)
	got = s.RecordSpike("BTCUSD", models.TimeframeM15, SpikeRecord{Timestamp: time.Unix(200, 0), ATR: 3})
	assert.Equal(t, first, got, "first observation wins")

	s.ClearSpike("BTCUSD", models.TimeframeM15)
	assert.Nil(t, s.Spike("BTCUSD", models.TimeframeM15))
}
