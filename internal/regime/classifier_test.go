package regime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irfndi/celebrum-regime/internal/models"
)

func TestBasicClassifier_Classify(t *testing.T) {
	c := NewBasicClassifier(DefaultConfig())

	tests := []struct {
		name string
		in   Composite
		want models.Regime
	}{
		{"volatile with volume", Composite{ATRRatio: 1.5, BBWidthRatio: 2.0, ADX: 30, VolumeConfirmed: true}, models.RegimeVolatile},
		{"volatile without volume", Composite{ATRRatio: 1.5, BBWidthRatio: 2.0, ADX: 30, VolumeConfirmed: false}, models.RegimeTransitional},
		{"stable", Composite{ATRRatio: 1.0, BBWidthRatio: 1.2, ADX: 15, VolumeConfirmed: true}, models.RegimeStable},
		{"mixed", Composite{ATRRatio: 1.3, BBWidthRatio: 1.6, ADX: 22, VolumeConfirmed: true}, models.RegimeTransitional},
		{"atr volatile plus trend", Composite{ATRRatio: 1.45, BBWidthRatio: 1.6, ADX: 30, VolumeConfirmed: true}, models.RegimeTransitional},
		{"stable atr and ranging adx", Composite{ATRRatio: 1.1, BBWidthRatio: 1.7, ADX: 18, VolumeConfirmed: true}, models.RegimeTransitional},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.in))
		})
	}
}

func TestBasicClassifier_Votes(t *testing.T) {
	c := NewBasicClassifier(DefaultConfig())

	volatile, stable := c.Votes(Composite{ATRRatio: 1.5, BBWidthRatio: 2.0, ADX: 30})
	assert.Equal(t, 2.5, volatile)
	assert.Equal(t, 0.0, stable)

	// trending ADX only counts when ATR is above the stable threshold
	volatile, stable = c.Votes(Composite{ATRRatio: 1.1, BBWidthRatio: 1.6, ADX: 30})
	assert.Equal(t, 0.0, volatile)
	assert.Equal(t, 1.0, stable)
}

func TestBasicClassifier_ConfidenceBounds(t *testing.T) {
	c := NewBasicClassifier(DefaultConfig())
	full := map[models.Timeframe]*models.TimeframeIndicators{
		models.TimeframeM5:  {ATRRatio: 3, BBWidthRatio: 4},
		models.TimeframeM15: {ATRRatio: 3, BBWidthRatio: 4},
		models.TimeframeH1:  {ATRRatio: 3, BBWidthRatio: 4},
	}

	high := c.Confidence(Composite{ATRRatio: 3, BBWidthRatio: 4, ADX: 80, VolumeConfirmed: true}, full)
	assert.Equal(t, 100.0, high)

	mid := c.Confidence(Composite{ATRRatio: 1.3, BBWidthRatio: 1.6, ADX: 22, VolumeConfirmed: false}, nil)
	assert.InDelta(t, 45.0, mid, 1e-9)

	for _, in := range []Composite{
		{ATRRatio: 0, BBWidthRatio: 0},
		{ATRRatio: 100, BBWidthRatio: 100, ADX: 100, VolumeConfirmed: true},
		{ATRRatio: 1.2, BBWidthRatio: 1.5, ADX: 25},
	} {
		got := c.Confidence(in, full)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 100.0)
	}
}

func TestBasicClassifier_AgreementBonus(t *testing.T) {
	c := NewBasicClassifier(DefaultConfig())
	in := Composite{ATRRatio: 1.3, BBWidthRatio: 1.6, ADX: 20, VolumeConfirmed: true}

	agree := map[models.Timeframe]*models.TimeframeIndicators{
		models.TimeframeM5:  {ATRRatio: 1.0, BBWidthRatio: 1.0},
		models.TimeframeM15: {ATRRatio: 1.0, BBWidthRatio: 1.0},
		models.TimeframeH1:  {ATRRatio: 1.0, BBWidthRatio: 1.0},
	}
	split := map[models.Timeframe]*models.TimeframeIndicators{
		models.TimeframeM5:  {ATRRatio: 2.0, BBWidthRatio: 1.0},
		models.TimeframeM15: {ATRRatio: 1.0, BBWidthRatio: 1.0},
		models.TimeframeH1:  {ATRRatio: 1.0, BBWidthRatio: 1.0},
	}
	partial := map[models.Timeframe]*models.TimeframeIndicators{
		models.TimeframeH1: {ATRRatio: 1.0, BBWidthRatio: 1.0},
	}

	assert.InDelta(t, 80.0, c.Confidence(in, agree), 1e-9)
	assert.InDelta(t, 70.0, c.Confidence(in, split), 1e-9)
	assert.InDelta(t, 65.0, c.Confidence(in, partial), 1e-9)
}

func TestReasoning_Deterministic(t *testing.T) {
	in := Composite{ATRRatio: 1.5, BBWidthRatio: 2, ADX: 30, VolumeConfirmed: true}
	perTF := map[models.Timeframe]*models.TimeframeIndicators{
		models.TimeframeH1:  {ATRRatio: 1.5, BBWidthRatio: 2, ADX: 30, ATR50Source: models.ProvenanceProvided},
		models.TimeframeM15: {ATRRatio: 1.4, BBWidthRatio: 1.9, ADX: 28, ATR50Source: models.ProvenanceEstimated},
	}

	a := Reasoning(in, perTF, models.RegimeVolatile, models.RegimeStable, []string{"persistence"})
	b := Reasoning(in, perTF, models.RegimeVolatile, models.RegimeStable, []string{"persistence"})
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "regime=STABLE proposed=VOLATILE"))
	assert.Less(t, strings.Index(a, "M15["), strings.Index(a, "H1["))
	assert.Contains(t, a, "persistence")
}
