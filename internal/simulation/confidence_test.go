package simulation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proecheng/dcim-platform-sub000/internal/simulation"
)

func TestBand(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{0.95, simulation.BandHigh},
		{0.85, simulation.BandHigh},
		{0.84, simulation.BandMedium},
		{0.70, simulation.BandMedium},
		{0.69, simulation.BandLow},
		{0.50, simulation.BandLow},
		{0.49, simulation.BandVeryLow},
		{0, simulation.BandVeryLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, simulation.Band(tt.confidence), "confidence=%v", tt.confidence)
	}
}

func TestCombine(t *testing.T) {
	// 0.3×0.3 + 0.3×0.9 + 0.4×0.5 = 0.56
	got := simulation.Combine(simulation.Factors{
		DataQuality:        0.3,
		AssumptionRisk:     0.9,
		ImplementationRisk: 0.5,
	})
	assert.InDelta(t, 0.56, got, 1e-9)

	// 越界截断
	assert.InDelta(t, 1.0, simulation.Combine(simulation.Factors{
		DataQuality: 2, AssumptionRisk: 2, ImplementationRisk: 2,
	}), 1e-9)
	assert.InDelta(t, 0.0, simulation.Combine(simulation.Factors{}), 1e-9)
}

func TestDataQualityFromSamples(t *testing.T) {
	assert.Zero(t, simulation.DataQualityFromSamples(0))
	assert.InDelta(t, 0.6, simulation.DataQualityFromSamples(10), 1e-9)
	assert.InDelta(t, 1.0, simulation.DataQualityFromSamples(100), 1e-9)
	assert.InDelta(t, 1.0, simulation.DataQualityFromSamples(500), 1e-9)
}
