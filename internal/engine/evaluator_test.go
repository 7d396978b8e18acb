package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proecheng/dcim-platform-sub000/internal/engine"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

func TestEvaluate_HighWithDeadBand(t *testing.T) {
	rule := &models.AlarmThreshold{
		ThresholdType:  models.ThresholdHigh,
		ThresholdValue: 80,
		DeadBand:       1,
	}

	tests := []struct {
		name      string
		prev      float64
		cur       float64
		prevState engine.RuleState
		wantFires bool
		wantState engine.RuleState
	}{
		{"below threshold stays normal", 70, 70, engine.StateNormal, false, engine.StateNormal},
		{"crossing threshold fires", 70, 85, engine.StateNormal, true, engine.StateFiring},
		{"at threshold does not fire", 70, 80, engine.StateNormal, false, engine.StateNormal},
		{"firing holds inside dead band", 85, 79.5, engine.StateFiring, true, engine.StateFiring},
		{"firing holds at upper band edge", 85, 80, engine.StateFiring, true, engine.StateFiring},
		{"recovers at threshold minus dead band", 85, 79, engine.StateFiring, false, engine.StateNormal},
		{"recovers well below band", 85, 74, engine.StateFiring, false, engine.StateNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Evaluate(rule, tt.prev, tt.cur, tt.prevState)
			assert.Equal(t, tt.wantFires, got.Fires)
			assert.Equal(t, tt.wantState, got.State)
		})
	}
}

func TestEvaluate_LowWithDeadBand(t *testing.T) {
	rule := &models.AlarmThreshold{
		ThresholdType:  models.ThresholdLow,
		ThresholdValue: 10,
		DeadBand:       1,
	}

	got := engine.Evaluate(rule, 12, 9, engine.StateNormal)
	assert.True(t, got.Fires)

	// 回差带内不恢复
	got = engine.Evaluate(rule, 9, 10.5, engine.StateFiring)
	assert.True(t, got.Fires)

	// 升到 threshold+dead_band 才恢复
	got = engine.Evaluate(rule, 10.5, 11, engine.StateFiring)
	assert.False(t, got.Fires)
	assert.Equal(t, engine.StateNormal, got.State)
}

func TestEvaluate_Equal(t *testing.T) {
	rule := &models.AlarmThreshold{ThresholdType: models.ThresholdEqual, ThresholdValue: 1}

	assert.True(t, engine.Evaluate(rule, 0, 1, engine.StateNormal).Fires)
	assert.False(t, engine.Evaluate(rule, 1, 0, engine.StateFiring).Fires)
}

func TestEvaluate_Change(t *testing.T) {
	rule := &models.AlarmThreshold{ThresholdType: models.ThresholdChange}

	assert.True(t, engine.Evaluate(rule, 0, 1, engine.StateNormal).Fires)
	assert.False(t, engine.Evaluate(rule, 1, 1, engine.StateNormal).Fires)
}

func TestEvaluate_UnknownTypeNeverFires(t *testing.T) {
	rule := &models.AlarmThreshold{ThresholdType: "nonsense", ThresholdValue: 1}
	got := engine.Evaluate(rule, 0, 100, engine.StateNormal)
	assert.False(t, got.Fires)
	assert.Equal(t, engine.StateNormal, got.State)
}

// 高限 80 回差 1：序列 70,85,85,78,74 只产生一次开报警，并在回到带外后恢复
func TestEvaluate_SequenceSingleEpisode(t *testing.T) {
	rule := &models.AlarmThreshold{
		ThresholdType:  models.ThresholdHigh,
		ThresholdValue: 80,
		DeadBand:       1,
	}

	samples := []float64{70, 85, 85, 78, 74}
	state := engine.StateNormal
	prev := samples[0]
	transitions := 0

	for _, v := range samples {
		got := engine.Evaluate(rule, prev, v, state)
		if state == engine.StateNormal && got.State == engine.StateFiring {
			transitions++
		}
		state = got.State
		prev = v
	}

	assert.Equal(t, 1, transitions, "exactly one firing episode")
	assert.Equal(t, engine.StateNormal, state, "recovered at end of sequence")
}
