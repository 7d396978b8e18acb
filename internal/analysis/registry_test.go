package analysis_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/analysis"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

type stubPlugin struct {
	cfg     *analysis.PluginConfig
	analyze func(actx *analysis.Context) ([]*models.EnergySuggestion, error)
}

func (p *stubPlugin) Config() *analysis.PluginConfig { return p.cfg }

func (p *stubPlugin) Analyze(actx *analysis.Context) ([]*models.EnergySuggestion, error) {
	return p.analyze(actx)
}

func namedPlugin(id string, order int, titles ...string) *stubPlugin {
	return &stubPlugin{
		cfg: &analysis.PluginConfig{ID: id, Name: id, Enabled: true, ExecutionOrder: order},
		analyze: func(*analysis.Context) ([]*models.EnergySuggestion, error) {
			var out []*models.EnergySuggestion
			for _, title := range titles {
				out = append(out, &models.EnergySuggestion{Title: title})
			}
			return out, nil
		},
	}
}

func TestRegistry_RunsInExecutionOrder(t *testing.T) {
	r := analysis.NewRegistry(nil, zap.NewNop())
	r.Register(namedPlugin("second", 20, "b"))
	r.Register(namedPlugin("first", 10, "a"))

	all, err := r.RunAll(context.Background(), &analysis.Context{}, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Title)
	assert.Equal(t, "b", all[1].Title)

	// 来源插件与初始状态由注册表统一补齐
	assert.Equal(t, "first", all[0].SourcePlugin)
	assert.Equal(t, models.SuggestionPending, all[0].Status)
}

func TestRegistry_SkipsDisabledPlugin(t *testing.T) {
	r := analysis.NewRegistry(nil, zap.NewNop())
	disabled := namedPlugin("off", 10, "never")
	disabled.cfg.Enabled = false
	r.Register(disabled)
	r.Register(namedPlugin("on", 20, "yes"))

	all, err := r.RunAll(context.Background(), &analysis.Context{}, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "yes", all[0].Title)
}

func TestRegistry_SkipsOnInsufficientData(t *testing.T) {
	r := analysis.NewRegistry(nil, zap.NewNop())
	hungry := namedPlugin("needs-data", 10, "never")
	hungry.cfg.MinDataDays = 7
	r.Register(hungry)

	actx := &analysis.Context{
		EnergyDaily: dailyRows(3, 100, 100, 100),
	}
	all, err := r.RunAll(context.Background(), actx, false)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRegistry_FailureDoesNotStopOthers(t *testing.T) {
	r := analysis.NewRegistry(nil, zap.NewNop())
	r.Register(&stubPlugin{
		cfg: &analysis.PluginConfig{ID: "broken", Enabled: true, ExecutionOrder: 10},
		analyze: func(*analysis.Context) ([]*models.EnergySuggestion, error) {
			return nil, errors.New("boom")
		},
	})
	r.Register(&stubPlugin{
		cfg: &analysis.PluginConfig{ID: "panicky", Enabled: true, ExecutionOrder: 20},
		analyze: func(*analysis.Context) ([]*models.EnergySuggestion, error) {
			panic("unexpected nil")
		},
	})
	r.Register(namedPlugin("healthy", 30, "ok"))

	all, err := r.RunAll(context.Background(), &analysis.Context{}, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ok", all[0].Title)
}

func TestRegistry_CancelledContext(t *testing.T) {
	r := analysis.NewRegistry(nil, zap.NewNop())
	r.Register(namedPlugin("any", 10, "x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunAll(ctx, &analysis.Context{}, false)
	require.ErrorIs(t, err, context.Canceled)
}
