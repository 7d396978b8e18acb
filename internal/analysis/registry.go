package analysis

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// PluginConfig 分析器配置
type PluginConfig struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Enabled        bool               `json:"enabled"`
	ExecutionOrder int                `json:"execution_order"` // 升序执行
	MinDataDays    int                `json:"min_data_days"`   // 数据充分性下限
	Thresholds     map[string]float64 `json:"thresholds"`
}

// Threshold 读取阈值，缺省值兜底
func (c *PluginConfig) Threshold(key string, def float64) float64 {
	if v, ok := c.Thresholds[key]; ok {
		return v
	}
	return def
}

// Plugin 分析器插件。Analyze 必须只读上下文，不做外部 I/O。
type Plugin interface {
	Config() *PluginConfig
	Analyze(actx *Context) ([]*models.EnergySuggestion, error)
}

// Registry 分析器注册表：按 execution_order 升序逐个调用，
// 单个失败记录日志后继续，互不影响。
type Registry struct {
	plugins         []Plugin
	suggestionsRepo *repository.SuggestionsRepository
	logger          *zap.Logger
}

// NewRegistry 创建注册表
func NewRegistry(suggestionsRepo *repository.SuggestionsRepository, logger *zap.Logger) *Registry {
	return &Registry{suggestionsRepo: suggestionsRepo, logger: logger}
}

// Register 注册分析器
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	sort.SliceStable(r.plugins, func(i, j int) bool {
		return r.plugins[i].Config().ExecutionOrder < r.plugins[j].Config().ExecutionOrder
	})
}

// Plugins 已注册的分析器（按执行顺序）
func (r *Registry) Plugins() []Plugin {
	return r.plugins
}

// RunAll 运行全部启用的分析器，persist 为真时落库
func (r *Registry) RunAll(ctx context.Context, actx *Context, persist bool) ([]*models.EnergySuggestion, error) {
	var all []*models.EnergySuggestion

	for _, p := range r.plugins {
		cfg := p.Config()
		if !cfg.Enabled {
			continue
		}
		if actx.DataDays() < cfg.MinDataDays {
			r.logger.Info("skipping analyzer, insufficient data",
				zap.String("plugin", cfg.ID),
				zap.Int("data_days", actx.DataDays()),
				zap.Int("min_data_days", cfg.MinDataDays),
			)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		suggestions, err := r.runOne(p, actx)
		if err != nil {
			r.logger.Error("analyzer failed",
				zap.String("plugin", cfg.ID),
				zap.Error(err),
			)
			continue
		}
		for _, s := range suggestions {
			s.SourcePlugin = cfg.ID
			if s.Status == "" {
				s.Status = models.SuggestionPending
			}
		}
		all = append(all, suggestions...)

		r.logger.Info("analyzer done",
			zap.String("plugin", cfg.ID),
			zap.Int("suggestions", len(suggestions)),
		)
	}

	if persist && len(all) > 0 {
		if err := r.suggestionsRepo.BatchInsertSuggestions(ctx, all); err != nil {
			return all, fmt.Errorf("failed to persist suggestions: %w", err)
		}
	}
	return all, nil
}

// runOne 调用单个分析器，panic 不逃逸到其他分析器
func (r *Registry) runOne(p Plugin, actx *Context) (suggestions []*models.EnergySuggestion, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("analyzer panicked: %v", rec)
		}
	}()
	return p.Analyze(actx)
}
