package history

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/config"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// Aggregator 历史归档调度器
// 原始 → 小时 → 日 → 月的卷积阶梯，以及各层过期清理。
// 日/月归档由下一层归档汇聚，不回查原始数据。
type Aggregator struct {
	config      *config.Config
	historyRepo *repository.HistoryRepository
	logger      *zap.Logger
	cron        *cron.Cron
}

// NewAggregator 创建归档调度器
func NewAggregator(cfg *config.Config, historyRepo *repository.HistoryRepository, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		config:      cfg,
		historyRepo: historyRepo,
		logger:      logger,
	}
}

// Start 注册并启动定时任务
func (a *Aggregator) Start() error {
	a.cron = cron.New()

	// 每小时第2分钟卷积上一小时
	if _, err := a.cron.AddFunc("2 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := a.RollupLastHour(ctx); err != nil {
			a.logger.Error("hourly rollup failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule hourly rollup: %w", err)
	}

	// 每日 00:10 卷积昨日日归档，并清理原始历史
	if _, err := a.cron.AddFunc("10 0 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := a.RollupYesterday(ctx); err != nil {
			a.logger.Error("daily rollup failed", zap.Error(err))
		}
		if err := a.Prune(ctx); err != nil {
			a.logger.Error("retention prune failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule daily rollup: %w", err)
	}

	// 每月1日 00:30 卷积上月月归档
	if _, err := a.cron.AddFunc("30 0 1 * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := a.RollupLastMonth(ctx); err != nil {
			a.logger.Error("monthly rollup failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule monthly rollup: %w", err)
	}

	a.cron.Start()
	a.logger.Info("history aggregator started")
	return nil
}

// Stop 停止定时任务
func (a *Aggregator) Stop() {
	if a.cron != nil {
		a.cron.Stop()
	}
}

// RollupLastHour 卷积上一个整点小时
func (a *Aggregator) RollupLastHour(ctx context.Context) error {
	hourStart := time.Now().Truncate(time.Hour).Add(-time.Hour)
	n, err := a.historyRepo.RollupHourly(ctx, hourStart)
	if err != nil {
		return err
	}
	a.logger.Info("hourly rollup done",
		zap.Time("hour", hourStart),
		zap.Int64("points", n),
	)
	return nil
}

// RollupYesterday 卷积昨日日归档
func (a *Aggregator) RollupYesterday(ctx context.Context) error {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -1)
	n, err := a.historyRepo.RollupFromHourly(ctx, models.ArchiveDaily, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	a.logger.Info("daily rollup done",
		zap.Time("day", dayStart),
		zap.Int64("points", n),
	)
	return nil
}

// RollupLastMonth 卷积上月月归档
func (a *Aggregator) RollupLastMonth(ctx context.Context) error {
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	n, err := a.historyRepo.RollupFromHourly(ctx, models.ArchiveMonthly, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return err
	}
	a.logger.Info("monthly rollup done",
		zap.Time("month", monthStart),
		zap.Int64("points", n),
	)
	return nil
}

// Prune 按保留期清理原始历史与各层归档（分批、幂等）
func (a *Aggregator) Prune(ctx context.Context) error {
	now := time.Now()
	batch := a.config.History.PruneBatchSize

	rawBefore := now.AddDate(0, 0, -a.config.History.RawRetentionDays)
	for {
		n, err := a.historyRepo.PruneHistory(ctx, rawBefore, batch)
		if err != nil {
			return err
		}
		if n > 0 {
			a.logger.Info("pruned raw history", zap.Int64("rows", n))
		}
		if n < int64(batch) {
			break
		}
	}

	for archiveType, days := range map[string]int{
		models.ArchiveHourly:  a.config.History.HourlyRetentionDays,
		models.ArchiveDaily:   a.config.History.DailyRetentionDays,
		models.ArchiveMonthly: a.config.History.MonthlyRetentionDays,
	} {
		before := now.AddDate(0, 0, -days)
		for {
			n, err := a.historyRepo.PruneArchive(ctx, archiveType, before, batch)
			if err != nil {
				return err
			}
			if n > 0 {
				a.logger.Info("pruned archive",
					zap.String("archive_type", archiveType),
					zap.Int64("rows", n),
				)
			}
			if n < int64(batch) {
				break
			}
		}
	}

	return nil
}
