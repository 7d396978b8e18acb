package sampler

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/config"
	"github.com/proecheng/dcim-platform-sub000/internal/engine"
	"github.com/proecheng/dcim-platform-sub000/internal/hub"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/realtime"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// Sampler 周期采集器
// 每个周期为每个启用点位产生一个值：AI随机游走、DI小概率动作、AO/DO回读设定值。
// 单点位的实时值更新、历史写入与报警转换在同一事务内提交。
type Sampler struct {
	config       *config.Config
	db           *sql.DB
	pointsRepo   *repository.PointsRepository
	realtimeRepo *repository.RealtimeRepository
	historyRepo  *repository.HistoryRepository
	alarmEngine  *engine.AlarmEngine
	cache        *realtime.Cache
	pushHub      *hub.Hub
	logger       *zap.Logger

	rng *rand.Rand

	// 点位上一周期值（仅采集协程访问，进程重启后由实时表恢复）
	prevValues map[int64]float64
}

// NewSampler 创建采集器
func NewSampler(
	cfg *config.Config,
	db *sql.DB,
	pointsRepo *repository.PointsRepository,
	realtimeRepo *repository.RealtimeRepository,
	historyRepo *repository.HistoryRepository,
	alarmEngine *engine.AlarmEngine,
	cache *realtime.Cache,
	pushHub *hub.Hub,
	logger *zap.Logger,
) *Sampler {
	return &Sampler{
		config:       cfg,
		db:           db,
		pointsRepo:   pointsRepo,
		realtimeRepo: realtimeRepo,
		historyRepo:  historyRepo,
		alarmEngine:  alarmEngine,
		cache:        cache,
		pushHub:      pushHub,
		logger:       logger,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		prevValues:   make(map[int64]float64),
	}
}

// Start 启动采集循环（阻塞直到 ctx 取消）
func (s *Sampler) Start(ctx context.Context) error {
	interval := time.Duration(s.config.Sampler.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("sampler started", zap.Duration("interval", interval))

	// 启动即采一轮
	if err := s.RunCycle(ctx); err != nil {
		s.logger.Error("sample cycle failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sampler stopped")
			return nil
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				// 致命存储错误暂停本轮，下个 tick 重试
				s.logger.Error("sample cycle failed", zap.Error(err))
			}
		}
	}
}

// RunCycle 执行一个采集周期
func (s *Sampler) RunCycle(ctx context.Context) error {
	points, err := s.pointsRepo.ListEnabledPoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot enabled points: %w", err)
	}

	now := time.Now()
	for _, point := range points {
		if err := s.samplePoint(ctx, point, now); err != nil {
			// 单点失败不中断本周期，该点实时值保持不变
			s.logger.Error("failed to sample point",
				zap.String("point_code", point.PointCode),
				zap.Error(err),
			)
		}
	}
	return nil
}

// samplePoint 采集单个点位：产值 → 评估阈值 → 同事务落库 → 提交后推送
func (s *Sampler) samplePoint(ctx context.Context, point *models.Point, now time.Time) error {
	prev, hasPrev := s.prevValues[point.ID]
	if !hasPrev {
		// 重启恢复：用实时表的值续接曲线
		if rt, err := s.realtimeRepo.GetRealtime(ctx, point.ID); err == nil && rt.Quality == models.QualityGood {
			prev = rt.Value
			hasPrev = true
		}
	}

	value, err := s.nextValue(ctx, point, prev, hasPrev)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	outcome, err := s.alarmEngine.EvaluatePointTx(ctx, tx, point, prev, value, now)
	if err != nil {
		return fmt.Errorf("failed to evaluate thresholds: %w", err)
	}

	rt := &models.PointRealtime{
		PointID:    point.ID,
		RawValue:   value,
		Value:      value,
		Quality:    models.QualityGood,
		Status:     outcome.Status,
		AlarmLevel: outcome.AlarmLevel,
		UpdatedAt:  now,
	}
	if point.PointType == models.PointTypeDI || point.PointType == models.PointTypeDO {
		rt.ValueText = diText(point, value)
	}
	if hasPrev && prev != value {
		rt.LastChangeAt = &now
	}
	if err := s.realtimeRepo.UpsertRealtimeTx(ctx, tx, rt); err != nil {
		return err
	}

	switch point.PointType {
	case models.PointTypeAI:
		// AI每周期入历史
		if err := s.historyRepo.InsertHistoryTx(ctx, tx, &models.PointHistory{
			PointID:    point.ID,
			Value:      value,
			Quality:    models.QualityGood,
			RecordedAt: now,
		}); err != nil {
			return err
		}
	case models.PointTypeDI, models.PointTypeDO:
		// 开关量仅在变位时记录
		if hasPrev && prev != value {
			changeType := models.ChangeTypeNormal
			if value == 1 {
				changeType = models.ChangeTypeAlarm
			} else {
				changeType = models.ChangeTypeRecover
			}
			if err := s.historyRepo.InsertChangeLogTx(ctx, tx, &models.PointChangeLog{
				PointID:    point.ID,
				OldValue:   prev,
				NewValue:   value,
				ChangeType: changeType,
				ChangedAt:  now,
			}); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sample: %w", err)
	}

	s.prevValues[point.ID] = value

	// 提交后：热缓存与推送均为尽力而为
	if s.cache != nil {
		if err := s.cache.Set(ctx, rt); err != nil {
			s.logger.Warn("failed to cache realtime", zap.Int64("point_id", point.ID), zap.Error(err))
		}
	}
	s.pushHub.Publish(hub.ChannelRealtime, hub.Message{
		Type: "point_update",
		Data: map[string]interface{}{
			"point_id":   point.ID,
			"point_code": point.PointCode,
			"value":      value,
			"unit":       point.Unit,
			"status":     outcome.Status,
			"timestamp":  now.Format(time.RFC3339),
		},
	})
	s.alarmEngine.PublishEvents(ctx, outcome.PendingEvents)

	return nil
}

// nextValue 按点位类型产生新值
func (s *Sampler) nextValue(ctx context.Context, point *models.Point, prev float64, hasPrev bool) (float64, error) {
	switch point.PointType {
	case models.PointTypeAI:
		if !hasPrev {
			prev = seedValue(point)
		}
		// 随机游走：±量程的 AIStepPct，夹在量程内
		span := point.MaxRange - point.MinRange
		step := span * s.config.Sampler.AIStepPct
		value := prev + (s.rng.Float64()*2-1)*step
		value = math.Max(point.MinRange, math.Min(point.MaxRange, value))
		return round(value, point.Precision), nil

	case models.PointTypeDI:
		prob := s.config.Sampler.DIFireProb
		if strings.Contains(point.PointName, "门") || strings.Contains(strings.ToLower(point.PointCode), "door") {
			prob *= 4
		}
		if s.rng.Float64() < prob {
			return 1, nil
		}
		return 0, nil

	case models.PointTypeAO, models.PointTypeDO:
		// 输出点回读当前设定值
		rt, err := s.realtimeRepo.GetRealtime(ctx, point.ID)
		if err != nil {
			if hasPrev {
				return prev, nil
			}
			return 0, nil
		}
		return rt.Value, nil
	}

	return 0, fmt.Errorf("unknown point type %s", point.PointType)
}

// seedValue 按点位名称启发式给出首个采样的语义合理初值
func seedValue(point *models.Point) float64 {
	name := point.PointName
	switch {
	case strings.Contains(name, "温度"):
		return 24
	case strings.Contains(name, "湿度"):
		return 50
	case strings.Contains(name, "负载率"):
		return 45
	case strings.Contains(name, "电池电量"):
		return 85
	case strings.Contains(name, "功率"):
		return point.MaxRange * 0.4
	}
	return (point.MinRange + point.MaxRange) / 2
}

func diText(point *models.Point, value float64) string {
	if value == 1 {
		return "动作"
	}
	return "正常"
}

func round(v float64, digits int) float64 {
	if digits <= 0 {
		return math.Round(v)
	}
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}
