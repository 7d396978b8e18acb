package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/config"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

// Context 分析上下文。构建后不可变，分析器只读，分析过程不做任何外部 I/O。
type Context struct {
	Now time.Time

	EnergyDaily    []*models.EnergyDaily              // 最近 N 天日能耗
	Bills          []*models.EnergyMonthly            // 最近 N 月能耗账单
	PowerSnapshots []*models.PowerSnapshot            // 功率快照
	PUESamples     []*models.PUESample                // PUE 序列
	Devices        []*models.PowerDevice              // 启用设备
	ShiftConfigs   map[int64]*models.DeviceShiftConfig // 设备移峰配置
	MeterPoints    []*models.MeterPoint               // 计量点
	DemandHistory  map[int64][]*models.DemandHistory  // 各计量点需量历史
	Tariff         *tariff.Snapshot                   // 电价快照
}

// DataDays 上下文覆盖的能耗天数（数据充分性校验依据）
func (c *Context) DataDays() int {
	return len(c.EnergyDaily)
}

// ShiftableDevices 可移峰且非关键负载的设备
func (c *Context) ShiftableDevices() []*models.PowerDevice {
	var result []*models.PowerDevice
	for _, d := range c.Devices {
		cfg := c.ShiftConfigs[d.ID]
		if cfg != nil && cfg.IsShiftable && !cfg.IsCritical && !d.IsCritical {
			result = append(result, d)
		}
	}
	return result
}

// PeriodShares 上下文内各时段电量占比与日均总量
func (c *Context) PeriodShares() (shares map[string]float64, dailyAvgTotal float64) {
	var total, sharp, peak, flat, valley, deep float64
	for _, e := range c.EnergyDaily {
		total += e.TotalEnergy
		sharp += e.SharpEnergy
		peak += e.PeakEnergy
		flat += e.NormalEnergy
		valley += e.ValleyEnergy
		deep += e.DeepEnergy
	}
	shares = map[string]float64{}
	if total > 0 {
		shares[models.PeriodSharp] = sharp / total
		shares[models.PeriodPeak] = peak / total
		shares[models.PeriodFlat] = flat / total
		shares[models.PeriodValley] = valley / total
		shares[models.PeriodDeepValley] = deep / total
	}
	if n := len(c.EnergyDaily); n > 0 {
		dailyAvgTotal = total / float64(n)
	}
	return shares, dailyAvgTotal
}

// ContextBuilder 上下文构建器：一次性拉取分析所需的全部数据
type ContextBuilder struct {
	config      *config.Config
	energyRepo  *repository.EnergyRepository
	devicesRepo *repository.DevicesRepository
	metersRepo  *repository.MetersRepository
	tariffSvc   *tariff.Service
	logger      *zap.Logger
}

// NewContextBuilder 创建上下文构建器
func NewContextBuilder(
	cfg *config.Config,
	energyRepo *repository.EnergyRepository,
	devicesRepo *repository.DevicesRepository,
	metersRepo *repository.MetersRepository,
	tariffSvc *tariff.Service,
	logger *zap.Logger,
) *ContextBuilder {
	return &ContextBuilder{
		config:      cfg,
		energyRepo:  energyRepo,
		devicesRepo: devicesRepo,
		metersRepo:  metersRepo,
		tariffSvc:   tariffSvc,
		logger:      logger,
	}
}

// Build 构建分析上下文
func (b *ContextBuilder) Build(ctx context.Context) (*Context, error) {
	now := time.Now()

	energyDaily, err := b.energyRepo.ListEnergyDaily(ctx, b.config.Analysis.EnergyDays)
	if err != nil {
		return nil, err
	}
	bills, err := b.energyRepo.ListEnergyMonthly(ctx, b.config.Analysis.BillMonths)
	if err != nil {
		return nil, err
	}
	snapshots, err := b.energyRepo.ListPowerSnapshots(ctx, now.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	pueSamples, err := b.energyRepo.ListPUESamples(ctx, b.config.Analysis.EnvironmentDays)
	if err != nil {
		return nil, err
	}
	devices, err := b.devicesRepo.ListEnabledDevices(ctx)
	if err != nil {
		return nil, err
	}
	shiftConfigs, err := b.devicesRepo.GetShiftConfigs(ctx)
	if err != nil {
		return nil, err
	}
	meters, err := b.metersRepo.ListMeterPoints(ctx)
	if err != nil {
		return nil, err
	}
	demandHistory, err := b.metersRepo.ListAllDemandHistory(ctx, b.config.Analysis.BillMonths)
	if err != nil {
		return nil, err
	}
	snap, err := b.tariffSvc.LoadSnapshot(ctx, now)
	if err != nil {
		return nil, err
	}

	return &Context{
		Now:            now,
		EnergyDaily:    energyDaily,
		Bills:          bills,
		PowerSnapshots: snapshots,
		PUESamples:     pueSamples,
		Devices:        devices,
		ShiftConfigs:   shiftConfigs,
		MeterPoints:    meters,
		DemandHistory:  demandHistory,
		Tariff:         snap,
	}, nil
}
