package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// 点位用途
const (
	UsagePower       = "power"
	UsageCurrent     = "current"
	UsageEnergy      = "energy"
	UsageVoltage     = "voltage"
	UsagePowerFactor = "power_factor"
)

// 点位名称关键词到用途的映射
var keywordToUsage = []struct {
	usage    string
	keywords []string
}{
	{UsagePowerFactor, []string{"功率因数", "power factor", "cos", "pf"}},
	{UsagePower, []string{"功率", "有功功率", "power", "输出功率", "负载率"}},
	{UsageCurrent, []string{"电流", "current", "电流值"}},
	{UsageEnergy, []string{"电能", "电量", "累计电量", "energy", "kwh"}},
	{UsageVoltage, []string{"电压", "voltage", "输入电压", "输出电压"}},
}

// legacyRule 设备编码到点位编码的已知映射（历史点表兼容）
type legacyRule struct {
	Prefix  string
	Power   string
	Current string
	Energy  string
}

var legacyMappingRules = map[string]legacyRule{
	// 服务器机柜 SRV-001~004 -> A1_SRV_AI_001~012
	"SRV-001": {Prefix: "A1_SRV_AI_", Power: "001", Current: "002", Energy: "003"},
	"SRV-002": {Prefix: "A1_SRV_AI_", Power: "004", Current: "005", Energy: "006"},
	"SRV-003": {Prefix: "A1_SRV_AI_", Power: "007", Current: "008", Energy: "009"},
	"SRV-004": {Prefix: "A1_SRV_AI_", Power: "010", Current: "011", Energy: "012"},
	"NET-001": {Prefix: "A1_NET_AI_", Power: "001", Current: "002", Energy: "003"},
	"STO-001": {Prefix: "A1_STO_AI_", Power: "001", Current: "002", Energy: "003"},
	"UPS-001": {Prefix: "A1_UPS_AI_", Power: "002", Current: "003"},
	"UPS-002": {Prefix: "A1_UPS_AI_", Power: "006", Current: "007"},
	"LIGHT-001": {Prefix: "A1_LIGHT_AI_", Power: "001", Current: "002"},
	// 冷站设备点位编号不连续，逐台列出
	"CH-001":   {Prefix: "B1_CH_AI_", Power: "005", Current: "007"},
	"CH-002":   {Prefix: "B1_CH_AI_", Power: "015", Current: "017"},
	"CT-001":   {Prefix: "B1_CT_AI_", Power: "005"},
	"CT-002":   {Prefix: "B1_CT_AI_", Power: "006"},
	"CHWP-001": {Prefix: "B1_CHWP_AI_", Power: "005", Current: "002"},
	"CHWP-002": {Prefix: "B1_CHWP_AI_", Power: "006", Current: "004"},
	"CWP-001":  {Prefix: "B1_CWP_AI_", Power: "005", Current: "002"},
	"CWP-002":  {Prefix: "B1_CWP_AI_", Power: "006", Current: "004"},
	"F1-UPS-001": {Prefix: "F1_UPS_AI_", Power: "0013"},
	"F1-UPS-002": {Prefix: "F1_UPS_AI_", Power: "0023"},
	"F2-UPS-001": {Prefix: "F2_UPS_AI_", Power: "0013"},
	"F2-UPS-002": {Prefix: "F2_UPS_AI_", Power: "0023"},
	"F3-UPS-001": {Prefix: "F3_UPS_AI_", Power: "0013"},
	// 楼层精密空调用回风温度点位做运行指征
	"F1-AC-001": {Prefix: "F1_AC_AI_", Power: "0011"},
	"F1-AC-002": {Prefix: "F1_AC_AI_", Power: "0021"},
	"F1-AC-003": {Prefix: "F1_AC_AI_", Power: "0031"},
	"F1-AC-004": {Prefix: "F1_AC_AI_", Power: "0041"},
	"F2-AC-001": {Prefix: "F2_AC_AI_", Power: "0011"},
	"F2-AC-002": {Prefix: "F2_AC_AI_", Power: "0021"},
	"F2-AC-003": {Prefix: "F2_AC_AI_", Power: "0031"},
	"F2-AC-004": {Prefix: "F2_AC_AI_", Power: "0041"},
	"F3-AC-001": {Prefix: "F3_AC_AI_", Power: "0011"},
	"F3-AC-002": {Prefix: "F3_AC_AI_", Power: "0021"},
}

// 设备类型到点位前缀类型（编码提取失败时兜底）
var deviceTypeToPrefix = map[string]string{
	"IT":      "SRV",
	"CHILLER": "CH",
	"CT":      "CT",
	"PUMP":    "CHWP",
	"UPS":     "UPS",
	"AC":      "AC",
	"LIGHT":   "LIGHT",
}

var devicePrefixRe = regexp.MustCompile(`^([A-Z]+)`)

// PointLinks 一台设备匹配到的三类点位
type PointLinks struct {
	PowerPointID   *int64 `json:"power_point_id,omitempty"`
	CurrentPointID *int64 `json:"current_point_id,omitempty"`
	EnergyPointID  *int64 `json:"energy_point_id,omitempty"`
}

// Any 是否至少匹配到一个点位
func (l *PointLinks) Any() bool {
	return l.PowerPointID != nil || l.CurrentPointID != nil || l.EnergyPointID != nil
}

func (l *PointLinks) ids() []int64 {
	var ids []int64
	for _, p := range []*int64{l.PowerPointID, l.CurrentPointID, l.EnergyPointID} {
		if p != nil {
			ids = append(ids, *p)
		}
	}
	return ids
}

// SyncReport 全量同步结果
type SyncReport struct {
	UpdatedDevices  int `json:"updated_devices"`
	PointLinkCount  int `json:"point_link_count"`
	DeviceLinkCount int `json:"device_link_count"`
	MatchedCount    int `json:"matched_count"`
}

// Matcher 点位与设备匹配引擎。
// 先用历史点表映射保证向后兼容，再按 {区域}_{设备前缀}_AI_ 派生前缀 +
// 名称关键词识别用途做通用匹配。重复执行产生相同关联。
type Matcher struct {
	pointsRepo  *repository.PointsRepository
	devicesRepo *repository.DevicesRepository
	logger      *zap.Logger
}

// NewMatcher 创建匹配引擎
func NewMatcher(pointsRepo *repository.PointsRepository, devicesRepo *repository.DevicesRepository, logger *zap.Logger) *Matcher {
	return &Matcher{pointsRepo: pointsRepo, devicesRepo: devicesRepo, logger: logger}
}

// DerivePointPrefix 由设备编码与区域推导点位前缀，如 CH-001/B1 → B1_CH_AI_
func DerivePointPrefix(deviceCode, deviceType, areaCode string) string {
	if deviceCode == "" || areaCode == "" {
		return ""
	}
	if m := devicePrefixRe.FindStringSubmatch(strings.ToUpper(deviceCode)); m != nil {
		return fmt.Sprintf("%s_%s_AI_", areaCode, m[1])
	}
	if prefix, ok := deviceTypeToPrefix[deviceType]; ok {
		return fmt.Sprintf("%s_%s_AI_", areaCode, prefix)
	}
	return ""
}

// IdentifyPointUsage 按名称关键词识别点位用途，未识别返回空串
func IdentifyPointUsage(pointName string) string {
	name := strings.ToLower(pointName)
	for _, entry := range keywordToUsage {
		for _, kw := range entry.keywords {
			if strings.Contains(name, strings.ToLower(kw)) {
				return entry.usage
			}
		}
	}
	return ""
}

// FindMatchingPoints 为一台设备查找功率/电流/电能点位
func FindMatchingPoints(device *models.PowerDevice, pointsByCode map[string]*models.Point) *PointLinks {
	links := &PointLinks{}

	// 历史映射优先
	if rule, ok := legacyMappingRules[device.DeviceCode]; ok {
		if rule.Power != "" {
			if p, ok := pointsByCode[rule.Prefix+rule.Power]; ok {
				links.PowerPointID = &p.ID
			}
		}
		if rule.Current != "" {
			if p, ok := pointsByCode[rule.Prefix+rule.Current]; ok {
				links.CurrentPointID = &p.ID
			}
		}
		if rule.Energy != "" {
			if p, ok := pointsByCode[rule.Prefix+rule.Energy]; ok {
				links.EnergyPointID = &p.ID
			}
		}
		if links.Any() {
			return links
		}
	}

	prefix := DerivePointPrefix(device.DeviceCode, device.DeviceType, device.AreaCode)
	if prefix == "" {
		return links
	}

	// 同前缀点位按用途分类，同用途多个候选时取编码最小的，保证幂等
	best := map[string]*models.Point{}
	for code, p := range pointsByCode {
		if !strings.HasPrefix(code, prefix) {
			continue
		}
		usage := IdentifyPointUsage(p.PointName)
		if usage == "" {
			continue
		}
		if cur, ok := best[usage]; !ok || p.PointCode < cur.PointCode {
			best[usage] = p
		}
	}
	if p, ok := best[UsagePower]; ok {
		links.PowerPointID = &p.ID
	}
	if p, ok := best[UsageCurrent]; ok {
		links.CurrentPointID = &p.ID
	}
	if p, ok := best[UsageEnergy]; ok {
		links.EnergyPointID = &p.ID
	}
	return links
}

// FullSync 为所有启用设备执行双向关联同步
func (m *Matcher) FullSync(ctx context.Context) (*SyncReport, error) {
	points, err := m.pointsRepo.ListPoints(ctx, repository.PointFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list points: %w", err)
	}
	pointsByCode := make(map[string]*models.Point, len(points))
	for _, p := range points {
		pointsByCode[p.PointCode] = p
	}

	devices, err := m.devicesRepo.ListEnabledDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	report := &SyncReport{}
	for _, device := range devices {
		links := FindMatchingPoints(device, pointsByCode)
		if !links.Any() {
			continue
		}
		report.MatchedCount++

		// 未匹配到的用途保留既有关联
		if links.PowerPointID == nil {
			links.PowerPointID = device.PowerPointID
		}
		if links.CurrentPointID == nil {
			links.CurrentPointID = device.CurrentPointID
		}
		if links.EnergyPointID == nil {
			links.EnergyPointID = device.EnergyPointID
		}

		if changed(device, links) {
			if err := m.devicesRepo.UpdatePointLinks(ctx, device.ID, links.PowerPointID, links.CurrentPointID, links.EnergyPointID); err != nil {
				m.logger.Error("failed to update device point links",
					zap.String("device_code", device.DeviceCode),
					zap.Error(err))
				continue
			}
			report.UpdatedDevices++
		}
		report.DeviceLinkCount++

		// 反向链接：点位记录所属能耗设备
		for _, pid := range links.ids() {
			if err := m.pointsRepo.SetEnergyDevice(ctx, pid, device.ID); err != nil {
				m.logger.Error("failed to set energy device on point",
					zap.Int64("point_id", pid),
					zap.Error(err))
				continue
			}
			report.PointLinkCount++
		}
	}

	m.logger.Info("point-device sync completed",
		zap.Int("matched", report.MatchedCount),
		zap.Int("updated_devices", report.UpdatedDevices),
		zap.Int("point_links", report.PointLinkCount))
	return report, nil
}

func changed(device *models.PowerDevice, links *PointLinks) bool {
	same := func(a, b *int64) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}
	return !(same(device.PowerPointID, links.PowerPointID) &&
		same(device.CurrentPointID, links.CurrentPointID) &&
		same(device.EnergyPointID, links.EnergyPointID))
}
