package matcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proecheng/dcim-platform-sub000/internal/matcher"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

func TestIdentifyPointUsage(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"服务器机柜1功率", matcher.UsagePower},
		{"UPS输出功率", matcher.UsagePower},
		{"机柜负载率", matcher.UsagePower},
		{"冷机电流", matcher.UsageCurrent},
		{"累计电量", matcher.UsageEnergy},
		{"Total Energy kWh", matcher.UsageEnergy},
		{"输入电压", matcher.UsageVoltage},
		// 功率因数必须先于“功率”命中
		{"功率因数", matcher.UsagePowerFactor},
		{"PF meter", matcher.UsagePowerFactor},
		{"回风温度", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matcher.IdentifyPointUsage(tt.name), "name=%s", tt.name)
	}
}

func TestDerivePointPrefix(t *testing.T) {
	assert.Equal(t, "B1_CH_AI_", matcher.DerivePointPrefix("CH-001", "CHILLER", "B1"))
	assert.Equal(t, "A1_SRV_AI_", matcher.DerivePointPrefix("SRV-003", "IT", "A1"))
	// 编码无法提取字母前缀时按设备类型兜底
	assert.Equal(t, "A1_UPS_AI_", matcher.DerivePointPrefix("001", "UPS", "A1"))
	assert.Equal(t, "", matcher.DerivePointPrefix("", "IT", "A1"))
	assert.Equal(t, "", matcher.DerivePointPrefix("CH-001", "CHILLER", ""))
}

func pointsByCode(points ...*models.Point) map[string]*models.Point {
	m := make(map[string]*models.Point, len(points))
	for _, p := range points {
		m[p.PointCode] = p
	}
	return m
}

func TestFindMatchingPoints_LegacyRuleFirst(t *testing.T) {
	points := pointsByCode(
		&models.Point{ID: 11, PointCode: "A1_SRV_AI_001", PointName: "服务器机柜1功率"},
		&models.Point{ID: 12, PointCode: "A1_SRV_AI_002", PointName: "服务器机柜1电流"},
		&models.Point{ID: 13, PointCode: "A1_SRV_AI_003", PointName: "服务器机柜1电能"},
	)
	device := &models.PowerDevice{ID: 1, DeviceCode: "SRV-001", DeviceType: "IT", AreaCode: "A1"}

	links := matcher.FindMatchingPoints(device, points)
	require.True(t, links.Any())
	assert.Equal(t, int64(11), *links.PowerPointID)
	assert.Equal(t, int64(12), *links.CurrentPointID)
	assert.Equal(t, int64(13), *links.EnergyPointID)
}

func TestFindMatchingPoints_PrefixFallback(t *testing.T) {
	// 未在历史映射表中的设备走前缀+关键词匹配
	points := pointsByCode(
		&models.Point{ID: 21, PointCode: "C2_PDU_AI_001", PointName: "PDU输出功率"},
		&models.Point{ID: 22, PointCode: "C2_PDU_AI_002", PointName: "PDU电流"},
		&models.Point{ID: 23, PointCode: "C2_PDU_AI_003", PointName: "PDU累计电量"},
		&models.Point{ID: 24, PointCode: "C2_OTHER_AI_001", PointName: "无关功率"},
	)
	device := &models.PowerDevice{ID: 2, DeviceCode: "PDU-007", DeviceType: "IT", AreaCode: "C2"}

	links := matcher.FindMatchingPoints(device, points)
	require.True(t, links.Any())
	assert.Equal(t, int64(21), *links.PowerPointID)
	assert.Equal(t, int64(22), *links.CurrentPointID)
	assert.Equal(t, int64(23), *links.EnergyPointID)
}

func TestFindMatchingPoints_SmallestCodeWins(t *testing.T) {
	// 同用途多候选时取编码最小者
	points := pointsByCode(
		&models.Point{ID: 32, PointCode: "C2_PDU_AI_005", PointName: "PDU功率B"},
		&models.Point{ID: 31, PointCode: "C2_PDU_AI_001", PointName: "PDU功率A"},
	)
	device := &models.PowerDevice{ID: 3, DeviceCode: "PDU-001", DeviceType: "IT", AreaCode: "C2"}

	links := matcher.FindMatchingPoints(device, points)
	require.NotNil(t, links.PowerPointID)
	assert.Equal(t, int64(31), *links.PowerPointID)
}

func TestFindMatchingPoints_Idempotent(t *testing.T) {
	points := pointsByCode(
		&models.Point{ID: 41, PointCode: "B1_CH_AI_005", PointName: "冷机功率"},
		&models.Point{ID: 42, PointCode: "B1_CH_AI_007", PointName: "冷机电流"},
		&models.Point{ID: 43, PointCode: "B1_CH_AI_001", PointName: "冷冻水温度"},
	)
	device := &models.PowerDevice{ID: 4, DeviceCode: "CH-001", DeviceType: "CHILLER", AreaCode: "B1"}

	first := matcher.FindMatchingPoints(device, points)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, matcher.FindMatchingPoints(device, points))
	}
	assert.Equal(t, int64(41), *first.PowerPointID)
	assert.Equal(t, int64(42), *first.CurrentPointID)
	assert.Nil(t, first.EnergyPointID)
}

func TestFindMatchingPoints_NoMatch(t *testing.T) {
	points := pointsByCode(
		&models.Point{ID: 51, PointCode: "A1_ENV_AI_001", PointName: "冷通道温度"},
	)
	device := &models.PowerDevice{ID: 5, DeviceCode: "XX-001", DeviceType: "OTHER", AreaCode: "Z9"}

	links := matcher.FindMatchingPoints(device, points)
	assert.False(t, links.Any())
}
