package history_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/history"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

func TestExportFilename(t *testing.T) {
	now := time.Date(2025, 6, 1, 13, 14, 15, 0, time.Local)
	assert.Equal(t, "history_20250601131415.csv", history.ExportFilename(now))
}

func TestExportCSV(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := zap.NewNop()
	historyRepo := repository.NewHistoryRepository(db, logger)
	exporter := history.NewExporter(historyRepo, logger)

	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.Local)
	t2 := time.Date(2025, 6, 1, 10, 0, 5, 0, time.Local)
	mock.ExpectQuery(`FROM point_history h`).
		WillReturnRows(sqlmock.NewRows([]string{"point_code", "point_name", "value", "unit", "recorded_at"}).
			AddRow("A1_SRV_AI_001", "服务器机柜1功率", 12.5, "kW", t1).
			AddRow("A1_SRV_AI_001", "服务器机柜1功率", 12.75, "kW", t2))

	var buf bytes.Buffer
	err = exporter.ExportCSV(context.Background(), &buf,
		[]int64{1}, t1.Add(-time.Hour), t2.Add(time.Hour))
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"点位编码", "点位名称", "数值", "单位", "记录时间"}, records[0])
	assert.Equal(t, []string{"A1_SRV_AI_001", "服务器机柜1功率", "12.5", "kW", "2025-06-01 10:00:00"}, records[1])
	// 数值不做位数截断
	assert.Equal(t, "12.75", records[2][2])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportCSV_EmptyRangeStillWritesHeader(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := zap.NewNop()
	exporter := history.NewExporter(repository.NewHistoryRepository(db, logger), logger)

	mock.ExpectQuery(`FROM point_history h`).
		WillReturnRows(sqlmock.NewRows([]string{"point_code", "point_name", "value", "unit", "recorded_at"}))

	var buf bytes.Buffer
	now := time.Now()
	require.NoError(t, exporter.ExportCSV(context.Background(), &buf, []int64{1}, now.Add(-time.Hour), now))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}
