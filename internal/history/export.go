package history

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// csvHeader 历史导出表头
var csvHeader = []string{"点位编码", "点位名称", "数值", "单位", "记录时间"}

// ExportFilename 导出附件文件名 history_YYYYMMDDHHMMSS.csv
func ExportFilename(now time.Time) string {
	return "history_" + now.Format("20060102150405") + ".csv"
}

// Exporter 历史数据导出器
type Exporter struct {
	historyRepo *repository.HistoryRepository
	logger      *zap.Logger
}

// NewExporter 创建导出器
func NewExporter(historyRepo *repository.HistoryRepository, logger *zap.Logger) *Exporter {
	return &Exporter{historyRepo: historyRepo, logger: logger}
}

// ExportCSV 按点位列表将历史数据以 CSV 流式写出
func (e *Exporter) ExportCSV(ctx context.Context, w io.Writer, pointIDs []int64, start, end time.Time) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	err := e.historyRepo.ScanExport(ctx, pointIDs, start, end, func(row *repository.ExportRow) error {
		return writer.Write([]string{
			row.PointCode,
			row.PointName,
			strconv.FormatFloat(row.Value, 'f', -1, 64),
			row.Unit,
			row.RecordedAt.Format("2006-01-02 15:04:05"),
		})
	})
	if err != nil {
		return err
	}

	writer.Flush()
	return writer.Error()
}

// ExportWorkbook 将历史数据导出为 xlsx 工作簿（报表场景）
func (e *Exporter) ExportWorkbook(ctx context.Context, w io.Writer, pointIDs []int64, start, end time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "历史数据"
	f.SetSheetName("Sheet1", sheet)

	for col, title := range csvHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("failed to write header cell: %w", err)
		}
	}

	rowIdx := 2
	err := e.historyRepo.ScanExport(ctx, pointIDs, start, end, func(row *repository.ExportRow) error {
		values := []interface{}{
			row.PointCode,
			row.PointName,
			row.Value,
			row.Unit,
			row.RecordedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write cell: %w", err)
			}
		}
		rowIdx++
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
