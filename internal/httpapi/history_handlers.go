package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/history"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// HistoryHandler 历史数据接口
type HistoryHandler struct {
	historyRepo *repository.HistoryRepository
	exporter    *history.Exporter
	maxRows     int
	logger      *zap.Logger
}

func NewHistoryHandler(historyRepo *repository.HistoryRepository, exporter *history.Exporter, maxRows int, logger *zap.Logger) *HistoryHandler {
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &HistoryHandler{historyRepo: historyRepo, exporter: exporter, maxRows: maxRows, logger: logger}
}

// RegisterHistoryRoutes 注册历史路由
func (r *Router) RegisterHistoryRoutes(h *HistoryHandler) {
	r.Handle("/api/v1/history", methodGuard(http.MethodGet, h.Query))
	r.Handle("/api/v1/history/trend", methodGuard(http.MethodGet, h.Trend))
	r.Handle("/api/v1/history/stats", methodGuard(http.MethodGet, h.Stats))
	r.Handle("/api/v1/history/export", methodGuard(http.MethodGet, h.ExportCSV))
	r.Handle("/api/v1/history/export-xlsx", methodGuard(http.MethodGet, h.ExportXLSX))
}

// GET /api/v1/history?point_id=1&start=...&end=...&limit=1000
func (h *HistoryHandler) Query(w http.ResponseWriter, r *http.Request) {
	pointID, err := parseInt64(r.URL.Query().Get("point_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("point_id is required"))
		return
	}
	start, end := parseTimeRange(r)
	limit := parseInt(r.URL.Query().Get("limit"), h.maxRows)
	if limit > h.maxRows {
		limit = h.maxRows
	}

	rows, err := h.historyRepo.QueryHistory(r.Context(), pointID, start, end, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": rows, "total": len(rows)}))
}

// GET /api/v1/history/trend?point_id=1&interval=300
func (h *HistoryHandler) Trend(w http.ResponseWriter, r *http.Request) {
	pointID, err := parseInt64(r.URL.Query().Get("point_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("point_id is required"))
		return
	}
	interval := parseInt(r.URL.Query().Get("interval"), 300)
	if interval <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("interval must be positive"))
		return
	}
	start, end := parseTimeRange(r)

	buckets, err := h.historyRepo.QueryTrend(r.Context(), pointID, start, end, interval)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": buckets, "total": len(buckets)}))
}

// GET /api/v1/history/stats?point_id=1
func (h *HistoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	pointID, err := parseInt64(r.URL.Query().Get("point_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("point_id is required"))
		return
	}
	start, end := parseTimeRange(r)

	stats, err := h.historyRepo.QueryStats(r.Context(), pointID, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(stats))
}

// GET /api/v1/history/export?point_ids=1,2,3
func (h *HistoryHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	pointIDs, err := parseIDList(r.URL.Query().Get("point_ids"))
	if err != nil || len(pointIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("point_ids is required"))
		return
	}
	start, end := parseTimeRange(r)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, history.ExportFilename(time.Now())))
	if err := h.exporter.ExportCSV(r.Context(), w, pointIDs, start, end); err != nil {
		h.logger.Error("csv export failed", zap.Error(err))
	}
}

// GET /api/v1/history/export-xlsx?point_ids=1,2,3
func (h *HistoryHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	pointIDs, err := parseIDList(r.URL.Query().Get("point_ids"))
	if err != nil || len(pointIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("point_ids is required"))
		return
	}
	start, end := parseTimeRange(r)

	filename := fmt.Sprintf("history_%s.xlsx", time.Now().Format("20060102150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if err := h.exporter.ExportWorkbook(r.Context(), w, pointIDs, start, end); err != nil {
		h.logger.Error("xlsx export failed", zap.Error(err))
	}
}
