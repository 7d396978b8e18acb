package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/engine"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// AlarmHandler 告警查询与处置接口
type AlarmHandler struct {
	alarmsRepo     *repository.AlarmsRepository
	thresholdsRepo *repository.ThresholdsRepository
	alarmEngine    *engine.AlarmEngine
	logger         *zap.Logger
}

func NewAlarmHandler(
	alarmsRepo *repository.AlarmsRepository,
	thresholdsRepo *repository.ThresholdsRepository,
	alarmEngine *engine.AlarmEngine,
	logger *zap.Logger,
) *AlarmHandler {
	return &AlarmHandler{
		alarmsRepo:     alarmsRepo,
		thresholdsRepo: thresholdsRepo,
		alarmEngine:    alarmEngine,
		logger:         logger,
	}
}

// RegisterAlarmRoutes 注册告警路由
func (r *Router) RegisterAlarmRoutes(h *AlarmHandler) {
	r.Handle("/api/v1/alarms", methodGuard(http.MethodGet, h.List))
	r.Handle("/api/v1/alarms/active", methodGuard(http.MethodGet, h.Active))
	r.Handle("/api/v1/alarms/counts", methodGuard(http.MethodGet, h.Counts))
	r.Handle("/api/v1/alarms/acknowledge", methodGuard(http.MethodPost, h.Acknowledge))
	r.Handle("/api/v1/alarms/batch-acknowledge", methodGuard(http.MethodPost, h.BatchAcknowledge))
	r.Handle("/api/v1/alarms/resolve", methodGuard(http.MethodPost, h.Resolve))

	r.Handle("/api/v1/thresholds", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.ListThresholds(w, req)
		case http.MethodPost:
			h.CreateThreshold(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/v1/thresholds/batch", methodGuard(http.MethodPost, h.BatchCreateThresholds))
	r.Handle("/api/v1/thresholds/", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPut:
			h.UpdateThreshold(w, req)
		case http.MethodDelete:
			h.DeleteThreshold(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// GET /api/v1/alarms?status=active&level=critical&point_id=1&limit=100
func (h *AlarmHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters repository.AlarmFilters
	if v := q.Get("status"); v != "" {
		filters.Status = &v
	}
	if v := q.Get("level"); v != "" {
		filters.Level = &v
	}
	if v := q.Get("point_id"); v != "" {
		id, err := parseInt64(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid point_id"))
			return
		}
		filters.PointID = &id
	}
	filters.Limit = parseInt(q.Get("limit"), 0)

	alarms, err := h.alarmsRepo.ListAlarms(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": alarms, "total": len(alarms)}))
}

func (h *AlarmHandler) Active(w http.ResponseWriter, r *http.Request) {
	alarms, err := h.alarmsRepo.ListActiveAlarms(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": alarms, "total": len(alarms)}))
}

func (h *AlarmHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.alarmsRepo.CountsByLevel(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(counts))
}

// POST /api/v1/alarms/acknowledge {"alarm_id": 1, "ack_by": "ops", "remark": ""}
func (h *AlarmHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AlarmID int64  `json:"alarm_id"`
		AckBy   string `json:"ack_by"`
		Remark  string `json:"remark"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.AlarmID == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("alarm_id is required"))
		return
	}
	if err := h.alarmEngine.Acknowledge(r.Context(), body.AlarmID, body.AckBy, body.Remark); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"alarm_id": body.AlarmID}))
}

// POST /api/v1/alarms/batch-acknowledge {"alarm_ids": [1,2], "ack_by": "ops"}
func (h *AlarmHandler) BatchAcknowledge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AlarmIDs []int64 `json:"alarm_ids"`
		AckBy    string  `json:"ack_by"`
		Remark   string  `json:"remark"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil || len(body.AlarmIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("alarm_ids is required"))
		return
	}
	n, err := h.alarmEngine.BatchAcknowledge(r.Context(), body.AlarmIDs, body.AckBy, body.Remark)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"acknowledged": n}))
}

// POST /api/v1/alarms/resolve {"alarm_id": 1, "resolved_by": "ops"}
func (h *AlarmHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AlarmID    int64  `json:"alarm_id"`
		ResolvedBy string `json:"resolved_by"`
		Remark     string `json:"remark"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.AlarmID == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("alarm_id is required"))
		return
	}
	if err := h.alarmEngine.Resolve(r.Context(), body.AlarmID, body.ResolvedBy, body.Remark); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"alarm_id": body.AlarmID}))
}

// GET /api/v1/thresholds?point_id=1
func (h *AlarmHandler) ListThresholds(w http.ResponseWriter, r *http.Request) {
	pointID, err := parseInt64(r.URL.Query().Get("point_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("point_id is required"))
		return
	}
	thresholds, err := h.thresholdsRepo.ListByPoint(r.Context(), pointID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": thresholds, "total": len(thresholds)}))
}

func (h *AlarmHandler) CreateThreshold(w http.ResponseWriter, r *http.Request) {
	var t models.AlarmThreshold
	if err := readBodyJSON(r, 1<<20, &t); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	id, err := h.thresholdsRepo.CreateThreshold(r.Context(), &t)
	if err != nil {
		writeError(w, err)
		return
	}
	t.ID = id
	writeJSON(w, http.StatusOK, Ok(t))
}

// POST /api/v1/thresholds/batch {"thresholds": [...]}
func (h *AlarmHandler) BatchCreateThresholds(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Thresholds []*models.AlarmThreshold `json:"thresholds"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil || len(body.Thresholds) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("thresholds is required"))
		return
	}
	ids, err := h.thresholdsRepo.BatchCreateThresholds(r.Context(), body.Thresholds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"ids": ids, "created": len(ids)}))
}

func (h *AlarmHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "/api/v1/thresholds/")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid threshold id"))
		return
	}
	var t models.AlarmThreshold
	if err := readBodyJSON(r, 1<<20, &t); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	t.ID = id
	if err := h.thresholdsRepo.UpdateThreshold(r.Context(), &t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(t))
}

func (h *AlarmHandler) DeleteThreshold(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "/api/v1/thresholds/")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid threshold id"))
		return
	}
	if err := h.thresholdsRepo.DeleteThreshold(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": id}))
}
