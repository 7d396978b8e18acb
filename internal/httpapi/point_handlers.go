package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// PointHandler 点位管理接口
type PointHandler struct {
	pointsRepo   *repository.PointsRepository
	realtimeRepo *repository.RealtimeRepository
	logger       *zap.Logger
}

func NewPointHandler(pointsRepo *repository.PointsRepository, realtimeRepo *repository.RealtimeRepository, logger *zap.Logger) *PointHandler {
	return &PointHandler{pointsRepo: pointsRepo, realtimeRepo: realtimeRepo, logger: logger}
}

// RegisterPointRoutes 注册点位路由
func (r *Router) RegisterPointRoutes(h *PointHandler) {
	r.Handle("/api/v1/points", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/v1/points/", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.Get(w, req)
		case http.MethodPut:
			h.Update(w, req)
		case http.MethodDelete:
			h.Delete(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/v1/points-enable", methodGuard(http.MethodPost, h.SetEnabled))
	r.Handle("/api/v1/realtime", methodGuard(http.MethodGet, h.Realtime))
	r.Handle("/api/v1/realtime/summary", methodGuard(http.MethodGet, h.Summary))
}

// GET /api/v1/points?point_type=AI&area_code=A1&enabled=true&keyword=温度
func (h *PointHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters repository.PointFilters
	if v := q.Get("point_type"); v != "" {
		filters.PointType = &v
	}
	if v := q.Get("area_code"); v != "" {
		filters.AreaCode = &v
	}
	if v := q.Get("keyword"); v != "" {
		filters.Keyword = &v
	}
	if v := q.Get("enabled"); v != "" {
		enabled := v == "true"
		filters.IsEnabled = &enabled
	}
	if v := q.Get("device_id"); v != "" {
		id, err := parseInt64(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid device_id"))
			return
		}
		filters.DeviceID = &id
	}

	points, err := h.pointsRepo.ListPoints(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": points, "total": len(points)}))
}

func (h *PointHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "/api/v1/points/")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid point id"))
		return
	}
	point, err := h.pointsRepo.GetPoint(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(point))
}

func (h *PointHandler) Create(w http.ResponseWriter, r *http.Request) {
	var point models.Point
	if err := readBodyJSON(r, 1<<20, &point); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	id, err := h.pointsRepo.CreatePoint(r.Context(), &point)
	if err != nil {
		writeError(w, err)
		return
	}
	point.ID = id
	writeJSON(w, http.StatusOK, Ok(point))
}

func (h *PointHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "/api/v1/points/")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid point id"))
		return
	}
	var point models.Point
	if err := readBodyJSON(r, 1<<20, &point); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	point.ID = id
	if err := h.pointsRepo.UpdatePoint(r.Context(), &point); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(point))
}

func (h *PointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "/api/v1/points/")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid point id"))
		return
	}
	if err := h.pointsRepo.DeletePoint(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": id}))
}

// POST /api/v1/points-enable {"point_id": 1, "enabled": false}
func (h *PointHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PointID int64 `json:"point_id"`
		Enabled bool  `json:"enabled"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.PointID == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("point_id is required"))
		return
	}
	if err := h.pointsRepo.SetPointEnabled(r.Context(), body.PointID, body.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"point_id": body.PointID, "enabled": body.Enabled}))
}

// GET /api/v1/realtime?point_ids=1,2,3
func (h *PointHandler) Realtime(w http.ResponseWriter, r *http.Request) {
	var pointIDs []int64
	if s := r.URL.Query().Get("point_ids"); s != "" {
		ids, err := parseIDList(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid point_ids"))
			return
		}
		pointIDs = ids
	}
	rows, err := h.realtimeRepo.ListRealtime(r.Context(), pointIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": rows, "total": len(rows)}))
}

// GET /api/v1/realtime/summary
func (h *PointHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.realtimeRepo.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}
