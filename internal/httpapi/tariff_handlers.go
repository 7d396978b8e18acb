package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

// TariffHandler 电价配置与账单合成接口
type TariffHandler struct {
	pricingRepo *repository.PricingRepository
	tariffSvc   *tariff.Service
	logger      *zap.Logger
}

func NewTariffHandler(pricingRepo *repository.PricingRepository, tariffSvc *tariff.Service, logger *zap.Logger) *TariffHandler {
	return &TariffHandler{pricingRepo: pricingRepo, tariffSvc: tariffSvc, logger: logger}
}

// RegisterTariffRoutes 注册电价路由
func (r *Router) RegisterTariffRoutes(h *TariffHandler) {
	r.Handle("/api/v1/tariff/snapshot", methodGuard(http.MethodGet, h.Snapshot))
	r.Handle("/api/v1/tariff/config", methodGuard(http.MethodPut, h.UpdateConfig))
	r.Handle("/api/v1/tariff/intervals", methodGuard(http.MethodPut, h.ReplaceIntervals))
	r.Handle("/api/v1/tariff/bill", methodGuard(http.MethodPost, h.CalculateBill))
}

// GET /api/v1/tariff/snapshot?date=2025-06-01
func (h *TariffHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	date := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid date, expect YYYY-MM-DD"))
			return
		}
		date = parsed
	}
	snap, err := h.tariffSvc.LoadSnapshot(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"date":      snap.Date.Format("2006-01-02"),
		"intervals": snap.Intervals,
		"config":    snap.Config,
	}))
}

// PUT /api/v1/tariff/config
func (h *TariffHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.PricingConfig
	if err := readBodyJSON(r, 1<<20, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := h.pricingRepo.UpdateConfig(r.Context(), &cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(cfg))
}

// PUT /api/v1/tariff/intervals {"pricing_name": "standard", "intervals": [...]}
func (h *TariffHandler) ReplaceIntervals(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PricingName string                   `json:"pricing_name"`
		Intervals   []*models.TariffInterval `json:"intervals"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil || len(body.Intervals) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("intervals is required"))
		return
	}
	if err := h.pricingRepo.ReplaceIntervals(r.Context(), body.PricingName, body.Intervals); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"replaced": len(body.Intervals)}))
}

// POST /api/v1/tariff/bill
// {"date": "2025-06-01", "energy_by_period": {"peak": 1000}, "max_demand_kw": 500, "avg_power_factor": 0.92}
func (h *TariffHandler) CalculateBill(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date           string             `json:"date"`
		EnergyByPeriod map[string]float64 `json:"energy_by_period"`
		MaxDemandKW    float64            `json:"max_demand_kw"`
		AvgPowerFactor float64            `json:"avg_power_factor"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil || len(body.EnergyByPeriod) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("energy_by_period is required"))
		return
	}
	date := time.Now()
	if body.Date != "" {
		parsed, err := time.Parse("2006-01-02", body.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid date, expect YYYY-MM-DD"))
			return
		}
		date = parsed
	}
	snap, err := h.tariffSvc.LoadSnapshot(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}

	// 时段别名归一后再计价
	energy := make(map[string]float64, len(body.EnergyByPeriod))
	for period, kwh := range body.EnergyByPeriod {
		energy[tariff.NormalizePeriod(period)] += kwh
	}
	bill := tariff.CalculateBill(snap, tariff.BillInput{
		EnergyByPeriod: energy,
		MaxDemandKW:    body.MaxDemandKW,
		AvgPowerFactor: body.AvgPowerFactor,
	})
	writeJSON(w, http.StatusOK, Ok(bill))
}
