package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/analysis"
	"github.com/proecheng/dcim-platform-sub000/internal/demand"
	"github.com/proecheng/dcim-platform-sub000/internal/execution"
	"github.com/proecheng/dcim-platform-sub000/internal/matcher"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
	"github.com/proecheng/dcim-platform-sub000/internal/simulation"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

// AnalysisHandler 节能分析、仿真与执行闭环接口
type AnalysisHandler struct {
	registry        *analysis.Registry
	ctxBuilder      *analysis.ContextBuilder
	suggestionsRepo *repository.SuggestionsRepository
	executionRepo   *repository.ExecutionRepository
	executionSvc    *execution.Service
	tracker         *execution.Tracker
	simulator       *simulation.Simulator
	demandAnalyzer  *demand.Analyzer
	tariffSvc       *tariff.Service
	matcher         *matcher.Matcher
	logger          *zap.Logger
}

func NewAnalysisHandler(
	registry *analysis.Registry,
	ctxBuilder *analysis.ContextBuilder,
	suggestionsRepo *repository.SuggestionsRepository,
	executionRepo *repository.ExecutionRepository,
	executionSvc *execution.Service,
	tracker *execution.Tracker,
	simulator *simulation.Simulator,
	demandAnalyzer *demand.Analyzer,
	tariffSvc *tariff.Service,
	m *matcher.Matcher,
	logger *zap.Logger,
) *AnalysisHandler {
	return &AnalysisHandler{
		registry:        registry,
		ctxBuilder:      ctxBuilder,
		suggestionsRepo: suggestionsRepo,
		executionRepo:   executionRepo,
		executionSvc:    executionSvc,
		tracker:         tracker,
		simulator:       simulator,
		demandAnalyzer:  demandAnalyzer,
		tariffSvc:       tariffSvc,
		matcher:         m,
		logger:          logger,
	}
}

// RegisterAnalysisRoutes 注册分析与执行路由
func (r *Router) RegisterAnalysisRoutes(h *AnalysisHandler) {
	r.Handle("/api/v1/analysis/run", methodGuard(http.MethodPost, h.RunAnalysis))
	r.Handle("/api/v1/analysis/plugins", methodGuard(http.MethodGet, h.ListPlugins))
	r.Handle("/api/v1/suggestions", methodGuard(http.MethodGet, h.ListSuggestions))
	r.Handle("/api/v1/suggestions/promote", methodGuard(http.MethodPost, h.PromoteSuggestion))

	r.Handle("/api/v1/opportunities", methodGuard(http.MethodGet, h.ListOpportunities))
	r.Handle("/api/v1/opportunities/approve", methodGuard(http.MethodPost, h.ApproveOpportunity))
	r.Handle("/api/v1/opportunities/reject", methodGuard(http.MethodPost, h.RejectOpportunity))
	r.Handle("/api/v1/opportunities/checklist", methodGuard(http.MethodPost, h.PreviewChecklist))

	r.Handle("/api/v1/plans", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.ListPlans(w, req)
		case http.MethodPost:
			h.CreatePlan(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/v1/plans/", methodGuard(http.MethodGet, h.GetPlan))
	r.Handle("/api/v1/plans/track", methodGuard(http.MethodPost, h.TrackPlan))

	r.Handle("/api/v1/tasks/execute", methodGuard(http.MethodPost, h.ExecuteTask))
	r.Handle("/api/v1/tasks/complete", methodGuard(http.MethodPost, h.CompleteTask))
	r.Handle("/api/v1/tasks/skip", methodGuard(http.MethodPost, h.SkipTask))

	r.Handle("/api/v1/simulate", methodGuard(http.MethodPost, h.Simulate))
	r.Handle("/api/v1/demand/analyze", methodGuard(http.MethodPost, h.AnalyzeDemand))
	r.Handle("/api/v1/matcher/full-sync", methodGuard(http.MethodPost, h.MatcherFullSync))
}

// POST /api/v1/analysis/run — 立即跑一轮全部启用的分析器
func (h *AnalysisHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	actx, err := h.ctxBuilder.Build(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	suggestions, err := h.registry.RunAll(r.Context(), actx, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"suggestions": suggestions,
		"total":       len(suggestions),
	}))
}

func (h *AnalysisHandler) ListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins := h.registry.Plugins()
	configs := make([]*analysis.PluginConfig, 0, len(plugins))
	for _, p := range plugins {
		configs = append(configs, p.Config())
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": configs, "total": len(configs)}))
}

// GET /api/v1/suggestions?status=pending&limit=50
func (h *AnalysisHandler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	suggestions, err := h.suggestionsRepo.ListSuggestions(r.Context(), q.Get("status"), parseInt(q.Get("limit"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": suggestions, "total": len(suggestions)}))
}

// POST /api/v1/suggestions/promote {"suggestion_id": 1}
func (h *AnalysisHandler) PromoteSuggestion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SuggestionID int64 `json:"suggestion_id"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.SuggestionID == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("suggestion_id is required"))
		return
	}
	opp, err := h.executionSvc.PromoteSuggestion(r.Context(), body.SuggestionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(opp))
}

func (h *AnalysisHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opps, err := h.executionRepo.ListOpportunities(r.Context(), q.Get("status"), parseInt(q.Get("limit"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": opps, "total": len(opps)}))
}

func (h *AnalysisHandler) ApproveOpportunity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.readOpportunityID(w, r)
	if !ok {
		return
	}
	if err := h.executionSvc.ApproveOpportunity(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"opportunity_id": id}))
}

func (h *AnalysisHandler) RejectOpportunity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.readOpportunityID(w, r)
	if !ok {
		return
	}
	if err := h.executionSvc.RejectOpportunity(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"opportunity_id": id}))
}

// POST /api/v1/opportunities/checklist {"opportunity_id": 1} — 预览清单，不落库
func (h *AnalysisHandler) PreviewChecklist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.readOpportunityID(w, r)
	if !ok {
		return
	}
	opp, err := h.executionRepo.GetOpportunity(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks := execution.GenerateChecklist(opp)
	writeJSON(w, http.StatusOK, Ok(map[string]any{"tasks": tasks, "total": len(tasks)}))
}

func (h *AnalysisHandler) readOpportunityID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var body struct {
		OpportunityID int64 `json:"opportunity_id"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.OpportunityID == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("opportunity_id is required"))
		return 0, false
	}
	return body.OpportunityID, true
}

// GET /api/v1/plans?opportunity_id=1
func (h *AnalysisHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	opportunityID, err := parseInt64(r.URL.Query().Get("opportunity_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("opportunity_id is required"))
		return
	}
	plans, err := h.executionRepo.ListPlansByOpportunity(r.Context(), opportunityID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": plans, "total": len(plans)}))
}

// POST /api/v1/plans {"plan": {...}, "tasks": [...]}
// tasks 为空时按商机类别自动生成执行清单
func (h *AnalysisHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Plan  *models.ExecutionPlan   `json:"plan"`
		Tasks []*models.ExecutionTask `json:"tasks"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil || body.Plan == nil {
		writeJSON(w, http.StatusBadRequest, Fail("plan is required"))
		return
	}
	id, err := h.executionSvc.CreatePlan(r.Context(), body.Plan, body.Tasks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"plan_id": id}))
}

// GET /api/v1/plans/{id} — 计划详情，含任务与追踪结果
func (h *AnalysisHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "/api/v1/plans/")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid plan id"))
		return
	}
	plan, err := h.executionRepo.GetPlan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := h.executionRepo.ListTasksByPlan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := h.executionRepo.ListResultsByPlan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"plan":    plan,
		"tasks":   tasks,
		"results": results,
	}))
}

// POST /api/v1/plans/track {"plan_id": 1, "tracking_days": 30}
func (h *AnalysisHandler) TrackPlan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlanID       int64 `json:"plan_id"`
		TrackingDays int   `json:"tracking_days"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.PlanID == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("plan_id is required"))
		return
	}
	result, err := h.tracker.Track(r.Context(), body.PlanID, body.TrackingDays)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// POST /api/v1/tasks/execute {"task_id": 1}
func (h *AnalysisHandler) ExecuteTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskID int64 `json:"task_id"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.TaskID == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("task_id is required"))
		return
	}
	if err := h.executionSvc.ExecuteTask(r.Context(), body.TaskID); err != nil {
		writeError(w, err)
		return
	}
	task, err := h.executionRepo.GetTask(r.Context(), body.TaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(task))
}

// POST /api/v1/tasks/complete {"task_id": 1, "completed_by": "ops", "notes": "", "success": true}
func (h *AnalysisHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskID      int64  `json:"task_id"`
		CompletedBy string `json:"completed_by"`
		Notes       string `json:"notes"`
		Success     *bool  `json:"success"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.TaskID == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("task_id is required"))
		return
	}
	success := true
	if body.Success != nil {
		success = *body.Success
	}
	if err := h.executionSvc.CompleteManualTask(r.Context(), body.TaskID, body.CompletedBy, body.Notes, success); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"task_id": body.TaskID}))
}

// POST /api/v1/tasks/skip {"task_id": 1}
func (h *AnalysisHandler) SkipTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskID int64 `json:"task_id"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.TaskID == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("task_id is required"))
		return
	}
	if err := h.executionSvc.SkipTask(r.Context(), body.TaskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"task_id": body.TaskID}))
}

// simulateBody 在仿真请求上附带可选的建议ID，合并建议携带的再仿真参数
type simulateBody struct {
	simulation.Request
	SuggestionID int64 `json:"suggestion_id,omitempty"`
}

// POST /api/v1/simulate
// 带 suggestion_id 时，从建议的 parameters 取缺省参数，请求体显式给出的字段优先
func (h *AnalysisHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var body simulateBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if body.SuggestionID > 0 {
		if err := h.mergeSuggestionParameters(r, &body); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.Type == "" {
		writeJSON(w, http.StatusBadRequest, Fail("type is required"))
		return
	}
	result, err := h.simulator.Simulate(r.Context(), &body.Request)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

func (h *AnalysisHandler) mergeSuggestionParameters(r *http.Request, body *simulateBody) error {
	sg, err := h.suggestionsRepo.GetSuggestion(r.Context(), body.SuggestionID)
	if err != nil {
		return err
	}
	if len(sg.Parameters) == 0 {
		return nil
	}
	var params analysis.ShiftParameters
	if err := json.Unmarshal(sg.Parameters, &params); err != nil {
		h.logger.Warn("unparseable suggestion parameters",
			zap.Int64("suggestion_id", sg.ID), zap.Error(err))
		return nil
	}
	if body.Type == "" && params.ShiftPower > 0 {
		body.Type = simulation.ModePeakShift
	}
	if body.ShiftPower == 0 {
		body.ShiftPower = params.ShiftPower
	}
	if body.ShiftHours == 0 {
		body.ShiftHours = params.ShiftHours
	}
	if body.SourcePeriod == "" {
		body.SourcePeriod = params.SourcePeriod
	}
	if body.TargetPeriod == "" {
		body.TargetPeriod = params.TargetPeriod
	}
	if len(body.DeviceIDs) == 0 {
		body.DeviceIDs = params.SelectedDeviceIDs
	}
	return nil
}

// POST /api/v1/demand/analyze {"meter_point_id": 1, "months": 12}
func (h *AnalysisHandler) AnalyzeDemand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MeterPointID int64 `json:"meter_point_id"`
		Months       int   `json:"months"`
	}
	if err := readBodyJSON(r, 1<<16, &body); err != nil || body.MeterPointID == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("meter_point_id is required"))
		return
	}
	if body.Months <= 0 {
		body.Months = 12
	}

	snap, err := h.tariffSvc.LoadSnapshot(r.Context(), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.demandAnalyzer.Analyze(r.Context(), body.MeterPointID, body.Months,
		snap.Config.DemandPrice, snap.Config.OverDemandMultiplier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rec))
}

// POST /api/v1/matcher/full-sync — 点位与设备全量匹配
func (h *AnalysisHandler) MatcherFullSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.matcher.FullSync(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(report))
}
