package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"loanguard/approval"
	"loanguard/db"
	"loanguard/loan"
	"loanguard/monitoring"
)

// DecisionService 审批服务
type DecisionService interface {
	Decide(ctx context.Context, a loan.Applicant) (loan.Decision, error)
	DecideWithSnapshot(ctx context.Context, a loan.Applicant) (loan.Decision, approval.Snapshot, error)
	Snapshot(ctx context.Context) (approval.Snapshot, error)
	Retrain(ctx context.Context) (approval.Snapshot, error)
}

// DecisionStore 审批历史查询
type DecisionStore interface {
	RecentDecisions(ctx context.Context, limit int) ([]loan.Decision, error)
	DecisionStats(ctx context.Context) (db.DecisionStats, error)
	LatestTraining(ctx context.Context) (*db.TrainingEntry, error)
}

// Handlers 持有处理器依赖；store、hub、metrics 可为空
type Handlers struct {
	service DecisionService
	store   DecisionStore
	hub     *monitoring.DecisionHub
	metrics *monitoring.MetricsCollector
	logger  *zap.Logger
	printer *message.Printer
}

// NewHandlers 创建处理器
func NewHandlers(service DecisionService, store DecisionStore, hub *monitoring.DecisionHub, metrics *monitoring.MetricsCollector, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		service: service,
		store:   store,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
		printer: message.NewPrinter(language.MustParse("en-IN")),
	}
}

// RegisterHandlers 注册所有路由
func RegisterHandlers(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /analyze", h.handleAnalyze)

	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("GET /api/decisions", h.handleDecisions)
	mux.HandleFunc("GET /api/decisions/stats", h.handleDecisionStats)

	mux.HandleFunc("GET /api/model", h.handleModel)
	mux.HandleFunc("POST /api/model/retrain", h.handleRetrain)
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	mux.HandleFunc("GET /api/metrics/{name}", h.handleMetricSummary)
	if h.hub != nil {
		mux.Handle("GET /api/ws/decisions", h.hub)
		mux.HandleFunc("GET /api/ws/stats", h.handleHubStats)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON 输出JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
