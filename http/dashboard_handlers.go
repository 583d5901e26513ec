package http

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"loanguard/monitoring"
)

func (h *Handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("model snapshot failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "model not available")
		return
	}

	response := map[string]interface{}{
		"model":     snapshot,
		"timestamp": time.Now(),
	}
	if h.store != nil {
		if latest, err := h.store.LatestTraining(r.Context()); err == nil && latest != nil {
			response["last_training"] = latest
		}
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *Handlers) handleRetrain(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Retrain(r.Context())
	if err != nil {
		h.logger.Error("retrain failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "retrain failed")
		return
	}
	if h.metrics != nil {
		h.metrics.SetGauge(monitoring.MetricModelAccuracy, snapshot.Accuracy, nil)
	}
	respondJSON(w, http.StatusOK, snapshot)
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics collector not initialized")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.metrics.ExportPrometheus()))
}

func (h *Handlers) handleMetricSummary(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics collector not initialized")
		return
	}
	summary, err := h.metrics.GetMetricSummary(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handlers) handleHubStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.hub.Stats())
}
