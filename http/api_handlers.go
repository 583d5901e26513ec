// Package http 提供API处理器
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"loanguard/loan"
	"loanguard/ml"
	"loanguard/monitoring"
)

// ============ 审批处理器 ============

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var applicant loan.Applicant
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&applicant); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	decision, err := h.service.Decide(r.Context(), applicant)
	if err != nil {
		var verr *loan.ValidationError
		switch {
		case errors.As(err, &verr):
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":  "invalid applicant",
				"fields": verr.Fields,
			})
		case errors.Is(err, ml.ErrUnknownLabel):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("decision failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}

	h.recordDecision(decision)
	if h.metrics != nil {
		h.metrics.ObserveHistogram(monitoring.MetricDecisionLatency, float64(time.Since(start).Microseconds())/1000, nil)
	}
	respondJSON(w, http.StatusOK, decision)
}

func (h *Handlers) recordDecision(d loan.Decision) {
	if h.metrics == nil {
		return
	}
	outcome := "rejected"
	if d.Approved {
		outcome = "approved"
	}
	h.metrics.IncrCounter(monitoring.MetricDecisionsTotal, 1, map[string]string{"outcome": outcome})
}

// ============ 审批历史处理器 ============

func (h *Handlers) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "decision store not configured")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 || l > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = l
	}

	decisions, err := h.store.RecentDecisions(r.Context(), limit)
	if err != nil {
		h.logger.Error("query decisions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query decisions failed")
		return
	}
	if decisions == nil {
		decisions = []loan.Decision{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
		"timestamp": time.Now(),
	})
}

func (h *Handlers) handleDecisionStats(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "decision store not configured")
		return
	}

	stats, err := h.store.DecisionStats(r.Context())
	if err != nil {
		h.logger.Error("query decision stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query decision stats failed")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
