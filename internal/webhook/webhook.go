// Package webhook receives Alertmanager notifications and logs every alert.
package webhook

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/vitalis-app/exporter/internal/server"
)

const maxPayloadBytes = 1 << 20

// Payload is the subset of the Alertmanager webhook body that is logged.
type Payload struct {
	Status   string  `json:"status"`
	Receiver string  `json:"receiver"`
	Alerts   []Alert `json:"alerts"`
}

// Alert is a single alert within a notification.
type Alert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	EndsAt      time.Time         `json:"endsAt"`
}

// Handler handles POST /webhook.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a webhook handler that logs to logger.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			server.RespondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"status": "error", "error": "payload too large"})
			return
		}
		h.logger.Warn("Failed to read webhook payload", zap.Error(err))
		server.RespondJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "unreadable payload"})
		return
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		h.logger.Warn("Malformed webhook payload", zap.Error(err))
		server.RespondJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "malformed JSON payload"})
		return
	}

	h.logger.Info("Alert notification received",
		zap.String("status", p.Status),
		zap.String("receiver", p.Receiver),
		zap.Int("alerts", len(p.Alerts)),
		zap.String("request_id", server.RequestID(r.Context())))
	for _, a := range p.Alerts {
		h.logger.Info("Alert",
			zap.String("alertname", a.Labels["alertname"]),
			zap.String("status", a.Status),
			zap.String("summary", a.Annotations["summary"]),
			zap.String("description", a.Annotations["description"]))
	}

	server.RespondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
