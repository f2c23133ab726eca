package alert

import (
	"encoding/json"
	"net/http"

	"github.com/go-logr/logr"

	"alertagent/internal/metrics"
)

// Handler receives Alertmanager and Grafana webhook payloads and feeds them to the Buffer.
type Handler struct {
	buffer *Buffer
	log    logr.Logger
}

// NewHandler creates a new Handler.
func NewHandler(buffer *Buffer, log logr.Logger) *Handler {
	return &Handler{
		buffer: buffer,
		log:    log,
	}
}

// ServeWebhook handles POST /api/v1/alerts/webhook.
// Resolved alerts are skipped; firing alerts are buffered. It responds 202
// Accepted on success.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	var payload AlertManagerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.log.Error(err, "failed to decode webhook payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	firing := 0
	for _, item := range payload.Alerts {
		if item.Status != string(StatusFiring) {
			h.log.V(1).Info("skipping non-firing alert", "status", item.Status)
			metrics.WebhookAlertsTotal.WithLabelValues("skipped").Inc()
			continue
		}

		if _, err := h.buffer.Ingest(item); err != nil {
			h.log.Error(err, "failed to ingest alert",
				"alertname", item.Labels["alertname"],
				"fingerprint", item.Fingerprint,
			)
			metrics.WebhookAlertsTotal.WithLabelValues("failed").Inc()
			http.Error(w, "failed to ingest alert", http.StatusInternalServerError)
			return
		}
		metrics.WebhookAlertsTotal.WithLabelValues("accepted").Inc()
		firing++
	}

	h.log.Info("webhook received",
		"receiver", payload.Receiver,
		"total", len(payload.Alerts),
		"firing", firing,
	)

	w.WriteHeader(http.StatusAccepted)
}
