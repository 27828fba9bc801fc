package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"whoop-sync/internal/webhook"
)

// maxWebhookBodySize caps inbound webhook bodies at 1 MB
const maxWebhookBodySize = 1 << 20

// WebhookHandler handles inbound WHOOP webhook deliveries
type WebhookHandler struct {
	processor *webhook.Processor
	logger    *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(processor *webhook.Processor) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    slog.Default(),
	}
}

// HandleWebhook handles POST /whoop/webhook. The body must be read raw
// before any parsing: the signature covers the exact bytes sent.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", "error", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	result := h.processor.Process(r.Context(), r.Header, body)

	writeJSON(w, result.HTTPStatus, map[string]string{"status": result.Status})
}
