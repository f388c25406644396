// Package http provides the payment gateway webhook endpoint.
package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/payouts/internal/errors"
	"github.com/allisson/payouts/internal/httputil"
	webhookDomain "github.com/allisson/payouts/internal/webhook/domain"
	webhookUseCase "github.com/allisson/payouts/internal/webhook/usecase"
)

const maxBodyBytes = 1 << 20

// WebhookResponse acknowledges a delivery.
type WebhookResponse struct {
	Status string `json:"status"`
}

// WebhookHandler authenticates and ingests gateway notifications.
type WebhookHandler struct {
	verifier *webhookDomain.Verifier
	useCase  webhookUseCase.WebhookUseCase
	logger   *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(
	verifier *webhookDomain.Verifier,
	useCase webhookUseCase.WebhookUseCase,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		useCase:  useCase,
		logger:   logger,
	}
}

// IngestHandler receives a gateway notification.
// POST /completion-release/webhook
// Returns 401 when the signature does not verify. Once authenticated the delivery is always
// acknowledged with 200, except for storage failures, which return 500 so the gateway redelivers.
func (h *WebhookHandler) IngestHandler(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	err = h.verifier.Verify(
		c.GetHeader(webhookDomain.TimestampHeader),
		c.GetHeader(webhookDomain.SignatureHeader),
		body,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	var notification webhookDomain.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		h.logger.Warn("discarding undecodable webhook", slog.Any("error", err))
		c.JSON(http.StatusOK, WebhookResponse{Status: "ignored"})
		return
	}

	outcome, err := h.useCase.Ingest(c.Request.Context(), &notification)
	if apperrors.Is(err, apperrors.ErrInvalidInput) {
		h.logger.Warn("discarding invalid webhook",
			slog.String("delivery_id", notification.ID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusOK, WebhookResponse{Status: "ignored"})
		return
	}
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, WebhookResponse{Status: string(outcome)})
}
