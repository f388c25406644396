// Package http provides the HTTP handlers for completion releases.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/payouts/internal/httputil"
	"github.com/allisson/payouts/internal/release/http/dto"
	releaseUseCase "github.com/allisson/payouts/internal/release/usecase"
	customValidation "github.com/allisson/payouts/internal/validation"
)

// ReleaseHandler serves the completion release endpoints.
type ReleaseHandler struct {
	releaseUseCase releaseUseCase.ReleaseUseCase
	logger         *slog.Logger
}

// NewReleaseHandler creates a new release handler.
func NewReleaseHandler(releaseUseCase releaseUseCase.ReleaseUseCase, logger *slog.Logger) *ReleaseHandler {
	return &ReleaseHandler{
		releaseUseCase: releaseUseCase,
		logger:         logger,
	}
}

// ReleaseHandler pays a completed bounty's escrow out to its hunter.
// POST /completion-release
// Returns 200 when the transfer settled, 202 when it was deferred to the outbox.
func (h *ReleaseHandler) ReleaseHandler(c *gin.Context) {
	var req dto.ReleaseRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	result, err := h.releaseUseCase.ReleaseFunds(c.Request.Context(), req.ToDomain())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	statusCode := http.StatusOK
	if result.Pending {
		statusCode = http.StatusAccepted
	}
	c.JSON(statusCode, dto.MapResultToResponse(result))
}

// StatusHandler returns the ledger summary of a bounty.
// GET /completion-release/:bountyId/status
func (h *ReleaseHandler) StatusHandler(c *gin.Context) {
	bountyID := c.Param("bountyId")
	if err := customValidation.Identifier.Validate(bountyID); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	status, err := h.releaseUseCase.GetStatus(c.Request.Context(), bountyID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapStatusToResponse(status))
}
