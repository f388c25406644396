// Package httputil writes the JSON error envelope shared by the release and webhook handlers.
package httputil

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/payouts/internal/errors"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	// Code carries the gateway's own failure code when a transfer was refused.
	Code string `json:"code,omitempty"`
}

// codedError is implemented by gateway errors that carry the provider's failure code.
type codedError interface {
	error
	ErrorCode() string
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty means the error text itself is safe to return
}

// First match wins, so wrapped sentinels resolve to the outermost known kind.
var errorMappings = []errorMapping{
	{apperrors.ErrNotFound, http.StatusNotFound, "not_found", "The requested resource was not found"},
	{apperrors.ErrConflict, http.StatusConflict, "conflict", "A release for this bounty was already accepted"},
	{apperrors.ErrInvalidInput, http.StatusUnprocessableEntity, "invalid_input", ""},
	{apperrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "Signature verification failed"},
	{apperrors.ErrUpstream, http.StatusBadGateway, "upstream_error", ""},
}

// HandleErrorGin answers with the status mapped from err's sentinel, or a generic 500 that does
// not leak internals.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: "internal_error", Message: "An internal error occurred"}

	for _, m := range errorMappings {
		if !apperrors.Is(err, m.target) {
			continue
		}
		status = m.status
		resp = ErrorResponse{Error: m.code, Message: m.message}
		if resp.Message == "" {
			resp.Message = err.Error()
		}
		break
	}

	var coded codedError
	if status == http.StatusBadGateway && apperrors.As(err, &coded) {
		resp.Code = coded.ErrorCode()
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logFailure(c, logger, level, "request failed", err,
		slog.Int("status_code", status), slog.String("error_code", resp.Error))

	c.JSON(status, resp)
}

// HandleBadRequestGin answers 400 for bodies or parameters that could not be decoded.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	logFailure(c, logger, slog.LevelWarn, "bad request", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
}

// HandleValidationErrorGin answers 422 for requests that decoded but broke a rule.
func HandleValidationErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	logFailure(c, logger, slog.LevelWarn, "validation failed", err)
	c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "validation_error", Message: err.Error()})
}

func logFailure(c *gin.Context, logger *slog.Logger, level slog.Level, msg string, err error, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	attrs = append(attrs, slog.Any("error", err))
	if id := requestid.Get(c); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	ctx := context.Background()
	if c.Request != nil {
		ctx = c.Request.Context()
	}
	logger.LogAttrs(ctx, level, msg, attrs...)
}
