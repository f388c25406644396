package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ClientConfig configures the HTTP gateway client.
type ClientConfig struct {
	BaseURL            string
	APIKey             string
	Timeout            time.Duration
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Client talks to the gateway's REST API.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a gateway client. A nil httpClient gets one with the configured timeout.
func NewClient(config ClientConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	limit := rate.Inf
	if config.RateLimitPerSecond > 0 {
		limit = rate.Limit(config.RateLimitPerSecond)
	}
	burst := config.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

type createTransferRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Destination    string            `json:"destination"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type transferResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateTransfer posts a transfer. Timeouts, network failures, 408, 429 and 5xx responses are
// retryable; any other non-2xx response is permanent.
func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, NewRetryableError("rate_limited", "client-side rate limit wait aborted", err)
	}

	body, err := json.Marshal(createTransferRequest{
		Amount:         req.Amount,
		Currency:       req.Currency,
		Destination:    req.DestinationRef,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, NewPermanentError("invalid_request", err.Error())
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/v1/transfers"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewPermanentError("invalid_request", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		code := "network_error"
		if isTimeout(err) {
			code = "timeout"
		}
		return nil, NewRetryableError(code, "transfer request failed", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewRetryableError("network_error", "failed to read transfer response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var tr transferResponse
		if err := json.Unmarshal(respBody, &tr); err != nil || tr.ID == "" {
			// The transfer may exist; retrying with the same key returns it.
			return nil, NewRetryableError("malformed_response", "transfer response missing id", err)
		}
		return &Transfer{ID: tr.ID, Status: tr.Status}, nil
	}

	te := classifyStatus(resp.StatusCode, respBody)
	if c.logger != nil {
		c.logger.Warn("gateway transfer rejected",
			slog.Int("status_code", resp.StatusCode),
			slog.String("kind", string(te.Kind)),
			slog.String("code", te.Code),
			slog.String("idempotency_key", req.IdempotencyKey),
		)
	}
	return nil, te
}

func classifyStatus(statusCode int, body []byte) *TransferError {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	code := er.Error.Code
	if code == "" {
		code = fmt.Sprintf("http_%d", statusCode)
	}
	message := er.Error.Message
	if message == "" {
		message = http.StatusText(statusCode)
	}

	kind := ErrorKindPermanent
	if statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout {
		kind = ErrorKindRetryable
	}

	return &TransferError{Kind: kind, Code: code, Message: message, StatusCode: statusCode}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
