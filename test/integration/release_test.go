// Package integration provides end-to-end tests of the completion release flow against
// PostgreSQL and MySQL, with a fake payment gateway.
package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/payouts/internal/app"
	"github.com/allisson/payouts/internal/config"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
	"github.com/allisson/payouts/internal/testutil"
	webhookDomain "github.com/allisson/payouts/internal/webhook/domain"
)

const webhookSecret = "whsec_integration"

// fakeGateway answers transfers and remembers the idempotency keys it saw.
type fakeGateway struct {
	mu       sync.Mutex
	failing  bool
	requests map[string]int
}

func (g *fakeGateway) setFailing(failing bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failing = failing
}

func (g *fakeGateway) calls(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[key]
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := r.Header.Get("Idempotency-Key")
	g.requests[key]++

	w.Header().Set("Content-Type", "application/json")
	if g.failing {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"unavailable","message":"try later"}}`))
		return
	}
	_, _ = w.Write([]byte(`{"id":"tr_` + key[:8] + `","status":"pending"}`))
}

type integrationTestContext struct {
	container *app.Container
	db        *sql.DB
	server    *httptest.Server
	gateway   *fakeGateway
	driver    string
}

func (ctx *integrationTestContext) do(t *testing.T, method, path string, body []byte, header http.Header) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, ctx.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	client := &http.Client{Timeout: 10 * time.Second}
	//nolint:gosec // controlled test environment with localhost URLs
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBody
}

func (ctx *integrationTestContext) release(t *testing.T, bountyID, hunterID, paymentRef string) (int, map[string]any) {
	t.Helper()

	body, err := json.Marshal(map[string]string{
		"bountyId":               bountyID,
		"hunterId":               hunterID,
		"paymentConfirmationRef": paymentRef,
	})
	require.NoError(t, err)

	status, respBody := ctx.do(t, http.MethodPost, "/completion-release", body, nil)
	var out map[string]any
	require.NoError(t, json.Unmarshal(respBody, &out), string(respBody))
	return status, out
}

func (ctx *integrationTestContext) webhook(t *testing.T, n webhookDomain.Notification) (int, map[string]any) {
	t.Helper()

	body, err := json.Marshal(n)
	require.NoError(t, err)

	verifier := webhookDomain.NewVerifier([]byte(webhookSecret), time.Minute, nil)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	header := http.Header{}
	header.Set(webhookDomain.TimestampHeader, ts)
	header.Set(webhookDomain.SignatureHeader, verifier.Sign(ts, body))

	status, respBody := ctx.do(t, http.MethodPost, "/completion-release/webhook", body, header)
	var out map[string]any
	require.NoError(t, json.Unmarshal(respBody, &out), string(respBody))
	return status, out
}

func setupIntegrationTest(t *testing.T, driver string) *integrationTestContext {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := testutil.OpenTestDB(t, driver)

	gw := &fakeGateway{requests: make(map[string]int)}
	gatewayServer := httptest.NewServer(gw)
	t.Cleanup(gatewayServer.Close)

	cfg := &config.Config{
		DBDriver:                 driver,
		DBConnectionString:       testutil.DSN(driver),
		DBMaxOpenConnections:     10,
		DBMaxIdleConnections:     5,
		DBConnMaxLifetime:        time.Hour,
		ServerHost:               "localhost",
		ServerPort:               8080,
		LogLevel:                 "error",
		GatewayBaseURL:           gatewayServer.URL,
		GatewayAPIKey:            "sk_test",
		GatewayTimeout:           5 * time.Second,
		WebhookSecret:            webhookSecret,
		WebhookTolerance:         5 * time.Minute,
		ReleaseDefaultFeePercent: "10",
		ReleasePlatformAccountID: "platform",
		ReleaseCurrency:          "USD",
		OutboxInterval:           time.Second,
		OutboxBatchSize:          10,
		OutboxMaxAttempts:        5,
		OutboxBackoffBase:        time.Millisecond,
		OutboxBackoffCap:         time.Millisecond,
		ReconciliationInterval:   time.Minute,
		ReconciliationStuckAfter: time.Hour,
	}

	container := app.NewContainer(cfg)
	server, err := container.HTTPServer()
	require.NoError(t, err)

	httpServer := httptest.NewServer(server.GetHandler())
	t.Cleanup(func() {
		httpServer.Close()
		_ = container.Shutdown(context.Background())
	})

	return &integrationTestContext{
		container: container,
		db:        db,
		server:    httpServer,
		gateway:   gw,
		driver:    driver,
	}
}

func seedBounty(t *testing.T, ctx *integrationTestContext, bountyID, hunterID string, amount int64) {
	t.Helper()
	bounty := testutil.Bounty{ID: bountyID, HunterID: hunterID, Amount: amount}
	testutil.SeedBounty(t, ctx.db, ctx.driver, bounty)
	testutil.SeedPayoutAccount(t, ctx.db, ctx.driver, hunterID, "acct_"+hunterID)
	testutil.SeedEscrow(t, ctx.db, ctx.driver, bounty, "poster-1", "pi_"+bountyID)
}

func TestIntegration_ReleaseFlow(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql"} {
		t.Run(driver, func(t *testing.T) {
			ctx := setupIntegrationTest(t, driver)

			t.Run("completes synchronously and rejects a second release", func(t *testing.T) {
				seedBounty(t, ctx, "b-sync", "h-sync", 5000)

				status, body := ctx.release(t, "b-sync", "h-sync", "pi_b-sync")
				require.Equal(t, http.StatusOK, status, body)
				assert.Equal(t, "completed", body["status"])
				assert.Equal(t, float64(4500), body["releaseAmount"])
				assert.Equal(t, float64(500), body["feeAmount"])

				status, _ = ctx.release(t, "b-sync", "h-sync", "pi_b-sync")
				assert.Equal(t, http.StatusConflict, status)

				key := ledgerDomain.IdempotencyKey("b-sync", ledgerDomain.KindRelease)
				assert.Equal(t, 1, ctx.gateway.calls(key))

				status, statusBody := ctx.do(t, http.MethodGet, "/completion-release/b-sync/status", nil, nil)
				require.Equal(t, http.StatusOK, status)
				var summary map[string]any
				require.NoError(t, json.Unmarshal(statusBody, &summary))
				assert.Equal(t, true, summary["settled"])
				assert.Equal(t, float64(0), summary["drift"])
			})

			t.Run("defers to the outbox and settles from a webhook", func(t *testing.T) {
				seedBounty(t, ctx, "b-async", "h-async", 8000)
				ctx.gateway.setFailing(true)
				defer ctx.gateway.setFailing(false)

				status, body := ctx.release(t, "b-async", "h-async", "pi_b-async")
				require.Equal(t, http.StatusAccepted, status, body)
				assert.Equal(t, "pending", body["status"])

				key := ledgerDomain.IdempotencyKey("b-async", ledgerDomain.KindRelease)
				paid := webhookDomain.Notification{
					ID:             "evt_paid_1",
					Type:           webhookDomain.NotificationTypeTransferPaid,
					TransferID:     "tr_async",
					IdempotencyKey: key,
					CreatedAt:      time.Now().UTC(),
				}

				status, out := ctx.webhook(t, paid)
				require.Equal(t, http.StatusOK, status)
				assert.Equal(t, string(webhookDomain.OutcomeCompleted), out["status"])

				status, out = ctx.webhook(t, paid)
				require.Equal(t, http.StatusOK, status)
				assert.Equal(t, string(webhookDomain.OutcomeAlreadyFinal), out["status"])

				// The settled release is not retried by the worker.
				worker, err := ctx.container.OutboxUseCase()
				require.NoError(t, err)
				require.NoError(t, worker.ProcessEvents(context.Background()))
				assert.Equal(t, 1, ctx.gateway.calls(key))
				assert.Equal(t, "completed", testutil.OutboxStatus(t, ctx.db, ctx.driver, key))
			})

			t.Run("reconciliation finds no drift", func(t *testing.T) {
				reconciler, err := ctx.container.ReconciliationUseCase()
				require.NoError(t, err)

				report, err := reconciler.Run(context.Background())
				require.NoError(t, err)
				assert.Empty(t, report.Drifts)
				assert.Empty(t, report.Stuck)
			})
		})
	}
}

func TestIntegration_WebhookRejectsBadSignature(t *testing.T) {
	ctx := setupIntegrationTest(t, "postgres")

	header := http.Header{}
	header.Set(webhookDomain.TimestampHeader, strconv.FormatInt(time.Now().Unix(), 10))
	header.Set(webhookDomain.SignatureHeader, "deadbeef")

	status, _ := ctx.do(t, http.MethodPost, "/completion-release/webhook", []byte(`{"id":"evt_1"}`), header)
	assert.Equal(t, http.StatusUnauthorized, status)
}
