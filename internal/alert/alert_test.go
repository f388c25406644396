package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordAmount(ctx context.Context, domain, kind, currency string, minorUnits int64) {
	m.Called(ctx, domain, kind, currency, minorUnits)
}

func TestLogAlerter_Alert(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	bm := &mockBusinessMetrics{}
	ctx := context.Background()

	bm.On("RecordOperation", ctx, "alert", "ledger_drift", "raised").Once()

	alerter := NewLogAlerter(logger, bm)
	alerter.Alert(ctx, Alert{
		Kind:     KindLedgerDrift,
		BountyID: "bounty-1",
		Message:  "ledger drift detected",
		Attrs:    []slog.Attr{slog.Int64("drift", 1000)},
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "ledger drift detected", record["msg"])
	assert.Equal(t, "ledger_drift", record["alert_kind"])
	assert.Equal(t, "bounty-1", record["bounty_id"])
	assert.Equal(t, float64(1000), record["drift"])
	bm.AssertExpectations(t)
}

func TestLogAlerter_NilDependencies(t *testing.T) {
	alerter := NewLogAlerter(nil, nil)
	assert.NotPanics(t, func() {
		alerter.Alert(context.Background(), Alert{Kind: KindOutboxDead, Message: "dead"})
	})
}
