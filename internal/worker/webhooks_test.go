package worker

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/safar/petplace/internal/config"
	"github.com/safar/petplace/internal/models"
)

var webhookColumns = []string{
	"id", "provider", "event_id", "payload", "processed", "dead", "attempts", "last_error", "available_at", "created_at",
}

func webhookRow(id int64, attempts int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(webhookColumns).
		AddRow(id, "sandbox", "evt_1", []byte(`{"id":"evt_1","provider_ref":"ch_1","status":"paid"}`), false, false, attempts, "", now, now)
}

func newProcessor(t *testing.T, handle Handler) (*WebhookProcessor, sqlmock.Sqlmock, *observer.ObservedLogs) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	core, logs := observer.New(zap.DebugLevel)
	rules := config.WebhookRules{MaxAttempts: 3, Backoff: time.Minute}

	return NewWebhookProcessor(db, rules, 10, handle, zap.New(core)), mock, logs
}

func expectEmptyQueue(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(sqlmock.NewRows(webhookColumns))
	mock.ExpectCommit()
}

func TestRunOnceProcessesEvent(t *testing.T) {
	var seen []string
	handle := func(_ context.Context, _ *sql.DB, ev *models.WebhookEvent) error {
		seen = append(seen, ev.EventID)
		return nil
	}
	p, mock, _ := newProcessor(t, handle)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(webhookRow(1, 0))
	mock.ExpectExec("SET processed = TRUE").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectEmptyQueue(mock)

	n, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"evt_1"}, seen)
}

func TestRunOnceSchedulesRetry(t *testing.T) {
	handle := func(context.Context, *sql.DB, *models.WebhookEvent) error {
		return errors.New("payment not found")
	}
	p, mock, logs := newProcessor(t, handle)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(webhookRow(1, 0))
	mock.ExpectExec("UPDATE webhook_events").
		WithArgs(1, false, "payment not found", int64(60000), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectEmptyQueue(mock)

	n, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, logs.FilterMessage("webhook failed, will retry").Len())
}

func TestRunOnceMovesExhaustedEventToDeadLetter(t *testing.T) {
	handle := func(context.Context, *sql.DB, *models.WebhookEvent) error {
		return errors.New("still failing")
	}
	p, mock, logs := newProcessor(t, handle)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(webhookRow(1, 2))
	mock.ExpectExec("UPDATE webhook_events").
		WithArgs(3, true, "still failing", int64(60000), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectEmptyQueue(mock)

	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	dead := logs.FilterMessage("webhook moved to dead letter")
	require.Equal(t, 1, dead.Len())
	assert.Equal(t, "evt_1", dead.All()[0].ContextMap()["event_id"])
}

func TestRunOnceStopsAtBatchSize(t *testing.T) {
	handle := func(context.Context, *sql.DB, *models.WebhookEvent) error { return nil }
	p, mock, _ := newProcessor(t, handle)
	p.batchSize = 2

	for id := int64(1); id <= 2; id++ {
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(webhookRow(id, 0))
		mock.ExpectExec("SET processed = TRUE").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	n, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunOnceReportsClaimError(t *testing.T) {
	p, mock, _ := newProcessor(t, func(context.Context, *sql.DB, *models.WebhookEvent) error { return nil })

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnError(errors.New("connection refused"))
	mock.ExpectRollback()

	n, err := p.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, n)
}

func TestPaymentHandlerRejectsMalformedPayload(t *testing.T) {
	err := PaymentHandler(context.Background(), nil, &models.WebhookEvent{Payload: []byte(`{"id":"evt_1"}`)})
	assert.Error(t, err)
}

func TestSchedule(t *testing.T) {
	p, _, _ := newProcessor(t, func(context.Context, *sql.DB, *models.WebhookEvent) error { return nil })
	c := cron.New()

	_, err := p.Schedule(context.Background(), c, "not a schedule")
	assert.Error(t, err)

	id, err := p.Schedule(context.Background(), c, "@every 10s")
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)
}
