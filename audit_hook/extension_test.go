package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bidbank"
	audithook "github.com/xraph/bidbank/audit_hook"
	"github.com/xraph/bidbank/reservation"
	"github.com/xraph/bidbank/store/memory"
	"github.com/xraph/bidbank/transaction"
)

type captured struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (c *captured) Record(_ context.Context, evt *audithook.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captured) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Action
	}
	return out
}

func (c *captured) find(action string) *audithook.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Action == action {
			return e
		}
	}
	return nil
}

func newBank(t *testing.T, ext *audithook.Extension) (*bidbank.Bank, *memory.Store) {
	t.Helper()
	s := memory.New()
	s.Seed(map[int64]int64{1: 100})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bidbank.New(s, bidbank.WithLogger(logger), bidbank.WithPlugin(ext))
	require.NoError(t, b.Start(context.Background()))
	return b, s
}

func TestAuditsTransactionLifecycle(t *testing.T) {
	rec := &captured{}
	b, _ := newBank(t, audithook.New(rec))

	reg := b.RegisterReservationSource(reservation.Fixed("auction-5", 10))
	_, err := b.MakeTransaction(context.Background(), 1, -30, transaction.Fields{"auction_id": 5})
	require.NoError(t, err)
	b.DeregisterReservationSource(reg)

	assert.Equal(t, []string{
		audithook.ActionReservationSourceRegistered,
		audithook.ActionBalanceAdjusted,
		audithook.ActionTransactionRecorded,
		audithook.ActionReservationSourceDeregistered,
	}, rec.actions())

	evt := rec.find(audithook.ActionTransactionRecorded)
	require.NotNil(t, evt)
	assert.Equal(t, audithook.ResourceTransaction, evt.Resource)
	assert.Equal(t, int64(100), evt.Metadata["old_balance"])
	assert.Equal(t, int64(70), evt.Metadata["new_balance"])
	assert.Equal(t, int64(5), evt.Metadata["extra.auction_id"])
}

func TestAuditsFailures(t *testing.T) {
	rec := &captured{}
	b, _ := newBank(t, audithook.New(rec, audithook.WithoutBalanceEvents()))

	_, err := b.MakeTransaction(context.Background(), 404, 1, nil)
	require.Error(t, err)

	evt := rec.find(audithook.ActionTransactionFailed)
	require.NotNil(t, evt)
	assert.Equal(t, audithook.OutcomeFailure, evt.Outcome)
	assert.Equal(t, "404", evt.ResourceID)
	assert.NotEmpty(t, evt.Reason)
}

func TestPartialIsCritical(t *testing.T) {
	rec := &captured{}
	ext := audithook.New(rec)

	require.NoError(t, ext.OnTransactionFailed(context.Background(), 1, 5, true, errors.New("log down")))

	evt := rec.find(audithook.ActionTransactionPartial)
	require.NotNil(t, evt)
	assert.Equal(t, audithook.SeverityCritical, evt.Severity)
	assert.Equal(t, audithook.OutcomePartial, evt.Outcome)
	assert.Equal(t, "log down", evt.Metadata["error"])
}

func TestEnabledActionsFilter(t *testing.T) {
	rec := &captured{}
	b, _ := newBank(t, audithook.New(rec, audithook.WithEnabledActions(audithook.ActionTransactionRecorded)))

	b.RegisterReservationSource(reservation.Fixed("x", 1))
	_, err := b.MakeTransaction(context.Background(), 1, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{audithook.ActionTransactionRecorded}, rec.actions())
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("audit sink down")
	})
	ext := audithook.New(failing, audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	assert.NoError(t, ext.OnBalanceAdjusted(context.Background(), 1, 1, 0, 1))
}
