package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bidbank/plugin"
	"github.com/xraph/bidbank/transaction"
)

type recorder struct {
	name string

	mu     sync.Mutex
	events []string
	err    error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) add(evt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnInit(context.Context, any) error { return r.add("init") }
func (r *recorder) OnShutdown(context.Context) error  { return r.add("shutdown") }

func (r *recorder) OnTransactionRecorded(_ context.Context, rec *transaction.Record) error {
	return r.add("recorded")
}

func (r *recorder) OnTransactionFailed(_ context.Context, _, _ int64, partial bool, _ error) error {
	if partial {
		return r.add("partial")
	}
	return r.add("failed")
}

// onlyName implements no hooks.
type onlyName struct{}

func (onlyName) Name() string { return "bare" }

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnShutdown(ctx context.Context) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func quietRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterAndLookup(t *testing.T) {
	r := quietRegistry()
	require.NoError(t, r.Register(&recorder{name: "a"}))
	require.NoError(t, r.Register(onlyName{}))

	assert.Equal(t, 2, r.Count())
	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 2)
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := quietRegistry()
	require.NoError(t, r.Register(&recorder{name: "a"}))
	assert.Error(t, r.Register(&recorder{name: "a"}))
	assert.Equal(t, 1, r.Count())
}

func TestEmitDispatchesToImplementers(t *testing.T) {
	r := quietRegistry()
	p := &recorder{name: "a"}
	require.NoError(t, r.Register(p))
	require.NoError(t, r.Register(onlyName{}))

	ctx := context.Background()
	r.EmitInit(ctx, nil)
	r.EmitTransactionRecorded(ctx, &transaction.Record{UserID: 1})
	r.EmitTransactionFailed(ctx, 1, 5, false, errors.New("x"))
	r.EmitTransactionFailed(ctx, 1, 5, true, errors.New("x"))
	r.EmitBalanceAdjusted(ctx, 1, 5, 0, 5) // not implemented by recorder
	r.EmitShutdown(ctx)

	assert.Equal(t, []string{"init", "recorded", "failed", "partial", "shutdown"}, p.seen())
}

func TestHookErrorsAreSwallowed(t *testing.T) {
	r := quietRegistry()
	failing := &recorder{name: "failing", err: errors.New("boom")}
	healthy := &recorder{name: "healthy"}
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(healthy))

	r.EmitTransactionRecorded(context.Background(), &transaction.Record{})

	assert.Equal(t, []string{"recorded"}, failing.seen())
	assert.Equal(t, []string{"recorded"}, healthy.seen())
}

func TestHookTimeout(t *testing.T) {
	r := quietRegistry().WithTimeout(10 * time.Millisecond)
	require.NoError(t, r.Register(slowPlugin{}))

	start := time.Now()
	r.EmitShutdown(context.Background())
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
