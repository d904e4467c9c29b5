package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/bidbank/transaction"
)

// DefaultHookTimeout bounds a single hook invocation.
const DefaultHookTimeout = 5 * time.Second

// Registry manages registered plugins and dispatches events to them.
// Plugins are type-switched into per-hook slices at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                          []OnInit
	onShutdown                      []OnShutdown
	onBalanceAdjusted               []OnBalanceAdjusted
	onTransactionRecorded           []OnTransactionRecorded
	onTransactionFailed             []OnTransactionFailed
	onReservationSourceRegistered   []OnReservationSourceRegistered
	onReservationSourceDeregistered []OnReservationSourceDeregistered
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its hook interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnBalanceAdjusted); ok {
		r.onBalanceAdjusted = append(r.onBalanceAdjusted, v)
	}
	if v, ok := p.(OnTransactionRecorded); ok {
		r.onTransactionRecorded = append(r.onTransactionRecorded, v)
	}
	if v, ok := p.(OnTransactionFailed); ok {
		r.onTransactionFailed = append(r.onTransactionFailed, v)
	}
	if v, ok := p.(OnReservationSourceRegistered); ok {
		r.onReservationSourceRegistered = append(r.onReservationSourceRegistered, v)
	}
	if v, ok := p.(OnReservationSourceDeregistered); ok {
		r.onReservationSourceDeregistered = append(r.onReservationSourceDeregistered, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)
	return nil
}

func implementedInterfaces(p Plugin) []string {
	var out []string
	t := reflect.TypeOf(p)
	check := func(iface reflect.Type, name string) {
		if t.Implements(iface) {
			out = append(out, name)
		}
	}

	check(reflect.TypeFor[OnInit](), "OnInit")
	check(reflect.TypeFor[OnShutdown](), "OnShutdown")
	check(reflect.TypeFor[OnBalanceAdjusted](), "OnBalanceAdjusted")
	check(reflect.TypeFor[OnTransactionRecorded](), "OnTransactionRecorded")
	check(reflect.TypeFor[OnTransactionFailed](), "OnTransactionFailed")
	check(reflect.TypeFor[OnReservationSourceRegistered](), "OnReservationSourceRegistered")
	check(reflect.TypeFor[OnReservationSourceDeregistered](), "OnReservationSourceDeregistered")
	return out
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, bank any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, bank)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitBalanceAdjusted emits a balance adjusted event.
func (r *Registry) EmitBalanceAdjusted(ctx context.Context, userID, change, oldBalance, newBalance int64) {
	r.mu.RLock()
	plugins := r.onBalanceAdjusted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnBalanceAdjusted", func() error {
			return p.OnBalanceAdjusted(ctx, userID, change, oldBalance, newBalance)
		})
	}
}

// EmitTransactionRecorded emits a transaction recorded event.
func (r *Registry) EmitTransactionRecorded(ctx context.Context, rec *transaction.Record) {
	r.mu.RLock()
	plugins := r.onTransactionRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnTransactionRecorded", func() error {
			return p.OnTransactionRecorded(ctx, rec)
		})
	}
}

// EmitTransactionFailed emits a transaction failed event.
func (r *Registry) EmitTransactionFailed(ctx context.Context, userID, change int64, partial bool, err error) {
	r.mu.RLock()
	plugins := r.onTransactionFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnTransactionFailed", func() error {
			return p.OnTransactionFailed(ctx, userID, change, partial, err)
		})
	}
}

// EmitReservationSourceRegistered emits a source registered event.
func (r *Registry) EmitReservationSourceRegistered(ctx context.Context, source, registrationID string) {
	r.mu.RLock()
	plugins := r.onReservationSourceRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnReservationSourceRegistered", func() error {
			return p.OnReservationSourceRegistered(ctx, source, registrationID)
		})
	}
}

// EmitReservationSourceDeregistered emits a source deregistered event.
func (r *Registry) EmitReservationSourceDeregistered(ctx context.Context, source, registrationID string) {
	r.mu.RLock()
	plugins := r.onReservationSourceDeregistered
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnReservationSourceDeregistered", func() error {
			return p.OnReservationSourceDeregistered(ctx, source, registrationID)
		})
	}
}

// dispatch runs one hook under the registry timeout and logs its failure.
// Hook errors never reach the caller of the bank operation.
func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout executes fn with a timeout.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
