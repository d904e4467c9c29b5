package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/bidbank/id"
)

// Registration is the handle returned by Register. Deregistration is by
// handle identity, so the same Source may be registered more than once.
type Registration struct {
	id     id.ReservationID
	source Source
}

// ID returns the registration's identifier.
func (r *Registration) ID() id.ReservationID { return r.id }

// Source returns the registered source.
func (r *Registration) Source() Source { return r.source }

// Registry holds the dynamic set of reservation sources.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[*Registration]struct{}

	concurrency int
	logger      *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithConcurrency bounds how many sources SumReserved invokes at once.
// Zero or negative means unbounded.
func WithConcurrency(n int) Option {
	return func(r *Registry) { r.concurrency = n }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[*Registration]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds src and returns its handle.
func (r *Registry) Register(src Source) *Registration {
	reg := &Registration{id: id.NewReservationID(), source: src}

	r.mu.Lock()
	r.entries[reg] = struct{}{}
	n := len(r.entries)
	r.mu.Unlock()

	r.logger.Debug("reservation source registered",
		"source", src.Name(),
		"registration_id", reg.id.String(),
		"sources", n,
	)
	return reg
}

// Deregister removes reg. Removing a nil, unknown or already removed handle
// is a no-op. It reports whether anything was removed.
func (r *Registry) Deregister(reg *Registration) bool {
	if reg == nil {
		return false
	}

	r.mu.Lock()
	_, ok := r.entries[reg]
	delete(r.entries, reg)
	n := len(r.entries)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("reservation source deregistered",
			"source", reg.source.Name(),
			"registration_id", reg.id.String(),
			"sources", n,
		)
	}
	return ok
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sources returns the names of the registered sources.
func (r *Registry) Sources() []string {
	snap := r.snapshot()
	names := make([]string, len(snap))
	for i, reg := range snap {
		names[i] = reg.source.Name()
	}
	return names
}

// SumReserved invokes every source registered at call time for userID and
// returns the total. Sources registered or removed while the sum runs do
// not affect it. The first failing source aborts the sum with a
// *SourceError; a failure is never counted as zero.
func (r *Registry) SumReserved(ctx context.Context, userID int64) (int64, error) {
	snap := r.snapshot()
	if len(snap) == 0 {
		return 0, nil
	}

	amounts := make([]int64, len(snap))
	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}

	for i, reg := range snap {
		g.Go(func() error {
			amount, err := reg.source.Reserved(gctx, userID)
			if err != nil {
				return &SourceError{Source: reg.source.Name(), UserID: userID, Err: err}
			}
			if amount < 0 {
				return &SourceError{
					Source: reg.source.Name(),
					UserID: userID,
					Err:    fmt.Errorf("%w: %d", ErrNegativeReservation, amount),
				}
			}
			amounts[i] = amount
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, a := range amounts {
		total += a
	}
	return total, nil
}

func (r *Registry) snapshot() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Registration, 0, len(r.entries))
	for reg := range r.entries {
		out = append(out, reg)
	}
	return out
}
