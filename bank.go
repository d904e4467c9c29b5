package bidbank

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/xraph/bidbank/account"
	"github.com/xraph/bidbank/lock"
	"github.com/xraph/bidbank/plugin"
	"github.com/xraph/bidbank/reservation"
	"github.com/xraph/bidbank/store"
)

// LevelCritical is logged when a balance change is durable but un-audited.
const LevelCritical = slog.Level(12)

// Bank is the money ledger: balance queries, reservation aggregation and
// audited balance adjustments over a pluggable store.
type Bank struct {
	store        store.Store
	reservations *reservation.Registry
	plugins      *plugin.Registry
	locker       lock.Locker
	logger       *slog.Logger
	clock        func() time.Time

	// Configuration
	migrateOnStart         bool
	batchTagging           bool
	reservationConcurrency int
}

// New creates a new Bank backed by s.
func New(s store.Store, opts ...Option) *Bank {
	b := &Bank{
		store:          s,
		plugins:        plugin.NewRegistry(),
		locker:         lock.NewKeyed(),
		logger:         slog.Default(),
		clock:          time.Now,
		migrateOnStart: true,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.reservations = reservation.NewRegistry(
		reservation.WithLogger(b.logger),
		reservation.WithConcurrency(b.reservationConcurrency),
	)

	return b
}

// Option configures a Bank instance.
type Option func(*Bank)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bank) {
		b.logger = logger
		b.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(b *Bank) {
		_ = b.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithAccountLocker replaces the per-account locker. Pass lock.Noop{} to
// run transactions on the same account without mutual exclusion.
func WithAccountLocker(l lock.Locker) Option {
	return func(b *Bank) { b.locker = l }
}

// WithReservationConcurrency bounds how many reservation sources are
// queried at once per sum. Zero means unbounded.
func WithReservationConcurrency(n int) Option {
	return func(b *Bank) { b.reservationConcurrency = n }
}

// WithBatchTagging adds a "batch_id" extra field to every record written
// by MakeTransactions.
func WithBatchTagging() Option {
	return func(b *Bank) { b.batchTagging = true }
}

// WithoutMigrate skips store migration in Start.
func WithoutMigrate() Option {
	return func(b *Bank) { b.migrateOnStart = false }
}

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bank) { b.clock = now }
}

// Start migrates the store and initializes plugins.
func (b *Bank) Start(ctx context.Context) error {
	if b.migrateOnStart {
		if err := b.store.Migrate(ctx); err != nil {
			return err
		}
	}

	b.plugins.EmitInit(ctx, b)

	b.logger.Info("bank started",
		"plugins", b.plugins.Count(),
		"migrate", b.migrateOnStart,
	)
	return nil
}

// Stop notifies plugins and closes the store.
func (b *Bank) Stop() error {
	ctx := context.Background()
	b.plugins.EmitShutdown(ctx)

	return b.store.Close()
}

// Ping checks store connectivity.
func (b *Bank) Ping(ctx context.Context) error {
	return b.store.Ping(ctx)
}

// Store returns the underlying store.
func (b *Bank) Store() store.Store { return b.store }

// Plugins returns the plugin registry.
func (b *Bank) Plugins() *plugin.Registry { return b.plugins }

// OpenAccount creates a zero-balance account for userID.
// It returns ErrAccountExists if the account is already present.
func (b *Bank) OpenAccount(ctx context.Context, userID int64) (*account.Account, error) {
	now := b.clock().UTC()
	a := &account.Account{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	b.logger.Debug("account opened", "user_id", userID)
	return a, nil
}

// ──────────────────────────────────────────────────
// Reservation sources
// ──────────────────────────────────────────────────

// RegisterReservationSource adds src to the set consulted by
// GetReservedMoney. The caller must deregister the returned handle when the
// auction that owns src concludes or is cancelled.
func (b *Bank) RegisterReservationSource(src reservation.Source) *reservation.Registration {
	reg := b.reservations.Register(src)
	b.plugins.EmitReservationSourceRegistered(context.Background(), src.Name(), reg.ID().String())
	return reg
}

// DeregisterReservationSource removes reg. Removing a handle that is not
// registered is a no-op.
func (b *Bank) DeregisterReservationSource(reg *reservation.Registration) {
	if b.reservations.Deregister(reg) {
		b.plugins.EmitReservationSourceDeregistered(context.Background(), reg.Source().Name(), reg.ID().String())
	}
}

// ReservationSources returns the names of the registered sources.
func (b *Bank) ReservationSources() []string {
	return b.reservations.Sources()
}

func accountKey(userID int64) string {
	return "account:" + strconv.FormatInt(userID, 10)
}
