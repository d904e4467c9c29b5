// Package redishold is a reservation source backed by Redis hashes. Each
// user has one hash whose fields are auction IDs and whose values are the
// amounts currently held by the user's bids in those auctions. Holds live
// outside the bank process, so several bidding front-ends can share them.
package redishold

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/xraph/bidbank/reservation"
)

// DefaultKeyPrefix namespaces hold hashes.
const DefaultKeyPrefix = "bidbank:holds:"

// ErrNegativeHold is returned by Hold for a negative amount.
var ErrNegativeHold = errors.New("redishold: negative hold amount")

var _ reservation.Source = (*Source)(nil)

// Source implements reservation.Source over Redis.
type Source struct {
	rdb    redis.Cmdable
	name   string
	prefix string
}

// Option configures a Source.
type Option func(*Source)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Source) { s.prefix = prefix }
}

// WithName overrides the source name reported to the registry.
func WithName(name string) Option {
	return func(s *Source) { s.name = name }
}

// New creates a Source using rdb.
func New(rdb redis.Cmdable, opts ...Option) *Source {
	s := &Source{
		rdb:    rdb,
		name:   "redis-holds",
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements reservation.Source.
func (s *Source) Name() string { return s.name }

// Hold sets the amount held for userID by auctionID, replacing any
// previous hold for the same auction.
func (s *Source) Hold(ctx context.Context, userID int64, auctionID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeHold, amount)
	}
	if err := s.rdb.HSet(ctx, s.key(userID), auctionID, amount).Err(); err != nil {
		return fmt.Errorf("redishold: hold user %d auction %s: %w", userID, auctionID, err)
	}
	return nil
}

// Release drops the hold of auctionID. Releasing an absent hold is a no-op.
func (s *Source) Release(ctx context.Context, userID int64, auctionID string) error {
	if err := s.rdb.HDel(ctx, s.key(userID), auctionID).Err(); err != nil {
		return fmt.Errorf("redishold: release user %d auction %s: %w", userID, auctionID, err)
	}
	return nil
}

// Holds returns every hold of userID by auction.
func (s *Source) Holds(ctx context.Context, userID int64) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redishold: holds of user %d: %w", userID, err)
	}
	out := make(map[string]int64, len(raw))
	for auction, v := range raw {
		amount, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redishold: user %d auction %s: bad amount %q: %w", userID, auction, v, err)
		}
		out[auction] = amount
	}
	return out, nil
}

// Reserved implements reservation.Source: the sum of all holds of userID.
func (s *Source) Reserved(ctx context.Context, userID int64) (int64, error) {
	vals, err := s.rdb.HVals(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redishold: reserved of user %d: %w", userID, err)
	}

	var total int64
	for _, v := range vals {
		amount, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("redishold: user %d: bad amount %q: %w", userID, v, err)
		}
		total += amount
	}
	return total, nil
}

func (s *Source) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}
