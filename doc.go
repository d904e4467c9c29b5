// Package bidbank is the money ledger of an auction platform.
//
// bidbank is a library, not a service. It keeps one stored balance per user,
// appends an immutable record for every balance change, and derives the
// money a user can still bid with from pluggable reservation sources:
//
//   - Total money is the stored balance.
//   - Reserved money is the sum over all registered reservation sources,
//     such as open bids held by an auction engine.
//   - Available money is total minus reserved. It may be negative.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/bidbank"
//	    "github.com/xraph/bidbank/store/factory"
//	)
//
//	s, err := factory.Open(ctx, factory.Config{Type: "postgres", DSN: dsn})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	b := bidbank.New(s, bidbank.WithLogger(logger))
//	if err := b.Start(ctx); err != nil { // migrates the store
//	    log.Fatal(err)
//	}
//	defer b.Stop()
//
//	rec, err := b.MakeTransaction(ctx, userID, -250, transaction.Fields{
//	    "auction_id": "a-981",
//	})
//
// # Reservations
//
// Anything that holds money on behalf of a user implements
// reservation.Source and is registered on the bank:
//
//	reg := b.RegisterReservationSource(reservation.SourceFunc("bids", openBidTotal))
//	defer b.DeregisterReservationSource(reg)
//
// Sources are queried concurrently on every reserved or available query.
// A failing source fails the query; it is never counted as zero.
//
// # Transactions
//
// MakeTransaction validates the extra fields, adjusts the stored balance and
// appends a record carrying the balance before and after the change.
// Transactions on the same user are serialized. If the balance was adjusted
// but the record could not be written, the returned error is a
// *PartialTransactionError and the event is logged at LevelCritical; the
// adjustment is not rolled back.
//
// MakeTransactions applies a batch in order and stops at the first failure,
// returning the records that were completed and a *BatchError.
//
// # Storage
//
// Backends implement store.Store. Memory, PostgreSQL, SQLite and MongoDB
// backends are included; store/factory selects one from configuration.
//
// # Integration
//
//   - plugin: lifecycle and transaction hooks
//   - observability: Prometheus metrics
//   - audit_hook: audit trail events
//   - kafka_hook: transaction events on Kafka
//   - reservation/redishold: bid holds kept in Redis
//   - extension: Forge extension
package bidbank
