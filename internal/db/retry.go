package db

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a write attempt that may be retried.
type Operation func() error

// RetryPredicate reports whether a failed attempt should be retried.
type RetryPredicate func(err error) bool

const DefaultMaxRetries = 3

// Try runs op, retrying duplicate key failures up to DefaultMaxRetries times.
// Inserts generate a fresh id per attempt, so a collision resolves on retry.
func Try(ctx context.Context, op Operation) error {
	return WithRetries(ctx, op, DefaultMaxRetries, IsDuplicateKeyError)
}

// WithRetries runs op once plus up to maxRetries retries while shouldRetry holds.
// Any other error is returned immediately.
func WithRetries(ctx context.Context, op Operation, maxRetries int, shouldRetry RetryPredicate) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !shouldRetry(err) {
			break
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying store write")
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(50*(attempt+1)) * time.Millisecond):
		}
	}
	return err
}

// IsDuplicateKeyError reports whether err carries MongoDB error code 11000,
// or is the memory store's duplicate id error.
func IsDuplicateKeyError(err error) bool {
	if errors.Is(err, errDuplicateID) {
		return true
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
