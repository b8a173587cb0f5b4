package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	retryAttempts = 3
	retryBackoff  = 50 * time.Millisecond
)

// TransactionWithRetry runs a transaction, retrying with exponential
// backoff when the database reports it is busy. Other errors are
// returned immediately.
func (db *DB) TransactionWithRetry(ctx context.Context, fn func(*sql.Tx) error) error {
	backoff := retryBackoff

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := db.Transaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusyError(err) || attempt >= retryAttempts {
			return err
		}

		if err := sleepWithContext(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database is busy") ||
		strings.Contains(message, "sqlite_busy")
}

func sleepWithContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
