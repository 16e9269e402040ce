package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// withRetry reruns op while it fails with ErrTransactionConflict, at most
// maxAttempts times. Any other error is returned as is.
func (s *LedgerService) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, domain.ErrTransactionConflict) {
			return err
		}
		if attempt == s.maxAttempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * s.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry abandoned after %d attempts: %w", attempt, errors.Join(err, ctx.Err()))
		case <-timer.C:
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", s.maxAttempts, err)
}
