package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AdvisoryXactLock takes a transaction-scoped advisory lock keyed by
// namespace and id. It blocks until the lock is free and is released at
// commit or rollback, so q must be a transaction.
func AdvisoryXactLock(ctx context.Context, q Querier, namespace string, id uuid.UUID) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, namespace+":"+id.String()); err != nil {
		return fmt.Errorf("advisory lock %s:%s: %w", namespace, id, err)
	}
	return nil
}
