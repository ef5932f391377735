package main

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	dErrors "impfportal/pkg/domain-errors"
	"impfportal/pkg/platform/tx"
)

const defaultDossierTxTimeout = 5 * time.Second

// postgresTxRunner runs one unit of work in a database transaction. The tx is
// carried through the context, so every store touched inside fn joins it. The
// key takes a transaction-scoped advisory lock, serializing concurrent
// operations on the same dossier across processes.
type postgresTxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func newPostgresTxRunner(db *sql.DB) *postgresTxRunner {
	return &postgresTxRunner{db: db}
}

func (t *postgresTxRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultDossierTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dbTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	// The lock releases automatically at commit or rollback.
	if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", int64(lockKey(key))); err != nil {
		return err
	}

	if err := fn(tx.WithTx(ctx, dbTx)); err != nil {
		return err
	}

	return dbTx.Commit()
}

func lockKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
