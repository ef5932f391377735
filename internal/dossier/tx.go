package dossier

import (
	"context"
	"sync"
	"time"

	dErrors "impfportal/pkg/domain-errors"
)

// TxRunner is the transactional boundary for dossier operations. The
// function runs with a context that carries the unit of work; every store
// touched through that context (dossier, slots, appointments, audit outbox)
// commits or rolls back together. The key serializes concurrent operations on
// the same dossier.
type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Sharded mutexes give the in-memory runner per-dossier mutual exclusion
// without a global lock.
const numTxShards = 128

// defaultTxTimeout bounds one unit of work.
const defaultTxTimeout = 5 * time.Second

// MemoryTxRunner serializes units of work with sharded mutexes, keyed by the
// dossier (or person) identifier. In-memory stores apply writes immediately,
// so "transaction" here means mutual exclusion, not rollback; the service
// orders its writes so earlier steps are safe to keep when a later step
// fails.
type MemoryTxRunner struct {
	shards  [numTxShards]sync.Mutex
	timeout time.Duration
}

func NewMemoryTxRunner() *MemoryTxRunner {
	return &MemoryTxRunner{timeout: defaultTxTimeout}
}

func (t *MemoryTxRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := int(hashTxKey(key) % numTxShards)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

// hashTxKey uses FNV-1a for shard distribution.
func hashTxKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
