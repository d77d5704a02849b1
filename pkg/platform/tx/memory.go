package tx

import (
	"context"
	"sync"

	dErrors "lineage/pkg/domain-errors"
)

// Checkpointer is implemented by in-memory stores that can snapshot their
// state and restore it when a unit of work fails.
type Checkpointer interface {
	Checkpoint() (restore func())
}

type memoryTxKey struct{}

// MemoryRunner serializes units of work over in-memory stores. A failed unit
// restores every participant to the state it had before fn ran.
type MemoryRunner struct {
	mu           sync.Mutex
	participants []Checkpointer
}

func NewMemoryRunner(participants ...Checkpointer) *MemoryRunner {
	return &MemoryRunner{participants: participants}
}

// Join adds stores created after the runner.
func (r *MemoryRunner) Join(participants ...Checkpointer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = append(r.participants, participants...)
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	restores := make([]func(), 0, len(r.participants))
	for _, p := range r.participants {
		restores = append(restores, p.Checkpoint())
	}

	if err := fn(context.WithValue(ctx, memoryTxKey{}, struct{}{})); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return err
	}
	return nil
}
