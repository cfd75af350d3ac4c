// Package scriptverify provides the fixed-size worker pool the
// validator uses to check a block's script pairs in parallel, then
// wait on a barrier before deciding the block's fate. Grounded on the
// teacher's postgres.go writer-goroutine shutdown pattern (writerWg,
// a sync.WaitGroup used as a barrier across several worker
// goroutines), adapted here from a fire-and-forget shutdown barrier
// into a per-batch barrier: the pool is long-lived, but every
// ConnectBlock call waits for its own batch to fully drain before
// continuing.
package scriptverify

import (
	"context"
	"sync"
)

// TxContext carries whatever the verifier needs about the spending
// transaction beyond the two scripts themselves (e.g. sighash
// material). This core does not implement a script interpreter; it
// only defines the seam an external one plugs into.
type TxContext struct {
	TxHash  [32]byte
	InIndex int
	Value   int64
}

// Verifier is the external script-interpreter seam (spec §6 "Script
// verifier"). This core never implements one itself (Non-goal); it
// only defines and drives the interface.
type Verifier func(scriptSig, scriptPubKey []byte, flags uint32, ctx TxContext) error

// Task is one script pair queued for verification.
type Task struct {
	ScriptSig    []byte
	ScriptPubKey []byte
	Flags        uint32
	Ctx          TxContext
}

// Pool verifies batches of Tasks with bounded concurrency, blocking
// the submitter on a barrier until every dispatched task of the batch
// has completed; a failure does not cut the batch short.
type Pool struct {
	verify  Verifier
	workers int

	shutdown chan struct{}
}

// NewPool returns a pool around verify that runs at most n checks at
// once. It starts no goroutines itself: Verify starts one per task,
// bounded by n. After Shutdown, Verify dispatches no further tasks and
// returns context.Canceled; checks already running finish their
// current call to verify.
func NewPool(n int, verify Verifier) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{
		verify:   verify,
		workers:  n,
		shutdown: make(chan struct{}),
	}
}

// Shutdown signals the pool to stop accepting new batches. It does not
// wait for a batch in flight; callers that started one should let
// Verify return before treating the pool as fully stopped.
func (p *Pool) Shutdown() {
	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}
}

// Verify runs every task in tasks across the pool's workers and blocks
// until all complete or ctx is canceled. It returns the first error
// encountered, if any; a failing batch still lets every already-queued
// task finish (no partial cleanup is needed since checks have no side
// effects on failure, per spec §9 Design Notes).
func (p *Pool) Verify(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	errCh := make(chan error, len(tasks))

	for i := range tasks {
		select {
		case <-p.shutdown:
			return context.Canceled
		case <-ctx.Done():
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := p.verify(t.ScriptSig, t.ScriptPubKey, t.Flags, t.Ctx); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}(tasks[i])
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}
