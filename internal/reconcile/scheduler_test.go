package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/UnknownOlympus/custodian/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu    sync.Mutex
	kinds     []reconcile.Kind
	deadlines int
	err       error
}

func (f *fakeRunner) Run(ctx context.Context, kind reconcile.Kind, _ time.Time) (reconcile.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := ctx.Deadline(); ok {
		f.deadlines++
	}
	f.kinds = append(f.kinds, kind)
	return reconcile.Result{Kind: kind, Affected: 1}, f.err
}

func TestScheduler(t *testing.T) {
	t.Parallel()

	t.Run("error - invalid cron expression", func(t *testing.T) {
		t.Parallel()
		s := reconcile.NewScheduler(discardLogger(), &fakeRunner{}, "every tuesday", "", time.Minute)

		require.ErrorContains(t, s.Start(), "error scheduling overdue-sweep job")
	})

	t.Run("success - start, run now and stop", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{err: assert.AnError}
		s := reconcile.NewScheduler(discardLogger(), runner, "0 1 * * 1-5", "0 3 * * 0", time.Minute)

		require.NoError(t, s.Start())
		s.RunNow(reconcile.KindOverdueSweep)
		s.RunNow(reconcile.KindRetentionCleanup)
		s.Stop()

		runner.mu.Lock()
		defer runner.mu.Unlock()
		assert.Equal(t, []reconcile.Kind{reconcile.KindOverdueSweep, reconcile.KindRetentionCleanup}, runner.kinds)
		assert.Equal(t, 2, runner.deadlines)
	})
}
