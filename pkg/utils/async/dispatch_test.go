package async_test

import (
	"context"
	"testing"
	"time"

	"github.com/doppel-lab/keryx/pkg/utils/async"
	"github.com/m-mizutani/gt"
)

func TestDispatch(t *testing.T) {
	t.Run("runs detached from the caller's cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done := make(chan error, 1)
		async.Dispatch(ctx, "detach-check", func(ctx context.Context) error {
			done <- ctx.Err()
			return nil
		})

		select {
		case err := <-done:
			gt.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("background task did not run")
		}
	})

	t.Run("recovers a panicking task", func(t *testing.T) {
		done := make(chan struct{})
		async.Dispatch(context.Background(), "panic-check", func(ctx context.Context) error {
			defer close(done)
			panic("boom")
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("background task did not run")
		}
	})
}
