package async

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Dispatch runs fn in its own goroutine, detached from the caller's
// deadline and cancellation. The caller's logger is carried over so the
// background work still logs with the request attributes. Errors and
// panics are logged under the given task name; nothing is returned to
// the caller.
func Dispatch(ctx context.Context, task string, fn func(ctx context.Context) error) {
	detached := context.Background()
	if logger := logging.From(ctx); logger != nil {
		detached = logging.With(detached, logger)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.From(detached).Error("recovered panic in background task",
					"task", task, "panic", r)
			}
		}()

		if err := fn(detached); err != nil {
			logging.From(detached).Error("background task failed",
				"task", task, "error", goerr.Unwrap(err))
		}
	}()
}
