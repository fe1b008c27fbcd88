package safe

import (
	"context"
	"io"
	"log/slog"

	"github.com/doppel-lab/keryx/pkg/utils/logging"
)

// Close closes an io.Closer and logs the error instead of returning it.
// Nil closers are ignored, so it is safe to defer against values that
// may not have been initialized.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", slog.Any("error", err))
	}
}
