package errutil

import (
	"context"
	"errors"
	"net/http"

	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
)

// Handle logs the error with a message and returns it unchanged so the
// caller can keep propagating it. All errors, especially 5xx errors,
// are properly logged this way.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	logger := logging.From(ctx)

	// Extract goerr values for structured logging
	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error())
	}

	capture(err)

	return err
}

// HandleHTTP logs the error and writes an appropriate HTTP error response.
// Client errors are not reported to Sentry, only logged.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error, statusCode int) {
	if err == nil {
		return
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error("HTTP error",
			"status", statusCode,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error("HTTP error",
			"status", statusCode,
			"error", err.Error(),
		)
	}

	if statusCode >= http.StatusInternalServerError {
		capture(err)
	}

	http.Error(w, err.Error(), statusCode)
}

// capture forwards the error to Sentry when a client is initialized.
// Without sentry.Init this is a no-op.
func capture(err error) {
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.CaptureException(err)
	}
}
