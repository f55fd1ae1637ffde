package main

import (
	"context"
	"errors"

	"github.com/fgeck/ilohelper/internal/models"
)

// Process exit codes.
const (
	exitOK        = 0
	exitUsage     = 1
	exitAuth      = 2
	exitTransport = 3
	exitProbe     = 4
	exitExhausted = 5
	exitCanceled  = 130
)

// exitCode maps a command error onto the process exit code. Cancellation
// wins over whatever else went wrong on the way out.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitCanceled
	case errors.Is(err, models.ErrAuthentication), errors.Is(err, models.ErrNotAuthenticated):
		return exitAuth
	case errors.Is(err, models.ErrTransport):
		return exitTransport
	case errors.Is(err, models.ErrProbe):
		return exitProbe
	case errors.Is(err, models.ErrExhausted):
		return exitExhausted
	default:
		return exitUsage
	}
}
