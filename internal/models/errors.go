package models

import "errors"

// Error taxonomy shared by the services. Callers match with errors.Is.
var (
	// ErrAuthentication is returned when the controller rejects the
	// credentials or cannot be reached during login.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotAuthenticated guards resource operations on a session that is
	// not logged in.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrTransport covers failed GET/POST round trips, unexpected HTTP
	// status codes and malformed response bodies.
	ErrTransport = errors.New("controller request failed")

	// ErrProbe means the reachability probe itself could not run. An
	// unreachable host is not an ErrProbe.
	ErrProbe = errors.New("reachability probe failed")

	// ErrExhausted means the boot wait used every attempt without the
	// target becoming reachable.
	ErrExhausted = errors.New("attempts exhausted")
)
