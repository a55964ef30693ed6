package config

import "errors"

// Errors returned by Manager operations.
var (
	// ErrClosed indicates the manager has been closed.
	ErrClosed = errors.New("config manager closed")

	// ErrInvalidClients indicates the clients section is not an array of tables.
	ErrInvalidClients = errors.New("invalid clients section")
)
