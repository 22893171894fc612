//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package ske

import (
	"errors"

	"github.com/obinnaokechukwu/ske/internal/bindings"
)

// Errors returned by the kernel controller. Check them with errors.Is.
var (
	// ErrIO indicates a filesystem failure preparing the library or reading a path.
	ErrIO = bindings.ErrIO

	// ErrLoad indicates the kernel library could not be loaded or lacks a
	// required symbol.
	ErrLoad = bindings.ErrLoad

	// ErrNoEmbeddedLibrary indicates this build vendors no kernel library and
	// none was found on disk. It also matches ErrLoad.
	ErrNoEmbeddedLibrary = bindings.ErrNoEmbeddedLibrary

	// ErrNotFound indicates the configuration file is missing or not a regular file.
	ErrNotFound = bindings.ErrNotFound

	// ErrEncoding indicates a path cannot be passed to the library.
	ErrEncoding = bindings.ErrEncoding

	// ErrConfigRejected indicates the kernel library failed to parse the configuration.
	ErrConfigRejected = errors.New("ske: kernel rejected configuration")

	// ErrNotConfigured indicates Run was called before a successful Configure.
	ErrNotConfigured = errors.New("ske: kernel not configured")

	// ErrRunning indicates the operation is not allowed during a run.
	ErrRunning = errors.New("ske: kernel is running")

	// ErrClosed indicates the kernel has been closed.
	ErrClosed = errors.New("ske: kernel is closed")
)
