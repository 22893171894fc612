//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package ske

import (
	"io"

	"go.uber.org/zap"

	"github.com/obinnaokechukwu/ske/internal/console"
	"github.com/obinnaokechukwu/ske/internal/logging"
)

// SetLogger sets the logger used for diagnostics (library loading, runs,
// configuration). Pass nil to disable logging, which is the default.
// Partition console output is not logged; see SetConsoleOutput.
func SetLogger(l *zap.Logger) {
	logging.Set(l)
}

// SetConsoleOutput redirects partition console output, which goes to
// os.Stdout by default, and returns a function restoring the previous writer.
// Writes are serialised; w does not need to be safe for concurrent use.
func SetConsoleOutput(w io.Writer) (restore func()) {
	return console.SetOutput(w)
}

// FormatConsoleLine renders a console message the way partition output is
// printed, without the trailing newline.
func FormatConsoleLine(partition, msg string) string {
	return console.Format(partition, msg)
}
