//go:build (linux || darwin || freebsd) && (amd64 || arm64)

// Package console relays partition console output from the kernel library to
// the host process.
//
// The library calls one fixed C function pointer, obtained from Callback, on
// threads it manages itself. Each call is attributed to its partition through
// the kernel published in the registry and printed as
//
//	<partition>: <message>
//
// with continuation lines indented under the first character of the message.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"

	"github.com/obinnaokechukwu/ske/internal/layout"
	"github.com/obinnaokechukwu/ske/internal/logging"
)

// ExitContractViolation is the exit status used when the library breaks the
// console contract (EX_SOFTWARE).
const ExitContractViolation = 70

var (
	callbackOnce sync.Once
	callbackPtr  uintptr

	outMu sync.Mutex
	out   io.Writer = os.Stdout
)

// abort terminates the process. Contract violations are never returned as
// errors and must not unwind through native frames.
var abort = func(msg string, fields ...zap.Field) {
	logging.L().Error(msg, fields...)
	_ = logging.L().Sync()
	fmt.Fprintf(os.Stderr, "ske: fatal: %s\n", msg)
	os.Exit(ExitContractViolation)
}

// Callback returns the C function pointer to install with KSetConsole. The
// same pointer is returned on every call.
func Callback() uintptr {
	callbackOnce.Do(func() {
		callbackPtr = purego.NewCallback(trampoline)
	})
	return callbackPtr
}

// trampoline is called by the kernel library.
// Signature: void (*)(const Partition *p, const char *buf, size_t len)
func trampoline(_ purego.CDecl, partition unsafe.Pointer, buf *byte, n uintptr) {
	var text []byte
	if buf != nil && n > 0 {
		text = unsafe.Slice(buf, n)
	}
	Deliver(partition, text)
}

// Deliver prints text as console output of partition.
func Deliver(partition unsafe.Pointer, text []byte) {
	msg, err := layout.Text(text)
	if err != nil {
		abort("console output is not valid UTF-8", zap.Error(err))
		return
	}

	src, err := Current()
	if err != nil {
		abort("console output received without a usable kernel", zap.Error(err))
		return
	}

	cfg := src.PartitionConfig(partition)
	if cfg == nil {
		abort("console output from a partition without a configuration record")
		return
	}
	name, err := layout.Text(src.Layout().NameBytes(cfg))
	if err != nil {
		abort("partition name is not valid UTF-8", zap.Error(err))
		return
	}

	emit(Format(name, msg))
}

// Format renders one console message. Embedded newlines are followed by
// enough spaces to line the next line up with the start of msg.
func Format(name, msg string) string {
	prefix := name + ": "
	indent := "\n" + strings.Repeat(" ", runewidth.StringWidth(prefix))
	return prefix + strings.ReplaceAll(msg, "\n", indent)
}

// SetOutput redirects console output to w and returns a function restoring
// the previous writer.
func SetOutput(w io.Writer) (restore func()) {
	outMu.Lock()
	prev := out
	out = w
	outMu.Unlock()

	return func() {
		outMu.Lock()
		out = prev
		outMu.Unlock()
	}
}

// emit writes one message as a single write so lines from concurrent
// partitions never interleave.
func emit(line string) {
	outMu.Lock()
	defer outMu.Unlock()
	_, _ = io.WriteString(out, line+"\n")
}
