//go:build (linux || darwin || freebsd) && (amd64 || arm64)

// Package bindings loads the SKE kernel library and registers its C entry
// points using purego.
//
// The bound contract is:
//
//	const size_t MAX_STR_LEN, MAX_PORTS;
//	bool                KLoadCfg(const char *path);
//	void                KRun(int64_t duration_us);
//	size_t              KGetNumOfPartitions(void);
//	Partition          *KGetPartition(size_t index);
//	const PartitionCfg *KGetPartitionCfg(const Partition *p);
//	void                KSetConsole(Partition *p,
//	                                void (*fn)(const Partition *, const char *, size_t));
//
// The pass-through accessors perform no bounds or state checks, mirroring the
// native contract. They must not be called after Close.
package bindings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/obinnaokechukwu/ske/internal/layout"
	"github.com/obinnaokechukwu/ske/internal/logging"
	"github.com/obinnaokechukwu/ske/internal/platform"
)

var (
	// ErrLoad is returned when the kernel library cannot be loaded or does not
	// export the required symbols.
	ErrLoad = errors.New("ske: cannot load kernel library")

	// ErrIO is returned for filesystem failures around the library or configuration.
	ErrIO = errors.New("ske: i/o error")

	// ErrNotFound is returned when the configuration file does not exist or is
	// not a regular file.
	ErrNotFound = errors.New("ske: configuration file not found")

	// ErrEncoding is returned when a path cannot be passed as a C string.
	ErrEncoding = errors.New("ske: path cannot be encoded as a C string")

	// ErrNoEmbeddedLibrary is returned when this build carries no vendored library.
	ErrNoEmbeddedLibrary = fmt.Errorf("%w: no kernel library embedded in this build", ErrLoad)
)

// Partition is an opaque native Partition pointer. It is owned by the
// library and valid from a successful LoadConfig until process exit.
type Partition = unsafe.Pointer

// Library is a loaded instance of the kernel library.
type Library struct {
	handle   uintptr
	path     string
	tempFile string // removed on Close when the library was materialised
	layout   layout.Layout

	kLoadCfg            func(path *byte) bool
	kRun                func(durationUS int64)
	kGetNumOfPartitions func() uintptr
	kGetPartition       func(index uintptr) unsafe.Pointer
	kGetPartitionCfg    func(p unsafe.Pointer) unsafe.Pointer
	kSetConsole         func(p unsafe.Pointer, fn uintptr)
}

// Open loads the kernel library at path. On failure no handle is returned and
// anything already opened is released.
func Open(path string) (*Library, error) {
	if !platform.Is64Bit {
		return nil, fmt.Errorf("%w: %s/%s is not a 64-bit platform", ErrLoad, platform.GOOS(), platform.GOARCH())
	}

	handle, err := tryOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	lib := &Library{handle: handle, path: path}
	if err := lib.bind(); err != nil {
		_ = purego.Dlclose(handle)
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	logging.L().Debug("kernel library loaded",
		zap.String("path", path),
		zap.Int("max_str_len", lib.layout.MaxStrLen),
		zap.Int("max_ports", lib.layout.MaxPorts))
	return lib, nil
}

// tryOpen opens a library with RTLD_NOW so unresolved imports fail here
// instead of in the middle of a run.
func tryOpen(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
}

// bind resolves every contract symbol and the layout constants.
func (l *Library) bind() error {
	funcs := []struct {
		fptr any
		name string
	}{
		{&l.kLoadCfg, "KLoadCfg"},
		{&l.kRun, "KRun"},
		{&l.kGetNumOfPartitions, "KGetNumOfPartitions"},
		{&l.kGetPartition, "KGetPartition"},
		{&l.kGetPartitionCfg, "KGetPartitionCfg"},
		{&l.kSetConsole, "KSetConsole"},
	}
	// Resolve everything first; purego.RegisterFunc panics on a zero address.
	syms := make([]uintptr, len(funcs))
	for i, f := range funcs {
		sym, err := purego.Dlsym(l.handle, f.name)
		if err != nil || sym == 0 {
			return fmt.Errorf("missing symbol %s", f.name)
		}
		syms[i] = sym
	}
	for i, f := range funcs {
		purego.RegisterFunc(f.fptr, syms[i])
	}

	lay, err := readLayout(l.path, l.readSize)
	if err != nil {
		return err
	}
	l.layout = lay
	return nil
}

// readLayout reads MAX_STR_LEN and MAX_PORTS through readSize. Older builds
// do not export them; the compiled defaults are used for whichever is missing.
func readLayout(path string, readSize func(name string) (uintptr, bool)) (layout.Layout, error) {
	lay := layout.Default

	maxStrLen, okStr := readSize("MAX_STR_LEN")
	if okStr {
		lay.MaxStrLen = int(maxStrLen)
	}
	maxPorts, okPorts := readSize("MAX_PORTS")
	if okPorts {
		lay.MaxPorts = int(maxPorts)
	}
	if !okStr || !okPorts {
		logging.L().Warn("kernel library does not export its layout constants, assuming defaults",
			zap.String("path", path),
			zap.Bool("max_str_len_exported", okStr),
			zap.Bool("max_ports_exported", okPorts),
			zap.Stringer("layout", lay))
	}
	if err := lay.Validate(); err != nil {
		return layout.Layout{}, err
	}
	return lay, nil
}

func (l *Library) readSize(name string) (uintptr, bool) {
	sym, err := purego.Dlsym(l.handle, name)
	if err != nil || sym == 0 {
		return 0, false
	}
	return **(**uintptr)(unsafe.Pointer(&sym)), true
}

// Run starts kernel execution and blocks until the library returns. A
// negative duration runs until the library's own termination condition.
func (l *Library) Run(durationUS int64) {
	l.kRun(durationUS)
}

// LoadConfig hands the configuration file at path to the library and reports
// whether the library accepted it.
func (l *Library) LoadConfig(path string) (bool, error) {
	// Encode first: stat on a path with a NUL fails with EINVAL, not ENOENT.
	cpath, err := CString(path)
	if err != nil {
		return false, err
	}
	if err := CheckConfigFile(path); err != nil {
		return false, err
	}
	ok := l.kLoadCfg(cpath)
	runtime.KeepAlive(cpath)
	return ok, nil
}

// PartitionCount returns the number of partitions in the loaded configuration.
func (l *Library) PartitionCount() int {
	return int(l.kGetNumOfPartitions())
}

// Partition returns the partition at index i. i must be in [0, PartitionCount()).
func (l *Library) Partition(i int) Partition {
	return l.kGetPartition(uintptr(i))
}

// PartitionConfig returns the PartitionCfg record of p, or nil once the
// library has been closed.
func (l *Library) PartitionConfig(p Partition) unsafe.Pointer {
	if l.handle == 0 {
		return nil
	}
	return l.kGetPartitionCfg(p)
}

// SetConsole installs fn, a C function pointer, as the console sink of p.
func (l *Library) SetConsole(p Partition, fn uintptr) {
	l.kSetConsole(p, fn)
}

// Layout returns the record layout agreed with this library.
func (l *Library) Layout() layout.Layout {
	return l.layout
}

// Path returns the file the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

// Embedded reports whether the library was materialised from embedded bytes.
func (l *Library) Embedded() bool {
	return l.tempFile != ""
}

// Close unloads the library and removes its temporary file, if any. It must
// only be called once no run is in progress. Safe to call more than once.
func (l *Library) Close() error {
	if l.handle == 0 {
		return nil
	}

	var err error
	if cerr := purego.Dlclose(l.handle); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("dlclose %s: %w", l.path, cerr))
	}
	l.handle = 0

	if l.tempFile != "" {
		if rerr := os.Remove(l.tempFile); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			err = multierr.Append(err, fmt.Errorf("%w: %w", ErrIO, rerr))
		}
		l.tempFile = ""
	}
	return err
}

// CheckConfigFile verifies that path names an existing regular file.
func CheckConfigFile(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrIO, err)
	case !info.Mode().IsRegular():
		return fmt.Errorf("%w: %s is not a file", ErrNotFound, path)
	}
	return nil
}

// CString returns a NUL-terminated copy of s.
func CString(s string) (*byte, error) {
	p, err := unix.BytePtrFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q contains a NUL byte", ErrEncoding, s)
	}
	return p, nil
}

// Find locates the kernel library on disk: SKE_LIBRARY first, then the
// platform search paths.
func Find() (string, error) {
	if p := os.Getenv(platform.LibraryEnv); p != "" {
		return p, nil
	}

	name := platform.FormatLibraryName(platform.LibraryBaseName, 0)
	for _, dir := range platform.LibrarySearchPaths() {
		full := filepath.Join(dir, name)
		if info, err := os.Stat(full); err == nil && info.Mode().IsRegular() {
			return full, nil
		}
	}
	return "", fmt.Errorf("%w; %s not found in search paths", ErrNoEmbeddedLibrary, name)
}
