//go:build (linux || darwin || freebsd) && (amd64 || arm64)

// Package ske drives the SKE separation kernel emulator from Go.
//
// The kernel itself is a native shared library loaded at runtime without CGO
// (using purego). A Kernel loads the library, hands it an XNG configuration,
// and runs it. Console output written by the kernel's partitions is printed
// to stdout as "<partition>: <message>".
//
//	k, err := ske.New()
//	if err != nil {
//		return err
//	}
//	defer k.Close()
//	if err := k.Configure("module.xml"); err != nil {
//		return err
//	}
//	return k.Run(ske.Forever)
//
// Only one kernel can deliver console output per process: the native console
// callback has no context pointer, so the most recently configured Kernel
// receives all output.
package ske

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obinnaokechukwu/ske/internal/bindings"
	"github.com/obinnaokechukwu/ske/internal/console"
	"github.com/obinnaokechukwu/ske/internal/layout"
	"github.com/obinnaokechukwu/ske/internal/logging"
)

// Forever runs the kernel until the library's own termination condition.
const Forever time.Duration = -1

// Re-export partition record types for convenience
type (
	// PartitionConfig is a copy of a partition's configuration record.
	PartitionConfig = layout.PartitionConfig

	// Schedule is a partition's period and duration.
	Schedule = layout.Schedule

	// Port is a partition communication port.
	Port = layout.Port

	// PortType is the port discipline (sampling or queuing).
	PortType = layout.PortType

	// PortDirection is source or destination.
	PortDirection = layout.PortDirection
)

// Port constants
const (
	PortSampling    = layout.PortSampling
	PortQueuing     = layout.PortQueuing
	PortSource      = layout.PortSource
	PortDestination = layout.PortDestination
)

// State is the lifecycle state of a Kernel.
type State int32

// Kernel states.
const (
	StateCreated State = iota
	StateConfigured
	StateRunning
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// native is the subset of the loaded library the controller drives.
type native interface {
	console.Source
	LoadConfig(path string) (bool, error)
	Run(durationUS int64)
	PartitionCount() int
	Partition(i int) bindings.Partition
	SetConsole(p bindings.Partition, fn uintptr)
	Path() string
	Close() error
}

// Kernel controls one loaded instance of the kernel library.
type Kernel struct {
	mu    sync.Mutex
	lib   native
	state State
}

// New loads the kernel library embedded in this build. Builds without an
// embedded library use SKE_LIBRARY or the platform search paths instead.
func New() (*Kernel, error) {
	lib, err := bindings.OpenDefault()
	if err != nil {
		return nil, err
	}
	return newKernel(lib), nil
}

// LoadFromFile loads the kernel library at path.
func LoadFromFile(path string) (*Kernel, error) {
	lib, err := bindings.Open(path)
	if err != nil {
		return nil, err
	}
	return newKernel(lib), nil
}

func newKernel(lib native) *Kernel {
	return &Kernel{lib: lib, state: StateCreated}
}

// Configure loads the configuration file at path into the kernel and routes
// every partition's console output to this process. It may be called again
// to reconfigure; console sinks are reinstalled each time.
func (k *Kernel) Configure(path string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch k.state {
	case StateClosed:
		return ErrClosed
	case StateRunning:
		return ErrRunning
	}

	ok, err := k.lib.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if !ok {
		// The library may have partially replaced its partitions.
		k.state = StateCreated
		return fmt.Errorf("%w: %s", ErrConfigRejected, path)
	}

	console.Publish(k.lib)
	cb := console.Callback()
	n := k.lib.PartitionCount()
	for i := 0; i < n; i++ {
		k.lib.SetConsole(k.lib.Partition(i), cb)
	}
	k.state = StateConfigured

	logging.L().Info("kernel configured",
		zap.String("configuration", path),
		zap.String("library", k.lib.Path()),
		zap.Int("partitions", n))
	return nil
}

// Run executes the configured kernel for d and blocks until the library
// returns control. A negative d (such as Forever) runs until the library's
// own termination condition. There is no way to stop a run early.
func (k *Kernel) Run(d time.Duration) error {
	k.mu.Lock()
	switch k.state {
	case StateCreated:
		k.mu.Unlock()
		return ErrNotConfigured
	case StateRunning:
		k.mu.Unlock()
		return ErrRunning
	case StateClosed:
		k.mu.Unlock()
		return ErrClosed
	}
	k.state = StateRunning
	k.mu.Unlock()

	us := durationMicros(d)
	log := logging.L().With(zap.String("run_id", uuid.NewString()))
	log.Info("kernel run started", zap.Int64("duration_us", us))
	start := time.Now()

	k.lib.Run(us)

	log.Info("kernel run finished", zap.Duration("elapsed", time.Since(start)))
	k.mu.Lock()
	k.state = StateConfigured
	k.mu.Unlock()
	return nil
}

// durationMicros converts d for KRun. Negative durations become -1, since
// truncating a sub-microsecond negative value would yield 0 (a zero-length run).
func durationMicros(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return d.Microseconds()
}

// PartitionCount returns the number of partitions in the loaded
// configuration. It is only meaningful after Configure.
func (k *Kernel) PartitionCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == StateClosed {
		return 0
	}
	return k.lib.PartitionCount()
}

// Partitions returns a copy of every partition's configuration record.
func (k *Kernel) Partitions() ([]PartitionConfig, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch k.state {
	case StateClosed:
		return nil, ErrClosed
	case StateCreated:
		return nil, ErrNotConfigured
	}

	lay := k.lib.Layout()
	n := k.lib.PartitionCount()
	parts := make([]PartitionConfig, 0, n)
	for i := 0; i < n; i++ {
		cfg, err := lay.Decode(k.lib.PartitionConfig(k.lib.Partition(i)))
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", i, err)
		}
		parts = append(parts, cfg)
	}
	return parts, nil
}

// State returns the current lifecycle state.
func (k *Kernel) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// LibraryPath returns the file the kernel library was loaded from. For the
// embedded library this is a temporary file.
func (k *Kernel) LibraryPath() string {
	return k.lib.Path()
}

// Close unloads the library and removes its temporary file. It fails with
// ErrRunning while a run is in progress, since the library may still invoke
// the console callback. Safe to call more than once.
//
// The console registry keeps the closed library published. A callback that
// still arrives afterwards finds no configuration record and is treated as a
// contract violation.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch k.state {
	case StateClosed:
		return nil
	case StateRunning:
		return ErrRunning
	}
	k.state = StateClosed
	return k.lib.Close()
}
