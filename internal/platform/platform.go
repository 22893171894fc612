//go:build (linux || darwin || freebsd) && (amd64 || arm64)

// Package platform provides platform detection and library naming for ske.
// It determines how the kernel library is named and where it is searched for
// based on the operating system.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"
)

// Is64Bit indicates whether the platform is 64-bit.
// The raw partition layout assumes an 8-byte size_t.
const Is64Bit = unsafe.Sizeof(uintptr(0)) == 8

// LibraryBaseName is the unprefixed name of the kernel library.
const LibraryBaseName = "skeserver"

// LibraryEnv names an explicit kernel library file.
const LibraryEnv = "SKE_LIBRARY"

// LibraryPathEnv is a list of extra directories searched before the system ones.
const LibraryPathEnv = "SKE_LIBRARY_PATH"

// LibraryExtension is the file extension for shared libraries on this platform.
var LibraryExtension string

// LibraryPrefix is the prefix for shared library names on this platform.
var LibraryPrefix = "lib"

func init() {
	switch runtime.GOOS {
	case "darwin":
		LibraryExtension = ".dylib"
	default: // linux, freebsd
		LibraryExtension = ".so"
	}
}

// FormatLibraryName returns the platform-specific library filename.
// If version is 0, returns the unversioned library name.
//
// Examples:
//   - Linux: FormatLibraryName("skeserver", 0) -> "libskeserver.so"
//   - Linux: FormatLibraryName("skeserver", 2) -> "libskeserver.so.2"
//   - macOS: FormatLibraryName("skeserver", 2) -> "libskeserver.2.dylib"
func FormatLibraryName(name string, version int) string {
	switch runtime.GOOS {
	case "darwin":
		if version > 0 {
			return fmt.Sprintf("%s%s.%d%s", LibraryPrefix, name, version, LibraryExtension)
		}
		return fmt.Sprintf("%s%s%s", LibraryPrefix, name, LibraryExtension)
	default:
		if version > 0 {
			return fmt.Sprintf("%s%s%s.%d", LibraryPrefix, name, LibraryExtension, version)
		}
		return fmt.Sprintf("%s%s%s", LibraryPrefix, name, LibraryExtension)
	}
}

// LibrarySearchPaths returns the directories searched for the kernel library,
// most specific first.
func LibrarySearchPaths() []string {
	var paths []string

	if extra := os.Getenv(LibraryPathEnv); extra != "" {
		paths = append(paths, filepath.SplitList(extra)...)
	}

	switch runtime.GOOS {
	case "darwin":
		if dyldPath := os.Getenv("DYLD_LIBRARY_PATH"); dyldPath != "" {
			paths = append(paths, filepath.SplitList(dyldPath)...)
		}
	default:
		if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
			paths = append(paths, filepath.SplitList(ldPath)...)
		}
	}

	// Next to the binary, the way the library is usually shipped.
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Dir(exe))
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			"/opt/homebrew/lib", // Apple Silicon
			"/usr/local/lib",    // Intel
		)
	case "linux":
		paths = append(paths,
			"/usr/local/lib",
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib/aarch64-linux-gnu",
			"/usr/lib",
		)
	default:
		paths = append(paths,
			"/usr/local/lib",
			"/usr/lib",
		)
	}

	return paths
}

// GOOS returns the current operating system.
func GOOS() string {
	return runtime.GOOS
}

// GOARCH returns the current architecture.
func GOARCH() string {
	return runtime.GOARCH
}
