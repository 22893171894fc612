//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package bindings

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/obinnaokechukwu/ske/internal/logging"
	"github.com/obinnaokechukwu/ske/internal/platform"
)

// prebuilt holds vendored kernel libraries as
// prebuilt/<goos>-<goarch>/libskeserver.<ext>. Release builds drop the
// library in before compiling; see prebuilt/README.md.
//
//go:embed prebuilt
var prebuilt embed.FS

func embeddedLibrary() ([]byte, error) {
	name := path.Join("prebuilt",
		platform.GOOS()+"-"+platform.GOARCH(),
		platform.FormatLibraryName(platform.LibraryBaseName, 0))

	data, err := prebuilt.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil, ErrNoEmbeddedLibrary
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return data, nil
}

// OpenEmbedded writes the vendored library to a fresh temporary file and
// loads it. The file lives until Close.
func OpenEmbedded() (*Library, error) {
	data, err := embeddedLibrary()
	if err != nil {
		return nil, err
	}
	return openBytes(data)
}

// OpenDefault loads the embedded library, or, when this build has none, the
// library located by Find.
func OpenDefault() (*Library, error) {
	lib, err := OpenEmbedded()
	if !errors.Is(err, ErrNoEmbeddedLibrary) {
		return lib, err
	}

	p, err := Find()
	if err != nil {
		return nil, err
	}
	logging.L().Debug("no embedded kernel library, using external file", zap.String("path", p))
	return Open(p)
}

func openBytes(data []byte) (*Library, error) {
	tmp, err := writeTemp(data)
	if err != nil {
		return nil, err
	}

	lib, err := Open(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	lib.tempFile = tmp
	return lib, nil
}

// writeTemp stores data in a uniquely named file carrying the platform's
// library extension, which some loaders require.
func writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp("", "libskeserver-*"+platform.LibraryExtension)
	if err != nil {
		return "", fmt.Errorf("%w: create temporary library: %w", ErrIO, err)
	}
	name := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: write temporary library: %w", ErrIO, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: write temporary library: %w", ErrIO, err)
	}
	return name, nil
}
