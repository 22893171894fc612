//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultSettingsFile  = "ske.toml"
	defaultConfiguration = "module.xml"
	defaultLogLevel      = "warn"
)

// settings holds defaults for the command-line flags.
//
//	libske        = "/opt/ske/lib/libskeserver.so"
//	configuration = "module.xml"
//	log_level     = "info"
type settings struct {
	LibSke        string `toml:"libske"`
	Configuration string `toml:"configuration"`
	LogLevel      string `toml:"log_level"`
}

// loadSettings reads the settings file at path. A missing file is only an
// error when the path was given explicitly.
func loadSettings(path string, explicit bool) (settings, error) {
	s := settings{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// Nothing to merge.
	case err != nil:
		return settings{}, fmt.Errorf("settings load failed (%s): %w", path, err)
	default:
		md, err := toml.Decode(string(data), &s)
		if err != nil {
			return settings{}, fmt.Errorf("settings parse failed (%s): %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return settings{}, fmt.Errorf("settings parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	if strings.TrimSpace(s.LogLevel) == "" {
		s.LogLevel = defaultLogLevel
	}
	return s, nil
}
