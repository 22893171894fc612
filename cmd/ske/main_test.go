//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obinnaokechukwu/ske"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "1.5", want: 1500 * time.Millisecond},
		{in: "1e-3", want: time.Millisecond},
		{in: "0", want: 0},
		{in: "2", want: 2 * time.Second},
		{in: "0.0000004", want: 0},
		{in: "0.0000006", want: time.Microsecond},
		{in: "-1", wantErr: true},
		{in: "NaN", wantErr: true},
		{in: "Inf", wantErr: true},
		{in: "1e300", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ske.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSettingsMissingDefault(t *testing.T) {
	s, err := loadSettings(filepath.Join(t.TempDir(), "ske.toml"), false)
	require.NoError(t, err)
	assert.Equal(t, settings{LogLevel: defaultLogLevel}, s)
}

func TestLoadSettingsMissingExplicit(t *testing.T) {
	_, err := loadSettings(filepath.Join(t.TempDir(), "ske.toml"), true)
	assert.Error(t, err)
}

func TestLoadSettings(t *testing.T) {
	path := writeSettings(t, `
libske        = "/opt/ske/lib/libskeserver.so"
configuration = "demo.xml"
log_level     = "debug"
`)
	s, err := loadSettings(path, true)
	require.NoError(t, err)
	assert.Equal(t, settings{
		LibSke:        "/opt/ske/lib/libskeserver.so",
		Configuration: "demo.xml",
		LogLevel:      "debug",
	}, s)
}

func TestLoadSettingsUnknownKey(t *testing.T) {
	path := writeSettings(t, "libskee = \"typo\"\n")
	_, err := loadSettings(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "libskee")
}

func TestLoadSettingsMalformed(t *testing.T) {
	path := writeSettings(t, "libske = \n")
	_, err := loadSettings(path, true)
	assert.Error(t, err)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// An explicit empty settings file keeps a stray ske.toml out of the test.
	args = append([]string{"--settings", writeSettings(t, "")}, args...)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	t.Cleanup(func() { ske.SetLogger(nil) })
	err := cmd.Execute()
	return out.String(), err
}

func TestRunRejectsBadDuration(t *testing.T) {
	_, err := execute(t, "--libske", filepath.Join(t.TempDir(), "missing.so"), "run", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
	assert.NotErrorIs(t, err, ske.ErrLoad)
}

func TestRunRejectsExtraArgs(t *testing.T) {
	_, err := execute(t, "run", "1", "2")
	assert.Error(t, err)
}

func TestCheckBadLibrary(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "libskeserver.so")
	require.NoError(t, os.WriteFile(lib, []byte("not a shared library"), 0o600))

	_, err := execute(t, "--libske", lib, "check")
	assert.ErrorIs(t, err, ske.ErrLoad)
}

func TestListMissingLibrary(t *testing.T) {
	_, err := execute(t, "--libske", filepath.Join(t.TempDir(), "missing.so"), "list")
	assert.ErrorIs(t, err, ske.ErrLoad)
}

func TestSettingsSupplyLibrary(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.so")
	settingsPath := writeSettings(t, "libske = \""+missing+"\"\n")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--settings", settingsPath, "check"})
	cmd.SetOut(&bytes.Buffer{})
	t.Cleanup(func() { ske.SetLogger(nil) })

	err := cmd.Execute()
	require.ErrorIs(t, err, ske.ErrLoad)
	assert.Contains(t, err.Error(), missing)
}

func TestBadLogLevel(t *testing.T) {
	settingsPath := writeSettings(t, "log_level = \"loud\"\n")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--settings", settingsPath, "check"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings")
}

func TestPrintPartitions(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)

	err := printPartitions(cmd, []ske.PartitionConfig{
		{
			Name:     "P1",
			Flags:    1,
			Schedule: ske.Schedule{Period: 1000, Duration: 250},
			Ports:    []ske.Port{{Name: "out", Channel: 3, Type: ske.PortQueuing, Direction: ske.PortSource}},
		},
		{Name: "P2"},
	})
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "PARTITION")
	assert.Contains(t, got, "P1")
	assert.Contains(t, got, "ch=3 queuing source")
	assert.Contains(t, got, "P2")
}

func TestConfigurationFlag(t *testing.T) {
	flag := newRootCmd().PersistentFlags().Lookup("configuration")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
	assert.Equal(t, defaultConfiguration, flag.DefValue)
	assert.Equal(t, "module.xml", flag.DefValue)
}
