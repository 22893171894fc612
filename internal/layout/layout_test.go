//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package layout

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsets(t *testing.T) {
	tests := []struct {
		name                                         string
		l                                            Layout
		flags, schedule, ports, portSize, configSize int
	}{
		{"default", Default, 64, 72, 88, 76, 1304},
		{"unaligned name", Layout{MaxStrLen: 30, MaxPorts: 2}, 32, 40, 56, 44, 144},
		{"tail padding", Layout{MaxStrLen: 5, MaxPorts: 3}, 8, 16, 32, 20, 96},
		{"no ports", Layout{MaxStrLen: 16, MaxPorts: 0}, 16, 24, 40, 28, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.flags, tt.l.FlagsOffset(), "flags")
			assert.Equal(t, tt.schedule, tt.l.ScheduleOffset(), "schedule")
			assert.Equal(t, tt.ports, tt.l.PortsOffset(), "ports")
			assert.Equal(t, tt.portSize, tt.l.PortSize(), "port size")
			assert.Equal(t, tt.configSize, tt.l.ConfigSize(), "config size")
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default.Validate())
	assert.ErrorIs(t, Layout{MaxStrLen: 0, MaxPorts: 1}.Validate(), ErrInvalidLayout)
	assert.ErrorIs(t, Layout{MaxStrLen: MaxStrLenLimit + 1}.Validate(), ErrInvalidLayout)
	assert.ErrorIs(t, Layout{MaxStrLen: 8, MaxPorts: -1}.Validate(), ErrInvalidLayout)
	assert.ErrorIs(t, Layout{MaxStrLen: 8, MaxPorts: MaxPortsLimit + 1}.Validate(), ErrInvalidLayout)
}

func TestEncodeDecode(t *testing.T) {
	l := Layout{MaxStrLen: 30, MaxPorts: 4}
	want := PartitionConfig{
		Name:     "Partition0",
		Flags:    0x5,
		Schedule: Schedule{Period: 1_000_000, Duration: 250_000},
		Ports: []Port{
			{Name: "telemetry", Channel: 3, Type: PortQueuing, Direction: PortSource},
			{Name: "command", Channel: 7, Type: PortSampling, Direction: PortDestination},
		},
	}

	raw, err := l.Encode(want)
	require.NoError(t, err)
	require.Len(t, raw, l.ConfigSize())

	got, err := l.Decode(unsafe.Pointer(&raw[0]))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEncodeOverflow(t *testing.T) {
	l := Layout{MaxStrLen: 4, MaxPorts: 1}

	_, err := l.Encode(PartitionConfig{Name: "toolong"})
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = l.Encode(PartitionConfig{Name: "ok", Ports: []Port{{Name: "a"}, {Name: "b"}}})
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestNameBytes(t *testing.T) {
	l := Layout{MaxStrLen: 4, MaxPorts: 0}

	raw, err := l.Encode(PartitionConfig{Name: "P1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("P1"), l.NameBytes(unsafe.Pointer(&raw[0])))

	// A name filling the whole buffer has no terminator.
	raw, err = l.Encode(PartitionConfig{Name: "ABCD"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCD"), l.NameBytes(unsafe.Pointer(&raw[0])))

	assert.Nil(t, l.NameBytes(nil))
}

func TestDecodeRejectsInvalidName(t *testing.T) {
	l := Layout{MaxStrLen: 8, MaxPorts: 0}
	raw := make([]byte, l.ConfigSize())
	raw[0] = 0xff

	_, err := l.DecodeBytes(raw)
	assert.ErrorIs(t, err, ErrInvalidText)

	_, err = l.Decode(nil)
	assert.ErrorIs(t, err, ErrNilRecord)

	_, err = l.DecodeBytes(raw[:4])
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestText(t *testing.T) {
	s, err := Text([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	// Only one newline is trimmed.
	s, err = Text([]byte("hello\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", s)

	_, err = Text([]byte{'h', 0xc3})
	assert.ErrorIs(t, err, ErrInvalidText)
}

func TestPortStrings(t *testing.T) {
	assert.Equal(t, "queuing", PortQueuing.String())
	assert.Equal(t, "sampling", PortSampling.String())
	assert.Equal(t, "type(9)", PortType(9).String())
	assert.Equal(t, "destination", PortDestination.String())
	assert.Equal(t, "direction(4)", PortDirection(4).String())
}
