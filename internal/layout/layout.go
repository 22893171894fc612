//go:build (linux || darwin || freebsd) && (amd64 || arm64)

// Package layout describes the kernel library's C structures byte for byte.
//
// Every record handed out by the library is read through a Layout, which is
// parameterised by the two compile-time constants of the native build
// (MAX_STR_LEN and MAX_PORTS). Nothing in this package is a Go struct mapped
// onto native memory; offsets follow the C natural-alignment rules for a
// 64-bit host:
//
//	typedef struct {
//	    int64_t period;              // offset 0,  8 bytes
//	    int64_t duration;            // offset 8,  8 bytes
//	} ScheduleCfg;                   // align 8, size 16
//
//	typedef struct {
//	    char     name[MAX_STR_LEN];  // offset 0, NUL padded
//	    uint32_t channel;            // align 4
//	    uint32_t type;               // PortType
//	    uint32_t direction;          // PortDirection
//	} PortCfg;                       // align 4
//
//	typedef struct {
//	    char        name[MAX_STR_LEN];
//	    uint32_t    flags;           // align 4
//	    ScheduleCfg schedule;        // align 8
//	    PortCfg     ports[MAX_PORTS];
//	} PartitionCfg;                  // align 8
package layout

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
	"unsafe"
)

// Limits accepted for the native constants. Anything beyond these is treated
// as a corrupt or mismatched export rather than a real build.
const (
	MaxStrLenLimit = 4096
	MaxPortsLimit  = 1024
)

const (
	u32Size       = 4 // uint32_t
	i64Size       = 8 // int64_t
	u32Align      = 4
	scheduleAlign = 8
	scheduleSize  = 2 * i64Size
	configAlign   = 8
	portTailSize  = 3 * u32Size // channel, type, direction
)

var (
	// ErrInvalidLayout is returned when the layout constants are out of range.
	ErrInvalidLayout = errors.New("layout: invalid layout constants")

	// ErrInvalidText is returned when a name or message is not valid UTF-8.
	ErrInvalidText = errors.New("layout: text is not valid UTF-8")

	// ErrOverflow is returned by Encode when a value does not fit the layout.
	ErrOverflow = errors.New("layout: value does not fit layout")

	// ErrNilRecord is returned when decoding a nil record pointer.
	ErrNilRecord = errors.New("layout: nil record")
)

// Layout holds the native constants that size every record.
type Layout struct {
	MaxStrLen int // MAX_STR_LEN, width of each name buffer
	MaxPorts  int // MAX_PORTS, length of the port array
}

// Default is used when the library does not export its constants.
var Default = Layout{MaxStrLen: 64, MaxPorts: 16}

// Validate reports whether the constants describe a plausible native build.
func (l Layout) Validate() error {
	if l.MaxStrLen <= 0 || l.MaxStrLen > MaxStrLenLimit {
		return fmt.Errorf("%w: MAX_STR_LEN=%d", ErrInvalidLayout, l.MaxStrLen)
	}
	if l.MaxPorts < 0 || l.MaxPorts > MaxPortsLimit {
		return fmt.Errorf("%w: MAX_PORTS=%d", ErrInvalidLayout, l.MaxPorts)
	}
	return nil
}

// String implements fmt.Stringer.
func (l Layout) String() string {
	return fmt.Sprintf("MAX_STR_LEN=%d MAX_PORTS=%d size=%d", l.MaxStrLen, l.MaxPorts, l.ConfigSize())
}

// FlagsOffset is the offset of PartitionCfg.flags.
func (l Layout) FlagsOffset() int { return alignUp(l.MaxStrLen, u32Align) }

// ScheduleOffset is the offset of PartitionCfg.schedule.
func (l Layout) ScheduleOffset() int { return alignUp(l.FlagsOffset()+u32Size, scheduleAlign) }

// PortsOffset is the offset of PartitionCfg.ports[0].
func (l Layout) PortsOffset() int { return l.ScheduleOffset() + scheduleSize }

// PortSize is sizeof(PortCfg).
func (l Layout) PortSize() int { return alignUp(l.MaxStrLen, u32Align) + portTailSize }

// ConfigSize is sizeof(PartitionCfg), trailing padding included.
func (l Layout) ConfigSize() int {
	return alignUp(l.PortsOffset()+l.MaxPorts*l.PortSize(), configAlign)
}

// NameBytes returns the partition name of the record at cfg, up to the first
// NUL. Only the name buffer is read. The slice aliases native memory and must
// be copied before the record can change.
func (l Layout) NameBytes(cfg unsafe.Pointer) []byte {
	if cfg == nil {
		return nil
	}
	return cString(unsafe.Slice((*byte)(cfg), l.MaxStrLen))
}

// Decode copies the PartitionCfg at cfg into a PartitionConfig.
func (l Layout) Decode(cfg unsafe.Pointer) (PartitionConfig, error) {
	if cfg == nil {
		return PartitionConfig{}, ErrNilRecord
	}
	return l.DecodeBytes(unsafe.Slice((*byte)(cfg), l.ConfigSize()))
}

// DecodeBytes decodes a PartitionCfg held in raw. Port slots with an empty
// name are unused and skipped.
func (l Layout) DecodeBytes(raw []byte) (PartitionConfig, error) {
	if len(raw) < l.ConfigSize() {
		return PartitionConfig{}, fmt.Errorf("%w: record is %d bytes, want %d", ErrOverflow, len(raw), l.ConfigSize())
	}

	name, err := Text(cString(raw[:l.MaxStrLen]))
	if err != nil {
		return PartitionConfig{}, fmt.Errorf("partition name: %w", err)
	}

	sched := raw[l.ScheduleOffset():]
	cfg := PartitionConfig{
		Name:  name,
		Flags: binary.NativeEndian.Uint32(raw[l.FlagsOffset():]),
		Schedule: Schedule{
			Period:   int64(binary.NativeEndian.Uint64(sched)),
			Duration: int64(binary.NativeEndian.Uint64(sched[i64Size:])),
		},
	}

	for i := 0; i < l.MaxPorts; i++ {
		port := raw[l.PortsOffset()+i*l.PortSize():]
		portName := cString(port[:l.MaxStrLen])
		if len(portName) == 0 {
			continue
		}
		pn, err := Text(portName)
		if err != nil {
			return PartitionConfig{}, fmt.Errorf("port %d name: %w", i, err)
		}
		tail := port[alignUp(l.MaxStrLen, u32Align):]
		cfg.Ports = append(cfg.Ports, Port{
			Name:      pn,
			Channel:   binary.NativeEndian.Uint32(tail),
			Type:      PortType(binary.NativeEndian.Uint32(tail[u32Size:])),
			Direction: PortDirection(binary.NativeEndian.Uint32(tail[2*u32Size:])),
		})
	}
	return cfg, nil
}

// Encode renders cfg in native layout. It is the inverse of DecodeBytes and is
// used to build records that are handed to code expecting native memory.
func (l Layout) Encode(cfg PartitionConfig) ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Name) > l.MaxStrLen {
		return nil, fmt.Errorf("%w: name %q longer than %d", ErrOverflow, cfg.Name, l.MaxStrLen)
	}
	if len(cfg.Ports) > l.MaxPorts {
		return nil, fmt.Errorf("%w: %d ports, max %d", ErrOverflow, len(cfg.Ports), l.MaxPorts)
	}

	raw := make([]byte, l.ConfigSize())
	copy(raw, cfg.Name)
	binary.NativeEndian.PutUint32(raw[l.FlagsOffset():], cfg.Flags)
	sched := raw[l.ScheduleOffset():]
	binary.NativeEndian.PutUint64(sched, uint64(cfg.Schedule.Period))
	binary.NativeEndian.PutUint64(sched[i64Size:], uint64(cfg.Schedule.Duration))

	for i, p := range cfg.Ports {
		if p.Name == "" || len(p.Name) > l.MaxStrLen {
			return nil, fmt.Errorf("%w: port %d name %q", ErrOverflow, i, p.Name)
		}
		port := raw[l.PortsOffset()+i*l.PortSize():]
		copy(port, p.Name)
		tail := port[alignUp(l.MaxStrLen, u32Align):]
		binary.NativeEndian.PutUint32(tail, p.Channel)
		binary.NativeEndian.PutUint32(tail[u32Size:], uint32(p.Type))
		binary.NativeEndian.PutUint32(tail[2*u32Size:], uint32(p.Direction))
	}
	return raw, nil
}

// Text converts native text to a string. It fails on invalid UTF-8 and trims
// exactly one trailing newline.
func Text(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", ErrInvalidText
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}

func cString(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
