//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package layout

import "fmt"

// PartitionConfig is a Go copy of a native PartitionCfg record.
type PartitionConfig struct {
	Name     string
	Flags    uint32
	Schedule Schedule
	Ports    []Port
}

// Schedule is the partition's time window. Units are defined by the kernel
// library (microseconds for SKE builds).
type Schedule struct {
	Period   int64
	Duration int64
}

// Port is one inter-partition communication endpoint.
type Port struct {
	Name      string
	Channel   uint32
	Type      PortType
	Direction PortDirection
}

// PortType identifies the port discipline.
type PortType uint32

// Port types.
const (
	PortSampling PortType = 0
	PortQueuing  PortType = 1
)

// String returns the string representation of the port type.
func (t PortType) String() string {
	switch t {
	case PortSampling:
		return "sampling"
	case PortQueuing:
		return "queuing"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// PortDirection says whether the partition writes or reads the port.
type PortDirection uint32

// Port directions.
const (
	PortSource      PortDirection = 0
	PortDestination PortDirection = 1
)

// String returns the string representation of the port direction.
func (d PortDirection) String() string {
	switch d {
	case PortSource:
		return "source"
	case PortDestination:
		return "destination"
	default:
		return fmt.Sprintf("direction(%d)", uint32(d))
	}
}
