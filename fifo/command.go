// Package fifo implements the control-channel protocol: the
// little-endian length-prefixed binary command stream exchanged between
// the runner and the integration running inside the benchmarked process,
// over a pair of named FIFOs.
package fifo

import (
	"encoding/binary"
	"fmt"
)

// Kind tags the variant carried by a Command.
type Kind byte

const (
	KindSetVersion Kind = iota
	KindSetIntegration
	KindCurrentBenchmark
	KindStartBenchmark
	KindStopBenchmark
	KindAddMarker
	KindGetIntegrationMode
	KindPingPerf
	KindAck
	KindErr
)

// MarkerKind tags the variant carried by a Marker.
type MarkerKind byte

const (
	MarkerSampleStart MarkerKind = iota
	MarkerSampleEnd
)

// Marker is a timestamp tagged with its role on the per-run timeline.
type Marker struct {
	Kind MarkerKind
	TsNs uint64
}

// IntegrationMode is the response payload for GetIntegrationMode.
type IntegrationMode byte

const (
	IntegrationModeAnalysis IntegrationMode = iota
	IntegrationModePerf
)

// Command is the FIFO Command tagged variant from the data model. Only
// the fields relevant to Kind are populated; callers switch on Kind.
type Command struct {
	Kind Kind

	// SetVersion
	Version uint32

	// SetIntegration
	IntegrationName    string
	IntegrationVersion string

	// CurrentBenchmark
	PID int32
	URI string

	// AddMarker
	Marker Marker

	// GetIntegrationMode response
	Mode IntegrationMode

	// Err
	Message string
}

// Ack and Err are convenience constructors for the runner's replies.
func Ack() Command { return Command{Kind: KindAck} }
func Err(msg string) Command { return Command{Kind: KindErr, Message: msg} }

// Encode serializes cmd into its wire representation: Kind byte followed
// by the variant's fields in a fixed order, little-endian throughout.
func Encode(cmd Command) []byte {
	buf := []byte{byte(cmd.Kind)}

	switch cmd.Kind {
	case KindSetVersion:
		buf = appendU32(buf, cmd.Version)
	case KindSetIntegration:
		buf = appendString(buf, cmd.IntegrationName)
		buf = appendString(buf, cmd.IntegrationVersion)
	case KindCurrentBenchmark:
		buf = appendU32(buf, uint32(cmd.PID))
		buf = appendString(buf, cmd.URI)
	case KindAddMarker:
		buf = append(buf, byte(cmd.Marker.Kind))
		buf = appendU64(buf, cmd.Marker.TsNs)
	case KindGetIntegrationMode:
		buf = append(buf, byte(cmd.Mode))
	case KindErr:
		buf = appendString(buf, cmd.Message)
	case KindStartBenchmark, KindStopBenchmark, KindPingPerf, KindAck:
		// no payload
	}

	return buf
}

// Decode parses one wire-format command from buf.
func Decode(buf []byte) (Command, error) {
	if len(buf) < 1 {
		return Command{}, fmt.Errorf("fifo: empty command buffer")
	}
	kind := Kind(buf[0])
	rest := buf[1:]

	cmd := Command{Kind: kind}
	var err error

	switch kind {
	case KindSetVersion:
		cmd.Version, rest, err = readU32(rest)
	case KindSetIntegration:
		cmd.IntegrationName, rest, err = readString(rest)
		if err == nil {
			cmd.IntegrationVersion, rest, err = readString(rest)
		}
	case KindCurrentBenchmark:
		var pid uint32
		pid, rest, err = readU32(rest)
		cmd.PID = int32(pid)
		if err == nil {
			cmd.URI, rest, err = readString(rest)
		}
	case KindAddMarker:
		if len(rest) < 1 {
			return Command{}, fmt.Errorf("fifo: truncated marker command")
		}
		cmd.Marker.Kind = MarkerKind(rest[0])
		rest = rest[1:]
		cmd.Marker.TsNs, rest, err = readU64(rest)
	case KindGetIntegrationMode:
		if len(rest) < 1 {
			return Command{}, fmt.Errorf("fifo: truncated integration-mode command")
		}
		cmd.Mode = IntegrationMode(rest[0])
		rest = rest[1:]
	case KindErr:
		cmd.Message, rest, err = readString(rest)
	case KindStartBenchmark, KindStopBenchmark, KindPingPerf, KindAck:
		// no payload
	default:
		return Command{}, fmt.Errorf("fifo: unknown command kind %d", kind)
	}

	if err != nil {
		return Command{}, fmt.Errorf("fifo: failed to decode command kind %d: %w", kind, err)
	}
	_ = rest

	return cmd, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, fmt.Errorf("short read for u32")
	}
	return binary.LittleEndian.Uint32(buf[:4]), buf[4:], nil
}

func readU64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("short read for u64")
	}
	return binary.LittleEndian.Uint64(buf[:8]), buf[8:], nil
}

func readString(buf []byte) (string, []byte, error) {
	l, buf, err := readU32(buf)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(buf)) < l {
		return "", nil, fmt.Errorf("short read for string of length %d", l)
	}
	return string(buf[:l]), buf[l:], nil
}
