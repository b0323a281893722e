// Package substream reads and writes single acquisition-module event files.
//
// A substream file is a little-endian binary container: a fixed header, an
// optional configuration record (the module-id table), then fixed-size event
// records in source order. Each acquisition module writes its own file; the
// merger interleaves them back into one stream.
package substream

import (
	"encoding/binary"

	"github.com/okian/telsync/internal/domain/counters"
	"github.com/okian/telsync/internal/domain/model"
)

// File header layout. The event count is patched in on writer close so a
// consumer can size the stream without iterating it.
const (
	magic         = "TLSB"
	version       = uint16(1)
	headerSize    = 20
	countOffset   = 12 // byte offset of the event-count field in the header
	flagHasConfig = uint16(1 << 0)
)

type header struct {
	telescopeID uint16
	numModules  uint16
	flags       uint16
	eventCount  uint64
}

func encodeHeader(b []byte, h header) {
	copy(b[0:4], magic)
	binary.LittleEndian.PutUint16(b[4:6], version)
	binary.LittleEndian.PutUint16(b[6:8], h.telescopeID)
	binary.LittleEndian.PutUint16(b[8:10], h.numModules)
	binary.LittleEndian.PutUint16(b[10:12], h.flags)
	binary.LittleEndian.PutUint64(b[12:20], h.eventCount)
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < headerSize {
		return header{}, ErrTruncated
	}
	if string(b[0:4]) != magic {
		return header{}, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(b[4:6]); v != version {
		return header{}, ErrUnsupportedVersion
	}
	return header{
		telescopeID: binary.LittleEndian.Uint16(b[6:8]),
		numModules:  binary.LittleEndian.Uint16(b[8:10]),
		flags:       binary.LittleEndian.Uint16(b[10:12]),
		eventCount:  binary.LittleEndian.Uint64(b[12:20]),
	}, nil
}

// configSize returns the on-disk size of the configuration record.
func configSize(numModules int) int {
	return 4 + 2*numModules // local run id + module-id table
}

func encodeConfig(b []byte, cfg *model.CameraConfig) {
	binary.LittleEndian.PutUint32(b[0:4], cfg.LocalRunID)
	for i, id := range cfg.ModuleIDs {
		binary.LittleEndian.PutUint16(b[4+2*i:6+2*i], id)
	}
}

func decodeConfig(b []byte, telescopeID uint16, numModules int) (*model.CameraConfig, error) {
	if len(b) < configSize(numModules) {
		return nil, ErrTruncated
	}
	cfg := &model.CameraConfig{
		TelescopeID: telescopeID,
		LocalRunID:  binary.LittleEndian.Uint32(b[0:4]),
		ModuleIDs:   make([]uint16, numModules),
	}
	for i := range cfg.ModuleIDs {
		cfg.ModuleIDs[i] = binary.LittleEndian.Uint16(b[4+2*i : 6+2*i])
	}
	return cfg, nil
}

// eventSize returns the on-disk size of one event record.
func eventSize(numModules int) int {
	return 8 + 2 + numModules*counters.DragonSize + counters.TIBSize + counters.UCTSSize
}

func encodeEvent(b []byte, ev *model.Event) {
	binary.LittleEndian.PutUint64(b[0:8], ev.EventID)
	binary.LittleEndian.PutUint16(b[8:10], ev.DevicePresence)
	off := 10
	for _, m := range ev.Modules {
		counters.EncodeDragon(b[off:off+counters.DragonSize], m)
		off += counters.DragonSize
	}
	counters.EncodeTIB(b[off:off+counters.TIBSize], ev.TIB)
	off += counters.TIBSize
	counters.EncodeUCTS(b[off:off+counters.UCTSSize], ev.UCTS)
}

func decodeEvent(b []byte, telescopeID uint16, numModules int) (*model.Event, error) {
	if len(b) < eventSize(numModules) {
		return nil, ErrTruncated
	}
	ev := &model.Event{
		EventID:        binary.LittleEndian.Uint64(b[0:8]),
		TelescopeID:    telescopeID,
		DevicePresence: binary.LittleEndian.Uint16(b[8:10]),
		Modules:        make([]model.DragonCounters, numModules),
	}
	off := 10
	for i := range ev.Modules {
		m, err := counters.DecodeDragon(b[off : off+counters.DragonSize])
		if err != nil {
			return nil, err
		}
		ev.Modules[i] = m
		off += counters.DragonSize
	}
	tib, err := counters.DecodeTIB(b[off : off+counters.TIBSize])
	if err != nil {
		return nil, err
	}
	ev.TIB = tib
	off += counters.TIBSize
	ucts, err := counters.DecodeUCTS(b[off : off+counters.UCTSSize])
	if err != nil {
		return nil, err
	}
	ev.UCTS = ucts
	return ev, nil
}
