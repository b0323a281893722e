// Package counters decodes the raw hardware counter blocks carried by event
// records and maps counter values to time offsets.
//
// All layouts are little-endian fixed-width integers as documented in the
// acquisition board interface. The functions here are pure: no I/O, no state.
package counters

import (
	"encoding/binary"

	"github.com/okian/telsync/internal/domain/model"
)

// On-wire sizes of the counter blocks in bytes.
const (
	DragonSize = 22
	TIBSize    = 12
	UCTSSize   = 36
)

// Nanosecond weights of the counter fields. The pps counter ticks once per
// second, the 10 MHz counter every 100 ns.
const (
	ppsWeightNanos    = int64(1_000_000_000)
	tenMHzWeightNanos = int64(100)
)

// DecodeDragon decodes one per-module Dragon counter block.
func DecodeDragon(b []byte) (model.DragonCounters, error) {
	if len(b) < DragonSize {
		return model.DragonCounters{}, ErrShortBlock
	}
	return model.DragonCounters{
		PPSCounter:        binary.LittleEndian.Uint16(b[0:2]),
		TenMHzCounter:     binary.LittleEndian.Uint32(b[2:6]),
		EventCounter:      binary.LittleEndian.Uint32(b[6:10]),
		TriggerCounter:    binary.LittleEndian.Uint32(b[10:14]),
		LocalClockCounter: binary.LittleEndian.Uint64(b[14:22]),
	}, nil
}

// EncodeDragon writes one Dragon counter block into b.
func EncodeDragon(b []byte, c model.DragonCounters) {
	binary.LittleEndian.PutUint16(b[0:2], c.PPSCounter)
	binary.LittleEndian.PutUint32(b[2:6], c.TenMHzCounter)
	binary.LittleEndian.PutUint32(b[6:10], c.EventCounter)
	binary.LittleEndian.PutUint32(b[10:14], c.TriggerCounter)
	binary.LittleEndian.PutUint64(b[14:22], c.LocalClockCounter)
}

// DecodeTIB decodes the trigger-board counter block. The 10 MHz counter is
// packed into three bytes on the wire.
func DecodeTIB(b []byte) (model.TIBData, error) {
	if len(b) < TIBSize {
		return model.TIBData{}, ErrShortBlock
	}
	return model.TIBData{
		EventCounter:  binary.LittleEndian.Uint32(b[0:4]),
		PPSCounter:    binary.LittleEndian.Uint16(b[4:6]),
		TenMHzCounter: ParseTIBTenMHz(b[6], b[7], b[8]),
		StereoPattern: binary.LittleEndian.Uint16(b[9:11]),
		MaskedTrigger: b[11],
	}, nil
}

// EncodeTIB writes the trigger-board counter block into b. TenMHzCounter
// values above 24 bits are truncated, matching the on-wire width.
func EncodeTIB(b []byte, t model.TIBData) {
	binary.LittleEndian.PutUint32(b[0:4], t.EventCounter)
	binary.LittleEndian.PutUint16(b[4:6], t.PPSCounter)
	b[6] = byte(t.TenMHzCounter)
	b[7] = byte(t.TenMHzCounter >> 8)
	b[8] = byte(t.TenMHzCounter >> 16)
	binary.LittleEndian.PutUint16(b[9:11], t.StereoPattern)
	b[11] = t.MaskedTrigger
}

// DecodeUCTS decodes the absolute-clock debug block.
func DecodeUCTS(b []byte) (model.UCTSData, error) {
	if len(b) < UCTSSize {
		return model.UCTSData{}, ErrShortBlock
	}
	return model.UCTSData{
		Timestamp:         binary.LittleEndian.Uint64(b[0:8]),
		Address:           binary.LittleEndian.Uint32(b[8:12]),
		EventCounter:      binary.LittleEndian.Uint32(b[12:16]),
		BusyCounter:       binary.LittleEndian.Uint32(b[16:20]),
		PPSCounter:        binary.LittleEndian.Uint32(b[20:24]),
		ClockCounter:      binary.LittleEndian.Uint32(b[24:28]),
		TriggerType:       b[28],
		WhiteRabbitStatus: b[29],
		StereoPattern:     b[30],
		NumInBunch:        b[31],
		CDTSVersion:       binary.LittleEndian.Uint32(b[32:36]),
	}, nil
}

// EncodeUCTS writes the absolute-clock debug block into b.
func EncodeUCTS(b []byte, u model.UCTSData) {
	binary.LittleEndian.PutUint64(b[0:8], u.Timestamp)
	binary.LittleEndian.PutUint32(b[8:12], u.Address)
	binary.LittleEndian.PutUint32(b[12:16], u.EventCounter)
	binary.LittleEndian.PutUint32(b[16:20], u.BusyCounter)
	binary.LittleEndian.PutUint32(b[20:24], u.PPSCounter)
	binary.LittleEndian.PutUint32(b[24:28], u.ClockCounter)
	b[28] = u.TriggerType
	b[29] = u.WhiteRabbitStatus
	b[30] = u.StereoPattern
	b[31] = u.NumInBunch
	binary.LittleEndian.PutUint32(b[32:36], u.CDTSVersion)
}

// ParseTIBTenMHz unpacks the 3-byte little-endian 10 MHz counter.
func ParseTIBTenMHz(b0, b1, b2 byte) uint32 {
	return uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16
}

// DragonOffsetNanos maps a pps / 10 MHz counter pair to a nanosecond offset
// from the counter's reference point.
func DragonOffsetNanos(pps uint16, tenMHz uint32) int64 {
	return int64(pps)*ppsWeightNanos + int64(tenMHz)*tenMHzWeightNanos
}

// TIBOffsetNanos maps the trigger-board counter pair to a nanosecond offset.
// Identical weighting to the Dragon counters; kept separate because the two
// boards free-run independently.
func TIBOffsetNanos(pps uint16, tenMHz uint32) int64 {
	return int64(pps)*ppsWeightNanos + int64(tenMHz)*tenMHzWeightNanos
}
