// Package model contains domain models passed between layers.
package model

// Presence bits in Event.DevicePresence. A set bit means the corresponding
// external device contributed data to the event record.
const (
	PresenceTIB  uint16 = 1 << 0
	PresenceUCTS uint16 = 1 << 1
)

// DragonCounters holds the per-module counters of the Dragon readout board.
type DragonCounters struct {
	PPSCounter        uint16 // pulse-per-second counter, 1 s granularity
	TenMHzCounter     uint32 // 10 MHz sub-counter, 100 ns granularity
	EventCounter      uint32
	TriggerCounter    uint32
	LocalClockCounter uint64 // free-running high-resolution clock
}

// TIBData holds the trigger-board counters attached to an event.
type TIBData struct {
	EventCounter  uint32
	PPSCounter    uint16
	TenMHzCounter uint32 // decoded from the 3-byte packed on-wire counter
	StereoPattern uint16
	MaskedTrigger uint8
}

// UCTSData is the debug block of the externally synchronized absolute clock.
type UCTSData struct {
	Timestamp         uint64 // absolute timestamp, ns on the TAI scale
	Address           uint32
	EventCounter      uint32
	BusyCounter       uint32
	PPSCounter        uint32
	ClockCounter      uint32
	TriggerType       uint8
	WhiteRabbitStatus uint8
	StereoPattern     uint8
	NumInBunch        uint8
	CDTSVersion       uint32
}

// Event is the unit flowing through the pipeline. The reconciler mutates the
// UCTS fields in place when a jump correction reassigns the clock sample.
type Event struct {
	EventID        uint64
	TelescopeID    uint16
	DevicePresence uint16
	Modules        []DragonCounters // indexed by module position, see CameraConfig.ModuleIDs
	TIB            TIBData
	UCTS           UCTSData
	UCTSJump       bool // set when the UCTS fields were overwritten by jump correction
}

// TIBAvailable reports whether the trigger board contributed to this event.
func (e *Event) TIBAvailable() bool {
	return e.DevicePresence&PresenceTIB != 0
}

// UCTSAvailable reports whether the absolute clock contributed to this event.
func (e *Event) UCTSAvailable() bool {
	return e.DevicePresence&PresenceUCTS != 0
}

// CameraConfig is the configuration record discovered on a substream. Data
// arrives in arbitrary module order; ModuleIDs maps positions to hardware ids.
type CameraConfig struct {
	TelescopeID uint16
	LocalRunID  uint32
	ModuleIDs   []uint16
}

// ModuleIndex returns the position of the module with the given hardware id.
func (c *CameraConfig) ModuleIndex(moduleID uint16) (int, bool) {
	for i, id := range c.ModuleIDs {
		if id == moduleID {
			return i, true
		}
	}
	return 0, false
}

// NumModules returns the number of modules described by the configuration.
func (c *CameraConfig) NumModules() int {
	return len(c.ModuleIDs)
}
