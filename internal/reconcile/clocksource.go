package reconcile

import "fmt"

// ClockSource selects which reconstructed time a reconciler reports.
type ClockSource uint8

const (
	// ClockUCTS reports the externally synchronized absolute clock.
	ClockUCTS ClockSource = iota + 1
	// ClockDragon reports the time implied by the Dragon board counters.
	ClockDragon
	// ClockTIB reports the time implied by the trigger-board counters.
	ClockTIB
)

// String returns the configuration spelling of the clock source.
func (s ClockSource) String() string {
	switch s {
	case ClockUCTS:
		return "ucts"
	case ClockDragon:
		return "dragon"
	case ClockTIB:
		return "tib"
	default:
		return fmt.Sprintf("clocksource(%d)", uint8(s))
	}
}

// ParseClockSource maps a configuration string onto the closed enumeration.
func ParseClockSource(s string) (ClockSource, error) {
	switch s {
	case "ucts":
		return ClockUCTS, nil
	case "dragon":
		return ClockDragon, nil
	case "tib":
		return ClockTIB, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockSource, s)
	}
}
