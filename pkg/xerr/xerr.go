// Package xerr defines the core's error taxonomy and the process-wide
// single-slot channel used to surface background (RUNTIME) faults from
// Manager.loop() to the request dispatcher. Every fallible call in the
// rest of the core returns an explicit (..., error) instead of relying
// on the channel — the channel is only the asynchronous-fault surface
// described in DESIGN NOTES, not a general error-propagation mechanism.
package xerr

import "fmt"

// Severity classifies a Fault for the wire-level error response.
type Severity uint8

const (
	Generic Severity = iota
	Runtime
	InvalidRequest
)

func (s Severity) String() string {
	switch s {
	case Runtime:
		return "RUNTIME_ERROR"
	case InvalidRequest:
		return "INVALID_REQUEST"
	default:
		return "EXCEPTION"
	}
}

// Kind is the specific taxonomy entry from spec §7.
type Kind string

const (
	// Invalid-request kind
	WaterSourceNotFound                     Kind = "WATER_SOURCE_NOT_FOUND"
	WaterTankNotFound                       Kind = "WATER_TANK_NOT_FOUND"
	WaterSourceAlreadyRegistered            Kind = "WATER_SOURCE_ALREADY_REGISTERED"
	WaterTankAlreadyRegistered              Kind = "WATER_TANK_ALREADY_REGISTERED"
	MaxWaterSourceError                     Kind = "MAX_WATER_SOURCE_ERROR"
	MaxWaterTankError                       Kind = "MAX_WATER_TANK_ERROR"
	ResourceNameEmpty                       Kind = "RESOURCE_NAME_EMPTY"
	ResourceNameTooLong                     Kind = "RESOURCE_NAME_TOO_LONG"
	CannotHandleWaterSourceInAuto           Kind = "CANNOT_HANDLE_WATER_SOURCE_IN_AUTO"
	CannotHandleWaterTankInAuto             Kind = "CANNOT_HANDLE_WATER_TANK_IN_AUTO"
	CannotEnableWaterSourceDueMinimumVolume Kind = "CANNOT_ENABLE_WATER_SOURCE_DUE_MINIMUM_VOLUME"
	CannotFillWaterTankWithoutWaterSource   Kind = "CANNOT_FILL_WATER_TANK_WITHOUT_WATER_SOURCE"
	CannotFillWaterTankMaxVolume            Kind = "CANNOT_FILL_WATER_TANK_MAX_VOLUME"
	CannotFillDeactivatedWaterTank          Kind = "CANNOT_FILL_DEACTIVATED_WATER_TANK"
	CannotTurnOnDeactivatedWaterSource      Kind = "CANNOT_TURN_ON_DEACTIVATED_WATER_SOURCE"
	CannotRemoveWaterSourceDependency       Kind = "CANNOT_REMOVE_WATER_SOURCE_DEPENDENCY"
	CannotRemoveWaterTankDependency         Kind = "CANNOT_REMOVE_WATER_TANK_DEPENDENCY"
	InvalidOperationMode                    Kind = "INVALID_OPERATION_MODE"
	InvalidVolumeThresholds                 Kind = "INVALID_VOLUME_THRESHOLDS"
	PinNotFound                             Kind = "PIN_NOT_FOUND"
	FailedToSave                            Kind = "FAILED_TO_SAVE"
	SaveCorrupted                           Kind = "SAVE_CORRUPTED"

	// Runtime-error kind
	WaterTankIsNotFilling      Kind = "WATER_TANK_IS_NOT_FILLING"
	WaterTankHasStoppedToFill  Kind = "WATER_TANK_HAS_STOPPED_TO_FILL"
	MaxTimeWaterTankNotFilling Kind = "MAX_TIME_WATER_TANK_NOT_FILLING"
)

// Fault is the core's single error type. Arg carries short (<=20 byte)
// context, e.g. the offending tank's name.
type Fault struct {
	Kind     Kind
	Severity Severity
	Arg      string
}

func New(sev Severity, kind Kind) *Fault {
	return &Fault{Kind: kind, Severity: sev}
}

func NewWithArg(sev Severity, kind Kind, arg string) *Fault {
	if len(arg) > 20 {
		arg = arg[:20]
	}
	return &Fault{Kind: kind, Severity: sev, Arg: arg}
}

func Invalid(kind Kind) *Fault { return New(InvalidRequest, kind) }
func RuntimeFault(kind Kind) *Fault { return New(Runtime, kind) }

func (f *Fault) Error() string {
	if f.Arg != "" {
		return fmt.Sprintf("%s: %s (%s)", f.Severity, f.Kind, f.Arg)
	}
	return fmt.Sprintf("%s: %s", f.Severity, f.Kind)
}

// Channel is the process-wide, thread-unsafe "current thrown value"
// slot. throw() overwrites the slot — last-writer-wins is deliberate,
// matching the original firmware's Exception channel; callers that care
// about the first of several failures must check after each call rather
// than relying on this slot (see pkg/persist's save() for the one place
// that ordering matters).
type Channel struct {
	current *Fault
}

// NewChannel returns an empty channel.
func NewChannel() *Channel { return &Channel{} }

// Throw overwrites the current slot.
func (c *Channel) Throw(f *Fault) { c.current = f }

// Pop reads and clears the slot.
func (c *Channel) Pop() *Fault {
	f := c.current
	c.current = nil
	return f
}

// HasException is a non-destructive check.
func (c *Channel) HasException() bool { return c.current != nil }

// Peek is a non-destructive read.
func (c *Channel) Peek() *Fault { return c.current }

// Clear empties the slot without returning its value.
func (c *Channel) Clear() { c.current = nil }
