// Package watertank implements the pressure->volume reservoir
// abstraction and the per-tank fault-detection state machine described
// in spec §4.4 — the heart of the supervisory core. Grounded in the
// original firmware's WaterTank.cpp/h, generalized to the full
// IS_NOT_FILLING / HAS_STOPPED / DEACTIVATED state machine and the
// self-regulation protection window spec.md's latest revision adds.
package watertank

import (
	"github.com/user/cistern"
	"github.com/user/cistern/pkg/clock"
	"github.com/user/cistern/pkg/xerr"
)

// Default tunables from spec §4.4. New gives every tank these values;
// there is no way to override them.
const (
	DefaultChangingInterval           = 5 * 60 * 1000
	DefaultMaxTimeNotFilling          = 10 * 60 * 1000
	DefaultFillingCallsProtectionTime = 60 * 1000
)

// Source is the minimal view of a water source a tank needs to drive
// and observe its own filling. pkg/watersource.WaterSource satisfies it.
type Source interface {
	TurnOn(force bool) error
	TurnOff()
	IsTurnedOn() bool
	CanEnable() bool
}

// Calibration holds the operator-supplied linear pressure->volume
// parameters from spec §3. Values are stored, not validated, except for
// the minimumVolume<=maxVolume invariant enforced by SetMinimumVolume/
// SetMaxVolume.
type Calibration struct {
	PressureFactor        float64
	VolumeFactor          float64
	ZeroVolumePressure    float64
	PressureChangingValue float64
	MinimumVolume         float64
	MaxVolume             float64
}

// WaterTank is a reservoir whose level is inferred from a pressure
// sensor via Calibration.
type WaterTank struct {
	pin    cistern.PinHandle
	clk    cistern.Clock
	cal    Calibration
	source Source

	active bool

	fillingTimer                *clock.Timer
	pressureChangingTimer       *clock.Timer
	fillingCallsProtectionTimer *clock.Timer
	lastLoopPressure            float64
	currentError                *xerr.Fault

	changingInterval           uint32
	maxTimeNotFilling          uint32
	fillingCallsProtectionTime uint32
}

// New creates a WaterTank reading pin via clk, active by default.
func New(pin cistern.PinHandle, clk cistern.Clock, cal Calibration) *WaterTank {
	return &WaterTank{
		pin:                         pin,
		clk:                         clk,
		cal:                         cal,
		active:                      true,
		fillingTimer:                clock.NewTimer(clk),
		pressureChangingTimer:       clock.NewTimer(clk),
		fillingCallsProtectionTimer: clock.NewTimer(clk),
		changingInterval:            DefaultChangingInterval,
		maxTimeNotFilling:           DefaultMaxTimeNotFilling,
		fillingCallsProtectionTime:  DefaultFillingCallsProtectionTime,
	}
}

// SetSource rebinds (or clears, with nil) the water source that fills
// this tank.
func (t *WaterTank) SetSource(s Source) { t.source = s }

// Source returns the currently bound source, or nil.
func (t *WaterTank) Source() Source { return t.source }

// Active reports the operator enable/disable flag.
func (t *WaterTank) Active() bool { return t.active }

// Calibration returns a copy of the tank's calibration parameters.
func (t *WaterTank) Calibration() Calibration { return t.cal }

// Pin exposes the underlying pressure-sensor pin handle.
func (t *WaterTank) Pin() cistern.PinHandle { return t.pin }

// Pressure computes pressure = raw_sensor_reading * pressureFactor.
func (t *WaterTank) Pressure() float64 {
	return float64(t.pin.Read()) * t.cal.PressureFactor
}

// Volume computes volume = max(0, pressure*volumeFactor - zeroVolumePressure).
func (t *WaterTank) Volume() float64 {
	v := t.Pressure()*t.cal.VolumeFactor - t.cal.ZeroVolumePressure
	if v < 0 {
		return 0
	}
	return v
}

func (t *WaterTank) MinimumVolume() float64 { return t.cal.MinimumVolume }
func (t *WaterTank) MaxVolume() float64     { return t.cal.MaxVolume }

// SetMinimumVolume sets minimumVolume, enforcing minimumVolume<=maxVolume.
func (t *WaterTank) SetMinimumVolume(v float64) error {
	if v > t.cal.MaxVolume {
		return xerr.Invalid(xerr.InvalidVolumeThresholds)
	}
	t.cal.MinimumVolume = v
	return nil
}

// SetMaxVolume sets maxVolume, enforcing minimumVolume<=maxVolume.
func (t *WaterTank) SetMaxVolume(v float64) error {
	if v < t.cal.MinimumVolume {
		return xerr.Invalid(xerr.InvalidVolumeThresholds)
	}
	t.cal.MaxVolume = v
	return nil
}

func (t *WaterTank) SetZeroVolumePressure(v float64)    { t.cal.ZeroVolumePressure = v }
func (t *WaterTank) SetVolumeFactor(v float64)           { t.cal.VolumeFactor = v }
func (t *WaterTank) SetPressureFactor(v float64)         { t.cal.PressureFactor = v }
func (t *WaterTank) SetPressureChangingValue(v float64)  { t.cal.PressureChangingValue = v }

// CurrentError returns the fault currently latched on this tank, if any.
func (t *WaterTank) CurrentError() *xerr.Fault { return t.currentError }

// CanFill implements can_fill(tank) from spec §3:
// tank has a source ∧ source.canEnable() ∧ tank.active ∧ volume < maxVolume.
func (t *WaterTank) CanFill() bool {
	if t.source == nil {
		return false
	}
	if !t.source.CanEnable() {
		return false
	}
	if !t.active {
		return false
	}
	return t.Volume() < t.cal.MaxVolume
}

// Fill implements spec §4.4's fill(force) preconditions and effect.
func (t *WaterTank) Fill(force bool) error {
	if t.source == nil {
		return xerr.Invalid(xerr.CannotFillWaterTankWithoutWaterSource)
	}
	if !force {
		if !t.active {
			return xerr.Invalid(xerr.CannotFillDeactivatedWaterTank)
		}
		if t.Volume() >= t.cal.MaxVolume {
			return xerr.Invalid(xerr.CannotFillWaterTankMaxVolume)
		}
	}

	t.active = true
	t.fillingTimer.Start()
	t.fillingCallsProtectionTimer.Start()
	t.pressureChangingTimer.Stop()
	t.lastLoopPressure = t.Pressure()
	return t.source.TurnOn(force)
}

// StopFilling turns the source off without touching the active flag.
func (t *WaterTank) StopFilling() {
	if t.source != nil {
		t.source.TurnOff()
	}
}

// SetActive flips the operator enable/disable flag; disabling also
// stops filling.
func (t *WaterTank) SetActive(active bool) {
	t.active = active
	if !active {
		t.StopFilling()
	}
}

// Loop executes one scheduler tick of spec §4.4's state machine. It
// returns the tank's current fault, if any (also available afterwards
// via CurrentError): the one raised during this tick, or one latched by
// an earlier tick. The fault is cleared only on a tick where the tank is
// active and its source is on.
func (t *WaterTank) Loop() *xerr.Fault {
	if t.source == nil {
		return nil
	}

	if t.active && t.source.IsTurnedOn() {
		t.currentError = nil
		p := t.Pressure()

		if abs(p-t.lastLoopPressure) >= t.cal.PressureChangingValue {
			t.pressureChangingTimer.Start()
		} else if t.pressureChangingTimer.Running() {
			// pressure was moving, then froze.
			switch {
			case t.pressureChangingTimer.ElapsedAtLeast(t.maxTimeNotFilling):
				t.currentError = xerr.RuntimeFault(xerr.MaxTimeWaterTankNotFilling)
				t.SetActive(false)
			case t.pressureChangingTimer.ElapsedAtLeast(t.changingInterval):
				t.currentError = xerr.RuntimeFault(xerr.WaterTankHasStoppedToFill)
			}
		} else {
			// pressure never started moving.
			switch {
			case t.fillingTimer.ElapsedAtLeast(t.maxTimeNotFilling):
				t.currentError = xerr.RuntimeFault(xerr.MaxTimeWaterTankNotFilling)
				t.SetActive(false)
			case t.fillingTimer.ElapsedAtLeast(t.changingInterval):
				t.currentError = xerr.RuntimeFault(xerr.WaterTankIsNotFilling)
			}
		}

		t.lastLoopPressure = p
	}

	if t.fillingCallsProtectionTimer.Elapsed() > t.fillingCallsProtectionTime || !t.fillingCallsProtectionTimer.Running() {
		volume := t.Volume()
		switch {
		case (!t.CanFill() || volume >= t.cal.MaxVolume) && t.source.IsTurnedOn():
			t.source.TurnOff()
			t.fillingCallsProtectionTimer.Start()
		case t.CanFill() && volume <= t.cal.MinimumVolume && !t.source.IsTurnedOn():
			_ = t.Fill(false) // preflight failures are silently ignored, see spec DESIGN NOTES (a)
			t.fillingCallsProtectionTimer.Start()
		}
	}

	return t.currentError
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
