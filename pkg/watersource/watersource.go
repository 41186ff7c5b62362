// Package watersource implements the valve/pump abstraction described in
// spec §3/§4.3: a write-capable pin handle, an optional supply tank
// reference (by name, resolved by the caller — see pkg/manager, which
// keeps the tank<->source reference graph acyclic in Go by never letting
// one entity own the other directly), and the active/turn-on/turn-off
// state machine. Grounded in the original firmware's WaterSource.cpp/h.
package watersource

import (
	"github.com/user/cistern"
	"github.com/user/cistern/pkg/xerr"
)

// Supply is the minimal view of a supply tank a source needs to guard
// against running dry: its current volume and its minimum threshold.
// pkg/watertank.WaterTank satisfies this.
type Supply interface {
	Volume() float64
	MinimumVolume() float64
}

// WaterSource is a controllable valve/pump with exactly one actuator pin.
type WaterSource struct {
	pin    cistern.PinHandle
	supply Supply // may be nil
	active bool
}

// New creates a WaterSource bound to pin, with no supply tank. active
// defaults to true (operator-enabled) per the original constructor.
func New(pin cistern.PinHandle) *WaterSource {
	return &WaterSource{pin: pin, active: true}
}

// NewWithSupply creates a WaterSource bound to pin that refuses to open
// (absent force) while supply is below its minimum volume.
func NewWithSupply(pin cistern.PinHandle, supply Supply) *WaterSource {
	return &WaterSource{pin: pin, supply: supply, active: true}
}

// SetSupply rebinds (or clears, with nil) the supply tank reference.
func (s *WaterSource) SetSupply(supply Supply) { s.supply = supply }

// Supply returns the currently bound supply tank view, or nil.
func (s *WaterSource) Supply() Supply { return s.supply }

// Active reports the operator enable/disable flag.
func (s *WaterSource) Active() bool { return s.active }

// CanEnable implements canEnable(source) from spec §3:
// source.active ∧ (supply absent ∨ supply.volume > supply.minimumVolume).
func (s *WaterSource) CanEnable() bool {
	if !s.active {
		return false
	}
	if s.supply == nil {
		return true
	}
	return s.supply.Volume() > s.supply.MinimumVolume()
}

// TurnOn implements §4.3's enable(force) precondition chain, first
// failure wins:
//  1. !force && !active -> CANNOT_TURN_ON_DEACTIVATED_WATER_SOURCE
//  2. !force && !CanEnable() -> CANNOT_ENABLE_WATER_SOURCE_DUE_MINIMUM_VOLUME
//
// force exists so the Manager can open a source while bootstrapping the
// filling of its own tank even when that tank (the sink, not the supply)
// is below threshold.
func (s *WaterSource) TurnOn(force bool) error {
	if !force {
		if !s.active {
			return xerr.Invalid(xerr.CannotTurnOnDeactivatedWaterSource)
		}
		if !s.CanEnable() {
			return xerr.Invalid(xerr.CannotEnableWaterSourceDueMinimumVolume)
		}
	}
	s.pin.Write(1)
	return nil
}

// TurnOff writes logical LOW unconditionally.
func (s *WaterSource) TurnOff() {
	s.pin.Write(0)
}

// IsTurnedOn reads the pin back and reports whether it reads exactly 1.
func (s *WaterSource) IsTurnedOn() bool {
	return s.pin.Read() == 1
}

// SetActive flips the operator enable/disable flag; disabling also
// turns the source off.
func (s *WaterSource) SetActive(active bool) {
	s.active = active
	if !active {
		s.TurnOff()
	}
}

// Pin exposes the underlying handle, e.g. so the Manager can release it
// on unregister.
func (s *WaterSource) Pin() cistern.PinHandle { return s.pin }
