package watersource

import (
	"testing"

	"github.com/user/cistern/pkg/pinio"
	"github.com/user/cistern/pkg/xerr"
)

type fakeSupply struct {
	volume  float64
	minimum float64
}

func (s *fakeSupply) Volume() float64       { return s.volume }
func (s *fakeSupply) MinimumVolume() float64 { return s.minimum }

func TestTurnOnWithoutSupply(t *testing.T) {
	reg := pinio.NewRegistry()
	handle := reg.Acquire(0, 1, 0, nil) // ModeOutput=1, PinDigital=0
	s := New(handle)

	if err := s.TurnOn(false); err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
	if !s.IsTurnedOn() {
		t.Fatal("expected source to read turned-on after TurnOn")
	}
	s.TurnOff()
	if s.IsTurnedOn() {
		t.Fatal("expected source to read off after TurnOff")
	}
}

func TestTurnOnDeactivated(t *testing.T) {
	reg := pinio.NewRegistry()
	handle := reg.Acquire(0, 1, 0, nil)
	s := New(handle)
	s.SetActive(false)

	err := s.TurnOn(false)
	fault, ok := err.(*xerr.Fault)
	if !ok || fault.Kind != xerr.CannotTurnOnDeactivatedWaterSource {
		t.Fatalf("expected CANNOT_TURN_ON_DEACTIVATED_WATER_SOURCE, got %v", err)
	}

	// force bypasses the deactivated check.
	if err := s.TurnOn(true); err != nil {
		t.Fatalf("forced TurnOn should succeed: %v", err)
	}
}

func TestTurnOnBelowSupplyMinimum(t *testing.T) {
	reg := pinio.NewRegistry()
	handle := reg.Acquire(0, 1, 0, nil)
	supply := &fakeSupply{volume: 2, minimum: 10}
	s := NewWithSupply(handle, supply)

	err := s.TurnOn(false)
	fault, ok := err.(*xerr.Fault)
	if !ok || fault.Kind != xerr.CannotEnableWaterSourceDueMinimumVolume {
		t.Fatalf("expected CANNOT_ENABLE_WATER_SOURCE_DUE_MINIMUM_VOLUME, got %v", err)
	}

	if err := s.TurnOn(true); err != nil {
		t.Fatalf("forced TurnOn should bypass the supply-volume guard: %v", err)
	}
}

func TestTurnOnAboveSupplyMinimum(t *testing.T) {
	reg := pinio.NewRegistry()
	handle := reg.Acquire(0, 1, 0, nil)
	supply := &fakeSupply{volume: 50, minimum: 10}
	s := NewWithSupply(handle, supply)

	if err := s.TurnOn(false); err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
}

func TestSetActiveFalseTurnsOff(t *testing.T) {
	reg := pinio.NewRegistry()
	handle := reg.Acquire(0, 1, 0, nil)
	s := New(handle)
	s.TurnOn(false)

	s.SetActive(false)
	if s.IsTurnedOn() {
		t.Fatal("expected SetActive(false) to turn the source off")
	}
}
