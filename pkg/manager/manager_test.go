package manager

import (
	"strings"
	"testing"

	"github.com/user/cistern/pkg/clock"
	"github.com/user/cistern/pkg/pinio"
	"github.com/user/cistern/pkg/watertank"
	"github.com/user/cistern/pkg/xerr"
)

func newTestManager() (*Manager, *pinio.Registry, *clock.Fake, *xerr.Channel) {
	clk := clock.NewFake(0)
	reg := pinio.NewRegistry()
	exceptions := xerr.NewChannel()
	return New(clk, reg, exceptions), reg, clk, exceptions
}

func tankCal() watertank.Calibration {
	return watertank.Calibration{
		PressureFactor: 0.01, VolumeFactor: 1.0, PressureChangingValue: 0.2,
		MinimumVolume: 10, MaxVolume: 100,
	}
}

func TestRegisterWaterSourceValidation(t *testing.T) {
	m, _, _, _ := newTestManager()

	if _, err := m.RegisterWaterSource("", 1, ""); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := m.RegisterWaterSource(strings.Repeat("x", MaxNameLength+1), 1, ""); err == nil {
		t.Fatal("expected error for too-long name")
	}
	if _, err := m.RegisterWaterSource("S", 1, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.RegisterWaterSource("S", 2, ""); err == nil {
		t.Fatal("expected error for duplicate name")
	}

	for i := 0; i < MaxWaterSources-1; i++ {
		name := string(rune('A' + i))
		if _, err := m.RegisterWaterSource(name, 10+i, ""); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if _, err := m.RegisterWaterSource("overflow", 99, ""); err == nil {
		t.Fatal("expected MAX_WATER_SOURCE_ERROR at capacity")
	}
}

// Invariant 1: a pin's handle exists while a registered entity references
// it and is released when the last one is unregistered.
func TestPinReferenceCounting(t *testing.T) {
	m, reg, _, _ := newTestManager()

	if _, err := m.RegisterWaterSource("S", 5, ""); err != nil {
		t.Fatal(err)
	}
	if reg.Size() != 1 {
		t.Fatalf("expected 1 registered pin, got %d", reg.Size())
	}
	if err := m.UnregisterWaterSource("S"); err != nil {
		t.Fatal(err)
	}
	if reg.Size() != 0 {
		t.Fatalf("expected pin released after unregister, got %d handles", reg.Size())
	}
}

func TestUnregisterRefusesLiveDependency(t *testing.T) {
	m, _, _, _ := newTestManager()

	if _, err := m.RegisterWaterTank("T", 0, tankCal(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RegisterWaterSource("S", 1, "T"); err != nil {
		t.Fatal(err)
	}

	fault, ok := err2fault(m.UnregisterWaterTank("T"))
	if !ok || fault.Kind != xerr.CannotRemoveWaterTankDependency {
		t.Fatalf("unexpected error: %v", fault)
	}

	if err := m.UnregisterWaterSource("S"); err != nil {
		t.Fatalf("unregistering the dependent source should succeed: %v", err)
	}
	if err := m.UnregisterWaterTank("T"); err != nil {
		t.Fatalf("tank should now be removable: %v", err)
	}
}

func err2fault(err error) (*xerr.Fault, bool) {
	f, ok := err.(*xerr.Fault)
	return f, ok
}

func TestModeGatesDirectCommands(t *testing.T) {
	m, _, _, _ := newTestManager()
	m.RegisterWaterSource("S", 1, "")
	m.RegisterWaterTank("T", 0, tankCal(), "S")
	m.SetMode(Auto)

	if err := m.SetWaterSourceState("S", true, false); err == nil {
		t.Fatal("expected AUTO-mode gate on SetWaterSourceState")
	}
	if err := m.FillWaterTank("T", false); err == nil {
		t.Fatal("expected AUTO-mode gate on FillWaterTank")
	}
	// Active flags are allowed in any mode.
	if err := m.SetWaterSourceActive("S", false); err != nil {
		t.Fatalf("SetWaterSourceActive should bypass the mode gate: %v", err)
	}
	if err := m.SetWaterTankActive("T", false); err != nil {
		t.Fatalf("SetWaterTankActive should bypass the mode gate: %v", err)
	}
}

// Loop rotation: two tanks both fault in the same window; the manager
// surfaces at most one fault per ERROR_INTERVAL, round-robining the
// starting point across windows.
func TestLoopFaultRotation(t *testing.T) {
	m, reg, clk, exceptions := newTestManager()

	m.RegisterWaterSource("S1", 1, "")
	m.RegisterWaterSource("S2", 2, "")
	m.RegisterWaterTank("T1", 10, tankCal(), "S1")
	m.RegisterWaterTank("T2", 11, tankCal(), "S2")
	m.SetMode(Auto)

	reg.SetVirtualValue(10, 500)
	reg.SetVirtualValue(11, 500)
	m.Loop() // opens both sources

	clk.Advance(10*60*1000 + 1000) // exceeds MaxTimeNotFilling for both tanks
	m.Loop()

	if !exceptions.HasException() {
		t.Fatal("expected a fault surfaced on the first post-window Loop")
	}
	first := exceptions.Pop()
	if first.Arg != "T1" && first.Arg != "T2" {
		t.Fatalf("unexpected fault arg: %q", first.Arg)
	}

	// Immediately after, the error interval has not elapsed again, so no
	// second fault should surface even though the other tank also faulted.
	m.Loop()
	if exceptions.HasException() {
		t.Fatal("expected rotation to rate-limit to one fault per ERROR_INTERVAL")
	}

	clk.Advance(ErrorIntervalMS + 1)
	m.Loop()
	if !exceptions.HasException() {
		t.Fatal("expected the other tank's fault to surface once the interval elapsed again")
	}
	second := exceptions.Pop()
	if second.Arg == first.Arg {
		t.Fatalf("expected rotation to surface the other tank, got %q twice", first.Arg)
	}
}

func TestReset(t *testing.T) {
	m, reg, _, exceptions := newTestManager()

	m.RegisterWaterSource("S", 1, "")
	m.RegisterWaterTank("T", 0, tankCal(), "S")
	m.SetMode(Auto)
	exceptions.Throw(xerr.RuntimeFault(xerr.WaterTankIsNotFilling))

	m.Reset()

	if m.Mode() != Manual {
		t.Fatal("expected MANUAL mode after reset")
	}
	if m.TotalWaterSources() != 0 || m.TotalWaterTanks() != 0 {
		t.Fatal("expected all registries cleared after reset")
	}
	if reg.Size() != 0 {
		t.Fatalf("expected all pins released after reset, got %d", reg.Size())
	}
	if exceptions.HasException() {
		t.Fatal("expected exception channel cleared after reset")
	}
}
