package persist

import (
	"testing"

	"github.com/user/cistern/pkg/clock"
	"github.com/user/cistern/pkg/manager"
	"github.com/user/cistern/pkg/nvstore"
	"github.com/user/cistern/pkg/pinio"
	"github.com/user/cistern/pkg/watertank"
	"github.com/user/cistern/pkg/wire"
	"github.com/user/cistern/pkg/xerr"
)

func newTestRig() (*manager.Manager, *Log) {
	clk := clock.NewFake(0)
	reg := pinio.NewRegistry()
	exceptions := xerr.NewChannel()
	m := manager.New(clk, reg, exceptions)
	store := nvstore.NewMemory(Size)
	return m, New(store)
}

func tankCal() watertank.Calibration {
	return watertank.Calibration{
		PressureFactor: 0.01, VolumeFactor: 1.0, PressureChangingValue: 0.2,
		MinimumVolume: 10, MaxVolume: 100,
	}
}

// dispatch replays a decoded wire.Request against a Manager the same
// way pkg/dispatcher.Handle does. pkg/dispatcher imports this package,
// so importing it from these in-package tests would be an import cycle;
// the minimal replay also keeps these tests independent of the
// dispatcher's response-building concerns.
func dispatch(m *manager.Manager) func(*wire.Request) error {
	return func(req *wire.Request) error {
		switch req.Type {
		case wire.CreateWaterSource:
			_, err := m.RegisterWaterSource(req.Name, int(req.Pin), req.WaterTankName)
			return err
		case wire.CreateWaterTank:
			cal := watertank.Calibration{
				PressureFactor:        req.PressureFactor,
				VolumeFactor:          req.VolumeFactor,
				ZeroVolumePressure:    req.ZeroVolumePressure,
				PressureChangingValue: req.PressureChangingValue,
				MinimumVolume:         req.MinimumVolume,
				MaxVolume:             req.MaxVolume,
			}
			_, err := m.RegisterWaterTank(req.Name, int(req.Pin), cal, req.WaterSourceName)
			return err
		case wire.SetWaterSourceActive:
			return m.SetWaterSourceActive(req.WaterSourceName, req.Active)
		case wire.SetWaterTankActive:
			return m.SetWaterTankActive(req.WaterTankName, req.Active)
		default:
			return nil
		}
	}
}

// S7 — save/boot round-trip: two tanks, two sources (S1 drawing from T1
// as its supply, S2 drawing from T2, S2 deactivated), save then replay
// into a fresh Manager sharing the same store.
func TestSaveBootRoundTrip(t *testing.T) {
	m, log := newTestRig()

	if _, err := m.RegisterWaterTank("T1", 0, tankCal(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RegisterWaterTank("T2", 1, tankCal(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RegisterWaterSource("S1", 10, "T1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RegisterWaterSource("S2", 11, "T2"); err != nil {
		t.Fatal(err)
	}
	t1, _ := m.GetWaterTank("T1")

	if err := m.SetWaterSourceActive("S2", false); err != nil {
		t.Fatal(err)
	}

	if err := log.Save(m); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	corrupted, err := log.IsCorrupted()
	if err != nil {
		t.Fatal(err)
	}
	if corrupted {
		t.Fatal("freshly saved log reported corrupted")
	}

	m2, _, _, _ := bootManager(t, log)

	gotTanks := m2.WaterTankNames()
	gotSources := m2.WaterSourceNames()
	if !sameSet(gotTanks, []string{"T1", "T2"}) {
		t.Fatalf("tank names mismatch after replay: %v", gotTanks)
	}
	if !sameSet(gotSources, []string{"S1", "S2"}) {
		t.Fatalf("source names mismatch after replay: %v", gotSources)
	}

	s2r, err := m2.GetWaterSource("S2")
	if err != nil {
		t.Fatal(err)
	}
	if s2r.Active() {
		t.Fatal("expected S2 to replay as inactive")
	}
	s1r, err := m2.GetWaterSource("S1")
	if err != nil {
		t.Fatal(err)
	}
	if !s1r.Active() {
		t.Fatal("expected S1 to replay as active")
	}
	if supply, ok := m2.SourceSupplyName("S1"); !ok || supply != "T1" {
		t.Fatalf("expected S1's supply link to T1 to survive replay, got (%q, %v)", supply, ok)
	}
	if supply, ok := m2.SourceSupplyName("S2"); !ok || supply != "T2" {
		t.Fatalf("expected S2's supply link to T2 to survive replay, got (%q, %v)", supply, ok)
	}

	t1r, err := m2.GetWaterTank("T1")
	if err != nil {
		t.Fatal(err)
	}
	if t1r.Calibration() != t1.Calibration() {
		t.Fatalf("calibration mismatch after replay: got %+v want %+v", t1r.Calibration(), t1.Calibration())
	}
}

func bootManager(t *testing.T, log *Log) (*manager.Manager, *pinio.Registry, *clock.Fake, *xerr.Channel) {
	t.Helper()
	clk := clock.NewFake(0)
	reg := pinio.NewRegistry()
	exceptions := xerr.NewChannel()
	m := manager.New(clk, reg, exceptions)
	if err := log.Replay(dispatch(m)); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	return m, reg, clk, exceptions
}

func sameSet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[string]bool, len(got))
	for _, g := range got {
		seen[g] = true
	}
	for _, w := range want {
		if !seen[w] {
			return false
		}
	}
	return true
}

// A tank that supplies a source (as the source's supply, guarding
// against running dry) must be emitted before that source so replay
// never references an entity that doesn't exist yet.
func TestSaveOrdersSupplyBeforeSource(t *testing.T) {
	m, log := newTestRig()

	if _, err := m.RegisterWaterTank("Cistern", 0, tankCal(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RegisterWaterSource("Pump", 10, "Cistern"); err != nil {
		t.Fatal(err)
	}

	if err := log.Save(m); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	m2, _, _, _ := bootManager(t, log)
	if _, err := m2.GetWaterTank("Cistern"); err != nil {
		t.Fatalf("expected Cistern to replay: %v", err)
	}
	if _, err := m2.GetWaterSource("Pump"); err != nil {
		t.Fatalf("expected Pump to replay: %v", err)
	}
	supply, ok := m2.SourceSupplyName("Pump")
	if !ok || supply != "Cistern" {
		t.Fatalf("expected Pump's supply link to Cistern to survive replay, got (%q, %v)", supply, ok)
	}
}

// The other reference direction: a tank's filling source must be
// emitted before the tank, since createWaterTank's waterSourceName
// field is resolved against the already-registered sources.
func TestSaveOrdersFillingSourceBeforeTank(t *testing.T) {
	m, log := newTestRig()

	if _, err := m.RegisterWaterSource("Pump", 10, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RegisterWaterTank("Cistern", 0, tankCal(), "Pump"); err != nil {
		t.Fatal(err)
	}

	if err := log.Save(m); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	m2, _, _, _ := bootManager(t, log)
	if _, err := m2.GetWaterSource("Pump"); err != nil {
		t.Fatalf("expected Pump to replay: %v", err)
	}
	if _, err := m2.GetWaterTank("Cistern"); err != nil {
		t.Fatalf("expected Cistern to replay: %v", err)
	}
	source, ok := m2.TankSourceName("Cistern")
	if !ok || source != "Pump" {
		t.Fatalf("expected Cistern's filling-source link to Pump to survive replay, got (%q, %v)", source, ok)
	}
}

// CRC idempotence (spec §8 property 5): Save immediately followed by
// Save with no intervening mutation must produce byte-identical storage.
func TestSaveIsIdempotent(t *testing.T) {
	m, log := newTestRig()
	if _, err := m.RegisterWaterTank("T", 0, tankCal(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RegisterWaterSource("S", 1, ""); err != nil {
		t.Fatal(err)
	}

	if err := log.Save(m); err != nil {
		t.Fatal(err)
	}
	first, err := log.store.ReadAt(0, Size)
	if err != nil {
		t.Fatal(err)
	}

	if err := log.Save(m); err != nil {
		t.Fatal(err)
	}
	second, err := log.store.ReadAt(0, Size)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("byte %d differs after second save: %x vs %x", i, first[i], second[i])
		}
	}
}

// S7 continued: corrupting one byte in the record stream and replaying
// must emit SAVE_CORRUPTED and not mutate the Manager.
func TestCorruptedLogRefusesReplay(t *testing.T) {
	m, log := newTestRig()
	if _, err := m.RegisterWaterTank("T", 0, tankCal(), ""); err != nil {
		t.Fatal(err)
	}
	if err := log.Save(m); err != nil {
		t.Fatal(err)
	}

	// Flip a bit somewhere inside the record stream.
	b, err := log.store.ReadAt(requestsStartOffset, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := log.store.WriteAt(requestsStartOffset, []byte{b[0] ^ 0xFF}); err != nil {
		t.Fatal(err)
	}

	corrupted, err := log.IsCorrupted()
	if err != nil {
		t.Fatal(err)
	}
	if !corrupted {
		t.Fatal("expected corruption to be detected after flipping a record byte")
	}

	clk := clock.NewFake(0)
	reg := pinio.NewRegistry()
	exceptions := xerr.NewChannel()
	m2 := manager.New(clk, reg, exceptions)
	err = log.Replay(dispatch(m2))
	fault, ok := err.(*xerr.Fault)
	if !ok || fault.Kind != xerr.SaveCorrupted {
		t.Fatalf("expected SAVE_CORRUPTED, got %v", err)
	}
	if m2.TotalWaterTanks() != 0 {
		t.Fatal("expected the manager to remain untouched after a corrupted replay")
	}
}

// A zero totalRequests (a never-saved store) replays as a no-op.
func TestEmptyLogReplaysAsNoop(t *testing.T) {
	_, log := newTestRig()
	clk := clock.NewFake(0)
	reg := pinio.NewRegistry()
	exceptions := xerr.NewChannel()
	m := manager.New(clk, reg, exceptions)

	if err := log.Replay(dispatch(m)); err != nil {
		t.Fatalf("expected no-op replay on an empty log, got %v", err)
	}
	if m.TotalWaterTanks() != 0 || m.TotalWaterSources() != 0 {
		t.Fatal("expected no entities registered from an empty log")
	}
}
