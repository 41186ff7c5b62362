// Package manager implements the Manager from spec §4.5: the bounded,
// insertion-ordered registries of named water sources and tanks, the
// MANUAL/AUTO mode gate, dependency-safe registration/removal, the
// per-loop AUTO-mode fan-out, and the rotating fault-surfacing policy.
// Grounded in the original firmware's Manager.cpp/h, restructured per
// DESIGN NOTES so the tank<->source reference graph is resolved by name
// through the Manager instead of being owned cyclically by the entities
// themselves (the pattern also used by the teacher's internal/engine
// Registry: a name-keyed map guarded by a single owner, not a circular
// pointer graph).
package manager

import (
	"github.com/user/cistern"
	"github.com/user/cistern/pkg/clock"
	"github.com/user/cistern/pkg/pinio"
	"github.com/user/cistern/pkg/watersource"
	"github.com/user/cistern/pkg/watertank"
	"github.com/user/cistern/pkg/xerr"
)

const (
	MaxNameLength    = 20
	MaxWaterSources  = 10
	MaxWaterTanks    = 10
	ErrorIntervalMS  = 10 * 1000
)

// Mode is the MANUAL/AUTO operation mode gating direct command access
// against the self-regulating control loop.
type Mode uint8

const (
	Manual Mode = iota
	Auto
)

type sourceEntry struct {
	name       string
	source     *watersource.WaterSource
	supplyName string // name of the supply tank, "" if none
	pin        int
}

type tankEntry struct {
	name       string
	tank       *watertank.WaterTank
	sourceName string // name of the filling source, "" if none
	pin        int
}

// Manager owns the registries, mode, and fault-rotation state.
type Manager struct {
	clk cistern.Clock
	reg *pinio.Registry

	sourceOrder []string
	sources     map[string]*sourceEntry

	tankOrder []string
	tanks     map[string]*tankEntry

	mode Mode

	loopErrors      map[string]*xerr.Fault
	errorIndex      int
	errorsTimer     *clock.Timer
	exceptions      *xerr.Channel
}

// New creates an empty Manager in MANUAL mode.
func New(clk cistern.Clock, reg *pinio.Registry, exceptions *xerr.Channel) *Manager {
	m := &Manager{
		clk:         clk,
		reg:         reg,
		sources:     make(map[string]*sourceEntry),
		tanks:       make(map[string]*tankEntry),
		mode:        Manual,
		loopErrors:  make(map[string]*xerr.Fault),
		errorsTimer: clock.NewTimer(clk),
		exceptions:  exceptions,
	}
	m.errorsTimer.Start()
	return m
}

// Mode returns the current operation mode.
func (m *Manager) Mode() Mode { return m.mode }

// SetMode changes the operation mode. Switching to AUTO or MANUAL takes
// effect immediately; in-flight fills are not cancelled.
func (m *Manager) SetMode(mode Mode) { m.mode = mode }

// TotalWaterSources returns the number of registered sources.
func (m *Manager) TotalWaterSources() int { return len(m.sourceOrder) }

// TotalWaterTanks returns the number of registered tanks.
func (m *Manager) TotalWaterTanks() int { return len(m.tankOrder) }

// WaterSourceNames returns the registered source names in insertion order.
func (m *Manager) WaterSourceNames() []string {
	out := make([]string, len(m.sourceOrder))
	copy(out, m.sourceOrder)
	return out
}

// WaterTankNames returns the registered tank names in insertion order.
func (m *Manager) WaterTankNames() []string {
	out := make([]string, len(m.tankOrder))
	copy(out, m.tankOrder)
	return out
}

// GetWaterSource looks up a registered source by name.
func (m *Manager) GetWaterSource(name string) (*watersource.WaterSource, error) {
	e, ok := m.sources[name]
	if !ok {
		return nil, xerr.Invalid(xerr.WaterSourceNotFound)
	}
	return e.source, nil
}

// GetWaterTank looks up a registered tank by name.
func (m *Manager) GetWaterTank(name string) (*watertank.WaterTank, error) {
	e, ok := m.tanks[name]
	if !ok {
		return nil, xerr.Invalid(xerr.WaterTankNotFound)
	}
	return e.tank, nil
}

// WaterSourceName reverse-looks-up the registered name for source, used
// by the Persister to serialize a topologically-ordered log.
func (m *Manager) WaterSourceName(s *watersource.WaterSource) (string, bool) {
	for _, name := range m.sourceOrder {
		if m.sources[name].source == s {
			return name, true
		}
	}
	return "", false
}

// WaterTankName reverse-looks-up the registered name for tank.
func (m *Manager) WaterTankName(t *watertank.WaterTank) (string, bool) {
	for _, name := range m.tankOrder {
		if m.tanks[name].tank == t {
			return name, true
		}
	}
	return "", false
}

// RegisterWaterSource creates and registers a new source bound to pin,
// optionally drawing from supplyTankName (may be ""). supplyTankName
// must already be a registered tank, matching the original firmware's
// API resolving getWaterTank on create; an unknown name fails with
// WATER_TANK_NOT_FOUND rather than silently registering a dangling
// reference.
func (m *Manager) RegisterWaterSource(name string, pin int, supplyTankName string) (*watersource.WaterSource, error) {
	if name == "" {
		return nil, xerr.Invalid(xerr.ResourceNameEmpty)
	}
	if len(name) > MaxNameLength {
		return nil, xerr.Invalid(xerr.ResourceNameTooLong)
	}
	if _, exists := m.sources[name]; exists {
		return nil, xerr.Invalid(xerr.WaterSourceAlreadyRegistered)
	}
	if len(m.sourceOrder) >= MaxWaterSources {
		return nil, xerr.Invalid(xerr.MaxWaterSourceError)
	}
	var supplyTank *tankEntry
	if supplyTankName != "" {
		te, ok := m.tanks[supplyTankName]
		if !ok {
			return nil, xerr.Invalid(xerr.WaterTankNotFound)
		}
		supplyTank = te
	}

	handle := m.reg.Acquire(pin, cistern.ModeOutput, cistern.PinDigital, nil)
	s := watersource.New(handle)
	if supplyTank != nil {
		s.SetSupply(supplyTank.tank)
	}

	m.sources[name] = &sourceEntry{name: name, source: s, supplyName: supplyTankName, pin: pin}
	m.sourceOrder = append(m.sourceOrder, name)
	return s, nil
}

// RegisterWaterTank creates and registers a new tank reading pin,
// optionally filled by sourceName (may be ""). sourceName must already
// be a registered source, matching the original firmware's API
// resolving getWaterSource on create; an unknown name fails with
// WATER_SOURCE_NOT_FOUND rather than silently registering a dangling
// reference.
func (m *Manager) RegisterWaterTank(name string, pin int, cal watertank.Calibration, sourceName string) (*watertank.WaterTank, error) {
	if name == "" {
		return nil, xerr.Invalid(xerr.ResourceNameEmpty)
	}
	if len(name) > MaxNameLength {
		return nil, xerr.Invalid(xerr.ResourceNameTooLong)
	}
	if _, exists := m.tanks[name]; exists {
		return nil, xerr.Invalid(xerr.WaterTankAlreadyRegistered)
	}
	if len(m.tankOrder) >= MaxWaterTanks {
		return nil, xerr.Invalid(xerr.MaxWaterTankError)
	}
	var fillingSource *sourceEntry
	if sourceName != "" {
		se, ok := m.sources[sourceName]
		if !ok {
			return nil, xerr.Invalid(xerr.WaterSourceNotFound)
		}
		fillingSource = se
	}

	handle := m.reg.Acquire(pin, cistern.ModeInput, cistern.PinAnalog, nil)
	t := watertank.New(handle, m.clk, cal)
	if fillingSource != nil {
		t.SetSource(fillingSource.source)
	}

	m.tanks[name] = &tankEntry{name: name, tank: t, sourceName: sourceName, pin: pin}
	m.tankOrder = append(m.tankOrder, name)
	return t, nil
}

// isWaterSourceDependency reports whether name is referenced as some
// tank's filling source.
func (m *Manager) isWaterSourceDependency(name string) bool {
	for _, n := range m.tankOrder {
		if m.tanks[n].sourceName == name {
			return true
		}
	}
	return false
}

// isWaterTankDependency reports whether name is referenced as some
// source's supply tank.
func (m *Manager) isWaterTankDependency(name string) bool {
	for _, n := range m.sourceOrder {
		if m.sources[n].supplyName == name {
			return true
		}
	}
	return false
}

// UnregisterWaterSource removes a source, refusing if it is any tank's
// filling source.
func (m *Manager) UnregisterWaterSource(name string) error {
	e, ok := m.sources[name]
	if !ok {
		return xerr.Invalid(xerr.WaterSourceNotFound)
	}
	if m.isWaterSourceDependency(name) {
		return xerr.Invalid(xerr.CannotRemoveWaterSourceDependency)
	}

	delete(m.sources, name)
	m.sourceOrder = removeName(m.sourceOrder, name)
	m.reg.Release(e.pin)
	return nil
}

// UnregisterWaterTank removes a tank, refusing if it is any source's
// supply tank.
func (m *Manager) UnregisterWaterTank(name string) error {
	e, ok := m.tanks[name]
	if !ok {
		return xerr.Invalid(xerr.WaterTankNotFound)
	}
	if m.isWaterTankDependency(name) {
		return xerr.Invalid(xerr.CannotRemoveWaterTankDependency)
	}

	delete(m.tanks, name)
	m.tankOrder = removeName(m.tankOrder, name)
	m.reg.Release(e.pin)
	delete(m.loopErrors, name)
	return nil
}

func removeName(order []string, name string) []string {
	out := make([]string, 0, len(order))
	for _, n := range order {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// SetWaterSourceState implements §4.5 mode-gated source control.
func (m *Manager) SetWaterSourceState(name string, enabled bool, force bool) error {
	if m.mode == Auto {
		return xerr.Invalid(xerr.CannotHandleWaterSourceInAuto)
	}
	e, ok := m.sources[name]
	if !ok {
		return xerr.Invalid(xerr.WaterSourceNotFound)
	}
	if enabled {
		return e.source.TurnOn(force)
	}
	e.source.TurnOff()
	return nil
}

// SetWaterSourceActive implements setWaterSourceActive; allowed in any
// mode since it is an operator-level enable/disable flag, not a direct
// pin command.
func (m *Manager) SetWaterSourceActive(name string, active bool) error {
	e, ok := m.sources[name]
	if !ok {
		return xerr.Invalid(xerr.WaterSourceNotFound)
	}
	e.source.SetActive(active)
	return nil
}

// FillWaterTank implements §4.5 mode-gated fill control.
func (m *Manager) FillWaterTank(name string, force bool) error {
	if m.mode == Auto {
		return xerr.Invalid(xerr.CannotHandleWaterTankInAuto)
	}
	e, ok := m.tanks[name]
	if !ok {
		return xerr.Invalid(xerr.WaterTankNotFound)
	}
	return e.tank.Fill(force)
}

// StopFillingWaterTank implements §4.5 mode-gated stop-fill control.
func (m *Manager) StopFillingWaterTank(name string) error {
	if m.mode == Auto {
		return xerr.Invalid(xerr.CannotHandleWaterTankInAuto)
	}
	e, ok := m.tanks[name]
	if !ok {
		return xerr.Invalid(xerr.WaterTankNotFound)
	}
	e.tank.StopFilling()
	return nil
}

// SetWaterTankActive sets a tank's active flag directly (allowed in any
// mode, same rationale as SetWaterSourceActive).
func (m *Manager) SetWaterTankActive(name string, active bool) error {
	e, ok := m.tanks[name]
	if !ok {
		return xerr.Invalid(xerr.WaterTankNotFound)
	}
	e.tank.SetActive(active)
	return nil
}

// Loop implements §4.5's Manager.loop(): a no-op in MANUAL mode; in AUTO
// mode, fans out to every tank's Loop() in insertion order, capturing
// any raised fault into that tank's slot, then (rate-limited by
// ERROR_INTERVAL) rotates through the slots surfacing one onto the
// Exception channel.
func (m *Manager) Loop() {
	if m.mode != Auto {
		return
	}

	for _, name := range m.tankOrder {
		fault := m.tanks[name].tank.Loop()
		if fault != nil {
			m.loopErrors[name] = fault
		} else {
			delete(m.loopErrors, name)
		}
	}

	if len(m.tankOrder) == 0 {
		return
	}
	if !m.errorsTimer.ElapsedAtLeast(ErrorIntervalMS) {
		return
	}

	n := len(m.tankOrder)
	for i := 0; i < n; i++ {
		idx := (m.errorIndex + i) % n
		name := m.tankOrder[idx]
		if fault, ok := m.loopErrors[name]; ok {
			m.exceptions.Throw(xerr.NewWithArg(fault.Severity, fault.Kind, name))
			delete(m.loopErrors, name)
			m.errorIndex = (idx + 1) % n
			m.errorsTimer.Start()
			return
		}
	}
	// Nothing to surface this window; still restart the timer so a fault
	// raised moments later waits a full ERROR_INTERVAL, matching the
	// rate-limit semantics of spec §4.5.
	m.errorsTimer.Start()
}

// Reset implements §4.5's reset(): MANUAL mode, every source turned off
// and unregistered, then every tank unregistered, releasing orphaned pin
// handles and clearing the exception channel.
func (m *Manager) Reset() {
	m.mode = Manual
	for len(m.sourceOrder) > 0 {
		name := m.sourceOrder[0]
		e := m.sources[name]
		e.source.TurnOff()
		delete(m.sources, name)
		m.sourceOrder = m.sourceOrder[1:]
		m.reg.Release(e.pin)
	}
	for len(m.tankOrder) > 0 {
		name := m.tankOrder[0]
		e := m.tanks[name]
		delete(m.tanks, name)
		m.tankOrder = m.tankOrder[1:]
		m.reg.Release(e.pin)
	}
	m.loopErrors = make(map[string]*xerr.Fault)
	m.errorIndex = 0
	m.exceptions.Clear()
}

// SourceSupplyName returns the registered supply-tank name for source,
// if any, used by the Persister when serializing create requests.
func (m *Manager) SourceSupplyName(name string) (string, bool) {
	e, ok := m.sources[name]
	if !ok || e.supplyName == "" {
		return "", false
	}
	return e.supplyName, true
}

// TankSourceName returns the registered filling-source name for tank,
// if any.
func (m *Manager) TankSourceName(name string) (string, bool) {
	e, ok := m.tanks[name]
	if !ok || e.sourceName == "" {
		return "", false
	}
	return e.sourceName, true
}

// SourcePin returns the pin number a registered source is bound to.
func (m *Manager) SourcePin(name string) (int, bool) {
	e, ok := m.sources[name]
	if !ok {
		return 0, false
	}
	return e.pin, true
}

// TankPin returns the pin number a registered tank is bound to.
func (m *Manager) TankPin(name string) (int, bool) {
	e, ok := m.tanks[name]
	if !ok {
		return 0, false
	}
	return e.pin, true
}
