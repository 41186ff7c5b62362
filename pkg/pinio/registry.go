// Package pinio is the process-wide pin registry: a table mapping pin
// number to driver handle (digital/analog, read-only/read-write), with
// get/create/remove semantics and a reference count so a pin's handle
// is released exactly when the last entity referencing it goes away.
// Grounded in the original firmware's static IOInterface table
// (lib/IOInterface) and in the claim/release pin-handle pattern from
// the HAL resource model surveyed in the retrieval pack (function-scoped
// PinHandle/GPIOHandle views over a shared pin number).
package pinio

import (
	"fmt"

	"github.com/user/cistern"
	"github.com/user/cistern/pkg/xerr"
)

type handle struct {
	pin     int
	mode    cistern.PinMode
	typ     cistern.PinType
	virtual bool
	driver  cistern.PinDriver
	// memory backs the handle when virtual is true and no external
	// driver was supplied; a last-value cache, per §4.2.
	memory uint32
}

func (h *handle) Pin() int               { return h.pin }
func (h *handle) Mode() cistern.PinMode  { return h.mode }
func (h *handle) Type() cistern.PinType  { return h.typ }
func (h *handle) Virtual() bool          { return h.virtual }

func (h *handle) Read() uint32 {
	if h.driver != nil {
		v := h.driver.Read(h.pin)
		if h.typ == cistern.PinDigital && v != 0 {
			return 1
		}
		return v
	}
	if h.typ == cistern.PinDigital && h.memory != 0 {
		return 1
	}
	return h.memory
}

func (h *handle) Write(v uint32) {
	if h.mode != cistern.ModeOutput {
		return
	}
	if h.driver != nil {
		h.driver.Write(h.pin, v)
		return
	}
	h.memory = v
}

// Registry is the pin number -> handle table. Exactly one handle exists
// per registered pin; Create replaces (and releases) any prior handle at
// the same pin number. A Registry is not safe for concurrent use.
type Registry struct {
	handles map[int]*handle
	refs    map[int]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[int]*handle),
		refs:    make(map[int]int),
	}
}

// Get returns the handle registered at pin, or nil if none exists.
func (r *Registry) Get(pin int) cistern.PinHandle {
	h, ok := r.handles[pin]
	if !ok {
		return nil
	}
	return h
}

// Create registers (or replaces) a handle at pin, backed by driver. A
// nil driver yields a purely in-memory handle (the "virtual" test-build
// backing described in §4.2).
func (r *Registry) Create(pin int, mode cistern.PinMode, typ cistern.PinType, driver cistern.PinDriver) cistern.PinHandle {
	h := &handle{pin: pin, mode: mode, typ: typ, driver: driver, virtual: driver == nil}
	r.handles[pin] = h
	return h
}

// Remove deletes the handle at pin unconditionally, regardless of
// reference count; callers that share pins across entities must use
// Acquire/Release to keep the registry's one-handle-per-referenced-pin
// invariant (invariant 1 in spec §3).
func (r *Registry) Remove(pin int) error {
	if _, ok := r.handles[pin]; !ok {
		return xerr.Invalid(xerr.PinNotFound)
	}
	delete(r.handles, pin)
	delete(r.refs, pin)
	return nil
}

// RemoveAll clears every handle.
func (r *Registry) RemoveAll() {
	r.handles = make(map[int]*handle)
	r.refs = make(map[int]int)
}

// Acquire increments pin's reference count, creating the handle first
// if this is the first reference.
func (r *Registry) Acquire(pin int, mode cistern.PinMode, typ cistern.PinType, driver cistern.PinDriver) cistern.PinHandle {
	if _, ok := r.handles[pin]; !ok {
		r.Create(pin, mode, typ, driver)
	}
	r.refs[pin]++
	return r.handles[pin]
}

// Release decrements pin's reference count and removes the handle once
// it reaches zero, iff no other registered entity still references the
// same pin number (spec §3 invariant 1).
func (r *Registry) Release(pin int) {
	if r.refs[pin] <= 1 {
		delete(r.handles, pin)
		delete(r.refs, pin)
		return
	}
	r.refs[pin]--
}

// Size reports the number of distinct pins currently registered.
func (r *Registry) Size() int { return len(r.handles) }

// SetVirtualValue injects value into a virtual handle's backing memory
// directly, bypassing the Mode write-gate that guards normal Write
// calls. Test harnesses use this to simulate sensor readings on an
// input-mode pin, since real Write intentionally no-ops there. Reports
// false if pin is not registered or not virtual.
func (r *Registry) SetVirtualValue(pin int, value uint32) bool {
	h, ok := r.handles[pin]
	if !ok || !h.virtual {
		return false
	}
	h.memory = value
	return true
}

func (h *handle) String() string {
	return fmt.Sprintf("pin(%d mode=%d type=%d virtual=%v)", h.pin, h.mode, h.typ, h.virtual)
}
