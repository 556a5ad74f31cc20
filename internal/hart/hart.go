// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hart owns the per-hart context table: the only state reachable
// from a hart other than its own executing code, and then only through
// the atomics and mutex this package exposes.
package hart

import (
	"fmt"
	"sync/atomic"
)

// State is the HSM lifecycle state of a hart.
type State uint32

const (
	StateStopped State = iota
	StateStartPending
	StateStarted
	StateStopPending
	StateSuspended
	StateSuspendPending
	StateResumePending
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStartPending:
		return "START_PENDING"
	case StateStarted:
		return "STARTED"
	case StateStopPending:
		return "STOP_PENDING"
	case StateSuspended:
		return "SUSPENDED"
	case StateSuspendPending:
		return "SUSPEND_PENDING"
	case StateResumePending:
		return "RESUME_PENDING"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// IPI reason bits, coalesced in Context.ipiType ahead of the RFENCE queue.
const (
	IPISSoft uint32 = 1 << 0
	IPIFence uint32 = 1 << 1
)

// NextStage describes the image a hart jumps to when it leaves STOPPED.
type NextStage struct {
	StartAddr uint64
	Privilege uint64 // csr.MPP_S or csr.MPP_U
	Opaque    uint64
}

// Extensions records capability bits probed once during init.
type Extensions struct {
	Sstc bool
}

// Context is a single hart's exclusively-owned state. Any field this
// struct does not expose through an atomic method is off-limits to every
// hart other than the one it belongs to.
type Context struct {
	id uint32

	state  atomic.Uint32
	ipi    atomic.Uint32
	next   atomic.Pointer[NextStage]
	ext    Extensions
	rfence *RFenceCell
}

// New constructs a hart context. started is true only for the boot hart,
// which begins life already in STARTED rather than STOPPED.
func New(id uint32, started bool) *Context {
	c := &Context{id: id, rfence: newRFenceCell()}

	if started {
		c.state.Store(uint32(StateStarted))
	} else {
		c.state.Store(uint32(StateStopped))
	}

	return c
}

// ID returns the hart's identifier.
func (c *Context) ID() uint32 { return c.id }

// State loads the HSM state with acquire ordering.
func (c *Context) State() State { return State(c.state.Load()) }

// CompareAndSwapState performs the CAS HSM transitions are built on.
func (c *Context) CompareAndSwapState(old, new State) bool {
	return c.state.CompareAndSwap(uint32(old), uint32(new))
}

// SetState unconditionally stores a new state with release ordering. Used
// only for the boot-time initial assignment and hart-local self-transitions
// where no other hart is racing the write (e.g. a hart parking itself).
func (c *Context) SetState(s State) { c.state.Store(uint32(s)) }

// SetNextStage publishes the image a START/RESUME request arms, with
// release ordering relative to the subsequent state transition.
func (c *Context) SetNextStage(ns NextStage) { c.next.Store(&ns) }

// NextStage returns the most recently armed next-stage image, or nil if
// none has been set.
func (c *Context) NextStage() *NextStage { return c.next.Load() }

// SetExtensions records the capability bits probed for this hart during
// init. Called once, before the hart is reachable by any other.
func (c *Context) SetExtensions(e Extensions) { c.ext = e }

// Extensions returns the hart's capability bits.
func (c *Context) Extensions() Extensions { return c.ext }

// RFence returns the hart's RFENCE coordination cell.
func (c *Context) RFence() *RFenceCell { return c.rfence }

// GetAndResetIPIType atomically reads and clears the pending IPI reason
// bits, with acquire ordering so every queue write the setter performed
// before raising a bit is visible here.
func (c *Context) GetAndResetIPIType() uint32 {
	return c.ipi.Swap(0)
}

// SetIPIType ORs reason bits into the pending set with release ordering
// and reports whether the value was zero beforehand — the caller uses
// that to decide whether to raise the physical software interrupt.
func (c *Context) SetIPIType(bits uint32) (wasZero bool) {
	for {
		old := c.ipi.Load()
		if c.ipi.CompareAndSwap(old, old|bits) {
			return old == 0
		}
	}
}

// AllowIPI reports whether this hart is in a state where it is safe to
// deliver an IPI: it must have claimed an address space, i.e. be STARTED
// or somewhere in the suspend/resume cycle.
func (c *Context) AllowIPI() bool {
	switch c.State() {
	case StateStarted, StateSuspendPending, StateSuspended:
		return true
	default:
		return false
	}
}
