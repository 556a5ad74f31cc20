// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package trap implements the M-mode trap dispatcher of spec §4.6: decode
// mcause, service machine-local interrupts (software IPI reasons, the
// fallback machine timer) directly, and route every supervisor ecall out
// to the SBI dispatch table. The vectored entry/exit sequence itself —
// saving and restoring the interrupted context around a call into this
// package — is architecture assembly and lives in trap_riscv64.s,
// mirrored on the xv6-in-go Kerneltrap/trapinithart split.
package trap

import (
	"fmt"

	"github.com/chenzongyao200127/rvsbi/internal/csr"
	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/internal/platform"
	"github.com/chenzongyao200127/rvsbi/internal/sbierr"
)

// Context is the trapped register state the assembly entry stub hands
// to Handle and reads back afterward. A0-A7 follow the SBI ecall
// convention: A7 is the extension id, A6 the function id, A0-A5 the
// call arguments; Handle overwrites A0/A1 with the {error, value} pair
// on return from an ecall.
type Context struct {
	HartID uint32

	Mcause uint64
	Mepc   uint64
	Mtval  uint64

	A0, A1, A2, A3, A4, A5, A6, A7 uint64
}

// Fencer drains a hart's own pending RFENCE queue; satisfied by
// *rfence.Engine.
type Fencer interface {
	DrainAll(self *hart.Context)
}

// Dispatcher is the SBI ecall router; satisfied by *sbi.Dispatcher.
type Dispatcher interface {
	Dispatch(hartID uint32, extID, funcID int64, args [6]uint64) (value uint64, err error)
}

// HSM is the hart-lifecycle completions the trap dispatcher triggers when
// a parked hart's own interrupt wakes it: a fresh hart_start landing on
// STOPPED, or a timer/IPI landing on a hart the HSM extension suspended.
// Satisfied by *hsm.HSM.
type HSM interface {
	CompleteStart(self uint32) (hart.NextStage, error)
	WakeSelf(self uint32) (hart.NextStage, error)
}

// Handler ties the hart table to its collaborators and is the Go-level
// entry point the assembly trap stub calls into.
type Handler struct {
	table  *hart.Table
	dev    platform.IPIDevice
	irqctl platform.InterruptControl
	priv   platform.PrivilegeControl
	rfence Fencer
	hsm    HSM
	sbi    Dispatcher
}

// New builds a Handler. sbi may be nil during early boot before the
// dispatch table is constructed; an ecall trapped in that window is
// reported as NotSupported rather than panicking. hsm may be nil on a
// hart that never parks (it only ever services ecalls and fences), in
// which case a START_PENDING/SUSPENDED wake is never looked for.
func New(table *hart.Table, dev platform.IPIDevice, irqctl platform.InterruptControl, priv platform.PrivilegeControl, rfence Fencer, hsm HSM, sbi Dispatcher) *Handler {
	return &Handler{table: table, dev: dev, irqctl: irqctl, priv: priv, rfence: rfence, hsm: hsm, sbi: sbi}
}

// Handle decodes ctx.Mcause and services the trap, mutating ctx in place
// (A0/A1 for an ecall's return value, Mepc to skip past the ecall
// instruction) and returning an error only for a trap no path here
// claims — the assembly stub treats that as fatal.
func (h *Handler) Handle(ctx *Context) error {
	if ctx.Mcause&csr.CauseInterruptBit != 0 {
		return h.handleInterrupt(ctx)
	}

	switch ctx.Mcause {
	case csr.CauseSupervisorEcall:
		return h.handleEcall(ctx)
	default:
		return fmt.Errorf("trap: unhandled exception, mcause=%#x mepc=%#x mtval=%#x", ctx.Mcause, ctx.Mepc, ctx.Mtval)
	}
}

func (h *Handler) handleInterrupt(ctx *Context) error {
	switch ctx.Mcause &^ csr.CauseInterruptBit {
	case csr.CauseMachineSoftwareInterrupt:
		return h.handleMachineSoftware(ctx)
	case csr.CauseMachineTimerInterrupt:
		return h.handleMachineTimer(ctx)
	default:
		return fmt.Errorf("trap: unhandled interrupt, mcause=%#x", ctx.Mcause)
	}
}

// handleMachineSoftware services a raised msip: clear the physical
// pending bit, read-and-clear the coalesced reason bits §4.4 packed into
// it, and act on each one that is set. FENCE is drained fully before
// anything else, so a hart woken by both a fence and a start/resume/SSOFT
// reason in one trap never observes a fence still outstanding afterward.
// A START_PENDING or SUSPENDED hart's own msip is how hsm.Start/WakeSelf
// wakes it; that takes priority over forwarding SSOFT to a supervisor
// context that, for START_PENDING, does not exist yet.
func (h *Handler) handleMachineSoftware(ctx *Context) error {
	self := ctx.HartID

	c, err := h.table.Context(self)

	if err != nil {
		return sbierr.InvalidParam
	}

	h.dev.ClearMSIP(int(self))

	bits := c.GetAndResetIPIType()

	if bits&hart.IPIFence != 0 {
		h.rfence.DrainAll(c)
	}

	if h.hsm != nil {
		switch c.State() {
		case hart.StateStartPending:
			return h.completeWake(ctx, h.hsm.CompleteStart)
		case hart.StateSuspended:
			return h.completeWake(ctx, h.hsm.WakeSelf)
		}
	}

	if bits&hart.IPISSoft != 0 {
		h.irqctl.RaiseSupervisorSoftwarePending()
	}

	return nil
}

// handleMachineTimer services the non-Sstc timer fallback: the device's
// mtimecmp comparison fired, so the compare register is parked at its
// maximum value so no spurious future match is possible. A SUSPENDED
// hart treats this the same as any other wake-worthy event and jumps
// straight into its armed resume image; a STARTED hart has the M-mode
// timer interrupt disabled (it would otherwise refire immediately) and
// the supervisor-timer pending bit raised so S-mode's own handler runs
// once this trap returns.
func (h *Handler) handleMachineTimer(ctx *Context) error {
	self := ctx.HartID

	h.dev.WriteMtimecmp(int(self), ^uint64(0))

	if h.hsm != nil {
		if c, err := h.table.Context(self); err == nil && c.State() == hart.StateSuspended {
			return h.completeWake(ctx, h.hsm.WakeSelf)
		}
	}

	h.irqctl.DisableMachineTimer()
	h.irqctl.RaiseSupervisorTimerPending()

	return nil
}

// completeWake hands a parked hart off to the next-stage image an HSM
// transition armed for it: the supervisor privilege mode it drops into,
// and the registers spec §6's hand-off convention specifies (a0 the
// hart's own id, a1 the caller-supplied opaque value, mepc the entry
// point).
func (h *Handler) completeWake(ctx *Context, complete func(uint32) (hart.NextStage, error)) error {
	next, err := complete(ctx.HartID)

	if err != nil {
		return err
	}

	ctx.Mepc = next.StartAddr
	ctx.A0 = uint64(ctx.HartID)
	ctx.A1 = next.Opaque

	h.priv.SetMPP(next.Privilege)

	return nil
}

func (h *Handler) handleEcall(ctx *Context) error {
	ctx.Mepc += 4 // ecall is always 4 bytes; resume past it, never re-execute it.

	if h.sbi == nil {
		ctx.A0 = uint64(sbierr.NotSupported.Code())
		ctx.A1 = 0
		return nil
	}

	value, err := h.sbi.Dispatch(ctx.HartID, int64(ctx.A7), int64(ctx.A6), [6]uint64{ctx.A0, ctx.A1, ctx.A2, ctx.A3, ctx.A4, ctx.A5})

	ctx.A0 = uint64(sbierr.FromError(err).Code())
	ctx.A1 = value

	return nil
}

// active is the handler the assembly trap vector calls into. There is
// exactly one per address space (the hart id travelling through
// trapVectorGo's argument list is what makes Handler's own state
// per-hart where it needs to be), bound once during boot before
// interrupts are ever enabled.
var active *Handler

// Bind installs the handler trapVectorGo dispatches every trap to.
func Bind(h *Handler) { active = h }

// trapVectorGo is the Go-level landing point the assembly trap stub
// (trap_riscv64.s) calls into after saving the trapped integer registers
// to the parked stack. It is deliberately scalar-in/scalar-out, the same
// shape as csr.go's linknamed accessors, to keep the assembly/Go ABI
// boundary as simple as the rest of this package's CSR access already
// is. A trap this package does not recognize panics rather than
// returning an error code nothing would read.
//
//go:nosplit
func trapVectorGo(hartID, mcause, mepc, mtval, a0, a1, a2, a3, a4, a5, a6, a7 uint64) (outA0, outA1, outMepc uint64) {
	ctx := &Context{
		HartID: uint32(hartID),
		Mcause: mcause,
		Mepc:   mepc,
		Mtval:  mtval,
		A0:     a0, A1: a1, A2: a2, A3: a3,
		A4: a4, A5: a5, A6: a6, A7: a7,
	}

	if active == nil {
		panic("trap: no handler bound")
	}

	if err := active.Handle(ctx); err != nil {
		panic(err)
	}

	return ctx.A0, ctx.A1, ctx.Mepc
}
