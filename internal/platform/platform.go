// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package platform declares the typed interfaces the SBI core consumes
// from its external collaborators: a CLINT-like timer/software-interrupt
// controller, a console, and a reset line. The core never imports a
// concrete SoC package directly — only these interfaces — so swapping
// boards means writing a new binding, not touching hart/hsm/ipi/rfence/trap.
package platform

import (
	"errors"
	"sync/atomic"
)

// IPIDevice is the capability set §4.2 requires of the underlying
// CLINT-like controller. All methods are MMIO and the device serialises
// concurrent access itself; the adapter holding one is otherwise stateless.
type IPIDevice interface {
	HartCount() int

	ReadMtime() uint64
	WriteMtime(uint64)

	ReadMtimecmp(hart int) uint64
	WriteMtimecmp(hart int, value uint64)

	ReadMSIP(hart int) bool
	SetMSIP(hart int)
	ClearMSIP(hart int)
}

// SstcTimer is implemented by harts that can set their own supervisor
// timer compare register without an SBI call (the Sstc extension).
type SstcTimer interface {
	SetStimecmp(value uint64)
}

// InterruptControl is the calling hart's own access to its mip/mie bits,
// split across the two collaborators that need it: sbi_set_timer's
// non-Sstc fallback path (clear the pending supervisor-timer bit,
// (re-)enable the M-mode timer interrupt so the trap dispatcher notices
// the device's mtimecmp comparison) and the trap dispatcher itself,
// forwarding a fired machine interrupt down to S-mode (disable the
// M-mode timer interrupt, raise the pending supervisor-timer bit; raise
// the pending supervisor-software bit when a coalesced IPI reason names
// SSOFT).
type InterruptControl interface {
	ClearSupervisorTimerPending()
	EnableMachineTimer()

	DisableMachineTimer()
	RaiseSupervisorTimerPending()
	RaiseSupervisorSoftwarePending()
}

// PrivilegeControl sets the privilege mode a hart drops into on its next
// mret, used by the trap dispatcher when handing a parked hart off to
// its next-stage image (a fresh hart_start, or a suspend/resume wake).
type PrivilegeControl interface {
	SetMPP(privilege uint64)
}

// PMP is the physical memory protection controller the boot orchestrator
// bootstraps once per hart and the debug console's "pmp" command reads,
// matching the teacher's fu540.RV64.WritePMP/ReadPMP surface.
type PMP interface {
	WritePMP(i int, addr uint64, r, w, x bool, a int, l bool) error
	ReadPMP(i int) (addr uint64, r, w, x bool, a int, l bool, err error)
}

// Console is the bound serial device the boot orchestrator logs to, the
// debug console reads/writes over, and the panic path prints through.
type Console interface {
	WriteString(s string)
	ReadByte() (byte, error)
}

// ResetType and ResetReason mirror the SBI System Reset extension's
// wire values; the platform binding maps them onto board-specific action.
type ResetType uint32

const (
	ResetTypeShutdown   ResetType = 0
	ResetTypeColdReboot ResetType = 1
	ResetTypeWarmReboot ResetType = 2
)

type ResetReason uint32

const (
	ResetReasonNone          ResetReason = 0
	ResetReasonSystemFailure ResetReason = 1
)

// Reset is the optional reset/power-off line. A platform with no reset
// controller leaves this unbound; the SRST extension then reports
// NOT_SUPPORTED rather than guessing at behavior.
type Reset interface {
	Reset(t ResetType, reason ResetReason) error
}

// Platform aggregates a binding's devices. It is published once, by the
// boot hart, before SBI_READY — never reconstructed.
type Platform struct {
	Console Console
	IPI     IPIDevice
	Reset   Reset
}

var current atomic.Pointer[Platform]

// ErrNotBound is returned by Current when no platform has been published
// yet; callers on the boot path should treat this as fatal.
var ErrNotBound = errors.New("platform: not bound")

// ErrNoInput is returned by Console.ReadByte when no character is pending.
var ErrNoInput = errors.New("platform: no input pending")

// Bind publishes the platform binding with release ordering. Called
// exactly once, by the boot hart, before SBI_READY is raised.
func Bind(p *Platform) {
	current.Store(p)
}

// Current returns the published platform binding with acquire ordering.
// Safe to call from any hart once SBI_READY has been observed.
func Current() (*Platform, error) {
	p := current.Load()

	if p == nil {
		return nil, ErrNotBound
	}

	return p, nil
}
