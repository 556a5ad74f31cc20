// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package csr declares the machine-mode control and status register
// accessors the rest of the firmware is built on. The bodies live in
// architecture assembly (csr_riscv64.s) and are reached here only through
// //go:linkname forward declarations, mirroring how the wider TamaGo/GoTEE
// stack exposes privileged register access to Go code running on bare
// metal.
package csr

import _ "unsafe" // required for go:linkname

//go:linkname readMhartid readMhartid
//go:nosplit
func readMhartid() uint64

//go:linkname readMscratch readMscratch
//go:nosplit
func readMscratch() uint64

//go:linkname writeMscratch writeMscratch
//go:nosplit
func writeMscratch(uint64)

//go:linkname swapMscratch swapMscratch
//go:nosplit
func swapMscratch(uint64) uint64

//go:linkname readMcause readMcause
//go:nosplit
func readMcause() uint64

//go:linkname readMepc readMepc
//go:nosplit
func readMepc() uint64

//go:linkname writeMepc writeMepc
//go:nosplit
func writeMepc(uint64)

//go:linkname readMtval readMtval
//go:nosplit
func readMtval() uint64

//go:linkname readMstatus readMstatus
//go:nosplit
func readMstatus() uint64

//go:linkname writeMstatus writeMstatus
//go:nosplit
func writeMstatus(uint64)

//go:linkname writeMtvec writeMtvec
//go:nosplit
func writeMtvec(uint64)

//go:linkname writeMideleg writeMideleg
//go:nosplit
func writeMideleg(uint64)

//go:linkname writeMedeleg writeMedeleg
//go:nosplit
func writeMedeleg(uint64)

//go:linkname writeMie writeMie
//go:nosplit
func writeMie(uint64)

//go:linkname readMie readMie
//go:nosplit
func readMie() uint64

//go:linkname writeMip writeMip
//go:nosplit
func writeMip(uint64)

//go:linkname readMip readMip
//go:nosplit
func readMip() uint64

//go:linkname writeMcounteren writeMcounteren
//go:nosplit
func writeMcounteren(uint64)

//go:linkname writeMenvcfg writeMenvcfg
//go:nosplit
func writeMenvcfg(uint64)

//go:linkname readStimecmp readStimecmp
//go:nosplit
func readStimecmp() uint64

//go:linkname writeStimecmp writeStimecmp
//go:nosplit
func writeStimecmp(uint64)

// HartID returns the mhartid CSR of the executing hart.
func HartID() uint64 { return readMhartid() }

// ParkSupervisorSP stores the supervisor stack pointer in mscratch and
// returns the value it replaced. Called once, on the way out to S-mode.
func ParkSupervisorSP(sp uint64) uint64 { return swapMscratch(sp) }

// RecoverMachineSP swaps mscratch back to zero (the M-mode sentinel) and
// returns the supervisor stack pointer that trap entry must eventually
// restore before mret.
func RecoverMachineSP() uint64 { return swapMscratch(0) }

// Mscratch returns the live mscratch value without swapping it.
func Mscratch() uint64 { return readMscratch() }

// WriteMscratch restores mscratch, e.g. back to the supervisor SP on trap
// exit so nested entries stay idempotent.
func WriteMscratch(v uint64) { writeMscratch(v) }

// Mcause returns the trap cause register.
func Mcause() uint64 { return readMcause() }

// Mepc returns the trap return address.
func Mepc() uint64 { return readMepc() }

// SetMepc overwrites the trap return address, used when arming a hart for
// its first jump into the next-stage image.
func SetMepc(v uint64) { writeMepc(v) }

// Mtval returns the trap value register (faulting address/instruction).
func Mtval() uint64 { return readMtval() }

// Mstatus returns the machine status register.
func Mstatus() uint64 { return readMstatus() }

// SetMstatus overwrites the machine status register.
func SetMstatus(v uint64) { writeMstatus(v) }

// SetMtvec installs the trap vector base, mode encoded in the low 2 bits.
func SetMtvec(v uint64) { writeMtvec(v) }

// SetMideleg configures interrupt delegation to S-mode.
func SetMideleg(v uint64) { writeMideleg(v) }

// SetMedeleg configures exception delegation to S-mode.
func SetMedeleg(v uint64) { writeMedeleg(v) }

// SetMie overwrites the machine interrupt-enable register.
func SetMie(v uint64) { writeMie(v) }

// Mie returns the machine interrupt-enable register.
func Mie() uint64 { return readMie() }

// SetMip overwrites the machine interrupt-pending register.
func SetMip(v uint64) { writeMip(v) }

// Mip returns the machine interrupt-pending register.
func Mip() uint64 { return readMip() }

// SetMcounteren enables all hardware performance counters for S-mode.
func SetMcounteren(v uint64) { writeMcounteren(v) }

// SetMenvcfg configures the machine environment configuration register
// (Svpbmt/Sstc/Zicbom bits).
func SetMenvcfg(v uint64) { writeMenvcfg(v) }

// Stimecmp returns the supervisor timer compare register (Sstc).
func Stimecmp() uint64 { return readStimecmp() }

// SetStimecmp writes the supervisor timer compare register (Sstc).
func SetStimecmp(v uint64) { writeStimecmp(v) }

// Mstatus MPP field values, used when arming a hart's privilege mode.
const (
	MPP_U = 0 << 11
	MPP_S = 1 << 11
	MPP_M = 3 << 11
)

// mcause interrupt bit and standard cause codes this firmware decodes.
const (
	CauseInterruptBit = uint64(1) << 63

	CauseMachineSoftwareInterrupt = 3
	CauseMachineTimerInterrupt    = 7
	CauseSupervisorEcall          = 9
	CauseIllegalInstruction       = 2
)

// mie/mip bit positions used by the IPI engine and trap dispatcher.
const (
	MSIE = 1 << 3 // machine software interrupt enable
	MTIE = 1 << 7 // machine timer interrupt enable
	SSIP = 1 << 1 // supervisor software interrupt pending
	STIP = 1 << 5 // supervisor timer interrupt pending
)

// menvcfg bits the boot orchestrator's common post-init configures: the
// Zicbom cache-block management enables (always set) and STCE, which
// hands stimecmp ownership to S-mode on harts that probed Sstc.
const (
	MenvcfgCBIE  = uint64(3) << 4 // CBIE_INVALIDATE encoding
	MenvcfgCBCFE = uint64(1) << 6
	MenvcfgCBZE  = uint64(1) << 7
	MenvcfgSTCE  = uint64(1) << 63
)

// MIDelegAll and MEDelegAll are the "delegate everything" starting point
// for the boot orchestrator's common post-init; the two exceptions that
// must stay in M-mode (ecall-from-S, illegal instruction) are cleared by
// the caller afterward.
const MIDelegAll = ^uint64(0)
const MEDelegAll = ^uint64(0)

// SstcTimer sets stimecmp directly through the Sstc CSR, implementing
// platform.SstcTimer on real hardware.
type SstcTimer struct{}

func (SstcTimer) SetStimecmp(v uint64) { SetStimecmp(v) }

// InterruptControl implements platform.InterruptControl against the
// real mip/mie CSRs of the executing hart.
type InterruptControl struct{}

func (InterruptControl) ClearSupervisorTimerPending() {
	SetMip(Mip() &^ STIP)
}

func (InterruptControl) EnableMachineTimer() {
	SetMie(Mie() | MTIE)
}

func (InterruptControl) DisableMachineTimer() {
	SetMie(Mie() &^ MTIE)
}

func (InterruptControl) RaiseSupervisorTimerPending() {
	SetMip(Mip() | STIP)
}

func (InterruptControl) RaiseSupervisorSoftwarePending() {
	SetMip(Mip() | SSIP)
}

// mppMask isolates the two-bit MPP field within mstatus.
const mppMask = uint64(3) << 11

// PrivilegeControl implements platform.PrivilegeControl against the real
// mstatus CSR of the executing hart.
type PrivilegeControl struct{}

func (PrivilegeControl) SetMPP(privilege uint64) {
	SetMstatus((Mstatus() &^ mppMask) | (privilege & mppMask))
}
