// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package boot implements the boot orchestrator of spec §4.7: the
// boot-hart-vs-secondary-hart bring-up sequence that wires every core
// subsystem together, bootstraps PMP, configures trap delegation, and
// hands the boot hart off to the next-stage image. Everything here is
// ordinary Go, reachable from a test without any hardware; the only
// assembly, the a0/a1-and-mret stub Enter uses to hand off to the next
// stage, lives in boot_riscv64.s, mirrored on trap_riscv64.s's own split.
package boot

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/chenzongyao200127/rvsbi/internal/csr"
	"github.com/chenzongyao200127/rvsbi/internal/fdt"
	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/internal/hsm"
	"github.com/chenzongyao200127/rvsbi/internal/ipi"
	"github.com/chenzongyao200127/rvsbi/internal/platform"
	"github.com/chenzongyao200127/rvsbi/internal/rfence"
	"github.com/chenzongyao200127/rvsbi/internal/sbi"
	"github.com/chenzongyao200127/rvsbi/internal/trap"
	"github.com/chenzongyao200127/rvsbi/mem"
)

// Devices is everything the orchestrator needs from the platform layer.
// Reset, PMP, and Sstc are optional: a nil Reset leaves the SRST
// extension reporting NOT_SUPPORTED; a nil Sstc means every hart takes
// the non-Sstc sbi_set_timer fallback regardless of what the device
// tree's riscv,isa strings claim.
type Devices struct {
	IPI     platform.IPIDevice
	Console platform.Console
	Reset   platform.Reset
	PMP     platform.PMP
	IRQCtl  platform.InterruptControl
	Priv    platform.PrivilegeControl
	Fencer  rfence.Fencer
	Sstc    platform.SstcTimer
}

// Config is everything the orchestrator needs to know before it can
// build the per-hart table: hart count and boot hart id, normally taken
// from an fdt.Platform, plus the tunables mem's constants default to.
type Config struct {
	HartCount     int
	BootHart      int
	QueueCapacity int
}

// ConfigFromFDT derives a Config from a parsed device tree, using mem's
// package-level defaults for tunables the device tree does not carry.
func ConfigFromFDT(p *fdt.Platform, bootHart int) Config {
	return Config{
		HartCount:     p.HartCount,
		BootHart:      bootHart,
		QueueCapacity: mem.RFenceQueueCapacity,
	}
}

// Orchestrator bundles the constructed subsystems so the boot sequence
// and, later, the debug console can reach them without reconstructing
// any state the spec requires be built exactly once.
type Orchestrator struct {
	Table  *hart.Table
	IPI    *ipi.Engine
	HSM    *hsm.HSM
	RFence *rfence.Engine
	SBI    *sbi.Dispatcher
	Trap   *trap.Handler

	devices Devices
}

// New constructs every core subsystem and wires them together per the
// component graph of spec §2: IPI engine on top of the device adapter,
// HSM and RFENCE on top of IPI, the SBI dispatch table aggregating all
// three, and the trap handler closing the loop back down to HSM for
// wake hand-off. It does not touch any CSR or publish anything globally
// reachable — that is Bind's job, called once the boot hart has decided
// this is the configuration to run with.
func New(cfg Config, dev Devices) *Orchestrator {
	table := hart.NewTable(cfg.HartCount, cfg.BootHart, cfg.QueueCapacity)

	ipiEngine := ipi.New(table, dev.IPI, dev.IRQCtl)
	hsmEngine := hsm.New(table, ipiEngine)
	rfenceEngine := rfence.New(table, ipiEngine, dev.Fencer)
	sbiDispatcher := sbi.New(table, hsmEngine, ipiEngine, rfenceEngine, dev.Reset, dev.Sstc)
	trapHandler := trap.New(table, dev.IPI, dev.IRQCtl, dev.Priv, rfenceEngine, hsmEngine, sbiDispatcher)

	return &Orchestrator{
		Table:   table,
		IPI:     ipiEngine,
		HSM:     hsmEngine,
		RFence:  rfenceEngine,
		SBI:     sbiDispatcher,
		Trap:    trapHandler,
		devices: dev,
	}
}

// Bind publishes the platform binding and installs the trap handler as
// the process-wide active one. Called exactly once, by the boot hart,
// before PublishReady raises SBI_READY.
func (o *Orchestrator) Bind() {
	platform.Bind(&platform.Platform{
		Console: o.devices.Console,
		IPI:     o.devices.IPI,
		Reset:   o.devices.Reset,
	})

	trap.Bind(o.Trap)
}

// ready is SBI_READY: release-published once by the boot hart, consumed
// with acquire ordering by every secondary hart's spin loop. Kept
// separate from any BSS-zeroing concern — Go's own runtime bring-up
// (TamaGo's goos integration, per hart) already guarantees no hart
// observes uninitialized package state before its init functions run;
// this flag gates only the SBI subsystems built by New/Bind.
var ready atomic.Bool

// PublishReady raises SBI_READY. Called once, by the boot hart, after
// Bind.
func PublishReady() { ready.Store(true) }

// WaitReady spins until SBI_READY is observed. Called by every
// secondary hart before it touches anything Bind published.
func WaitReady() {
	for !ready.Load() {
	}
}

// Ready reports whether SBI_READY has been observed, for diagnostics.
func Ready() bool { return ready.Load() }

// BootstrapPMP configures the two-entry permissive PMP layout spec §4.7
// and §9 specify: entry 0 OFF at address 0 (a no-op boundary marker),
// entry 1 TOR covering the entire address space with RWX. This is
// explicitly a permissive bootstrap; tightening PMP to the device
// tree's actual memory map is a platform concern this firmware leaves
// open, consistent with §9's design note.
func BootstrapPMP(pmp platform.PMP) error {
	if pmp == nil {
		return nil
	}

	if err := pmp.WritePMP(0, 0, false, false, false, pmpOff, false); err != nil {
		return fmt.Errorf("boot: pmp entry 0, %v", err)
	}

	if err := pmp.WritePMP(1, ^uint64(0), true, true, true, pmpTOR, false); err != nil {
		return fmt.Errorf("boot: pmp entry 1, %v", err)
	}

	return nil
}

// pmpOff and pmpTOR are the PMP CFG.A encodings BootstrapPMP uses,
// declared in pmp_riscv64.go (backed by riscv.PMP_CFG_A_OFF/TOR) and
// mirrored in pmp_sim.go for builds that run on a non-riscv64 host,
// the same arch split boot_riscv64.go already applies to Enter.

// ConfigureDelegation runs the common post-init CSR configuration of
// spec §4.6/§4.7 on the calling hart: delegate every interrupt and
// exception to S-mode, then claw back the two that must stay in M-mode
// (supervisor ecall, illegal instruction) because SBI dispatch and the
// trap path's own CSR emulation need them here. Enables every
// mcounteren bit and sets menvcfg's always-on Zicbom bits plus STCE
// when the hart probed Sstc.
func ConfigureDelegation(ext hart.Extensions) {
	csr.SetMideleg(csr.MIDelegAll)

	medeleg := csr.MEDelegAll
	medeleg &^= uint64(1) << csr.CauseSupervisorEcall
	medeleg &^= uint64(1) << csr.CauseIllegalInstruction
	csr.SetMedeleg(medeleg)

	csr.SetMcounteren(^uint64(0))

	menvcfg := csr.MenvcfgCBIE | csr.MenvcfgCBCFE | csr.MenvcfgCBZE

	if ext.Sstc {
		menvcfg |= csr.MenvcfgSTCE
	}

	csr.SetMenvcfg(menvcfg)
}

// ArmBootHart derives the boot hart's own next-stage hand-off (it is
// already STARTED, so there is no START_PENDING/STARTED transition to
// drive — the boot hart falls straight through to mret) and returns the
// register state the caller should fall through on, mirroring what
// trap.completeWake would do for a secondary hart.
func ArmBootHart(table *hart.Table, bootHart uint32, next hart.NextStage) (hart.NextStage, error) {
	c, err := table.Context(bootHart)

	if err != nil {
		return hart.NextStage{}, err
	}

	c.SetNextStage(next)

	return next, nil
}

// ProbeExtensions records each hart's capability bits from the device
// tree's per-cpu "riscv,isa" strings, in the order interpret() collected
// them — which, for a well-formed tree, is cpu node order and therefore
// hart id order. A tree with fewer ISA strings than harts leaves the
// remainder at their zero value (no Sstc), the conservative choice.
func ProbeExtensions(table *hart.Table, isaExtensions []string) {
	for i, isa := range isaExtensions {
		c, err := table.Context(uint32(i))

		if err != nil {
			break
		}

		c.SetExtensions(hart.Extensions{Sstc: strings.Contains(strings.ToLower(isa), "sstc")})
	}
}
