// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build sifive_u

// Command rvsbi is the firmware's entry point for the QEMU sifive_u
// machine: every hart that reaches main runs the same common post-init
// (mtvec, trap delegation, menvcfg, PMP), the boot hart additionally
// constructs and binds every core subsystem, loads the next-stage image,
// starts the debug console, and falls through; every other hart parks in
// WFI until its own msip wakes it, from which point the trap vector
// drives it the rest of the way without this function ever regaining
// control.
package main

import (
	_ "embed"
	"log"
	"os"
	"unsafe"

	"github.com/chenzongyao200127/rvsbi/internal/boot"
	"github.com/chenzongyao200127/rvsbi/internal/csr"
	"github.com/chenzongyao200127/rvsbi/internal/debug"
	"github.com/chenzongyao200127/rvsbi/internal/fdt"
	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/internal/nextstage"
	"github.com/chenzongyao200127/rvsbi/internal/platform"
	"github.com/chenzongyao200127/rvsbi/internal/trap"
	"github.com/chenzongyao200127/rvsbi/mem"
)

// defaultFDT and defaultNextStage are this image's built-in assets, the
// same FW_PAYLOAD-style convention the teacher's trusted_os_sifive_u
// applies to its Trusted Applet and Main OS ELF binaries: a platform
// integrator replaces both under assets/ before building a deployable
// image. An empty defaultNextStage fails nextstage.Load loudly rather
// than falling through to an unvalidated jump.
//
//go:embed assets/qemu-sifive_u.dtb
var defaultFDT []byte

//go:embed assets/nextstage.elf
var defaultNextStage []byte

// orch is built once, by the boot hart, and read by every other hart
// only after WaitReady returns — the atomic SBI_READY flag's
// release/acquire ordering is what makes that safe.
var orch *boot.Orchestrator

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)
}

func main() {
	self := uint32(csr.HartID())

	platformTree, err := fdt.Parse(defaultFDT)

	if err != nil {
		log.Fatalf("rvsbi: device tree, %v", err)
	}

	if self == bootHart {
		bringUp(platformTree)
	} else {
		boot.WaitReady()
	}

	csr.SetMtvec(trap.VectorAddr())

	ext := hart.Extensions{}

	if c, err := orch.Table.Context(self); err == nil {
		ext = c.Extensions()
	}

	boot.ConfigureDelegation(ext)

	if err := boot.BootstrapPMP(platform.NewSiFiveU540PMP()); err != nil {
		log.Fatalf("rvsbi: hart %d pmp, %v", self, err)
	}

	csr.SetMie(csr.Mie() | csr.MSIE | csr.MTIE)
	csr.SetMstatus(csr.Mstatus() | mstatusMIE)

	if self == bootHart {
		enterNextStage()
	}

	for {
		csr.WaitForInterrupt()
	}
}

// bringUp runs once, on the boot hart, before any trap delegation is
// configured anywhere: construct every core subsystem, publish the
// platform binding and trap handler, and raise SBI_READY so every
// parked secondary hart can proceed past WaitReady.
func bringUp(platformTree *fdt.Platform) {
	console := platform.NewSiFiveU540Console()

	orch = boot.New(boot.ConfigFromFDT(platformTree, bootHart), boot.Devices{
		IPI:     platform.NewSiFiveU540IPIDevice(platformTree.HartCount),
		Console: console,
		PMP:     platform.NewSiFiveU540PMP(),
		IRQCtl:  csr.InterruptControl{},
		Priv:    csr.PrivilegeControl{},
		Fencer:  csr.Fencer{},
		Sstc:    csr.SstcTimer{},
	})

	orch.Bind()

	boot.ProbeExtensions(orch.Table, platformTree.ISAExtensions)

	debug.Init(orch.Table)
	debug.InitPMP(platform.NewSiFiveU540PMP())
	debug.InitWindows(deviceWindows(platformTree))

	log.Printf("rvsbi: %d hart(s), boot hart %d", platformTree.HartCount, bootHart)

	go func() {
		if err := debug.Serve(console, "rvsbi# "); err != nil {
			log.Printf("rvsbi: debug console, %v", err)
		}
	}()

	boot.PublishReady()
}

// deviceWindows bounds the debug console's peek/poke gate to the MMIO
// ranges the device tree itself named, per SPEC_FULL.md §4.9's "never
// the firmware's own text/data" requirement — generous fixed sizes
// stand in for each device's actual register file length, which the
// conservative device-tree reader does not carry.
func deviceWindows(platformTree *fdt.Platform) []debug.Window {
	var w []debug.Window

	if platformTree.SerialBase != 0 {
		w = append(w, debug.Window{Start: platformTree.SerialBase, End: platformTree.SerialBase + 0x1000})
	}

	if platformTree.CLINTBase != 0 {
		w = append(w, debug.Window{Start: platformTree.CLINTBase, End: platformTree.CLINTBase + 0x10000})
	}

	if platformTree.HasReset {
		w = append(w, debug.Window{Start: platformTree.ResetBase, End: platformTree.ResetBase + 0x1000})
	}

	return w
}

// enterNextStage loads the next-stage image into its reserved region,
// arms the boot hart's own hand-off, and falls through via boot.Enter.
// Never returns.
func enterNextStage() {
	image, err := nextstage.Load(defaultNextStage, mem.NextStageRegion)

	if err != nil {
		log.Fatalf("rvsbi: next stage, %v", err)
	}

	debug.InitSymbols(defaultNextStage)

	// a1 carries the device tree address into the next stage, the same
	// convention this firmware itself was entered under.
	next, err := boot.ArmBootHart(orch.Table, bootHart, hart.NextStage{
		StartAddr: image.Entry,
		Privilege: csr.MPP_S,
		Opaque:    uint64(uintptr(unsafe.Pointer(&defaultFDT[0]))),
	})

	if err != nil {
		log.Fatalf("rvsbi: arming boot hart, %v", err)
	}

	log.Printf("rvsbi: entering next stage entry:%#x", next.StartAddr)

	boot.Enter(bootHart, next)
}
