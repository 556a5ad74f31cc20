// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !sifive_u

// Command rvsbi, built without a board tag, runs the Go-level half of
// the boot sequence against in-memory fakes instead of real MMIO/CSRs.
// There is no hardware to fall through into, so this build exists only
// to exercise main's own sequencing — construct, bind, probe, bootstrap
// PMP, publish ready — on a developer's workstation, the same fakes
// boot_test.go already uses.
package main

import (
	"fmt"
	"log"

	"github.com/chenzongyao200127/rvsbi/internal/boot"
	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/internal/platform"
)

// simHarts stands in for a device tree's cpu@ node count, since this
// build reads no device tree at all.
const simHarts = 4

type fakeFencer struct{}

func (fakeFencer) Execute(req hart.RFenceRequest) {}

// simulate runs the board-independent half of main's boot sequence
// against fakes and returns the constructed orchestrator for inspection.
func simulate() (*boot.Orchestrator, error) {
	pmp := platform.NewFakePMP()

	o := boot.New(boot.Config{HartCount: simHarts, BootHart: bootHart, QueueCapacity: 4}, boot.Devices{
		IPI:     platform.NewFakeIPIDevice(simHarts),
		Console: platform.NewFakeConsole(),
		Reset:   &platform.FakeReset{},
		PMP:     pmp,
		IRQCtl:  platform.NewFakeInterruptControl(),
		Priv:    platform.NewFakePrivilegeControl(),
		Fencer:  fakeFencer{},
	})

	o.Bind()

	boot.ProbeExtensions(o.Table, []string{"rv64imafdc_sstc"})

	if err := boot.BootstrapPMP(pmp); err != nil {
		return nil, err
	}

	boot.PublishReady()

	return o, nil
}

func main() {
	o, err := simulate()

	if err != nil {
		log.Fatalf("rvsbi: %v", err)
	}

	fmt.Printf("rvsbi: simulated boot complete, %d hart(s) wired, boot hart %d STARTED\n", o.Table.Len(), bootHart)
}
