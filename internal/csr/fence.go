// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package csr

import (
	_ "unsafe" // required for go:linkname

	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/mem"
)

//go:linkname fenceI fenceI
//go:nosplit
func fenceI()

//go:linkname sfenceVMA sfenceVMA
//go:nosplit
func sfenceVMA(addr, asid uint64)

//go:linkname sfenceVMAAll sfenceVMAAll
//go:nosplit
func sfenceVMAAll()

//go:linkname wfi wfi
//go:nosplit
func wfi()

// WaitForInterrupt issues WFI, letting the executing hart idle until the
// next interrupt (including a spurious one) retires it. Used by the boot
// orchestrator's parked-hart loop and the HSM STOP_PENDING/SUSPEND_PENDING
// transitions' own documented parking point.
func WaitForInterrupt() { wfi() }

// Fencer implements rfence.Fencer against the real machine-level fence
// instructions of the executing hart. Hypervisor fence ops are named by
// spec but never given distinct hardware semantics (H-extension fences
// are explicitly out of scope); they execute their non-hypervisor
// equivalent rather than silently doing nothing.
type Fencer struct{}

func (Fencer) Execute(req hart.RFenceRequest) {
	switch req.Op {
	case hart.FenceI:
		fenceI()
	case hart.FenceSFenceVMA, hart.FenceHFenceGVMA, hart.FenceHFenceVVMA:
		walkSFenceVMA(req.StartAddr, req.Size, 0)
	case hart.FenceSFenceVMAASID:
		walkSFenceVMA(req.StartAddr, req.Size, req.ASID)
	case hart.FenceHFenceGVMAVMID:
		walkSFenceVMA(req.StartAddr, req.Size, req.VMID)
	case hart.FenceHFenceVVMAASID:
		walkSFenceVMA(req.StartAddr, req.Size, req.ASID)
	}
}

// walkSFenceVMA issues one SFENCE.VMA per page across [start, start+size),
// per spec §4.5; a size of MaxUint64 (the overflow/flush-all sentinel
// rfence.clampRange produces) issues a single flush-all instead.
func walkSFenceVMA(start, size, asid uint64) {
	if size == ^uint64(0) {
		sfenceVMAAll()
		return
	}

	for addr := start; addr < start+size; addr += mem.PAGE_SIZE {
		sfenceVMA(addr, asid)
	}
}
