// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build riscv64

package boot

import (
	_ "unsafe" // required for go:linkname

	"github.com/chenzongyao200127/rvsbi/internal/csr"
	"github.com/chenzongyao200127/rvsbi/internal/hart"
)

//go:linkname enterNextStage enterNextStage
//go:nosplit
func enterNextStage(hartID, opaque uint64)

// Enter is the boot hart's one-shot fall-through into the next-stage
// image once every subsystem is wired and SBI_READY is published: it
// arms mepc and mstatus.MPP from Go (neither depends on a0/a1's
// contents at mret time), then enterNextStage loads a0/a1 with hartID
// and the caller-supplied opaque value and retires via mret without any
// further Go code running in between — the same hand-off convention
// trap.completeWake applies to a secondary hart woken out of
// START_PENDING or SUSPENDED. Never returns.
func Enter(hartID uint32, next hart.NextStage) {
	csr.SetMepc(next.StartAddr)
	csr.PrivilegeControl{}.SetMPP(next.Privilege)
	enterNextStage(uint64(hartID), next.Opaque)
}
