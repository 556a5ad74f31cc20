// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package trap

import "github.com/chenzongyao200127/rvsbi/mem"

// frames holds one register-save slot per hart for the assembly trap
// vector in trap_riscv64.s, indexed by mhartid so the prologue never
// needs a usable Go stack to find somewhere to spill registers. 32
// slots is more than the handler reads back (a0-a7 plus the original
// sp); sized generously rather than tuned to an exact count.
var frames [mem.MaxHarts][32]uint64

// machineStacks gives the trap vector a small dedicated M-mode stack per
// hart, switched onto for the duration of the Go call and switched back
// off before mret. It is never touched by anything other than the
// assembly trap vector.
var machineStacks [mem.MaxHarts][4096]byte
