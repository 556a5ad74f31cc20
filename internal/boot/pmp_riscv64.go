// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build riscv64

package boot

import "github.com/usbarmory/tamago/riscv"

// pmpOff and pmpTOR back BootstrapPMP's CFG.A encoding with the same
// library constants the teacher's pmp.go passes to fu540.RV64.WritePMP,
// rather than hand-rolled ints.
const (
	pmpOff = riscv.PMP_CFG_A_OFF
	pmpTOR = riscv.PMP_CFG_A_TOR
)
