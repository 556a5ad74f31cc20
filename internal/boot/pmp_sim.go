// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !riscv64

package boot

// pmpOff and pmpTOR mirror riscv.PMP_CFG_A_OFF/PMP_CFG_A_TOR for the
// host-simulation build and tests, where tamago/riscv does not build.
const (
	pmpOff = 0
	pmpTOR = 1
)
