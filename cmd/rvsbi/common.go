// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

// bootHart is fixed rather than read from BootCpuidPhys: QEMU's
// sifive_u machine always resets hart 0 into firmware first.
const bootHart = 0

// mstatusMIE is the global machine-mode interrupt enable bit; CSRs this
// firmware otherwise touches are all named in package csr, but this one
// bit is set exactly once, in the board build's main, and nowhere else
// needs a name for it.
const mstatusMIE = 1 << 3
