// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build riscv64

package trap

import _ "unsafe" // required for go:linkname

//go:linkname machineTrapVectorAddr machineTrapVectorAddr
//go:nosplit
func machineTrapVectorAddr() uint64

// VectorAddr returns the address the boot orchestrator installs into
// mtvec (direct mode, low two bits left clear): every hart must point
// there before its first interrupt is ever enabled.
func VectorAddr() uint64 { return machineTrapVectorAddr() }
