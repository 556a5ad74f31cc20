// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package debug

import (
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/term"

	"github.com/chenzongyao200127/rvsbi/internal/platform"
)

// pmp is the PMP controller the "pmp" command reads. Set once by
// InitPMP, during boot, mirroring the teacher's fu540.RV64 binding
// behind trusted_os_sifive_u/cmd/pmp.go's read-only variant — this
// console never exposes a write path, only WritePMP's effects via
// BootstrapPMP are ever applied.
var pmp platform.PMP

// InitPMP binds the PMP controller the "pmp" command reads.
func InitPMP(p platform.PMP) { pmp = p }

func init() {
	Add(Cmd{
		Name:    "pmp ",
		Args:    1,
		Pattern: regexp.MustCompile(`^pmp (\d+)$`),
		Syntax:  "<index>",
		Help:    "read PMP CSR",
		Fn:      pmpCmd,
	})
}

func pmpCmd(_ *term.Terminal, arg []string) (string, error) {
	if pmp == nil {
		return "", fmt.Errorf("pmp controller not bound")
	}

	i, err := strconv.ParseUint(arg[0], 10, 8)

	if err != nil {
		return "", fmt.Errorf("invalid index, %v", err)
	}

	addr, r, w, x, a, l, err := pmp.ReadPMP(int(i))

	if err != nil {
		return "", err
	}

	return fmt.Sprintf("PMP:%.2d addr:%.16x A:%d R:%v W:%v X:%v L:%v", i, addr, a, r, w, x, l), nil
}
