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

	"github.com/chenzongyao200127/rvsbi/internal/hart"
)

// table is the hart table every hart/rfence command reads. Set once by
// Init, during boot, before Serve is ever reachable.
var table *hart.Table

// Init binds the hart table the hart/rfence commands introspect. Called
// once, by the boot orchestrator, alongside platform.Bind.
func Init(t *hart.Table) { table = t }

func init() {
	Add(Cmd{
		Name: "hart",
		Help: "dump HSM state and Sstc capability for every hart",
		Fn:   hartCmd,
	})

	Add(Cmd{
		Name:    "rfence ",
		Args:    1,
		Pattern: regexp.MustCompile(`^rfence (\d+)$`),
		Syntax:  "<hart id>",
		Help:    "dump RFENCE queue depth and wait_sync_count for one hart",
		Fn:      rfenceCmd,
	})
}

func hartCmd(_ *term.Terminal, _ []string) (string, error) {
	if table == nil {
		return "", fmt.Errorf("hart table not bound")
	}

	var out string

	for _, c := range table.All() {
		out += fmt.Sprintf("hart:%-2d state:%-14s sstc:%-5v\n", c.ID(), c.State(), c.Extensions().Sstc)
	}

	return out, nil
}

func rfenceCmd(_ *term.Terminal, arg []string) (string, error) {
	if table == nil {
		return "", fmt.Errorf("hart table not bound")
	}

	id, err := strconv.ParseUint(arg[0], 10, 32)

	if err != nil {
		return "", fmt.Errorf("invalid hart id, %v", err)
	}

	c, err := table.Context(uint32(id))

	if err != nil {
		return "", err
	}

	return fmt.Sprintf("hart:%d queue_len:%d wait_sync:%d", c.ID(), c.RFence().Len(), c.RFence().WaitSync()), nil
}
