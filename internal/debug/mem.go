// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package debug

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/term"

	"github.com/usbarmory/tamago/dma"
)

const maxBufferSize = 4096

// Window is one address range peek/poke is allowed to touch. windows is
// the platform's declared device windows (CLINT, UART, PMP-adjacent
// registers) — never the firmware's own text/data, per SPEC_FULL.md's
// "never the firmware's own text/data" gate.
type Window struct {
	Start, End uint64
}

var windows []Window

// InitWindows replaces the set of address ranges peek/poke may access.
func InitWindows(w []Window) { windows = w }

func inWindow(addr uint64, size uint64) bool {
	for _, w := range windows {
		if addr >= w.Start && addr+size <= w.End {
			return true
		}
	}

	return false
}

func init() {
	Add(Cmd{
		Name:    "peek",
		Args:    2,
		Pattern: regexp.MustCompile(`^peek ([[:xdigit:]]+) (\d+)$`),
		Syntax:  "<hex addr> <size>",
		Help:    "MMIO read within a declared device window",
		Fn:      peekCmd,
	})

	Add(Cmd{
		Name:    "poke",
		Args:    2,
		Pattern: regexp.MustCompile(`^poke ([[:xdigit:]]+) ([[:xdigit:]]+)$`),
		Syntax:  "<hex addr> <hex value>",
		Help:    "MMIO write (use with caution) within a declared device window",
		Fn:      pokeCmd,
	})
}

func mmioCopy(addr uint64, size int, w []byte) ([]byte, error) {
	region, err := dma.NewRegion(uint(addr), size, true)

	if err != nil {
		return nil, fmt.Errorf("mmio map, %v", err)
	}

	start, buf := region.Reserve(size, 0)
	defer region.Release(start)

	if len(w) > 0 {
		copy(buf, w)
		return nil, nil
	}

	out := make([]byte, size)
	copy(out, buf)

	return out, nil
}

func peekCmd(_ *term.Terminal, arg []string) (string, error) {
	addr, err := strconv.ParseUint(arg[0], 16, 64)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	size, err := strconv.ParseUint(arg[1], 10, 32)

	if err != nil {
		return "", fmt.Errorf("invalid size, %v", err)
	}

	if addr%4 != 0 || size%4 != 0 {
		return "", fmt.Errorf("only 32-bit aligned accesses are supported")
	}

	if size > maxBufferSize {
		return "", fmt.Errorf("size argument must be <= %d", maxBufferSize)
	}

	if !inWindow(addr, size) {
		return "", fmt.Errorf("address %#x not within a declared device window", addr)
	}

	b, err := mmioCopy(addr, int(size), nil)

	if err != nil {
		return "", err
	}

	return hex.Dump(b), nil
}

func pokeCmd(_ *term.Terminal, arg []string) (string, error) {
	addr, err := strconv.ParseUint(arg[0], 16, 64)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	val, err := strconv.ParseUint(arg[1], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid data, %v", err)
	}

	if addr%4 != 0 {
		return "", fmt.Errorf("only 32-bit aligned accesses are supported")
	}

	if !inWindow(addr, 4) {
		return "", fmt.Errorf("address %#x not within a declared device window", addr)
	}

	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(val))

	_, err = mmioCopy(addr, 4, buf)

	return "", err
}
