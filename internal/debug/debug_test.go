// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package debug

import (
	"io"
	"strings"
	"testing"

	"github.com/chenzongyao200127/rvsbi/internal/hart"
)

func TestDispatchRunsBareNameCommand(t *testing.T) {
	res, err := Dispatch(nil, "help")

	if err != nil {
		t.Fatal(err)
	}

	if res == "" {
		t.Fatal("help returned empty output")
	}
}

func TestDispatchRunsPatternCommandWithCapturedArgs(t *testing.T) {
	table = hart.NewTable(1, 0, 4)
	defer func() { table = nil }()

	res, err := Dispatch(nil, "rfence 0")

	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(res, "hart:0") {
		t.Fatalf("rfence 0 = %q, want prefix hart:0", res)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	if _, err := Dispatch(nil, "frobnicate"); err == nil {
		t.Fatal("expected an error for an unrecognized command")
	}
}

func TestExitCmdReturnsEOF(t *testing.T) {
	_, err := Dispatch(nil, "exit")

	if err != io.EOF {
		t.Fatalf("exit returned %v, want io.EOF", err)
	}
}

func TestHartCmdWithoutTableBoundReturnsError(t *testing.T) {
	table = nil

	if _, err := Dispatch(nil, "hart"); err == nil {
		t.Fatal("expected an error when the hart table is not bound")
	}
}

func TestHartCmdListsEveryHart(t *testing.T) {
	table = hart.NewTable(2, 0, 4)
	defer func() { table = nil }()

	res, err := Dispatch(nil, "hart")

	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(res, "hart:0") || !strings.Contains(res, "hart:1") {
		t.Fatalf("hart = %q, want both hart:0 and hart:1", res)
	}
}

func TestPMPCmdWithoutControllerBoundReturnsError(t *testing.T) {
	pmp = nil

	if _, err := Dispatch(nil, "pmp 0"); err == nil {
		t.Fatal("expected an error when no PMP controller is bound")
	}
}

func TestInWindowGatesAddresses(t *testing.T) {
	InitWindows([]Window{{Start: 0x10000000, End: 0x10001000}})
	defer InitWindows(nil)

	if !inWindow(0x10000000, 4) {
		t.Fatal("address at window start should be allowed")
	}

	if inWindow(0x80000000, 4) {
		t.Fatal("firmware text/data address must never be in a declared window")
	}
}

func TestPeekCmdRejectsAddressOutsideWindow(t *testing.T) {
	InitWindows(nil)

	if _, err := Dispatch(nil, "peek 80000000 4"); err == nil {
		t.Fatal("expected peek outside any declared window to be rejected")
	}
}

func TestPeekCmdRejectsMisalignedAccess(t *testing.T) {
	InitWindows([]Window{{Start: 0x10000000, End: 0x10001000}})
	defer InitWindows(nil)

	if _, err := Dispatch(nil, "peek 10000001 4"); err == nil {
		t.Fatal("expected an error for a non-4-byte-aligned address")
	}
}
