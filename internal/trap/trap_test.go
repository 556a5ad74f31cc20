// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package trap

import (
	"testing"

	"github.com/chenzongyao200127/rvsbi/internal/csr"
	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/internal/platform"
	"github.com/chenzongyao200127/rvsbi/internal/sbierr"
)

type fakeFencer struct {
	drained []*hart.Context
}

func (f *fakeFencer) DrainAll(self *hart.Context) {
	f.drained = append(f.drained, self)
}

type fakeDispatcher struct {
	hartID       uint32
	extID, funID int64
	args         [6]uint64
	value        uint64
	err          error
}

func (f *fakeDispatcher) Dispatch(hartID uint32, extID, funcID int64, args [6]uint64) (uint64, error) {
	f.hartID, f.extID, f.funID, f.args = hartID, extID, funcID, args
	return f.value, f.err
}

func TestHandleMachineSoftwareDrainsFenceAndForwardsSSoft(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()
	fencer := &fakeFencer{}

	priv := platform.NewFakePrivilegeControl()
	h := New(tbl, dev, irqctl, priv, fencer, nil, nil)

	c, _ := tbl.Context(0)
	dev.SetMSIP(0)
	c.SetIPIType(hart.IPISSoft | hart.IPIFence)

	ctx := &Context{HartID: 0, Mcause: csr.CauseInterruptBit | csr.CauseMachineSoftwareInterrupt}

	if err := h.Handle(ctx); err != nil {
		t.Fatal(err)
	}

	if dev.ReadMSIP(0) {
		t.Fatal("msip should be cleared after servicing")
	}

	if len(fencer.drained) != 1 || fencer.drained[0] != c {
		t.Fatalf("drained = %v, want [self]", fencer.drained)
	}

	if irqctl.RaisedSSIP != 1 {
		t.Fatalf("RaisedSSIP = %d, want 1", irqctl.RaisedSSIP)
	}

	if c.GetAndResetIPIType() != 0 {
		t.Fatal("ipiType should already have been reset by the handler")
	}
}

func TestHandleMachineSoftwareSkipsFenceWhenOnlySSoft(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()
	fencer := &fakeFencer{}

	priv := platform.NewFakePrivilegeControl()
	h := New(tbl, dev, irqctl, priv, fencer, nil, nil)

	c, _ := tbl.Context(0)
	c.SetIPIType(hart.IPISSoft)

	ctx := &Context{HartID: 0, Mcause: csr.CauseInterruptBit | csr.CauseMachineSoftwareInterrupt}

	if err := h.Handle(ctx); err != nil {
		t.Fatal(err)
	}

	if len(fencer.drained) != 0 {
		t.Fatalf("drained = %v, want none", fencer.drained)
	}

	if irqctl.RaisedSSIP != 1 {
		t.Fatalf("RaisedSSIP = %d, want 1", irqctl.RaisedSSIP)
	}
}

func TestHandleMachineTimerParksAndForwards(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()

	priv := platform.NewFakePrivilegeControl()
	h := New(tbl, dev, irqctl, priv, &fakeFencer{}, nil, nil)

	ctx := &Context{HartID: 0, Mcause: csr.CauseInterruptBit | csr.CauseMachineTimerInterrupt}

	if err := h.Handle(ctx); err != nil {
		t.Fatal(err)
	}

	if irqctl.DisabledMTIE != 1 {
		t.Fatalf("DisabledMTIE = %d, want 1", irqctl.DisabledMTIE)
	}

	if irqctl.RaisedSTIP != 1 {
		t.Fatalf("RaisedSTIP = %d, want 1", irqctl.RaisedSTIP)
	}

	if got := dev.ReadMtimecmp(0); got != ^uint64(0) {
		t.Fatalf("mtimecmp = %#x, want MaxUint64", got)
	}
}

func TestHandleEcallDispatchesAndAdvancesMepc(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()
	disp := &fakeDispatcher{value: 0x2a}

	priv := platform.NewFakePrivilegeControl()
	h := New(tbl, dev, irqctl, priv, &fakeFencer{}, nil, disp)

	ctx := &Context{
		HartID: 3,
		Mcause: csr.CauseSupervisorEcall,
		Mepc:   0x80200000,
		A0:     1, A1: 2, A2: 3, A3: 4, A4: 5, A5: 6,
		A6: 0, A7: 0x10, // Base extension, get_spec_version
	}

	if err := h.Handle(ctx); err != nil {
		t.Fatal(err)
	}

	if ctx.Mepc != 0x80200004 {
		t.Fatalf("mepc = %#x, want advanced by 4", ctx.Mepc)
	}

	if ctx.A0 != uint64(sbierr.Success) {
		t.Fatalf("a0 = %#x, want Success", ctx.A0)
	}

	if ctx.A1 != 0x2a {
		t.Fatalf("a1 = %#x, want 0x2a", ctx.A1)
	}

	if disp.hartID != 3 || disp.extID != 0x10 || disp.funID != 0 {
		t.Fatalf("dispatch called with hart=%d ext=%d fun=%d", disp.hartID, disp.extID, disp.funID)
	}

	if disp.args != [6]uint64{1, 2, 3, 4, 5, 6} {
		t.Fatalf("dispatch args = %v, want [1 2 3 4 5 6]", disp.args)
	}
}

func TestHandleEcallNoDispatcherReturnsNotSupported(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()

	priv := platform.NewFakePrivilegeControl()
	h := New(tbl, dev, irqctl, priv, &fakeFencer{}, nil, nil)

	ctx := &Context{Mcause: csr.CauseSupervisorEcall, Mepc: 0x1000}

	if err := h.Handle(ctx); err != nil {
		t.Fatal(err)
	}

	if ctx.A0 != uint64(sbierr.NotSupported.Code()) {
		t.Fatalf("a0 = %#x, want NotSupported", ctx.A0)
	}
}

func TestHandleUnrecognizedExceptionErrors(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()

	priv := platform.NewFakePrivilegeControl()
	h := New(tbl, dev, irqctl, priv, &fakeFencer{}, nil, nil)

	ctx := &Context{Mcause: csr.CauseIllegalInstruction}

	if err := h.Handle(ctx); err == nil {
		t.Fatal("expected an error for an unrecognized exception")
	}
}

func TestHandleUnrecognizedInterruptErrors(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()

	priv := platform.NewFakePrivilegeControl()
	h := New(tbl, dev, irqctl, priv, &fakeFencer{}, nil, nil)

	ctx := &Context{Mcause: csr.CauseInterruptBit | 11}

	if err := h.Handle(ctx); err == nil {
		t.Fatal("expected an error for an unrecognized interrupt")
	}
}

func TestBindSwapsActiveHandler(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()

	priv := platform.NewFakePrivilegeControl()
	h := New(tbl, dev, irqctl, priv, &fakeFencer{}, nil, nil)
	Bind(h)

	if active != h {
		t.Fatal("Bind did not install the handler")
	}
}

type fakeHSM struct {
	completeStartCalls int
	wakeSelfCalls      int
	next               hart.NextStage
	err                error
}

func (f *fakeHSM) CompleteStart(self uint32) (hart.NextStage, error) {
	f.completeStartCalls++
	return f.next, f.err
}

func (f *fakeHSM) WakeSelf(self uint32) (hart.NextStage, error) {
	f.wakeSelfCalls++
	return f.next, f.err
}

func TestHandleMachineSoftwareCompletesStartInsteadOfForwardingSSoft(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()
	priv := platform.NewFakePrivilegeControl()

	c, _ := tbl.Context(0)
	c.SetState(hart.StateStartPending)
	c.SetIPIType(hart.IPISSoft)

	next := hart.NextStage{StartAddr: 0x80200000, Privilege: csr.MPP_S, Opaque: 0xdead}
	fsm := &fakeHSM{next: next}

	h := New(tbl, dev, irqctl, priv, &fakeFencer{}, fsm, nil)

	ctx := &Context{HartID: 0, Mcause: csr.CauseInterruptBit | csr.CauseMachineSoftwareInterrupt}

	if err := h.Handle(ctx); err != nil {
		t.Fatal(err)
	}

	if fsm.completeStartCalls != 1 {
		t.Fatalf("completeStartCalls = %d, want 1", fsm.completeStartCalls)
	}

	if irqctl.RaisedSSIP != 0 {
		t.Fatalf("RaisedSSIP = %d, want 0: a START_PENDING hart has no S-mode context yet", irqctl.RaisedSSIP)
	}

	if ctx.Mepc != next.StartAddr || ctx.A0 != 0 || ctx.A1 != next.Opaque {
		t.Fatalf("ctx = %+v, want hand-off to %+v", ctx, next)
	}

	if priv.LastMPP != csr.MPP_S {
		t.Fatalf("LastMPP = %#x, want MPP_S", priv.LastMPP)
	}
}

func TestHandleMachineTimerWakesSuspendedHart(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()
	priv := platform.NewFakePrivilegeControl()

	c, _ := tbl.Context(0)
	c.SetState(hart.StateSuspended)

	next := hart.NextStage{StartAddr: 0x80200000, Privilege: csr.MPP_S, Opaque: 7}
	fsm := &fakeHSM{next: next}

	h := New(tbl, dev, irqctl, priv, &fakeFencer{}, fsm, nil)

	ctx := &Context{HartID: 0, Mcause: csr.CauseInterruptBit | csr.CauseMachineTimerInterrupt}

	if err := h.Handle(ctx); err != nil {
		t.Fatal(err)
	}

	if fsm.wakeSelfCalls != 1 {
		t.Fatalf("wakeSelfCalls = %d, want 1", fsm.wakeSelfCalls)
	}

	if irqctl.DisabledMTIE != 0 || irqctl.RaisedSTIP != 0 {
		t.Fatal("a suspended hart's wake should not forward the timer interrupt to S-mode")
	}

	if ctx.Mepc != next.StartAddr || ctx.A1 != next.Opaque {
		t.Fatalf("ctx = %+v, want hand-off to %+v", ctx, next)
	}
}
