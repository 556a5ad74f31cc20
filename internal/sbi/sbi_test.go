// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sbi

import (
	"sync"
	"testing"

	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/internal/hsm"
	"github.com/chenzongyao200127/rvsbi/internal/ipi"
	"github.com/chenzongyao200127/rvsbi/internal/platform"
	"github.com/chenzongyao200127/rvsbi/internal/rfence"
	"github.com/chenzongyao200127/rvsbi/internal/sbierr"
)

type fakeFencer struct {
	mu       sync.Mutex
	executed []hart.RFenceRequest
}

func (f *fakeFencer) Execute(req hart.RFenceRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, req)
}

func newDispatcher(n int) (*Dispatcher, *platform.FakeIPIDevice, *platform.FakeReset) {
	tbl := hart.NewTable(n, 0, 16)
	dev := platform.NewFakeIPIDevice(n)
	irqctl := platform.NewFakeInterruptControl()
	reset := &platform.FakeReset{}

	ipiEngine := ipi.New(tbl, dev, irqctl)
	rfenceEngine := rfence.New(tbl, ipiEngine, &fakeFencer{})

	h := hsm.New(tbl, ipiEngine)

	return New(tbl, h, ipiEngine, rfenceEngine, reset, nil), dev, reset
}

func TestGetSpecVersion(t *testing.T) {
	d, _, _ := newDispatcher(1)

	v, err := d.Dispatch(0, ExtBase, 0, [6]uint64{})

	if err != nil {
		t.Fatal(err)
	}

	if v != specVersion {
		t.Fatalf("v = %#x, want %#x", v, specVersion)
	}
}

func TestProbeExtensionReportsImplemented(t *testing.T) {
	d, _, _ := newDispatcher(1)

	for _, ext := range []int64{ExtBase, ExtTimer, ExtIPI, ExtRFENCE, ExtHSM} {
		v, err := d.Dispatch(0, ExtBase, 3, [6]uint64{uint64(ext)})

		if err != nil {
			t.Fatal(err)
		}

		if v != 1 {
			t.Fatalf("probe(%#x) = %d, want 1", ext, v)
		}
	}

	v, err := d.Dispatch(0, ExtBase, 3, [6]uint64{0xdeadbeef})

	if err != nil {
		t.Fatal(err)
	}

	if v != 0 {
		t.Fatalf("probe(unknown) = %d, want 0", v)
	}
}

func TestProbeSRSTReflectsBoundReset(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()
	ipiEngine := ipi.New(tbl, dev, irqctl)
	rfenceEngine := rfence.New(tbl, ipiEngine, &fakeFencer{})
	h := hsm.New(tbl, ipiEngine)

	d := New(tbl, h, ipiEngine, rfenceEngine, nil, nil)

	v, err := d.Dispatch(0, ExtBase, 3, [6]uint64{uint64(ExtSRST)})

	if err != nil {
		t.Fatal(err)
	}

	if v != 0 {
		t.Fatalf("probe(SRST) with no reset bound = %d, want 0", v)
	}
}

func TestSetTimerNonSstcProgramsDevice(t *testing.T) {
	d, dev, _ := newDispatcher(1)

	if _, err := d.Dispatch(0, ExtTimer, 0, [6]uint64{0x1234}); err != nil {
		t.Fatal(err)
	}

	if got := dev.ReadMtimecmp(0); got != 0x1234 {
		t.Fatalf("mtimecmp = %#x, want 0x1234", got)
	}
}

func TestSendIPIRaisesSSoftOnEveryMaskedHart(t *testing.T) {
	d, dev, _ := newDispatcher(3)

	for _, c := range d.table.All() {
		c.SetState(hart.StateStarted)
	}

	if _, err := d.Dispatch(0, ExtIPI, 0, [6]uint64{0b101, 0}); err != nil {
		t.Fatal(err)
	}

	if !dev.ReadMSIP(0) || dev.ReadMSIP(1) || !dev.ReadMSIP(2) {
		t.Fatalf("msip = [%v %v %v], want [true false true]", dev.ReadMSIP(0), dev.ReadMSIP(1), dev.ReadMSIP(2))
	}
}

func TestSendIPIAllHartsBase(t *testing.T) {
	d, dev, _ := newDispatcher(3)

	for _, c := range d.table.All() {
		c.SetState(hart.StateStarted)
	}

	if _, err := d.Dispatch(0, ExtIPI, 0, [6]uint64{0, ^uint64(0)}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if !dev.ReadMSIP(i) {
			t.Fatalf("msip[%d] = false, want true", i)
		}
	}
}

func TestHartStartThenGetStatusObservesStartPending(t *testing.T) {
	d, dev, _ := newDispatcher(2)

	if _, err := d.Dispatch(0, ExtHSM, 0, [6]uint64{1, 0x80200000, 0xdead}); err != nil {
		t.Fatal(err)
	}

	v, err := d.Dispatch(0, ExtHSM, 2, [6]uint64{1})

	if err != nil {
		t.Fatal(err)
	}

	if v != 2 { // START_PENDING
		t.Fatalf("status = %d, want 2 (START_PENDING)", v)
	}

	if !dev.ReadMSIP(1) {
		t.Fatal("hart_start should have raised msip on the target")
	}
}

func TestHartGetStatusOfBootHartIsStarted(t *testing.T) {
	d, _, _ := newDispatcher(1)

	v, err := d.Dispatch(0, ExtHSM, 2, [6]uint64{0})

	if err != nil {
		t.Fatal(err)
	}

	if v != 0 { // STARTED
		t.Fatalf("status = %d, want 0 (STARTED)", v)
	}
}

func TestHartStopOnSelf(t *testing.T) {
	d, _, _ := newDispatcher(1)

	if _, err := d.Dispatch(0, ExtHSM, 1, [6]uint64{}); err != nil {
		t.Fatal(err)
	}

	v, err := d.Dispatch(0, ExtHSM, 2, [6]uint64{0})

	if err != nil {
		t.Fatal(err)
	}

	if v != 3 { // STOP_PENDING
		t.Fatalf("status = %d, want 3 (STOP_PENDING)", v)
	}
}

func TestHartSuspendArmsResumeAndTransitions(t *testing.T) {
	d, _, _ := newDispatcher(1)

	if _, err := d.Dispatch(0, ExtHSM, 3, [6]uint64{0, 0x80200000, 0x1}); err != nil {
		t.Fatal(err)
	}

	v, err := d.Dispatch(0, ExtHSM, 2, [6]uint64{0})

	if err != nil {
		t.Fatal(err)
	}

	if v != 5 { // SUSPEND_PENDING
		t.Fatalf("status = %d, want 5 (SUSPEND_PENDING)", v)
	}

	c, _ := d.table.Context(0)

	if ns := c.NextStage(); ns == nil || ns.StartAddr != 0x80200000 || ns.Opaque != 0x1 {
		t.Fatalf("next stage = %+v, want resume at 0x80200000 with opaque 0x1", ns)
	}
}

func TestRemoteFenceIExecutesOnSelfAndClearsWaitSync(t *testing.T) {
	d, _, _ := newDispatcher(1)

	if _, err := d.Dispatch(0, ExtRFENCE, 0, [6]uint64{0b1, 0}); err != nil {
		t.Fatal(err)
	}

	c, _ := d.table.Context(0)

	if c.RFence().Len() != 0 || c.RFence().WaitSync() != 0 {
		t.Fatalf("queue len = %d, wait_sync = %d, want both 0", c.RFence().Len(), c.RFence().WaitSync())
	}
}

func TestSystemResetInvokesBoundLine(t *testing.T) {
	d, _, reset := newDispatcher(1)

	if _, err := d.Dispatch(0, ExtSRST, 0, [6]uint64{uint64(platform.ResetTypeColdReboot), uint64(platform.ResetReasonNone)}); err != nil {
		t.Fatal(err)
	}

	if reset.Requests != 1 || reset.Type != platform.ResetTypeColdReboot {
		t.Fatalf("reset = %+v, want one ColdReboot request", reset)
	}
}

func TestSystemResetWithoutBoundLineReturnsNotSupported(t *testing.T) {
	tbl := hart.NewTable(1, 0, 16)
	dev := platform.NewFakeIPIDevice(1)
	irqctl := platform.NewFakeInterruptControl()
	ipiEngine := ipi.New(tbl, dev, irqctl)
	rfenceEngine := rfence.New(tbl, ipiEngine, &fakeFencer{})
	h := hsm.New(tbl, ipiEngine)

	d := New(tbl, h, ipiEngine, rfenceEngine, nil, nil)

	_, err := d.Dispatch(0, ExtSRST, 0, [6]uint64{0, 0})

	if sbierr.FromError(err) != sbierr.NotSupported {
		t.Fatalf("err = %v, want NotSupported", err)
	}
}

func TestUnknownExtensionReturnsNotSupported(t *testing.T) {
	d, _, _ := newDispatcher(1)

	_, err := d.Dispatch(0, 0x123456, 0, [6]uint64{})

	if sbierr.FromError(err) != sbierr.NotSupported {
		t.Fatalf("err = %v, want NotSupported", err)
	}
}

func TestMaskToTargetsRejectsOutOfRangeHart(t *testing.T) {
	d, _, _ := newDispatcher(2)

	_, err := d.Dispatch(0, ExtIPI, 0, [6]uint64{0b100, 0})

	if sbierr.FromError(err) != sbierr.InvalidParam {
		t.Fatalf("err = %v, want InvalidParam", err)
	}
}
