// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ipi implements the inter-processor interrupt engine of spec
// §4.4: sending software IPIs, coalescing reason bits ahead of the
// RFENCE queue, and programming the per-hart timer compare register.
package ipi

import (
	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/internal/platform"
	"github.com/chenzongyao200127/rvsbi/internal/sbierr"
)

// Engine sends software IPIs and programs hart timers through the bound
// platform device.
type Engine struct {
	table  *hart.Table
	dev    platform.IPIDevice
	irqctl platform.InterruptControl
}

// New builds an Engine bound to the given hart table, CLINT-like device,
// and the calling hart's own mip/mie access (real hardware in production,
// a fake in tests).
func New(table *hart.Table, dev platform.IPIDevice, irqctl platform.InterruptControl) *Engine {
	return &Engine{table: table, dev: dev, irqctl: irqctl}
}

// send ORs reason into the target's ipiType and raises msip only when
// the target had no reason bit pending beforehand, per spec §4.4's
// coalescing rule. It is a no-op, not an error, when the target does not currently
// allow IPIs (e.g. a STOPPED hart) — callers that need to know about
// that distinguish by checking AllowIPI themselves, matching HSM's own
// "allow_ipi()" gate.
func (e *Engine) send(target uint32, reason uint32) error {
	c, err := e.table.Context(target)

	if err != nil {
		return sbierr.InvalidParam
	}

	if !c.AllowIPI() {
		return nil
	}

	if c.SetIPIType(reason) {
		e.dev.SetMSIP(int(target))
	}

	return nil
}

// SendSSoft raises a supervisor-software IPI on target. Used by HSM to
// notify a hart its own state was changed remotely. A START_PENDING
// target is raised even though AllowIPI refuses it, since this IPI is
// how hsm.Start wakes it; every other target is gated as in send.
func (e *Engine) SendSSoft(target uint32) error {
	if c, err := e.table.Context(target); err == nil && c.State() == hart.StateStartPending {
		if c.SetIPIType(hart.IPISSoft) {
			e.dev.SetMSIP(int(target))
		}

		return nil
	}

	return e.send(target, hart.IPISSoft)
}

// SendFence raises a FENCE-reason IPI on target, used by the RFENCE
// engine once it has queued a request for that hart.
func (e *Engine) SendFence(target uint32) error {
	return e.send(target, hart.IPIFence)
}

// Send implements sbi_send_ipi: raise SSOFT on every hart set in mask.
func (e *Engine) Send(mask []uint32) error {
	for _, target := range mask {
		if err := e.send(target, hart.IPISSoft); err != nil {
			return err
		}
	}

	return nil
}

// SetTimer implements sbi_set_timer for the calling hart. If the hart has
// the Sstc extension, stimecmp is written directly and the M-mode timer
// interrupt is left disabled (S-mode owns timer comparisons from here
// on). Otherwise the device's per-hart mtimecmp register is programmed,
// the pending supervisor-timer bit is cleared, and the M-mode timer
// interrupt is (re-)enabled so the trap dispatcher notices the compare.
func (e *Engine) SetTimer(self uint32, stimeValue uint64, ext hart.Extensions, sstc platform.SstcTimer) {
	if ext.Sstc && sstc != nil {
		sstc.SetStimecmp(stimeValue)
		return
	}

	e.dev.WriteMtimecmp(int(self), stimeValue)
	e.irqctl.ClearSupervisorTimerPending()
	e.irqctl.EnableMachineTimer()
}
