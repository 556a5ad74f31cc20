// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hsm implements the Hart State Management extension: the
// per-hart lifecycle state machine of spec §4.3. Every transition other
// than a hart's own self-park/self-idle goes through a CAS so a stale
// caller never clobbers a state another hart is concurrently observing.
package hsm

import (
	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/internal/sbierr"
)

// IPISender is the capability HSM needs from the IPI engine: raising a
// software interrupt of reason SSOFT so a target hart notices its own
// state changed underneath it.
type IPISender interface {
	SendSSoft(target uint32) error
}

// HSM coordinates hart lifecycle transitions across the table.
type HSM struct {
	table *hart.Table
	ipi   IPISender
}

// New builds an HSM bound to the given hart table and IPI sender.
func New(table *hart.Table, ipi IPISender) *HSM {
	return &HSM{table: table, ipi: ipi}
}

// Start implements sbi_hart_start: arms target with the next-stage image
// and CAS-transitions it STOPPED -> START_PENDING, then raises an SSOFT
// IPI so the target notices on its own time. The caller returns
// immediately; the jump to STARTED and into next_stage happens on the
// target hart when it services that interrupt (see trap.Handler).
func (h *HSM) Start(target uint32, next hart.NextStage) error {
	c, err := h.table.Context(target)

	if err != nil {
		return sbierr.InvalidParam
	}

	if !c.CompareAndSwapState(hart.StateStopped, hart.StateStartPending) {
		return sbierr.AlreadyAvailable
	}

	c.SetNextStage(next)

	return h.ipi.SendSSoft(target)
}

// CompleteStart is called by the target hart itself, from the trap path,
// once it has observed its own START_PENDING and is about to jump into
// next_stage. It is the release-ordered write that makes the jump
// reachable to any future remote observer of this hart's state.
func (h *HSM) CompleteStart(self uint32) (hart.NextStage, error) {
	c, err := h.table.Context(self)

	if err != nil {
		return hart.NextStage{}, sbierr.InvalidParam
	}

	if !c.CompareAndSwapState(hart.StateStartPending, hart.StateStarted) {
		return hart.NextStage{}, sbierr.Failed
	}

	ns := c.NextStage()

	if ns == nil {
		return hart.NextStage{}, sbierr.Failed
	}

	return *ns, nil
}

// Stop implements sbi_hart_stop: called by a hart on itself only (the SBI
// spec forbids remote stop). Transitions STARTED -> STOP_PENDING; the
// caller then parks in WFI and self-transitions to STOPPED.
func (h *HSM) Stop(self uint32) error {
	c, err := h.table.Context(self)

	if err != nil {
		return sbierr.InvalidParam
	}

	if !c.CompareAndSwapState(hart.StateStarted, hart.StateStopPending) {
		return sbierr.Failed
	}

	return nil
}

// CompleteStop is called by the parking hart once it is about to enter
// WFI, finishing the STOP_PENDING -> STOPPED transition.
func (h *HSM) CompleteStop(self uint32) error {
	c, err := h.table.Context(self)

	if err != nil {
		return sbierr.InvalidParam
	}

	if !c.CompareAndSwapState(hart.StateStopPending, hart.StateStopped) {
		return sbierr.Failed
	}

	return nil
}

// Suspend implements sbi_hart_suspend on self: STARTED -> SUSPEND_PENDING.
func (h *HSM) Suspend(self uint32) error {
	c, err := h.table.Context(self)

	if err != nil {
		return sbierr.InvalidParam
	}

	if !c.CompareAndSwapState(hart.StateStarted, hart.StateSuspendPending) {
		return sbierr.Failed
	}

	return nil
}

// CompleteSuspend is called by the idling hart once it is about to enter
// WFI, finishing SUSPEND_PENDING -> SUSPENDED.
func (h *HSM) CompleteSuspend(self uint32) error {
	c, err := h.table.Context(self)

	if err != nil {
		return sbierr.InvalidParam
	}

	if !c.CompareAndSwapState(hart.StateSuspendPending, hart.StateSuspended) {
		return sbierr.Failed
	}

	return nil
}

// Resume implements a remote wake of a SUSPENDED hart: CAS to
// RESUME_PENDING then raise an SSOFT IPI, mirroring Start.
func (h *HSM) Resume(target uint32, next hart.NextStage) error {
	c, err := h.table.Context(target)

	if err != nil {
		return sbierr.InvalidParam
	}

	if !c.CompareAndSwapState(hart.StateSuspended, hart.StateResumePending) {
		return sbierr.AlreadyAvailable
	}

	c.SetNextStage(next)

	return h.ipi.SendSSoft(target)
}

// CompleteResume mirrors CompleteStart for the RESUME_PENDING -> STARTED
// transition.
func (h *HSM) CompleteResume(self uint32) (hart.NextStage, error) {
	c, err := h.table.Context(self)

	if err != nil {
		return hart.NextStage{}, sbierr.InvalidParam
	}

	if !c.CompareAndSwapState(hart.StateResumePending, hart.StateStarted) {
		return hart.NextStage{}, sbierr.Failed
	}

	ns := c.NextStage()

	if ns == nil {
		return hart.NextStage{}, sbierr.Failed
	}

	return *ns, nil
}

// WakeSelf is called by the trap path when a SUSPENDED hart's own pending
// interrupt fires. Unlike Resume, which models a remote hart arming a
// wake and signalling it over IPI, the hart here is already executing
// the trap that woke it, so there is no round trip to wait out: it CASes
// straight to STARTED and hands back the image armed at suspend time.
func (h *HSM) WakeSelf(self uint32) (hart.NextStage, error) {
	c, err := h.table.Context(self)

	if err != nil {
		return hart.NextStage{}, sbierr.InvalidParam
	}

	if !c.CompareAndSwapState(hart.StateSuspended, hart.StateStarted) {
		return hart.NextStage{}, sbierr.Failed
	}

	ns := c.NextStage()

	if ns == nil {
		return hart.NextStage{}, sbierr.Failed
	}

	return *ns, nil
}

// Status implements sbi_hart_get_status: a pure read with no side effect.
func (h *HSM) Status(target uint32) (hart.State, error) {
	c, err := h.table.Context(target)

	if err != nil {
		return 0, sbierr.InvalidParam
	}

	return c.State(), nil
}
