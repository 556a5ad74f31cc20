// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package rfence implements the remote-fence engine of spec §4.5: a
// bounded per-hart queue of pending TLB/instruction-cache invalidations,
// fanned out by IPI and drained cooperatively so a full queue never
// blocks its producer — the single most important liveness property of
// this subsystem.
package rfence

import (
	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/internal/sbierr"
)

// Fencer executes the machine-level fence instruction a request asks
// for. The real implementation is architecture assembly (fence.i and
// sfence.vma, the latter also standing in for the hfence ops); tests
// substitute a recorder.
type Fencer interface {
	Execute(req hart.RFenceRequest)
}

// IPISender is the capability the engine needs from the IPI engine:
// raising a FENCE-reason interrupt once a request has been queued for a
// remote hart.
type IPISender interface {
	SendFence(target uint32) error
}

// Engine coordinates RFENCE requests across the hart table.
type Engine struct {
	table  *hart.Table
	ipi    IPISender
	fencer Fencer
}

// New builds an Engine bound to the given hart table, IPI sender, and
// fence-instruction executor.
func New(table *hart.Table, ipi IPISender, fencer Fencer) *Engine {
	return &Engine{table: table, ipi: ipi, fencer: fencer}
}

// request is the common framing every remote_* entry point shares:
// dispatch to every eligible target, then cooperatively drain until
// every dispatched target has acknowledged.
func (e *Engine) request(initiator uint32, mask []uint32, tmpl hart.RFenceRequest) error {
	self, err := e.dispatch(initiator, mask, tmpl)

	if err != nil {
		return err
	}

	e.drainUntilZero(self)

	return nil
}

// dispatch pushes tmpl to every eligible target's queue, incrementing
// the initiator's wait_sync_count once per target, and raises a FENCE
// IPI for every non-self target. It returns before any target has
// necessarily acknowledged; request's caller is responsible for then
// draining until wait_sync_count falls to zero.
func (e *Engine) dispatch(initiator uint32, mask []uint32, tmpl hart.RFenceRequest) (*hart.Context, error) {
	self, err := e.table.Context(initiator)

	if err != nil {
		return nil, sbierr.InvalidParam
	}

	tmpl.Initiator = initiator

	for _, target := range mask {
		c, err := e.table.Context(target)

		if err != nil {
			return nil, sbierr.InvalidParam
		}

		if !c.AllowIPI() {
			continue
		}

		e.enqueue(c, tmpl)

		if target != initiator {
			if err := e.ipi.SendFence(target); err != nil {
				return nil, err
			}
		}
	}

	return self, nil
}

// enqueue pushes tmpl onto target's queue and increments the initiator's
// wait_sync_count exactly once, retrying the push through the
// cooperative-drain back-pressure path if the queue is momentarily full.
func (e *Engine) enqueue(target *hart.Context, tmpl hart.RFenceRequest) {
	initiator, _ := e.table.Context(tmpl.Initiator)

	for !target.RFence().TryPush(tmpl) {
		// Queue full: never block on the mutex. Release it (TryPush
		// already has, having returned) and make local progress by
		// draining one entry of the initiator's own queue before
		// retrying — this is what prevents two harts from deadlocking
		// on each other's full queue in opposite directions.
		e.drainOne(initiator)
	}

	initiator.RFence().AddWaitSync(1)
}

// drainOne services a single pending request from self's own queue, if
// any, executing the fence and acknowledging its initiator. It is the
// building block both the cooperative-drain retry path and the trap
// dispatcher's interrupt handler use.
func (e *Engine) drainOne(self *hart.Context) bool {
	req, ok := self.RFence().Pop()

	if !ok {
		return false
	}

	e.fencer.Execute(req)

	if initiator, err := e.table.Context(req.Initiator); err == nil {
		initiator.RFence().AddWaitSync(-1)
	}

	return true
}

// DrainAll services every pending request in self's queue. Called from
// the trap dispatcher's machine-software-interrupt handler when the
// FENCE reason bit was set, and by Engine's own cooperative-drain loop.
func (e *Engine) DrainAll(self *hart.Context) {
	for e.drainOne(self) {
	}
}

func (e *Engine) drainUntilZero(self *hart.Context) {
	for self.RFence().WaitSync() > 0 {
		e.DrainAll(self)
	}
}

// RemoteFenceI implements remote_fence_i: an instruction-cache fence on
// every hart in mask.
func (e *Engine) RemoteFenceI(initiator uint32, mask []uint32) error {
	return e.request(initiator, mask, hart.RFenceRequest{Op: hart.FenceI})
}

// clampRange applies spec §4.5's overflow/flush-all collapse: a ranged
// fence with start==0 && size==0, size==MaxUint64, start+size
// overflowing, or size exceeding flushLimit all become (0, MaxUint64).
func clampRange(start, size uint64, flushLimit uint64) (uint64, uint64) {
	if (start == 0 && size == 0) || size == ^uint64(0) {
		return 0, ^uint64(0)
	}

	end := start + size

	if end < start { // overflow
		return 0, ^uint64(0)
	}

	if size > flushLimit {
		return 0, ^uint64(0)
	}

	return start, size
}

// RemoteSFenceVMA implements remote_sfence_vma.
func (e *Engine) RemoteSFenceVMA(initiator uint32, mask []uint32, start, size, flushLimit uint64) error {
	start, size = clampRange(start, size, flushLimit)

	return e.request(initiator, mask, hart.RFenceRequest{
		Op:        hart.FenceSFenceVMA,
		StartAddr: start,
		Size:      size,
	})
}

// RemoteSFenceVMAASID implements remote_sfence_vma_asid.
func (e *Engine) RemoteSFenceVMAASID(initiator uint32, mask []uint32, start, size, asid, flushLimit uint64) error {
	start, size = clampRange(start, size, flushLimit)

	return e.request(initiator, mask, hart.RFenceRequest{
		Op:        hart.FenceSFenceVMAASID,
		StartAddr: start,
		Size:      size,
		ASID:      asid,
	})
}

// RemoteHFenceGVMA implements remote_hfence_gvma.
func (e *Engine) RemoteHFenceGVMA(initiator uint32, mask []uint32, start, size, flushLimit uint64) error {
	start, size = clampRange(start, size, flushLimit)

	return e.request(initiator, mask, hart.RFenceRequest{
		Op:        hart.FenceHFenceGVMA,
		StartAddr: start,
		Size:      size,
	})
}

// RemoteHFenceGVMAVMID implements remote_hfence_gvma_vmid.
func (e *Engine) RemoteHFenceGVMAVMID(initiator uint32, mask []uint32, start, size, vmid, flushLimit uint64) error {
	start, size = clampRange(start, size, flushLimit)

	return e.request(initiator, mask, hart.RFenceRequest{
		Op:        hart.FenceHFenceGVMAVMID,
		StartAddr: start,
		Size:      size,
		VMID:      vmid,
	})
}

// RemoteHFenceVVMA implements remote_hfence_vvma.
func (e *Engine) RemoteHFenceVVMA(initiator uint32, mask []uint32, start, size, flushLimit uint64) error {
	start, size = clampRange(start, size, flushLimit)

	return e.request(initiator, mask, hart.RFenceRequest{
		Op:        hart.FenceHFenceVVMA,
		StartAddr: start,
		Size:      size,
	})
}

// RemoteHFenceVVMAASID implements remote_hfence_vvma_asid.
func (e *Engine) RemoteHFenceVVMAASID(initiator uint32, mask []uint32, start, size, asid, flushLimit uint64) error {
	start, size = clampRange(start, size, flushLimit)

	return e.request(initiator, mask, hart.RFenceRequest{
		Op:        hart.FenceHFenceVVMAASID,
		StartAddr: start,
		Size:      size,
		ASID:      asid,
	})
}
