// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hart

import (
	"sync"
	"sync/atomic"

	"github.com/chenzongyao200127/rvsbi/mem"
)

// FenceOp enumerates the machine-level fence instruction an RFenceRequest
// asks the target to execute.
type FenceOp int

const (
	FenceI FenceOp = iota
	FenceSFenceVMA
	FenceSFenceVMAASID
	FenceHFenceGVMA
	FenceHFenceGVMAVMID
	FenceHFenceVVMA
	FenceHFenceVVMAASID
)

// RFenceRequest is the coordination payload carried by a hart's fence
// queue: everything a consumer needs to execute the fence and acknowledge
// the initiator.
type RFenceRequest struct {
	Op        FenceOp
	StartAddr uint64
	Size      uint64
	ASID      uint64
	VMID      uint64
	Initiator uint32
}

// RFenceCell is the coordination object for fences targeting one hart: a
// bounded FIFO of pending requests plus the counter tracking fences this
// hart originated that remote harts have not yet acknowledged. queue is a
// statically-reserved ring buffer, sized once at mem.RFenceQueueCapacity,
// the same fixed-array discipline trap_frame.go applies to machineStacks;
// TryPush never grows it.
type RFenceCell struct {
	mu       sync.Mutex
	queue    [mem.RFenceQueueCapacity]RFenceRequest
	head     int
	count    int
	capacity int

	waitSync atomic.Int64
}

func newRFenceCell() *RFenceCell {
	return &RFenceCell{capacity: mem.RFenceQueueCapacity}
}

// SetCapacity adjusts the bound enforced by TryPush to n, which must not
// exceed the statically-reserved ring's length, mem.RFenceQueueCapacity.
// Intended to be called once, during boot, and by tests exercising a
// smaller effective queue.
func (c *RFenceCell) SetCapacity(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = n
}

// TryPush writes a request into the next free ring slot if the queue has
// room, returning false if it is full. Callers must never block waiting
// for room — see rfence.Engine's enqueue, which drains cooperatively.
func (c *RFenceCell) TryPush(r RFenceRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count >= c.capacity {
		return false
	}

	c.queue[(c.head+c.count)%mem.RFenceQueueCapacity] = r
	c.count++

	return true
}

// Pop removes and returns the oldest pending request, if any.
func (c *RFenceCell) Pop() (RFenceRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		return RFenceRequest{}, false
	}

	r := c.queue[c.head]
	c.head = (c.head + 1) % mem.RFenceQueueCapacity
	c.count--

	return r, true
}

// Len reports the current queue depth, for diagnostics only.
func (c *RFenceCell) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// AddWaitSync adds delta (which may be negative) to the outstanding-fence
// counter. Relaxed ordering is sufficient: the paired ipiType transitions
// already establish the happens-before edge (see hart.Context.SetIPIType).
func (c *RFenceCell) AddWaitSync(delta int64) {
	c.waitSync.Add(delta)
}

// WaitSync returns the outstanding-fence counter.
func (c *RFenceCell) WaitSync() uint64 {
	return uint64(c.waitSync.Load())
}
