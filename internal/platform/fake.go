// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package platform

import (
	"io"
	"strings"
	"sync"
)

// FakeIPIDevice is an in-memory CLINT stand-in used by unit tests and by
// hosted simulation (no real board attached). It is safe for concurrent
// use by multiple harts, same as real MMIO.
type FakeIPIDevice struct {
	mu       sync.Mutex
	mtime    uint64
	mtimecmp []uint64
	msip     []bool
}

// NewFakeIPIDevice returns a device sized for n harts.
func NewFakeIPIDevice(n int) *FakeIPIDevice {
	return &FakeIPIDevice{
		mtimecmp: make([]uint64, n),
		msip:     make([]bool, n),
	}
}

func (d *FakeIPIDevice) HartCount() int { return len(d.msip) }

func (d *FakeIPIDevice) ReadMtime() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mtime
}

func (d *FakeIPIDevice) WriteMtime(v uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mtime = v
}

func (d *FakeIPIDevice) ReadMtimecmp(hart int) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mtimecmp[hart]
}

func (d *FakeIPIDevice) WriteMtimecmp(hart int, v uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mtimecmp[hart] = v
}

func (d *FakeIPIDevice) ReadMSIP(hart int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.msip[hart]
}

func (d *FakeIPIDevice) SetMSIP(hart int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msip[hart] = true
}

func (d *FakeIPIDevice) ClearMSIP(hart int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msip[hart] = false
}

// FakeConsole buffers writes and serves reads from a preloaded line, for
// exercising the debug console and panic path without a real UART.
type FakeConsole struct {
	mu  sync.Mutex
	out strings.Builder
	in  []byte
}

func NewFakeConsole() *FakeConsole { return &FakeConsole{} }

func (c *FakeConsole) WriteString(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.WriteString(s)
}

func (c *FakeConsole) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func (c *FakeConsole) Feed(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, b...)
}

func (c *FakeConsole) ReadByte() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.in) == 0 {
		return 0, io.EOF
	}

	b := c.in[0]
	c.in = c.in[1:]

	return b, nil
}

// FakeInterruptControl records mip/mie manipulation instead of touching
// real CSRs, for host-side unit tests of the IPI engine and trap
// dispatcher.
type FakeInterruptControl struct {
	mu           sync.Mutex
	ClearedSTIP  int
	EnabledMTIE  int
	DisabledMTIE int
	RaisedSTIP   int
	RaisedSSIP   int
}

func NewFakeInterruptControl() *FakeInterruptControl {
	return &FakeInterruptControl{}
}

func (f *FakeInterruptControl) ClearSupervisorTimerPending() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClearedSTIP++
}

func (f *FakeInterruptControl) EnableMachineTimer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EnabledMTIE++
}

func (f *FakeInterruptControl) DisableMachineTimer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DisabledMTIE++
}

func (f *FakeInterruptControl) RaiseSupervisorTimerPending() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RaisedSTIP++
}

func (f *FakeInterruptControl) RaiseSupervisorSoftwarePending() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RaisedSSIP++
}

// FakePrivilegeControl records the last MPP value requested instead of
// writing mstatus, for host-side unit tests of the trap dispatcher's
// next-stage hand-off.
type FakePrivilegeControl struct {
	mu      sync.Mutex
	LastMPP uint64
	Calls   int
}

func NewFakePrivilegeControl() *FakePrivilegeControl {
	return &FakePrivilegeControl{}
}

func (f *FakePrivilegeControl) SetMPP(privilege uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastMPP = privilege
	f.Calls++
}

// FakePMP is an in-memory PMP register file, for unit-testing PMP
// bootstrap logic without real CSRs.
type FakePMP struct {
	mu      sync.Mutex
	entries map[int]pmpEntry
}

type pmpEntry struct {
	addr       uint64
	r, w, x, l bool
	a          int
}

func NewFakePMP() *FakePMP {
	return &FakePMP{entries: map[int]pmpEntry{}}
}

func (p *FakePMP) WritePMP(i int, addr uint64, r, w, x bool, a int, l bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[i] = pmpEntry{addr: addr, r: r, w: w, x: x, a: a, l: l}
	return nil
}

func (p *FakePMP) ReadPMP(i int) (addr uint64, r, w, x bool, a int, l bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[i]
	return e.addr, e.r, e.w, e.x, e.a, e.l, nil
}

// FakeReset records the most recent reset request instead of acting on it.
type FakeReset struct {
	mu       sync.Mutex
	Type     ResetType
	Reason   ResetReason
	Requests int
}

func (r *FakeReset) Reset(t ResetType, reason ResetReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Type = t
	r.Reason = reason
	r.Requests++

	return nil
}
