// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build sifive_u

package platform

import (
	"github.com/usbarmory/tamago/board/qemu/sifive_u"
	"github.com/usbarmory/tamago/soc/sifive/fu540"
)

// sifiveIPIDevice binds IPIDevice to the FU540 CLINT registers tamago
// exposes for the QEMU sifive_u machine.
type sifiveIPIDevice struct {
	harts int
}

// NewSiFiveU540IPIDevice returns the CLINT binding for an n-hart FU540.
func NewSiFiveU540IPIDevice(harts int) IPIDevice {
	return &sifiveIPIDevice{harts: harts}
}

func (d *sifiveIPIDevice) HartCount() int { return d.harts }

func (d *sifiveIPIDevice) ReadMtime() uint64 { return fu540.CLINT.GetTime() }

func (d *sifiveIPIDevice) WriteMtime(v uint64) { fu540.CLINT.SetTime(v) }

func (d *sifiveIPIDevice) ReadMtimecmp(hart int) uint64 { return fu540.CLINT.GetTimecmp(hart) }

func (d *sifiveIPIDevice) WriteMtimecmp(hart int, v uint64) { fu540.CLINT.SetTimecmp(hart, v) }

func (d *sifiveIPIDevice) ReadMSIP(hart int) bool { return fu540.CLINT.GetSoftwareInterrupt(hart) }

func (d *sifiveIPIDevice) SetMSIP(hart int) { fu540.CLINT.SetSoftwareInterrupt(hart, true) }

func (d *sifiveIPIDevice) ClearMSIP(hart int) { fu540.CLINT.SetSoftwareInterrupt(hart, false) }

// sifiveConsole binds Console to the QEMU sifive_u UART0.
type sifiveConsole struct{}

// NewSiFiveU540Console returns the UART0 console binding.
func NewSiFiveU540Console() Console { return &sifiveConsole{} }

func (sifiveConsole) WriteString(s string) { sifive_u.UART0.WriteString(s) }

func (sifiveConsole) ReadByte() (byte, error) {
	b, ok := sifive_u.UART0.Read()

	if !ok {
		return 0, ErrNoInput
	}

	return b, nil
}

// sifivePMP binds PMP to the FU540's PMP CSRs, the same fu540.RV64 surface
// the teacher's debug console pmp command reads and writes.
type sifivePMP struct{}

// NewSiFiveU540PMP returns the FU540 PMP binding.
func NewSiFiveU540PMP() PMP { return sifivePMP{} }

func (sifivePMP) WritePMP(i int, addr uint64, r, w, x bool, a int, l bool) error {
	return fu540.RV64.WritePMP(i, addr, r, w, x, a, l)
}

func (sifivePMP) ReadPMP(i int) (addr uint64, r, w, x bool, a int, l bool, err error) {
	return fu540.RV64.ReadPMP(i)
}
