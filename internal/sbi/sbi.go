// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sbi implements the ecall dispatch table of spec §6: the Base,
// Timer, IPI, RFENCE, HSM, and System Reset extensions, each mapped onto
// the already-built hsm/ipi/rfence engines. trap.Handler calls Dispatch
// once per supervisor ecall; nothing else in the firmware calls into
// this package directly.
package sbi

import (
	"github.com/chenzongyao200127/rvsbi/internal/csr"
	"github.com/chenzongyao200127/rvsbi/internal/hart"
	"github.com/chenzongyao200127/rvsbi/internal/hsm"
	"github.com/chenzongyao200127/rvsbi/internal/ipi"
	"github.com/chenzongyao200127/rvsbi/internal/platform"
	"github.com/chenzongyao200127/rvsbi/internal/rfence"
	"github.com/chenzongyao200127/rvsbi/internal/sbierr"
	"github.com/chenzongyao200127/rvsbi/mem"
)

// Extension ids, the values ecall's a7 carries, matching the registered
// RISC-V SBI extension numbering.
const (
	ExtBase   = 0x10
	ExtTimer  = 0x54494D45
	ExtIPI    = 0x735049
	ExtRFENCE = 0x52464E43
	ExtHSM    = 0x48534D
	ExtSRST   = 0x53525354
)

// specVersion packs major 2 / minor 0 into the bit layout get_spec_version
// returns: bit 31 reserved, bits 30:24 major, bits 23:0 minor.
const specVersion = uint64(2) << 24

// implID is an unregistered implementation id; this firmware has never
// been assigned a slot in the upstream registry.
const implID = 0x00525642 // "RVB" — arbitrary but distinguishable in a trace
const implVersion = 1

// Dispatcher routes a decoded ecall to the extension it names. All
// fields other than table are optional; an unbound one reports every
// call into its extension as NotSupported rather than panicking, so a
// platform without e.g. a reset line still boots.
type Dispatcher struct {
	table  *hart.Table
	hsm    *hsm.HSM
	ipi    *ipi.Engine
	rfence *rfence.Engine
	reset  platform.Reset
	sstc   platform.SstcTimer
}

// New builds a Dispatcher. reset and sstc may be nil.
func New(table *hart.Table, h *hsm.HSM, ipiEngine *ipi.Engine, rfenceEngine *rfence.Engine, reset platform.Reset, sstc platform.SstcTimer) *Dispatcher {
	return &Dispatcher{table: table, hsm: h, ipi: ipiEngine, rfence: rfenceEngine, reset: reset, sstc: sstc}
}

// Dispatch implements trap.Dispatcher.
func (d *Dispatcher) Dispatch(hartID uint32, extID, funcID int64, args [6]uint64) (uint64, error) {
	switch extID {
	case ExtBase:
		return d.base(funcID, args)
	case ExtTimer:
		return d.timer(hartID, funcID, args)
	case ExtIPI:
		return d.ipiExt(funcID, args)
	case ExtRFENCE:
		return d.rfenceExt(hartID, funcID, args)
	case ExtHSM:
		return d.hsmExt(hartID, funcID, args)
	case ExtSRST:
		return d.srst(funcID, args)
	default:
		return 0, sbierr.NotSupported
	}
}

func (d *Dispatcher) base(funcID int64, args [6]uint64) (uint64, error) {
	switch funcID {
	case 0: // get_spec_version
		return specVersion, nil
	case 1: // get_impl_id
		return implID, nil
	case 2: // get_impl_version
		return implVersion, nil
	case 3: // probe_extension
		return d.probe(int64(args[0])), nil
	case 4, 5, 6: // get_mvendorid, get_marchid, get_mimpid
		return 0, nil
	default:
		return 0, sbierr.NotSupported
	}
}

func (d *Dispatcher) probe(extID int64) uint64 {
	switch extID {
	case ExtBase, ExtTimer, ExtIPI, ExtRFENCE, ExtHSM:
		return 1
	case ExtSRST:
		if d.reset != nil {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func (d *Dispatcher) timer(hartID uint32, funcID int64, args [6]uint64) (uint64, error) {
	if funcID != 0 {
		return 0, sbierr.NotSupported
	}

	c, err := d.table.Context(hartID)

	if err != nil {
		return 0, sbierr.InvalidParam
	}

	d.ipi.SetTimer(hartID, args[0], c.Extensions(), d.sstc)

	return 0, nil
}

func (d *Dispatcher) ipiExt(funcID int64, args [6]uint64) (uint64, error) {
	if funcID != 0 {
		return 0, sbierr.NotSupported
	}

	targets, err := d.maskToTargets(args[0], args[1])

	if err != nil {
		return 0, err
	}

	return 0, d.ipi.Send(targets)
}

// maskToTargets expands an SBI hart_mask/hart_mask_base pair into a
// concrete target list. hart_mask_base == -1 selects every hart the
// table was built for and hart_mask is then ignored, per the SBI
// convention for "all harts".
func (d *Dispatcher) maskToTargets(hartMask, hartMaskBase uint64) ([]uint32, error) {
	if hartMaskBase == ^uint64(0) {
		targets := make([]uint32, d.table.Len())

		for i := range targets {
			targets[i] = uint32(i)
		}

		return targets, nil
	}

	var targets []uint32

	for i := 0; i < 64; i++ {
		if hartMask&(uint64(1)<<uint(i)) == 0 {
			continue
		}

		id := hartMaskBase + uint64(i)

		if id >= uint64(d.table.Len()) {
			return nil, sbierr.InvalidParam
		}

		targets = append(targets, uint32(id))
	}

	return targets, nil
}

func (d *Dispatcher) rfenceExt(hartID uint32, funcID int64, args [6]uint64) (uint64, error) {
	targets, err := d.maskToTargets(args[0], args[1])

	if err != nil {
		return 0, err
	}

	switch funcID {
	case 0: // remote_fence_i
		return 0, d.rfence.RemoteFenceI(hartID, targets)
	case 1: // remote_sfence_vma
		return 0, d.rfence.RemoteSFenceVMA(hartID, targets, args[2], args[3], mem.TLB_FLUSH_LIMIT)
	case 2: // remote_sfence_vma_asid
		return 0, d.rfence.RemoteSFenceVMAASID(hartID, targets, args[2], args[3], args[4], mem.TLB_FLUSH_LIMIT)
	case 3: // remote_hfence_gvma_vmid
		return 0, d.rfence.RemoteHFenceGVMAVMID(hartID, targets, args[2], args[3], args[4], mem.TLB_FLUSH_LIMIT)
	case 4: // remote_hfence_gvma
		return 0, d.rfence.RemoteHFenceGVMA(hartID, targets, args[2], args[3], mem.TLB_FLUSH_LIMIT)
	case 5: // remote_hfence_vvma_asid
		return 0, d.rfence.RemoteHFenceVVMAASID(hartID, targets, args[2], args[3], args[4], mem.TLB_FLUSH_LIMIT)
	case 6: // remote_hfence_vvma
		return 0, d.rfence.RemoteHFenceVVMA(hartID, targets, args[2], args[3], mem.TLB_FLUSH_LIMIT)
	default:
		return 0, sbierr.NotSupported
	}
}

func (d *Dispatcher) hsmExt(hartID uint32, funcID int64, args [6]uint64) (uint64, error) {
	switch funcID {
	case 0: // hart_start
		target := uint32(args[0])
		return 0, d.hsm.Start(target, hart.NextStage{StartAddr: args[1], Privilege: csr.MPP_S, Opaque: args[2]})
	case 1: // hart_stop
		return 0, d.hsm.Stop(hartID)
	case 2: // hart_get_status
		state, err := d.hsm.Status(uint32(args[0]))

		if err != nil {
			return 0, err
		}

		return statusCode(state), nil
	case 3: // hart_suspend
		return d.suspend(hartID, args)
	default:
		return 0, sbierr.NotSupported
	}
}

// suspend arms the resume image a subsequent wake hands the hart back to
// (see trap.Handler.handleMachineSoftware/handleMachineTimer and
// hsm.WakeSelf) before transitioning STARTED -> SUSPEND_PENDING. The
// suspend_type argument (retentive vs. non-retentive) is accepted but
// not distinguished: every suspend here always requires a resume_addr
// to hand back to.
func (d *Dispatcher) suspend(hartID uint32, args [6]uint64) (uint64, error) {
	c, err := d.table.Context(hartID)

	if err != nil {
		return 0, sbierr.InvalidParam
	}

	c.SetNextStage(hart.NextStage{StartAddr: args[1], Privilege: csr.MPP_S, Opaque: args[2]})

	return 0, d.hsm.Suspend(hartID)
}

// statusCode maps hart.State onto the wire values hart_get_status
// returns, which do not share hart.State's internal enum ordering.
func statusCode(s hart.State) uint64 {
	switch s {
	case hart.StateStarted:
		return 0
	case hart.StateStopped:
		return 1
	case hart.StateStartPending:
		return 2
	case hart.StateStopPending:
		return 3
	case hart.StateSuspended:
		return 4
	case hart.StateSuspendPending:
		return 5
	case hart.StateResumePending:
		return 6
	default:
		return 1
	}
}

func (d *Dispatcher) srst(funcID int64, args [6]uint64) (uint64, error) {
	if funcID != 0 {
		return 0, sbierr.NotSupported
	}

	if d.reset == nil {
		return 0, sbierr.NotSupported
	}

	return 0, d.reset.Reset(platform.ResetType(args[0]), platform.ResetReason(args[1]))
}
