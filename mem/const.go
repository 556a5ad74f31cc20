// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mem holds the firmware's static memory map and the handful of
// tunables that size its statically-reserved per-hart resources.
package mem

const (
	// LinkBase is the platform-specific link address of .text.entry, the
	// location the boot ROM/loader jumps to.
	LinkBase = 0x80000000

	// MaxHarts bounds the trap vector's per-hart register-save frames
	// and M-mode stacks; the hart-context table is sized separately.
	MaxHarts = 8

	// PAGE_SIZE is the granularity a ranged SFENCE.VMA walks.
	PAGE_SIZE = 4096

	// TLB_FLUSH_LIMIT is the byte span beyond which a ranged fence
	// collapses to a flush-all, trading precision for a bounded number
	// of fence instructions.
	TLB_FLUSH_LIMIT = 4 * 1024 * 1024 // 4MiB

	// RFenceQueueCapacity is the bound on each hart's pending-fence
	// queue. Full queues are never blocked on; see hart.RFenceCell.TryPush.
	RFenceQueueCapacity = 16
)
