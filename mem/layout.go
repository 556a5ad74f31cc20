// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

import (
	"github.com/usbarmory/tamago/dma"
)

const (
	// FirmwareStart/FirmwareSize cover this image's own text and data;
	// the boot orchestrator's PMP bootstrap grants RWX over the whole
	// address space and does not protect this range.
	FirmwareStart = LinkBase
	FirmwareSize  = 0x00200000 // 2MiB

	// NextStageStart/NextStageSize is the default region the next-stage
	// image (bootloader or kernel) is loaded into.
	NextStageStart = FirmwareStart + FirmwareSize
	NextStageSize  = 0x10000000 // 256MiB
)

// NextStageRegion is the DMA-addressable window the ELF next-stage loader
// copies PT_LOAD segments into.
var NextStageRegion *dma.Region

func init() {
	NextStageRegion = &dma.Region{
		Start: NextStageStart,
		Size:  NextStageSize,
	}

	NextStageRegion.Init()
	NextStageRegion.Reserve(NextStageSize, 0)
}
