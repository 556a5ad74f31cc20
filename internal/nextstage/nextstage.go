// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package nextstage implements the ELF next-stage loader of
// SPEC_FULL.md §4.10: parse the next-stage image, copy its PT_LOAD
// segments into the platform's reserved memory region using the same
// exec.ELFImage the teacher's trusted_os_sifive_u uses to load a TamaGo
// unikernel, validate it targets riscv64, and — when any of its
// SHT_RELA sections holds R_RISCV_RELATIVE entries — apply the
// load-vs-link address delta to each one.
package nextstage

import (
	"debug/elf"
	"bytes"
	"fmt"

	"github.com/usbarmory/armory-boot/exec"
	"github.com/usbarmory/tamago/dma"
)

// Image is the loaded next-stage: the entry point the boot orchestrator
// arms hart 0's mepc with, and the region it was copied into.
type Image struct {
	Entry  uint64
	Region *dma.Region
}

// Load validates elfBytes targets EM_RISCV/ELFCLASS64, relocates any
// R_RISCV_RELATIVE entries found in any SHT_RELA section in place against a
// private copy of the image, and copies the result's PT_LOAD segments
// into region via exec.ELFImage.
func Load(elfBytes []byte, region *dma.Region) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(elfBytes))

	if err != nil {
		return nil, fmt.Errorf("nextstage: %v", err)
	}

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("nextstage: machine %v, want EM_RISCV", f.Machine)
	}

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("nextstage: class %v, want ELFCLASS64", f.Class)
	}

	patched := make([]byte, len(elfBytes))
	copy(patched, elfBytes)

	if err := relocate(f, patched, region.Start); err != nil {
		return nil, fmt.Errorf("nextstage: relocate, %v", err)
	}

	image := &exec.ELFImage{
		Region: region,
		ELF:    patched,
	}

	if err := image.Load(); err != nil {
		return nil, fmt.Errorf("nextstage: load, %v", err)
	}

	return &Image{Entry: image.Entry(), Region: region}, nil
}

// relocate rewrites each R_RISCV_RELATIVE entry found in any SHT_RELA
// section directly in buf, the in-memory ELF image exec.ELFImage.Load
// will subsequently copy out of — the standard position-independent
// fixup for a statically linked PIE with no symbol table to resolve
// against. r_offset is a link-time virtual address; it is translated to
// a file offset through the PT_LOAD segment that covers it before the
// write, since buf is laid out exactly as the file, not as memory.
func relocate(f *elf.File, buf []byte, loadBase uint64) error {
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_RELA {
			continue
		}

		data, err := sec.Data()

		if err != nil {
			return err
		}

		const relaEntSize = 24 // r_offset, r_info, r_addend, all 8 bytes on ELFCLASS64

		for off := 0; off+relaEntSize <= len(data); off += relaEntSize {
			rOffset := le64(data[off : off+8])
			rInfo := le64(data[off+8 : off+16])
			rAddend := le64(data[off+16 : off+24])

			if elf.R_RISCV(rInfo&0xffffffff) != elf.R_RISCV_RELATIVE {
				continue
			}

			fileOff, err := vaddrToFileOffset(f, rOffset)

			if err != nil {
				return err
			}

			if fileOff+8 > uint64(len(buf)) {
				return fmt.Errorf("relocation at vaddr %#x maps outside the image", rOffset)
			}

			le64put(buf[fileOff:fileOff+8], loadBase+rAddend)
		}
	}

	return nil
}

func vaddrToFileOffset(f *elf.File, vaddr uint64) (uint64, error) {
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		if vaddr >= prog.Vaddr && vaddr < prog.Vaddr+prog.Filesz {
			return prog.Off + (vaddr - prog.Vaddr), nil
		}
	}

	return 0, fmt.Errorf("vaddr %#x not covered by any PT_LOAD segment", vaddr)
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func le64put(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
