// Copyright 2022 The Armored Witness OS authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package debug

import (
	"bytes"
	"debug/elf"
	"debug/gosym"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/term"
)

// nextStageELF is the raw next-stage image bytes the "sym" command
// symbolicates addresses against, set once the boot orchestrator has
// loaded the image, so a hart that traps back into the firmware with a
// next-stage program counter can be placed in its source.
var nextStageELF []byte

// InitSymbols binds the raw ELF bytes the "sym" command resolves program
// counters against.
func InitSymbols(elfBytes []byte) { nextStageELF = elfBytes }

func init() {
	Add(Cmd{
		Name:    "sym ",
		Args:    1,
		Pattern: regexp.MustCompile(`^sym ([[:xdigit:]]+)$`),
		Syntax:  "<hex pc>",
		Help:    "resolve a next-stage program counter to file:line",
		Fn:      symCmd,
	})
}

func symCmd(_ *term.Terminal, arg []string) (string, error) {
	if len(nextStageELF) == 0 {
		return "", fmt.Errorf("no next-stage image loaded")
	}

	pc, err := strconv.ParseUint(arg[0], 16, 64)

	if err != nil {
		return "", fmt.Errorf("invalid pc, %v", err)
	}

	return pcToLine(nextStageELF, pc)
}

// pcToLine resolves pc against buf's .gosymtab/.gopclntab sections, the
// debug info a non-stripped Go ELF carries for its own symbols.
func pcToLine(buf []byte, pc uint64) (string, error) {
	symTable, err := goSymTable(buf)

	if err != nil {
		return "", err
	}

	file, line, fn := symTable.PCToLine(pc)

	if fn == nil {
		return "", fmt.Errorf("pc %#x matches no known symbol", pc)
	}

	return fmt.Sprintf("%s:%d (%s)", file, line, fn.Name), nil
}

func goSymTable(buf []byte) (*gosym.Table, error) {
	exe, err := elf.NewFile(bytes.NewReader(buf))

	if err != nil {
		return nil, err
	}

	textSection := exe.Section(".text")

	if textSection == nil {
		return nil, fmt.Errorf("no .text section")
	}

	pclntabData, err := sectionData(exe, ".gopclntab")

	if err != nil {
		return nil, err
	}

	symtabData, err := sectionData(exe, ".gosymtab")

	if err != nil {
		return nil, err
	}

	lineTable := gosym.NewLineTable(pclntabData, textSection.Addr)

	return gosym.NewTable(symtabData, lineTable)
}

func sectionData(exe *elf.File, name string) ([]byte, error) {
	sec := exe.Section(name)

	if sec == nil {
		return nil, fmt.Errorf("no %s section", name)
	}

	return sec.Data()
}
