// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package debug implements the diagnostic console of SPEC_FULL.md §4.9:
// a terminal command table in the shape of the teacher's cmd package
// (itself unavailable here — it lives in the GoTEE module this firmware
// never imports), reading read-only introspection of hart state, RFENCE
// queues, and PMP entries, plus gated raw MMIO peek/poke. It never takes
// a lock the trap dispatcher also holds and never blocks a trap path:
// every command here reads the same atomics/mutexes the SBI extensions
// themselves use, it just never writes through them except via the
// explicitly gated peek/poke pair.
package debug

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/term"

	"github.com/chenzongyao200127/rvsbi/internal/platform"
)

// Cmd is one registered console command, in the teacher's cmd.Cmd shape:
// a name shown in help, an optional regexp the raw input line must
// match before Fn is called with the captured groups, and a handler.
type Cmd struct {
	Name    string
	Args    int
	Pattern *regexp.Regexp
	Syntax  string
	Help    string
	Fn      func(t *term.Terminal, arg []string) (string, error)
}

var cmds []Cmd

// Add registers a command. Called from each command file's init().
func Add(c Cmd) { cmds = append(cmds, c) }

// Help renders the registered command table, one line per command.
func Help() string {
	var b strings.Builder

	for _, c := range cmds {
		if c.Syntax != "" {
			fmt.Fprintf(&b, "%-24s %-24s # %s\n", c.Name, c.Syntax, c.Help)
		} else {
			fmt.Fprintf(&b, "%-24s %-24s # %s\n", c.Name, "", c.Help)
		}
	}

	return b.String()
}

// Dispatch matches line against every registered command's pattern (or,
// for a zero-Args command, its bare name) and runs the first match.
func Dispatch(t *term.Terminal, line string) (string, error) {
	line = strings.TrimSpace(line)

	if line == "" {
		return "", nil
	}

	for _, c := range cmds {
		if c.Pattern == nil {
			if line == c.Name {
				return c.Fn(t, nil)
			}

			continue
		}

		m := c.Pattern.FindStringSubmatch(line)

		if m == nil {
			continue
		}

		return c.Fn(t, m[1:])
	}

	return "", fmt.Errorf("unknown command: %q (try \"help\")", line)
}

// consoleIO adapts a platform.Console (WriteString/ReadByte) to the
// io.ReadWriter golang.org/x/term.NewTerminal requires.
type consoleIO struct {
	c platform.Console
}

func (rw consoleIO) Write(p []byte) (int, error) {
	rw.c.WriteString(string(p))
	return len(p), nil
}

func (rw consoleIO) Read(p []byte) (int, error) {
	for {
		b, err := rw.c.ReadByte()

		if err == platform.ErrNoInput {
			continue
		}

		if err != nil {
			return 0, err
		}

		p[0] = b

		return 1, nil
	}
}

// Serve runs the REPL until the console reports io.EOF (the registered
// "exit"/"quit" command) or a read error. Never called from the trap
// path; it is a separate goroutine (or, on a dedicated diagnostic hart,
// a separate boot target) the boot orchestrator may start after
// SBI_READY, entirely optional to the SBI ABI itself.
func Serve(console platform.Console, prompt string) error {
	t := term.NewTerminal(consoleIO{c: console}, prompt)

	for {
		line, err := t.ReadLine()

		if err != nil {
			return err
		}

		res, err := Dispatch(t, line)

		if res != "" {
			fmt.Fprintln(t, res)
		}

		if err == io.EOF {
			return nil
		}

		if err != nil {
			fmt.Fprintln(t, err)
		}
	}
}
