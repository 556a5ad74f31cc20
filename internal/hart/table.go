// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hart

import "fmt"

// Table is the process-wide hart-context table: a contiguous region
// indexed by hart id, built once during boot and never resized. Indexing
// is one-to-one with the executing hart; cross-hart reads go through the
// atomics and mutex Context/RFenceCell expose, never through the slice
// itself after construction.
type Table struct {
	contexts []*Context
}

// NewTable builds a table for n harts. bootHart begins in STARTED, every
// other hart begins in STOPPED, matching spec §4.3's initial-state rule.
func NewTable(n int, bootHart int, queueCapacity int) *Table {
	t := &Table{contexts: make([]*Context, n)}

	for i := 0; i < n; i++ {
		c := New(uint32(i), i == bootHart)
		c.RFence().SetCapacity(queueCapacity)
		t.contexts[i] = c
	}

	return t
}

// Len returns the number of harts the table was built for.
func (t *Table) Len() int { return len(t.contexts) }

// Context returns the context for hart id, or an error if id is out of
// range. Encapsulates the one place in the firmware that indexes the
// table by an externally-supplied id (e.g. an SBI hart_start argument).
func (t *Table) Context(id uint32) (*Context, error) {
	if int(id) >= len(t.contexts) {
		return nil, fmt.Errorf("hart: id %d out of range (max %d)", id, len(t.contexts)-1)
	}

	return t.contexts[id], nil
}

// All returns every hart context, in id order, for diagnostics and the
// boot orchestrator's per-hart setup loop.
func (t *Table) All() []*Context { return t.contexts }
