/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package asm

import (
	"fmt"

	"github.com/oleiade/lane"
)

// patchSite records one PushBacktrack(Label*) emission: the label it
// targets and the order it was emitted in. The actual relocation of the
// pushed value is delegated to the underlying assembler's own label
// references (a RIP-relative LEA — see macroops/backtrack.go); this
// ledger exists to answer one question at the end of code generation —
// was every pushed label eventually bound? — not to perform the
// relocation itself.
type patchSite struct {
	label    *Label
	resolved bool
	order    int
}

// LabelPatcher is the ledger of pending backtrack-label patches: each
// patch site records the *Label it targets and its emission order, and
// the ledger is indexed by label so binding one resolves all its sites.
//
// Grounded on cloudwego-frugal's internal/atm/pgen_amd64.go _SwitchTab (a label whose
// final address is deferred until Program.Assemble resolves it) and on
// internal/binary/decoder/linker_amd64.go, which walks a basic-block
// graph with an oleiade/lane queue; LabelPatcher reuses the same queue
// type to confirm every patched label is reachable from the routine's
// entry point before declaring the ledger clean.
type LabelPatcher struct {
	sites   []*patchSite
	byLabel map[*Label][]*patchSite
	edges   map[*Label][]*Label
}

// NewLabelPatcher returns an empty ledger.
func NewLabelPatcher() *LabelPatcher {
	return &LabelPatcher{
		byLabel: make(map[*Label][]*patchSite),
		edges:   make(map[*Label][]*Label),
	}
}

// Record adds a patch site for a PushBacktrack(Label*) emission.
func (lp *LabelPatcher) Record(l *Label) {
	s := &patchSite{label: l, order: len(lp.sites)}
	lp.sites = append(lp.sites, s)
	lp.byLabel[l] = append(lp.byLabel[l], s)
}

// AddEdge records a control-flow edge from one label's body to another,
// used only by Verify's reachability walk.
func (lp *LabelPatcher) AddEdge(from, to *Label) {
	lp.edges[from] = append(lp.edges[from], to)
}

// resolve marks every outstanding patch referencing l as bound. Called
// by Program.BindBacktrack.
func (lp *LabelPatcher) resolve(l *Label) {
	for _, s := range lp.byLabel[l] {
		s.resolved = true
	}
}

// Verify checks the closing invariant: any PushBacktrack targeting a
// never-bound label is a compiler bug. It returns an error naming the
// first dangling site rather than panicking, since a dangling patch is
// a programming error in the caller's macro-op sequence, discoverable
// before any executable memory is touched.
func (lp *LabelPatcher) Verify() error {
	for _, s := range lp.sites {
		if !s.resolved && !s.label.bound {
			return fmt.Errorf("asm: PushBacktrack(%s) never bound", s.label)
		}
	}
	return nil
}

// Reachable walks the recorded control-flow edges breadth-first from
// entry and reports whether every patched label was actually reached —
// a stronger check than Verify's "was Bind ever called", used by
// internal/verify to flag labels that are bound but structurally dead.
func (lp *LabelPatcher) Reachable(entry *Label) map[*Label]bool {
	seen := map[*Label]bool{entry: true}
	q := lane.NewQueue()
	q.Enqueue(entry)

	for !q.Empty() {
		cur := q.Dequeue().(*Label)
		for _, next := range lp.edges[cur] {
			if !seen[next] {
				seen[next] = true
				q.Enqueue(next)
			}
		}
	}

	return seen
}
