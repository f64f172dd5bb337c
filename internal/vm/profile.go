package vm

import (
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/olekukonko/tablewriter"

	"github.com/pscalvm/pscalvm/internal/bytecode"
)

// OpcodeProfile accumulates per-opcode execution counts across a VM's
// lifetime (§4.8's opcode-profile dump), guarded by a mutex since sibling
// VMs spawned by THREAD_CREATE share the same *OpcodeProfile pointer.
type OpcodeProfile struct {
	mu     sync.Mutex
	counts map[bytecode.Op]int64
}

func newOpcodeProfile() *OpcodeProfile {
	return &OpcodeProfile{counts: make(map[bytecode.Op]int64)}
}

func (p *OpcodeProfile) record(op bytecode.Op) {
	p.mu.Lock()
	p.counts[op]++
	p.mu.Unlock()
}

// Snapshot returns a stable-ordered copy of the accumulated counts,
// highest count first.
func (p *OpcodeProfile) Snapshot() []OpcodeCount {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OpcodeCount, 0, len(p.counts))
	for op, n := range p.counts {
		out = append(out, OpcodeCount{Op: op, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Op < out[j].Op
	})
	return out
}

// OpcodeCount is one row of a profile snapshot.
type OpcodeCount struct {
	Op    bytecode.Op
	Count int64
}

// Dump renders the profile as a column-aligned ASCII table via
// olekukonko/tablewriter.
func (p *OpcodeProfile) Dump(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Opcode", "Count"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, row := range p.Snapshot() {
		table.Append([]string{row.Op.String(), strconv.FormatInt(row.Count, 10)})
	}
	table.Render()
}
