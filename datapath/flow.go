package datapath

import (
	"sync"

	"github.com/netrack/ofswitch/ofp"
)

// FlowEntry is the datapath's own normalized representation of a flow
// table entry, built by ControlPath out of a FLOW_MOD and handed to
// DataPath across the message bus.
type FlowEntry struct {
	Table    ofp.Table
	Priority uint16
	Match    MatchFields

	Cookie      uint64
	IdleTimeout uint16
	HardTimeout uint16

	// Instructions is the parsed instruction set applied on a hit, in
	// the order the pipeline must run them.
	Instructions ofp.Instructions

	// GotoTable is the next table in the pipeline when Instructions
	// contains a GOTO_TABLE instruction, or 0 when absent.
	GotoTable ofp.Table

	// OutPort/OutGroup restrict which entries a FLOW_MOD(DELETE)
	// matches; they are meaningless on an inserted entry.
	OutPort  ofp.PortNo
	OutGroup ofp.Group

	// PacketCount and ByteCount are cumulative hit counters reported
	// in flow statistics.
	PacketCount uint64
	ByteCount   uint64
}

// IsTableMiss reports whether e is the reserved, always-wildcard,
// lowest-priority entry a table falls back to.
func (e *FlowEntry) IsTableMiss() bool {
	return e.Priority == 0 && e.Match.IsWildcard()
}

// newTableMissEntry builds the reserved catch-all entry every table is
// born with: priority zero, fully wildcarded match, a single
// APPLY_ACTIONS instruction sending the packet to the controller, and
// the all-ones cookie reported in the resulting packet-in messages.
func newTableMissEntry(table ofp.Table) *FlowEntry {
	return &FlowEntry{
		Table:  table,
		Cookie: 0xffffffffffffffff,
		Instructions: ofp.Instructions{
			&ofp.InstructionApplyActions{
				Actions: ofp.Actions{&ofp.ActionOutput{
					Port:   ofp.PortController,
					MaxLen: ofp.ContentLenNoBuffer,
				}},
			},
		},
	}
}

// NewFlowEntryFromFlowMod builds a FlowEntry out of the wire fields of
// a FLOW_MOD(ADD), normalizing its OXM match and extracting the
// GOTO_TABLE target, if any, from its instruction set.
func NewFlowEntryFromFlowMod(fm *ofp.FlowMod) *FlowEntry {
	e := &FlowEntry{
		Table:        fm.Table,
		Priority:     fm.Priority,
		Match:        NormalizeMatch(fm.Match),
		Cookie:       fm.Cookie,
		IdleTimeout:  fm.IdleTimeout,
		HardTimeout:  fm.HardTimeout,
		Instructions: fm.Instructions,
		OutPort:      fm.OutPort,
		OutGroup:     fm.OutGroup,
	}

	for _, inst := range fm.Instructions {
		if goto_, ok := inst.(*ofp.InstructionGotoTable); ok {
			e.GotoTable = goto_.Table
		}
	}

	return e
}

// matchesDeleteTemplate reports whether e is a candidate for removal
// by the FLOW_MOD(DELETE) fm. The table must be equal, or fm names
// TableAll; an OutPort other than PortAny must appear in an output
// action of e; the cookie must be equal under CookieMask. In strict
// mode the normalized match and the priority must be equal; otherwise
// every non-wildcard field of fm's match must hold in e's match, and
// an empty match selects every entry. OutGroup, flags, timeouts and
// the buffer id are not compared.
func (e *FlowEntry) matchesDeleteTemplate(fm *ofp.FlowMod, strict bool) bool {
	if fm.Table != ofp.TableAll && e.Table != fm.Table {
		return false
	}
	if fm.OutPort != ofp.PortAny && !entryOutputsTo(e, fm.OutPort) {
		return false
	}
	if fm.CookieMask != 0 && (e.Cookie&fm.CookieMask) != (fm.Cookie&fm.CookieMask) {
		return false
	}

	want := NormalizeMatch(fm.Match)
	if strict {
		return want == e.Match && e.Priority == fm.Priority
	}

	return want.Matches(e.Match) || want == MatchFields{}
}

// entryOutputsTo reports whether e's instruction set contains an
// output action targeting port.
func entryOutputsTo(e *FlowEntry, port ofp.PortNo) bool {
	for _, inst := range e.Instructions {
		var acts ofp.Actions
		switch in := inst.(type) {
		case *ofp.InstructionApplyActions:
			acts = in.Actions
		case *ofp.InstructionWriteActions:
			acts = in.Actions
		default:
			continue
		}
		for _, act := range acts {
			if out, ok := act.(*ofp.ActionOutput); ok && out.Port == port {
				return true
			}
		}
	}

	return false
}

// FlowTable is a single table in the pipeline: a priority-ordered
// slice of entries plus a single reserved table-miss entry kept
// structurally apart from it, so it is always tried last regardless
// of how entries around priority zero are inserted or removed.
type FlowTable struct {
	mu sync.RWMutex

	// capacity bounds the number of non-table-miss entries; inserts
	// past it are silently rejected, per the pipeline's flow mod
	// handling.
	capacity int

	entries   []*FlowEntry
	tableMiss *FlowEntry

	// lookups counts pipeline visits to this table; matches counts
	// visits that produced a best match. Both are reported in table
	// statistics replies.
	lookups uint64
	matches uint64
}

// NewFlowTable allocates a table with the given entry capacity, not
// counting the table-miss entry, which is created together with the
// table itself.
func NewFlowTable(table ofp.Table, capacity int) *FlowTable {
	return &FlowTable{
		capacity:  capacity,
		tableMiss: newTableMissEntry(table),
	}
}

// Insert adds or replaces e in the table, maintaining descending
// priority order with later insertions winning ties (LIFO among equal
// priorities, so a newly inserted entry is tried before older entries
// of the same priority).
//
// A table-miss entry (priority zero, fully wildcarded match) is
// stored separately from the ordinary entries and always matched
// last; inserting one replaces any existing table-miss entry instead
// of competing for a slot bounded by capacity.
//
// Insert reports false, without modifying the table, when the table
// is already at capacity and e is not a replacement for an existing
// entry.
func (t *FlowTable) Insert(e *FlowEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.IsTableMiss() {
		t.tableMiss = e
		return true
	}

	for i, existing := range t.entries {
		if existing.Match == e.Match && existing.Priority == e.Priority {
			t.entries[i] = e
			return true
		}
	}

	if len(t.entries) >= t.capacity {
		return false
	}

	// Skip past strictly higher priorities only, so the new entry
	// lands ahead of existing entries of its own priority.
	pos := 0
	for pos < len(t.entries) && t.entries[pos].Priority > e.Priority {
		pos++
	}

	t.entries = append(t.entries, nil)
	copy(t.entries[pos+1:], t.entries[pos:])
	t.entries[pos] = e

	return true
}

// Delete removes every entry matching fm's deletion key (per the
// FLOW_MOD(DELETE) or FLOW_MOD(DELETE_STRICT) command it carries) and
// returns the removed entries, e.g. to generate flow-removed
// notifications.
func (t *FlowTable) Delete(fm *ofp.FlowMod) []*FlowEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	strict := fm.Command == ofp.FlowDeleteStrict

	var removed []*FlowEntry
	kept := t.entries[:0:0]

	for _, e := range t.entries {
		if e.matchesDeleteTemplate(fm, strict) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}

	t.entries = kept
	return removed
}

// Lookup returns the highest-priority entry whose match is satisfied
// by pkt, falling back to the table-miss entry when no ordinary entry
// matches and nil when there is no table-miss entry either.
func (t *FlowTable) Lookup(pkt MatchFields) *FlowEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lookups++

	for _, e := range t.entries {
		if e.Match.Matches(pkt) {
			t.matches++
			return e
		}
	}

	if t.tableMiss != nil {
		t.matches++
	}
	return t.tableMiss
}

// Stats returns the number of installed entries, including the
// table-miss entry, and the cumulative lookup and match counters.
func (t *FlowTable) Stats() (active uint32, lookups, matches uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	active = uint32(len(t.entries))
	if t.tableMiss != nil {
		active++
	}
	return active, t.lookups, t.matches
}

// Entries returns a snapshot of the ordinary entries in priority
// order, excluding the table-miss entry, for statistics requests.
func (t *FlowTable) Entries() []*FlowEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*FlowEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// AllEntries returns every entry in lookup order, including the
// table-miss entry at the tail when present.
func (t *FlowTable) AllEntries() []*FlowEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*FlowEntry, len(t.entries), len(t.entries)+1)
	copy(out, t.entries)
	if t.tableMiss != nil {
		out = append(out, t.tableMiss)
	}
	return out
}
