package datapath

import (
	"github.com/netrack/ofswitch/ofp"
)

// PortSink abstracts the per-port transmit side DataPath dispatches
// output actions to. iface implements it over a live pcap handle;
// tests substitute an in-memory fake.
type PortSink interface {
	// WriteTo transmits frame out the port numbered portNo. An
	// unknown or down port is reported back to the caller as an
	// error, never as a panic.
	WriteTo(portNo ofp.PortNo, frame []byte) error

	// Ports lists every port number currently known to the sink, used
	// to resolve ALL/FLOOD/NORMAL.
	Ports() []ofp.PortNo
}

// ControllerSink abstracts handing a frame up to ControlPath for
// relay to the controller, decoupling the pipeline from the message
// bus's concrete type.
type ControllerSink interface {
	PacketIn(inPort ofp.PortNo, table ofp.Table, reason ofp.PacketInReason, cookie uint64, mf MatchFields, frame []byte)
}

// Pipeline runs incoming frames through a fixed sequence of
// FlowTables, executing the winning entry's instructions, following
// the pipeline algorithm: lookup in the current table, apply actions
// immediately for APPLY_ACTIONS, merge actions into the action set
// for WRITE_ACTIONS, clear it for CLEAR_ACTIONS, and continue to the
// next table on GOTO_TABLE or stop and execute the accumulated action
// set otherwise.
type Pipeline struct {
	tables     []*FlowTable
	sink       PortSink
	controller ControllerSink
}

// NewPipeline allocates a pipeline of numTables fixed tables, each
// bounded to capacity non-table-miss entries.
func NewPipeline(numTables, capacity int, sink PortSink, controller ControllerSink) *Pipeline {
	tables := make([]*FlowTable, numTables)
	for i := range tables {
		tables[i] = NewFlowTable(ofp.Table(i), capacity)
	}

	return &Pipeline{tables: tables, sink: sink, controller: controller}
}

// Table returns the table numbered n, or nil if n is out of range.
func (p *Pipeline) Table(n ofp.Table) *FlowTable {
	if int(n) >= len(p.tables) {
		return nil
	}
	return p.tables[n]
}

// TableStats reports per-table entry counts and lookup/match
// counters, in table order, the shape of a MULTIPART[TABLE] reply
// body.
func (p *Pipeline) TableStats() []ofp.TableStats {
	stats := make([]ofp.TableStats, len(p.tables))
	for i, ft := range p.tables {
		active, lookups, matches := ft.Stats()
		stats[i] = ofp.TableStats{
			Table:        ofp.Table(i),
			ActiveCount:  active,
			LookupCount:  lookups,
			MatchedCount: matches,
		}
	}
	return stats
}

// Process runs frame, received on inPort, through the pipeline
// starting at table 0.
func (p *Pipeline) Process(inPort ofp.PortNo, frame []byte) {
	mf := ExtractMatchFields(frame, uint32(inPort))

	var actionSet ofp.Actions
	var matched *FlowEntry
	matchedTable := ofp.Table(0)
	table := ofp.Table(0)

	for {
		ft := p.Table(table)
		if ft == nil {
			break
		}

		entry := ft.Lookup(mf)
		if entry == nil {
			return
		}

		entry.PacketCount++
		entry.ByteCount += uint64(len(frame))

		if entry.IsTableMiss() {
			p.packetIn(inPort, table, ofp.PacketInReasonNoMatch, entry, frame)
			return
		}

		matched, matchedTable = entry, table

		next := p.runInstructions(entry, table, &actionSet, inPort, frame)
		if next == nil {
			break
		}

		table = *next
	}

	p.executeActionSet(actionSet, inPort, frame, matched, matchedTable)
}

// packetIn hands frame up to the controller sink. The match reported
// alongside it carries the input port plus the non-wildcard fields of
// the entry that sent the packet here, not the full set of headers
// the packet happens to have.
func (p *Pipeline) packetIn(inPort ofp.PortNo, table ofp.Table, reason ofp.PacketInReason, entry *FlowEntry, frame []byte) {
	var mf MatchFields
	var cookie uint64

	if entry != nil {
		mf = entry.Match
		cookie = entry.Cookie
	}
	mf.InPort = uint32(inPort)

	p.controller.PacketIn(inPort, table, reason, cookie, mf, frame)
}

// runInstructions applies a matched entry's instruction set in order
// and returns the next table to visit on GOTO_TABLE, nil when there
// is none.
func (p *Pipeline) runInstructions(e *FlowEntry, table ofp.Table, actionSet *ofp.Actions, inPort ofp.PortNo, frame []byte) (next *ofp.Table) {
	for _, inst := range e.Instructions {
		switch v := inst.(type) {
		case *ofp.InstructionApplyActions:
			p.executeActionSet(v.Actions, inPort, frame, e, table)
		case *ofp.InstructionWriteActions:
			*actionSet = mergeActions(*actionSet, v.Actions)
		case *ofp.InstructionClearActions:
			*actionSet = nil
		case *ofp.InstructionGotoTable:
			t := v.Table
			next = &t
		}
	}

	return next
}

// mergeActions merges incoming into set, following write-actions
// semantics: an action replaces any existing action of the same type
// in the set rather than appending a duplicate.
func mergeActions(set, incoming ofp.Actions) ofp.Actions {
	for _, act := range incoming {
		replaced := false
		for i, existing := range set {
			if existing.Type() == act.Type() {
				set[i] = act
				replaced = true
				break
			}
		}
		if !replaced {
			set = append(set, act)
		}
	}

	return set
}

// executeActionSet applies actions to frame, received on inPort, in
// list order, following the output-port dispatch rules for the
// reserved ports. src is the matched entry the actions came from,
// reported in packet-ins triggered by an output to CONTROLLER.
func (p *Pipeline) executeActionSet(actions ofp.Actions, inPort ofp.PortNo, frame []byte, src *FlowEntry, table ofp.Table) {
	for _, act := range actions {
		out, ok := act.(*ofp.ActionOutput)
		if !ok {
			continue
		}
		p.output(out.Port, inPort, frame, src, table)
	}
}

// output dispatches frame to the given output port, resolving the
// reserved ports (CONTROLLER, ALL, FLOOD, NORMAL, IN_PORT, LOCAL) to
// concrete behavior and otherwise sending to a single physical port.
func (p *Pipeline) output(port, inPort ofp.PortNo, frame []byte, src *FlowEntry, table ofp.Table) {
	switch port {
	case ofp.PortController:
		p.packetIn(inPort, table, ofp.PacketInReasonAction, src, frame)
	case ofp.PortIn:
		p.sendTo(inPort, frame)
	case ofp.PortAll:
		for _, pn := range p.sink.Ports() {
			if pn != inPort {
				p.sendTo(pn, frame)
			}
		}
	case ofp.PortFlood, ofp.PortNormal:
		// NORMAL L2/L3 switching is not implemented; treat it as
		// FLOOD, forwarding to every port but the input.
		for _, pn := range p.sink.Ports() {
			if pn != inPort {
				p.sendTo(pn, frame)
			}
		}
	case ofp.PortLocal, ofp.PortTable, ofp.PortAny:
		// No local management port and no second table lookup from
		// an action; both are accepted but no-ops.
	default:
		p.sendTo(port, frame)
	}
}

func (p *Pipeline) sendTo(port ofp.PortNo, frame []byte) {
	p.sink.WriteTo(port, frame)
}

// ProcessPacketOut applies actions to data exactly as a matched flow
// entry's action set would be applied, except that CONTROLLER,
// NORMAL, LOCAL, FLOOD and IN_PORT are meaningless without an input
// port looked up from a table and are skipped; only explicit physical
// ports and ALL are honored.
func (p *Pipeline) ProcessPacketOut(inPort ofp.PortNo, actions ofp.Actions, data []byte) {
	for _, act := range actions {
		out, ok := act.(*ofp.ActionOutput)
		if !ok {
			continue
		}

		switch out.Port {
		case ofp.PortController, ofp.PortNormal, ofp.PortLocal, ofp.PortFlood, ofp.PortIn:
			continue
		case ofp.PortAll:
			for _, pn := range p.sink.Ports() {
				if pn != inPort {
					p.sendTo(pn, data)
				}
			}
		case ofp.PortTable, ofp.PortAny:
			// Resubmitting a packet-out to the pipeline is not
			// implemented.
		default:
			p.sendTo(out.Port, data)
		}
	}
}
