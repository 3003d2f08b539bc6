// Package datapath implements the switch's packet-forwarding actor:
// the fixed pipeline of flow tables, the header-extraction and
// action-execution logic that drives it, and the event loop that
// feeds it frames read from the wire and flow-table mutations handed
// down from ControlPath.
package datapath

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/netrack/ofswitch/msgbus"
	"github.com/netrack/ofswitch/ofp"
)

// Frame is a single frame received on a physical port, the shape the
// per-port RX goroutines feed into DataPath's inbox.
type Frame struct {
	InPort ofp.PortNo
	Data   []byte
}

// controllerBus adapts a *msgbus.Bus to the ControllerSink interface
// the pipeline uses to hand packets to ControlPath.
type controllerBus struct {
	bus *msgbus.Bus
}

func (c controllerBus) PacketIn(inPort ofp.PortNo, table ofp.Table, reason ofp.PacketInReason, cookie uint64, mf MatchFields, frame []byte) {
	data := make([]byte, len(frame))
	copy(data, frame)

	err := c.bus.PushToControlPath(&msgbus.Msg{
		Kind:   msgbus.PacketIn,
		Packet: data,
		InPort: inPort,
		Table:  table,
		Reason: reason,
		Cookie: cookie,
		Match:  BuildMatch(mf),
	})
	if err != nil {
		log.WithError(err).Warn("datapath: dropped packet-in, control path queue is full")
	}
}

// DataPath is the packet-forwarding actor. It owns the pipeline and
// runs the event loop that drives it.
type DataPath struct {
	Pipeline *Pipeline
	Bus      *msgbus.Bus

	// Frames is the inbox fed by the per-port RX goroutines.
	Frames chan Frame
}

// New creates a DataPath with a pipeline of numTables tables, each
// bounded to capacity entries, writing output frames to sink and
// packet-ins to bus.
func New(numTables, capacity int, sink PortSink, bus *msgbus.Bus) *DataPath {
	dp := &DataPath{
		Bus:    bus,
		Frames: make(chan Frame, 256),
	}
	dp.Pipeline = NewPipeline(numTables, capacity, sink, controllerBus{bus})
	return dp
}

// TableStats reports per-table statistics for the pipeline, backing
// MULTIPART[TABLE] replies. The counters are read under each table's
// lock, so calling it from the control path is safe.
func (dp *DataPath) TableStats() []ofp.TableStats {
	return dp.Pipeline.TableStats()
}

// Run drives the event loop until ctx is cancelled, processing
// received frames through the pipeline and applying flow table
// mutations and packet-outs handed down from ControlPath, in the
// order each arrived.
func (dp *DataPath) Run(ctx context.Context) {
	inbox := dp.Bus.DataPathInbox()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-dp.Frames:
			dp.Pipeline.Process(f.InPort, f.Data)
		case m := <-inbox:
			dp.handle(m)
		}
	}
}

func (dp *DataPath) handle(m *msgbus.Msg) {
	switch m.Kind {
	case msgbus.FlowModAdd:
		entry, ok := m.Entry.(*FlowEntry)
		if !ok {
			log.Warn("datapath: FlowModAdd message carried unexpected entry type")
			return
		}
		ft := dp.Pipeline.Table(entry.Table)
		if ft == nil {
			log.WithField("table", entry.Table).Warn("datapath: flow mod for unknown table")
			return
		}
		if !ft.Insert(entry) {
			log.WithField("table", entry.Table).Warn("datapath: flow table at capacity, insert dropped")
		}
	case msgbus.FlowModDel:
		fm, ok := m.Entry.(*ofp.FlowMod)
		if !ok {
			log.Warn("datapath: FlowModDel message carried unexpected entry type")
			return
		}
		if fm.Table == ofp.TableAll {
			for _, ft := range dp.Pipeline.tables {
				ft.Delete(fm)
			}
			return
		}
		if ft := dp.Pipeline.Table(fm.Table); ft != nil {
			ft.Delete(fm)
		}
	case msgbus.PacketOut:
		dp.Pipeline.ProcessPacketOut(m.InPort, m.Actions, m.Packet)
	}
}
