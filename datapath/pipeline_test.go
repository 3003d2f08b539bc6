package datapath

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/netrack/ofswitch/ofp"
)

type fakeSink struct {
	sent  map[ofp.PortNo][][]byte
	ports []ofp.PortNo
}

func newFakeSink(ports ...ofp.PortNo) *fakeSink {
	return &fakeSink{sent: make(map[ofp.PortNo][][]byte), ports: ports}
}

func (s *fakeSink) WriteTo(port ofp.PortNo, frame []byte) error {
	s.sent[port] = append(s.sent[port], frame)
	return nil
}

func (s *fakeSink) Ports() []ofp.PortNo { return s.ports }

type fakeController struct {
	calls int
	mf    MatchFields
}

func (c *fakeController) PacketIn(inPort ofp.PortNo, table ofp.Table, reason ofp.PacketInReason, cookie uint64, mf MatchFields, frame []byte) {
	c.calls++
	c.mf = mf
}

func buildEthernetFrame(t *testing.T, dst, src net.HardwareAddr, ethType layers.EthernetType) []byte {
	t.Helper()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{}

	eth := &layers.Ethernet{DstMAC: dst, SrcMAC: src, EthernetType: ethType}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload([]byte("hello"))); err != nil {
		t.Fatalf("serialize frame: %v", err)
	}

	return buf.Bytes()
}

func TestPipelineTableMissSendsPacketIn(t *testing.T) {
	sink := newFakeSink(1, 2)
	ctl := &fakeController{}
	p := NewPipeline(1, 8, sink, ctl)

	p.Table(0).Insert(tableMissEntry())

	frame := buildEthernetFrame(t,
		net.HardwareAddr{0, 0, 0, 0, 0, 2},
		net.HardwareAddr{0, 0, 0, 0, 0, 1},
		layers.EthernetTypeIPv4)

	p.Process(1, frame)

	if ctl.calls != 1 {
		t.Fatalf("PacketIn called %d times, want 1", ctl.calls)
	}
	if ctl.mf.InPort != 1 {
		t.Fatalf("mf.InPort = %d, want 1", ctl.mf.InPort)
	}
}

func TestPipelineAppliesOutputAction(t *testing.T) {
	sink := newFakeSink(1, 2)
	ctl := &fakeController{}
	p := NewPipeline(1, 8, sink, ctl)

	p.Table(0).Insert(&FlowEntry{
		Priority: 10,
		Match:    MatchFields{EthType: uint16(layers.EthernetTypeIPv4)},
		Instructions: ofp.Instructions{
			&ofp.InstructionApplyActions{
				Actions: ofp.Actions{&ofp.ActionOutput{Port: 2}},
			},
		},
	})

	frame := buildEthernetFrame(t,
		net.HardwareAddr{0, 0, 0, 0, 0, 2},
		net.HardwareAddr{0, 0, 0, 0, 0, 1},
		layers.EthernetTypeIPv4)

	p.Process(1, frame)

	if len(sink.sent[2]) != 1 {
		t.Fatalf("sent to port 2 = %d frames, want 1", len(sink.sent[2]))
	}
	if ctl.calls != 0 {
		t.Fatalf("PacketIn called %d times, want 0", ctl.calls)
	}
}

func TestPipelineFloodSkipsInputPort(t *testing.T) {
	sink := newFakeSink(1, 2, 3)
	ctl := &fakeController{}
	p := NewPipeline(1, 8, sink, ctl)

	p.Table(0).Insert(&FlowEntry{
		Priority: 10,
		Match:    MatchFields{EthType: uint16(layers.EthernetTypeIPv4)},
		Instructions: ofp.Instructions{
			&ofp.InstructionApplyActions{
				Actions: ofp.Actions{&ofp.ActionOutput{Port: ofp.PortFlood}},
			},
		},
	})

	frame := buildEthernetFrame(t,
		net.HardwareAddr{0, 0, 0, 0, 0, 2},
		net.HardwareAddr{0, 0, 0, 0, 0, 1},
		layers.EthernetTypeIPv4)

	p.Process(1, frame)

	if len(sink.sent[1]) != 0 {
		t.Fatal("flood must not send back out the input port")
	}
	if len(sink.sent[2]) != 1 || len(sink.sent[3]) != 1 {
		t.Fatalf("flood did not reach every other port: %+v", sink.sent)
	}
}

func TestPipelineGotoTableChain(t *testing.T) {
	sink := newFakeSink(1, 2)
	ctl := &fakeController{}
	p := NewPipeline(2, 8, sink, ctl)

	p.Table(0).Insert(&FlowEntry{
		Priority: 10,
		Match:    MatchFields{EthType: uint16(layers.EthernetTypeIPv4)},
		Instructions: ofp.Instructions{
			&ofp.InstructionGotoTable{Table: 1},
		},
	})
	p.Table(1).Insert(&FlowEntry{
		Priority: 10,
		Match:    MatchFields{EthType: uint16(layers.EthernetTypeIPv4)},
		Instructions: ofp.Instructions{
			&ofp.InstructionApplyActions{
				Actions: ofp.Actions{&ofp.ActionOutput{Port: 2}},
			},
		},
	})

	frame := buildEthernetFrame(t,
		net.HardwareAddr{0, 0, 0, 0, 0, 2},
		net.HardwareAddr{0, 0, 0, 0, 0, 1},
		layers.EthernetTypeIPv4)

	p.Process(1, frame)

	if len(sink.sent[2]) != 1 {
		t.Fatalf("goto-table chain did not reach table 1's output action: %+v", sink.sent)
	}
}

func TestProcessPacketOutSkipsReservedPorts(t *testing.T) {
	sink := newFakeSink(1, 2)
	ctl := &fakeController{}
	p := NewPipeline(1, 8, sink, ctl)

	actions := ofp.Actions{
		&ofp.ActionOutput{Port: ofp.PortController},
		&ofp.ActionOutput{Port: 2},
	}

	p.ProcessPacketOut(ofp.PortController, actions, []byte("payload"))

	if ctl.calls != 0 {
		t.Fatalf("PacketIn called %d times for packet-out, want 0", ctl.calls)
	}
	if len(sink.sent[2]) != 1 {
		t.Fatalf("sent to port 2 = %d frames, want 1", len(sink.sent[2]))
	}
}

func TestPipelinePacketInCarriesEntryMatchFields(t *testing.T) {
	sink := newFakeSink(1, 2)
	ctl := &fakeController{}
	p := NewPipeline(1, 8, sink, ctl)

	dst := net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}
	entryMatch := MatchFields{}
	copy(entryMatch.EthDst[:], dst)

	p.Table(0).Insert(&FlowEntry{
		Priority: 100,
		Match:    entryMatch,
		Cookie:   7,
		Instructions: ofp.Instructions{
			&ofp.InstructionApplyActions{
				Actions: ofp.Actions{&ofp.ActionOutput{Port: ofp.PortController}},
			},
		},
	})

	frame := buildEthernetFrame(t, dst,
		net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		layers.EthernetTypeIPv4)

	p.Process(1, frame)

	if ctl.calls != 1 {
		t.Fatalf("PacketIn called %d times, want 1", ctl.calls)
	}

	// The reported match is the entry's, with the input port filled
	// in: the frame's source MAC and ethertype must not leak into it.
	want := entryMatch
	want.InPort = 1
	if ctl.mf != want {
		t.Fatalf("packet-in match = %+v, want %+v", ctl.mf, want)
	}
}

func TestPipelineTableStats(t *testing.T) {
	sink := newFakeSink(1, 2)
	ctl := &fakeController{}
	p := NewPipeline(2, 8, sink, ctl)

	frame := buildEthernetFrame(t,
		net.HardwareAddr{0, 0, 0, 0, 0, 2},
		net.HardwareAddr{0, 0, 0, 0, 0, 1},
		layers.EthernetTypeIPv4)

	p.Process(1, frame)

	stats := p.TableStats()
	if len(stats) != 2 {
		t.Fatalf("len(TableStats()) = %d, want 2", len(stats))
	}
	if stats[0].Table != 0 || stats[0].LookupCount != 1 || stats[0].MatchedCount != 1 {
		t.Fatalf("table 0 stats = %+v, want one lookup, one match", stats[0])
	}
	if stats[1].LookupCount != 0 {
		t.Fatalf("table 1 stats = %+v, want untouched", stats[1])
	}
	if stats[0].ActiveCount != 1 {
		t.Fatalf("table 0 active = %d, want 1 (table-miss only)", stats[0].ActiveCount)
	}
}

func TestProcessPacketOutAllReachesEveryPort(t *testing.T) {
	sink := newFakeSink(1, 2, 3)
	ctl := &fakeController{}
	p := NewPipeline(1, 8, sink, ctl)

	actions := ofp.Actions{&ofp.ActionOutput{Port: ofp.PortAll}}
	p.ProcessPacketOut(ofp.PortController, actions, []byte("payload"))

	for _, pn := range []ofp.PortNo{1, 2, 3} {
		if len(sink.sent[pn]) != 1 {
			t.Fatalf("ALL packet-out did not reach port %d: %+v", pn, sink.sent)
		}
	}
}

func TestPipelineWriteActionsExecuteAtExit(t *testing.T) {
	sink := newFakeSink(1, 2)
	ctl := &fakeController{}
	p := NewPipeline(2, 8, sink, ctl)

	p.Table(0).Insert(&FlowEntry{
		Priority: 10,
		Match:    MatchFields{EthType: uint16(layers.EthernetTypeIPv4)},
		Instructions: ofp.Instructions{
			&ofp.InstructionWriteActions{
				Actions: ofp.Actions{&ofp.ActionOutput{Port: 2}},
			},
			&ofp.InstructionGotoTable{Table: 1},
		},
	})
	p.Table(1).Insert(&FlowEntry{
		Priority: 10,
		Match:    MatchFields{EthType: uint16(layers.EthernetTypeIPv4)},
	})

	frame := buildEthernetFrame(t,
		net.HardwareAddr{0, 0, 0, 0, 0, 2},
		net.HardwareAddr{0, 0, 0, 0, 0, 1},
		layers.EthernetTypeIPv4)

	p.Process(1, frame)

	if len(sink.sent[2]) != 1 {
		t.Fatalf("written action set was not executed at pipeline exit: %+v", sink.sent)
	}
	if ctl.calls != 0 {
		t.Fatalf("PacketIn called %d times, want 0", ctl.calls)
	}
}

func TestPipelineClearActionsDropsWrittenSet(t *testing.T) {
	sink := newFakeSink(1, 2)
	ctl := &fakeController{}
	p := NewPipeline(2, 8, sink, ctl)

	p.Table(0).Insert(&FlowEntry{
		Priority: 10,
		Match:    MatchFields{EthType: uint16(layers.EthernetTypeIPv4)},
		Instructions: ofp.Instructions{
			&ofp.InstructionWriteActions{
				Actions: ofp.Actions{&ofp.ActionOutput{Port: 2}},
			},
			&ofp.InstructionGotoTable{Table: 1},
		},
	})
	p.Table(1).Insert(&FlowEntry{
		Priority: 10,
		Match:    MatchFields{EthType: uint16(layers.EthernetTypeIPv4)},
		Instructions: ofp.Instructions{
			&ofp.InstructionClearActions{},
		},
	})

	frame := buildEthernetFrame(t,
		net.HardwareAddr{0, 0, 0, 0, 0, 2},
		net.HardwareAddr{0, 0, 0, 0, 0, 1},
		layers.EthernetTypeIPv4)

	p.Process(1, frame)

	if len(sink.sent[2]) != 0 {
		t.Fatalf("cleared action set still executed: %+v", sink.sent)
	}
}
