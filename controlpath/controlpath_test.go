package controlpath

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/netrack/ofswitch/datapath"
	"github.com/netrack/ofswitch/msgbus"
	"github.com/netrack/ofswitch/of"
	"github.com/netrack/ofswitch/ofp"
	"github.com/netrack/ofswitch/ofputil"
)

type fakePorts struct {
	ports []ofp.Port
}

func (f fakePorts) PortDescriptions() []ofp.Port { return f.ports }

type fakeTables struct {
	stats []ofp.TableStats
}

func (f fakeTables) TableStats() []ofp.TableStats { return f.stats }

// newTestControlPath starts a ControlPath over one end of an
// in-memory pipe and returns the controller's end of it, plus the
// bus connecting the actor to a (test-observed) data path.
func newTestControlPath(t *testing.T, config Config) (of.Conn, *msgbus.Bus) {
	t.Helper()

	local, remote := net.Pipe()
	bus := msgbus.New(8)
	cp := New(of.NewConn(local), bus, config)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		cp.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		local.Close()
		remote.Close()
		<-done
	})

	ctrl := of.NewConn(remote)
	ctrl.ReadTimeout = 2 * time.Second
	return ctrl, bus
}

func exchange(t *testing.T, ctrl of.Conn, f *of.Frame) *of.Frame {
	t.Helper()

	if err := ctrl.Send(f); err != nil {
		t.Fatalf("send %v: %v", f.Header.Type, err)
	}
	if err := ctrl.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reply, err := ctrl.Receive()
	if err != nil {
		t.Fatalf("receive reply to %v: %v", f.Header.Type, err)
	}
	return reply
}

func send(t *testing.T, ctrl of.Conn, f *of.Frame) {
	t.Helper()

	if err := ctrl.Send(f); err != nil {
		t.Fatalf("send %v: %v", f.Header.Type, err)
	}
	if err := ctrl.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func popFromControlPath(t *testing.T, bus *msgbus.Bus) *msgbus.Msg {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m, ok := bus.PopFromControlPath(ctx)
	if !ok {
		t.Fatal("no message reached the data path queue")
	}
	return m
}

func flowModFrame(t *testing.T, fm *ofp.FlowMod) *of.Frame {
	t.Helper()

	body, err := of.BytesOf(fm)
	if err != nil {
		t.Fatalf("encode flow mod: %v", err)
	}
	return of.NewFrame(of.TypeFlowMod, 1, body)
}

func TestHelloEchoesXID(t *testing.T) {
	ctrl, _ := newTestControlPath(t, Config{NumTables: 2})

	reply := exchange(t, ctrl, of.NewFrame(of.TypeHello, 0x01, nil))

	want := of.Header{Version: of.ProtocolVersion, Type: of.TypeHello, Length: 8, XID: 0x01}
	if reply.Header != want {
		t.Fatalf("hello reply header = %+v, want %+v", reply.Header, want)
	}
	if len(reply.Body) != 0 {
		t.Fatalf("hello reply carries %d body bytes, want none", len(reply.Body))
	}
}

func TestHelloVersionMismatchStillAnswered(t *testing.T) {
	ctrl, _ := newTestControlPath(t, Config{NumTables: 2})

	req := &of.Frame{Header: of.Header{Version: 0x05, Type: of.TypeHello, XID: 9}}
	reply := exchange(t, ctrl, req)

	if reply.Header.Type != of.TypeHello || reply.Header.XID != 9 {
		t.Fatalf("reply header = %+v, want hello with xid 9", reply.Header)
	}
	if reply.Header.Version != of.ProtocolVersion {
		t.Fatalf("reply version = %#x, want %#x", reply.Header.Version, of.ProtocolVersion)
	}
}

func TestVersionMismatchDiscardsNonHello(t *testing.T) {
	ctrl, _ := newTestControlPath(t, Config{NumTables: 2})

	send(t, ctrl, &of.Frame{Header: of.Header{Version: 0x01, Type: of.TypeEchoRequest, XID: 5}})

	// The mismatched echo must be dropped without a reply; the next
	// reply on the stream belongs to the barrier.
	reply := exchange(t, ctrl, of.NewFrame(of.TypeBarrierRequest, 6, nil))
	if reply.Header.Type != of.TypeBarrierReply || reply.Header.XID != 6 {
		t.Fatalf("reply = %+v, want barrier reply with xid 6", reply.Header)
	}
}

func TestEchoRepliesWithSamePayload(t *testing.T) {
	ctrl, _ := newTestControlPath(t, Config{NumTables: 2})

	body, err := of.BytesOf(&ofp.EchoRequest{Data: []byte("ping")})
	if err != nil {
		t.Fatalf("encode echo request: %v", err)
	}

	reply := exchange(t, ctrl, of.NewFrame(of.TypeEchoRequest, 0x10, body))

	if reply.Header.Type != of.TypeEchoReply || reply.Header.XID != 0x10 {
		t.Fatalf("reply header = %+v, want echo reply with xid 0x10", reply.Header)
	}
	if !bytes.Equal(reply.Body, []byte("ping")) {
		t.Fatalf("echo reply body = %q, want %q", reply.Body, "ping")
	}
}

func TestFeaturesReply(t *testing.T) {
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	ctrl, _ := newTestControlPath(t, Config{
		DatapathID: DatapathID(mac),
		NumTables:  2,
		NumBuffers: 256,
	})

	reply := exchange(t, ctrl, of.NewFrame(of.TypeFeaturesRequest, 0x2a, nil))

	if reply.Header.Type != of.TypeFeaturesReply || reply.Header.XID != 0x2a {
		t.Fatalf("reply header = %+v, want features reply with xid 0x2a", reply.Header)
	}

	var features ofp.SwitchFeatures
	if _, err := features.ReadFrom(bytes.NewReader(reply.Body)); err != nil {
		t.Fatalf("parse features reply: %v", err)
	}

	if features.DatapathID != 0x0000001122334455 {
		t.Fatalf("datapath id = %#x, want port MAC in the low 48 bits", features.DatapathID)
	}
	if features.NumTables != 2 {
		t.Fatalf("num tables = %d, want 2", features.NumTables)
	}
	if features.Capabilities != ofp.CapabilityFlowStats|ofp.CapabilityTableStats {
		t.Fatalf("capabilities = %#x, want 0x3", uint32(features.Capabilities))
	}
	if features.AuxiliaryID != 0 {
		t.Fatalf("auxiliary id = %d, want 0", features.AuxiliaryID)
	}
}

func TestFlowModAddEnqueued(t *testing.T) {
	ctrl, bus := newTestControlPath(t, Config{NumTables: 2})

	mac := net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}
	fm := &ofp.FlowMod{
		Command:      ofp.FlowAdd,
		Priority:     100,
		Buffer:       ofp.NoBuffer,
		OutPort:      ofp.PortAny,
		OutGroup:     ofp.GroupAny,
		Match:        ofputil.ExtendedMatch(ofputil.MatchEthDst(mac)),
		Instructions: ofputil.ActionsApply(&ofp.ActionOutput{Port: 2}),
	}

	send(t, ctrl, flowModFrame(t, fm))

	m := popFromControlPath(t, bus)
	if m.Kind != msgbus.FlowModAdd {
		t.Fatalf("message kind = %v, want FlowModAdd", m.Kind)
	}

	entry, ok := m.Entry.(*datapath.FlowEntry)
	if !ok {
		t.Fatalf("message entry = %T, want *datapath.FlowEntry", m.Entry)
	}
	if entry.Priority != 100 {
		t.Fatalf("entry priority = %d, want 100", entry.Priority)
	}

	var wantDst [6]byte
	copy(wantDst[:], mac)
	if entry.Match.EthDst != wantDst {
		t.Fatalf("entry match eth dst = %v, want %v", entry.Match.EthDst, wantDst)
	}
}

func TestFlowModDeleteEnqueued(t *testing.T) {
	ctrl, bus := newTestControlPath(t, Config{NumTables: 2})

	fm := &ofp.FlowMod{
		Command:  ofp.FlowDelete,
		Table:    ofp.TableAll,
		OutPort:  ofp.PortAny,
		OutGroup: ofp.GroupAny,
	}

	send(t, ctrl, flowModFrame(t, fm))

	m := popFromControlPath(t, bus)
	if m.Kind != msgbus.FlowModDel {
		t.Fatalf("message kind = %v, want FlowModDel", m.Kind)
	}
	if _, ok := m.Entry.(*ofp.FlowMod); !ok {
		t.Fatalf("message entry = %T, want *ofp.FlowMod template", m.Entry)
	}
}

func TestFlowModRejected(t *testing.T) {
	tests := []struct {
		name string
		fm   *ofp.FlowMod
	}{
		{
			name: "unsupported command",
			fm: &ofp.FlowMod{
				Command: ofp.FlowModify,
				OutPort: ofp.PortAny,
			},
		},
		{
			name: "goto-table not strictly greater",
			fm: &ofp.FlowMod{
				Command:      ofp.FlowAdd,
				Table:        1,
				OutPort:      ofp.PortAny,
				Instructions: ofp.Instructions{&ofp.InstructionGotoTable{Table: 1}},
			},
		},
		{
			name: "goto-table past the pipeline",
			fm: &ofp.FlowMod{
				Command:      ofp.FlowAdd,
				OutPort:      ofp.PortAny,
				Instructions: ofp.Instructions{&ofp.InstructionGotoTable{Table: 2}},
			},
		},
		{
			name: "non-output action",
			fm: &ofp.FlowMod{
				Command: ofp.FlowAdd,
				OutPort: ofp.PortAny,
				Instructions: ofputil.ActionsApply(
					&ofp.ActionUnsupported{Typ: ofp.ActionTypeGroup, Raw: make([]byte, 4)},
				),
			},
		},
		{
			name: "unsupported instruction",
			fm: &ofp.FlowMod{
				Command: ofp.FlowAdd,
				OutPort: ofp.PortAny,
				Instructions: ofp.Instructions{
					&ofp.InstructionUnsupported{Typ: ofp.InstructionTypeMeter, Raw: make([]byte, 4)},
				},
			},
		},
		{
			name: "add to unknown table",
			fm: &ofp.FlowMod{
				Command: ofp.FlowAdd,
				Table:   2,
				OutPort: ofp.PortAny,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, bus := newTestControlPath(t, Config{NumTables: 2})

			send(t, ctrl, flowModFrame(t, tt.fm))

			// The barrier reply fences the flow mod: once it is back,
			// the rejected flow mod has been fully processed and the
			// data path queue must still be empty.
			reply := exchange(t, ctrl, of.NewFrame(of.TypeBarrierRequest, 3, nil))
			if reply.Header.Type != of.TypeBarrierReply {
				t.Fatalf("reply = %+v, want barrier reply", reply.Header)
			}

			select {
			case m := <-bus.DataPathInbox():
				t.Fatalf("rejected flow mod reached the data path: %+v", m)
			default:
			}
		})
	}
}

func TestBarrierAfterFlowMods(t *testing.T) {
	ctrl, bus := newTestControlPath(t, Config{NumTables: 2})

	for i := 0; i < 3; i++ {
		fm := &ofp.FlowMod{
			Command:      ofp.FlowAdd,
			Priority:     uint16(10 + i),
			OutPort:      ofp.PortAny,
			OutGroup:     ofp.GroupAny,
			Match:        ofputil.ExtendedMatch(ofputil.MatchEthType(0x0800)),
			Instructions: ofputil.ActionsApply(&ofp.ActionOutput{Port: 2}),
		}
		send(t, ctrl, flowModFrame(t, fm))
	}

	reply := exchange(t, ctrl, of.NewFrame(of.TypeBarrierRequest, 0x77, nil))

	if reply.Header.Type != of.TypeBarrierReply || reply.Header.XID != 0x77 {
		t.Fatalf("reply = %+v, want barrier reply with xid 0x77", reply.Header)
	}

	for i := 0; i < 3; i++ {
		if m := popFromControlPath(t, bus); m.Kind != msgbus.FlowModAdd {
			t.Fatalf("message %d kind = %v, want FlowModAdd", i, m.Kind)
		}
	}
}

func TestPacketOutEnqueued(t *testing.T) {
	ctrl, bus := newTestControlPath(t, Config{NumTables: 2})

	po := &ofp.PacketOut{
		Buffer:  ofp.NoBuffer,
		InPort:  ofp.PortController,
		Actions: ofp.Actions{&ofp.ActionOutput{Port: 2}},
	}

	body, err := of.BytesOf(po)
	if err != nil {
		t.Fatalf("encode packet-out: %v", err)
	}
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	body = append(body, payload...)

	send(t, ctrl, of.NewFrame(of.TypePacketOut, 1, body))

	m := popFromControlPath(t, bus)
	if m.Kind != msgbus.PacketOut {
		t.Fatalf("message kind = %v, want PacketOut", m.Kind)
	}
	if m.InPort != ofp.PortController {
		t.Fatalf("message in port = %v, want controller", m.InPort)
	}
	if !bytes.Equal(m.Packet, payload) {
		t.Fatalf("message payload = %x, want %x", m.Packet, payload)
	}
	if len(m.Actions) != 1 {
		t.Fatalf("message carries %d actions, want 1", len(m.Actions))
	}
	if out, ok := m.Actions[0].(*ofp.ActionOutput); !ok || out.Port != 2 {
		t.Fatalf("message action = %+v, want output to port 2", m.Actions[0])
	}
}

func TestMultipartDescription(t *testing.T) {
	ctrl, _ := newTestControlPath(t, Config{NumTables: 2})

	body, err := of.BytesOf(ofp.NewMultipartRequest(ofp.MultipartTypeDescription, nil))
	if err != nil {
		t.Fatalf("encode multipart request: %v", err)
	}

	reply := exchange(t, ctrl, of.NewFrame(of.TypeMultipartRequest, 4, body))

	if reply.Header.Type != of.TypeMultipartReply {
		t.Fatalf("reply = %+v, want multipart reply", reply.Header)
	}

	r := bytes.NewReader(reply.Body)
	var mp ofp.MultipartReply
	if _, err := mp.ReadFrom(r); err != nil {
		t.Fatalf("parse multipart reply: %v", err)
	}
	if mp.Type != ofp.MultipartTypeDescription {
		t.Fatalf("multipart type = %v, want description", mp.Type)
	}

	var desc ofp.Description
	if _, err := desc.ReadFrom(r); err != nil {
		t.Fatalf("parse description: %v", err)
	}

	// The fixed-width description fields decode with their NUL
	// padding kept.
	manufacturer := strings.TrimRight(desc.Manufacturer, "\x00")
	software := strings.TrimRight(desc.Software, "\x00")
	serial := strings.TrimRight(desc.SerialNum, "\x00")

	if manufacturer != ManufacturerDesc {
		t.Fatalf("manufacturer = %q, want %q", manufacturer, ManufacturerDesc)
	}
	if software != SoftwareDesc {
		t.Fatalf("software = %q, want %q", software, SoftwareDesc)
	}
	if serial != SerialNumber {
		t.Fatalf("serial = %q, want %q", serial, SerialNumber)
	}
}

func TestMultipartPortDescription(t *testing.T) {
	ports := []ofp.Port{
		{
			PortNo: 1,
			HWAddr: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			Name:   "eth0",
		},
		{
			PortNo: 2,
			HWAddr: net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
			Name:   "eth1",
			State:  ofp.PortStateLinkDown,
		},
	}

	ctrl, _ := newTestControlPath(t, Config{NumTables: 2, Ports: fakePorts{ports}})

	body, err := of.BytesOf(ofp.NewMultipartRequest(ofp.MultipartTypePortDescription, nil))
	if err != nil {
		t.Fatalf("encode multipart request: %v", err)
	}

	reply := exchange(t, ctrl, of.NewFrame(of.TypeMultipartRequest, 4, body))

	r := bytes.NewReader(reply.Body)
	var mp ofp.MultipartReply
	if _, err := mp.ReadFrom(r); err != nil {
		t.Fatalf("parse multipart reply: %v", err)
	}
	if mp.Type != ofp.MultipartTypePortDescription {
		t.Fatalf("multipart type = %v, want port description", mp.Type)
	}

	var got ofp.Ports
	if _, err := got.ReadFrom(r); err != nil {
		t.Fatalf("parse ports: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("reply carries %d ports, want 2", len(got))
	}
	if got[0].PortNo != 1 || got[1].PortNo != 2 {
		t.Fatalf("port numbers = %d, %d, want 1, 2", got[0].PortNo, got[1].PortNo)
	}
	if got[1].State&ofp.PortStateLinkDown == 0 {
		t.Fatal("port 2 must advertise link down")
	}
}

func TestMultipartTableStats(t *testing.T) {
	stats := []ofp.TableStats{
		{Table: 0, ActiveCount: 3, LookupCount: 10, MatchedCount: 10},
		{Table: 1, ActiveCount: 1},
	}

	ctrl, _ := newTestControlPath(t, Config{NumTables: 2, Tables: fakeTables{stats}})

	body, err := of.BytesOf(ofp.NewMultipartRequest(ofp.MultipartTypeTable, nil))
	if err != nil {
		t.Fatalf("encode multipart request: %v", err)
	}

	reply := exchange(t, ctrl, of.NewFrame(of.TypeMultipartRequest, 4, body))

	r := bytes.NewReader(reply.Body)
	var mp ofp.MultipartReply
	if _, err := mp.ReadFrom(r); err != nil {
		t.Fatalf("parse multipart reply: %v", err)
	}

	var got ofp.TableStats
	if _, err := got.ReadFrom(r); err != nil {
		t.Fatalf("parse table stats: %v", err)
	}
	if got != stats[0] {
		t.Fatalf("table 0 stats = %+v, want %+v", got, stats[0])
	}
}

func TestPacketInRelay(t *testing.T) {
	ctrl, bus := newTestControlPath(t, Config{NumTables: 2})

	frame := []byte{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x08, 0x00}
	err := bus.PushToControlPath(&msgbus.Msg{
		Kind:   msgbus.PacketIn,
		Packet: frame,
		InPort: 1,
		Table:  0,
		Reason: ofp.PacketInReasonNoMatch,
		Cookie: 0xffffffffffffffff,
		Match:  ofputil.ExtendedMatch(ofputil.MatchInPort(1)),
	})
	if err != nil {
		t.Fatalf("push packet-in: %v", err)
	}

	reply, err := ctrl.Receive()
	if err != nil {
		t.Fatalf("receive packet-in: %v", err)
	}

	if reply.Header.Type != of.TypePacketIn {
		t.Fatalf("received %v, want packet-in", reply.Header.Type)
	}

	var pin ofp.PacketIn
	if _, err := pin.ReadFrom(bytes.NewReader(reply.Body)); err != nil {
		t.Fatalf("parse packet-in: %v", err)
	}

	if pin.Buffer != ofp.NoBuffer {
		t.Fatalf("buffer id = %#x, want no-buffer", pin.Buffer)
	}
	if pin.Reason != ofp.PacketInReasonNoMatch {
		t.Fatalf("reason = %v, want no-match", pin.Reason)
	}
	if pin.Table != 0 {
		t.Fatalf("table = %d, want 0", pin.Table)
	}
	if pin.Cookie != 0xffffffffffffffff {
		t.Fatalf("cookie = %#x, want all-ones", pin.Cookie)
	}

	inPort := pin.Match.Field(ofp.XMTypeInPort)
	if inPort == nil || inPort.Value.UInt32() != 1 {
		t.Fatalf("packet-in match in-port = %v, want 1", inPort)
	}
	if !bytes.Equal(pin.Data, frame) {
		t.Fatalf("embedded frame = %x, want %x", pin.Data, frame)
	}
}

func TestDatapathID(t *testing.T) {
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	if got := DatapathID(mac); got != 0x0000001122334455 {
		t.Fatalf("DatapathID = %#x, want 0x0000001122334455", got)
	}
}
