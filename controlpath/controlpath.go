// Package controlpath implements the switch's controller-facing
// actor: it owns the OpenFlow connection to the controller, frames
// and dispatches the messages received on it, and relays packet-in
// work items handed up from the datapath over the message bus.
package controlpath

import (
	"bytes"
	"context"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/netrack/ofswitch/msgbus"
	"github.com/netrack/ofswitch/of"
	"github.com/netrack/ofswitch/ofp"
	"github.com/netrack/ofswitch/ofputil"
)

// Static switch description reported in MULTIPART[DESC] replies.
const (
	ManufacturerDesc = "Test Manufacturer"
	HardwareDesc     = "Test Hardware"
	SoftwareDesc     = "OpenFlow 1.3 Version"
	SerialNumber     = "11 11 11 11 11 11"
	DatapathDesc     = "Test OpenFlow Switch"
)

// PortDescriber enumerates the switch's data ports for a
// MULTIPART[PORT_DESC] reply.
type PortDescriber interface {
	PortDescriptions() []ofp.Port
}

// TableStatsProvider reports per-table statistics for a
// MULTIPART[TABLE] reply.
type TableStatsProvider interface {
	TableStats() []ofp.TableStats
}

// Config carries the switch identity and the collaborators ControlPath
// answers controller queries out of.
type Config struct {
	// DatapathID is the 64-bit switch identity advertised in the
	// features reply, the low 48 bits being the primary port's MAC.
	DatapathID uint64

	// NumTables is the fixed pipeline depth; flow mods targeting a
	// table at or past it are rejected.
	NumTables uint8

	// NumBuffers is the advertised packet buffer count. The switch
	// never actually buffers: every packet-in carries its full frame
	// and the no-buffer id.
	NumBuffers uint32

	// Ports answers MULTIPART[PORT_DESC] requests. When nil, the
	// reply carries no ports.
	Ports PortDescriber

	// Tables answers MULTIPART[TABLE] requests. When nil, the request
	// is discarded.
	Tables TableStatsProvider
}

// DatapathID packs a MAC address into the low 48 bits of a datapath
// identifier, the upper 16 bits left zero.
func DatapathID(mac net.HardwareAddr) uint64 {
	var id uint64
	for _, b := range mac {
		id = id<<8 | uint64(b)
	}
	return id
}

// ControlPath is the controller-facing actor. Construct it with New
// and drive it with Run.
type ControlPath struct {
	conn   of.Conn
	bus    *msgbus.Bus
	mux    *of.TypeMux
	config Config

	// frames is the inbox the connection reader goroutine feeds the
	// event loop through, so the loop can select across received
	// frames and bus messages in one place.
	frames chan *of.Frame
}

// New creates a ControlPath over an established controller connection,
// registering a handler for every message type the switch speaks.
func New(conn of.Conn, bus *msgbus.Bus, config Config) *ControlPath {
	cp := &ControlPath{
		conn:   conn,
		bus:    bus,
		mux:    of.NewTypeMux(),
		config: config,
		frames: make(chan *of.Frame, 16),
	}

	cp.mux.Handle(of.TypeHello, ofputil.HelloHandler(nil))
	cp.mux.HandleFunc(of.TypeError, errorHandler)
	cp.mux.Handle(of.TypeEchoRequest, ofputil.EchoHandler(nil))
	cp.mux.Handle(of.TypeEchoReply, of.DiscardHandler)
	cp.mux.HandleFunc(of.TypeFeaturesRequest, cp.featuresRequest)
	cp.mux.HandleFunc(of.TypeFlowMod, cp.flowMod)
	cp.mux.HandleFunc(of.TypePacketOut, cp.packetOut)
	cp.mux.HandleFunc(of.TypeMultipartRequest, cp.multipartRequest)
	cp.mux.HandleFunc(of.TypeBarrierRequest, cp.barrierRequest)

	// Accepted, not acted upon: the switch has no controller-settable
	// configuration, port administration, or table configuration.
	cp.mux.Handle(of.TypeGetConfigRequest, of.DiscardHandler)
	cp.mux.Handle(of.TypeSetConfig, of.DiscardHandler)
	cp.mux.Handle(of.TypePortMod, of.DiscardHandler)
	cp.mux.Handle(of.TypeTableMod, of.DiscardHandler)

	return cp
}

// Run drives the event loop until ctx is cancelled or the controller
// connection fails, serving received frames and relaying packet-ins
// from the datapath, in the order each arrived.
func (cp *ControlPath) Run(ctx context.Context) error {
	recvErr := make(chan error, 1)
	go cp.receive(ctx, recvErr)

	inbox := cp.bus.ControlPathInbox()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-recvErr:
			return err
		case f := <-cp.frames:
			if err := cp.serve(f); err != nil {
				return err
			}
		case m := <-inbox:
			if err := cp.relay(m); err != nil {
				return err
			}
		}
	}
}

// receive blocks on the connection and feeds complete frames into the
// event loop until the connection fails or ctx is cancelled.
func (cp *ControlPath) receive(ctx context.Context, errc chan<- error) {
	for {
		f, err := cp.conn.Receive()
		if err != nil {
			errc <- err
			return
		}

		select {
		case cp.frames <- f:
		case <-ctx.Done():
			return
		}
	}
}

// serve validates and dispatches a single received frame. Frames that
// fail validation are logged and discarded; the stream itself stays
// up. A write failure on the reply path is returned to the caller to
// terminate the actor.
func (cp *ControlPath) serve(f *of.Frame) error {
	// A HELLO from a peer speaking another version is the one case
	// where a version mismatch is tolerated: the switch still answers
	// with its own HELLO.
	if f.Header.Version != of.ProtocolVersion && f.Header.Type != of.TypeHello {
		log.WithFields(log.Fields{
			"version": f.Header.Version,
			"type":    f.Header.Type,
		}).Warn("controlpath: protocol version mismatch, frame discarded")
		return nil
	}

	if f.Header.Type > of.TypeMeterMod {
		log.WithField("type", f.Header.Type).Warn("controlpath: unknown message type, frame discarded")
		return nil
	}

	rw := &responseWriter{conn: cp.conn, xid: f.Header.XID}
	cp.mux.Serve(rw, f)
	return rw.Flush()
}

// relay translates a datapath-originated bus message into its wire
// form and sends it to the controller.
func (cp *ControlPath) relay(m *msgbus.Msg) error {
	if m.Kind != msgbus.PacketIn {
		log.WithField("kind", m.Kind).Warn("controlpath: unexpected message kind from data path")
		return nil
	}

	pin := ofp.PacketIn{
		Buffer: ofp.NoBuffer,
		Length: uint16(len(m.Packet)),
		Reason: m.Reason,
		Table:  m.Table,
		Cookie: m.Cookie,
		Match:  m.Match,
		Data:   m.Packet,
	}

	body, err := of.BytesOf(&pin)
	if err != nil {
		log.WithError(err).Error("controlpath: failed to encode packet-in")
		return nil
	}

	if err := cp.conn.Send(of.NewRequest(of.TypePacketIn, body)); err != nil {
		return err
	}
	return cp.conn.Flush()
}

// errorHandler logs errors the controller reports. The switch never
// replies to them.
func errorHandler(rw of.ResponseWriter, f *of.Frame) {
	var e ofp.Error
	if _, err := e.ReadFrom(bytes.NewReader(f.Body)); err != nil {
		log.WithError(err).Warn("controlpath: failed to parse error message")
		return
	}

	log.WithFields(log.Fields{
		"type": e.Type,
		"code": e.Code,
	}).Warn("controlpath: error reported by controller")
}

// responseWriter replies to a received frame, echoing its transaction
// id.
type responseWriter struct {
	conn of.Conn
	xid  uint32
}

// Send implements of.ResponseWriter interface.
func (w *responseWriter) Send(t of.Type, body []byte) error {
	return w.conn.Send(of.NewFrame(t, w.xid, body))
}

// Flush implements of.ResponseWriter interface.
func (w *responseWriter) Flush() error {
	return w.conn.Flush()
}
