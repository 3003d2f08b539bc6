package controlpath

import (
	"bytes"
	"io"
	"io/ioutil"

	log "github.com/sirupsen/logrus"

	"github.com/netrack/ofswitch/datapath"
	"github.com/netrack/ofswitch/msgbus"
	"github.com/netrack/ofswitch/of"
	"github.com/netrack/ofswitch/ofp"
)

func (cp *ControlPath) featuresRequest(rw of.ResponseWriter, f *of.Frame) {
	features := &ofp.SwitchFeatures{
		DatapathID:   cp.config.DatapathID,
		NumBuffers:   cp.config.NumBuffers,
		NumTables:    cp.config.NumTables,
		Capabilities: ofp.CapabilityFlowStats | ofp.CapabilityTableStats,
	}

	body, err := of.BytesOf(features)
	if err != nil {
		log.WithError(err).Error("controlpath: failed to encode features reply")
		return
	}

	if err := rw.Send(of.TypeFeaturesReply, body); err != nil {
		log.WithError(err).Warn("controlpath: failed to send features reply")
	}
}

func (cp *ControlPath) barrierRequest(rw of.ResponseWriter, f *of.Frame) {
	// Every flow mod and packet-out received before this barrier is
	// already queued to the datapath, which drains its inbox in FIFO
	// order, so replying immediately preserves the barrier's ordering
	// promise without a cross-queue fence.
	if err := rw.Send(of.TypeBarrierReply, nil); err != nil {
		log.WithError(err).Warn("controlpath: failed to send barrier reply")
	}
}

func (cp *ControlPath) multipartRequest(rw of.ResponseWriter, f *of.Frame) {
	var req ofp.MultipartRequest
	if _, err := req.ReadFrom(bytes.NewReader(f.Body)); err != nil {
		log.WithError(err).Warn("controlpath: failed to parse multipart request")
		return
	}

	switch req.Type {
	case ofp.MultipartTypeDescription:
		desc := &ofp.Description{
			Manufacturer: ManufacturerDesc,
			Hardware:     HardwareDesc,
			Software:     SoftwareDesc,
			SerialNum:    SerialNumber,
			Datapath:     DatapathDesc,
		}
		cp.sendMultipartReply(rw, req.Type, desc)

	case ofp.MultipartTypePortDescription:
		var ports []ofp.Port
		if cp.config.Ports != nil {
			ports = cp.config.Ports.PortDescriptions()
		}

		body := make([]io.WriterTo, len(ports))
		for i := range ports {
			body[i] = &ports[i]
		}
		cp.sendMultipartReply(rw, req.Type, body...)

	case ofp.MultipartTypeTable:
		if cp.config.Tables == nil {
			log.Warn("controlpath: table statistics requested but not wired")
			return
		}

		stats := cp.config.Tables.TableStats()
		body := make([]io.WriterTo, len(stats))
		for i := range stats {
			body[i] = &stats[i]
		}
		cp.sendMultipartReply(rw, req.Type, body...)

	default:
		log.WithField("type", req.Type).Warn("controlpath: unsupported multipart type, request discarded")
	}
}

func (cp *ControlPath) sendMultipartReply(rw of.ResponseWriter, t ofp.MultipartType, body ...io.WriterTo) {
	var buf bytes.Buffer

	reply := ofp.MultipartReply{Type: t}
	if _, err := reply.WriteTo(&buf); err != nil {
		log.WithError(err).Error("controlpath: failed to encode multipart reply")
		return
	}

	for _, wt := range body {
		if _, err := wt.WriteTo(&buf); err != nil {
			log.WithError(err).Error("controlpath: failed to encode multipart reply body")
			return
		}
	}

	if err := rw.Send(of.TypeMultipartReply, buf.Bytes()); err != nil {
		log.WithError(err).Warn("controlpath: failed to send multipart reply")
	}
}

func (cp *ControlPath) flowMod(rw of.ResponseWriter, f *of.Frame) {
	var fm ofp.FlowMod
	if _, err := fm.ReadFrom(bytes.NewReader(f.Body)); err != nil {
		log.WithError(err).Warn("controlpath: failed to parse flow mod")
		return
	}

	if err := validateFlowMod(&fm, cp.config.NumTables); err != nil {
		log.WithError(err).Error("controlpath: flow mod rejected")
		return
	}

	var m *msgbus.Msg
	switch fm.Command {
	case ofp.FlowAdd:
		m = &msgbus.Msg{
			Kind:  msgbus.FlowModAdd,
			Entry: datapath.NewFlowEntryFromFlowMod(&fm),
		}
	case ofp.FlowDelete:
		m = &msgbus.Msg{Kind: msgbus.FlowModDel, Entry: &fm}
	}

	if err := cp.bus.PushToDataPath(m); err != nil {
		log.WithError(err).Warn("controlpath: data path queue full, flow mod dropped")
	}
}

func (cp *ControlPath) packetOut(rw of.ResponseWriter, f *of.Frame) {
	r := bytes.NewReader(f.Body)

	var po ofp.PacketOut
	if _, err := po.ReadFrom(r); err != nil {
		log.WithError(err).Warn("controlpath: failed to parse packet-out")
		return
	}

	// The frame payload follows the action list and runs to the end
	// of the message.
	data, err := ioutil.ReadAll(r)
	if err != nil {
		log.WithError(err).Warn("controlpath: failed to read packet-out payload")
		return
	}

	err = cp.bus.PushToDataPath(&msgbus.Msg{
		Kind:    msgbus.PacketOut,
		InPort:  po.InPort,
		Actions: po.Actions,
		Packet:  data,
	})
	if err != nil {
		log.WithError(err).Warn("controlpath: data path queue full, packet-out dropped")
	}
}
