package datapath

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/netrack/ofswitch/ofp"
	"github.com/netrack/ofswitch/ofputil"
)

// L4ProtoHint narrows which transport-layer ports a FlowEntry's L4Src
// and L4Dst fields refer to.
type L4ProtoHint uint8

const (
	// L4ProtoNone means the entry does not match on transport ports.
	L4ProtoNone L4ProtoHint = iota

	// L4ProtoTCP means L4Src/L4Dst are TCP ports.
	L4ProtoTCP

	// L4ProtoUDP means L4Src/L4Dst are UDP ports.
	L4ProtoUDP
)

// MatchFields is the normalized, fixed-shape view of a packet's (or a
// flow entry's) header fields extracted from the OXM representation.
// A zero value in any field means "wildcard" for a FlowEntry, or
// "absent" for a packet.
type MatchFields struct {
	InPort        uint32
	EthDst        [6]byte
	EthSrc        [6]byte
	VlanID        uint16
	EthType       uint16
	IPProto       uint8
	IPv4Src       uint32
	IPv4Dst       uint32
	L4Src         uint16
	L4Dst         uint16
	L4ProtoHint   L4ProtoHint
	ARPTargetIPv4 uint32
}

// ExtractMatchFields parses the Ethernet/VLAN/IPv4/ARP headers of
// frame received on the given one-based OpenFlow port number,
// following the pipeline algorithm's header-extraction step.
//
// Header access is done with gopacket/layers struct definitions used
// as typed offset references over the raw bytes; no pcap handle is
// involved, the parsing is pure.
func ExtractMatchFields(frame []byte, inPort uint32) MatchFields {
	mf := MatchFields{InPort: inPort}

	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		return mf
	}

	copy(mf.EthDst[:], eth.DstMAC)
	copy(mf.EthSrc[:], eth.SrcMAC)

	payload := eth.Payload
	ethType := eth.EthernetType

	if ethType == layers.EthernetTypeDot1Q {
		var dot1q layers.Dot1Q
		if err := dot1q.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return mf
		}

		mf.VlanID = dot1q.VLANIdentifier
		ethType = dot1q.Type
		payload = dot1q.Payload
	}

	mf.EthType = uint16(ethType)

	switch ethType {
	case layers.EthernetTypeARP:
		extractARP(payload, &mf)
	case layers.EthernetTypeIPv4:
		extractIPv4(payload, &mf)
	}

	return mf
}

func extractARP(payload []byte, mf *MatchFields) {
	var arp layers.ARP
	if err := arp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return
	}

	if len(arp.DstProtAddress) == 4 {
		mf.ARPTargetIPv4 = binary.BigEndian.Uint32(arp.DstProtAddress)
	}
}

func extractIPv4(payload []byte, mf *MatchFields) {
	var ip layers.IPv4
	if err := ip.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return
	}

	mf.IPProto = uint8(ip.Protocol)
	mf.IPv4Src = binary.BigEndian.Uint32(ip.SrcIP.To4())
	mf.IPv4Dst = binary.BigEndian.Uint32(ip.DstIP.To4())

	switch ip.Protocol {
	case layers.IPProtocolTCP:
		var tcp layers.TCP
		if err := tcp.DecodeFromBytes(ip.Payload, gopacket.NilDecodeFeedback); err == nil {
			mf.L4ProtoHint = L4ProtoTCP
			mf.L4Src = uint16(tcp.SrcPort)
			mf.L4Dst = uint16(tcp.DstPort)
		}
	case layers.IPProtocolUDP:
		var udp layers.UDP
		if err := udp.DecodeFromBytes(ip.Payload, gopacket.NilDecodeFeedback); err == nil {
			mf.L4ProtoHint = L4ProtoUDP
			mf.L4Src = uint16(udp.SrcPort)
			mf.L4Dst = uint16(udp.DstPort)
		}
	}
}

// IsWildcard reports whether every field of mf is its zero value,
// the shape of the reserved table-miss entry's match.
func (mf MatchFields) IsWildcard() bool {
	return mf == MatchFields{}
}

// Matches reports whether pkt satisfies every non-wildcard field of
// mf, following the best-match comparison rules: a field wins the
// comparison only when mf has a non-zero value for it, and L4 port
// comparisons additionally require matching protocol hints.
func (mf MatchFields) Matches(pkt MatchFields) bool {
	if mf.InPort != 0 && mf.InPort != pkt.InPort {
		return false
	}
	if mf.EthDst != [6]byte{} && mf.EthDst != pkt.EthDst {
		return false
	}
	if mf.EthSrc != [6]byte{} && mf.EthSrc != pkt.EthSrc {
		return false
	}
	if mf.VlanID != 0 && mf.VlanID != pkt.VlanID {
		return false
	}
	if mf.EthType != 0 && mf.EthType != pkt.EthType {
		return false
	}
	if mf.IPProto != 0 && mf.IPProto != pkt.IPProto {
		return false
	}
	if mf.IPv4Src != 0 && mf.IPv4Src != pkt.IPv4Src {
		return false
	}
	if mf.IPv4Dst != 0 && mf.IPv4Dst != pkt.IPv4Dst {
		return false
	}
	if mf.ARPTargetIPv4 != 0 && mf.ARPTargetIPv4 != pkt.ARPTargetIPv4 {
		return false
	}
	if mf.L4ProtoHint != L4ProtoNone {
		if mf.L4ProtoHint != pkt.L4ProtoHint {
			return false
		}
		if mf.L4Src != 0 && mf.L4Src != pkt.L4Src {
			return false
		}
		if mf.L4Dst != 0 && mf.L4Dst != pkt.L4Dst {
			return false
		}
	}

	return true
}

// nonWildcardXMs returns the OXM fields of mf that are not
// wildcarded, used to build a PACKET_IN match.
func nonWildcardXMs(mf MatchFields) []ofp.XM {
	var xms []ofp.XM

	add := func(xm ofp.XM) { xms = append(xms, xm) }

	if mf.EthDst != [6]byte{} {
		add(ofputil.MatchEthDst(net.HardwareAddr(mf.EthDst[:])))
	}
	if mf.EthSrc != [6]byte{} {
		add(ofputil.MatchEthSrc(net.HardwareAddr(mf.EthSrc[:])))
	}
	if mf.VlanID != 0 {
		add(ofputil.MatchVlanID(mf.VlanID))
	}
	if mf.EthType != 0 {
		add(ofputil.MatchEthType(mf.EthType))
	}
	if mf.IPProto != 0 {
		add(ofputil.MatchIPProto(mf.IPProto))
	}
	if mf.IPv4Src != 0 {
		add(ofputil.MatchIPv4Src(mf.IPv4Src))
	}
	if mf.IPv4Dst != 0 {
		add(ofputil.MatchIPv4Dst(mf.IPv4Dst))
	}
	if mf.ARPTargetIPv4 != 0 {
		add(ofputil.MatchARPTPA(mf.ARPTargetIPv4))
	}
	switch mf.L4ProtoHint {
	case L4ProtoTCP:
		if mf.L4Src != 0 {
			add(ofputil.MatchTCPSrc(mf.L4Src))
		}
		if mf.L4Dst != 0 {
			add(ofputil.MatchTCPDst(mf.L4Dst))
		}
	case L4ProtoUDP:
		if mf.L4Src != 0 {
			add(ofputil.MatchUDPSrc(mf.L4Src))
		}
		if mf.L4Dst != 0 {
			add(ofputil.MatchUDPDst(mf.L4Dst))
		}
	}

	return xms
}

// BuildMatch constructs the OXM match for a PACKET_IN message from the
// MatchFields of the flow entry that sent the packet to the
// controller, with InPort set to the ingress port, always including
// IN_PORT.
func BuildMatch(mf MatchFields) ofp.Match {
	xms := append([]ofp.XM{ofputil.MatchInPort(ofp.PortNo(mf.InPort))}, nonWildcardXMs(mf)...)
	return ofputil.ExtendedMatch(xms...)
}

// NormalizeMatch converts the wire OXM fields of a FLOW_MOD's match
// into a MatchFields value, the shape a FlowEntry stores and the
// pipeline compares packets against. Unrecognized OXM fields are
// ignored; the entry simply does not narrow on them.
func NormalizeMatch(m ofp.Match) MatchFields {
	var mf MatchFields

	for _, xm := range m.Fields {
		switch xm.Type {
		case ofp.XMTypeInPort:
			mf.InPort = xm.Value.UInt32()
		case ofp.XMTypeEthDst:
			copy(mf.EthDst[:], xm.Value)
		case ofp.XMTypeEthSrc:
			copy(mf.EthSrc[:], xm.Value)
		case ofp.XMTypeVlanID:
			mf.VlanID = xm.Value.UInt16()
		case ofp.XMTypeEthType:
			mf.EthType = xm.Value.UInt16()
		case ofp.XMTypeIPProto:
			mf.IPProto = xm.Value.UInt8()
		case ofp.XMTypeIPv4Src:
			mf.IPv4Src = xm.Value.UInt32()
		case ofp.XMTypeIPv4Dst:
			mf.IPv4Dst = xm.Value.UInt32()
		case ofp.XMTypeARPTPA:
			mf.ARPTargetIPv4 = xm.Value.UInt32()
		case ofp.XMTypeTCPSrc:
			mf.L4ProtoHint = L4ProtoTCP
			mf.L4Src = xm.Value.UInt16()
		case ofp.XMTypeTCPDst:
			mf.L4ProtoHint = L4ProtoTCP
			mf.L4Dst = xm.Value.UInt16()
		case ofp.XMTypeUDPSrc:
			mf.L4ProtoHint = L4ProtoUDP
			mf.L4Src = xm.Value.UInt16()
		case ofp.XMTypeUDPDst:
			mf.L4ProtoHint = L4ProtoUDP
			mf.L4Dst = xm.Value.UInt16()
		}
	}

	return mf
}
