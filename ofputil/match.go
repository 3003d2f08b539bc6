package ofputil

import (
	"bytes"
	"fmt"
	"net"

	"github.com/netrack/ofswitch/internal/encoding"
	"github.com/netrack/ofswitch/ofp"
)

func bytesOf(v interface{}) []byte {
	var buf bytes.Buffer

	_, err := encoding.WriteTo(&buf, v)
	if err != nil {
		text := "ofputil: unable to marshal %v"
		panic(fmt.Errorf(text, err))
	}

	return buf.Bytes()
}

func ExtendedMatch(xms ...ofp.XM) ofp.Match {
	return ofp.Match{ofp.MatchTypeXM, xms}
}

// basic creates an Openflow basic extensible match of the given type.
func basic(t ofp.XMType, val ofp.XMValue, mask ofp.XMValue) ofp.XM {
	return ofp.XM{
		Class: ofp.XMClassOpenflowBasic,
		Type:  t, Value: val, Mask: mask,
	}
}

// MatchEthType creates an Openflow basic extensible match of Ethernet
// payload type.
func MatchEthType(eth uint16) ofp.XM {
	return basic(ofp.XMTypeEthType, bytesOf(eth), nil)
}

// MatchInPort creates an Openflow basic extensible match of in port.
func MatchInPort(port ofp.PortNo) ofp.XM {
	return basic(ofp.XMTypeInPort, bytesOf(port), nil)
}

// MatchIPProto creates an Openflow basic extensible match of IP protocol
// payload type.
func MatchIPProto(ipp uint8) ofp.XM {
	return basic(ofp.XMTypeIPProto, bytesOf(ipp), nil)
}

// MatchICMPv6Type creates an Openflow basic extensible match of ICMPv6
// message type.
func MatchICMPv6Type(icmpt uint8) ofp.XM {
	return basic(ofp.XMTypeICMPv6Type, bytesOf(icmpt), nil)
}

// MatchIPv6ExtHeader creates an Openflow basic extensible match of IPv6
// extension header.
func MatchIPv6ExtHeader(header uint16) ofp.XM {
	return basic(ofp.XMTypeIPv6ExtHeader, bytesOf(header), nil)
}

// MatchEthDst creates an Openflow basic extensible match of Ethernet
// destination address.
func MatchEthDst(mac net.HardwareAddr) ofp.XM {
	return basic(ofp.XMTypeEthDst, bytesOf(mac), nil)
}

// MatchEthSrc creates an Openflow basic extensible match of Ethernet
// source address.
func MatchEthSrc(mac net.HardwareAddr) ofp.XM {
	return basic(ofp.XMTypeEthSrc, bytesOf(mac), nil)
}

// MatchVlanID creates an Openflow basic extensible match of VLAN
// identifier.
func MatchVlanID(vid uint16) ofp.XM {
	return basic(ofp.XMTypeVlanID, bytesOf(vid), nil)
}

// MatchIPv4Src creates an Openflow basic extensible match of IPv4
// source address.
func MatchIPv4Src(ip uint32) ofp.XM {
	return basic(ofp.XMTypeIPv4Src, bytesOf(ip), nil)
}

// MatchIPv4Dst creates an Openflow basic extensible match of IPv4
// destination address.
func MatchIPv4Dst(ip uint32) ofp.XM {
	return basic(ofp.XMTypeIPv4Dst, bytesOf(ip), nil)
}

// MatchTCPSrc creates an Openflow basic extensible match of TCP
// source port.
func MatchTCPSrc(port uint16) ofp.XM {
	return basic(ofp.XMTypeTCPSrc, bytesOf(port), nil)
}

// MatchTCPDst creates an Openflow basic extensible match of TCP
// destination port.
func MatchTCPDst(port uint16) ofp.XM {
	return basic(ofp.XMTypeTCPDst, bytesOf(port), nil)
}

// MatchUDPSrc creates an Openflow basic extensible match of UDP
// source port.
func MatchUDPSrc(port uint16) ofp.XM {
	return basic(ofp.XMTypeUDPSrc, bytesOf(port), nil)
}

// MatchUDPDst creates an Openflow basic extensible match of UDP
// destination port.
func MatchUDPDst(port uint16) ofp.XM {
	return basic(ofp.XMTypeUDPDst, bytesOf(port), nil)
}

// MatchARPTPA creates an Openflow basic extensible match of ARP
// target IPv4 address.
func MatchARPTPA(ip uint32) ofp.XM {
	return basic(ofp.XMTypeARPTPA, bytesOf(ip), nil)
}
