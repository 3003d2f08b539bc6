// Package iface supplies the hosting environment the switching core
// is specified against: raw-frame receive and transmit on named data
// interfaces, backed by live pcap handles, plus the MAC address and
// carrier-state queries the control path advertises ports with.
package iface

import (
	"fmt"
	"net"

	"github.com/google/gopacket/pcap"
	"github.com/vishvananda/netlink"

	"github.com/netrack/ofswitch/ofp"
)

// snapLen is the per-frame capture length. Full frames are needed:
// the pipeline forwards the captured bytes verbatim.
const snapLen = 65535

// Port is a single data interface opened for live capture and
// injection, bound to an OpenFlow port number.
type Port struct {
	// No is the one-based OpenFlow port number the interface is
	// exposed as.
	No ofp.PortNo

	// Name is the OS interface name.
	Name string

	hwAddr net.HardwareAddr
	handle *pcap.Handle
}

// Open looks up the named interface and opens it for live capture,
// binding it to the given OpenFlow port number.
func Open(name string, no ofp.PortNo) (*Port, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("iface: lookup %s: %w", name, err)
	}

	handle, err := pcap.OpenLive(name, snapLen, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("iface: open %s: %w", name, err)
	}

	hw := make(net.HardwareAddr, 6)
	copy(hw, ifi.HardwareAddr)

	return &Port{No: no, Name: name, hwAddr: hw, handle: handle}, nil
}

// HWAddr returns the interface's MAC address.
func (p *Port) HWAddr() net.HardwareAddr { return p.hwAddr }

// Recv blocks until the next frame arrives on the interface and
// returns its bytes.
func (p *Port) Recv() ([]byte, error) {
	data, _, err := p.handle.ReadPacketData()
	return data, err
}

// Send injects frame on the interface.
func (p *Port) Send(frame []byte) error {
	return p.handle.WritePacketData(frame)
}

// Close releases the capture handle. A blocked Recv returns with an
// error.
func (p *Port) Close() { p.handle.Close() }

// LinkUp reports whether the interface's carrier is up.
func LinkUp(name string) (bool, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return false, fmt.Errorf("iface: link %s: %w", name, err)
	}
	return link.Attrs().OperState == netlink.OperUp, nil
}

// Set is the switch's ordered collection of data ports: index i of
// the configured name list becomes OpenFlow port i+1. It implements
// the port sink the datapath transmits through and the port describer
// the control path answers PORT_DESC requests out of.
type Set struct {
	ports []*Port
}

// OpenSet opens every named interface in order. On any failure the
// already-opened ports are closed and the error returned.
func OpenSet(names []string) (*Set, error) {
	s := &Set{}
	for i, name := range names {
		p, err := Open(name, ofp.PortNo(i+1))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.ports = append(s.ports, p)
	}
	return s, nil
}

// Port returns the port with the given OpenFlow number, nil when out
// of range.
func (s *Set) Port(no ofp.PortNo) *Port {
	i := int(no) - 1
	if i < 0 || i >= len(s.ports) {
		return nil
	}
	return s.ports[i]
}

// All returns the ports in OpenFlow numbering order.
func (s *Set) All() []*Port { return s.ports }

// WriteTo transmits frame out the port numbered no, implementing the
// datapath's port sink.
func (s *Set) WriteTo(no ofp.PortNo, frame []byte) error {
	p := s.Port(no)
	if p == nil {
		return fmt.Errorf("iface: no port %d", no)
	}
	return p.Send(frame)
}

// Ports lists every configured OpenFlow port number.
func (s *Set) Ports() []ofp.PortNo {
	out := make([]ofp.PortNo, len(s.ports))
	for i, p := range s.ports {
		out[i] = p.No
	}
	return out
}

// PortDescriptions builds one port descriptor per configured
// interface, querying the live carrier state for the link-down bit.
func (s *Set) PortDescriptions() []ofp.Port {
	out := make([]ofp.Port, 0, len(s.ports))
	for _, p := range s.ports {
		var state ofp.PortState
		if up, err := LinkUp(p.Name); err == nil && !up {
			state |= ofp.PortStateLinkDown
		}

		out = append(out, ofp.Port{
			PortNo: p.No,
			HWAddr: p.hwAddr,
			Name:   p.Name,
			State:  state,
		})
	}
	return out
}

// Close releases every port's capture handle.
func (s *Set) Close() {
	for _, p := range s.ports {
		p.Close()
	}
}
