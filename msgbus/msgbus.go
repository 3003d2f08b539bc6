// Package msgbus implements the cross-thread message bus that
// decouples the DataPath and ControlPath actors: two bounded FIFO
// queues, one per direction, that the producer pushes onto and the
// consumer drains on wakeup.
package msgbus

import (
	"context"
	"errors"

	"github.com/netrack/ofswitch/ofp"
)

// ErrFull is returned by Push when the destination queue is at
// capacity. The message is not enqueued; the caller owns it and
// decides whether to drop it or retry.
var ErrFull = errors.New("msgbus: queue is full")

// Kind identifies the purpose of a Msg.
type Kind uint8

const (
	// FlowModAdd carries a flow entry to be inserted, translated by
	// ControlPath from an incoming FLOW_MOD(ADD).
	FlowModAdd Kind = iota

	// FlowModDel carries a flow-mod template used to locate and
	// remove a matching entry.
	FlowModDel

	// PacketIn carries a frame DataPath wants relayed to the
	// controller.
	PacketIn

	// PacketOut carries an action list and payload ControlPath wants
	// DataPath to execute.
	PacketOut
)

func (k Kind) String() string {
	switch k {
	case FlowModAdd:
		return "FlowModAdd"
	case FlowModDel:
		return "FlowModDel"
	case PacketIn:
		return "PacketIn"
	case PacketOut:
		return "PacketOut"
	default:
		return "Kind(unknown)"
	}
}

// Msg is the bidirectional cross-thread message. Only the fields
// relevant to Kind are populated; the rest are zero.
//
// Each pushed Msg owns its buffers (Packet, Actions, Entry). The
// producer must not retain or mutate them afterwards; ownership
// passes to whichever goroutine Pop returns it to.
type Msg struct {
	Kind Kind

	// Entry is populated for FlowModAdd/FlowModDel. For FlowModAdd
	// it is the *datapath.FlowEntry to insert; for FlowModDel it is
	// the *ofp.FlowMod entries are matched against for removal.
	//
	// It is carried as interface{} rather than a concrete type so
	// that this package, a leaf of the Codec layer, does not import
	// the datapath package that sits above it in the dependency
	// order; ControlPath (which does import datapath) is the only
	// producer and DataPath the only consumer of this field.
	Entry interface{}

	// Packet is the owned frame bytes, populated for PacketIn and
	// PacketOut.
	Packet []byte

	// InPort, Table, Reason and Cookie are populated for PacketIn;
	// they mirror the fields of the eventual PACKET_IN message.
	InPort ofp.PortNo
	Table  ofp.Table
	Reason ofp.PacketInReason
	Cookie uint64

	// Match is populated for PacketIn: the OXM match DataPath built
	// from the entry that triggered it (IN_PORT plus every
	// non-wildcard field), ready to embed verbatim.
	Match ofp.Match

	// Actions is populated for PacketOut: the action list to apply
	// to Packet.
	Actions ofp.Actions
}

// Bus holds the two directional queues connecting DataPath and
// ControlPath. The zero value is not usable; construct with New.
type Bus struct {
	toDP chan *Msg
	toCP chan *Msg
}

// New allocates a Bus with the given per-direction capacity.
//
// A buffered channel is this package's bounded FIFO queue: the
// runtime-internal mutex and wakeup the channel implementation uses
// in place of hand-rolled mutex-plus-condition-variable bookkeeping.
func New(capacity int) *Bus {
	return &Bus{
		toDP: make(chan *Msg, capacity),
		toCP: make(chan *Msg, capacity),
	}
}

// PushToDataPath enqueues a CP-originated message for DataPath to
// consume. It never blocks: if the queue is full, it returns ErrFull
// and the caller keeps ownership of m.
func (b *Bus) PushToDataPath(m *Msg) error {
	select {
	case b.toDP <- m:
		return nil
	default:
		return ErrFull
	}
}

// PushToControlPath enqueues a DP-originated message for ControlPath
// to consume. Same non-blocking contract as PushToDataPath.
func (b *Bus) PushToControlPath(m *Msg) error {
	select {
	case b.toCP <- m:
		return nil
	default:
		return ErrFull
	}
}

// PopFromControlPath blocks until a message pushed by ControlPath is
// available or ctx is cancelled. The second return is false only on
// cancellation.
func (b *Bus) PopFromControlPath(ctx context.Context) (*Msg, bool) {
	select {
	case m := <-b.toDP:
		return m, true
	case <-ctx.Done():
		return nil, false
	}
}

// PopFromDataPath blocks until a message pushed by DataPath is
// available or ctx is cancelled. The second return is false only on
// cancellation.
func (b *Bus) PopFromDataPath(ctx context.Context) (*Msg, bool) {
	select {
	case m := <-b.toCP:
		return m, true
	case <-ctx.Done():
		return nil, false
	}
}

// DataPathInbox returns the receive end of the queue ControlPath
// pushes onto, for callers that want to combine it with other select
// cases instead of calling PopFromControlPath.
func (b *Bus) DataPathInbox() <-chan *Msg {
	return b.toDP
}

// ControlPathInbox returns the receive end of the queue DataPath
// pushes onto, for callers that want to combine it with other select
// cases instead of calling PopFromDataPath.
func (b *Bus) ControlPathInbox() <-chan *Msg {
	return b.toCP
}
