// Package of implements the OpenFlow 1.3 wire framing: the fixed
// eight-byte header shared by every message, decoding of a byte
// stream into discrete frames, and the client-side connection and
// dispatch machinery built on top of them.
package of

import (
	"io"

	"github.com/netrack/ofswitch/internal/encoding"
)

// Type is an OpenFlow message type, carried in the header's type
// field.
type Type uint8

const (
	// Immutable messages.
	TypeHello Type = iota
	TypeError
	TypeEchoRequest
	TypeEchoReply
	TypeExperimenter

	// Switch configuration messages.
	TypeFeaturesRequest
	TypeFeaturesReply
	TypeGetConfigRequest
	TypeGetConfigReply
	TypeSetConfig

	// Asynchronous messages.
	TypePacketIn
	TypeFlowRemoved
	TypePortStatus

	// Controller command messages.
	TypePacketOut
	TypeFlowMod
	TypeGroupMod
	TypePortMod
	TypeTableMod

	// Multipart messages.
	TypeMultipartRequest
	TypeMultipartReply

	// Barrier messages.
	TypeBarrierRequest
	TypeBarrierReply

	// Queue configuration messages.
	TypeQueueGetConfigRequest
	TypeQueueGetConfigReply

	// Controller role change request messages.
	TypeRoleRequest
	TypeRoleReply

	// Asynchronous message configuration.
	TypeGetAsyncRequest
	TypeGetAsyncReply
	TypeSetAsync

	// Meter configuration message.
	TypeMeterMod
)

// ProtocolVersion is the single OpenFlow wire version this package
// speaks.
const ProtocolVersion = 0x04

// HeaderLen is the size in bytes of the OpenFlow message header.
const HeaderLen = 8

// Header is the eight-byte preamble that precedes every OpenFlow
// message on the wire.
type Header struct {
	// Version is the OpenFlow protocol version, 0x04 for 1.3.
	Version uint8

	// Type is one of the Type constants.
	Type Type

	// Length is the total message length, header included.
	Length uint16

	// XID is the transaction id. Replies echo the XID of the
	// request that triggered them.
	XID uint32
}

// WriteTo implements io.WriterTo interface.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	return encoding.WriteTo(w, h.Version, h.Type, h.Length, h.XID)
}

// ReadFrom implements io.ReaderFrom interface.
func (h *Header) ReadFrom(r io.Reader) (int64, error) {
	return encoding.ReadFrom(r, &h.Version, &h.Type, &h.Length, &h.XID)
}
