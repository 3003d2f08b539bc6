package ofp

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/netrack/ofswitch/internal/encoding"
)

// ActionType specifies the action type.
type ActionType uint16

// String returns a string representation of the action type.
func (a ActionType) String() string {
	text, ok := actionText[a]
	// If action is now known just say it.
	if !ok {
		return fmt.Sprintf("Action(%d)", a)
	}

	return text
}

const (
	// ActionTypeOutput outputs the packet to the switch port.
	ActionTypeOutput ActionType = iota

	// ActionTypeCopyTTLOut copies the TTL from the next-to-outermost
	// header to outermost header with TTL.
	ActionTypeCopyTTLOut ActionType = 10 + iota

	// ActionTypeCopyTTLIn copies the TTL from the outermost header to
	// the next-to-outermost header with TTL.
	ActionTypeCopyTTLIn ActionType = 10 + iota

	// ActionTypeSetMPLSTTL replaces the existing MTPL TTL. This applies
	// only to the packets with existing MPLS shim header.
	ActionTypeSetMPLSTTL ActionType = 12 + iota

	// ActionTypeDecMPLSTTL decrements the MTPS TTL. This applies only
	// to the packets with existing MPLS shim header.
	ActionTypeDecMPLSTTL ActionType = 12 + iota

	// ActionTypePushVLAN pushes a new VLAN header onto the packet.
	ActionTypePushVLAN ActionType = 12 + iota

	// ActionTypePopVLAN pops the outer-most VLAN header from the packet.
	ActionTypePopVLAN ActionType = 12 + iota

	// ActionTypePushMPLS pushes a new MPLS shim header onto the packet.
	ActionTypePushMPLS ActionType = 12 + iota

	// ActionTypePopMPLS pops the outer-most MPLS tag or shim header from
	// the packet.
	ActionTypePopMPLS ActionType = 12 + iota

	// ActionTypeSetQueue specifies on which queue attached to the port
	// should be used to queue and forward packet.
	ActionTypeSetQueue ActionType = 12 + iota

	// ActionTypeGroup specifies that action should be set to the group
	// action, when a packet has to be processed by the group table.
	ActionTypeGroup ActionType = 12 + iota

	// ActionTypeSetNwTTL replaces the existing IPv4 TTL or IPv6 Hop Limit
	// and updates the IP checksum.
	ActionTypeSetNwTTL ActionType = 12 + iota

	// ActionTypeDecNwTTL decrements the IPv4 TTL or IPv6 Hop Limit and
	// and updates the IP checksum.
	ActionTypeDecNwTTL ActionType = 12 + iota

	// ActionTypeSetField sets the value to the packet field.
	ActionTypeSetField ActionType = 12 + iota

	// ActionTypePushPBB pushes a new PBB service instance header (I-TAG)
	// onto the packet.
	ActionTypePushPBB ActionType = 12 + iota

	// ActionTypePopPBB pops the outer-most PBB service instance header
	// (I-TAG) from the packet.
	ActionTypePopPBB ActionType = 12 + iota

	// ActionTypeExperimenter applies the experimental action.
	ActionTypeExperimenter ActionType = 0xffff
)

var actionText = map[ActionType]string{
	ActionTypeOutput:       "ActionOutput",
	ActionTypeCopyTTLOut:   "ActionCopyTTLOut",
	ActionTypeCopyTTLIn:    "ActionCopyTTLIn",
	ActionTypeSetMPLSTTL:   "ActionSetMPLSTTL",
	ActionTypeDecMPLSTTL:   "ActionDecMPLSTTL",
	ActionTypePushVLAN:     "ActionPushVLAN",
	ActionTypePopVLAN:      "ActionPopVLAN",
	ActionTypePushMPLS:     "ActionPushMPLS",
	ActionTypePopMPLS:      "ActionPopMPLS",
	ActionTypeSetQueue:     "ActionSetQueue",
	ActionTypeGroup:        "ActionGroup",
	ActionTypeSetNwTTL:     "ActionSetNwTTL",
	ActionTypeDecNwTTL:     "ActionDecNwTTL",
	ActionTypeSetField:     "ActionSetField",
	ActionTypePushPBB:      "ActionPushPBB",
	ActionTypePopPBB:       "ActionPopPBB",
	ActionTypeExperimenter: "ActionExperimenter",
}

// actionMap lists the action types this codec decodes into their
// own concrete body. Everything else still decodes, but into an
// ActionUnsupported that keeps the raw payload instead of
// interpreting it.
var actionMap = map[ActionType]encoding.ReaderMaker{
	ActionTypeOutput: encoding.ReaderMakerOf(ActionOutput{}),
}

const (
	// ContentLenMax defines the maximum length of the bytes, that should
	// be submitted to the controller on output action type.
	ContentLenMax uint16 = 0xffe5

	// ContentLenNoBuffer indicates that no buffering should be applied and
	// the whole packet is to be sent to the controller on output action type.
	ContentLenNoBuffer uint16 = 0xffff
)

// action defines a header of each action, it will be used for
// marshalling and unmarshalling actions.
type action struct {
	Type ActionType

	// Length of action, including this header.
	Len uint16
}

func (a *action) ReadFrom(r io.Reader) (int64, error) {
	return encoding.ReadFrom(r, &a.Type, &a.Len)
}

const (
	// actionHeaderLen is a length of the action header.
	actionHeaderLen uint16 = 4
)

// Action is an interface representing an OpenFlow action.
type Action interface {
	encoding.ReadWriter

	// Type returns the type of the single action.
	Type() ActionType
}

// Actions group the set of actions.
type Actions []Action

func (a *Actions) bytes() ([]byte, error) {
	var buf bytes.Buffer

	for _, action := range *a {
		_, err := action.WriteTo(&buf)
		if err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// WriteTo writes the list of action to the given writer instance.
func (a *Actions) WriteTo(w io.Writer) (int64, error) {
	buf, err := a.bytes()
	if err != nil {
		return int64(len(buf)), err
	}

	return encoding.WriteTo(w, buf)
}

// ReadFrom decodes the list of actions from the wire format into the
// list of types that implement the Action interface. Action types
// this codec has no concrete body for decode into ActionUnsupported
// rather than failing the whole list.
func (a *Actions) ReadFrom(r io.Reader) (int64, error) {
	var actionType ActionType
	*a = nil

	rm := func() (io.ReaderFrom, error) {
		maker, ok := actionMap[actionType]
		if !ok {
			rd := &ActionUnsupported{Typ: actionType}
			*a = append(*a, rd)
			return rd, nil
		}

		rd, err := maker.MakeReader()
		*a = append(*a, rd.(Action))
		return rd, err
	}

	return encoding.ScanFrom(r, &actionType,
		encoding.ReaderMakerFunc(rm))
}

// ActionOutput is an action used to output the packets to the switch port.
//
// When the port is the PortController, MaxLen indicates the max number of
// bytes to send. A MaxLen of zero means no bytes of the packet should be
// sent.
//
// A MaxLen of ContentLenNoBuffer means that the packet is not buffered and
// the complete packet is to be sent to the controller.
type ActionOutput struct {
	// Output port.
	Port PortNo

	// Max length to send to controller.
	MaxLen uint16
}

// Type retuns the type of the action.
func (a *ActionOutput) Type() ActionType {
	return ActionTypeOutput
}

// WriteTo implements the io.WriterTo interface. It serializes
// the action with a necessary padding.
func (a *ActionOutput) WriteTo(w io.Writer) (int64, error) {
	return encoding.WriteTo(w, action{a.Type(), 16}, *a, pad6{})
}

// ReadFrom implements the io.ReaderFrom interface. It deserialized
// the output action from a wire format.
func (a *ActionOutput) ReadFrom(r io.Reader) (int64, error) {
	return encoding.ReadFrom(r, &action{}, &a.Port, &a.MaxLen, &defaultPad6)
}

// ActionUnsupported is the catch-all body for action types this
// codec has not been taught to interpret. It keeps the type and raw
// payload intact, so the action round-trips on re-encode and
// callers that require interpreting every action of a flow mod can
// reject it explicitly instead of silently dropping it.
type ActionUnsupported struct {
	Typ ActionType
	Raw []byte
}

// Type returns the type of the action.
func (a *ActionUnsupported) Type() ActionType {
	return a.Typ
}

// WriteTo implements the io.WriterTo interface. It rewrites the
// header and raw payload exactly as they were decoded.
func (a *ActionUnsupported) WriteTo(w io.Writer) (int64, error) {
	header := action{a.Typ, actionHeaderLen + uint16(len(a.Raw))}
	return encoding.WriteTo(w, header, a.Raw)
}

// ReadFrom implements the io.ReaderFrom interface. It reads the
// action header and retains everything past it verbatim.
func (a *ActionUnsupported) ReadFrom(r io.Reader) (int64, error) {
	var header action

	n, err := encoding.ReadFrom(r, &header)
	if err != nil {
		return n, err
	}

	a.Typ = header.Type

	limrd := io.LimitReader(r, int64(header.Len)-int64(actionHeaderLen))
	raw, err := ioutil.ReadAll(limrd)
	n += int64(len(raw))

	a.Raw = raw
	return n, err
}
