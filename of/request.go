package of

import "sync/atomic"

// xidCounter generates XIDs for locally-originated requests: frames
// this switch sends to the controller that did not arrive as a reply
// to some received frame.
var xidCounter uint32

// NewRequest builds a frame of the given type with a freshly
// allocated XID and the given already-encoded body, for use by code
// that is not replying to a specific received frame (a ResponseWriter
// handles that case by echoing the request's XID instead).
func NewRequest(t Type, body []byte) *Frame {
	xid := atomic.AddUint32(&xidCounter, 1)
	return NewFrame(t, xid, body)
}
