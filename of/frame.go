package of

import (
	"bytes"
	"errors"
	"io"
)

// ErrTruncatedFrame is returned by DecodeFrames and by
// OFPConn.Receive when a frame's header declares a length smaller
// than the header itself.
var ErrTruncatedFrame = errors.New("of: truncated frame")

// Frame is a single decoded OpenFlow message: its header and the
// raw, not yet parsed, message body.
type Frame struct {
	Header Header
	Body   []byte
}

// NewFrame constructs a frame of the given type, xid and body. The
// header's Length field is left unset; it is computed on WriteTo.
func NewFrame(t Type, xid uint32, body []byte) *Frame {
	return &Frame{
		Header: Header{Version: ProtocolVersion, Type: t, XID: xid},
		Body:   body,
	}
}

// WriteTo implements io.WriterTo interface. It serializes the header
// with the length computed from the body, followed by the body
// itself.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	h := f.Header
	h.Length = uint16(HeaderLen + len(f.Body))

	if _, err := h.WriteTo(&buf); err != nil {
		return 0, err
	}

	if _, err := buf.Write(f.Body); err != nil {
		return 0, err
	}

	return buf.WriteTo(w)
}

// DecodeFrames consumes as many complete frames as are fully present
// in buf. It returns the decoded frames and the number of bytes
// consumed; any trailing partial frame is left unconsumed for the
// caller to retain and prepend to the next read.
//
// A frame header whose Length is merely larger than what buf
// currently holds is not an error: the frame is still in flight and
// the caller should retry once more bytes arrive. DecodeFrames fails
// with ErrTruncatedFrame only when Length is internally inconsistent
// (smaller than the header itself), since no amount of additional
// data will ever make such a frame well-formed.
func DecodeFrames(buf []byte) (frames []Frame, consumed int, err error) {
	for {
		rest := buf[consumed:]
		if len(rest) < HeaderLen {
			return frames, consumed, nil
		}

		var h Header
		if _, err := h.ReadFrom(bytes.NewReader(rest[:HeaderLen])); err != nil {
			return frames, consumed, err
		}

		if int(h.Length) < HeaderLen {
			return frames, consumed, ErrTruncatedFrame
		}

		if len(rest) < int(h.Length) {
			return frames, consumed, nil
		}

		body := make([]byte, int(h.Length)-HeaderLen)
		copy(body, rest[HeaderLen:h.Length])

		frames = append(frames, Frame{Header: h, Body: body})
		consumed += int(h.Length)
	}
}
