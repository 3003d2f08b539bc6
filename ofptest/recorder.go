package ofptest

import "github.com/netrack/ofswitch/of"

// ResponseRecorder is an of.ResponseWriter implementation that
// records the frames sent through it, for use in handler unit tests
// that have no need for a real connection.
type ResponseRecorder struct {
	// Sent holds every frame queued by a call to Send, in order.
	Sent []*of.Frame

	flushed int
}

// NewRecorder returns an initialized ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{}
}

// Send implements of.ResponseWriter interface.
func (rr *ResponseRecorder) Send(t of.Type, body []byte) error {
	rr.Sent = append(rr.Sent, &of.Frame{Header: of.Header{Type: t}, Body: body})
	return nil
}

// Flush implements of.ResponseWriter interface.
func (rr *ResponseRecorder) Flush() error {
	rr.flushed++
	return nil
}

// First returns the first recorded frame, or nil if none were sent.
func (rr *ResponseRecorder) First() *of.Frame {
	if len(rr.Sent) == 0 {
		return nil
	}
	return rr.Sent[0]
}
