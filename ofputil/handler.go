package ofputil

import (
	"bytes"

	log "github.com/sirupsen/logrus"

	"github.com/netrack/ofswitch/of"
	"github.com/netrack/ofswitch/ofp"
)

// EchoHandler returns a handler that replies to every ECHO_REQUEST
// frame with an ECHO_REPLY carrying the same data, echoing the
// request's XID.
//
// The optional handler h, when not nil, is invoked after the reply
// is queued.
func EchoHandler(h of.Handler) of.Handler {
	fn := func(rw of.ResponseWriter, f *of.Frame) {
		var req ofp.EchoRequest
		if _, err := req.ReadFrom(bytes.NewReader(f.Body)); err != nil {
			log.WithError(err).Warn("ofputil: failed to parse echo request")
			return
		}

		body, err := of.BytesOf(&ofp.EchoReply{Data: req.Data})
		if err != nil {
			log.WithError(err).Warn("ofputil: failed to encode echo reply")
			return
		}

		if err := rw.Send(of.TypeEchoReply, body); err != nil {
			log.WithError(err).Warn("ofputil: failed to send echo reply")
			return
		}

		if h != nil {
			h.Serve(rw, f)
		}
	}

	return of.HandlerFunc(fn)
}

// HelloHandler returns a handler that replies to a HELLO frame with
// a HELLO of the switch's own version, echoing the request's XID.
//
// The optional handler h, when not nil, is invoked after the reply
// is queued.
func HelloHandler(h of.Handler) of.Handler {
	fn := func(rw of.ResponseWriter, f *of.Frame) {
		if err := rw.Send(of.TypeHello, nil); err != nil {
			log.WithError(err).Warn("ofputil: failed to send hello")
			return
		}

		if h != nil {
			h.Serve(rw, f)
		}
	}

	return of.HandlerFunc(fn)
}
