package of

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// A Matcher decides whether a handler is interested in processing a
// received frame.
type Matcher interface {
	Match(*Frame) bool
}

// MatcherFunc is an adapter to allow ordinary functions to be used
// as Matcher.
type MatcherFunc func(*Frame) bool

// Match implements Matcher interface.
func (fn MatcherFunc) Match(f *Frame) bool { return fn(f) }

// TypeMatcher matches frames by their header type.
type TypeMatcher Type

// Match implements Matcher interface.
func (t TypeMatcher) Match(f *Frame) bool { return f.Header.Type == Type(t) }

// MultiMatcher builds a Matcher that matches only when every given
// matcher matches.
func MultiMatcher(m ...Matcher) Matcher {
	return MatcherFunc(func(f *Frame) bool {
		for _, matcher := range m {
			if !matcher.Match(f) {
				return false
			}
		}
		return true
	})
}

// ResponseWriter is used by a Handler to construct the frames sent
// back to the controller in reply to a received frame.
type ResponseWriter interface {
	// Send queues a reply frame of the given type, derived from
	// the xid of the request being served, with the given body.
	Send(t Type, body []byte) error

	// Flush writes any frames queued by Send to the connection.
	Flush() error
}

// response is the concrete ResponseWriter passed to handlers while
// serving a single received frame.
type response struct {
	conn Conn
	xid  uint32
}

// Send implements ResponseWriter interface.
func (w *response) Send(t Type, body []byte) error {
	return w.conn.Send(NewFrame(t, w.xid, body))
}

// Flush implements ResponseWriter interface.
func (w *response) Flush() error {
	return w.conn.Flush()
}

// Handler processes a single received frame and optionally writes a
// reply through the given ResponseWriter.
type Handler interface {
	Serve(ResponseWriter, *Frame)
}

// HandlerFunc is an adapter to allow ordinary functions to be used
// as Handler.
type HandlerFunc func(ResponseWriter, *Frame)

// Serve implements Handler interface.
func (fn HandlerFunc) Serve(rw ResponseWriter, f *Frame) { fn(rw, f) }

// DiscardHandler ignores the frame it is given.
var DiscardHandler = HandlerFunc(func(ResponseWriter, *Frame) {})

type muxEntry struct {
	matcher Matcher
	handler Handler

	// once means the handler is removed from the mux after it
	// serves its first matching frame.
	once bool
}

// ServeMux is an OpenFlow frame multiplexer. It matches a received
// frame against a set of registered matchers and dispatches it to
// the first matching handler.
type ServeMux struct {
	mu       sync.RWMutex
	handlers map[Matcher]*muxEntry
}

// NewServeMux allocates a new ServeMux.
func NewServeMux() *ServeMux {
	return &ServeMux{handlers: make(map[Matcher]*muxEntry)}
}

// DefaultHandler is the Handler used for frames that match no
// registered Matcher.
var DefaultHandler Handler = DiscardHandler

func (mux *ServeMux) handle(e *muxEntry) {
	mux.mu.Lock()
	defer mux.mu.Unlock()

	if e.matcher == nil {
		panic("of: nil matcher")
	}
	if e.handler == nil {
		panic("of: nil handler")
	}
	if _, dup := mux.handlers[e.matcher]; dup {
		panic(fmt.Errorf("of: multiple registrations for %v", e.matcher))
	}

	mux.handlers[e.matcher] = e
}

// Handle registers the handler for frames matched by m.
func (mux *ServeMux) Handle(m Matcher, h Handler) {
	mux.handle(&muxEntry{m, h, false})
}

// HandleOnce registers a handler that serves at most one matching
// frame before being removed from the mux.
func (mux *ServeMux) HandleOnce(m Matcher, h Handler) {
	mux.handle(&muxEntry{m, h, true})
}

// Handler returns the Handler registered for the given frame, or
// DefaultHandler when no registered Matcher matches.
func (mux *ServeMux) Handler(f *Frame) Handler {
	mux.mu.RLock()
	var matcher Matcher
	var entry *muxEntry
	var matched bool

	for matcher, entry = range mux.handlers {
		if matched = matcher.Match(f); matched {
			break
		}
	}
	mux.mu.RUnlock()

	if !matched {
		return DefaultHandler
	}
	if !entry.once {
		return entry.handler
	}

	mux.mu.Lock()
	defer mux.mu.Unlock()

	if _, ok := mux.handlers[matcher]; !ok {
		return DiscardHandler
	}

	delete(mux.handlers, matcher)
	return entry.handler
}

// Serve implements Handler interface.
func (mux *ServeMux) Serve(rw ResponseWriter, f *Frame) {
	mux.Handler(f).Serve(rw, f)
}

// TypeMux is a ServeMux specialized for dispatch on the frame's
// OpenFlow message type.
type TypeMux struct {
	mux *ServeMux
}

// NewTypeMux allocates a new TypeMux.
func NewTypeMux() *TypeMux {
	return &TypeMux{NewServeMux()}
}

// Handle registers the handler for the given message type.
func (mux *TypeMux) Handle(t Type, h Handler) {
	mux.mux.Handle(TypeMatcher(t), h)
}

// HandleOnce registers a disposable handler for the given message
// type.
func (mux *TypeMux) HandleOnce(t Type, h Handler) {
	mux.mux.HandleOnce(TypeMatcher(t), h)
}

// HandleFunc registers a handler function for the given message
// type.
func (mux *TypeMux) HandleFunc(t Type, fn HandlerFunc) {
	mux.Handle(t, fn)
}

// Serve implements Handler interface.
func (mux *TypeMux) Serve(rw ResponseWriter, f *Frame) {
	mux.mux.Serve(rw, f)
}

// BytesOf drains a WriterTo into a byte slice, used by callers
// constructing a frame body from an ofp message.
func BytesOf(wt io.WriterTo) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
