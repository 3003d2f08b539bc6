// Package ofptest provides a mock OpenFlow controller for use in
// end-to-end tests of the switch's ControlPath: it accepts the
// switch's single outbound connection and dispatches the frames it
// receives to a test-supplied Handler.
package ofptest

import (
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/netrack/ofswitch/of"
)

// Server is a mock OpenFlow controller listening on a system-chosen
// port on the loopback interface.
type Server struct {
	// Listener specifies the server listener. Optional; if unset,
	// a loopback listener is created automatically.
	Listener net.Listener

	// Handler serves every frame received from a connected switch.
	Handler of.Handler

	closed bool
	conns  map[of.Conn]struct{}

	mu sync.Mutex
}

// NewServer starts and returns a new mock controller. The caller
// should call Close when finished to shut it down.
func NewServer(handler of.Handler) *Server {
	srv := NewUnstartedServer(handler, nil)
	srv.Start()
	return srv
}

// newLocalListener creates a new listener on the loopback interface
// with a system-chosen port.
func newLocalListener() net.Listener {
	urls := []*url.URL{
		{Scheme: "tcp", Host: "127.0.0.1:0"},
		{Scheme: "tcp6", Host: "[::1]:0"},
	}

	for pos, u := range urls {
		ln, err := net.Listen(u.Scheme, u.Host)
		if err == nil {
			return ln
		}

		if pos == len(urls)-1 {
			panic(fmt.Errorf("ofptest: failed to listen on a port: %v", err))
		}
	}

	return nil
}

// NewUnstartedServer returns a new Server but does not start it.
//
// The caller should call Close when finished to shut it down.
func NewUnstartedServer(handler of.Handler, listener net.Listener) *Server {
	if listener == nil {
		listener = newLocalListener()
	}

	return &Server{
		Listener: listener,
		Handler:  handler,
		conns:    make(map[of.Conn]struct{}),
	}
}

// Addr returns the address the mock controller is listening on.
func (s *Server) Addr() string {
	return s.Listener.Addr().String()
}

// Start starts accepting connections in the background.
func (s *Server) Start() {
	go s.serve()
}

func (s *Server) serve() {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			return
		}

		ofconn := of.NewConn(conn)

		s.mu.Lock()
		s.conns[ofconn] = struct{}{}
		s.mu.Unlock()

		go s.serveConn(ofconn)
	}
}

func (s *Server) serveConn(conn of.Conn) {
	for {
		f, err := conn.Receive()
		if err != nil {
			return
		}

		rw := &responseWriter{conn, f.Header.XID}
		s.Handler.Serve(rw, f)
	}
}

// responseWriter adapts a Conn into the of.ResponseWriter interface
// expected by handlers, pairing replies with the XID of the frame
// being served.
type responseWriter struct {
	conn of.Conn
	xid  uint32
}

func (rw *responseWriter) Send(t of.Type, body []byte) error {
	return rw.conn.Send(of.NewFrame(t, rw.xid, body))
}

func (rw *responseWriter) Flush() error {
	return rw.conn.Flush()
}

// CloseClientConnections closes all open connections accepted by the
// Server.
func (s *Server) CloseClientConnections() {
	s.mu.Lock()
	conns := make([]of.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	ch := make(chan struct{}, len(conns))
	for _, conn := range conns {
		go func(c of.Conn) {
			c.Close()
			ch <- struct{}{}
		}(conn)
	}

	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()

	for range conns {
		select {
		case <-ch:
		case <-timer.C:
			return
		}
	}
}

// Close shuts down the mock controller and closes all connections
// accepted by it.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	s.mu.Unlock()

	s.Listener.Close()
	s.CloseClientConnections()
}
