package of

import (
	"net"
	"sync"
	"testing"
	"time"
)

type dummyAddr string

func (a dummyAddr) Network() string { return string(a) }
func (a dummyAddr) String() string  { return string(a) }

// dummyConn is a minimal Conn used to observe what a Handler sends
// without going over a real network connection.
type dummyConn struct {
	sent []*Frame
}

func (c *dummyConn) Read(b []byte) (int, error)          { return 0, nil }
func (c *dummyConn) Write(b []byte) (int, error)          { return len(b), nil }
func (c *dummyConn) Close() error                         { return nil }
func (c *dummyConn) LocalAddr() net.Addr                  { return dummyAddr("") }
func (c *dummyConn) RemoteAddr() net.Addr                 { return dummyAddr("") }
func (c *dummyConn) SetDeadline(_ time.Time) error        { return nil }
func (c *dummyConn) SetReadDeadline(_ time.Time) error    { return nil }
func (c *dummyConn) SetWriteDeadline(_ time.Time) error   { return nil }
func (c *dummyConn) Receive() (*Frame, error)             { return nil, nil }
func (c *dummyConn) Flush() error                         { return nil }

func (c *dummyConn) Send(f *Frame) error {
	c.sent = append(c.sent, f)
	return nil
}

func TestMultiMatcher(t *testing.T) {
	txn := uint32(42)

	byType := MatcherFunc(func(f *Frame) bool {
		return f.Header.Type == TypeHello
	})
	byXID := MatcherFunc(func(f *Frame) bool {
		return f.Header.XID == txn
	})

	matcher := MultiMatcher(byType, byXID)

	f := NewFrame(TypePacketIn, txn, nil)
	if matcher.Match(f) {
		t.Errorf("matched frame of a different type")
	}

	f = NewFrame(TypeHello, txn+1, nil)
	if matcher.Match(f) {
		t.Errorf("matched frame with a different xid")
	}

	f = NewFrame(TypeHello, txn, nil)
	if !matcher.Match(f) {
		t.Errorf("frame was expected to match")
	}
}

func TestTypeMuxDispatch(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	mux := NewTypeMux()
	mux.HandleFunc(TypeHello, func(rw ResponseWriter, f *Frame) {
		defer wg.Done()
		rw.Send(TypeEchoReply, []byte{0, 0, 0, 0})
	})

	mux.HandleFunc(TypeEchoRequest, func(rw ResponseWriter, f *Frame) {
		t.Errorf("this handler should never be called")
	})

	conn := &dummyConn{}
	rw := &response{conn: conn, xid: 7}

	mux.Serve(rw, NewFrame(TypeHello, 7, nil))
	wg.Wait()

	if len(conn.sent) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(conn.sent))
	}
	if conn.sent[0].Header.Type != TypeEchoReply {
		t.Fatalf("unexpected reply type: %v", conn.sent[0].Header.Type)
	}
}

func TestTypeMuxOnceRemovesHandler(t *testing.T) {
	mux := NewTypeMux()

	var calls int
	mux.HandleOnce(TypeHello, HandlerFunc(func(ResponseWriter, *Frame) {
		calls++
	}))

	conn := &dummyConn{}
	rw := &response{conn: conn, xid: 1}

	mux.Serve(rw, NewFrame(TypeHello, 1, nil))
	mux.Serve(rw, NewFrame(TypeHello, 1, nil))

	if calls != 1 {
		t.Fatalf("once-handler called %d times, want 1", calls)
	}
}

func TestBytesOf(t *testing.T) {
	f := NewFrame(TypeHello, 1, []byte{0xaa})

	b, err := BytesOf(f)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(b) != HeaderLen+1 {
		t.Fatalf("got %d bytes, want %d", len(b), HeaderLen+1)
	}
}
