package ofputil

import (
	"bytes"
	"testing"

	"github.com/netrack/ofswitch/of"
	"github.com/netrack/ofswitch/ofp"
	"github.com/netrack/ofswitch/ofptest"
)

func TestHelloHandler(t *testing.T) {
	rw := ofptest.NewRecorder()
	h := HelloHandler(nil)

	f := of.NewFrame(of.TypeHello, 42, nil)
	h.Serve(rw, f)

	resp := rw.First()
	if resp == nil {
		t.Fatal("expected a reply to be sent")
	}

	if resp.Header.Type != of.TypeHello {
		t.Errorf("hello message expected, got: %d", resp.Header.Type)
	}
}

func TestEchoHandler(t *testing.T) {
	rw := ofptest.NewRecorder()
	h := EchoHandler(nil)

	body, err := of.BytesOf(&ofp.EchoRequest{Data: []byte{1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("failed to encode echo request: %s", err)
	}

	f := of.NewFrame(of.TypeEchoRequest, 43, body)
	h.Serve(rw, f)

	resp := rw.First()
	if resp == nil {
		t.Fatal("expected a reply to be sent")
	}

	if resp.Header.Type != of.TypeEchoReply {
		t.Errorf("echo reply message expected, got: %d", resp.Header.Type)
	}

	var reply ofp.EchoReply
	if _, err := reply.ReadFrom(bytes.NewReader(resp.Body)); err != nil {
		t.Fatalf("failed to decode echo reply: %s", err)
	}

	if !bytes.Equal(reply.Data, []byte{1, 2, 3, 4}) {
		t.Errorf("echo data changed: %v", reply.Data)
	}
}
