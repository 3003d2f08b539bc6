package ofptest

import (
	"bytes"
	"fmt"
	"log"

	"github.com/netrack/ofswitch/of"
	"github.com/netrack/ofswitch/ofp"
)

func ExampleServer() {
	ts := NewServer(of.HandlerFunc(func(w of.ResponseWriter, f *of.Frame) {
		body, _ := of.BytesOf(&ofp.EchoReply{Data: []byte("pong")})
		w.Send(of.TypeEchoReply, body)
		w.Flush()
	}))

	defer ts.Close()

	conn, err := of.Dial("tcp", ts.Addr())
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	body, _ := of.BytesOf(&ofp.EchoRequest{Data: []byte("ping")})
	conn.Send(of.NewFrame(of.TypeEchoRequest, 1, body))
	conn.Flush()

	resp, err := conn.Receive()
	if err != nil {
		log.Fatal(err)
	}

	var echoResp ofp.EchoReply
	echoResp.ReadFrom(bytes.NewReader(resp.Body))

	fmt.Printf("%s", echoResp.Data)
	// Output: pong
}
