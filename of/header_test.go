package of

import (
	"bytes"
	"testing"
)

func TestHeaderWriteTo(t *testing.T) {
	h := Header{Version: ProtocolVersion, Type: TypeFeaturesRequest, Length: 8, XID: 7}

	var buf bytes.Buffer
	if _, err := h.WriteTo(&buf); err != nil {
		t.Fatalf("failed to write header: %s", err)
	}

	want := []byte{0x04, 0x05, 0x00, 0x08, 0x00, 0x00, 0x00, 0x07}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("wrote % x, want % x", buf.Bytes(), want)
	}
}

func TestHeaderReadFrom(t *testing.T) {
	buf := bytes.NewReader([]byte{0x04, 0x06, 0x00, 0x08, 0x00, 0x00, 0x00, 0x09})

	var h Header
	if _, err := h.ReadFrom(buf); err != nil {
		t.Fatalf("failed to read header: %s", err)
	}

	if h.Type != TypeFeaturesReply || h.XID != 9 {
		t.Fatalf("unexpected header decoded: %+v", h)
	}
}
