package of

import (
	"bytes"
	"testing"
)

func TestFrameWriteTo(t *testing.T) {
	f := NewFrame(TypeHello, 42, []byte{0xca, 0xfe})

	var buf bytes.Buffer
	n, err := f.WriteTo(&buf)
	if err != nil {
		t.Fatalf("failed to write frame: %s", err)
	}

	want := []byte{0x04, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x00, 0x2a, 0xca, 0xfe}
	if n != int64(len(want)) {
		t.Fatalf("wrote %d bytes, want %d", n, len(want))
	}

	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("wrote % x, want % x", buf.Bytes(), want)
	}
}

func TestDecodeFramesPartial(t *testing.T) {
	buf := []byte{0x04, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x00, 0x01, 0xca}

	frames, consumed, err := DecodeFrames(buf)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(frames) != 0 || consumed != 0 {
		t.Fatalf("expected no frames decoded from a partial buffer, got %d, consumed %d",
			len(frames), consumed)
	}
}

func TestDecodeFramesMultiple(t *testing.T) {
	buf := []byte{
		0x04, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x01,
		0x04, 0x03, 0x00, 0x08, 0x00, 0x00, 0x00, 0x02,
	}

	frames, consumed, err := DecodeFrames(buf)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", consumed, len(buf))
	}
	if len(frames) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(frames))
	}
	if frames[0].Header.XID != 1 || frames[1].Header.XID != 2 {
		t.Fatalf("unexpected XIDs decoded: %v", frames)
	}
	if frames[1].Header.Type != TypeEchoReply {
		t.Fatalf("unexpected type decoded: %v", frames[1].Header.Type)
	}
}

func TestDecodeFramesTruncated(t *testing.T) {
	buf := []byte{0x04, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00}

	_, _, err := DecodeFrames(buf)
	if err != ErrTruncatedFrame {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
}
