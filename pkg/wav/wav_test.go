package wav_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/voxguide/voxguide/pkg/wav"
)

func TestHeaderLayout(t *testing.T) {
	h := wav.Header(24000, 16, 1)

	if len(h) != wav.HeaderSize {
		t.Fatalf("expected %d header bytes, got %d", wav.HeaderSize, len(h))
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" {
		t.Error("expected RIFF/WAVE magic")
	}
	if string(h[12:16]) != "fmt " || string(h[36:40]) != "data" {
		t.Error("expected fmt and data chunk markers")
	}

	if got := binary.LittleEndian.Uint16(h[20:22]); got != 1 {
		t.Errorf("expected PCM format tag, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(h[22:24]); got != 1 {
		t.Errorf("expected 1 channel, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(h[24:28]); got != 24000 {
		t.Errorf("expected 24000 sample rate, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(h[28:32]); got != 48000 {
		t.Errorf("expected 48000 byte rate, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(h[34:36]); got != 16 {
		t.Errorf("expected 16 bit depth, got %d", got)
	}

	// Streaming header: zero-length data field
	if got := binary.LittleEndian.Uint32(h[40:44]); got != 0 {
		t.Errorf("expected zero data length in streaming header, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(h[4:8]); got != 36 {
		t.Errorf("expected RIFF size 36 for empty data, got %d", got)
	}
}

func TestEncodeExactLengths(t *testing.T) {
	pcm := bytes.Repeat([]byte{0xAB}, 1000)
	out := wav.Encode(pcm, 24000, 16, 1)

	if len(out) != wav.HeaderSize+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", wav.HeaderSize+len(pcm), len(out))
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != 1000 {
		t.Errorf("expected data length 1000, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[4:8]); got != 1036 {
		t.Errorf("expected RIFF size 1036, got %d", got)
	}
	if !bytes.Equal(out[wav.HeaderSize:], pcm) {
		t.Error("expected PCM payload unchanged after header")
	}
}

func TestFramerHeaderOnce(t *testing.T) {
	chunks := [][]byte{
		bytes.Repeat([]byte{1}, 300),
		bytes.Repeat([]byte{2}, 301),
		bytes.Repeat([]byte{3}, 302),
		{},
		bytes.Repeat([]byte{4}, 7),
	}

	framer := wav.NewFramer(wav.ModeHeaderOnce, 24000, 16, 1)

	var out []byte
	out = append(out, framer.Start()...)
	for _, c := range chunks {
		out = append(out, framer.Frame(c)...)
	}

	var want []byte
	want = append(want, wav.Header(24000, 16, 1)...)
	for _, c := range chunks {
		want = append(want, c...)
	}

	// Output is exactly header + chunks, in order, nothing dropped,
	// duplicated, or reordered.
	if !bytes.Equal(out, want) {
		t.Errorf("framed output mismatch: got %d bytes, want %d", len(out), len(want))
	}
}

func TestFramerStandalone(t *testing.T) {
	framer := wav.NewFramer(wav.ModeStandalone, 24000, 16, 1)

	if start := framer.Start(); len(start) != 0 {
		t.Errorf("expected no stream header in standalone mode, got %d bytes", len(start))
	}

	chunk := bytes.Repeat([]byte{9}, 480)
	framed := framer.Frame(chunk)

	if len(framed) != wav.HeaderSize+len(chunk) {
		t.Fatalf("expected self-describing container, got %d bytes", len(framed))
	}
	if string(framed[0:4]) != "RIFF" {
		t.Error("expected each standalone chunk to start with RIFF magic")
	}
	if got := binary.LittleEndian.Uint32(framed[40:44]); got != 480 {
		t.Errorf("expected data length 480, got %d", got)
	}
	if !bytes.Equal(framed[wav.HeaderSize:], chunk) {
		t.Error("expected chunk preserved inside container")
	}
}

func TestFramerDoesNotMutateChunks(t *testing.T) {
	framer := wav.NewFramer(wav.ModeHeaderOnce, 24000, 16, 1)
	chunk := []byte{1, 2, 3, 4}
	framed := framer.Frame(chunk)

	if !bytes.Equal(framed, chunk) {
		t.Error("expected pass-through framing in header-once mode")
	}
}
