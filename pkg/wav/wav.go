// Package wav frames raw PCM into WAV containers, including the streaming
// case where the total audio length is not known when the header is written.
package wav

import (
	"encoding/binary"
)

// HeaderSize is the size of a canonical RIFF/WAVE header with a PCM fmt
// chunk and a data chunk descriptor.
const HeaderSize = 44

// Header returns a streaming-safe WAV header for the given PCM parameters.
// The RIFF and data length fields are zero, which players treat as
// "read until EOF": a consumer reading byte-by-byte without seeking can
// start playback from this header alone.
func Header(sampleRate, bitDepth, channels int) []byte {
	return header(sampleRate, bitDepth, channels, 0)
}

// Encode wraps a complete PCM buffer in a WAV container with exact lengths.
func Encode(pcm []byte, sampleRate, bitDepth, channels int) []byte {
	out := make([]byte, 0, HeaderSize+len(pcm))
	out = append(out, header(sampleRate, bitDepth, channels, len(pcm))...)
	return append(out, pcm...)
}

func header(sampleRate, bitDepth, channels, dataLen int) []byte {
	blockAlign := channels * bitDepth / 8
	byteRate := sampleRate * blockAlign

	buf := make([]byte, HeaderSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitDepth))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	return buf
}

// Mode selects how a Framer wraps chunks.
type Mode int

const (
	// ModeHeaderOnce emits one streaming header, then passes chunks
	// through untouched. This is the low-latency default.
	ModeHeaderOnce Mode = iota

	// ModeStandalone wraps every chunk in its own self-describing
	// container, for clients that decode chunks independently.
	ModeStandalone
)

// Framer turns a PCM chunk sequence into container byte sequences.
// Chunk order in equals chunk order out, and nothing is buffered beyond the
// chunk in hand, so memory stays bounded regardless of total audio length.
type Framer struct {
	mode       Mode
	sampleRate int
	bitDepth   int
	channels   int
}

// NewFramer creates a framer for the given PCM parameters.
func NewFramer(mode Mode, sampleRate, bitDepth, channels int) *Framer {
	return &Framer{
		mode:       mode,
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		channels:   channels,
	}
}

// Start returns the bytes that precede the first chunk: a streaming header
// in ModeHeaderOnce, nothing in ModeStandalone.
func (f *Framer) Start() []byte {
	if f.mode == ModeStandalone {
		return nil
	}
	return Header(f.sampleRate, f.bitDepth, f.channels)
}

// Frame returns the container bytes for one PCM chunk.
func (f *Framer) Frame(chunk []byte) []byte {
	if f.mode == ModeStandalone {
		return Encode(chunk, f.sampleRate, f.bitDepth, f.channels)
	}
	return chunk
}
