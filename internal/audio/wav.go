// Package audio loads recordings into the mono 16 kHz float waveform
// the feature extractor expects.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNotWAV indicates the input does not carry a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// maxChunkBytes caps how much a single chunk's declared size may ask
// us to allocate. Chunk sizes come straight from the file, so a
// corrupt or hostile header must not drive a multi-GiB allocation.
const maxChunkBytes = 1 << 30

// fmtChunkMinBytes is the size of the fixed PCM fmt fields through
// bits-per-sample.
const fmtChunkMinBytes = 16

// Decode reads a 16-bit PCM WAV stream and returns mono samples
// normalized to [-1, 1) along with the file's sample rate. Multi-channel
// audio is downmixed by averaging the channels.
//
// Samples map to floats by division by 32768 so the full int16 range
// [-32768, 32767] lands strictly within [-1, 1).
func Decode(r io.Reader) (samples []float64, sampleRate int, err error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("audio: read header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var (
		channels      int
		bitsPerSample int
		haveFmt       bool
	)

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, 0, fmt.Errorf("audio: no data chunk found")
			}
			return nil, 0, fmt.Errorf("audio: read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int(binary.LittleEndian.Uint32(chunk[4:8]))
		if size > maxChunkBytes {
			return nil, 0, fmt.Errorf("audio: %s chunk declares %d bytes, refusing to read more than %d", id, size, maxChunkBytes)
		}

		switch id {
		case "fmt ":
			if size < fmtChunkMinBytes {
				return nil, 0, fmt.Errorf("audio: fmt chunk is %d bytes, want at least %d", size, fmtChunkMinBytes)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			if format != 1 { // PCM
				return nil, 0, fmt.Errorf("audio: unsupported WAV format code %d, only 16-bit PCM is supported", format)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			if bitsPerSample != 16 {
				return nil, 0, fmt.Errorf("audio: unsupported bit depth %d, only 16-bit PCM is supported", bitsPerSample)
			}
			if channels < 1 {
				return nil, 0, fmt.Errorf("audio: invalid channel count %d", channels)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("audio: data chunk before fmt chunk")
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("audio: read data chunk: %w", err)
			}
			return decodePCM16(body, channels), sampleRate, nil

		default:
			// Skip unknown chunks (LIST, fact, ...). Chunk bodies are
			// word-aligned.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, 0, fmt.Errorf("audio: skip %s chunk: %w", id, err)
			}
		}
	}
}

// decodePCM16 converts interleaved s16le frames to mono float64
// samples, averaging channels.
func decodePCM16(data []byte, channels int) []float64 {
	frameBytes := 2 * channels
	n := len(data) / frameBytes
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*2
			v := int16(uint16(data[off]) | uint16(data[off+1])<<8)
			sum += int32(v)
		}
		samples[i] = float64(sum) / float64(channels) / 32768.0
	}
	return samples
}
