package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

// buildWAV assembles a minimal RIFF/WAVE file with interleaved s16le
// frames.
func buildWAV(rate, channels int, frames [][]int16) []byte {
	var data bytes.Buffer
	for _, frame := range frames {
		for _, v := range frame {
			binary.Write(&data, binary.LittleEndian, v)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))      // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))              // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func TestDecodeMono(t *testing.T) {
	wav := buildWAV(16000, 1, [][]int16{{0}, {16384}, {-32768}, {32767}})
	samples, rate, err := Decode(bytes.NewReader(wav))
	if err != nil {
		t.Fatal(err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	want := []float64{0, 0.5, -1, 32767.0 / 32768.0}
	if len(samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if math.Abs(samples[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestDecodeStereoDownmix(t *testing.T) {
	wav := buildWAV(44100, 2, [][]int16{{16384, -16384}, {8192, 8192}})
	samples, rate, err := Decode(bytes.NewReader(wav))
	if err != nil {
		t.Fatal(err)
	}
	if rate != 44100 {
		t.Errorf("rate = %d, want 44100", rate)
	}
	want := []float64{0, 0.25}
	for i := range want {
		if math.Abs(samples[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestDecodeSkipsUnknownChunks(t *testing.T) {
	wav := buildWAV(8000, 1, [][]int16{{100}, {200}})
	// Splice a LIST chunk between fmt and data.
	fmtEnd := 12 + 8 + 16
	extra := append([]byte("LIST"), 0x03, 0, 0, 0, 'a', 'b', 'c', 0 /* pad */)
	spliced := append(append(append([]byte{}, wav[:fmtEnd]...), extra...), wav[fmtEnd:]...)

	samples, _, err := Decode(bytes.NewReader(spliced))
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Errorf("got %d samples, want 2", len(samples))
	}
}

func TestDecodeRejectsNonWAV(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte("ID3\x04definitely not a wav")))
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("error = %v, want ErrNotWAV", err)
	}
}

func TestDecodeRejectsTruncatedFmtChunk(t *testing.T) {
	// A fmt chunk shorter than the fixed PCM fields must error, not
	// panic on out-of-range indexing.
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(4))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))

	_, _, err := Decode(bytes.NewReader(buf.Bytes()))
	if err == nil {
		t.Fatal("expected error for 4-byte fmt chunk")
	}
	if !strings.Contains(err.Error(), "fmt chunk") {
		t.Errorf("error %q does not name the fmt chunk", err.Error())
	}
}

func TestDecodeRejectsOversizedChunk(t *testing.T) {
	// A declared chunk size near the 32-bit limit must be rejected up
	// front instead of being trusted as an allocation size.
	wav := buildWAV(16000, 1, [][]int16{{100}})
	dataSizeOff := len(wav) - 2 - 4 // data chunk size field
	binary.LittleEndian.PutUint32(wav[dataSizeOff:], 0xFFFFFFF0)

	_, _, err := Decode(bytes.NewReader(wav))
	if err == nil {
		t.Fatal("expected error for oversized data chunk")
	}
	if !strings.Contains(err.Error(), "refusing") {
		t.Errorf("error %q does not indicate the size cap", err.Error())
	}
}

func TestDecodeRejectsNonPCM(t *testing.T) {
	wav := buildWAV(16000, 1, [][]int16{{0}})
	// Flip the format code to 3 (IEEE float).
	wav[20] = 3
	_, _, err := Decode(bytes.NewReader(wav))
	if err == nil {
		t.Error("expected error for non-PCM format code")
	}
}

func TestResampleIdentity(t *testing.T) {
	in := []float64{0.1, 0.2, 0.3}
	out, err := Resample(in, 16000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("identity resample changed length: %d -> %d", len(in), len(out))
	}
}

func TestIsSupported(t *testing.T) {
	for _, ext := range []string{".wav", ".WAV", ".mp3", ".flac", ".m4a", ".ogg", ".aac"} {
		if !IsSupported(ext) {
			t.Errorf("IsSupported(%q) = false", ext)
		}
	}
	for _, ext := range []string{".txt", ".exe", "", "wav"} {
		if IsSupported(ext) {
			t.Errorf("IsSupported(%q) = true", ext)
		}
	}
}
