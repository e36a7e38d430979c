package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestInt16Float32RoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 1, -1, 16384, -16384, 32767, -32768}
	f := Int16ToFloat32(in)
	out := Float32ToInt16(f)

	for i := range in {
		// Round-tripping through the asymmetric scale loses at most one step.
		if d := int(in[i]) - int(out[i]); d > 1 || d < -1 {
			t.Errorf("sample %d: %d round-tripped to %d", i, in[i], out[i])
		}
	}
}

func TestFloat32ToInt16Clamps(t *testing.T) {
	t.Parallel()

	out := Float32ToInt16([]float32{2.0, -2.0})
	if out[0] != 32767 {
		t.Errorf("positive overflow: want 32767, got %d", out[0])
	}
	if out[1] != -32767 {
		t.Errorf("negative overflow: want -32767, got %d", out[1])
	}
}

func TestBytesInt16RoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 42, -42, 32767, -32768}
	got := BytesToInt16s(Int16sToBytes(in))
	if len(got) != len(in) {
		t.Fatalf("length mismatch: want %d, got %d", len(in), len(got))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: want %d, got %d", i, in[i], got[i])
		}
	}
}

func TestResampleMono(t *testing.T) {
	t.Parallel()

	t.Run("identity when rates match", func(t *testing.T) {
		t.Parallel()
		in := []float32{0.1, 0.2, 0.3}
		out := ResampleMono(in, 16000, 16000)
		if len(out) != len(in) {
			t.Fatalf("want %d samples, got %d", len(in), len(out))
		}
	})

	t.Run("48k to 16k thirds the length", func(t *testing.T) {
		t.Parallel()
		in := make([]float32, 960)
		out := ResampleMono(in, 48000, 16000)
		if len(out) != 320 {
			t.Fatalf("want 320 samples, got %d", len(out))
		}
	})

	t.Run("preserves a constant signal", func(t *testing.T) {
		t.Parallel()
		in := make([]float32, 480)
		for i := range in {
			in[i] = 0.5
		}
		out := ResampleMono(in, 48000, 16000)
		for i, s := range out {
			if math.Abs(float64(s)-0.5) > 1e-6 {
				t.Fatalf("sample %d: want 0.5, got %f", i, s)
			}
		}
	})
}

func TestEncodeWAVHeader(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 160)
	wav := EncodeWAV(samples, 16000)

	if len(wav) != 44+320 {
		t.Fatalf("want %d bytes, got %d", 44+320, len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if sr := binary.LittleEndian.Uint32(wav[24:28]); sr != 16000 {
		t.Errorf("sample rate: want 16000, got %d", sr)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels: want 1, got %d", ch)
	}
	if ds := binary.LittleEndian.Uint32(wav[40:44]); ds != 320 {
		t.Errorf("data size: want 320, got %d", ds)
	}
}
