package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestPcmToFloat32_Empty(t *testing.T) {
	out := pcmToFloat32(nil)
	if len(out) != 0 {
		t.Fatalf("expected 0 samples, got %d", len(out))
	}
}

func TestPcmToFloat32_SingleSample(t *testing.T) {
	pcm := make([]byte, 2)
	binary.LittleEndian.PutUint16(pcm, uint16(int16(16384))) // 0.5
	out := pcmToFloat32(pcm)
	if len(out) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(out))
	}
	want := float32(16384) / 32768.0
	if math.Abs(float64(out[0]-want)) > 1e-6 {
		t.Errorf("sample = %f; want %f", out[0], want)
	}
}

func TestPcmToFloat32_FullScale(t *testing.T) {
	tests := []struct {
		name  string
		value int16
		want  float32
	}{
		{"max positive", 32767, 32767.0 / 32768.0},
		{"max negative", -32768, -1.0},
		{"zero", 0, 0.0},
		{"mid positive", 16384, 16384.0 / 32768.0},
		{"mid negative", -16384, -16384.0 / 32768.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := make([]byte, 2)
			binary.LittleEndian.PutUint16(pcm, uint16(tt.value))
			out := pcmToFloat32(pcm)
			if math.Abs(float64(out[0]-tt.want)) > 1e-6 {
				t.Errorf("pcmToFloat32(%d) = %f; want %f", tt.value, out[0], tt.want)
			}
		})
	}
}

func TestPcmToFloat32_OddByteCount(t *testing.T) {
	pcm := []byte{0x00, 0x40, 0xFF}
	out := pcmToFloat32(pcm)
	if len(out) != 1 {
		t.Fatalf("expected 1 sample from 3-byte input, got %d", len(out))
	}
}

func TestPcmToFloat32Mono_SingleChannel(t *testing.T) {
	values := []int16{100, -200, 300}
	pcm := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	mono := pcmToFloat32Mono(pcm, 1)
	direct := pcmToFloat32(pcm)
	if len(mono) != len(direct) {
		t.Fatalf("length mismatch: mono=%d, direct=%d", len(mono), len(direct))
	}
	for i := range mono {
		if mono[i] != direct[i] {
			t.Errorf("sample[%d]: mono=%f, direct=%f", i, mono[i], direct[i])
		}
	}
}

func TestPcmToFloat32Mono_Stereo(t *testing.T) {
	values := []int16{1000, 3000, -2000, -4000}
	pcm := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	mono := pcmToFloat32Mono(pcm, 2)
	if len(mono) != 2 {
		t.Fatalf("expected 2 mono samples from 4-sample stereo, got %d", len(mono))
	}
	want0 := (float32(1000)/32768.0 + float32(3000)/32768.0) / 2.0
	if math.Abs(float64(mono[0]-want0)) > 1e-6 {
		t.Errorf("mono[0] = %f; want %f", mono[0], want0)
	}
}

func TestComputeRMS_Silence(t *testing.T) {
	pcm := make([]byte, 320)
	if rms := computeRMS(pcm); rms != 0 {
		t.Errorf("expected RMS 0 for silence, got %f", rms)
	}
}

func TestComputeRMS_Empty(t *testing.T) {
	if rms := computeRMS(nil); rms != 0 {
		t.Errorf("expected RMS 0 for empty buffer, got %f", rms)
	}
}

func TestChunkDurationMs(t *testing.T) {
	// 16000 Hz, mono, 16-bit: 32000 bytes/sec -> 1600 bytes = 50ms
	chunk := make([]byte, 1600)
	if ms := chunkDurationMs(chunk, 16000, 1); ms != 50 {
		t.Errorf("expected 50ms, got %d", ms)
	}
}

func TestChunkDurationMs_InvalidInputs(t *testing.T) {
	if ms := chunkDurationMs(make([]byte, 100), 0, 1); ms != 0 {
		t.Errorf("expected 0 for zero sample rate, got %d", ms)
	}
	if ms := chunkDurationMs(make([]byte, 100), 16000, 0); ms != 0 {
		t.Errorf("expected 0 for zero channels, got %d", ms)
	}
}
