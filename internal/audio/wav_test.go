package audio

import (
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i % 256)
	}

	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != 44+len(samples)*2 {
		t.Errorf("expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d mismatch: %d != %d", i, decoded[i], samples[i])
		}
	}
}

func TestEncodeWAVRejectsEmptyInput(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1, 2, 3}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestPCMByteConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}

	data := SamplesToBytes(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*2, len(data))
	}

	back := BytesToSamples(data)
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d mismatch: %d != %d", i, back[i], samples[i])
		}
	}
}

func TestDurationSeconds(t *testing.T) {
	// One second of mono PCM-16 at 16kHz is 32000 bytes.
	pcm := make([]byte, 32000)

	if got := DurationSeconds(pcm, 16000); got != 1.0 {
		t.Errorf("expected 1.0s, got %f", got)
	}
	if got := DurationSeconds(pcm, 0); got != 0 {
		t.Errorf("expected 0 for invalid sample rate, got %f", got)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file")); err == nil {
		t.Error("expected error for short input")
	}

	garbage := make([]byte, 64)
	if _, _, err := DecodeWAV(garbage); err == nil {
		t.Error("expected error for missing RIFF header")
	}
}
