package encoder

import (
	"math"
	"testing"
)

// sineSamples generates a 440 Hz tone, enough signal for the encoder to
// have something non-trivial to compress.
func sineSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(12000 * math.Sin(2*math.Pi*440*float64(i)/float64(SampleRate)))
	}
	return samples
}

func TestFlacEncoder(t *testing.T) {
	samples := sineSamples(SampleRate) // 1 second

	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	var totalFed uint64
	for i := 0; i < len(samples); i += BlockSize {
		end := i + BlockSize
		if end > len(samples) {
			end = len(samples)
		}
		block := samples[i:end]
		if err := enc.EncodeBlock(block); err != nil {
			t.Fatalf("EncodeBlock at offset %d: %v", i, err)
		}
		totalFed += uint64(len(block))
	}

	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if enc.SampleCount() != totalFed {
		t.Errorf("SampleCount = %d, want %d", enc.SampleCount(), totalFed)
	}

	flacData := enc.Bytes()
	if len(flacData) < 4 || string(flacData[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}

	rawSize := len(samples) * 2
	t.Logf("Raw: %d bytes, FLAC: %d bytes (%.1f%% compression)",
		rawSize, len(flacData), (1-float64(len(flacData))/float64(rawSize))*100)
}

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.SampleCount() != 0 {
		t.Errorf("SampleCount = %d, want 0", enc.SampleCount())
	}
	if len(enc.Bytes()) == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestFlacEncoderPartialBlock(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	partial := make([]int16, BlockSize/4)
	for i := range partial {
		partial[i] = int16(i % 1000)
	}

	if err := enc.EncodeBlock(partial); err != nil {
		t.Fatalf("EncodeBlock partial: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.SampleCount() != uint64(len(partial)) {
		t.Errorf("SampleCount = %d, want %d", enc.SampleCount(), len(partial))
	}
}
