package audiocodec

import (
	"bytes"
	"testing"
)

func TestResampleSameRateIsNoop(t *testing.T) {
	data := make([]byte, 200) // 100 zero samples
	out, err := Resample(data, 16000, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("expected unchanged buffer, got %d bytes", len(out))
	}
}

func TestResampleUpsample16to24(t *testing.T) {
	data := make([]byte, 16*2)
	out, err := Resample(data, 16000, 24000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 24*2 {
		t.Fatalf("expected %d bytes, got %d", 24*2, len(out))
	}
}

func TestResampleDownsample24to16(t *testing.T) {
	data := make([]byte, 24*2)
	out, err := Resample(data, 24000, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 16*2 {
		t.Fatalf("expected %d bytes, got %d", 16*2, len(out))
	}
}

func TestResampleEmptyBuffer(t *testing.T) {
	out, err := Resample(nil, 16000, 24000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(out))
	}
}

func TestSilenceChunksExactDivision(t *testing.T) {
	chunks := SilenceChunks(100, 16000, 160)
	if len(chunks) != 10 {
		t.Fatalf("expected 10 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 320 {
		t.Fatalf("expected 320 bytes per chunk, got %d", len(chunks[0]))
	}
	zero := make([]byte, 320)
	for i, c := range chunks {
		if !bytes.Equal(c, zero) {
			t.Fatalf("chunk %d not silent", i)
		}
	}
}

func TestSilenceChunksWithRemainder(t *testing.T) {
	// 150ms @ 16kHz = 2400 samples; chunkSize 1024 -> 2 full + remainder 352
	chunks := SilenceChunks(150, 16000, 1024)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[2]) != 352*2 {
		t.Fatalf("expected remainder chunk of %d bytes, got %d", 352*2, len(chunks[2]))
	}
}

func TestSilenceChunksNonPositiveDuration(t *testing.T) {
	if chunks := SilenceChunks(0, 16000, 160); chunks != nil {
		t.Fatalf("expected nil for zero duration, got %d chunks", len(chunks))
	}
	if chunks := SilenceChunks(-10, 16000, 160); chunks != nil {
		t.Fatalf("expected nil for negative duration, got %d chunks", len(chunks))
	}
}
