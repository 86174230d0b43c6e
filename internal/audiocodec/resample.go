// Package audiocodec converts streaming PCM16 mono audio between sample
// rates and synthesizes silence tails, the way the edge protocol and the
// Gemini Live session need it.
package audiocodec

import (
	"encoding/binary"
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts 16-bit little-endian mono PCM from srcRateHz to
// dstRateHz using polyphase rational resampling, matching the streaming
// quality tradeoffs the original implementation made with
// scipy.signal.resample_poly (good behavior across repeated chunk
// boundaries, no FFT seams).
//
// Resample is a pure function: equal rates return the input unchanged,
// and an empty buffer resamples to an empty buffer.
func Resample(pcm []byte, srcRateHz, dstRateHz int) ([]byte, error) {
	if srcRateHz == dstRateHz {
		return pcm, nil
	}
	if len(pcm) == 0 {
		return []byte{}, nil
	}
	if srcRateHz <= 0 || dstRateHz <= 0 {
		return nil, fmt.Errorf("audiocodec: resample: invalid rates src=%d dst=%d", srcRateHz, dstRateHz)
	}

	samples := bytesToNormalizedSamples(pcm)

	g := gcd(srcRateHz, dstRateHz)
	up := dstRateHz / g
	down := srcRateHz / g

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRateHz),
		OutputRate: float64(dstRateHz),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audiocodec: resample: build resampler: %w", err)
	}

	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("audiocodec: resample: process: %w", err)
	}

	want := (len(samples) * up) / down
	out = fitLength(out, want)

	return normalizedSamplesToBytes(out), nil
}

// fitLength pads with zeros or truncates out to exactly n samples. The
// underlying resampler's exact output length can be off by a sample or two
// at buffer edges; callers (and the testable length invariant) expect the
// rational up/down length exactly.
func fitLength(out []float64, n int) []float64 {
	if len(out) == n {
		return out
	}
	if len(out) > n {
		return out[:n]
	}
	padded := make([]float64, n)
	copy(padded, out)
	return padded
}

// bytesToNormalizedSamples converts little-endian PCM16 to float64 samples
// normalized to [-1.0, 1.0], the input range the resampler expects.
func bytesToNormalizedSamples(pcm []byte) []float64 {
	n := len(pcm) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float64(v) / 32768.0
	}
	return samples
}

func normalizedSamplesToBytes(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		sample := clampInt16(v * 32767.0)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

func clampInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
