package audiocodec

// SilenceChunks splits durationMs of 16-bit silence at sampleRateHz into
// chunkSizeSamples-sized PCM16 chunks, with a final short chunk for any
// remainder. A non-positive duration yields no chunks.
func SilenceChunks(durationMs, sampleRateHz, chunkSizeSamples int) [][]byte {
	if durationMs <= 0 {
		return nil
	}

	totalSamples := (durationMs * sampleRateHz) / 1000
	fullChunk := make([]byte, chunkSizeSamples*2)

	fullChunks := totalSamples / chunkSizeSamples
	remainder := totalSamples % chunkSizeSamples

	chunks := make([][]byte, 0, fullChunks+1)
	for i := 0; i < fullChunks; i++ {
		chunks = append(chunks, fullChunk)
	}
	if remainder > 0 {
		chunks = append(chunks, make([]byte, remainder*2))
	}
	return chunks
}
