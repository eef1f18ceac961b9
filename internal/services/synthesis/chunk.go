package synthesis

// DefaultChunkSize 出站音频分片大小，8kHz mulaw 下约 400ms
const DefaultChunkSize = 3200

// Chunk 按固定大小切分音频，最后一片可能较短，分片共享原切片内存
func Chunk(audio []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(audio) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(audio)+size-1)/size)
	for start := 0; start < len(audio); start += size {
		end := start + size
		if end > len(audio) {
			end = len(audio)
		}
		chunks = append(chunks, audio[start:end:end])
	}
	return chunks
}
