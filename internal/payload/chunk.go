// Package payload splits uploaded code into MTU-safe chunks and writes them
// to the Moment write characteristic one at a time.
package payload

// DefaultChunkSize is the largest write the Moment channel reliably accepts
const DefaultChunkSize = 19

// Chunk splits code into consecutive byte slices of at most size bytes.
// Every chunk except possibly the last holds exactly size bytes and the
// chunks concatenate back to code. Empty code yields no chunks.
// A non-positive size falls back to DefaultChunkSize.
func Chunk(code string, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}

	data := []byte(code)
	count := (len(data) + size - 1) / size
	chunks := make([][]byte, 0, count)

	for offset := 0; offset < len(data); offset += size {
		end := min(offset+size, len(data))
		chunks = append(chunks, data[offset:end:end])
	}
	return chunks
}
