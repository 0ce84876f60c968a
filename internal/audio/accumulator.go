package audio

import (
	"context"
	"fmt"
	"io"
)

// Metadata describes the PCM format of an utterance. It is supplied once
// by the caller at the start of a session and never changes afterwards.
type Metadata struct {
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
	SampleRate int    `json:"sample_rate"`
	Codec      string `json:"codec"`
}

// Validate checks that the metadata describes a PCM format the pipeline
// can frame into a WAV container.
func (m Metadata) Validate() error {
	if m.Channels < 1 || m.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", m.Channels)
	}

	if m.BitDepth != 8 && m.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 8 or 16, got %d", m.BitDepth)
	}

	if m.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", m.SampleRate)
	}

	return nil
}

// BytesPerSecond returns the PCM data rate implied by the metadata.
func (m Metadata) BytesPerSecond() int {
	return m.SampleRate * m.Channels * m.BitDepth / 8
}

// ChunkStream is a pull-based sequence of binary audio chunks. Next blocks
// until the producer delivers the next chunk and returns io.EOF once the
// capture session has ended. Producers may suspend between chunks for as
// long as the host keeps recording; the returned slice is owned by the
// caller.
type ChunkStream interface {
	Next(ctx context.Context) ([]byte, error)
}

// Accumulate drains a chunk stream into a single contiguous buffer.
// Accumulation itself cannot fail; the only error paths are context
// cancellation and a failing producer. Downstream stages validate whether
// the accumulated buffer is sufficient.
func Accumulate(ctx context.Context, stream ChunkStream) ([]byte, error) {
	var data []byte

	for {
		chunk, err := stream.Next(ctx)
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read audio chunk: %w", err)
		}

		data = append(data, chunk...)
	}
}

// ReaderStream adapts an io.Reader into a ChunkStream. Each call to Next
// returns one read of up to chunkSize bytes.
type ReaderStream struct {
	reader    io.Reader
	chunkSize int
}

// NewReaderStream creates a ChunkStream that reads chunks of up to
// chunkSize bytes from r.
func NewReaderStream(r io.Reader, chunkSize int) *ReaderStream {
	if chunkSize <= 0 {
		chunkSize = 4096
	}

	return &ReaderStream{
		reader:    r,
		chunkSize: chunkSize,
	}
}

// Next reads the next chunk from the underlying reader. It honors context
// cancellation between reads but cannot interrupt a read in progress.
func (s *ReaderStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, s.chunkSize)
	n, err := s.reader.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}

	if err == nil {
		err = io.EOF
	}
	return nil, err
}
