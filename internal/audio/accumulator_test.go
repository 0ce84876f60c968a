package audio

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

// sliceStream delivers a fixed set of chunks, optionally pausing between
// them like a host that is still capturing.
type sliceStream struct {
	chunks [][]byte
	index  int
	delay  time.Duration
}

func (s *sliceStream) Next(ctx context.Context) ([]byte, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.index >= len(s.chunks) {
		return nil, io.EOF
	}

	chunk := s.chunks[s.index]
	s.index++
	return chunk, nil
}

func TestAccumulate(t *testing.T) {
	stream := &sliceStream{chunks: [][]byte{
		[]byte("abc"),
		[]byte("def"),
		[]byte("gh"),
	}}

	data, err := Accumulate(context.Background(), stream)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	if !bytes.Equal(data, []byte("abcdefgh")) {
		t.Errorf("Expected concatenation in order, got %q", data)
	}
}

func TestAccumulateEmptyStream(t *testing.T) {
	data, err := Accumulate(context.Background(), &sliceStream{})
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	if len(data) != 0 {
		t.Errorf("Expected empty buffer, got %d bytes", len(data))
	}
}

func TestAccumulateContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := &sliceStream{
		chunks: [][]byte{[]byte("abc")},
		delay:  10 * time.Millisecond,
	}

	if _, err := Accumulate(ctx, stream); err == nil {
		t.Error("Expected error from cancelled context")
	}
}

func TestReaderStream(t *testing.T) {
	reader := strings.NewReader("hello world")
	stream := NewReaderStream(reader, 4)

	data, err := Accumulate(context.Background(), stream)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	if string(data) != "hello world" {
		t.Errorf("Expected %q, got %q", "hello world", data)
	}
}

func TestReaderStreamChunking(t *testing.T) {
	reader := bytes.NewReader(make([]byte, 10))
	stream := NewReaderStream(reader, 4)

	sizes := []int{}
	for {
		chunk, err := stream.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		sizes = append(sizes, len(chunk))
	}

	total := 0
	for _, n := range sizes {
		if n > 4 {
			t.Errorf("Chunk exceeds chunk size: %d", n)
		}
		total += n
	}

	if total != 10 {
		t.Errorf("Expected 10 bytes total, got %d", total)
	}
}

func TestMetadataValidate(t *testing.T) {
	tests := []struct {
		name    string
		md      Metadata
		wantErr bool
	}{
		{"valid mono 16-bit", Metadata{Channels: 1, BitDepth: 16, SampleRate: 16000}, false},
		{"valid stereo 8-bit", Metadata{Channels: 2, BitDepth: 8, SampleRate: 8000}, false},
		{"zero channels", Metadata{Channels: 0, BitDepth: 16, SampleRate: 16000}, true},
		{"too many channels", Metadata{Channels: 3, BitDepth: 16, SampleRate: 16000}, true},
		{"unsupported bit depth", Metadata{Channels: 1, BitDepth: 24, SampleRate: 16000}, true},
		{"zero sample rate", Metadata{Channels: 1, BitDepth: 16, SampleRate: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.md.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
