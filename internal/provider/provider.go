package provider

import (
	"context"
	"fmt"

	"github.com/rs-tuned/stt-audio-service/internal/audio"
)

// ResultState is the terminal state of an utterance.
type ResultState int

const (
	// StateError is the terminal state for every taxonomy failure.
	StateError ResultState = iota
	// StateSuccess is the terminal state for a valid transcript.
	StateSuccess
)

// String returns the lowercase name of the state.
func (s ResultState) String() string {
	if s == StateSuccess {
		return "success"
	}
	return "error"
}

// MarshalText implements encoding.TextMarshaler so results serialize with
// readable states.
func (s ResultState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, decoding the
// representation produced by MarshalText.
func (s *ResultState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "success":
		*s = StateSuccess
	case "error":
		*s = StateError
	default:
		return fmt.Errorf("unknown result state %q", text)
	}
	return nil
}

// Result is the terminal value returned to the host for one utterance.
// It is never mutated after construction.
type Result struct {
	Text  string      `json:"text"`
	State ResultState `json:"state"`
}

// SuccessResult builds a SUCCESS result carrying the transcript.
func SuccessResult(text string) Result {
	return Result{Text: text, State: StateSuccess}
}

// ErrorResult builds the ERROR result. It always carries an empty
// transcript.
func ErrorResult() Result {
	return Result{State: StateError}
}

// AudioFormat identifies a supported container format.
type AudioFormat string

// AudioCodec identifies a supported audio codec.
type AudioCodec string

const (
	FormatWAV AudioFormat = "wav"
	FormatOGG AudioFormat = "ogg"

	CodecPCM  AudioCodec = "pcm"
	CodecOpus AudioCodec = "opus"
)

// Provider is the capability surface the host platform consumes: the
// supported capture parameters plus one operation that turns a metadata
// block and a chunk stream into a terminal result. ProcessAudioStream
// never returns an error; every failure resolves to an ERROR result.
type Provider interface {
	SupportedLanguages() []string
	SupportedFormats() []AudioFormat
	SupportedCodecs() []AudioCodec
	SupportedBitRates() []int
	SupportedSampleRates() []int
	SupportedChannels() []int

	ProcessAudioStream(ctx context.Context, md audio.Metadata, stream audio.ChunkStream) Result
}
