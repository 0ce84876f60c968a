package provider

import "errors"

// Failure taxonomy for the utterance pipeline. Every failure is caught at
// the stage nearest its origin, wrapped onto exactly one of these
// sentinels, and resolved to an ERROR result at the adapter; none escape
// to the host.
var (
	// ErrInsufficientAudio marks an utterance whose accumulated bytes are
	// at or below the minimum threshold. No network call is made.
	ErrInsufficientAudio = errors.New("insufficient audio data")

	// ErrCodecFailure marks a WAV framing or MP3 conversion failure.
	ErrCodecFailure = errors.New("audio codec failure")

	// ErrNoVoiceDetected marks an utterance the silence gate classified as
	// containing no speech. No network call is made.
	ErrNoVoiceDetected = errors.New("no voice detected")

	// ErrNetworkFailure marks a transport or HTTP status failure.
	ErrNetworkFailure = errors.New("transcription network failure")

	// ErrTimeout marks an utterance abandoned at the request deadline.
	ErrTimeout = errors.New("transcription timed out")

	// ErrRemoteRejection marks a well-formed response whose recognition
	// status was not the success sentinel.
	ErrRemoteRejection = errors.New("transcription rejected by remote service")

	// ErrMalformedResponse marks a response lacking the expected fields.
	ErrMalformedResponse = errors.New("malformed transcription response")
)

// FailureKind returns a stable label for the taxonomy member err wraps,
// for metrics and logs.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientAudio):
		return "insufficient_audio"
	case errors.Is(err, ErrCodecFailure):
		return "codec_failure"
	case errors.Is(err, ErrNoVoiceDetected):
		return "no_voice"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRemoteRejection):
		return "remote_rejection"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrNetworkFailure):
		return "network_failure"
	default:
		return "internal"
	}
}
