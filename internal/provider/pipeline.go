package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs-tuned/stt-audio-service/internal/audio"
	"github.com/rs-tuned/stt-audio-service/internal/codec"
	"github.com/rs-tuned/stt-audio-service/internal/metrics"
	"github.com/rs-tuned/stt-audio-service/internal/transcription"
	"github.com/rs-tuned/stt-audio-service/internal/vad"
)

// Config contains pipeline configuration.
type Config struct {
	Languages         []string
	MinUtteranceBytes int

	// StreamingTransport begins the recognition request once the minimum
	// byte threshold is crossed, while chunks are still arriving. It only
	// takes effect when neither the silence gate nor the MP3 export is
	// configured, since both need the complete utterance first.
	StreamingTransport bool
}

// Pipeline implements Provider. Each invocation runs one utterance through
// Receiving, Validating, Encoding, SilenceCheck, Transmitting and
// Completed; no state is shared between concurrent utterances and no stage
// is ever retried.
type Pipeline struct {
	config     Config
	logger     *slog.Logger
	recognizer *transcription.Client
	gate       *vad.Gate          // nil disables the silence check
	transcoder *codec.Transcoder  // nil disables the MP3 export
	uploader   *transcription.Uploader
	metrics    *metrics.Metrics
	macAddress string

	// Statistics
	processed uint64
	successes uint64
	failures  uint64

	mu sync.RWMutex
}

// PipelineStats represents pipeline statistics.
type PipelineStats struct {
	Processed   uint64  `json:"processed"`
	Successes   uint64  `json:"successes"`
	Failures    uint64  `json:"failures"`
	SuccessRate float64 `json:"success_rate"`
}

// NewPipeline creates the utterance pipeline. recognizer is required;
// gate may be nil to disable silence checking; transcoder and uploader
// must be provided together to enable the MP3 export step.
func NewPipeline(config Config, logger *slog.Logger, recognizer *transcription.Client,
	gate *vad.Gate, transcoder *codec.Transcoder, uploader *transcription.Uploader,
	m *metrics.Metrics) (*Pipeline, error) {

	if recognizer == nil {
		return nil, fmt.Errorf("recognizer cannot be nil")
	}

	if (uploader == nil) != (transcoder == nil) {
		return nil, fmt.Errorf("uploader and transcoder must be configured together")
	}

	if m == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}

	if config.MinUtteranceBytes <= 0 {
		config.MinUtteranceBytes = 1000
	}

	if len(config.Languages) == 0 {
		config.Languages = []string{"en-US", "ko-KR"}
	}

	mac, err := transcription.LocalMACAddress()
	if err != nil {
		logger.Warn("Could not resolve device MAC address", slog.String("error", err.Error()))
	}

	return &Pipeline{
		config:     config,
		logger:     logger,
		recognizer: recognizer,
		gate:       gate,
		transcoder: transcoder,
		uploader:   uploader,
		metrics:    m,
		macAddress: mac,
	}, nil
}

// SupportedLanguages returns the configured language tags.
func (p *Pipeline) SupportedLanguages() []string { return p.config.Languages }

// SupportedFormats returns the container formats the pipeline accepts.
func (p *Pipeline) SupportedFormats() []AudioFormat { return []AudioFormat{FormatWAV, FormatOGG} }

// SupportedCodecs returns the codecs the pipeline accepts.
func (p *Pipeline) SupportedCodecs() []AudioCodec { return []AudioCodec{CodecPCM, CodecOpus} }

// SupportedBitRates returns the accepted sample bit depths.
func (p *Pipeline) SupportedBitRates() []int { return []int{16} }

// SupportedSampleRates returns the accepted sample rates.
func (p *Pipeline) SupportedSampleRates() []int { return []int{16000} }

// SupportedChannels returns the accepted channel counts.
func (p *Pipeline) SupportedChannels() []int { return []int{1} }

// ProcessAudioStream runs one utterance through the pipeline. It always
// returns a well-formed result: SUCCESS with the transcript, or ERROR with
// an empty transcript for every member of the failure taxonomy.
func (p *Pipeline) ProcessAudioStream(ctx context.Context, md audio.Metadata, stream audio.ChunkStream) Result {
	start := time.Now()

	p.metrics.UtterancesStarted.Inc()
	p.metrics.ActiveUtterances.Inc()
	defer func() {
		p.metrics.ActiveUtterances.Dec()
		p.metrics.UtteranceDuration.Observe(time.Since(start).Seconds())
	}()

	transcript, err := p.process(ctx, md, stream)

	p.mu.Lock()
	p.processed++
	if err != nil {
		p.failures++
	} else {
		p.successes++
	}
	p.mu.Unlock()

	if err != nil {
		kind := FailureKind(err)
		p.metrics.PipelineFailures.WithLabelValues(kind).Inc()
		p.metrics.UtterancesCompleted.WithLabelValues(StateError.String()).Inc()
		p.logger.Warn("Utterance failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return ErrorResult()
	}

	p.metrics.UtterancesCompleted.WithLabelValues(StateSuccess.String()).Inc()
	p.logger.Info("Utterance transcribed",
		slog.Int("transcript_length", len(transcript)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return SuccessResult(transcript)
}

// process runs the pipeline stages and returns the transcript or the
// taxonomy error describing the first failed stage.
func (p *Pipeline) process(ctx context.Context, md audio.Metadata, stream audio.ChunkStream) (string, error) {
	if p.config.StreamingTransport && p.gate == nil && p.uploader == nil {
		return p.processStreaming(ctx, stream)
	}
	return p.processBuffered(ctx, md, stream)
}

// processBuffered accumulates the complete utterance, frames it, runs the
// silence gate and submits the WAV buffer for recognition. The optional
// MP3 export runs synchronously before the result is returned so its
// failures are observable.
func (p *Pipeline) processBuffered(ctx context.Context, md audio.Metadata, stream audio.ChunkStream) (string, error) {
	pcm, err := audio.Accumulate(ctx, stream)
	if err != nil {
		return "", classifyStreamError(err)
	}

	p.metrics.UtteranceBytes.Observe(float64(len(pcm)))
	p.logger.Debug("Utterance accumulated", slog.Int("bytes", len(pcm)))

	if len(pcm) <= p.config.MinUtteranceBytes {
		return "", fmt.Errorf("accumulated %d bytes (minimum %d): %w",
			len(pcm), p.config.MinUtteranceBytes, ErrInsufficientAudio)
	}

	wavData, err := audio.EncodeWAV(pcm, md)
	if err != nil {
		return "", fmt.Errorf("%w: WAV framing: %v", ErrCodecFailure, err)
	}

	if p.gate != nil && md.BitDepth == 16 {
		samples := audio.SamplesFromPCM(pcm)
		if !p.gate.HasVoice(samples, md.SampleRate) {
			p.metrics.GateDecisions.WithLabelValues("silence").Inc()
			return "", fmt.Errorf("%d samples classified as silence: %w", len(samples), ErrNoVoiceDetected)
		}
		p.metrics.GateDecisions.WithLabelValues("voice").Inc()
	}

	transcript, err := p.recognize(ctx, bytes.NewReader(wavData))
	if err != nil {
		return "", err
	}

	if err := p.export(ctx, wavData, transcript); err != nil {
		return "", err
	}

	return transcript, nil
}

// processStreaming opens the recognition request as soon as the minimum
// byte threshold is crossed and keeps feeding the request body while
// chunks are still arriving from the host.
func (p *Pipeline) processStreaming(ctx context.Context, stream audio.ChunkStream) (string, error) {
	var prefix []byte
	for len(prefix) <= p.config.MinUtteranceBytes {
		chunk, err := stream.Next(ctx)
		if err == io.EOF {
			p.metrics.UtteranceBytes.Observe(float64(len(prefix)))
			return "", fmt.Errorf("accumulated %d bytes (minimum %d): %w",
				len(prefix), p.config.MinUtteranceBytes, ErrInsufficientAudio)
		}
		if err != nil {
			return "", classifyStreamError(err)
		}
		prefix = append(prefix, chunk...)
	}

	var total atomic.Int64
	total.Store(int64(len(prefix)))

	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()

		if _, err := pw.Write(prefix); err != nil {
			return
		}

		for {
			chunk, err := stream.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := pw.Write(chunk); err != nil {
				return
			}
			total.Add(int64(len(chunk)))
		}
	}()

	transcript, err := p.recognize(ctx, pr)
	pr.Close() // unblocks the pump if the request ended early
	p.metrics.UtteranceBytes.Observe(float64(total.Load()))

	if err != nil {
		return "", err
	}
	return transcript, nil
}

// recognize submits the audio body and maps client errors onto the
// pipeline taxonomy.
func (p *Pipeline) recognize(ctx context.Context, body io.Reader) (string, error) {
	p.metrics.TranscriptionRequests.Inc()
	start := time.Now()

	transcript, err := p.recognizer.Recognize(ctx, body)
	p.metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		p.metrics.TranscriptionFailures.Inc()
		return "", mapTranscriptionError(err)
	}

	p.metrics.TranscriptionSuccesses.Inc()
	return transcript, nil
}

// export converts the utterance to MP3 and forwards it with the
// transcript, timestamp and device address. It runs synchronously so the
// caller observes completion and failure.
func (p *Pipeline) export(ctx context.Context, wavData []byte, transcript string) error {
	if p.uploader == nil {
		return nil
	}

	start := time.Now()
	path, err := p.transcoder.Transcode(ctx, wavData)
	if err != nil {
		p.metrics.CodecFailures.Inc()
		return fmt.Errorf("%w: mp3 conversion: %v", ErrCodecFailure, err)
	}
	p.metrics.CodecConversions.Inc()
	p.metrics.CodecDuration.Observe(time.Since(start).Seconds())

	p.metrics.UploadRequests.Inc()
	err = p.uploader.Upload(ctx, path, transcription.UploadFields{
		Text:       transcript,
		Timestamp:  time.Now().UTC().Unix(),
		MACAddress: p.macAddress,
	})
	if err != nil {
		p.metrics.UploadFailures.Inc()
		return mapTranscriptionError(err)
	}

	return nil
}

// GetStats returns current pipeline statistics.
func (p *Pipeline) GetStats() PipelineStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	successRate := float64(0)
	if p.processed > 0 {
		successRate = float64(p.successes) / float64(p.processed) * 100
	}

	return PipelineStats{
		Processed:   p.processed,
		Successes:   p.successes,
		Failures:    p.failures,
		SuccessRate: successRate,
	}
}

// mapTranscriptionError translates client sentinels into the pipeline
// taxonomy. Anything unrecognized counts as a network failure.
func mapTranscriptionError(err error) error {
	var mapped error
	switch {
	case errors.Is(err, transcription.ErrTimeout):
		mapped = ErrTimeout
	case errors.Is(err, transcription.ErrRejected):
		mapped = ErrRemoteRejection
	case errors.Is(err, transcription.ErrMalformedResponse):
		mapped = ErrMalformedResponse
	case errors.Is(err, context.DeadlineExceeded):
		mapped = ErrTimeout
	default:
		mapped = ErrNetworkFailure
	}

	return fmt.Errorf("%w: %v", mapped, err)
}

// classifyStreamError maps failures while reading the host chunk stream.
// A deadline on the enclosing context counts as a timeout; anything else
// is the host's failure and stays unclassified network-side.
func classifyStreamError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("reading host audio stream: %w", err)
}
