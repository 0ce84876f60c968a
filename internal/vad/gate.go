package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// fullScale is the reference amplitude for dBFS on signed 16-bit PCM.
const fullScale = 32768.0

// frameDuration is the analysis granularity for silence detection.
const frameDuration = 10 * time.Millisecond

// Span is a contiguous run of non-silent audio, expressed as a half-open
// sample range [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Gate classifies utterances as speech or silence. An utterance passes the
// gate when at least one non-silent span is louder than the voice
// threshold; everything else is treated as silence and never forwarded to
// the transcription service.
type Gate struct {
	silenceThreshold float64 // dBFS below which audio counts as silence
	voiceThreshold   float64 // dBFS a span must exceed to count as voice
	minSilence       time.Duration

	// Statistics
	utterancesChecked uint64
	voiceDetected     uint64

	mu sync.RWMutex
}

// GateStats represents silence gate statistics.
type GateStats struct {
	SilenceThresholdDBFS float64 `json:"silence_threshold_dbfs"`
	VoiceThresholdDBFS   float64 `json:"voice_threshold_dbfs"`
	MinSilenceMs         int64   `json:"min_silence_ms"`
	UtterancesChecked    uint64  `json:"utterances_checked"`
	VoiceDetected        uint64  `json:"voice_detected"`
	VoiceRate            float64 `json:"voice_rate"`
}

// NewGate creates a silence gate. silenceThreshold and voiceThreshold are
// in dBFS (negative values, e.g. -70 and -50); minSilence is the minimum
// quiet duration that splits two non-silent spans.
func NewGate(silenceThreshold, voiceThreshold float64, minSilence time.Duration) (*Gate, error) {
	if silenceThreshold >= 0 {
		return nil, fmt.Errorf("silence threshold must be negative dBFS, got %f", silenceThreshold)
	}

	if voiceThreshold >= 0 {
		return nil, fmt.Errorf("voice threshold must be negative dBFS, got %f", voiceThreshold)
	}

	if voiceThreshold < silenceThreshold {
		return nil, fmt.Errorf("voice threshold (%f) must not be below silence threshold (%f)",
			voiceThreshold, silenceThreshold)
	}

	if minSilence <= 0 {
		return nil, fmt.Errorf("min silence duration must be positive, got %s", minSilence)
	}

	return &Gate{
		silenceThreshold: silenceThreshold,
		voiceThreshold:   voiceThreshold,
		minSilence:       minSilence,
	}, nil
}

// SegmentDBFS computes the RMS loudness of a PCM segment relative to full
// scale. An empty or all-zero segment returns negative infinity rather
// than an error so fully silent input classifies cleanly.
func SegmentDBFS(samples []int16) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}

	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}

	rms := math.Sqrt(energy / float64(len(samples)))
	if rms == 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(rms/fullScale)
}

// DetectNonsilent returns the non-silent spans of the given audio. Audio
// quieter than silenceThreshold counts as silence; quiet runs shorter than
// minSilence do not split a span.
func DetectNonsilent(samples []int16, sampleRate int, silenceThreshold float64, minSilence time.Duration) []Span {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil
	}

	frameLen := int(frameDuration.Seconds() * float64(sampleRate))
	if frameLen < 1 {
		frameLen = 1
	}

	minSilenceFrames := int(minSilence / frameDuration)
	if minSilenceFrames < 1 {
		minSilenceFrames = 1
	}

	numFrames := (len(samples) + frameLen - 1) / frameLen

	var spans []Span
	inSpan := false
	spanStart := 0
	silentRun := 0

	for i := 0; i < numFrames; i++ {
		start := i * frameLen
		end := start + frameLen
		if end > len(samples) {
			end = len(samples)
		}

		silent := SegmentDBFS(samples[start:end]) < silenceThreshold

		if !silent {
			if !inSpan {
				inSpan = true
				spanStart = start
			}
			silentRun = 0
			continue
		}

		if inSpan {
			silentRun++
			if silentRun >= minSilenceFrames {
				spans = append(spans, Span{
					Start: spanStart,
					End:   (i - silentRun + 1) * frameLen,
				})
				inSpan = false
				silentRun = 0
			}
		}
	}

	if inSpan {
		end := (numFrames - silentRun) * frameLen
		if end > len(samples) {
			end = len(samples)
		}
		spans = append(spans, Span{Start: spanStart, End: end})
	}

	return spans
}

// HasVoice reports whether the utterance contains at least one non-silent
// span louder than the voice threshold. Zero-length and fully silent input
// return false without error.
func (g *Gate) HasVoice(samples []int16, sampleRate int) bool {
	spans := DetectNonsilent(samples, sampleRate, g.silenceThreshold, g.minSilence)

	detected := false
	for _, span := range spans {
		if SegmentDBFS(samples[span.Start:span.End]) > g.voiceThreshold {
			detected = true
			break
		}
	}

	g.mu.Lock()
	g.utterancesChecked++
	if detected {
		g.voiceDetected++
	}
	g.mu.Unlock()

	return detected
}

// GetStats returns current gate statistics.
func (g *Gate) GetStats() GateStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	voiceRate := float64(0)
	if g.utterancesChecked > 0 {
		voiceRate = float64(g.voiceDetected) / float64(g.utterancesChecked) * 100
	}

	return GateStats{
		SilenceThresholdDBFS: g.silenceThreshold,
		VoiceThresholdDBFS:   g.voiceThreshold,
		MinSilenceMs:         g.minSilence.Milliseconds(),
		UtterancesChecked:    g.utterancesChecked,
		VoiceDetected:        g.voiceDetected,
		VoiceRate:            voiceRate,
	}
}
