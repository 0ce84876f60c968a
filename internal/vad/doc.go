// Package vad implements loudness-based voice activity detection.
// It splits PCM audio into non-silent spans using a dBFS silence
// threshold and classifies an utterance as containing speech when any
// span exceeds the voice-presence threshold.
package vad
