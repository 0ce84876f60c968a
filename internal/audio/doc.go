// Package audio handles utterance audio accumulation and format framing.
// It collects incrementally delivered audio chunks into a single PCM buffer
// and encodes/decodes the WAV container used for transcription requests.
package audio
