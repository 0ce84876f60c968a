// Package provider defines the speech-to-text capability surface exposed
// to the host platform and the pipeline that implements it: accumulate
// streamed audio, frame it as WAV, gate on silence, send it for
// transcription, and adapt the outcome into a terminal result.
package provider
