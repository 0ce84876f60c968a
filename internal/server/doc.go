// Package server exposes the HTTP API: the utterance ingest endpoint that
// drives the transcription pipeline plus monitoring endpoints.
package server
