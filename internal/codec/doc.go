// Package codec converts WAV-framed utterances to MP3 by invoking an
// external ffmpeg binary. Conversions run on a bounded worker pool and
// exported files are evicted by a background janitor once they go stale.
package codec
