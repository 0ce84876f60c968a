// Package transcription contains the HTTP clients for the remote
// speech-to-text service: a streaming recognizer that posts raw audio
// and parses the recognition response, and a multipart uploader that
// forwards exported audio files with their recognized text.
package transcription
