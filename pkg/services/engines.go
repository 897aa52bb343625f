package services

import "context"

// OCREngine extracts text from an image. The server runs without one; the
// endpoint then reports the engine as unavailable.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte, contentType string) (string, error)
}

// TranscribeEngine converts an audio blob to a transcript.
type TranscribeEngine interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}
