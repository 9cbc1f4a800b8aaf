// Package voice defines the speech collaborator interfaces consumed by the
// session relay. Failures are soft by contract: callers substitute a
// placeholder transcript or empty audio instead of aborting the session.
package voice

import "context"

// TranscriptionPlaceholder is returned to the pipeline when transcription
// fails; the turn continues with it as the user utterance.
const TranscriptionPlaceholder = "Transcription failed (mock response)"

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer renders text as speech with a provider voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
