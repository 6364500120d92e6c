package soitin

import "io"

// AudioBuffer is a buffer of stereo audio samples of variable length
type AudioBuffer [][2]float32

type (
	// AudioProcessor is something that can fill a stereo buffer with audio:
	// in this package's runtime, the engine scheduler. The buffer should
	// always be filled completely.
	AudioProcessor interface {
		ProcessBlock(buffer AudioBuffer) error
	}

	// AudioContext is the audio backend collaborator. Play starts pulling
	// fixed-size blocks from the processor until the returned closer is
	// closed.
	AudioContext interface {
		Play(processor AudioProcessor) io.Closer
		Close() error
	}
)

// Zero clears the buffer.
func (b AudioBuffer) Zero() {
	for i := range b {
		b[i] = [2]float32{}
	}
}
