// Package oto implements the audio backend on top of ebitengine/oto. The oto
// player pulls interleaved little-endian float32 frames through an io.Reader,
// so the reader here pulls fixed-size blocks from the processor and converts
// them on the way out.
package oto

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/vsariola/soitin"
)

type (
	OtoContext struct {
		context    *oto.Context
		sampleRate int
	}

	OtoOutput struct {
		player    *oto.Player
		processor soitin.AudioProcessor
		buffer    soitin.AudioBuffer
		tmpBuffer []byte
		err       error
	}
)

const otoBufferLen = 2048

// NewContext initializes the system audio device for stereo float32 output
// at the given sample rate.
func NewContext(sampleRate int) (*OtoContext, error) {
	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &OtoContext{context: context, sampleRate: sampleRate}, nil
}

func (c *OtoContext) Play(processor soitin.AudioProcessor) io.Closer {
	output := &OtoOutput{
		processor: processor,
		buffer:    make(soitin.AudioBuffer, otoBufferLen),
		tmpBuffer: make([]byte, 0, otoBufferLen*8),
	}
	output.player = c.context.NewPlayer(output)
	output.player.SetBufferSize(otoBufferLen * 8)
	output.player.Play()
	return output
}

func (c *OtoContext) Close() error {
	return c.context.Suspend()
}

// Read implements io.Reader for the oto player, pulling audio from the
// processor and converting it to the wire format. A processor error stops
// the stream.
func (o *OtoOutput) Read(p []byte) (int, error) {
	if o.err != nil {
		return 0, o.err
	}
	frames := len(p) / 8
	if frames > len(o.buffer) {
		frames = len(o.buffer)
	}
	if frames == 0 {
		return 0, nil
	}
	buf := o.buffer[:frames]
	if err := o.processor.ProcessBlock(buf); err != nil {
		o.err = err
		return 0, err
	}
	o.tmpBuffer = AudioBufferToFloat32LE(buf, o.tmpBuffer[:0])
	copy(p, o.tmpBuffer)
	return frames * 8, nil
}

// Close disposes of resources
func (o *OtoOutput) Close() error {
	time.Sleep(100 * time.Millisecond) // let the player drain what it has
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
