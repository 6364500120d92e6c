package engine

import (
	"sync"
	"time"

	"github.com/vsariola/soitin"
)

type (
	// Broker carries messages between the two actors of the runtime: the
	// audio path (the Scheduler, driven by the audio backend goroutine) and
	// the control path (the Engine loop, fed by the control surface and the
	// scene store). Each recipient has its own channel; all sends from the
	// audio path are non-blocking, so the audio path can never stall on a
	// slow consumer. The broker also pools stereo buffers so that the audio
	// path can hand buffers to the spectrum detector without allocating.
	//
	// For closing goroutines, there is a CloseXXX/FinishedXXX channel pair
	// per goroutine: CloseXXX has capacity 1 so requesting closure never
	// blocks, and FinishedXXX is closed (never sent to) when the goroutine
	// has cleaned up.
	Broker struct {
		ToEngine   chan MsgToEngine
		ToDetector chan MsgToDetector

		CloseEngine   chan struct{}
		CloseDetector chan struct{}

		FinishedEngine   chan struct{}
		FinishedDetector chan struct{}

		bufferPool sync.Pool
	}

	// MsgToEngine is a message to the control-path loop. Control events and
	// fault reports are the frequent cases and are not boxed; anything rare
	// travels in Data.
	MsgToEngine struct {
		HasEvent bool
		Event    ControlEvent

		HasFault bool
		Fault    FaultReport

		Data any
	}

	// MsgToDetector carries audio from the scheduler to the spectrum
	// detector. Buffer is borrowed from the broker pool and must be
	// returned with PutAudioBuffer after use. Reset tells the detector to
	// clear its analysis state (e.g. after a scene recall).
	MsgToDetector struct {
		Reset  bool
		Buffer *soitin.AudioBuffer
	}

	// FaultReport tells the control path that the scheduler muted a module
	// instance.
	FaultReport struct {
		Module  soitin.ModuleID
		Type    string
		Err     error
		Elapsed time.Duration // for deadline faults, how long the process call took
	}
)

func NewBroker() *Broker {
	return &Broker{
		ToEngine:         make(chan MsgToEngine, 1024),
		ToDetector:       make(chan MsgToDetector, 64),
		CloseEngine:      make(chan struct{}, 1),
		CloseDetector:    make(chan struct{}, 1),
		FinishedEngine:   make(chan struct{}),
		FinishedDetector: make(chan struct{}),
		bufferPool:       sync.Pool{New: func() any { return &soitin.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an empty audio buffer from the pool. Return it
// with PutAudioBuffer when done.
func (b *Broker) GetAudioBuffer() *soitin.AudioBuffer {
	return b.bufferPool.Get().(*soitin.AudioBuffer)
}

// PutAudioBuffer returns a buffer to the pool, resetting its length but
// keeping its capacity.
func (b *Broker) PutAudioBuffer(buf *soitin.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// TrySend sends a value to a channel if it is not full. It is guaranteed to
// be non-blocking. Returns true if the value was sent.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value is received or the timeout elapses.
// ok is false on timeout or when the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
