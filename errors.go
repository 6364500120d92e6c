package soitin

import "errors"

// The structural errors are rejected synchronously when editing or
// committing a patch; the runtime errors are reported asynchronously from
// the audio path and never halt the session.
var (
	ErrTypeMismatch     = errors.New("port type mismatch")
	ErrPortOccupied     = errors.New("control input already has a writer")
	ErrCycleDetected    = errors.New("connection would create an audio-rate cycle")
	ErrInvalidGraph     = errors.New("invalid graph")
	ErrNameConflict     = errors.New("name already in use")
	ErrProcessingFault  = errors.New("processing fault")
	ErrDeadlineExceeded = errors.New("block deadline exceeded")
)
