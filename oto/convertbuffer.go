package oto

import (
	"encoding/binary"
	"math"

	"github.com/vsariola/soitin"
)

// AudioBufferToFloat32LE converts a stereo buffer to interleaved
// little-endian float32 bytes, appending to dst so the caller can reuse its
// capacity across calls.
func AudioBufferToFloat32LE(buf soitin.AudioBuffer, dst []byte) []byte {
	for _, frame := range buf {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(frame[0]))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(frame[1]))
	}
	return dst
}
