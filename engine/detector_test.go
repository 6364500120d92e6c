package engine

import (
	"math"
	"testing"

	"github.com/vsariola/soitin"
)

func TestDetectorLevelsAndSpectrum(t *testing.T) {
	const fftSize = 2048
	d, err := NewDetector(NewBroker(), fftSize)
	if err != nil {
		t.Fatalf("creating detector: %v", err)
	}
	// a full window of a sine with a period of 128 samples lands in bin 16
	buf := make(soitin.AudioBuffer, fftSize)
	for i := range buf {
		v := float32(0.5 * math.Sin(2*math.Pi*float64(i)/128))
		buf[i] = [2]float32{v, v}
	}
	d.analyze(buf)
	peak, rms := d.Levels()
	if math.Abs(float64(peak-0.5)) > 0.01 {
		t.Fatalf("peak %v, want 0.5", peak)
	}
	if math.Abs(float64(rms-0.3536)) > 0.01 {
		t.Fatalf("rms %v, want 0.3536", rms)
	}
	spectrum := d.Spectrum()
	if len(spectrum) != fftSize/2+1 {
		t.Fatalf("spectrum has %d bins, want %d", len(spectrum), fftSize/2+1)
	}
	maxBin := 0
	for i, v := range spectrum {
		if v > spectrum[maxBin] {
			maxBin = i
		}
	}
	if maxBin != 16 {
		t.Fatalf("spectrum peaks at bin %d, want 16", maxBin)
	}
}

func TestDetectorReset(t *testing.T) {
	d, err := NewDetector(NewBroker(), 256)
	if err != nil {
		t.Fatalf("creating detector: %v", err)
	}
	buf := make(soitin.AudioBuffer, 256)
	for i := range buf {
		buf[i] = [2]float32{1, 1}
	}
	d.analyze(buf)
	d.reset()
	peak, rms := d.Levels()
	if peak != 0 || rms != 0 {
		t.Fatalf("levels after reset: peak %v rms %v, want zeros", peak, rms)
	}
}
