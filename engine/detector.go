package engine

import (
	"math"
	"math/cmplx"
	"sync"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/viterin/vek/vek32"
	"github.com/vsariola/soitin"
)

// Detector is the observability side channel of the runtime: it consumes
// master-bus buffers the scheduler hands to the broker and maintains peak
// and RMS levels plus a magnitude spectrum of the most recent window. It
// runs in its own goroutine on the control side, so the analysis cost never
// touches the audio path; when it falls behind, the scheduler simply drops
// buffers.
type Detector struct {
	broker  *Broker
	fftSize int
	plan    *algofft.Plan[complex128]
	window  []float64

	ring    []float64 // mono mixdown of the most recent fftSize samples
	write   int
	filled  int
	fftIn   []complex128
	fftOut  []complex128
	scratch []float32

	mu       sync.Mutex
	spectrum []float32 // dB per bin, fftSize/2+1 bins
	peak     float32
	rms      float32
}

func NewDetector(broker *Broker, fftSize int) (*Detector, error) {
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, err
	}
	window := make([]float64, fftSize)
	for i := range window {
		// Hann
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize))
	}
	spectrum := make([]float32, fftSize/2+1)
	for i := range spectrum {
		spectrum[i] = -130
	}
	return &Detector{
		broker:   broker,
		fftSize:  fftSize,
		plan:     plan,
		window:   window,
		ring:     make([]float64, fftSize),
		fftIn:    make([]complex128, fftSize),
		fftOut:   make([]complex128, fftSize),
		spectrum: spectrum,
	}, nil
}

// Run consumes buffers until CloseDetector is signaled; FinishedDetector is
// closed when it is done.
func (d *Detector) Run() {
	defer close(d.broker.FinishedDetector)
	for {
		select {
		case msg := <-d.broker.ToDetector:
			if msg.Reset {
				d.reset()
			}
			if msg.Buffer != nil {
				d.analyze(*msg.Buffer)
				d.broker.PutAudioBuffer(msg.Buffer)
			}
		case <-d.broker.CloseDetector:
			return
		}
	}
}

// Spectrum returns a copy of the latest magnitude spectrum in dB.
func (d *Detector) Spectrum() []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float32(nil), d.spectrum...)
}

// Levels returns the peak and RMS of the last analyzed buffer.
func (d *Detector) Levels() (peak, rms float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak, d.rms
}

func (d *Detector) reset() {
	d.write = 0
	d.filled = 0
	d.mu.Lock()
	for i := range d.spectrum {
		d.spectrum[i] = -130
	}
	d.peak = 0
	d.rms = 0
	d.mu.Unlock()
}

func (d *Detector) analyze(buf soitin.AudioBuffer) {
	if len(buf) == 0 {
		return
	}
	if cap(d.scratch) < len(buf) {
		d.scratch = make([]float32, len(buf))
	}
	mono := d.scratch[:len(buf)]
	for i, frame := range buf {
		mono[i] = (frame[0] + frame[1]) / 2
		d.ring[d.write] = float64(mono[i])
		d.write = (d.write + 1) % d.fftSize
	}
	if d.filled < d.fftSize {
		d.filled += len(buf)
	}
	power := vek32.Mul_Into(mono, mono, mono) // mono squared, in place
	meanPower := vek32.Mean(power)
	peak2 := vek32.Max(power)

	d.mu.Lock()
	d.peak = float32(math.Sqrt(float64(peak2)))
	d.rms = float32(math.Sqrt(float64(meanPower)))
	d.mu.Unlock()

	if d.filled < d.fftSize {
		return
	}
	for i := 0; i < d.fftSize; i++ {
		d.fftIn[i] = complex(d.ring[(d.write+i)%d.fftSize]*d.window[i], 0)
	}
	if err := d.plan.Forward(d.fftOut, d.fftIn); err != nil {
		return
	}
	d.mu.Lock()
	for i := 0; i <= d.fftSize/2; i++ {
		mag := cmplx.Abs(d.fftOut[i]) * 2 / float64(d.fftSize)
		db := -130.0
		if mag > 0 {
			db = 20 * math.Log10(mag)
			if db < -130 {
				db = -130
			}
		}
		d.spectrum[i] = float32(db)
	}
	d.mu.Unlock()
}
