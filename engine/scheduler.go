package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viterin/vek/vek32"
	"github.com/vsariola/soitin"
)

type (
	// Scheduler is the audio path of the runtime: it runs the published run
	// graph one fixed-size block at a time, routing signals between
	// instances and mixing the out modules into the master bus. It is
	// driven by the audio backend goroutine through ProcessBlock and never
	// mutates graph structure; the only synchronization with the control
	// path is the atomic run-graph pointer, the atomic param slots and
	// non-blocking broker sends.
	Scheduler struct {
		cfg    soitin.Config
		broker *Broker

		// deadline is the per-instance processing budget per block.
		// Exceeding it faults the instance with ErrDeadlineExceeded.
		deadline time.Duration

		published  atomic.Pointer[runGraph]
		appliedGen atomic.Uint64

		masterSlot  paramSlot
		masterState paramState

		masterL, masterR []float32
		pending          soitin.AudioBuffer
		pendingRead      int

		processing sync.Mutex // held per block; Close takes it to drain
		closed     atomic.Bool
	}

	// SchedulerOptions tunes the scheduler. The zero value gives a
	// per-instance deadline of one block of wall time and unity master
	// volume.
	SchedulerOptions struct {
		Deadline     time.Duration
		MasterVolume float32
	}
)

func NewScheduler(broker *Broker, cfg soitin.Config, opts SchedulerOptions) *Scheduler {
	if opts.Deadline == 0 {
		opts.Deadline = time.Duration(cfg.BlockSize) * time.Second / time.Duration(cfg.SampleRate)
	}
	if opts.MasterVolume == 0 {
		opts.MasterVolume = 1
	}
	s := &Scheduler{
		cfg:      cfg,
		broker:   broker,
		deadline: opts.Deadline,
		masterL:  make([]float32, cfg.BlockSize),
		masterR:  make([]float32, cfg.BlockSize),
		pending:  make(soitin.AudioBuffer, cfg.BlockSize),
	}
	s.pendingRead = cfg.BlockSize // pending starts empty
	s.masterSlot.store(opts.MasterVolume, 0)
	s.masterState.current = opts.MasterVolume
	s.masterState.target = opts.MasterVolume
	return s
}

// SetMasterVolume writes the master bus gain, ramped over the given number
// of blocks. Lock-free, applied at the next block start.
func (s *Scheduler) SetMasterVolume(gain float32, rampBlocks int) {
	s.masterSlot.store(gain, rampBlocks)
}

// AppliedGen returns the generation of the run graph whose last block has
// completed. The control path polls this to learn when a commit became
// audible.
func (s *Scheduler) AppliedGen() uint64 {
	return s.appliedGen.Load()
}

// publish makes rg the graph picked up at the next block boundary.
func (s *Scheduler) publish(rg *runGraph) {
	s.published.Store(rg)
}

// Close stops the scheduler: any block in flight finishes, after which
// ProcessBlock only outputs silence. Once Close returns, no instance is
// mid-process and module resources may be released.
func (s *Scheduler) Close() error {
	s.closed.Store(true)
	s.processing.Lock()
	defer s.processing.Unlock()
	return nil
}

// ProcessBlock fills the buffer with audio, running as many whole blocks as
// needed; a buffer length that is not a multiple of the block size is
// served from the remainder of the last block. Always fills the whole
// buffer.
func (s *Scheduler) ProcessBlock(buffer soitin.AudioBuffer) error {
	if s.closed.Load() {
		buffer.Zero()
		return nil
	}
	s.processing.Lock()
	defer s.processing.Unlock()
	for len(buffer) > 0 {
		if s.pendingRead >= len(s.pending) {
			s.runBlock()
			s.pendingRead = 0
		}
		n := copy(buffer, s.pending[s.pendingRead:])
		s.pendingRead += n
		buffer = buffer[n:]
	}
	return nil
}

// runBlock executes one block of the published graph into s.pending.
func (s *Scheduler) runBlock() {
	master := s.masterState.advance(&s.masterSlot)
	vek32.Zeros_Into(s.masterL, s.cfg.BlockSize)
	vek32.Zeros_Into(s.masterR, s.cfg.BlockSize)
	rg := s.published.Load()
	if rg != nil {
		for i := range rg.nodes {
			s.runNode(&rg.nodes[i])
		}
		for _, o := range rg.outs {
			s.mixOut(o)
		}
	}
	for i := 0; i < s.cfg.BlockSize; i++ {
		s.pending[i][0] = clip(s.masterL[i] * master)
		s.pending[i][1] = clip(s.masterR[i] * master)
	}
	s.sendToDetector()
	if rg != nil {
		s.appliedGen.Store(rg.gen)
	}
}

func (s *Scheduler) runNode(n *runNode) {
	inst := n.inst
	// route inputs; sources later in the order still hold last block's
	// output, which is how control-rate feedback arrives one block late
	for i := range inst.in.Audio {
		vek32.Zeros_Into(inst.in.Audio[i], len(inst.in.Audio[i]))
	}
	for i := range inst.in.Control {
		inst.in.Control[i] = 0
	}
	for _, f := range n.feeds {
		if f.kind == soitin.Audio {
			vek32.Add_Inplace(inst.in.Audio[f.dstPort], f.src.out.Audio[f.srcPort])
		} else {
			inst.in.Control[f.dstPort] = f.src.out.Control[f.srcPort]
		}
	}
	for i := range inst.params {
		inst.values[i] = inst.params[i].advance(&inst.slots[i])
	}
	if inst.fault.Load() != faultNone {
		zeroBlock(&inst.out)
		return
	}
	start := time.Now()
	err := safeProcess(inst.proc, &inst.in, &inst.out, inst.values)
	elapsed := time.Since(start)
	if err != nil {
		inst.fault.Store(faultProcess)
		zeroBlock(&inst.out)
		TrySend(s.broker.ToEngine, MsgToEngine{HasFault: true, Fault: FaultReport{
			Module: inst.id,
			Type:   inst.typ.Name,
			Err:    fmt.Errorf("%w: %v", soitin.ErrProcessingFault, err),
		}})
		return
	}
	if s.deadline > 0 && elapsed > s.deadline {
		inst.fault.Store(faultDeadline)
		TrySend(s.broker.ToEngine, MsgToEngine{HasFault: true, Fault: FaultReport{
			Module:  inst.id,
			Type:    inst.typ.Name,
			Err:     soitin.ErrDeadlineExceeded,
			Elapsed: elapsed,
		}})
	}
}

// safeProcess isolates a panicking processor so a single broken module
// cannot kill the session.
func safeProcess(p soitin.Processor, in, out *soitin.Block, params []float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process panicked: %v", r)
		}
	}()
	return p.Process(in, out, params)
}

func (s *Scheduler) mixOut(o outNode) {
	if o.inst.fault.Load() != faultNone {
		return
	}
	gain := float32(1)
	if o.gainIdx >= 0 {
		gain = o.inst.values[o.gainIdx]
	}
	addScaled(s.masterL, o.inst.in.Audio[o.leftIdx], gain)
	addScaled(s.masterR, o.inst.in.Audio[o.rightIdx], gain)
}

// sendToDetector hands a copy of the master bus to the spectrum detector,
// dropping it if the detector is behind.
func (s *Scheduler) sendToDetector() {
	bufPtr := s.broker.GetAudioBuffer()
	*bufPtr = append(*bufPtr, s.pending...)
	if !TrySend(s.broker.ToDetector, MsgToDetector{Buffer: bufPtr}) {
		s.broker.PutAudioBuffer(bufPtr)
	}
}

func zeroBlock(b *soitin.Block) {
	for i := range b.Audio {
		vek32.Zeros_Into(b.Audio[i], len(b.Audio[i]))
	}
	for i := range b.Control {
		b.Control[i] = 0
	}
}

func addScaled(dst, src []float32, gain float32) {
	for i := range dst {
		dst[i] += src[i] * gain
	}
}

func clip(value float32) float32 {
	if value < -1 {
		return -1
	}
	if value > 1 {
		return 1
	}
	return value
}
