package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/vsariola/soitin"
)

type (
	// Engine owns the live graph and is the only writer of the published
	// run graph. Structural edits go through transactions: the staged
	// operations apply to a private copy, the copy is validated as a whole,
	// and only then is it compiled and published, so no partial patch state
	// is ever audible. Parameter-only writes skip transactions and go
	// straight to the lock-free param slots.
	Engine struct {
		reg    *soitin.Registry
		cfg    soitin.Config
		broker *Broker
		sched  *Scheduler

		// mu serializes transactions: it is held from Begin until Commit or
		// Abort, so concurrent Begin calls queue.
		mu   sync.Mutex
		live *Graph
		gen  uint64

		mapper  *Mapper
		onFault func(FaultReport)
	}

	// Transaction is a batch of structural operations staged against a
	// copy of the live graph. Operations report obvious errors (unknown
	// ports, immediate audio cycles) as they are staged; any staging error
	// also poisons the transaction so Commit fails with ErrInvalidGraph.
	Transaction struct {
		e      *Engine
		g      *Graph
		params []paramOp
		err    error
		done   bool
	}

	paramOp struct {
		id    soitin.ModuleID
		name  string
		value float32
		ramp  int
	}
)

func New(reg *soitin.Registry, cfg soitin.Config, broker *Broker, opts SchedulerOptions) *Engine {
	e := &Engine{
		reg:    reg,
		cfg:    cfg,
		broker: broker,
		sched:  NewScheduler(broker, cfg, opts),
	}
	e.live = newGraph(reg, cfg)
	return e
}

// Scheduler returns the audio path; the audio backend drives it via
// ProcessBlock.
func (e *Engine) Scheduler() *Scheduler {
	return e.sched
}

// Begin starts a transaction. Only one transaction may be in flight toward
// commit at a time; Begin blocks until the previous one commits or aborts.
func (e *Engine) Begin() *Transaction {
	e.mu.Lock()
	return &Transaction{e: e, g: e.live.clone()}
}

// AddModule stages adding a new instance and returns its id.
func (t *Transaction) AddModule(typeName string) (soitin.ModuleID, error) {
	id, err := t.g.AddInstance(typeName)
	return id, t.fail(err)
}

// addModuleWithID restores an instance under a known id; used by scene
// recall so that cables in the scene keep pointing at the right modules.
func (t *Transaction) addModuleWithID(id soitin.ModuleID, typeName string) error {
	return t.fail(t.g.addInstanceWithID(id, typeName))
}

// RemoveModule stages removing an instance and all its cables.
func (t *Transaction) RemoveModule(id soitin.ModuleID) error {
	return t.fail(t.g.RemoveInstance(id))
}

// Connect stages a cable.
func (t *Transaction) Connect(from soitin.ModuleID, fromPort string, to soitin.ModuleID, toPort string) error {
	return t.fail(t.g.Connect(from, fromPort, to, toPort))
}

// Disconnect stages removing a cable.
func (t *Transaction) Disconnect(from soitin.ModuleID, fromPort string, to soitin.ModuleID, toPort string) error {
	return t.fail(t.g.Disconnect(from, fromPort, to, toPort))
}

// SetParam stages a parameter write applied when the transaction commits.
func (t *Transaction) SetParam(id soitin.ModuleID, name string, value float32) error {
	return t.SetParamRamp(id, name, value, 0)
}

// SetParamRamp is SetParam with a ramp length in blocks, for click-free
// transitions such as scene recall.
func (t *Transaction) SetParamRamp(id soitin.ModuleID, name string, value float32, rampBlocks int) error {
	inst, ok := t.g.instances[id]
	if !ok {
		return t.fail(fmt.Errorf("no module with id %d", id))
	}
	if inst.typ.ParamIndex(name) < 0 {
		return t.fail(fmt.Errorf("%s has no parameter %q", inst.typ.Name, name))
	}
	t.params = append(t.params, paramOp{id: id, name: name, value: value, ramp: rampBlocks})
	return nil
}

func (t *Transaction) fail(err error) error {
	if err != nil && t.err == nil {
		t.err = err
	}
	return err
}

// Commit validates the staged graph as a whole and, if it is valid,
// compiles and publishes it; the scheduler picks it up at the next block
// boundary. On any error the live graph is untouched and the whole batch
// is discarded.
func (t *Transaction) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	defer t.e.mu.Unlock()
	if t.err != nil {
		return fmt.Errorf("%w: %w", soitin.ErrInvalidGraph, t.err)
	}
	if err := t.g.Validate(); err != nil {
		return fmt.Errorf("%w: %w", soitin.ErrInvalidGraph, err)
	}
	e := t.e
	e.gen++
	rg := t.g.compile(e.gen)
	e.live = t.g
	// param writes land on the shared instances only after the structure
	// is known to be valid; a write staged before the same transaction
	// removed its module has nothing left to land on
	for _, op := range t.params {
		if inst, ok := t.g.instances[op.id]; ok {
			inst.setParam(op.name, op.value, op.ramp)
		}
	}
	e.sched.publish(rg)
	return nil
}

// Abort discards the staged copy with no effect on the live graph.
func (t *Transaction) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.e.mu.Unlock()
}

// SetParam writes one parameter of a live instance without a transaction.
// It is lock-free and takes effect at the next block start.
func (e *Engine) SetParam(id soitin.ModuleID, name string, value float32) error {
	return e.SetParamRamp(id, name, value, 0)
}

// SetParamRamp is SetParam ramped over the given number of blocks.
func (e *Engine) SetParamRamp(id soitin.ModuleID, name string, value float32, rampBlocks int) error {
	rg := e.sched.published.Load()
	if rg == nil {
		return fmt.Errorf("no module with id %d", id)
	}
	inst, ok := rg.index[id]
	if !ok {
		return fmt.Errorf("no module with id %d", id)
	}
	if !inst.setParam(name, value, rampBlocks) {
		return fmt.Errorf("%s has no parameter %q", inst.typ.Name, name)
	}
	return nil
}

// Param returns the last written target of a live instance's parameter.
func (e *Engine) Param(id soitin.ModuleID, name string) (float32, error) {
	rg := e.sched.published.Load()
	if rg == nil {
		return 0, fmt.Errorf("no module with id %d", id)
	}
	inst, ok := rg.index[id]
	if !ok {
		return 0, fmt.Errorf("no module with id %d", id)
	}
	v, ok := inst.paramTarget(name)
	if !ok {
		return 0, fmt.Errorf("%s has no parameter %q", inst.typ.Name, name)
	}
	return v, nil
}

// Faulted reports whether the scheduler has muted the instance.
func (e *Engine) Faulted(id soitin.ModuleID) (bool, error) {
	rg := e.sched.published.Load()
	if rg == nil {
		return false, fmt.Errorf("no module with id %d", id)
	}
	inst, ok := rg.index[id]
	if !ok {
		return false, fmt.Errorf("no module with id %d", id)
	}
	return inst.faulted(), nil
}

// ResetFault unmutes a previously faulted instance so the scheduler starts
// processing it again.
func (e *Engine) ResetFault(id soitin.ModuleID) error {
	rg := e.sched.published.Load()
	if rg == nil {
		return fmt.Errorf("no module with id %d", id)
	}
	inst, ok := rg.index[id]
	if !ok {
		return fmt.Errorf("no module with id %d", id)
	}
	inst.fault.Store(faultNone)
	return nil
}

// Patch snapshots the live graph as a serializable description.
func (e *Engine) Patch() soitin.Patch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live.patch()
}

// Gen returns the generation of the last committed graph.
func (e *Engine) Gen() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// WaitApplied blocks until the scheduler has completed a block with the
// latest committed graph, or the timeout elapses. The scheduler only makes
// progress while the audio backend is calling ProcessBlock.
func (e *Engine) WaitApplied(timeout time.Duration) bool {
	target := e.Gen()
	deadline := time.Now().Add(timeout)
	for e.sched.AppliedGen() < target {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// SetMapper installs the control surface mapper consumed by Run.
func (e *Engine) SetMapper(m *Mapper) {
	e.mapper = m
}

// OnFault installs a callback invoked from the Run loop when the scheduler
// mutes an instance.
func (e *Engine) OnFault(f func(FaultReport)) {
	e.onFault = f
}

// Run is the control-path loop: it consumes control events and fault
// reports from the broker until CloseEngine is signaled. Run it in its own
// goroutine; FinishedEngine is closed when it is done.
func (e *Engine) Run() {
	defer close(e.broker.FinishedEngine)
	for {
		select {
		case msg := <-e.broker.ToEngine:
			if msg.HasEvent && e.mapper != nil {
				e.mapper.HandleEvent(msg.Event)
			}
			if msg.HasFault && e.onFault != nil {
				e.onFault(msg.Fault)
			}
		case <-e.broker.CloseEngine:
			return
		}
	}
}

// Close drains the scheduler and stops the Run loop. After Close returns
// no instance is mid-process.
func (e *Engine) Close() error {
	err := e.sched.Close()
	TrySend(e.broker.CloseEngine, struct{}{})
	return err
}
