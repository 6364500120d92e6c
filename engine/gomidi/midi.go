package gomidi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vsariola/soitin/engine"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type (
	// RTMIDIContext owns the rtmidi driver and forwards incoming messages to
	// the engine as control events via the broker. All sends are non-blocking;
	// if the engine is not keeping up, messages are dropped.
	RTMIDIContext struct {
		driver             *rtmididrv.Driver
		broker             *engine.Broker
		currentIn          drivers.In
		inputDevices       []RTMIDIDevice
		devicesInitialized bool
	}

	RTMIDIDevice struct {
		context *RTMIDIContext
		in      drivers.In
	}
)

// Open the driver.
func NewContext(broker *engine.Broker) *RTMIDIContext {
	m := RTMIDIContext{broker: broker}
	// there's not much we can do if this fails, so just use m.driver = nil to
	// indicate no driver available
	m.driver, _ = rtmididrv.New()
	return &m
}

func (m *RTMIDIContext) InputDevices(yield func(RTMIDIDevice) bool) {
	if m.devicesInitialized {
		m.yieldCachedInputDevices(yield)
	} else {
		m.initInputDevices(yield)
	}
}

func (m *RTMIDIContext) yieldCachedInputDevices(yield func(RTMIDIDevice) bool) {
	for _, device := range m.inputDevices {
		if !yield(device) {
			break
		}
	}
}

func (m *RTMIDIContext) initInputDevices(yield func(RTMIDIDevice) bool) {
	if m.driver == nil {
		return
	}
	ins, err := m.driver.Ins()
	if err != nil {
		return
	}
	for i := 0; i < len(ins); i++ {
		device := RTMIDIDevice{context: m, in: ins[i]}
		m.inputDevices = append(m.inputDevices, device)
		if !yield(device) {
			break
		}
	}
	m.devicesInitialized = true
}

// Open an input device while closing the currently open if necessary.
func (d RTMIDIDevice) Open() error {
	if d.context.currentIn == d.in {
		return nil
	}
	if d.context.driver == nil {
		return errors.New("no driver available")
	}
	if d.context.HasDeviceOpen() {
		d.context.currentIn.Close()
	}
	d.context.currentIn = d.in
	err := d.in.Open()
	if err != nil {
		d.context.currentIn = nil
		return fmt.Errorf("opening MIDI input failed: %w", err)
	}
	_, err = midi.ListenTo(d.in, d.context.HandleMessage)
	if err != nil {
		d.in.Close()
		d.context.currentIn = nil
	}
	return err
}

func (d RTMIDIDevice) String() string {
	return d.in.String()
}

// TryToOpenBy opens the first input device whose name starts with namePrefix,
// or just the first device if takeFirst is set.
func (c *RTMIDIContext) TryToOpenBy(namePrefix string, takeFirst bool) error {
	if namePrefix == "" && !takeFirst {
		return nil
	}
	var opened bool
	var err error
	for input := range c.InputDevices {
		if takeFirst || strings.HasPrefix(input.String(), namePrefix) {
			err = input.Open()
			opened = true
			break
		}
	}
	if opened {
		return err
	}
	if takeFirst {
		return errors.New("could not find any MIDI input")
	}
	return fmt.Errorf("could not find a MIDI input starting with %q", namePrefix)
}

func (c *RTMIDIContext) HasDeviceOpen() bool {
	return c.currentIn != nil && c.currentIn.IsOpen()
}

func (c *RTMIDIContext) Close() {
	if c.driver == nil {
		return
	}
	if c.currentIn != nil && c.currentIn.IsOpen() {
		c.currentIn.Close()
	}
	c.driver.Close()
}

// HandleMessage translates a raw MIDI message into a control event and hands
// it to the broker. Control changes map to "cc:<channel>:<controller>" with
// the value scaled to 0..1, notes map to "note:<channel>:<key>" with the
// velocity as value (0 on note off) and pitch bend maps to "bend:<channel>"
// centered at 0.5.
func (c *RTMIDIContext) HandleMessage(msg midi.Message, timestampms int32) {
	var channel, controller, key, velocity, value uint8
	var bend int16
	var abs uint16
	now := time.Now()
	switch {
	case msg.GetControlChange(&channel, &controller, &value):
		c.send(engine.ControlEvent{
			Input: engine.ControlID(fmt.Sprintf("cc:%d:%d", channel, controller)),
			Value: float32(value) / 127,
			Time:  now,
		})
	case msg.GetNoteOn(&channel, &key, &velocity):
		c.send(engine.ControlEvent{
			Input: engine.ControlID(fmt.Sprintf("note:%d:%d", channel, key)),
			Value: float32(velocity) / 127,
			Time:  now,
		})
	case msg.GetNoteOff(&channel, &key, &velocity):
		c.send(engine.ControlEvent{
			Input: engine.ControlID(fmt.Sprintf("note:%d:%d", channel, key)),
			Value: 0,
			Time:  now,
		})
	case msg.GetPitchBend(&channel, &bend, &abs):
		c.send(engine.ControlEvent{
			Input: engine.ControlID(fmt.Sprintf("bend:%d", channel)),
			Value: float32(abs) / 16383,
			Time:  now,
		})
	}
}

func (c *RTMIDIContext) send(ev engine.ControlEvent) {
	engine.TrySend(c.broker.ToEngine, engine.MsgToEngine{HasEvent: true, Event: ev})
}
