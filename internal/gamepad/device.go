// Package gamepad wraps one virtual controller's lifecycle: creation, input
// application, reset and destruction.
//
// A Device serializes all calls into its driver handle. Once destroyed it
// rejects further input with model.ErrDeviceClosed, so input racing a
// destroy is dropped instead of reaching a released handle.
package gamepad

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opencontroller/backend/internal/driver"
	"github.com/opencontroller/backend/internal/model"
)

// Device is one live virtual controller bound to a slot.
type Device struct {
	slot   model.SlotID
	handle driver.Handle

	mu        sync.Mutex
	state     driver.Report
	inputs    uint64
	destroyed bool
}

// Create acquires a device for slot from drv. Driver failures are reported as
// errors wrapping model.ErrDriverUnavailable.
func Create(drv driver.Driver, slot model.SlotID) (*Device, error) {
	if !slot.Valid() {
		return nil, fmt.Errorf("slot %d: %w", slot, model.ErrInvalidSlot)
	}
	if drv == nil {
		return nil, fmt.Errorf("no driver configured: %w", model.ErrDriverUnavailable)
	}

	handle, err := drv.Create(slot)
	if err != nil {
		if !errors.Is(err, model.ErrDriverUnavailable) {
			err = fmt.Errorf("%w: %v", model.ErrDriverUnavailable, err)
		}
		return nil, err
	}
	if handle == nil {
		return nil, fmt.Errorf("driver %s returned no handle: %w", drv.Name(), model.ErrDriverUnavailable)
	}

	return &Device{slot: slot, handle: handle}, nil
}

// Slot returns the slot this device is bound to.
func (d *Device) Slot() model.SlotID {
	return d.slot
}

// Apply applies one input event and commits it. Unknown buttons return
// model.ErrUnknownInput without touching the device.
func (d *Device) Apply(ev model.InputEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed {
		return model.ErrDeviceClosed
	}

	var err error
	switch ev.Type {
	case model.InputKindButton:
		err = d.applyButtonLocked(ev.Button, ev.Pressed)
	case model.InputKindStick:
		err = d.applyAxisLocked(ev.X, ev.Y)
	default:
		err = model.ErrUnknownInput
	}
	if err != nil {
		return err
	}

	if err := d.handle.Update(); err != nil {
		return fmt.Errorf("failed to commit slot %d: %w", d.slot, err)
	}
	d.inputs++
	return nil
}

// ApplyButton presses or releases a button without committing. Pressing a
// pressed button or releasing a released one is a no-op.
func (d *Device) ApplyButton(name string, pressed bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return model.ErrDeviceClosed
	}
	return d.applyButtonLocked(name, pressed)
}

// ApplyAxis sets the left stick from normalized coordinates without committing.
func (d *Device) ApplyAxis(x, y float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return model.ErrDeviceClosed
	}
	return d.applyAxisLocked(x, y)
}

// Commit flushes pending state to the device.
func (d *Device) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return model.ErrDeviceClosed
	}
	return d.handle.Update()
}

func (d *Device) applyButtonLocked(name string, pressed bool) error {
	button, ok := driver.LookupButton(name)
	if !ok {
		return model.ErrUnknownInput
	}
	if d.state.Pressed(button) == pressed {
		return nil
	}

	var err error
	if pressed {
		err = d.handle.PressButton(button)
	} else {
		err = d.handle.ReleaseButton(button)
	}
	if err != nil {
		return fmt.Errorf("failed to set button %s on slot %d: %w", name, d.slot, err)
	}

	if pressed {
		d.state.Buttons |= button
	} else {
		d.state.Buttons &^= button
	}
	return nil
}

func (d *Device) applyAxisLocked(x, y float64) error {
	lx, ly := driver.StickToInt16(x, y)
	if err := d.handle.LeftJoystick(lx, ly); err != nil {
		return fmt.Errorf("failed to set stick on slot %d: %w", d.slot, err)
	}
	d.state.LX = lx
	d.state.LY = ly
	return nil
}

// Reset returns every button and axis to neutral.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return model.ErrDeviceClosed
	}
	return d.resetLocked()
}

func (d *Device) resetLocked() error {
	d.state = driver.Report{}
	if err := d.handle.Reset(); err != nil {
		return fmt.Errorf("failed to reset slot %d: %w", d.slot, err)
	}
	return nil
}

// Destroy resets and releases the device. It waits for any in-flight Apply
// and is a no-op returning model.ErrDeviceClosed after the first call.
func (d *Device) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed {
		return model.ErrDeviceClosed
	}
	d.destroyed = true

	resetErr := d.resetLocked()
	var closeErr error
	if err := d.handle.Close(); err != nil {
		closeErr = fmt.Errorf("failed to close slot %d: %w", d.slot, err)
	}
	return errors.Join(resetErr, closeErr)
}

// Destroyed reports whether Destroy has been called.
func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// State returns the last applied input state.
func (d *Device) State() driver.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Inputs returns how many events were committed to this device.
func (d *Device) Inputs() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputs
}
