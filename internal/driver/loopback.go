package driver

import (
	"fmt"
	"sync"

	"github.com/opencontroller/backend/internal/model"
)

// Report is the XUSB-style state of one device.
type Report struct {
	Buttons Button `json:"buttons"`
	LX      int16  `json:"lx"`
	LY      int16  `json:"ly"`
}

// Pressed reports whether b is set.
func (r Report) Pressed(b Button) bool {
	return r.Buttons&b != 0
}

// LoopbackDriver is an in-memory driver. Devices keep their committed report
// so it can be inspected; nothing leaves the process.
type LoopbackDriver struct {
	mu       sync.Mutex
	capacity int
	devices  map[model.SlotID]*LoopbackHandle
	created  int
}

// NewLoopbackDriver creates a loopback driver that holds at most capacity live
// devices. A capacity <= 0 means model.MaxSlots.
func NewLoopbackDriver(capacity int) *LoopbackDriver {
	if capacity <= 0 {
		capacity = model.MaxSlots
	}
	return &LoopbackDriver{
		capacity: capacity,
		devices:  make(map[model.SlotID]*LoopbackHandle),
	}
}

// Name returns "loopback".
func (d *LoopbackDriver) Name() string {
	return "loopback"
}

// Create allocates a device for slot.
func (d *LoopbackDriver) Create(slot model.SlotID) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.devices[slot]; exists {
		return nil, fmt.Errorf("slot %d already has a device: %w", slot, model.ErrDriverUnavailable)
	}
	if len(d.devices) >= d.capacity {
		return nil, fmt.Errorf("loopback capacity %d exhausted: %w", d.capacity, model.ErrDriverUnavailable)
	}

	h := &LoopbackHandle{driver: d, slot: slot}
	d.devices[slot] = h
	d.created++
	return h, nil
}

// Device returns the live device for slot, if any.
func (d *LoopbackDriver) Device(slot model.SlotID) (*LoopbackHandle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.devices[slot]
	return h, ok
}

// Live returns the number of live devices.
func (d *LoopbackDriver) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.devices)
}

// Created returns the number of devices created over the driver's lifetime.
func (d *LoopbackDriver) Created() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

func (d *LoopbackDriver) release(h *LoopbackHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.devices[h.slot]; ok && cur == h {
		delete(d.devices, h.slot)
	}
}

// LoopbackHandle is a device created by LoopbackDriver.
type LoopbackHandle struct {
	driver *LoopbackDriver
	slot   model.SlotID

	mu        sync.Mutex
	pending   Report
	committed Report
	updates   int
	closed    bool
}

func (h *LoopbackHandle) PressButton(b Button) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return model.ErrDeviceClosed
	}
	h.pending.Buttons |= b
	return nil
}

func (h *LoopbackHandle) ReleaseButton(b Button) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return model.ErrDeviceClosed
	}
	h.pending.Buttons &^= b
	return nil
}

func (h *LoopbackHandle) LeftJoystick(x, y int16) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return model.ErrDeviceClosed
	}
	h.pending.LX = x
	h.pending.LY = y
	return nil
}

func (h *LoopbackHandle) Update() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return model.ErrDeviceClosed
	}
	h.committed = h.pending
	h.updates++
	return nil
}

func (h *LoopbackHandle) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return model.ErrDeviceClosed
	}
	h.pending = Report{}
	h.committed = Report{}
	h.updates++
	return nil
}

func (h *LoopbackHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return model.ErrDeviceClosed
	}
	h.closed = true
	h.mu.Unlock()

	h.driver.release(h)
	return nil
}

// Report returns the last committed report.
func (h *LoopbackHandle) Report() Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.committed
}

// Updates returns how many times the device was flushed.
func (h *LoopbackHandle) Updates() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.updates
}

// Closed reports whether the device was released.
func (h *LoopbackHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
