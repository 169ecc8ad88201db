// Package drivertest provides a fault-injecting driver for tests.
package drivertest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opencontroller/backend/internal/driver"
	"github.com/opencontroller/backend/internal/model"
)

// ErrInjected is returned by injected close failures.
var ErrInjected = errors.New("injected failure")

// Driver wraps a loopback driver, counts lifecycle calls per slot and can be
// told to fail creation or closing for specific slots.
type Driver struct {
	*driver.LoopbackDriver

	mu         sync.Mutex
	failCreate map[model.SlotID]bool
	failClose  map[model.SlotID]bool
	creates    map[model.SlotID]int
	closes     map[model.SlotID]int
}

// New creates a fault-injecting driver with room for every slot.
func New() *Driver {
	return &Driver{
		LoopbackDriver: driver.NewLoopbackDriver(model.MaxSlots),
		failCreate:     make(map[model.SlotID]bool),
		failClose:      make(map[model.SlotID]bool),
		creates:        make(map[model.SlotID]int),
		closes:         make(map[model.SlotID]int),
	}
}

// Name returns "drivertest".
func (d *Driver) Name() string {
	return "drivertest"
}

// FailCreate toggles creation failure for slot.
func (d *Driver) FailCreate(slot model.SlotID, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failCreate[slot] = fail
}

// FailClose toggles close failure for slot.
func (d *Driver) FailClose(slot model.SlotID, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failClose[slot] = fail
}

// Creates returns how many successful creations happened for slot.
func (d *Driver) Creates(slot model.SlotID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creates[slot]
}

// Closes returns how many close attempts happened for slot.
func (d *Driver) Closes(slot model.SlotID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes[slot]
}

// Create implements driver.Driver.
func (d *Driver) Create(slot model.SlotID) (driver.Handle, error) {
	d.mu.Lock()
	fail := d.failCreate[slot]
	d.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("slot %d: %w", slot, model.ErrDriverUnavailable)
	}

	h, err := d.LoopbackDriver.Create(slot)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.creates[slot]++
	d.mu.Unlock()
	return &handle{Handle: h, slot: slot, parent: d}, nil
}

type handle struct {
	driver.Handle
	slot   model.SlotID
	parent *Driver
}

func (h *handle) Close() error {
	h.parent.mu.Lock()
	h.parent.closes[h.slot]++
	fail := h.parent.failClose[h.slot]
	h.parent.mu.Unlock()

	err := h.Handle.Close()
	if fail {
		return ErrInjected
	}
	return err
}
