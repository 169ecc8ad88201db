package session

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/opencontroller/backend/internal/driver"
	"github.com/opencontroller/backend/internal/gamepad"
	"github.com/opencontroller/backend/internal/model"
)

// Registry owns the slot id -> device mapping. Devices are created lazily and
// destroyed once no client references their slot.
//
// When used through Manager, every structural call happens while the
// Manager's lock is held, so the check in ReleaseIfUnused and the assignment
// changes that feed its predicate are observed together.
type Registry struct {
	driver driver.Driver

	mu      sync.Mutex
	devices map[model.SlotID]*gamepad.Device
}

// NewRegistry creates an empty registry backed by drv.
func NewRegistry(drv driver.Driver) *Registry {
	return &Registry{
		driver:  drv,
		devices: make(map[model.SlotID]*gamepad.Device),
	}
}

// DriverName returns the name of the backing driver.
func (r *Registry) DriverName() string {
	if r.driver == nil {
		return "none"
	}
	return r.driver.Name()
}

// GetOrCreate returns the slot's device, creating it if absent. On failure the
// registry is left unchanged.
func (r *Registry) GetOrCreate(slot model.SlotID) (*gamepad.Device, error) {
	if !slot.Valid() {
		return nil, fmt.Errorf("slot %d: %w", slot, model.ErrInvalidSlot)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if dev, ok := r.devices[slot]; ok {
		return dev, nil
	}

	dev, err := gamepad.Create(r.driver, slot)
	if err != nil {
		return nil, err
	}
	r.devices[slot] = dev
	log.Printf("session: created device for slot %d", slot)
	return dev, nil
}

// Get returns the slot's live device.
func (r *Registry) Get(slot model.SlotID) (*gamepad.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[slot]
	return dev, ok
}

// ReleaseIfUnused destroys and removes the slot's device unless
// stillReferenced reports the slot as in use. It returns true when a device
// was removed. A destroy failure is returned but the device is removed anyway.
func (r *Registry) ReleaseIfUnused(slot model.SlotID, stillReferenced func(model.SlotID) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[slot]
	if !ok {
		return false, nil
	}
	if stillReferenced != nil && stillReferenced(slot) {
		return false, nil
	}

	delete(r.devices, slot)
	if err := dev.Destroy(); err != nil {
		return true, fmt.Errorf("failed to destroy slot %d: %w", slot, err)
	}
	log.Printf("session: destroyed device for slot %d", slot)
	return true, nil
}

// Live returns the slots that currently have a device, ascending.
func (r *Registry) Live() []model.SlotID {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots := make([]model.SlotID, 0, len(r.devices))
	for slot := range r.devices {
		slots = append(slots, slot)
	}
	model.SortSlots(slots)
	return slots
}

// ShutdownAll resets and destroys every live device. Individual failures are
// logged and do not stop the remaining slots from being released.
func (r *Registry) ShutdownAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, slot := range model.AllSlots() {
		dev, ok := r.devices[slot]
		if !ok {
			continue
		}
		delete(r.devices, slot)
		if err := dev.Destroy(); err != nil {
			log.Printf("session: failed to release slot %d during shutdown: %v", slot, err)
			errs = append(errs, fmt.Errorf("slot %d: %w", slot, err))
		}
	}
	return errors.Join(errs...)
}
