// Package session tracks which client owns which virtual controller slot.
//
// Manager and Registry form one guarded state: Manager owns client
// assignments and per-slot reference counts, Registry owns device handles,
// and every structural change (assign, reassign, release, create, destroy)
// runs under Manager's lock. Input only takes the read side of that lock to
// resolve a device, then applies outside it; a destroy racing the input is
// resolved by the device itself.
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/opencontroller/backend/internal/model"
)

// ErrClosed is returned by Connect after Shutdown.
var ErrClosed = errors.New("session manager closed")

// ClientSession is the live association of one client with a slot.
type ClientSession struct {
	ClientID    string       `json:"clientId"`
	Slot        model.SlotID `json:"controller"`
	ConnectedAt time.Time    `json:"connectedAt"`
}

// Status is a consistent snapshot of assignments and devices.
type Status struct {
	Clients   int             `json:"clients"`
	Occupancy model.Occupancy `json:"controllers"`
	LiveSlots []model.SlotID  `json:"live_slots"`
}

// Manager manages controller sessions.
type Manager struct {
	registry *Registry

	mu       sync.RWMutex
	sessions map[string]*ClientSession
	refs     [model.MaxSlots + 1]int
	closed   bool
}

// NewManager creates a session manager that materializes devices through registry.
func NewManager(registry *Registry) *Manager {
	return &Manager{
		registry: registry,
		sessions: make(map[string]*ClientSession),
	}
}

// Registry returns the slot registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Connect registers a client and auto-assigns it to the lowest slot with no
// owners, falling back to model.DefaultSlot when every slot is taken. The
// client stays assigned even when the device cannot be created; the returned
// error then wraps model.ErrDriverUnavailable and Success is false.
func (m *Manager) Connect(clientID string) (model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return model.Assignment{}, ErrClosed
	}

	if sess, ok := m.sessions[clientID]; ok {
		_, live := m.registry.Get(sess.Slot)
		return model.Assignment{Slot: sess.Slot, Success: live}, nil
	}

	slot := m.lowestFreeLocked()
	m.sessions[clientID] = &ClientSession{
		ClientID:    clientID,
		Slot:        slot,
		ConnectedAt: time.Now(),
	}
	m.refs[slot]++

	_, err := m.registry.GetOrCreate(slot)
	return model.Assignment{Slot: slot, Success: err == nil, AutoAssigned: true}, err
}

// Select moves a client to the requested slot. Out-of-range requests are
// clamped to model.DefaultSlot. Selecting the current slot keeps the device
// as is, retrying creation only if an earlier attempt failed.
func (m *Manager) Select(clientID string, requested model.SlotID) (model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[clientID]
	if !ok {
		return model.Assignment{}, fmt.Errorf("client %s: %w", clientID, model.ErrSessionNotFound)
	}

	target := requested.Clamp()
	if target == sess.Slot {
		if _, live := m.registry.Get(target); live {
			return model.Assignment{Slot: target, Success: true}, nil
		}
		_, err := m.registry.GetOrCreate(target)
		return model.Assignment{Slot: target, Success: err == nil}, err
	}

	old := sess.Slot
	m.refs[old]--
	m.releaseLocked(old)

	sess.Slot = target
	m.refs[target]++

	_, err := m.registry.GetOrCreate(target)
	return model.Assignment{Slot: target, Success: err == nil}, err
}

// Disconnect removes the client's session and releases its slot. It is
// idempotent and reports the slot the client held, if any.
func (m *Manager) Disconnect(clientID string) (model.SlotID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[clientID]
	if !ok {
		return 0, false
	}
	delete(m.sessions, clientID)
	m.refs[sess.Slot]--
	m.releaseLocked(sess.Slot)
	return sess.Slot, true
}

// Input applies an input event to the client's device. Events from clients
// without a session, or whose slot has no device, are rejected without side
// effects. It returns the slot the event was applied to.
func (m *Manager) Input(clientID string, ev model.InputEvent) (model.SlotID, error) {
	m.mu.RLock()
	sess, ok := m.sessions[clientID]
	if !ok {
		m.mu.RUnlock()
		return 0, fmt.Errorf("client %s: %w", clientID, model.ErrSessionNotFound)
	}
	slot := sess.Slot
	dev, live := m.registry.Get(slot)
	m.mu.RUnlock()

	if !live {
		return slot, fmt.Errorf("slot %d has no device: %w", slot, model.ErrDeviceClosed)
	}
	return slot, dev.Apply(ev)
}

// Slot returns the client's current slot.
func (m *Manager) Slot(clientID string) (model.SlotID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[clientID]
	if !ok {
		return 0, false
	}
	return sess.Slot, true
}

// Occupancy returns the number of clients assigned to each slot.
func (m *Manager) Occupancy() model.Occupancy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.occupancyLocked()
}

// ClientCount returns the number of live sessions.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sessions returns a copy of every live session.
func (m *Manager) Sessions() []ClientSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ClientSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, *sess)
	}
	return out
}

// Status returns assignments and live devices observed under one lock.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Clients:   len(m.sessions),
		Occupancy: m.occupancyLocked(),
		LiveSlots: m.registry.Live(),
	}
}

// Shutdown drops every session and releases all devices. Connect fails
// afterwards.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.sessions = make(map[string]*ClientSession)
	m.refs = [model.MaxSlots + 1]int{}
	return m.registry.ShutdownAll()
}

func (m *Manager) occupancyLocked() model.Occupancy {
	occ := make(model.Occupancy, model.MaxSlots)
	for _, slot := range model.AllSlots() {
		occ[slot] = m.refs[slot]
	}
	return occ
}

func (m *Manager) lowestFreeLocked() model.SlotID {
	for _, slot := range model.AllSlots() {
		if m.refs[slot] == 0 {
			return slot
		}
	}
	return model.DefaultSlot
}

func (m *Manager) referencedLocked(slot model.SlotID) bool {
	return m.refs[slot] > 0
}

func (m *Manager) releaseLocked(slot model.SlotID) {
	if _, err := m.registry.ReleaseIfUnused(slot, m.referencedLocked); err != nil {
		log.Printf("session: %v", err)
	}
}
