package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/opencontroller/backend/internal/buffer"
	"github.com/opencontroller/backend/internal/metrics"
	"github.com/opencontroller/backend/internal/model"
	"github.com/opencontroller/backend/internal/session"
)

// storeTimeout bounds each session history write.
const storeTimeout = 2 * time.Second

// Activity event names kept in the recent activity ring.
const (
	ActivityConnected      = "connected"
	ActivitySelected       = "selected"
	ActivityDisconnected   = "disconnected"
	ActivityDriverFailure  = "driver_failure"
	ActivityObserverJoined = "observer_joined"
	ActivityObserverLeft   = "observer_left"
)

// SessionStore persists controller session history.
type SessionStore interface {
	Create(ctx context.Context, rec *model.SessionRecord) error
	UpdateSlot(ctx context.Context, id string, slot model.SlotID, driverOK bool) error
	MarkDisconnected(ctx context.Context, id string, inputs int64) error
}

// InputRecorder receives every input that reached a device.
type InputRecorder interface {
	WriteInput(slot model.SlotID, ev model.InputEvent) error
}

// Options configures the optional collaborators of a Service.
type Options struct {
	Store       SessionStore
	Recorder    InputRecorder
	Metrics     *metrics.Metrics
	InputRate   float64 // events per second per client, <= 0 disables limiting
	InputBurst  int
	HistorySize int
}

// Activity is one entry of the recent activity ring.
type Activity struct {
	Time     time.Time    `json:"time"`
	Event    string       `json:"event"`
	ClientID string       `json:"clientId"`
	Slot     model.SlotID `json:"controller,omitempty"`
	Success  bool         `json:"success"`
}

// Status is the snapshot served by the status endpoint.
type Status struct {
	Clients     int             `json:"clients"`
	Observers   int             `json:"observers"`
	Controllers model.Occupancy `json:"controllers"`
	LiveSlots   []model.SlotID  `json:"live_slots"`
	Driver      string          `json:"driver"`
	Recent      []Activity      `json:"recent"`
}

// Service dispatches websocket events to the session manager.
type Service struct {
	hub      *Hub
	manager  *session.Manager
	handler  *Handler
	store    SessionStore
	recorder InputRecorder
	metrics  *metrics.Metrics
	history  *buffer.Ring[Activity]

	inputRate  float64
	inputBurst int

	// statusMu orders status snapshots with their broadcasts, so a later
	// broadcast never carries an older snapshot.
	statusMu sync.Mutex

	// mu is held for reading across Attach, so Close never misses a client
	// that is mid-attach.
	mu     sync.RWMutex
	closed bool
}

// NewService creates a dispatcher for manager.
func NewService(manager *session.Manager, opts Options) *Service {
	burst := opts.InputBurst
	if burst <= 0 {
		burst = 1
	}
	s := &Service{
		hub:        NewHub(),
		manager:    manager,
		store:      opts.Store,
		recorder:   opts.Recorder,
		metrics:    opts.Metrics,
		history:    buffer.NewRing[Activity](opts.HistorySize),
		inputRate:  opts.InputRate,
		inputBurst: burst,
	}
	s.handler = NewHandler(s)
	return s
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// Hub returns the client lobby.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Manager returns the session manager.
func (s *Service) Manager() *session.Manager {
	return s.manager
}

// NewClient creates a client bound to this service's hub and rate limit.
func (s *Service) NewClient(conn *websocket.Conn, role Role) *Client {
	var limiter *rate.Limiter
	if s.inputRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.inputRate), s.inputBurst)
	}
	return NewClient(s.hub, conn, uuid.New().String(), role, limiter)
}

// Attach registers a client. Controllers are auto-assigned a slot and told
// about it; every client then receives the current status and client count.
func (s *Service) Attach(client *Client) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return session.ErrClosed
	}

	if client.role == RoleObserver {
		s.hub.Register(client)
		s.remember(Activity{Event: ActivityObserverJoined, ClientID: client.id, Success: true})
		s.refreshClientGauges()
		s.sendStatus(client)
		return nil
	}

	assignment, err := s.manager.Connect(client.id)
	if errors.Is(err, session.ErrClosed) {
		return err
	}
	if err != nil {
		log.Printf("Failed to create controller %d for client %s: %v", assignment.Slot, client.id, err)
		s.metrics.DriverFailure()
		s.remember(Activity{Event: ActivityDriverFailure, ClientID: client.id, Slot: assignment.Slot})
	}

	client.recordID = uuid.New().String()
	s.hub.Register(client)
	s.persistConnect(client, assignment)
	s.remember(Activity{Event: ActivityConnected, ClientID: client.id, Slot: assignment.Slot, Success: assignment.Success})

	s.sendAssigned(client, assignment)
	s.broadcastStatus()
	return nil
}

// Detach unregisters a client and releases its slot. It is safe to call
// more than once.
func (s *Service) Detach(client *Client) {
	s.hub.Unregister(client)
	client.finish.Do(func() {
		s.finish(client)
	})
}

func (s *Service) finish(client *Client) {
	if client.role == RoleObserver {
		s.remember(Activity{Event: ActivityObserverLeft, ClientID: client.id, Success: true})
		s.refreshClientGauges()
		return
	}

	slot, ok := s.manager.Disconnect(client.id)
	if !ok {
		return
	}
	s.persistDisconnect(client)
	s.remember(Activity{Event: ActivityDisconnected, ClientID: client.id, Slot: slot, Success: true})
	s.broadcastStatus()
}

// HandleMessage routes one inbound event. Malformed and unknown events are
// dropped without a reply.
func (s *Service) HandleMessage(client *Client, msg *Message) {
	switch msg.Event {
	case EventSelectController:
		s.handleSelect(client, msg)
	case EventInput:
		s.handleInput(client, msg)
	case EventPing:
		s.handlePing(client)
	}
}

func (s *Service) handleSelect(client *Client, msg *Message) {
	if client.role != RoleController {
		return
	}

	var payload SelectPayload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
	}

	assignment, err := s.manager.Select(client.id, model.SlotFromNumber(payload.Controller))
	if errors.Is(err, model.ErrSessionNotFound) {
		return
	}
	if err != nil {
		log.Printf("Failed to create controller %d for client %s: %v", assignment.Slot, client.id, err)
		s.metrics.DriverFailure()
		s.remember(Activity{Event: ActivityDriverFailure, ClientID: client.id, Slot: assignment.Slot})
	}

	s.persistSlot(client, assignment)
	s.remember(Activity{Event: ActivitySelected, ClientID: client.id, Slot: assignment.Slot, Success: assignment.Success})

	s.sendAssigned(client, assignment)
	s.broadcastStatus()
}

func (s *Service) handleInput(client *Client, msg *Message) {
	if client.role != RoleController {
		s.metrics.InputDropped(metrics.DropUnassigned)
		return
	}
	if !client.Allow() {
		s.metrics.InputDropped(metrics.DropRateLimited)
		return
	}

	ev, err := model.ParseInputEvent(msg.Data)
	if err != nil {
		s.metrics.InputDropped(metrics.DropUnknown)
		return
	}

	slot, err := s.manager.Input(client.id, ev)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrSessionNotFound):
		s.metrics.InputDropped(metrics.DropUnassigned)
		return
	case errors.Is(err, model.ErrDeviceClosed):
		s.metrics.InputDropped(metrics.DropNoDevice)
		return
	case errors.Is(err, model.ErrUnknownInput):
		s.metrics.InputDropped(metrics.DropUnknown)
		return
	default:
		log.Printf("Failed to apply input on controller %d: %v", slot, err)
		s.metrics.InputDropped(metrics.DropDriverError)
		return
	}

	client.inputs.Add(1)
	s.metrics.InputApplied(ev.Type)
	if s.recorder != nil {
		if err := s.recorder.WriteInput(slot, ev); err != nil {
			log.Printf("Failed to record input: %v", err)
		}
	}
}

// handlePing handles ping messages from the client.
func (s *Service) handlePing(client *Client) {
	client.SendMessage(&Message{Event: EventPong})
}

func (s *Service) sendAssigned(client *Client, assignment model.Assignment) {
	msg, err := NewMessage(EventControllerAssigned, assignment)
	if err != nil {
		log.Printf("Failed to marshal controller_assigned: %v", err)
		return
	}
	client.SendMessage(msg)
}

// sendStatus sends the current occupancy and client count to one client.
func (s *Service) sendStatus(client *Client) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	status, count, err := s.statusMessages()
	if err != nil {
		log.Printf("Failed to marshal status: %v", err)
		return
	}
	client.SendMessage(status)
	client.SendMessage(count)
}

// broadcastStatus sends controller_status then client_count to every client.
func (s *Service) broadcastStatus() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	status, count, err := s.statusMessages()
	if err != nil {
		log.Printf("Failed to marshal status: %v", err)
		return
	}
	s.hub.BroadcastMessage(status)
	s.hub.BroadcastMessage(count)
	s.refreshClientGauges()
}

func (s *Service) statusMessages() (*Message, *Message, error) {
	occupancy := s.manager.Occupancy()
	s.metrics.SetOccupancy(occupancy)

	status, err := NewMessage(EventControllerStatus, occupancy)
	if err != nil {
		return nil, nil, err
	}
	count, err := NewMessage(EventClientCount, ClientCountPayload{Count: s.manager.ClientCount()})
	if err != nil {
		return nil, nil, err
	}
	return status, count, nil
}

func (s *Service) refreshClientGauges() {
	s.metrics.SetClients(string(RoleController), s.hub.CountRole(RoleController))
	s.metrics.SetClients(string(RoleObserver), s.hub.CountRole(RoleObserver))
}

func (s *Service) remember(a Activity) {
	if a.Time.IsZero() {
		a.Time = time.Now()
	}
	s.history.Push(a)
}

func (s *Service) persistConnect(client *Client, assignment model.Assignment) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	now := time.Now()
	rec := &model.SessionRecord{
		ID:          client.recordID,
		ClientID:    client.id,
		Slot:        assignment.Slot,
		RemoteAddr:  client.remoteAddr,
		Status:      model.SessionStatusConnected,
		DriverOK:    assignment.Success,
		ConnectedAt: now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		log.Printf("Failed to persist session for client %s: %v", client.id, err)
	}
}

func (s *Service) persistSlot(client *Client, assignment model.Assignment) {
	if s.store == nil || client.recordID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.store.UpdateSlot(ctx, client.recordID, assignment.Slot, assignment.Success); err != nil {
		log.Printf("Failed to update session for client %s: %v", client.id, err)
	}
}

func (s *Service) persistDisconnect(client *Client) {
	if s.store == nil || client.recordID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.store.MarkDisconnected(ctx, client.recordID, client.Inputs()); err != nil {
		log.Printf("Failed to close session for client %s: %v", client.id, err)
	}
}

// Status returns the occupancy, device and client snapshot plus recent activity.
func (s *Service) Status() Status {
	st := s.manager.Status()
	live := st.LiveSlots
	if live == nil {
		live = []model.SlotID{}
	}
	return Status{
		Clients:     st.Clients,
		Observers:   s.hub.CountRole(RoleObserver),
		Controllers: st.Occupancy,
		LiveSlots:   live,
		Driver:      s.manager.Registry().DriverName(),
		Recent:      s.history.Items(),
	}
}

// Recent returns the recent activity, oldest first.
func (s *Service) Recent() []Activity {
	return s.history.Items()
}

// Close disconnects every client, persisting their sessions, and closes the
// hub. Later connections are refused.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	for _, client := range s.hub.Clients() {
		client.finish.Do(func() {
			s.finish(client)
		})
	}
	s.hub.Close()
}
