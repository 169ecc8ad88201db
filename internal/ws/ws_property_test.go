package ws

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/opencontroller/backend/internal/driver"
	"github.com/opencontroller/backend/internal/driver/drivertest"
	"github.com/opencontroller/backend/internal/model"
	"github.com/opencontroller/backend/internal/session"
)

// newPropertyService builds a service without test cleanup hooks, for use
// inside property iterations.
func newPropertyService() (*Service, *drivertest.Driver) {
	drv := drivertest.New()
	return NewService(session.NewManager(session.NewRegistry(drv)), Options{}), drv
}

// latestBroadcast reads everything queued for an observer and returns the
// last occupancy and client count it saw.
func latestBroadcast(client *Client) (map[string]int, int, bool) {
	var occ map[string]int
	count := -1
	for {
		select {
		case data, ok := <-client.SendChan():
			if !ok {
				return occ, count, occ != nil
			}
			var msg Message
			if json.Unmarshal(data, &msg) != nil {
				return nil, 0, false
			}
			switch msg.Event {
			case EventControllerStatus:
				occ = nil
				if json.Unmarshal(msg.Data, &occ) != nil {
					return nil, 0, false
				}
			case EventClientCount:
				var c ClientCountPayload
				if json.Unmarshal(msg.Data, &c) != nil {
					return nil, 0, false
				}
				count = c.Count
			}
		default:
			return occ, count, occ != nil
		}
	}
}

// Observers always see an occupancy that sums to the controller count, and
// a client_count that matches it, whatever order clients come and go.
func TestStatusBroadcastProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("broadcast occupancy totals the controller count", prop.ForAll(
		func(ops []int) bool {
			svc, _ := newPropertyService()
			defer svc.Close()

			obs := svc.NewClient(nil, RoleObserver)
			if svc.Attach(obs) != nil {
				return false
			}

			var clients []*Client
			for _, op := range ops {
				switch op % 3 {
				case 0:
					c := svc.NewClient(nil, RoleController)
					if svc.Attach(c) != nil {
						return false
					}
					clients = append(clients, c)
				case 1:
					if len(clients) == 0 {
						continue
					}
					c := clients[op%len(clients)]
					msg, _ := NewMessage(EventSelectController, SelectPayload{Controller: float64(op % 6)})
					svc.HandleMessage(c, msg)
				case 2:
					if len(clients) == 0 {
						continue
					}
					i := op % len(clients)
					svc.Detach(clients[i])
					clients = append(clients[:i], clients[i+1:]...)
				}

				occ, count, ok := latestBroadcast(obs)
				if !ok {
					continue
				}
				total := 0
				for _, n := range occ {
					total += n
				}
				if total != len(clients) || count != len(clients) {
					return false
				}
				if len(occ) != model.MaxSlots {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(30, gen.IntRange(0, 60)),
	))

	properties.TestingRun(t)
}

// Every known button name pressed or released over the dispatcher lands on
// the client's device.
func TestInputDispatchProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	names := []interface{}{"a", "b", "x", "y", "up", "down", "left", "right", "start", "back", "guide", "lb", "rb", "ls", "rs"}

	properties.Property("button state follows the last event", prop.ForAll(
		func(v interface{}, presses []bool) bool {
			name := v.(string)
			svc, drv := newPropertyService()
			defer svc.Close()

			c := svc.NewClient(nil, RoleController)
			if svc.Attach(c) != nil {
				return false
			}

			button, ok := driver.LookupButton(name)
			if !ok {
				return false
			}

			want := false
			for _, pressed := range presses {
				msg, _ := NewMessage(EventInput, model.InputEvent{Type: model.InputKindButton, Button: name, Pressed: pressed})
				svc.HandleMessage(c, msg)
				want = pressed
			}

			h, live := drv.Device(1)
			if !live {
				return false
			}
			return h.Report().Pressed(button) == want && c.Inputs() == int64(len(presses))
		},
		gen.OneConstOf(names...),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
