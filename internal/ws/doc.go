// Package ws provides the websocket event dispatcher for controller clients.
//
// The package implements:
//   - Hub: the lobby of connected clients, used for broadcasts
//   - Client: one websocket connection with its send queue and input limiter
//   - Handler: upgrades HTTP requests and runs the read/write pumps
//   - Service: routes connect, disconnect, select_controller and input events
//     to the session manager and emits controller_assigned, controller_status
//     and client_count messages
//
// Every frame is a JSON envelope {"event": name, "data": payload}. Clients
// opened with ?role=observer (a lobby display, for example) receive broadcasts
// but never own a slot.
package ws
