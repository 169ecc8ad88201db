// Package driver re-exports the virtual gamepad driver capability so that
// platform bindings living outside this module can be plugged into the server.
package driver

import (
	"github.com/opencontroller/backend/internal/driver"
	"github.com/opencontroller/backend/internal/model"
)

// Re-export types from internal/driver for external use
type (
	Driver         = driver.Driver
	Handle         = driver.Handle
	Button         = driver.Button
	Report         = driver.Report
	LoopbackDriver = driver.LoopbackDriver
	SlotID         = model.SlotID
)

// ErrDriverUnavailable should be wrapped by Driver.Create failures.
var ErrDriverUnavailable = model.ErrDriverUnavailable

// NewLoopbackDriver creates an in-memory driver with the given capacity.
func NewLoopbackDriver(capacity int) *LoopbackDriver {
	return driver.NewLoopbackDriver(capacity)
}

// LookupButton resolves a client button name to an XUSB button bit.
func LookupButton(name string) (Button, bool) {
	return driver.LookupButton(name)
}
