// Package driver defines the virtual gamepad driver capability and ships an
// in-memory loopback implementation.
//
// A Driver creates one Handle per controller slot. A Handle accumulates button
// and axis changes and only publishes them to the device on Update, mirroring
// how XUSB report based drivers behave.
package driver

import "github.com/opencontroller/backend/internal/model"

// Button is an XUSB button bit.
type Button uint16

// XUSB button bits.
const (
	ButtonDpadUp        Button = 0x0001
	ButtonDpadDown      Button = 0x0002
	ButtonDpadLeft      Button = 0x0004
	ButtonDpadRight     Button = 0x0008
	ButtonStart         Button = 0x0010
	ButtonBack          Button = 0x0020
	ButtonLeftThumb     Button = 0x0040
	ButtonRightThumb    Button = 0x0080
	ButtonLeftShoulder  Button = 0x0100
	ButtonRightShoulder Button = 0x0200
	ButtonGuide         Button = 0x0400
	ButtonA             Button = 0x1000
	ButtonB             Button = 0x2000
	ButtonX             Button = 0x4000
	ButtonY             Button = 0x8000
)

// buttonMap maps client button names to XUSB bits.
var buttonMap = map[string]Button{
	"a":     ButtonA,
	"b":     ButtonB,
	"x":     ButtonX,
	"y":     ButtonY,
	"up":    ButtonDpadUp,
	"down":  ButtonDpadDown,
	"left":  ButtonDpadLeft,
	"right": ButtonDpadRight,
	"start": ButtonStart,
	"back":  ButtonBack,
	"guide": ButtonGuide,
	"lb":    ButtonLeftShoulder,
	"rb":    ButtonRightShoulder,
	"ls":    ButtonLeftThumb,
	"rs":    ButtonRightThumb,
}

// LookupButton resolves a client button name. Unknown names return false.
func LookupButton(name string) (Button, bool) {
	b, ok := buttonMap[name]
	return b, ok
}

// Driver creates virtual controller devices.
type Driver interface {
	// Name identifies the driver in logs and status output.
	Name() string

	// Create acquires a device for the slot. Implementations return an error
	// wrapping model.ErrDriverUnavailable when no device can be created.
	Create(slot model.SlotID) (Handle, error)
}

// Handle is one live virtual controller.
type Handle interface {
	PressButton(b Button) error
	ReleaseButton(b Button) error

	// LeftJoystick sets the left stick in signed 16-bit device units.
	LeftJoystick(x, y int16) error

	// Update flushes pending state to the device.
	Update() error

	// Reset returns all buttons and axes to neutral and flushes.
	Reset() error

	// Close releases the device.
	Close() error
}
