package model

import "errors"

var (
	// ErrDriverUnavailable is returned when the virtual device driver cannot create a device.
	ErrDriverUnavailable = errors.New("driver unavailable")

	// ErrUnknownInput is returned for unrecognized buttons or malformed input events.
	ErrUnknownInput = errors.New("unknown input")

	// ErrInvalidSlot is returned when a slot id is outside [1..MaxSlots].
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrSessionNotFound is returned when a client has no live session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDeviceClosed is returned when input reaches a device that was already destroyed.
	ErrDeviceClosed = errors.New("device closed")
)
