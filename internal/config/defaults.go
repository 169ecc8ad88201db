package config

// DefaultAddr listens on all interfaces so phones on the LAN can connect.
const DefaultAddr = "0.0.0.0:5000"

// DefaultDBPath is relative to the working directory.
const DefaultDBPath = "data/sessions.db"

// DefaultDriver is the in-memory driver.
const DefaultDriver = "loopback"

// DefaultMaxDevices matches the number of slots.
const DefaultMaxDevices = 4

// DefaultInputRate and DefaultInputBurst bound per-client inbound events.
const (
	DefaultInputRate  = 500
	DefaultInputBurst = 50
)

// DefaultHistorySize is the number of recent activity entries kept.
const DefaultHistorySize = 64
