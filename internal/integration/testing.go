// Package integration holds end-to-end tests that exercise the full
// pipeline from driver events through the session to the sinks. Tests
// needing real hardware are gated behind environment variables.
package integration

import (
	"context"
	"os"
	"testing"
	"time"
)

// Config holds integration test configuration from environment
type Config struct {
	BLEDeviceID string // real peripheral address for hardware tests
	SerialPort  string // real serial port for hardware tests
	TestTimeout time.Duration
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	return &Config{
		BLEDeviceID: os.Getenv("GLOVETERM_TEST_BLE_ID"),
		SerialPort:  os.Getenv("GLOVETERM_TEST_SERIAL_PORT"),
		TestTimeout: 60 * time.Second,
	}
}

// SkipIfNoHardware skips the test when the named env var is empty
func SkipIfNoHardware(t *testing.T, value, name string) {
	t.Helper()
	if value == "" {
		t.Skipf("Skipping hardware integration test: %s not set", name)
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
