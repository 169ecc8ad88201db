package driver

import (
	"errors"
	"math"
	"testing"

	"github.com/opencontroller/backend/internal/model"
)

func TestLookupButton(t *testing.T) {
	testCases := []struct {
		name   string
		want   Button
		wantOK bool
	}{
		{"a", ButtonA, true},
		{"b", ButtonB, true},
		{"x", ButtonX, true},
		{"y", ButtonY, true},
		{"up", ButtonDpadUp, true},
		{"down", ButtonDpadDown, true},
		{"left", ButtonDpadLeft, true},
		{"right", ButtonDpadRight, true},
		{"start", ButtonStart, true},
		{"turbo", 0, false},
		{"A", 0, false},
		{"", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := LookupButton(tc.name)
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%v, got %v", tc.wantOK, ok)
			}
			if got != tc.want {
				t.Errorf("expected button %#x, got %#x", tc.want, got)
			}
		})
	}
}

func TestAxisToInt16(t *testing.T) {
	testCases := []struct {
		name string
		in   float64
		want int16
	}{
		{"zero", 0, 0},
		{"full positive", 1, 32767},
		{"full negative", -1, -32768},
		{"half positive", 0.5, 16384},
		{"half negative", -0.5, -16384},
		{"over range positive", 2.5, 32767},
		{"over range negative", -7, -32768},
		{"nan", math.NaN(), 0},
		{"positive infinity", math.Inf(1), 32767},
		{"negative infinity", math.Inf(-1), -32768},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AxisToInt16(tc.in); got != tc.want {
				t.Errorf("AxisToInt16(%v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestStickToInt16(t *testing.T) {
	x, y := StickToInt16(1.0, -1.0)
	if x != 32767 || y != 32767 {
		t.Errorf("expected (32767, 32767), got (%d, %d)", x, y)
	}

	x, y = StickToInt16(-1.0, 1.0)
	if x != -32768 || y != -32768 {
		t.Errorf("expected (-32768, -32768), got (%d, %d)", x, y)
	}

	x, y = StickToInt16(0, 0)
	if x != 0 || y != 0 {
		t.Errorf("expected neutral stick, got (%d, %d)", x, y)
	}
}

func TestLoopbackDriver_Name(t *testing.T) {
	d := NewLoopbackDriver(0)
	if d.Name() != "loopback" {
		t.Errorf("expected name 'loopback', got '%s'", d.Name())
	}
}

func TestLoopbackDriver_Capacity(t *testing.T) {
	d := NewLoopbackDriver(2)

	if _, err := d.Create(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.Create(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := d.Create(3)
	if !errors.Is(err, model.ErrDriverUnavailable) {
		t.Fatalf("expected ErrDriverUnavailable, got %v", err)
	}

	if d.Live() != 2 {
		t.Errorf("expected 2 live devices, got %d", d.Live())
	}
}

func TestLoopbackDriver_DuplicateSlot(t *testing.T) {
	d := NewLoopbackDriver(4)

	if _, err := d.Create(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.Create(1); !errors.Is(err, model.ErrDriverUnavailable) {
		t.Fatalf("expected ErrDriverUnavailable for duplicate slot, got %v", err)
	}
}

func TestLoopbackHandle_UpdateCommitsPendingState(t *testing.T) {
	d := NewLoopbackDriver(4)
	h, err := d.Create(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lh := h.(*LoopbackHandle)

	lh.PressButton(ButtonA)
	lh.LeftJoystick(100, -100)

	if lh.Report().Pressed(ButtonA) {
		t.Error("button should not be visible before Update")
	}

	if err := lh.Update(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := lh.Report()
	if !r.Pressed(ButtonA) || r.LX != 100 || r.LY != -100 {
		t.Errorf("unexpected report after update: %+v", r)
	}

	lh.ReleaseButton(ButtonA)
	lh.ReleaseButton(ButtonA)
	lh.Update()
	if lh.Report().Pressed(ButtonA) {
		t.Error("button should be released")
	}
}

func TestLoopbackHandle_ResetAndClose(t *testing.T) {
	d := NewLoopbackDriver(4)
	h, _ := d.Create(2)
	lh := h.(*LoopbackHandle)

	lh.PressButton(ButtonB)
	lh.Update()

	if err := lh.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lh.Report() != (Report{}) {
		t.Errorf("expected neutral report after reset, got %+v", lh.Report())
	}

	if err := lh.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := d.Device(2); ok {
		t.Error("closed device should be removed from driver")
	}
	if err := lh.Close(); !errors.Is(err, model.ErrDeviceClosed) {
		t.Errorf("expected ErrDeviceClosed on second close, got %v", err)
	}
	if err := lh.PressButton(ButtonA); !errors.Is(err, model.ErrDeviceClosed) {
		t.Errorf("expected ErrDeviceClosed after close, got %v", err)
	}

	// The slot can be reused once released.
	if _, err := d.Create(2); err != nil {
		t.Errorf("expected slot to be reusable, got %v", err)
	}
	if d.Created() != 2 {
		t.Errorf("expected 2 devices created, got %d", d.Created())
	}
}
