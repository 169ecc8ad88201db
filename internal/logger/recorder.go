// Package logger records applied controller input as JSON Lines.
//
// A recording starts with a header line followed by one event per line:
//
//	{"version":1,"slots":4,"timestamp":1700000000}
//	[0.512,1,"b",{"type":"button","button":"a","pressed":true}]
//	[0.530,1,"s",{"type":"stick","x":0.25,"y":-1}]
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opencontroller/backend/internal/model"
)

// RecordingVersion is the format version written in headers.
const RecordingVersion = 1

// Header is the first line of a recording.
type Header struct {
	Version   int   `json:"version"`
	Slots     int   `json:"slots"`
	Timestamp int64 `json:"timestamp"`
}

// Event is one recorded input.
// Format: [time_offset, slot, kind, input]
type Event struct {
	TimeOffset float64
	Slot       model.SlotID
	Kind       string // "b" for button, "s" for stick
	Input      model.InputEvent
}

// MarshalJSON encodes the event as a 4-element array.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.TimeOffset, int(e.Slot), e.Kind, e.Input})
}

// UnmarshalJSON decodes a 4-element array.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 4 {
		return fmt.Errorf("invalid event format: expected 4 elements, got %d", len(arr))
	}

	if err := json.Unmarshal(arr[0], &e.TimeOffset); err != nil {
		return fmt.Errorf("invalid time offset: %w", err)
	}
	var slot int
	if err := json.Unmarshal(arr[1], &slot); err != nil {
		return fmt.Errorf("invalid slot: %w", err)
	}
	e.Slot = model.SlotID(slot)
	if err := json.Unmarshal(arr[2], &e.Kind); err != nil {
		return fmt.Errorf("invalid event kind: %w", err)
	}
	if err := json.Unmarshal(arr[3], &e.Input); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

// Recorder writes input recordings.
type Recorder struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	mu        sync.Mutex
}

// NewRecorder creates a recording file named after the current time in dir
// and writes its header.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}

	start := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("%d.jsonl", start.Unix()))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	r := &Recorder{writer: file, file: file, startTime: start}
	if err := r.writeHeader(); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewRecorderWithWriter creates a recorder writing to w.
// This is useful for testing.
func NewRecorderWithWriter(w io.Writer) (*Recorder, error) {
	r := &Recorder{writer: w, startTime: time.Now()}
	if err := r.writeHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) writeHeader() error {
	header := Header{
		Version:   RecordingVersion,
		Slots:     model.MaxSlots,
		Timestamp: r.startTime.Unix(),
	}
	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteInput records an input applied to slot.
func (r *Recorder) WriteInput(slot model.SlotID, ev model.InputEvent) error {
	kind := "b"
	if ev.Type == model.InputKindStick {
		kind = "s"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	event := Event{
		TimeOffset: time.Since(r.startTime).Seconds(),
		Slot:       slot,
		Kind:       kind,
		Input:      ev,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the recording file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// StartTime returns the start time of the recording.
func (r *Recorder) StartTime() time.Time {
	return r.startTime
}
