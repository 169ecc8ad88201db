package mdns

import (
	"strings"
	"testing"
)

func TestAdvertiser_TXTRecords(t *testing.T) {
	a := NewAdvertiser(Config{Port: 5000, Name: "den"})

	records := a.TXTRecords()
	want := []string{"version=1", "name=den", "slots=4"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %v", len(want), records)
	}
	for i := range want {
		if records[i] != want[i] {
			t.Errorf("record %d: expected %q, got %q", i, want[i], records[i])
		}
	}
}

func TestAdvertiser_DefaultName(t *testing.T) {
	a := NewAdvertiser(Config{Port: 5000})
	if a.InstanceName() == "" {
		t.Error("instance name should never be empty")
	}
}

func TestAdvertiser_InvalidPort(t *testing.T) {
	a := NewAdvertiser(Config{Port: 0, Name: "den"})
	err := a.Start()
	if err == nil || !strings.Contains(err.Error(), "invalid port") {
		t.Errorf("expected invalid port error, got %v", err)
	}
	if a.IsRunning() {
		t.Error("advertiser should not be running")
	}
}

func TestAdvertiser_StopWhenNotRunning(t *testing.T) {
	a := NewAdvertiser(Config{Port: 5000})
	a.Stop()
	a.Stop()
	if a.IsRunning() {
		t.Error("advertiser should not be running")
	}
}
