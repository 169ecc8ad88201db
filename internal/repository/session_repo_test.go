package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/opencontroller/backend/internal/db"
	"github.com/opencontroller/backend/internal/model"
)

func setupTestRepo(t *testing.T) *SessionRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return NewSessionRepository(testDB)
}

func newRecord(clientID string, slot model.SlotID) *model.SessionRecord {
	now := time.Now()
	return &model.SessionRecord{
		ID:          uuid.New().String(),
		ClientID:    clientID,
		Slot:        slot,
		RemoteAddr:  "192.168.1.20:51000",
		Status:      model.SessionStatusConnected,
		DriverOK:    true,
		ConnectedAt: now,
		UpdatedAt:   now,
	}
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rec := newRecord("client-1", 2)
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("failed to create: %v", err)
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.ClientID != "client-1" || got.Slot != 2 || !got.DriverOK || got.Status != model.SessionStatusConnected {
		t.Errorf("unexpected record %+v", got)
	}
	if got.DisconnectedAt != nil {
		t.Error("new record should not be disconnected")
	}

	if err := repo.UpdateSlot(ctx, rec.ID, 4, false); err != nil {
		t.Fatalf("failed to update slot: %v", err)
	}
	got, _ = repo.GetByID(ctx, rec.ID)
	if got.Slot != 4 || got.DriverOK {
		t.Errorf("expected slot 4 without driver, got %+v", got)
	}

	if err := repo.MarkDisconnected(ctx, rec.ID, 42); err != nil {
		t.Fatalf("failed to mark disconnected: %v", err)
	}
	got, _ = repo.GetByID(ctx, rec.ID)
	if got.Status != model.SessionStatusDisconnected || got.Inputs != 42 || got.DisconnectedAt == nil {
		t.Errorf("unexpected disconnected record %+v", got)
	}
}

func TestSessionRepository_NotFound(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := repo.UpdateSlot(ctx, "missing", 1, true); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := repo.MarkDisconnected(ctx, "missing", 0); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionRepository_ListAndCloseStale(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := newRecord("client", model.SlotID(i%4+1))
		rec.ConnectedAt = rec.ConnectedAt.Add(time.Duration(i) * time.Second)
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("failed to create: %v", err)
		}
	}

	records, err := repo.List(ctx, 3)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].ConnectedAt.Before(records[1].ConnectedAt) {
		t.Error("expected newest record first")
	}

	active, _ := repo.CountActive(ctx)
	if active != 5 {
		t.Errorf("expected 5 active, got %d", active)
	}

	closed, err := repo.CloseStale(ctx)
	if err != nil {
		t.Fatalf("failed to close stale: %v", err)
	}
	if closed != 5 {
		t.Errorf("expected 5 closed, got %d", closed)
	}
	active, _ = repo.CountActive(ctx)
	if active != 0 {
		t.Errorf("expected 0 active after close, got %d", active)
	}
}

// Created records can be read back unchanged.
func TestSessionRecordRoundTripProperty(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	clientID := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= 64
	})

	properties.Property("created records are retrievable", prop.ForAll(
		func(client string, slot int, driverOK bool) bool {
			rec := newRecord(client, model.SlotID(slot))
			rec.DriverOK = driverOK
			if err := repo.Create(ctx, rec); err != nil {
				t.Logf("failed to create: %v", err)
				return false
			}

			got, err := repo.GetByID(ctx, rec.ID)
			if err != nil {
				t.Logf("failed to get: %v", err)
				return false
			}
			return got.ClientID == rec.ClientID &&
				got.Slot == rec.Slot &&
				got.DriverOK == rec.DriverOK &&
				got.RemoteAddr == rec.RemoteAddr &&
				got.Status == model.SessionStatusConnected
		},
		clientID,
		gen.IntRange(1, model.MaxSlots),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
