package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"finanzapp/internal/amqp"
	"finanzapp/internal/core"
	"finanzapp/internal/sheets/memory"
)

type fakeEntries struct {
	entries map[string]core.LedgerEntry
	err     error
}

func (f *fakeEntries) GetEntry(_ context.Context, id string) (core.LedgerEntry, error) {
	if f.err != nil {
		return core.LedgerEntry{}, f.err
	}
	e, ok := f.entries[id]
	if !ok {
		return core.LedgerEntry{}, core.ErrNotFound
	}
	return e, nil
}

func (f *fakeEntries) ListEntries(_ context.Context, userID string, w core.Window) ([]core.LedgerEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []core.LedgerEntry
	for _, e := range f.entries {
		if e.UserID == userID && w.Contains(e.ChargedAt) {
			out = append(out, e)
		}
	}
	return out, nil
}

type failingMirror struct{ *memory.Store }

func (failingMirror) Append(context.Context, core.LedgerEntry) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestHandleLedgerEvent(t *testing.T) {
	ctx := context.Background()
	entries := &fakeEntries{entries: map[string]core.LedgerEntry{
		"e1": {ID: "e1", UserID: "u1", Purpose: "Rent"},
	}}

	tests := []struct {
		name      string
		event     amqp.LedgerEvent
		entryID   string
		wantIDs   []string
		preloaded bool
	}{
		{name: "charged entry is appended", event: amqp.EventCharged, entryID: "e1", wantIDs: []string{"e1"}},
		{name: "created entry is appended", event: amqp.EventCreated, entryID: "e1", wantIDs: []string{"e1"}},
		{name: "missing entry is skipped", event: amqp.EventCharged, entryID: "gone"},
		{name: "deleted entry is removed", event: amqp.EventDeleted, entryID: "e1", preloaded: true},
		{name: "unknown event is ignored", event: "renamed", entryID: "e1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mirror := memory.New()
			if tt.preloaded {
				mirror.Append(ctx, core.LedgerEntry{ID: tt.entryID})
			}
			w := NewExportWorker(entries, mirror)
			err := w.HandleLedgerEvent(ctx, amqp.NewLedgerEventMessage(tt.entryID, "u1", tt.event))
			if err != nil {
				t.Fatalf("HandleLedgerEvent() error = %v", err)
			}
			got := mirror.Entries()
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("mirror has %d entries, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("mirror[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestHandleLedgerEvent_ErrorsRequeue(t *testing.T) {
	ctx := context.Background()
	msg := amqp.NewLedgerEventMessage("e1", "u1", amqp.EventCharged)

	storageDown := NewExportWorker(&fakeEntries{err: errors.New("db locked")}, memory.New())
	if err := storageDown.HandleLedgerEvent(ctx, msg); err == nil {
		t.Error("expected storage error to be returned")
	}

	entries := &fakeEntries{entries: map[string]core.LedgerEntry{"e1": {ID: "e1"}}}
	mirrorDown := NewExportWorker(entries, failingMirror{memory.New()})
	if err := mirrorDown.HandleLedgerEvent(ctx, msg); err == nil {
		t.Error("expected mirror error to be returned")
	}
}

func TestExportWindow(t *testing.T) {
	ctx := context.Background()
	march := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	entries := &fakeEntries{entries: map[string]core.LedgerEntry{
		"in":    {ID: "in", UserID: "u1", ChargedAt: march},
		"other": {ID: "other", UserID: "u2", ChargedAt: march},
		"april": {ID: "april", UserID: "u1", ChargedAt: march.AddDate(0, 1, 0)},
	}}
	win := core.Window{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	mirror := memory.New()
	n, err := NewExportWorker(entries, mirror).ExportWindow(ctx, "u1", win)
	if err != nil || n != 1 {
		t.Fatalf("ExportWindow() = %d, %v; want 1, nil", n, err)
	}
	if got := mirror.Entries(); len(got) != 1 || got[0].ID != "in" {
		t.Errorf("unexpected mirror content: %+v", got)
	}

	n, err = NewExportWorker(entries, failingMirror{memory.New()}).ExportWindow(ctx, "u1", win)
	if err == nil || n != 0 {
		t.Errorf("ExportWindow() with failing mirror = %d, %v", n, err)
	}
}
