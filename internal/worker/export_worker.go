package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finanzapp/internal/amqp"
	"finanzapp/internal/core"
	"finanzapp/internal/sheets"
)

// EntryReader loads ledger entries referenced by events.
type EntryReader interface {
	GetEntry(ctx context.Context, id string) (core.LedgerEntry, error)
	ListEntries(ctx context.Context, userID string, w core.Window) ([]core.LedgerEntry, error)
}

// ExportWorker mirrors ledger entries into a spreadsheet as events arrive.
type ExportWorker struct {
	entries EntryReader
	mirror  sheets.LedgerMirror
}

func NewExportWorker(entries EntryReader, mirror sheets.LedgerMirror) *ExportWorker {
	return &ExportWorker{entries: entries, mirror: mirror}
}

// HandleLedgerEvent processes a single ledger event from AMQP. A returned
// error requeues the message.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"entry_id", msg.EntryID,
		"event", msg.Event)

	switch msg.Event {
	case amqp.EventDeleted:
		if err := w.mirror.DeleteEntry(ctx, msg.EntryID); err != nil {
			return fmt.Errorf("delete mirrored entry: %w", err)
		}
		return nil
	case amqp.EventCreated, amqp.EventCharged:
	default:
		slog.WarnContext(ctx, "Skipping unknown ledger event", "event", msg.Event, "entry_id", msg.EntryID)
		return nil
	}

	entry, err := w.entries.GetEntry(ctx, msg.EntryID)
	if errors.Is(err, core.ErrNotFound) {
		// deleted before we got to it; the delete event follows
		slog.InfoContext(ctx, "Entry no longer exists, skipping", "entry_id", msg.EntryID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get entry from storage: %w", err)
	}
	return w.export(ctx, entry)
}

// ExportWindow mirrors every entry of userID charged within win. It is the
// recovery path for events lost while the worker was down.
func (w *ExportWorker) ExportWindow(ctx context.Context, userID string, win core.Window) (int, error) {
	entries, err := w.entries.ListEntries(ctx, userID, win)
	if err != nil {
		return 0, fmt.Errorf("list entries: %w", err)
	}
	synced, failed := 0, 0
	var errs []error
	for _, e := range entries {
		if err := w.export(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to export entry", "entry_id", e.ID, "error", err)
			errs = append(errs, err)
			failed++
			continue
		}
		synced++
	}
	slog.InfoContext(ctx, "Window export completed",
		"user_id", userID,
		"total", len(entries),
		"synced", synced,
		"errors", failed)
	return synced, errors.Join(errs...)
}

func (w *ExportWorker) export(ctx context.Context, e core.LedgerEntry) error {
	ref, err := w.mirror.Append(ctx, e)
	if err != nil {
		return fmt.Errorf("append to mirror: %w", err)
	}
	slog.InfoContext(ctx, "Exported entry",
		"entry_id", e.ID,
		"sheets_ref", ref,
		"month_key", e.MonthKey,
		"amount_cents", e.Amount.Cents)
	return nil
}
