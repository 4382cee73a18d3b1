package sheets

import (
	"context"

	"finanzapp/internal/core"
)

// Ports for outbound mirror adapters.
type (
	LedgerWriter interface {
		Append(ctx context.Context, e core.LedgerEntry) (rowRef string, err error)
	}

	// LedgerDeleter removes a mirrored entry. Removing an entry that was
	// never mirrored is not an error.
	LedgerDeleter interface {
		DeleteEntry(ctx context.Context, entryID string) error
	}

	LedgerMirror interface {
		LedgerWriter
		LedgerDeleter
	}
)
