package audit

import (
	"context"
	"fmt"

	"github.com/wakora/hatua/core"
)

type (
	Repository interface {
		AppendEntry(ctx context.Context, entry Entry) (Entry, error)
		QueryEntriesByFounder(ctx context.Context, founderID string) ([]Entry, error)
	}

	// Writer appends enforcement decisions to the audit trail. Append failures
	// are logged and never propagated: an audit hiccup must not roll back the
	// state transition it describes.
	Writer struct {
		repo   Repository
		clock  core.Clock
		logger core.Logger
	}
)

func NewWriter(repo Repository, clock core.Clock, logger core.Logger) *Writer {
	return &Writer{repo: repo, clock: clock, logger: logger}
}

func (w *Writer) Record(ctx context.Context, entry Entry) {
	if entry.At.IsZero() {
		entry.At = w.clock.Now().UTC()
	}
	if _, err := w.repo.AppendEntry(ctx, entry); err != nil {
		w.logger.Error(fmt.Sprintf("appending audit entry (%s %s founder=%s): %v",
			entry.Action, entry.Decision, entry.FounderID, err), err)
	}
}

func (w *Writer) QueryByFounder(ctx context.Context, founderID string) ([]Entry, error) {
	return w.repo.QueryEntriesByFounder(ctx, founderID)
}
