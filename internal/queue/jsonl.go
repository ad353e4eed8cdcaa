package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/salesbeat/fieldsync/internal/store"
)

// ExportJSONL writes every queue entry to w as one JSON object per line,
// oldest first. Used by support workflows to capture a stuck queue before
// clearing it.
func (q *Queue) ExportJSONL(ctx context.Context, w io.Writer) (int, error) {
	entries, err := q.All(ctx)
	if err != nil {
		return 0, err
	}

	encoder := json.NewEncoder(w)
	written := 0
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return written, fmt.Errorf("failed to encode entry %s: %w", entry.ID, err)
		}
		written++
	}
	return written, nil
}

// ImportJSONL reads entries from r (one JSON object per line) and upserts
// them into the queue. Invalid lines are counted and skipped; the import
// continues with the rest.
func (q *Queue) ImportJSONL(ctx context.Context, r io.Reader) (imported, skipped int, err error) {
	decoder := json.NewDecoder(r)
	lineNum := 0

	for {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			if err == io.EOF {
				break
			}
			return imported, skipped, fmt.Errorf("invalid JSON at entry %d: %w", lineNum+1, err)
		}
		lineNum++

		if err := entry.Validate(); err != nil {
			q.logger.Printf("WARNING: skipping invalid entry at line %d: %v", lineNum, err)
			skipped++
			continue
		}

		if err := q.store.Save(ctx, store.SyncQueue, entry.ID, &entry); err != nil {
			q.logger.Printf("WARNING: failed to import entry %s: %v", entry.ID, err)
			skipped++
			continue
		}
		imported++
	}

	if imported > 0 {
		q.notifyChanged(ctx)
	}
	return imported, skipped, nil
}

// ExportFile exports the queue to a JSONL file at path.
func (q *Queue) ExportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	return q.ExportJSONL(ctx, f)
}

// ImportFile imports queue entries from a JSONL file at path.
func (q *Queue) ImportFile(ctx context.Context, path string) (imported, skipped int, err error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	return q.ImportJSONL(ctx, f)
}
