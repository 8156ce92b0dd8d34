package workspace

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"modsplit/internal/core/ports"
	"modsplit/internal/shared/observability"
)

const recoveredReason = "recovered after interrupted commit"

type recoverAction int

const (
	actionRolledBack recoverAction = iota
	actionCompleted
	actionConflict
)

// Recover settles commits that were journaled but never marked finished,
// e.g. because the process died mid-write. A commit whose source swap landed
// is marked committed; one that stopped earlier is rolled back. Entries whose
// source was edited since are left pending and reported as conflicts.
func (a *Applier) Recover(ctx context.Context) (ports.RecoverReport, error) {
	var report ports.RecoverReport
	if a.journal == nil {
		return report, nil
	}
	ctx, span := observability.Tracer.Start(ctx, "workspace.Recover")
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	pending, err := a.journal.Pending(ctx)
	if err != nil {
		return report, fmt.Errorf("load pending journal entries: %w", err)
	}

	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		action, err := a.classify(entry)
		if err != nil {
			return report, fmt.Errorf("inspect %s: %w", entry.ID, err)
		}

		switch action {
		case actionCompleted:
			if err := a.journal.MarkCommitted(ctx, entry.ID); err != nil {
				return report, err
			}
			slog.Info("completed interrupted commit", "id", entry.ID, "source", entry.SourcePath, "created", entry.CreatedPath)
			report.Completed++
		case actionRolledBack:
			if err := a.undo(entry); err != nil {
				return report, fmt.Errorf("roll back %s: %w", entry.ID, err)
			}
			if err := a.journal.MarkRolledBack(ctx, entry.ID, recoveredReason); err != nil {
				return report, err
			}
			slog.Info("rolled back interrupted commit", "id", entry.ID, "source", entry.SourcePath, "created", entry.CreatedPath)
			report.RolledBack++
		default:
			slog.Warn("source changed after interrupted commit, leaving it pending",
				"id", entry.ID, "source", entry.SourcePath, "created", entry.CreatedPath)
			report.Conflicts = append(report.Conflicts, entry)
			continue
		}
		observability.AssistOutcomes.WithLabelValues(observability.OutcomeRecovered).Inc()
	}
	return report, nil
}

// classify decides what recovery does with entry from the current state of
// its files. Entries without an updated-source hash are always rolled back.
func (a *Applier) classify(entry ports.JournalEntry) (recoverAction, error) {
	if entry.UpdatedHash == "" {
		return actionRolledBack, nil
	}

	source, err := a.resolve(entry.SourcePath)
	if err != nil {
		return 0, err
	}
	current, err := os.ReadFile(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return actionConflict, nil
		}
		return 0, err
	}
	if bytes.Equal(current, entry.SourceBackup) {
		return actionRolledBack, nil
	}
	if contentHash(current) != entry.UpdatedHash {
		return actionConflict, nil
	}

	// The source swap is the last write, so the created file should be there.
	created, err := a.resolve(entry.CreatedPath)
	if err != nil {
		return 0, err
	}
	if _, err := os.Lstat(created); err == nil {
		return actionCompleted, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}
	return actionRolledBack, nil
}

func (a *Applier) undo(entry ports.JournalEntry) error {
	if entry.CreatedPath != "" {
		created, err := a.resolve(entry.CreatedPath)
		if err != nil {
			return err
		}
		if err := os.Remove(created); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	dirs := make([]string, 0, len(entry.CreatedDirs))
	for _, rel := range entry.CreatedDirs {
		dir, err := a.resolve(rel)
		if err != nil {
			return err
		}
		dirs = append(dirs, dir)
	}
	removeDirs(dirs)

	source, err := a.resolve(entry.SourcePath)
	if err != nil {
		return err
	}
	current, err := os.ReadFile(source)
	switch {
	case err == nil && bytes.Equal(current, entry.SourceBackup):
		return nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return err
	}

	mode := fs.FileMode(filePerm)
	if info, statErr := os.Stat(source); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(source), dirPerm); err != nil {
		return err
	}
	return a.replaceFile(source, entry.SourceBackup, mode)
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
