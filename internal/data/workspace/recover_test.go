package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"modsplit/internal/core/ports"
	"modsplit/internal/data/journal"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_RollsBackInterruptedCommit(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := openJournal(t)

	// Journaled without an updated-source hash, so recovery cannot tell the
	// swapped source from a later edit and restores the backup.
	writeFiles(t, root, map[string]string{
		"src/submodule.rs":       "mod inner;\nfn g() {}\n",
		"src/submodule/inner.rs": "fn f() {}\n",
	})
	entry := ports.JournalEntry{
		ID:           uuid.New(),
		Label:        "Extract module to file",
		SourcePath:   "src/submodule.rs",
		SourceBackup: []byte(libSource),
		CreatedPath:  "src/submodule/inner.rs",
		CreatedDirs:  []string{"src/submodule"},
	}
	require.NoError(t, store.Begin(ctx, entry))

	applier, err := NewApplier(root, store, Options{})
	require.NoError(t, err)

	report, err := applier.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RolledBack)

	assert.Equal(t, libSource, readFile(t, root, "src/submodule.rs"))
	assert.False(t, exists(root, "src/submodule/inner.rs"))
	assert.False(t, exists(root, "src/submodule"))

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	entries, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ports.JournalRolledBack, entries[0].Status)
	assert.Equal(t, recoveredReason, entries[0].Error)

	report, err = applier.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, ports.RecoverReport{}, report, "recovery is idempotent")
}

func TestRecover_CrashBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := openJournal(t)
	writeFiles(t, root, map[string]string{"src/lib.rs": libSource})

	require.NoError(t, store.Begin(ctx, ports.JournalEntry{
		ID:           uuid.New(),
		SourcePath:   "src/lib.rs",
		SourceBackup: []byte(libSource),
		CreatedPath:  "src/inner.rs",
	}))

	applier, err := NewApplier(root, store, Options{})
	require.NoError(t, err)
	report, err := applier.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RolledBack)
	assert.Equal(t, libSource, readFile(t, root, "src/lib.rs"))
}

func TestRecover_KeepsDirectoriesWithOtherContent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := openJournal(t)
	writeFiles(t, root, map[string]string{
		"src/lib.rs":         "mod a;\n",
		"src/a/inner.rs":     "fn f() {}\n",
		"src/a/unrelated.rs": "fn u() {}\n",
	})
	require.NoError(t, store.Begin(ctx, ports.JournalEntry{
		ID:           uuid.New(),
		SourcePath:   "src/lib.rs",
		SourceBackup: []byte(libSource),
		CreatedPath:  "src/a/inner.rs",
		CreatedDirs:  []string{"src/a"},
	}))

	applier, err := NewApplier(root, store, Options{})
	require.NoError(t, err)
	_, err = applier.Recover(ctx)
	require.NoError(t, err)

	assert.True(t, exists(root, "src/a/unrelated.rs"))
	assert.False(t, exists(root, "src/a/inner.rs"))
	assert.Equal(t, libSource, readFile(t, root, "src/lib.rs"))
}

func TestRecover_WithoutJournal(t *testing.T) {
	applier, err := NewApplier(t.TempDir(), nil, Options{})
	require.NoError(t, err)
	report, err := applier.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ports.RecoverReport{}, report)
}

func TestRecover_PreservesFileMode(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := openJournal(t)
	writeFiles(t, root, map[string]string{"src/lib.rs": "mod inner;\n"})
	require.NoError(t, os.Chmod(filepath.Join(root, "src/lib.rs"), 0o600))
	require.NoError(t, store.Begin(ctx, ports.JournalEntry{
		ID:           uuid.New(),
		SourcePath:   "src/lib.rs",
		SourceBackup: []byte(libSource),
		CreatedPath:  "src/inner.rs",
	}))

	applier, err := NewApplier(root, store, Options{})
	require.NoError(t, err)
	_, err = applier.Recover(ctx)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "src/lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

const extractedSource = "mod inner;\nfn g() {}\n"

func hashedEntry(source string) ports.JournalEntry {
	return ports.JournalEntry{
		ID:           uuid.New(),
		Label:        "Extract module to file",
		SourcePath:   source,
		SourceBackup: []byte(libSource),
		CreatedPath:  "src/inner.rs",
		UpdatedHash:  contentHash([]byte(extractedSource)),
	}
}

// committedOnlyOnRetry fails the first MarkCommitted, as a journal that went
// away right after the files were written would.
type committedOnlyOnRetry struct {
	*journal.Store
	failed bool
}

func (j *committedOnlyOnRetry) MarkCommitted(ctx context.Context, id uuid.UUID) error {
	if !j.failed {
		j.failed = true
		return errors.New("disk I/O error")
	}
	return j.Store.MarkCommitted(ctx, id)
}

func TestRecover_CompletesCommitWhoseMarkFailed(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"src/lib.rs": libSource})
	store := openJournal(t)
	flaky := &committedOnlyOnRetry{Store: store}

	applier, err := NewApplier(root, flaky, Options{})
	require.NoError(t, err)
	_, err = applier.Apply(ctx, extractSet("src/lib.rs", libSource, "./inner.rs"))
	require.NoError(t, err, "a journal failure after the writes does not fail the commit")

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	report, err := applier.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Zero(t, report.RolledBack)

	assert.Equal(t, extractedSource, readFile(t, root, "src/lib.rs"))
	assert.Equal(t, "fn f() {}\n", readFile(t, root, "src/inner.rs"))

	entries, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ports.JournalCommitted, entries[0].Status)
}

func TestRecover_LeavesEditedSourceAlone(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	edited := extractedSource + "fn added_later() {}\n"
	writeFiles(t, root, map[string]string{
		"src/lib.rs":   edited,
		"src/inner.rs": "fn f() {}\n",
	})
	store := openJournal(t)
	entry := hashedEntry("src/lib.rs")
	require.NoError(t, store.Begin(ctx, entry))

	applier, err := NewApplier(root, store, Options{})
	require.NoError(t, err)
	report, err := applier.Recover(ctx)
	require.NoError(t, err)

	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, entry.ID, report.Conflicts[0].ID)
	assert.Zero(t, report.RolledBack)
	assert.Zero(t, report.Completed)

	assert.Equal(t, edited, readFile(t, root, "src/lib.rs"))
	assert.True(t, exists(root, "src/inner.rs"))

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "conflicting entries stay pending")
}

func TestRecover_HashedEntryStates(t *testing.T) {
	tests := []struct {
		name       string
		files      map[string]string
		wantReport func(t *testing.T, r ports.RecoverReport)
		wantSource string
		wantFile   bool
	}{
		{
			name:  "crash before source swap",
			files: map[string]string{"src/lib.rs": libSource, "src/inner.rs": "fn f"},
			wantReport: func(t *testing.T, r ports.RecoverReport) {
				assert.Equal(t, 1, r.RolledBack)
			},
			wantSource: libSource,
		},
		{
			name:  "swapped source without created file",
			files: map[string]string{"src/lib.rs": extractedSource},
			wantReport: func(t *testing.T, r ports.RecoverReport) {
				assert.Equal(t, 1, r.RolledBack)
			},
			wantSource: libSource,
		},
		{
			name:  "both writes landed",
			files: map[string]string{"src/lib.rs": extractedSource, "src/inner.rs": "fn f() {}\n"},
			wantReport: func(t *testing.T, r ports.RecoverReport) {
				assert.Equal(t, 1, r.Completed)
			},
			wantSource: extractedSource,
			wantFile:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			root := t.TempDir()
			writeFiles(t, root, tt.files)
			store := openJournal(t)
			require.NoError(t, store.Begin(ctx, hashedEntry("src/lib.rs")))

			applier, err := NewApplier(root, store, Options{})
			require.NoError(t, err)
			report, err := applier.Recover(ctx)
			require.NoError(t, err)

			tt.wantReport(t, report)
			assert.Empty(t, report.Conflicts)
			assert.Equal(t, tt.wantSource, readFile(t, root, "src/lib.rs"))
			assert.Equal(t, tt.wantFile, exists(root, "src/inner.rs"))
		})
	}
}

func TestRecover_MissingSourceIsAConflict(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"src/inner.rs": "fn f() {}\n"})
	store := openJournal(t)
	require.NoError(t, store.Begin(ctx, hashedEntry("src/lib.rs")))

	applier, err := NewApplier(root, store, Options{})
	require.NoError(t, err)
	report, err := applier.Recover(ctx)
	require.NoError(t, err)

	assert.Len(t, report.Conflicts, 1)
	assert.False(t, exists(root, "src/lib.rs"), "a deleted source is not resurrected")
	assert.True(t, exists(root, "src/inner.rs"))
}
