package ports

import (
	"context"
	"path"
	"time"

	"modsplit/internal/engine/syntax"

	"github.com/google/uuid"
)

// SyntaxQuery is the read-only tree capability over one file snapshot.
type SyntaxQuery interface {
	ModuleAt(offset int) (*syntax.ModuleDecl, bool)
	Text(r syntax.TextRange) string
}

// FileKind tells whether a module file roots a directory (main.rs, lib.rs,
// mod.rs) or is named after its module (foo.rs).
type FileKind int

const (
	NamedFile FileKind = iota
	DirectoryRoot
)

func (k FileKind) String() string {
	if k == DirectoryRoot {
		return "directory-root"
	}
	return "named"
}

// ParentModule describes where a declaration sits relative to the nearest
// file-backed module.
type ParentModule struct {
	// Name of the file-backed module; empty for the crate root.
	Name string
	Kind FileKind
	// Inline names the inline modules between that file and the declaration,
	// outermost first.
	Inline []string
}

// ModuleEntity is the semantic definition behind a declaration.
type ModuleEntity struct {
	Name string
	// Path is the crate-relative module path, e.g. ["submodule", "inner"].
	Path   []string
	File   string
	Parent *ParentModule
}

// SemanticQuery maps declaration nodes to module entities.
type SemanticQuery interface {
	Resolve(file string, decl *syntax.ModuleDecl) (ModuleEntity, bool)
}

// AnchoredPath is a slash-separated path relative to the directory of Anchor.
type AnchoredPath struct {
	Anchor string
	Path   string
}

// Resolve returns the workspace-relative destination.
func (p AnchoredPath) Resolve() string {
	return path.Join(path.Dir(p.Anchor), p.Path)
}

type TextEdit struct {
	File    string
	Range   syntax.TextRange
	OldText string
	NewText string
}

type FileCreate struct {
	Path     AnchoredPath
	Contents string
}

// EditSet bundles the stub replacement and the file creation. Appliers
// commit both or neither.
type EditSet struct {
	ID       uuid.UUID
	AssistID string
	Kind     string
	Label    string
	// Target is the range a UI would highlight for the action.
	Target  syntax.TextRange
	Replace TextEdit
	Create  FileCreate
}

type ApplyResult struct {
	EditSetID   uuid.UUID
	SourcePath  string
	CreatedPath string
	CreatedDirs []string
	DryRun      bool
}

// EditApplier commits an EditSet transactionally.
type EditApplier interface {
	Apply(ctx context.Context, set EditSet) (ApplyResult, error)
}

type JournalStatus string

const (
	JournalPending    JournalStatus = "pending"
	JournalCommitted  JournalStatus = "committed"
	JournalRolledBack JournalStatus = "rolled_back"
)

// JournalEntry records enough of an in-flight commit to undo it.
type JournalEntry struct {
	ID           uuid.UUID
	Label        string
	SourcePath   string
	SourceBackup []byte
	CreatedPath  string
	CreatedDirs  []string
	// UpdatedHash is the hex SHA-256 of the source after the edit. Empty on
	// entries journaled before it was recorded.
	UpdatedHash  string
	Status       JournalStatus
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecoverReport summarizes a recovery pass over pending journal entries.
type RecoverReport struct {
	// RolledBack entries had their workspace changes undone.
	RolledBack int
	// Completed entries had fully landed and were marked committed.
	Completed int
	// Conflicts were edited after the commit and are left pending.
	Conflicts []JournalEntry
}

// CommitJournal persists commit intents so a crash mid-commit can be undone.
type CommitJournal interface {
	Begin(ctx context.Context, entry JournalEntry) error
	MarkCommitted(ctx context.Context, id uuid.UUID) error
	MarkRolledBack(ctx context.Context, id uuid.UUID, reason string) error
	Pending(ctx context.Context) ([]JournalEntry, error)
	List(ctx context.Context, limit int) ([]JournalEntry, error)
}
