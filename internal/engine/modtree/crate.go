package modtree

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"modsplit/internal/shared/util"

	"github.com/BurntSushi/toml"
)

const manifestName = "Cargo.toml"

type cargoTarget struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type cargoManifest struct {
	Package *struct {
		Name         string `toml:"name"`
		AutoBins     *bool  `toml:"autobins"`
		AutoExamples *bool  `toml:"autoexamples"`
		AutoTests    *bool  `toml:"autotests"`
		AutoBenches  *bool  `toml:"autobenches"`
	} `toml:"package"`
	Lib *struct {
		Path string `toml:"path"`
	} `toml:"lib"`
	Bin       []cargoTarget `toml:"bin"`
	Example   []cargoTarget `toml:"example"`
	Test      []cargoTarget `toml:"test"`
	Bench     []cargoTarget `toml:"bench"`
	Workspace *struct {
		Members []string `toml:"members"`
	} `toml:"workspace"`
}

// targetDir is a directory cargo scans for targets: dir/*.rs and
// dir/*/main.rs are each their own crate.
type targetDir struct {
	dir     string
	enabled func(m *cargoManifest) *bool
}

var autoTargetDirs = []targetDir{
	{dir: "src/bin", enabled: func(m *cargoManifest) *bool { return m.Package.AutoBins }},
	{dir: "examples", enabled: func(m *cargoManifest) *bool { return m.Package.AutoExamples }},
	{dir: "tests", enabled: func(m *cargoManifest) *bool { return m.Package.AutoTests }},
	{dir: "benches", enabled: func(m *cargoManifest) *bool { return m.Package.AutoBenches }},
}

// DiscoverCrateRoots lists crate root files under fsys. Roots come from
// Cargo.toml targets, the conventional src/lib.rs and src/main.rs, the
// auto-discovered bin, example, test and bench targets, workspace members,
// and any extra roots given by configuration.
func DiscoverCrateRoots(fsys fs.FS, extra []string) ([]string, error) {
	seen := make(map[string]bool)
	var roots []string
	add := func(p string) {
		p = util.NormalizePatternPath(p)
		if p == "" || seen[p] {
			return
		}
		if !fileExists(fsys, p) {
			slog.Debug("crate root does not exist", "path", p)
			return
		}
		seen[p] = true
		roots = append(roots, p)
	}

	if err := discoverPackage(fsys, ".", add, 0); err != nil {
		return nil, err
	}
	for _, p := range extra {
		add(p)
	}
	return roots, nil
}

func discoverPackage(fsys fs.FS, dir string, add func(string), depth int) error {
	manifestPath := path.Join(dir, manifestName)
	data, err := fs.ReadFile(fsys, manifestPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		add(path.Join(dir, "src/lib.rs"))
		add(path.Join(dir, "src/main.rs"))
		for _, td := range autoTargetDirs {
			if err := addAutoTargets(fsys, path.Join(dir, td.dir), add); err != nil {
				return err
			}
		}
		return nil
	case err != nil:
		return fmt.Errorf("read %s: %w", manifestPath, err)
	}

	var manifest cargoManifest
	if _, err := toml.Decode(string(data), &manifest); err != nil {
		return fmt.Errorf("decode %s: %w", manifestPath, err)
	}

	if manifest.Package != nil {
		if manifest.Lib != nil && strings.TrimSpace(manifest.Lib.Path) != "" {
			add(path.Join(dir, manifest.Lib.Path))
		} else {
			add(path.Join(dir, "src/lib.rs"))
		}
		add(path.Join(dir, "src/main.rs"))
		addTargets(dir, "src/bin", manifest.Bin, add)
		addTargets(dir, "examples", manifest.Example, add)
		addTargets(dir, "tests", manifest.Test, add)
		addTargets(dir, "benches", manifest.Bench, add)

		for _, td := range autoTargetDirs {
			if on := td.enabled(&manifest); on != nil && !*on {
				continue
			}
			if err := addAutoTargets(fsys, path.Join(dir, td.dir), add); err != nil {
				return err
			}
		}
	}

	// Nested workspaces are not a thing in cargo; one level is enough.
	if manifest.Workspace == nil || depth > 0 {
		return nil
	}
	for _, member := range manifest.Workspace.Members {
		matches, err := fs.Glob(fsys, path.Join(dir, member))
		if err != nil {
			return fmt.Errorf("workspace member pattern %q: %w", member, err)
		}
		for _, m := range matches {
			if err := discoverPackage(fsys, m, add, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// addTargets adds explicitly declared targets; a target without a path lives
// at <defaultDir>/<name>.rs.
func addTargets(dir, defaultDir string, targets []cargoTarget, add func(string)) {
	for _, t := range targets {
		if strings.TrimSpace(t.Path) != "" {
			add(path.Join(dir, t.Path))
		} else if t.Name != "" {
			add(path.Join(dir, defaultDir, t.Name+".rs"))
		}
	}
}

func addAutoTargets(fsys fs.FS, dir string, add func(string)) error {
	for _, pattern := range []string{"*.rs", "*/main.rs"} {
		matches, err := fs.Glob(fsys, path.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("target pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			add(m)
		}
	}
	return nil
}

func fileExists(fsys fs.FS, p string) bool {
	info, err := fs.Stat(fsys, p)
	return err == nil && !info.IsDir()
}
