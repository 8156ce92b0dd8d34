package modtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverCrateRoots(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		extra []string
		want  []string
	}{
		{
			name:  "no manifest falls back to conventional roots",
			files: map[string]string{"src/lib.rs": "", "src/main.rs": ""},
			want:  []string{"src/lib.rs", "src/main.rs"},
		},
		{
			name: "package with custom lib and bins",
			files: map[string]string{
				"Cargo.toml": `
[package]
name = "demo"

[lib]
path = "lib/root.rs"

[[bin]]
name = "tool"

[[bin]]
name = "other"
path = "bins/other.rs"
`,
				"lib/root.rs":      "",
				"src/main.rs":      "",
				"src/bin/tool.rs":  "",
				"bins/other.rs":    "",
				"src/lib.rs":       "",
				"src/unrelated.rs": "",
			},
			want: []string{"lib/root.rs", "src/main.rs", "src/bin/tool.rs", "bins/other.rs"},
		},
		{
			name: "workspace members",
			files: map[string]string{
				"Cargo.toml":           "[workspace]\nmembers = [\"crates/*\"]\n",
				"crates/a/Cargo.toml":  "[package]\nname = \"a\"\n",
				"crates/a/src/lib.rs":  "",
				"crates/b/Cargo.toml":  "[package]\nname = \"b\"\n",
				"crates/b/src/main.rs": "",
				"crates/b/src/lib.rs":  "",
			},
			want: []string{"crates/a/src/lib.rs", "crates/b/src/lib.rs", "crates/b/src/main.rs"},
		},
		{
			name:  "extra roots deduplicated and normalized",
			files: map[string]string{"src/lib.rs": "", "scripts/demo.rs": ""},
			extra: []string{"./scripts/demo.rs", "src/lib.rs", "missing.rs"},
			want:  []string{"src/lib.rs", "scripts/demo.rs"},
		},
		{
			name: "auto-discovered targets",
			files: map[string]string{
				"Cargo.toml":               "[package]\nname = \"demo\"\n",
				"src/lib.rs":               "",
				"src/bin/a.rs":             "",
				"src/bin/b/main.rs":        "",
				"src/bin/b/helper.rs":      "",
				"examples/ex.rs":           "",
				"examples/multi/main.rs":   "",
				"tests/it.rs":              "",
				"tests/common/mod.rs":      "",
				"benches/bench.rs":         "",
				"benches/suite/main.rs":    "",
				"benches/suite/fixture.rs": "",
			},
			want: []string{
				"src/lib.rs",
				"src/bin/a.rs", "src/bin/b/main.rs",
				"examples/ex.rs", "examples/multi/main.rs",
				"tests/it.rs",
				"benches/bench.rs", "benches/suite/main.rs",
			},
		},
		{
			name: "auto discovery switched off keeps declared targets",
			files: map[string]string{
				"Cargo.toml": `
[package]
name = "demo"
autotests = false
autoexamples = false

[[test]]
name = "it"

[[example]]
name = "shown"
path = "demos/shown.rs"
`,
				"src/main.rs":    "",
				"tests/it.rs":    "",
				"tests/skip.rs":  "",
				"examples/ex.rs": "",
				"demos/shown.rs": "",
			},
			want: []string{"src/main.rs", "demos/shown.rs", "tests/it.rs"},
		},
		{
			name:  "auto targets without a manifest",
			files: map[string]string{"src/main.rs": "", "src/bin/extra.rs": ""},
			want:  []string{"src/main.rs", "src/bin/extra.rs"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roots, err := DiscoverCrateRoots(mapFS(tt.files), tt.extra)
			require.NoError(t, err)
			assert.Equal(t, tt.want, roots)
		})
	}
}

func TestDiscoverCrateRoots_InvalidManifest(t *testing.T) {
	_, err := DiscoverCrateRoots(mapFS(map[string]string{"Cargo.toml": "[package\n"}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode Cargo.toml")
}
