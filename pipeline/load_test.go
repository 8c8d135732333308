package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/core"
)

func TestBuiltin_Unknown(t *testing.T) {
	_, err := Builtin("nope")
	require.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"no name", `
[[entries]]
from = "start"
terminal = true
`},
		{"no start", `
name = "x"
[[entries]]
from = "a"
terminal = true
`},
		{"dangling target", `
name = "x"
[[entries]]
from = "start"
to = "nowhere"
`},
		{"terminal with target", `
name = "x"
[[entries]]
from = "start"
to = "next"
terminal = true
`},
		{"unconditional competes", `
name = "x"
[[entries]]
from = "start"
terminal = true
[[entries]]
from = "start"
terminal = true
branch = { fields = ["a"], in = ["b"] }
`},
		{"overlapping branches", `
name = "x"
[[entries]]
from = "start"
terminal = true
branch = { fields = ["assetClass"], in = ["Image", "Video"] }
[[entries]]
from = "start"
terminal = true
branch = { fields = ["assetClass"], in = ["Video"] }
`},
		{"drops carried field", `
name = "x"
[[entries]]
from = "start"
terminal = true
input = { drop = ["catalogKey"] }
`},
		{"unknown key", `
name = "x"
colour = "blue"
[[entries]]
from = "start"
terminal = true
`},
		{"bad schema", `
name = "x"
input_schema = "{"
[[entries]]
from = "start"
terminal = true
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "p.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
name = "archive-only"
version = "2"

[[entries]]
from = "start"
to = "moveFiles"
queue = "tier-moves"

[[entries]]
from = "moveFiles"
terminal = true
`), 0o644))

	d, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, "archive-only", d.Name)
	require.Equal(t, []core.Queue{"tier-moves"}, d.Queues())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidateInput(t *testing.T) {
	ingest := MustBuiltin(Ingest)
	require.NoError(t, ingest.ValidateInput(core.NewRecord("a.jpg")))
	require.Error(t, ingest.ValidateInput(core.Record{}))

	lifecycle := MustBuiltin(Lifecycle)
	r := core.NewRecord("/assets/key").With("locationSource", "CDN").With("locationDestination", "delete")
	r.CatalogKey = "key"
	require.NoError(t, lifecycle.ValidateInput(r))

	bad := r.With("locationDestination", "moon")
	require.Error(t, lifecycle.ValidateInput(bad))
}
