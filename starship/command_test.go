package starship

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddModuleAppendsAndAnchors(t *testing.T) {
	in := "format = \"\"\"\n$directory\\\n$git_metrics\\\n$character\"\"\"\n"
	out, notes := addModule(in, "tracker")

	assert.Contains(t, out, `command = "tracker starship status"`)
	assert.Contains(t, out, "$git_metrics\\\n${custom.tracker}\\")
	assert.Len(t, notes, 2)
}

func TestAddModuleIsIdempotent(t *testing.T) {
	first, _ := addModule("[character]\nsymbol = \">\"\n", "tracker")
	second, notes := addModule(first, "tracker")

	assert.Equal(t, 1, strings.Count(second, moduleHeader))
	assert.Contains(t, second, "[character]")
	assert.Contains(t, notes[0], "Updated")
}

func TestAddModuleKeepsFollowingSections(t *testing.T) {
	in := "[custom.tracker]\ncommand = \"old\"\n\n[git_branch]\nsymbol = \"b\"\n"
	out, _ := addModule(in, "tracker")

	assert.NotContains(t, out, `command = "old"`)
	assert.Contains(t, out, "[git_branch]\nsymbol = \"b\"")
}

func TestInstallMissingConfig(t *testing.T) {
	err := install(&bytes.Buffer{}, filepath.Join(t.TempDir(), "starship.toml"), "tracker")
	assert.ErrorContains(t, err, "starship config not found")
}

func TestInstallWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starship.toml")
	require.NoError(t, os.WriteFile(path, []byte("add_newline = false\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, install(&out, path, "tracker"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), moduleHeader)
	assert.Contains(t, out.String(), "Updated "+path)
}

func TestStatusSwallowsErrors(t *testing.T) {
	failing := func(*cobra.Command) (string, error) { return "", assert.AnError }
	cmd := NewStarshipCmd("tracker", failing)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"status"})
	require.NoError(t, cmd.Execute())
	assert.Empty(t, out.String())

	ok := func(*cobra.Command) (string, error) { return "⏺ TASK-1 12m", nil }
	cmd = NewStarshipCmd("tracker", ok)
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"status"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "⏺ TASK-1 12m", out.String())
}
