package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifest = `
name: cmd-test
modules:
  - id: App
    version: 1
    dependencies: [Counter]
  - id: Counter
    version: 1
    acceptsSelf: true
    dependents: [App]
components:
  - module: App
    version: 1
  - module: Counter
    version: 1
instances:
  - id: app
    module: App
  - id: counter-1
    module: Counter
    parent: app
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hotswap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hotswap version")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", writeManifest(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Graph is valid!")
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", "--overlay", writeManifest(t))
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, `Counter[["Counter <br/> v1 <br/> 1 live"]]`)
}
