package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const legacyDoc = `{"blocks":{"languageVersion":0,"blocks":[
  {"type":"text_print","id":"p1","inputs":{"TEXT":{"block":{"type":"text","id":"t1","fields":{"TEXT":"hi"}}}}}
]}}`

const beginnerToolbox = `apiVersion: blockkernel/v1
kind: Toolbox
metadata:
  name: beginner
spec:
  toolbox:
    - kind: block
      type: text_print
    - kind: block
      type: text
`

func writeWorkspaceFile(t *testing.T, root, rel, body string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// newWorkspace lays out a workspace with two kernels, one extra toolbox and
// a config pinned to workspace-local paths.
func newWorkspace(t *testing.T, store string) string {
	t.Helper()
	ws := t.TempDir()
	storePath := ".blockkernel/store"
	if store == "sqlite" {
		storePath = ".blockkernel/store/docs.db"
	}
	writeWorkspaceFile(t, ws, ".blockkernel/config.yaml", `kernel_paths: [.blockkernel/kernels]
logging:
  level: error
store:
  driver: `+store+`
  path: `+storePath+`
`)
	writeWorkspaceFile(t, ws, ".blockkernel/kernels/deno/kernel.json",
		`{"display_name":"Deno","language":"javascript","argv":["deno"]}`)
	writeWorkspaceFile(t, ws, ".blockkernel/kernels/ir/kernel.json",
		`{"display_name":"R","language":"R","argv":["R"]}`)
	writeWorkspaceFile(t, ws, ".blockkernel/toolboxes/beginner.yaml", beginnerToolbox)
	return ws
}

func runCLI(t *testing.T, ws string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--workspace", ws}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestToolboxList(t *testing.T) {
	ws := newWorkspace(t, "file")
	out, _, err := runCLI(t, ws, "toolbox", "list")
	require.NoError(t, err)
	require.Contains(t, out, "default (default) · categoryToolbox")
	require.Contains(t, out, "minimal · flyoutToolbox · 3/3 blocks")
	require.Contains(t, out, "beginner · flyoutToolbox · 2/2 blocks")

	out, _, err = runCLI(t, ws, "--allow", "text_print", "toolbox", "list")
	require.NoError(t, err)
	require.Contains(t, out, "minimal · flyoutToolbox · 1/3 blocks")
}

func TestToolboxShowAppliesAllowList(t *testing.T) {
	ws := newWorkspace(t, "file")
	out, _, err := runCLI(t, ws, "--allow", "text_print", "toolbox", "show", "minimal")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "minimal\n"))
	require.Contains(t, out, "math_number (This block is not allowed)")

	out, _, err = runCLI(t, ws, "--allow", "text_print", "toolbox", "show", "minimal", "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"disabled": true`)
}

func TestToolboxShowUnknownFallsBack(t *testing.T) {
	ws := newWorkspace(t, "file")
	out, errOut, err := runCLI(t, ws, "toolbox", "show", "advanced")
	require.NoError(t, err)
	require.Contains(t, errOut, "unknown toolbox")
	require.True(t, strings.HasPrefix(out, "default\n"))
}

func TestKernelsList(t *testing.T) {
	ws := newWorkspace(t, "file")
	out, _, err := runCLI(t, ws, "kernels", "list")
	require.NoError(t, err)
	require.Contains(t, out, "deno · Deno · javascript · generator")
	require.Contains(t, out, "ir · R · R · no generator")
}

func TestDocInspectAndMigrate(t *testing.T) {
	ws := newWorkspace(t, "file")
	legacy := writeWorkspaceFile(t, ws, "hello.json", legacyDoc)

	out, _, err := runCLI(t, ws, "doc", "inspect", legacy)
	require.NoError(t, err)
	require.Contains(t, out, "format: legacy")
	require.Contains(t, out, "toolbox: -")

	migrated := filepath.Join(ws, "out", "hello.json")
	_, _, err = runCLI(t, ws, "doc", "migrate", legacy, "-o", migrated, "--toolbox", "beginner", "--kernel", "deno")
	require.NoError(t, err)
	data, err := os.ReadFile(migrated)
	require.NoError(t, err)
	require.Contains(t, string(data), `"format": 2`)

	out, _, err = runCLI(t, ws, "doc", "inspect", migrated)
	require.NoError(t, err)
	require.Contains(t, out, "format: v2")
	require.Contains(t, out, "toolbox: beginner")
	require.Contains(t, out, "kernel: deno")
}

func TestDocInspectReportsUnknownNames(t *testing.T) {
	ws := newWorkspace(t, "file")
	doc := writeWorkspaceFile(t, ws, "v2.json",
		`{"format":2,"workspace":{},"metadata":{"toolbox":"advanced","kernel":"julia"}}`)
	out, _, err := runCLI(t, ws, "doc", "inspect", doc)
	require.NoError(t, err)
	require.Contains(t, out, "toolbox: -")
	require.Contains(t, out, "warning: unknown toolbox")
	require.Contains(t, out, "warning: unknown kernel")
}

func TestDocInspectRejectsUnsupportedFormat(t *testing.T) {
	ws := newWorkspace(t, "file")
	doc := writeWorkspaceFile(t, ws, "v3.json", `{"format":3,"workspace":{}}`)
	_, _, err := runCLI(t, ws, "doc", "inspect", doc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")
}

func TestDocGenerateFollowsKernelLanguage(t *testing.T) {
	ws := newWorkspace(t, "file")
	legacy := writeWorkspaceFile(t, ws, "hello.json", legacyDoc)

	out, _, err := runCLI(t, ws, "doc", "generate", legacy)
	require.NoError(t, err)
	require.Equal(t, "print(\"hi\")\n", out)

	migrated := filepath.Join(ws, "hello.v2.json")
	_, _, err = runCLI(t, ws, "doc", "migrate", legacy, "-o", migrated, "--kernel", "deno")
	require.NoError(t, err)
	out, _, err = runCLI(t, ws, "doc", "generate", migrated)
	require.NoError(t, err)
	require.Equal(t, "console.log(\"hi\");\n", out)

	_, _, err = runCLI(t, ws, "doc", "generate", legacy, "--language", "cobol")
	require.Error(t, err)
}

func TestDocStoreCommands(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ws := newWorkspace(t, driver)
			legacy := writeWorkspaceFile(t, ws, "hello.json", legacyDoc)

			out, _, err := runCLI(t, ws, "doc", "save", legacy)
			require.NoError(t, err)
			id := strings.TrimSpace(out)
			require.NotEmpty(t, id)

			out, _, err = runCLI(t, ws, "doc", "list")
			require.NoError(t, err)
			require.Contains(t, out, id+"\thello\t-\t-\t")

			out, _, err = runCLI(t, ws, "doc", "get", id)
			require.NoError(t, err)
			require.JSONEq(t, legacyDoc, out)

			_, _, err = runCLI(t, ws, "doc", "delete", id)
			require.NoError(t, err)
			out, _, err = runCLI(t, ws, "doc", "list")
			require.NoError(t, err)
			require.Contains(t, out, "No documents stored.")

			_, _, err = runCLI(t, ws, "doc", "get", id)
			require.Error(t, err)
		})
	}
}

func TestConfigSetAndGet(t *testing.T) {
	ws := newWorkspace(t, "file")
	_, _, err := runCLI(t, ws, "config", "set", "default_toolbox", "beginner")
	require.NoError(t, err)
	out, _, err := runCLI(t, ws, "config", "get", "default_toolbox")
	require.NoError(t, err)
	require.Equal(t, "beginner\n", out)

	out, _, err = runCLI(t, ws, "config", "get", "kernel_paths")
	require.NoError(t, err)
	require.Equal(t, "[.blockkernel/kernels]\n", out)

	out, _, err = runCLI(t, ws, "toolbox", "show")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "beginner\n"))

	_, _, err = runCLI(t, ws, "config", "get", "missing.key")
	require.Error(t, err)
}
