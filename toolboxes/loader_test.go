package toolboxes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexcodex/blockkernel/framework"
)

const flyoutJSON = `{"kind":"flyoutToolbox","contents":[{"kind":"block","type":"text_print"}]}`

const manifestYAML = `apiVersion: blockkernel/v1
kind: Toolbox
metadata:
  name: beginner
  description: first steps
spec:
  toolbox:
    kind: categoryToolbox
    contents:
      - kind: category
        name: Logic
        contents:
          - kind: block
            type: controls_if
          - kind: block
            type: logic_compare
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileBareJSONUsesStem(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "printing.json", flyoutJSON)

	name, tb, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "printing", name)
	require.Equal(t, framework.FlyoutToolboxKind, tb.Kind)
	require.Equal(t, []string{"text_print"}, framework.VisibleBlockTypes(tb))
}

func TestLoadFileManifestYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "anything.yaml", manifestYAML)

	name, tb, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "beginner", name)
	require.Equal(t, framework.CategoryToolboxKind, tb.Kind)
	require.ElementsMatch(t, []string{"controls_if", "logic_compare"}, framework.VisibleBlockTypes(tb))
}

func TestLoadFileBareYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "math.yml", "- kind: block\n  type: math_number\n")

	name, tb, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "math", name)
	require.Equal(t, framework.FlyoutToolboxKind, tb.Kind)
}

func TestManifestValidation(t *testing.T) {
	cases := map[string]string{
		"kind":    "apiVersion: v1\nkind: Agent\nmetadata: {name: x}\nspec: {toolbox: []}\n",
		"name":    "apiVersion: v1\nkind: Toolbox\nmetadata: {}\nspec: {toolbox: []}\n",
		"toolbox": "apiVersion: v1\nkind: Toolbox\nmetadata: {name: x}\nspec: {}\n",
	}
	for field, body := range cases {
		t.Run(field, func(t *testing.T) {
			_, _, err := Parse("bad.yaml", []byte(body))
			require.Error(t, err)
			require.Contains(t, err.Error(), field)
		})
	}
}

func TestLoadDirRegistersAndReportsErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "printing.json", flyoutJSON)
	writeFile(t, dir, "beginner.yaml", manifestYAML)
	writeFile(t, dir, "broken.json", "{not json")
	writeFile(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	reg := framework.NewRegistry()
	names, err := LoadDir(reg, dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken.json")
	require.Equal(t, []string{"beginner", "printing"}, names)
	require.True(t, reg.HasToolbox("beginner"))
	require.True(t, reg.HasToolbox("printing"))
	require.False(t, reg.HasToolbox("broken"))
}

func TestLoadDirMissingDirectory(t *testing.T) {
	reg := framework.NewRegistry()
	names, err := LoadDir(reg, filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestRegisterBuiltinsProvidesDefault(t *testing.T) {
	reg := framework.NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	require.True(t, reg.HasToolbox(framework.DefaultToolbox))
	require.True(t, reg.HasToolbox("minimal"))

	tb, ok := reg.Toolbox(framework.DefaultToolbox)
	require.True(t, ok)
	require.Equal(t, framework.CategoryToolboxKind, tb.Kind)
	require.Contains(t, framework.VisibleBlockTypes(tb), "controls_if")
}

func TestLoadDirOverridesBuiltins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "minimal.json", flyoutJSON)
	reg := framework.NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	_, err := LoadDir(reg, dir)
	require.NoError(t, err)

	tb, _ := reg.Toolbox("minimal")
	require.Equal(t, []string{"text_print"}, framework.VisibleBlockTypes(tb))
	require.Equal(t, []string{framework.DefaultToolbox, "minimal"}, reg.Names())
}
