package toolboxes

import (
	"embed"
	"fmt"

	"github.com/lexcodex/blockkernel/framework"
)

//go:embed builtin/*.json
var builtinToolboxes embed.FS

// RegisterBuiltins registers the toolboxes shipped with the module,
// including framework.DefaultToolbox. Call it before LoadDir so files on
// disk override them.
func RegisterBuiltins(reg *framework.Registry) error {
	entries, err := builtinToolboxes.ReadDir("builtin")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := "builtin/" + entry.Name()
		data, err := builtinToolboxes.ReadFile(path)
		if err != nil {
			return err
		}
		name, tb, err := Parse(path, data)
		if err != nil {
			return fmt.Errorf("builtin %s: %w", entry.Name(), err)
		}
		reg.Register(name, tb)
	}
	return nil
}

// builtinToolbox returns the shipped toolbox with the given name, if any.
func builtinToolbox(name string) (*framework.Toolbox, bool) {
	path := "builtin/" + name + ".json"
	data, err := builtinToolboxes.ReadFile(path)
	if err != nil {
		return nil, false
	}
	_, tb, err := Parse(path, data)
	if err != nil {
		return nil, false
	}
	return tb, true
}
