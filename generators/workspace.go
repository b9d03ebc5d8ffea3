package generators

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// workspaceState mirrors the parts of the Blockly JSON serialization the
// generators read.
type workspaceState struct {
	Blocks struct {
		Blocks []*blockState `json:"blocks"`
	} `json:"blocks"`
	Variables []variableState `json:"variables"`
}

type variableState struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type blockState struct {
	Type    string                 `json:"type"`
	ID      string                 `json:"id"`
	Enabled *bool                  `json:"enabled,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Inputs  map[string]*connection `json:"inputs,omitempty"`
	Next    *connection            `json:"next,omitempty"`
}

// connection holds the block plugged into an input, falling back to its
// shadow.
type connection struct {
	Block  *blockState `json:"block,omitempty"`
	Shadow *blockState `json:"shadow,omitempty"`
}

func (c *connection) target() *blockState {
	if c == nil {
		return nil
	}
	if c.Block != nil {
		return c.Block
	}
	return c.Shadow
}

// blockData is the value templates execute against.
type blockData struct {
	Type   string
	ID     string
	fields map[string]interface{}
	inputs map[string]string
	vars   map[string]string
}

// Field returns a field value as text.
func (d *blockData) Field(name string) string {
	v, ok := d.fields[name]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]interface{}:
		if id, ok := val["id"].(string); ok {
			return id
		}
	}
	return fmt.Sprint(v)
}

// Var resolves a variable field to the variable name.
func (d *blockData) Var(name string) string {
	id := d.Field(name)
	if n, ok := d.vars[id]; ok {
		return n
	}
	if v, ok := d.fields[name].(map[string]interface{}); ok {
		if n, ok := v["name"].(string); ok {
			return n
		}
	}
	return id
}

// Input returns the rendered code of a value input.
func (d *blockData) Input(name string) string {
	return d.inputs[name]
}

// Statement returns the rendered code of a statement input.
func (d *blockData) Statement(name string) string {
	return d.inputs[name]
}

// Has reports whether the input is connected in the serialization.
func (d *blockData) Has(name string) bool {
	_, ok := d.inputs[name]
	return ok
}

// Inputs returns numbered inputs sharing a prefix (ADD0, ADD1, ...) in
// numeric order.
func (d *blockData) Inputs(prefix string) []string {
	type numbered struct {
		n    int
		code string
	}
	var found []numbered
	for name, code := range d.inputs {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil {
			continue
		}
		found = append(found, numbered{n: n, code: code})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	out := make([]string, 0, len(found))
	for _, f := range found {
		out = append(out, f.code)
	}
	return out
}
