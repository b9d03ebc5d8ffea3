package framework

import "encoding/json"

// Generator compiles a serialized workspace into source text for one target
// language. Implementations live outside this package; the manager only binds
// them to the active kernel's language.
type Generator interface {
	Language() string
	WorkspaceToCode(workspace json.RawMessage) (string, error)
}

// GeneratorFunc adapts a function into a Generator.
type GeneratorFunc struct {
	Lang string
	Fn   func(workspace json.RawMessage) (string, error)
}

// Language implements Generator.
func (g GeneratorFunc) Language() string { return g.Lang }

// WorkspaceToCode implements Generator.
func (g GeneratorFunc) WorkspaceToCode(workspace json.RawMessage) (string, error) {
	if g.Fn == nil {
		return "", nil
	}
	return g.Fn(workspace)
}
