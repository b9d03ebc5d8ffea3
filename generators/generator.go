// Package generators provides template driven code generators that turn a
// serialized block workspace into source text for one kernel language.
package generators

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/blockkernel/framework"
)

//go:embed templates/*.yaml
var builtinTemplates embed.FS

// ErrUnsupportedBlock is returned when a workspace uses a block type the
// template set has no template for.
var ErrUnsupportedBlock = errors.New("unsupported block")

// TemplateSet is the YAML form of a generator.
type TemplateSet struct {
	Language  string            `yaml:"language"`
	Indent    string            `yaml:"indent"`
	Operators map[string]string `yaml:"operators"`
	Blocks    map[string]string `yaml:"blocks"`
}

// TemplateGenerator renders each block with a text/template keyed by block
// type. Value inputs are rendered first and exposed to the parent template.
type TemplateGenerator struct {
	language  string
	indent    string
	operators map[string]string
	templates map[string]*template.Template
}

var _ framework.Generator = (*TemplateGenerator)(nil)

// NewTemplateGenerator compiles a template set.
func NewTemplateGenerator(set TemplateSet) (*TemplateGenerator, error) {
	if strings.TrimSpace(set.Language) == "" {
		return nil, errors.New("template set missing language")
	}
	if set.Indent == "" {
		set.Indent = "  "
	}
	g := &TemplateGenerator{
		language:  strings.ToLower(set.Language),
		indent:    set.Indent,
		operators: set.Operators,
		templates: make(map[string]*template.Template, len(set.Blocks)),
	}
	funcs := template.FuncMap{
		"indent": g.indentCode,
		"quote":  strconv.Quote,
		"join":   strings.Join,
		"op":     g.operator,
	}
	for typ, body := range set.Blocks {
		tmpl, err := template.New(typ).Funcs(funcs).Option("missingkey=zero").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("%s template %s: %w", set.Language, typ, err)
		}
		g.templates[typ] = tmpl
	}
	return g, nil
}

// ParseTemplateSet decodes and compiles a YAML template set.
func ParseTemplateSet(data []byte) (*TemplateGenerator, error) {
	var set TemplateSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return NewTemplateGenerator(set)
}

// LoadFile reads a template set from disk.
func LoadFile(path string) (*TemplateGenerator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	gen, err := ParseTemplateSet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return gen, nil
}

// Builtin returns the generators shipped with the module.
func Builtin() ([]*TemplateGenerator, error) {
	entries, err := builtinTemplates.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	var out []*TemplateGenerator
	for _, entry := range entries {
		data, err := builtinTemplates.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, err
		}
		gen, err := ParseTemplateSet(data)
		if err != nil {
			return nil, fmt.Errorf("builtin %s: %w", entry.Name(), err)
		}
		out = append(out, gen)
	}
	return out, nil
}

// RegisterBuiltins binds the built-in generators into the registry.
func RegisterBuiltins(reg *framework.Registry) error {
	gens, err := Builtin()
	if err != nil {
		return err
	}
	for _, gen := range gens {
		reg.RegisterGenerator(gen.Language(), gen)
	}
	return nil
}

// RegisterDir loads every *.yaml / *.yml template set in dir. A missing
// directory is not an error.
func RegisterDir(reg *framework.Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		gen, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		reg.RegisterGenerator(gen.Language(), gen)
	}
	return nil
}

// Language implements framework.Generator.
func (g *TemplateGenerator) Language() string { return g.language }

// Supports reports whether the generator has a template for the block type.
func (g *TemplateGenerator) Supports(blockType string) bool {
	_, ok := g.templates[blockType]
	return ok
}

// BlockTypes lists the supported block types, sorted.
func (g *TemplateGenerator) BlockTypes() []string {
	out := make([]string, 0, len(g.templates))
	for typ := range g.templates {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// WorkspaceToCode implements framework.Generator. Top-level stacks are
// emitted in workspace order separated by newlines.
func (g *TemplateGenerator) WorkspaceToCode(workspace json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(workspace)) == 0 {
		return "", nil
	}
	var ws workspaceState
	if err := json.Unmarshal(workspace, &ws); err != nil {
		return "", fmt.Errorf("parse workspace: %w", err)
	}
	vars := make(map[string]string, len(ws.Variables))
	for _, v := range ws.Variables {
		vars[v.ID] = v.Name
	}
	var stacks []string
	for _, top := range ws.Blocks.Blocks {
		code, err := g.renderChain(top, vars)
		if err != nil {
			return "", err
		}
		if code != "" {
			stacks = append(stacks, code)
		}
	}
	if len(stacks) == 0 {
		return "", nil
	}
	return strings.Join(stacks, "\n") + "\n", nil
}

func (g *TemplateGenerator) renderChain(b *blockState, vars map[string]string) (string, error) {
	var lines []string
	for b != nil {
		code, err := g.renderBlock(b, vars)
		if err != nil {
			return "", err
		}
		if code != "" {
			lines = append(lines, code)
		}
		if b.Next == nil {
			break
		}
		b = b.Next.target()
	}
	return strings.Join(lines, "\n"), nil
}

func (g *TemplateGenerator) renderBlock(b *blockState, vars map[string]string) (string, error) {
	if b.Enabled != nil && !*b.Enabled {
		return "", nil
	}
	tmpl, ok := g.templates[b.Type]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %s template", ErrUnsupportedBlock, b.Type, g.language)
	}
	data := &blockData{
		Type:   b.Type,
		ID:     b.ID,
		fields: b.Fields,
		inputs: make(map[string]string, len(b.Inputs)),
		vars:   vars,
	}
	for name, input := range b.Inputs {
		child := input.target()
		if child == nil {
			data.inputs[name] = ""
			continue
		}
		code, err := g.renderChain(child, vars)
		if err != nil {
			return "", err
		}
		data.inputs[name] = code
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", b.Type, err)
	}
	return buf.String(), nil
}

func (g *TemplateGenerator) indentCode(code string) string {
	if code == "" {
		return ""
	}
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = g.indent + line
		}
	}
	return strings.Join(lines, "\n")
}

func (g *TemplateGenerator) operator(name string) string {
	if op, ok := g.operators[name]; ok {
		return op
	}
	return name
}
