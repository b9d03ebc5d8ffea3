package framework

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSession records kernel requests and lets tests deliver confirmations
// synchronously.
type fakeSession struct {
	mu       sync.Mutex
	specs    map[string]KernelSpec
	requests []KernelRequest
	subs     map[int]func(KernelChange)
	seq      int
	err      error
}

func newFakeSession(specs ...KernelSpec) *fakeSession {
	s := &fakeSession{
		specs: make(map[string]KernelSpec),
		subs:  make(map[int]func(KernelChange)),
	}
	for _, spec := range specs {
		s.specs[spec.Name] = spec
	}
	return s
}

func (s *fakeSession) KernelSpecs() map[string]KernelSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]KernelSpec, len(s.specs))
	for k, v := range s.specs {
		out[k] = v
	}
	return out
}

func (s *fakeSession) ChangeKernel(_ context.Context, req KernelRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	return nil
}

func (s *fakeSession) SubscribeKernelChanged(fn func(KernelChange)) func() {
	s.mu.Lock()
	id := s.seq
	s.seq++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *fakeSession) confirm(change KernelChange) {
	s.mu.Lock()
	subs := make([]func(KernelChange), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
}

func (s *fakeSession) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *fakeSession) lastRequest(t *testing.T) KernelRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests, "no kernel requested")
	return s.requests[len(s.requests)-1]
}

func stubGenerator(lang string) Generator {
	return GeneratorFunc{Lang: lang, Fn: func(json.RawMessage) (string, error) {
		return "# " + lang, nil
	}}
}

func mustToolbox(t *testing.T, raw string) *Toolbox {
	t.Helper()
	tb, err := ParseToolbox([]byte(raw))
	require.NoError(t, err)
	return tb
}

const sampleToolboxJSON = `{
  "kind": "categoryToolbox",
  "contents": [
    {"kind": "category", "name": "Logic", "colour": "210", "contents": [
      {"kind": "block", "type": "controls_if"},
      {"kind": "block", "type": "logic_compare"}
    ]},
    {"kind": "sep"},
    {"kind": "category", "name": "Text", "contents": [
      {"kind": "block", "type": "text"},
      {"kind": "block", "type": "text_print"}
    ]},
    {"kind": "sep"},
    {"kind": "category", "name": "Variables", "custom": "VARIABLE"}
  ]
}`

// collectCategories flattens categories by name for assertions.
func collectCategories(items []ToolboxItem, out map[string]*Category) {
	for _, item := range items {
		if c, ok := item.(*Category); ok {
			out[c.Name] = c
			collectCategories(c.Contents, out)
		}
	}
}

func collectBlocks(items []ToolboxItem, out map[string]*Block) {
	for _, item := range items {
		switch it := item.(type) {
		case *Block:
			out[it.Type] = it
		case *Category:
			collectBlocks(it.Contents, out)
		}
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.Register(DefaultToolbox, mustToolbox(t, sampleToolboxJSON))
	reg.Register("minimal", mustToolbox(t, `[{"kind":"block","type":"text_print"}]`))
	reg.RegisterGenerator("python", stubGenerator("python"))
	reg.RegisterGenerator("javascript", stubGenerator("javascript"))
	return reg
}
