package framework

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChangeReason tags a manager change notification.
type ChangeReason string

const (
	ChangeToolbox     ChangeReason = "toolbox"
	ChangeKernel      ChangeReason = "kernel"
	ChangeDescription ChangeReason = "description"
)

// NoKernel is written to documents saved without an active kernel.
const NoKernel = "No kernel"

// KernelIdentity names the active kernel. The zero value means no kernel.
type KernelIdentity struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Language    string `json:"language,omitempty"`
}

// IsNone reports whether no kernel is active.
func (k KernelIdentity) IsNone() bool { return k.Name == "" }

// Option is a label/value pair offered by the toolbar selectors.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ManagerState is a snapshot of a manager.
type ManagerState struct {
	Toolbox       string
	AllowedBlocks AllowList
	Kernel        KernelIdentity
	Description   string
}

// ChangeEvent is delivered to manager subscribers once per discrete change.
type ChangeEvent struct {
	Reason    ChangeReason
	ManagerID string
	State     ManagerState
}

// ManagerOption customises a manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDefaultToolbox overrides the fallback toolbox name.
func WithDefaultToolbox(name string) ManagerOption {
	return func(m *Manager) {
		if name != "" {
			m.defaultToolbox = name
		}
	}
}

// WithDefaultLanguage sets the generator language used while no kernel is
// active.
func WithDefaultLanguage(language string) ManagerOption {
	return func(m *Manager) {
		if language != "" {
			m.defaultLanguage = language
		}
	}
}

// WithAllowedBlocks sets the initial allow-list.
func WithAllowedBlocks(allow AllowList) ManagerOption {
	return func(m *Manager) {
		m.allowed = allow.Clone()
	}
}

type subscriber struct {
	id int
	fn func(ChangeEvent)
}

// Manager owns the toolbox, allow-list and kernel state of one open
// document. Setters filter and notify before returning; listeners run after
// the state lock is released so they may call back into the manager.
type Manager struct {
	id              string
	registry        *Registry
	session         SessionProvider
	binding         *SessionBinding
	logger          *zap.Logger
	defaultToolbox  string
	defaultLanguage string

	mu          sync.Mutex
	toolboxName string
	toolbox     *Toolbox
	allowed     AllowList
	kernel      KernelIdentity
	generator   Generator
	description string
	closed      bool

	subMu  sync.Mutex
	subs   []subscriber
	subSeq int
}

// NewManager builds a manager bound to the registry and, when non-nil, the
// session provider.
func NewManager(registry *Registry, session SessionProvider, opts ...ManagerOption) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	m := &Manager{
		id:              uuid.NewString(),
		registry:        registry,
		session:         session,
		logger:          zap.NewNop(),
		defaultToolbox:  DefaultToolbox,
		defaultLanguage: DefaultLanguage,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("manager", m.id))
	m.toolboxName = m.defaultToolbox
	m.loadToolboxLocked()
	if gen, ok := registry.Generator(m.defaultLanguage); ok {
		m.generator = gen
	}
	m.binding = NewSessionBinding(session, registry, m.defaultLanguage, m.logger, m.applyKernel)
	return m
}

// ID identifies the manager in logs and change events.
func (m *Manager) ID() string { return m.id }

// Registry returns the registry the manager resolves names against.
func (m *Manager) Registry() *Registry { return m.registry }

// Session returns the session provider, possibly nil.
func (m *Manager) Session() SessionProvider { return m.session }

// Toolbox returns the active toolbox name.
func (m *Manager) Toolbox() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toolboxName
}

// ToolboxDefinition returns a copy of the filtered active toolbox, or nil when
// the active name has no definition.
func (m *Manager) ToolboxDefinition() *Toolbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toolbox.Clone()
}

// SetToolbox selects a toolbox by name. Unknown names fall back to the
// default toolbox and return an error wrapping ErrUnknownToolbox; the
// selection still takes effect.
func (m *Manager) SetToolbox(name string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if name == m.toolboxName {
		m.mu.Unlock()
		return nil
	}
	var warn error
	resolved := name
	if !m.registry.HasToolbox(name) {
		warn = fmt.Errorf("%w: %q, using %q", ErrUnknownToolbox, name, m.defaultToolbox)
		m.logger.Warn("unknown toolbox, falling back",
			zap.String("toolbox", name),
			zap.String("fallback", m.defaultToolbox))
		resolved = m.defaultToolbox
	}
	if resolved == m.toolboxName {
		m.mu.Unlock()
		return warn
	}
	m.toolboxName = resolved
	m.loadToolboxLocked()
	event := m.eventLocked(ChangeToolbox)
	m.mu.Unlock()
	m.emit(event)
	return warn
}

// ReloadToolbox picks up a changed definition for the active toolbox, for
// example after the registry was refreshed from disk.
func (m *Manager) ReloadToolbox() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if !m.registry.HasToolbox(m.toolboxName) {
		m.logger.Warn("active toolbox disappeared, falling back",
			zap.String("toolbox", m.toolboxName),
			zap.String("fallback", m.defaultToolbox))
		m.toolboxName = m.defaultToolbox
	}
	m.loadToolboxLocked()
	event := m.eventLocked(ChangeToolbox)
	m.mu.Unlock()
	m.emit(event)
}

// AllowedBlocks returns the active allow-list; nil means all blocks.
func (m *Manager) AllowedBlocks() AllowList {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowed.Clone()
}

// SetAllowedBlocks replaces the allow-list and refilters the toolbox.
func (m *Manager) SetAllowedBlocks(allow AllowList) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.allowed = allow.Clone()
	visible := FilterToolbox(m.toolbox, m.allowed)
	m.logger.Debug("allow-list updated",
		zap.Strings("allowed", m.allowed.Types()),
		zap.Int("visible", visible))
	event := m.eventLocked(ChangeToolbox)
	m.mu.Unlock()
	m.emit(event)
}

// Generator returns the generator bound to the active kernel, or nil when
// its language has none. Callers must treat nil as "cannot run".
func (m *Manager) Generator() Generator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generator
}

// Kernel returns the active kernel identity.
func (m *Manager) Kernel() KernelIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kernel
}

// SelectKernel asks the session to switch kernels. State changes once the
// session confirms the switch.
func (m *Manager) SelectKernel(ctx context.Context, name string) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrManagerClosed
	}
	if _, err := m.binding.Request(ctx, name); err != nil {
		return fmt.Errorf("select kernel %s: %w", name, err)
	}
	return nil
}

// ListKernels offers every catalog kernel whose language has a generator,
// sorted by label.
func (m *Manager) ListKernels() []Option {
	if m.session == nil {
		return nil
	}
	specs := m.session.KernelSpecs()
	out := make([]Option, 0, len(specs))
	for name, spec := range specs {
		if !m.registry.HasGenerator(spec.Language) {
			continue
		}
		label := spec.DisplayName
		if label == "" {
			label = name
		}
		out = append(out, Option{Label: label, Value: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label == out[j].Label {
			return out[i].Value < out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// ListToolboxes offers every registered toolbox in registration order.
func (m *Manager) ListToolboxes() []Option {
	names := m.registry.Names()
	out := make([]Option, 0, len(names))
	for _, name := range names {
		out = append(out, Option{Label: name, Value: name})
	}
	return out
}

// Description returns the free-text document description.
func (m *Manager) Description() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.description
}

// SetDescription updates the description.
func (m *Manager) SetDescription(text string) {
	m.mu.Lock()
	if m.closed || text == m.description {
		m.mu.Unlock()
		return
	}
	m.description = text
	event := m.eventLocked(ChangeDescription)
	m.mu.Unlock()
	m.emit(event)
}

// State snapshots the manager.
func (m *Manager) State() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Subscribe registers a change listener. Call the returned cancel function
// to unsubscribe.
func (m *Manager) Subscribe(fn func(ChangeEvent)) func() {
	if fn == nil {
		return func() {}
	}
	m.subMu.Lock()
	id := m.subSeq
	m.subSeq++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.subMu.Unlock()
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		for i, sub := range m.subs {
			if sub.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Close detaches from the session and drops all listeners.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.binding.Close()
	m.subMu.Lock()
	m.subs = nil
	m.subMu.Unlock()
}

func (m *Manager) applyKernel(kernel *KernelSpec, gen Generator) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if kernel == nil {
		m.kernel = KernelIdentity{}
	} else {
		m.kernel = KernelIdentity{
			Name:        kernel.Name,
			DisplayName: kernel.DisplayName,
			Language:    kernel.Language,
		}
	}
	m.generator = gen
	event := m.eventLocked(ChangeKernel)
	m.mu.Unlock()
	m.logger.Info("kernel changed",
		zap.String("kernel", event.State.Kernel.Name),
		zap.Bool("generator", gen != nil))
	m.emit(event)
}

func (m *Manager) loadToolboxLocked() {
	def, ok := m.registry.Toolbox(m.toolboxName)
	if !ok {
		m.toolbox = nil
		return
	}
	m.toolbox = def.Clone()
	FilterToolbox(m.toolbox, m.allowed)
}

func (m *Manager) stateLocked() ManagerState {
	return ManagerState{
		Toolbox:       m.toolboxName,
		AllowedBlocks: m.allowed.Clone(),
		Kernel:        m.kernel,
		Description:   m.description,
	}
}

func (m *Manager) eventLocked(reason ChangeReason) ChangeEvent {
	return ChangeEvent{Reason: reason, ManagerID: m.id, State: m.stateLocked()}
}

func (m *Manager) emit(event ChangeEvent) {
	m.subMu.Lock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.subMu.Unlock()
	for _, sub := range subs {
		sub.fn(event)
	}
}
