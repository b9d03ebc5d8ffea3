package framework

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// SessionBinding follows the session's kernel and keeps the generator bound
// to the active kernel's language. Confirmations for requests older than the
// newest applied one are dropped.
type SessionBinding struct {
	session         SessionProvider
	registry        *Registry
	defaultLanguage string
	logger          *zap.Logger
	apply           func(kernel *KernelSpec, gen Generator)

	mu      sync.Mutex
	seq     uint64
	applied uint64
	cancel  func()
}

// NewSessionBinding subscribes to the session's kernel changes. apply is
// invoked with the resolved kernel (nil when the kernel shut down) and its
// generator, which may be nil.
func NewSessionBinding(session SessionProvider, registry *Registry, defaultLanguage string, logger *zap.Logger, apply func(*KernelSpec, Generator)) *SessionBinding {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultLanguage == "" {
		defaultLanguage = DefaultLanguage
	}
	b := &SessionBinding{
		session:         session,
		registry:        registry,
		defaultLanguage: defaultLanguage,
		logger:          logger,
		apply:           apply,
	}
	if session != nil {
		b.cancel = session.SubscribeKernelChanged(b.handle)
	}
	return b
}

// Request asks the session to switch kernels and returns the sequence number
// attached to the request.
func (b *SessionBinding) Request(ctx context.Context, name string) (uint64, error) {
	if b.session == nil {
		return 0, ErrNoSession
	}
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.mu.Unlock()
	b.logger.Debug("requesting kernel change", zap.String("kernel", name), zap.Uint64("seq", seq))
	return seq, b.session.ChangeKernel(ctx, KernelRequest{Name: name, Seq: seq})
}

// Resolve returns the generator for a kernel, or for the default language
// when kernel is nil. The result may be nil.
func (b *SessionBinding) Resolve(kernel *KernelSpec) Generator {
	if b.registry == nil {
		return nil
	}
	language := b.defaultLanguage
	if kernel != nil {
		language = kernel.Language
	}
	gen, ok := b.registry.Generator(language)
	if !ok {
		return nil
	}
	return gen
}

func (b *SessionBinding) handle(change KernelChange) {
	b.mu.Lock()
	if change.Seq != 0 && change.Seq < b.applied {
		b.mu.Unlock()
		b.logger.Debug("dropping stale kernel confirmation",
			zap.String("kernel", change.Name),
			zap.Uint64("seq", change.Seq),
			zap.Uint64("applied", b.applied))
		return
	}
	if change.Name == "" {
		if change.Seq > b.applied {
			b.applied = change.Seq
		}
		b.mu.Unlock()
		b.apply(nil, b.Resolve(nil))
		return
	}
	spec, ok := b.session.KernelSpecs()[change.Name]
	if !ok {
		b.mu.Unlock()
		b.logger.Warn("ignoring change to kernel missing from catalog", zap.String("kernel", change.Name))
		return
	}
	if change.Seq > b.applied {
		b.applied = change.Seq
	}
	b.mu.Unlock()
	if spec.Name == "" {
		spec.Name = change.Name
	}
	gen := b.Resolve(&spec)
	if gen == nil {
		b.logger.Info("no generator for kernel language",
			zap.String("kernel", spec.Name),
			zap.String("language", spec.Language))
	}
	b.apply(&spec, gen)
}

// Close releases the session subscription.
func (b *SessionBinding) Close() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
