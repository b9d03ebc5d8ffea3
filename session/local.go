package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lexcodex/blockkernel/framework"
)

// ErrSessionClosed is returned by requests made after Close.
var ErrSessionClosed = errors.New("session closed")

// LocalSession is an in-process session provider. Kernel switches are
// confirmed asynchronously, in request order, by a single worker goroutine.
type LocalSession struct {
	logger *zap.Logger

	mu      sync.Mutex
	specs   map[string]framework.KernelSpec
	current string
	subs    map[int]func(framework.KernelChange)
	subSeq  int

	queue     *changeQueue
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ framework.SessionProvider = (*LocalSession)(nil)

// NewLocalSession starts a session over the given catalog.
func NewLocalSession(specs map[string]framework.KernelSpec, logger *zap.Logger) *LocalSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LocalSession{
		logger: logger,
		specs:  make(map[string]framework.KernelSpec, len(specs)),
		subs:   make(map[int]func(framework.KernelChange)),
		queue:  newChangeQueue(),
		done:   make(chan struct{}),
	}
	for name, spec := range specs {
		if spec.Name == "" {
			spec.Name = name
		}
		s.specs[name] = spec
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// KernelSpecs implements framework.SessionProvider.
func (s *LocalSession) KernelSpecs() map[string]framework.KernelSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]framework.KernelSpec, len(s.specs))
	for k, v := range s.specs {
		out[k] = v
	}
	return out
}

// AddKernelSpec registers or replaces a kernelspec.
func (s *LocalSession) AddKernelSpec(spec framework.KernelSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.Name] = spec
}

// CurrentKernel returns the confirmed kernel name, empty when none.
func (s *LocalSession) CurrentKernel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ChangeKernel implements framework.SessionProvider. Unknown kernels are
// rejected up front; an empty name shuts the active kernel down.
func (s *LocalSession) ChangeKernel(ctx context.Context, req framework.KernelRequest) error {
	s.mu.Lock()
	_, ok := s.specs[req.Name]
	s.mu.Unlock()
	if !ok && req.Name != "" {
		return fmt.Errorf("%w: %q", framework.ErrUnknownKernel, req.Name)
	}
	return s.enqueue(ctx, framework.KernelChange{Name: req.Name, Seq: req.Seq})
}

// Shutdown stops the active kernel.
func (s *LocalSession) Shutdown(ctx context.Context) error {
	return s.enqueue(ctx, framework.KernelChange{})
}

// SubscribeKernelChanged implements framework.SessionProvider.
func (s *LocalSession) SubscribeKernelChanged(fn func(framework.KernelChange)) func() {
	s.mu.Lock()
	id := s.subSeq
	s.subSeq++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close stops the worker. Pending confirmations are dropped.
func (s *LocalSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *LocalSession) enqueue(ctx context.Context, change framework.KernelChange) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.queue.push(change)
	return nil
}

func (s *LocalSession) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.queue.wake:
			for _, change := range s.queue.drain() {
				select {
				case <-s.done:
					return
				default:
				}
				s.confirm(change)
			}
		case <-s.done:
			return
		}
	}
}

func (s *LocalSession) confirm(change framework.KernelChange) {
	s.mu.Lock()
	s.current = change.Name
	subs := make([]func(framework.KernelChange), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	s.logger.Debug("kernel confirmed", zap.String("kernel", change.Name), zap.Uint64("seq", change.Seq))
	for _, fn := range subs {
		fn(change)
	}
}
