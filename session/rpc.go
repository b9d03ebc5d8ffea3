package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"

	"github.com/lexcodex/blockkernel/framework"
)

// JSON-RPC method names shared by RPCSession and RPCServer.
const (
	MethodKernelSpecs   = "session/kernelspecs"
	MethodChangeKernel  = "session/changeKernel"
	MethodKernelChanged = "session/kernelChanged"
)

// RPCSession is a session provider hosted by another process and reached
// over JSON-RPC 2.0. The kernelspec catalog is fetched on connect and on
// Refresh; kernel confirmations arrive as notifications.
type RPCSession struct {
	conn   *jsonrpc2.Conn
	logger *zap.Logger

	mu     sync.RWMutex
	specs  map[string]framework.KernelSpec
	subs   map[int]func(framework.KernelChange)
	subSeq int

	changes   *changeQueue
	done      chan struct{}
	closeOnce sync.Once
}

var _ framework.SessionProvider = (*RPCSession)(nil)

// DialRPCSession connects to a session server.
func DialRPCSession(ctx context.Context, network, addr string, logger *zap.Logger) (*RPCSession, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return NewRPCSession(ctx, c, logger)
}

// NewRPCSession speaks JSON-RPC over rwc and loads the catalog. Kernel
// change notifications are dispatched to subscribers in arrival order on a
// goroutine of their own, off the connection's read loop, so a subscriber
// may call ChangeKernel.
func NewRPCSession(ctx context.Context, rwc io.ReadWriteCloser, logger *zap.Logger) (*RPCSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RPCSession{
		logger:  logger,
		specs:   make(map[string]framework.KernelSpec),
		subs:    make(map[int]func(framework.KernelChange)),
		changes: newChangeQueue(),
		done:    make(chan struct{}),
	}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	s.conn = jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.HandlerWithError(s.handle))
	go s.dispatch()
	if err := s.Refresh(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Refresh reloads the kernelspec catalog from the server.
func (s *RPCSession) Refresh(ctx context.Context) error {
	var specs map[string]framework.KernelSpec
	if err := s.conn.Call(ctx, MethodKernelSpecs, nil, &specs); err != nil {
		return err
	}
	for name, spec := range specs {
		if spec.Name == "" {
			spec.Name = name
			specs[name] = spec
		}
	}
	s.mu.Lock()
	s.specs = specs
	s.mu.Unlock()
	return nil
}

// KernelSpecs implements framework.SessionProvider.
func (s *RPCSession) KernelSpecs() map[string]framework.KernelSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]framework.KernelSpec, len(s.specs))
	for k, v := range s.specs {
		out[k] = v
	}
	return out
}

// ChangeKernel implements framework.SessionProvider.
func (s *RPCSession) ChangeKernel(ctx context.Context, req framework.KernelRequest) error {
	return s.conn.Call(ctx, MethodChangeKernel, req, nil)
}

// SubscribeKernelChanged implements framework.SessionProvider.
func (s *RPCSession) SubscribeKernelChanged(fn func(framework.KernelChange)) func() {
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

// Done is closed when the connection drops.
func (s *RPCSession) Done() <-chan struct{} {
	return s.conn.DisconnectNotify()
}

// Close closes the connection and stops dispatching. Queued changes are
// dropped.
func (s *RPCSession) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	err := s.conn.Close()
	if errors.Is(err, jsonrpc2.ErrClosed) {
		return nil
	}
	return err
}

func (s *RPCSession) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	if req.Method != MethodKernelChanged {
		if req.Notif {
			return nil, nil
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not handled"}
	}
	if req.Params == nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	var change framework.KernelChange
	if err := json.Unmarshal(*req.Params, &change); err != nil {
		s.logger.Warn("malformed kernel change", zap.Error(err))
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	s.changes.push(change)
	return nil, nil
}

func (s *RPCSession) dispatch() {
	disconnected := s.conn.DisconnectNotify()
	for {
		select {
		case <-s.changes.wake:
			for _, change := range s.changes.drain() {
				s.notify(change)
			}
		case <-s.done:
			return
		case <-disconnected:
			return
		}
	}
}

func (s *RPCSession) notify(change framework.KernelChange) {
	s.mu.RLock()
	subs := make([]func(framework.KernelChange), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(change)
	}
}

// RPCServer exposes a session provider to RPCSession clients.
type RPCServer struct {
	session framework.SessionProvider
	logger  *zap.Logger
}

// NewRPCServer wraps a session provider.
func NewRPCServer(session framework.SessionProvider, logger *zap.Logger) *RPCServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCServer{session: session, logger: logger}
}

// ServeConn handles one client connection until it disconnects or ctx is
// cancelled. Kernel changes are forwarded to the client as notifications.
func (s *RPCServer) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) *jsonrpc2.Conn {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))
	cancel := s.session.SubscribeKernelChanged(func(change framework.KernelChange) {
		if err := conn.Notify(ctx, MethodKernelChanged, change); err != nil {
			s.logger.Debug("kernel change not forwarded", zap.Error(err))
		}
	})
	go func() {
		select {
		case <-conn.DisconnectNotify():
		case <-ctx.Done():
			_ = conn.Close()
		}
		cancel()
	}()
	return conn
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (s *RPCServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.logger.Info("session client connected", zap.String("remote", c.RemoteAddr().String()))
		s.ServeConn(ctx, c)
	}
}

func (s *RPCServer) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case MethodKernelSpecs:
		return s.session.KernelSpecs(), nil
	case MethodChangeKernel:
		if req.Params == nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
		}
		var kr framework.KernelRequest
		if err := json.Unmarshal(*req.Params, &kr); err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
		}
		if err := s.session.ChangeKernel(ctx, kr); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		if req.Notif {
			return nil, nil
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not handled"}
	}
}
