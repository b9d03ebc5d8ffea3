// Package server exposes a document's manager to editors over HTTP, with
// change notifications streamed on a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lexcodex/blockkernel/framework"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	maxBodyBytes = 8 << 20
)

// APIServer serves one manager and its document mapper.
type APIServer struct {
	Manager *framework.Manager
	Mapper  *framework.DocumentMapper
	Logger  *zap.Logger

	upgrader websocket.Upgrader
}

// StateView is the wire form of framework.ManagerState.
type StateView struct {
	ManagerID     string                   `json:"manager_id,omitempty"`
	Toolbox       string                   `json:"toolbox"`
	AllowedBlocks []string                 `json:"allowed_blocks"`
	Kernel        framework.KernelIdentity `json:"kernel"`
	Description   string                   `json:"description,omitempty"`
}

// EventMessage is pushed to websocket clients. The first message on every
// connection has reason "snapshot".
type EventMessage struct {
	Reason string    `json:"reason"`
	State  StateView `json:"state"`
}

// NameRequest selects a toolbox or kernel.
type NameRequest struct {
	Name string `json:"name"`
}

// AllowedRequest replaces the allow-list. A null Blocks allows everything.
type AllowedRequest struct {
	Blocks []string `json:"blocks"`
}

// DescriptionRequest replaces the description.
type DescriptionRequest struct {
	Text string `json:"text"`
}

// GenerateResponse carries generated code.
type GenerateResponse struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// LoadResponse reports what a restored document applied.
type LoadResponse struct {
	Workspace json.RawMessage `json:"workspace"`
	Legacy    bool            `json:"legacy"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

func viewState(id string, state framework.ManagerState) StateView {
	var allowed []string
	if !state.AllowedBlocks.Unrestricted() {
		allowed = state.AllowedBlocks.Types()
	}
	return StateView{
		ManagerID:     id,
		Toolbox:       state.Toolbox,
		AllowedBlocks: allowed,
		Kernel:        state.Kernel,
		Description:   state.Description,
	}
}

// ServeContext listens on addr until ctx is cancelled.
func (s *APIServer) ServeContext(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.logger().Info("api listening", zap.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler returns the API routes.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/toolbox", s.handleToolbox)
	mux.HandleFunc("PUT /api/toolbox", s.handleSetToolbox)
	mux.HandleFunc("GET /api/toolboxes", s.handleToolboxes)
	mux.HandleFunc("GET /api/kernels", s.handleKernels)
	mux.HandleFunc("PUT /api/kernel", s.handleSetKernel)
	mux.HandleFunc("PUT /api/allowed", s.handleSetAllowed)
	mux.HandleFunc("PUT /api/description", s.handleSetDescription)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/document/save", s.handleSaveDocument)
	mux.HandleFunc("POST /api/document/load", s.handleLoadDocument)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

func (s *APIServer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *APIServer) state() StateView {
	return viewState(s.Manager.ID(), s.Manager.State())
}

func (s *APIServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *APIServer) handleToolbox(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Manager.ToolboxDefinition())
}

func (s *APIServer) handleToolboxes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Manager.ListToolboxes())
}

func (s *APIServer) handleKernels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Manager.ListKernels())
}

func (s *APIServer) handleSetToolbox(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	// unknown names still switch to the fallback; report it alongside the state
	if err := s.Manager.SetToolbox(req.Name); err != nil {
		if errors.Is(err, framework.ErrManagerClosed) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		w.Header().Set("Warning", `199 - "`+err.Error()+`"`)
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *APIServer) handleSetKernel(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Manager.SelectKernel(r.Context(), req.Name); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, framework.ErrUnknownKernel):
			status = http.StatusNotFound
		case errors.Is(err, framework.ErrNoSession):
			status = http.StatusConflict
		case errors.Is(err, framework.ErrManagerClosed):
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	// the switch lands when the session confirms it
	writeJSON(w, http.StatusAccepted, s.state())
}

func (s *APIServer) handleSetAllowed(w http.ResponseWriter, r *http.Request) {
	var req AllowedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var allow framework.AllowList
	if req.Blocks != nil {
		allow = framework.NewAllowList(req.Blocks...)
	}
	s.Manager.SetAllowedBlocks(allow)
	writeJSON(w, http.StatusOK, s.state())
}

func (s *APIServer) handleSetDescription(w http.ResponseWriter, r *http.Request) {
	var req DescriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.Manager.SetDescription(req.Text)
	writeJSON(w, http.StatusOK, s.state())
}

func (s *APIServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	workspace, ok := readBody(w, r)
	if !ok {
		return
	}
	gen := s.Manager.Generator()
	if gen == nil {
		writeError(w, http.StatusConflict, errors.New("no generator for the active kernel"))
		return
	}
	code, err := gen.WorkspaceToCode(workspace)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Language: gen.Language(), Code: code})
}

func (s *APIServer) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	workspace, ok := readBody(w, r)
	if !ok {
		return
	}
	data, err := s.Mapper.Save(workspace, s.Manager.State())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *APIServer) handleLoadDocument(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := s.Mapper.Restore(r.Context(), data, s.Manager)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, framework.ErrUnsupportedFormat) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	resp := LoadResponse{Workspace: res.Workspace, Legacy: res.Legacy}
	for _, warn := range res.Warnings {
		resp.Warnings = append(resp.Warnings, warn.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events := make(chan framework.ChangeEvent, 64)
	cancel := s.Manager.Subscribe(func(ev framework.ChangeEvent) {
		select {
		case events <- ev:
		default:
			s.logger().Warn("event client too slow, dropping event", zap.String("reason", string(ev.Reason)))
		}
	})
	defer cancel()

	// reads only detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg EventMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(msg)
	}
	if err := write(EventMessage{Reason: "snapshot", State: s.state()}); err != nil {
		return
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(writeTimeout))
			return
		case ev := <-events:
			if err := write(EventMessage{Reason: string(ev.Reason), State: viewState(ev.ManagerID, ev.State)}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return data, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	data, ok := readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
