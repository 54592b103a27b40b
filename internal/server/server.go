// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	restful "github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/session"
)

// Runner executes objectives. *session.Controller is the production runner.
type Runner interface {
	Execute(ctx context.Context, req session.Request) session.Result
	Status() session.Status
}

// AgentRequest is the body of POST /agent.
type AgentRequest struct {
	Task     string `json:"task"`
	MaxSteps int    `json:"max_steps,omitempty"`
}

// AgentResponse is returned by both /agent routes.
type AgentResponse struct {
	Status     string `json:"status"`
	SessionID  string `json:"session_id,omitempty"`
	Objective  string `json:"objective,omitempty"`
	State      string `json:"state,omitempty"`
	Step       int    `json:"step,omitempty"`
	Steps      int    `json:"steps,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ErrorResponse is the body of any 4xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	statusIdle     = "idle"
	statusStarted  = "started"
	statusRunning  = "running"
	statusFinished = "finished"
)

// Server is the HTTP launcher. It starts at most one objective at a time
// and answers immediately; the objective runs in the background.
type Server struct {
	cfg       config.ServerConfig
	logger    *zap.Logger
	runner    Runner
	container *restful.Container

	sessionCtx    context.Context
	cancelSession context.CancelFunc
	wg            sync.WaitGroup

	mu       sync.Mutex
	activeID string
	last     *session.Result
	lastObj  string
}

// New builds the server and registers its routes.
func New(cfg config.ServerConfig, logger *zap.Logger, runner Runner) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:           cfg,
		logger:        logger.Named("server"),
		runner:        runner,
		container:     restful.NewContainer(),
		sessionCtx:    ctx,
		cancelSession: cancel,
	}
	s.container.Add(s.webService())
	return s
}

func (s *Server) webService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	ws.Route(ws.POST("/agent").To(s.startAgent).
		Doc("start an objective").
		Reads(AgentRequest{}).
		Returns(http.StatusAccepted, "Accepted", AgentResponse{}).
		Returns(http.StatusBadRequest, "Bad Request", ErrorResponse{}).
		Returns(http.StatusConflict, "Conflict", ErrorResponse{}))

	ws.Route(ws.GET("/agent").To(s.agentStatus).
		Doc("report the active or last objective").
		Returns(http.StatusOK, "OK", AgentResponse{}))

	return ws
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.container }

func (s *Server) startAgent(req *restful.Request, resp *restful.Response) {
	var body AgentRequest
	if err := json.NewDecoder(req.Request.Body).Decode(&body); err != nil {
		resp.WriteHeaderAndEntity(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	task := strings.TrimSpace(body.Task)
	if task == "" {
		resp.WriteHeaderAndEntity(http.StatusBadRequest, ErrorResponse{Error: "task is required"})
		return
	}
	if body.MaxSteps < 0 {
		resp.WriteHeaderAndEntity(http.StatusBadRequest, ErrorResponse{Error: "max_steps must not be negative"})
		return
	}

	s.mu.Lock()
	if s.activeID != "" {
		active := s.activeID
		s.mu.Unlock()
		resp.WriteHeaderAndEntity(http.StatusConflict, ErrorResponse{Error: "objective " + active + " is still running"})
		return
	}
	if s.sessionCtx.Err() != nil {
		s.mu.Unlock()
		resp.WriteHeaderAndEntity(http.StatusServiceUnavailable, ErrorResponse{Error: "server is shutting down"})
		return
	}
	id := uuid.NewString()
	s.activeID = id
	s.lastObj = task
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runObjective(session.Request{ID: id, Objective: task, MaxSteps: body.MaxSteps})

	s.logger.Info("Objective launched", zap.String("session_id", id), zap.String("task", task), zap.Int("max_steps", body.MaxSteps))
	resp.WriteHeaderAndEntity(http.StatusAccepted, AgentResponse{Status: statusStarted, SessionID: id, Objective: task})
}

func (s *Server) runObjective(req session.Request) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Objective panicked", zap.String("session_id", req.ID), zap.Any("panic", r), zap.Stack("stack"))
			s.finish(session.Result{ID: req.ID, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	res := s.runner.Execute(s.sessionCtx, req)
	fields := []zap.Field{zap.String("session_id", res.ID), zap.String("state", string(res.State))}
	if res.Err != nil {
		s.logger.Warn("Objective ended", append(fields, zap.Error(res.Err))...)
	} else {
		s.logger.Info("Objective ended", fields...)
	}
	s.finish(res)
}

func (s *Server) finish(res session.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = ""
	s.last = &res
}

func (s *Server) agentStatus(_ *restful.Request, resp *restful.Response) {
	s.mu.Lock()
	active, last, objective := s.activeID, s.last, s.lastObj
	s.mu.Unlock()

	if active != "" {
		st := s.runner.Status()
		out := AgentResponse{Status: statusRunning, SessionID: active, Objective: objective}
		if st.ID == active {
			out.State = string(st.State)
			out.Step = st.StepIndex + 1
			out.Steps = st.Steps
			out.Iterations = st.Iterations
		}
		resp.WriteHeaderAndEntity(http.StatusOK, out)
		return
	}
	if last == nil {
		resp.WriteHeaderAndEntity(http.StatusOK, AgentResponse{Status: statusIdle})
		return
	}
	out := AgentResponse{
		Status:     statusFinished,
		SessionID:  last.ID,
		Objective:  objective,
		State:      string(last.State),
		Steps:      len(last.Plan),
		Iterations: last.Iterations,
	}
	if last.Err != nil {
		out.Error = last.Err.Error()
	}
	resp.WriteHeaderAndEntity(http.StatusOK, out)
}

// ListenAndServe listens on the configured address until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then shuts down: the HTTP
// server stops, the running objective is cancelled and awaited.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.container,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Launcher listening", zap.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down launcher")

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		s.Close()
		return err
	})
	return g.Wait()
}

// Close cancels any running objective and waits for it to return.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancelSession()
	s.mu.Unlock()
	s.wg.Wait()
}
