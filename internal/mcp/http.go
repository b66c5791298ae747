package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Paths served by HTTPHandler. SSEPath and MessagesPath follow the MCP SSE
// transport as FastMCP clients expect it; StreamPath answers each POST inline.
const (
	SSEPath      = "/sse"
	MessagesPath = "/messages/"
	StreamPath   = "/mcp"
)

const sessionBuffer = 64

var errSessionClosed = errors.New("sse session closed")

type sseSession struct {
	id     string
	ctx    context.Context
	events chan []byte
}

func (s *sseSession) send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.events <- data:
		return nil
	case <-s.ctx.Done():
		return errSessionClosed
	}
}

func init() {
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}

// HTTPHandler exposes a Server over HTTP.
type HTTPHandler struct {
	server *Server
	engine *gin.Engine

	mu       sync.Mutex
	sessions map[string]*sseSession
}

func NewHTTPHandler(server *Server) *HTTPHandler {
	h := &HTTPHandler{
		server:   server,
		engine:   gin.New(),
		sessions: make(map[string]*sseSession),
	}
	h.engine.HandleMethodNotAllowed = true
	h.engine.Use(gin.Recovery(), requestLogger())

	h.engine.GET(SSEPath, h.handleSSE)
	h.engine.POST(MessagesPath, h.handleMessage)
	h.engine.POST(StreamPath, h.handleStream)
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

// SessionCount reports the open SSE streams.
func (h *HTTPHandler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// handleSSE opens an event stream. The first event names the endpoint the client
// posts its requests to; responses and notifications follow as message events.
func (h *HTTPHandler) handleSSE(c *gin.Context) {
	ctx := c.Request.Context()
	session := &sseSession{
		id:     uuid.NewString(),
		ctx:    ctx,
		events: make(chan []byte, sessionBuffer),
	}

	h.mu.Lock()
	h.sessions[session.id] = session
	h.mu.Unlock()
	unsubscribe := h.server.subscribe(session.send)

	defer func() {
		unsubscribe()
		h.mu.Lock()
		delete(h.sessions, session.id)
		h.mu.Unlock()
		log.Debug("sse session closed", "session", session.id)
	}()

	c.Header("Connection", "keep-alive")
	c.SSEvent("endpoint", MessagesPath+"?session_id="+session.id)
	c.Writer.Flush()
	log.Debug("sse session opened", "session", session.id, "remote", c.ClientIP())

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case data := <-session.events:
			c.SSEvent("message", string(data))
			return true
		}
	})
}

// handleMessage accepts one request for an SSE session and answers it on the
// session's stream.
func (h *HTTPHandler) handleMessage(c *gin.Context) {
	id := c.Query("session_id")
	h.mu.Lock()
	session, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		c.String(http.StatusNotFound, "Could not find session")
		return
	}

	req, ok := decodeRequest(c)
	if !ok {
		return
	}
	c.String(http.StatusAccepted, "Accepted")

	go func() {
		resp := h.server.HandleRequest(session.ctx, req)
		if resp == nil {
			return
		}
		if err := session.send(resp); err != nil {
			log.Debug("response not delivered", "session", session.id, "error", err)
		}
	}()
}

// handleStream answers a POSTed request in the response body. Notifications get
// 202 and no body.
func (h *HTTPHandler) handleStream(c *gin.Context) {
	req, ok := decodeRequest(c)
	if !ok {
		return
	}

	resp := h.server.HandleRequest(c.Request.Context(), req)
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func decodeRequest(c *gin.Context) (*Request, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxMessageSize))
	if err != nil {
		c.String(http.StatusRequestEntityTooLarge, err.Error())
		return nil, false
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		log.Warn("invalid http request body", "error", err)
		c.JSON(http.StatusBadRequest, parseErrorResponse())
		return nil, false
	}
	return &req, true
}

// ListenHTTP serves the HTTP transports on addr until ctx is done.
func (s *Server) ListenHTTP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           NewHTTPHandler(s),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	log.Info("http listener started", "addr", ln.Addr().String(), "sse", SSEPath, "stream", StreamPath)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
