package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haldis/idlewatch/internal/extractor"
	"github.com/haldis/idlewatch/internal/lifecycle"
)

// Router provides embeddable HTTP handlers for observing and nudging the
// lifecycle machine.
// Endpoints:
//
//	GET  {basePath}/status    current machine snapshot
//	POST {basePath}/activity  inject a manual activity event (starts the companion if stopped)
//	POST {basePath}/stop      request a stop (honors transition discipline)
//	GET  {basePath}/healthz   liveness
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	machine  *lifecycle.Machine
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/status, /api/activity, /api/stop.
func NewRouter(machine *lifecycle.Machine, basePath string) *Router {
	return &Router{machine: machine, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/activity", r.handleActivity)
	group.POST("/stop", r.handleStop)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, machine *lifecycle.Machine) (*http.Server, error) {
	r := NewRouter(machine, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type okResp struct {
	OK bool `json:"ok"`
}

type activityReq struct {
	Session string `json:"session"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.machine.Status())
}

func (r *Router) handleActivity(c *gin.Context) {
	var req activityReq
	// body is optional; a bare POST means anonymous activity
	_ = c.ShouldBindJSON(&req)
	kind := extractor.KindActivity
	if req.Session != "" {
		kind = extractor.KindSessionStarted
	}
	r.machine.Offer(extractor.Event{Kind: kind, Session: req.Session, At: time.Now()})
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	r.machine.RequestStop()
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, okResp{OK: true})
}
