// Package debugserver exposes the ambient operator surface: liveness and
// ref-registry introspection for whoever is running this core, never the
// agent driving it. Bound to localhost only, and only started when an
// address is configured.
package debugserver

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/browser-stream/internal/cdp"
	"github.com/use-agent/browser-stream/internal/registry"
)

// Server is the ambient debug/health HTTP surface.
type Server struct {
	addr    string
	engine  *gin.Engine
	started time.Time
}

// New builds a Server reading browser connection state from ch and ref
// counts from reg. addr is the bind address (e.g. "127.0.0.1:7766"); the
// caller is responsible for only constructing a Server when addr is
// non-empty.
func New(addr string, ch cdp.Channel, reg *registry.Registry, rps float64, burst int) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(rateLimit(rps, burst))

	started := time.Now()

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ok":               true,
			"browserConnected": ch.State() == cdp.StateOpen,
			"uptimeSeconds":    time.Since(started).Seconds(),
		})
	})

	engine.GET("/debug/registry", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"liveRefs": reg.Len(),
			"counter":  reg.Counter(),
		})
	})

	return &Server{addr: addr, engine: engine, started: started}
}

// ListenAndServe blocks serving the debug surface until the process exits
// or the listener errors. Callers run it in its own goroutine. An address
// whose host is not "localhost" or a loopback IP is refused with an error.
func (s *Server) ListenAndServe() error {
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("debug server address %q is not a loopback address", s.addr)
	}
	return s.engine.Run(s.addr)
}

// rateLimit guards every debug endpoint with a single shared token bucket.
// This surface has no API-key or per-caller identity, so one bucket for
// the whole localhost-only server is enough.
func rateLimit(rps float64, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		mu.Lock()
		allowed := limiter.Allow()
		mu.Unlock()

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"ok":    false,
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
