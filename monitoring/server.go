package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the recorder over HTTP while the training runs
type Server struct {
	Addr     string
	recorder *Recorder
	logger   log.Logger
	server   *http.Server
	started  time.Time
}

func NewServer(addr string, recorder *Recorder, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{
		Addr:     addr,
		recorder: recorder,
		logger:   log.With(logger, "component", "monitor"),
		started:  time.Now(),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.handleHealth)
	r.GET("/stats", s.handleStats)
	r.GET("/stats/:experiment", s.handleExperiment)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{})))

	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"experiments": s.recorder.Snapshots()})
}

func (s *Server) handleExperiment(c *gin.Context) {
	name := c.Param("experiment")
	snap, ok := s.recorder.Snapshot(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown experiment " + name})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Start serves until the context is done, then shuts the server down
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		level.Info(s.logger).Log("msg", "serving", "addr", s.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "monitor server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown monitor server")
	}
	level.Info(s.logger).Log("msg", "stopped")
	return nil
}
