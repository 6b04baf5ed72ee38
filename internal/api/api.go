// Package api serves the gateway status and frame stream over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/kstaniek/go-mcmcan/internal/board"
	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/gateway"
	"github.com/kstaniek/go-mcmcan/internal/hub"
	"github.com/kstaniek/go-mcmcan/internal/logging"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
)

// Gateway is what the API needs from the running gateway.
type Gateway interface {
	Status() gateway.Status
	Layout() []board.Allocation
	Submit(can.Frame) error
	Hub() *hub.Hub[gateway.Event]
}

// Server holds the handlers.
type Server struct {
	gw           Gateway
	profile      *board.Profile
	logger       *slog.Logger
	withMetrics  bool
	pingInterval time.Duration
	writeTimeout time.Duration
	readLimit    int64
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProfile exposes the board profile at /api/profile.
func WithProfile(p board.Profile) Option { return func(s *Server) { s.profile = &p } }

// WithMetrics mounts /metrics and /ready.
func WithMetrics(on bool) Option { return func(s *Server) { s.withMetrics = on } }

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

func New(gw Gateway, opts ...Option) *Server {
	s := &Server{
		gw:           gw,
		logger:       logging.L(),
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
		readLimit:    4096,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/status", s.getStatus)
		r.Get("/nodes", s.listNodes)
		r.Get("/nodes/{id}", s.getNode)
		r.Get("/layout", s.getLayout)
		r.Get("/profile", s.getProfile)
		r.Post("/frames", s.postFrame)
	})
	r.Get("/ws", s.serveWS)
	if s.withMetrics {
		mh := metrics.Handler()
		r.Method(http.MethodGet, "/metrics", mh)
		r.Method(http.MethodGet, "/ready", mh)
	}
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http_request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"bytes", ww.BytesWritten(), "dur", time.Since(start), "req_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.gw.Status())
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.gw.Status().Nodes)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	for _, n := range s.gw.Status().Nodes {
		if n.ID == id {
			render.JSON(w, r, n)
			return
		}
	}
	render.Render(w, r, ErrNotFound)
}

func (s *Server) getLayout(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.gw.Layout())
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	if s.profile == nil {
		render.Render(w, r, ErrNotFound)
		return
	}
	render.JSON(w, r, s.profile)
}

func (s *Server) postFrame(w http.ResponseWriter, r *http.Request) {
	data := &FramePayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	f, err := data.Frame()
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if err := s.gw.Submit(f); err != nil {
		switch {
		case errors.Is(err, gateway.ErrQueueFull):
			render.Render(w, r, ErrUnavailable(err))
		case errors.Is(err, gateway.ErrNoGatewayNode):
			render.Render(w, r, ErrConflict(err))
		default:
			render.Render(w, r, ErrInvalidRequest(err))
		}
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, payloadOf(f))
}
