// Package httpapi exposes an orchestrator over HTTP for `spaship serve`.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/lifecycle"
	"github.com/bft-labs/spaship/pkg/log"
	"github.com/bft-labs/spaship/pkg/registry"
	"github.com/bft-labs/spaship/pkg/spaship"
)

// DefaultRequestTimeout bounds how long a request waits for reroutes to settle.
const DefaultRequestTimeout = 30 * time.Second

// Server routes control requests to an orchestrator.
type Server struct {
	orch    *spaship.Orchestrator
	logger  log.Logger
	timeout time.Duration
	router  chi.Router
	health  healthcheck.Handler
}

// AppView is the JSON form of one application.
type AppView struct {
	Name    string     `json:"name"`
	Status  app.Status `json:"status"`
	Mounted bool       `json:"mounted"`
}

// StateView is the JSON form of the orchestrator state.
type StateView struct {
	URL     string    `json:"url"`
	State   string    `json:"state"`
	Mounted []string  `json:"mounted"`
	Apps    []AppView `json:"apps"`
}

// NavigateRequest is the body of POST /navigate.
type NavigateRequest struct {
	URL string `json:"url"`
}

// MountedView is returned by the reroute endpoints.
type MountedView struct {
	URL     string   `json:"url"`
	Mounted []string `json:"mounted"`
}

type errorView struct {
	Error string `json:"error"`
}

// New builds the router. A non-positive timeout uses DefaultRequestTimeout.
func New(o *spaship.Orchestrator, logger log.Logger, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	s := &Server{
		orch:    o,
		logger:  log.With(log.OrNoop(logger), log.String("component", "httpapi")),
		timeout: timeout,
		health:  healthcheck.NewHandler(),
	}

	s.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	s.health.AddReadinessCheck("orchestrator", func() error {
		if st := o.State(); st != spaship.StateRunning {
			return errors.New("orchestrator is " + st.String())
		}
		return nil
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/apps", s.listApps)
	r.Route("/apps/{name}", func(r chi.Router) {
		r.Get("/", s.getApp)
		r.Delete("/", s.unregisterApp)
		r.Post("/unload", s.unloadApp)
	})
	r.Post("/navigate", s.navigate)
	r.Post("/reroute", s.reroute)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/live", s.health.LiveEndpoint)
	r.Get("/ready", s.health.ReadyEndpoint)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request served",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Int("status", ww.Status()),
			log.String("request_id", middleware.GetReqID(r.Context())),
			log.Duration("took", time.Since(start)))
	})
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *Server) state() StateView {
	mounted := s.orch.MountedApps()
	isMounted := make(map[string]bool, len(mounted))
	for _, name := range mounted {
		isMounted[name] = true
	}
	statuses := s.orch.AppStatuses()
	names := s.orch.AppNames()
	apps := make([]AppView, 0, len(names))
	for _, name := range names {
		apps = append(apps, AppView{Name: name, Status: statuses[name], Mounted: isMounted[name]})
	}
	return StateView{
		URL:     s.orch.Location().Href,
		State:   s.orch.State().String(),
		Mounted: mounted,
		Apps:    apps,
	}
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) getApp(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status, ok := s.orch.AppStatus(name)
	if !ok {
		s.writeError(w, registry.ErrApplicationNotFound)
		return
	}
	writeJSON(w, http.StatusOK, AppView{Name: name, Status: status, Mounted: status == app.StatusMounted})
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorView{Error: "body must be {\"url\": \"...\"}"})
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	mounted, err := s.orch.Navigate(ctx, req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MountedView{URL: s.orch.Location().Href, Mounted: mounted})
}

func (s *Server) reroute(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	mounted, err := s.orch.TriggerAppChange(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MountedView{URL: s.orch.Location().Href, Mounted: mounted})
}

// unloadApp unloads right away, or with ?wait=true queues the unload for
// the next reroute that unmounts the application and answers 202.
func (s *Server) unloadApp(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.orch.AppStatus(name); !ok {
		s.writeError(w, registry.ErrApplicationNotFound)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		go func() {
			if err := s.orch.UnloadApplication(context.Background(), name, true); err != nil {
				s.logger.Warn("queued unload failed", log.App(name), log.Err(err))
			}
		}()
		w.WriteHeader(http.StatusAccepted)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	if err := s.orch.UnloadApplication(ctx, name, false); err != nil {
		s.writeError(w, err)
		return
	}
	status, _ := s.orch.AppStatus(name)
	writeJSON(w, http.StatusOK, AppView{Name: name, Status: status, Mounted: status == app.StatusMounted})
}

func (s *Server) unregisterApp(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.orch.UnregisterApplication(ctx, chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var urlErr *url.Error
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrApplicationNotFound):
		code = http.StatusNotFound
	case errors.As(err, &urlErr):
		code = http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrApplicationBroken):
		code = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", log.Err(err))
	}
	writeJSON(w, code, errorView{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
