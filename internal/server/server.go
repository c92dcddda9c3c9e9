// Package server wires the add-on's inbound HTTP surface: lifecycle
// callbacks, configuration, glance data, dialogs, and webhooks.
package server

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/mux"

	"github.com/iskodirajga/sauce-hipchat-service/internal/broadcast"
	"github.com/iskodirajga/sauce-hipchat-service/internal/config"
	"github.com/iskodirajga/sauce-hipchat-service/internal/hipchat"
	"github.com/iskodirajga/sauce-hipchat-service/internal/lifecycle"
	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
	"github.com/iskodirajga/sauce-hipchat-service/internal/metrics"
	"github.com/iskodirajga/sauce-hipchat-service/internal/settings"
	"github.com/iskodirajga/sauce-hipchat-service/internal/tenant"
)

type Server struct {
	cfg       *config.Config
	log       logx.Logger
	store     settings.Store
	resolver  *tenant.Resolver
	chat      hipchat.Notifier
	life      *lifecycle.Manager
	sweeper   *broadcast.Sweeper
	met       *metrics.Metrics
	router    *mux.Router
	jobLinkRe *regexp.Regexp

	httpSrv *http.Server
}

func New(cfg *config.Config, store settings.Store, resolver *tenant.Resolver, chat hipchat.Notifier, life *lifecycle.Manager, sweeper *broadcast.Sweeper, met *metrics.Metrics, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:      cfg,
		log:      log,
		store:    store,
		resolver: resolver,
		chat:     chat,
		life:     life,
		sweeper:  sweeper,
		met:      met,
		jobLinkRe: regexp.MustCompile(
			`https?://` + regexp.QuoteMeta(cfg.Sauce.LinkHost) + `/beta/tests/([a-zA-Z0-9]{32})`),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthcheck", s.healthcheck).Methods(http.MethodGet)

	r.Handle("/config", s.authenticate(s.getConfig)).Methods(http.MethodGet)
	r.Handle("/config", s.authenticate(s.postConfig)).Methods(http.MethodPost)

	r.Handle("/glance", cors(s.authenticate(s.getGlance))).Methods(http.MethodGet, http.MethodOptions)

	r.Handle("/sidebar/jobs", s.authenticate(s.sidebarJobs)).Methods(http.MethodGet)
	r.Handle("/dialog/job/{jobId}", s.authenticate(s.dialogJob)).Methods(http.MethodGet)
	r.Handle("/dialog/video/{jobId}", s.authenticate(s.dialogVideo)).Methods(http.MethodGet)
	r.Handle("/dialog/screenshots/{jobId}", s.authenticate(s.dialogScreenshots)).Methods(http.MethodGet)

	r.Handle("/webhooks/sauce", s.authenticate(s.webhookSauceActivity)).Methods(http.MethodPost)
	r.Handle("/webhooks/saucelabs_url", s.authenticate(s.webhookMessage)).Methods(http.MethodPost)

	r.HandleFunc("/installed", s.installed).Methods(http.MethodPost)
	r.HandleFunc("/installed/{clientKey}", s.uninstalled).Methods(http.MethodDelete)

	if s.met != nil {
		r.Handle("/metrics", s.met.Handler()).Methods(http.MethodGet)
	}

	s.router = r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.cfg.Listen))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutCtx)
}
