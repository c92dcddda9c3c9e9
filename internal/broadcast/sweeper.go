// Package broadcast periodically recomputes every installed tenant's
// glance and pushes it to that tenant's rooms.
package broadcast

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/iskodirajga/sauce-hipchat-service/internal/glance"
	"github.com/iskodirajga/sauce-hipchat-service/internal/hipchat"
	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
	"github.com/iskodirajga/sauce-hipchat-service/internal/metrics"
	"github.com/iskodirajga/sauce-hipchat-service/internal/settings"
	"github.com/iskodirajga/sauce-hipchat-service/internal/tenant"
)

type Config struct {
	// Interval between sweeps. One sweep also runs at Start.
	Interval time.Duration

	// RatePerSec bounds outbound glance pushes across all tenants.
	RatePerSec int

	// GlanceKey is the module key the chat platform registered for our
	// glance.
	GlanceKey string
}

// Sweeper owns the periodic broadcast cycle. All collaborators are
// injected so tests can run a single sweep deterministically without a
// timer.
type Sweeper struct {
	cfg      Config
	store    settings.Store
	resolver *tenant.Resolver
	chat     hipchat.Notifier
	met      *metrics.Metrics
	log      logx.Logger

	limiter *rate.Limiter

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, store settings.Store, resolver *tenant.Resolver, chat hipchat.Notifier, met *metrics.Metrics, log logx.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.GlanceKey == "" {
		cfg.GlanceKey = "sauce.glance"
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		chat:     chat,
		met:      met,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Start runs one sweep immediately and schedules the periodic cycle.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc("@every "+s.cfg.Interval.String(), func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in broadcast sweep", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.RunSweep(ctx)
	})
	if err != nil {
		return err
	}
	s.c = c

	go s.RunSweep(ctx)
	c.Start()
	s.log.Info("broadcast sweeper started", logx.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop halts the periodic cycle and waits for a running sweep's cron
// slot to drain (bounded by ctx).
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("broadcast sweeper stopped")
}

// RunSweep executes one broadcast cycle: enumerate installed tenants
// and refresh each independently. Per-tenant failures never abort the
// sweep; log-and-continue is the only failure handling at this layer.
func (s *Sweeper) RunSweep(ctx context.Context) {
	start := time.Now()

	keys, err := s.store.ScanKeys(ctx, "*:"+settings.ClientInfoName)
	if err != nil {
		s.log.Error("tenant scan failed", logx.Err(err))
		return
	}

	var wg sync.WaitGroup
	for _, key := range keys {
		clientKey, _ := settings.SplitKey(key)
		wg.Add(1)
		go func(clientKey string) {
			defer wg.Done()
			s.sweepTenant(ctx, clientKey)
		}(clientKey)
	}
	wg.Wait()

	if s.met != nil {
		s.met.SweepsTotal.Inc()
		s.met.SweepDuration.Observe(time.Since(start).Seconds())
	}
	s.log.Debug("sweep finished", logx.Int("tenants", len(keys)), logx.Duration("took", time.Since(start)))
}

// sweepTenant refreshes one tenant: resolve credential, aggregate once,
// push the same snapshot to every room. Nothing here is shared with
// other tenants' iterations.
func (s *Sweeper) sweepTenant(ctx context.Context, clientKey string) {
	log := s.log.With(logx.String("client_key", clientKey))

	var ci hipchat.ClientInfo
	if err := settings.GetJSON(ctx, s.store, settings.ClientInfoName, clientKey, &ci); err != nil {
		log.Warn("client info unreadable", logx.Err(err))
		s.fail()
		return
	}

	api, err := s.resolver.Resolve(ctx, clientKey)
	if errors.Is(err, tenant.ErrNotConfigured) {
		// Installed but never signed in. Expected; skip quietly.
		log.Debug("tenant not configured, skipping")
		return
	}
	if err != nil {
		log.Warn("credential resolution failed", logx.Err(err))
		s.fail()
		return
	}

	payload, stats, err := glance.Aggregate(ctx, api)
	if err != nil {
		// Retried at the next sweep; nothing else to do now.
		log.Warn("glance aggregation failed", logx.Err(err))
		s.fail()
		return
	}
	log.Debug("glance computed", logx.Int("jobs", stats.Count))

	for _, roomID := range ci.RoomIDs {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		target := hipchat.RoomTarget{RoomID: roomID, GroupID: ci.GroupID}
		if err := s.chat.UpdateGlance(ctx, ci, target, s.cfg.GlanceKey, payload); err != nil {
			log.Warn("glance push failed", logx.Int64("room_id", roomID), logx.Err(err))
			s.fail()
			continue
		}
		if s.met != nil {
			s.met.GlancePushes.Inc()
		}
	}
}

func (s *Sweeper) fail() {
	if s.met != nil {
		s.met.SweepTenantFails.Inc()
	}
}
