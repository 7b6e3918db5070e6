package source

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindd/internal/model"
	logx "remindd/pkg/logx"
)

const (
	defaultRefreshSpec = "@every 5m"
	// defaultWindow covers the longest reminder tier.
	defaultWindow = 30 * 24 * time.Hour
	// pastGrace keeps recently started events in the list so reminders
	// missed right around event start can still surface.
	pastGrace = 24 * time.Hour
)

// Config controls the refresh service.
type Config struct {
	URL            string
	Refresh        string // cron spec, default "@every 5m"
	CacheDir       string
	RequestTimeout time.Duration
	Window         time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Refresh) == "" {
		c.Refresh = defaultRefreshSpec
	}
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	return c
}

// Sink receives each refreshed event list. Implemented by the engine.
type Sink func(events []model.Event)

// Service periodically fetches and parses the calendar feed and pushes the
// filtered event list to the sink. A refresh that fails leaves the previous
// delivery in effect.
type Service struct {
	log  logx.Logger
	sink Sink

	mu      sync.Mutex
	cfg     Config
	fetcher *Fetcher
	running bool
	c       *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc

	parser cron.Parser
}

func NewService(cfg Config, sink Sink, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:     log,
		sink:    sink,
		cfg:     cfg,
		fetcher: NewFetcher(cfg.CacheDir, cfg.RequestTimeout, log),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start schedules periodic refreshes and kicks off one immediately so the
// engine has events before the first cron firing.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.startCronLocked(); err != nil {
		s.cancel()
		s.ctx, s.cancel = nil, nil
		s.mu.Unlock()
		return err
	}
	s.running = true
	runCtx := s.ctx
	s.mu.Unlock()

	go s.refresh(runCtx)
	s.log.Info("calendar refresh started", logx.String("spec", s.cfg.Refresh))
	return nil
}

// Stop halts the refresh schedule. An in-flight refresh is cancelled via
// its context; Stop waits for cron's own jobs up to ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("calendar refresh stopped")
}

// Apply swaps the feed settings. The cron schedule is rebuilt when running;
// the next refresh uses the new URL and cache settings.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	specChanged := cfg.Refresh != s.cfg.Refresh
	s.cfg = cfg
	s.fetcher = NewFetcher(cfg.CacheDir, cfg.RequestTimeout, s.log)

	if !s.running || !specChanged {
		return nil
	}
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	return s.startCronLocked()
}

func (s *Service) startCronLocked() error {
	// Validate the spec before committing to the new cron instance.
	if _, err := s.parser.Parse(s.cfg.Refresh); err != nil {
		return err
	}
	c := cron.New(cron.WithParser(s.parser))
	runCtx := s.ctx
	if _, err := c.AddFunc(s.cfg.Refresh, func() { s.refresh(runCtx) }); err != nil {
		return err
	}
	c.Start()
	s.c = c
	return nil
}

// Refresh forces an immediate fetch outside the cron schedule.
func (s *Service) Refresh(ctx context.Context) {
	s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	cfg := s.cfg
	fetcher := s.fetcher
	s.mu.Unlock()

	res, err := fetcher.Fetch(ctx, cfg.URL)
	if err != nil {
		s.log.Warn("calendar refresh failed", logx.String("url", redactURL(cfg.URL)), logx.Err(err))
		return
	}
	events, err := Parse(res.Body, s.log)
	if err != nil {
		s.log.Warn("calendar parse failed", logx.String("url", redactURL(cfg.URL)), logx.Err(err))
		return
	}

	filtered := filterEvents(events, time.Now(), cfg.Window)
	s.log.Debug("calendar refreshed",
		logx.Int("events", len(filtered)),
		logx.Int("raw", len(events)),
		logx.Bool("from_cache", res.FromCache))
	if s.sink != nil {
		s.sink(filtered)
	}
}

// filterEvents drops cancelled events and everything outside the reminder
// horizon: older than pastGrace or starting beyond the window.
func filterEvents(events []model.Event, now time.Time, window time.Duration) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Status == "CANCELLED" {
			continue
		}
		if ev.Start.Before(now.Add(-pastGrace)) || ev.Start.After(now.Add(window)) {
			continue
		}
		out = append(out, ev)
	}
	return out
}
