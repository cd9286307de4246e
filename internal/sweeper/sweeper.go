package sweeper

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const DefaultInterval = 30 * time.Second

// Evictor is the part of the session manager the sweeper drives.
type Evictor interface {
	Sweep() int
}

// Sweeper evicts expired sessions on a fixed interval, independent of any
// request. It is the backstop for clients that stop polling without notice.
type Sweeper struct {
	evictor  Evictor
	interval time.Duration
	onSweep  func(evicted int)

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func New(evictor Evictor, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		evictor:  evictor,
		interval: interval,
	}
}

// OnSweep registers a callback that receives the eviction count of every run.
func (s *Sweeper) OnSweep(fn func(evicted int)) {
	s.onSweep = fn
}

func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+s.interval.String(), func() { s.RunNow() }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true

	log.Info().Dur("interval", s.interval).Msg("Session sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("sweeper is not running")
	}

	<-s.cron.Stop().Done()
	s.running = false

	log.Info().Msg("Session sweeper stopped")
	return nil
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow performs one sweep synchronously and returns the number of sessions
// evicted.
func (s *Sweeper) RunNow() int {
	evicted := s.evictor.Sweep()
	if evicted > 0 {
		log.Info().Int("evicted", evicted).Msg("🗑 Expired sessions cleaned up")
	}
	if s.onSweep != nil {
		s.onSweep(evicted)
	}
	return evicted
}
