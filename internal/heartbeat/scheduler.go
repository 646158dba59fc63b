package heartbeat

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Config configures a Scheduler.
type Config struct {
	Interval time.Duration // Server-advertised heartbeat interval

	// Jitter bounds for the first beat, as fractions of Interval.
	// The first beat fires after Interval * j with j uniform in
	// (JitterMin, JitterMax].
	JitterMin float64
	JitterMax float64
}

// DefaultConfig returns sensible defaults for the given interval.
func DefaultConfig(interval time.Duration) Config {
	return Config{
		Interval:  interval,
		JitterMin: 0,
		JitterMax: 1,
	}
}

// Scheduler emits heartbeat signals and tracks acknowledgements for
// one connection. Create one per session with New; it is not
// restartable after Stop.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	beats chan time.Time
	stale chan struct{}
	done  chan struct{}

	loopDone chan struct{}

	mu      sync.Mutex
	pending bool // a beat was emitted and not yet acknowledged

	stopOnce  sync.Once
	staleOnce sync.Once

	// Injectable for deterministic tests.
	randFloat func() float64
}

// New creates a stopped scheduler. Call Start to begin the cadence.
func New(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JitterMax <= 0 || cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMin = 0
		cfg.JitterMax = 1
	}

	return &Scheduler{
		cfg:       cfg,
		logger:    logger,
		beats:     make(chan time.Time, 1),
		stale:     make(chan struct{}),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		randFloat: rand.Float64,
	}
}

// Start launches the cadence goroutine.
func (s *Scheduler) Start() {
	go s.loop()
}

// Beats returns the channel signalling when a heartbeat must be sent.
func (s *Scheduler) Beats() <-chan time.Time {
	return s.beats
}

// Stale returns a channel that is closed when a beat came due with
// the previous one unacknowledged. Closed at most once.
func (s *Scheduler) Stale() <-chan struct{} {
	return s.stale
}

// Ack records that the last emitted beat was acknowledged.
func (s *Scheduler) Ack() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
}

// Stop tears the scheduler down. It blocks until the cadence
// goroutine has exited: no beat fires after Stop returns.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	<-s.loopDone
}

// firstDelay computes the jittered delay before the initial beat.
// The (0,1] sampling keeps a fleet of reconnecting shards from
// heartbeating in lockstep.
func (s *Scheduler) firstDelay() time.Duration {
	j := s.cfg.JitterMin + (s.cfg.JitterMax-s.cfg.JitterMin)*(1-s.randFloat())
	return time.Duration(float64(s.cfg.Interval) * j)
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)

	timer := time.NewTimer(s.firstDelay())
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return

		case now := <-timer.C:
			s.mu.Lock()
			missed := s.pending
			if !missed {
				s.pending = true
			}
			s.mu.Unlock()

			if missed {
				s.logger.Warn("heartbeat not acknowledged, connection stale",
					"interval", s.cfg.Interval,
				)
				s.staleOnce.Do(func() {
					close(s.stale)
				})
				return
			}

			select {
			case s.beats <- now:
			case <-s.done:
				return
			}

			timer.Reset(s.cfg.Interval)
		}
	}
}
