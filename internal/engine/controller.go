package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/antirec/internal/audio"
	"github.com/audiolibrelab/antirec/internal/config"
	"github.com/audiolibrelab/antirec/internal/perturb"
	"github.com/audiolibrelab/antirec/internal/relay"
)

var (
	// ErrSessionActive is returned by Start while a session holds the devices
	ErrSessionActive = errors.New("a session is already active")
	// ErrNoSession is returned by Stop when nothing is running
	ErrNoSession = errors.New("no active session")
)

// DefaultRelayCapacityMs bounds the FIFO relay when no capacity is configured
const DefaultRelayCapacityMs = 500

// Options configures the sessions a controller starts
type Options struct {
	WavesDirectory  string
	Negotiate       audio.NegotiateOptions
	RelayMode       relay.Mode
	RelayCapacityMs int
	PollInterval    time.Duration
	RecorderQueue   int
}

// OptionsFromConfig derives session options from a resolved config
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	mode, err := relay.ParseMode(cfg.Relay.Mode)
	if err != nil {
		return Options{}, err
	}
	return Options{
		WavesDirectory:  cfg.WavesDirectory(),
		Negotiate:       audio.OptionsFromConfig(cfg),
		RelayMode:       mode,
		RelayCapacityMs: cfg.Relay.CapacityMs,
		PollInterval:    cfg.Session.PollInterval,
		RecorderQueue:   cfg.Session.RecorderQueue,
	}, nil
}

// newRelay sizes the relay from the output layout. A LIFO relay without a
// configured capacity is unbounded.
func (o Options) newRelay(out audio.StreamConfig) (relay.Relay, error) {
	ms := o.RelayCapacityMs
	if ms <= 0 && o.RelayMode != relay.ModeLIFO {
		ms = DefaultRelayCapacityMs
	}

	capacity := 0
	if ms > 0 {
		capacity = relay.Capacity(out.SampleRate, out.Channels, ms)
	}
	return relay.New(o.RelayMode, capacity)
}

// Controller starts and stops sessions, one at a time
type Controller struct {
	host audio.Host
	opts Options
	pub  Publisher
	now  func() time.Time

	mu      sync.Mutex
	current *Session
}

// NewController creates a controller opening streams on host. pub receives
// capture batches and may be nil.
func NewController(host audio.Host, opts Options, pub Publisher) *Controller {
	return &Controller{
		host: host,
		opts: opts,
		pub:  pub,
		now:  time.Now,
	}
}

// Start validates values, then negotiates devices and starts streaming.
// It returns once both streams run or setup has failed; on failure no
// stream stays open and no recording is left behind.
func (c *Controller) Start(ctx context.Context, values []float32) (*Session, error) {
	seq, err := perturb.NewSequence(values)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.current != nil && c.current.State().Active() {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}

	startedAt := c.now()
	ts := startedAt.UnixMilli()
	ori, perturbed := audio.RecordingPaths(c.opts.WavesDirectory, ts)

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:            uuid.NewString(),
		StartedAt:     startedAt,
		Timestamp:     ts,
		OriginalPath:  ori,
		PerturbedPath: perturbed,
		opts:          c.opts,
		seq:           seq,
		ctx:           sctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		state:         StateNegotiating,
	}
	c.current = s
	c.mu.Unlock()

	slog.Info("Starting session", "session", s.ID, "sequence_length", seq.Len())

	ready := make(chan error, 1)
	go s.run(c.host, c.pub, ready)

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			return nil, err
		}
		if ctx.Err() == nil {
			return s, nil
		}
	case <-ctx.Done():
	}

	err = fmt.Errorf("session start abandoned: %w", ctx.Err())
	s.abandon(err)
	return nil, err
}

// Stop signals the active session to tear down and returns immediately
func (c *Controller) Stop() (*Session, error) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil || !s.State().Active() {
		return nil, ErrNoSession
	}

	slog.Info("Stopping session", "session", s.ID)
	s.Stop()
	return s, nil
}

// StopSession stops the session with the given id
func (c *Controller) StopSession(id string) (*Session, error) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil || s.ID != id {
		return nil, ErrNoSession
	}
	return c.Stop()
}

// Current returns the most recent session, running or not
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State returns the state of the active session, or Idle
func (c *Controller) State() State {
	s := c.Current()
	if s == nil {
		return StateIdle
	}
	if st := s.State(); st.Active() {
		return st
	}
	return StateIdle
}
