package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/antirec/internal/audio"
	"github.com/audiolibrelab/antirec/internal/perturb"
	"github.com/audiolibrelab/antirec/internal/relay"
	"github.com/audiolibrelab/antirec/internal/sample"
)

// State is the lifecycle position of a session
type State string

const (
	StateIdle        State = "IDLE"
	StateNegotiating State = "NEGOTIATING"
	StateStreaming   State = "STREAMING"
	StateDraining    State = "DRAINING"
	StateFailed      State = "FAILED"
)

// Active reports whether a session in this state holds the devices
func (s State) Active() bool {
	return s == StateNegotiating || s == StateStreaming || s == StateDraining
}

// Session is one start/stop cycle of the duplex pipeline. It is created by
// Controller.Start and owned by a single worker goroutine.
type Session struct {
	ID            string
	StartedAt     time.Time
	Timestamp     int64
	OriginalPath  string
	PerturbedPath string

	opts Options
	seq  *perturb.Sequence

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.RWMutex
	state       State
	err         error
	abandoned   bool
	negotiation *audio.Negotiation
	endedAt     time.Time

	relay    relay.Relay
	recorder *audio.DualRecorder
	capture  *Capture
	playback *Playback
	input    audio.Stream
	output   audio.Stream
}

// SessionInfo is a point-in-time view of a session
type SessionInfo struct {
	ID             string             `json:"id"`
	State          State              `json:"state"`
	StartedAt      time.Time          `json:"start_time"`
	EndedAt        *time.Time         `json:"end_time,omitempty"`
	Timestamp      int64              `json:"timestamp"`
	OriginalFile   string             `json:"original_file"`
	PerturbedFile  string             `json:"perturbed_file"`
	SequenceLength int                `json:"sequence_length"`
	Negotiation    *audio.Negotiation `json:"negotiation,omitempty"`
	Relay          *relay.Stats       `json:"relay,omitempty"`
	Recorder       *audio.DualStats   `json:"recorder,omitempty"`
	CaptureBatches uint64             `json:"capture_batches"`
	PlaybackSilent uint64             `json:"playback_silent"`
	Error          string             `json:"error,omitempty"`
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that ended the session, if any
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Done is closed when the worker has released every resource
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session has torn down or ctx ends
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the worker to tear the session down and returns at once
func (s *Session) Stop() {
	s.cancel()
}

// Info snapshots the session
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := SessionInfo{
		ID:             s.ID,
		State:          s.state,
		StartedAt:      s.StartedAt,
		Timestamp:      s.Timestamp,
		OriginalFile:   s.OriginalPath,
		PerturbedFile:  s.PerturbedPath,
		SequenceLength: s.seq.Len(),
		Negotiation:    s.negotiation,
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		info.EndedAt = &ended
	}
	if s.relay != nil {
		stats := s.relay.Stats()
		info.Relay = &stats
	}
	if s.recorder != nil {
		stats := s.recorder.Stats()
		info.Recorder = &stats
	}
	if s.capture != nil {
		info.CaptureBatches = s.capture.Batches()
	}
	if s.playback != nil {
		info.PlaybackSilent = s.playback.Silent()
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slog.Debug("Session state changed", "session", s.ID, "from", s.state, "to", state)
	s.state = state
}

// abort records err as the cause and cancels the session
func (s *Session) abort(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel()
}

// abandon marks a session whose caller gave up before setup finished.
// It ends Failed and keeps no recordings.
func (s *Session) abandon(err error) {
	s.mu.Lock()
	s.abandoned = true
	s.mu.Unlock()
	s.abort(err)
}

func (s *Session) isAbandoned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.abandoned
}

// run is the session worker. ready receives the outcome of setup.
func (s *Session) run(host audio.Host, pub Publisher, ready chan<- error) {
	err := s.setup(host, pub)
	if err == nil && s.isAbandoned() {
		err = s.Err()
	}
	if err != nil {
		s.release()
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.state = StateFailed
		s.endedAt = time.Now()
		err = s.err
		s.mu.Unlock()
		close(s.done)

		slog.Error("Session failed to start", "session", s.ID, "error", err)
		ready <- err
		return
	}

	s.setState(StateStreaming)
	slog.Info("Session streaming", "session", s.ID,
		"original", s.OriginalPath, "perturbed", s.PerturbedPath)
	ready <- nil

	s.stream()
	s.drain()
}

// setup negotiates devices, creates the recorders and starts both streams
func (s *Session) setup(host audio.Host, pub Publisher) error {
	neg, err := audio.Negotiate(host, s.opts.Negotiate)
	if err != nil {
		return fmt.Errorf("device negotiation failed: %w", err)
	}

	inCodec, err := sample.NewCodec(neg.Input.Config.Format)
	if err != nil {
		return fmt.Errorf("input %s: %w", neg.Input.Device.Name, err)
	}
	outCodec, err := sample.NewCodec(neg.Output.Config.Format)
	if err != nil {
		return fmt.Errorf("output %s: %w", neg.Output.Device.Name, err)
	}

	r, err := s.opts.newRelay(neg.Output.Config)
	if err != nil {
		return err
	}

	rec, err := audio.NewDualRecorder(s.opts.WavesDirectory, s.Timestamp, neg, s.opts.RecorderQueue, s.recordingFailed)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.negotiation = neg
	s.relay = r
	s.recorder = rec
	s.capture = NewCapture(inCodec, s.seq, r, rec.Original, pub)
	s.playback = NewPlayback(outCodec, r, rec.Perturbed)
	s.mu.Unlock()

	s.input, err = host.OpenStream(neg.Input.Device, neg.Input.Config, s.capture.Process, s.streamError("input"))
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	s.output, err = host.OpenStream(neg.Output.Device, neg.Output.Config, s.playback.Process, s.streamError("output"))
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}

	if err := s.input.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	if err := s.output.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	return nil
}

// release undoes a partial setup and removes the recording files
func (s *Session) release() {
	for _, st := range []audio.Stream{s.input, s.output} {
		if st == nil {
			continue
		}
		st.Pause()
		st.Close()
	}

	s.mu.RLock()
	rec := s.recorder
	s.mu.RUnlock()
	if rec != nil {
		if err := rec.Remove(); err != nil {
			slog.Warn("Failed to remove partial recordings", "session", s.ID, "error", err)
		}
	}
}

// recordingFailed ends the session on the first track write error
func (s *Session) recordingFailed(err error) {
	s.abort(fmt.Errorf("recording failed: %w", err))
}

func (s *Session) streamError(name string) audio.ErrorFunc {
	return func(err error) {
		if errors.Is(err, audio.ErrDeviceStopped) {
			slog.Error("Stream stopped by driver", "session", s.ID, "stream", name)
			s.abort(fmt.Errorf("%s stream: %w", name, err))
			return
		}
		slog.Warn("Stream error", "session", s.ID, "stream", name, "error", err)
	}
}

// stream waits for cancellation, logging statistics on every tick
func (s *Session) stream() {
	interval := s.opts.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			rs := s.relay.Stats()
			rec := s.recorder.Stats()
			slog.Debug("Session heartbeat", "session", s.ID,
				"buffered", rs.Buffered, "overflows", rs.Overflows, "underruns", rs.Underruns,
				"ori_written", rec.Original.Written, "new_written", rec.Perturbed.Written,
				"dropped", rec.Original.Dropped+rec.Perturbed.Dropped)
		}
	}
}

// drain pauses both streams, finalizes the recordings and closes the streams
func (s *Session) drain() {
	s.setState(StateDraining)

	var errs []error
	if err := s.input.Pause(); err != nil {
		errs = append(errs, fmt.Errorf("failed to pause input: %w", err))
	}
	if err := s.output.Pause(); err != nil {
		errs = append(errs, fmt.Errorf("failed to pause output: %w", err))
	}

	if err := s.recorder.Finalize(); err != nil {
		errs = append(errs, err)
	}
	if s.isAbandoned() {
		if err := s.recorder.Remove(); err != nil {
			slog.Warn("Failed to remove abandoned recordings", "session", s.ID, "error", err)
		}
	}

	if err := s.input.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close input: %w", err))
	}
	if err := s.output.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close output: %w", err))
	}

	final := StateIdle
	s.mu.Lock()
	if err := errors.Join(errs...); err != nil && s.err == nil {
		s.err = err
	}
	if s.err != nil {
		final = StateFailed
	}
	s.state = final
	s.endedAt = time.Now()
	err := s.err
	s.mu.Unlock()

	close(s.done)

	stats := s.recorder.Stats()
	if err != nil {
		slog.Error("Session ended with error", "session", s.ID, "error", err)
	} else {
		slog.Info("Session stopped", "session", s.ID,
			"duration", time.Since(s.StartedAt).Round(time.Millisecond),
			"ori_written", stats.Original.Written, "new_written", stats.Perturbed.Written)
	}
}
