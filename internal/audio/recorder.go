package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/audiolibrelab/antirec/internal/sample"
)

const (
	// DecimationFactor is the ratio between device samples and recorded samples
	DecimationFactor = 3

	// DefaultRecorderQueue is the writer queue length used when none is configured
	DefaultRecorderQueue = 16384

	trackBitDepth = 16
	writeBatch    = 1024
)

// ErrTrackClosed is returned when a track is finalized twice
var ErrTrackClosed = errors.New("recording track already finalized")

// TrackStats reports the counters of one recording track
type TrackStats struct {
	Path    string `json:"path"`
	Offered uint64 `json:"offered"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

// Track is a decimated 16-bit WAV file fed from an audio callback. Offer
// never blocks: samples go through a bounded queue drained by a writer
// goroutine, and are dropped when the queue is full.
type Track struct {
	path    string
	file    *os.File
	encoder *wav.Encoder
	format  *goaudio.Format
	onError func(error)

	// only touched by the single feeding callback
	phase int

	queue chan int16
	stop  chan struct{}
	done  chan struct{}

	offered atomic.Uint64
	written atomic.Uint64
	dropped atomic.Uint64

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closed    atomic.Bool
}

// CreateTrack creates the WAV file at path and starts its writer. onError,
// when set, receives the first write failure.
func CreateTrack(path string, sampleRate, channels, queue int, onError func(error)) (*Track, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid track layout: %d Hz, %d channels", sampleRate, channels)
	}
	if queue <= 0 {
		queue = DefaultRecorderQueue
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	t := &Track{
		path:    path,
		file:    f,
		encoder: wav.NewEncoder(f, sampleRate, trackBitDepth, channels, 1),
		format:  &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		onError: onError,
		queue:   make(chan int16, queue),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	// the encoder only emits its header on the first write
	if err := t.encoder.Write(t.buffer(nil)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	go t.writer()

	return t, nil
}

// Path returns the file path of the track
func (t *Track) Path() string {
	return t.path
}

// Offer presents one normalized sample. Every third offered sample is
// queued for writing as PCM16; the phase persists across calls.
func (t *Track) Offer(x float32) {
	t.offered.Add(1)

	t.phase++
	if t.phase < DecimationFactor {
		return
	}
	t.phase = 0

	if t.closed.Load() {
		t.dropped.Add(1)
		return
	}

	select {
	case t.queue <- sample.ToPCM16(x):
	default:
		t.dropped.Add(1)
	}
}

// Stats returns a snapshot of the track counters
func (t *Track) Stats() TrackStats {
	return TrackStats{
		Path:    t.path,
		Offered: t.offered.Load(),
		Written: t.written.Load(),
		Dropped: t.dropped.Load(),
	}
}

// Err returns the first write error, if any
func (t *Track) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Finalize drains the queue, patches the WAV header and closes the file.
// Samples offered after Finalize are counted as dropped.
func (t *Track) Finalize() error {
	finalized := false
	t.closeOnce.Do(func() {
		finalized = true
		t.closed.Store(true)
		close(t.stop)
	})
	if !finalized {
		return ErrTrackClosed
	}

	<-t.done

	var errs []error
	if err := t.Err(); err != nil {
		errs = append(errs, err)
	}
	if err := t.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to finalize %s: %w", t.path, err))
	}
	if err := t.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close %s: %w", t.path, err))
	}

	slog.Debug("Recording track finalized", "path", t.path,
		"written", t.written.Load(), "dropped", t.dropped.Load())

	return errors.Join(errs...)
}

// Remove deletes the track file, finalizing it first when still open
func (t *Track) Remove() error {
	if !t.closed.Load() {
		t.Finalize()
	}
	if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", t.path, err)
	}
	return nil
}

func (t *Track) writer() {
	defer close(t.done)

	channels := t.format.NumChannels
	batch := make([]int, 0, writeBatch+channels)
	for {
		select {
		case v := <-t.queue:
			batch = append(batch, int(v))
			t.collect(&batch)
			batch = t.flush(batch, channels)
		case <-t.stop:
			// whatever is still queued belongs to the recording
			for {
				n := len(batch)
				t.collect(&batch)
				if len(batch) == n {
					break
				}
				batch = t.flush(batch, channels)
			}
			// a trailing partial frame cannot be encoded
			t.dropped.Add(uint64(len(batch)))
			return
		}
	}
}

// collect moves queued samples into batch without blocking
func (t *Track) collect(batch *[]int) {
	for len(*batch) < writeBatch {
		select {
		case v := <-t.queue:
			*batch = append(*batch, int(v))
		default:
			return
		}
	}
}

// flush encodes the whole frames of batch and returns the leftover samples
// moved to the front of it
func (t *Track) flush(batch []int, channels int) []int {
	whole := len(batch) - len(batch)%channels
	if whole == 0 {
		return batch
	}

	if t.Err() != nil {
		t.dropped.Add(uint64(whole))
	} else if err := t.encoder.Write(t.buffer(batch[:whole])); err != nil {
		t.dropped.Add(uint64(whole))
		t.fail(fmt.Errorf("failed to write %s: %w", t.path, err))
	} else {
		t.written.Add(uint64(whole))
	}

	rest := copy(batch, batch[whole:])
	return batch[:rest]
}

func (t *Track) buffer(data []int) *goaudio.IntBuffer {
	if data == nil {
		data = []int{}
	}
	return &goaudio.IntBuffer{Format: t.format, Data: data, SourceBitDepth: trackBitDepth}
}

func (t *Track) fail(err error) {
	t.mu.Lock()
	first := t.err == nil
	if first {
		t.err = err
	}
	t.mu.Unlock()

	if !first {
		return
	}
	slog.Error("Recording write failed", "path", t.path, "error", err)
	if t.onError != nil {
		t.onError(err)
	}
}

// RecordingPaths returns the original and perturbed track paths of a
// session started at ts (milliseconds since the Unix epoch)
func RecordingPaths(wavesDir string, ts int64) (ori, perturbed string) {
	base := strconv.FormatInt(ts, 10)
	return filepath.Join(wavesDir, base+"_ori.wav"), filepath.Join(wavesDir, base+"_new.wav")
}

// DualRecorder pairs the original and the perturbed track of a session
type DualRecorder struct {
	Original  *Track
	Perturbed *Track
}

// DualStats reports both tracks of a session
type DualStats struct {
	Original  TrackStats `json:"original"`
	Perturbed TrackStats `json:"perturbed"`
}

// NewDualRecorder creates both tracks of a session. Both files use the
// input channel count; each runs at its device rate divided by the
// decimation factor. On failure nothing is left on disk.
func NewDualRecorder(wavesDir string, ts int64, neg *Negotiation, queue int, onError func(error)) (*DualRecorder, error) {
	if err := os.MkdirAll(wavesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create waves directory: %w", err)
	}

	oriPath, newPath := RecordingPaths(wavesDir, ts)
	channels := neg.Input.Config.Channels

	ori, err := CreateTrack(oriPath, neg.Input.Config.SampleRate/DecimationFactor, channels, queue, onError)
	if err != nil {
		return nil, err
	}

	perturbed, err := CreateTrack(newPath, neg.Output.Config.SampleRate/DecimationFactor, channels, queue, onError)
	if err != nil {
		ori.Remove()
		return nil, err
	}

	slog.Info("Recording tracks created", "original", oriPath, "perturbed", newPath)

	return &DualRecorder{Original: ori, Perturbed: perturbed}, nil
}

// Finalize completes both tracks
func (d *DualRecorder) Finalize() error {
	return errors.Join(d.Original.Finalize(), d.Perturbed.Finalize())
}

// Remove deletes both track files
func (d *DualRecorder) Remove() error {
	return errors.Join(d.Original.Remove(), d.Perturbed.Remove())
}

// Stats returns the counters of both tracks
func (d *DualRecorder) Stats() DualStats {
	return DualStats{Original: d.Original.Stats(), Perturbed: d.Perturbed.Stats()}
}
