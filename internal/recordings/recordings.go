// Package recordings lists and reads back the WAV pairs written by sessions.
package recordings

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrNotFound is returned for unknown recordings or files
	ErrNotFound = errors.New("recording not found")
	// ErrInvalidName is returned for names that are not recording files
	ErrInvalidName = errors.New("invalid recording file name")
)

// DefaultBuckets is the waveform resolution used when none is requested
const DefaultBuckets = 800

// Track identifies one file of a recording pair
type Track string

const (
	TrackOriginal  Track = "ori"
	TrackPerturbed Track = "new"
)

// ParseTrack validates a track name
func ParseTrack(name string) (Track, error) {
	switch Track(strings.ToLower(name)) {
	case TrackOriginal, "original":
		return TrackOriginal, nil
	case TrackPerturbed, "perturbed":
		return TrackPerturbed, nil
	}
	return "", fmt.Errorf("unknown track %q (valid: ori, new)", name)
}

// FileName returns the file name of a track of the session started at ts
func FileName(ts int64, track Track) string {
	return strconv.FormatInt(ts, 10) + "_" + string(track) + ".wav"
}

// ParseName splits a recording file name into its timestamp and track
func ParseName(name string) (int64, Track, bool) {
	base, ok := strings.CutSuffix(name, ".wav")
	if !ok {
		return 0, "", false
	}
	stamp, suffix, ok := strings.Cut(base, "_")
	if !ok {
		return 0, "", false
	}
	track := Track(suffix)
	if track != TrackOriginal && track != TrackPerturbed {
		return 0, "", false
	}
	ts, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || ts < 0 {
		return 0, "", false
	}
	return ts, track, true
}

// FileInfo describes one WAV file of a recording
type FileInfo struct {
	Name         string        `json:"name"`
	Path         string        `json:"path"`
	Size         int64         `json:"size"`
	SizeHuman    string        `json:"size_human"`
	ModTime      time.Time     `json:"mod_time"`
	SampleRate   int           `json:"sample_rate"`
	Channels     int           `json:"channels"`
	BitDepth     int           `json:"bit_depth"`
	Frames       int           `json:"frames"`
	Duration     time.Duration `json:"-"`
	DurationSecs float64       `json:"duration_seconds"`
	StreamURL    string        `json:"stream_url"`
	WaveformURL  string        `json:"waveform_url"`
	Error        string        `json:"error,omitempty"`
}

// Recording is the pair of tracks written by one session
type Recording struct {
	Timestamp     int64     `json:"timestamp"`
	StartTime     time.Time `json:"start_time"`
	StartTimeText string    `json:"start_time_human"`
	Original      *FileInfo `json:"original,omitempty"`
	Perturbed     *FileInfo `json:"perturbed,omitempty"`
	Complete      bool      `json:"complete"`
}

// Track returns the file of the given track, or nil
func (r *Recording) Track(t Track) *FileInfo {
	if t == TrackOriginal {
		return r.Original
	}
	return r.Perturbed
}

// Catalogue reads the recordings of one waves directory
type Catalogue struct {
	dir string
}

// New returns a catalogue over dir
func New(dir string) *Catalogue {
	return &Catalogue{dir: dir}
}

// Directory returns the waves directory
func (c *Catalogue) Directory() string {
	return c.dir
}

// List returns every recording, newest first. A missing directory holds no
// recordings.
func (c *Catalogue) List() ([]Recording, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Recording{}, nil
		}
		return nil, fmt.Errorf("failed to read waves directory: %w", err)
	}

	byTS := make(map[int64]*Recording)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, track, ok := ParseName(entry.Name())
		if !ok {
			continue
		}

		info, err := Inspect(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			slog.Warn("Failed to inspect recording", "file", entry.Name(), "error", err)
			continue
		}

		rec := byTS[ts]
		if rec == nil {
			rec = newRecording(ts)
			byTS[ts] = rec
		}
		if track == TrackOriginal {
			rec.Original = info
		} else {
			rec.Perturbed = info
		}
	}

	list := make([]Recording, 0, len(byTS))
	for _, rec := range byTS {
		rec.Complete = rec.Original != nil && rec.Perturbed != nil
		list = append(list, *rec)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Timestamp > list[j].Timestamp
	})

	return list, nil
}

// Get returns the recording started at ts
func (c *Catalogue) Get(ts int64) (*Recording, error) {
	rec := newRecording(ts)
	for _, track := range []Track{TrackOriginal, TrackPerturbed} {
		path := filepath.Join(c.dir, FileName(ts, track))
		info, err := Inspect(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		if track == TrackOriginal {
			rec.Original = info
		} else {
			rec.Perturbed = info
		}
	}

	if rec.Original == nil && rec.Perturbed == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, ts)
	}
	rec.Complete = rec.Original != nil && rec.Perturbed != nil
	return rec, nil
}

// Latest returns the newest recording
func (c *Catalogue) Latest() (*Recording, error) {
	list, err := c.List()
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no recordings in %s", ErrNotFound, c.dir)
	}
	return &list[0], nil
}

// Path resolves a recording file name inside the waves directory. Names
// that are not recording files are rejected.
func (c *Catalogue) Path(name string) (string, error) {
	if name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, _, ok := ParseName(name); !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	path := filepath.Join(c.dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", err
	}
	return path, nil
}

// Delete removes both files of the recording started at ts
func (c *Catalogue) Delete(ts int64) error {
	removed := 0
	for _, track := range []Track{TrackOriginal, TrackPerturbed} {
		err := os.Remove(filepath.Join(c.dir, FileName(ts, track)))
		if err == nil {
			removed++
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete recording %d: %w", ts, err)
		}
	}
	if removed == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, ts)
	}

	slog.Info("Recording deleted", "timestamp", ts)
	return nil
}

func newRecording(ts int64) *Recording {
	start := time.UnixMilli(ts)
	return &Recording{
		Timestamp:     ts,
		StartTime:     start,
		StartTimeText: start.Format("2006-01-02 15:04:05"),
	}
}

// Inspect reads the header of a WAV file. A file whose header cannot be
// parsed is still reported, with Error set.
func Inspect(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	info := &FileInfo{
		Name:        name,
		Path:        path,
		Size:        stat.Size(),
		SizeHuman:   formatBytes(stat.Size()),
		ModTime:     stat.ModTime(),
		StreamURL:   "/api/recordings/stream/" + name,
		WaveformURL: "/api/recordings/waveform/" + name,
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil || dec.Err() != nil {
		if err == nil {
			err = dec.Err()
		}
		info.Error = fmt.Sprintf("unreadable WAV: %v", err)
		return info, nil
	}

	info.SampleRate = int(dec.SampleRate)
	info.Channels = int(dec.NumChans)
	info.BitDepth = int(dec.BitDepth)

	frameSize := info.Channels * info.BitDepth / 8
	if frameSize > 0 && info.SampleRate > 0 {
		info.Frames = dec.PCMSize / frameSize
		info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(info.SampleRate)
		info.DurationSecs = info.Duration.Seconds()
	}

	return info, nil
}

// Waveform is a downsampled peak envelope of one WAV file
type Waveform struct {
	Name       string    `json:"name"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	Frames     int       `json:"frames"`
	Peaks      []float32 `json:"peaks"`
}

// Peaks reduces the file at path to at most buckets absolute peak values in
// [0, 1], all channels folded together
func Peaks(path string, buckets int) (*Waveform, error) {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if dec.Err() != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), dec.Err())
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if channels <= 0 || bitDepth <= 0 {
		return nil, fmt.Errorf("invalid WAV layout in %s", filepath.Base(path))
	}

	frames := dec.PCMSize / (channels * bitDepth / 8)
	wf := &Waveform{
		Name:       filepath.Base(path),
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		Frames:     frames,
		Peaks:      []float32{},
	}
	if frames == 0 {
		return wf, nil
	}

	buckets = min(buckets, frames)
	framesPerBucket := int(math.Ceil(float64(frames) / float64(buckets)))
	fullScale := float32(int(1) << (bitDepth - 1))
	wf.Peaks = make([]float32, (frames+framesPerBucket-1)/framesPerBucket)

	buf := &goaudio.IntBuffer{Data: make([]int, 4096*channels)}
	sampleIndex := 0
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", wf.Name, err)
		}
		if n == 0 {
			break
		}
		for _, v := range buf.Data[:n] {
			bucket := (sampleIndex / channels) / framesPerBucket
			sampleIndex++
			if bucket >= len(wf.Peaks) {
				break
			}
			a := float32(v) / fullScale
			if a < 0 {
				a = -a
			}
			if a > 1 {
				a = 1
			}
			if a > wf.Peaks[bucket] {
				wf.Peaks[bucket] = a
			}
		}
	}

	return wf, nil
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
