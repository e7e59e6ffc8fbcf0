package audio

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrack_WriteFailureReportsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.wav")
	failures := make(chan error, 4)
	track, err := CreateTrack(path, 16000, 1, 8, func(err error) { failures <- err })
	require.NoError(t, err)

	require.NoError(t, track.file.Close())
	for i := 0; i < 3; i++ {
		track.Offer(0.5)
	}

	select {
	case err := <-failures:
		assert.Contains(t, err.Error(), "failed to write")
	case <-time.After(time.Second):
		t.Fatal("write failure was not reported")
	}

	// later frames are dropped without another report
	for i := 0; i < 3; i++ {
		track.Offer(0.5)
	}

	finalErr := track.Finalize()
	require.Error(t, finalErr)
	assert.Contains(t, finalErr.Error(), "failed to write")

	stats := track.Stats()
	assert.EqualValues(t, 0, stats.Written)
	assert.EqualValues(t, 2, stats.Dropped)
	assert.Len(t, failures, 0)
}
