package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_FIFOOrder(t *testing.T) {
	r := NewRing(8)
	r.Push([]float32{1, 2, 3})
	r.Push([]float32{4})

	dst := make([]float32, 4)
	require.Equal(t, 4, r.Pop(dst))
	assert.Equal(t, []float32{1, 2, 3, 4}, dst)
	assert.Equal(t, 0, r.Len())
}

func TestRing_OverflowDropsOldest(t *testing.T) {
	r := NewRing(3)
	r.Push([]float32{1, 2, 3, 4, 5})

	dst := make([]float32, 3)
	require.Equal(t, 3, r.Pop(dst))
	assert.Equal(t, []float32{3, 4, 5}, dst)

	st := r.Stats()
	assert.Equal(t, uint64(2), st.Overflows)
	assert.Equal(t, uint64(5), st.Pushed)
	assert.Equal(t, 3, st.Capacity)
}

func TestRing_UnderrunLeavesSlotsUntouched(t *testing.T) {
	r := NewRing(4)
	r.Push([]float32{0.5})

	dst := []float32{9, 9, 9}
	n := r.Pop(dst)
	assert.Equal(t, 1, n)
	assert.Equal(t, []float32{0.5, 9, 9}, dst)
	assert.Equal(t, uint64(2), r.Stats().Underruns)
}

func TestRing_WrapsAround(t *testing.T) {
	r := NewRing(4)
	dst := make([]float32, 3)
	for round := 0; round < 5; round++ {
		base := float32(round * 3)
		r.Push([]float32{base, base + 1, base + 2})
		require.Equal(t, 3, r.Pop(dst))
		assert.Equal(t, []float32{base, base + 1, base + 2}, dst)
	}
}

func TestStack_LIFOOrder(t *testing.T) {
	s := NewStack(0)
	s.Push([]float32{1, 2, 3})

	dst := make([]float32, 2)
	require.Equal(t, 2, s.Pop(dst))
	assert.Equal(t, []float32{3, 2}, dst)
	assert.Equal(t, 1, s.Len())
}

func TestStack_LimitDropsOldest(t *testing.T) {
	s := NewStack(2)
	s.Push([]float32{1, 2, 3})

	dst := make([]float32, 3)
	assert.Equal(t, 2, s.Pop(dst))
	assert.Equal(t, []float32{3, 2}, dst[:2])
	assert.Equal(t, uint64(1), s.Stats().Overflows)
	assert.Equal(t, uint64(1), s.Stats().Underruns)
}

func TestNew(t *testing.T) {
	r, err := New(ModeFIFO, 16)
	require.NoError(t, err)
	assert.IsType(t, &Ring{}, r)

	r, err = New(ModeLIFO, 0)
	require.NoError(t, err)
	assert.IsType(t, &Stack{}, r)

	_, err = New(ModeFIFO, 0)
	assert.Error(t, err)

	_, err = New("queue", 16)
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("LIFO")
	require.NoError(t, err)
	assert.Equal(t, ModeLIFO, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFIFO, m)

	_, err = ParseMode("random")
	assert.Error(t, err)
}

func TestCapacity(t *testing.T) {
	assert.Equal(t, 48000, Capacity(48000, 2, 500))
	assert.Equal(t, 2, Capacity(48000, 2, 0))
}

func TestRelay_ConcurrentPushPop(t *testing.T) {
	for _, r := range []Relay{NewRing(1024), NewStack(1024)} {
		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			batch := make([]float32, 64)
			for i := 0; i < 200; i++ {
				r.Push(batch)
			}
		}()

		go func() {
			defer wg.Done()
			dst := make([]float32, 64)
			for i := 0; i < 200; i++ {
				r.Pop(dst)
			}
		}()

		wg.Wait()

		st := r.Stats()
		assert.Equal(t, uint64(200*64), st.Pushed)
		assert.Equal(t, st.Pushed, st.Popped+st.Overflows+uint64(st.Buffered))
	}
}
