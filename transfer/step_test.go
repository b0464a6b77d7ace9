package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tstream/internal"
)

func TestStep_ChunkBounds(t *testing.T) {
	assert.Equal(t, internal.DefaultChunkSize, newStep(internal.TransferConfig{}).chunk)
	assert.Equal(t, internal.MaxChunkSize, newStep(internal.TransferConfig{ChunkSize: internal.MaxChunkSize + 1}).chunk)
	assert.Equal(t, 100, newStep(internal.TransferConfig{ChunkSize: 100}).chunk)
}

func TestStep_Size(t *testing.T) {
	s := newStep(internal.TransferConfig{ChunkSize: 4096})
	assert.Equal(t, 4096, s.size())

	s.limiter.SetRate(1000)
	assert.Equal(t, 1000, s.size(), "a limit below the chunk caps the read")

	s.limiter.SetRate(100000)
	assert.Equal(t, 4096, s.size())
}

func TestStep_Account(t *testing.T) {
	s := newStep(internal.TransferConfig{})
	assert.Equal(t, time.Duration(0), s.account(500))
	assert.Equal(t, time.Duration(0), s.account(700))

	saved, rate := s.progress()
	assert.Equal(t, int64(1200), saved)
	assert.Greater(t, rate, int64(0))
}

func TestStep_Average(t *testing.T) {
	s := newStep(internal.TransferConfig{})
	assert.Equal(t, int64(0), s.average(), "not begun")

	s.begun()
	first := s.begin
	s.begun()
	assert.Equal(t, first, s.begin, "begin is set once")

	s.begin = time.Now().Add(-2 * time.Second)
	s.saved = 4000
	assert.InDelta(t, 2000, s.average(), 50)
}

func TestReportAndFinish(t *testing.T) {
	assert.True(t, report(nil, 1, 1, nil))
	finish(nil, 0, nil)

	var got []int64
	fn := func(size, rate int64, priv interface{}) bool {
		got = append(got, size, rate)
		return priv.(bool)
	}
	assert.False(t, report(fn, 10, 5, false))
	finish(fn, 7, true)
	assert.Equal(t, []int64{10, 5, internal.SizeFinished, 7}, got)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, sleep(context.Background(), 0))
	assert.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleep(ctx, 0), context.Canceled)
}
