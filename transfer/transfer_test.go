package transfer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tstream/internal"
	"tstream/stream"
)

func waitFinal(t *testing.T, rec *recorder) int64 {
	t.Helper()
	select {
	case rate := <-rec.final:
		return rate
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never finished")
	}
	return 0
}

func memoryPair(loop *stream.Loop, data []byte) (stream.AStream, stream.AStream, *stream.MemoryStream) {
	out := stream.NewMemoryStream("out")
	return stream.Async(stream.NewMemoryReader(data), loop), stream.Async(out, loop), out
}

func assertInvalidState(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, internal.IsType(err, internal.ErrInvalidState), "got %v", err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "exited", StateExited.String())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestTransfer_Completes(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	data := payload(10000)
	in, aout, out := memoryPair(loop, data)
	rec := newRecorder()

	tr, err := InitAA(in, aout, internal.TransferConfig{ChunkSize: 1024, Func: rec.fn})
	require.NoError(t, err)
	assert.NotEmpty(t, tr.ID())
	assert.Equal(t, StateCreated, tr.State())

	require.NoError(t, tr.Start())
	waitFinal(t, rec)

	assert.Equal(t, int64(10000), tr.Saved())
	assert.Equal(t, StateStopped, tr.State())
	assert.True(t, tr.Finished())
	assert.NoError(t, tr.Err())
	assert.Equal(t, data, out.Bytes())

	progress := rec.progress()
	require.NotEmpty(t, progress)
	assert.Equal(t, int64(10000), progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}

	assertInvalidState(t, tr.Start())

	require.NoError(t, tr.Exit())
	assert.Equal(t, StateExited, tr.State())
	assert.False(t, in.IsOpened(), "endpoints opened by the transfer are closed")
	assert.False(t, aout.IsOpened())
	assert.Equal(t, 1, rec.finals())
}

func TestTransfer_ReadyWhenOpened(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	src := stream.NewMemoryReader([]byte("abc"))
	dst := stream.NewMemoryStream("out")
	require.NoError(t, src.Open())
	require.NoError(t, dst.Open())

	rec := newRecorder()
	tr, err := InitAA(stream.Async(src, loop), stream.Async(dst, loop), internal.TransferConfig{Func: rec.fn})
	require.NoError(t, err)
	assert.Equal(t, StateReady, tr.State())

	require.NoError(t, tr.Start())
	waitFinal(t, rec)
	require.NoError(t, tr.Exit())
	assert.True(t, src.IsOpened(), "caller opened endpoints stay open")
	assert.Equal(t, "abc", string(dst.Bytes()))
}

func TestTransfer_RequiresCallback(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	in, out, _ := memoryPair(loop, nil)
	_, err := InitAA(in, out, internal.TransferConfig{})
	var validationErr *internal.ValidationError
	assert.True(t, errors.As(err, &validationErr))

	_, err = InitUU(stream.NewResolver(nil), loop, "mem://a", "mem://b", internal.TransferConfig{})
	assert.True(t, errors.As(err, &validationErr))
}

func TestTransfer_CallbackStopsThenResumes(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	data := payload(10000)
	in, aout, out := memoryPair(loop, data)
	rec := newRecorder()
	rec.stop = 3

	tr, err := InitAA(in, aout, internal.TransferConfig{ChunkSize: 1000, Func: rec.fn})
	require.NoError(t, err)
	require.NoError(t, tr.Start())
	waitFinal(t, rec)

	assert.Equal(t, StateStopped, tr.State())
	assert.False(t, tr.Finished())
	assert.Equal(t, int64(3000), tr.Saved())
	assert.Equal(t, []int64{1000, 2000, 3000}, rec.progress())

	require.NoError(t, tr.Start(), "a stopped transfer resumes")
	waitFinal(t, rec)
	assert.True(t, tr.Finished())
	assert.Equal(t, int64(10000), tr.Saved())
	assert.Equal(t, data, out.Bytes())
	require.NoError(t, tr.Exit())
}

func TestTransfer_PauseResume(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	data := payload(8000)
	in, aout, out := memoryPair(loop, data)
	rec := newRecorder()
	paused := make(chan struct{})

	var tr *Transfer
	callback := func(size, rate int64, priv interface{}) bool {
		if size == 2000 {
			assert.NoError(t, tr.Pause())
			close(paused)
		}
		return rec.fn(size, rate, priv)
	}

	tr, err := InitAA(in, aout, internal.TransferConfig{ChunkSize: 1000, Func: callback})
	require.NoError(t, err)
	require.NoError(t, tr.Start())

	select {
	case <-paused:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never paused")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatePaused, tr.State())
	assert.Equal(t, int64(2000), tr.Saved(), "nothing is written while paused")
	assertInvalidState(t, tr.Pause())

	require.NoError(t, tr.Start())
	waitFinal(t, rec)

	assert.Equal(t, data, out.Bytes())
	progress := rec.progress()
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}
	assert.Equal(t, int64(8000), progress[len(progress)-1])
	require.NoError(t, tr.Exit())
}

func TestTransfer_StopThenExit(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	in, aout, out := memoryPair(loop, payload(10000))
	rec := newRecorder()

	var tr *Transfer
	callback := func(size, rate int64, priv interface{}) bool {
		if size == 2000 {
			assert.NoError(t, tr.Stop())
		}
		return rec.fn(size, rate, priv)
	}

	tr, err := InitAA(in, aout, internal.TransferConfig{ChunkSize: 1000, Func: callback})
	require.NoError(t, err)
	require.NoError(t, tr.Start())
	waitFinal(t, rec)

	assert.Equal(t, StateStopped, tr.State())
	assert.Equal(t, int64(2000), tr.Saved())
	assert.Equal(t, 2000, out.Len())
	require.NoError(t, tr.Stop(), "stop is idempotent")

	require.NoError(t, tr.Exit())
	assert.Equal(t, 1, rec.finals(), "exit after stop adds no callback")

	assertInvalidState(t, tr.Start())
	assertInvalidState(t, tr.Pause())
	assertInvalidState(t, tr.Stop())
	assertInvalidState(t, tr.Limit(100))
	assertInvalidState(t, tr.Exit())
}

func TestTransfer_StopWhileRateLimited(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	in, aout, _ := memoryPair(loop, payload(5000))
	rec := newRecorder()
	first := make(chan struct{}, 1)
	callback := func(size, rate int64, priv interface{}) bool {
		if size > 0 {
			select {
			case first <- struct{}{}:
			default:
			}
		}
		return rec.fn(size, rate, priv)
	}

	tr, err := InitAA(in, aout, internal.TransferConfig{ChunkSize: 1000, RateLimit: 1000, Func: callback})
	require.NoError(t, err)
	require.NoError(t, tr.Start())

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("no progress")
	}
	assertInvalidState(t, tr.Exit())

	require.NoError(t, tr.Stop())
	waitFinal(t, rec)

	saved := tr.Saved()
	assert.GreaterOrEqual(t, saved, int64(1000))
	assert.Less(t, saved, int64(5000))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, saved, tr.Saved(), "nothing is submitted after stop")
	require.NoError(t, tr.Exit())
	assert.Equal(t, 1, rec.finals())
}

func TestTransfer_RemoveLimit(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	data := payload(5000)
	in, aout, out := memoryPair(loop, data)
	rec := newRecorder()
	first := make(chan struct{}, 1)
	callback := func(size, rate int64, priv interface{}) bool {
		if size > 0 {
			select {
			case first <- struct{}{}:
			default:
			}
		}
		return rec.fn(size, rate, priv)
	}

	// at 500 B/s this would take ten seconds
	tr, err := InitAA(in, aout, internal.TransferConfig{ChunkSize: 1000, RateLimit: 500, Func: callback})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, tr.Start())
	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("no progress")
	}
	require.NoError(t, tr.Limit(0))
	waitFinal(t, rec)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, data, out.Bytes())
	assert.Error(t, tr.Limit(-1))
	require.NoError(t, tr.Exit())
}

func TestTransfer_RateLimited(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	in, aout, _ := memoryPair(loop, payload(3000))
	rec := newRecorder()
	tr, err := InitAA(in, aout, internal.TransferConfig{ChunkSize: 1000, RateLimit: 1000, Func: rec.fn})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, tr.Start())
	waitFinal(t, rec)

	assert.GreaterOrEqual(t, time.Since(start), 1900*time.Millisecond)
	assert.Equal(t, int64(3000), tr.Saved())
	assertRatesWithin(t, rec, 1000, 1000)
	require.NoError(t, tr.Exit())
}

func TestTransfer_OpenFailure(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	boom := errors.New("no input")
	dst := stream.NewMemoryStream("out")
	in := stream.Async(stream.NewMemoryStream("in").WithOpenError(boom), loop)
	rec := newRecorder()

	tr, err := InitAA(in, stream.Async(dst, loop), internal.TransferConfig{Func: rec.fn})
	require.NoError(t, err)
	require.NoError(t, tr.Start())
	waitFinal(t, rec)

	assert.Equal(t, internal.SaveFailed, tr.Saved())
	assert.True(t, internal.IsType(tr.Err(), internal.ErrOpenFailed))
	assert.ErrorIs(t, tr.Err(), boom)
	assert.False(t, dst.IsOpened(), "output is never opened")
	assert.Empty(t, rec.progress())

	assertInvalidState(t, tr.Start())
	require.NoError(t, tr.Exit())
}

func TestTransfer_EndpointFailures(t *testing.T) {
	tests := []struct {
		name    string
		in      *stream.MemoryStream
		out     *stream.MemoryStream
		errType internal.ErrorType
	}{
		{
			name:    "read",
			in:      stream.NewMemoryReader(payload(5000)).WithReadError(errors.New("bad sector"), 2000),
			out:     stream.NewMemoryStream("out"),
			errType: internal.ErrReadFailed,
		},
		{
			name:    "write",
			in:      stream.NewMemoryReader(payload(5000)),
			out:     stream.NewMemoryStream("out").WithWriteError(errors.New("disk full")),
			errType: internal.ErrWriteFailed,
		},
		{
			name:    "short_write",
			in:      stream.NewMemoryReader(payload(5000)),
			out:     stream.NewMemoryStream("out").WithWriteCap(1500),
			errType: internal.ErrShortWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := stream.NewLoop()
			defer loop.Close()

			rec := newRecorder()
			tr, err := InitAA(stream.Async(tt.in, loop), stream.Async(tt.out, loop),
				internal.TransferConfig{ChunkSize: 1000, Func: rec.fn})
			require.NoError(t, err)
			require.NoError(t, tr.Start())
			waitFinal(t, rec)

			assert.Equal(t, StateStopped, tr.State())
			assert.Equal(t, internal.SaveFailed, tr.Saved())
			assert.True(t, internal.IsType(tr.Err(), tt.errType), "got %v", tr.Err())
			assert.Equal(t, 1, rec.finals())
			require.NoError(t, tr.Exit())
		})
	}
}

func TestTransfer_ControlMisuse(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	in, aout, _ := memoryPair(loop, payload(3000))
	rec := newRecorder()
	tr, err := InitAA(in, aout, internal.TransferConfig{ChunkSize: 1000, RateLimit: 1000, Func: rec.fn})
	require.NoError(t, err)

	assertInvalidState(t, tr.Pause())
	require.NoError(t, tr.Limit(2000))

	require.NoError(t, tr.Start())
	assertInvalidState(t, tr.Start())
	assertInvalidState(t, tr.Exit())

	require.NoError(t, tr.Stop())
	require.NoError(t, tr.Exit())
}

func TestTransfer_ExitBeforeStart(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	in, aout, _ := memoryPair(loop, payload(100))
	rec := newRecorder()
	tr, err := InitAA(in, aout, internal.TransferConfig{Func: rec.fn})
	require.NoError(t, err)

	require.NoError(t, tr.Exit())
	assert.Empty(t, rec.sizes, "a transfer never started reports nothing")
}

func TestTransfer_StartWithClosedDispatcher(t *testing.T) {
	loop := stream.NewLoop()
	in, aout, _ := memoryPair(loop, payload(100))
	rec := newRecorder()
	tr, err := InitAA(in, aout, internal.TransferConfig{Func: rec.fn})
	require.NoError(t, err)

	loop.Close()
	<-loop.Done()

	err = tr.Start()
	assert.True(t, internal.IsType(err, internal.ErrAborted))
	assert.ErrorIs(t, err, stream.ErrDispatcherClosed)
	assert.Equal(t, StateCreated, tr.State())
}

func TestInitAG(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	data := payload(4000)
	out := stream.NewMemoryStream("out")
	rec := newRecorder()

	tr, err := InitAG(stream.Async(stream.NewMemoryReader(data), loop), out,
		internal.TransferConfig{ChunkSize: 700, Func: rec.fn})
	require.NoError(t, err)
	require.NoError(t, tr.Start())
	waitFinal(t, rec)

	assert.Equal(t, data, out.Bytes())
	require.NoError(t, tr.Exit())
}

func TestInitUU(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	resolver := stream.NewResolver(nil)
	data := payload(2500)
	source := stream.NewMemoryReader(data)
	sink := stream.NewMemoryStream("dst")
	resolver.RegisterMemory("src", source)
	resolver.RegisterMemory("dst", sink)

	rec := newRecorder()
	tr, err := InitUU(resolver, loop, "mem://src", "mem://dst", internal.TransferConfig{Func: rec.fn})
	require.NoError(t, err)
	require.NoError(t, tr.Start())
	waitFinal(t, rec)

	assert.Equal(t, int64(2500), tr.Saved())
	assert.Equal(t, data, sink.Bytes())
	require.NoError(t, tr.Exit())
	assert.False(t, source.IsOpened())
	assert.False(t, sink.IsOpened())

	_, err = InitUU(resolver, loop, "gopher://x", "mem://dst", internal.TransferConfig{Func: rec.fn})
	assert.True(t, internal.IsType(err, internal.ErrUnsupportedScheme))
}

func TestTransfer_ExitWhilePaused(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	in, aout, _ := memoryPair(loop, payload(5000))
	rec := newRecorder()
	paused := make(chan struct{})

	var tr *Transfer
	callback := func(size, rate int64, priv interface{}) bool {
		if size == 1000 {
			assert.NoError(t, tr.Pause())
			close(paused)
		}
		return rec.fn(size, rate, priv)
	}

	tr, err := InitAA(in, aout, internal.TransferConfig{ChunkSize: 1000, Func: callback})
	require.NoError(t, err)
	require.NoError(t, tr.Start())
	<-paused
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, tr.Exit())
	assert.Equal(t, StateExited, tr.State())
	assert.Equal(t, 1, rec.finals(), "exiting a paused transfer stops it first")
}
