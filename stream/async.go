package stream

import "sync"

// asyncStream runs the calls of a blocking endpoint on their own goroutine
// and delivers completions through a dispatcher
type asyncStream struct {
	g GStream
	d Dispatcher

	mu     sync.Mutex
	busy   bool
	closed bool
}

// Async adapts a blocking endpoint to the non-blocking contract
func Async(g GStream, d Dispatcher) AStream {
	return &asyncStream{g: g, d: d}
}

// Unwrap returns the adapted blocking endpoint
func (a *asyncStream) Unwrap() GStream {
	return a.g
}

func (a *asyncStream) IsOpened() bool {
	return a.g.IsOpened()
}

func (a *asyncStream) URL() string {
	return a.g.URL()
}

func (a *asyncStream) Dispatcher() Dispatcher {
	return a.d
}

func (a *asyncStream) Size() int64 {
	return SizeOf(a.g)
}

func (a *asyncStream) OpenAsync(done func(err error)) error {
	return a.submit(func() func() {
		err := a.g.Open()
		return func() { done(err) }
	})
}

func (a *asyncStream) ReadAsync(buf []byte, done func(n int, err error)) error {
	return a.submit(func() func() {
		n, err := a.g.Read(buf)
		return func() { done(n, err) }
	})
}

func (a *asyncStream) WriteAsync(data []byte, done func(n int, err error)) error {
	return a.submit(func() func() {
		n, err := a.g.Write(data)
		return func() { done(n, err) }
	})
}

// Close closes the underlying endpoint. An operation still in flight
// completes with whatever error the endpoint returns; an open that succeeds
// after Close is undone before its completion is delivered.
func (a *asyncStream) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	return a.g.Close()
}

func (a *asyncStream) submit(op func() func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.busy {
		return ErrBusy
	}
	a.busy = true

	go func() {
		complete := op()
		a.closeLate()
		if !a.d.Post(func() {
			a.idle()
			complete()
		}) {
			// nobody left to deliver to
			a.idle()
		}
	}()
	return nil
}

// closeLate closes an endpoint that an in-flight open left behind a Close
func (a *asyncStream) closeLate() {
	a.mu.Lock()
	late := a.closed && a.g.IsOpened()
	a.mu.Unlock()
	if late {
		a.g.Close()
	}
}

func (a *asyncStream) idle() {
	a.mu.Lock()
	a.busy = false
	a.mu.Unlock()
}

// blockingStream drives a non-blocking endpoint from a blocking caller.
// It must not be used from the dispatcher goroutine of the endpoint.
type blockingStream struct {
	a AStream
}

// Blocking adapts a non-blocking endpoint to the blocking contract
func Blocking(a AStream) GStream {
	if adapted, ok := a.(*asyncStream); ok {
		return adapted.g
	}
	return &blockingStream{a: a}
}

func (b *blockingStream) Open() error {
	if b.a.IsOpened() {
		return nil
	}
	result := make(chan error, 1)
	if err := b.a.OpenAsync(func(err error) { result <- err }); err != nil {
		return err
	}
	return <-result
}

func (b *blockingStream) IsOpened() bool {
	return b.a.IsOpened()
}

type ioResult struct {
	n   int
	err error
}

func (b *blockingStream) Read(p []byte) (int, error) {
	result := make(chan ioResult, 1)
	if err := b.a.ReadAsync(p, func(n int, err error) { result <- ioResult{n, err} }); err != nil {
		return 0, err
	}
	r := <-result
	return r.n, r.err
}

func (b *blockingStream) Write(p []byte) (int, error) {
	result := make(chan ioResult, 1)
	if err := b.a.WriteAsync(p, func(n int, err error) { result <- ioResult{n, err} }); err != nil {
		return 0, err
	}
	r := <-result
	return r.n, r.err
}

func (b *blockingStream) Close() error {
	return b.a.Close()
}

func (b *blockingStream) URL() string {
	return b.a.URL()
}
