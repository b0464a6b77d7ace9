package transfer

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tstream/internal"
	"tstream/stream"
)

// State is the lifecycle state of an async transfer
type State int

const (
	// StateCreated means endpoints may still need opening
	StateCreated State = iota
	// StateReady means both endpoints are open and nothing is in flight
	StateReady
	// StateRunning means the read/write cycle is being driven by completions
	StateRunning
	// StatePaused means no new operation is submitted until Start
	StatePaused
	// StateStopped means the transfer ended: finished, failed, aborted or stopped
	StateStopped
	// StateExited means resources were released; every call fails
	StateExited
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transfer is the handle of an async transfer.
//
// Completions of both endpoints and the rate timer run on the input's
// dispatcher. Control calls may come from any goroutine. The progress
// callback runs on the dispatcher; the final callback triggered by Stop
// or Exit runs on the caller's goroutine. The two never overlap.
type Transfer struct {
	id         string
	in         stream.AStream
	out        stream.AStream
	dispatcher stream.Dispatcher
	log        *logrus.Entry

	mu    sync.Mutex
	state State
	step  *step
	buf   []byte
	held  int  // bytes read into buf, not yet written
	eof   bool // input exhausted

	// pending is set while an endpoint operation, the rate timer,
	// a queued resume or a progress report is outstanding
	pending   bool
	reporting bool
	reportDue bool
	notBefore time.Time
	timer     *time.Timer
	timerSeq  uint64

	started  bool
	notified bool
	done     bool
	err      error

	ownIn, ownOut       bool
	openedIn, openedOut bool
}

func newTransfer(in, out stream.AStream, config internal.TransferConfig, ownIn, ownOut bool) (*Transfer, error) {
	if config.Func == nil {
		return nil, internal.NewValidationError("func", "an async transfer needs a progress callback").
			WithSuggestion("Pass a SaveFunc in TransferConfig.Func")
	}
	if in == nil || out == nil {
		return nil, internal.NewValidationError("endpoint", "input and output are required")
	}

	s := newStep(config)
	t := &Transfer{
		id:         uuid.NewString(),
		in:         in,
		out:        out,
		dispatcher: in.Dispatcher(),
		step:       s,
		buf:        make([]byte, s.chunk),
		ownIn:      ownIn,
		ownOut:     ownOut,
	}
	t.log = internal.GetLogger().WithFields(logrus.Fields{
		"transfer": t.id,
		"input":    in.URL(),
		"output":   out.URL(),
	})

	if in.IsOpened() && out.IsOpened() {
		t.state = StateReady
	}
	t.log.Debugf("created in state %s", t.state)
	return t, nil
}

// ID returns the unique identifier of the transfer
func (t *Transfer) ID() string {
	return t.id
}

// State returns the current lifecycle state
func (t *Transfer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Saved returns the bytes written so far, or internal.SaveFailed after a failure
func (t *Transfer) Saved() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return internal.SaveFailed
	}
	return t.step.saved
}

// Err returns the cause of a failed transfer
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Finished reports whether the whole input was written
func (t *Transfer) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Start opens the endpoints if needed and starts or resumes the transfer.
//
// A stopped transfer resumes where it stopped, with any chunk already read
// written first. Once the transfer finished or failed, Start fails.
// Open failures are reported through the callback.
func (t *Transfer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateRunning, StateExited:
		return internal.NewInvalidStateError("start", t.state)
	case StateStopped:
		if t.done || t.err != nil {
			return internal.NewInvalidStateError("start", t.state).WithContext("finished", true)
		}
	}

	previous := t.state
	t.state = StateRunning
	t.notified = false
	t.step.begun()

	if t.pending {
		// the operation still in flight continues the cycle
		t.started = true
		t.log.Debugf("resumed from %s", previous)
		return nil
	}

	t.pending = true
	if !t.dispatcher.Post(t.resume) {
		t.pending = false
		t.state = previous
		return internal.WrapTransferError(internal.ErrAborted, "start", stream.ErrDispatcherClosed)
	}
	t.started = true
	t.log.Debugf("started from %s", previous)
	return nil
}

// Pause stops submitting operations once the one in flight completes
func (t *Transfer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning {
		return internal.NewInvalidStateError("pause", t.state)
	}
	t.state = StatePaused
	t.log.Debug("paused")
	return nil
}

// Limit changes the rate limit in bytes per second, 0 removes it.
// A read held back by the previous limit is released when the limit is removed.
func (t *Transfer) Limit(bytesPerSecond int64) error {
	if bytesPerSecond < 0 {
		return internal.NewValidationErrorWithValue("rate", "rate cannot be negative", bytesPerSecond)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateExited {
		return internal.NewInvalidStateError("limit", t.state)
	}

	t.step.limiter.SetRate(bytesPerSecond)
	t.log.Debugf("rate limit set to %d B/s", bytesPerSecond)

	if bytesPerSecond == 0 {
		t.notBefore = time.Time{}
		if t.timer != nil && t.timer.Stop() {
			seq := t.timerSeq
			if !t.dispatcher.Post(func() { t.onTimer(seq) }) {
				t.timer = nil
				t.pending = false
			}
		}
	}
	return nil
}

// Stop ends the transfer. Operations already submitted complete but nothing
// new is submitted. The callback receives the finished sentinel once.
func (t *Transfer) Stop() error {
	t.mu.Lock()

	switch t.state {
	case StateExited:
		t.mu.Unlock()
		return internal.NewInvalidStateError("stop", t.state)
	case StateStopped:
		t.mu.Unlock()
		return nil
	}

	t.state = StateStopped
	t.cancelTimer()
	t.log.Debugf("stopped after %d bytes", t.step.saved)
	t.notifyAndUnlock()
	return nil
}

// Exit releases the transfer and closes the endpoints it opened or created.
// It fails while running. A paused or idle transfer is stopped first.
// Completions still in flight are dropped; an endpoint whose open completes
// after Exit is closed.
func (t *Transfer) Exit() error {
	t.mu.Lock()

	switch t.state {
	case StateRunning, StateExited:
		err := internal.NewInvalidStateError("exit", t.state)
		t.mu.Unlock()
		return err
	}

	t.state = StateStopped
	t.cancelTimer()
	terminal := t.takeTerminal()

	t.state = StateExited
	t.buf = nil
	var closers []stream.AStream
	if t.ownIn || t.openedIn {
		closers = append(closers, t.in)
	}
	if t.ownOut || t.openedOut {
		closers = append(closers, t.out)
	}
	t.mu.Unlock()

	if terminal != nil {
		terminal()
	}

	var errs []error
	for _, s := range closers {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.URL(), err))
		}
	}
	t.log.Debug("exited")
	return errors.Join(errs...)
}

// resume runs on the dispatcher after Start
func (t *Transfer) resume() {
	t.mu.Lock()
	t.pending = false
	t.pump()
}

// pump advances the cycle as far as it can without waiting.
// Called with t.mu held; returns with it released.
func (t *Transfer) pump() {
	for {
		if t.state != StateRunning || t.pending {
			t.mu.Unlock()
			return
		}

		if t.reportDue {
			if wait := time.Until(t.notBefore); wait > 0 {
				t.arm(wait)
				t.mu.Unlock()
				return
			}

			t.reportDue = false
			saved, rate := t.step.progress()
			t.pending = true
			t.reporting = true
			t.mu.Unlock()

			ok := report(t.step.fn, saved, rate, t.step.priv)

			t.mu.Lock()
			t.pending = false
			t.reporting = false
			if !ok && (t.state == StateRunning || t.state == StatePaused) {
				t.log.Debugf("stopped by callback after %d bytes", saved)
				t.state = StateStopped
			}
			if t.state == StateStopped {
				t.notifyAndUnlock()
				return
			}
			continue
		}

		if t.eof && t.held == 0 {
			t.done = true
			t.state = StateStopped
			t.log.Debugf("finished, saved %d bytes", t.step.saved)
			t.notifyAndUnlock()
			return
		}

		if err := t.submit(); err != nil {
			t.fail(err)
			t.notifyAndUnlock()
			return
		}
	}
}

// submit issues the next endpoint operation. Called with t.mu held.
func (t *Transfer) submit() error {
	t.pending = true

	var err error
	switch {
	case !t.in.IsOpened():
		if err = t.in.OpenAsync(t.onOpenInput); err != nil {
			err = internal.NewOpenError(t.in.URL(), err)
		}
	case !t.out.IsOpened():
		if err = t.out.OpenAsync(t.onOpenOutput); err != nil {
			err = internal.NewOpenError(t.out.URL(), err)
		}
	case t.held > 0:
		if err = t.out.WriteAsync(t.buf[:t.held], t.onWrite); err != nil {
			err = wrapIO(internal.ErrWriteFailed, "write", err)
		}
	default:
		if err = t.in.ReadAsync(t.buf[:t.step.size()], t.onRead); err != nil {
			err = wrapIO(internal.ErrReadFailed, "read", err)
		}
	}

	if err != nil {
		t.pending = false
	}
	return err
}

func (t *Transfer) onOpenInput(err error) {
	t.onOpen(t.in, &t.openedIn, err)
}

func (t *Transfer) onOpenOutput(err error) {
	t.onOpen(t.out, &t.openedOut, err)
}

func (t *Transfer) onOpen(s stream.AStream, opened *bool, err error) {
	t.mu.Lock()
	t.pending = false

	if t.state == StateExited {
		t.mu.Unlock()
		if err == nil {
			s.Close()
		}
		return
	}

	if err != nil {
		var transferErr *internal.TransferError
		if !errors.As(err, &transferErr) {
			err = internal.NewOpenError(s.URL(), err)
		}
		t.fail(err)
		t.notifyAndUnlock()
		return
	}

	*opened = true
	t.pump()
}

func (t *Transfer) onRead(n int, err error) {
	t.mu.Lock()
	t.pending = false

	if t.state == StateExited {
		t.mu.Unlock()
		return
	}

	if n > 0 {
		t.held = n
	}
	switch {
	case err == nil && n == 0:
		t.eof = true
	case errors.Is(err, io.EOF):
		t.eof = true
	case err != nil:
		t.fail(wrapIO(internal.ErrReadFailed, "read", err))
		t.notifyAndUnlock()
		return
	}

	t.pump()
}

func (t *Transfer) onWrite(n int, err error) {
	t.mu.Lock()
	t.pending = false

	if t.state == StateExited {
		t.mu.Unlock()
		return
	}

	if err != nil {
		t.fail(wrapIO(internal.ErrWriteFailed, "write", err))
		t.notifyAndUnlock()
		return
	}
	if n != t.held {
		t.fail(internal.NewShortWriteError(n, t.held).WithURL(t.out.URL()))
		t.notifyAndUnlock()
		return
	}

	t.held = 0
	delay := t.step.account(n)
	t.reportDue = true
	t.notBefore = time.Now().Add(delay)
	t.pump()
}

// arm defers the cycle by wait. Called with t.mu held.
func (t *Transfer) arm(wait time.Duration) {
	t.pending = true
	t.timerSeq++
	seq := t.timerSeq
	t.timer = time.AfterFunc(wait, func() {
		t.dispatcher.Post(func() { t.onTimer(seq) })
	})
}

func (t *Transfer) onTimer(seq uint64) {
	t.mu.Lock()
	if seq != t.timerSeq || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.pending = false

	if t.state == StateExited {
		t.mu.Unlock()
		return
	}
	t.pump()
}

// cancelTimer stops a pending rate timer. Called with t.mu held.
func (t *Transfer) cancelTimer() {
	if t.timer != nil && t.timer.Stop() {
		t.timer = nil
		t.pending = false
	}
}

// fail records the first failure and stops the transfer. Called with t.mu held.
func (t *Transfer) fail(err error) {
	if t.err == nil {
		t.err = err
	}
	t.state = StateStopped
	t.log.WithError(err).Debug("transfer failed")
}

// takeTerminal returns the final callback if it is owed. Called with t.mu held.
func (t *Transfer) takeTerminal() func() {
	if !t.started || t.notified || t.reporting {
		return nil
	}
	t.notified = true
	fn, priv, average := t.step.fn, t.step.priv, t.step.average()
	return func() { finish(fn, average, priv) }
}

// notifyAndUnlock releases t.mu and fires the final callback if owed
func (t *Transfer) notifyAndUnlock() {
	terminal := t.takeTerminal()
	t.mu.Unlock()
	if terminal != nil {
		terminal()
	}
}
