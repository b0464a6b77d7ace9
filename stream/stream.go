// Package stream defines the endpoints a transfer moves bytes between.
//
// A GStream is a blocking endpoint: every call returns when the operation is
// done. An AStream is a non-blocking endpoint: operations are submitted with a
// completion function that a Dispatcher invokes later. Completions submitted
// through one Dispatcher run one at a time, in order, never from inside the
// submitting call.
package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpened is returned by I/O on an endpoint that was never opened
	ErrNotOpened = errors.New("stream not opened")
	// ErrClosed is returned by operations on a closed endpoint
	ErrClosed = errors.New("stream closed")
	// ErrBusy is returned when an operation is submitted while another is in flight
	ErrBusy = errors.New("stream operation already in flight")
	// ErrDispatcherClosed is returned when a completion cannot be delivered
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// Mode is the direction an endpoint is opened for
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// GStream is a blocking endpoint.
//
// Read follows io.Reader with one restriction: it returns 0, io.EOF once the
// input is exhausted, and data is never returned together with io.EOF.
type GStream interface {
	Open() error
	IsOpened() bool
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	URL() string
}

// Dispatcher runs completion functions serially
type Dispatcher interface {
	// Post queues fn; false means the dispatcher no longer accepts work
	Post(fn func()) bool
}

// AStream is a non-blocking endpoint. At most one operation may be in flight.
// The buffer passed to ReadAsync or WriteAsync must not be touched until the
// completion runs.
type AStream interface {
	IsOpened() bool
	OpenAsync(done func(err error)) error
	ReadAsync(buf []byte, done func(n int, err error)) error
	WriteAsync(data []byte, done func(n int, err error)) error
	Close() error
	Dispatcher() Dispatcher
	URL() string
}

// Sizer is implemented by endpoints that know their total length.
// Size returns -1 when the length is unknown.
type Sizer interface {
	Size() int64
}

// SizeOf returns the size of s if it reports one, -1 otherwise
func SizeOf(s interface{}) int64 {
	if sizer, ok := s.(Sizer); ok {
		return sizer.Size()
	}
	return -1
}
