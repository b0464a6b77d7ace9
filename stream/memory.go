package stream

import (
	"io"
	"sync"
)

// MemoryStream is an in-memory endpoint. Reads consume the initial data,
// writes append to it.
type MemoryStream struct {
	name string

	mu       sync.Mutex
	data     []byte
	readPos  int
	opened   bool
	writeCap int // total bytes accepted, -1 = unlimited

	openErr   error
	readErr   error
	readErrAt int // readErr is returned once readPos reaches this offset
	writeErr  error
}

// NewMemoryStream creates an empty endpoint named name
func NewMemoryStream(name string) *MemoryStream {
	return &MemoryStream{name: name, writeCap: -1, readErrAt: -1}
}

// NewMemoryReader creates an endpoint reading a copy of data
func NewMemoryReader(data []byte) *MemoryStream {
	m := NewMemoryStream("")
	m.data = append([]byte(nil), data...)
	return m
}

// WithWriteCap limits the total bytes the stream accepts. A write crossing
// the cap is short.
func (m *MemoryStream) WithWriteCap(n int) *MemoryStream {
	m.mu.Lock()
	m.writeCap = n
	m.mu.Unlock()
	return m
}

// WithOpenError makes Open fail with err
func (m *MemoryStream) WithOpenError(err error) *MemoryStream {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
	return m
}

// WithReadError makes Read fail with err once offset bytes have been read
func (m *MemoryStream) WithReadError(err error, offset int) *MemoryStream {
	m.mu.Lock()
	m.readErr = err
	m.readErrAt = offset
	m.mu.Unlock()
	return m
}

// WithWriteError makes every Write fail with err
func (m *MemoryStream) WithWriteError(err error) *MemoryStream {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
	return m
}

func (m *MemoryStream) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *MemoryStream) IsOpened() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

func (m *MemoryStream) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return 0, ErrNotOpened
	}

	end := len(m.data)
	if m.readErr != nil && m.readErrAt >= 0 {
		if m.readPos >= m.readErrAt {
			return 0, m.readErr
		}
		end = min(end, m.readErrAt)
	}
	if m.readPos >= end {
		return 0, io.EOF
	}

	n := copy(p, m.data[m.readPos:end])
	m.readPos += n
	return n, nil
}

func (m *MemoryStream) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return 0, ErrNotOpened
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}

	n := len(p)
	if m.writeCap >= 0 {
		n = max(0, min(n, m.writeCap-len(m.data)))
	}
	m.data = append(m.data, p[:n]...)
	return n, nil
}

func (m *MemoryStream) Close() error {
	m.mu.Lock()
	m.opened = false
	m.mu.Unlock()
	return nil
}

func (m *MemoryStream) URL() string {
	return "mem://" + m.name
}

// Bytes returns a copy of the stream content
func (m *MemoryStream) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Len returns the number of bytes held
func (m *MemoryStream) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Size returns the number of unread bytes
func (m *MemoryStream) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data) - m.readPos)
}
