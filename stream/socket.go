package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"tstream/internal"
)

// SocketStream is a duplex TCP endpoint
type SocketStream struct {
	url     string
	addr    string
	dialer  proxy.ContextDialer
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	eof  bool
}

// NewSocketStream creates an unopened endpoint dialing addr through dialer
func NewSocketStream(url, addr string, dialer proxy.ContextDialer, timeout time.Duration) *SocketStream {
	return &SocketStream{url: url, addr: addr, dialer: dialer, timeout: timeout}
}

// NewSocketStreamFromConn wraps an established connection
func NewSocketStreamFromConn(conn net.Conn) *SocketStream {
	return &SocketStream{
		url:  "tcp://" + conn.RemoteAddr().String(),
		addr: conn.RemoteAddr().String(),
		conn: conn,
	}
}

// Open dials the remote address
func (s *SocketStream) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return internal.WrapTransferError(internal.ErrNetworkTimeout, "open", err).WithURL(s.url)
		}
		return internal.NewOpenError(s.url, err)
	}

	s.conn = conn
	s.eof = false
	return nil
}

func (s *SocketStream) IsOpened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *SocketStream) connection() (net.Conn, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, false, ErrNotOpened
	}
	return s.conn, s.eof, nil
}

func (s *SocketStream) Read(p []byte) (int, error) {
	conn, eof, err := s.connection()
	if err != nil {
		return 0, err
	}
	if eof {
		return 0, io.EOF
	}

	n, err := conn.Read(p)
	if errors.Is(err, io.EOF) {
		s.mu.Lock()
		s.eof = true
		s.mu.Unlock()
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}
	if err != nil {
		return n, internal.WrapTransferError(internal.ErrReadFailed, "read", err).WithURL(s.url)
	}
	return n, nil
}

func (s *SocketStream) Write(p []byte) (int, error) {
	conn, _, err := s.connection()
	if err != nil {
		return 0, err
	}

	n, err := conn.Write(p)
	if err != nil {
		return n, internal.WrapTransferError(internal.ErrWriteFailed, "write", err).WithURL(s.url)
	}
	return n, nil
}

// Close closes the connection
func (s *SocketStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *SocketStream) URL() string {
	return s.url
}
