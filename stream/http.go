package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"tstream/internal"
	"tstream/utils"
)

// HTTPStream is a read-only endpoint fetching a URL with GET
type HTTPStream struct {
	url    string
	client *utils.HTTPClient

	mu     sync.Mutex
	body   io.ReadCloser
	size   int64
	cancel context.CancelFunc
	eof    bool
}

// NewHTTPStream creates an unopened HTTP endpoint
func NewHTTPStream(url string, client *utils.HTTPClient) *HTTPStream {
	return &HTTPStream{url: url, client: client, size: -1}
}

// Open sends the request and keeps the response body for reading
func (h *HTTPStream) Open() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.body != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	resp, err := h.client.GetWithContext(ctx, h.url, nil)
	if err != nil {
		cancel()
		var transferErr *internal.TransferError
		if errors.As(err, &transferErr) {
			return err
		}
		return internal.NewOpenError(h.url, err)
	}

	h.body = resp.Body
	h.size = resp.ContentLength
	h.cancel = cancel
	h.eof = false
	return nil
}

func (h *HTTPStream) IsOpened() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.body != nil
}

func (h *HTTPStream) Read(p []byte) (int, error) {
	h.mu.Lock()
	body, eof := h.body, h.eof
	h.mu.Unlock()

	if body == nil {
		return 0, ErrNotOpened
	}
	if eof {
		return 0, io.EOF
	}

	n, err := body.Read(p)
	if errors.Is(err, io.EOF) {
		h.mu.Lock()
		h.eof = true
		h.mu.Unlock()
		if n > 0 {
			// hand out the data now, EOF on the next call
			return n, nil
		}
		return 0, io.EOF
	}
	if err != nil {
		return n, internal.WrapTransferError(internal.ErrReadFailed, "read", err).WithURL(h.url)
	}
	return n, nil
}

func (h *HTTPStream) Write(p []byte) (int, error) {
	return 0, internal.NewTransferError(internal.ErrUnsupportedOperation, "write", "http endpoints are read only").
		WithURL(h.url)
}

func (h *HTTPStream) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.body == nil {
		return nil
	}
	h.cancel()
	err := h.body.Close()
	h.body = nil
	return err
}

func (h *HTTPStream) URL() string {
	return h.url
}

// Size returns the Content-Length of the response, -1 if unknown
func (h *HTTPStream) Size() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}
