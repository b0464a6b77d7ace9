package stream

import (
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"tstream/internal"
	"tstream/utils"
)

// Resolver builds endpoints from URLs
type Resolver struct {
	proxyURL string
	timeout  time.Duration

	mu     sync.Mutex
	client *utils.HTTPClient
	dialer proxy.ContextDialer
	memory map[string]*MemoryStream
}

// NewResolver creates a resolver using the proxy and timeout from config
func NewResolver(config *internal.Config) *Resolver {
	r := &Resolver{memory: make(map[string]*MemoryStream)}
	if config != nil {
		r.proxyURL = config.ProxyURL
		r.timeout = config.Timeout
	}
	return r
}

// RegisterMemory makes m reachable as mem://name
func (r *Resolver) RegisterMemory(name string, m *MemoryStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memory[name] = m
}

// Resolve returns an unopened endpoint for rawURL
func (r *Resolver) Resolve(rawURL string, mode Mode) (GStream, error) {
	info, err := utils.ParseStreamURL(rawURL)
	if err != nil {
		return nil, err
	}

	switch info.Scheme {
	case utils.SchemeFile:
		return NewFileStream(info.Path, mode), nil

	case utils.SchemeHTTP, utils.SchemeHTTPS:
		if mode != ModeRead {
			return nil, internal.NewTransferError(internal.ErrUnsupportedOperation, "resolve",
				"http endpoints can only be read").WithURL(rawURL)
		}
		client, err := r.httpClient()
		if err != nil {
			return nil, internal.NewOpenError(rawURL, err)
		}
		return NewHTTPStream(rawURL, client), nil

	case utils.SchemeTCP:
		dialer, err := r.proxyDialer()
		if err != nil {
			return nil, internal.NewOpenError(rawURL, err)
		}
		return NewSocketStream(rawURL, info.Host, dialer, r.timeout), nil

	case utils.SchemeMemory:
		r.mu.Lock()
		defer r.mu.Unlock()
		if m, ok := r.memory[info.Host]; ok && info.Host != "" {
			return m, nil
		}
		m := NewMemoryStream(info.Host)
		if info.Host != "" {
			r.memory[info.Host] = m
		}
		return m, nil
	}

	return nil, internal.NewUnsupportedSchemeError(rawURL, info.Scheme)
}

// ResolveAsync resolves rawURL and adapts it to the dispatcher d
func (r *Resolver) ResolveAsync(rawURL string, mode Mode, d Dispatcher) (AStream, error) {
	g, err := r.Resolve(rawURL, mode)
	if err != nil {
		return nil, err
	}
	return Async(g, d), nil
}

func (r *Resolver) httpClient() (*utils.HTTPClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}
	client, err := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		Timeout:  r.timeout,
		ProxyURL: r.proxyURL,
	})
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

func (r *Resolver) proxyDialer() (proxy.ContextDialer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dialer != nil {
		return r.dialer, nil
	}
	dialer, err := utils.NewProxyDialer(r.proxyURL, r.timeout)
	if err != nil {
		return nil, err
	}
	r.dialer = dialer
	return dialer, nil
}
