package utils

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"tstream/internal"
)

// Supported stream URL schemes
const (
	SchemeFile   = "file"
	SchemeHTTP   = "http"
	SchemeHTTPS  = "https"
	SchemeTCP    = "tcp"
	SchemeMemory = "mem"
)

// URLInfo contains parsed information from a stream URL
type URLInfo struct {
	OriginalURL string
	Scheme      string
	Host        string // host[:port] for network schemes, name for mem://
	Path        string // local path for file://
}

// URLValidator validates and parses stream URLs
type URLValidator struct {
	allowedSchemes map[string]bool
}

// NewURLValidator creates a validator accepting every supported scheme
func NewURLValidator() *URLValidator {
	return NewURLValidatorWithSchemes(SchemeFile, SchemeHTTP, SchemeHTTPS, SchemeTCP, SchemeMemory)
}

// NewURLValidatorWithSchemes creates a validator restricted to schemes
func NewURLValidatorWithSchemes(schemes ...string) *URLValidator {
	allowed := make(map[string]bool, len(schemes))
	for _, s := range schemes {
		allowed[strings.ToLower(s)] = true
	}
	return &URLValidator{allowedSchemes: allowed}
}

// ValidateURL checks that rawURL is well formed and uses an allowed scheme
func (v *URLValidator) ValidateURL(rawURL string) error {
	_, err := v.ParseURL(rawURL)
	return err
}

// ParseURL parses a stream URL. A string without "://" is a local path.
func (v *URLValidator) ParseURL(rawURL string) (*URLInfo, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, internal.NewInvalidURLError(rawURL, "URL cannot be empty")
	}

	if !strings.Contains(trimmed, "://") {
		if !v.allowedSchemes[SchemeFile] {
			return nil, internal.NewUnsupportedSchemeError(rawURL, SchemeFile)
		}
		return &URLInfo{
			OriginalURL: rawURL,
			Scheme:      SchemeFile,
			Path:        filepath.Clean(trimmed),
		}, nil
	}

	parsedURL, err := url.Parse(trimmed)
	if err != nil {
		return nil, internal.NewInvalidURLError(rawURL, fmt.Sprintf("invalid URL format: %v", err))
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme == "" {
		return nil, internal.NewInvalidURLError(rawURL, "missing scheme")
	}
	if !v.allowedSchemes[scheme] {
		return nil, internal.NewUnsupportedSchemeError(rawURL, scheme)
	}

	info := &URLInfo{
		OriginalURL: rawURL,
		Scheme:      scheme,
		Host:        parsedURL.Host,
	}

	switch scheme {
	case SchemeFile:
		// file:///abs/path or file://relative/path
		path := parsedURL.Path
		if parsedURL.Host != "" && parsedURL.Host != "localhost" {
			path = parsedURL.Host + path
		}
		if path == "" {
			return nil, internal.NewInvalidURLError(rawURL, "file URL has no path")
		}
		info.Host = ""
		info.Path = filepath.Clean(path)
	case SchemeHTTP, SchemeHTTPS:
		if parsedURL.Hostname() == "" {
			return nil, internal.NewInvalidURLError(rawURL, "missing host")
		}
	case SchemeTCP:
		host, port, err := net.SplitHostPort(parsedURL.Host)
		if err != nil || port == "" {
			return nil, internal.NewInvalidURLError(rawURL, "tcp URL must be tcp://host:port")
		}
		if host == "" {
			info.Host = net.JoinHostPort("127.0.0.1", port)
		}
	case SchemeMemory:
		info.Host = strings.TrimPrefix(trimmed[len(parsedURL.Scheme)+3:], "/")
	}

	return info, nil
}

// IsLocal reports whether the URL designates a local file
func (i *URLInfo) IsLocal() bool {
	return i.Scheme == SchemeFile
}

// IsNetwork reports whether opening the URL involves the network
func (i *URLInfo) IsNetwork() bool {
	switch i.Scheme {
	case SchemeHTTP, SchemeHTTPS, SchemeTCP:
		return true
	}
	return false
}

// String returns a string representation of the URLInfo
func (i *URLInfo) String() string {
	return fmt.Sprintf("URLInfo{Scheme: %s, Host: %s, Path: %s}", i.Scheme, i.Host, i.Path)
}

// ParseStreamURL parses rawURL with the default validator
func ParseStreamURL(rawURL string) (*URLInfo, error) {
	return NewURLValidator().ParseURL(rawURL)
}
