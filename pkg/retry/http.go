package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"
)

type HTTPClientConfig struct {
	Timeout         time.Duration
	IdleConnTimeout time.Duration
	MaxIdleConns    int
}

func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:         30 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		MaxIdleConns:    32,
	}
}

// NewHTTPClient builds the shared *http.Client used by the JSON-RPC clients.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPClientConfig().Timeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = cfg.IdleConnTimeout
	}
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConns
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// IsTransientNetError reports whether err looks like a connection level failure
// that is worth another attempt.
func IsTransientNetError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
