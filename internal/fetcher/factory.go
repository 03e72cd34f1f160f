package fetcher

import (
	"time"

	"ingot/internal/config"
)

// NewFetcherFromConfig creates an HTTPFetcher from configuration. Zero config
// values fall back to the fetcher defaults.
func NewFetcherFromConfig(cfg config.FetcherConfig) *HTTPFetcher {
	return NewHTTPFetcher(Options{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
}
