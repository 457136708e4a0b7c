package vertex

import (
	"net/http"

	"golang.org/x/time/rate"

	"vertexflow/config"
	"vertexflow/logger"
)

// Client talks to the Vertex indexer: the gateway assets endpoint for the
// product catalog and the archive endpoint for historical funding
// snapshots. All requests share one rate limiter.
type Client struct {
	config  *config.Config
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient creates an indexer client from the configured connection pool,
// timeout and rate limit settings.
func NewClient(cfg *config.Config) *Client {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        cfg.Indexer.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Indexer.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Indexer.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Indexer.ConnectionPool.IdleConnTimeout,
		DisableCompression:  false,
	}

	var rt http.RoundTripper = transport
	if cfg.Indexer.UserAgent != "" {
		rt = userAgentTransport{agent: cfg.Indexer.UserAgent, base: transport}
	}

	client := &Client{
		config: cfg,
		http: &http.Client{
			Transport: rt,
			Timeout:   cfg.Indexer.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.Fetch.RateLimit.RequestsPerSecond), cfg.Fetch.RateLimit.BurstSize),
		log:     log,
	}

	log.WithComponent("vertex_client").WithFields(logger.Fields{
		"assets_url":  cfg.Indexer.AssetsURL,
		"archive_url": cfg.Indexer.ArchiveURL,
		"timeout":     cfg.Indexer.Timeout,
		"rps":         cfg.Fetch.RateLimit.RequestsPerSecond,
	}).Info("vertex client initialized")

	return client
}
