// Package coze is a client for the bot-persona platform REST API: bot
// CRUD and publishing, voice listing, and knowledge-base (dataset)
// management. Authentication uses a personal access token.
package coze

import (
	"log/slog"
	"net"
	"net/http"
	"time"
)

const DefaultBaseURL = "https://api.coze.cn"

// Client is the main entry point for the platform API.
type Client struct {
	Bots     *BotsService
	Voices   *VoicesService
	Datasets *DatasetsService

	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client authenticated with a personal access token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: newDefaultHTTPClient(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Bots = &BotsService{client: c}
	c.Voices = &VoicesService{client: c}
	c.Datasets = &DatasetsService{client: c}
	return c
}

// newDefaultHTTPClient configures transport-level timeouts while keeping
// the overall request lifetime controlled by context deadlines.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Transport: transport}
}
