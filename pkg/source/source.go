package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/drg911/htb-pro-card/pkg/whttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

const (
	DefaultLabsBaseURL   = "https://labs.hackthebox.com"
	DefaultLabsTimeout   = 15 * time.Second
	DefaultStaticTimeout = 10 * time.Second

	basicProfilePath = "/api/v4/user/profile/basic/"
)

var (
	ErrMissingCredential = errors.New("HTB: set HTB_API_TOKEN (labs.token) to use the labs API")
	ErrTransport         = errors.New("HTB: request failed")
	ErrMalformedResponse = errors.New("HTB: invalid JSON")
)

// UpstreamError reports a non-200 answer or an empty body.
type UpstreamError struct {
	StatusCode int
	// Title is the <title> of an HTML error page, if any.
	Title string
}

func (e *UpstreamError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("HTB: HTTP %d (%s)", e.StatusCode, e.Title)
	}
	return fmt.Sprintf("HTB: HTTP %d", e.StatusCode)
}

// Config selects where a profile comes from: RemoteAPI or StaticJSON.
type Config interface {
	// Name is "labs" or "json", as reported by connection tests.
	Name() string
	isConfig()
}

// RemoteAPI is the authenticated Labs API.
type RemoteAPI struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// StaticJSON is an operator-controlled relay document.
type StaticJSON struct {
	URL     string
	Timeout time.Duration
}

func (RemoteAPI) Name() string  { return "labs" }
func (RemoteAPI) isConfig()     {}
func (StaticJSON) Name() string { return "json" }
func (StaticJSON) isConfig()    {}

// Raw is an upstream JSON object as returned on the wire.
type Raw string

// Fetcher retrieves the raw profile document for id.
type Fetcher interface {
	Fetch(ctx context.Context, id string, cfg Config) (Raw, error)
}

// Client fetches profiles over HTTP for both source kinds.
type Client struct {
	http *retryablehttp.Client
}

func NewClient(httpClient *retryablehttp.Client) *Client {
	return &Client{http: httpClient}
}

func (c *Client) Fetch(ctx context.Context, id string, cfg Config) (Raw, error) {
	switch cfg := cfg.(type) {
	case RemoteAPI:
		return c.fetchLabs(ctx, id, cfg)
	case StaticJSON:
		return c.fetchStatic(ctx, cfg)
	case nil:
		return "", errors.New("HTB: no profile source configured")
	default:
		return "", fmt.Errorf("HTB: unsupported source %T", cfg)
	}
}

func (c *Client) fetchLabs(ctx context.Context, id string, cfg RemoteAPI) (Raw, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return "", ErrMissingCredential
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultLabsBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultLabsTimeout
	}

	return c.get(ctx, timeout, &whttp.WHTTPReq{
		Method: http.MethodGet,
		URL:    base + basicProfilePath + url.PathEscape(id),
		Headers: []whttp.WHTTPHeader{
			{Name: "Authorization", Value: "Bearer " + cfg.Token},
			{Name: "Accept", Value: "application/json"},
		},
	})
}

func (c *Client) fetchStatic(ctx context.Context, cfg StaticJSON) (Raw, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultStaticTimeout
	}
	raw, err := c.get(ctx, timeout, &whttp.WHTTPReq{
		Method:  http.MethodGet,
		URL:     cfg.URL,
		Headers: []whttp.WHTTPHeader{{Name: "Accept", Value: "application/json"}},
	})
	if errors.Is(err, ErrMalformedResponse) {
		return "", fmt.Errorf("%w at %s", ErrMalformedResponse, cfg.URL)
	}
	return raw, err
}

func (c *Client) get(ctx context.Context, timeout time.Duration, req *whttp.WHTTPReq) (Raw, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := whttp.SendHTTPRequest(ctx, req, c.http)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if res.StatusCode != http.StatusOK || strings.TrimSpace(res.BodyString) == "" {
		return "", &UpstreamError{StatusCode: res.StatusCode, Title: res.HTTPTitle}
	}
	if !gjson.Valid(res.BodyString) || !gjson.Parse(res.BodyString).IsObject() {
		return "", ErrMalformedResponse
	}
	return Raw(res.BodyString), nil
}
