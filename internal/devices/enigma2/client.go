package enigma2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-av/internal/entity"
)

// Default connection settings.
const (
	DefaultPort = 80

	defaultTimeout = 5 * time.Second

	// maxBodySize caps how much of a response is read.
	maxBodySize = 1 << 20
)

// Session is the OpenWebif surface the Player uses. *Client implements it.
type Session interface {
	About(ctx context.Context) (*About, error)
	StatusInfo(ctx context.Context) (*StatusInfo, error)
	Bouquets(ctx context.Context) ([]Service, error)
	Services(ctx context.Context, bouquetRef string) ([]Service, error)
	Zap(ctx context.Context, serviceRef string) error
	SetVolume(ctx context.Context, level int) error
	ToggleMute(ctx context.Context) error
	SetPowerState(ctx context.Context, state PowerState) error
	Close() error
}

// Ensure Client implements Session.
var _ Session = (*Client)(nil)

// ClientConfig holds OpenWebif connection settings.
type ClientConfig struct {
	Host string
	Port int // default 80

	// Timeout bounds one request. Default: 5 seconds.
	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client calls the OpenWebif JSON API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an OpenWebif client. No request is made.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		http:    hc,
	}
}

// NewClientForURL creates a client for an explicit base URL such as
// "http://10.0.0.9:8080".
func NewClientForURL(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, http: hc}
}

// About returns receiver identity information.
func (c *Client) About(ctx context.Context) (*About, error) {
	var about About
	if err := c.get(ctx, "about", nil, &about); err != nil {
		return nil, err
	}
	return &about, nil
}

// StatusInfo returns the receiver's composite status.
func (c *Client) StatusInfo(ctx context.Context) (*StatusInfo, error) {
	var info StatusInfo
	if err := c.get(ctx, "statusinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Bouquets lists the receiver's bouquets.
func (c *Client) Bouquets(ctx context.Context) ([]Service, error) {
	var reply servicesReply
	if err := c.get(ctx, "getservices", nil, &reply); err != nil {
		return nil, err
	}
	return reply.Services, nil
}

// Services lists the services in a bouquet.
func (c *Client) Services(ctx context.Context, bouquetRef string) ([]Service, error) {
	var reply servicesReply
	q := url.Values{"sRef": {bouquetRef}}
	if err := c.get(ctx, "getservices", q, &reply); err != nil {
		return nil, err
	}
	return reply.Services, nil
}

// Zap tunes to a service reference.
func (c *Client) Zap(ctx context.Context, serviceRef string) error {
	return c.command(ctx, "zap", url.Values{"sRef": {serviceRef}})
}

// SetVolume sets the volume, 0-100. The value is sent as given.
func (c *Client) SetVolume(ctx context.Context, level int) error {
	return c.command(ctx, "vol", url.Values{"set": {"set" + strconv.Itoa(level)}})
}

// ToggleMute flips the mute state.
func (c *Client) ToggleMute(ctx context.Context) error {
	return c.command(ctx, "vol", url.Values{"set": {"mute"}})
}

// SetPowerState requests a power transition.
func (c *Client) SetPowerState(ctx context.Context, state PowerState) error {
	return c.command(ctx, "powerstate", url.Values{"newstate": {strconv.Itoa(int(state))}})
}

// Close drops idle keep-alive connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// command calls an endpoint that answers with a result envelope.
func (c *Client) command(ctx context.Context, endpoint string, q url.Values) error {
	var reply resultReply
	if err := c.get(ctx, endpoint, q, &reply); err != nil {
		return err
	}
	if reply.Result != nil && !*reply.Result {
		return entity.CommandFailed("api/"+endpoint, fmt.Errorf("%w: %s", ErrRejected, reply.Message))
	}
	return nil
}

// get performs GET /api/<endpoint> and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	op := "api/" + endpoint

	u := c.baseURL + "/api/" + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return entity.Other(op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return entity.Other(op, ctx.Err())
		}
		return entity.CannotConnect(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return entity.CannotConnect(op, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return entity.CommandFailed(op, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return entity.Other(op, fmt.Errorf("%w: %w", ErrDecode, err))
	}
	return nil
}
