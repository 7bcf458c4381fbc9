package lightpack

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-av/internal/entity"
)

// Default connection settings.
const (
	DefaultPort = 3636

	// DefaultAPIVersion is assumed when the greeting carries no version.
	DefaultAPIVersion = "1.4"

	defaultConnectTimeout = 5 * time.Second
	defaultIOTimeout      = 5 * time.Second
)

// Reply literals.
const (
	replyOK            = "ok"
	replyLockSuccess   = "lock:success"
	replyLockBusy      = "lock:busy"
	replyUnlockSuccess = "unlock:success"
	replyNotLocked     = "unlock:not locked"
)

// RGB is one LED colour.
type RGB struct {
	R, G, B uint8
}

// Session is one Prismatik API session. *Client implements it; tests use fakes.
type Session interface {
	Connect(ctx context.Context) error
	Close() error
	APIVersion() string

	GetStatus(ctx context.Context) (string, error)
	GetMode(ctx context.Context) (string, error)
	GetBrightness(ctx context.Context) (int, error)
	GetProfile(ctx context.Context) (string, error)
	GetProfiles(ctx context.Context) ([]string, error)
	GetCountLeds(ctx context.Context) (int, error)
	GetColours(ctx context.Context) ([]RGB, error)
	GetPersistence(ctx context.Context) (bool, error)

	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	SetBrightness(ctx context.Context, native int) error
	SetProfile(ctx context.Context, name string) error
	SetColours(ctx context.Context, colours map[int]RGB) error
	SetPersistence(ctx context.Context, on bool) error
}

// Ensure Client implements Session.
var _ Session = (*Client)(nil)

// ClientConfig holds Prismatik connection settings.
type ClientConfig struct {
	Host   string
	Port   int    // default 3636
	APIKey string // optional

	// ConnectTimeout bounds dial plus handshake. Default: 5 seconds.
	ConnectTimeout time.Duration

	// IOTimeout bounds one request/reply exchange. Default: 5 seconds.
	IOTimeout time.Duration
}

// Client is a single Prismatik API session.
//
// Thread Safety:
//   - Methods are safe for concurrent use; exchanges are serialised.
type Client struct {
	cfg ClientConfig

	mu         sync.Mutex
	conn       net.Conn
	reader     *bufio.Reader
	apiVersion string
}

// NewClient creates an unconnected client. Call Connect before use.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	return &Client{cfg: cfg, apiVersion: DefaultAPIVersion}
}

// Connect dials Prismatik, reads the greeting and, when configured, sends the
// API key. An existing session is closed first.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropLocked()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	address := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return entity.CannotConnect("connect", fmt.Errorf("dial %s: %w", address, err))
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)

	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		c.dropLocked()
		return entity.CannotConnect("connect", fmt.Errorf("set deadline: %w", err))
	}

	greeting, err := c.reader.ReadString('\n')
	if err != nil {
		c.dropLocked()
		return entity.CannotConnect("connect", fmt.Errorf("read greeting: %w", err))
	}
	c.apiVersion = parseAPIVersion(greeting)

	if c.cfg.APIKey != "" {
		reply, err := c.exchangeLocked(ctx, "apikey", "apikey:"+c.cfg.APIKey)
		if err != nil {
			return err
		}
		if reply != replyOK {
			c.dropLocked()
			return entity.CannotConnect("apikey", fmt.Errorf("%w: %q", ErrAuthFailed, reply))
		}
	}

	return nil
}

// Close ends the session. It is safe to call on an unconnected client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// APIVersion returns the Prismatik API version announced in the greeting.
func (c *Client) APIVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiVersion
}

// GetStatus returns the raw status literal: "on", "off", "device error", "unknown".
func (c *Client) GetStatus(ctx context.Context) (string, error) {
	return c.get(ctx, "status")
}

// GetMode returns the current mode, e.g. "ambilight" or "moodlamp".
func (c *Client) GetMode(ctx context.Context) (string, error) {
	return c.get(ctx, "mode")
}

// GetBrightness returns the device brightness, 0-100.
func (c *Client) GetBrightness(ctx context.Context) (int, error) {
	return c.getInt(ctx, "brightness")
}

// GetProfile returns the active profile name.
func (c *Client) GetProfile(ctx context.Context) (string, error) {
	return c.get(ctx, "profile")
}

// GetProfiles returns every profile name in Prismatik's order.
func (c *Client) GetProfiles(ctx context.Context) ([]string, error) {
	v, err := c.get(ctx, "profiles")
	if err != nil {
		return nil, err
	}
	var profiles []string
	for _, p := range strings.Split(v, ";") {
		if p = strings.TrimSpace(p); p != "" {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// GetCountLeds returns the number of addressable LEDs (zones).
func (c *Client) GetCountLeds(ctx context.Context) (int, error) {
	return c.getInt(ctx, "countleds")
}

// GetColours returns the current colour of every LED, in LED order.
// Prismatik replies "colors:0-r,g,b;1-r,g,b;...".
func (c *Client) GetColours(ctx context.Context) ([]RGB, error) {
	v, err := c.get(ctx, "colors")
	if err != nil {
		return nil, err
	}
	var colours []RGB
	for _, led := range strings.Split(v, ";") {
		if led = strings.TrimSpace(led); led == "" {
			continue
		}
		_, triple, ok := strings.Cut(led, "-")
		rgb, perr := parseRGB(triple)
		if !ok || perr != nil {
			return nil, entity.Other("getcolors", fmt.Errorf("%w: %q", ErrUnexpectedReply, led))
		}
		colours = append(colours, rgb)
	}
	return colours, nil
}

// GetPersistence reports whether colours set while locked survive unlock.
func (c *Client) GetPersistence(ctx context.Context) (bool, error) {
	v, err := c.get(ctx, "persistonunlock")
	if err != nil {
		return false, err
	}
	switch v {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, entity.CommandFailed("getpersistonunlock", fmt.Errorf("%w: %q", ErrUnexpectedReply, v))
	}
}

// Lock takes exclusive control of the device.
func (c *Client) Lock(ctx context.Context) error {
	reply, err := c.exchange(ctx, "lock", "lock")
	if err != nil {
		return err
	}
	switch reply {
	case replyLockSuccess:
		return nil
	case replyLockBusy:
		return entity.CommandFailed("lock", ErrBusy)
	default:
		return entity.CommandFailed("lock", fmt.Errorf("%w: %q", ErrUnexpectedReply, reply))
	}
}

// Unlock releases exclusive control.
func (c *Client) Unlock(ctx context.Context) error {
	reply, err := c.exchange(ctx, "unlock", "unlock")
	if err != nil {
		return err
	}
	switch reply {
	case replyUnlockSuccess:
		return nil
	case replyNotLocked:
		return entity.CommandFailed("unlock", ErrNotLocked)
	default:
		return entity.CommandFailed("unlock", fmt.Errorf("%w: %q", ErrUnexpectedReply, reply))
	}
}

// TurnOn switches the LEDs on.
func (c *Client) TurnOn(ctx context.Context) error {
	return c.set(ctx, "setstatus", "setstatus:on")
}

// TurnOff switches the LEDs off.
func (c *Client) TurnOff(ctx context.Context) error {
	return c.set(ctx, "setstatus", "setstatus:off")
}

// SetBrightness sets the device brightness, 0-100. The value is sent as given.
func (c *Client) SetBrightness(ctx context.Context, native int) error {
	return c.set(ctx, "setbrightness", "setbrightness:"+strconv.Itoa(native))
}

// SetProfile activates a profile by name.
func (c *Client) SetProfile(ctx context.Context, name string) error {
	return c.set(ctx, "setprofile", "setprofile:"+name)
}

// SetColours sets LEDs by zero-based zone. Prismatik numbers LEDs from 1.
func (c *Client) SetColours(ctx context.Context, colours map[int]RGB) error {
	if len(colours) == 0 {
		return nil
	}
	zones := make([]int, 0, len(colours))
	for z := range colours {
		zones = append(zones, z)
	}
	slices.Sort(zones)

	var b strings.Builder
	b.WriteString("setcolor:")
	for _, z := range zones {
		rgb := colours[z]
		fmt.Fprintf(&b, "%d-%d,%d,%d;", z+1, rgb.R, rgb.G, rgb.B)
	}
	return c.set(ctx, "setcolor", b.String())
}

// SetPersistence controls whether colours survive the next unlock.
func (c *Client) SetPersistence(ctx context.Context, on bool) error {
	if on {
		return c.set(ctx, "setpersistonunlock", "setpersistonunlock:on")
	}
	return c.set(ctx, "setpersistonunlock", "setpersistonunlock:off")
}

// get sends "get<key>" and strips the "<key>:" prefix from the reply.
func (c *Client) get(ctx context.Context, key string) (string, error) {
	op := "get" + key
	reply, err := c.exchange(ctx, op, op)
	if err != nil {
		return "", err
	}
	value, ok := strings.CutPrefix(reply, key+":")
	if !ok {
		return "", entity.CommandFailed(op, fmt.Errorf("%w: %q", ErrUnexpectedReply, reply))
	}
	return value, nil
}

func (c *Client) getInt(ctx context.Context, key string) (int, error) {
	v, err := c.get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, entity.Other("get"+key, fmt.Errorf("%w: %q", ErrUnexpectedReply, v))
	}
	return n, nil
}

// set sends a mutating command that Prismatik acknowledges with "ok".
func (c *Client) set(ctx context.Context, op, line string) error {
	reply, err := c.exchange(ctx, op, line)
	if err != nil {
		return err
	}
	if reply != replyOK {
		return entity.CommandFailed(op, fmt.Errorf("%w: %q", ErrRejected, reply))
	}
	return nil
}

func (c *Client) exchange(ctx context.Context, op, line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchangeLocked(ctx, op, line)
}

// exchangeLocked writes one line and reads one reply. Any I/O failure drops
// the session so the next poll reconnects. Caller holds c.mu.
func (c *Client) exchangeLocked(ctx context.Context, op, line string) (string, error) {
	if c.conn == nil {
		return "", entity.CannotConnect(op, ErrNotConnected)
	}

	if err := ctx.Err(); err != nil {
		return "", entity.Other(op, err)
	}

	deadline := time.Now().Add(c.cfg.IOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.dropLocked()
		return "", entity.CannotConnect(op, fmt.Errorf("set deadline: %w", err))
	}

	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.dropLocked()
		return "", entity.CannotConnect(op, fmt.Errorf("write: %w", err))
	}

	reply, err := c.reader.ReadString('\n')
	if err != nil {
		c.dropLocked()
		return "", entity.CannotConnect(op, fmt.Errorf("read: %w", err))
	}

	return strings.TrimRight(reply, "\r\n"), nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

func parseRGB(s string) (RGB, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("want r,g,b, got %q", s)
	}
	var ch [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return RGB{}, err
		}
		ch[i] = uint8(n)
	}
	return RGB{R: ch[0], G: ch[1], B: ch[2]}, nil
}

var apiVersionPattern = regexp.MustCompile(`API v(\d+(?:\.\d+)*)`)

// parseAPIVersion returns the last "API vX.Y" in the greeting, which is the
// Prismatik version when both Lightpack and Prismatik versions are listed.
func parseAPIVersion(greeting string) string {
	matches := apiVersionPattern.FindAllStringSubmatch(greeting, -1)
	if len(matches) == 0 {
		return DefaultAPIVersion
	}
	return matches[len(matches)-1][1]
}
