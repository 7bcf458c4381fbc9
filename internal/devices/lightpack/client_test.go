package lightpack

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-av/internal/entity"
)

const testGreeting = `Lightpack API v1.4 - Prismatik API v2.2 (type "help" for more info)`

// dropConnection as a reply makes the fake server hang up instead of answering.
const dropConnection = "<drop>"

// fakePrismatik is a scripted Prismatik API server.
type fakePrismatik struct {
	ln       net.Listener
	greeting string
	replies  map[string]string

	mu       sync.Mutex
	received []string
}

func startFakePrismatik(t *testing.T, replies map[string]string) *fakePrismatik {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakePrismatik{ln: ln, greeting: testGreeting, replies: replies}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakePrismatik) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakePrismatik) handle(conn net.Conn) {
	defer conn.Close()
	fmt.Fprintf(conn, "%s\r\n", f.greeting)

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Text()
		f.mu.Lock()
		f.received = append(f.received, line)
		reply, ok := f.replies[line]
		f.mu.Unlock()
		if !ok {
			reply = "unknown command"
		}
		if reply == dropConnection {
			return
		}
		fmt.Fprintf(conn, "%s\r\n", reply)
	}
}

func (f *fakePrismatik) config() ClientConfig {
	addr := f.ln.Addr().(*net.TCPAddr)
	return ClientConfig{Host: "127.0.0.1", Port: addr.Port, IOTimeout: 2 * time.Second}
}

func (f *fakePrismatik) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func connectedClient(t *testing.T, replies map[string]string) (*Client, *fakePrismatik) {
	t.Helper()
	srv := startFakePrismatik(t, replies)
	c := NewClient(srv.config())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func TestClient_ConnectReadsAPIVersion(t *testing.T) {
	c, _ := connectedClient(t, nil)

	if !c.Connected() {
		t.Error("Connected() = false after Connect")
	}
	if got := c.APIVersion(); got != "2.2" {
		t.Errorf("APIVersion() = %q, want %q", got, "2.2")
	}
}

func TestClient_APIKey(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{"accepted", "ok", false},
		{"rejected", "fail", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startFakePrismatik(t, map[string]string{"apikey:secret": tt.reply})
			cfg := srv.config()
			cfg.APIKey = "secret"
			c := NewClient(cfg)
			defer c.Close()

			err := c.Connect(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Connect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrAuthFailed) || entity.KindOf(err) != entity.KindCannotConnect {
					t.Errorf("err = %v, want cannot_connect wrapping ErrAuthFailed", err)
				}
				if c.Connected() {
					t.Error("client still connected after rejected key")
				}
			}
		})
	}
}

func TestClient_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c := NewClient(ClientConfig{Host: "127.0.0.1", Port: port, ConnectTimeout: time.Second})
	err = c.Connect(context.Background())
	if entity.KindOf(err) != entity.KindCannotConnect {
		t.Errorf("Connect() error = %v, want cannot_connect", err)
	}
}

func TestClient_Getters(t *testing.T) {
	c, _ := connectedClient(t, map[string]string{
		"getstatus":     "status:on",
		"getmode":       "mode:ambilight",
		"getbrightness": "brightness:50",
		"getprofile":    "profile:Lightpack",
		"getprofiles":   "profiles:Lightpack;Movie;",
		"getcountleds":  "countleds:10",
	})
	ctx := context.Background()

	if s, err := c.GetStatus(ctx); err != nil || s != "on" {
		t.Errorf("GetStatus() = %q, %v", s, err)
	}
	if m, err := c.GetMode(ctx); err != nil || m != "ambilight" {
		t.Errorf("GetMode() = %q, %v", m, err)
	}
	if b, err := c.GetBrightness(ctx); err != nil || b != 50 {
		t.Errorf("GetBrightness() = %d, %v", b, err)
	}
	if p, err := c.GetProfile(ctx); err != nil || p != "Lightpack" {
		t.Errorf("GetProfile() = %q, %v", p, err)
	}
	profiles, err := c.GetProfiles(ctx)
	if err != nil || len(profiles) != 2 || profiles[0] != "Lightpack" || profiles[1] != "Movie" {
		t.Errorf("GetProfiles() = %v, %v", profiles, err)
	}
	if n, err := c.GetCountLeds(ctx); err != nil || n != 10 {
		t.Errorf("GetCountLeds() = %d, %v", n, err)
	}
}

func TestClient_ColoursAndPersistence(t *testing.T) {
	c, srv := connectedClient(t, map[string]string{
		"getcolors":                   "colors:0-255,0,0;1-0,0,255;",
		"getpersistonunlock":          "persistonunlock:on",
		"setcolor:1-0,255,0;4-1,2,3;": "ok",
		"setpersistonunlock:off":      "ok",
		"setpersistonunlock:on":       "not locked",
	})
	ctx := context.Background()

	colours, err := c.GetColours(ctx)
	want := []RGB{{R: 255}, {B: 255}}
	if err != nil || len(colours) != 2 || colours[0] != want[0] || colours[1] != want[1] {
		t.Errorf("GetColours() = %v, %v, want %v", colours, err, want)
	}
	if on, err := c.GetPersistence(ctx); err != nil || !on {
		t.Errorf("GetPersistence() = %v, %v, want true", on, err)
	}

	if err := c.SetColours(ctx, map[int]RGB{3: {1, 2, 3}, 0: {G: 255}}); err != nil {
		t.Errorf("SetColours() error = %v", err)
	}
	if err := c.SetColours(ctx, nil); err != nil {
		t.Errorf("SetColours(nil) error = %v", err)
	}
	if err := c.SetPersistence(ctx, false); err != nil {
		t.Errorf("SetPersistence(false) error = %v", err)
	}
	if err := c.SetPersistence(ctx, true); entity.KindOf(err) != entity.KindCommandFailed {
		t.Errorf("SetPersistence(true) error = %v, want command_failed", err)
	}

	lines := srv.lines()
	if len(lines) != 5 || lines[2] != "setcolor:1-0,255,0;4-1,2,3;" {
		t.Errorf("server received %v", lines)
	}
}

func TestClient_GetColoursMalformed(t *testing.T) {
	c, _ := connectedClient(t, map[string]string{"getcolors": "colors:0-255,0;"})
	_, err := c.GetColours(context.Background())
	if !errors.Is(err, ErrUnexpectedReply) || entity.KindOf(err) != entity.KindOther {
		t.Errorf("GetColours() error = %v, want other/ErrUnexpectedReply", err)
	}
}

func TestClient_ErrorKinds(t *testing.T) {
	c, srv := connectedClient(t, map[string]string{
		"lock":             "lock:busy",
		"unlock":           "unlock:not locked",
		"setbrightness:50": "not locked",
		"getbrightness":    "brightness:high",
		"getmode":          "error",
		"setstatus:on":     "ok",
	})
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		wantKind entity.Kind
		wantIs   error
	}{
		{"lock busy", c.Lock(ctx), entity.KindCommandFailed, ErrBusy},
		{"unlock not locked", c.Unlock(ctx), entity.KindCommandFailed, ErrNotLocked},
		{"set rejected", c.SetBrightness(ctx, 50), entity.KindCommandFailed, ErrRejected},
		{"bad integer", func() error { _, err := c.GetBrightness(ctx); return err }(), entity.KindOther, ErrUnexpectedReply},
		{"missing prefix", func() error { _, err := c.GetMode(ctx); return err }(), entity.KindCommandFailed, ErrUnexpectedReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if entity.KindOf(tt.err) != tt.wantKind {
				t.Errorf("KindOf(%v) = %v, want %v", tt.err, entity.KindOf(tt.err), tt.wantKind)
			}
			if !errors.Is(tt.err, tt.wantIs) {
				t.Errorf("err = %v, want %v", tt.err, tt.wantIs)
			}
		})
	}

	if err := c.TurnOn(ctx); err != nil {
		t.Errorf("TurnOn() error = %v", err)
	}

	want := []string{"lock", "unlock", "setbrightness:50", "getbrightness", "getmode", "setstatus:on"}
	got := srv.lines()
	if len(got) != len(want) {
		t.Fatalf("server received %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClient_DroppedConnection(t *testing.T) {
	c, _ := connectedClient(t, map[string]string{"getstatus": dropConnection})

	_, err := c.GetStatus(context.Background())
	if entity.KindOf(err) != entity.KindCannotConnect {
		t.Fatalf("GetStatus() error = %v, want cannot_connect", err)
	}
	if c.Connected() {
		t.Error("client still connected after transport failure")
	}

	_, err = c.GetStatus(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("second GetStatus() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient(ClientConfig{Host: "127.0.0.1"})
	err := c.TurnOff(context.Background())
	if entity.KindOf(err) != entity.KindCannotConnect || !errors.Is(err, ErrNotConnected) {
		t.Errorf("TurnOff() error = %v, want cannot_connect/ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

func TestParseAPIVersion(t *testing.T) {
	tests := []struct {
		greeting string
		want     string
	}{
		{testGreeting, "2.2"},
		{"Lightpack API v1.4 - Prismatik API v1.4.1", "1.4.1"},
		{"Lightpack API v1.5", "1.5"},
		{"hello", DefaultAPIVersion},
	}
	for _, tt := range tests {
		if got := parseAPIVersion(tt.greeting); got != tt.want {
			t.Errorf("parseAPIVersion(%q) = %q, want %q", tt.greeting, got, tt.want)
		}
	}
}
