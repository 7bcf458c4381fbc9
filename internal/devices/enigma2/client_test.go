package enigma2

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-av/internal/entity"
)

// fakeOpenWebif serves canned JSON per path and records request URIs.
type fakeOpenWebif struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string // keyed by RequestURI
	status   map[string]int
}

func newFakeOpenWebif(t *testing.T, bodies map[string]string) (*fakeOpenWebif, *Client) {
	t.Helper()
	f := &fakeOpenWebif{bodies: bodies, status: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(srv.Close)
	return f, NewClientForURL(srv.URL, srv.Client())
}

func (f *fakeOpenWebif) serveHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.RequestURI())
	body, ok := f.bodies[r.URL.RequestURI()]
	status := f.status[r.URL.RequestURI()]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeOpenWebif) uris() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

const statusInfoOn = `{
	"inStandby": "false",
	"currservice_name": "Evening News",
	"currservice_station": "BBC One HD",
	"currservice_filename": "",
	"volume": 40,
	"muted": false
}`

func TestClient_StatusInfo(t *testing.T) {
	_, c := newFakeOpenWebif(t, map[string]string{"/api/statusinfo": statusInfoOn})

	info, err := c.StatusInfo(context.Background())
	if err != nil {
		t.Fatalf("StatusInfo() error = %v", err)
	}
	if info.InStandby != "false" || info.CurrServiceStation != "BBC One HD" {
		t.Errorf("StatusInfo() = %+v", info)
	}
	if info.Volume != "40" || info.Muted != "false" {
		t.Errorf("Volume/Muted = %q/%q, want 40/false", info.Volume, info.Muted)
	}
}

func TestClient_About(t *testing.T) {
	_, c := newFakeOpenWebif(t, map[string]string{
		"/api/about": `{"info":{"brand":"Vu+","model":"Solo 4K","boxtype":"vusolo4k","ifaces":[{"name":"eth0","mac":"00:1d:ec:01:02:03"}]}}`,
	})

	about, err := c.About(context.Background())
	if err != nil {
		t.Fatalf("About() error = %v", err)
	}
	if about.Info.Brand != "Vu+" || about.Info.Ifaces[0].Mac != "00:1d:ec:01:02:03" {
		t.Errorf("About() = %+v", about.Info)
	}
}

func TestClient_Services(t *testing.T) {
	f, c := newFakeOpenWebif(t, map[string]string{
		"/api/getservices": `{"services":[{"servicename":"Favourites (TV)","servicereference":"1:7:1:0:0:0:0:0:0:0:"}]}`,
		"/api/getservices?sRef=1%3A7%3A1%3A0%3A0%3A0%3A0%3A0%3A0%3A0%3A": `{"services":[
			{"servicename":"-- News --","servicereference":"1:64:0","program":0},
			{"servicename":"BBC One HD","servicereference":"1:0:19:1","program":1}]}`,
	})
	ctx := context.Background()

	bouquets, err := c.Bouquets(ctx)
	if err != nil || len(bouquets) != 1 {
		t.Fatalf("Bouquets() = %v, %v", bouquets, err)
	}
	services, err := c.Services(ctx, bouquets[0].Reference)
	if err != nil {
		t.Fatalf("Services() error = %v (requests %v)", err, f.uris())
	}
	if len(services) != 2 || services[0].Tunable() || !services[1].Tunable() {
		t.Errorf("Services() = %+v", services)
	}
}

func TestClient_Commands(t *testing.T) {
	f, c := newFakeOpenWebif(t, map[string]string{
		"/api/zap?sRef=1%3A0%3A19%3A1": `{"result": true, "message": "Active service is now 'BBC One HD'"}`,
		"/api/vol?set=set50":           `{"result": true, "current": 50, "ismute": false}`,
		"/api/vol?set=mute":            `{"result": true, "current": 50, "ismute": true}`,
		"/api/powerstate?newstate=4":   `{"result": true, "instandby": false}`,
		"/api/powerstate?newstate=5":   `{"result": true, "instandby": true}`,
	})
	ctx := context.Background()

	steps := []struct {
		name string
		call func() error
	}{
		{"zap", func() error { return c.Zap(ctx, "1:0:19:1") }},
		{"volume", func() error { return c.SetVolume(ctx, 50) }},
		{"mute", func() error { return c.ToggleMute(ctx) }},
		{"wakeup", func() error { return c.SetPowerState(ctx, PowerWakeup) }},
		{"standby", func() error { return c.SetPowerState(ctx, PowerStandby) }},
	}
	for _, s := range steps {
		if err := s.call(); err != nil {
			t.Errorf("%s: error = %v", s.name, err)
		}
	}
	if got := len(f.uris()); got != len(steps) {
		t.Errorf("server saw %d requests, want %d", got, len(steps))
	}
}

func TestClient_ErrorKinds(t *testing.T) {
	f, c := newFakeOpenWebif(t, map[string]string{
		"/api/zap?sRef=bad": `{"result": false, "message": "invalid service"}`,
		"/api/statusinfo":   `not json`,
		"/api/about":        `{"error": "busy"}`,
	})
	f.status["/api/about"] = http.StatusServiceUnavailable
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		wantKind entity.Kind
		wantIs   error
	}{
		{"result false", c.Zap(ctx, "bad"), entity.KindCommandFailed, ErrRejected},
		{"decode", func() error { _, err := c.StatusInfo(ctx); return err }(), entity.KindOther, ErrDecode},
		{"http status", func() error { _, err := c.About(ctx); return err }(), entity.KindCommandFailed, ErrHTTPStatus},
		{"not found", c.SetVolume(ctx, 10), entity.KindCommandFailed, ErrHTTPStatus},
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
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClientForURL(url, nil)
	_, err := c.StatusInfo(context.Background())
	if entity.KindOf(err) != entity.KindCannotConnect {
		t.Errorf("StatusInfo() error = %v, want cannot_connect", err)
	}
}

func TestNewClient_BaseURL(t *testing.T) {
	tests := []struct {
		cfg  ClientConfig
		want string
	}{
		{ClientConfig{Host: "10.0.0.9"}, "http://10.0.0.9:80"},
		{ClientConfig{Host: "stb.lan", Port: 8080}, "http://stb.lan:8080"},
		{ClientConfig{Host: "fe80::1"}, "http://[fe80::1]:80"},
	}
	for _, tt := range tests {
		if got := NewClient(tt.cfg).baseURL; got != tt.want {
			t.Errorf("baseURL = %q, want %q", got, tt.want)
		}
	}
}

func TestLiteral_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Literal
	}{
		{`"true"`, "true"},
		{`true`, "true"},
		{`50`, "50"},
		{`"50"`, "50"},
		{`null`, ""},
		{`""`, ""},
	}
	for _, tt := range tests {
		var l Literal
		if err := json.Unmarshal([]byte(tt.in), &l); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.in, err)
			continue
		}
		if l != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, l, tt.want)
		}
	}
}
