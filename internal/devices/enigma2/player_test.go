package enigma2

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/nerrad567/gray-logic-av/internal/entity"
)

type fakeSession struct {
	about    *About
	info     *StatusInfo
	bouquets []Service
	services []Service

	fail  map[string]error
	calls []string

	zapped []string
	volume []int
	power  []PowerState
}

func newFakeSession() *fakeSession {
	about := &About{}
	about.Info.Brand = "Vu+"
	about.Info.Model = "Solo 4K"
	about.Info.Boxtype = "vusolo4k"
	about.Info.Ifaces = append(about.Info.Ifaces, struct {
		Name string `json:"name"`
		Mac  string `json:"mac"`
	}{Name: "eth0", Mac: "00:1d:ec:01:02:03"})

	return &fakeSession{
		about: about,
		info: &StatusInfo{
			InStandby:          "false",
			CurrServiceName:    "Evening News",
			CurrServiceStation: "BBC One HD",
			Volume:             "40",
			Muted:              "false",
		},
		bouquets: []Service{{Name: "Favourites (TV)", Reference: "bouquet-1"}},
		services: []Service{
			{Name: "-- News --", Reference: "1:64:0", Program: "0"},
			{Name: "BBC One HD", Reference: "1:0:19:1", Program: "1"},
			{Name: "ITV HD", Reference: "1:0:19:2", Program: "2"},
		},
		fail: map[string]error{},
	}
}

func (f *fakeSession) call(name string) error {
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeSession) About(context.Context) (*About, error) {
	if err := f.call("about"); err != nil {
		return nil, err
	}
	return f.about, nil
}

func (f *fakeSession) StatusInfo(context.Context) (*StatusInfo, error) {
	if err := f.call("statusinfo"); err != nil {
		return nil, err
	}
	info := *f.info
	return &info, nil
}

func (f *fakeSession) Bouquets(context.Context) ([]Service, error) {
	if err := f.call("bouquets"); err != nil {
		return nil, err
	}
	return f.bouquets, nil
}

func (f *fakeSession) Services(_ context.Context, ref string) ([]Service, error) {
	if err := f.call("services:" + ref); err != nil {
		return nil, err
	}
	return f.services, nil
}

func (f *fakeSession) Zap(_ context.Context, ref string) error {
	f.zapped = append(f.zapped, ref)
	return f.call("zap")
}

func (f *fakeSession) SetVolume(_ context.Context, level int) error {
	f.volume = append(f.volume, level)
	return f.call("vol")
}

func (f *fakeSession) ToggleMute(context.Context) error { return f.call("mute") }

func (f *fakeSession) SetPowerState(_ context.Context, s PowerState) error {
	f.power = append(f.power, s)
	return f.call("powerstate")
}

func (f *fakeSession) Close() error { return f.call("close") }

func (f *fakeSession) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func newTestPlayer(name string) (*Player, *fakeSession) {
	s := newFakeSession()
	return NewPlayerWithSession(Options{ID: "stb", Name: name, Host: "10.0.0.9"}, s), s
}

func mustUpdate(t *testing.T, p *Player) {
	t.Helper()
	if err := p.Update(context.Background()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

func TestPlayer_UpdateLiveService(t *testing.T) {
	p, _ := newTestPlayer("")
	mustUpdate(t, p)

	if !p.Available() {
		t.Fatalf("ConnState() = %v, want connected", p.ConnState())
	}
	if p.Power() != StateOn {
		t.Errorf("Power() = %v, want on", p.Power())
	}
	if p.Source() != "BBC One HD" {
		t.Errorf("Source() = %q, want %q", p.Source(), "BBC One HD")
	}
	if title, ok := p.Title(); !ok || title != "Evening News" {
		t.Errorf("Title() = %q, %v", title, ok)
	}
	if v, ok := p.Volume(); !ok || v != 0.4 {
		t.Errorf("Volume() = %v, %v, want 0.4", v, ok)
	}
	if m, ok := p.Muted(); !ok || m {
		t.Errorf("Muted() = %v, %v, want false", m, ok)
	}

	state := p.State()
	if state["media_artist"] != "BBC One HD" || state["media_content_type"] != ContentType {
		t.Errorf("State() = %v", state)
	}
}

func TestPlayer_Identity(t *testing.T) {
	t.Run("default name replaced", func(t *testing.T) {
		p, _ := newTestPlayer("")
		mustUpdate(t, p)
		if p.Name() != "Vu+ Solo 4K" {
			t.Errorf("Name() = %q, want %q", p.Name(), "Vu+ Solo 4K")
		}
		if p.UniqueID() != "enigma2vusolo4k001dec010203" {
			t.Errorf("UniqueID() = %q", p.UniqueID())
		}
	})

	t.Run("configured name kept", func(t *testing.T) {
		p, _ := newTestPlayer("Lounge")
		mustUpdate(t, p)
		if p.Name() != "Lounge" {
			t.Errorf("Name() = %q, want %q", p.Name(), "Lounge")
		}
	})

	t.Run("about rejected still connects", func(t *testing.T) {
		p, s := newTestPlayer("")
		s.fail["about"] = entity.CommandFailed("api/about", ErrHTTPStatus)
		mustUpdate(t, p)
		if !p.Available() || p.Name() != DefaultName {
			t.Errorf("Available()=%v Name()=%q", p.Available(), p.Name())
		}
	})
}

func TestPlayer_RecordedSource(t *testing.T) {
	p, s := newTestPlayer("")
	s.info.CurrServiceFilename = "/media/hdd/movie/news.ts"
	mustUpdate(t, p)

	if p.Source() != "Recorded" {
		t.Errorf("Source() = %q, want Recorded", p.Source())
	}
}

func TestPlayer_NoService(t *testing.T) {
	p, s := newTestPlayer("")
	mustUpdate(t, p)

	s.info.CurrServiceName = "N/A"
	s.info.Volume = "90"
	mustUpdate(t, p)

	if p.Source() != "N/A" {
		t.Errorf("Source() = %q, want N/A", p.Source())
	}
	if _, ok := p.Title(); ok {
		t.Error("Title() present with no service")
	}
	if v, _ := p.Volume(); v != 0.4 {
		t.Errorf("Volume() = %v, want cached 0.4", v)
	}
}

func TestPlayer_Standby(t *testing.T) {
	p, s := newTestPlayer("")
	mustUpdate(t, p)

	s.info.InStandby = "true"
	s.info.CurrServiceStation = "ITV HD"
	mustUpdate(t, p)

	if p.Power() != StateOff {
		t.Errorf("Power() = %v, want off", p.Power())
	}
	if p.Source() != "BBC One HD" {
		t.Errorf("Source() = %q, want last known source", p.Source())
	}

	s.info.InStandby = "maybe"
	mustUpdate(t, p)
	if p.Power() != StateUnknown {
		t.Errorf("Power() = %v, want unknown", p.Power())
	}
}

func TestPlayer_EmptyVolumeAndMute(t *testing.T) {
	p, s := newTestPlayer("")
	s.info.Volume = ""
	s.info.Muted = ""
	mustUpdate(t, p)

	if _, ok := p.Volume(); ok {
		t.Error("Volume() present for empty literal")
	}
	if _, ok := p.Muted(); ok {
		t.Error("Muted() present for empty literal")
	}
}

func TestPlayer_CatalogExcludesNonTunable(t *testing.T) {
	p, s := newTestPlayer("")
	mustUpdate(t, p)

	want := []string{"BBC One HD", "ITV HD"}
	if got := p.Sources(); !reflect.DeepEqual(got, want) {
		t.Errorf("Sources() = %v, want %v", got, want)
	}
	if s.count("services:bouquet-1") != 1 {
		t.Errorf("services loaded %d times, want 1", s.count("services:bouquet-1"))
	}
}

func TestPlayer_CatalogRebuiltWholesale(t *testing.T) {
	p, s := newTestPlayer("")
	mustUpdate(t, p)

	s.services = []Service{{Name: "Channel 4 HD", Reference: "1:0:19:4", Program: "4"}}
	if err := p.LoadSources(context.Background()); err != nil {
		t.Fatalf("LoadSources() error = %v", err)
	}
	if got := p.Sources(); !reflect.DeepEqual(got, []string{"Channel 4 HD"}) {
		t.Errorf("Sources() = %v", got)
	}

	s.fail["bouquets"] = entity.CannotConnect("api/getservices", errors.New("timeout"))
	if err := p.LoadSources(context.Background()); err == nil {
		t.Fatal("LoadSources() error = nil, want failure")
	}
	if got := p.Sources(); !reflect.DeepEqual(got, []string{"Channel 4 HD"}) {
		t.Errorf("Sources() after failed load = %v, want previous catalogue", got)
	}
}

func TestPlayer_PollFailures(t *testing.T) {
	t.Run("cannot connect marks unavailable", func(t *testing.T) {
		p, s := newTestPlayer("")
		mustUpdate(t, p)
		s.fail["statusinfo"] = entity.CannotConnect("api/statusinfo", errors.New("no route"))

		if err := p.Update(context.Background()); err == nil {
			t.Fatal("Update() error = nil")
		}
		if p.ConnState() != entity.Unavailable {
			t.Errorf("ConnState() = %v, want unavailable", p.ConnState())
		}
		if p.Source() != "BBC One HD" {
			t.Errorf("cache changed after failed poll: source %q", p.Source())
		}

		s.fail["statusinfo"] = nil
		mustUpdate(t, p)
		if !p.Available() || s.count("about") != 2 {
			t.Errorf("reconnect: available=%v about calls=%d", p.Available(), s.count("about"))
		}
	})

	t.Run("command failed keeps availability", func(t *testing.T) {
		p, s := newTestPlayer("")
		mustUpdate(t, p)
		s.fail["statusinfo"] = entity.CommandFailed("api/statusinfo", ErrHTTPStatus)

		if err := p.Update(context.Background()); err == nil {
			t.Fatal("Update() error = nil")
		}
		if !p.Available() {
			t.Errorf("ConnState() = %v, want connected", p.ConnState())
		}
	})

	t.Run("connect failure skips status", func(t *testing.T) {
		p, s := newTestPlayer("")
		s.fail["about"] = entity.CannotConnect("api/about", errors.New("refused"))

		if err := p.Update(context.Background()); err == nil {
			t.Fatal("Update() error = nil")
		}
		if s.count("statusinfo") != 0 {
			t.Error("statusinfo called after failed connect")
		}
		if p.ConnState() != entity.Disconnected {
			t.Errorf("ConnState() = %v, want disconnected", p.ConnState())
		}
	})
}

func TestPlayer_Commands(t *testing.T) {
	p, s := newTestPlayer("")
	mustUpdate(t, p)
	ctx := context.Background()

	if err := p.TurnOff(ctx); err != nil {
		t.Errorf("TurnOff() error = %v", err)
	}
	if err := p.TurnOn(ctx); err != nil {
		t.Errorf("TurnOn() error = %v", err)
	}
	if !reflect.DeepEqual(s.power, []PowerState{PowerStandby, PowerWakeup}) {
		t.Errorf("power states = %v", s.power)
	}

	if err := p.SelectSource(ctx, "ITV HD"); err != nil {
		t.Errorf("SelectSource() error = %v", err)
	}
	if !reflect.DeepEqual(s.zapped, []string{"1:0:19:2"}) {
		t.Errorf("zapped = %v", s.zapped)
	}

	if err := p.SetVolume(ctx, 0.555); err != nil {
		t.Errorf("SetVolume() error = %v", err)
	}
	if !reflect.DeepEqual(s.volume, []int{56}) {
		t.Errorf("volume calls = %v, want [56]", s.volume)
	}

	// Already unmuted: no toggle.
	if err := p.Mute(ctx, false); err != nil {
		t.Errorf("Mute(false) error = %v", err)
	}
	if err := p.Mute(ctx, true); err != nil {
		t.Errorf("Mute(true) error = %v", err)
	}
	if s.count("mute") != 1 {
		t.Errorf("mute toggled %d times, want 1", s.count("mute"))
	}

	// No optimistic update.
	if p.Power() != StateOn || p.Source() != "BBC One HD" {
		t.Errorf("cache changed by commands: power=%v source=%q", p.Power(), p.Source())
	}
}

func TestPlayer_CommandErrors(t *testing.T) {
	p, s := newTestPlayer("")
	mustUpdate(t, p)
	ctx := context.Background()

	err := p.SelectSource(ctx, "Nonexistent")
	if !errors.Is(err, ErrUnknownSource) || !errors.Is(err, entity.ErrInvalidParameters) {
		t.Errorf("SelectSource(unknown) error = %v", err)
	}
	if len(s.zapped) != 0 {
		t.Error("zap sent for unknown source")
	}

	s.fail["zap"] = entity.CommandFailed("api/zap", ErrRejected)
	if err := p.SelectSource(ctx, "ITV HD"); err != nil {
		t.Errorf("CommandFailed not swallowed: %v", err)
	}
	if !p.Available() {
		t.Error("CommandFailed changed availability")
	}

	s.fail["powerstate"] = entity.CannotConnect("api/powerstate", errors.New("reset"))
	if err := p.TurnOn(ctx); entity.KindOf(err) != entity.KindCannotConnect {
		t.Errorf("TurnOn() error = %v, want cannot_connect", err)
	}
	if p.ConnState() != entity.Unavailable {
		t.Errorf("ConnState() = %v, want unavailable", p.ConnState())
	}

	// Commands never restore availability.
	s.fail["powerstate"] = nil
	if err := p.TurnOn(ctx); err != nil {
		t.Errorf("TurnOn() error = %v", err)
	}
	if p.ConnState() != entity.Unavailable {
		t.Errorf("ConnState() after command = %v, want unavailable", p.ConnState())
	}
}

func TestPlayer_Execute(t *testing.T) {
	p, s := newTestPlayer("")
	mustUpdate(t, p)
	ctx := context.Background()

	cmds := []entity.Command{
		{Name: entity.CmdSelectSource, Params: map[string]any{"source": "BBC One HD"}},
		{Name: entity.CmdSetVolume, Params: map[string]any{"volume": 0.2}},
		{Name: entity.CmdMute, Params: map[string]any{"mute": true}},
		{Name: entity.CmdTurnOff},
	}
	for _, cmd := range cmds {
		if err := p.Execute(ctx, cmd); err != nil {
			t.Errorf("Execute(%s) error = %v", cmd.Name, err)
		}
	}
	if len(s.zapped) != 1 || len(s.volume) != 1 || s.count("mute") != 1 || len(s.power) != 1 {
		t.Errorf("calls = %v", s.calls)
	}

	if err := p.Execute(ctx, entity.Command{Name: entity.CmdSetVolume}); !errors.Is(err, entity.ErrInvalidParameters) {
		t.Errorf("missing volume error = %v", err)
	}
	if err := p.Execute(ctx, entity.Command{Name: entity.CmdSetBrightness}); !errors.Is(err, entity.ErrUnsupportedCommand) {
		t.Errorf("unsupported error = %v", err)
	}
}

func TestPlayer_Close(t *testing.T) {
	p, s := newTestPlayer("")
	mustUpdate(t, p)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.count("close") != 1 || p.ConnState() != entity.Disconnected {
		t.Errorf("close calls=%d state=%v", s.count("close"), p.ConnState())
	}
}

func TestBuildCatalog(t *testing.T) {
	c := BuildCatalog([]Service{
		{Name: "A", Reference: "ref-a", Program: "0"},
		{Name: "B", Reference: "ref-b", Program: "1"},
		{Name: "C", Reference: "ref-c"},
	})
	if got := c.Names(); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("Names() = %v, want [B]", got)
	}
	if ref, ok := c.Ref("B"); !ok || ref != "ref-b" {
		t.Errorf("Ref(B) = %q, %v", ref, ok)
	}
	if _, ok := c.Ref("A"); ok {
		t.Error("Ref(A) found a non-tunable entry")
	}

	var empty *Catalog
	if empty.Len() != 0 || empty.Names() != nil {
		t.Error("nil catalogue not empty")
	}
}

func TestNewPlayer(t *testing.T) {
	if _, err := NewPlayer(Options{}); !errors.Is(err, ErrHostRequired) {
		t.Errorf("NewPlayer() error = %v, want ErrHostRequired", err)
	}
	p, err := NewPlayer(Options{Host: "10.0.0.9"})
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	if p.Name() != DefaultName || p.ID() != "enigma2-10.0.0.9" || p.Power() != StateUnknown {
		t.Errorf("defaults: name=%q id=%q power=%v", p.Name(), p.ID(), p.Power())
	}
}
