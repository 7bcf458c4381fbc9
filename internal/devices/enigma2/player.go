package enigma2

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-av/internal/entity"
)

// Protocol is the protocol name used in topics and state messages.
const Protocol = "enigma2"

// DefaultName is used when no name is configured. A player still carrying it
// after connecting takes its name from the receiver's brand and model.
const DefaultName = "Enigma2 STB"

// Poll literals and derived values.
const (
	noService      = "N/A"
	recordedSource = "Recorded"
	maxVolume      = 100

	// ContentType is the only media content type the player reports.
	ContentType = "music"
)

// MediaState is the player's power state as seen by the host.
type MediaState string

// Media states.
const (
	StateUnknown MediaState = "unknown"
	StateOn      MediaState = "on"
	StateOff     MediaState = "off"
)

// Options configures a Player.
type Options struct {
	ID      string
	Name    string // default "Enigma2 STB"
	Host    string
	Port    int // default 80
	Timeout time.Duration
	Logger  entity.Logger
}

// Player is the Enigma2 device adapter.
//
// It is not safe for concurrent use; the scheduler serialises calls.
type Player struct {
	id       string
	name     string
	uniqueID string
	session  Session
	logger   entity.Logger
	avail    entity.Availability

	// Cached snapshot. Only Update and LoadSources write these.
	power   MediaState
	volume  *float64
	muted   *bool
	source  string
	title   *string
	catalog *Catalog
}

// Ensure Player implements entity.Entity.
var _ entity.Entity = (*Player)(nil)

// NewPlayer creates a Player for opts.Host. No request is made until the
// first Update.
func NewPlayer(opts Options) (*Player, error) {
	if opts.Host == "" {
		return nil, ErrHostRequired
	}
	client := NewClient(ClientConfig{Host: opts.Host, Port: opts.Port, Timeout: opts.Timeout})
	return NewPlayerWithSession(opts, client), nil
}

// NewPlayerWithSession creates a Player over a caller-supplied session.
func NewPlayerWithSession(opts Options, session Session) *Player {
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	id := opts.ID
	if id == "" {
		id = Protocol + "-" + opts.Host
	}
	return &Player{
		id:      id,
		name:    name,
		session: session,
		logger:  entity.OrNop(opts.Logger),
		power:   StateUnknown,
	}
}

// ID implements entity.Entity.
func (p *Player) ID() string { return p.id }

// Name implements entity.Entity.
func (p *Player) Name() string { return p.name }

// Protocol implements entity.Entity.
func (p *Player) Protocol() string { return Protocol }

// UniqueID returns "enigma2<boxtype><mac>", or "" before identity is known.
func (p *Player) UniqueID() string { return p.uniqueID }

// Available implements entity.Entity.
func (p *Player) Available() bool { return p.avail.Available() }

// ConnState returns the adapter's connection state.
func (p *Player) ConnState() entity.ConnState { return p.avail.State() }

// Power returns the cached power state.
func (p *Player) Power() MediaState { return p.power }

// Volume returns the cached volume (0.0-1.0).
func (p *Player) Volume() (float64, bool) {
	if p.volume == nil {
		return 0, false
	}
	return *p.volume, true
}

// Muted returns the cached mute flag.
func (p *Player) Muted() (bool, bool) {
	if p.muted == nil {
		return false, false
	}
	return *p.muted, true
}

// Source returns the current source name.
func (p *Player) Source() string { return p.source }

// Title returns the current programme title.
func (p *Player) Title() (string, bool) {
	if p.title == nil {
		return "", false
	}
	return *p.title, true
}

// Sources returns the selectable source names.
func (p *Player) Sources() []string { return p.catalog.Names() }

// Update polls statusinfo and refreshes the cached snapshot.
//
// Media fields only change while the receiver is on. A CommandFailed reply
// leaves availability alone; any other failure makes the player Unavailable.
func (p *Player) Update(ctx context.Context) (err error) {
	defer entity.Recover("update", &err)

	if !p.avail.Available() {
		if err := p.connect(ctx); err != nil {
			return err
		}
	}

	info, err := p.session.StatusInfo(ctx)
	if err != nil {
		p.avail.Fail(err)
		p.logFailure("status poll failed", err)
		return err
	}

	switch info.InStandby {
	case "true":
		p.power = StateOff
	case "false":
		p.power = StateOn
	default:
		p.power = StateUnknown
	}

	if p.power == StateOn {
		p.applyService(info)
	}

	if p.catalog.Len() == 0 {
		if err := p.LoadSources(ctx); err != nil && entity.KindOf(err) != entity.KindCommandFailed {
			return err
		}
	}

	p.logger.Debug("poll complete", "state", string(p.power), "source", p.source)
	return nil
}

func (p *Player) applyService(info *StatusInfo) {
	if info.CurrServiceName == noService {
		p.source = noService
		p.title = nil
		return
	}

	if info.CurrServiceFilename != "" {
		p.source = recordedSource
	} else {
		p.source = info.CurrServiceStation
	}
	title := info.CurrServiceName
	p.title = &title

	p.volume = nil
	if info.Volume != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(string(info.Volume))); err == nil {
			v := float64(n) / maxVolume
			p.volume = &v
		} else {
			p.logger.Debug("ignoring unparseable volume", "volume", string(info.Volume))
		}
	}

	p.muted = nil
	if info.Muted != "" {
		m := info.Muted == "true"
		p.muted = &m
	}
}

// connect establishes identity through /api/about and loads the catalogue.
// A receiver that answers about with an error status is still reachable.
func (p *Player) connect(ctx context.Context) error {
	about, err := p.session.About(ctx)
	switch {
	case err == nil:
		p.applyIdentity(about)
	case entity.KindOf(err) == entity.KindCommandFailed:
		p.logger.Debug("about unavailable, keeping configured identity", "error", err)
	default:
		p.avail.MarkUnavailable(err)
		p.logFailure("connect failed", err)
		return err
	}

	p.avail.MarkConnected()
	p.logger.Info("connected", "name", p.name, "unique_id", p.uniqueID)

	if err := p.LoadSources(ctx); err != nil && entity.KindOf(err) != entity.KindCommandFailed {
		return err
	}
	return nil
}

func (p *Player) applyIdentity(about *About) {
	info := about.Info
	if info.Boxtype != "" && len(info.Ifaces) > 0 {
		p.uniqueID = "enigma2" + info.Boxtype + strings.ReplaceAll(info.Ifaces[0].Mac, ":", "")
	}
	if p.name == DefaultName && info.Brand != "" {
		p.name = strings.TrimSpace(info.Brand + " " + info.Model)
	}
}

// LoadSources rebuilds the catalogue from the first bouquet. On failure the
// previous catalogue is kept.
func (p *Player) LoadSources(ctx context.Context) error {
	bouquets, err := p.session.Bouquets(ctx)
	if err == nil && len(bouquets) == 0 {
		err = entity.CommandFailed("api/getservices", ErrNoBouquets)
	}
	if err != nil {
		p.avail.Fail(err)
		p.logFailure("loading bouquets failed", err)
		return err
	}

	services, err := p.session.Services(ctx, bouquets[0].Reference)
	if err != nil {
		p.avail.Fail(err)
		p.logFailure("loading services failed", err)
		return err
	}

	p.catalog = BuildCatalog(services)
	p.logger.Debug("source catalogue loaded", "bouquet", bouquets[0].Name, "sources", p.catalog.Len())
	return nil
}

// TurnOn wakes the receiver from standby.
func (p *Player) TurnOn(ctx context.Context) error {
	return p.finish(entity.CmdTurnOn, p.session.SetPowerState(ctx, PowerWakeup))
}

// TurnOff puts the receiver into standby.
func (p *Player) TurnOff(ctx context.Context) error {
	return p.finish(entity.CmdTurnOff, p.session.SetPowerState(ctx, PowerStandby))
}

// SelectSource zaps to a source from the catalogue. An unknown name fails
// without contacting the receiver.
func (p *Player) SelectSource(ctx context.Context, name string) error {
	ref, ok := p.catalog.Ref(name)
	if !ok {
		return fmt.Errorf("%w: %w: %q", entity.ErrInvalidParameters, ErrUnknownSource, name)
	}
	return p.finish(entity.CmdSelectSource, p.session.Zap(ctx, ref))
}

// SetVolume sets the volume from a 0.0-1.0 level.
func (p *Player) SetVolume(ctx context.Context, level float64) error {
	return p.finish(entity.CmdSetVolume, p.session.SetVolume(ctx, int(math.Round(level*maxVolume))))
}

// Mute sets the mute state. OpenWebif only toggles, so the toggle is skipped
// when the last poll already reported the requested state.
func (p *Player) Mute(ctx context.Context, mute bool) error {
	if p.muted != nil && *p.muted == mute {
		p.logger.Debug("mute already in requested state", "mute", mute)
		return nil
	}
	return p.finish(entity.CmdMute, p.session.ToggleMute(ctx))
}

// finish applies the command error policy: CommandFailed is swallowed, any
// other failure is logged, applied to availability and returned.
func (p *Player) finish(op string, err error) error {
	if err == nil {
		return nil
	}
	if entity.KindOf(err) == entity.KindCommandFailed {
		p.logger.Debug("command rejected", "command", op, "error", err)
		return nil
	}
	p.avail.Fail(err)
	p.logFailure("command failed", err, "command", op)
	return err
}

// Execute implements entity.Entity.
func (p *Player) Execute(ctx context.Context, cmd entity.Command) (err error) {
	defer entity.Recover(cmd.Name, &err)

	switch cmd.Name {
	case entity.CmdTurnOn:
		return p.TurnOn(ctx)

	case entity.CmdTurnOff:
		return p.TurnOff(ctx)

	case entity.CmdSelectSource:
		source, err := cmd.Text("source")
		if err != nil {
			return err
		}
		return p.SelectSource(ctx, source)

	case entity.CmdSetVolume:
		level, err := cmd.Float("volume")
		if err != nil {
			return err
		}
		return p.SetVolume(ctx, level)

	case entity.CmdMute:
		mute, err := cmd.Bool("mute")
		if err != nil {
			return err
		}
		return p.Mute(ctx, mute)

	default:
		return entity.Unsupported(Protocol, cmd)
	}
}

// Close drops idle connections and marks the player Disconnected.
func (p *Player) Close(context.Context) error {
	err := p.session.Close()
	p.avail.MarkDisconnected()
	p.logger.Info("disconnected")
	return err
}

// State implements entity.Entity.
func (p *Player) State() map[string]any {
	state := map[string]any{
		"available":          p.avail.Available(),
		"connection":         p.avail.State().String(),
		"state":              string(p.power),
		"volume_level":       nil,
		"is_volume_muted":    nil,
		"source":             nil,
		"source_list":        p.catalog.Names(),
		"media_title":        nil,
		"media_artist":       nil,
		"media_content_type": ContentType,
	}
	if p.volume != nil {
		state["volume_level"] = *p.volume
	}
	if p.muted != nil {
		state["is_volume_muted"] = *p.muted
	}
	if p.source != "" {
		state["source"] = p.source
		state["media_artist"] = p.source
	}
	if p.title != nil {
		state["media_title"] = *p.title
	}
	if p.uniqueID != "" {
		state["unique_id"] = p.uniqueID
	}
	return state
}

func (p *Player) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err, "kind", entity.KindOf(err).String())
	switch entity.KindOf(err) {
	case entity.KindCommandFailed:
		p.logger.Debug(msg, args...)
	case entity.KindCannotConnect:
		p.logger.Warn(msg, args...)
	default:
		p.logger.Error(msg, args...)
	}
}
