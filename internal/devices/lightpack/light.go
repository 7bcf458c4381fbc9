package lightpack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/mod/semver"

	"github.com/nerrad567/gray-logic-av/internal/entity"
)

// Protocol is the protocol name used in topics and state messages.
const Protocol = "lightpack"

// DefaultName is used when no name is configured.
const DefaultName = "Lightpack"

// Modes (the effect vocabulary).
const (
	ModeAmbilight = "ambilight"
	ModeMoodlamp  = "moodlamp"
	ModeSoundviz  = "soundviz"
)

// Feature names reported in State()["supported_features"].
const (
	FeatureEffect     = "effect"
	FeatureBrightness = "brightness"
	FeatureColour     = "color"
)

// API versions that unlock features.
const (
	apiBrightness = "1.5"
	apiSoundviz   = "2.0"
	apiColour     = "2.2"
)

const defaultIcon = "mdi:television"

var modeIcons = map[string]string{
	ModeAmbilight: "mdi:video-input-hdmi",
	ModeMoodlamp:  "mdi:lava-lamp",
	ModeSoundviz:  "mdi:music-box-outline",
}

// Status literals reported by getstatus.
const (
	statusOn  = "on"
	statusOff = "off"
)

// Options configures a Light.
type Options struct {
	ID        string
	Name      string // default "Lightpack"
	Host      string
	Port      int // default 3636
	APIKey    string
	IOTimeout time.Duration
	Logger    entity.Logger
}

// StateOptions are the optional parts of a turn_on or set_state request.
// Steps run in field order; a nil or empty field is skipped.
type StateOptions struct {
	Effect     string // empty: leave unchanged
	Brightness *int   // host scale 0-255
	Colour     *RGB
	Zones      []int // zero-based; nil: every zone
	Power      *bool
}

// Light is the Lightpack device adapter.
//
// It is not safe for concurrent use; the scheduler serialises calls.
type Light struct {
	id      string
	name    string
	update  Session
	control Session
	logger  entity.Logger

	avail      entity.Availability
	locked     bool
	apiVersion string

	// Cached snapshot. Only Update writes these.
	power      *bool
	mode       string
	brightness *int
	profile    string
	profiles   []string
	zones      *int
	colour     *RGB  // average over all LEDs; API 2.2+
	persist    *bool // API 2.2+
}

// Ensure Light implements entity.Entity.
var _ entity.Entity = (*Light)(nil)

// NewLight creates a Light with two Prismatik sessions to opts.Host.
// No connection is made until the first Update.
func NewLight(opts Options) (*Light, error) {
	if opts.Host == "" {
		return nil, ErrHostRequired
	}
	cfg := ClientConfig{
		Host:      opts.Host,
		Port:      opts.Port,
		APIKey:    opts.APIKey,
		IOTimeout: opts.IOTimeout,
	}
	return NewLightWithSessions(opts, NewClient(cfg), NewClient(cfg)), nil
}

// NewLightWithSessions creates a Light over caller-supplied sessions.
func NewLightWithSessions(opts Options, update, control Session) *Light {
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	id := opts.ID
	if id == "" {
		id = Protocol + "-" + opts.Host
	}
	return &Light{
		id:         id,
		name:       name,
		update:     update,
		control:    control,
		logger:     entity.OrNop(opts.Logger),
		apiVersion: DefaultAPIVersion,
	}
}

// ID implements entity.Entity.
func (l *Light) ID() string { return l.id }

// Name implements entity.Entity.
func (l *Light) Name() string { return l.name }

// Protocol implements entity.Entity.
func (l *Light) Protocol() string { return Protocol }

// Available implements entity.Entity.
func (l *Light) Available() bool { return l.avail.Available() }

// ConnState returns the adapter's connection state.
func (l *Light) ConnState() entity.ConnState { return l.avail.State() }

// IsOn returns the power state, or nil when it is unknown or the adapter is
// unavailable.
func (l *Light) IsOn() *bool {
	if !l.avail.Available() {
		return nil
	}
	return l.power
}

// Brightness returns the cached brightness on the host scale (0-255).
func (l *Light) Brightness() (int, bool) {
	if l.brightness == nil {
		return 0, false
	}
	return *l.brightness, true
}

// Effect returns the current mode, or "" when unknown.
func (l *Light) Effect() string { return l.mode }

// EffectList returns the supported modes for the connected API version.
func (l *Light) EffectList() []string {
	effects := []string{ModeMoodlamp, ModeAmbilight}
	if apiAtLeast(l.apiVersion, apiSoundviz) {
		effects = append(effects, ModeSoundviz)
	}
	return effects
}

// SupportedFeatures lists what the connected API version can do.
func (l *Light) SupportedFeatures() []string {
	features := []string{FeatureEffect}
	if apiAtLeast(l.apiVersion, apiBrightness) {
		features = append(features, FeatureBrightness)
	}
	if apiAtLeast(l.apiVersion, apiColour) {
		features = append(features, FeatureColour)
	}
	return features
}

// Icon is the frontend icon for the current mode.
func (l *Light) Icon() string {
	if icon, ok := modeIcons[l.mode]; ok {
		return icon
	}
	return defaultIcon
}

// HS returns the polled average colour as hue (0-360) and saturation
// (0-100), or false when it has not been read.
func (l *Light) HS() ([2]float64, bool) {
	if l.colour == nil {
		return [2]float64{}, false
	}
	return rgbToHS(*l.colour), true
}

// APIVersion returns the Prismatik API version seen on the last connect.
func (l *Light) APIVersion() string { return l.apiVersion }

// Update polls the device and refreshes the cached snapshot.
//
// When not Connected it reconnects first and returns the connect error on
// failure. A status literal other than "on"/"off" makes the adapter
// Unavailable and leaves the cached power untouched.
func (l *Light) Update(ctx context.Context) (err error) {
	defer entity.Recover("update", &err)

	if !l.avail.Available() {
		if err := l.connect(ctx); err != nil {
			return err
		}
	}

	status, err := l.update.GetStatus(ctx)
	if err != nil {
		l.avail.MarkUnavailable(err)
		l.logFailure("status poll failed", err)
		return err
	}

	switch status {
	case statusOn:
		l.power = boolPtr(true)
	case statusOff:
		l.power = boolPtr(false)
	default:
		err := entity.Other("getstatus", fmt.Errorf("%w: status %q", ErrUnexpectedReply, status))
		l.avail.MarkUnavailable(err)
		l.logger.Warn("device reported unusable status", "status", status)
		return err
	}

	if mode, err := l.update.GetMode(ctx); err == nil {
		l.mode = mode
	} else if l.fatal(err) {
		return err
	}

	if native, err := l.update.GetBrightness(ctx); err == nil {
		l.brightness = intPtr(entity.ToPlatform(native))
	} else if l.fatal(err) {
		return err
	}

	if profile, err := l.update.GetProfile(ctx); err == nil {
		l.profile = profile
	} else if l.fatal(err) {
		return err
	}

	if l.profiles == nil {
		if profiles, err := l.update.GetProfiles(ctx); err == nil {
			l.profiles = profiles
		} else if l.fatal(err) {
			return err
		}
	}

	if l.zones == nil {
		if n, err := l.update.GetCountLeds(ctx); err == nil {
			l.zones = intPtr(n)
		} else if l.fatal(err) {
			return err
		}
	}

	if apiAtLeast(l.apiVersion, apiColour) {
		if colours, err := l.update.GetColours(ctx); err == nil {
			l.colour = averageColour(colours)
		} else if l.fatal(err) {
			return err
		}
		if on, err := l.update.GetPersistence(ctx); err == nil {
			l.persist = boolPtr(on)
		} else if l.fatal(err) {
			return err
		}
	}

	l.logger.Debug("poll complete", "on", status, "mode", l.mode, "brightness", derefInt(l.brightness))
	return nil
}

// connect opens both sessions. Only Update calls it, so only a poll can
// return the adapter to Connected.
func (l *Light) connect(ctx context.Context) error {
	if err := l.update.Connect(ctx); err != nil {
		l.avail.MarkUnavailable(err)
		l.logFailure("connect failed", err)
		return err
	}
	if err := l.control.Connect(ctx); err != nil {
		_ = l.update.Close()
		l.avail.MarkUnavailable(err)
		l.logFailure("connect failed", err)
		return err
	}

	// A fresh control session holds no lock.
	l.locked = false
	l.apiVersion = l.update.APIVersion()
	l.profiles = nil
	l.zones = nil
	l.colour = nil
	l.persist = nil

	l.avail.MarkConnected()
	l.logger.Info("connected", "api_version", l.apiVersion)
	return nil
}

// fatal reports whether err should abort the poll. CommandFailed is
// swallowed and the cached field keeps its previous value.
func (l *Light) fatal(err error) bool {
	if entity.KindOf(err) == entity.KindCommandFailed {
		l.logger.Debug("device rejected read", "error", err)
		return false
	}
	l.avail.Fail(err)
	l.logFailure("poll failed", err)
	return true
}

// TurnOn applies the optional effect, brightness and colour, then switches
// on. Every step is attempted even if an earlier one fails.
func (l *Light) TurnOn(ctx context.Context, opts StateOptions) error {
	opts.Power = boolPtr(true)
	return l.bracket(ctx, entity.CmdTurnOn, func(step func(error)) {
		l.applyState(ctx, step, opts)
	})
}

// SetState applies the given fields and leaves power alone unless
// opts.Power is set.
func (l *Light) SetState(ctx context.Context, opts StateOptions) error {
	return l.bracket(ctx, entity.CmdSetState, func(step func(error)) {
		l.applyState(ctx, step, opts)
	})
}

// TurnOff switches the LEDs off.
func (l *Light) TurnOff(ctx context.Context) error {
	return l.bracket(ctx, entity.CmdTurnOff, func(step func(error)) {
		step(l.control.TurnOff(ctx))
	})
}

// SetBrightness sets brightness on the host scale (0-255).
func (l *Light) SetBrightness(ctx context.Context, brightness int) error {
	return l.bracket(ctx, entity.CmdSetBrightness, func(step func(error)) {
		step(l.control.SetBrightness(ctx, entity.ToNative(brightness)))
	})
}

// SetEffect activates the named effect as a Prismatik profile.
func (l *Light) SetEffect(ctx context.Context, effect string) error {
	return l.bracket(ctx, entity.CmdSetEffect, func(step func(error)) {
		l.applyEffect(ctx, step, effect)
	})
}

// SetColour paints every zone, or only the listed ones, and makes the
// colour persist past unlock.
func (l *Light) SetColour(ctx context.Context, colour RGB, zones []int) error {
	return l.bracket(ctx, "set_color", func(step func(error)) {
		l.applyColour(ctx, step, colour, zones)
	})
}

func (l *Light) applyState(ctx context.Context, step func(error), opts StateOptions) {
	if opts.Effect != "" {
		l.applyEffect(ctx, step, opts.Effect)
	}
	if opts.Brightness != nil {
		step(l.control.SetBrightness(ctx, entity.ToNative(*opts.Brightness)))
	}
	if opts.Colour != nil {
		l.applyColour(ctx, step, *opts.Colour, opts.Zones)
	}
	switch {
	case opts.Power == nil:
	case *opts.Power:
		step(l.control.TurnOn(ctx))
	default:
		step(l.control.TurnOff(ctx))
	}
}

// applyEffect switches profile. A profile shows its own colours only once
// persistence is off, so it is cleared when set.
func (l *Light) applyEffect(ctx context.Context, step func(error), effect string) {
	step(l.control.SetProfile(ctx, effect))
	if !apiAtLeast(l.apiVersion, apiColour) {
		return
	}
	on, err := l.control.GetPersistence(ctx)
	step(err)
	if err == nil && on {
		step(l.control.SetPersistence(ctx, false))
	}
}

func (l *Light) applyColour(ctx context.Context, step func(error), colour RGB, zones []int) {
	step(l.control.SetPersistence(ctx, true))

	count, err := l.zoneCount(ctx)
	if err != nil {
		step(err)
		return
	}

	targets := make(map[int]RGB)
	if zones == nil {
		for z := range count {
			targets[z] = colour
		}
	} else {
		dropped := 0
		for _, z := range zones {
			if z < 0 || z >= count {
				dropped++
				continue
			}
			targets[z] = colour
		}
		if dropped > 0 {
			l.logger.Warn("zones out of range dropped", "zones", count, "dropped", dropped)
		}
	}
	if len(targets) == 0 {
		return
	}
	step(l.control.SetColours(ctx, targets))
}

// zoneCount uses the polled LED count, asking the device only before the
// first successful poll.
func (l *Light) zoneCount(ctx context.Context) (int, error) {
	if l.zones != nil {
		return *l.zones, nil
	}
	return l.control.GetCountLeds(ctx)
}

// bracket runs steps between lock and unlock. CommandFailed results are
// logged and swallowed; the first other failure is returned and applied to
// availability. The cache is not touched.
//
// Lock and unlock are sent for every command. A rejected lock (busy) still
// runs the body, as Prismatik answers each step itself.
func (l *Light) bracket(ctx context.Context, op string, body func(step func(error))) (err error) {
	defer entity.Recover(op, &err)

	var first error
	step := func(stepErr error) {
		if stepErr == nil {
			return
		}
		if entity.KindOf(stepErr) == entity.KindCommandFailed {
			l.logger.Debug("command step rejected", "command", op, "error", stepErr)
			return
		}
		if first == nil {
			first = stepErr
		}
	}

	lockErr := l.control.Lock(ctx)
	if lockErr == nil {
		l.locked = true
	}
	step(lockErr)

	body(step)

	unlockErr := l.control.Unlock(ctx)
	l.noteUnlock(unlockErr)
	step(unlockErr)

	if first != nil {
		l.avail.Fail(first)
		l.logFailure("command failed", first, "command", op)
	}
	return first
}

// noteUnlock records the outcome of an unlock. Any reply from the device,
// including "not locked", means this session no longer holds the lock; only
// a lost transport leaves it in doubt.
func (l *Light) noteUnlock(err error) {
	if err == nil || entity.KindOf(err) != entity.KindCannotConnect {
		l.locked = false
	}
}

// Execute implements entity.Entity.
func (l *Light) Execute(ctx context.Context, cmd entity.Command) error {
	switch cmd.Name {
	case entity.CmdTurnOn:
		opts, err := stateOptions(cmd)
		if err != nil {
			return err
		}
		return l.TurnOn(ctx, opts)

	case entity.CmdSetState:
		opts, err := stateOptions(cmd)
		if err != nil {
			return err
		}
		if cmd.Has("power") {
			on, err := cmd.Bool("power")
			if err != nil {
				return err
			}
			opts.Power = &on
		}
		return l.SetState(ctx, opts)

	case entity.CmdTurnOff:
		return l.TurnOff(ctx)

	case entity.CmdSetBrightness:
		b, err := cmd.Int("brightness")
		if err != nil {
			return err
		}
		return l.SetBrightness(ctx, b)

	case entity.CmdSetEffect:
		effect, err := cmd.Text("effect")
		if err != nil {
			return err
		}
		return l.SetEffect(ctx, effect)

	default:
		return entity.Unsupported(Protocol, cmd)
	}
}

// Close hands the device back if this adapter holds the lock (persistence
// off, then unlock) and closes both sessions.
func (l *Light) Close(ctx context.Context) error {
	if l.locked {
		if apiAtLeast(l.apiVersion, apiColour) {
			if err := l.control.SetPersistence(ctx, false); err != nil {
				l.logger.Debug("unpersist on close failed", "error", err)
			}
		}
		if err := l.control.Unlock(ctx); err != nil {
			l.logger.Debug("unlock on close failed", "error", err)
		}
		l.locked = false
	}
	err := errors.Join(l.control.Close(), l.update.Close())
	l.avail.MarkDisconnected()
	l.logger.Info("disconnected")
	return err
}

// State implements entity.Entity.
func (l *Light) State() map[string]any {
	state := map[string]any{
		"available":          l.avail.Available(),
		"connection":         l.avail.State().String(),
		"on":                 nil,
		"brightness":         nil,
		"effect":             nil,
		"effect_list":        l.EffectList(),
		"api_version":        l.apiVersion,
		"icon":               l.Icon(),
		"supported_features": l.SupportedFeatures(),
	}
	if on := l.IsOn(); on != nil {
		state["on"] = *on
	}
	if l.brightness != nil {
		state["brightness"] = *l.brightness
	}
	if l.mode != "" {
		state["effect"] = l.mode
	}
	if l.profile != "" {
		state["profile"] = l.profile
	}
	if l.profiles != nil {
		state["profiles"] = append([]string(nil), l.profiles...)
	}
	if l.zones != nil {
		state["zones"] = *l.zones
	}
	if hs, ok := l.HS(); ok {
		state["hs_color"] = hs[:]
	}
	if l.persist != nil {
		state["persist"] = *l.persist
	}
	return state
}

// stateOptions reads the shared turn_on/set_state parameters. hs_color is
// [hue 0-360, saturation 0-100]; rgb_color is [r, g, b] and wins when both
// are given.
func stateOptions(cmd entity.Command) (StateOptions, error) {
	var opts StateOptions
	if cmd.Has("effect") {
		effect, err := cmd.Text("effect")
		if err != nil {
			return opts, err
		}
		opts.Effect = effect
	}
	if cmd.Has("brightness") {
		b, err := cmd.Int("brightness")
		if err != nil {
			return opts, err
		}
		opts.Brightness = &b
	}
	if cmd.Has("hs_color") {
		hs, err := cmd.Floats("hs_color")
		if err != nil {
			return opts, err
		}
		if len(hs) != 2 {
			return opts, fmt.Errorf("%w: hs_color needs hue and saturation", entity.ErrInvalidParameters)
		}
		rgb := hsToRGB(hs[0], hs[1])
		opts.Colour = &rgb
	}
	if cmd.Has("rgb_color") {
		ch, err := cmd.Ints("rgb_color")
		if err != nil {
			return opts, err
		}
		if len(ch) != 3 || slices.ContainsFunc(ch, func(c int) bool { return c < 0 || c > math.MaxUint8 }) {
			return opts, fmt.Errorf("%w: rgb_color needs three channels of 0-255", entity.ErrInvalidParameters)
		}
		opts.Colour = &RGB{R: uint8(ch[0]), G: uint8(ch[1]), B: uint8(ch[2])}
	}
	if cmd.Has("zones") {
		zones, err := cmd.Ints("zones")
		if err != nil {
			return opts, err
		}
		opts.Zones = zones
	}
	return opts, nil
}

// apiAtLeast compares major.minor only. Greetings may carry versions like
// "2.2.1.3" that are not valid semver.
func apiAtLeast(version, floor string) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return semver.Compare("v"+strings.Join(parts, "."), "v"+floor) >= 0
}

func averageColour(colours []RGB) *RGB {
	if len(colours) == 0 {
		return nil
	}
	var r, g, b int
	for _, c := range colours {
		r += int(c.R)
		g += int(c.G)
		b += int(c.B)
	}
	n := float64(len(colours))
	return &RGB{
		R: uint8(math.Round(float64(r) / n)),
		G: uint8(math.Round(float64(g) / n)),
		B: uint8(math.Round(float64(b) / n)),
	}
}

func rgbToHS(c RGB) [2]float64 {
	h, s, _ := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}.Hsv()
	return [2]float64{round3(h), round3(s * 100)}
}

// hsToRGB renders at full value; brightness is a separate channel.
func hsToRGB(hue, saturation float64) RGB {
	r, g, b := colorful.Hsv(hue, saturation/100, 1).Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}

func round3(f float64) float64 { return math.Round(f*1000) / 1000 }

func (l *Light) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err, "kind", entity.KindOf(err).String())
	switch entity.KindOf(err) {
	case entity.KindCommandFailed:
		l.logger.Debug(msg, args...)
	case entity.KindCannotConnect:
		l.logger.Warn(msg, args...)
	default:
		l.logger.Error(msg, args...)
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func derefInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
