package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-av/internal/entity"
)

// Scheduling defaults.
const (
	DefaultPollInterval   = 10 * time.Second
	DefaultPollTimeout    = 30 * time.Second
	DefaultCommandTimeout = 15 * time.Second

	closeTimeout    = 5 * time.Second
	historyTimeout  = 5 * time.Second
	commandTopicLen = 4 // graylogic/command/av/{id}

	// StateChangedChannel is the WebSocket channel for state changes.
	StateChangedChannel = "entity.state_changed"

	sourcePoll    = "poll"
	sourceCommand = "command"
)

// MQTTClient is the MQTT surface the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// Telemetry receives every state change. Optional.
type Telemetry interface {
	WriteEntityState(protocol, entityID string, state map[string]any)
}

// History records every state change. Optional.
type History interface {
	RecordStateChange(ctx context.Context, entityID string, state map[string]any, source string) error
}

// Broadcaster fans state changes out to WebSocket clients. Optional.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Snapshot is the last published view of one entity.
type Snapshot struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Protocol  string         `json:"protocol"`
	Available bool           `json:"available"`
	State     map[string]any `json:"state"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Options configures a Bridge.
type Options struct {
	MQTT     MQTTClient
	Entities []entity.Entity
	Logger   entity.Logger

	Telemetry   Telemetry
	History     History
	Broadcaster Broadcaster

	PollInterval   time.Duration // default 10s
	PollTimeout    time.Duration // default 30s
	CommandTimeout time.Duration // default 15s
	HealthInterval time.Duration // default 30s
	Version        string
}

// runner serialises adapter calls for one entity and holds its last snapshot.
type runner struct {
	mu  sync.Mutex // held across every adapter call
	ent entity.Entity

	snapMu    sync.RWMutex
	snap      Snapshot
	published bool
}

// Bridge schedules polls and commands for a fixed set of entities.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt        MQTTClient
	health      *HealthReporter
	telemetry   Telemetry
	history     History
	broadcaster Broadcaster
	logger      entity.Logger

	runners map[string]*runner
	order   []string

	pollInterval   time.Duration
	pollTimeout    time.Duration
	commandTimeout time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// New creates a Bridge. Call Start to begin polling.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, ErrMQTTRequired
	}

	b := &Bridge{
		mqtt:           opts.MQTT,
		telemetry:      opts.Telemetry,
		history:        opts.History,
		broadcaster:    opts.Broadcaster,
		logger:         entity.OrNop(opts.Logger),
		runners:        make(map[string]*runner, len(opts.Entities)),
		pollInterval:   orDefault(opts.PollInterval, DefaultPollInterval),
		pollTimeout:    orDefault(opts.PollTimeout, DefaultPollTimeout),
		commandTimeout: orDefault(opts.CommandTimeout, DefaultCommandTimeout),
		done:           make(chan struct{}),
	}

	for _, ent := range opts.Entities {
		if ent == nil {
			return nil, fmt.Errorf("entity is nil")
		}
		id := ent.ID()
		if _, dup := b.runners[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntity, id)
		}
		r := &runner{ent: ent}
		r.snap = capture(ent)
		b.runners[id] = r
		b.order = append(b.order, id)
	}

	b.ctx, b.ctxCancel = context.WithCancel(context.Background())

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Counter:   b.countAvailable,
		Logger:    opts.Logger,
	})

	return b, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start subscribes to commands, starts one poll loop per entity and starts
// health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	topic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	for _, id := range b.order {
		b.wg.Add(1)
		go b.pollLoop(b.runners[id])
	}

	b.health.Start(ctx)

	b.logger.Info("bridge started",
		"entities", len(b.order),
		"poll_interval", b.pollInterval.String())
	return nil
}

// Stop cancels polling and in-flight commands, publishes a stopping status
// and closes every entity. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.wg.Wait()
		b.health.Stop()

		for _, id := range b.order {
			r := b.runners[id]
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			r.mu.Lock()
			err := r.ent.Close(ctx)
			r.mu.Unlock()
			cancel()
			if err != nil {
				b.logger.Warn("closing entity failed", "entity_id", id, "error", err)
			}
		}

		b.logger.Info("bridge stopped")
	})
}

// Entities returns the last published snapshot of every entity, in
// configuration order.
func (b *Bridge) Entities() []Snapshot {
	out := make([]Snapshot, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.runners[id].snapshot())
	}
	return out
}

// Entity returns the last published snapshot of one entity.
func (b *Bridge) Entity(id string) (Snapshot, bool) {
	r, ok := b.runners[id]
	if !ok {
		return Snapshot{}, false
	}
	return r.snapshot(), true
}

// Connected reports whether the MQTT client is connected.
func (b *Bridge) Connected() bool { return b.mqtt.IsConnected() }

// Execute runs a command on an entity and publishes its acks. It returns
// the command id assigned to the request.
func (b *Bridge) Execute(ctx context.Context, entityID string, cmd entity.Command) (string, error) {
	msg := CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		EntityID:   entityID,
		Command:    cmd.Name,
		Parameters: cmd.Params,
		Source:     "api",
	}
	return msg.ID, b.run(ctx, msg)
}

func (b *Bridge) pollLoop(r *runner) {
	defer b.wg.Done()

	b.poll(r)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.poll(r)
		}
	}
}

// poll runs one Update and publishes the result when it changed.
func (b *Bridge) poll(r *runner) {
	ctx, cancel := context.WithTimeout(b.ctx, b.pollTimeout)
	defer cancel()

	r.mu.Lock()
	err := r.ent.Update(ctx)
	snap := capture(r.ent)
	r.mu.Unlock()

	if err != nil {
		b.logger.Debug("poll failed",
			"entity_id", snap.ID,
			"kind", entity.KindOf(err).String(),
			"error", err)
	}
	b.publishIfChanged(r, snap, sourcePoll)
}

// run routes a command to its entity. A Connected entity is re-polled
// after a successful command so the published state reflects the device
// rather than the request. An Unavailable one waits for the scheduled poll:
// a command never brings an adapter back.
func (b *Bridge) run(ctx context.Context, msg CommandMessage) error {
	r, ok := b.runners[msg.EntityID]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownEntity, msg.EntityID)
		b.publishAck(NewFailedAck(msg, "", ErrCodeNotConfigured, err))
		return err
	}
	protocol := r.ent.Protocol()

	b.publishAck(NewAckMessage(msg, protocol, AckAccepted))
	b.logger.Info("executing command",
		"command_id", msg.ID,
		"entity_id", msg.EntityID,
		"command", msg.Command,
		"source", msg.Source)

	ctx, cancel := context.WithTimeout(ctx, b.commandTimeout)
	defer cancel()

	r.mu.Lock()
	err := r.ent.Execute(ctx, entity.Command{Name: msg.Command, Params: msg.Parameters})
	if err == nil && r.ent.Available() {
		if uerr := r.ent.Update(ctx); uerr != nil {
			b.logger.Debug("refresh after command failed", "entity_id", msg.EntityID, "error", uerr)
		}
	}
	snap := capture(r.ent)
	r.mu.Unlock()

	b.publishIfChanged(r, snap, sourceCommand)

	if err != nil {
		ack := NewFailedAck(msg, protocol, ErrorCode(err), err)
		if errors.As(err, new(*entity.Error)) {
			ack.Error.Kind = entity.KindOf(err).String()
		}
		b.publishAck(ack)
		b.logger.Warn("command failed",
			"command_id", msg.ID,
			"entity_id", msg.EntityID,
			"command", msg.Command,
			"error", err)
		return err
	}

	b.publishAck(NewAckMessage(msg, protocol, AckCompleted))
	return nil
}

// ErrorCode maps a command error to its ack error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEntity):
		return ErrCodeNotConfigured
	case errors.Is(err, entity.ErrUnsupportedCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, entity.ErrInvalidParameters):
		return ErrCodeInvalidParameters
	case errors.Is(err, entity.ErrCannotConnect):
		return ErrCodeDeviceUnreachable
	case errors.Is(err, entity.ErrCommandFailed):
		return ErrCodeCommandRejected
	default:
		return ErrCodeBridgeError
	}
}

// handleMQTTMessage handles graylogic/command/av/{entity_id}.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) != commandTopicLen || parts[1] != "command" || parts[3] == "" {
		b.logger.Warn("ignoring message on unexpected topic", "topic", topic)
		return
	}

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("failed to parse command", "topic", topic, "error", err)
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.EntityID = parts[3]
	if msg.Source == "" {
		msg.Source = "mqtt"
	}

	// Failures are reported through the failed ack.
	_ = b.run(b.ctx, msg)
}

func (b *Bridge) publishIfChanged(r *runner, snap Snapshot, source string) {
	r.snapMu.Lock()
	changed := !r.published ||
		r.snap.Name != snap.Name ||
		!reflect.DeepEqual(r.snap.State, snap.State)
	if changed {
		r.snap = snap
		r.published = true
	}
	r.snapMu.Unlock()

	if !changed {
		return
	}

	payload, err := json.Marshal(NewStateMessage(snap))
	if err != nil {
		b.logger.Error("failed to marshal state", "entity_id", snap.ID, "error", err)
		return
	}
	if err := b.mqtt.Publish(StateTopic(snap.ID), payload, 1, true); err != nil {
		b.logger.Warn("failed to publish state", "entity_id", snap.ID, "error", err)
	}

	if b.telemetry != nil {
		b.telemetry.WriteEntityState(snap.Protocol, snap.ID, snap.State)
	}
	if b.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := b.history.RecordStateChange(ctx, snap.ID, snap.State, source); err != nil {
			b.logger.Warn("failed to record state history", "entity_id", snap.ID, "error", err)
		}
		cancel()
	}
	if b.broadcaster != nil {
		b.broadcaster.Broadcast(StateChangedChannel, NewStateMessage(snap))
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "command_id", ack.CommandID, "error", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(ack.EntityID), payload, 1, false); err != nil {
		b.logger.Warn("failed to publish ack", "command_id", ack.CommandID, "error", err)
	}
}

func (b *Bridge) countAvailable() (available, total int) {
	for _, id := range b.order {
		if b.runners[id].snapshot().Available {
			available++
		}
	}
	return available, len(b.order)
}

func (r *runner) snapshot() Snapshot {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.snap
}

// capture reads an entity's current view. The caller holds the runner lock
// or has exclusive access to the entity.
func capture(ent entity.Entity) Snapshot {
	return Snapshot{
		ID:        ent.ID(),
		Name:      ent.Name(),
		Protocol:  ent.Protocol(),
		Available: ent.Available(),
		State:     ent.State(),
		UpdatedAt: time.Now(),
	}
}
