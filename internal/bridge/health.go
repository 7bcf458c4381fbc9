package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-av/internal/entity"
)

// DefaultHealthInterval is the retained health refresh period.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher is the slice of MQTTClient the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// EntityCounter returns how many entities are Connected, out of all of them.
type EntityCounter func() (available, total int)

type HealthReporterConfig struct {
	Version   string
	Interval  time.Duration
	Publisher HealthPublisher
	Counter   EntityCounter
	Logger    entity.Logger
}

// HealthReporter keeps a retained HealthMessage on the bridge health
// topic fresh, and leaves a "stopping" one behind on Stop.
type HealthReporter struct {
	version string
	born    time.Time
	every   time.Duration
	pub     HealthPublisher
	count   EntityCounter
	log     entity.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	exited chan struct{}
	halted bool
}

func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	h := &HealthReporter{
		version: cfg.Version,
		born:    time.Now(),
		every:   cfg.Interval,
		pub:     cfg.Publisher,
		count:   cfg.Counter,
		log:     entity.OrNop(cfg.Logger),
	}
	if h.every <= 0 {
		h.every = DefaultHealthInterval
	}
	if h.count == nil {
		h.count = func() (int, int) { return 0, 0 }
	}
	return h
}

// Start publishes immediately and then every interval until ctx ends or
// Stop is called. Later calls are no-ops.
func (h *HealthReporter) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil || h.halted {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel, h.exited = cancel, make(chan struct{})
	go h.run(loopCtx, h.exited)
}

// Stop ends the loop and publishes "stopping". Only the first call acts.
func (h *HealthReporter) Stop() {
	h.mu.Lock()
	if h.halted {
		h.mu.Unlock()
		return
	}
	h.halted = true
	cancel, exited := h.cancel, h.exited
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-exited
	}
	if err := h.publish(HealthStopping, "bridge stopping"); err != nil {
		h.log.Debug("stopping health not published", "error", err)
	}
}

// PublishStarting announces that entities are still being brought up.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the status derived from MQTT and entity availability.
func (h *HealthReporter) PublishNow() error {
	return h.publish(h.determineStatus())
}

// LWTPayload is the "offline" message the broker publishes on our behalf
// if the process disappears.
func LWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage())
}

func (h *HealthReporter) run(ctx context.Context, exited chan<- struct{}) {
	defer close(exited)

	tick := time.NewTicker(h.every)
	defer tick.Stop()

	for {
		if err := h.PublishNow(); err != nil {
			h.log.Error("health publish failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// determineStatus degrades on a lost broker before looking at entities.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if !h.mqttUp() {
		return HealthDegraded, "MQTT disconnected"
	}
	if up, all := h.count(); up < all {
		return HealthDegraded, fmt.Sprintf("%d of %d entities unavailable", all-up, all)
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) mqttUp() bool {
	return h.pub != nil && h.pub.IsConnected()
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.pub == nil {
		return nil
	}
	up, all := h.count()
	payload, err := json.Marshal(HealthMessage{
		Bridge:            Protocol,
		Timestamp:         time.Now().UTC(),
		Status:            status,
		Version:           h.version,
		UptimeSeconds:     int64(time.Since(h.born) / time.Second),
		MQTTConnected:     h.mqttUp(),
		EntitiesTotal:     all,
		EntitiesAvailable: up,
		Reason:            reason,
	})
	if err != nil {
		return err
	}
	return h.pub.Publish(HealthTopic(), payload, 1, true)
}
