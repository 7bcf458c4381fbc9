package bridge

import (
	"time"

	"github.com/nerrad567/gray-logic-av/internal/infrastructure/mqtt"
)

// Protocol is the bridge's protocol segment in MQTT topics.
const Protocol = "av"

var topics mqtt.Topics

// StateTopic returns the retained state topic for an entity.
func StateTopic(entityID string) string { return topics.BridgeState(Protocol, entityID) }

// CommandTopic returns the command topic for an entity.
func CommandTopic(entityID string) string { return topics.BridgeCommand(Protocol, entityID) }

// AckTopic returns the acknowledgement topic for an entity.
func AckTopic(entityID string) string { return topics.BridgeAck(Protocol, entityID) }

// HealthTopic returns the bridge health topic.
func HealthTopic() string { return topics.BridgeHealth(Protocol) }

// CommandSubscribeTopic matches commands for every entity.
func CommandSubscribeTopic() string { return topics.BridgeCommands(Protocol) }

// CommandMessage is a command for one entity.
// Topic: graylogic/command/av/{entity_id}
type CommandMessage struct {
	// ID correlates the command with its acks. Assigned when empty.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// EntityID may be omitted on MQTT; the topic names the entity.
	EntityID string `json:"entity_id,omitempty"`

	// Command is one of the entity command names, e.g. "turn_on".
	Command string `json:"command"`

	// Parameters, e.g. {"brightness": 128} or {"source": "BBC One HD"}.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source is where the command came from: "mqtt" or "api".
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome reported in an AckMessage.
type AckStatus string

const (
	// AckAccepted: the command was routed to a configured entity.
	AckAccepted AckStatus = "accepted"

	// AckCompleted: the adapter finished the command.
	AckCompleted AckStatus = "completed"

	// AckFailed: the command could not be carried out.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/av/{entity_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	EntityID  string    `json:"entity_id"`
	Protocol  string    `json:"protocol,omitempty"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError describes a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Kind is the device error kind when the adapter classified the failure.
	Kind string `json:"kind,omitempty"`
}

// Error codes for failed acks.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeCommandRejected   = "COMMAND_REJECTED"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage carries an entity's host-facing state.
// Topic: graylogic/state/av/{entity_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	EntityID  string         `json:"entity_id"`
	Name      string         `json:"name"`
	Protocol  string         `json:"protocol"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
}

// HealthStatus is the bridge's operational status.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline is only ever sent by the broker, as the LWT.
	HealthOffline HealthStatus = "offline"

	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/av
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge            string       `json:"bridge"`
	Timestamp         time.Time    `json:"timestamp"`
	Status            HealthStatus `json:"status"`
	Version           string       `json:"version,omitempty"`
	UptimeSeconds     int64        `json:"uptime_seconds"`
	MQTTConnected     bool         `json:"mqtt_connected"`
	EntitiesTotal     int          `json:"entities_total"`
	EntitiesAvailable int          `json:"entities_available"`
	Reason            string       `json:"reason,omitempty"`
}

// NewAckMessage creates an ack for cmd.
func NewAckMessage(cmd CommandMessage, protocol string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		EntityID:  cmd.EntityID,
		Protocol:  protocol,
		Status:    status,
	}
}

// NewFailedAck creates a failed ack with an error code.
func NewFailedAck(cmd CommandMessage, protocol, code string, err error) AckMessage {
	ack := NewAckMessage(cmd, protocol, AckFailed)
	ack.Error = &AckError{Code: code, Message: err.Error()}
	return ack
}

// NewStateMessage creates a state message from a snapshot.
func NewStateMessage(s Snapshot) StateMessage {
	return StateMessage{
		EntityID:  s.ID,
		Name:      s.Name,
		Protocol:  s.Protocol,
		Timestamp: s.UpdatedAt.UTC(),
		State:     s.State,
	}
}

// NewLWTMessage creates the offline message registered as the MQTT will.
func NewLWTMessage() HealthMessage {
	return HealthMessage{
		Bridge:    Protocol,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected disconnect",
	}
}
