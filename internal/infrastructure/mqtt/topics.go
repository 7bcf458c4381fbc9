package mqtt

import "fmt"

// TopicPrefix is the root of every Gray Logic topic.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{id}.
const TopicPrefix = "graylogic"

// Topics builds Gray Logic MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.BridgeState("av", "lightpack-10-0-0-5")
//	// "graylogic/state/av/lightpack-10-0-0-5"
type Topics struct{}

// BridgeState returns the retained state topic for one entity.
func (Topics) BridgeState(protocol, id string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, id)
}

// BridgeCommand returns the command topic for one entity.
func (Topics) BridgeCommand(protocol, id string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, id)
}

// BridgeAck returns the command acknowledgement topic for one entity.
func (Topics) BridgeAck(protocol, id string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, id)
}

// BridgeHealth returns the health topic of a bridge.
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// BridgeCommands matches the commands for every entity of a bridge.
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocol)
}

// BridgeStates matches the states of every entity of a bridge.
func (Topics) BridgeStates(protocol string) string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, protocol)
}
