package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementEntityState is the measurement for entity snapshots.
const MeasurementEntityState = "entity_state"

// WriteEntityState records the numeric and boolean values of an entity's
// state. Nothing is written when the state has no such values.
func (c *Client) WriteEntityState(protocol, entityID string, state map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := StateFields(state)
	if len(fields) == 0 {
		return
	}

	c.writer.WritePoint(write.NewPoint(
		MeasurementEntityState,
		map[string]string{
			"entity_id": entityID,
			"protocol":  protocol,
		},
		fields,
		time.Now(),
	))
}

// StateFields selects the values of state that can be stored as fields.
// Integers are widened to int64.
func StateFields(state map[string]any) map[string]any {
	fields := make(map[string]any, len(state))
	for k, v := range state {
		switch n := v.(type) {
		case bool, float64, int64:
			fields[k] = n
		case int:
			fields[k] = int64(n)
		case float32:
			fields[k] = float64(n)
		}
	}
	return fields
}
