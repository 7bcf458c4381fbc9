// Package influxdb writes AV entity telemetry to InfluxDB v2.
//
// Every published state change becomes one "entity_state" point tagged with
// the entity id and protocol. Only numeric and boolean state values are
// written; strings and unknown (nil) values are skipped so field types stay
// stable across writes.
//
// Writes are non-blocking and batched according to influxdb.batch_size and
// influxdb.flush_interval. Batch failures are reported through SetOnError.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteEntityState("lightpack", "lightpack-10-0-0-5", state)
package influxdb
