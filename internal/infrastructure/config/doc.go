// Package config loads the bridge's YAML configuration.
//
// Load layers built-in defaults, the file, per-device defaults (Lightpack
// port 3636, generic names, IDs slugged from the host) and finally
// GRAYLOGIC_AV_* environment variables, then validates the result.
//
// Keep the MQTT password, the InfluxDB token and the Prismatik API key in
// the environment rather than the file:
//
//	GRAYLOGIC_AV_MQTT_PASSWORD=... GRAYLOGIC_AV_LIGHTPACK_API_KEY=... graylogic-av
package config
