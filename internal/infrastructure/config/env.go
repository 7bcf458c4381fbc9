package config

import "strconv"

// envPrefix starts every override variable.
const envPrefix = "GRAYLOGIC_AV_"

// envOverrides maps a variable suffix to the field it replaces. Secrets
// belong here rather than in the YAML.
var envOverrides = map[string]func(*Config, string){
	"DATABASE_PATH":    func(c *Config, v string) { c.Database.Path = v },
	"MQTT_HOST":        func(c *Config, v string) { c.MQTT.Broker.Host = v },
	"MQTT_USERNAME":    func(c *Config, v string) { c.MQTT.Auth.Username = v },
	"MQTT_PASSWORD":    func(c *Config, v string) { c.MQTT.Auth.Password = v },
	"API_HOST":         func(c *Config, v string) { c.API.Host = v },
	"INFLUXDB_TOKEN":   func(c *Config, v string) { c.InfluxDB.Token = v },
	"POLLING_INTERVAL": func(c *Config, v string) { setInt(&c.Polling.Interval, v) },
	// Most installs have a single light; the key applies to the first one.
	"LIGHTPACK_API_KEY": func(c *Config, v string) {
		if len(c.Devices.Lightpack) > 0 {
			c.Devices.Lightpack[0].APIKey = v
		}
	},
}

// applyEnvOverrides sets every field whose variable is present and
// non-empty. Unparseable numbers are ignored.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	for suffix, set := range envOverrides {
		if v, ok := lookup(envPrefix + suffix); ok && v != "" {
			set(cfg, v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
