package config

import (
	"errors"
	"fmt"
)

// problems collects every validation failure so one run reports them all.
type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Errorf(format, args...))
}

func validPort(port int) bool { return port >= 1 && port <= 65535 }

// Validate reports every invalid field, joined into one error.
func (c *Config) Validate() error {
	var p problems

	if c.Site.ID == "" {
		p.addf("site.id is required")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		p.addf("database.path is required when the database is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		p.addf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.API.Enabled && !validPort(c.API.Port) {
		p.addf("api.port %d is outside 1-65535", c.API.Port)
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		p.addf("influxdb.url is required when influxdb is enabled")
	}
	if c.Polling.Interval < 1 {
		p.addf("polling.interval must be at least 1 second")
	}
	if c.Polling.IOTimeout < 1 {
		p.addf("polling.io_timeout must be at least 1 second")
	}
	c.Devices.validate(&p)

	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors: %w", errors.Join(p...))
}

// validate checks addressing on every device. IDs become single MQTT topic
// segments, so each must be a slug and unique across protocols.
func (d *DevicesConfig) validate(p *problems) {
	ids := make(map[string]string)

	check := func(path, id, host string, port int) {
		if host == "" {
			p.addf("%s.host is required", path)
		}
		if !validPort(port) {
			p.addf("%s.port %d is outside 1-65535", path, port)
		}
		switch prev, dup := ids[id]; {
		case id == "":
			p.addf("%s.id is required", path)
		case id != Slug(id):
			p.addf("%s.id %q may only hold lower-case letters, digits and dashes (try %q)", path, id, Slug(id))
		case dup:
			p.addf("%s.id %q is already used by %s", path, id, prev)
		default:
			ids[id] = path
		}
	}

	for i, lp := range d.Lightpack {
		check(fmt.Sprintf("devices.lightpack[%d]", i), lp.ID, lp.Host, lp.Port)
	}
	for i, stb := range d.Enigma2 {
		path := fmt.Sprintf("devices.enigma2[%d]", i)
		check(path, stb.ID, stb.Host, stb.Port)
		if stb.Timeout < 0 {
			p.addf("%s.timeout must not be negative", path)
		}
	}
}
