package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Values used when a device entry leaves them out.
const (
	DefaultLightpackPort = 3636
	DefaultLightpackName = "Lightpack"
	DefaultEnigma2Port   = 80
	DefaultEnigma2Name   = "Enigma2 STB"
)

// DevicesConfig lists the devices the bridge manages, by protocol.
type DevicesConfig struct {
	Lightpack []LightpackDeviceConfig `yaml:"lightpack"`
	Enigma2   []Enigma2DeviceConfig   `yaml:"enigma2"`
}

// LightpackDeviceConfig is one Prismatik backlight.
type LightpackDeviceConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// String hides the API key so the struct is safe to log.
func (d LightpackDeviceConfig) String() string {
	key := ""
	if d.APIKey != "" {
		key = "[REDACTED]"
	}
	return fmt.Sprintf("{ID:%s Name:%s Host:%s Port:%d APIKey:%s}", d.ID, d.Name, d.Host, d.Port, key)
}

// Enigma2DeviceConfig is one OpenWebif receiver. Timeout is in seconds;
// zero means the polling I/O timeout.
type Enigma2DeviceConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Timeout int    `yaml:"timeout"`
}

// fillDefaults sets missing ports and names, and derives an ID from the
// host when none is given.
func (d *DevicesConfig) fillDefaults() {
	for i := range d.Lightpack {
		lp := &d.Lightpack[i]
		fill(&lp.Port, &lp.Name, &lp.ID, DefaultLightpackPort, DefaultLightpackName, "lightpack-"+lp.Host)
	}
	for i := range d.Enigma2 {
		stb := &d.Enigma2[i]
		fill(&stb.Port, &stb.Name, &stb.ID, DefaultEnigma2Port, DefaultEnigma2Name, "enigma2-"+stb.Host)
	}
}

func fill(port *int, name, id *string, defPort int, defName, idSeed string) {
	if *port == 0 {
		*port = defPort
	}
	if *name == "" {
		*name = defName
	}
	if *id == "" {
		*id = Slug(idSeed)
	}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases s, collapses anything that is not a letter or digit
// into single dashes, and trims dashes from both ends.
func Slug(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
