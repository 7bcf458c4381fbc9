package enigma2

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Literal is an OpenWebif scalar kept in its textual form.
//
// Firmware versions disagree on whether flags and numbers are JSON strings,
// booleans or numbers ("true", true, "50", 50). Literal accepts all of them;
// null decodes to "".
type Literal string

// UnmarshalJSON implements json.Unmarshaler.
func (l *Literal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*l = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = Literal(s)
		return nil
	}
	*l = Literal(strings.ToLower(string(b)))
	return nil
}

// StatusInfo is the subset of /api/statusinfo the adapter reads.
type StatusInfo struct {
	InStandby           Literal `json:"inStandby"`
	CurrServiceName     string  `json:"currservice_name"`
	CurrServiceStation  string  `json:"currservice_station"`
	CurrServiceFilename string  `json:"currservice_filename"`
	Volume              Literal `json:"volume"`
	Muted               Literal `json:"muted"`
}

// About is the subset of /api/about used for identity.
type About struct {
	Info struct {
		Brand   string `json:"brand"`
		Model   string `json:"model"`
		Boxtype string `json:"boxtype"`
		Ifaces  []struct {
			Name string `json:"name"`
			Mac  string `json:"mac"`
		} `json:"ifaces"`
	} `json:"info"`
}

// Service is one entry of /api/getservices.
type Service struct {
	Name      string  `json:"servicename"`
	Reference string  `json:"servicereference"`
	Program   Literal `json:"program"`
}

// Tunable reports whether the entry is a real channel. Markers and
// separators carry program 0.
func (s Service) Tunable() bool {
	return s.Program != "" && s.Program != "0"
}

// PowerState is an OpenWebif /api/powerstate target.
type PowerState int

// Power states accepted by /api/powerstate.
const (
	PowerToggleStandby PowerState = 0
	PowerDeepStandby   PowerState = 1
	PowerReboot        PowerState = 2
	PowerRestartGUI    PowerState = 3
	PowerWakeup        PowerState = 4
	PowerStandby       PowerState = 5
)

// resultReply is the common {"result": bool, "message": string} envelope.
type resultReply struct {
	Result  *bool  `json:"result"`
	Message string `json:"message"`
}

type servicesReply struct {
	Services []Service `json:"services"`
}
