package entity

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCommand_Params(t *testing.T) {
	var cmd Command
	payload := `{"command":"turn_on","parameters":{"brightness":128,"effect":"ambilight","ratio":0.25,"mute":true,"empty":null}}`
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if cmd.Name != CmdTurnOn {
		t.Errorf("Name = %q", cmd.Name)
	}
	if n, err := cmd.Int("brightness"); err != nil || n != 128 {
		t.Errorf("Int(brightness) = %d, %v", n, err)
	}
	if s, err := cmd.Text("effect"); err != nil || s != "ambilight" {
		t.Errorf("Text(effect) = %q, %v", s, err)
	}
	if f, err := cmd.Float("ratio"); err != nil || f != 0.25 {
		t.Errorf("Float(ratio) = %v, %v", f, err)
	}
	if b, err := cmd.Bool("mute"); err != nil || !b {
		t.Errorf("Bool(mute) = %v, %v", b, err)
	}
	if cmd.Has("empty") || cmd.Has("missing") || !cmd.Has("effect") {
		t.Error("Has() mismatch")
	}
}

func TestCommand_ParamErrors(t *testing.T) {
	cmd := Command{Name: CmdSetBrightness, Params: map[string]any{
		"brightness": 12.5,
		"effect":     42.0,
		"mute":       "yes",
	}}

	checks := []struct {
		name string
		err  error
	}{
		{"fractional int", func() error { _, err := cmd.Int("brightness"); return err }()},
		{"missing", func() error { _, err := cmd.Float("volume"); return err }()},
		{"wrong string type", func() error { _, err := cmd.Text("effect"); return err }()},
		{"wrong bool type", func() error { _, err := cmd.Bool("mute"); return err }()},
	}
	for _, c := range checks {
		if !errors.Is(c.err, ErrInvalidParameters) {
			t.Errorf("%s: err = %v, want ErrInvalidParameters", c.name, c.err)
		}
	}
}

func TestCommand_ListParams(t *testing.T) {
	var cmd Command
	payload := `{"command":"set_state","parameters":{"hs_color":[30,50.5],"zones":[0,3],"bad":[1,"x"],"half":[1.5]}}`
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	hs, err := cmd.Floats("hs_color")
	if err != nil || len(hs) != 2 || hs[0] != 30 || hs[1] != 50.5 {
		t.Errorf("Floats(hs_color) = %v, %v", hs, err)
	}
	zones, err := cmd.Ints("zones")
	if err != nil || len(zones) != 2 || zones[1] != 3 {
		t.Errorf("Ints(zones) = %v, %v", zones, err)
	}
	for _, key := range []string{"bad", "half", "missing"} {
		if _, err := cmd.Ints(key); !errors.Is(err, ErrInvalidParameters) {
			t.Errorf("Ints(%s) err = %v, want ErrInvalidParameters", key, err)
		}
	}
	if _, err := (Command{Params: map[string]any{"zones": "all"}}).Floats("zones"); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("Floats(string) err = %v, want ErrInvalidParameters", err)
	}
}

func TestUnsupported(t *testing.T) {
	err := Unsupported("enigma2", Command{Name: CmdSetEffect})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Errorf("err = %v, want ErrUnsupportedCommand", err)
	}
}
