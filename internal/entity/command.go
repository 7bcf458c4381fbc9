package entity

import (
	"encoding/json"
	"fmt"
	"math"
)

// Command names understood by the adapters.
const (
	CmdTurnOn        = "turn_on"
	CmdTurnOff       = "turn_off"
	CmdSetBrightness = "set_brightness"
	CmdSetEffect     = "set_effect"
	CmdSetState      = "set_state"
	CmdSelectSource  = "select_source"
	CmdSetVolume     = "set_volume"
	CmdMute          = "mute"
)

// Command is a host request for an adapter.
// Params typically comes from decoded JSON, so numbers arrive as float64.
type Command struct {
	Name   string         `json:"command"`
	Params map[string]any `json:"parameters,omitempty"`
}

// Has reports whether the parameter is present and non-null.
func (c Command) Has(key string) bool {
	v, ok := c.Params[key]
	return ok && v != nil
}

// Int returns an integer parameter. Whole-valued floats are accepted.
func (c Command) Int(key string) (int, error) {
	f, err := c.Float(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s must be a whole number", ErrInvalidParameters, key)
	}
	return int(f), nil
}

// Float returns a numeric parameter.
func (c Command) Float(key string) (float64, error) {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParameters, key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidParameters, key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidParameters, key, v)
	}
}

// Floats returns a numeric list parameter such as an hs or rgb colour.
func (c Command) Floats(key string) ([]float64, error) {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidParameters, key)
	}
	switch list := v.(type) {
	case []float64:
		return append([]float64(nil), list...), nil
	case []int:
		out := make([]float64, len(list))
		for i, n := range list {
			out[i] = float64(n)
		}
		return out, nil
	case []any:
		out := make([]float64, len(list))
		for i, item := range list {
			f, err := Command{Params: map[string]any{key: item}}.Float(key)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list of numbers, got %T", ErrInvalidParameters, key, v)
	}
}

// Ints is Floats for whole numbers.
func (c Command) Ints(key string) ([]int, error) {
	fs, err := c.Floats(key)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(fs))
	for i, f := range fs {
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: %s must hold whole numbers", ErrInvalidParameters, key)
		}
		out[i] = int(f)
	}
	return out, nil
}

// Text returns a string parameter.
func (c Command) Text(key string) (string, error) {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidParameters, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidParameters, key, v)
	}
	return s, nil
}

// Bool returns a boolean parameter.
func (c Command) Bool(key string) (bool, error) {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return false, fmt.Errorf("%w: %s is required", ErrInvalidParameters, key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidParameters, key, v)
	}
	return b, nil
}

// Unsupported returns the error for a command an adapter does not implement.
func Unsupported(protocol string, cmd Command) error {
	return fmt.Errorf("%w: %s does not support %q", ErrUnsupportedCommand, protocol, cmd.Name)
}
