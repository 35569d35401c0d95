// Package telemetry reads property values from the device and keeps the
// last known value per display path.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
)

// Marker replaces a value that could not be read.
type Marker string

const (
	// ParseError marks every path of a batch whose reply was not decodable.
	ParseError Marker = "Parse Error"
	// RequestFailed marks every path of a batch whose request failed.
	RequestFailed Marker = "Request Failed"
	// ReadFailed marks a single path the device reported an error for.
	ReadFailed Marker = "Read Error"
)

var ErrMalformedReply = errors.New("malformed telemetry reply")

// bare non-finite value tokens, e.g. {"vbus_voltage":Infinity}
var nonFinite = regexp.MustCompile(`:(\s*)(-?Infinity|NaN)\b`)

// Decode parses a backend reply. It accepts the batch shape {results:{}},
// the charts shape {data:{}} and the single value shape {value:x}. The
// returned map is keyed by device path; a single value is keyed by "".
func Decode(body []byte) (map[string]any, error) {
	cleaned := nonFinite.ReplaceAll(body, []byte(`:$1"$2"`))

	var reply struct {
		Results map[string]any `json:"results"`
		Data    map[string]any `json:"data"`
		Value   *any           `json:"value"`
	}
	if err := json.Unmarshal(cleaned, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	var out map[string]any
	switch {
	case reply.Results != nil:
		out = reply.Results
	case reply.Data != nil:
		out = reply.Data
	case reply.Value != nil:
		out = map[string]any{"": *reply.Value}
	default:
		// {"value": null} is a valid single read
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(cleaned, &fields); err == nil {
			if _, ok := fields["value"]; ok {
				return map[string]any{"": nil}, nil
			}
		}
		return nil, fmt.Errorf("%w: no results", ErrMalformedReply)
	}

	for k, v := range out {
		out[k] = restore(v)
	}
	return out, nil
}

// restore turns sentinel strings back into floats.
func restore(v any) any {
	switch x := v.(type) {
	case string:
		switch x {
		case types.InfinityString:
			return math.Inf(1)
		case types.NegInfinityString:
			return math.Inf(-1)
		case types.NaNString:
			return math.NaN()
		}
	case map[string]any:
		// per-path {error} entry of a batch reply
		if _, ok := x["error"]; ok && len(x) == 1 {
			return ReadFailed
		}
		for k, e := range x {
			x[k] = restore(e)
		}
	case []any:
		for i, e := range x {
			x[i] = restore(e)
		}
	}
	return v
}

// Encode renders values the way the device backend does, with bare
// Infinity tokens.
func Encode(values map[string]any) ([]byte, error) {
	data, err := json.Marshal(map[string]any{"results": types.JSONValue(values)})
	if err != nil {
		return nil, err
	}
	return unquote.ReplaceAll(data, []byte(`:$1`)), nil
}

var unquote = regexp.MustCompile(`:"(-?Infinity|NaN)"`)
