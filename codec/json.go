package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Sidecars are small maps of shape fields and string properties, which
// JSON keeps readable by other tools.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// IndentedJSON is JSON with two-space indentation, for sidecars meant to
// be read by people.
type IndentedJSON struct{}

// Marshal encodes the value to indented JSON.
func (IndentedJSON) Marshal(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }

// Unmarshal decodes the JSON data into v.
func (IndentedJSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json-indent").
func (IndentedJSON) Name() string { return "json-indent" }

// Default is the codec used for new sidecars.
var Default Codec = JSON{}
