package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
)

// JSON encodes with encoding/json.
type JSON struct{}

// NewJSON returns the json serializer.
func NewJSON() (*JSON, error) { return &JSON{}, nil }

// Name returns "json".
func (*JSON) Name() string { return "json" }

// ContentType returns "application/json".
func (*JSON) ContentType() string { return "application/json" }

// Marshal encodes v as JSON.
func (*JSON) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "json marshal failed")
	}
	return data, nil
}

// Unmarshal decodes JSON data into v.
func (*JSON) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "json unmarshal failed")
	}
	return nil
}

// TOML encodes with BurntSushi/toml. Only tables (structs and maps) can be
// encoded at the top level.
type TOML struct{}

// NewTOML returns the toml serializer.
func NewTOML() (*TOML, error) { return &TOML{}, nil }

// Name returns "toml".
func (*TOML) Name() string { return "toml" }

// ContentType returns "application/toml".
func (*TOML) ContentType() string { return "application/toml" }

// Marshal encodes v as a TOML document. v must be a struct or a map, or a
// pointer to one.
func (*TOML) Marshal(v any) ([]byte, error) {
	if !isTable(v) {
		return nil, rpcerrors.InvalidInput("toml can only encode structs and maps",
			rpcerrors.WithMetadata("type", fmt.Sprintf("%T", v)))
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "toml marshal failed")
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes TOML data into v.
func (*TOML) Unmarshal(data []byte, v any) error {
	if _, err := toml.Decode(string(data), v); err != nil {
		return rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "toml unmarshal failed")
	}
	return nil
}

// isTable reports whether v, after dereferencing pointers and interfaces,
// is a struct or a map.
func isTable(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Struct || rv.Kind() == reflect.Map
}

// YAML encodes with yaml.v3.
type YAML struct{}

// NewYAML returns the yaml serializer.
func NewYAML() (*YAML, error) { return &YAML{}, nil }

// Name returns "yaml".
func (*YAML) Name() string { return "yaml" }

// ContentType returns "application/yaml".
func (*YAML) ContentType() string { return "application/yaml" }

// Marshal encodes v as YAML.
func (*YAML) Marshal(v any) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "yaml marshal failed")
	}
	return data, nil
}

// Unmarshal decodes YAML data into v.
func (*YAML) Unmarshal(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "yaml unmarshal failed")
	}
	return nil
}
