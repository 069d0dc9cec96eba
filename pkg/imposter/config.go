package imposter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Config is a submitted imposter configuration.
//
// Only the protocol, port and name are interpreted here. Everything else
// in the payload (stubs, mode, key, cert, ...) stays in Fields and is decoded
// by the protocol adapter that owns it.
type Config struct {
	Protocol string
	Port     int
	Name     string

	// Fields holds every top-level member of the payload, including the
	// three above, as raw JSON.
	Fields map[string]json.RawMessage
}

// ParseConfig decodes and validates a JSON imposter payload.
// Malformed payloads return ErrConfiguration.
func ParseConfig(data []byte) (*Config, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, Configurationf("empty imposter payload")
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return nil, Configurationf("invalid JSON: %v", err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, Configurationf("invalid JSON: %v", err)
	}

	var head struct {
		Protocol string `json:"protocol"`
		Port     int    `json:"port"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, Configurationf("%v", err)
	}

	return &Config{
		Protocol: head.Protocol,
		Port:     head.Port,
		Name:     head.Name,
		Fields:   fields,
	}, nil
}

// ParseConfigValue validates an already-decoded payload, such as one read
// from a YAML file, by round-tripping it through JSON.
func ParseConfigValue(v any) (*Config, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, Configurationf("%v", err)
	}
	return ParseConfig(data)
}

// Decode unmarshals the protocol-specific part of the payload into dst.
// Unknown members are ignored so every adapter sees only what it declares.
func (c *Config) Decode(dst any) error {
	data, err := json.Marshal(c.Fields)
	if err != nil {
		return Configurationf("%v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return Configurationf("%v", err)
	}
	return nil
}

// WithPort returns a copy of c bound to port.
func (c *Config) WithPort(port int) *Config {
	out := *c
	out.Port = port
	out.Fields = maps.Clone(c.Fields)
	if out.Fields == nil {
		out.Fields = make(map[string]json.RawMessage)
	}
	out.Fields["port"] = json.RawMessage(fmt.Sprintf("%d", port))
	return &out
}

// MarshalJSON writes the payload back out with its members intact.
func (c *Config) MarshalJSON() ([]byte, error) {
	fields := maps.Clone(c.Fields)
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	set := func(key string, v any) {
		raw, _ := json.Marshal(v)
		fields[key] = raw
	}
	set("protocol", c.Protocol)
	if c.Port > 0 {
		set("port", c.Port)
	}
	if c.Name != "" {
		set("name", c.Name)
	}
	return json.Marshal(fields)
}
