package imposter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema describes the shape shared by every imposter payload.
// Protocol-specific fields are checked by the adapters.
const configSchema = `{
  "type": "object",
  "required": ["protocol"],
  "properties": {
    "protocol": {"type": "string"},
    "port": {"type": "integer", "minimum": 0, "maximum": 65535},
    "name": {"type": "string"},
    "stubs": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "predicates": {"type": "array", "items": {"type": "object"}},
          "responses": {"type": "array", "items": {"type": "object"}}
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("imposter.json", strings.NewReader(configSchema)); err != nil {
		panic(fmt.Sprintf("imposter schema: %v", err))
	}
	return compiler.MustCompile("imposter.json")
}

// validateSchema checks a decoded payload against configSchema and turns
// schema failures into ErrConfiguration.
func validateSchema(doc any) error {
	err := compiledSchema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		return Configurationf("%s", schemaMessages(verr))
	}
	return Configurationf("%v", err)
}

// schemaMessages flattens the leaf causes of a validation error.
func schemaMessages(err *jsonschema.ValidationError) string {
	if len(err.Causes) == 0 {
		location := err.InstanceLocation
		if location == "" {
			location = "/"
		}
		return location + ": " + err.Message
	}
	msgs := make([]string, 0, len(err.Causes))
	for _, cause := range err.Causes {
		msgs = append(msgs, schemaMessages(cause))
	}
	return strings.Join(msgs, "; ")
}

// decodeDocument decodes JSON keeping numbers exact for schema validation.
func decodeDocument(data []byte) (any, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
