package sessionstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

// Filters are flat: values are scalars or lists of scalars.
const filtersSchema = `{
	"type": "object",
	"additionalProperties": {
		"anyOf": [
			{"type": ["string", "number", "boolean", "null"]},
			{"type": "array", "items": {"type": ["string", "number", "boolean"]}}
		]
	}
}`

const objectSchema = `{"type": "object"}`

var (
	filtersValidator = mustSchema(filtersSchema)
	objectValidator  = mustSchema(objectSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("sessionstate: invalid schema: %v", err))
	}
	return s
}

// ParseFilters parses a search filter object. Blank input yields nil, nil.
// Anything that is not a flat JSON object is a malformed input error.
func ParseFilters(raw string) (map[string]any, error) {
	return parseObject("parse filters", filtersValidator, raw)
}

// ParseObject parses an arbitrary JSON object such as preferences or key
// facts extracted from a dialog. Blank input yields nil, nil.
func ParseObject(raw string) (map[string]any, error) {
	return parseObject("parse object", objectValidator, raw)
}

func parseObject(op string, schema *gojsonschema.Schema, raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, domain.MalformedInput(op, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, domain.MalformedInput(op, errors.New(strings.Join(msgs, "; ")))
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, domain.MalformedInput(op, err)
	}
	return out, nil
}
