package api

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// injectEventSchema validates POST /v1/events request bodies before an
// envelope is constructed.
const injectEventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["case_id", "event_type"],
  "properties": {
    "case_id": {"type": "string", "minLength": 1},
    "event_type": {"type": "string", "minLength": 1},
    "payload": {"type": "object"},
    "sender_id": {"type": "string"},
    "sender_role": {"type": "string", "enum": ["SUBJECT", "PROXY", "EXTERNAL_PARTY", "SYSTEM"]},
    "source": {"type": "string"}
  },
  "additionalProperties": false
}`

// compileEventSchema compiles the embedded schema once at server start.
func compileEventSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://caseflow.schemas.local/inject_event.schema.json"
	if err := c.AddResource(url, strings.NewReader(injectEventSchema)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
