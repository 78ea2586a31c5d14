package runner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/surgeload/surge/internal/scenario"
)

// optionsSchema is the bundled JSON Schema every test module's options
// are checked against before any worker is spawned, sharpening
// spec.md's "fail clearly if missing" into one validation pass shared
// by every executor (SPEC_FULL.md §4.7 "Options validation").
const optionsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "scenarios": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["executor", "vus"],
        "properties": {
          "executor": {"enum": ["per-vu-iterations", "shared-iterations", "constant-vus"]},
          "vus": {"type": "integer", "minimum": 1},
          "iterations": {"type": "integer", "minimum": 1},
          "duration": {"type": "string"},
          "maxDuration": {"type": "string"},
          "gracefulStop": {"type": "string"}
        }
      }
    }
  },
  "required": ["scenarios"]
}`

var compiledOptionsSchema = mustCompileOptionsSchema()

func mustCompileOptionsSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("options.json", strings.NewReader(optionsSchema)); err != nil {
		panic(fmt.Sprintf("runner: invalid bundled options schema: %v", err))
	}
	schema, err := compiler.Compile("options.json")
	if err != nil {
		panic(fmt.Sprintf("runner: invalid bundled options schema: %v", err))
	}
	return schema
}

// validateSchema checks opts against the bundled JSON Schema, catching
// shape errors (an unknown executor name, a scenario with no vus) in a
// form independent of scenario.Options.Validate's Go-side field checks.
func validateSchema(opts scenario.Options) error {
	doc := map[string]interface{}{"scenarios": map[string]interface{}{}}
	scenarios := doc["scenarios"].(map[string]interface{})
	for _, s := range opts.Scenarios {
		scenarios[s.Name] = scenarioToJSON(s.Options)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return &scenario.ConfigurationError{Reason: fmt.Sprintf("options not JSON-serialisable: %v", err)}
	}

	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return &scenario.ConfigurationError{Reason: err.Error()}
	}

	if err := compiledOptionsSchema.Validate(instance); err != nil {
		return &scenario.ConfigurationError{Reason: fmt.Sprintf("options schema: %v", err)}
	}
	return nil
}

func scenarioToJSON(o scenario.ScenarioOptions) map[string]interface{} {
	m := map[string]interface{}{
		"executor": string(o.Executor),
		"vus":      o.VUs,
	}
	if o.Iterations > 0 {
		m["iterations"] = o.Iterations
	}
	if o.Duration > 0 {
		m["duration"] = o.Duration.String()
	}
	if o.MaxDuration > 0 {
		m["maxDuration"] = o.MaxDuration.String()
	}
	if o.GracefulStop > 0 {
		m["gracefulStop"] = o.GracefulStop.String()
	}
	return m
}
