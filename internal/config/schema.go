package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// policySchema 只约束文档骨架：必需的段与关键数值字段的类型。
// 细粒度的数值区间检查在 validate 里做。
const policySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["capital", "risk", "session", "strategy", "exit", "verdict"],
  "properties": {
    "capital": {"type": "number"},
    "risk": {
      "type": "object",
      "required": ["per_trade_pct", "per_day_pct"],
      "properties": {
        "per_trade_pct": {"type": "number"},
        "per_day_pct": {"type": "number"}
      }
    },
    "session": {"type": "object"},
    "strategy": {"type": "object"},
    "entry": {"type": "object"},
    "exit": {"type": "object"},
    "exec": {"type": "object"},
    "max_trades_per_day": {"type": "integer"},
    "verdict": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {"type": "object"}
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledPolicySchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("policy.json", bytes.NewReader([]byte(policySchema))); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("policy.json")
	})
	return compiledSchema, schemaErr
}

// validateShape 在解码前用 JSON Schema 检查原始文档骨架，
// 缺段在这里即被拦下（PolicyShapeError），不会进入引擎。
func validateShape(settings map[string]any) error {
	schema, err := compiledPolicySchema()
	if err != nil {
		return fmt.Errorf("compiling policy schema failed: %w", err)
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding policy for schema check failed: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return &ShapeError{Detail: err.Error()}
	}
	return nil
}
