package externaltool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

// Output contracts of the helper programs. Extra keys are allowed so tools
// can add debug data without breaking the pipeline.
const (
	classifierSchema = `{
  "type": "object",
  "required": ["templateId"],
  "properties": {
    "templateId": {"type": ["integer", "null"]},
    "score": {"type": ["number", "null"]}
  }
}`

	inferenceSchema = `{
  "type": "object",
  "properties": {
    "status": {"type": ["string", "null"]},
    "fields": {"type": ["object", "null"]},
    "confidence": {"type": ["number", "null"]},
    "modelVersion": {"type": ["string", "null"]}
  }
}`
)

var errEmptyOutput = errors.New("tool produced no output")

var (
	schemaMu    sync.Mutex
	schemaCache = map[string]*jsonschema.Schema{}
)

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := schemaCache[name]; ok {
		return s, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader([]byte(source))); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	schemaCache[name] = schema
	return schema, nil
}

// decodeOutput validates raw tool stdout against the named contract and
// decodes it into out.
func decodeOutput(tool, schemaName, schemaSource string, raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.WrapError(domain.ErrToolFailure, tool, errEmptyOutput)
	}
	schema, err := compileSchema(schemaName, schemaSource)
	if err != nil {
		return domain.WrapError(domain.ErrToolFailure, tool, err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return domain.WrapError(domain.ErrToolFailure, tool, fmt.Errorf("unparsable output: %w", err))
	}
	if err := schema.Validate(doc); err != nil {
		return domain.WrapError(domain.ErrToolFailure, tool, fmt.Errorf("output does not match contract: %w", err))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.WrapError(domain.ErrToolFailure, tool, fmt.Errorf("decode output: %w", err))
	}
	return nil
}
