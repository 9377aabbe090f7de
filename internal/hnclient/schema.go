package hnclient

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed story.schema.json
var storySchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateStoryPayload checks a native item payload against the embedded
// schema before it is decoded. Upstream fields drift without notice, so
// shape problems should fail loudly here rather than as zero values deep
// in the pipeline.
func ValidateStoryPayload(payload []byte) error {
	schema, err := loadStorySchema()
	if err != nil {
		return fmt.Errorf("load story schema: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return fmt.Errorf("decode story payload: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("story payload schema validation failed: %w", err)
	}
	return nil
}

func loadStorySchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("story.schema.json", bytes.NewReader([]byte(storySchemaJSON))); err != nil {
			compiledSchemaErr = err
			return
		}
		compiledSchema, compiledSchemaErr = compiler.Compile("story.schema.json")
	})
	return compiledSchema, compiledSchemaErr
}
