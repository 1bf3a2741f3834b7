package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed handlers.schema.json
var handlerSchemaJSON []byte

const handlerSchemaURL = "handlers.schema.json"

var (
	handlerSchemaOnce sync.Once
	handlerSchema     *jsonschema.Schema
	handlerSchemaErr  error
)

func compiledHandlerSchema() (*jsonschema.Schema, error) {
	handlerSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(handlerSchemaURL, bytes.NewReader(handlerSchemaJSON)); err != nil {
			handlerSchemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		handlerSchema, handlerSchemaErr = compiler.Compile(handlerSchemaURL)
	})
	return handlerSchema, handlerSchemaErr
}

// SchemaError lists the schema violations of a handler file.
type SchemaError struct {
	Path   string
	Issues []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: does not match the handler file schema:\n  %s", e.Path, strings.Join(e.Issues, "\n  "))
}

// validateSchema checks a decoded YAML document. The document goes through
// JSON first so numbers and maps have the types the validator expects.
func validateSchema(path string, doc any) error {
	schema, err := compiledHandlerSchema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return &ConfigError{Path: path, Message: fmt.Sprintf("not representable as JSON: %v", err)}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return &ConfigError{Path: path, Message: err.Error()}
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &ConfigError{Path: path, Message: err.Error()}
	}
	schemaErr := &SchemaError{Path: path}
	collectSchemaIssues(verr, schemaErr)
	return schemaErr
}

func collectSchemaIssues(err *jsonschema.ValidationError, out *SchemaError) {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out.Issues = append(out.Issues, loc+": "+err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaIssues(cause, out)
	}
}
