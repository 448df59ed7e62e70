// Command bundleschema writes the JSON schema for map bundle files.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/iancoleman/orderedmap"
	"github.com/invopop/jsonschema"

	"glade-runner/server/internal/bundle"
	"glade-runner/server/internal/factory"
	"glade-runner/server/internal/state"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schema := buildSchema(factory.Default().Types())

	if err := writeSchema(outPath, schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

// buildSchema describes a bundle whose record data is an entity overlay and
// whose record type is one of types.
func buildSchema(types []string) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}

	header := reflector.ReflectFromType(reflect.TypeOf(bundle.Header{}))
	header.Version = ""

	entity := reflector.ReflectFromType(reflect.TypeOf(state.Entity{}))
	entity.Version = ""
	entity.Description = "Component overlay applied on top of the archetype template"

	enum := make([]interface{}, 0, len(types))
	for _, t := range types {
		enum = append(enum, t)
	}
	recordProps := orderedmap.New()
	recordProps.Set("type", &jsonschema.Schema{Type: "string", Enum: enum, Description: "Registered archetype"})
	recordProps.Set("data", entity)
	record := &jsonschema.Schema{
		Type:       "object",
		Properties: recordProps,
		Required:   []string{"type"},
	}

	rootProps := orderedmap.New()
	rootProps.Set("header", header)
	rootProps.Set("entities", &jsonschema.Schema{Type: "array", Items: record})
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Glade Runner Map Bundle",
		Description: "Scene config plus entity records for one map",
		Type:        "object",
		Properties:  rootProps,
		Required:    []string{"header", "entities"},
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
