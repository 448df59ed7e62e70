package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/invopop/jsonschema"
)

func TestBuildSchemaListsRecordTypes(t *testing.T) {
	schema := buildSchema([]string{"player", "wall"})

	value, ok := schema.Properties.Get("entities")
	if !ok {
		t.Fatalf("expected entities property")
	}
	entities := value.(*jsonschema.Schema)
	if entities.Items == nil {
		t.Fatalf("expected entities to describe their items")
	}
	value, ok = entities.Items.Properties.Get("type")
	if !ok {
		t.Fatalf("expected record type property")
	}
	if got := value.(*jsonschema.Schema).Enum; !reflect.DeepEqual(got, []interface{}{"player", "wall"}) {
		t.Fatalf("unexpected type enum %v", got)
	}
	if _, ok := entities.Items.Properties.Get("data"); !ok {
		t.Fatalf("expected record data property")
	}
}

func TestWriteSchemaReplacesAtomically(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schemas", "bundle.schema.json")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(out, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := writeSchema(out, buildSchema([]string{"player"})); err != nil {
		t.Fatalf("writeSchema returned error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if decoded["title"] != "Glade Runner Map Bundle" {
		t.Fatalf("unexpected title %v", decoded["title"])
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be gone, stat err=%v", err)
	}
}
