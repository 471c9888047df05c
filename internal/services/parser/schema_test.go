package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDSL = `entity user principal {
    field username: string unique
    secret password
}

entity project {
    owner user
    field label: string
    rule label_present = "size(self.label) > 0 && self.label != \"-\""
}`

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema(sampleDSL)
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}
	if schema.DSL != sampleDSL {
		t.Errorf("expected DSL to be kept on the schema")
	}
	if schema.Principal() == nil || schema.Principal().Name != "user" {
		t.Errorf("expected user as principal")
	}
	if len(schema.Entities) != 2 {
		t.Errorf("expected 2 entities, got %d", len(schema.Entities))
	}
}

func TestParseSchema_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{name: "syntax", input: `entity {`, wantMsg: "failed to parse schema"},
		{name: "validation", input: `entity a { relation b @b }`, wantMsg: "failed to validate schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchema(tt.input)
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestFormat_Reparses(t *testing.T) {
	schema, err := ParseSchema(sampleDSL)
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}

	formatted := Format(schema)
	if formatted != sampleDSL {
		t.Errorf("Format() =\n%s\nwant\n%s", formatted, sampleDSL)
	}

	again, err := ParseSchema(formatted)
	if err != nil {
		t.Fatalf("formatted schema does not parse: %v", err)
	}
	if again.GetEntity("project").Rules[0].Expression != schema.GetEntity("project").Rules[0].Expression {
		t.Errorf("rule expression changed after formatting")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eddy.schema")
	if err := os.WriteFile(path, []byte(sampleDSL), 0o644); err != nil {
		t.Fatalf("failed to write schema: %v", err)
	}
	if _, err := ParseFile(path); err != nil {
		t.Errorf("ParseFile() error = %v", err)
	}
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.schema")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseFile_ShippedSchema(t *testing.T) {
	schema, err := ParseFile(filepath.Join("..", "..", "..", "schema", "eddy.schema"))
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}

	if len(schema.Entities) != 14 {
		t.Errorf("expected 14 entities, got %d", len(schema.Entities))
	}
	if p := schema.Principal(); p == nil || p.Name != "user" {
		t.Fatalf("expected user principal, got %v", p)
	}

	connector := schema.GetEntity("debezium_connector")
	if connector == nil || !connector.RequiresSuperuser {
		t.Fatalf("expected superuser-only debezium_connector, got %+v", connector)
	}
	config := connector.GetField("config")
	if config == nil || !config.Unique || !config.Mutable || config.Target != "debezium_connector_config" {
		t.Errorf("unexpected config relation %+v", config)
	}

	workspace := schema.GetEntity("workspace")
	if owner := workspace.OwnerField; owner == nil || !owner.Unique {
		t.Errorf("expected unique owner on workspace, got %+v", owner)
	}

	for _, name := range []string{"project", "pipeline"} {
		if rules := schema.GetEntity(name).Rules; len(rules) != 1 {
			t.Errorf("%s: expected one rule, got %d", name, len(rules))
		}
	}
}
