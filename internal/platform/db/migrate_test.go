package db

import (
	"io"
	"strings"
	"testing"
)

func TestMigrationSource_FirstVersion(t *testing.T) {
	src, err := MigrationSource()
	if err != nil {
		t.Fatalf("MigrationSource() error: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("First() error: %v", err)
	}
	if first != 1 {
		t.Errorf("expected first version 1, got %d", first)
	}
}

func TestMigrationSource_SchemaGuardsOverlap(t *testing.T) {
	src, err := MigrationSource()
	if err != nil {
		t.Fatalf("MigrationSource() error: %v", err)
	}
	defer src.Close()

	r, _, err := src.ReadUp(1)
	if err != nil {
		t.Fatalf("ReadUp(1) error: %v", err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := string(b)

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS appointments",
		"CHECK (start_at < end_at)",
		"EXCLUDE USING gist",
		"tstzrange(start_at, end_at, '[)')",
		"patient_id      UUID NOT NULL UNIQUE",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("expected migration to contain %q", want)
		}
	}
}

func TestMigrationSource_HasDown(t *testing.T) {
	src, err := MigrationSource()
	if err != nil {
		t.Fatalf("MigrationSource() error: %v", err)
	}
	defer src.Close()

	r, _, err := src.ReadDown(1)
	if err != nil {
		t.Fatalf("ReadDown(1) error: %v", err)
	}
	r.Close()
}
