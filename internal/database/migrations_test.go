package database

import (
	"testing"
	"testing/fstest"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.sql":   {Data: []byte("SELECT 1")},
		"001_a.sql":   {Data: []byte("SELECT 1")},
		"README.md":   {Data: []byte("notes")},
		"old/003.sql": {Data: []byte("SELECT 1")},
	}

	files, err := migrationFiles(fsys)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(files) != 2 || files[0] != "001_a.sql" || files[1] != "002_b.sql" {
		t.Fatalf("files = %v", files)
	}
}

func TestMigrations_Embedded(t *testing.T) {
	files, err := migrationFiles(Migrations())
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(files) != 6 {
		t.Fatalf("embedded migrations = %v, want 6 files", files)
	}
	if files[0] != "001_orders.sql" {
		t.Errorf("first migration = %s", files[0])
	}
	if last := files[len(files)-1]; last != "006_status_history_seq.sql" {
		t.Errorf("last migration = %s", last)
	}
}
