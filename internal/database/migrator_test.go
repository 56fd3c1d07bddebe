package database

import (
	"context"
	"reflect"
	"testing"
	"testing/fstest"
)

func TestLoadAppliedVersions_NilPool(t *testing.T) {
	_, err := loadAppliedVersions(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestApplyOneMigration_NilPool(t *testing.T) {
	err := applyOneMigration(context.Background(), nil, fstest.MapFS{}, "001_init.sql")
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestMigrate_NilPool(t *testing.T) {
	if err := Migrate(context.Background(), nil, Migrations()); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":   {Data: []byte("SELECT 1;")},
		"002_second.sql":  {Data: []byte("SELECT 1;")},
		"README.md":       {Data: []byte("docs")},
		"sub/003_dir.sql": {Data: []byte("SELECT 1;")},
	}
	got, err := migrationFiles(fsys)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"002_second.sql", "010_later.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("migrationFiles = %v, want %v", got, want)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := migrationFiles(Migrations())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) < 3 || files[0] != "001_runs.sql" || files[len(files)-1] != "003_server_logs.sql" {
		t.Fatalf("embedded migrations = %v", files)
	}
}

func TestCountPendingMigrations(t *testing.T) {
	files := []string{"001.sql", "002.sql", "003.sql"}
	if n := countPendingMigrations(files, map[string]bool{"001.sql": true}); n != 2 {
		t.Fatalf("pending = %d, want 2", n)
	}
}
