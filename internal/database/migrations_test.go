package database

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestPendingMigrationsSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.sql": {Data: []byte("SELECT 2")},
		"001_a.sql": {Data: []byte("SELECT 1")},
		"README.md": {Data: []byte("x")},
		"010_c.sql": {Data: []byte("SELECT 3")},
	}
	got, err := PendingMigrations(fsys)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"001_a.sql", "002_b.sql", "010_c.sql"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMigrationFS(t *testing.T) {
	embedded, err := PendingMigrations(MigrationFS(""))
	if err != nil || len(embedded) == 0 {
		t.Fatalf("embedded migrations = %v, %v", embedded, err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "900_local.sql"), []byte("SELECT 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	local, err := PendingMigrations(MigrationFS(dir))
	if err != nil || len(local) != 1 || local[0] != "900_local.sql" {
		t.Errorf("local migrations = %v, %v", local, err)
	}

	missing, err := PendingMigrations(MigrationFS(filepath.Join(dir, "nope")))
	if err != nil || len(missing) != len(embedded) {
		t.Errorf("missing dir should fall back to embedded: %v, %v", missing, err)
	}
}
