package database

import (
	"reflect"
	"testing"
	"testing/fstest"
)

func TestListMigrationFilesKeepsUpOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_notes.up.sql":   {Data: []byte("--")},
		"migrations/0001_leads.up.sql":   {Data: []byte("--")},
		"migrations/0001_leads.down.sql": {Data: []byte("--")},
		"migrations/README":              {Data: []byte("x")},
	}
	got := listMigrationFiles(fsys, "migrations")
	want := []string{"0001_leads.up.sql", "0002_notes.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"0001_a.up.sql", "0002_b.up.sql", "0003_c.up.sql"}
	tests := []struct {
		name     string
		from, to uint64
		want     []string
	}{
		{"fresh", 0, 3, files},
		{"partial", 1, 2, []string{"0002_b.up.sql"}},
		{"no change", 3, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectApplied(files, tt.from, tt.to); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("selectApplied = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigURLEscapesPassword(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "mebel", Password: "p@ss/word", Name: "leads"}
	want := "postgres://mebel:p%40ss%2Fword@db:5432/leads?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Fatalf("URL = %s, want %s", got, want)
	}
}
